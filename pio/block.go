package pio

import (
	"sync"

	"github.com/pkg/errors"
)

// NumStateMachines is the number of state machines per PIO block (spec
// §6: SM_COUNT=4).
const NumStateMachines = 4

// MemorySize is the number of 16-bit instruction slots shared by all
// state machines in a block (spec §6: MEMORY_SIZE=32).
const MemorySize = 32

// Block owns everything a single PIO instance shares among its four
// state machines: the instruction memory, the GPIO fabric, the IRQ
// set, and the master clock that drives them all in lockstep (spec
// §4.H). Every MMR access and every clock tick serializes on Mu, per
// spec §5's single-actor concurrency model.
type Block struct {
	Mu sync.Mutex

	index int // which of the two PIO instances this is (spec §6: PIO_NUM=2)

	Memory [MemorySize]uint16
	used   [MemorySize]bool

	SMs   [NumStateMachines]*StateMachine
	GPIO  *GPIO
	IRQ   IRQSet
	Clock *Clock
}

// NewBlock returns an empty, disabled PIO block. index distinguishes
// PIO0 from PIO1 for diagnostics; it plays no role in behavior.
func NewBlock(index int) *Block {
	b := &Block{index: index, GPIO: NewGPIO()}
	for i := range b.SMs {
		b.SMs[i] = NewStateMachine(i)
	}
	b.Clock = NewClock(&b.Mu, b.phase0, b.phase1)
	return b
}

// Index returns which of the two PIO instances this block represents.
func (b *Block) Index() int { return b.index }

// SM returns state machine i (0..3).
func (b *Block) SM(i int) *StateMachine { return b.SMs[i&(NumStateMachines-1)] }

// phase0 is the Clock's sample/evaluate callback: every enabled SM
// steps in index order, queuing pin-drive requests against the shared
// GPIO fabric without yet committing them (spec §4.H).
func (b *Block) phase0() {
	for _, sm := range b.SMs {
		sm.Step(&b.Memory, b.GPIO, &b.IRQ)
	}
}

// phase1 is the Clock's commit callback: arbitrated pin drives and
// queued IRQ mutations become visible (spec §4.H, §5).
func (b *Block) phase1() {
	b.GPIO.Commit()
	b.IRQ.Commit()
}

// Tick runs one full phase0/phase1 cycle. Clock.Tick locks Mu itself
// (shared with the free-run goroutine and every MMR access), so no MMR
// reader ever observes a mid-tick state.
func (b *Block) Tick() {
	b.Clock.Tick()
}

// rxNotEmpty and txNotFull report the SM-relative bits IRQSet.INTS
// needs, computed fresh from the FIFOs each time they're read rather
// than cached, since they change on every PUSH/PULL/MMR access.
func (b *Block) rxNotEmpty() [4]bool {
	var v [4]bool
	for i, sm := range b.SMs {
		v[i] = !sm.FIFO.IsRxEmpty()
	}
	return v
}

func (b *Block) txNotFull() [4]bool {
	var v [4]bool
	for i, sm := range b.SMs {
		v[i] = !sm.FIFO.IsTxFull()
	}
	return v
}

// INTS computes the derived interrupt status word for host line 0 or 1.
func (b *Block) INTS(line int) uint16 {
	return b.IRQ.INTS(line, b.rxNotEmpty(), b.txNotFull())
}

// CanLoadProgramAt reports whether count instructions can be placed at
// offset without overlapping any instruction slot already claimed by
// another loaded program (teacher's CanAddProgramAtOffset).
func (b *Block) CanLoadProgramAt(offset, count int) bool {
	if offset < 0 || count < 0 || offset+count > MemorySize {
		return false
	}
	for i := offset; i < offset+count; i++ {
		if b.used[i] {
			return false
		}
	}
	return true
}

// findOffsetForProgram finds the lowest free contiguous run of count
// slots, mirroring the teacher's findOffsetForProgram.
func (b *Block) findOffsetForProgram(count int) (int, error) {
	for offset := 0; offset+count <= MemorySize; offset++ {
		if b.CanLoadProgramAt(offset, count) {
			return offset, nil
		}
	}
	return 0, errors.New("pio: no free instruction memory for program")
}

// LoadProgram writes program into shared instruction memory. If offset
// is negative, the block finds the lowest free contiguous run itself.
// Any JMP instruction inside program is relocated by adding the chosen
// offset to its target address, so callers can assemble programs
// address-independently, exactly as the teacher's AddProgram does for
// real hardware. Returns the offset actually used.
func (b *Block) LoadProgram(program []uint16, offset int) (int, error) {
	if len(program) == 0 {
		return 0, errors.New("pio: empty program")
	}
	if len(program) > MemorySize {
		return 0, errors.New("pio: program larger than instruction memory")
	}
	if offset < 0 {
		var err error
		offset, err = b.findOffsetForProgram(len(program))
		if err != nil {
			return 0, err
		}
	} else if !b.CanLoadProgramAt(offset, len(program)) {
		return 0, errors.Errorf("pio: offset %d already occupied", offset)
	}
	for i, word := range program {
		relocated := word
		if word&bitsOpMask == bitsJMP {
			addr := (word & 0x1f) + uint16(offset)
			relocated = word&^0x1f | (addr & 0x1f)
		}
		b.Memory[offset+i] = relocated
		b.used[offset+i] = true
	}
	return offset, nil
}

// ClearProgramSection marks a previously loaded program's slots free
// again without touching their contents, mirroring the teacher's
// ClearProgramSection.
func (b *Block) ClearProgramSection(offset, count int) {
	for i := offset; i < offset+count && i < MemorySize; i++ {
		b.used[i] = false
	}
}
