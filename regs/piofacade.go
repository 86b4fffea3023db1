package regs

import (
	"fmt"

	"github.com/piolab/rp2040pio/pio"
)

// PIOFacade exposes one pio.Block's user-visible register file over the
// address bus (spec §4.I). Every method takes an address already
// relative to this facade's base and still carrying its raw write-mode
// bits (13:12); Read/Provides strip those bits themselves since a read
// address's mode bits are meaningless (only writes are modal).
type PIOFacade struct {
	block *pio.Block
}

// NewPIOFacade wraps block for MMR access.
func NewPIOFacade(block *pio.Block) *PIOFacade {
	return &PIOFacade{block: block}
}

func stripMode(addr uint32) uint32 {
	_, base := DecodeWriteMode(addr)
	return base
}

// Provides reports whether addr (mode bits ignored) falls within this
// facade's register file.
func (f *PIOFacade) Provides(addr uint32) bool {
	base := stripMode(addr)
	return base < FacadeSpan && base%4 == 0
}

// Read returns the current word at addr. Unmapped or write-only
// addresses read as 0 (spec §4.J).
func (f *PIOFacade) Read(addr uint32) uint32 {
	base := stripMode(addr)
	b := f.block
	b.Mu.Lock()
	defer b.Mu.Unlock()

	switch base {
	case CTRL:
		return f.readCTRL()
	case FSTAT:
		return f.readFSTAT()
	case FDEBUG:
		return f.readFDEBUG()
	case FLEVEL:
		return f.readFLEVEL()
	case IRQ:
		return uint32(b.IRQ.Raw())
	case IRQFORCE:
		return 0 // write-only
	case INPUTSYNCBYPASS:
		return b.GPIO.InputSyncBypass()
	case DBGPADOUT:
		return b.GPIO.DBGPadOut()
	case DBGPADOE:
		return b.GPIO.DBGPadOE()
	case DBGCFGINFO:
		return dbgCfgInfo()
	case INTR:
		return uint32(b.IRQ.Raw()) // matches INTR's SM-side view before host masking
	case IRQ0_INTE:
		return uint32(b.IRQ.INTE(0))
	case IRQ0_INTF:
		return uint32(b.IRQ.INTF(0))
	case IRQ0_INTS:
		return uint32(b.INTS(0))
	case IRQ1_INTE:
		return uint32(b.IRQ.INTE(1))
	case IRQ1_INTF:
		return uint32(b.IRQ.INTF(1))
	case IRQ1_INTS:
		return uint32(b.INTS(1))
	}

	if n, ok := txfIndex(base); ok {
		_ = n
		return 0 // TXF is a write-only push port
	}
	if n, ok := rxfIndex(base); ok {
		w, _ := b.SM(n).FIFO.PopRX()
		return w
	}
	if n, ok := instrMemIndex(base); ok {
		return uint32(b.Memory[n])
	}
	if sm, field, ok := smIndex(base); ok {
		return f.readSM(sm, field)
	}
	return 0
}

// Write applies value to addr, honoring addr's write-mode bits for
// registers where the atomic alias formula makes sense. FIFO ports,
// FDEBUG, and IRQ/IRQ_FORCE are inherently single-formula registers on
// real hardware (a push, or a write-one-to-clear/set), so they consume
// value directly regardless of the alias requested; CTRL's SM_RESTART
// and CLKDIV_RESTART fields are momentary strobes with the same
// property. Everything else round-trips through WriteMode.Apply.
func (f *PIOFacade) Write(addr uint32, value uint32) {
	mode, base := DecodeWriteMode(addr)
	b := f.block
	b.Mu.Lock()
	defer b.Mu.Unlock()

	switch base {
	case CTRL:
		f.writeCTRL(mode, value)
		return
	case FSTAT:
		return // read-only
	case FDEBUG:
		f.writeFDEBUG(value)
		return
	case FLEVEL:
		return // read-only
	case IRQ:
		b.IRQ.WriteIRQ(uint8(value))
		return
	case IRQFORCE:
		b.IRQ.WriteIRQForce(uint8(value))
		return
	case INPUTSYNCBYPASS:
		cur := b.GPIO.InputSyncBypass()
		b.GPIO.SetInputSyncBypass(0xffffffff, mode.Apply(cur, value), false)
		return
	case DBGPADOUT, DBGPADOE, DBGCFGINFO, INTR:
		return // read-only
	case IRQ0_INTE:
		b.IRQ.SetINTE(0, uint16(mode.Apply(uint32(b.IRQ.INTE(0)), value)))
		return
	case IRQ0_INTF:
		b.IRQ.SetINTF(0, uint16(mode.Apply(uint32(b.IRQ.INTF(0)), value)))
		return
	case IRQ0_INTS:
		return // derived, read-only
	case IRQ1_INTE:
		b.IRQ.SetINTE(1, uint16(mode.Apply(uint32(b.IRQ.INTE(1)), value)))
		return
	case IRQ1_INTF:
		b.IRQ.SetINTF(1, uint16(mode.Apply(uint32(b.IRQ.INTF(1)), value)))
		return
	case IRQ1_INTS:
		return // derived, read-only
	}

	if n, ok := txfIndex(base); ok {
		b.SM(n).FIFO.PushTX(value)
		return
	}
	if _, ok := rxfIndex(base); ok {
		return // read-only push port from the SM's perspective
	}
	if n, ok := instrMemIndex(base); ok {
		cur := uint32(b.Memory[n])
		b.Memory[n] = uint16(mode.Apply(cur, value) & 0xffff)
		return
	}
	if sm, field, ok := smIndex(base); ok {
		f.writeSM(sm, field, mode, value)
		return
	}
}

// Label returns a human-readable register name for the bridge's `l`
// command.
func (f *PIOFacade) Label(addr uint32) string {
	base := stripMode(addr)
	switch base {
	case CTRL:
		return "CTRL"
	case FSTAT:
		return "FSTAT"
	case FDEBUG:
		return "FDEBUG"
	case FLEVEL:
		return "FLEVEL"
	case IRQ:
		return "IRQ"
	case IRQFORCE:
		return "IRQ_FORCE"
	case INPUTSYNCBYPASS:
		return "INPUT_SYNC_BYPASS"
	case DBGPADOUT:
		return "DBG_PADOUT"
	case DBGPADOE:
		return "DBG_PADOE"
	case DBGCFGINFO:
		return "DBG_CFGINFO"
	case INTR:
		return "INTR"
	case IRQ0_INTE:
		return "IRQ0_INTE"
	case IRQ0_INTF:
		return "IRQ0_INTF"
	case IRQ0_INTS:
		return "IRQ0_INTS"
	case IRQ1_INTE:
		return "IRQ1_INTE"
	case IRQ1_INTF:
		return "IRQ1_INTF"
	case IRQ1_INTS:
		return "IRQ1_INTS"
	}
	if n, ok := txfIndex(base); ok {
		return fmt.Sprintf("TXF%d", n)
	}
	if n, ok := rxfIndex(base); ok {
		return fmt.Sprintf("RXF%d", n)
	}
	if n, ok := instrMemIndex(base); ok {
		return fmt.Sprintf("INSTR_MEM%d", n)
	}
	if sm, field, ok := smIndex(base); ok {
		return fmt.Sprintf("SM%d_%s", sm, smFieldName(field))
	}
	return ""
}

func smFieldName(f SMField) string {
	switch f {
	case SMClkDiv:
		return "CLKDIV"
	case SMExecCtrl:
		return "EXECCTRL"
	case SMShiftCtrl:
		return "SHIFTCTRL"
	case SMAddr:
		return "ADDR"
	case SMInstr:
		return "INSTR"
	case SMPinCtrl:
		return "PINCTRL"
	}
	return "?"
}

func txfIndex(base uint32) (int, bool) {
	if base >= TXF0 && base <= TXF3 && (base-TXF0)%4 == 0 {
		return int((base - TXF0) / 4), true
	}
	return 0, false
}

func rxfIndex(base uint32) (int, bool) {
	if base >= RXF0 && base <= RXF3 && (base-RXF0)%4 == 0 {
		return int((base - RXF0) / 4), true
	}
	return 0, false
}

func instrMemIndex(base uint32) (int, bool) {
	if base >= InstrMemBase && base < smBase && (base-InstrMemBase)%4 == 0 {
		return int((base - InstrMemBase) / 4), true
	}
	return 0, false
}

func smIndex(base uint32) (int, SMField, bool) {
	if base < smBase || base >= tailBase {
		return 0, 0, false
	}
	off := base - smBase
	sm := int(off) / SMSize
	rem := off % SMSize
	if rem%4 != 0 {
		return 0, 0, false
	}
	return sm, SMField(rem / 4), true
}

// dbgCfgInfo is the constant hardware-configuration word: MEMORY_SIZE
// in bits 16..23, SM_COUNT in bits 8..15, FIFO_DEPTH in bits 0..7
// (spec §4.I).
func dbgCfgInfo() uint32 {
	return uint32(pio.MemorySize)<<16 | uint32(pio.NumStateMachines)<<8 | uint32(4)
}

func (f *PIOFacade) readCTRL() uint32 {
	var v uint32
	for i := 0; i < pio.NumStateMachines; i++ {
		if f.block.SM(i).IsEnabled() {
			v |= 1 << uint(i)
		}
	}
	return v
}

// writeCTRL applies SM_ENABLE (bits 3:0) through the requested write
// mode, and fires SM_RESTART (bits 7:4) / CLKDIV_RESTART (bits 11:8)
// directly off value's raw bits regardless of mode: these are momentary
// strobes with no persisted "current value" to combine a formula
// against, so every write mode triggers them identically (see
// DESIGN.md).
func (f *PIOFacade) writeCTRL(mode WriteMode, value uint32) {
	enable := mode.Apply(f.readCTRL(), value) & 0xf
	for i := 0; i < pio.NumStateMachines; i++ {
		f.block.SM(i).SetEnabled(enable&(1<<uint(i)) != 0)
	}
	for i := 0; i < pio.NumStateMachines; i++ {
		if value&(1<<uint(4+i)) != 0 {
			f.block.SM(i).Restart()
		}
		if value&(1<<uint(8+i)) != 0 {
			f.block.SM(i).ClkDivRestart()
		}
	}
}

func (f *PIOFacade) readFSTAT() uint32 {
	var v uint32
	for i := 0; i < pio.NumStateMachines; i++ {
		fifo := f.block.SM(i).FIFO
		if fifo.IsTxEmpty() {
			v |= 1 << uint(24+i)
		}
		if fifo.IsTxFull() {
			v |= 1 << uint(16+i)
		}
		if fifo.IsRxEmpty() {
			v |= 1 << uint(8+i)
		}
		if fifo.IsRxFull() {
			v |= 1 << uint(i)
		}
	}
	return v
}

func (f *PIOFacade) readFDEBUG() uint32 {
	var v uint32
	for i := 0; i < pio.NumStateMachines; i++ {
		fifo := f.block.SM(i).FIFO
		if fifo.TxStall {
			v |= 1 << uint(24+i)
		}
		if fifo.TxOver {
			v |= 1 << uint(16+i)
		}
		if fifo.RxUnder {
			v |= 1 << uint(8+i)
		}
		if fifo.RxStall {
			v |= 1 << uint(i)
		}
	}
	return v
}

// writeFDEBUG clears whichever debug latches are set in value,
// regardless of write mode: FDEBUG is inherently write-one-to-clear on
// real hardware, so XOR/SET/CLEAR aliases would be redundant or
// contradictory here and this module treats every mode as "clear these
// bits" (see DESIGN.md).
func (f *PIOFacade) writeFDEBUG(value uint32) {
	for i := 0; i < pio.NumStateMachines; i++ {
		fifo := f.block.SM(i).FIFO
		if value&(1<<uint(24+i)) != 0 {
			fifo.TxStall = false
		}
		if value&(1<<uint(16+i)) != 0 {
			fifo.TxOver = false
		}
		if value&(1<<uint(8+i)) != 0 {
			fifo.RxUnder = false
		}
		if value&(1<<uint(i)) != 0 {
			fifo.RxStall = false
		}
	}
}

func (f *PIOFacade) readFLEVEL() uint32 {
	var v uint32
	for i := 0; i < pio.NumStateMachines; i++ {
		fifo := f.block.SM(i).FIFO
		v |= uint32(fifo.TxLevel()&0xf) << uint(8*i)
		v |= uint32(fifo.RxLevel()&0xf) << uint(8*i+4)
	}
	return v
}

func (f *PIOFacade) readSM(sm int, field SMField) uint32 {
	s := f.block.SM(sm)
	switch field {
	case SMClkDiv:
		return uint32(s.Config.ClkDivInt)<<16 | uint32(s.Config.ClkDivFrac)<<8
	case SMExecCtrl:
		return encodeExecCtrl(s)
	case SMShiftCtrl:
		return encodeShiftCtrl(s)
	case SMAddr:
		return uint32(s.PC) & 0x1f
	case SMInstr:
		return uint32(s.LastWord)
	case SMPinCtrl:
		return encodePinCtrl(s)
	}
	return 0
}

func (f *PIOFacade) writeSM(sm int, field SMField, mode WriteMode, value uint32) {
	s := f.block.SM(sm)
	switch field {
	case SMClkDiv:
		cur := uint32(s.Config.ClkDivInt)<<16 | uint32(s.Config.ClkDivFrac)<<8
		v := mode.Apply(cur, value)
		s.Config.SetClkDivIntFrac(uint16(v>>16), uint8(v>>8))
	case SMExecCtrl:
		v := mode.Apply(encodeExecCtrl(s), value)
		decodeExecCtrl(s, v)
	case SMShiftCtrl:
		v := mode.Apply(encodeShiftCtrl(s), value)
		decodeShiftCtrl(s, v)
		s.FIFO.SetJoin(s.Config.FJoin)
	case SMAddr:
		s.Jmp(uint8(mode.Apply(uint32(s.PC), value)))
	case SMInstr:
		w := uint16(mode.Apply(uint32(s.LastWord), value) & 0xffff)
		s.ForcedInstr = &w
	case SMPinCtrl:
		v := mode.Apply(encodePinCtrl(s), value)
		decodePinCtrl(s, v)
	}
}

// EXECCTRL bit layout mirrors the real RP2040 datasheet's SMx_EXECCTRL
// (§3.7): EXEC_STALLED(31), SIDE_EN(30), SIDE_PINDIR(29), JMP_PIN(28:24),
// OUT_EN_SEL(23:19), INLINE_OUT_EN(18), OUT_STICKY(17), WRAP_TOP(16:12),
// WRAP_BOTTOM(11:7), STATUS_SEL(5:4), STATUS_N(3:0).
func encodeExecCtrl(s *pio.StateMachine) uint32 {
	var v uint32
	if s.Stalled {
		v |= 1 << 31
	}
	if s.Config.SideSetEnable {
		v |= 1 << 30
	}
	if s.Config.SideSetPinDirs {
		v |= 1 << 29
	}
	v |= uint32(s.Config.JmpPin&0x1f) << 24
	v |= uint32(s.Config.OutEnablePin&0x1f) << 19
	if s.Config.HasOutEnablePin {
		v |= 1 << 18
	}
	if s.Config.OutSticky {
		v |= 1 << 17
	}
	v |= uint32(s.Config.WrapTop&0x1f) << 12
	v |= uint32(s.Config.WrapBottom&0x1f) << 7
	v |= uint32(s.Config.StatusSel&0x3) << 4
	v |= uint32(s.Config.StatusN & 0xf)
	return v
}

func decodeExecCtrl(s *pio.StateMachine, v uint32) {
	s.Config.SetSidesetParams(s.Config.SideSetBits, v&(1<<30) != 0, v&(1<<29) != 0)
	s.Config.SetJmpPin(uint8(v>>24) & 0x1f)
	s.Config.SetOutSpecial(v&(1<<17) != 0, v&(1<<18) != 0, uint8(v>>19)&0x1f)
	s.Config.SetWrap(uint8(v>>7)&0x1f, uint8(v>>12)&0x1f)
	s.Config.SetMovStatus(pio.MovStatusSel(uint8(v>>4)&0x3), uint8(v&0xf))
}

// SHIFTCTRL bit layout mirrors SMx_SHIFTCTRL: FJOIN_RX(31), FJOIN_TX(30),
// PULL_THRESH(29:25), PUSH_THRESH(24:20), OUT_SHIFTDIR(19),
// IN_SHIFTDIR(18), AUTOPULL(17), AUTOPUSH(16).
func encodeShiftCtrl(s *pio.StateMachine) uint32 {
	var v uint32
	switch s.Config.FJoin {
	case pio.FifoJoinRx:
		v |= 1 << 31
	case pio.FifoJoinTx:
		v |= 1 << 30
	}
	v |= uint32(s.Config.PullThreshold&0x1f) << 25
	v |= uint32(s.Config.PushThreshold&0x1f) << 20
	if s.Config.OutShiftDir == pio.ShiftRight {
		v |= 1 << 19
	}
	if s.Config.InShiftDir == pio.ShiftRight {
		v |= 1 << 18
	}
	if s.Config.AutoPull {
		v |= 1 << 17
	}
	if s.Config.AutoPush {
		v |= 1 << 16
	}
	return v
}

func decodeShiftCtrl(s *pio.StateMachine, v uint32) {
	join := pio.FifoJoinNone
	if v&(1<<31) != 0 {
		join = pio.FifoJoinRx
	} else if v&(1<<30) != 0 {
		join = pio.FifoJoinTx
	}
	s.Config.SetFIFOJoin(join)

	inDir := pio.ShiftLeft
	if v&(1<<18) != 0 {
		inDir = pio.ShiftRight
	}
	outDir := pio.ShiftLeft
	if v&(1<<19) != 0 {
		outDir = pio.ShiftRight
	}
	s.Config.SetInShift(inDir, v&(1<<16) != 0, uint16(v>>20)&0x1f)
	s.Config.SetOutShift(outDir, v&(1<<17) != 0, uint16(v>>25)&0x1f)
}

// PINCTRL bit layout mirrors SMx_PINCTRL: SIDESET_COUNT(31:29),
// SET_COUNT(28:26), OUT_COUNT(25:20), IN_BASE(19:15), SIDESET_BASE(14:10),
// SET_BASE(9:5), OUT_BASE(4:0).
func encodePinCtrl(s *pio.StateMachine) uint32 {
	var v uint32
	v |= uint32(s.Config.SideSetBits&0x7) << 29
	v |= uint32(s.Config.SetCount&0x7) << 26
	v |= uint32(s.Config.OutCount&0x3f) << 20
	v |= uint32(s.Config.InBase&0x1f) << 15
	v |= uint32(s.Config.SideSetBase&0x1f) << 10
	v |= uint32(s.Config.SetBase&0x1f) << 5
	v |= uint32(s.Config.OutBase & 0x1f)
	return v
}

func decodePinCtrl(s *pio.StateMachine, v uint32) {
	s.Config.SetSidesetParams(uint8(v>>29)&0x7, s.Config.SideSetEnable, s.Config.SideSetPinDirs)
	s.Config.SetSidesetPins(uint8(v>>10) & 0x1f)
	s.Config.SetSetPins(uint8(v>>5)&0x1f, uint8(v>>26)&0x7)
	s.Config.SetOutPins(uint8(v&0x1f), uint8(v>>20)&0x3f)
	s.Config.SetInPins(uint8(v>>15) & 0x1f)
}
