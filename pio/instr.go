// Package pio implements the core of an RP2040 Programmable I/O block:
// instruction decode/execute, the per-state-machine execution context,
// and the shared fabric (memory, GPIO, IRQ) that ties four state
// machines together.
package pio

import (
	"fmt"

	"github.com/pkg/errors"
)

// Opcode identifies one of the nine PIO instruction classes. Bits 15..13
// of the instruction word.
type Opcode uint8

const (
	OpJMP Opcode = iota
	OpWAIT
	OpIN
	OpOUT
	OpPUSH
	OpPULL
	OpMOV
	OpIRQ
	OpSET
)

func (op Opcode) String() string {
	switch op {
	case OpJMP:
		return "jmp"
	case OpWAIT:
		return "wait"
	case OpIN:
		return "in"
	case OpOUT:
		return "out"
	case OpPUSH:
		return "push"
	case OpPULL:
		return "pull"
	case OpMOV:
		return "mov"
	case OpIRQ:
		return "irq"
	case OpSET:
		return "set"
	default:
		return "???"
	}
}

// bit positions for the major opcode field, matching the teacher's
// _INSTR_BITS_* constants.
const (
	bitsJMP  = 0x0000
	bitsWAIT = 0x2000
	bitsIN   = 0x4000
	bitsOUT  = 0x6000
	bitsPUSH = 0x8000
	bitsPULL = 0x8080
	bitsMOV  = 0xa000
	bitsIRQ  = 0xc000
	bitsSET  = 0xe000

	bitsOpMask = 0xe000
)

// ErrReserved is returned by Decode when an instruction word encodes a
// reserved source, destination, operation, or index and the datasheet
// leaves its behavior undefined.
var ErrReserved = errors.New("pio: reserved encoding")

// DecodeError is a fatal, latched decode failure. It preserves the
// offending word so the extended MMR facade can report it.
type DecodeError struct {
	Word uint16
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("pio: decode error on word %#04x: %v", e.Word, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// JmpCond is the condition code of a JMP instruction.
type JmpCond uint8

const (
	JmpAlways JmpCond = iota
	JmpNotX
	JmpXDec
	JmpNotY
	JmpYDec
	JmpXNotEqualY
	JmpPin
	JmpNotOSRE
)

func (c JmpCond) String() string {
	switch c {
	case JmpAlways:
		return ""
	case JmpNotX:
		return "!x"
	case JmpXDec:
		return "x--"
	case JmpNotY:
		return "!y"
	case JmpYDec:
		return "y--"
	case JmpXNotEqualY:
		return "x!=y"
	case JmpPin:
		return "pin"
	case JmpNotOSRE:
		return "!osre"
	default:
		return "???"
	}
}

// WaitSrc is the source of a WAIT instruction's polled bit.
type WaitSrc uint8

const (
	WaitGPIO WaitSrc = iota
	WaitPIN
	WaitIRQ
	waitReserved
)

func (s WaitSrc) String() string {
	switch s {
	case WaitGPIO:
		return "gpio"
	case WaitPIN:
		return "pin"
	case WaitIRQ:
		return "irq"
	default:
		return "???"
	}
}

// InSrc is the source of an IN instruction.
type InSrc uint8

const (
	InPINS InSrc = iota
	InX
	InY
	InNULL
	inReserved1
	inReserved2
	InISR
	InOSR
)

func (s InSrc) String() string {
	switch s {
	case InPINS:
		return "pins"
	case InX:
		return "x"
	case InY:
		return "y"
	case InNULL:
		return "null"
	case InISR:
		return "isr"
	case InOSR:
		return "osr"
	default:
		return "???"
	}
}

// OutDest is the destination of an OUT instruction.
type OutDest uint8

const (
	OutPINS OutDest = iota
	OutX
	OutY
	OutNULL
	OutPINDIRS
	OutPC
	OutISR
	OutEXEC
)

func (d OutDest) String() string {
	switch d {
	case OutPINS:
		return "pins"
	case OutX:
		return "x"
	case OutY:
		return "y"
	case OutNULL:
		return "null"
	case OutPINDIRS:
		return "pindirs"
	case OutPC:
		return "pc"
	case OutISR:
		return "isr"
	case OutEXEC:
		return "exec"
	default:
		return "???"
	}
}

// MovSrc is the source operand of a MOV instruction.
type MovSrc uint8

const (
	MovSrcPINS MovSrc = iota
	MovSrcX
	MovSrcY
	MovSrcNULL
	movSrcReserved
	MovSrcSTATUS
	MovSrcISR
	MovSrcOSR
)

func (s MovSrc) String() string {
	switch s {
	case MovSrcPINS:
		return "pins"
	case MovSrcX:
		return "x"
	case MovSrcY:
		return "y"
	case MovSrcNULL:
		return "null"
	case MovSrcSTATUS:
		return "status"
	case MovSrcISR:
		return "isr"
	case MovSrcOSR:
		return "osr"
	default:
		return "???"
	}
}

// MovDest is the destination operand of a MOV instruction.
type MovDest uint8

const (
	MovDestPINS MovDest = iota
	MovDestX
	MovDestY
	movDestReserved
	MovDestEXEC
	MovDestPC
	MovDestISR
	MovDestOSR
)

func (d MovDest) String() string {
	switch d {
	case MovDestPINS:
		return "pins"
	case MovDestX:
		return "x"
	case MovDestY:
		return "y"
	case MovDestEXEC:
		return "exec"
	case MovDestPC:
		return "pc"
	case MovDestISR:
		return "isr"
	case MovDestOSR:
		return "osr"
	default:
		return "???"
	}
}

// MovOp is the operation MOV applies to its source operand.
type MovOp uint8

const (
	MovOpNone MovOp = iota
	MovOpInvert
	MovOpBitReverse
	movOpReserved
)

func (op MovOp) String() string {
	switch op {
	case MovOpNone:
		return ""
	case MovOpInvert:
		return "~"
	case MovOpBitReverse:
		return "::"
	default:
		return "???"
	}
}

// SetDest is the destination of a SET instruction.
type SetDest uint8

const (
	SetPINS SetDest = iota
	SetX
	SetY
	setReserved1
	SetPINDIRS
	setReserved2
	setReserved3
	setReserved4
)

func (d SetDest) String() string {
	switch d {
	case SetPINS:
		return "pins"
	case SetX:
		return "x"
	case SetY:
		return "y"
	case SetPINDIRS:
		return "pindirs"
	default:
		return "???"
	}
}

// Instr is a fully decoded PIO instruction. Exactly one of the opcode-
// specific field groups is meaningful, selected by Op. Delay and
// SideSet are extracted independently of the opcode from the shared
// delay/side-set bit field (spec §4.E).
type Instr struct {
	Op Opcode

	// JMP
	JmpCond JmpCond
	JmpAddr uint8

	// WAIT
	WaitPolarity bool
	WaitSrc      WaitSrc
	WaitIndex    uint8

	// IN / OUT
	InSrc    InSrc
	OutDest  OutDest
	BitCount uint8 // 1..32, 0 in the raw field means 32

	// PUSH / PULL
	IfFullOrEmpty bool
	Block         bool

	// MOV
	MovDest MovDest
	MovSrc  MovSrc
	MovOp   MovOp

	// IRQ
	IRQClear bool
	IRQWait  bool
	IRQIndex uint8

	// SET
	SetDest SetDest
	SetData uint8

	// Shared slot, extracted by DecodeSlot/EncodeSlot from bits 12..8.
	Delay   uint8
	SideSet uint8
	HasSide bool
}

// delayMaskForSideSetCount is the low-bits mask left over for delay once
// side_set_count bits have been reserved out of the 5-bit shared field
// (spec §4.E: "the 5 bits are partitioned by side_set_count").
var delayMaskForSideSetCount = [6]uint8{0x1f, 0x0f, 0x07, 0x03, 0x01, 0x00}

// DecodeSlot extracts delay and side-set from the shared 5-bit field
// (instruction bits 12..8), given the state machine's configured
// side-set bit count and whether side-set uses the optional enable bit.
// When sideSetOptional, the top bit of the side-set's reserved bits is
// the valid flag and does not itself carry side-set data; the count
// reduces by one, per spec §4.E.
func DecodeSlot(word uint16, sideSetCount uint8, sideSetOptional bool) (delay, sideSet uint8, hasSide bool) {
	field := uint8(word>>8) & 0x1f
	delay = field & delayMaskForSideSetCount[sideSetCount]
	if sideSetCount == 0 {
		return delay, 0, false
	}
	reserved := (field >> (5 - sideSetCount)) & ((1 << sideSetCount) - 1)
	if sideSetOptional {
		dataBits := sideSetCount - 1
		hasSide = reserved>>dataBits&1 != 0
		sideSet = reserved & ((1 << dataBits) - 1)
	} else {
		hasSide = true
		sideSet = reserved
	}
	return delay, sideSet, hasSide
}

// EncodeSlot packs delay and side-set into instruction bits 12..8, the
// inverse of DecodeSlot.
func EncodeSlot(delay, sideSet uint8, hasSide bool, sideSetCount uint8, sideSetOptional bool) uint16 {
	field := delay & delayMaskForSideSetCount[sideSetCount]
	if sideSetCount > 0 {
		var reserved uint8
		if sideSetOptional {
			dataBits := sideSetCount - 1
			reserved = sideSet & ((1 << dataBits) - 1)
			if hasSide {
				reserved |= 1 << dataBits
			}
		} else {
			reserved = sideSet & ((1 << sideSetCount) - 1)
		}
		field |= reserved << (5 - sideSetCount)
	}
	return uint16(field&0x1f) << 8
}

// checkIRQIndex validates the reserved bits of a WAIT-on-IRQ or IRQ
// instruction's index field, per Instruction.java's checkIRQIndex.
func checkIRQIndex(index uint8) error {
	if index&0x08 != 0 {
		return ErrReserved
	}
	if index&0x10 != 0 && index&0x04 != 0 {
		return ErrReserved
	}
	return nil
}

// Decode decodes the opcode-specific low byte (bits 7..0) of an
// instruction word. Delay/side-set (bits 12..8) must be extracted
// separately via DecodeSlot, since their meaning depends on
// configuration external to the word itself.
func Decode(word uint16) (Instr, error) {
	var ins Instr
	lsb := uint8(word)
	major := word & bitsOpMask

	switch major {
	case bitsJMP:
		ins.Op = OpJMP
		ins.JmpAddr = lsb & 0x1f
		ins.JmpCond = JmpCond((lsb >> 5) & 0x7)
		return ins, nil

	case bitsWAIT:
		ins.Op = OpWAIT
		ins.WaitPolarity = lsb&0x80 != 0
		src := WaitSrc((lsb >> 5) & 0x3)
		if src == waitReserved {
			return ins, &DecodeError{Word: word, Err: errors.Wrap(ErrReserved, "wait: reserved source")}
		}
		ins.WaitSrc = src
		ins.WaitIndex = lsb & 0x1f
		if src == WaitIRQ {
			if err := checkIRQIndex(ins.WaitIndex); err != nil {
				return ins, &DecodeError{Word: word, Err: errors.Wrap(err, "wait: irq index")}
			}
		}
		return ins, nil

	case bitsIN:
		ins.Op = OpIN
		src := InSrc((lsb >> 5) & 0x7)
		if src == inReserved1 || src == inReserved2 {
			return ins, &DecodeError{Word: word, Err: errors.Wrap(ErrReserved, "in: reserved source")}
		}
		ins.InSrc = src
		ins.BitCount = lsb & 0x1f
		if ins.BitCount == 0 {
			ins.BitCount = 32
		}
		return ins, nil

	case bitsOUT:
		ins.Op = OpOUT
		ins.OutDest = OutDest((lsb >> 5) & 0x7)
		ins.BitCount = lsb & 0x1f
		if ins.BitCount == 0 {
			ins.BitCount = 32
		}
		return ins, nil

	case bitsMOV:
		ins.Op = OpMOV
		src := MovSrc(lsb & 0x7)
		if src == movSrcReserved {
			return ins, &DecodeError{Word: word, Err: errors.Wrap(ErrReserved, "mov: reserved source")}
		}
		ins.MovSrc = src
		dst := MovDest((lsb >> 5) & 0x7)
		if dst == movDestReserved {
			return ins, &DecodeError{Word: word, Err: errors.Wrap(ErrReserved, "mov: reserved destination")}
		}
		ins.MovDest = dst
		op := MovOp((lsb >> 3) & 0x3)
		if op == movOpReserved {
			return ins, &DecodeError{Word: word, Err: errors.Wrap(ErrReserved, "mov: reserved operation")}
		}
		ins.MovOp = op
		return ins, nil

	case bitsIRQ:
		ins.Op = OpIRQ
		if lsb&0x80 != 0 {
			return ins, &DecodeError{Word: word, Err: errors.Wrap(ErrReserved, "irq: reserved bit 7")}
		}
		ins.IRQClear = lsb&0x40 != 0
		ins.IRQWait = lsb&0x20 != 0
		ins.IRQIndex = lsb & 0x1f
		if err := checkIRQIndex(ins.IRQIndex); err != nil {
			return ins, &DecodeError{Word: word, Err: errors.Wrap(err, "irq: index")}
		}
		return ins, nil

	case bitsSET:
		ins.Op = OpSET
		dst := SetDest((lsb >> 5) & 0x7)
		switch dst {
		case setReserved1, setReserved2, setReserved3, setReserved4:
			return ins, &DecodeError{Word: word, Err: errors.Wrap(ErrReserved, "set: reserved destination")}
		}
		ins.SetDest = dst
		ins.SetData = lsb & 0x1f
		return ins, nil

	default:
		// PUSH and PULL share major bits 0x8000 (the only value left
		// unhandled above) and are distinguished by bit 7 of the word.
		if lsb&0x1f != 0 {
			return ins, &DecodeError{Word: word, Err: errors.Wrap(ErrReserved, "push/pull: reserved low bits")}
		}
		if lsb&0x80 != 0 {
			ins.Op = OpPULL
		} else {
			ins.Op = OpPUSH
		}
		ins.IfFullOrEmpty = lsb&0x40 != 0
		ins.Block = lsb&0x20 != 0
		return ins, nil
	}
}

// encodeLow packs an Instr's opcode-specific fields back into the low byte
// of an instruction word, leaving bits 15..13 (opcode) and 12..8
// (delay/side-set, use EncodeSlot) set by the caller. EncodeInstr
// combines both.
func (ins Instr) encodeLow() uint16 {
	switch ins.Op {
	case OpJMP:
		return uint16(ins.JmpCond&0x7)<<5 | uint16(ins.JmpAddr&0x1f)
	case OpWAIT:
		var b uint16
		if ins.WaitPolarity {
			b |= 0x80
		}
		b |= uint16(ins.WaitSrc&0x3) << 5
		b |= uint16(ins.WaitIndex & 0x1f)
		return b
	case OpIN:
		return uint16(ins.InSrc&0x7)<<5 | uint16(bitCountField(ins.BitCount))
	case OpOUT:
		return uint16(ins.OutDest&0x7)<<5 | uint16(bitCountField(ins.BitCount))
	case OpPUSH, OpPULL:
		var b uint16
		if ins.Op == OpPULL {
			b |= 0x80
		}
		if ins.IfFullOrEmpty {
			b |= 0x40
		}
		if ins.Block {
			b |= 0x20
		}
		return b
	case OpMOV:
		return uint16(ins.MovDest&0x7)<<5 | uint16(ins.MovOp&0x3)<<3 | uint16(ins.MovSrc&0x7)
	case OpIRQ:
		var b uint16
		if ins.IRQClear {
			b |= 0x40
		}
		if ins.IRQWait {
			b |= 0x20
		}
		b |= uint16(ins.IRQIndex & 0x1f)
		return b
	case OpSET:
		return uint16(ins.SetDest&0x7)<<5 | uint16(ins.SetData&0x1f)
	default:
		return 0
	}
}

func bitCountField(n uint8) uint8 {
	if n == 32 {
		return 0
	}
	return n & 0x1f
}

func opcodeBits(op Opcode) uint16 {
	switch op {
	case OpJMP:
		return bitsJMP
	case OpWAIT:
		return bitsWAIT
	case OpIN:
		return bitsIN
	case OpOUT:
		return bitsOUT
	case OpPUSH:
		return bitsPUSH
	case OpPULL:
		return bitsPULL
	case OpMOV:
		return bitsMOV
	case OpIRQ:
		return bitsIRQ
	case OpSET:
		return bitsSET
	default:
		return 0
	}
}

// EncodeInstr encodes a full instruction word, combining opcode,
// opcode-specific fields, and the shared delay/side-set slot.
func EncodeInstr(ins Instr, sideSetCount uint8, sideSetOptional bool) uint16 {
	word := opcodeBits(ins.Op) | ins.encodeLow()
	word |= EncodeSlot(ins.Delay, ins.SideSet, ins.HasSide, sideSetCount, sideSetOptional)
	return word
}
