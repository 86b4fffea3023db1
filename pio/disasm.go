package pio

import (
	"fmt"
	"strings"
)

// irqIndexDisplay renders an IRQ index the way Instruction.java's
// getIRQNumDisplay does: "N_rel" for relative indices, plain N
// otherwise.
func irqIndexDisplay(index uint8) string {
	if index&0x10 != 0 {
		return fmt.Sprintf("%d_rel", index&0x3)
	}
	return fmt.Sprintf("%d", index&0x7)
}

func polarityDisplay(high bool) string {
	if high {
		return "1"
	}
	return "0"
}

// Disassemble renders a decoded instruction as pioasm-style text,
// matching Instruction.java's toString layout: "mnemonic operands  side N [delay]".
// There is no matching text assembler: a `.pio` source parser is
// program-authoring tooling, which falls under this module's Non-goals.
// The binary round trip this module guarantees and tests is
// Decode(EncodeInstr(...)) == ..., not assemble(Disassemble(w)) == w.
func Disassemble(ins Instr) string {
	var mnemonic, params string
	switch ins.Op {
	case OpJMP:
		mnemonic = "jmp"
		cond := ins.JmpCond.String()
		if cond != "" {
			params = cond + ", " + fmt.Sprintf("%d", ins.JmpAddr)
		} else {
			params = fmt.Sprintf("%d", ins.JmpAddr)
		}
	case OpWAIT:
		mnemonic = "wait"
		num := fmt.Sprintf("%d", ins.WaitIndex)
		if ins.WaitSrc == WaitIRQ {
			num = irqIndexDisplay(ins.WaitIndex)
		}
		params = polarityDisplay(ins.WaitPolarity) + " " + ins.WaitSrc.String() + " " + num
	case OpIN:
		mnemonic = "in"
		params = fmt.Sprintf("%s, %d", ins.InSrc, ins.BitCount)
	case OpOUT:
		mnemonic = "out"
		params = fmt.Sprintf("%s, %d", ins.OutDest, ins.BitCount)
	case OpPUSH:
		mnemonic = "push"
		params = pushPullParams(ins)
	case OpPULL:
		mnemonic = "pull"
		params = pushPullParams(ins)
	case OpMOV:
		mnemonic = "mov"
		op := ins.MovOp.String()
		if op != "" {
			params = fmt.Sprintf("%s, %s%s", ins.MovDest, op, ins.MovSrc)
		} else {
			params = fmt.Sprintf("%s, %s", ins.MovDest, ins.MovSrc)
		}
	case OpIRQ:
		mnemonic = "irq"
		mode := ""
		if ins.IRQClear {
			mode = "clear "
		} else if ins.IRQWait {
			mode = "wait "
		}
		params = mode + irqIndexDisplay(ins.IRQIndex)
	case OpSET:
		mnemonic = "set"
		params = fmt.Sprintf("%s, %d", ins.SetDest, ins.SetData)
	default:
		mnemonic = "???"
	}

	var suffix []string
	if ins.HasSide {
		suffix = append(suffix, fmt.Sprintf("side %d", ins.SideSet))
	}
	if ins.Delay > 0 {
		suffix = append(suffix, fmt.Sprintf("[%d]", ins.Delay))
	}
	line := mnemonic
	if params != "" {
		line += " " + params
	}
	if len(suffix) > 0 {
		line += "  " + strings.Join(suffix, " ")
	}
	return line
}

func pushPullParams(ins Instr) string {
	var flag string
	if ins.Op == OpPUSH {
		if ins.IfFullOrEmpty {
			flag = "iffull "
		}
	} else if ins.IfFullOrEmpty {
		flag = "ifempty "
	}
	if ins.Block {
		return flag + "block"
	}
	return flag + "noblock"
}

// NOP returns the canonical PIO no-op encoding, "mov y, y", exactly as
// the teacher's EncodeNOP does.
func NOP() Instr {
	return Instr{Op: OpMOV, MovDest: MovDestY, MovSrc: MovSrcY, MovOp: MovOpNone}
}
