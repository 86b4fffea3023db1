// Package regs implements the memory-mapped register facade over a
// pio.Block (spec §4.I) and the address bus that dispatches raw
// addresses to facades (spec §4.J).
//
// Word offsets below mirror the RP2040 PIO register block layout as
// enumerated by original_source/.../PIORegisters.java's Regs order,
// which in turn matches the teacher's pioHW/statemachineHW struct
// field order (see DESIGN.md).
package regs

// Fixed (non-repeating) registers, in declaration order. Their byte
// offset is 4 * index in this slice.
const (
	offCTRL = iota
	offFSTAT
	offFDEBUG
	offFLEVEL
	offTXF0
	offTXF1
	offTXF2
	offTXF3
	offRXF0
	offRXF1
	offRXF2
	offRXF3
	offIRQ
	offIRQFORCE
	offINPUTSYNCBYPASS
	offDBGPADOUT
	offDBGPADOE
	offDBGCFGINFO
	numFixedRegs
)

// NumInstrMem is the number of instruction memory word registers
// (INSTR_MEM0..INSTR_MEM31), one per pio.MemorySize slot.
const NumInstrMem = 32

// NumStateMachines mirrors pio.NumStateMachines; kept independent so
// this package never needs to import pio just for the constant.
const NumStateMachines = 4

// SMFieldCount is the number of per-SM registers (CLKDIV, EXECCTRL,
// SHIFTCTRL, ADDR, INSTR, PINCTRL) — the teacher's SM_SIZE.
const SMFieldCount = 6

const (
	// InstrMemBase is the byte offset of INSTR_MEM0.
	InstrMemBase = numFixedRegs * 4
	// smBase is the byte offset of SM0_CLKDIV.
	smBase = InstrMemBase + NumInstrMem*4
	// SMSize is the byte span of one state machine's register block.
	SMSize = SMFieldCount * 4
	// tailBase is the byte offset of INTR, right after SM3's block.
	tailBase = smBase + NumStateMachines*SMSize
)

// Byte offsets of the fixed registers.
const (
	CTRL              = offCTRL * 4
	FSTAT             = offFSTAT * 4
	FDEBUG            = offFDEBUG * 4
	FLEVEL            = offFLEVEL * 4
	TXF0              = offTXF0 * 4
	TXF1              = offTXF1 * 4
	TXF2              = offTXF2 * 4
	TXF3              = offTXF3 * 4
	RXF0              = offRXF0 * 4
	RXF1              = offRXF1 * 4
	RXF2              = offRXF2 * 4
	RXF3              = offRXF3 * 4
	IRQ               = offIRQ * 4
	IRQFORCE          = offIRQFORCE * 4
	INPUTSYNCBYPASS   = offINPUTSYNCBYPASS * 4
	DBGPADOUT         = offDBGPADOUT * 4
	DBGPADOE          = offDBGPADOE * 4
	DBGCFGINFO        = offDBGCFGINFO * 4
)

// SMField identifies one of the six per-SM registers.
type SMField int

const (
	SMClkDiv SMField = iota
	SMExecCtrl
	SMShiftCtrl
	SMAddr
	SMInstr
	SMPinCtrl
)

// SMOffset returns the byte offset of a per-SM register.
func SMOffset(sm int, field SMField) uint32 {
	return uint32(smBase + sm*SMSize + int(field)*4)
}

// Tail registers: the shared interrupt status/enable/force triplet
// for both host IRQ lines.
const (
	INTR      = tailBase
	IRQ0_INTE = tailBase + 4
	IRQ0_INTF = tailBase + 8
	IRQ0_INTS = tailBase + 12
	IRQ1_INTE = tailBase + 16
	IRQ1_INTF = tailBase + 20
	IRQ1_INTS = tailBase + 24
)

// FacadeSpan is the total byte span of one PIOFacade's register file,
// i.e. one past the highest valid offset.
const FacadeSpan = IRQ1_INTS + 4

// TXFOffset and RXFOffset return the byte offset of TXFn/RXFn.
func TXFOffset(n int) uint32 { return uint32(TXF0 + n*4) }
func RXFOffset(n int) uint32 { return uint32(RXF0 + n*4) }

// InstrMemOffset returns the byte offset of INSTR_MEMn.
func InstrMemOffset(n int) uint32 { return uint32(InstrMemBase + n*4) }
