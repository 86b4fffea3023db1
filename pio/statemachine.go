package pio

// execResult is the outcome of executing one decoded instruction,
// consumed by StateMachine.Step to decide whether to advance PC and
// arm the delay counter (spec §4.F).
type execResult struct {
	stalled   bool
	pcMutated bool
}

// StateMachine is one of a PIO block's four independent execution
// contexts (spec §3, §4.F). It never holds a pointer back to its
// owning Block: Step receives the shared instruction memory, GPIO
// fabric, and IRQ set as parameters each tick, per the design note that
// cross-SM effects pass through the block rather than through cyclic
// references.
type StateMachine struct {
	index int // 0..3, this SM's number within its PIO block

	Config Config
	FIFO   *FIFOPair
	ISR    ShiftReg
	OSR    ShiftReg
	X, Y   uint32

	PC             uint8
	DelayRemaining uint8
	Stalled        bool
	Enabled        bool

	ForcedInstr *uint16

	clkAccum uint32

	irqWaitActive bool
	irqWaitIndex  uint8

	heldInstr Instr
	LastWord  uint16
	LastErr   *DecodeError
}

// NewStateMachine returns a disabled state machine at PC 0 with default
// configuration, owning its own FIFO pair.
func NewStateMachine(index int) *StateMachine {
	return &StateMachine{
		index:  index,
		Config: DefaultConfig(),
		FIFO:   NewFIFOPair(),
		ISR:    ShiftReg{Dir: ShiftLeft},
		OSR:    ShiftReg{Dir: ShiftLeft},
	}
}

// Index returns this SM's number (0..3) within its PIO block.
func (sm *StateMachine) Index() int { return sm.index }

// SetEnabled starts or stops the state machine, mirroring CTRL.SM_ENABLE.
func (sm *StateMachine) SetEnabled(enabled bool) { sm.Enabled = enabled }

// IsEnabled reports whether the state machine currently executes.
func (sm *StateMachine) IsEnabled() bool { return sm.Enabled }

// SetConfig replaces this SM's configuration wholesale, as writing
// CLKDIV/EXECCTRL/SHIFTCTRL/PINCTRL together does.
func (sm *StateMachine) SetConfig(cfg Config) {
	sm.Config = cfg
	sm.FIFO.SetJoin(cfg.FJoin)
}

// Restart mirrors CTRL.SM_RESTART: clears ISR/OSR, PC, delay, and stall
// state, but leaves X, Y, and the FIFOs untouched (they have their own
// dedicated reset controls).
func (sm *StateMachine) Restart() {
	sm.ISR.Reset()
	sm.OSR.Reset()
	sm.PC = 0
	sm.DelayRemaining = 0
	sm.Stalled = false
	sm.ForcedInstr = nil
	sm.irqWaitActive = false
	sm.LastErr = nil
}

// ClkDivRestart mirrors CTRL.CLKDIV_RESTART: resets the fractional
// clock divider's accumulator without touching anything else.
func (sm *StateMachine) ClkDivRestart() { sm.clkAccum = 0 }

// Jmp forces PC directly, as writing SMx_INSTR with a JMP opcode does
// on real hardware (the teacher's Jmp helper).
func (sm *StateMachine) Jmp(target uint8) { sm.PC = target & 0x1f }

// SetX, GetX, SetY, GetY provide direct scratch register access for
// host-side setup, independent of MOV-based manipulation.
func (sm *StateMachine) SetX(v uint32) { sm.X = v }
func (sm *StateMachine) GetX() uint32  { return sm.X }
func (sm *StateMachine) SetY(v uint32) { sm.Y = v }
func (sm *StateMachine) GetY() uint32  { return sm.Y }

// SetPinsConsecutive and SetPindirsConsecutive directly poke GPIO
// levels/directions for a consecutive pin range, bypassing per-tick
// arbitration. They are host-side setup helpers (the teacher's
// identically named helpers), not part of a tick's arbitrated
// instruction output; no register facade calls them.
func (sm *StateMachine) SetPinsConsecutive(gpio *GPIO, base, count uint8, values uint32) {
	for i := uint8(0); i < count; i++ {
		gpio.SetPinLevel((base+i)&0x1f, values&(1<<i) != 0)
	}
}

func (sm *StateMachine) SetPindirsConsecutive(gpio *GPIO, base, count uint8, dirs uint32) {
	for i := uint8(0); i < count; i++ {
		d := DirIn
		if dirs&(1<<i) != 0 {
			d = DirOut
		}
		gpio.SetDir((base+i)&0x1f, d)
	}
}

func (sm *StateMachine) pushThreshold() uint8 {
	if sm.Config.PushThreshold == 0 {
		return 32
	}
	return sm.Config.PushThreshold
}

func (sm *StateMachine) pullThreshold() uint8 {
	if sm.Config.PullThreshold == 0 {
		return 32
	}
	return sm.Config.PullThreshold
}

// isrFull reports whether the ISR has accumulated at least
// push_thresh bits (spec §3: "full when counter ≥ threshold").
func (sm *StateMachine) isrFull() bool { return sm.ISR.Counter >= sm.pushThreshold() }

// osrEmpty reports the structural OSR-empty condition used by PULL's
// ifempty flag and JMP !OSRE: all 32 bits have been shifted out (spec
// §3: "empty when counter == 32 (OSR notation equivalent)").
func (sm *StateMachine) osrEmpty() bool { return sm.OSR.Counter >= 32 }

// autoPullDue reports whether OSR has drained past the configured
// pull threshold and auto-pull should attempt a refill (spec §4.D).
func (sm *StateMachine) autoPullDue() bool { return sm.OSR.Counter >= sm.pullThreshold() }

func (sm *StateMachine) wrapPC(next uint8) uint8 {
	next &= 0x1f
	if next > sm.Config.WrapTop {
		return sm.Config.WrapBottom
	}
	return next
}

// clockAdvance runs the 8.8 fixed-point clock divider accumulator and
// reports whether this master tick is one on which the SM actually
// executes (spec §4.F). A CLKDIV of int=0,frac=0 is the datasheet's
// "divide by 65536" convention.
func (sm *StateMachine) clockAdvance() bool {
	divider := uint32(sm.Config.ClkDivInt)<<8 | uint32(sm.Config.ClkDivFrac)
	if divider == 0 {
		divider = 65536 << 8
	}
	sm.clkAccum += 256
	if sm.clkAccum >= divider {
		sm.clkAccum -= divider
		return true
	}
	return false
}

// Step advances this state machine by one master clock tick, per the
// per-tick algorithm of spec §4.F. mem is the PIO block's shared
// instruction memory; gpio and irq are the block's shared fabric. Pin
// drive requests are queued via gpio.RequestDrive; the caller (Block)
// commits them once every enabled SM has stepped.
func (sm *StateMachine) Step(mem *[32]uint16, gpio *GPIO, irq *IRQSet) {
	if !sm.Enabled || sm.LastErr != nil {
		return
	}
	if !sm.clockAdvance() {
		return
	}

	if sm.DelayRemaining > 0 && !sm.Stalled {
		sm.DelayRemaining--
		sm.applySideSet(gpio, sm.heldInstr)
		return
	}

	var word uint16
	if sm.ForcedInstr != nil {
		word = *sm.ForcedInstr
		sm.ForcedInstr = nil
	} else {
		word = mem[sm.PC&0x1f]
	}

	delay, sideSet, hasSide := DecodeSlot(word, sm.Config.SideSetBits, sm.Config.SideSetEnable)
	ins, err := Decode(word)
	if err != nil {
		de, _ := err.(*DecodeError)
		if de == nil {
			de = &DecodeError{Word: word, Err: err}
		}
		sm.LastErr = de
		sm.Stalled = true
		return
	}
	ins.Delay, ins.SideSet, ins.HasSide = delay, sideSet, hasSide
	sm.LastWord = word
	sm.heldInstr = ins

	result := sm.execute(ins, mem, gpio, irq)
	sm.applySideSet(gpio, ins)

	if result.stalled {
		sm.Stalled = true
		return
	}
	sm.Stalled = false
	if !result.pcMutated {
		sm.PC = sm.wrapPC(sm.PC + 1)
	}
	sm.DelayRemaining = ins.Delay
}

func (sm *StateMachine) applySideSet(gpio *GPIO, ins Instr) {
	if sm.Config.SideSetBits == 0 {
		return
	}
	if sm.Config.SideSetEnable && !ins.HasSide {
		return
	}
	count := sm.Config.dataBits()
	if count == 0 {
		return
	}
	values := uint32(ins.SideSet)
	if sm.Config.SideSetPinDirs {
		gpio.RequestDrive(sm.index, driveSide, sm.Config.SideSetBase, count, 0, values, true)
	} else {
		gpio.RequestDrive(sm.index, driveSide, sm.Config.SideSetBase, count, values, 0, false)
	}
}

func (sm *StateMachine) readPins(gpio *GPIO, base, count uint8) uint32 {
	var v uint32
	for i := uint8(0); i < count; i++ {
		if gpio.GetPin((base + i) & 0x1f) {
			v |= 1 << uint(i)
		}
	}
	return v
}

func (sm *StateMachine) execute(ins Instr, mem *[32]uint16, gpio *GPIO, irq *IRQSet) execResult {
	switch ins.Op {
	case OpJMP:
		return sm.execJmp(ins, gpio)
	case OpWAIT:
		return sm.execWait(ins, gpio, irq)
	case OpIN:
		return sm.execIn(ins, gpio)
	case OpOUT:
		return sm.execOut(ins, gpio)
	case OpPUSH:
		return sm.execPush(ins)
	case OpPULL:
		return sm.execPull(ins)
	case OpMOV:
		return sm.execMov(ins, gpio)
	case OpIRQ:
		return sm.execIrq(ins, irq)
	case OpSET:
		return sm.execSet(ins, gpio)
	default:
		return execResult{}
	}
}

func (sm *StateMachine) execJmp(ins Instr, gpio *GPIO) execResult {
	var taken bool
	switch ins.JmpCond {
	case JmpAlways:
		taken = true
	case JmpNotX:
		taken = sm.X == 0
	case JmpXDec:
		pre := sm.X
		taken = pre != 0
		sm.X = pre - 1
	case JmpNotY:
		taken = sm.Y == 0
	case JmpYDec:
		pre := sm.Y
		taken = pre != 0
		sm.Y = pre - 1
	case JmpXNotEqualY:
		// Hardware-correct comparison of X against Y (spec §9 open
		// question: one source encoding compared X against itself).
		taken = sm.X != sm.Y
	case JmpPin:
		taken = gpio.GetPin(sm.Config.JmpPin)
	case JmpNotOSRE:
		taken = !sm.osrEmpty()
	}
	if taken {
		sm.PC = ins.JmpAddr & 0x1f
		return execResult{pcMutated: true}
	}
	return execResult{}
}

func (sm *StateMachine) execWait(ins Instr, gpio *GPIO, irq *IRQSet) execResult {
	var bit bool
	var irqNum uint8
	switch ins.WaitSrc {
	case WaitGPIO:
		bit = gpio.GetPin(ins.WaitIndex)
	case WaitPIN:
		bit = gpio.GetPin((sm.Config.InBase + ins.WaitIndex) & 0x1f)
	case WaitIRQ:
		irqNum = EffectiveIRQIndex(sm.index, ins.WaitIndex)
		bit = irq.IsSet(irqNum)
	}
	if bit != ins.WaitPolarity {
		return execResult{stalled: true}
	}
	if ins.WaitSrc == WaitIRQ && ins.WaitPolarity {
		irq.QueueClear(irqNum)
	}
	return execResult{}
}

func (sm *StateMachine) execIn(ins Instr, gpio *GPIO) execResult {
	var data uint32
	switch ins.InSrc {
	case InPINS:
		data = sm.readPins(gpio, sm.Config.InBase, ins.BitCount)
	case InX:
		data = sm.X
	case InY:
		data = sm.Y
	case InNULL:
		data = 0
	case InISR:
		data = sm.ISR.Bits
	case InOSR:
		data = sm.OSR.Bits
	}
	sm.ISR.ShiftIn(ins.BitCount, data)
	if sm.Config.AutoPush && sm.isrFull() {
		if sm.FIFO.PushRX(sm.ISR.Bits) {
			sm.ISR.Reset()
		} else {
			sm.FIFO.RxStall = true
		}
	}
	return execResult{}
}

func (sm *StateMachine) ensureOSRFilled() execResult {
	if !sm.Config.AutoPull || !sm.autoPullDue() {
		return execResult{}
	}
	word, ok := sm.FIFO.PopTX()
	if !ok {
		sm.FIFO.TxStall = true
		return execResult{stalled: true}
	}
	sm.OSR.Bits = word
	sm.OSR.Counter = 0
	return execResult{}
}

func (sm *StateMachine) execOut(ins Instr, gpio *GPIO) execResult {
	if r := sm.ensureOSRFilled(); r.stalled {
		return r
	}
	data := sm.OSR.ShiftOut(ins.BitCount)
	switch ins.OutDest {
	case OutPINS:
		gpio.RequestDrive(sm.index, driveOut, sm.Config.OutBase, sm.Config.OutCount, data, 0, false)
	case OutX:
		sm.X = data
	case OutY:
		sm.Y = data
	case OutNULL:
		// discarded
	case OutPINDIRS:
		gpio.RequestDrive(sm.index, driveOut, sm.Config.OutBase, sm.Config.OutCount, 0, data, true)
	case OutPC:
		sm.PC = uint8(data & 0x1f)
		return execResult{pcMutated: true}
	case OutISR:
		sm.ISR.Bits = data
	case OutEXEC:
		w := uint16(data)
		sm.ForcedInstr = &w
	}
	return execResult{}
}

func (sm *StateMachine) execPush(ins Instr) execResult {
	if ins.IfFullOrEmpty && !sm.isrFull() {
		return execResult{}
	}
	if sm.FIFO.PushRX(sm.ISR.Bits) {
		sm.ISR.Reset()
		return execResult{}
	}
	// RX FIFO full: RXSTALL latches whether the state machine blocks or
	// the value is dropped, matching the datasheet (FDEBUG has no
	// separate RX-overflow bit; RXSTALL covers both cases).
	sm.FIFO.RxStall = true
	if ins.Block {
		return execResult{stalled: true}
	}
	sm.ISR.Reset()
	return execResult{}
}

func (sm *StateMachine) execPull(ins Instr) execResult {
	if ins.IfFullOrEmpty && !sm.osrEmpty() {
		return execResult{}
	}
	word, ok := sm.FIFO.PopTX()
	if !ok {
		sm.FIFO.TxStall = true
		if ins.Block {
			return execResult{stalled: true}
		}
		sm.OSR.Bits = sm.X
		sm.OSR.Counter = 0
		return execResult{}
	}
	sm.OSR.Bits = word
	sm.OSR.Counter = 0
	return execResult{}
}

func (sm *StateMachine) movStatus() uint32 {
	var cond bool
	switch sm.Config.StatusSel {
	case MovStatusTxLessThan:
		cond = sm.FIFO.TxLevel() < int(sm.Config.StatusN)
	case MovStatusRxLessThan:
		cond = sm.FIFO.RxLevel() < int(sm.Config.StatusN)
	}
	if cond {
		return 0xffffffff
	}
	return 0
}

func (sm *StateMachine) execMov(ins Instr, gpio *GPIO) execResult {
	var value uint32
	switch ins.MovSrc {
	case MovSrcPINS:
		value = sm.readPins(gpio, sm.Config.InBase, 32)
	case MovSrcX:
		value = sm.X
	case MovSrcY:
		value = sm.Y
	case MovSrcNULL:
		value = 0
	case MovSrcSTATUS:
		value = sm.movStatus()
	case MovSrcISR:
		value = sm.ISR.Bits
	case MovSrcOSR:
		value = sm.OSR.Bits
	}
	switch ins.MovOp {
	case MovOpInvert:
		value = ^value
	case MovOpBitReverse:
		value = BitReverse32(value)
	}
	switch ins.MovDest {
	case MovDestPINS:
		gpio.RequestDrive(sm.index, driveOut, sm.Config.OutBase, sm.Config.OutCount, value, 0, false)
	case MovDestX:
		sm.X = value
	case MovDestY:
		sm.Y = value
	case MovDestEXEC:
		w := uint16(value)
		sm.ForcedInstr = &w
	case MovDestPC:
		sm.PC = uint8(value & 0x1f)
		return execResult{pcMutated: true}
	case MovDestISR:
		sm.ISR.Reset()
		sm.ISR.Bits = value
	case MovDestOSR:
		sm.OSR.Reset()
		sm.OSR.Bits = value
	}
	return execResult{}
}

func (sm *StateMachine) execIrq(ins Instr, irq *IRQSet) execResult {
	n := EffectiveIRQIndex(sm.index, ins.IRQIndex)
	if ins.IRQClear {
		irq.QueueClear(n)
		return execResult{}
	}
	if !ins.IRQWait {
		irq.QueueSet(n)
		return execResult{}
	}
	if !sm.irqWaitActive {
		// First cycle of the wait: stage the set and stall
		// unconditionally — nothing has had a chance to clear a flag
		// this same instruction is only just now raising.
		irq.QueueSet(n)
		sm.irqWaitActive = true
		sm.irqWaitIndex = n
		return execResult{stalled: true}
	}
	if irq.IsSet(sm.irqWaitIndex) {
		return execResult{stalled: true}
	}
	sm.irqWaitActive = false
	return execResult{}
}

func (sm *StateMachine) execSet(ins Instr, gpio *GPIO) execResult {
	switch ins.SetDest {
	case SetPINS:
		gpio.RequestDrive(sm.index, driveSet, sm.Config.SetBase, sm.Config.SetCount, uint32(ins.SetData), 0, false)
	case SetX:
		sm.X = uint32(ins.SetData)
	case SetY:
		sm.Y = uint32(ins.SetData)
	case SetPINDIRS:
		gpio.RequestDrive(sm.index, driveSet, sm.Config.SetBase, sm.Config.SetCount, 0, uint32(ins.SetData), true)
	}
	return execResult{}
}
