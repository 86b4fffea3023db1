package pio

import "testing"

// TestJmpDecrementIsPreDecrement exercises E2 from the spec: `set y, 3`
// followed by a self-looping `jmp y--, mark` decrements Y on every
// pass, including the final pass where the branch is not taken.
func TestJmpDecrementIsPreDecrement(t *testing.T) {
	b := NewBlock(0)
	b.Memory[0] = EncodeInstr(Instr{Op: OpSET, SetDest: SetY, SetData: 3}, 0, false)
	b.Memory[1] = EncodeInstr(Instr{Op: OpJMP, JmpCond: JmpYDec, JmpAddr: 1}, 0, false)
	sm := b.SM(0)
	sm.SetEnabled(true)

	b.Tick() // set y, 3
	if sm.Y != 3 || sm.PC != 1 {
		t.Fatalf("after set: Y=%d PC=%d, want Y=3 PC=1", sm.Y, sm.PC)
	}

	wantY := []uint32{2, 1, 0}
	for i, want := range wantY {
		b.Tick()
		if sm.Y != want || sm.PC != 1 {
			t.Fatalf("jmp #%d: Y=%d PC=%d, want Y=%d PC=1 (branch taken)", i+1, sm.Y, sm.PC, want)
		}
	}

	b.Tick() // Y==0: condition false, branch not taken, Y wraps to 0xFFFFFFFF
	if sm.Y != 0xFFFFFFFF {
		t.Fatalf("final jmp: Y=%#x, want 0xFFFFFFFF (wrapped decrement)", sm.Y)
	}
	if sm.PC != 2 {
		t.Fatalf("final jmp: PC=%d, want 2 (address after jmp, branch not taken)", sm.PC)
	}
}

// TestIRQCrossSMWaitResolvesNextTick exercises E3: SM1's `irq set 0`
// commits at phase 1, so SM0's `wait 1 irq 0` — which polled and
// stalled on tick 1 seeing the pre-tick value — only observes and
// clears it on tick 2, never within the same tick it was raised.
func TestIRQCrossSMWaitResolvesNextTick(t *testing.T) {
	b := NewBlock(0)
	b.Memory[0] = EncodeInstr(Instr{Op: OpWAIT, WaitPolarity: true, WaitSrc: WaitIRQ, WaitIndex: 0}, 0, false)
	b.Memory[1] = EncodeInstr(Instr{Op: OpIRQ, IRQIndex: 0}, 0, false)

	sm0, sm1 := b.SM(0), b.SM(1)
	sm0.SetEnabled(true)
	sm1.SetEnabled(true)
	sm1.PC = 1

	b.Tick()
	if !sm0.Stalled {
		t.Fatal("tick 1: SM0 should still be stalled — SM1's set only commits at phase 1")
	}
	if b.IRQ.Raw() != 0x01 {
		t.Fatalf("tick 1: IRQ raw = %#x, want 0x01 after SM1's set commits", b.IRQ.Raw())
	}

	b.Tick()
	if sm0.Stalled {
		t.Fatal("tick 2: SM0's wait should have resolved")
	}
	if sm0.PC != 1 {
		t.Fatalf("tick 2: SM0.PC = %d, want 1 (advanced past the wait)", sm0.PC)
	}
	if b.IRQ.Raw() != 0x00 {
		t.Fatalf("tick 2: IRQ raw = %#x, want 0x00 (cleared on release)", b.IRQ.Raw())
	}
}

// TestAutoPushOnThreshold exercises E5: an 8-bit auto-push threshold
// with left-shift direction pushes as soon as 8 bits have accumulated.
func TestAutoPushOnThreshold(t *testing.T) {
	sm := NewStateMachine(0)
	sm.Config.InShiftDir = ShiftLeft
	sm.Config.AutoPush = true
	sm.Config.PushThreshold = 8
	sm.Config.InBase = 0
	gpio := NewGPIO()
	gpio.SetInputSyncBypass(0xff, 0xff, false) // read raw levels, skip the 2-stage synchronizer

	const pins = 0xA5 // 1010_0101
	for i := uint8(0); i < 8; i++ {
		gpio.SetPinLevel(i, pins&(1<<i) != 0)
	}

	sm.execIn(Instr{Op: OpIN, InSrc: InPINS, BitCount: 8}, gpio)

	if sm.ISR.Bits != 0 || sm.ISR.Counter != 0 {
		t.Fatalf("after auto-push: ISR = {%#x, %d}, want {0, 0}", sm.ISR.Bits, sm.ISR.Counter)
	}
	if sm.FIFO.RxLevel() != 1 {
		t.Fatalf("RX FIFO level = %d, want 1", sm.FIFO.RxLevel())
	}
	word, ok := sm.FIFO.PopRX()
	if !ok || word&0xff != pins {
		t.Fatalf("RX word = (%#x,%v), want (%#x,true)", word, ok, pins)
	}
}

// TestPullBlockStallsOnEmptyTX exercises invariant 2's stall/latch
// coupling: a blocking PULL against an empty TX FIFO stalls the SM and
// latches tx_stall without touching OSR.
func TestPullBlockStallsOnEmptyTX(t *testing.T) {
	sm := NewStateMachine(0)
	sm.OSR.Bits, sm.OSR.Counter = 0xdeadbeef, 5

	result := sm.execPull(Instr{Op: OpPULL, Block: true})
	if !result.stalled {
		t.Fatal("PULL block against empty TX should stall")
	}
	if !sm.FIFO.TxStall {
		t.Fatal("PULL block against empty TX should latch TxStall")
	}
	if sm.OSR.Bits != 0xdeadbeef || sm.OSR.Counter != 5 {
		t.Fatal("a stalled PULL must not mutate OSR")
	}
}

// TestPullNoblockCopiesScratchX matches the datasheet's documented
// fallback: a non-blocking PULL against an empty TX FIFO loads OSR
// from scratch X instead of stalling.
func TestPullNoblockCopiesScratchX(t *testing.T) {
	sm := NewStateMachine(0)
	sm.X = 0x12345678

	result := sm.execPull(Instr{Op: OpPULL, Block: false})
	if result.stalled {
		t.Fatal("non-blocking PULL must never stall")
	}
	if sm.OSR.Bits != 0x12345678 || sm.OSR.Counter != 0 {
		t.Fatalf("OSR = {%#x,%d}, want {%#x,0}", sm.OSR.Bits, sm.OSR.Counter, sm.X)
	}
}

// TestPCStaysWithinWrapRange covers invariant 1: natural PC advance
// past wrap_top jumps back to wrap_bottom.
func TestPCStaysWithinWrapRange(t *testing.T) {
	b := NewBlock(0)
	sm := b.SM(0)
	sm.Config.WrapBottom, sm.Config.WrapTop = 2, 4
	sm.PC = 4
	sm.SetEnabled(true)
	b.Memory[4] = EncodeInstr(NOP(), 0, false)

	b.Tick()
	if sm.PC != sm.Config.WrapBottom {
		t.Fatalf("PC after wrap = %d, want %d", sm.PC, sm.Config.WrapBottom)
	}
}
