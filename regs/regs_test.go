package regs

import (
	"testing"

	"github.com/piolab/rp2040pio/pio"
)

// TestFDEBUGWriteOneToClearIsIdempotent covers spec invariant 4: writing
// the same set bits twice is a no-op the second time, since there is
// nothing left to clear.
func TestFDEBUGWriteOneToClearIsIdempotent(t *testing.T) {
	b := pio.NewBlock(0)
	b.SM(0).FIFO.TxStall = true
	f := NewPIOFacade(b)

	f.Write(FDEBUG, 0xffffffff)
	if got := f.Read(FDEBUG); got != 0 {
		t.Fatalf("FDEBUG after clearing write = %#x, want 0", got)
	}
	f.Write(FDEBUG, 0xffffffff)
	if got := f.Read(FDEBUG); got != 0 {
		t.Fatalf("second identical FDEBUG write should stay a no-op, got %#x", got)
	}
}

// TestAtomicXORWriteTwiceRestoresValue covers spec invariant 5: writing
// the XOR alias of a register with the same operand twice returns it to
// its original value.
func TestAtomicXORWriteTwiceRestoresValue(t *testing.T) {
	b := pio.NewBlock(0)
	f := NewPIOFacade(b)
	addr := InstrMemOffset(3)

	f.Write(addr, 0x1234)
	before := f.Read(addr)

	xorAddr := EncodeWriteMode(WriteXor, addr)
	f.Write(xorAddr, 0xffff)
	if got := f.Read(addr); got == before {
		t.Fatal("first XOR write should have changed the register")
	}
	f.Write(xorAddr, 0xffff)
	if got := f.Read(addr); got != before {
		t.Fatalf("second identical XOR write should restore the original value, got %#x want %#x", got, before)
	}
}

// TestAtomicSetAndClearAliases covers the SET/CLEAR write-mode formulas
// against INPUT_SYNC_BYPASS, a plain read/write bitmask register.
func TestAtomicSetAndClearAliases(t *testing.T) {
	b := pio.NewBlock(0)
	f := NewPIOFacade(b)

	setAddr := EncodeWriteMode(WriteSet, INPUTSYNCBYPASS)
	f.Write(setAddr, 0x0f)
	if got := f.Read(INPUTSYNCBYPASS); got != 0x0f {
		t.Fatalf("after SET 0x0f: got %#x, want 0x0f", got)
	}

	clrAddr := EncodeWriteMode(WriteClear, INPUTSYNCBYPASS)
	f.Write(clrAddr, 0x05)
	if got := f.Read(INPUTSYNCBYPASS); got != 0x0a {
		t.Fatalf("after CLEAR 0x05: got %#x, want 0x0a", got)
	}
}

// TestCTRLEnableRoundTrips covers a normal-mode write to CTRL toggling
// each SM's enable bit, then reading it back.
func TestCTRLEnableRoundTrips(t *testing.T) {
	b := pio.NewBlock(0)
	f := NewPIOFacade(b)

	f.Write(CTRL, 0x5) // enable SM0 and SM2
	if got := f.Read(CTRL); got != 0x5 {
		t.Fatalf("CTRL readback = %#x, want 0x5", got)
	}
	if !b.SM(0).IsEnabled() || b.SM(1).IsEnabled() || !b.SM(2).IsEnabled() || b.SM(3).IsEnabled() {
		t.Fatal("CTRL write did not enable the expected SMs")
	}
}

// TestPINCTRLRoundTrip exercises spec's testable property 3 (bit-exact
// round trip) against a synthetic register with several distinct
// bitfields packed together.
func TestPINCTRLRoundTrip(t *testing.T) {
	b := pio.NewBlock(0)
	f := NewPIOFacade(b)
	addr := SMOffset(1, SMPinCtrl)

	b.SM(1).Config.SetOutPins(5, 3)
	b.SM(1).Config.SetSetPins(10, 2)
	b.SM(1).Config.SetInPins(7)
	b.SM(1).Config.SetSidesetPins(20)

	want := f.Read(addr)
	f.Write(addr, want)
	if got := f.Read(addr); got != want {
		t.Fatalf("PINCTRL round trip: got %#x, want %#x", got, want)
	}
}

// TestTXFPushAndRXFPopThroughFacade exercises the FIFO ports the bridge
// scenario (E4) relies on.
func TestTXFPushAndRXFPopThroughFacade(t *testing.T) {
	b := pio.NewBlock(0)
	f := NewPIOFacade(b)

	f.Write(TXFOffset(0), 0xdeadbeef)
	if lvl := b.SM(0).FIFO.TxLevel(); lvl != 1 {
		t.Fatalf("TX level after TXF0 write = %d, want 1", lvl)
	}
	word, ok := b.SM(0).FIFO.PopTX()
	if !ok || word != 0xdeadbeef {
		t.Fatalf("popped TX word = (%#x,%v), want (0xdeadbeef,true)", word, ok)
	}

	b.SM(0).FIFO.PushRX(0xdeadbeef) // 3735928559 decimal, matching E4's expected bridge response
	if got := f.Read(RXFOffset(0)); got != 0xdeadbeef {
		t.Fatalf("RXF0 read = %#x, want 0xdeadbeef", got)
	}
}

// TestUnmappedAddressReadsZeroAndIgnoresWrites covers spec §4.J's
// unmapped-address contract.
func TestUnmappedAddressReadsZeroAndIgnoresWrites(t *testing.T) {
	bus := NewAddressBus()
	bus.Map(0x50200000, NewPIOFacade(pio.NewBlock(0)), "PIO0")

	if bus.Provides(0x60000000) {
		t.Fatal("an address outside any mapped facade should not be provided")
	}
	if got := bus.Read(0x60000000); got != 0 {
		t.Fatalf("unmapped read = %#x, want 0", got)
	}
	bus.Write(0x60000000, 0xffffffff) // must not panic
}

// TestBusDispatchesToFirstMatchingFacade covers spec §4.J: first
// provides() match wins when facades are mapped at distinct bases.
func TestBusDispatchesToFirstMatchingFacade(t *testing.T) {
	bus := NewAddressBus()
	block0 := pio.NewBlock(0)
	block1 := pio.NewBlock(1)
	bus.Map(0x50200000, NewPIOFacade(block0), "PIO0")
	bus.Map(0x50300000, NewPIOFacade(block1), "PIO1")

	bus.Write(0x50200000+TXFOffset(0), 0x11111111)
	bus.Write(0x50300000+TXFOffset(0), 0x22222222)

	w0, _ := block0.SM(0).FIFO.PopTX()
	w1, _ := block1.SM(0).FIFO.PopTX()
	if w0 != 0x11111111 || w1 != 0x22222222 {
		t.Fatalf("writes crossed facades: w0=%#x w1=%#x", w0, w1)
	}
}

// TestWaitResolvesOnceValueMatches covers the bridge's `i` command
// building block: Wait polls until the register matches.
func TestWaitResolvesOnceValueMatches(t *testing.T) {
	b := pio.NewBlock(0)
	f := NewPIOFacade(b)
	bus := NewAddressBus()
	bus.Map(0, f, "PIO0")

	go func() {
		b.Mu.Lock()
		b.SM(0).FIFO.PushRX(0xcafe)
		b.Mu.Unlock()
	}()

	if err := bus.Wait(RXFOffset(0), 0xcafe, 0xffffffff, 0, 200, 0); err != nil {
		t.Fatalf("Wait returned %v, want nil once the pushed value appears", err)
	}
}

// TestWaitTimesOutWhenValueNeverAppears covers the failure path.
func TestWaitTimesOutWhenValueNeverAppears(t *testing.T) {
	b := pio.NewBlock(0)
	f := NewPIOFacade(b)
	bus := NewAddressBus()
	bus.Map(0, f, "PIO0")

	err := bus.Wait(FSTAT, 0xdeadbeef, 0xffffffff, 5, 0, 0)
	if err != ErrWaitTimeout {
		t.Fatalf("Wait error = %v, want ErrWaitTimeout", err)
	}
}
