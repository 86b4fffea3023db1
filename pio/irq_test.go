package pio

import "testing"

func TestEffectiveIRQIndexRelAddressing(t *testing.T) {
	cases := []struct {
		sm    int
		index uint8
		want  uint8
	}{
		{sm: 0, index: 0x10 | 0, want: 0},
		{sm: 1, index: 0x10 | 0, want: 1},
		{sm: 2, index: 0x10 | 1, want: 3},
		{sm: 3, index: 0x10 | 2, want: 1}, // (3+2)&3 == 1
		{sm: 2, index: 3, want: 3},        // no rel bit: index used verbatim
	}
	for _, c := range cases {
		if got := EffectiveIRQIndex(c.sm, c.index); got != c.want {
			t.Errorf("EffectiveIRQIndex(%d, %#x) = %d, want %d", c.sm, c.index, got, c.want)
		}
	}
}

func TestIRQSetDeferredCommit(t *testing.T) {
	var s IRQSet
	s.QueueSet(3)
	if s.IsSet(3) {
		t.Fatal("a queued set must not be visible before Commit")
	}
	s.Commit()
	if !s.IsSet(3) {
		t.Fatal("a queued set should be visible after Commit")
	}

	s.QueueClear(3)
	if !s.IsSet(3) {
		t.Fatal("a queued clear must not take effect before Commit")
	}
	s.Commit()
	if s.IsSet(3) {
		t.Fatal("a queued clear should take effect after Commit")
	}
}

func TestIRQSetCommitAppliesSetBeforeClearOfDistinctBits(t *testing.T) {
	var s IRQSet
	s.QueueSet(0)
	s.QueueSet(1)
	s.Commit()
	s.QueueClear(0)
	s.QueueSet(2)
	s.Commit()
	if s.Raw() != 0x06 { // bit0 cleared, bit1 still set, bit2 newly set
		t.Fatalf("Raw() = %#02x, want 0x06", s.Raw())
	}
}

func TestIRQWriteIRQIsImmediateWriteOneToClear(t *testing.T) {
	var s IRQSet
	s.QueueSet(0)
	s.QueueSet(1)
	s.Commit()
	s.WriteIRQ(0x01)
	if s.Raw() != 0x02 {
		t.Fatalf("Raw() after WriteIRQ(0x01) = %#02x, want 0x02", s.Raw())
	}
}

func TestIRQWriteIRQForceIsImmediateSet(t *testing.T) {
	var s IRQSet
	s.WriteIRQForce(0x04)
	if s.Raw() != 0x04 {
		t.Fatalf("Raw() after WriteIRQForce(0x04) = %#02x, want 0x04", s.Raw())
	}
}

func TestIRQSetINTSComposition(t *testing.T) {
	var s IRQSet
	s.WriteIRQForce(0x01) // raw bit0, lands in INTS bit8
	s.SetINTE(0, 0xfff)

	rxNotEmpty := [4]bool{true, false, false, false}  // -> bit0
	txNotFull := [4]bool{false, true, false, false}   // -> bit5

	got := s.INTS(0, rxNotEmpty, txNotFull)
	want := uint16(1<<0 | 1<<5 | 1<<8)
	if got != want {
		t.Fatalf("INTS(0) = %#03x, want %#03x", got, want)
	}
}

func TestIRQSetINTFForcesRegardlessOfINTE(t *testing.T) {
	var s IRQSet
	s.SetINTE(0, 0) // nothing enabled
	s.SetINTF(0, 0x020)

	got := s.INTS(0, [4]bool{}, [4]bool{})
	if got != 0x020 {
		t.Fatalf("INTS(0) = %#03x, want 0x020 (INTF bypasses INTE)", got)
	}
}
