package pio

import "testing"

func TestFIFOPairDepthAndLatches(t *testing.T) {
	f := NewFIFOPair()
	for i := uint32(0); i < 4; i++ {
		if !f.PushTX(i) {
			t.Fatalf("push %d: expected room in a 4-deep queue", i)
		}
	}
	if f.PushTX(4) {
		t.Fatal("push into full TX queue should fail")
	}
	if !f.TxOver {
		t.Fatal("pushing into a full TX queue should latch TxOver")
	}
	if f.TxLevel() != 4 || !f.IsTxFull() {
		t.Fatalf("TxLevel/IsTxFull = %d/%v, want 4/true", f.TxLevel(), f.IsTxFull())
	}
	for i := uint32(0); i < 4; i++ {
		w, ok := f.PopTX()
		if !ok || w != i {
			t.Fatalf("pop %d: got (%d,%v)", i, w, ok)
		}
	}
	if !f.IsTxEmpty() {
		t.Fatal("expected TX queue empty after draining")
	}
}

func TestFIFOPairRxUnderflow(t *testing.T) {
	f := NewFIFOPair()
	if _, ok := f.PopRX(); ok {
		t.Fatal("pop from empty RX queue should fail")
	}
	if !f.RxUnder {
		t.Fatal("popping an empty RX queue should latch RxUnder")
	}
}

func TestFIFOPairJoinDoublesDepth(t *testing.T) {
	f := NewFIFOPair()
	f.SetJoin(FifoJoinTx)
	for i := uint32(0); i < 8; i++ {
		if !f.PushTX(i) {
			t.Fatalf("push %d into joined 8-deep TX queue failed", i)
		}
	}
	if f.PushTX(8) {
		t.Fatal("9th push into an 8-deep joined queue should fail")
	}
	if f.RxLevel() != 0 || f.PushRX(1) {
		t.Fatal("RX side should be unusable once FJOIN_TX is set")
	}
}

func TestFIFOPairClearDebugIsIdempotent(t *testing.T) {
	f := NewFIFOPair()
	f.TxStall, f.TxOver, f.RxUnder, f.RxStall = true, true, true, true
	f.ClearDebug()
	if f.TxStall || f.TxOver || f.RxUnder || f.RxStall {
		t.Fatal("ClearDebug should unlatch all four sticky bits")
	}
	f.ClearDebug() // second identical clear is a no-op
	if f.TxStall || f.TxOver || f.RxUnder || f.RxStall {
		t.Fatal("second ClearDebug should remain a no-op")
	}
}
