package bridge

import (
	"log"
	"testing"
	"time"

	"github.com/piolab/rp2040pio/pio"
	"github.com/piolab/rp2040pio/regs"
)

func discardLogger() *log.Logger {
	return log.New(discardWriter{}, "", 0)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer() (*Server, *pio.Block) {
	block := pio.NewBlock(0)
	bus := regs.NewAddressBus()
	bus.Map(0x50200000, regs.NewPIOFacade(block), "PIO0")
	return NewServer(bus, discardLogger()), block
}

func TestFormatAndParseResponseRoundTrip(t *testing.T) {
	line := FormatResponse(CodeOK, "3735928559")
	code, payload, err := ParseResponse(line)
	if err != nil {
		t.Fatal(err)
	}
	if code != CodeOK || payload != "3735928559" {
		t.Fatalf("got (%d,%q), want (101,\"3735928559\")", code, payload)
	}
}

func TestDispatchVersionAndHelp(t *testing.T) {
	s, _ := newTestServer()
	if resp, quit := s.dispatch("v"); quit || resp != FormatResponse(CodeOK, Version) {
		t.Fatalf("v: got %q quit=%v", resp, quit)
	}
	if resp, quit := s.dispatch("?"); quit || resp != FormatResponse(CodeOK, HelpText) {
		t.Fatalf("?: got %q quit=%v", resp, quit)
	}
}

func TestDispatchQuitSendsNoResponseAndSignalsClose(t *testing.T) {
	s, _ := newTestServer()
	resp, quit := s.dispatch("q")
	if resp != "" || !quit {
		t.Fatalf("q: got (%q,%v), want (\"\",true)", resp, quit)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	s, _ := newTestServer()
	resp, _ := s.dispatch("z")
	if resp != FormatResponse(CodeUnknownCommand, "z") {
		t.Fatalf("got %q", resp)
	}
}

func TestDispatchMissingOperand(t *testing.T) {
	s, _ := newTestServer()
	resp, _ := s.dispatch("r")
	if resp != FormatResponse(CodeMissingOperand, "addr") {
		t.Fatalf("got %q", resp)
	}
}

func TestDispatchNumberExpected(t *testing.T) {
	s, _ := newTestServer()
	resp, _ := s.dispatch("r notanumber")
	if resp != FormatResponse(CodeNumberExpected, "notanumber") {
		t.Fatalf("got %q", resp)
	}
}

func TestDispatchUnparsedInput(t *testing.T) {
	s, _ := newTestServer()
	resp, _ := s.dispatch("r 0x50200000 extra")
	if resp != FormatResponse(CodeUnparsedInput, "extra") {
		t.Fatalf("got %q", resp)
	}
}

func TestDispatchProvidesAndLabel(t *testing.T) {
	s, _ := newTestServer()
	if resp, _ := s.dispatch("p 0x50200010"); resp != FormatResponse(CodeOK, "true") {
		t.Fatalf("p (mapped): got %q", resp)
	}
	if resp, _ := s.dispatch("p 0x60000000"); resp != FormatResponse(CodeOK, "false") {
		t.Fatalf("p (unmapped): got %q", resp)
	}
	if resp, _ := s.dispatch("l 0x50200010"); resp != FormatResponse(CodeOK, "TXF0") {
		t.Fatalf("l: got %q", resp)
	}
}

// TestDispatchWriteThenReadMirroredThroughProgram is the bridge half of
// spec's E4 scenario: write TXF0, let a mirroring program (PULL; MOV
// ISR,OSR; PUSH; JMP 0) carry the word to the RX FIFO, then read RXF0.
func TestDispatchWriteThenReadMirroredThroughProgram(t *testing.T) {
	s, block := newTestServer()

	block.Memory[0] = pio.EncodeInstr(pio.Instr{Op: pio.OpPULL, Block: true}, 0, false)
	block.Memory[1] = pio.EncodeInstr(pio.Instr{Op: pio.OpMOV, MovSrc: pio.MovSrcOSR, MovDest: pio.MovDestISR}, 0, false)
	block.Memory[2] = pio.EncodeInstr(pio.Instr{Op: pio.OpPUSH, Block: true}, 0, false)
	block.Memory[3] = pio.EncodeInstr(pio.Instr{Op: pio.OpJMP, JmpCond: pio.JmpAlways, JmpAddr: 0}, 0, false)
	block.SM(0).SetEnabled(true)

	if resp, _ := s.dispatch("w 0x50200010 0xdeadbeef"); resp != FormatResponse(CodeOK, "") {
		t.Fatalf("w: got %q", resp)
	}

	for i := 0; i < 4; i++ {
		block.Tick()
	}

	// §4.I's offset table (not E4's inline gloss — see DESIGN.md) puts
	// RXF0 at 0x20: 0x10..0x1C is TXF0..TXF3, so 0x20..0x2C is
	// RXF0..RXF3, not 0x24..0x30.
	resp, _ := s.dispatch("r 0x50200020")
	if resp != FormatResponse(CodeOK, "3735928559") {
		t.Fatalf("r RXF0: got %q, want %q", resp, FormatResponse(CodeOK, "3735928559"))
	}
}

// TestServeAndClientRoundTrip exercises the whole stack over a real
// loopback TCP connection.
func TestServeAndClientRoundTrip(t *testing.T) {
	block := pio.NewBlock(0)
	bus := regs.NewAddressBus()
	bus.Map(0x50200000, regs.NewPIOFacade(block), "PIO0")
	srv := NewServer(bus, discardLogger())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve("127.0.0.1:18811") }()
	time.Sleep(20 * time.Millisecond) // let the listener come up

	client, err := Dial("127.0.0.1:18811")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	v, err := client.Version()
	if err != nil || v != Version {
		t.Fatalf("Version() = (%q,%v), want (%q,nil)", v, err, Version)
	}

	if err := client.Write(0x50200010, 0x2a); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if lvl := block.SM(0).FIFO.TxLevel(); lvl != 1 {
		t.Fatalf("TX level after client write = %d, want 1", lvl)
	}

	label, err := client.Label(0x50200010)
	if err != nil || label != "TXF0" {
		t.Fatalf("Label() = (%q,%v), want (\"TXF0\",nil)", label, err)
	}
}
