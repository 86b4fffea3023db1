// Command pioemu wires two PIO blocks onto an address bus and serves
// them over the register bridge. It is deliberately thin: spec.md's
// Non-goals name CLI glue and program-loading UX as an external
// collaborator's job, so this is just enough main to make the bus
// reachable, in the spirit of soundpaint's 56-line Main.java.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/piolab/rp2040pio/bridge"
	"github.com/piolab/rp2040pio/pio"
	"github.com/piolab/rp2040pio/regs"
)

// Base addresses for PIO0 and PIO1, matching the RP2040 memory map.
const (
	pio0Base = 0x50200000
	pio1Base = 0x50300000
)

func main() {
	addr := flag.String("addr", fmt.Sprintf(":%d", bridge.DefaultPort), "bridge listen address")
	freeRun := flag.Duration("tick", 0, "if nonzero, run both PIO clocks free-running at this period instead of single-step")
	flag.Parse()

	pio0 := pio.NewBlock(0)
	pio1 := pio.NewBlock(1)

	bus := regs.NewAddressBus()
	bus.Map(pio0Base, regs.NewPIOFacade(pio0), "PIO0")
	bus.Map(pio0Base+regs.FacadeSpan, regs.NewExtFacade(pio0), "PIO0-EXT")
	bus.Map(pio1Base, regs.NewPIOFacade(pio1), "PIO1")
	bus.Map(pio1Base+regs.FacadeSpan, regs.NewExtFacade(pio1), "PIO1-EXT")

	if *freeRun > 0 {
		pio0.Clock.SetMode(pio.FreeRunning)
		pio1.Clock.SetMode(pio.FreeRunning)
		pio0.Clock.Run(*freeRun)
		pio1.Clock.Run(*freeRun)
	}

	srv := bridge.NewServer(bus, log.Default())
	log.Fatal(srv.Serve(*addr))
}
