package regs

import (
	"time"

	"github.com/pkg/errors"
)

// mappedFacade pairs a Facade with the base address the bus subtracts
// before delegating to it.
type mappedFacade struct {
	base   uint32
	facade Facade
	label  string
}

// AddressBus dispatches raw addresses to whichever mapped facade
// claims them, first match wins (spec §4.J). Unmapped reads return 0
// and unmapped writes are silently ignored, matching real hardware's
// behavior for addresses outside any peripheral's aperture.
type AddressBus struct {
	mapped []mappedFacade
}

// NewAddressBus returns an empty bus.
func NewAddressBus() *AddressBus {
	return &AddressBus{}
}

// Map registers a facade at base, in the order it should be checked.
// label identifies the facade in diagnostics (e.g. "PIO0", "PIO1").
func (bus *AddressBus) Map(base uint32, facade Facade, label string) {
	bus.mapped = append(bus.mapped, mappedFacade{base: base, facade: facade, label: label})
}

// find returns the first mapped facade that provides addr, and the
// address translated into that facade's own address space (mode bits
// preserved).
func (bus *AddressBus) find(addr uint32) (mappedFacade, uint32, bool) {
	for _, m := range bus.mapped {
		if addr < m.base {
			continue
		}
		rel := addr - m.base
		if m.facade.Provides(rel) {
			return m, rel, true
		}
	}
	return mappedFacade{}, 0, false
}

// Provides reports whether any mapped facade backs addr.
func (bus *AddressBus) Provides(addr uint32) bool {
	_, _, ok := bus.find(addr)
	return ok
}

// Read returns the word at addr, or 0 if unmapped.
func (bus *AddressBus) Read(addr uint32) uint32 {
	m, rel, ok := bus.find(addr)
	if !ok {
		return 0
	}
	return m.facade.Read(rel)
}

// Write applies value to addr. A write to an unmapped address is
// silently ignored, matching Read's unmapped behavior.
func (bus *AddressBus) Write(addr uint32, value uint32) {
	m, rel, ok := bus.find(addr)
	if !ok {
		return
	}
	m.facade.Write(rel, value)
}

// Label returns the mapped facade's register name for addr, or "" if
// unmapped.
func (bus *AddressBus) Label(addr uint32) string {
	m, rel, ok := bus.find(addr)
	if !ok {
		return ""
	}
	return m.facade.Label(rel)
}

// ErrWaitTimeout is returned by Wait when neither the cycle nor the
// wall-clock deadline lets the expected value ever appear.
var ErrWaitTimeout = errors.New("regs: wait timed out")

// Wait blocks until (Read(addr) & mask) == (expected & mask), polling
// once per cyclePeriod. It gives up and returns ErrWaitTimeout once
// either cyclesTimeout polls have elapsed (0 means no cycle limit) or
// millisTimeout has elapsed (0 means no wall-clock limit); if both are
// 0 it polls indefinitely (spec §4.K's `i` bridge command).
//
// Read is not side-effect-free on every address: waiting on an RXFn
// port pops the FIFO on each poll, so a mismatched value is discarded
// rather than left for a later read.
func (bus *AddressBus) Wait(addr, expected, mask uint32, cyclesTimeout uint32, millisTimeout uint32, cyclePeriod time.Duration) error {
	deadline := time.Time{}
	if millisTimeout > 0 {
		deadline = time.Now().Add(time.Duration(millisTimeout) * time.Millisecond)
	}
	if cyclePeriod <= 0 {
		cyclePeriod = time.Millisecond
	}
	for cycles := uint32(0); ; cycles++ {
		if bus.Read(addr)&mask == expected&mask {
			return nil
		}
		if cyclesTimeout > 0 && cycles >= cyclesTimeout {
			return ErrWaitTimeout
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrWaitTimeout
		}
		time.Sleep(cyclePeriod)
	}
}
