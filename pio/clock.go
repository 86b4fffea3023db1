package pio

import (
	"sync"
	"time"
)

// ClockMode selects whether a Clock advances only when explicitly
// stepped or advances continuously on a wall-clock ticker (spec §4.A).
type ClockMode uint8

const (
	SingleStep ClockMode = iota
	FreeRunning
)

// Clock is the PIO block's two-phase master clock: phase 0 (sample
// inputs, evaluate one instruction per enabled SM) followed by phase 1
// (commit pin outputs and IRQ state). Both phases run under blockMu,
// the same lock every other Block mutation serializes on (spec §5), so
// a concurrent MMR reader — including one racing a free-running
// background ticker — never observes a mid-phase state.
type Clock struct {
	stateMu sync.Mutex // guards mode and the free-run channels only
	mode    ClockMode

	blockMu  sync.Locker
	onPhase0 func()
	onPhase1 func()

	freeRun  chan struct{}
	freeDone chan struct{}
}

// NewClock returns a Clock in SingleStep mode. blockMu is the owning
// Block's mutex: every Tick, whether driven by an explicit call or by
// the free-run goroutine, locks it for the duration of both phases, so
// onPhase0/onPhase1 never race an MMR access. Callers must not re-enter
// the clock (or the block) from within onPhase0/onPhase1.
func NewClock(blockMu sync.Locker, onPhase0, onPhase1 func()) *Clock {
	return &Clock{mode: SingleStep, blockMu: blockMu, onPhase0: onPhase0, onPhase1: onPhase1}
}

// SetMode switches between SingleStep and FreeRunning. Switching away
// from FreeRunning stops the background ticker started by Run.
func (c *Clock) SetMode(mode ClockMode) {
	c.stateMu.Lock()
	prev := c.mode
	c.mode = mode
	c.stateMu.Unlock()
	if prev == FreeRunning && mode != FreeRunning {
		c.stopFreeRun()
	}
}

func (c *Clock) Mode() ClockMode {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.mode
}

// TickPhase0 runs phase 0 alone, taking and releasing the block's lock
// for just this phase. waitCompletion is honored trivially here since
// phase 0 always executes synchronously; it exists so callers driving
// the clock from a bridge command (which may choose fire-and-forget
// semantics in FreeRunning mode) have a uniform signature with
// TickPhase1. Prefer Tick when both phases must appear atomic to an
// MMR reader: calling TickPhase0 and TickPhase1 back to back leaves a
// window, between the two locks, where phase 0's mutations are visible
// but phase 1's commit hasn't run yet.
func (c *Clock) TickPhase0(waitCompletion bool) {
	c.blockMu.Lock()
	defer c.blockMu.Unlock()
	if c.onPhase0 != nil {
		c.onPhase0()
	}
}

// TickPhase1 runs phase 1 alone, symmetric to TickPhase0 and subject to
// the same atomicity caveat.
func (c *Clock) TickPhase1(waitCompletion bool) {
	c.blockMu.Lock()
	defer c.blockMu.Unlock()
	if c.onPhase1 != nil {
		c.onPhase1()
	}
}

// Tick runs one full phase0/phase1 cycle atomically under a single
// blockMu acquisition — the SINGLE_STEP guarantee that every SM
// observes the same phase boundary before any MMR read returns (spec
// §4.A, §5). Unlike calling TickPhase0 then TickPhase1, no reader can
// observe the intermediate state where phase 0 has mutated SM/FIFO
// state but phase 1's GPIO/IRQ commit hasn't run yet.
func (c *Clock) Tick() {
	c.blockMu.Lock()
	defer c.blockMu.Unlock()
	if c.onPhase0 != nil {
		c.onPhase0()
	}
	if c.onPhase1 != nil {
		c.onPhase1()
	}
}

// Run starts a background goroutine that calls Tick at the given
// period while the clock is in FreeRunning mode. Calling Run while
// already running is a no-op; switching to SingleStep (via SetMode)
// or calling Stop halts it.
func (c *Clock) Run(period time.Duration) {
	c.stateMu.Lock()
	if c.freeRun != nil {
		c.stateMu.Unlock()
		return
	}
	c.freeRun = make(chan struct{})
	c.freeDone = make(chan struct{})
	stop := c.freeRun
	done := c.freeDone
	c.stateMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if c.Mode() != FreeRunning {
					return
				}
				c.Tick()
			}
		}
	}()
}

// Stop halts a running free-run goroutine, if any, and waits for it to
// exit.
func (c *Clock) Stop() {
	c.stopFreeRun()
}

func (c *Clock) stopFreeRun() {
	c.stateMu.Lock()
	stop, done := c.freeRun, c.freeDone
	c.freeRun, c.freeDone = nil, nil
	c.stateMu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
