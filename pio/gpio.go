package pio

// NumPins is the number of GPIO pins a PIO block's fabric arbitrates,
// matching the RP2040's GPIO bank width.
const NumPins = 32

// PinDir is a pin's direction.
type PinDir uint8

const (
	DirIn PinDir = iota
	DirOut
)

// pinDrive is one SM's requested drive for a single pin during a tick,
// tagged by which instruction class produced it so the fabric can
// arbitrate by priority (spec §4.B: side-set overrides OUT overrides
// SET).
type driveKind uint8

const (
	driveNone driveKind = iota
	driveSet
	driveOut
	driveSide
)

type pinDrive struct {
	sm    int
	kind  driveKind
	level bool
	dir   PinDir
	setDir bool
}

// GPIO is the PIO-wide pin fabric: 32 pins, their configured direction,
// the input synchronizer bypass mask, and the per-tick output
// arbitration among the four state machines (spec §4.B).
type GPIO struct {
	level             [NumPins]bool
	dir               [NumPins]PinDir
	inputSyncBypass   uint32
	syncedLevel       [NumPins]bool // synchronizer output, lags level by two cycles unless bypassed
	syncStage         [NumPins]bool // one-cycle synchronizer pipeline stage

	pending [NumPins]pinDrive
}

// NewGPIO returns a fabric with all pins low, input, no bypass.
func NewGPIO() *GPIO {
	return &GPIO{}
}

// GetPin returns the synchronized level a WAIT/IN instruction observes:
// the raw level if input-sync-bypass is set for that pin, otherwise the
// value from two cycles ago (spec §4.B).
func (g *GPIO) GetPin(pin uint8) bool {
	pin &= NumPins - 1
	if g.inputSyncBypass&(1<<pin) != 0 {
		return g.level[pin]
	}
	return g.syncedLevel[pin]
}

// GetDir returns a pin's configured direction.
func (g *GPIO) GetDir(pin uint8) PinDir {
	return g.dir[pin&(NumPins-1)]
}

// SetPinLevel drives a pin directly (host/testbench use — not SM
// arbitrated). SM output must go through RequestDrive/Commit.
func (g *GPIO) SetPinLevel(pin uint8, v bool) {
	g.level[pin&(NumPins-1)] = v
}

// SetDir sets a pin's direction directly, bypassing arbitration.
func (g *GPIO) SetDir(pin uint8, d PinDir) {
	g.dir[pin&(NumPins-1)] = d
}

// InputSyncBypass returns the current bypass mask.
func (g *GPIO) InputSyncBypass() uint32 { return g.inputSyncBypass }

// SetInputSyncBypass mutates the bypass mask with the same
// normal/set/clear/xor semantics MMR writes use elsewhere (spec §4.B).
func (g *GPIO) SetInputSyncBypass(mask, value uint32, xor bool) {
	if xor {
		g.inputSyncBypass ^= value & mask
		return
	}
	g.inputSyncBypass = (g.inputSyncBypass &^ mask) | (value & mask)
}

// RequestDrive records one SM's request to drive a contiguous pin
// range this tick. kind selects arbitration priority. An active SM may
// call it more than once per tick (for its instruction's pin output and
// again for side-set), in index order, ahead of Commit; the highest-
// priority, highest-index request for a given pin wins.
func (g *GPIO) RequestDrive(sm int, kind driveKind, base, count uint8, values, dirValues uint32, setDir bool) {
	for i := uint8(0); i < count; i++ {
		pin := (base + i) & (NumPins - 1)
		d := pinDrive{sm: sm, kind: kind, level: values&(1<<i) != 0, setDir: setDir}
		if setDir {
			if dirValues&(1<<i) != 0 {
				d.dir = DirOut
			} else {
				d.dir = DirIn
			}
		}
		if betterDrive(d, g.pending[pin]) {
			g.pending[pin] = d
		}
	}
}

// betterDrive reports whether candidate should replace current under
// the arbitration rule: side-set beats OUT beats SET; ties go to the
// higher SM index (spec §4.B).
func betterDrive(candidate, current pinDrive) bool {
	if current.kind == driveNone {
		return true
	}
	if candidate.kind != current.kind {
		return candidate.kind > current.kind
	}
	return candidate.sm >= current.sm
}

// Commit applies the tick's arbitrated pin drives (phase 1) and
// advances the two-stage input synchronizer. Must be called exactly
// once per tick after every SM's step has issued its RequestDrive
// calls.
func (g *GPIO) Commit() {
	for pin := 0; pin < NumPins; pin++ {
		d := g.pending[pin]
		if d.kind != driveNone {
			g.level[pin] = d.level
			if d.setDir {
				g.dir[pin] = d.dir
			}
		}
		g.pending[pin] = pinDrive{}
	}
	for pin := 0; pin < NumPins; pin++ {
		g.syncedLevel[pin] = g.syncStage[pin]
		g.syncStage[pin] = g.level[pin]
	}
}

// DBGPadOut returns the current pin output levels as a bitmask, the
// value the PIO register facade's DBG_PADOUT register exposes.
func (g *GPIO) DBGPadOut() uint32 {
	var v uint32
	for pin := 0; pin < NumPins; pin++ {
		if g.level[pin] {
			v |= 1 << uint(pin)
		}
	}
	return v
}

// DBGPadOE returns the current pin output-enable (direction) state as
// a bitmask, the value DBG_PADOE exposes.
func (g *GPIO) DBGPadOE() uint32 {
	var v uint32
	for pin := 0; pin < NumPins; pin++ {
		if g.dir[pin] == DirOut {
			v |= 1 << uint(pin)
		}
	}
	return v
}
