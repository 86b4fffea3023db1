package regs

import (
	"fmt"

	"github.com/piolab/rp2040pio/pio"
)

// Extended (emulator-only) register file offsets. Real RP2040 silicon
// has no equivalent of these — they exist purely so a bridge client
// can drive and observe execution the way a debugger would (spec §4.I's
// extended emulator-only window).
const (
	extVERSION     = 0x00
	extSINGLESTEP  = 0x04
	extSMBase      = 0x08
	extSMFieldCnt  = 9
	extSMSize      = extSMFieldCnt * 4
)

// Per-SM field offsets within its extSMSize block.
const (
	extSMX = iota
	extSMY
	extSMPC
	extSMDelayRemaining
	extSMFlags // bit0 Enabled, bit1 Stalled
	extSMISRBits
	extSMISRCounter
	extSMOSRBits
	extSMOSRCounter
)

// ExtVersion is the constant value the extended facade's VERSION
// register reports (SPEC_FULL.md: DBG_CFGINFO.VERSION analogue for the
// emulator-only surface).
const ExtVersion = 0

// ExtFacade exposes per-SM scratch/shift-register/PC state and a
// single-step trigger that a debugger-style bridge client can use
// without decoding instructions by hand (spec §4.I's "extended
// facade; SPEC_FULL.md's Supplemented Features adds its VERSION word).
type ExtFacade struct {
	block *pio.Block
}

// NewExtFacade wraps block for extended introspection access.
func NewExtFacade(block *pio.Block) *ExtFacade {
	return &ExtFacade{block: block}
}

// ExtSpan is the total byte span of one ExtFacade's register file.
const ExtSpan = extSMBase + pio.NumStateMachines*extSMSize

func (f *ExtFacade) Provides(addr uint32) bool {
	base := stripMode(addr)
	return base < ExtSpan && base%4 == 0
}

func (f *ExtFacade) extSMIndex(base uint32) (int, int, bool) {
	if base < extSMBase {
		return 0, 0, false
	}
	off := base - extSMBase
	sm := int(off) / extSMSize
	if sm >= pio.NumStateMachines {
		return 0, 0, false
	}
	rem := off % extSMSize
	if rem%4 != 0 {
		return 0, 0, false
	}
	return sm, int(rem / 4), true
}

func (f *ExtFacade) Read(addr uint32) uint32 {
	base := stripMode(addr)
	b := f.block
	b.Mu.Lock()
	defer b.Mu.Unlock()

	switch base {
	case extVERSION:
		return ExtVersion
	case extSINGLESTEP:
		return 0 // write-only trigger
	}
	sm, field, ok := f.extSMIndex(base)
	if !ok {
		return 0
	}
	s := b.SM(sm)
	switch field {
	case extSMX:
		return s.GetX()
	case extSMY:
		return s.GetY()
	case extSMPC:
		return uint32(s.PC)
	case extSMDelayRemaining:
		return uint32(s.DelayRemaining)
	case extSMFlags:
		var v uint32
		if s.IsEnabled() {
			v |= 1
		}
		if s.Stalled {
			v |= 2
		}
		return v
	case extSMISRBits:
		return s.ISR.Bits
	case extSMISRCounter:
		return uint32(s.ISR.Counter)
	case extSMOSRBits:
		return s.OSR.Bits
	case extSMOSRCounter:
		return uint32(s.OSR.Counter)
	}
	return 0
}

// Write mutates extended state. Every field here is a direct host poke
// (spec's extended facade is a debugger surface, not part of the
// datasheet-defined MMR set), so write-mode aliases apply the same
// generic formula as the normal register file for consistency, except
// SINGLE_STEP and STALLED/ENABLED flags, which are edge-triggered and
// consume value's raw bits like CTRL's restart strobes do.
func (f *ExtFacade) Write(addr uint32, value uint32) {
	mode, base := DecodeWriteMode(addr)
	b := f.block

	if base == extVERSION {
		return // read-only
	}
	if base == extSINGLESTEP {
		// Clock.Tick locks b.Mu itself; it must not already be held here,
		// or it would deadlock against the very lock it needs to
		// serialize this tick with every other MMR access.
		if value != 0 {
			b.Clock.Tick()
		}
		return
	}

	b.Mu.Lock()
	defer b.Mu.Unlock()

	sm, field, ok := f.extSMIndex(base)
	if !ok {
		return
	}
	s := b.SM(sm)
	switch field {
	case extSMX:
		s.SetX(mode.Apply(s.GetX(), value))
	case extSMY:
		s.SetY(mode.Apply(s.GetY(), value))
	case extSMPC:
		s.Jmp(uint8(mode.Apply(uint32(s.PC), value)))
	case extSMDelayRemaining:
		s.DelayRemaining = uint8(mode.Apply(uint32(s.DelayRemaining), value))
	case extSMFlags:
		s.SetEnabled(value&1 != 0)
		if value&2 != 0 {
			s.Restart()
		}
	case extSMISRBits:
		s.ISR.Bits = mode.Apply(s.ISR.Bits, value)
	case extSMISRCounter:
		s.ISR.Counter = uint8(mode.Apply(uint32(s.ISR.Counter), value))
	case extSMOSRBits:
		s.OSR.Bits = mode.Apply(s.OSR.Bits, value)
	case extSMOSRCounter:
		s.OSR.Counter = uint8(mode.Apply(uint32(s.OSR.Counter), value))
	}
}

func (f *ExtFacade) Label(addr uint32) string {
	base := stripMode(addr)
	switch base {
	case extVERSION:
		return "EXT_VERSION"
	case extSINGLESTEP:
		return "EXT_SINGLE_STEP"
	}
	sm, field, ok := f.extSMIndex(base)
	if !ok {
		return ""
	}
	names := []string{"X", "Y", "PC", "DELAY_REMAINING", "FLAGS", "ISR_BITS", "ISR_COUNTER", "OSR_BITS", "OSR_COUNTER"}
	if field < 0 || field >= len(names) {
		return ""
	}
	return fmt.Sprintf("EXT_SM%d_%s", sm, names[field])
}
