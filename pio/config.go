package pio

import "github.com/pkg/errors"

// ShiftDir is the direction a shift register consumes/produces bits.
type ShiftDir uint8

const (
	ShiftRight ShiftDir = iota
	ShiftLeft
)

// FifoJoin controls whether a state machine's TX/RX FIFOs merge into a
// single 8-deep queue, per spec §4.C.
type FifoJoin uint8

const (
	FifoJoinNone FifoJoin = iota
	FifoJoinTx
	FifoJoinRx
)

// MovStatusSel selects the comparison MOV STATUS reads, per spec §4.E.
type MovStatusSel uint8

const (
	MovStatusTxLessThan MovStatusSel = iota
	MovStatusRxLessThan
)

// Config holds a state machine's CLKDIV/EXECCTRL/SHIFTCTRL/PINCTRL
// configuration, encoded the same way the teacher's StateMachineConfig
// bitfield setters do (config.go), but against this module's own bit
// positions rather than a code-generated SVD package.
type Config struct {
	// CLKDIV
	ClkDivInt  uint16
	ClkDivFrac uint8

	// EXECCTRL
	WrapBottom      uint8
	WrapTop         uint8
	SideSetEnable   bool // top side-set bit is a "apply this instruction" flag
	SideSetPinDirs  bool
	JmpPin          uint8
	OutSticky       bool
	HasOutEnablePin bool
	OutEnablePin    uint8
	StatusSel       MovStatusSel
	StatusN         uint8

	// SHIFTCTRL
	InShiftDir    ShiftDir
	OutShiftDir   ShiftDir
	AutoPush      bool
	AutoPull      bool
	PushThreshold uint8 // 0 means 32
	PullThreshold uint8 // 0 means 32
	FJoin         FifoJoin

	// PINCTRL
	OutBase     uint8
	OutCount    uint8
	SetBase     uint8
	SetCount    uint8
	InBase      uint8
	SideSetBase uint8
	SideSetBits uint8
}

// DefaultConfig mirrors the teacher's DefaultStateMachineConfig: divide
// by 1, wrap over the whole 32-word memory, MSB-first 32-bit shifts, no
// auto-push/pull.
func DefaultConfig() Config {
	return Config{
		ClkDivInt:     1,
		WrapBottom:    0,
		WrapTop:       31,
		InShiftDir:    ShiftLeft,
		OutShiftDir:   ShiftLeft,
		PushThreshold: 32,
		PullThreshold: 32,
	}
}

// SetClkDivIntFrac sets the fractional clock divider. Frequency = clock
// / (int + frac/256).
func (c *Config) SetClkDivIntFrac(whole uint16, frac uint8) {
	c.ClkDivInt = whole
	c.ClkDivFrac = frac
}

// SetWrap sets the wrap range, inclusive on both ends.
func (c *Config) SetWrap(bottom, top uint8) {
	c.WrapBottom = bottom
	c.WrapTop = top
}

// SetInShift sets the ISR shift direction, auto-push enable, and push
// threshold (0 is stored as 32, matching hardware's "0 means 32" idiom).
func (c *Config) SetInShift(dir ShiftDir, autoPush bool, threshold uint16) {
	c.InShiftDir = dir
	c.AutoPush = autoPush
	c.PushThreshold = normalizeThreshold(threshold)
}

// SetOutShift is SetInShift's OSR counterpart.
func (c *Config) SetOutShift(dir ShiftDir, autoPull bool, threshold uint16) {
	c.OutShiftDir = dir
	c.AutoPull = autoPull
	c.PullThreshold = normalizeThreshold(threshold)
}

func normalizeThreshold(threshold uint16) uint8 {
	t := uint8(threshold & 0x1f)
	if t == 0 {
		return 32
	}
	return t
}

// SetSidesetParams sets side-set bit count (0..5), whether the top bit
// is an enable/valid flag, and whether side-set drives pin directions
// instead of pin values.
func (c *Config) SetSidesetParams(bitCount uint8, optional, pindirs bool) error {
	if bitCount > 5 {
		return errors.New("pio: side-set bit count must be 0..5")
	}
	c.SideSetBits = bitCount
	c.SideSetEnable = optional
	c.SideSetPinDirs = pindirs
	return nil
}

// SetSidesetPins sets the lowest-numbered pin side-set affects.
func (c *Config) SetSidesetPins(base uint8) { c.SideSetBase = base }

// SetOutPins sets the OUT/MOV-PINS/PINDIRS pin range.
func (c *Config) SetOutPins(base, count uint8) {
	c.OutBase = base
	c.OutCount = count
}

// SetSetPins sets the SET pin range.
func (c *Config) SetSetPins(base, count uint8) {
	c.SetBase = base
	c.SetCount = count
}

// SetInPins sets the base pin IN PINS reads from.
func (c *Config) SetInPins(base uint8) { c.InBase = base }

// SetJmpPin sets the pin JMP PIN branches on.
func (c *Config) SetJmpPin(pin uint8) { c.JmpPin = pin }

// SetOutSpecial configures sticky output and the auxiliary OUT-enable
// pin, mirroring the teacher's SetOutSpecial.
func (c *Config) SetOutSpecial(sticky, hasEnablePin bool, enablePin uint8) {
	c.OutSticky = sticky
	c.HasOutEnablePin = hasEnablePin
	c.OutEnablePin = enablePin
}

// SetMovStatus configures the source and threshold for MOV x, STATUS.
func (c *Config) SetMovStatus(sel MovStatusSel, n uint8) {
	c.StatusSel = sel
	c.StatusN = n
}

// SetFIFOJoin configures FIFO merging, per spec §4.C.
func (c *Config) SetFIFOJoin(join FifoJoin) { c.FJoin = join }

// dataBits returns the number of side-set bits actually used to encode
// pin values, excluding the enable/valid flag bit if configured.
func (c Config) dataBits() uint8 {
	if c.SideSetBits == 0 {
		return 0
	}
	if c.SideSetEnable {
		return c.SideSetBits - 1
	}
	return c.SideSetBits
}

// splitClkdiv converts a raw 256ths-of-a-cycle count into (whole, frac),
// carried over from the teacher's identical helper.
func splitClkdiv(clkdiv uint64) (whole uint16, frac uint8, err error) {
	const maxWhole = 1<<16 - 1
	if clkdiv > 256*maxWhole {
		return 0, 0, errors.New("pio: ClkDiv: too large period or CPU frequency")
	} else if clkdiv < 256 {
		return 0, 0, errors.New("pio: ClkDiv: too small period or CPU frequency")
	}
	whole = uint16(clkdiv / 256)
	frac = uint8(clkdiv % 256)
	return whole, frac, nil
}

// ClkDivFromPeriod computes CLKDIV.int/frac for a target state machine
// cycle period, given the emulated system clock frequency. period and
// cpuFreq share whatever units make period/cpuFreq have units of
// seconds (e.g. nanoseconds and Hz).
func ClkDivFromPeriod(period, cpuFreq uint32) (whole uint16, frac uint8, err error) {
	return splitClkdiv(256 * uint64(period) * uint64(cpuFreq) / uint64(1e9))
}

// ClkDivFromFrequency computes CLKDIV.int/frac for a target state
// machine cycle frequency, given the emulated system clock frequency.
func ClkDivFromFrequency(freq, cpuFreq uint32) (whole uint16, frac uint8, err error) {
	return splitClkdiv(256 * uint64(cpuFreq) / uint64(freq))
}
