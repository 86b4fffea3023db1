package regs

// WriteMode selects one of the four atomic register write formulas the
// RP2040 datasheet documents (§2.1.2): a plain write, or one applied
// via an address alias that XORs, sets, or clears bits without a
// separate read-modify-write. Grounded on the teacher's
// regAliasXOR/SET/CLR = 0x1/0x2/0x3<<12 constants (rp2-pio/statemachine.go).
type WriteMode uint8

const (
	WriteNormal WriteMode = iota
	WriteXor
	WriteSet
	WriteClear
)

// modeShift and modeMask locate the two mode bits (address bits 13:12)
// within a raw address.
const (
	modeShift = 12
	modeMask  = 0x3
)

// DecodeWriteMode splits a raw address into its write mode and the
// underlying register address with the mode bits cleared.
func DecodeWriteMode(addr uint32) (WriteMode, uint32) {
	mode := WriteMode((addr >> modeShift) & modeMask)
	base := addr &^ (uint32(modeMask) << modeShift)
	return mode, base
}

// EncodeWriteMode is DecodeWriteMode's inverse, used by clients that
// want to address a register through one of the atomic aliases.
func EncodeWriteMode(mode WriteMode, base uint32) uint32 {
	return (base &^ (uint32(modeMask) << modeShift)) | (uint32(mode) << modeShift)
}

// Apply combines a register's current value with an incoming write
// value under this mode.
func (m WriteMode) Apply(current, value uint32) uint32 {
	switch m {
	case WriteXor:
		return current ^ value
	case WriteSet:
		return current | value
	case WriteClear:
		return current &^ value
	default:
		return value
	}
}

// Facade is one address-mapped device on the bus (spec §4.J): a PIO's
// user register file, its extended debug file, or any future device.
// Addresses passed to Read/Write/Provides are already relative to
// this facade's own base (the AddressBus subtracts it).
type Facade interface {
	// Provides reports whether this facade backs the given
	// base-relative word address. addr may still carry its mode bits
	// (13:12); implementations ignore them.
	Provides(addr uint32) bool
	// Read returns the word at addr, or 0 for write-only slots and
	// addresses this facade does not back.
	Read(addr uint32) uint32
	// Write applies value to addr. addr still carries its raw mode
	// bits (13:12); implementations decode them with DecodeWriteMode.
	// Writes to read-only or unmapped addresses are silently ignored.
	Write(addr uint32, value uint32)
	// Label returns a human-readable register name for addr, used by
	// the bridge's `l` command. Empty if addr is unmapped.
	Label(addr uint32) string
}
