package encoder

// Magnetic rotary encoder register map. The angle is a 12-bit absolute value
// read as a high/low byte pair; the status register reports magnet presence
// and field strength.
const (
	regStatus  = 0x0B
	regAngleHi = 0x0C // bits 11:8 in the low nibble
	regAngleLo = 0x0D // bits 7:0
)

// Status register flags
const (
	stMagnetStrong = 1 << 3 // field too strong
	stMagnetWeak   = 1 << 4 // field too weak
	stMagnetOK     = 1 << 5 // magnet detected
)

// Angle span of one revolution.
const (
	AngleRange = 4096
	halfRange  = AngleRange / 2
	angleMask  = AngleRange - 1
)
