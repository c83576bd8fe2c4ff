package driver

// Register is a device parameter register index (5 bits on the wire).
type Register uint8

// Device register map. Values chosen to match the dSPIN-style parameter
// space: positions and speeds are 22/20 bit, current and threshold registers
// are single byte.
const (
	RegAbsPos    Register = 0x01 // Current absolute position (22 bit signed)
	RegSpeed     Register = 0x04 // Current speed (20 bit, read only)
	RegAccel     Register = 0x05 // Acceleration (12 bit)
	RegDecel     Register = 0x06 // Deceleration (12 bit)
	RegMaxSpeed  Register = 0x07 // Speed ceiling (10 bit)
	RegMinSpeed  Register = 0x08 // Speed floor (13 bit)
	RegHoldCur   Register = 0x09 // Holding current scale (8 bit)
	RegRunCur    Register = 0x0A // Running current scale (8 bit)
	RegAccelCur  Register = 0x0B // Acceleration current scale (8 bit)
	RegDecelCur  Register = 0x0C // Deceleration current scale (8 bit)
	RegOCDThresh Register = 0x13 // Overcurrent detection threshold (5 bit)
	RegStallTh   Register = 0x14 // Stall detection threshold (7 bit)
	RegStepMode  Register = 0x16 // Microstep mode (8 bit)
	RegConfig    Register = 0x18 // Device configuration word (16 bit)
)

// regLen returns the argument width in bytes of a register, or 0 for an
// unknown register.
func regLen(r Register) int {
	switch r {
	case RegAbsPos:
		return 3
	case RegSpeed:
		return 3
	case RegAccel, RegDecel, RegMaxSpeed, RegMinSpeed, RegConfig:
		return 2
	case RegHoldCur, RegRunCur, RegAccelCur, RegDecelCur,
		RegOCDThresh, RegStallTh, RegStepMode:
		return 1
	}
	return 0
}
