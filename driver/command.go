// Daisy-chain stepper driver command set
// Opcode layout follows the dSPIN-style application command encoding used by
// chained motor driver ICs: a one-byte opcode followed by 0-3 argument bytes.
package driver

import "errors"

// Command opcodes. The low bits of some opcodes carry the direction or the
// target register index, so these constants are the opcode base values.
const (
	opNop      = 0x00 // No operation, also used as argument padding
	opSetParam = 0x00 // 000xxxxx - register index in low 5 bits
	opGetParam = 0x20 // 001xxxxx - register index in low 5 bits
	opRun      = 0x50 // 0101000x - direction in bit 0
	opMove     = 0x40 // 0100000x - direction in bit 0
	opGoTo     = 0x60 // absolute positioning
	opSoftStop = 0xB0 // decelerate to hold
	opHardStop = 0xB8 // immediate stop to hold
	opStatus   = 0xD0 // read and clear the status word
)

// Argument field widths
const (
	speedBits    = 20 // Run speed argument
	stepBits     = 22 // Move step count argument
	positionBits = 22 // GoTo position argument (two's complement)

	MaxSpeed = (1 << speedBits) - 1
	MaxSteps = (1 << stepBits) - 1
)

var (
	ErrBadRegister = errors.New("driver: unknown register")
	ErrArgRange    = errors.New("driver: command argument out of range")
)

// Op identifies a command variant.
type Op uint8

const (
	Nop Op = iota
	SetParam
	GetParam
	Run
	Move
	GoTo
	SoftStop
	HardStop
)

func (o Op) String() string {
	switch o {
	case Nop:
		return "nop"
	case SetParam:
		return "set_param"
	case GetParam:
		return "get_param"
	case Run:
		return "run"
	case Move:
		return "move"
	case GoTo:
		return "goto"
	case SoftStop:
		return "soft_stop"
	case HardStop:
		return "hard_stop"
	}
	return "unknown"
}

// Direction of shaft rotation as seen by the driver IC.
type Direction uint8

const (
	Reverse Direction = 0
	Forward Direction = 1
)

// Command is one per-device entry of a chain transaction. It is a closed
// tagged variant: Op selects which of the remaining fields are meaningful.
// Commands are immutable once constructed.
type Command struct {
	Op       Op
	Reg      Register  // SetParam, GetParam
	Value    uint32    // SetParam
	Dir      Direction // Run, Move
	Speed    uint32    // Run, in encoder counts per second
	Steps    uint32    // Move
	Position int32     // GoTo, in encoder counts
}

// NopCommand returns the padding/no-op command.
func NopCommand() Command { return Command{Op: Nop} }

// SetParamCommand writes value to a device register.
func SetParamCommand(reg Register, value uint32) Command {
	return Command{Op: SetParam, Reg: reg, Value: value}
}

// GetParamCommand requests a device register readback.
func GetParamCommand(reg Register) Command {
	return Command{Op: GetParam, Reg: reg}
}

// RunCommand spins the motor at a constant speed until superseded.
func RunCommand(dir Direction, speed uint32) Command {
	return Command{Op: Run, Dir: dir, Speed: speed}
}

// MoveCommand steps the motor a relative number of steps.
func MoveCommand(dir Direction, steps uint32) Command {
	return Command{Op: Move, Dir: dir, Steps: steps}
}

// GoToCommand moves the motor to an absolute position via the shortest ramp.
func GoToCommand(position int32) Command {
	return Command{Op: GoTo, Position: position}
}

// SoftStopCommand decelerates to a stop at the programmed deceleration.
func SoftStopCommand() Command { return Command{Op: SoftStop} }

// HardStopCommand stops immediately, ignoring deceleration limits.
func HardStopCommand() Command { return Command{Op: HardStop} }

// encode appends the wire bytes of the command to dst and returns the
// extended slice. The first byte is always the opcode; argument bytes follow
// most significant first.
func (c Command) encode(dst []byte) ([]byte, error) {
	switch c.Op {
	case Nop:
		return append(dst, opNop), nil

	case SetParam:
		n := regLen(c.Reg)
		if n == 0 {
			return dst, ErrBadRegister
		}
		if c.Value >= 1<<(8*n) && n < 4 {
			return dst, ErrArgRange
		}
		dst = append(dst, opSetParam|uint8(c.Reg))
		for i := n - 1; i >= 0; i-- {
			dst = append(dst, byte(c.Value>>(8*i)))
		}
		return dst, nil

	case GetParam:
		if regLen(c.Reg) == 0 {
			return dst, ErrBadRegister
		}
		return append(dst, opGetParam|uint8(c.Reg)), nil

	case Run:
		if c.Speed > MaxSpeed {
			return dst, ErrArgRange
		}
		dst = append(dst, opRun|uint8(c.Dir))
		return append(dst, byte(c.Speed>>16), byte(c.Speed>>8), byte(c.Speed)), nil

	case Move:
		if c.Steps > MaxSteps {
			return dst, ErrArgRange
		}
		dst = append(dst, opMove|uint8(c.Dir))
		return append(dst, byte(c.Steps>>16), byte(c.Steps>>8), byte(c.Steps)), nil

	case GoTo:
		lim := int32(1) << (positionBits - 1)
		if c.Position >= lim || c.Position < -lim {
			return dst, ErrArgRange
		}
		p := uint32(c.Position) & ((1 << positionBits) - 1)
		dst = append(dst, opGoTo)
		return append(dst, byte(p>>16), byte(p>>8), byte(p)), nil

	case SoftStop:
		return append(dst, opSoftStop), nil

	case HardStop:
		return append(dst, opHardStop), nil
	}
	return dst, ErrArgRange
}

// argLen returns the number of argument bytes the command occupies after its
// opcode byte. Used for chain frame alignment.
func (c Command) argLen() int {
	switch c.Op {
	case SetParam:
		return regLen(c.Reg)
	case Run, Move, GoTo:
		return 3
	}
	return 0
}
