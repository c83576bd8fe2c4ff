package link

import (
	"errors"
	"fmt"

	"stepcore/core"
)

// Message identifiers, the first payload byte of every frame.
const (
	MsgMotionCommand = 0x01 // host -> controller
	MsgEStop         = 0x02 // host -> controller
	MsgReset         = 0x03 // host -> controller
	MsgStatusRequest = 0x04 // host -> controller
	MsgStatusReport  = 0x81 // controller -> host, one per channel
	MsgAck           = 0x82 // controller -> host
	MsgReject        = 0x83 // controller -> host, reason string follows
)

var ErrBadMessage = errors.New("link: malformed message")

// AppendMotionCommand encodes a motion command payload.
func AppendMotionCommand(dst []byte, cmd core.MotionCommand) []byte {
	dst = append(dst, MsgMotionCommand, cmd.Channel)
	dst = AppendInt(dst, cmd.TargetPosition)
	dst = AppendUint(dst, cmd.TargetVelocity)
	return AppendUint(dst, cmd.AccelLimit)
}

// DecodeMotionCommand decodes the payload after the message identifier.
func DecodeMotionCommand(data []byte) (core.MotionCommand, error) {
	var cmd core.MotionCommand
	if len(data) < 1 {
		return cmd, ErrBadMessage
	}
	cmd.Channel = data[0]
	data = data[1:]
	var err error
	if cmd.TargetPosition, err = ReadInt(&data); err != nil {
		return cmd, fmt.Errorf("%w: target position", ErrBadMessage)
	}
	if cmd.TargetVelocity, err = ReadUint(&data); err != nil {
		return cmd, fmt.Errorf("%w: target velocity", ErrBadMessage)
	}
	if cmd.AccelLimit, err = ReadUint(&data); err != nil {
		return cmd, fmt.Errorf("%w: accel limit", ErrBadMessage)
	}
	return cmd, nil
}

// AppendStatusReport encodes one channel's status report payload.
func AppendStatusReport(dst []byte, r core.StatusReport) []byte {
	dst = append(dst, MsgStatusReport, r.Channel)
	dst = AppendInt(dst, r.Position)
	dst = AppendInt(dst, r.Velocity)
	dst = AppendUint(dst, r.FaultFlags)
	return AppendUint(dst, uint32(r.State))
}

// DecodeStatusReport decodes the payload after the message identifier.
func DecodeStatusReport(data []byte) (core.StatusReport, error) {
	var r core.StatusReport
	if len(data) < 1 {
		return r, ErrBadMessage
	}
	r.Channel = data[0]
	data = data[1:]
	var err error
	if r.Position, err = ReadInt(&data); err != nil {
		return r, fmt.Errorf("%w: position", ErrBadMessage)
	}
	if r.Velocity, err = ReadInt(&data); err != nil {
		return r, fmt.Errorf("%w: velocity", ErrBadMessage)
	}
	if r.FaultFlags, err = ReadUint(&data); err != nil {
		return r, fmt.Errorf("%w: fault flags", ErrBadMessage)
	}
	state, err := ReadUint(&data)
	if err != nil {
		return r, fmt.Errorf("%w: state", ErrBadMessage)
	}
	r.State = core.SafetyState(state)
	return r, nil
}
