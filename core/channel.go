package core

// MotorChannel is the per-axis state. Owned exclusively by the control loop;
// the gateway hands over new targets through its mailbox, never by touching
// a channel directly, and reads state only from the published snapshot.
type MotorChannel struct {
	Axis     uint8 // axis identifier
	ChainPos uint8 // position in the daisy chain, 0 closest to controller

	TargetPosition int32
	TargetVelocity uint32 // counts/s
	AccelLimit     uint32 // counts/s^2

	CurrentPosition int32 // from the last decoded encoder sample
	CurrentVelocity int32 // counts/s, wraparound-aware estimate

	FaultFlags uint32

	profile Profile
}

// Phase returns the channel's motion phase.
func (m *MotorChannel) Phase() Phase {
	return m.profile.Phase()
}
