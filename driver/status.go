package driver

// Status word bit positions. Fault bits are active low on the wire (the
// driver IC pulls them low when the condition is present); decodeStatus
// normalizes them to active-high booleans.
const (
	stHiZ       = 1 << 0  // Bridges in high impedance
	stBusy      = 1 << 1  // Low while a motion command executes
	stSwClosed  = 1 << 2  // External switch input state
	stSwEvent   = 1 << 3  // Switch turn-on event
	stDir       = 1 << 4  // Current direction
	stMotShift  = 5       // Motion phase, 2 bits
	stMotMask   = 0x3
	stCmdNotOK  = 1 << 7  // Command could not be performed
	stCmdWrong  = 1 << 8  // Command does not exist
	stUVLO      = 1 << 9  // Undervoltage lockout (active low)
	stThWarn    = 1 << 10 // Thermal warning (active low)
	stThShut    = 1 << 11 // Thermal shutdown (active low)
	stOCD       = 1 << 12 // Overcurrent detection (active low)
	stStallA    = 1 << 13 // Stall on bridge A (active low)
	stStallB    = 1 << 14 // Stall on bridge B (active low)
)

// Motion phase values reported in the status word.
const (
	MotionStopped = 0
	MotionAccel   = 1
	MotionDecel   = 2
	MotionCruise  = 3
)

// Status is the decoded per-device status word. Fault fields are active
// high: true means the condition is asserted.
type Status struct {
	HiZ         bool
	Busy        bool
	SwitchOn    bool
	SwitchEvent bool
	Dir         Direction
	Motion      uint8 // MotionStopped..MotionCruise
	CmdError    bool  // Rejected or unknown command

	Undervoltage    bool
	ThermalWarning  bool
	ThermalShutdown bool
	Overcurrent     bool
	StallA          bool
	StallB          bool
}

// decodeStatus converts a raw 16-bit status word into a Status.
func decodeStatus(raw uint16) Status {
	var s Status
	s.HiZ = raw&stHiZ != 0
	s.Busy = raw&stBusy == 0 // active low
	s.SwitchOn = raw&stSwClosed != 0
	s.SwitchEvent = raw&stSwEvent != 0
	if raw&stDir != 0 {
		s.Dir = Forward
	} else {
		s.Dir = Reverse
	}
	s.Motion = uint8(raw>>stMotShift) & stMotMask
	s.CmdError = raw&(stCmdNotOK|stCmdWrong) != 0

	s.Undervoltage = raw&stUVLO == 0
	s.ThermalWarning = raw&stThWarn == 0
	s.ThermalShutdown = raw&stThShut == 0
	s.Overcurrent = raw&stOCD == 0
	s.StallA = raw&stStallA == 0
	s.StallB = raw&stStallB == 0
	return s
}

// Faulted reports whether any driver fault bit is asserted.
func (s Status) Faulted() bool {
	return s.Undervoltage || s.ThermalWarning || s.ThermalShutdown ||
		s.Overcurrent || s.StallA || s.StallB
}

// Stalled reports whether either bridge detected step loss.
func (s Status) Stalled() bool {
	return s.StallA || s.StallB
}
