package driver

import "fmt"

// Setup holds the register values written to every chained device at
// initialization. Values come from the immutable system configuration;
// current scales and thresholds are in device units.
type Setup struct {
	MaxCurrent  uint32 // RegOCDThresh, overcurrent trip level
	RunCurrent  uint32 // RegRunCur
	HoldCurrent uint32 // RegHoldCur
	StallThresh uint32 // RegStallTh
	StepMode    uint32 // RegStepMode microstep selection
	MaxSpeed    uint32 // RegMaxSpeed device-side speed ceiling
}

// setupRegs lists the registers ConfigureAll writes, in write order.
func (s Setup) setupRegs() [6]struct {
	reg Register
	val uint32
} {
	return [6]struct {
		reg Register
		val uint32
	}{
		{RegOCDThresh, s.MaxCurrent},
		{RegRunCur, s.RunCurrent},
		{RegHoldCur, s.HoldCurrent},
		{RegStallTh, s.StallThresh},
		{RegStepMode, s.StepMode},
		{RegMaxSpeed, s.MaxSpeed},
	}
}

// ConfigureAll writes the setup registers to every device and verifies each
// write with a readback. A mismatch means a device is absent, held in reset,
// or the chain is miswired; the error identifies the register and device.
// This is part of the power-on self test and must complete before any motion
// command is issued.
func (c *Chain) ConfigureAll(s Setup) error {
	for _, w := range s.setupRegs() {
		cmds := make([]Command, c.devices)
		for i := range cmds {
			cmds[i] = SetParamCommand(w.reg, w.val)
		}
		if _, err := c.SubmitBatch(cmds); err != nil {
			return fmt.Errorf("driver: configure reg 0x%02x: %w", uint8(w.reg), err)
		}
		got, err := c.ReadParam(w.reg)
		if err != nil {
			return fmt.Errorf("driver: readback reg 0x%02x: %w", uint8(w.reg), err)
		}
		for dev, v := range got {
			if v != w.val {
				return fmt.Errorf("driver: device %d reg 0x%02x wrote 0x%x read 0x%x: %w",
					dev, uint8(w.reg), w.val, v, ErrReadback)
			}
		}
	}
	return nil
}
