// The fixed-rate control loop: the single driver of the whole core. All
// components execute synchronously inside Tick in a fixed order; nothing in
// here blocks indefinitely and nothing allocates.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stepcore/driver"
	"stepcore/encoder"
)

var ErrTopology = errors.New("core: chain, encoder and config channel counts differ")

// ControlLoop fuses encoder feedback with per-channel motion profiles and
// issues one synchronized chain transaction per tick, gated by the safety
// supervisor.
type ControlLoop struct {
	cfg   Config
	chain *driver.Chain
	enc   *encoder.Link
	sup   *Supervisor
	gw    *Gateway

	channels []MotorChannel
	cmds     []driver.Command
	planned  [MaxChannels]bool

	tick     uint32
	dt       float64
	deadline time.Duration

	// stopIssued and outputsOff sequence the e-stop shutdown over ticks.
	stopIssued bool
	outputsOff bool

	// wasActive tracks the profile edge so a finished move latches one
	// SoftStop before the channel goes quiet.
	wasActive [MaxChannels]bool

	// now is the wall clock, injectable for deadline tests.
	now func() time.Time
}

// NewControlLoop wires the core together. The chain length, encoder channel
// count and configured channel count must agree.
func NewControlLoop(cfg Config, chain *driver.Chain, enc *encoder.Link, sup *Supervisor, gw *Gateway) (*ControlLoop, error) {
	if chain.Devices() != cfg.Channels || enc.Channels() != cfg.Channels {
		return nil, fmt.Errorf("%w: chain=%d encoders=%d config=%d",
			ErrTopology, chain.Devices(), enc.Channels(), cfg.Channels)
	}
	c := &ControlLoop{
		cfg:      cfg,
		chain:    chain,
		enc:      enc,
		sup:      sup,
		gw:       gw,
		channels: make([]MotorChannel, cfg.Channels),
		cmds:     make([]driver.Command, cfg.Channels),
		dt:       cfg.tickSeconds(),
		deadline: cfg.TickPeriod(),
		now:      time.Now,
	}
	for i := range c.channels {
		c.channels[i].Axis = uint8(i)
		c.channels[i].ChainPos = uint8(i)
	}
	return c, nil
}

// SelfTest verifies driver chain and encoder connectivity: every device's
// setup registers are written and read back, and every encoder channel must
// produce one decoded sample. The result resolves the supervisor's Init
// state; a failure locks the core out of actuation.
func (c *ControlLoop) SelfTest(setup driver.Setup) error {
	err := c.chain.ConfigureAll(setup)
	if err == nil {
		for i := range c.channels {
			if _, rerr := c.enc.Read(i, 0); rerr != nil {
				err = rerr
				break
			}
		}
	}
	if serr := c.sup.CompleteSelfTest(err, c.tick); serr != nil && err == nil {
		return serr
	}
	return err
}

// Tick runs one control cycle. Invoked once per timer period; on hardware
// this is the timer interrupt handler, in tests and host rigs the Run loop
// below drives it.
func (c *ControlLoop) Tick() {
	start := c.now()
	c.tick++

	state := c.sup.BeginTick()
	if state == StateEStop || state == StateShutdown {
		c.safeStop(state)
		c.finishTick(start)
		c.gw.publish(c.channels, c.sup.State())
		return
	}
	c.stopIssued = false
	c.outputsOff = false

	// New targets are staged before the encoder reads so the re-plan
	// below uses this tick's measured state. A target accepted during a
	// fault stays latched until motion is allowed again.
	c.gw.drainPending(func(cmd MotionCommand) {
		ch := &c.channels[cmd.Channel]
		ch.TargetPosition = cmd.TargetPosition
		ch.TargetVelocity = cmd.TargetVelocity
		ch.AccelLimit = cmd.AccelLimit
		c.planned[cmd.Channel] = true
	})

	for i := range c.channels {
		ch := &c.channels[i]
		ch.FaultFlags = 0
		s, err := c.enc.Read(i, c.tick)
		if err != nil {
			code := FaultEncoderComm
			if errors.Is(err, encoder.ErrMagnetLost) {
				code = FaultMagnetLost
			}
			c.sup.ReportFault(code, ch.Axis, c.tick)
			ch.FaultFlags |= code.Flag()
			continue
		}
		ch.CurrentPosition = s.Position
		ch.CurrentVelocity = s.Velocity
	}

	state = c.sup.State() // sensor faults may have demoted Running
	if c.anyPlanned() {
		if state == StateReady {
			// A target latched through a fault restarts motion once
			// the recovery window has cleared.
			c.sup.NoteRunning()
			state = c.sup.State()
		}
		if state == StateRunning {
			c.planGroup()
		}
	}
	c.buildCommands(state)

	sts, err := c.chain.SubmitBatch(c.cmds)
	if err != nil {
		c.sup.ReportFault(FaultChainComm, AllChannels, c.tick)
		for i := range c.channels {
			c.channels[i].FaultFlags |= FaultChainComm.Flag()
		}
	} else {
		for i, st := range sts {
			c.reportDriverFaults(st, &c.channels[i])
		}
	}

	c.finishTick(start)
	c.gw.publish(c.channels, c.sup.State())
}

// anyPlanned reports whether any channel holds a target awaiting a plan.
func (c *ControlLoop) anyPlanned() bool {
	for i := range c.channels {
		if c.planned[i] {
			return true
		}
	}
	return false
}

// planGroup plans every channel holding an unplanned target, then stretches
// the group to the slowest member so all axes arrive together.
func (c *ControlLoop) planGroup() {
	var slowest uint32
	for i := range c.channels {
		if !c.planned[i] {
			continue
		}
		ch := &c.channels[i]
		ch.profile.Plan(
			float64(ch.CurrentPosition),
			float64(ch.CurrentVelocity),
			float64(ch.TargetPosition),
			float64(ch.TargetVelocity),
			float64(ch.AccelLimit),
			c.dt,
		)
		if t := ch.profile.PlannedTicks(); t > slowest {
			slowest = t
		}
	}
	for i := range c.channels {
		if c.planned[i] {
			c.channels[i].profile.StretchTo(slowest)
			c.planned[i] = false
		}
	}
}

// buildCommands fills one command per channel for this tick's frame.
func (c *ControlLoop) buildCommands(state SafetyState) {
	for i := range c.channels {
		ch := &c.channels[i]
		if state != StateRunning {
			// Ready, Fault: no motion allowed. An in-flight profile
			// is abandoned and the axis ramps down on the driver's
			// programmed deceleration; a latched target re-plans
			// once the state recovers. The measured velocity check
			// covers a stop that was lost to a bus failure: the stop
			// is re-issued until the shaft is actually still.
			if ch.profile.Active() {
				ch.profile.Cancel()
			}
			if c.wasActive[i] || ch.CurrentVelocity != 0 {
				c.cmds[i] = driver.SoftStopCommand()
				c.wasActive[i] = false
			} else {
				c.cmds[i] = driver.NopCommand()
			}
			continue
		}

		v := ch.profile.Advance()
		switch {
		case v >= 0.5:
			c.cmds[i] = driver.RunCommand(driver.Forward, clampSpeed(v))
			c.wasActive[i] = true
		case v <= -0.5:
			c.cmds[i] = driver.RunCommand(driver.Reverse, clampSpeed(-v))
			c.wasActive[i] = true
		default:
			if c.wasActive[i] {
				c.cmds[i] = driver.SoftStopCommand()
				c.wasActive[i] = false
			} else {
				c.cmds[i] = driver.NopCommand()
			}
		}
	}
}

// safeStop handles the EStop and Shutdown tick path: a hard stop to every
// channel, then driver outputs disabled, then the supervisor completes the
// transition to Shutdown. Bus transactions still run to completion; only
// motion is gone.
func (c *ControlLoop) safeStop(state SafetyState) {
	for i := range c.channels {
		c.channels[i].profile.Cancel()
		c.wasActive[i] = false
		// Targets do not survive an e-stop; they must be re-issued
		// after a manual reset.
		c.planned[i] = false
	}

	var cmd driver.Command
	switch {
	case !c.stopIssued || state == StateShutdown:
		cmd = driver.HardStopCommand()
	case !c.outputsOff:
		// Zero the run current scale: bridges stay powered but deliver
		// no torque, the equivalent of disabling the outputs.
		cmd = driver.SetParamCommand(driver.RegRunCur, 0)
	default:
		cmd = driver.NopCommand()
	}
	for i := range c.cmds {
		c.cmds[i] = cmd
	}
	if _, err := c.chain.SubmitBatch(c.cmds); err != nil {
		c.sup.ReportFault(FaultChainComm, AllChannels, c.tick)
		return
	}

	if state == StateEStop {
		if !c.stopIssued {
			c.stopIssued = true
		} else if !c.outputsOff {
			c.outputsOff = true
			c.sup.BeginShutdown()
		}
	}
}

// finishTick measures the tick wall time and closes it out with the
// supervisor, which feeds the watchdog only when the deadline held.
func (c *ControlLoop) finishTick(start time.Time) {
	elapsed := c.now().Sub(start)
	c.sup.CompleteTick(elapsed <= c.deadline, c.tick)
}

// reportDriverFaults forwards every asserted driver fault bit to the
// supervisor in the same tick. Fault bits are never retried.
func (c *ControlLoop) reportDriverFaults(st driver.Status, ch *MotorChannel) {
	report := func(code FaultCode) {
		c.sup.ReportFault(code, ch.Axis, c.tick)
		ch.FaultFlags |= code.Flag()
	}
	if st.Overcurrent {
		report(FaultOvercurrent)
	}
	if st.Stalled() {
		report(FaultStall)
	}
	if st.ThermalShutdown {
		report(FaultThermalShutdown)
	} else if st.ThermalWarning {
		report(FaultThermalWarning)
	}
	if st.Undervoltage {
		report(FaultUndervoltage)
	}
	if st.CmdError {
		report(FaultDriverCommand)
	}
}

// Ticks returns the number of completed ticks.
func (c *ControlLoop) Ticks() uint32 { return c.tick }

// Run drives the loop from a wall-clock ticker until the context ends. On
// embedded targets the hardware timer calls Tick directly instead.
func (c *ControlLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TickPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// clampSpeed converts a profile velocity magnitude to the driver's speed
// argument range.
func clampSpeed(v float64) uint32 {
	if v >= driver.MaxSpeed {
		return driver.MaxSpeed
	}
	return uint32(v + 0.5)
}
