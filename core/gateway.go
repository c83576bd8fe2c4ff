// Command gateway: the single mutation entry point for new targets and the
// single read entry point for status.
package core

import (
	"errors"
	"fmt"
	"sync"
)

// MotionCommand is the decoded external command: move one channel to an
// absolute position under velocity and acceleration limits.
type MotionCommand struct {
	Channel        uint8
	TargetPosition int32
	TargetVelocity uint32
	AccelLimit     uint32
}

// StatusReport is the per-channel external status, reflecting the last
// completed tick.
type StatusReport struct {
	Channel    uint8
	Position   int32
	Velocity   int32
	FaultFlags uint32
	State      SafetyState
}

// Rejection reasons. Resolved locally; a rejected command never reaches the
// control loop.
var (
	ErrUnknownChannel   = errors.New("gateway: unknown channel")
	ErrVelocityEnvelope = errors.New("gateway: target velocity exceeds envelope")
	ErrAccelEnvelope    = errors.New("gateway: acceleration limit exceeds envelope")
	ErrSafetyLockout    = errors.New("gateway: rejected by safety state")
)

// pendingSlot is one mailbox cell. The latest accepted command per channel
// wins; the loop drains the mailbox at the start of every tick.
type pendingSlot struct {
	cmd MotionCommand
	set bool
}

// Gateway validates incoming commands against the configured envelopes and
// publishes tick snapshots. All methods are safe to call from outside the
// tick goroutine and never block on bus traffic.
type Gateway struct {
	cfg Config
	sup *Supervisor

	mu       sync.Mutex
	pending  [MaxChannels]pendingSlot
	reports  []StatusReport
	faultBuf []FaultRecord
	faults   []FaultRecord
	ticked   bool
}

// NewGateway builds the gateway. The supervisor is consulted for the safety
// gate and fault records.
func NewGateway(cfg Config, sup *Supervisor) *Gateway {
	return &Gateway{
		cfg:      cfg,
		sup:      sup,
		reports:  make([]StatusReport, cfg.Channels),
		faultBuf: make([]FaultRecord, cfg.FaultRingCapacity),
	}
}

// Accept validates cmd and stages it for the next tick. The first accepted
// command arms the Ready to Running transition.
func (g *Gateway) Accept(cmd MotionCommand) error {
	if int(cmd.Channel) >= g.cfg.Channels {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, cmd.Channel)
	}
	if cmd.TargetVelocity > g.cfg.MaxVelocity || cmd.TargetVelocity == 0 {
		return fmt.Errorf("%w: %d counts/s (max %d)",
			ErrVelocityEnvelope, cmd.TargetVelocity, g.cfg.MaxVelocity)
	}
	if cmd.AccelLimit > g.cfg.MaxAcceleration || cmd.AccelLimit == 0 {
		return fmt.Errorf("%w: %d counts/s^2 (max %d)",
			ErrAccelEnvelope, cmd.AccelLimit, g.cfg.MaxAcceleration)
	}
	switch st := g.sup.State(); st {
	case StateEStop, StateShutdown, StateInit:
		return fmt.Errorf("%w: %s", ErrSafetyLockout, st)
	}

	g.mu.Lock()
	g.pending[cmd.Channel] = pendingSlot{cmd: cmd, set: true}
	g.mu.Unlock()

	g.sup.NoteRunning()
	return nil
}

// drainPending hands every staged command to the loop callback and clears
// the mailbox. Called by the control loop at tick start.
func (g *Gateway) drainPending(apply func(cmd MotionCommand)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.pending[:g.cfg.Channels] {
		if g.pending[i].set {
			apply(g.pending[i].cmd)
			g.pending[i].set = false
		}
	}
}

// publish copies the completed tick's channel state into the snapshot the
// external readers see. Called by the control loop at tick end; channels is
// not retained.
func (g *Gateway) publish(channels []MotorChannel, state SafetyState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range channels {
		g.reports[i] = StatusReport{
			Channel:    channels[i].Axis,
			Position:   channels[i].CurrentPosition,
			Velocity:   channels[i].CurrentVelocity,
			FaultFlags: channels[i].FaultFlags,
			State:      state,
		}
	}
	g.faults = g.sup.Faults(g.faultBuf)
	g.ticked = true
}

// Status snapshots all channel reports. It never blocks on the tick and
// always reflects the last completed tick. The dst slice is filled up to the
// channel count; pass nil to allocate.
func (g *Gateway) Status(dst []StatusReport) []StatusReport {
	g.mu.Lock()
	defer g.mu.Unlock()
	if dst == nil {
		dst = make([]StatusReport, len(g.reports))
	}
	n := copy(dst, g.reports)
	if !g.ticked {
		// Before the first tick only the safety state is meaningful.
		for i := range dst[:n] {
			dst[i].State = g.sup.State()
		}
	}
	return dst[:n]
}

// Faults returns the most recent fault records, oldest first, as of the last
// completed tick.
func (g *Gateway) Faults(dst []FaultRecord) []FaultRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	if dst == nil {
		dst = make([]FaultRecord, len(g.faults))
	}
	n := copy(dst, g.faults)
	return dst[:n]
}
