// Safety supervision: fault aggregation, the global safety state machine,
// and watchdog feeding policy.
package core

import (
	"errors"
	"sync"
	"sync/atomic"
)

// SafetyState is the global actuation gate. Single writer (the supervisor),
// read by every other component.
type SafetyState uint32

const (
	StateInit SafetyState = iota
	StateReady
	StateRunning
	StateFault
	StateEStop
	StateShutdown
)

func (s SafetyState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateFault:
		return "fault"
	case StateEStop:
		return "estop"
	case StateShutdown:
		return "shutdown"
	}
	return "unknown"
}

// WatchdogDriver is the hardware watchdog contract. Feed must be called
// within the hardware timeout window or the device resets, independent of
// any software state.
type WatchdogDriver interface {
	Feed()
}

var (
	ErrResetState   = errors.New("safety: manual reset only valid from estop or shutdown")
	ErrSelfTestDone = errors.New("safety: self test already completed")
)

// Supervisor owns the SafetyState, the fault record log, and the watchdog
// feeding decision. State transitions happen only on the tick path except
// for the asynchronous e-stop latch and the external manual reset.
type Supervisor struct {
	state atomic.Uint32
	estop atomic.Bool // latched from interrupt context, drained by BeginTick

	watchdog       WatchdogDriver
	recoveryWindow uint32

	mu           sync.Mutex // guards ring and the transition bookkeeping below
	ring         *faultRing
	healthyTicks uint32
	tickFaulted  bool
	lastFault    FaultRecord
}

// NewSupervisor builds the supervisor in Init state. watchdog may be nil in
// test rigs without hardware supervision.
func NewSupervisor(cfg Config, watchdog WatchdogDriver) *Supervisor {
	s := &Supervisor{
		watchdog:       watchdog,
		recoveryWindow: cfg.FaultRecoveryWindowTicks,
		ring:           newFaultRing(cfg.FaultRingCapacity),
	}
	s.state.Store(uint32(StateInit))
	return s
}

// State returns the current safety state. Never blocks.
func (s *Supervisor) State() SafetyState {
	return SafetyState(s.state.Load())
}

// SignalEStop latches the emergency stop request. Safe to call from any
// goroutine or interrupt context; no stop logic runs here. The next tick
// observes the latch before doing anything else, so the stop command goes
// out within one tick period.
func (s *Supervisor) SignalEStop() {
	s.estop.Store(true)
}

// CompleteSelfTest resolves the Init state. A nil result moves to Ready; an
// error records the fault and latches the e-stop, since a rig that fails
// self test must never actuate.
func (s *Supervisor) CompleteSelfTest(result error, nowTicks uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateInit {
		return ErrSelfTestDone
	}
	if result != nil {
		s.recordLocked(FaultChainComm, AllChannels, nowTicks)
		s.estop.Store(true)
		return result
	}
	s.state.Store(uint32(StateReady))
	return nil
}

// NoteRunning moves Ready to Running on the first accepted motion command.
func (s *Supervisor) NoteRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateReady {
		s.state.Store(uint32(StateRunning))
	}
}

// BeginTick is called first in every tick. It drains the e-stop latch, which
// wins over every state except an already completed Shutdown, and returns
// the state the tick must honor.
func (s *Supervisor) BeginTick() SafetyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickFaulted = false
	if s.estop.Swap(false) {
		if st := s.State(); st != StateShutdown {
			s.state.Store(uint32(StateEStop))
		}
	}
	return s.State()
}

// ReportFault records a fault and applies the state consequence: transient
// faults demote Running to Fault, fatal ones latch the e-stop for the next
// tick. No fault is ever silently dropped.
func (s *Supervisor) ReportFault(code FaultCode, channel uint8, nowTicks uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(code, channel, nowTicks)
}

func (s *Supervisor) recordLocked(code FaultCode, channel uint8, nowTicks uint32) {
	rec := FaultRecord{
		Code:     code,
		Channel:  channel,
		Severity: severityOf(code),
		Ticks:    nowTicks,
	}
	s.ring.push(rec)
	s.lastFault = rec
	s.tickFaulted = true
	s.healthyTicks = 0

	if rec.Severity == SeverityFatal {
		s.estop.Store(true)
		return
	}
	if st := s.State(); st == StateRunning {
		s.state.Store(uint32(StateFault))
	}
}

// BeginShutdown completes the e-stop sequence once the stop commands have
// gone out and the driver outputs are disabled.
func (s *Supervisor) BeginShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateEStop {
		s.state.Store(uint32(StateShutdown))
	}
}

// ManualReset is the only path out of EStop or Shutdown, invoked explicitly
// from outside the core. It rearms to Ready; targets and profiles are gone
// and must be re-issued.
func (s *Supervisor) ManualReset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.State() {
	case StateEStop, StateShutdown:
		s.estop.Store(false)
		s.healthyTicks = 0
		s.state.Store(uint32(StateReady))
		return nil
	}
	return ErrResetState
}

// CompleteTick closes the tick. The watchdog is fed only when the tick met
// its deadline, so a stuck or slow loop starves it into a hardware reset. A
// missed deadline is itself a timing fault, fatal to Running. Healthy ticks
// accumulate toward transient fault recovery.
func (s *Supervisor) CompleteTick(withinDeadline bool, nowTicks uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !withinDeadline {
		s.recordLocked(FaultTiming, AllChannels, nowTicks)
		return
	}

	if !s.tickFaulted && s.State() == StateFault {
		s.healthyTicks++
		if s.healthyTicks >= s.recoveryWindow &&
			s.lastFault.Severity == SeverityTransient {
			s.state.Store(uint32(StateReady))
			s.healthyTicks = 0
		}
	}

	if s.watchdog != nil {
		s.watchdog.Feed()
	}
}

// Faults copies the retained fault records, oldest first, into dst.
func (s *Supervisor) Faults(dst []FaultRecord) []FaultRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.snapshot(dst)
}
