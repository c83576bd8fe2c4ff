package core

import (
	"errors"
	"fmt"
	"time"
)

// MaxChannels bounds the fixed channel arrays.
const MaxChannels = 8

var ErrConfig = errors.New("core: invalid configuration")

// Config is the immutable system configuration. It is constructed once at
// initialization, validated, and passed by value to each component; nothing
// mutates it afterwards.
type Config struct {
	// TickPeriodMS is the control tick interval in milliseconds. The tick
	// deadline equals the period: a tick that runs past the next tick's
	// start has already failed.
	TickPeriodMS float64 `yaml:"tick_period_ms"`

	// Channels is the number of axes, equal to the daisy-chain length.
	Channels int `yaml:"channels"`

	// Envelope limits for accepted motion commands, in encoder counts.
	MaxVelocity     uint32 `yaml:"max_velocity"`     // counts/s
	MaxAcceleration uint32 `yaml:"max_acceleration"` // counts/s^2

	// MaxCurrent is written to every driver's overcurrent threshold
	// register at init, in device units.
	MaxCurrent uint32 `yaml:"max_current"`

	// EncoderRetryBudget is the number of immediate re-reads after an
	// encoder transport error before the read raises a sensor fault.
	EncoderRetryBudget int `yaml:"encoder_retry_budget"`

	// FaultRecoveryWindowTicks is the number of consecutive healthy ticks
	// after a transient fault before the supervisor returns to Ready.
	FaultRecoveryWindowTicks uint32 `yaml:"fault_recovery_window_ticks"`

	// FaultRingCapacity is the fault record log size; the oldest entry is
	// overwritten beyond it.
	FaultRingCapacity int `yaml:"fault_ring_capacity"`
}

// DefaultConfig returns the baseline configuration: 1 kHz tick, two axes,
// and tunable budgets at their defaults.
func DefaultConfig() Config {
	return Config{
		TickPeriodMS:             1.0,
		Channels:                 2,
		MaxVelocity:              40000,
		MaxAcceleration:          200000,
		MaxCurrent:               8,
		EncoderRetryBudget:       3,
		FaultRecoveryWindowTicks: 250,
		FaultRingCapacity:        32,
	}
}

// TickPeriod returns the tick interval as a duration.
func (c Config) TickPeriod() time.Duration {
	return time.Duration(c.TickPeriodMS * float64(time.Millisecond))
}

// tickSeconds returns the tick interval in seconds for profile math.
func (c Config) tickSeconds() float64 {
	return c.TickPeriodMS / 1000.0
}

// Validate checks configuration correctness. It performs declarative checks
// only and never mutates the configuration.
func (c Config) Validate() error {
	if c.TickPeriodMS <= 0 {
		return fmt.Errorf("%w: tick_period_ms must be positive", ErrConfig)
	}
	if c.Channels < 1 || c.Channels > MaxChannels {
		return fmt.Errorf("%w: channels must be 1..%d", ErrConfig, MaxChannels)
	}
	if c.MaxVelocity == 0 {
		return fmt.Errorf("%w: max_velocity must be positive", ErrConfig)
	}
	if c.MaxAcceleration == 0 {
		return fmt.Errorf("%w: max_acceleration must be positive", ErrConfig)
	}
	if c.EncoderRetryBudget < 0 {
		return fmt.Errorf("%w: encoder_retry_budget must not be negative", ErrConfig)
	}
	if c.FaultRecoveryWindowTicks == 0 {
		return fmt.Errorf("%w: fault_recovery_window_ticks must be positive", ErrConfig)
	}
	if c.FaultRingCapacity < 1 {
		return fmt.Errorf("%w: fault_ring_capacity must be positive", ErrConfig)
	}
	return nil
}
