// Per-axis absolute angle acquisition and velocity estimation
package encoder

import (
	"errors"
	"fmt"
)

var (
	ErrBadChannel  = errors.New("encoder: unknown channel")
	ErrRetryBudget = errors.New("encoder: transport retry budget exhausted")
	ErrMagnetLost  = errors.New("encoder: magnet not detected")
)

// Sample is one decoded encoder reading. A new sample supersedes the
// previous one; the previous raw angle is only retained internally for the
// wraparound-aware velocity estimate.
type Sample struct {
	Raw      uint16 // absolute angle, 0..4095
	Ticks    uint32 // control tick of the read
	Position int32  // continuous multi-turn position in counts
	Velocity int32  // counts per second, wraparound aware
	MagnetOK bool   // false while coasting on a single tolerated miss
}

// channelState is the retained per-axis read state.
type channelState struct {
	prev     Sample
	havePrev bool
	stale    uint8 // consecutive reads served from last-known-good
}

// Link reads all encoder channels. Each channel has its own RegBus; Link
// itself keeps no shared bus state, so a failure on one channel never blocks
// another.
type Link struct {
	buses       []RegBus
	retryBudget int
	tickPeriod  float64 // seconds
	state       []channelState
	buf         [2]byte
	sbuf        [1]byte
}

// NewLink builds the encoder link for a fixed channel set. retryBudget is
// the number of immediate re-reads attempted after a transport error before
// the read fails; tickPeriod is the control tick interval in seconds.
func NewLink(buses []RegBus, retryBudget int, tickPeriod float64) *Link {
	return &Link{
		buses:       buses,
		retryBudget: retryBudget,
		tickPeriod:  tickPeriod,
		state:       make([]channelState, len(buses)),
	}
}

// Channels returns the fixed channel count.
func (l *Link) Channels() int { return len(l.buses) }

// Read acquires one sample for the channel at the given control tick.
//
// Transport errors are retried up to the budget. A missing magnet is
// tolerated for a single tick by serving the last-known-good position with
// MagnetOK false and zero velocity; a second consecutive miss fails the
// read. Position is never extrapolated.
func (l *Link) Read(channel int, nowTicks uint32) (Sample, error) {
	if channel < 0 || channel >= len(l.buses) {
		return Sample{}, ErrBadChannel
	}
	st := &l.state[channel]

	raw, magnet, err := l.readRaw(channel)
	if err != nil {
		return Sample{}, fmt.Errorf("encoder: channel %d: %w", channel, err)
	}

	if !magnet {
		st.stale++
		if st.stale >= 2 || !st.havePrev {
			return Sample{}, fmt.Errorf("encoder: channel %d: %w", channel, ErrMagnetLost)
		}
		s := st.prev
		s.Ticks = nowTicks
		s.Velocity = 0
		s.MagnetOK = false
		return s, nil
	}
	st.stale = 0

	s := Sample{Raw: raw, Ticks: nowTicks, MagnetOK: true}
	if st.havePrev {
		delta := WrapDelta(raw, st.prev.Raw)
		// A tolerated miss widens the gap to the last good sample; the
		// delta spans that many ticks, not one.
		gap := nowTicks - st.prev.Ticks
		if gap == 0 {
			gap = 1
		}
		s.Position = st.prev.Position + delta
		s.Velocity = int32(float64(delta) / (float64(gap) * l.tickPeriod))
	} else {
		s.Position = int32(raw)
	}
	st.prev = s
	st.havePrev = true
	return s, nil
}

// readRaw reads the status and angle registers with bounded retries.
func (l *Link) readRaw(channel int) (raw uint16, magnet bool, err error) {
	bus := l.buses[channel]
	for attempt := 0; ; attempt++ {
		err = bus.ReadReg(regStatus, l.sbuf[:])
		if err == nil {
			err = bus.ReadReg(regAngleHi, l.buf[:])
		}
		if err == nil {
			raw = uint16(l.buf[0]&0x0F)<<8 | uint16(l.buf[1])
			magnet = l.sbuf[0]&stMagnetOK != 0
			return raw, magnet, nil
		}
		if attempt >= l.retryBudget {
			return 0, false, fmt.Errorf("%w: %w", ErrRetryBudget, err)
		}
	}
}

// WrapDelta returns the shortest signed angular difference between two raw
// angles on the 4096-count circle. A jump larger than half the range is
// taken the short way around: 4090 to 2 is +8, not -4088.
func WrapDelta(now, prev uint16) int32 {
	d := int32(now) - int32(prev)
	if d > halfRange {
		d -= AngleRange
	} else if d < -halfRange {
		d += AngleRange
	}
	return d
}
