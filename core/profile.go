// Trapezoidal velocity profiles
// A profile is planned once (and re-planned when a new target arrives) and
// then evaluated per tick from its closed form, so the commanded velocity
// never drifts from discretization error.
package core

import "math"

// Phase is the per-channel motion phase while the global state is Running.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAccelerating
	PhaseCruising
	PhaseDecelerating
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAccelerating:
		return "accelerating"
	case PhaseCruising:
		return "cruising"
	case PhaseDecelerating:
		return "decelerating"
	}
	return "unknown"
}

// Profile is one channel's planned move. Two legs: an optional leading brake
// ramp (when a re-plan catches the axis moving away from, or too fast
// toward, the new target) followed by a trapezoid toward the target. The
// trapezoid degenerates to a triangle when the distance is too short to
// reach cruise speed.
type Profile struct {
	dt     float64
	active bool

	elapsed uint32
	total   uint32

	// brake leg: linear ramp from vInit to zero over brakeT seconds
	brakeT float64
	vInit  float64 // signed

	// trapezoid leg, starting after the brake leg
	dir   float64 // +1 toward positive counts
	v0    float64 // speed at leg start, toward target
	vc    float64 // cruise speed actually reached
	accel float64
	ta    float64 // first ramp time, up or down to vc
	tc    float64 // cruise time
	td    float64 // deceleration time
}

// Plan computes the profile from the current measured state. startVel is the
// measured velocity, not zero: a re-plan mid-move must not command a
// velocity discontinuity.
func (p *Profile) Plan(startPos, startVel, target, cruise, accel, dt float64) {
	p.dt = dt
	p.accel = accel
	p.elapsed = 0

	dist := target - startPos
	d := math.Abs(dist)
	dir := 1.0
	if dist < 0 {
		dir = -1
	}

	v0t := startVel * dir
	if v0t >= 0 && v0t*v0t/(2*accel) <= d {
		// Already moving the right way and able to stop in time.
		p.brakeT = 0
		p.vInit = 0
		p.v0 = v0t
	} else {
		// Brake to a stop first, then run a fresh trapezoid from the
		// projected stop point. Covers both a reversed target and an
		// unavoidable overshoot.
		p.brakeT = math.Abs(startVel) / accel
		p.vInit = startVel
		brakeDist := startVel * math.Abs(startVel) / (2 * accel)
		dist = target - (startPos + brakeDist)
		d = math.Abs(dist)
		dir = 1.0
		if dist < 0 {
			dir = -1
		}
		p.v0 = 0
	}
	p.dir = dir
	p.planTrapezoid(d, cruise)

	p.total = uint32(math.Ceil(p.duration() / dt))
	p.active = p.total > 0
	if !p.active {
		p.elapsed = 0
	}
}

// planTrapezoid fills the trapezoid leg for distance d at the given cruise
// ceiling, splitting into triangle and trapezoid cases.
func (p *Profile) planTrapezoid(d, cruise float64) {
	a := p.accel
	peak := math.Sqrt(a*d + p.v0*p.v0/2)
	vc := cruise
	if peak < vc {
		// Triangle: full speed is never reached.
		vc = peak
	}
	p.vc = vc
	if vc <= 0 {
		p.ta, p.tc, p.td = 0, 0, 0
		return
	}
	// A cruise ceiling below the entry speed turns the first leg into a
	// ramp down to the new ceiling; the absolute forms cover both slopes.
	p.ta = math.Abs(vc-p.v0) / a
	p.td = vc / a
	da := math.Abs(vc*vc-p.v0*p.v0) / (2 * a)
	dd := vc * vc / (2 * a)
	p.tc = (d - da - dd) / vc
	if p.tc < 0 {
		p.tc = 0
	}
}

// duration returns the continuous profile duration in seconds.
func (p *Profile) duration() float64 {
	return p.brakeT + p.ta + p.tc + p.td
}

// PlannedTicks returns the predicted number of ticks to reach the target.
func (p *Profile) PlannedTicks() uint32 { return p.total }

// Active reports whether the profile still has ticks to run.
func (p *Profile) Active() bool { return p.active }

// StretchTo re-plans the trapezoid leg so the whole profile lasts the given
// number of ticks, by lowering the cruise speed. Used to time-synchronize a
// multi-axis group: every axis stretches to the slowest axis's duration so
// all arrive together. Durations shorter than the current plan are ignored.
func (p *Profile) StretchTo(ticks uint32) {
	if !p.active || ticks <= p.total {
		return
	}
	want := float64(ticks) * p.dt

	// The continuous duration is monotonic in the cruise speed, so a
	// bisection on vc converges quickly and avoids the quadratic's edge
	// cases with a nonzero entry speed.
	d := p.legDistance()
	lo := math.Nextafter(0, 1)
	hi := p.vc
	for i := 0; i < 48; i++ {
		mid := (lo + hi) / 2
		p.planTrapezoidAt(d, mid)
		if p.duration() < want {
			hi = mid
		} else {
			lo = mid
		}
	}
	p.total = uint32(math.Ceil(p.duration() / p.dt))
}

// legDistance recovers the trapezoid leg's distance from its timing.
func (p *Profile) legDistance() float64 {
	da := math.Abs(p.vc*p.vc-p.v0*p.v0) / (2 * p.accel)
	dd := p.vc * p.vc / (2 * p.accel)
	return da + dd + p.tc*p.vc
}

// planTrapezoidAt is planTrapezoid with an explicit cruise speed, preserving
// the leg distance.
func (p *Profile) planTrapezoidAt(d, vc float64) {
	a := p.accel
	peak := math.Sqrt(a*d + p.v0*p.v0/2)
	if vc > peak {
		vc = peak
	}
	p.vc = vc
	if vc <= 0 {
		p.ta, p.tc, p.td = 0, 0, 0
		return
	}
	p.ta = math.Abs(vc-p.v0) / a
	p.td = vc / a
	da := math.Abs(vc*vc-p.v0*p.v0) / (2 * a)
	dd := vc * vc / (2 * a)
	p.tc = (d - da - dd) / vc
	if p.tc < 0 {
		p.tc = 0
	}
}

// Cancel abandons the profile; the next Advance returns zero.
func (p *Profile) Cancel() {
	p.active = false
	p.elapsed = 0
	p.total = 0
}

// Advance evaluates the next tick's commanded velocity, in signed counts per
// second. The profile is sampled at the middle of the tick interval so the
// integrated distance matches the planned distance to second order.
func (p *Profile) Advance() float64 {
	if !p.active {
		return 0
	}
	t := (float64(p.elapsed) + 0.5) * p.dt
	v := p.velocityAt(t)
	p.elapsed++
	if p.elapsed >= p.total {
		p.active = false
	}
	return v
}

// velocityAt returns the signed profile velocity at time t since plan.
func (p *Profile) velocityAt(t float64) float64 {
	if t < p.brakeT {
		if p.vInit >= 0 {
			return p.vInit - p.accel*t
		}
		return p.vInit + p.accel*t
	}
	t -= p.brakeT
	switch {
	case t < p.ta:
		if p.vc >= p.v0 {
			return p.dir * (p.v0 + p.accel*t)
		}
		return p.dir * (p.v0 - p.accel*t)
	case t < p.ta+p.tc:
		return p.dir * p.vc
	case t < p.ta+p.tc+p.td:
		return p.dir * (p.vc - p.accel*(t-p.ta-p.tc))
	}
	return 0
}

// Phase reports the motion phase at the current tick.
func (p *Profile) Phase() Phase {
	if !p.active {
		return PhaseIdle
	}
	t := float64(p.elapsed) * p.dt
	if t < p.brakeT {
		return PhaseDecelerating
	}
	t -= p.brakeT
	switch {
	case t < p.ta:
		if p.vc >= p.v0 {
			return PhaseAccelerating
		}
		return PhaseDecelerating
	case t < p.ta+p.tc:
		return PhaseCruising
	}
	return PhaseDecelerating
}
