package encoder

import (
	"errors"
	"testing"
)

// scriptBus serves a fixed sequence of angle readings, one per Read call,
// with per-reading magnet state and an optional run of transport failures.
type scriptBus struct {
	angles  []uint16
	magnet  []bool // nil means always detected
	idx     int
	failFor int // fail this many ReadReg calls before recovering
	calls   int
}

var errScript = errors.New("bus glitch")

func (b *scriptBus) ReadReg(reg uint8, buf []byte) error {
	b.calls++
	if b.failFor > 0 {
		b.failFor--
		return errScript
	}
	switch reg {
	case regStatus:
		buf[0] = stMagnetOK
		if b.magnet != nil && !b.magnet[b.idx] {
			buf[0] = 0
		}
	case regAngleHi:
		a := b.angles[b.idx]
		buf[0] = byte(a >> 8)
		buf[1] = byte(a)
		if b.idx < len(b.angles)-1 {
			b.idx++
		}
	}
	return nil
}

func TestWrapDelta(t *testing.T) {
	tests := []struct {
		name      string
		now, prev uint16
		want      int32
	}{
		{"still", 100, 100, 0},
		{"forward", 110, 100, 10},
		{"backward", 90, 100, -10},
		{"wrap_up", 2, 4090, 8},
		{"wrap_down", 4090, 2, -8},
		{"half_range", 2048, 0, 2048},
		{"past_half", 2049, 0, -2047},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrapDelta(tt.now, tt.prev); got != tt.want {
				t.Errorf("WrapDelta(%d, %d) = %d, want %d", tt.now, tt.prev, got, tt.want)
			}
		})
	}
}

func TestReadWrapSequence(t *testing.T) {
	bus := &scriptBus{angles: []uint16{4090, 4095, 2, 10}}
	l := NewLink([]RegBus{bus}, 0, 0.001)

	wantPos := []int32{4090, 4095, 4098, 4106}
	wantVel := []int32{0, 5000, 7000, 8000}
	for i := range wantPos {
		s, err := l.Read(0, uint32(i))
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if s.Position != wantPos[i] {
			t.Errorf("read %d: position %d, want %d", i, s.Position, wantPos[i])
		}
		if s.Velocity != wantVel[i] {
			t.Errorf("read %d: velocity %d, want %d", i, s.Velocity, wantVel[i])
		}
		if !s.MagnetOK {
			t.Errorf("read %d: magnet reported lost", i)
		}
	}
}

func TestReadMultiTurn(t *testing.T) {
	// Two full forward revolutions in large steps never loses counts.
	angles := []uint16{0}
	for i := 1; i <= 8; i++ {
		angles = append(angles, uint16(i*1024%AngleRange))
	}
	bus := &scriptBus{angles: angles}
	l := NewLink([]RegBus{bus}, 0, 0.001)

	var last Sample
	for i := range angles {
		s, err := l.Read(0, uint32(i))
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		last = s
	}
	if want := int32(2 * AngleRange); last.Position != want {
		t.Errorf("position after two turns = %d, want %d", last.Position, want)
	}
}

func TestReadMagnetSingleMiss(t *testing.T) {
	bus := &scriptBus{
		angles: []uint16{100, 100, 108},
		magnet: []bool{true, false, true},
	}
	l := NewLink([]RegBus{bus}, 0, 0.001)

	if _, err := l.Read(0, 0); err != nil {
		t.Fatalf("seed read: %v", err)
	}

	// One miss coasts on the last-known-good position.
	s, err := l.Read(0, 1)
	if err != nil {
		t.Fatalf("tolerated miss: %v", err)
	}
	if s.MagnetOK {
		t.Error("tolerated miss must report MagnetOK false")
	}
	if s.Position != 100 || s.Velocity != 0 {
		t.Errorf("tolerated miss: position %d velocity %d, want 100 and 0", s.Position, s.Velocity)
	}

	// Recovery resumes tracking from the held position.
	s, err = l.Read(0, 2)
	if err != nil {
		t.Fatalf("recovery read: %v", err)
	}
	if s.Position != 108 || !s.MagnetOK {
		t.Errorf("recovery: position %d magnet %v, want 108 and true", s.Position, s.MagnetOK)
	}
	// The 8-count delta spans the two ticks since the last good sample.
	if s.Velocity != 4000 {
		t.Errorf("recovery velocity = %d, want 4000", s.Velocity)
	}
}

func TestReadMagnetLost(t *testing.T) {
	bus := &scriptBus{
		angles: []uint16{100, 100, 100},
		magnet: []bool{true, false, false},
	}
	l := NewLink([]RegBus{bus}, 0, 0.001)

	if _, err := l.Read(0, 0); err != nil {
		t.Fatalf("seed read: %v", err)
	}
	if _, err := l.Read(0, 1); err != nil {
		t.Fatalf("first miss must be tolerated: %v", err)
	}
	if _, err := l.Read(0, 2); !errors.Is(err, ErrMagnetLost) {
		t.Errorf("second miss: got %v, want ErrMagnetLost", err)
	}
}

func TestReadMagnetLostNoHistory(t *testing.T) {
	bus := &scriptBus{angles: []uint16{100}, magnet: []bool{false}}
	l := NewLink([]RegBus{bus}, 0, 0.001)

	// Without a previous good sample there is nothing to coast on.
	if _, err := l.Read(0, 0); !errors.Is(err, ErrMagnetLost) {
		t.Errorf("got %v, want ErrMagnetLost", err)
	}
}

func TestReadRetryWithinBudget(t *testing.T) {
	bus := &scriptBus{angles: []uint16{1234}, failFor: 2}
	l := NewLink([]RegBus{bus}, 3, 0.001)

	s, err := l.Read(0, 0)
	if err != nil {
		t.Fatalf("read with transient failures: %v", err)
	}
	if s.Raw != 1234 {
		t.Errorf("raw = %d, want 1234", s.Raw)
	}
}

func TestReadRetryBudgetExhausted(t *testing.T) {
	bus := &scriptBus{angles: []uint16{1234}, failFor: 100}
	l := NewLink([]RegBus{bus}, 3, 0.001)

	_, err := l.Read(0, 0)
	if !errors.Is(err, ErrRetryBudget) {
		t.Errorf("got %v, want ErrRetryBudget", err)
	}
	// One initial attempt plus three retries, each failing on the first
	// register access.
	if bus.calls != 4 {
		t.Errorf("bus touched %d times, want 4", bus.calls)
	}
}

func TestReadBadChannel(t *testing.T) {
	l := NewLink([]RegBus{&scriptBus{angles: []uint16{0}}}, 0, 0.001)
	if _, err := l.Read(1, 0); !errors.Is(err, ErrBadChannel) {
		t.Errorf("got %v, want ErrBadChannel", err)
	}
	if _, err := l.Read(-1, 0); !errors.Is(err, ErrBadChannel) {
		t.Errorf("got %v, want ErrBadChannel", err)
	}
}

func TestReadChannelsIsolated(t *testing.T) {
	good := &scriptBus{angles: []uint16{500}}
	bad := &scriptBus{angles: []uint16{500}, failFor: 100}
	l := NewLink([]RegBus{bad, good}, 1, 0.001)

	if _, err := l.Read(0, 0); err == nil {
		t.Fatal("failing channel must error")
	}
	if _, err := l.Read(1, 0); err != nil {
		t.Errorf("healthy channel affected by failing one: %v", err)
	}
}
