package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stepcore/core"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg != core.DefaultConfig() {
		t.Errorf("empty input = %+v, want the defaults", cfg)
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
tick_period_ms: 0.5
channels: 4
max_velocity: 60000
fault_ring_capacity: 16
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.TickPeriodMS != 0.5 || cfg.Channels != 4 || cfg.MaxVelocity != 60000 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.FaultRingCapacity != 16 {
		t.Errorf("fault_ring_capacity = %d, want 16", cfg.FaultRingCapacity)
	}
	// Untouched keys keep their defaults.
	if want := core.DefaultConfig().MaxAcceleration; cfg.MaxAcceleration != want {
		t.Errorf("max_acceleration = %d, want default %d", cfg.MaxAcceleration, want)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"zero_tick", "tick_period_ms: 0"},
		{"negative_tick", "tick_period_ms: -1"},
		{"zero_channels", "channels: 0"},
		{"too_many_channels", "channels: 9"},
		{"zero_velocity", "max_velocity: 0"},
		{"zero_accel", "max_acceleration: 0"},
		{"negative_retries", "encoder_retry_budget: -1"},
		{"zero_window", "fault_recovery_window_ticks: 0"},
		{"zero_ring", "fault_ring_capacity: 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.in)); !errors.Is(err, core.ErrConfig) {
				t.Errorf("got %v, want ErrConfig", err)
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := Parse([]byte("channels: [not a number")); err == nil {
		t.Error("malformed YAML parsed without error")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stepcore.yaml")
	if err := os.WriteFile(path, []byte("channels: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channels != 3 {
		t.Errorf("channels = %d, want 3", cfg.Channels)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file loaded without error")
	}
}
