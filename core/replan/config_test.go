package replan

import (
	"testing"
	"time"
)

func TestConfigNormalizeDefaults(t *testing.T) {
	var cfg Config
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Periods != 24 || cfg.ResolutionMinutes != 15 {
		t.Fatalf("unexpected horizon defaults: %+v", cfg)
	}
	if cfg.SolveBudget() != 2*time.Second {
		t.Fatalf("solve budget default = %s", cfg.SolveBudget())
	}
	if cfg.CoalesceWindow() != 250*time.Millisecond {
		t.Fatalf("coalesce window default = %s", cfg.CoalesceWindow())
	}
	if cfg.RelaxFactor != 0.1 {
		t.Fatalf("relax factor default = %f", cfg.RelaxFactor)
	}
	if cfg.Combination != "" {
		t.Fatalf("combination must stay unset, got %q", cfg.Combination)
	}
	if cfg.RolloverInterval() != 0 {
		t.Fatalf("rollover must default to disabled")
	}
}

func TestConfigNormalizeRejectsNegative(t *testing.T) {
	cfg := Config{Periods: -1}
	if err := cfg.Normalize(); err == nil {
		t.Fatalf("negative periods accepted")
	}
	cfg = Config{SolveBudgetMS: -5}
	if err := cfg.Normalize(); err == nil {
		t.Fatalf("negative budget accepted")
	}
}

func TestConfigDurations(t *testing.T) {
	cfg := Config{ResolutionMinutes: 30, SolveBudgetMS: 1500, CoalesceWindowMS: 50, RolloverMinutes: 15}
	if cfg.Resolution() != 30*time.Minute {
		t.Fatalf("resolution = %s", cfg.Resolution())
	}
	if cfg.SolveBudget() != 1500*time.Millisecond {
		t.Fatalf("budget = %s", cfg.SolveBudget())
	}
	if cfg.CoalesceWindow() != 50*time.Millisecond {
		t.Fatalf("window = %s", cfg.CoalesceWindow())
	}
	if cfg.RolloverInterval() != 15*time.Minute {
		t.Fatalf("rollover = %s", cfg.RolloverInterval())
	}
}
