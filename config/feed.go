package config

import (
	"fmt"
	"time"

	"github.com/volteq/flexplan/auth"
)

// FeedConfig selects where requirement and baseline forecasts come from.
type FeedConfig struct {
	// Mode is "mock" for the internal generator or "http" for a polling
	// client against a market operator API.
	Mode   string           `json:"mode"`
	Client FeedClientConfig `json:"client"`
	Mock   FeedMockConfig   `json:"mock"`
}

// FeedClientConfig configures the HTTP polling client.
type FeedClientConfig struct {
	APIURL              string    `json:"api_url"`
	PollIntervalSeconds int       `json:"poll_interval_seconds"`
	Auth                auth.Conf `json:"auth"`
}

// PollInterval returns the polling cadence.
func (c FeedClientConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// FeedMockConfig configures the internal forecast generator.
type FeedMockConfig struct {
	MinIntervalSeconds int     `json:"min_interval_seconds"`
	MaxIntervalSeconds int     `json:"max_interval_seconds"`
	JitterPct          float64 `json:"jitter_pct"`
	Seed               int64   `json:"seed"`

	Requirements []MockRequirementConfig `json:"requirements"`
	Baselines    []MockBaselineConfig    `json:"baselines"`
}

// MockRequirementConfig shapes one generated product trajectory.
type MockRequirementConfig struct {
	Portfolio    string  `json:"portfolio"`
	Product      string  `json:"product"`
	BaseTargetKW float64 `json:"base_target_kw"`
	AmplitudeKW  float64 `json:"amplitude_kw"`
	ToleranceKW  float64 `json:"tolerance_kw"`
	ToleranceRel float64 `json:"tolerance_rel"`
}

// MockBaselineConfig shapes one generated asset baseline.
type MockBaselineConfig struct {
	Portfolio   string  `json:"portfolio"`
	AssetID     string  `json:"asset_id"`
	BaseKW      float64 `json:"base_kw"`
	AmplitudeKW float64 `json:"amplitude_kw"`
}

// SetDefaults applies fallback values for optional fields.
func (c *FeedConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "mock"
	}
	if c.Mock.MinIntervalSeconds <= 0 {
		c.Mock.MinIntervalSeconds = 120
	}
	if c.Mock.MaxIntervalSeconds <= 0 {
		c.Mock.MaxIntervalSeconds = 300
	}
	if c.Mock.JitterPct == 0 {
		c.Mock.JitterPct = 0.15
	}
}

// Validate checks the configuration ranges.
func (c FeedConfig) Validate() error {
	switch c.Mode {
	case "mock", "":
	case "http":
		if c.Client.APIURL == "" {
			return fmt.Errorf("feed mode http requires client.api_url")
		}
	default:
		return fmt.Errorf("unknown feed mode %s", c.Mode)
	}
	if c.Mock.MinIntervalSeconds < 0 || c.Mock.MaxIntervalSeconds < 0 {
		return fmt.Errorf("interval seconds must be positive")
	}
	if c.Mock.MinIntervalSeconds > c.Mock.MaxIntervalSeconds {
		return fmt.Errorf("min_interval_seconds > max_interval_seconds")
	}
	for _, r := range c.Mock.Requirements {
		if r.Portfolio == "" || r.Product == "" {
			return fmt.Errorf("mock requirement needs portfolio and product")
		}
		if r.ToleranceKW < 0 || r.ToleranceRel < 0 {
			return fmt.Errorf("mock requirement %s/%s: tolerances must not be negative", r.Portfolio, r.Product)
		}
	}
	for _, b := range c.Mock.Baselines {
		if b.Portfolio == "" || b.AssetID == "" {
			return fmt.Errorf("mock baseline needs portfolio and asset_id")
		}
	}
	return nil
}
