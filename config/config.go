package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/volteq/flexplan/core/factory"
	"github.com/volteq/flexplan/core/metrics"
	"github.com/volteq/flexplan/core/replan"
	"github.com/volteq/flexplan/infra/monitoring"
	"github.com/volteq/flexplan/infra/mqtt"
)

type Config struct {
	Portfolios []PortfolioConfig    `json:"portfolios"`
	Planner    replan.Config        `json:"planner"`
	Solver     factory.ModuleConfig `json:"solver"`
	MQTT       mqtt.Config          `json:"mqtt"`
	Metrics    metrics.Config       `json:"metrics"`
	History    factory.ModuleConfig `json:"history"`
	Feed       FeedConfig           `json:"feed"`
	API        APIConfig            `json:"api"`
	Telemetry  TelemetryConfig      `json:"telemetry"`
	Sentry     monitoring.Config    `json:"sentry"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("FP_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "fp_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies fallback values on every section that has them.
func (c *Config) SetDefaults() {
	if c.Solver.Type == "" {
		c.Solver.Type = "simplex"
	}
	if c.History.Type == "" {
		c.History.Type = "memory"
	}
	c.Feed.SetDefaults()
}

// Validate checks section consistency after defaults have been applied.
func (c *Config) Validate() error {
	if err := c.Planner.Normalize(); err != nil {
		return err
	}
	if err := c.Feed.Validate(); err != nil {
		return err
	}
	names := make(map[string]bool, len(c.Portfolios))
	for _, p := range c.Portfolios {
		if p.Name == "" {
			return fmt.Errorf("portfolio name must not be empty")
		}
		if names[p.Name] {
			return fmt.Errorf("portfolio %s configured twice", p.Name)
		}
		names[p.Name] = true
	}
	return nil
}
