// Package scenarios replays YAML-defined planning scenarios against the full
// pipeline, from registry to published schedule.
package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/volteq/flexplan/core/model"
)

// AssetDef describes one portfolio asset in a scenario file.
type AssetDef struct {
	ID              string  `yaml:"id"`
	Class           string  `yaml:"class"`
	MinPowerKW      float64 `yaml:"min_power_kw"`
	MaxPowerKW      float64 `yaml:"max_power_kw"`
	MinStateKWh     float64 `yaml:"min_state_kwh,omitempty"`
	MaxStateKWh     float64 `yaml:"max_state_kwh,omitempty"`
	InitialStateKWh float64 `yaml:"initial_state_kwh,omitempty"`
	EfficiencyIn    float64 `yaml:"efficiency_in,omitempty"`
	EfficiencyOut   float64 `yaml:"efficiency_out,omitempty"`
	BaselineKW      float64 `yaml:"baseline_kw,omitempty"`
	RampKW          float64 `yaml:"ramp_kw,omitempty"`
}

// ToModel converts the definition into a domain asset. The flat baseline is
// series data and is seeded separately by the runner.
func (a AssetDef) ToModel() (model.Asset, error) {
	class, err := model.ParseAssetClass(a.Class)
	if err != nil {
		return model.Asset{}, err
	}
	out := model.Asset{
		ID:              a.ID,
		Name:            a.ID,
		Class:           class,
		MinPowerKW:      a.MinPowerKW,
		MaxPowerKW:      a.MaxPowerKW,
		MinStateKWh:     a.MinStateKWh,
		MaxStateKWh:     a.MaxStateKWh,
		InitialStateKWh: a.InitialStateKWh,
		EfficiencyIn:    a.EfficiencyIn,
		EfficiencyOut:   a.EfficiencyOut,
		RampKW:          a.RampKW,
	}
	if err := out.Validate(); err != nil {
		return model.Asset{}, err
	}
	return out, nil
}

// RequirementDef is a flat balancing target held over the whole horizon.
type RequirementDef struct {
	Product      string  `yaml:"product"`
	TargetKW     float64 `yaml:"target_kw"`
	ToleranceKW  float64 `yaml:"tolerance_kw"`
	ToleranceRel float64 `yaml:"tolerance_rel,omitempty"`
}

// StepDef is one scenario step: requirement updates and availability changes
// applied before waiting for the next published schedule.
type StepDef struct {
	Requirements []RequirementDef `yaml:"requirements,omitempty"`
	Unavailable  []string         `yaml:"unavailable,omitempty"`
}

type PlannerDef struct {
	Periods           int `yaml:"periods"`
	ResolutionMinutes int `yaml:"resolution_minutes"`
}

type Expected struct {
	Publications   int     `yaml:"publications"`
	Status         string  `yaml:"status"`
	MaxDeviationKW float64 `yaml:"max_deviation_kw"`
}

type Scenario struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Portfolio   string     `yaml:"portfolio"`
	Planner     PlannerDef `yaml:"planner"`
	Assets      []AssetDef `yaml:"assets"`
	Steps       []StepDef  `yaml:"steps"`
	Expected    Expected   `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
