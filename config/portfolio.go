package config

import (
	"fmt"
	"time"

	"github.com/volteq/flexplan/core/model"
)

// PortfolioConfig declares one balancing group and the assets it starts with.
// Assets listed here seed the registry; the feed may amend them at runtime.
type PortfolioConfig struct {
	Name   string        `json:"name"`
	Assets []AssetConfig `json:"assets"`
}

// AssetConfig mirrors model.Asset in a config-file friendly shape.
type AssetConfig struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Class string `json:"class"`

	MinPowerKW float64 `json:"min_power_kw"`
	MaxPowerKW float64 `json:"max_power_kw"`

	Availability []WindowConfig      `json:"availability"`
	BaselineKW   []SeriesPointConfig `json:"baseline_kw"`
	CostPerKWh   []SeriesPointConfig `json:"cost_per_kwh"`

	MinStateKWh     float64 `json:"min_state_kwh"`
	MaxStateKWh     float64 `json:"max_state_kwh"`
	InitialStateKWh float64 `json:"initial_state_kwh"`
	EfficiencyIn    float64 `json:"efficiency_in"`
	EfficiencyOut   float64 `json:"efficiency_out"`

	RampKW float64 `json:"ramp_kw"`
}

// WindowConfig is a half-open availability interval in RFC3339 timestamps.
type WindowConfig struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SeriesPointConfig is one forecast sample keyed by period start.
type SeriesPointConfig struct {
	Start time.Time `json:"start"`
	Value float64   `json:"value"`
}

// ToModel converts the config shape into a domain asset.
func (a AssetConfig) ToModel() (model.Asset, error) {
	class, err := model.ParseAssetClass(a.Class)
	if err != nil {
		return model.Asset{}, fmt.Errorf("asset %s: %w", a.ID, err)
	}
	out := model.Asset{
		ID:              a.ID,
		Name:            a.Name,
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
	for _, w := range a.Availability {
		out.Availability = append(out.Availability, model.Window{Start: w.Start, End: w.End})
	}
	for _, p := range a.BaselineKW {
		out.BaselineKW = append(out.BaselineKW, model.SeriesPoint{Start: p.Start, Value: p.Value})
	}
	for _, p := range a.CostPerKWh {
		out.CostPerKWh = append(out.CostPerKWh, model.SeriesPoint{Start: p.Start, Value: p.Value})
	}
	if err := out.Validate(); err != nil {
		return model.Asset{}, err
	}
	return out, nil
}

// BuildPortfolios converts the configured portfolios into domain assets,
// keyed by portfolio name.
func BuildPortfolios(portfolios []PortfolioConfig) (map[string][]model.Asset, error) {
	out := make(map[string][]model.Asset, len(portfolios))
	for _, p := range portfolios {
		assets := make([]model.Asset, 0, len(p.Assets))
		for _, a := range p.Assets {
			m, err := a.ToModel()
			if err != nil {
				return nil, fmt.Errorf("portfolio %s: %w", p.Name, err)
			}
			assets = append(assets, m)
		}
		out[p.Name] = assets
	}
	return out, nil
}
