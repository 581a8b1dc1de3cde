package feed

import (
	"fmt"
	"time"

	"github.com/volteq/flexplan/core/model"
)

// SamplePayload is one per-period forecast sample keyed by period start.
type SamplePayload struct {
	Start time.Time `json:"start"`
	KW    float64   `json:"kw"`
}

// RequirementPayload is one product trajectory as delivered by the feed.
type RequirementPayload struct {
	Portfolio    string          `json:"portfolio"`
	Product      string          `json:"product"`
	ToleranceKW  float64         `json:"tolerance_kw"`
	ToleranceRel float64         `json:"tolerance_rel"`
	TargetKW     []SamplePayload `json:"target_kw"`
}

// Validate checks that the requirement payload is usable.
func (p RequirementPayload) Validate() error {
	if p.Portfolio == "" {
		return fmt.Errorf("requirement payload without portfolio")
	}
	if p.Product == "" {
		return fmt.Errorf("requirement payload without product")
	}
	if len(p.TargetKW) == 0 {
		return fmt.Errorf("requirement %s/%s: empty trajectory", p.Portfolio, p.Product)
	}
	if p.ToleranceKW < 0 || p.ToleranceRel < 0 {
		return fmt.Errorf("requirement %s/%s: negative tolerance", p.Portfolio, p.Product)
	}
	return nil
}

// ToRequirement converts the payload into a domain requirement.
func (p RequirementPayload) ToRequirement() (model.Requirement, error) {
	if err := p.Validate(); err != nil {
		return model.Requirement{}, err
	}
	return model.Requirement{
		Product:      p.Product,
		TargetKW:     toSeries(p.TargetKW),
		ToleranceKW:  p.ToleranceKW,
		ToleranceRel: p.ToleranceRel,
	}, nil
}

// BaselinePayload is one asset's forecast uncontrolled consumption.
type BaselinePayload struct {
	Portfolio string          `json:"portfolio"`
	AssetID   string          `json:"asset_id"`
	KW        []SamplePayload `json:"kw"`
}

// Validate checks that the baseline payload is usable.
func (p BaselinePayload) Validate() error {
	if p.Portfolio == "" || p.AssetID == "" {
		return fmt.Errorf("baseline payload needs portfolio and asset_id")
	}
	if len(p.KW) == 0 {
		return fmt.Errorf("baseline %s/%s: empty trajectory", p.Portfolio, p.AssetID)
	}
	return nil
}

// Series returns the baseline as a domain forecast series.
func (p BaselinePayload) Series() []model.SeriesPoint {
	return toSeries(p.KW)
}

// Snapshot is one complete feed delivery across portfolios.
type Snapshot struct {
	Requirements []RequirementPayload `json:"requirements"`
	Baselines    []BaselinePayload    `json:"baselines"`
}

func toSeries(samples []SamplePayload) []model.SeriesPoint {
	out := make([]model.SeriesPoint, len(samples))
	for i, s := range samples {
		out[i] = model.SeriesPoint{Start: s.Start, Value: s.KW}
	}
	return out
}
