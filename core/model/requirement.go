package model

import "fmt"

// Requirement is the market-side input of a planning run: a power trajectory
// one product expects the portfolio to follow, with an admissible deviation
// band around it.
type Requirement struct {
	Product string

	// TargetKW is the requested aggregate power per period, signed with
	// consumption positive, keyed by period start.
	TargetKW []SeriesPoint

	// ToleranceKW widens the admissible band by a fixed number of kW.
	ToleranceKW float64

	// ToleranceRel widens the band by a fraction of the absolute target,
	// so larger targets may deviate more. Both tolerances combine additively.
	ToleranceRel float64
}

// Validate checks the horizon-independent parts of the requirement.
func (r Requirement) Validate() error {
	if r.Product == "" {
		return fmt.Errorf("requirement product must not be empty")
	}
	if len(r.TargetKW) == 0 {
		return fmt.Errorf("requirement %s: target trajectory is empty", r.Product)
	}
	if r.ToleranceKW < 0 {
		return fmt.Errorf("requirement %s: absolute tolerance %.3f is negative", r.Product, r.ToleranceKW)
	}
	if r.ToleranceRel < 0 {
		return fmt.Errorf("requirement %s: relative tolerance %.3f is negative", r.Product, r.ToleranceRel)
	}
	return nil
}
