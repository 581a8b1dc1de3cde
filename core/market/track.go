// Package market turns product requirements into tracking tracks: per-period
// aggregate targets with the tolerance band the portfolio must stay inside.
package market

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/volteq/flexplan/core/model"
)

// ErrInvalidRequirement marks a requirement that cannot be aligned with the
// horizon or carries contradictory parameters.
var ErrInvalidRequirement = errors.New("invalid requirement")

// Track is the solver-ready form of one requirement: target and tolerance
// resolved per horizon period, consumption positive.
type Track struct {
	Product     string
	TargetKW    []float64
	ToleranceKW []float64
}

// Periods returns the number of horizon periods the track covers.
func (t Track) Periods() int { return len(t.TargetKW) }

// Relax returns a copy with the band widened by factor*|target| per period.
// Used for the one-shot retry after an infeasible run; with factor 0 the
// track is returned unchanged.
func (t Track) Relax(factor float64) Track {
	if factor <= 0 {
		return t
	}
	out := Track{Product: t.Product, TargetKW: t.TargetKW, ToleranceKW: make([]float64, len(t.ToleranceKW))}
	for i, tol := range t.ToleranceKW {
		out.ToleranceKW[i] = tol + factor*math.Abs(t.TargetKW[i])
	}
	return out
}

// BuildTrack resolves a requirement against the horizon. Every period must
// have a target sample; targets outside the horizon are ignored so feeds may
// deliver wider trajectories than a single plan consumes.
func BuildTrack(r model.Requirement, h model.Horizon) (Track, error) {
	if err := r.Validate(); err != nil {
		return Track{}, fmt.Errorf("%w: %v", ErrInvalidRequirement, err)
	}
	byStart := make(map[time.Time]float64, len(r.TargetKW))
	for _, pt := range r.TargetKW {
		byStart[pt.Start.UTC()] = pt.Value
	}
	tr := Track{
		Product:     r.Product,
		TargetKW:    make([]float64, h.Len()),
		ToleranceKW: make([]float64, h.Len()),
	}
	for i := 0; i < h.Len(); i++ {
		v, ok := byStart[h.Period(i).Start.UTC()]
		if !ok {
			return Track{}, fmt.Errorf("%w: product %s has no target for period starting %s",
				ErrInvalidRequirement, r.Product, h.Period(i).Start)
		}
		tr.TargetKW[i] = v
		tr.ToleranceKW[i] = r.ToleranceKW + r.ToleranceRel*math.Abs(v)
	}
	return tr, nil
}

// BuildTracks resolves a set of requirements and rejects duplicate products.
func BuildTracks(reqs []model.Requirement, h model.Horizon) ([]Track, error) {
	seen := make(map[string]bool, len(reqs))
	tracks := make([]Track, 0, len(reqs))
	for _, r := range reqs {
		if seen[r.Product] {
			return nil, fmt.Errorf("%w: product %s appears twice", ErrInvalidRequirement, r.Product)
		}
		seen[r.Product] = true
		tr, err := BuildTrack(r, h)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, tr)
	}
	return tracks, nil
}

// CombinationMode decides how multiple products constrain the portfolio.
type CombinationMode int

const (
	// CombineUnset forces operators with more than one product to choose.
	CombineUnset CombinationMode = iota

	// CombineAdditive sums the targets into one track; tolerances add up as
	// well, the loosest reading of simultaneous products.
	CombineAdditive

	// CombineSeparate keeps one band per product; the aggregate must satisfy
	// every band at once, so disjoint bands make the plan infeasible.
	CombineSeparate
)

// String returns the configuration spelling of the mode.
func (m CombinationMode) String() string {
	switch m {
	case CombineAdditive:
		return "additive"
	case CombineSeparate:
		return "separate"
	default:
		return "unset"
	}
}

// ParseCombinationMode converts a configuration string into a mode. The empty
// string parses to CombineUnset, which is only valid for single-product runs.
func ParseCombinationMode(s string) (CombinationMode, error) {
	switch s {
	case "":
		return CombineUnset, nil
	case "additive":
		return CombineAdditive, nil
	case "separate":
		return CombineSeparate, nil
	default:
		return CombineUnset, fmt.Errorf("unknown combination mode %q", s)
	}
}

// Combine applies the configured mode to a track set. Zero or one track is
// returned unchanged regardless of mode.
func Combine(tracks []Track, mode CombinationMode) ([]Track, error) {
	if len(tracks) <= 1 {
		return tracks, nil
	}
	switch mode {
	case CombineSeparate:
		return tracks, nil
	case CombineAdditive:
		n := tracks[0].Periods()
		sum := Track{
			TargetKW:    make([]float64, n),
			ToleranceKW: make([]float64, n),
		}
		names := make([]string, len(tracks))
		for ti, tr := range tracks {
			if tr.Periods() != n {
				return nil, fmt.Errorf("%w: product %s covers %d periods, expected %d",
					ErrInvalidRequirement, tr.Product, tr.Periods(), n)
			}
			names[ti] = tr.Product
			for i := 0; i < n; i++ {
				sum.TargetKW[i] += tr.TargetKW[i]
				sum.ToleranceKW[i] += tr.ToleranceKW[i]
			}
		}
		sum.Product = strings.Join(names, "+")
		return []Track{sum}, nil
	default:
		return nil, fmt.Errorf("%w: %d products but no combination mode configured", ErrInvalidRequirement, len(tracks))
	}
}
