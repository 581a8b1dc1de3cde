// Package plan builds solver-neutral optimization problems out of flexibility
// envelopes and tracking tracks, and assembles validated schedules out of
// solver results.
package plan

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/volteq/flexplan/core/flex"
	"github.com/volteq/flexplan/core/market"
	"github.com/volteq/flexplan/core/model"
)

// VarKind tells what a decision variable controls.
type VarKind int

const (
	// VarPower is the signed setpoint of a stateless asset in one period.
	VarPower VarKind = iota
	// VarCharge is the consumption component of a storage asset, >= 0.
	VarCharge
	// VarDischarge is the production component of a storage asset, >= 0.
	VarDischarge
	// VarState is the stored energy of a storage asset at the end of a period.
	VarState
	// VarSlackOver absorbs aggregate power above the target, bounded by the
	// tolerance band.
	VarSlackOver
	// VarSlackUnder absorbs aggregate power below the target.
	VarSlackUnder
)

// String returns a short tag used in diagnostics.
func (k VarKind) String() string {
	switch k {
	case VarPower:
		return "power"
	case VarCharge:
		return "charge"
	case VarDischarge:
		return "discharge"
	case VarState:
		return "state"
	case VarSlackOver:
		return "slack_over"
	case VarSlackUnder:
		return "slack_under"
	default:
		return "unknown"
	}
}

// Variable is one bounded decision variable with its linear cost coefficient.
// Asset is empty for tracking slacks; Group is the track index for slacks and
// -1 otherwise.
type Variable struct {
	Kind   VarKind
	Asset  string
	Group  int
	Period int
	Lower  float64
	Upper  float64
	Cost   float64
}

// Term is one coefficient of a linear constraint row.
type Term struct {
	Var  int
	Coef float64
}

// Constraint is a linear row, either Σ terms = RHS or Σ terms <= RHS
// depending on which list it lives in.
type Constraint struct {
	Terms []Term
	RHS   float64
	Label string // diagnostic tag, e.g. "state:bat1:3"
}

// Problem is a linear program in bounded-variable form together with the
// inputs it was built from. The input references let heuristic backends and
// the assembler reason in domain terms without re-deriving them from rows.
type Problem struct {
	Horizon   model.Horizon
	Envelopes []flex.Envelope
	Tracks    []market.Track

	Vars []Variable
	Eq   []Constraint
	Ineq []Constraint

	index map[varKey]int
}

type varKey struct {
	kind   VarKind
	asset  string
	group  int
	period int
}

func newProblem(h model.Horizon, envs []flex.Envelope, tracks []market.Track) *Problem {
	return &Problem{
		Horizon:   h,
		Envelopes: envs,
		Tracks:    tracks,
		index:     make(map[varKey]int),
	}
}

func (p *Problem) addVar(v Variable) int {
	idx := len(p.Vars)
	p.Vars = append(p.Vars, v)
	p.index[varKey{v.Kind, v.Asset, v.Group, v.Period}] = idx
	return idx
}

// Lookup finds the index of a variable by its semantic address.
func (p *Problem) Lookup(kind VarKind, asset string, group, period int) (int, bool) {
	idx, ok := p.index[varKey{kind, asset, group, period}]
	return idx, ok
}

// NumVars returns the number of decision variables.
func (p *Problem) NumVars() int { return len(p.Vars) }

// Objective evaluates the cost vector at x.
func (p *Problem) Objective(x []float64) float64 {
	var sum float64
	for i, v := range p.Vars {
		sum += v.Cost * x[i]
	}
	return sum
}

// Fingerprint hashes the full problem structure. Two runs over identical
// inputs produce identical fingerprints, which makes solver determinism
// checkable end to end.
func (p *Problem) Fingerprint() string {
	h := fnv.New64a()
	writeInt := func(i int) {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(i))
		h.Write(buf[:])
	}
	writeFloat := func(f float64) {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	writeInt(p.Horizon.Len())
	for _, v := range p.Vars {
		writeInt(int(v.Kind))
		h.Write([]byte(v.Asset))
		writeInt(v.Group)
		writeInt(v.Period)
		writeFloat(v.Lower)
		writeFloat(v.Upper)
		writeFloat(v.Cost)
	}
	for _, set := range [][]Constraint{p.Eq, p.Ineq} {
		writeInt(len(set))
		for _, c := range set {
			for _, t := range c.Terms {
				writeInt(t.Var)
				writeFloat(t.Coef)
			}
			writeFloat(c.RHS)
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
