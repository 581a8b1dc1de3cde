package solver

import (
	"github.com/volteq/flexplan/core/factory"
)

// Builtin returns a registry with the built-in backends registered, so the
// configuration can pick one by name.
func Builtin() *factory.Registry[Solver] {
	r := factory.NewRegistry[Solver]()
	_ = r.Register("simplex", func(conf map[string]any) (Solver, error) {
		var c struct {
			Tol float64 `json:"tol"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		s := NewSimplex()
		if c.Tol > 0 {
			s.Tol = c.Tol
		}
		return s, nil
	})
	_ = r.Register("greedy", func(map[string]any) (Solver, error) {
		return NewGreedy(), nil
	})
	return r
}
