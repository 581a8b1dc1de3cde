package history

import "github.com/volteq/flexplan/core/factory"

var storeRegistry = factory.NewRegistry[Store]()

func init() {
	_ = storeRegistry.Register("nop", func(map[string]any) (Store, error) {
		return NopStore{}, nil
	})
	_ = storeRegistry.Register("memory", func(conf map[string]any) (Store, error) {
		var c struct {
			Max int `json:"max"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewMemoryStore(c.Max), nil
	})
}

// RegisterStore adds a store factory identified by name. Infrastructure
// packages use this to plug in persistent backends.
func RegisterStore(name string, f factory.Factory[Store]) error {
	return storeRegistry.Register(name, f)
}

// NewStore creates a Store from configuration. An empty type selects the
// in-memory default.
func NewStore(cfg factory.ModuleConfig) (Store, error) {
	if cfg.Type == "" {
		return NewMemoryStore(0), nil
	}
	return storeRegistry.Create(cfg)
}
