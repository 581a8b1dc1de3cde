// Package factory instantiates pluggable modules from configuration. A module
// is addressed by a type string plus a raw settings map; factories decode the
// settings into typed structs and hand back the concrete implementation.
//
// Example:
//
//	reg := factory.NewRegistry[history.Store]()
//	reg.Register("sqlite", func(conf map[string]any) (history.Store, error) {
//	    var c struct {
//	        Path string `json:"path"`
//	    }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return sqlite.Open(c.Path)
//	})
//	st, err := reg.Create(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": "runs.db"}})
package factory
