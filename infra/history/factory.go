package history

import (
	"github.com/volteq/flexplan/core/factory"
	corehistory "github.com/volteq/flexplan/core/history"
)

// init registers the persistent history backends.
func init() {
	_ = corehistory.RegisterStore("sqlite", func(conf map[string]any) (corehistory.Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSQLiteStore(c.Path)
	})

	_ = corehistory.RegisterStore("jsonl", func(conf map[string]any) (corehistory.Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLStore(c.Path)
	})

	_ = corehistory.RegisterStore("jsonl_rotating", func(conf map[string]any) (corehistory.Store, error) {
		var c struct {
			Path       string `json:"path"`
			MaxSizeMB  int    `json:"max_size_mb"`
			MaxBackups int    `json:"max_backups"`
			MaxAgeDays int    `json:"max_age_days"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
}
