package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/volteq/flexplan/core/factory"
	coremetrics "github.com/volteq/flexplan/core/metrics"
	kpi "github.com/volteq/flexplan/core/metrics/kpi"
	infrakpi "github.com/volteq/flexplan/infra/kpi"
)

// init registers built-in metrics sinks.
func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterMetricsSink("prometheus", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			Port string `json:"prometheus_port"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		// Port is used by the HTTP server only; PromSink itself doesn't need it.
		return NewPromSinkWithRegistry(coremetrics.Config{}, prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			URL    string `json:"url"`
			Token  string `json:"token"`
			Org    string `json:"org"`
			Bucket string `json:"bucket"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})

	_ = coremetrics.RegisterMetricsSink("kpi", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		var store kpi.Store
		if c.Path != "" {
			s, err := infrakpi.NewSQLiteStore(c.Path)
			if err != nil {
				return nil, err
			}
			store = s
		} else {
			store = kpi.NewMemoryStore()
		}
		return NewKPISink(store, prometheus.DefaultRegisterer), nil
	})
}
