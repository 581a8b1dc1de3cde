package feed

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/volteq/flexplan/config"
	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/core/replan"
	"github.com/volteq/flexplan/infra/logger"
)

// Mock periodically generates synthetic requirement and baseline forecasts.
// Trajectories cover twice the planning horizon so runs triggered between
// emissions still find every period they need.
type Mock struct {
	cfg     config.FeedMockConfig
	planner replan.Config
	cache   *Cache
	sink    Sink
	notify  func(model.Trigger)
	log     logger.Logger
	rand    *rand.Rand
	now     func() time.Time
}

var (
	updatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_mock_updates_total",
		Help: "Total forecast batches emitted per portfolio",
	}, []string{"portfolio"})
	targetSum = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_mock_target_kw_sum",
		Help: "Sum of absolute generated target power",
	})
	lastEmit = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feed_mock_last_emit_timestamp_seconds",
		Help: "Last emission time",
	})
	emitErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_mock_emit_errors_total",
		Help: "Errors while applying generated forecasts",
	})
	intervalHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_mock_interval_seconds",
		Help:    "Interval between forecast batches",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(updatesTotal, targetSum, lastEmit, emitErrors, intervalHist)
}

// NewMock creates a generator over the configured trajectories.
func NewMock(cfg config.FeedMockConfig, planner replan.Config, cache *Cache, sink Sink, notify func(model.Trigger)) *Mock {
	return &Mock{
		cfg:     cfg,
		planner: planner,
		cache:   cache,
		sink:    sink,
		notify:  notify,
		log:     logger.New("feed-mock"),
		rand:    rand.New(rand.NewSource(cfg.Seed)),
		now:     time.Now,
	}
}

// Start emits one batch right away, so planning has requirements before the
// first rollover, then keeps emitting until context cancellation.
func (m *Mock) Start(ctx context.Context) error {
	m.Emit(m.now())
	for {
		interval := m.randomInterval()
		intervalHist.Observe(interval.Seconds())
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		m.Emit(m.now())
	}
}

// Emit generates one forecast batch anchored at the given time and applies
// it to the cache and the registry sink.
func (m *Mock) Emit(now time.Time) {
	start := now.Truncate(m.planner.Resolution())
	span := m.planner.Periods * 2

	byPortfolio := make(map[string][]model.Requirement)
	for _, rc := range m.cfg.Requirements {
		byPortfolio[rc.Portfolio] = append(byPortfolio[rc.Portfolio], model.Requirement{
			Product:      rc.Product,
			TargetKW:     m.trajectory(start, span, rc.BaseTargetKW, rc.AmplitudeKW),
			ToleranceKW:  rc.ToleranceKW,
			ToleranceRel: rc.ToleranceRel,
		})
	}
	baselines := make(map[string]int)
	for _, bc := range m.cfg.Baselines {
		series := m.trajectory(start, span, bc.BaseKW, bc.AmplitudeKW)
		if err := m.sink.SetBaseline(bc.Portfolio, bc.AssetID, series); err != nil {
			emitErrors.Inc()
			m.log.Errorf("baseline %s/%s: %v", bc.Portfolio, bc.AssetID, err)
			continue
		}
		baselines[bc.Portfolio]++
	}

	for _, pf := range m.portfolios(baselines) {
		reqs := byPortfolio[pf]
		changed := m.cache.SetAll(pf, reqs)
		if !changed && baselines[pf] == 0 {
			continue
		}
		for _, r := range reqs {
			for _, p := range r.TargetKW {
				targetSum.Add(math.Abs(p.Value))
			}
		}
		updatesTotal.WithLabelValues(pf).Inc()
		m.log.Infof("forecast batch portfolio=%s products=%d baselines=%d", pf, len(reqs), baselines[pf])
		if m.notify != nil {
			m.notify(model.Trigger{
				Kind:      model.TriggerForecastUpdate,
				Portfolio: pf,
				At:        now,
				Reason:    "generated forecast batch",
			})
		}
	}
	lastEmit.Set(float64(time.Now().Unix()))
}

// portfolios returns every portfolio touched by this batch in stable order.
func (m *Mock) portfolios(baselines map[string]int) []string {
	seen := make(map[string]bool)
	for _, rc := range m.cfg.Requirements {
		seen[rc.Portfolio] = true
	}
	for pf := range baselines {
		seen[pf] = true
	}
	out := make([]string, 0, len(seen))
	for pf := range seen {
		out = append(out, pf)
	}
	sort.Strings(out)
	return out
}

// trajectory builds one sinusoid over the planning span with jitter applied
// per sample.
func (m *Mock) trajectory(start time.Time, span int, base, amplitude float64) []model.SeriesPoint {
	out := make([]model.SeriesPoint, span)
	res := m.planner.Resolution()
	for i := 0; i < span; i++ {
		v := base
		if amplitude != 0 {
			v += amplitude * math.Sin(2*math.Pi*float64(i)/float64(m.planner.Periods))
		}
		out[i] = model.SeriesPoint{Start: start.Add(time.Duration(i) * res), Value: m.jitter(v)}
	}
	return out
}

func (m *Mock) jitter(v float64) float64 {
	if m.cfg.JitterPct == 0 {
		return v
	}
	return v * (1 + (m.rand.Float64()*2-1)*m.cfg.JitterPct)
}

func (m *Mock) randomInterval() time.Duration {
	min, max := m.cfg.MinIntervalSeconds, m.cfg.MaxIntervalSeconds
	if max <= min {
		return time.Duration(min) * time.Second
	}
	sec := float64(min) + m.rand.Float64()*float64(max-min)
	return time.Duration(sec) * time.Second
}
