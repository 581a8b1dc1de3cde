// Package app wires configuration into a running planning service.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/volteq/flexplan/api"
	apikpi "github.com/volteq/flexplan/api/kpi"
	"github.com/volteq/flexplan/api/runs"
	"github.com/volteq/flexplan/config"
	"github.com/volteq/flexplan/core/events"
	"github.com/volteq/flexplan/core/factory"
	corehistory "github.com/volteq/flexplan/core/history"
	coremetrics "github.com/volteq/flexplan/core/metrics"
	"github.com/volteq/flexplan/core/metrics/kpi"
	"github.com/volteq/flexplan/core/model"
	coremonitoring "github.com/volteq/flexplan/core/monitoring"
	"github.com/volteq/flexplan/core/publish"
	"github.com/volteq/flexplan/core/replan"
	"github.com/volteq/flexplan/core/solver"
	"github.com/volteq/flexplan/feed"
	_ "github.com/volteq/flexplan/infra/history"
	infrakpi "github.com/volteq/flexplan/infra/kpi"
	"github.com/volteq/flexplan/infra/logger"
	"github.com/volteq/flexplan/infra/metrics"
	"github.com/volteq/flexplan/infra/monitoring"
	"github.com/volteq/flexplan/infra/mqtt"
	"github.com/volteq/flexplan/infra/telemetry"
	"github.com/volteq/flexplan/internal/eventbus"
	"github.com/volteq/flexplan/registry"
)

// Service orchestrates the planning pipeline: the asset registry, the
// requirement feed, one replanning controller per portfolio, schedule
// publishing and the operational API.
type Service struct {
	Registry  *registry.Registry
	Cache     *feed.Cache
	Connector feed.Connector

	cfg         *config.Config
	controllers map[string]*replan.Controller
	bus         *eventbus.Bus[events.Event]
	sink        coremetrics.MetricsSink
	history     corehistory.Store
	pub         publish.Publisher
	mqttPub     *mqtt.PahoPublisher
	listener    *telemetry.Listener
	kpiStore    kpi.Store
	log         logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	if cfg.Sentry.DSN != "" {
		mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
		if err != nil {
			return nil, fmt.Errorf("sentry: %w", err)
		}
		coremonitoring.Init(mon)
	}

	portfolios, err := config.BuildPortfolios(cfg.Portfolios)
	if err != nil {
		return nil, fmt.Errorf("portfolios: %w", err)
	}
	reg, err := registry.NewStatic(portfolios)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	sink, kpiStore, err := buildSinks(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}

	hist, err := corehistory.NewStore(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}

	solv, err := solver.Builtin().Create(cfg.Solver)
	if err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}

	var pub publish.Publisher = publish.NopPublisher{}
	var mqttPub *mqtt.PahoPublisher
	if cfg.MQTT.Broker != "" {
		mqttPub, err = mqtt.NewPahoPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		pub = mqttPub
	}

	bus := eventbus.New[events.Event](64)
	cache := feed.NewCache()

	controllers := make(map[string]*replan.Controller, len(portfolios))
	for name := range portfolios {
		ctrl, err := replan.NewController(name, cfg.Planner, reg, cache, solv, pub, sink, bus, logger.New("replan-"+name))
		if err != nil {
			return nil, fmt.Errorf("controller %s: %w", name, err)
		}
		ctrl.SetHistory(hist)
		controllers[name] = ctrl
	}

	svc := &Service{
		Registry:    reg,
		Cache:       cache,
		cfg:         cfg,
		controllers: controllers,
		bus:         bus,
		sink:        sink,
		history:     hist,
		pub:         pub,
		mqttPub:     mqttPub,
		kpiStore:    kpiStore,
		log:         logg,
	}
	reg.SetNotify(svc.dispatch)

	conn, err := feed.NewConnector(cfg.Feed, cfg.Planner, cache, reg, svc.dispatch)
	if err != nil {
		return nil, fmt.Errorf("feed connector: %w", err)
	}
	svc.Connector = conn

	if cfg.Telemetry.Enabled && cfg.MQTT.Broker != "" {
		lst, err := telemetry.NewListener(cfg.MQTT, cfg.Telemetry, reg)
		if err != nil {
			return nil, fmt.Errorf("telemetry listener: %w", err)
		}
		svc.listener = lst
	}
	return svc, nil
}

// buildSinks assembles the metrics sink chain. KPI sinks are built here
// rather than through the factory so the service keeps the store handle for
// the KPI endpoint.
func buildSinks(cfgs []factory.ModuleConfig) (coremetrics.MetricsSink, kpi.Store, error) {
	var (
		rest     []factory.ModuleConfig
		kpiStore kpi.Store
		kpiSink  *metrics.KPISink
	)
	for _, sc := range cfgs {
		if sc.Type != "kpi" {
			rest = append(rest, sc)
			continue
		}
		if kpiStore != nil {
			return nil, nil, fmt.Errorf("kpi sink configured twice")
		}
		var kc struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(sc.Conf, &kc); err != nil {
			return nil, nil, fmt.Errorf("kpi sink: %w", err)
		}
		if kc.Path != "" {
			s, err := infrakpi.NewSQLiteStore(kc.Path)
			if err != nil {
				return nil, nil, fmt.Errorf("kpi store: %w", err)
			}
			kpiStore = s
		} else {
			kpiStore = kpi.NewMemoryStore()
		}
		kpiSink = metrics.NewKPISink(kpiStore, prometheus.DefaultRegisterer)
	}
	sink, err := coremetrics.NewMetricsSink(rest)
	if err != nil {
		return nil, nil, err
	}
	if kpiSink != nil {
		sink = coremetrics.NewMultiSink(sink, kpiSink)
	}
	return sink, kpiStore, nil
}

// dispatch routes a trigger to the controller owning its portfolio.
func (s *Service) dispatch(t model.Trigger) {
	if ctrl, ok := s.controllers[t.Portfolio]; ok {
		ctrl.Submit(t)
		return
	}
	s.log.Warnf("dropping trigger for unknown portfolio %s", t.Portfolio)
}

// TriggerReplan submits a manual replanning trigger for the portfolio.
func (s *Service) TriggerReplan(portfolio, reason string) error {
	ctrl, ok := s.controllers[portfolio]
	if !ok {
		return fmt.Errorf("unknown portfolio %s", portfolio)
	}
	ctrl.Submit(model.Trigger{Kind: model.TriggerManual, Portfolio: portfolio, Reason: reason})
	return nil
}

// Portfolios lists the portfolios under management.
func (s *Service) Portfolios() []string {
	return s.Registry.Portfolios()
}

// LastPublication returns the most recent schedule published for the
// portfolio, if any.
func (s *Service) LastPublication(portfolio string) (publish.Publication, bool) {
	ctrl, ok := s.controllers[portfolio]
	if !ok {
		return publish.Publication{}, false
	}
	return ctrl.LastPublication()
}

// ControllerState reports the lifecycle state of the portfolio's controller.
func (s *Service) ControllerState(portfolio string) (replan.State, bool) {
	ctrl, ok := s.controllers[portfolio]
	if !ok {
		return replan.StateIdle, false
	}
	return ctrl.State(), true
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	for _, ctrl := range s.controllers {
		go ctrl.Run(ctx)
	}
	go func() {
		if err := s.Connector.Start(ctx); err != nil {
			s.log.Errorf("feed connector: %v", err)
		}
	}()
	if s.listener != nil {
		go s.listener.Start(ctx)
	}
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if s.cfg.API.Enabled {
		go func() {
			handlers := api.Handlers{
				Runs:      runs.NewRunHandler(s.history, s.cfg.API.Token),
				Schedules: runs.NewScheduleHandler(s),
			}
			if s.kpiStore != nil {
				handlers.KPIs = apikpi.NewKPIHandler(s.kpiStore)
			}
			if err := api.StartServer(ctx, s.cfg.API.Addr(), handlers); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	<-ctx.Done()
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var first error
	if err := s.history.Close(); err != nil {
		first = err
	}
	if s.mqttPub != nil {
		s.mqttPub.Disconnect()
	}
	if c, ok := s.kpiStore.(io.Closer); ok {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.bus.Close()
	coremonitoring.Flush(2 * time.Second)
	return first
}
