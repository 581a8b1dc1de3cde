package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/volteq/flexplan/config"
	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/infra/logger"
	infmqtt "github.com/volteq/flexplan/infra/mqtt"
)

// Fleet is the part of the registry the listener keeps fresh. State applies
// silently; availability flips raise asset-change triggers inside the
// registry itself.
type Fleet interface {
	Portfolios() []string
	Snapshot(ctx context.Context, portfolio string) ([]model.Asset, error)
	SetStoredState(portfolio, assetID string, stateKWh float64) error
	SetAvailability(portfolio, assetID string, available bool) error
}

// Listener ingests asset state reports over MQTT, either pushed by the
// assets or polled on an interval.
type Listener struct {
	cfg   config.TelemetryConfig
	cli   paho.Client
	fleet Fleet
	log   logger.Logger

	respCh chan stateMessage

	pollReq     prometheus.Counter
	pollResp    prometheus.Counter
	pollTimeout prometheus.Counter
	lastUpdate  prometheus.Gauge
	latency     prometheus.Histogram
}

type stateMessage struct {
	Portfolio string
	AssetID   string
	Payload   []byte
	Arrived   time.Time
}

// NewListener connects to MQTT and prepares state collection.
func NewListener(mqttCfg infmqtt.Config, cfg config.TelemetryConfig, fleet Fleet) (*Listener, error) {
	opts, err := infmqtt.NewClientOptions(mqttCfg)
	if err != nil {
		return nil, err
	}
	id := mqttCfg.ClientID
	if id != "" {
		id += "-telemetry"
	} else {
		id = "telemetry-" + uuid.NewString()
	}
	opts.SetClientID(id)
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	l := &Listener{
		cfg:         cfg,
		cli:         cli,
		fleet:       fleet,
		log:         logger.New("telemetry"),
		respCh:      make(chan stateMessage, 100),
		pollReq:     prometheus.NewCounter(prometheus.CounterOpts{Name: "asset_state_poll_requests_total", Help: "Number of asset state poll requests"}),
		pollResp:    prometheus.NewCounter(prometheus.CounterOpts{Name: "asset_state_poll_responses_total", Help: "Number of asset state poll responses"}),
		pollTimeout: prometheus.NewCounter(prometheus.CounterOpts{Name: "asset_state_poll_timeout_total", Help: "Number of assets that missed a poll"}),
		lastUpdate:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "asset_state_last_update_timestamp_seconds", Help: "Unix timestamp of last applied state report"}),
		latency:     prometheus.NewHistogram(prometheus.HistogramOpts{Name: "asset_state_poll_latency_seconds", Help: "Latency of poll round trips", Buckets: prometheus.DefBuckets}),
	}
	prometheus.MustRegister(l.pollReq, l.pollResp, l.pollTimeout, l.lastUpdate, l.latency)
	return l, nil
}

// Start runs state collection until context is done.
func (l *Listener) Start(ctx context.Context) {
	if l.cfg.PushEnabled() {
		topic := strings.TrimSuffix(l.cfg.StatePrefix, "/") + "/+/+"
		if token := l.cli.Subscribe(topic, 0, l.onPush); token.Wait() && token.Error() != nil {
			l.log.Errorf("subscribe state: %v", token.Error())
		}
	}
	if l.cfg.PullEnabled() {
		topic := strings.TrimSuffix(l.cfg.ResponsePrefix, "/") + "/+/+"
		if token := l.cli.Subscribe(topic, 0, l.onResponse); token.Wait() && token.Error() != nil {
			l.log.Errorf("subscribe response: %v", token.Error())
		}
		go l.pollLoop(ctx)
	}
	<-ctx.Done()
	if l.cli.IsConnected() {
		l.cli.Disconnect(250)
	}
}

func (l *Listener) onPush(_ paho.Client, msg paho.Message) {
	portfolio, assetID := extractIDs(msg.Topic())
	if err := l.process(portfolio, assetID, msg.Payload()); err != nil {
		l.log.Errorf("push decode: %v", err)
	}
}

func (l *Listener) onResponse(_ paho.Client, msg paho.Message) {
	portfolio, assetID := extractIDs(msg.Topic())
	l.respCh <- stateMessage{Portfolio: portfolio, AssetID: assetID, Payload: msg.Payload(), Arrived: time.Now()}
}

// extractIDs reads the trailing <portfolio>/<asset> segments of a topic.
func extractIDs(topic string) (string, string) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return "", ""
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

func (l *Listener) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(l.cfg.Interval()) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.doPoll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) doPoll(ctx context.Context) {
	start := time.Now()
	expected := make(map[string]struct{})
	if l.fleet != nil {
		for _, pf := range l.fleet.Portfolios() {
			assets, err := l.fleet.Snapshot(ctx, pf)
			if err != nil {
				continue
			}
			for _, a := range assets {
				expected[pf+"/"+a.ID] = struct{}{}
			}
		}
	}
	l.pollReq.Inc()
	token := l.cli.Publish(l.cfg.RequestTopic, 0, false, []byte("poll"))
	token.Wait()
	timeout := time.NewTimer(time.Duration(l.cfg.Timeout()) * time.Second)
	for {
		select {
		case resp := <-l.respCh:
			if err := l.process(resp.Portfolio, resp.AssetID, resp.Payload); err != nil {
				l.log.Errorf("poll decode: %v", err)
			} else {
				l.pollResp.Inc()
				l.latency.Observe(time.Since(start).Seconds())
				delete(expected, resp.Portfolio+"/"+resp.AssetID)
			}
		case <-timeout.C:
			for range expected {
				l.pollTimeout.Inc()
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// process applies one state report. The payload's asset_id wins over the
// topic segment when both are present.
func (l *Listener) process(portfolio, assetID string, payload []byte) error {
	var msg struct {
		AssetID   string   `json:"asset_id"`
		StateKWh  *float64 `json:"state_kwh"`
		Available *bool    `json:"available"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	if msg.AssetID != "" {
		assetID = msg.AssetID
	}
	if portfolio == "" || assetID == "" {
		return fmt.Errorf("state report without portfolio or asset id")
	}
	if l.fleet == nil {
		return nil
	}
	if msg.Available != nil {
		if err := l.fleet.SetAvailability(portfolio, assetID, *msg.Available); err != nil {
			l.log.Warnf("availability %s/%s: %v", portfolio, assetID, err)
		}
	}
	if msg.StateKWh != nil {
		if err := l.fleet.SetStoredState(portfolio, assetID, *msg.StateKWh); err != nil {
			l.log.Warnf("stored state %s/%s: %v", portfolio, assetID, err)
		}
	}
	if l.lastUpdate != nil {
		l.lastUpdate.SetToCurrentTime()
	}
	return nil
}
