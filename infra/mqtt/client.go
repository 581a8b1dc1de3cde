package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/volteq/flexplan/core/monitoring"
	"github.com/volteq/flexplan/core/publish"
	"github.com/volteq/flexplan/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT publisher.
type Config struct {
	Broker       string          `json:"broker"`
	ClientID     string          `json:"client_id"`
	Username     string          `json:"username"`
	Password     string          `json:"password"`
	TopicPrefix  string          `json:"topic_prefix"`
	ReceiptTopic string          `json:"receipt_topic"`
	ReceiptMS    int             `json:"receipt_timeout_ms"`
	UseTLS       bool            `json:"use_tls"`
	ClientCert   string          `json:"client_cert"`
	ClientKey    string          `json:"client_key"`
	CABundle     string          `json:"ca_bundle"`
	AuthMethod   string          `json:"auth_method"`
	QoS          map[string]byte `json:"qos"`
	LWTTopic     string          `json:"lwt_topic"`
	LWTPayload   string          `json:"lwt_payload"`
	LWTQoS       byte            `json:"lwt_qos"`
	LWTRetain    bool            `json:"lwt_retain"`
	MaxRetries   int             `json:"max_retries"`
	BackoffMS    int             `json:"backoff_ms"`
	TLSConfig    *tls.Config     `json:"-"`
}

// pahoClient is the slice of the Paho API the publisher uses.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoPublisher delivers schedules over MQTT: one setpoint message per asset
// plus the aggregate commitment for the portfolio. It implements
// publish.Publisher.
type PahoPublisher struct {
	cli          pahoClient
	prefix       string
	receiptTopic string
	receiptWait  time.Duration
	qos          map[string]byte

	mu           sync.Mutex
	lastKey      map[string]string // portfolio -> last published key
	receiptChans map[string]chan struct{}
	logger       logger.Logger
	maxRetries   int
	backoff      time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoPublisher connects to the MQTT broker and, when a receipt topic is
// configured, subscribes to it for delivery confirmations.
func NewPahoPublisher(cfg Config) (*PahoPublisher, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	logger := logger.New("mqtt_publisher")
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "flexplan"
	}
	pp := &PahoPublisher{
		prefix:       prefix,
		receiptTopic: cfg.ReceiptTopic,
		receiptWait:  time.Duration(cfg.ReceiptMS) * time.Millisecond,
		qos:          cfg.QoS,
		lastKey:      make(map[string]string),
		receiptChans: make(map[string]chan struct{}),
		logger:       logger,
		maxRetries:   cfg.MaxRetries,
		backoff:      time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		logger.Infof("MQTT connected")
		if pp.receiptTopic == "" {
			return
		}
		qos := byte(0)
		if q, ok := pp.qos["receipt"]; ok {
			qos = q
		}
		if token := c.Subscribe(pp.receiptTopic, qos, pp.onReceipt); token.Wait() && token.Error() != nil {
			logger.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pp.cli = c
	return pp, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (p *PahoPublisher) onReceipt(_ paho.Client, msg paho.Message) {
	var m struct {
		ScheduleID string `json:"schedule_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode receipt: %v", err)
		return
	}
	p.mu.Lock()
	ch, ok := p.receiptChans[m.ScheduleID]
	if ok {
		select {
		case ch <- struct{}{}:
		default:
		}
		p.logger.Infof("received receipt for %s", m.ScheduleID)
	}
	p.mu.Unlock()
}

// setpointMessage carries one asset's planned power trajectory.
type setpointMessage struct {
	ScheduleID  string    `json:"schedule_id"`
	Portfolio   string    `json:"portfolio"`
	AssetID     string    `json:"asset_id"`
	Seq         uint64    `json:"seq"`
	Stale       bool      `json:"stale"`
	PeriodsMS   []int64   `json:"period_starts_ms"`
	SetpointsKW []float64 `json:"setpoints_kw"`
	Timestamp   int64     `json:"timestamp"`
}

// commitmentMessage carries the portfolio aggregate the market side commits to.
type commitmentMessage struct {
	ScheduleID  string    `json:"schedule_id"`
	Portfolio   string    `json:"portfolio"`
	Seq         uint64    `json:"seq"`
	Stale       bool      `json:"stale"`
	Status      string    `json:"status"`
	Objective   float64   `json:"objective"`
	Solver      string    `json:"solver"`
	PeriodsMS   []int64   `json:"period_starts_ms"`
	AggregateKW []float64 `json:"aggregate_kw"`
	Timestamp   int64     `json:"timestamp"`
}

// PublishSchedule sends per-asset setpoints followed by the aggregate
// commitment. Re-publishing the schedule the portfolio already carries is a
// no-op, so retried deliveries stay idempotent downstream.
func (p *PahoPublisher) PublishSchedule(ctx context.Context, pub publish.Publication) error {
	key := pub.Key()
	p.mu.Lock()
	if p.lastKey[pub.Portfolio] == key {
		p.mu.Unlock()
		p.logger.Debugf("schedule %s already published, skipping", key)
		return nil
	}
	p.mu.Unlock()

	s := pub.Schedule
	starts := make([]int64, s.Horizon.Len())
	for i := range starts {
		starts[i] = s.Horizon.Period(i).Start.UnixMilli()
	}
	now := time.Now().UnixMilli()

	for assetID, sp := range s.SetpointsKW {
		msg := setpointMessage{
			ScheduleID:  s.ID,
			Portfolio:   pub.Portfolio,
			AssetID:     assetID,
			Seq:         pub.Seq,
			Stale:       pub.Stale,
			PeriodsMS:   starts,
			SetpointsKW: sp,
			Timestamp:   now,
		}
		topic := fmt.Sprintf("%s/%s/asset/%s/setpoints", p.prefix, pub.Portfolio, assetID)
		if err := p.publish(topic, "setpoint", msg); err != nil {
			p.captureFailure(err, pub)
			return err
		}
	}

	commit := commitmentMessage{
		ScheduleID:  s.ID,
		Portfolio:   pub.Portfolio,
		Seq:         pub.Seq,
		Stale:       pub.Stale,
		Status:      s.Status.String(),
		Objective:   s.Objective,
		Solver:      s.Solver,
		PeriodsMS:   starts,
		AggregateKW: s.AggregateKW,
		Timestamp:   now,
	}
	topic := fmt.Sprintf("%s/%s/commitment", p.prefix, pub.Portfolio)

	if p.receiptTopic != "" && p.receiptWait > 0 {
		p.mu.Lock()
		p.receiptChans[s.ID] = make(chan struct{}, 1)
		p.mu.Unlock()
	}
	if err := p.publish(topic, "commitment", commit); err != nil {
		p.clearReceipt(s.ID)
		p.captureFailure(err, pub)
		return err
	}
	if p.receiptTopic != "" && p.receiptWait > 0 {
		if err := p.waitForReceipt(ctx, s.ID); err != nil {
			p.captureFailure(err, pub)
			return err
		}
	}

	p.mu.Lock()
	p.lastKey[pub.Portfolio] = key
	p.mu.Unlock()
	p.logger.Infof("published schedule %s seq %d for %s", s.ID, pub.Seq, pub.Portfolio)
	return nil
}

func (p *PahoPublisher) publish(topic, kind string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	qos := byte(0)
	if q, ok := p.qos[kind]; ok {
		qos = q
	}
	retries := p.maxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := p.backoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	var publishErr error
	for attempt := 0; attempt <= retries; attempt++ {
		token := p.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		time.Sleep(backoff * time.Duration(1<<attempt))
	}
	return publishErr
}

// waitForReceipt blocks until the dispatch side confirms the commitment or
// the timeout expires.
func (p *PahoPublisher) waitForReceipt(ctx context.Context, scheduleID string) error {
	p.mu.Lock()
	ch := p.receiptChans[scheduleID]
	p.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("unknown schedule")
	}

	timer := time.NewTimer(p.receiptWait)
	defer timer.Stop()
	select {
	case <-ch:
		p.clearReceipt(scheduleID)
		return nil
	case <-ctx.Done():
		p.clearReceipt(scheduleID)
		return ctx.Err()
	case <-timer.C:
		p.clearReceipt(scheduleID)
		return fmt.Errorf("%w", publish.ErrReceiptTimeout)
	}
}

func (p *PahoPublisher) clearReceipt(scheduleID string) {
	p.mu.Lock()
	delete(p.receiptChans, scheduleID)
	p.mu.Unlock()
}

func (p *PahoPublisher) captureFailure(err error, pub publish.Publication) {
	monitoring.CaptureException(err, map[string]string{
		"module":      "mqtt",
		"portfolio":   pub.Portfolio,
		"schedule_id": pub.Schedule.ID,
	})
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoPublisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
