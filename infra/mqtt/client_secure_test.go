package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"testing"
	"time"

	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/core/publish"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := os.WriteFile(caFile, certPEM, 0644); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	return
}

func testPublication(t *testing.T) publish.Publication {
	t.Helper()
	h, err := model.Rolling(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), 15*time.Minute, 2)
	if err != nil {
		t.Fatalf("horizon: %v", err)
	}
	return publish.Publication{
		Portfolio: "pf-a",
		Seq:       1,
		Schedule: model.Schedule{
			ID:          "sched-1",
			Portfolio:   "pf-a",
			Horizon:     h,
			SetpointsKW: map[string][]float64{"a1": {1, 2}},
			AggregateKW: []float64{1, 2},
			Status:      model.StatusOptimal,
			Solver:      "simplex",
		},
	}
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
}

func TestQoSSettings(t *testing.T) {
	mc := &mockClient{}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	defer func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } }()
	cfg := Config{
		Broker: "tcp://localhost:1883", ClientID: "id",
		ReceiptTopic: "receipts",
		QoS:          map[string]byte{"commitment": 2, "setpoint": 1, "receipt": 1},
	}
	pub, err := NewPahoPublisher(cfg)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	if len(mc.subscribed) == 0 || mc.subscribed[0].qos != 1 {
		t.Fatalf("subscribe qos not applied")
	}
	if err := pub.PublishSchedule(context.Background(), testPublication(t)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected setpoint and commitment messages, got %d", len(mc.published))
	}
	if mc.published[0].qos != 1 || mc.published[1].qos != 2 {
		t.Fatalf("publish qos not applied: %+v", mc.published)
	}
}

func TestPublishTopicsAndPayload(t *testing.T) {
	mc := &mockClient{}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	defer func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } }()
	pub, err := NewPahoPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "id"})
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	if err := pub.PublishSchedule(context.Background(), testPublication(t)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if mc.published[0].topic != "flexplan/pf-a/asset/a1/setpoints" {
		t.Fatalf("setpoint topic: %s", mc.published[0].topic)
	}
	if mc.published[1].topic != "flexplan/pf-a/commitment" {
		t.Fatalf("commitment topic: %s", mc.published[1].topic)
	}
	var commit commitmentMessage
	if err := json.Unmarshal(mc.published[1].payload, &commit); err != nil {
		t.Fatalf("decode commitment: %v", err)
	}
	if commit.ScheduleID != "sched-1" || len(commit.AggregateKW) != 2 || commit.Status != "optimal" {
		t.Fatalf("commitment payload mangled: %+v", commit)
	}
}

func TestPublishIdempotent(t *testing.T) {
	mc := &mockClient{}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	defer func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } }()
	pub, err := NewPahoPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "id"})
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	p := testPublication(t)
	if err := pub.PublishSchedule(context.Background(), p); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := pub.PublishSchedule(context.Background(), p); err != nil {
		t.Fatalf("republish: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("republication should be a no-op, got %d messages", len(mc.published))
	}
	// the stale re-emission of the same schedule is a distinct publication
	p.Stale = true
	p.Seq++
	if err := pub.PublishSchedule(context.Background(), p); err != nil {
		t.Fatalf("stale publish: %v", err)
	}
	if len(mc.published) != 4 {
		t.Fatalf("stale publication should go out, got %d messages", len(mc.published))
	}
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	defer func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } }()
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1}
	pub, err := NewPahoPublisher(cfg)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	if !mc.opts.WillEnabled {
		t.Fatalf("will not enabled")
	}
	if mc.opts.WillTopic != "lwt" || string(mc.opts.WillPayload) != "bye" {
		t.Fatalf("will options incorrect")
	}
	pub.Disconnect()
	if len(mc.published) != 0 {
		t.Fatalf("unexpected publish on disconnect")
	}
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	defer func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } }()
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1}
	pub, err := NewPahoPublisher(cfg)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	if err := pub.PublishSchedule(context.Background(), testPublication(t)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// failed setpoint attempt, its retry, then the commitment
	if len(mc.published) != 3 {
		t.Fatalf("expected retries, got %d messages", len(mc.published))
	}
}

func TestReceiptFlow(t *testing.T) {
	mc := &mockClient{}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	defer func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } }()
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", ReceiptTopic: "receipts", ReceiptMS: 1000}
	pub, err := NewPahoPublisher(cfg)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- pub.PublishSchedule(context.Background(), testPublication(t)) }()

	deadline := time.After(time.Second)
	for {
		pub.mu.Lock()
		n := len(pub.receiptChans)
		pub.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("commitment never published")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	pub.onReceipt(nil, mockMessage{[]byte(`{"schedule_id":"sched-1"}`)})
	if err := <-done; err != nil {
		t.Fatalf("publish with receipt: %v", err)
	}
}

func TestReceiptTimeout(t *testing.T) {
	mc := &mockClient{}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	defer func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } }()
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", ReceiptTopic: "receipts", ReceiptMS: 1}
	pub, err := NewPahoPublisher(cfg)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	err = pub.PublishSchedule(context.Background(), testPublication(t))
	if !errors.Is(err, publish.ErrReceiptTimeout) {
		t.Fatalf("expected receipt timeout, got %v", err)
	}
}

// mockClient implements pahoClient for tests
type mockClient struct {
	opts       *paho.ClientOptions
	subscribed []struct {
		topic string
		qos   byte
	}
	published []struct {
		topic   string
		qos     byte
		payload []byte
	}
	publishErrs []error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	b, _ := payload.([]byte)
	m.published = append(m.published, struct {
		topic   string
		qos     byte
		payload []byte
	}{topic, qos, b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, _ paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct{ p []byte }

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return "" }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
