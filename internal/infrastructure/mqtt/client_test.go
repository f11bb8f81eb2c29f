package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1,
			ClientID: "nexowatt-test",
		},
		QoS:           1,
		StatePrefix:   "iobroker/",
		CommandSuffix: "set",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     2,
		},
	}
}

func TestTopics(t *testing.T) {
	topics := NewTopics("iobroker/", "", "vis")

	if got := topics.State("inv.0.power"); got != "iobroker/inv/0/power" {
		t.Errorf("State() = %q", got)
	}
	if got := topics.Command("inv.0.power"); got != "iobroker/inv/0/power/set" {
		t.Errorf("Command() = %q", got)
	}
	if got := topics.Status(); got != "nexowatt/vis/status" {
		t.Errorf("Status() = %q", got)
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{7, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := backoffDelay(tt.attempt, time.Second, 30*time.Second); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	if got := backoffDelay(1, 0, 0); got != time.Second {
		t.Errorf("backoffDelay with zero config = %v, want 1s", got)
	}
}

func TestBrokerURL(t *testing.T) {
	cfg := testConfig()
	if got := brokerURL(cfg); got != "tcp://127.0.0.1:1" {
		t.Errorf("brokerURL() = %q", got)
	}
	cfg.Broker.TLS = true
	if !strings.HasPrefix(brokerURL(cfg), "ssl://") {
		t.Errorf("brokerURL() with TLS = %q", brokerURL(cfg))
	}
}

func TestStatusPayload(t *testing.T) {
	p := statusPayload("offline", "vis", "graceful_shutdown")
	for _, want := range []string{`"status":"offline"`, `"client_id":"vis"`, `"reason":"graceful_shutdown"`} {
		if !strings.Contains(p, want) {
			t.Errorf("statusPayload() = %s, missing %s", p, want)
		}
	}
	if strings.Contains(statusPayload("online", "vis", ""), "reason") {
		t.Error("online payload should not carry a reason")
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	_, err := Connect(testConfig())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectWithRetry_MaxAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.MaxAttempts = 1

	_, err := ConnectWithRetry(context.Background(), cfg, nil)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("ConnectWithRetry() error = %v, want ErrRetriesExhausted", err)
	}
}

func TestConnectWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := ConnectWithRetry(ctx, testConfig(), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ConnectWithRetry() error = %v, want deadline exceeded", err)
	}
}

func TestDisconnectedClient(t *testing.T) {
	c := newClient(testConfig())

	if c.IsConnected() {
		t.Error("IsConnected() = true before connect")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.PublishCommand("a.b", []byte("1")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishCommand() error = %v, want ErrNotConnected", err)
	}
	if err := c.SubscribeState("a.b", func(string, []byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SubscribeState() error = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestPublishValidation(t *testing.T) {
	c := newClient(testConfig())

	if err := c.Publish("", nil, 0, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Publish("t", nil, 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad QoS error = %v", err)
	}
	if err := c.Publish("t", make([]byte, maxPayloadSize+1), 0, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload error = %v", err)
	}
	if err := c.Subscribe("t", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Info(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func TestDeliver_RecoversAndLogs(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.deliver(func(string, []byte) error { panic("boom") }, "t", nil)
	c.deliver(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)
	c.deliver(func(string, []byte) error { return nil }, "t", nil)

	if len(logger.errs) != 1 {
		t.Errorf("errors logged = %d, want 1", len(logger.errs))
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings logged = %d, want 1", len(logger.warns))
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
