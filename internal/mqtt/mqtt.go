package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"templog-server/internal/config"
	"templog-server/internal/modules/templog/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishQoS = byte(1) // At least once delivery

var (
	errStopped      = errors.New("publisher stopped")
	errNotConnected = errors.New("mqtt client not connected")
)

// Publisher announces stored temperature records on an MQTT topic.
type Publisher struct {
	client    mqtt.Client
	topic     string
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// recordEvent is the JSON body published for every stored record.
type recordEvent struct {
	ID   types.RecordID `json:"id"`
	Temp int            `json:"temp"`
	Lat  float64        `json:"lat"`
	Long float64        `json:"long"`
}

func NewPublisher(cfg config.Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		topic:  cfg.MQTTTopic,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWriteTimeout(5 * time.Second)

	// Callbacks keep internal state accurate
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

func newPublisherWithClient(client mqtt.Client, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:    client,
		topic:     topic,
		logger:    logger,
		connected: true,
		stopCh:    make(chan struct{}),
	}
}

// Connect establishes the connection to the broker. The client keeps
// reconnecting in the background after the first successful connect.
func (p *Publisher) Connect(ctx context.Context) error {
	// Fail fast if already stopped.
	select {
	case <-p.stopCh:
		return errStopped
	default:
	}

	// Fast path.
	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()
	if err := p.wait(ctx, token); err != nil {
		p.client.Disconnect(0)
		return fmt.Errorf("mqtt connect: %w", err)
	}
	// OnConnectHandler sets connected=true.
	return nil
}

// Publish sends one record event and waits for the broker to acknowledge it
// or for ctx to end.
func (p *Publisher) Publish(ctx context.Context, record types.Record) error {
	if !p.IsConnected() {
		return errNotConnected
	}

	payload, err := json.Marshal(recordEvent{
		ID:   record.ID,
		Temp: record.Temp,
		Lat:  record.Lat,
		Long: record.Long,
	})
	if err != nil {
		return fmt.Errorf("encode record event: %w", err)
	}

	token := p.client.Publish(p.topic, publishQoS, false, payload)
	if err := p.wait(ctx, token); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	p.logger.Debug("published record event", "topic", p.topic, "id", record.ID)
	return nil
}

// wait blocks until token completes, ctx ends or the publisher stops.
func (p *Publisher) wait(ctx context.Context, token mqtt.Token) error {
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			return token.Error()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return errStopped
		default:
		}
	}
}

// IsConnected returns whether the client is connected.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect stops the publisher and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (p *Publisher) Disconnect() {
	first := false
	// Signal shutdown once (unblocks any Connect or Publish waits).
	p.stopOnce.Do(func() {
		close(p.stopCh)
		first = true
	})
	if !first {
		return
	}

	// Disconnect without holding p.mu to avoid lock contention/deadlocks.
	if p.client != nil {
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	p.logger.Info("mqtt publisher disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
