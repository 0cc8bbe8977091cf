package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/itohio/emgcap/pkg/config"
	"github.com/itohio/emgcap/pkg/logger"
)

// DefaultPublishTimeout bounds how long Notify waits for the broker.
const DefaultPublishTimeout = 5 * time.Second

// Summary describes a stored session.
type Summary struct {
	SessionID     string    `json:"session_id"`
	OperatorID    string    `json:"operator_id"`
	Variation     int       `json:"variation"`
	VariationName string    `json:"variation_name"`
	Label         string    `json:"label"`
	Samples       int       `json:"samples"` // Frames per channel
	Rejected      int       `json:"rejected"`
	DurationMS    int64     `json:"duration_ms"`
	StartedAt     time.Time `json:"started_at"`
	ArchivePath   string    `json:"archive_path,omitempty"`
}

// Notifier announces stored sessions.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
	Close()
}

var _ Notifier = (*MQTT)(nil)

// publisher is the subset of mqtt.Client used by MQTT.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes session summaries as JSON.
type MQTT struct {
	client  publisher
	topic   string // e.g. "emgcap/session/{operator_id}"
	timeout time.Duration
	log     *zap.Logger
}

// NewMQTT connects to the broker in cfg.
func NewMQTT(cfg config.MQTTConfig, log *zap.Logger) (*MQTT, error) {
	log = logger.OrNop(log)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Debug("MQTT connection established", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost", zap.Error(err))
	})
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(DefaultPublishTimeout)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Info("connected to MQTT broker", zap.String("broker", cfg.Broker))
	return newMQTT(client, cfg.Topic, log), nil
}

func newMQTT(client publisher, topic string, log *zap.Logger) *MQTT {
	log = logger.OrNop(log)
	return &MQTT{
		client:  client,
		topic:   topic,
		timeout: DefaultPublishTimeout,
		log:     log,
	}
}

// Topic returns the topic a summary is published to.
func (m *MQTT) Topic(s Summary) string {
	topic := strings.ReplaceAll(m.topic, "{operator_id}", s.OperatorID)
	return strings.ReplaceAll(topic, "{session_id}", s.SessionID)
}

// Notify publishes s with QoS 1.
func (m *MQTT) Notify(ctx context.Context, s Summary) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session summary: %w", err)
	}

	topic := m.Topic(s)
	token := m.client.Publish(topic, 1, false, payload)

	timeout := m.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish to %s timed out after %s", topic, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	m.log.Debug("session summary published", zap.String("topic", topic), zap.String("session_id", s.SessionID))
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
