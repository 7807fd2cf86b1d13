package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	gaugeapp "energy-gauge/internal/gauge/application"
	"energy-gauge/internal/observability/metrics"
)

const (
	sinkMQTT                  = "mqtt"
	defaultMQTTTopicPrefix    = "energy-gauge"
	defaultMQTTConnectTimeout = 10 * time.Second
	mqttDisconnectQuiesceMs   = 250
)

// MQTTConfig configures the MQTT state publisher.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
}

type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier publishes every reading as a retained JSON state message on
// <prefix>/<card>/state.
type MQTTNotifier struct {
	client tokenPublisher
	close  func()
	prefix string
	qos    byte
	retain bool
	log    *zap.Logger
}

// NewMQTTNotifier connects to the broker and returns a notifier.
func NewMQTTNotifier(cfg MQTTConfig, logger *zap.Logger) (*MQTTNotifier, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt notifier: empty broker")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "energy-gauge-" + uuid.NewString()
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultMQTTConnectTimeout
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout).
		SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt notifier: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt notifier: connect: %w", err)
	}
	logger.Info("mqtt notifier connected", zap.String("broker", cfg.Broker), zap.String("client_id", clientID))

	notifier := newMQTTNotifier(client, cfg, logger)
	notifier.close = func() { client.Disconnect(mqttDisconnectQuiesceMs) }
	return notifier, nil
}

func newMQTTNotifier(client tokenPublisher, cfg MQTTConfig, logger *zap.Logger) *MQTTNotifier {
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = defaultMQTTTopicPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTTNotifier{client: client, prefix: prefix, qos: cfg.QoS, retain: cfg.Retain, log: logger}
}

// Topic returns the state topic of a card.
func (n *MQTTNotifier) Topic(cardID string) string {
	return n.prefix + "/" + cardID + "/state"
}

// Publish implements gaugeapp.Notifier.
func (n *MQTTNotifier) Publish(ctx context.Context, reading gaugeapp.Reading) error {
	if n == nil || n.client == nil {
		return nil
	}
	payload, err := json.Marshal(reading)
	if err != nil {
		metrics.IncPublish(sinkMQTT, metrics.ResultError)
		return err
	}
	token := n.client.Publish(n.Topic(reading.CardID), n.qos, n.retain, payload)
	select {
	case <-token.Done():
		err = token.Error()
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		metrics.IncPublish(sinkMQTT, metrics.ResultError)
		return fmt.Errorf("mqtt notifier: publish %s: %w", reading.CardID, err)
	}
	metrics.IncPublish(sinkMQTT, metrics.ResultSuccess)
	return nil
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	if n == nil || n.close == nil {
		return
	}
	n.close()
}
