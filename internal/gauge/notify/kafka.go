package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	gaugeapp "energy-gauge/internal/gauge/application"
	"energy-gauge/internal/observability/metrics"
)

const (
	sinkKafka         = "kafka"
	headerEventID     = "event-id"
	headerContentType = "content-type"
)

// KafkaConfig configures the Kafka reading publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Acks    int
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier writes every reading to a topic keyed by card id.
type KafkaNotifier struct {
	writer messageWriter
}

// NewKafkaNotifier constructs a notifier backed by a kafka.Writer.
func NewKafkaNotifier(cfg KafkaConfig) (*KafkaNotifier, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka notifier: empty topic")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka notifier: at least one broker is required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequiredAcks(cfg.Acks),
		AllowAutoTopicCreation: false,
		Balancer:               &kafka.Hash{},
	}
	return &KafkaNotifier{writer: writer}, nil
}

// Publish implements gaugeapp.Notifier.
func (n *KafkaNotifier) Publish(ctx context.Context, reading gaugeapp.Reading) error {
	if n == nil || n.writer == nil {
		return nil
	}
	value, err := json.Marshal(reading)
	if err != nil {
		metrics.IncPublish(sinkKafka, metrics.ResultError)
		return err
	}
	msg := kafka.Message{
		Key:   []byte(reading.CardID),
		Value: value,
		Time:  reading.UpdatedAt,
		Headers: []kafka.Header{
			{Key: headerEventID, Value: []byte(uuid.NewString())},
			{Key: headerContentType, Value: []byte("application/json")},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		metrics.IncPublish(sinkKafka, metrics.ResultError)
		return fmt.Errorf("kafka notifier: write %s: %w", reading.CardID, err)
	}
	metrics.IncPublish(sinkKafka, metrics.ResultSuccess)
	return nil
}

// Close flushes and closes the writer.
func (n *KafkaNotifier) Close() error {
	if n == nil || n.writer == nil {
		return nil
	}
	return n.writer.Close()
}
