package sink

import (
	"context"
	"fmt"

	swap "github.com/kaifufi/p2p-swap-go"
	"github.com/segmentio/kafka-go"
)

// HeaderEventType carries the event type on every kafka message
const HeaderEventType = "event-type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes events to a kafka topic keyed by account, so one
// account's events stay on one partition in order.
type KafkaWriter struct {
	w messageWriter
}

// NewKafkaWriter creates a writer for the configured brokers and topic
func NewKafkaWriter(config swap.KafkaConfig) (*KafkaWriter, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	return &KafkaWriter{w: &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}, nil
}

func (k *KafkaWriter) Write(ctx context.Context, m Message) error {
	msg := kafka.Message{
		Key:     []byte(m.Key),
		Value:   m.Value,
		Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte(m.Type)}},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaWriter) Close() error {
	return k.w.Close()
}
