package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// DefaultKafkaTopic is the topic alert events are published to.
const DefaultKafkaTopic = "aqi-alerts"

// MessageWriter is the subset of *kafka.Writer used by KafkaDispatcher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher publishes alert events for downstream notification services.
// Events are keyed by recipient so one user's alerts stay ordered.
type KafkaDispatcher struct {
	writer MessageWriter
}

// NewKafkaWriter creates a synchronous writer for the alert topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaDispatcher creates a dispatcher writing through w.
func NewKafkaDispatcher(w MessageWriter) *KafkaDispatcher {
	return &KafkaDispatcher{writer: w}
}

// Dispatch implements Dispatcher.
func (d *KafkaDispatcher) Dispatch(ctx context.Context, a Alert) error {
	value, err := json.Marshal(a.Event())
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(a.Recipient),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("aqi_alert")},
		},
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing alert: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

var _ Dispatcher = (*KafkaDispatcher)(nil)
