package notify

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

const publishTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes envelopes to a Kafka topic keyed by channel, so one company's events
// stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	nowF   func() time.Time
}

// NewKafkaPublisher creates a publisher for topic. Returns nil when brokers or topic are empty.
// Call Close when shutting down.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, topic: topic, nowF: time.Now}
}

// Publish serializes the envelope and writes it with a short timeout so a slow broker does not
// stall the session loop.
func (p *KafkaPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
	if p == nil || p.writer == nil {
		return nil
	}
	value, err := encodeEnvelope(channel, event, payload, p.nowF())
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(channel),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event)},
		},
	})
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
