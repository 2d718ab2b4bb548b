package events

import (
	"context"
	"encoding/json"
	"fmt"

	"notification-platform/internal/common/broker"
	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/common/metrics"
)

// Outbound is one event of a batch.
type Outbound struct {
	Key     string
	Value   interface{}
	Headers map[string]string
}

// Producer JSON-encodes events onto the broker. Duplicate suppression is left
// to the transport (idempotent Kafka producer, JetStream msg IDs).
type Producer struct {
	pub broker.Publisher
}

func NewProducer(pub broker.Publisher) *Producer {
	return &Producer{pub: pub}
}

// Publish encodes message and sends it to topic. key is optional.
func (p *Producer) Publish(ctx context.Context, topic string, message interface{}, key string) error {
	value, err := json.Marshal(message)
	if err != nil {
		return apperrors.NewBrokerPublishError(topic, fmt.Errorf("encode: %w", err))
	}
	if err := p.pub.Publish(ctx, broker.Message{Topic: topic, Key: key, Value: value}); err != nil {
		metrics.EventsPublished.WithLabelValues(topic, "failed").Inc()
		return apperrors.NewBrokerPublishError(topic, err)
	}
	metrics.EventsPublished.WithLabelValues(topic, "published").Inc()
	return nil
}

// PublishBatch encodes every message and sends them as one producer batch.
// Nothing is sent when any message fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Outbound) error {
	if len(messages) == 0 {
		return nil
	}
	batch := make([]broker.Message, 0, len(messages))
	for i, m := range messages {
		value, err := json.Marshal(m.Value)
		if err != nil {
			return apperrors.NewBrokerPublishError(topic, fmt.Errorf("encode message %d: %w", i, err))
		}
		batch = append(batch, broker.Message{Topic: topic, Key: m.Key, Value: value, Headers: m.Headers})
	}
	if err := p.pub.PublishBatch(ctx, batch); err != nil {
		metrics.EventsPublished.WithLabelValues(topic, "failed").Add(float64(len(batch)))
		return apperrors.NewBrokerPublishError(topic, err)
	}
	metrics.EventsPublished.WithLabelValues(topic, "published").Add(float64(len(batch)))
	return nil
}

func (p *Producer) Close() error {
	return p.pub.Close()
}
