// Package broker hides the event transport (Kafka or NATS JetStream) behind
// small publish / subscribe / admin interfaces.
package broker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"notification-platform/internal/common/config"
	"notification-platform/internal/common/logger"
)

// Message is a transport-neutral event.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Handler processes one consumed message. The returned error is logged by the
// transport; the message is acknowledged either way.
type Handler func(ctx context.Context, msg *Message) error

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	PublishBatch(ctx context.Context, msgs []Message) error
	Close() error
}

// Subscriber is driven through Connect, Subscribe, Consume, Close in that order.
type Subscriber interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topics []string) error
	// Consume blocks until ctx is cancelled or the session fails.
	Consume(ctx context.Context, h Handler) error
	Close() error
}

type Admin interface {
	ListTopics(ctx context.Context) ([]string, error)
	CreateTopic(ctx context.Context, name string, partitions int32, replicationFactor int16) error
	Close() error
}

// EnsureTopics creates every topic in want that the cluster does not already
// have and returns the names it created.
func EnsureTopics(ctx context.Context, admin Admin, want []string, partitions int32, replicationFactor int16) ([]string, error) {
	existing, err := admin.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	have := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		have[t] = struct{}{}
	}

	var created []string
	for _, topic := range want {
		if _, ok := have[topic]; ok {
			continue
		}
		if err := admin.CreateTopic(ctx, topic, partitions, replicationFactor); err != nil {
			return created, fmt.Errorf("create topic %s: %w", topic, err)
		}
		created = append(created, topic)
	}
	sort.Strings(created)
	return created, nil
}

// NewPublisher builds the publisher for cfg.Driver.
func NewPublisher(cfg config.BrokerConfig, log logger.Logger) (Publisher, error) {
	switch cfg.Driver {
	case "kafka":
		return NewKafkaPublisher(cfg.Kafka)
	case "nats":
		return NewNATSPublisher(cfg.NATS, log)
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
}

// NewSubscriber builds the subscriber for cfg.Driver. Nothing connects until Connect.
func NewSubscriber(cfg config.BrokerConfig, log logger.Logger) (Subscriber, error) {
	switch cfg.Driver {
	case "kafka":
		return NewKafkaSubscriber(cfg.Kafka, log), nil
	case "nats":
		return NewNATSSubscriber(cfg.NATS, log), nil
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
}

func NewAdmin(cfg config.BrokerConfig, log logger.Logger) (Admin, error) {
	switch cfg.Driver {
	case "kafka":
		return NewKafkaAdmin(cfg.Kafka)
	case "nats":
		return NewNATSAdmin(cfg.NATS, log)
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
}
