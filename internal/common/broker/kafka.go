package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-platform/internal/common/config"
	"notification-platform/internal/common/logger"

	"github.com/IBM/sarama"
)

// NewSaramaConfig translates KafkaConfig into a sarama config with the
// idempotent producer settings the platform relies on.
func NewSaramaConfig(cfg config.KafkaConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID

	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("kafka version: %w", err)
		}
		sc.Version = v
	} else {
		sc.Version = sarama.V2_8_0_0
	}

	// Idempotence requires acks=all and a single in-flight request.
	sc.Producer.Idempotent = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 5
	sc.Net.MaxOpenRequests = 1

	if cfg.SessionTimeout > 0 {
		sc.Consumer.Group.Session.Timeout = config.GetDuration(cfg.SessionTimeout)
	}
	if cfg.HeartbeatInterval > 0 {
		sc.Consumer.Group.Heartbeat.Interval = config.GetDuration(cfg.HeartbeatInterval)
	}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}
	return sc, nil
}

// ==========================
// Publisher
// ==========================

type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	sc, err := NewSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &KafkaPublisher{producer: producer}, nil
}

// NewKafkaPublisherWithProducer wraps an existing producer (tests, shared clients).
func NewKafkaPublisherWithProducer(p sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: p}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := p.producer.SendMessage(toProducerMessage(msg)); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	return nil
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := make([]*sarama.ProducerMessage, 0, len(msgs))
	for _, m := range msgs {
		batch = append(batch, toProducerMessage(m))
	}
	if err := p.producer.SendMessages(batch); err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			return fmt.Errorf("publish batch: %d of %d messages failed: %w", len(perrs), len(msgs), err)
		}
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func toProducerMessage(m Message) *sarama.ProducerMessage {
	pm := &sarama.ProducerMessage{
		Topic: m.Topic,
		Value: sarama.ByteEncoder(m.Value),
	}
	if m.Key != "" {
		pm.Key = sarama.StringEncoder(m.Key)
	}
	for k, v := range m.Headers {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	if !m.Timestamp.IsZero() {
		pm.Timestamp = m.Timestamp
	}
	return pm
}

// ==========================
// Subscriber
// ==========================

type consumerGroupFactory func(brokers []string, groupID string, sc *sarama.Config) (sarama.ConsumerGroup, error)

type KafkaSubscriber struct {
	cfg      config.KafkaConfig
	logger   logger.Logger
	newGroup consumerGroupFactory

	group  sarama.ConsumerGroup
	topics []string
}

func NewKafkaSubscriber(cfg config.KafkaConfig, log logger.Logger) *KafkaSubscriber {
	return &KafkaSubscriber{
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"broker": "kafka", "groupId": cfg.GroupID}),
		newGroup: sarama.NewConsumerGroup,
	}
}

func (s *KafkaSubscriber) Connect(ctx context.Context) error {
	sc, err := NewSaramaConfig(s.cfg)
	if err != nil {
		return err
	}
	group, err := s.newGroup(s.cfg.Brokers, s.cfg.GroupID, sc)
	if err != nil {
		return fmt.Errorf("kafka consumer group: %w", err)
	}
	s.group = group
	return nil
}

func (s *KafkaSubscriber) Subscribe(ctx context.Context, topics []string) error {
	if s.group == nil {
		return errors.New("kafka subscriber is not connected")
	}
	if len(topics) == 0 {
		return errors.New("no topics to subscribe to")
	}
	s.topics = append([]string(nil), topics...)
	return nil
}

func (s *KafkaSubscriber) Consume(ctx context.Context, h Handler) error {
	if s.group == nil || len(s.topics) == 0 {
		return errors.New("kafka subscriber is not subscribed")
	}

	go func() {
		for err := range s.group.Errors() {
			s.logger.Error("consumer group error", map[string]interface{}{"error": err})
		}
	}()

	handler := &groupHandler{handle: h, logger: s.logger}
	for {
		// Consume returns on every rebalance; loop until ctx ends.
		if err := s.group.Consume(ctx, s.topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consume: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *KafkaSubscriber) Close() error {
	if s.group == nil {
		return nil
	}
	err := s.group.Close()
	s.group = nil
	return err
}

// groupHandler adapts a Handler to sarama.ConsumerGroupHandler.
type groupHandler struct {
	handle Handler
	logger logger.Logger
}

func (g *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	g.logger.Info("partitions assigned", map[string]interface{}{"claims": session.Claims()})
	return nil
}

func (g *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (g *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case cm, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			msg := fromConsumerMessage(cm)
			if err := g.handle(session.Context(), msg); err != nil {
				g.logger.Error("message handler failed", map[string]interface{}{
					"topic":     cm.Topic,
					"partition": cm.Partition,
					"offset":    cm.Offset,
					"error":     err,
				})
			}
			session.MarkMessage(cm, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func fromConsumerMessage(cm *sarama.ConsumerMessage) *Message {
	msg := &Message{
		Topic:     cm.Topic,
		Key:       string(cm.Key),
		Value:     cm.Value,
		Partition: cm.Partition,
		Offset:    cm.Offset,
		Timestamp: cm.Timestamp,
	}
	if len(cm.Headers) > 0 {
		msg.Headers = make(map[string]string, len(cm.Headers))
		for _, h := range cm.Headers {
			if h != nil {
				msg.Headers[string(h.Key)] = string(h.Value)
			}
		}
	}
	return msg
}

// ==========================
// Admin
// ==========================

type KafkaAdmin struct {
	admin sarama.ClusterAdmin
}

func NewKafkaAdmin(cfg config.KafkaConfig) (*KafkaAdmin, error) {
	sc, err := NewSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc.Admin.Timeout = 10 * time.Second
	admin, err := sarama.NewClusterAdmin(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka admin: %w", err)
	}
	return &KafkaAdmin{admin: admin}, nil
}

func (a *KafkaAdmin) ListTopics(ctx context.Context) ([]string, error) {
	topics, err := a.admin.ListTopics()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(topics))
	for name := range topics {
		out = append(out, name)
	}
	return out, nil
}

func (a *KafkaAdmin) CreateTopic(ctx context.Context, name string, partitions int32, replicationFactor int16) error {
	err := a.admin.CreateTopic(name, &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
	}, false)
	if errors.Is(err, sarama.ErrTopicAlreadyExists) {
		return nil
	}
	return err
}

func (a *KafkaAdmin) Close() error {
	return a.admin.Close()
}
