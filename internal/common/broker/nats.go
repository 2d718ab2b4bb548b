package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"notification-platform/internal/common/config"
	"notification-platform/internal/common/logger"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const keyHeader = "Event-Key"

func connectNATS(url string, log logger.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", map[string]interface{}{"error": err})
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			log.Info("nats reconnected", nil)
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}

// ensureStream makes sure the stream exists and captures every subject in topics.
func ensureStream(ctx context.Context, js jetstream.JetStream, name string, topics []string) (jetstream.Stream, error) {
	subjects := append([]string(nil), topics...)
	if stream, err := js.Stream(ctx, name); err == nil {
		info, err := stream.Info(ctx)
		if err != nil {
			return nil, err
		}
		subjects = mergeSubjects(info.Config.Subjects, topics)
		if len(subjects) == len(info.Config.Subjects) {
			return stream, nil
		}
	}
	return js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
}

func mergeSubjects(existing, add []string) []string {
	set := make(map[string]struct{}, len(existing)+len(add))
	for _, s := range existing {
		set[s] = struct{}{}
	}
	for _, s := range add {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ==========================
// Publisher
// ==========================

type NATSPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

func NewNATSPublisher(cfg config.NATSConfig, log logger.Logger) (*NATSPublisher, error) {
	nc, js, err := connectNATS(cfg.URL, log)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc, js: js}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, msg Message) error {
	if _, err := p.js.PublishMsg(ctx, toNATSMsg(msg)); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	return nil
}

// PublishBatch publishes asynchronously and waits for every ack.
func (p *NATSPublisher) PublishBatch(ctx context.Context, msgs []Message) error {
	futures := make([]jetstream.PubAckFuture, 0, len(msgs))
	for _, m := range msgs {
		f, err := p.js.PublishMsgAsync(toNATSMsg(m))
		if err != nil {
			return fmt.Errorf("publish to %s: %w", m.Topic, err)
		}
		futures = append(futures, f)
	}

	failed := 0
	var firstErr error
	for _, f := range futures {
		select {
		case <-f.Ok():
		case err := <-f.Err():
			failed++
			if firstErr == nil {
				firstErr = err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failed > 0 {
		return fmt.Errorf("publish batch: %d of %d messages failed: %w", failed, len(msgs), firstErr)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

func toNATSMsg(m Message) *nats.Msg {
	nm := nats.NewMsg(m.Topic)
	nm.Data = m.Value
	if m.Key != "" {
		nm.Header.Set(keyHeader, m.Key)
	}
	for k, v := range m.Headers {
		nm.Header.Set(k, v)
	}
	return nm
}

// ==========================
// Subscriber
// ==========================

type NATSSubscriber struct {
	cfg    config.NATSConfig
	logger logger.Logger

	conn     *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
}

func NewNATSSubscriber(cfg config.NATSConfig, log logger.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"broker": "nats", "stream": cfg.Stream}),
	}
}

func (s *NATSSubscriber) Connect(ctx context.Context) error {
	nc, js, err := connectNATS(s.cfg.URL, s.logger)
	if err != nil {
		return err
	}
	s.conn, s.js = nc, js
	return nil
}

func (s *NATSSubscriber) Subscribe(ctx context.Context, topics []string) error {
	if s.js == nil {
		return errors.New("nats subscriber is not connected")
	}
	if len(topics) == 0 {
		return errors.New("no topics to subscribe to")
	}
	if _, err := ensureStream(ctx, s.js, s.cfg.Stream, topics); err != nil {
		return fmt.Errorf("stream %s: %w", s.cfg.Stream, err)
	}
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, s.cfg.Stream, jetstream.ConsumerConfig{
		Durable:        s.cfg.Durable,
		FilterSubjects: topics,
		AckPolicy:      jetstream.AckExplicitPolicy,
		DeliverPolicy:  jetstream.DeliverNewPolicy,
		ReplayPolicy:   jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("consumer %s: %w", s.cfg.Durable, err)
	}
	s.consumer = consumer
	return nil
}

func (s *NATSSubscriber) Consume(ctx context.Context, h Handler) error {
	if s.consumer == nil {
		return errors.New("nats subscriber is not subscribed")
	}
	iter, err := s.consumer.Messages(jetstream.PullMaxMessages(10))
	if err != nil {
		return fmt.Errorf("message iterator: %w", err)
	}
	go func() {
		<-ctx.Done()
		iter.Stop()
	}()

	for {
		msg, err := iter.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				return nil
			}
			s.logger.Warn("fetch failed", map[string]interface{}{"error": err})
			continue
		}

		m := fromNATSMsg(msg)
		if err := h(ctx, m); err != nil {
			s.logger.Error("message handler failed", map[string]interface{}{
				"topic": m.Topic,
				"error": err,
			})
		}
		if err := msg.Ack(); err != nil {
			s.logger.Warn("ack failed", map[string]interface{}{"topic": m.Topic, "error": err})
		}
	}
}

func (s *NATSSubscriber) Close() error {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return nil
}

func fromNATSMsg(msg jetstream.Msg) *Message {
	m := &Message{
		Topic: msg.Subject(),
		Value: msg.Data(),
	}
	if hdr := msg.Headers(); len(hdr) > 0 {
		m.Key = hdr.Get(keyHeader)
		m.Headers = make(map[string]string, len(hdr))
		for k := range hdr {
			if k != keyHeader {
				m.Headers[k] = hdr.Get(k)
			}
		}
	}
	if md, err := msg.Metadata(); err == nil {
		m.Offset = int64(md.Sequence.Stream)
		m.Timestamp = md.Timestamp
	}
	return m
}

// ==========================
// Admin
// ==========================

// NATSAdmin treats topics as subjects captured by a single stream.
type NATSAdmin struct {
	cfg  config.NATSConfig
	conn *nats.Conn
	js   jetstream.JetStream
}

func NewNATSAdmin(cfg config.NATSConfig, log logger.Logger) (*NATSAdmin, error) {
	nc, js, err := connectNATS(cfg.URL, log)
	if err != nil {
		return nil, err
	}
	return &NATSAdmin{cfg: cfg, conn: nc, js: js}, nil
}

func (a *NATSAdmin) ListTopics(ctx context.Context) ([]string, error) {
	stream, err := a.js.Stream(ctx, a.cfg.Stream)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return nil, err
	}
	return info.Config.Subjects, nil
}

// CreateTopic adds the subject to the stream. Partition and replication
// settings have no JetStream equivalent at subject level.
func (a *NATSAdmin) CreateTopic(ctx context.Context, name string, _ int32, _ int16) error {
	_, err := ensureStream(ctx, a.js, a.cfg.Stream, []string{name})
	return err
}

func (a *NATSAdmin) Close() error {
	a.conn.Close()
	return nil
}
