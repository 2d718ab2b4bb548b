package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"notification-platform/internal/common/broker"
	"notification-platform/internal/common/logger"
	"notification-platform/internal/common/metrics"
	"notification-platform/internal/common/observability"
)

// State is the consumer lifecycle position.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateConsuming
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateConsuming:
		return "consuming"
	default:
		return "disconnected"
	}
}

var allStates = []State{StateDisconnected, StateConnecting, StateSubscribed, StateConsuming}

// Outcome labels for consumed events.
const (
	outcomeProcessed = "processed"
	outcomeMalformed = "malformed"
	outcomeInvalid   = "invalid"
	outcomeDuplicate = "duplicate"
	outcomeUnhandled = "unhandled"
	outcomeFailed    = "failed"
)

// Consumer reads the fixed topic set and hands every event to the matching
// handler. No single message can stop the stream: malformed, invalid and
// failing events are logged and acknowledged.
type Consumer struct {
	sub      broker.Subscriber
	handlers *Handlers
	dedup    Deduplicator
	obs      *observability.Observability
	logger   logger.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer builds a consumer. dedup may be nil.
func NewConsumer(sub broker.Subscriber, handlers *Handlers, dedup Deduplicator, obs *observability.Observability, log logger.Logger) *Consumer {
	c := &Consumer{
		sub:      sub,
		handlers: handlers,
		dedup:    dedup,
		obs:      obs,
		logger:   log.WithFields(map[string]interface{}{"component": "event-consumer"}),
	}
	c.setState(StateDisconnected)
	return c
}

func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		metrics.ConsumerState.WithLabelValues(st.String()).Set(v)
	}
	c.logger.Info("Consumer state changed", map[string]interface{}{"state": s.String()})
}

// Start connects, subscribes and consumes in the background. It returns once
// the consumer is consuming, or with the connect/subscribe error.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("consumer already started (%s)", c.state)
	}
	c.mu.Unlock()

	c.setState(StateConnecting)
	if err := c.sub.Connect(ctx); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("connect: %w", err)
	}

	topics := Topics()
	if err := c.sub.Subscribe(ctx, topics); err != nil {
		_ = c.sub.Close()
		c.setState(StateDisconnected)
		return fmt.Errorf("subscribe: %w", err)
	}
	c.setState(StateSubscribed)
	c.logger.Info("Subscribed to topics", map[string]interface{}{"topics": topics})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.setState(StateConsuming)
	go func() {
		defer close(done)
		if err := c.sub.Consume(runCtx, c.Handle); err != nil {
			c.logger.Error("Consumer stopped with error", map[string]interface{}{"error": err})
		}
		c.setState(StateDisconnected)
	}()
	return nil
}

// Stop cancels consumption, waits for the loop to exit and closes the
// subscriber.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	err := c.sub.Close()
	c.setState(StateDisconnected)
	return err
}

// DefaultRestartDelay is the pause between consumer restarts in Run.
const DefaultRestartDelay = 5 * time.Second

// Run keeps the consumer running until ctx ends. A failed start, or a consume
// loop that exits while ctx is still live, is retried after delay. Callers
// still call Stop on shutdown.
func (c *Consumer) Run(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		delay = DefaultRestartDelay
	}
	for {
		if err := c.Start(ctx); err != nil {
			c.logger.Warn("Consumer start failed", map[string]interface{}{"error": err, "retryIn": delay.String()})
		} else {
			c.mu.Lock()
			done := c.done
			c.mu.Unlock()
			if done != nil {
				select {
				case <-ctx.Done():
				case <-done:
				}
			}
			if ctx.Err() == nil {
				c.logger.Warn("Consume loop exited, restarting", map[string]interface{}{"retryIn": delay.String()})
				if err := c.Stop(); err != nil {
					c.logger.Warn("Closing subscriber failed", map[string]interface{}{"error": err})
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// Handle processes one message. It never returns an error so transports
// acknowledge every message.
func (c *Consumer) Handle(ctx context.Context, msg *broker.Message) error {
	outcome := c.process(ctx, msg)
	metrics.EventsConsumed.WithLabelValues(msg.Topic, outcome).Inc()
	c.obs.RecordEvent(ctx, msg.Topic, outcome)
	return nil
}

func (c *Consumer) process(ctx context.Context, msg *broker.Message) (outcome string) {
	log := c.logger.WithFields(map[string]interface{}{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	group, ok := topicGroup[msg.Topic]
	if !ok {
		log.Warn("Unhandled topic", nil)
		return outcomeUnhandled
	}

	var p payload
	if err := json.Unmarshal(msg.Value, &p); err != nil || p == nil {
		log.Error("Dropping malformed event payload", map[string]interface{}{"error": err})
		return outcomeMalformed
	}

	result, err := groupSchemas[group].Validate(map[string]interface{}(p))
	if err != nil || !result.Valid {
		fields := map[string]interface{}{"error": err}
		if result != nil {
			fields["violations"] = result.Summary()
		}
		log.Error("Dropping event that fails its schema", fields)
		return outcomeInvalid
	}

	if c.dedup != nil {
		seen, err := c.dedup.Seen(ctx, msg.Topic, msg.Value)
		switch {
		case err != nil:
			log.Warn("Dedup check failed, processing anyway", map[string]interface{}{"error": err})
		case seen:
			log.Info("Skipping duplicate event", nil)
			return outcomeDuplicate
		}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Event handler panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			outcome = outcomeFailed
		}
	}()

	log.Info("Processing event", map[string]interface{}{"group": group})
	if err := c.handlers.handle(ctx, msg.Topic, p); err != nil {
		log.Error("Event handler failed", map[string]interface{}{"error": err})
		return outcomeFailed
	}
	return outcomeProcessed
}
