package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dedupPrefix     = "notification:event:"
	DefaultDedupTTL = 24 * time.Hour
)

// Deduplicator reports whether an identical event was already handled.
type Deduplicator interface {
	Seen(ctx context.Context, topic string, payload []byte) (bool, error)
}

// RedisDeduplicator claims sha256(topic+payload) with SETNX. The first claim
// wins; later copies inside the TTL are duplicates.
type RedisDeduplicator struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisDeduplicator(client redis.Cmdable, ttl time.Duration) *RedisDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduplicator{client: client, ttl: ttl}
}

func (d *RedisDeduplicator) Seen(ctx context.Context, topic string, payload []byte) (bool, error) {
	claimed, err := d.client.SetNX(ctx, dedupKey(topic, payload), 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

func dedupKey(topic string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(topic))
	h.Write(payload)
	return dedupPrefix + hex.EncodeToString(h.Sum(nil))
}
