package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tvwebhook/internal/config"
)

// RedisMirror keeps the newest record under a key and publishes every record
// on a channel for downstream consumers.
type RedisMirror struct {
	client  *redis.Client
	channel string
	lastKey string
	ttl     time.Duration
}

// NewRedisClient builds a client from runtime settings.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisMirror wraps client. Empty channel or key names fall back to defaults.
func NewRedisMirror(client *redis.Client, cfg config.RedisConfig) *RedisMirror {
	channel := cfg.Channel
	if channel == "" {
		channel = "tv.alerts"
	}
	lastKey := cfg.LastKey
	if lastKey == "" {
		lastKey = "tv:last"
	}
	return &RedisMirror{client: client, channel: channel, lastKey: lastKey, ttl: cfg.TTL}
}

// Name implements RecordSink.
func (r *RedisMirror) Name() string { return "redis" }

type redisEnvelope struct {
	Key    string       `json:"key"`
	Record StoredRecord `json:"record"`
}

// Put writes SET and PUBLISH in one pipeline.
func (r *RedisMirror) Put(ctx context.Context, key RecordKey, rec StoredRecord) error {
	doc, err := json.Marshal(redisEnvelope{Key: key.Name, Record: rec})
	if err != nil {
		return fmt.Errorf("marshal redis envelope: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.lastKey, doc, r.ttl)
	pipe.Publish(ctx, r.channel, doc)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisMirror) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *RedisMirror) Close() error {
	return r.client.Close()
}

var _ RecordSink = (*RedisMirror)(nil)
