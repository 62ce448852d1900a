package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tvwebhook/internal/config"
)

func TestRedisMirrorSetAndPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mirror := NewRedisMirror(client, config.RedisConfig{Channel: "alerts", LastKey: "tv:last", TTL: time.Hour})
	defer mirror.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "alerts")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	key := RecordKey{Name: "20250101_000000_000001"}
	if err := mirror.Put(ctx, key, sampleRecord("BTCUSD")); err != nil {
		t.Fatalf("put: %v", err)
	}

	stored, err := mr.Get("tv:last")
	if err != nil {
		t.Fatalf("last key missing: %v", err)
	}
	var env struct {
		Key    string          `json:"key"`
		Record json.RawMessage `json:"record"`
	}
	if err := json.Unmarshal([]byte(stored), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Key != key.Name {
		t.Fatalf("envelope key = %s", env.Key)
	}
	if ttl := mr.TTL("tv:last"); ttl != time.Hour {
		t.Fatalf("ttl = %s", ttl)
	}

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(recvCtx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if msg.Payload != stored {
		t.Fatal("published payload must equal the stored document")
	}
}

func TestRedisMirrorUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	mirror := NewRedisMirror(client, config.RedisConfig{})
	defer mirror.Close()
	mr.Close()

	if err := mirror.Put(context.Background(), RecordKey{Name: "k"}, sampleRecord("X")); err == nil {
		t.Fatal("put against a closed server should fail")
	}
}
