package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ksurdhar/draft-editor-sub002/internal/app"
)

// BusMessage is one relayed event crossing instances. Instance identifies
// the publisher so subscribers can skip their own traffic: the publishing
// instance already fanned the event out locally.
type BusMessage struct {
	Instance string          `json:"instance"`
	Doc      string          `json:"doc"`
	Origin   string          `json:"origin"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type RedisBus struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewRedisBus connects to redis and verifies connectivity
func NewRedisBus(ctx context.Context, cfg app.Config, log *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBus{rdb: rdb, log: log}, nil
}

// Publish sends a relayed event to the channel for its document
func (b *RedisBus) Publish(ctx context.Context, m BusMessage) error {
	raw, _ := json.Marshal(m)
	return b.rdb.Publish(ctx, channel(m.Doc), raw).Err()
}

// Subscribe listens to every document channel and invokes fn per message
func (b *RedisBus) Subscribe(ctx context.Context, fn func(BusMessage)) {
	pubsub := b.rdb.PSubscribe(ctx, channel("*"))
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = pubsub.Close()
			return
		case msg := <-ch:
			var bm BusMessage
			if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil {
				b.log.Warn("bus.decode", "err", err)
				continue
			}
			if bm.Doc != "" {
				fn(bm)
			}
		}
	}
}

// Close shuts down the redis connection
func (b *RedisBus) Close() { _ = b.rdb.Close() }

// channel namespacing for document pub/sub
func channel(doc string) string { return "draft:" + doc }
