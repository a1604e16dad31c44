package sink

import (
	"context"
	"fmt"

	swap "github.com/kaifufi/p2p-swap-go"
	"github.com/redis/go-redis/v9"
)

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisWriter publishes each event on "<channel>.<type>" so subscribers can
// pattern-subscribe to "<channel>.*".
type RedisWriter struct {
	client  redisPublisher
	channel string
}

// NewRedisWriter connects to redis and verifies the connection with PING
func NewRedisWriter(ctx context.Context, config swap.RedisConfig) (*RedisWriter, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if config.Channel == "" {
		return nil, fmt.Errorf("redis channel is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisWriter{client: client, channel: config.Channel}, nil
}

// Channel returns the channel events of type t are published on
func (r *RedisWriter) Channel(t swap.EventType) string {
	return r.channel + "." + string(t)
}

func (r *RedisWriter) Write(ctx context.Context, m Message) error {
	if err := r.client.Publish(ctx, r.Channel(m.Type), m.Value).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (r *RedisWriter) Close() error {
	return r.client.Close()
}
