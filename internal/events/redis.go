package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// streamMaxLen caps the event stream via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
}

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// RedisPublisher fans each event out on a Pub/Sub channel for live
// listeners and appends it to a capped stream for consumers that replay.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher publishes on channel and on the stream StreamName(channel).
func NewRedisPublisher(c *Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: c.rdb, channel: channel}
}

// StreamName is the stream events on channel are appended to.
func StreamName(channel string) string {
	return channel + ":stream"
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := e.Encode()
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", e.Type, err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", p.channel, err)
	}
	if err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName(p.channel),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":    string(e.Type),
			"payload": payload,
		},
	}).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", StreamName(p.channel), err)
	}
	return nil
}

var (
	_ Publisher = (*RedisPublisher)(nil)
	_ Publisher = NopPublisher{}
	_ Publisher = (*MemoryPublisher)(nil)
)
