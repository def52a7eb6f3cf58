package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// NewRedisClient creates a client from a redis:// URL
func NewRedisClient(url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// CheckRedisConnection pings the server
func CheckRedisConnection(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("error connecting to redis: %w", err)
	}
	return nil
}

// RedisPublisher pushes payloads onto a redis list consumed by the collector
type RedisPublisher struct {
	client redis.UniversalClient
	key    string
	log    log.Logger
}

// NewRedisPublisher creates a RedisPublisher appending to the list at key
func NewRedisPublisher(client redis.UniversalClient, key string, logger log.Logger) *RedisPublisher {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &RedisPublisher{client: client, key: key, log: logger}
}

func (p *RedisPublisher) Name() string { return "redis" }

// Dispatch appends the encoded payload to the list
func (p *RedisPublisher) Dispatch(ctx context.Context, payload *types.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	n, err := p.client.RPush(ctx, p.key, body).Result()
	if err != nil {
		return fmt.Errorf("failed to push payload: %w", err)
	}
	p.log.Debug("Published payload", "key", p.key, "queued", n)
	return nil
}

// Close releases the underlying client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
