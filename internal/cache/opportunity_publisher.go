package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

const (
	// LatestBatchKey holds the JSON payload of the most recent batch.
	LatestBatchKey = "arbitrage:latest"
	// OpportunityChannel receives every batch as it is produced.
	OpportunityChannel = "arbitrage:opportunities"
)

// RedisPublisher stores the latest batch and broadcasts it over pub/sub.
type RedisPublisher struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisPublisher creates a publisher. The latest batch expires after ttl.
func NewRedisPublisher(redisClient *redis.Client, ttl time.Duration) *RedisPublisher {
	return &RedisPublisher{redis: redisClient, ttl: ttl}
}

func (p *RedisPublisher) Name() string { return "redis" }

// Publish writes the batch under LatestBatchKey and publishes it on
// OpportunityChannel in one round trip.
func (p *RedisPublisher) Publish(ctx context.Context, batch *models.OpportunityBatch) error {
	data, err := json.Marshal(batch.Payload())
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	pipe := p.redis.Pipeline()
	pipe.Set(ctx, LatestBatchKey, data, p.ttl)
	pipe.Publish(ctx, OpportunityChannel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish batch to redis: %w", err)
	}
	return nil
}

// Latest reads the most recently stored batch payload.
func (p *RedisPublisher) Latest(ctx context.Context) (*models.BatchPayload, bool, error) {
	data, err := p.redis.Get(ctx, LatestBatchKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read latest batch: %w", err)
	}

	var payload models.BatchPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false, fmt.Errorf("failed to decode latest batch: %w", err)
	}
	return &payload, true, nil
}
