package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

// DefaultRateKey is where the last good conversion rate is stored.
const DefaultRateKey = "fx:usd_inr"

// RateCacheStats tracks cache performance metrics
type RateCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// RedisRateStore keeps the last good conversion rate in Redis so a restart
// does not have to begin on the fallback value.
type RedisRateStore struct {
	redis *redis.Client
	key   string
	ttl   time.Duration

	mu    sync.Mutex
	stats RateCacheStats
}

// NewRedisRateStore creates a store. A zero ttl keeps the value without expiry.
func NewRedisRateStore(redisClient *redis.Client, ttl time.Duration) *RedisRateStore {
	return &RedisRateStore{
		redis: redisClient,
		key:   DefaultRateKey,
		ttl:   ttl,
	}
}

// LoadRate returns the stored rate. A missing key is reported as ok == false
// with no error.
func (s *RedisRateStore) LoadRate(ctx context.Context) (models.ConversionRate, bool, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.count(func(st *RateCacheStats) { st.Misses++ })
		return models.ConversionRate{}, false, nil
	}
	if err != nil {
		s.count(func(st *RateCacheStats) { st.Errors++ })
		return models.ConversionRate{}, false, fmt.Errorf("failed to read rate from redis: %w", err)
	}

	var rate models.ConversionRate
	if err := json.Unmarshal(data, &rate); err != nil {
		s.count(func(st *RateCacheStats) { st.Errors++ })
		return models.ConversionRate{}, false, fmt.Errorf("failed to decode cached rate: %w", err)
	}

	s.count(func(st *RateCacheStats) { st.Hits++ })
	return rate, true, nil
}

// SaveRate stores rate, replacing any previous value.
func (s *RedisRateStore) SaveRate(ctx context.Context, rate models.ConversionRate) error {
	data, err := json.Marshal(rate)
	if err != nil {
		return fmt.Errorf("failed to encode rate: %w", err)
	}
	if err := s.redis.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		s.count(func(st *RateCacheStats) { st.Errors++ })
		return fmt.Errorf("failed to write rate to redis: %w", err)
	}
	s.count(func(st *RateCacheStats) { st.Sets++ })
	return nil
}

// GetStats returns a copy of the cache statistics.
func (s *RedisRateStore) GetStats() RateCacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *RedisRateStore) count(update func(*RateCacheStats)) {
	s.mu.Lock()
	update(&s.stats)
	s.mu.Unlock()
}
