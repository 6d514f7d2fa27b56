package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/irfndi/celebrum-inr-arb/internal/cache"
	"github.com/irfndi/celebrum-inr-arb/internal/database"
	"github.com/irfndi/celebrum-inr-arb/internal/models"
	"github.com/irfndi/celebrum-inr-arb/internal/services"
)

type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) Recent(ctx context.Context, limit int) ([]database.StoredOpportunity, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.StoredOpportunity), args.Error(1)
}

type stubLatest struct {
	batch *models.OpportunityBatch
}

func (s stubLatest) Latest() (*models.OpportunityBatch, bool) {
	return s.batch, s.batch != nil
}

type stubRates struct {
	rate models.ConversionRate
}

func (s stubRates) Current() models.ConversionRate { return s.rate }

type stubStats struct {
	stats services.RunStats
}

func (s stubStats) Stats() services.RunStats { return s.stats }

type MockSharedBatchSource struct {
	mock.Mock
}

func (m *MockSharedBatchSource) Latest(ctx context.Context) (*models.BatchPayload, bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.BatchPayload), args.Bool(1), args.Error(2)
}

type stubBreakers map[string]services.BreakerStatus

func (s stubBreakers) BreakerStates() map[string]services.BreakerStatus { return s }

type stubRateCache cache.RateCacheStats

func (s stubRateCache) GetStats() cache.RateCacheStats { return cache.RateCacheStats(s) }
