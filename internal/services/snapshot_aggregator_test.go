package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

type stubPriceFetcher struct {
	venue   string
	prices  models.PriceMap
	err     error
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (s *stubPriceFetcher) Venue() string { return s.venue }

func (s *stubPriceFetcher) Fetch(ctx context.Context, _ models.SymbolTable) (models.PriceMap, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return models.PriceMap{}, ctx.Err()
		}
	}
	if s.err != nil {
		return models.PriceMap{}, s.err
	}
	return s.prices, nil
}

func (s *stubPriceFetcher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingObserver struct {
	mu     sync.Mutex
	venues map[string]error
}

func (o *recordingObserver) ObserveFetch(venue string, _ time.Duration, _ int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.venues == nil {
		o.venues = map[string]error{}
	}
	o.venues[venue] = err
}

func onePrice(venue, symbol string) models.PriceMap {
	return models.PriceMap{symbol: models.NewPrice(symbol, venue, "X", decimal.NewFromInt(1), decimal.Zero, time.Now())}
}

func TestSnapshotAggregator_FetchesConcurrently(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	venueA := &stubPriceFetcher{venue: models.VenueCoinDCX, prices: onePrice(models.VenueCoinDCX, "BTC"), started: started, release: release}
	venueB := &stubPriceFetcher{venue: models.VenueBinance, prices: onePrice(models.VenueBinance, "BTC"), started: started, release: release}

	agg := NewSnapshotAggregator(venueA, venueB, models.DefaultSymbolTable(), CircuitBreakerConfig{}, testLogger())

	done := make(chan Snapshot, 1)
	go func() { done <- agg.FetchAll(context.Background()) }()

	// Both fetches must be in flight before either is released.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("venue fetches did not run concurrently")
		}
	}
	close(release)

	snapshot := <-done
	assert.Len(t, snapshot.VenueA, 1)
	assert.Len(t, snapshot.VenueB, 1)
	assert.NoError(t, snapshot.ErrA)
	assert.NoError(t, snapshot.ErrB)
}

func TestSnapshotAggregator_OneVenueFailing(t *testing.T) {
	venueA := &stubPriceFetcher{venue: models.VenueCoinDCX, err: errors.New("503")}
	venueB := &stubPriceFetcher{venue: models.VenueBinance, prices: onePrice(models.VenueBinance, "ETH")}
	observer := &recordingObserver{}

	agg := NewSnapshotAggregator(venueA, venueB, models.DefaultSymbolTable(), CircuitBreakerConfig{}, testLogger())
	agg.SetObserver(observer)

	snapshot := agg.FetchAll(context.Background())

	require.Error(t, snapshot.ErrA)
	assert.NotNil(t, snapshot.VenueA)
	assert.Empty(t, snapshot.VenueA)
	assert.NoError(t, snapshot.ErrB)
	assert.Contains(t, snapshot.VenueB, "ETH")

	assert.Error(t, observer.venues[models.VenueCoinDCX])
	assert.NoError(t, observer.venues[models.VenueBinance])
}

func TestSnapshotAggregator_BreakerSkipsFailingVenue(t *testing.T) {
	venueA := &stubPriceFetcher{venue: models.VenueCoinDCX, err: errors.New("timeout")}
	venueB := &stubPriceFetcher{venue: models.VenueBinance, prices: onePrice(models.VenueBinance, "ETH")}

	agg := NewSnapshotAggregator(venueA, venueB, models.DefaultSymbolTable(),
		CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour}, testLogger())

	for i := 0; i < 4; i++ {
		snapshot := agg.FetchAll(context.Background())
		assert.Empty(t, snapshot.VenueA)
		assert.Len(t, snapshot.VenueB, 1)
	}

	assert.Equal(t, 2, venueA.Calls())
	assert.Equal(t, 4, venueB.Calls())

	states := agg.BreakerStates()
	assert.Equal(t, "open", states[models.VenueCoinDCX].State)
	assert.Equal(t, int64(2), states[models.VenueCoinDCX].FailedRequests)
	assert.Equal(t, int64(2), states[models.VenueCoinDCX].RejectedRequests)
	assert.Equal(t, "closed", states[models.VenueBinance].State)
	assert.Equal(t, int64(4), states[models.VenueBinance].SuccessfulRequests)

	snapshot := agg.FetchAll(context.Background())
	assert.ErrorIs(t, snapshot.ErrA, ErrCircuitOpen)
}

func TestSnapshotAggregator_ShutdownDoesNotTripBreaker(t *testing.T) {
	venueA := &stubPriceFetcher{venue: models.VenueCoinDCX, release: make(chan struct{})}
	venueB := &stubPriceFetcher{venue: models.VenueBinance, release: make(chan struct{})}

	agg := NewSnapshotAggregator(venueA, venueB, models.DefaultSymbolTable(),
		CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snapshot := agg.FetchAll(ctx)

	assert.ErrorIs(t, snapshot.ErrA, context.Canceled)
	assert.ErrorIs(t, snapshot.ErrB, context.Canceled)
	for venue, status := range agg.BreakerStates() {
		assert.Equal(t, "closed", status.State, venue)
		assert.Equal(t, int64(0), status.FailedRequests, venue)
	}
}
