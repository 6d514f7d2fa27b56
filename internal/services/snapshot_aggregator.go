package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/irfndi/celebrum-inr-arb/internal/exchange"
	"github.com/irfndi/celebrum-inr-arb/internal/logging"
	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

// FetchObserver receives the outcome of every venue fetch. Metrics collectors
// implement it.
type FetchObserver interface {
	ObserveFetch(venue string, duration time.Duration, prices int, err error)
}

// Snapshot holds both venues' prices from one fetch cycle. A venue that
// failed has an empty map and a non-nil error.
type Snapshot struct {
	VenueA models.PriceMap
	VenueB models.PriceMap
	ErrA   error
	ErrB   error
}

// SnapshotAggregator fetches both venues concurrently behind per-venue
// circuit breakers.
type SnapshotAggregator struct {
	venueA   exchange.PriceFetcher
	venueB   exchange.PriceFetcher
	breakerA *CircuitBreaker
	breakerB *CircuitBreaker
	symbols  models.SymbolTable
	observer FetchObserver
	logger   *logging.StandardLogger
}

// NewSnapshotAggregator creates an aggregator over venueA (rupee) and venueB (dollar).
func NewSnapshotAggregator(venueA, venueB exchange.PriceFetcher, symbols models.SymbolTable, breakerConfig CircuitBreakerConfig, logger *logrus.Logger) *SnapshotAggregator {
	if logger == nil {
		logger = logrus.New()
	}
	return &SnapshotAggregator{
		venueA:   venueA,
		venueB:   venueB,
		breakerA: NewCircuitBreaker(venueA.Venue(), breakerConfig, logger),
		breakerB: NewCircuitBreaker(venueB.Venue(), breakerConfig, logger),
		symbols:  symbols,
		logger:   logging.WrapLogger(logger),
	}
}

// SetObserver attaches a fetch observer.
func (a *SnapshotAggregator) SetObserver(observer FetchObserver) {
	a.observer = observer
}

// FetchAll runs both venue fetches at once and waits for both. One venue's
// failure never cancels or blocks the other.
func (a *SnapshotAggregator) FetchAll(ctx context.Context) Snapshot {
	ctx, span := otel.Tracer("services").Start(ctx, "aggregator.fetch_all")
	defer span.End()

	var snapshot Snapshot
	var g errgroup.Group

	g.Go(func() error {
		snapshot.VenueA, snapshot.ErrA = a.fetch(ctx, a.venueA, a.breakerA)
		return nil
	})
	g.Go(func() error {
		snapshot.VenueB, snapshot.ErrB = a.fetch(ctx, a.venueB, a.breakerB)
		return nil
	})
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("venue_a.prices", len(snapshot.VenueA)),
		attribute.Int("venue_b.prices", len(snapshot.VenueB)),
	)
	if snapshot.ErrA != nil || snapshot.ErrB != nil {
		span.SetStatus(codes.Error, "partial snapshot")
	}
	return snapshot
}

func (a *SnapshotAggregator) fetch(ctx context.Context, fetcher exchange.PriceFetcher, breaker *CircuitBreaker) (models.PriceMap, error) {
	venue := fetcher.Venue()
	start := time.Now()

	prices := models.PriceMap{}
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		result, err := fetcher.Fetch(ctx, a.symbols)
		if result != nil {
			prices = result
		}
		return err
	})
	if err != nil {
		// A failed venue contributes nothing this cycle.
		prices = models.PriceMap{}
	}

	duration := time.Since(start)
	if a.observer != nil {
		a.observer.ObserveFetch(venue, duration, len(prices), err)
	}

	entry := a.logger.WithExchange(venue).WithFields(logrus.Fields{
		"component":   "snapshot_aggregator",
		"prices":      len(prices),
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("Venue fetch failed")
		return prices, err
	}
	entry.Debug("Venue fetch completed")
	return prices, nil
}

// BreakerStates returns the circuit state and counters of each venue.
func (a *SnapshotAggregator) BreakerStates() map[string]BreakerStatus {
	return map[string]BreakerStatus{
		a.venueA.Venue(): a.breakerA.Status(),
		a.venueB.Venue(): a.breakerB.Status(),
	}
}
