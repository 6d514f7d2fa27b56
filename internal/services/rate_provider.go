package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-inr-arb/internal/logging"
	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

const defaultFallbackRate = 83.0

// RateFetcher reads a live conversion rate from an upstream source.
type RateFetcher interface {
	FetchRate(ctx context.Context) (decimal.Decimal, error)
}

// RateStore persists the last good conversion rate across restarts.
type RateStore interface {
	LoadRate(ctx context.Context) (models.ConversionRate, bool, error)
	SaveRate(ctx context.Context, rate models.ConversionRate) error
}

// RateProviderConfig holds configuration for the rate provider.
type RateProviderConfig struct {
	Base         string
	Quote        string
	TTL          time.Duration
	FallbackRate decimal.Decimal
}

// RateProvider caches the USD->INR rate and refreshes it at most once per TTL.
// Readers get the last good value without blocking.
type RateProvider struct {
	fetcher  RateFetcher
	store    RateStore
	config   RateProviderConfig
	logger   *logging.StandardLogger
	now      func() time.Time
	current  atomic.Pointer[models.ConversionRate]
	mu       sync.Mutex
	lastCall time.Time
	seeded   bool
}

// NewRateProvider creates a provider that starts out on the fallback rate.
// store may be nil.
func NewRateProvider(fetcher RateFetcher, store RateStore, cfg RateProviderConfig, logger *logrus.Logger) *RateProvider {
	if cfg.TTL <= 0 {
		cfg.TTL = 300 * time.Second
	}
	if !cfg.FallbackRate.IsPositive() {
		cfg.FallbackRate = decimal.NewFromFloat(defaultFallbackRate)
	}
	if cfg.Base == "" {
		cfg.Base = "USD"
	}
	if cfg.Quote == "" {
		cfg.Quote = "INR"
	}
	if logger == nil {
		logger = logrus.New()
	}

	p := &RateProvider{
		fetcher: fetcher,
		store:   store,
		config:  cfg,
		logger:  logging.WrapLogger(logger),
		now:     time.Now,
	}
	p.current.Store(&models.ConversionRate{
		Base:   cfg.Base,
		Quote:  cfg.Quote,
		Rate:   cfg.FallbackRate,
		Source: models.RateSourceFallback,
	})
	return p
}

// Current returns the last good rate. It never blocks and is always positive.
func (p *RateProvider) Current() models.ConversionRate {
	return *p.current.Load()
}

// Refresh fetches a new rate when the cached one is older than the TTL and
// reports whether the cached rate is valid afterwards. Concurrent calls are
// serialized; at most one upstream call is made per TTL window.
func (p *RateProvider) Refresh(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.seeded {
		p.seeded = true
		p.seedFromStore(ctx)
	}

	now := p.now()
	if p.valid(now) {
		return true
	}
	if !p.lastCall.IsZero() && now.Sub(p.lastCall) < p.config.TTL {
		return false
	}

	p.lastCall = now
	value, err := p.fetcher.FetchRate(ctx)
	if err != nil || !value.IsPositive() {
		current := p.Current()
		entry := p.logger.WithComponent("rate_provider").WithFields(logrus.Fields{
			"rate":   current.Rate.String(),
			"source": string(current.Source),
		})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("Failed to refresh conversion rate, keeping previous value")
		return false
	}

	rate := models.ConversionRate{
		Base:      p.config.Base,
		Quote:     p.config.Quote,
		Rate:      value,
		UpdatedAt: now.UTC(),
		Source:    models.RateSourceLive,
	}
	p.current.Store(&rate)

	p.logger.WithComponent("rate_provider").WithFields(logrus.Fields{
		"rate": value.StringFixed(4),
	}).Infof("Updated %s/%s rate", p.config.Base, p.config.Quote)

	if p.store != nil {
		if err := p.store.SaveRate(ctx, rate); err != nil {
			p.logger.WithComponent("rate_provider").WithError(err).Warn("Failed to persist conversion rate")
		}
	}
	return true
}

// valid must be called with mu held.
func (p *RateProvider) valid(now time.Time) bool {
	current := p.Current()
	return current.Source != models.RateSourceFallback && current.Age(now) < p.config.TTL
}

func (p *RateProvider) seedFromStore(ctx context.Context) {
	if p.store == nil {
		return
	}
	stored, ok, err := p.store.LoadRate(ctx)
	if err != nil {
		p.logger.WithComponent("rate_provider").WithError(err).Warn("Failed to load stored conversion rate")
		return
	}
	if !ok || !stored.IsPositive() {
		return
	}
	stored.Source = models.RateSourceCache
	p.current.Store(&stored)

	p.logger.WithComponent("rate_provider").WithFields(logrus.Fields{
		"rate":       stored.Rate.StringFixed(4),
		"updated_at": stored.UpdatedAt,
	}).Info("Seeded conversion rate from store")
}
