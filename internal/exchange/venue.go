package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-inr-arb/internal/config"
	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

// Ticker is one record of a venue's ticker snapshot after lenient decoding.
type Ticker struct {
	Market    string
	LastPrice decimal.Decimal
	Volume    decimal.Decimal
}

// TickerDecoder turns one raw record into a Ticker. Records it cannot make
// sense of return an error and are skipped.
type TickerDecoder func(raw json.RawMessage) (Ticker, error)

// PriceFetcher retrieves the latest prices of one venue for a set of symbols.
type PriceFetcher interface {
	Venue() string
	Fetch(ctx context.Context, symbols models.SymbolTable) (models.PriceMap, error)
}

// VenueFetcher downloads a venue's full ticker list and narrows it to the
// tracked symbols.
type VenueFetcher struct {
	venue    string
	currency string
	url      string
	client   *Client
	decode   TickerDecoder
	logger   *logrus.Logger
	now      func() time.Time
}

// NewVenueFetcher creates a fetcher for the venue described by cfg.
func NewVenueFetcher(cfg config.VenueConfig, decode TickerDecoder, logger *logrus.Logger) *VenueFetcher {
	if logger == nil {
		logger = logrus.New()
	}
	client := NewClient(ClientConfig{
		Name:            cfg.Name,
		Timeout:         cfg.Timeout(),
		MinCallInterval: cfg.MinCallInterval(),
		Retry: RetryPolicy{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.BaseDelay(),
		},
	}, logger)
	return &VenueFetcher{
		venue:    cfg.Name,
		currency: cfg.Currency,
		url:      cfg.URL,
		client:   client,
		decode:   decode,
		logger:   logger,
		now:      time.Now,
	}
}

// Venue returns the venue name.
func (f *VenueFetcher) Venue() string {
	return f.venue
}

// Fetch returns the prices of every symbol in symbols that has a market on
// this venue and appears in the snapshot. When all attempts fail it returns an
// empty map together with the error.
func (f *VenueFetcher) Fetch(ctx context.Context, symbols models.SymbolTable) (models.PriceMap, error) {
	index := symbols.MarketIndex(f.venue)
	prices := make(models.PriceMap, len(index))

	body, err := f.client.Get(ctx, f.url)
	if err != nil {
		return prices, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return prices, fmt.Errorf("%s: failed to decode ticker list: %w", f.venue, err)
	}

	observedAt := f.now()
	skipped := 0
	for _, raw := range records {
		ticker, err := f.decode(raw)
		if err != nil {
			skipped++
			continue
		}
		symbol, ok := index[ticker.Market]
		if !ok {
			continue
		}
		prices[symbol] = models.NewPrice(symbol, f.venue, f.currency, ticker.LastPrice, ticker.Volume, observedAt)
	}

	f.logger.WithFields(logrus.Fields{
		"venue":   f.venue,
		"records": len(records),
		"matched": len(prices),
		"skipped": skipped,
	}).Debug("Fetched ticker snapshot")

	return prices, nil
}
