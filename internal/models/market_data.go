package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Price is one venue's last-trade quote for one symbol at one fetch cycle.
type Price struct {
	Symbol    string          `json:"symbol"`
	Amount    decimal.Decimal `json:"price"`
	Venue     string          `json:"exchange"`
	Currency  string          `json:"currency"`
	Timestamp time.Time       `json:"timestamp"`
	Volume24h decimal.Decimal `json:"volume_24h"`
}

// NewPrice builds a Price with the timestamp in UTC. Negative amounts and
// volumes are clamped to zero.
func NewPrice(symbol, venue, currency string, amount, volume decimal.Decimal, observedAt time.Time) Price {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if volume.IsNegative() {
		volume = decimal.Zero
	}
	return Price{
		Symbol:    symbol,
		Amount:    amount,
		Venue:     venue,
		Currency:  currency,
		Timestamp: observedAt.UTC(),
		Volume24h: volume,
	}
}

// PriceMap holds one venue's prices for a single fetch cycle, keyed by canonical symbol.
type PriceMap map[string]Price

// Symbols returns the symbols present in the map in lexical order.
func (m PriceMap) Symbols() []string {
	symbols := make([]string, 0, len(m))
	for symbol := range m {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
