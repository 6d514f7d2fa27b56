package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateSource tells where the current conversion rate came from.
type RateSource string

const (
	RateSourceLive     RateSource = "live"
	RateSourceCache    RateSource = "cache"
	RateSourceFallback RateSource = "fallback"
)

// ConversionRate is the value of one unit of Base expressed in Quote.
type ConversionRate struct {
	Base      string          `json:"base"`
	Quote     string          `json:"quote"`
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt time.Time       `json:"updated_at"`
	Source    RateSource      `json:"source"`
}

// IsPositive reports whether the rate can safely be used as a divisor.
func (r ConversionRate) IsPositive() bool {
	return r.Rate.IsPositive()
}

// Age returns how long ago the rate was refreshed. A rate that was never
// refreshed has an unbounded age.
func (r ConversionRate) Age(now time.Time) time.Duration {
	if r.UpdatedAt.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(r.UpdatedAt)
}
