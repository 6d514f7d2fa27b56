package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Signal says which side of the rupee market is relatively mispriced.
type Signal string

const (
	// SignalBuy means the INR venue is cheaper than the USD venue.
	SignalBuy Signal = "BUY"
	// SignalSell means the INR venue is more expensive than the USD venue.
	SignalSell Signal = "SELL"
)

// Opportunity is one detected cross-venue divergence for one symbol.
type Opportunity struct {
	Symbol             string          `json:"symbol"`
	INRPrice           decimal.Decimal `json:"inr_price"`
	USDPrice           decimal.Decimal `json:"usd_price"`
	INRPriceNormalized decimal.Decimal `json:"inr_price_normalized"`
	SpreadPercent      decimal.Decimal `json:"spread_percent"`
	Signal             Signal          `json:"signal"`
	Timestamp          time.Time       `json:"timestamp"`
	Confidence         float64         `json:"confidence"`
}

// OpportunityRecord is the flat, float-valued form handed to external consumers.
type OpportunityRecord struct {
	Symbol             string  `json:"symbol"`
	INRPrice           float64 `json:"inr_price"`
	USDPrice           float64 `json:"usd_price"`
	INRPriceNormalized float64 `json:"inr_price_normalized"`
	SpreadPercent      float64 `json:"spread_percent"`
	Signal             string  `json:"signal"`
	Timestamp          string  `json:"timestamp"`
	Confidence         float64 `json:"confidence"`
}

// Record flattens the opportunity; the timestamp is rendered as ISO-8601.
func (o Opportunity) Record() OpportunityRecord {
	return OpportunityRecord{
		Symbol:             o.Symbol,
		INRPrice:           o.INRPrice.InexactFloat64(),
		USDPrice:           o.USDPrice.InexactFloat64(),
		INRPriceNormalized: o.INRPriceNormalized.InexactFloat64(),
		SpreadPercent:      o.SpreadPercent.InexactFloat64(),
		Signal:             string(o.Signal),
		Timestamp:          o.Timestamp.UTC().Format(time.RFC3339Nano),
		Confidence:         o.Confidence,
	}
}

// OpportunityBatch is everything one poll iteration produced.
type OpportunityBatch struct {
	ID            uuid.UUID      `json:"id"`
	Rate          ConversionRate `json:"rate"`
	Opportunities []Opportunity  `json:"opportunities"`
	VenueACount   int            `json:"venue_a_count"`
	VenueBCount   int            `json:"venue_b_count"`
	CreatedAt     time.Time      `json:"created_at"`
}

// BatchPayload is the serialized form of a batch used by the redis publisher
// and the HTTP API.
type BatchPayload struct {
	ID            string              `json:"id"`
	USDINRRate    float64             `json:"usd_inr_rate"`
	RateSource    string              `json:"rate_source"`
	Opportunities []OpportunityRecord `json:"opportunities"`
	CreatedAt     string              `json:"created_at"`
}

// Payload converts the batch into its serialized form.
func (b *OpportunityBatch) Payload() BatchPayload {
	records := make([]OpportunityRecord, 0, len(b.Opportunities))
	for _, opp := range b.Opportunities {
		records = append(records, opp.Record())
	}
	return BatchPayload{
		ID:            b.ID.String(),
		USDINRRate:    b.Rate.Rate.InexactFloat64(),
		RateSource:    string(b.Rate.Source),
		Opportunities: records,
		CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
