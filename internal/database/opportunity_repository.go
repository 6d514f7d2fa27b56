package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS arbitrage_opportunities (
		id BIGSERIAL PRIMARY KEY,
		batch_id UUID NOT NULL,
		symbol TEXT NOT NULL,
		signal TEXT NOT NULL,
		inr_price NUMERIC(30, 10) NOT NULL,
		usd_price NUMERIC(30, 10) NOT NULL,
		inr_price_normalized NUMERIC(30, 10) NOT NULL,
		spread_percent NUMERIC(20, 10) NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		usd_inr_rate NUMERIC(20, 8) NOT NULL,
		rate_source TEXT NOT NULL,
		detected_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_arbitrage_opportunities_detected_at
		ON arbitrage_opportunities (detected_at DESC)`,
}

const insertOpportunityQuery = `
	INSERT INTO arbitrage_opportunities (
		batch_id, symbol, signal, inr_price, usd_price, inr_price_normalized,
		spread_percent, confidence, usd_inr_rate, rate_source, detected_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const recentOpportunitiesQuery = `
	SELECT id, batch_id::text, symbol, signal, inr_price::text, usd_price::text,
		inr_price_normalized::text, spread_percent::text, confidence,
		usd_inr_rate::text, rate_source, detected_at
	FROM arbitrage_opportunities
	ORDER BY detected_at DESC, id DESC
	LIMIT $1`

// StoredOpportunity is one persisted opportunity together with the batch it
// came from.
type StoredOpportunity struct {
	ID         int64   `json:"id"`
	BatchID    string  `json:"batch_id"`
	USDINRRate float64 `json:"usd_inr_rate"`
	RateSource string  `json:"rate_source"`
	models.OpportunityRecord
}

// OpportunityRepository persists opportunity batches in PostgreSQL.
type OpportunityRepository struct {
	pool DatabasePool
}

// NewOpportunityRepository creates a new opportunity repository.
func NewOpportunityRepository(pool DatabasePool) *OpportunityRepository {
	return &OpportunityRepository{pool: pool}
}

func (r *OpportunityRepository) Name() string { return "postgres" }

// EnsureSchema creates the opportunity table and its index when missing.
func (r *OpportunityRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Publish stores batch; it lets the repository act as an opportunity sink.
func (r *OpportunityRepository) Publish(ctx context.Context, batch *models.OpportunityBatch) error {
	_, err := r.InsertBatch(ctx, batch)
	return err
}

// InsertBatch writes one row per opportunity and returns how many were stored.
func (r *OpportunityRepository) InsertBatch(ctx context.Context, batch *models.OpportunityBatch) (int, error) {
	inserted := 0
	for _, opp := range batch.Opportunities {
		_, err := r.pool.Exec(ctx, insertOpportunityQuery,
			batch.ID.String(),
			opp.Symbol,
			string(opp.Signal),
			opp.INRPrice.String(),
			opp.USDPrice.String(),
			opp.INRPriceNormalized.String(),
			opp.SpreadPercent.String(),
			opp.Confidence,
			batch.Rate.Rate.String(),
			string(batch.Rate.Source),
			opp.Timestamp.UTC(),
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert opportunity %s: %w", opp.Symbol, err)
		}
		inserted++
	}
	return inserted, nil
}

// Recent returns the newest stored opportunities. limit is clamped to
// [1, 500]; zero or negative means the default of 50.
func (r *OpportunityRepository) Recent(ctx context.Context, limit int) ([]StoredOpportunity, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.pool.Query(ctx, recentOpportunitiesQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunities: %w", err)
	}
	defer rows.Close()

	result := make([]StoredOpportunity, 0, limit)
	for rows.Next() {
		var (
			stored                                            StoredOpportunity
			symbol, signal                                    string
			inrPrice, usdPrice, normalized, spread, rateValue string
			confidence                                        float64
			detectedAt                                        time.Time
		)
		if err := rows.Scan(&stored.ID, &stored.BatchID, &symbol, &signal, &inrPrice, &usdPrice,
			&normalized, &spread, &confidence, &rateValue, &stored.RateSource, &detectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}

		opp := models.Opportunity{
			Symbol:             symbol,
			INRPrice:           parseNumeric(inrPrice),
			USDPrice:           parseNumeric(usdPrice),
			INRPriceNormalized: parseNumeric(normalized),
			SpreadPercent:      parseNumeric(spread),
			Signal:             models.Signal(signal),
			Timestamp:          detectedAt,
			Confidence:         confidence,
		}
		stored.OpportunityRecord = opp.Record()
		stored.USDINRRate = parseNumeric(rateValue).InexactFloat64()
		result = append(result, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate opportunities: %w", err)
	}
	return result, nil
}

func parseNumeric(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
