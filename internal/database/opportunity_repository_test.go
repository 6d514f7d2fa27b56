package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func repoBatch() *models.OpportunityBatch {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return &models.OpportunityBatch{
		ID: uuid.MustParse("0b8e6f2a-3c1d-4e5f-8a9b-1c2d3e4f5a6b"),
		Rate: models.ConversionRate{
			Base: "USD", Quote: "INR", Rate: decimal.NewFromInt(83), UpdatedAt: now, Source: models.RateSourceLive,
		},
		Opportunities: []models.Opportunity{
			{
				Symbol:             "ETH",
				INRPrice:           decimal.NewFromInt(7_885_000),
				USDPrice:           decimal.NewFromInt(100_000),
				INRPriceNormalized: decimal.NewFromInt(95_000),
				SpreadPercent:      decimal.NewFromInt(-5),
				Signal:             models.SignalBuy,
				Timestamp:          now,
				Confidence:         1,
			},
			{
				Symbol:             "BTC",
				INRPrice:           decimal.NewFromInt(8_300_000),
				USDPrice:           decimal.NewFromInt(99_000),
				INRPriceNormalized: decimal.NewFromInt(100_000),
				SpreadPercent:      decimal.RequireFromString("1.0101"),
				Signal:             models.SignalSell,
				Timestamp:          now,
				Confidence:         0.35,
			},
		},
		CreatedAt: now,
	}
}

func TestOpportunityRepository_EnsureSchema(t *testing.T) {
	mock := newMockPool(t)
	repo := NewOpportunityRepository(mock)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS arbitrage_opportunities").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_arbitrage_opportunities_detected_at").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityRepository_EnsureSchemaError(t *testing.T) {
	mock := newMockPool(t)
	repo := NewOpportunityRepository(mock)

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	err := repo.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestOpportunityRepository_InsertBatch(t *testing.T) {
	mock := newMockPool(t)
	repo := NewOpportunityRepository(mock)
	batch := repoBatch()

	mock.ExpectExec("INSERT INTO arbitrage_opportunities").
		WithArgs(batch.ID.String(), "ETH", "BUY", "7885000", "100000", "95000", "-5", 1.0, "83", "live", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO arbitrage_opportunities").
		WithArgs(batch.ID.String(), "BTC", "SELL", "8300000", "99000", "100000", "1.0101", 0.35, "83", "live", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := repo.InsertBatch(context.Background(), batch)

	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityRepository_PublishStopsOnError(t *testing.T) {
	mock := newMockPool(t)
	repo := NewOpportunityRepository(mock)
	assert.Equal(t, "postgres", repo.Name())

	mock.ExpectExec("INSERT INTO arbitrage_opportunities").
		WillReturnError(errors.New("connection reset"))

	err := repo.Publish(context.Background(), repoBatch())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ETH")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityRepository_InsertEmptyBatch(t *testing.T) {
	mock := newMockPool(t)
	repo := NewOpportunityRepository(mock)

	batch := repoBatch()
	batch.Opportunities = nil

	inserted, err := repo.InsertBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityRepository_Recent(t *testing.T) {
	mock := newMockPool(t)
	repo := NewOpportunityRepository(mock)
	detected := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"id", "batch_id", "symbol", "signal", "inr_price", "usd_price",
		"inr_price_normalized", "spread_percent", "confidence", "usd_inr_rate", "rate_source", "detected_at",
	}).
		AddRow(int64(2), "0b8e6f2a-3c1d-4e5f-8a9b-1c2d3e4f5a6b", "BTC", "SELL", "8300000.0000000000", "99000.0000000000",
			"100000.0000000000", "1.0101000000", 0.35, "83.00000000", "live", detected).
		AddRow(int64(1), "0b8e6f2a-3c1d-4e5f-8a9b-1c2d3e4f5a6b", "ETH", "BUY", "7885000", "100000",
			"95000", "-5", 1.0, "83", "live", detected)

	mock.ExpectQuery("FROM arbitrage_opportunities").
		WithArgs(10).
		WillReturnRows(rows)

	got, err := repo.Recent(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, "BTC", got[0].Symbol)
	assert.Equal(t, "SELL", got[0].Signal)
	assert.InDelta(t, 1.0101, got[0].SpreadPercent, 1e-9)
	assert.Equal(t, 83.0, got[0].USDINRRate)
	assert.Equal(t, "live", got[0].RateSource)
	assert.Equal(t, "2026-05-01T10:00:00Z", got[0].Timestamp)
	assert.Equal(t, -5.0, got[1].SpreadPercent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityRepository_RecentClampsLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "default", limit: 0, want: 50},
		{name: "negative", limit: -3, want: 50},
		{name: "capped", limit: 10_000, want: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			repo := NewOpportunityRepository(mock)

			mock.ExpectQuery("FROM arbitrage_opportunities").
				WithArgs(tt.want).
				WillReturnRows(pgxmock.NewRows([]string{"id"}))

			got, err := repo.Recent(context.Background(), tt.limit)
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestOpportunityRepository_RecentQueryError(t *testing.T) {
	mock := newMockPool(t)
	repo := NewOpportunityRepository(mock)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("relation does not exist"))

	_, err := repo.Recent(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation does not exist")
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/x", DSN(configWithURL("postgres://u:p@db:5432/x")))
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=arb sslmode=disable",
		DSN(configWithURL("")))
}
