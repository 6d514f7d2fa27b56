package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-inr-arb/internal/cache"
	"github.com/irfndi/celebrum-inr-arb/internal/database"
	"github.com/irfndi/celebrum-inr-arb/internal/middleware"
	"github.com/irfndi/celebrum-inr-arb/internal/models"
	"github.com/irfndi/celebrum-inr-arb/internal/services"
)

// LatestBatchSource returns the most recent batch, if any iteration has
// completed.
type LatestBatchSource interface {
	Latest() (*models.OpportunityBatch, bool)
}

// SharedBatchSource reads the latest batch another process, or an earlier
// run of this one, published to shared storage.
type SharedBatchSource interface {
	Latest(ctx context.Context) (*models.BatchPayload, bool, error)
}

// HistoryStore reads persisted opportunities.
type HistoryStore interface {
	Recent(ctx context.Context, limit int) ([]database.StoredOpportunity, error)
}

type RateReader interface {
	Current() models.ConversionRate
}

type StatsReader interface {
	Stats() services.RunStats
}

type BreakerReader interface {
	BreakerStates() map[string]services.BreakerStatus
}

type RateCacheReader interface {
	GetStats() cache.RateCacheStats
}

type ArbitrageHandler struct {
	latest    LatestBatchSource
	shared    SharedBatchSource
	history   HistoryStore
	rates     RateReader
	stats     StatsReader
	breakers  BreakerReader
	rateCache RateCacheReader
	logger    *logrus.Logger
}

type OpportunitiesResponse struct {
	BatchID       string                     `json:"batch_id"`
	USDINRRate    float64                    `json:"usd_inr_rate"`
	RateSource    string                     `json:"rate_source"`
	Opportunities []models.OpportunityRecord `json:"opportunities"`
	Count         int                        `json:"count"`
	VenueACount   int                        `json:"venue_a_prices"`
	VenueBCount   int                        `json:"venue_b_prices"`
	Timestamp     time.Time                  `json:"timestamp"`
	Origin        string                     `json:"origin"`
}

type HistoryResponse struct {
	History []database.StoredOpportunity `json:"history"`
	Count   int                          `json:"count"`
	Limit   int                          `json:"limit"`
}

// RateResponse leaves out updated_at and age_seconds for a rate that was
// never fetched.
type RateResponse struct {
	Base      string     `json:"base"`
	Quote     string     `json:"quote"`
	Rate      float64    `json:"rate"`
	Source    string     `json:"source"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	AgeSec    *float64   `json:"age_seconds,omitempty"`
}

type StatsResponse struct {
	services.RunStats
	Breakers  map[string]services.BreakerStatus `json:"breakers,omitempty"`
	RateCache *cache.RateCacheStats             `json:"rate_cache,omitempty"`
}

// NewArbitrageHandler creates the arbitrage handler. history and breakers
// may be nil.
func NewArbitrageHandler(latest LatestBatchSource, history HistoryStore, rates RateReader, stats StatsReader, breakers BreakerReader, logger *logrus.Logger) *ArbitrageHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ArbitrageHandler{
		latest:   latest,
		history:  history,
		rates:    rates,
		stats:    stats,
		breakers: breakers,
		logger:   logger,
	}
}

// SetSharedSource makes GetOpportunities fall back to shared storage until
// this process completes its first iteration.
func (h *ArbitrageHandler) SetSharedSource(shared SharedBatchSource) {
	h.shared = shared
}

// SetRateCache adds the rate cache counters to GetStats.
func (h *ArbitrageHandler) SetRateCache(rateCache RateCacheReader) {
	h.rateCache = rateCache
}

// GetOpportunities returns the latest batch.
func (h *ArbitrageHandler) GetOpportunities(c *gin.Context) {
	batch, ok := h.latest.Latest()
	if !ok {
		h.getSharedOpportunities(c)
		return
	}

	records := make([]models.OpportunityRecord, 0, len(batch.Opportunities))
	for _, opp := range batch.Opportunities {
		records = append(records, opp.Record())
	}

	c.JSON(http.StatusOK, OpportunitiesResponse{
		BatchID:       batch.ID.String(),
		USDINRRate:    batch.Rate.Rate.InexactFloat64(),
		RateSource:    string(batch.Rate.Source),
		Opportunities: records,
		Count:         len(records),
		VenueACount:   batch.VenueACount,
		VenueBCount:   batch.VenueBCount,
		Timestamp:     batch.CreatedAt,
		Origin:        "local",
	})
	middleware.AddSpanAttribute(c, "arbitrage.opportunities", len(records))
}

func (h *ArbitrageHandler) getSharedOpportunities(c *gin.Context) {
	if h.shared == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No iteration has completed yet"})
		return
	}

	payload, ok, err := h.shared.Latest(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Warn("Failed to read shared latest batch")
	}
	if err != nil || !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No iteration has completed yet"})
		return
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, payload.CreatedAt)
	records := payload.Opportunities
	if records == nil {
		records = []models.OpportunityRecord{}
	}
	c.JSON(http.StatusOK, OpportunitiesResponse{
		BatchID:       payload.ID,
		USDINRRate:    payload.USDINRRate,
		RateSource:    payload.RateSource,
		Opportunities: records,
		Count:         len(records),
		Timestamp:     createdAt,
		Origin:        "shared",
	})
	middleware.AddSpanAttribute(c, "arbitrage.opportunities", len(records))
}

// GetHistory returns stored opportunities, newest first.
func (h *ArbitrageHandler) GetHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "History storage is not configured"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter (1-500)"})
		return
	}

	middleware.AddSpanAttribute(c, "history.limit", limit)
	history, err := h.history.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read opportunity history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get arbitrage history"})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		History: history,
		Count:   len(history),
		Limit:   limit,
	})
}

// GetRate returns the conversion rate currently in use.
func (h *ArbitrageHandler) GetRate(c *gin.Context) {
	rate := h.rates.Current()
	response := RateResponse{
		Base:   rate.Base,
		Quote:  rate.Quote,
		Rate:   rate.Rate.InexactFloat64(),
		Source: string(rate.Source),
	}
	if !rate.UpdatedAt.IsZero() {
		updatedAt := rate.UpdatedAt
		age := rate.Age(time.Now()).Seconds()
		response.UpdatedAt = &updatedAt
		response.AgeSec = &age
	}
	c.JSON(http.StatusOK, response)
}

func (h *ArbitrageHandler) GetStats(c *gin.Context) {
	response := StatsResponse{RunStats: h.stats.Stats()}
	if h.breakers != nil {
		response.Breakers = h.breakers.BreakerStates()
	}
	if h.rateCache != nil {
		stats := h.rateCache.GetStats()
		response.RateCache = &stats
	}
	c.JSON(http.StatusOK, response)
}
