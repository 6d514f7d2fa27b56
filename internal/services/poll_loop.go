package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-inr-arb/internal/logging"
	"github.com/irfndi/celebrum-inr-arb/internal/models"
	"github.com/irfndi/celebrum-inr-arb/internal/telemetry"
)

// LoopState is the poll loop's current phase.
type LoopState int32

const (
	StateIdle LoopState = iota
	StateFetching
	StateEvaluating
	StateDispatching
	StateSleeping
	StateShuttingDown
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateEvaluating:
		return "evaluating"
	case StateDispatching:
		return "dispatching"
	case StateSleeping:
		return "sleeping"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// RateSource provides the conversion rate for an iteration.
type RateSource interface {
	Refresh(ctx context.Context) bool
	Current() models.ConversionRate
}

// SnapshotSource provides both venues' prices for an iteration.
type SnapshotSource interface {
	FetchAll(ctx context.Context) Snapshot
}

// BatchPublisher receives the batch of an iteration.
type BatchPublisher interface {
	Publish(ctx context.Context, batch *models.OpportunityBatch) error
}

// IterationObserver receives the outcome of every iteration.
type IterationObserver interface {
	ObserveIteration(duration time.Duration, opportunities int, err error)
	ObserveRate(rate models.ConversionRate)
}

// PollLoopConfig holds the loop cadence.
type PollLoopConfig struct {
	Interval   time.Duration
	Cooldown   time.Duration
	StatsEvery int
}

// IterationResult describes one completed iteration.
type IterationResult struct {
	Batch    *models.OpportunityBatch
	RateOK   bool
	ErrA     error
	ErrB     error
	Duration time.Duration
}

// RunStats are the counters reported in run summaries and by the API.
// SuccessRatePercent is the share of checks that found at least one
// opportunity.
type RunStats struct {
	State                       string     `json:"state"`
	StartedAt                   time.Time  `json:"started_at"`
	TotalChecks                 int64      `json:"total_checks"`
	IterationsWithOpportunities int64      `json:"iterations_with_opportunities"`
	FailedIterations            int64      `json:"failed_iterations"`
	TotalOpportunities          int64      `json:"total_opportunities"`
	LastIterationAt             time.Time  `json:"last_iteration_at"`
	LastOpportunityAt           *time.Time `json:"last_opportunity_at,omitempty"`
	LastError                   string     `json:"last_error,omitempty"`
	SuccessRatePercent          float64    `json:"success_rate_pct"`
	AvgCheckIntervalSeconds     float64    `json:"avg_check_interval_s"`
}

// PollLoop drives refresh, fetch, evaluate and dispatch on a fixed cadence.
// A failing iteration is logged and followed by a cooldown; only context
// cancellation stops the loop.
type PollLoop struct {
	rates      RateSource
	snapshots  SnapshotSource
	engine     *OpportunityEngine
	publisher  BatchPublisher
	observer   IterationObserver
	config     PollLoopConfig
	logger     *logrus.Logger
	std        *logging.StandardLogger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	memoryStat func(ctx context.Context) (*mem.VirtualMemoryStat, error)

	state atomic.Int32
	mu    sync.RWMutex
	stats RunStats
}

// NewPollLoop wires the loop. publisher may be a *Dispatcher with any number of sinks.
func NewPollLoop(rates RateSource, snapshots SnapshotSource, engine *OpportunityEngine, publisher BatchPublisher, cfg PollLoopConfig, logger *logrus.Logger) *PollLoop {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PollLoop{
		rates:      rates,
		snapshots:  snapshots,
		engine:     engine,
		publisher:  publisher,
		config:     cfg,
		logger:     logger,
		std:        logging.WrapLogger(logger),
		now:        time.Now,
		sleep:      sleepContext,
		memoryStat: mem.VirtualMemoryWithContext,
	}
}

// SetObserver attaches an iteration observer.
func (l *PollLoop) SetObserver(observer IterationObserver) {
	l.observer = observer
}

// State returns the current phase.
func (l *PollLoop) State() LoopState {
	return LoopState(l.state.Load())
}

func (l *PollLoop) setState(s LoopState) {
	l.state.Store(int32(s))
}

// Stats returns a copy of the run statistics with the derived rates filled in.
func (l *PollLoop) Stats() RunStats {
	l.mu.RLock()
	stats := l.stats
	l.mu.RUnlock()

	stats.State = l.State().String()
	if stats.TotalChecks > 0 {
		stats.SuccessRatePercent = float64(stats.IterationsWithOpportunities) / float64(stats.TotalChecks) * 100
		if !stats.StartedAt.IsZero() {
			stats.AvgCheckIntervalSeconds = l.now().Sub(stats.StartedAt).Seconds() / float64(stats.TotalChecks)
		}
	}
	return stats
}

// Run loops until ctx is cancelled and returns nil on a graceful stop.
func (l *PollLoop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.stats.StartedAt = l.now().UTC()
	l.mu.Unlock()

	l.std.WithComponent("poll_loop").WithFields(logrus.Fields{
		"interval_s":  l.config.Interval.Seconds(),
		"cooldown_s":  l.config.Cooldown.Seconds(),
		"stats_every": l.config.StatsEvery,
	}).Info("Starting arbitrage poll loop")

	defer func() {
		l.setState(StateShuttingDown)
		l.logSummary(context.Background())
		l.std.LogShutdown("poll_loop", "context cancelled")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		_, err := l.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		wait := l.config.Interval
		if err != nil {
			l.std.WithComponent("poll_loop").WithError(err).
				Errorf("Iteration failed, cooling down for %s", l.config.Cooldown)
			wait = l.config.Cooldown
		}

		if stats := l.Stats(); l.config.StatsEvery > 0 && stats.TotalChecks%int64(l.config.StatsEvery) == 0 {
			l.logSummary(ctx)
		}

		l.setState(StateSleeping)
		if err := l.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// RunOnce performs a single iteration. Errors and panics from any step are
// returned rather than propagated, and are counted in the run statistics.
func (l *PollLoop) RunOnce(ctx context.Context) (result *IterationResult, err error) {
	start := l.now()
	ctx, span := telemetry.TraceIteration(ctx)
	defer span.End()

	defer func() {
		duration := l.now().Sub(start)
		if result != nil {
			result.Duration = duration
		}
		if err != nil && ctx.Err() != nil {
			// Interrupted by shutdown, not a failed check.
			return
		}
		l.record(result, err, duration)
		telemetry.RecordError(span, err)
	}()
	defer recoverInto(l.logger, "poll_loop", &err)

	l.setState(StateFetching)
	rateOK := l.rates.Refresh(ctx)
	rate := l.rates.Current()
	if l.observer != nil {
		l.observer.ObserveRate(rate)
	}

	snapshot := l.snapshots.FetchAll(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.setState(StateEvaluating)
	opportunities := l.engine.Evaluate(snapshot.VenueA, snapshot.VenueB, rate)

	batch := &models.OpportunityBatch{
		ID:            uuid.New(),
		Rate:          rate,
		Opportunities: opportunities,
		VenueACount:   len(snapshot.VenueA),
		VenueBCount:   len(snapshot.VenueB),
		CreatedAt:     l.now().UTC(),
	}
	result = &IterationResult{
		Batch:  batch,
		RateOK: rateOK,
		ErrA:   snapshot.ErrA,
		ErrB:   snapshot.ErrB,
	}

	telemetry.RecordBatch(span, batch)

	l.setState(StateDispatching)
	if l.publisher != nil {
		if err := l.publisher.Publish(ctx, batch); err != nil {
			return result, fmt.Errorf("dispatch failed: %w", err)
		}
	}

	for _, opp := range opportunities {
		l.std.LogBusinessEvent("opportunity_detected", map[string]interface{}{
			"symbol":     opp.Symbol,
			"signal":     string(opp.Signal),
			"spread_pct": opp.SpreadPercent.InexactFloat64(),
			"batch_id":   batch.ID.String(),
		})
	}
	return result, nil
}

func (l *PollLoop) record(result *IterationResult, err error, duration time.Duration) {
	opportunities := 0
	if result != nil && result.Batch != nil {
		opportunities = len(result.Batch.Opportunities)
	}

	l.mu.Lock()
	now := l.now().UTC()
	l.stats.TotalChecks++
	l.stats.LastIterationAt = now
	if err != nil {
		l.stats.FailedIterations++
		l.stats.LastError = err.Error()
	} else if opportunities > 0 {
		l.stats.IterationsWithOpportunities++
		l.stats.TotalOpportunities += int64(opportunities)
		l.stats.LastOpportunityAt = &now
	}
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.ObserveIteration(duration, opportunities, err)
	}
}

func (l *PollLoop) logSummary(ctx context.Context) {
	stats := l.Stats()
	metrics := map[string]interface{}{
		"total_checks":                  stats.TotalChecks,
		"iterations_with_opportunities": stats.IterationsWithOpportunities,
		"failed_iterations":             stats.FailedIterations,
		"total_opportunities":           stats.TotalOpportunities,
		"success_rate_pct":              stats.SuccessRatePercent,
		"avg_check_interval_s":          stats.AvgCheckIntervalSeconds,
		"uptime_s":                      int64(l.now().Sub(stats.StartedAt).Seconds()),
	}
	if stats.TotalChecks > 0 {
		metrics["healthy_iterations_pct"] = float64(stats.TotalChecks-stats.FailedIterations) / float64(stats.TotalChecks) * 100
	}
	if stats.LastOpportunityAt != nil {
		metrics["last_opportunity_at"] = stats.LastOpportunityAt.Format(time.RFC3339)
	}
	l.std.LogPerformanceMetrics("poll_loop", metrics)

	if l.memoryStat != nil {
		if vm, err := l.memoryStat(ctx); err == nil && vm != nil {
			l.std.LogResourceStats("poll_loop", map[string]interface{}{
				"memory_used_pct":     vm.UsedPercent,
				"memory_available_mb": vm.Available / 1024 / 1024,
			})
		}
	}
}
