package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

// OpportunitySink consumes the batch produced by one poll iteration.
type OpportunitySink interface {
	Name() string
	Publish(ctx context.Context, batch *models.OpportunityBatch) error
}

// Dispatcher hands every batch to all registered sinks. A failing sink does
// not stop the others.
type Dispatcher struct {
	sinks  []OpportunitySink
	logger *logrus.Logger
}

// NewDispatcher creates a dispatcher over sinks. Nil sinks are ignored.
func NewDispatcher(logger *logrus.Logger, sinks ...OpportunitySink) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	d := &Dispatcher{logger: logger}
	for _, sink := range sinks {
		d.Add(sink)
	}
	return d
}

// Add registers another sink.
func (d *Dispatcher) Add(sink OpportunitySink) {
	if sink != nil {
		d.sinks = append(d.sinks, sink)
	}
}

// Sinks returns the names of the registered sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, sink := range d.sinks {
		names = append(names, sink.Name())
	}
	return names
}

// Publish sends batch to every sink in registration order and joins their errors.
func (d *Dispatcher) Publish(ctx context.Context, batch *models.OpportunityBatch) error {
	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Publish(ctx, batch); err != nil {
			d.logger.WithFields(logrus.Fields{
				"component": "dispatcher",
				"sink":      sink.Name(),
				"batch_id":  batch.ID.String(),
			}).WithError(err).Error("Sink failed to publish batch")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes one log line per opportunity.
type LogSink struct {
	logger *logrus.Logger
	title  cases.Caser
}

// NewLogSink creates a sink that reports through logger.
func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogSink{logger: logger, title: cases.Title(language.English)}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(_ context.Context, batch *models.OpportunityBatch) error {
	if len(batch.Opportunities) == 0 {
		s.logger.WithFields(logrus.Fields{
			"component": "log_sink",
			"rate":      batch.Rate.Rate.StringFixed(2),
		}).Info("No arbitrage opportunities")
		return nil
	}

	for _, opp := range batch.Opportunities {
		s.logger.WithFields(logrus.Fields{
			"component":  "log_sink",
			"symbol":     opp.Symbol,
			"signal":     string(opp.Signal),
			"spread_pct": opp.SpreadPercent.StringFixed(2),
			"inr_price":  opp.INRPrice.StringFixed(2),
			"usd_price":  opp.USDPrice.StringFixed(4),
			"confidence": fmt.Sprintf("%.2f", opp.Confidence),
		}).Infof("%s %s: %s%% spread (INR %s vs USD %s)",
			s.title.String(strings.ToLower(string(opp.Signal))),
			opp.Symbol,
			opp.SpreadPercent.StringFixed(2),
			opp.INRPrice.StringFixed(2),
			opp.USDPrice.StringFixed(4),
		)
	}
	return nil
}

// MemorySink keeps the most recent batch for readers such as the HTTP API.
type MemorySink struct {
	mu     sync.RWMutex
	latest *models.OpportunityBatch
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Publish(_ context.Context, batch *models.OpportunityBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = batch
	return nil
}

// Latest returns the last published batch, or false before the first one.
func (s *MemorySink) Latest() (*models.OpportunityBatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}
