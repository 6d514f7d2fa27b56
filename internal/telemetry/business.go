package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

const businessTracerName = "arbitrage"

// TraceIteration starts the span covering one poll iteration.
func TraceIteration(ctx context.Context) (context.Context, trace.Span) {
	return StartSpan(ctx, GetTracer(businessTracerName), "poll_loop.iteration")
}

// RecordBatch annotates span with the batch summary and adds one event per
// opportunity.
func RecordBatch(span trace.Span, batch *models.OpportunityBatch) {
	if batch == nil {
		return
	}
	span.SetAttributes(
		attribute.String("batch_id", batch.ID.String()),
		attribute.Int("opportunities", len(batch.Opportunities)),
		attribute.Int("venue_a_prices", batch.VenueACount),
		attribute.Int("venue_b_prices", batch.VenueBCount),
		attribute.String("rate_source", string(batch.Rate.Source)),
		attribute.Float64("usd_inr_rate", batch.Rate.Rate.InexactFloat64()),
	)
	for _, opp := range batch.Opportunities {
		span.AddEvent("opportunity", trace.WithAttributes(
			attribute.String("symbol", opp.Symbol),
			attribute.String("signal", string(opp.Signal)),
			attribute.Float64("spread_percent", opp.SpreadPercent.InexactFloat64()),
			attribute.Float64("confidence", opp.Confidence),
		))
	}
}
