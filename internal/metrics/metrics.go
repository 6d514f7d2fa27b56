// Package metrics exposes Prometheus collectors for venue fetches, poll
// iterations and the conversion rate.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/irfndi/celebrum-inr-arb/internal/exchange"
	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

const namespace = "inr_arb"

// Collector owns a private registry. A nil *Collector is a no-op observer.
type Collector struct {
	registry *prometheus.Registry

	fetchDuration  *prometheus.HistogramVec
	fetchErrors    *prometheus.CounterVec
	venuePrices    *prometheus.GaugeVec
	iterations     *prometheus.CounterVec
	iterationTime  prometheus.Histogram
	opportunities  prometheus.Counter
	lastBatchSize  prometheus.Gauge
	conversionRate *prometheus.GaugeVec
	rateAgeSeconds prometheus.Gauge
}

// NewCollector builds and registers all collectors, plus the Go runtime and
// process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "venue_fetch_duration_seconds",
			Help:      "Time to fetch and decode one venue's ticker list",
			Buckets:   prometheus.DefBuckets,
		}, []string{"venue"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "venue_fetch_errors_total",
			Help:      "Number of failed venue fetches by upstream status code or failure kind",
		}, []string{"venue", "reason"}),
		venuePrices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "venue_prices",
			Help:      "Target symbols priced by the last fetch",
		}, []string{"venue"}),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Poll iterations by outcome",
		}, []string{"result"}),
		iterationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iteration_duration_seconds",
			Help:      "Wall time of one poll iteration",
			Buckets:   prometheus.DefBuckets,
		}),
		opportunities: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Opportunities detected since start",
		}),
		lastBatchSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_opportunities",
			Help:      "Opportunities in the most recent batch",
		}),
		conversionRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "usd_inr_rate",
			Help:      "Conversion rate used by the last iteration",
		}, []string{"source"}),
		rateAgeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "usd_inr_rate_age_seconds",
			Help:      "Age of the conversion rate at the last iteration",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.fetchDuration,
		c.fetchErrors,
		c.venuePrices,
		c.iterations,
		c.iterationTime,
		c.opportunities,
		c.lastBatchSize,
		c.conversionRate,
		c.rateAgeSeconds,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// ObserveFetch records one venue fetch.
func (c *Collector) ObserveFetch(venue string, duration time.Duration, prices int, err error) {
	if c == nil {
		return
	}
	c.fetchDuration.WithLabelValues(venue).Observe(duration.Seconds())
	c.venuePrices.WithLabelValues(venue).Set(float64(prices))
	if err != nil {
		c.fetchErrors.WithLabelValues(venue, fetchErrorReason(err)).Inc()
	}
}

// fetchErrorReason is the upstream status code when there is one.
func fetchErrorReason(err error) string {
	if statusErr, ok := exchange.IsStatusError(err); ok {
		return strconv.Itoa(statusErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

// ObserveIteration records one poll iteration.
func (c *Collector) ObserveIteration(duration time.Duration, opportunities int, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.iterations.WithLabelValues(result).Inc()
	c.iterationTime.Observe(duration.Seconds())
	c.lastBatchSize.Set(float64(opportunities))
	c.opportunities.Add(float64(opportunities))
}

// ObserveRate records the conversion rate an iteration used. Only the
// current source carries a value.
func (c *Collector) ObserveRate(rate models.ConversionRate) {
	if c == nil {
		return
	}
	c.conversionRate.Reset()
	c.conversionRate.WithLabelValues(string(rate.Source)).Set(rate.Rate.InexactFloat64())
	if rate.UpdatedAt.IsZero() {
		c.rateAgeSeconds.Set(0)
		return
	}
	c.rateAgeSeconds.Set(rate.Age(time.Now()).Seconds())
}
