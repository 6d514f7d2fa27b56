package telemetry

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/irfndi/celebrum-inr-arb/internal/config"
	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func restoreGlobalProvider(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
}

func TestNormalizeOTLPEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		hostport string
		urlPath  string
		insecure bool
		resolved string
		wantErr  bool
	}{
		{"default localhost", "http://localhost:4318", "localhost:4318", "/v1/traces", true, "http://localhost:4318/v1/traces", false},
		{"trailing slash base", "http://collector:4318/", "collector:4318", "/v1/traces", true, "http://collector:4318/v1/traces", false},
		{"already traces path", "http://collector:4318/v1/traces", "collector:4318", "/v1/traces", true, "http://collector:4318/v1/traces", false},
		{"custom base path", "https://otlp.example.com:4318/otlp", "otlp.example.com:4318", "/otlp/v1/traces", false, "https://otlp.example.com:4318/otlp/v1/traces", false},
		{"invalid no scheme", "collector:4318", "", "", true, "", true},
		{"no host", "http://", "", "", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hp, path, insecure, resolved, err := normalizeOTLPEndpoint(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hostport, hp)
			assert.Equal(t, tt.urlPath, path)
			assert.Equal(t, tt.insecure, insecure)
			assert.Equal(t, tt.resolved, resolved)
		})
	}
}

func TestInitTelemetryWithProviderDisabled(t *testing.T) {
	restoreGlobalProvider(t)

	provider, err := InitTelemetryWithProvider(context.Background(), config.TelemetryConfig{Enabled: false}, "test", quietLogger())

	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.Nil(t, provider.tp)
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestInitTelemetryWithProviderInvalidEndpoint(t *testing.T) {
	restoreGlobalProvider(t)

	provider, err := InitTelemetryWithProvider(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		Exporter:     ExporterOTLP,
		OTLPEndpoint: "invalid-url://[invalid",
	}, "test", quietLogger())

	assert.Error(t, err)
	assert.Nil(t, provider)
	assert.Contains(t, err.Error(), "invalid OTLPEndpoint")
}

func TestInitTelemetryWithProviderUnknownExporter(t *testing.T) {
	restoreGlobalProvider(t)

	_, err := InitTelemetryWithProvider(context.Background(), config.TelemetryConfig{
		Enabled:  true,
		Exporter: "jaeger",
	}, "test", quietLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "jaeger")
}

func TestInitTelemetryWithProviderOTLP(t *testing.T) {
	restoreGlobalProvider(t)

	provider, err := InitTelemetryWithProvider(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		Exporter:     ExporterOTLP,
		OTLPEndpoint: "http://localhost:4318",
		SampleRate:   0.5,
	}, "test", quietLogger())

	require.NoError(t, err)
	require.NotNil(t, provider.tp)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = provider.Shutdown(ctx)
}

func TestInitProviderStdoutExportsSpans(t *testing.T) {
	restoreGlobalProvider(t)
	var out bytes.Buffer

	provider, err := initProvider(context.Background(), config.TelemetryConfig{
		Enabled:     true,
		Exporter:    ExporterStdout,
		ServiceName: "inr-arb-test",
		SampleRate:  1,
	}, "test", quietLogger(), &out)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), GetTracer("test"), "test-span", attribute.String("k", "v"))
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
	assert.Contains(t, out.String(), "test-span")
	assert.Contains(t, out.String(), "inr-arb-test")
}

func TestSampleRate(t *testing.T) {
	assert.Equal(t, 1.0, sampleRate(0))
	assert.Equal(t, 1.0, sampleRate(-1))
	assert.Equal(t, 1.0, sampleRate(2))
	assert.Equal(t, 0.25, sampleRate(0.25))
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, ok := StartSpan(context.Background(), tp.Tracer("test"), "ok")
	RecordError(ok, nil)
	ok.End()

	_, failed := StartSpan(context.Background(), tp.Tracer("test"), "failed")
	RecordError(failed, assert.AnError)
	failed.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Len(t, spans[1].Events(), 1)
}

func TestRecordBatch(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, span := tp.Tracer("test").Start(context.Background(), "iteration")

	batch := &models.OpportunityBatch{
		ID:          uuid.New(),
		Rate:        models.ConversionRate{Rate: decimal.NewFromInt(83), Source: models.RateSourceLive},
		VenueACount: 6,
		VenueBCount: 5,
		Opportunities: []models.Opportunity{
			{Symbol: "BTC", Signal: models.SignalSell, SpreadPercent: decimal.RequireFromString("1.01"), Confidence: 0.4},
		},
	}
	RecordBatch(span, batch)
	RecordBatch(span, nil)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, int64(1), attrs["opportunities"].AsInt64())
	assert.Equal(t, "live", attrs["rate_source"].AsString())
	assert.Equal(t, 83.0, attrs["usd_inr_rate"].AsFloat64())
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "opportunity", spans[0].Events()[0].Name)
}

func TestTraceIteration(t *testing.T) {
	restoreGlobalProvider(t)
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	ctx, span := TraceIteration(context.Background())
	assert.NotNil(t, ctx)
	span.End()

	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, "poll_loop.iteration", recorder.Ended()[0].Name())
}
