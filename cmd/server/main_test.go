package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-inr-arb/internal/config"
	"github.com/irfndi/celebrum-inr-arb/internal/logging"
	"github.com/irfndi/celebrum-inr-arb/internal/services"
	"github.com/irfndi/celebrum-inr-arb/internal/utils"
)

func TestNewFlagSet(t *testing.T) {
	flags := newFlagSet()
	require.NoError(t, flags.Parse([]string{"--interval=30", "--config=/tmp/config.yaml", "--once"}))

	interval, err := flags.GetInt("interval")
	require.NoError(t, err)
	assert.Equal(t, 30, interval)

	path, err := flags.GetString("config")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/config.yaml", path)

	once, err := flags.GetBool("once")
	require.NoError(t, err)
	assert.True(t, once)
}

func TestExitMessage(t *testing.T) {
	invalid := fmt.Errorf("failed to load configuration: %w", utils.NewValidationError("arbitrage.interval_seconds", "must be at least 1, got 0"))

	assert.Equal(t, "Invalid configuration: failed to load configuration: arbitrage.interval_seconds: must be at least 1, got 0", exitMessage(invalid))
	assert.Equal(t, "Application failed: invalid arguments: unknown flag: --bogus", exitMessage(errors.New("invalid arguments: unknown flag: --bogus")))
}

func TestRun_InvalidConfigurationFails(t *testing.T) {
	err := run([]string{"--interval=0"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
	assert.True(t, utils.IsValidationError(err))
}

func TestRun_UnknownFlagFails(t *testing.T) {
	err := run([]string{"--bogus"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid arguments")
}

func TestNewHTTPServer(t *testing.T) {
	srv := newHTTPServer(8080, http.NewServeMux())

	assert.Equal(t, ":8080", srv.Addr)
	assert.Equal(t, 10*time.Second, srv.ReadTimeout)
	assert.Equal(t, 10*time.Second, srv.WriteTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 15*time.Second, srv.IdleTimeout)
}

func testApp(t *testing.T, mutate ...func(*config.Config)) (*app, *config.Config) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	gin.SetMode(gin.TestMode)

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	cfg.Redis.Enabled = false
	cfg.Database.Enabled = false
	for _, fn := range mutate {
		fn(cfg)
	}

	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.PanicLevel)
	return newApp(context.Background(), cfg, logger), cfg
}

func TestNewApp_OptionalInfrastructureDisabled(t *testing.T) {
	a, _ := testApp(t)
	defer a.close()

	assert.Nil(t, a.redis)
	assert.Nil(t, a.postgres)
	assert.Nil(t, a.history)
	assert.NotNil(t, a.loop)
	assert.Equal(t, services.StateIdle, a.loop.State())
	assert.Equal(t, "fallback", string(a.rates.Current().Source))
}

func TestApp_Router(t *testing.T) {
	a, cfg := testApp(t)
	defer a.close()
	router := a.router(cfg)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	health := get("/health")
	require.Equal(t, http.StatusOK, health.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(health.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]interface{}{"redis": "disabled", "database": "disabled"}, body["services"])

	assert.Equal(t, http.StatusNotFound, get("/api/v1/arbitrage/opportunities").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/api/v1/arbitrage/history").Code)
	assert.Equal(t, http.StatusOK, get("/api/v1/rate").Code)
	assert.Equal(t, http.StatusOK, get("/api/v1/stats").Code)
	assert.Equal(t, http.StatusOK, get("/metrics").Code)
}

func serveJSON(t *testing.T, body string) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func TestRunOnce_SingleCheck(t *testing.T) {
	coindcx := serveJSON(t, `[{"market":"BTCINR","last_price":"8383000","volume":"3"}]`)
	binance := serveJSON(t, `[{"symbol":"BTCUSDT","lastPrice":"100000","volume":"1500"}]`)
	fx := serveJSON(t, `{"base":"USD","rates":{"INR":83}}`)

	a, _ := testApp(t, func(cfg *config.Config) {
		cfg.Venues.CoinDCX.URL = coindcx
		cfg.Venues.Binance.URL = binance
		cfg.FX.URL = fx
	})
	defer a.close()

	logger, hook := test.NewNullLogger()
	err := runOnce(context.Background(), a.loop, logging.WrapLogger(logger))

	require.NoError(t, err)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Single check complete", entry.Message)
	assert.Equal(t, 1, entry.Data["opportunities"])
	assert.Equal(t, 1, entry.Data["venue_a_prices"])
	assert.Equal(t, "83.0000", entry.Data["usd_inr_rate"])
	assert.Equal(t, "live", entry.Data["rate_source"])
	assert.NotContains(t, entry.Data, "venue_a_error")

	latest, ok := a.memory.Latest()
	require.True(t, ok)
	require.Len(t, latest.Opportunities, 1)
	assert.Equal(t, "BTC", latest.Opportunities[0].Symbol)
	assert.Equal(t, int64(1), a.loop.Stats().TotalChecks)
}

func TestRunOnce_CancelledCheckFails(t *testing.T) {
	a, _ := testApp(t)
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger, _ := test.NewNullLogger()

	err := runOnce(ctx, a.loop, logging.WrapLogger(logger))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "single check failed")
}
