package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/irfndi/celebrum-inr-arb/internal/api"
	"github.com/irfndi/celebrum-inr-arb/internal/api/handlers"
	"github.com/irfndi/celebrum-inr-arb/internal/cache"
	"github.com/irfndi/celebrum-inr-arb/internal/config"
	"github.com/irfndi/celebrum-inr-arb/internal/database"
	"github.com/irfndi/celebrum-inr-arb/internal/exchange"
	"github.com/irfndi/celebrum-inr-arb/internal/logging"
	"github.com/irfndi/celebrum-inr-arb/internal/metrics"
	"github.com/irfndi/celebrum-inr-arb/internal/services"
	"github.com/irfndi/celebrum-inr-arb/internal/telemetry"
	"github.com/irfndi/celebrum-inr-arb/internal/utils"
)

const serviceName = "celebrum-inr-arb"

var version = telemetry.ServiceVersion

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, exitMessage(err))
		os.Exit(1)
	}
}

func exitMessage(err error) string {
	if utils.IsValidationError(err) {
		return fmt.Sprintf("Invalid configuration: %v", err)
	}
	return fmt.Sprintf("Application failed: %v", err)
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	flags.Int("interval", 10, "polling interval in seconds")
	flags.String("config", "", "path to a config.yaml file")
	flags.Bool("once", false, "run a single check, log the result and exit")
	return flags
}

// run returns an error only when the process cannot start. Venue, Redis and
// Postgres outages are logged and tolerated.
func run(args []string) error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	std := logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
	logger := std.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.InitTelemetryWithProvider(ctx, cfg.Telemetry, cfg.Environment, logger)
	if err != nil {
		std.WithError(err).Warn("Failed to initialize telemetry, continuing without tracing")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Failed to shutdown telemetry")
			}
		}()
	}

	a := newApp(ctx, cfg, logger)
	defer a.close()

	std.LogStartup(serviceName, version, cfg.Server.Port)

	if once, _ := flags.GetBool("once"); once {
		err := runOnce(ctx, a.loop, std)
		std.LogShutdown(serviceName, "single check complete")
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.loop.Run(gctx)
	})

	if cfg.Server.Enabled {
		srv := newHTTPServer(cfg.Server.Port, a.router(cfg))
		g.Go(func() error {
			std.WithService(serviceName).WithField("port", cfg.Server.Port).Info("Status API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				// The loop keeps running without the status API.
				logger.WithError(err).Error("Status API stopped")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Status API forced to shutdown")
			}
			return nil
		})
	}

	err = g.Wait()
	std.LogShutdown(serviceName, "signal received")
	return err
}

// runOnce performs a single check and logs its outcome.
func runOnce(ctx context.Context, loop *services.PollLoop, std *logging.StandardLogger) error {
	result, err := loop.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("single check failed: %w", err)
	}

	batch := result.Batch
	entry := std.WithService(serviceName).WithFields(logrus.Fields{
		"batch_id":       batch.ID.String(),
		"opportunities":  len(batch.Opportunities),
		"venue_a_prices": batch.VenueACount,
		"venue_b_prices": batch.VenueBCount,
		"usd_inr_rate":   batch.Rate.Rate.StringFixed(4),
		"rate_source":    string(batch.Rate.Source),
		"duration_ms":    result.Duration.Milliseconds(),
	})
	if result.ErrA != nil {
		entry = entry.WithField("venue_a_error", result.ErrA.Error())
	}
	if result.ErrB != nil {
		entry = entry.WithField("venue_b_error", result.ErrB.Error())
	}
	entry.Info("Single check complete")
	return nil
}

// app holds every long-lived component of the process.
type app struct {
	logger     *logrus.Logger
	redis      *database.RedisClient
	postgres   *database.PostgresDB
	history    *database.OpportunityRepository
	rateStore  *cache.RedisRateStore
	publisher  *cache.RedisPublisher
	rates      *services.RateProvider
	aggregator *services.SnapshotAggregator
	memory     *services.MemorySink
	loop       *services.PollLoop
	collector  *metrics.Collector
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) *app {
	a := &app{
		logger:    logger,
		memory:    services.NewMemorySink(),
		collector: metrics.NewCollector(),
	}
	sinks := []services.OpportunitySink{services.NewLogSink(logger), a.memory}

	var rateStore services.RateStore
	if cfg.Redis.Enabled {
		client, err := database.NewRedisConnection(ctx, cfg.Redis, logger)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing without rate cache and publisher")
		} else {
			a.redis = client
			a.rateStore = cache.NewRedisRateStore(client.Client, 24*time.Hour)
			a.publisher = cache.NewRedisPublisher(client.Client, time.Duration(cfg.Redis.LatestTTLSeconds)*time.Second)
			rateStore = a.rateStore
			sinks = append(sinks, a.publisher)
		}
	}

	if cfg.Database.Enabled {
		db, err := database.NewPostgresConnection(ctx, cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Warn("Postgres unavailable, continuing without history")
		} else {
			repo := database.NewOpportunityRepository(database.NewTracedDB(db.Pool))
			if err := repo.EnsureSchema(ctx); err != nil {
				logger.WithError(err).Warn("Failed to ensure opportunity schema, continuing without history")
				db.Close()
			} else {
				a.postgres = db
				a.history = repo
				sinks = append(sinks, repo)
			}
		}
	}

	notifier, err := services.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	switch {
	case err != nil:
		logger.WithError(err).Warn("Telegram alerts disabled")
	case notifier != nil:
		sinks = append(sinks, notifier)
	}

	a.rates = services.NewRateProvider(exchange.NewFXClient(cfg.FX, logger), rateStore, services.RateProviderConfig{
		Base:         cfg.FX.Base,
		Quote:        cfg.FX.Quote,
		TTL:          cfg.FX.TTL(),
		FallbackRate: decimal.NewFromFloat(cfg.FX.FallbackRate),
	}, logger)

	a.aggregator = services.NewSnapshotAggregator(
		exchange.NewCoinDCXFetcher(cfg.Venues.CoinDCX, logger),
		exchange.NewBinanceFetcher(cfg.Venues.Binance, logger),
		cfg.Symbols,
		services.CircuitBreakerConfig{
			FailureThreshold: cfg.Arbitrage.BreakerFailures,
			Timeout:          time.Duration(cfg.Arbitrage.BreakerTimeoutSeconds) * time.Second,
		},
		logger,
	)
	a.aggregator.SetObserver(a.collector)

	engine := services.NewOpportunityEngine(services.EngineConfig{
		MinSpreadPercent: decimal.NewFromFloat(cfg.Arbitrage.MinSpreadPercent),
		MaxSpreadPercent: decimal.NewFromFloat(cfg.Arbitrage.MaxSpreadPercent),
	}, logger)

	a.loop = services.NewPollLoop(a.rates, a.aggregator, engine, services.NewDispatcher(logger, sinks...), services.PollLoopConfig{
		Interval:   cfg.Arbitrage.Interval(),
		Cooldown:   cfg.Arbitrage.Cooldown(),
		StatsEvery: cfg.Arbitrage.StatsEvery,
	}, logger)
	a.loop.SetObserver(a.collector)

	return a
}

func (a *app) router(cfg *config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := api.Dependencies{
		Version:  version,
		Latest:   a.memory,
		Rates:    a.rates,
		Stats:    a.loop,
		Breakers: a.aggregator,
		Metrics:  a.collector.Handler(),
		Health:   map[string]handlers.HealthChecker{"redis": nil, "database": nil},
	}
	// Typed nil pointers must not reach the interfaces.
	if a.history != nil {
		deps.History = a.history
	}
	if a.redis != nil {
		deps.Health["redis"] = a.redis
	}
	if a.publisher != nil {
		deps.Shared = a.publisher
	}
	if a.rateStore != nil {
		deps.RateCache = a.rateStore
	}
	if a.postgres != nil {
		deps.Health["database"] = a.postgres
	}

	name := cfg.Telemetry.ServiceName
	if name == "" {
		name = telemetry.ServiceName
	}
	return api.NewRouter(name, deps, a.logger)
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}
}
