package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/celebrum-inr-arb/internal/api/handlers"
	"github.com/irfndi/celebrum-inr-arb/internal/middleware"
)

// Dependencies are the components the status API reads from. Shared,
// History, Breakers, RateCache and Metrics may be nil; nil health checkers
// report as disabled.
type Dependencies struct {
	Version   string
	Latest    handlers.LatestBatchSource
	Shared    handlers.SharedBatchSource
	History   handlers.HistoryStore
	Rates     handlers.RateReader
	Stats     handlers.StatsReader
	Breakers  handlers.BreakerReader
	RateCache handlers.RateCacheReader
	Health    map[string]handlers.HealthChecker
	Metrics   http.Handler
}

// NewRouter builds a gin engine with recovery, tracing and request logging.
func NewRouter(serviceName string, deps Dependencies, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.RequestLogger(logger, "/health", "/metrics"))

	SetupRoutes(router, deps, logger)
	return router
}

func SetupRoutes(router *gin.Engine, deps Dependencies, logger *logrus.Logger) {
	healthHandler := handlers.NewHealthHandler(deps.Version, deps.Health)
	arbitrageHandler := handlers.NewArbitrageHandler(deps.Latest, deps.History, deps.Rates, deps.Stats, deps.Breakers, logger)
	if deps.Shared != nil {
		arbitrageHandler.SetSharedSource(deps.Shared)
	}
	if deps.RateCache != nil {
		arbitrageHandler.SetRateCache(deps.RateCache)
	}

	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	v1 := router.Group("/api/v1")
	{
		arbitrage := v1.Group("/arbitrage")
		{
			arbitrage.GET("/opportunities", arbitrageHandler.GetOpportunities)
			arbitrage.GET("/history", arbitrageHandler.GetHistory)
		}

		v1.GET("/rate", arbitrageHandler.GetRate)
		v1.GET("/stats", arbitrageHandler.GetStats)
	}
}
