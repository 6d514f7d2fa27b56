package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker is implemented by the Redis and Postgres connections.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

const (
	statusHealthy  = "healthy"
	statusDisabled = "disabled"
)

type HealthHandler struct {
	checkers  map[string]HealthChecker
	version   string
	startedAt time.Time
	timeout   time.Duration
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

// NewHealthHandler creates a health handler. A nil checker marks its
// service as disabled, which does not degrade overall health.
func NewHealthHandler(version string, checkers map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{
		checkers:  checkers,
		version:   version,
		startedAt: time.Now(),
		timeout:   3 * time.Second,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	services := make(map[string]string, len(h.checkers))
	overall := statusHealthy
	for name, checker := range h.checkers {
		if checker == nil {
			services[name] = statusDisabled
			continue
		}
		if err := checker.HealthCheck(ctx); err != nil {
			services[name] = "unhealthy: " + err.Error()
			overall = "degraded"
			continue
		}
		services[name] = statusHealthy
	}

	code := http.StatusOK
	if overall != statusHealthy {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
	})
}
