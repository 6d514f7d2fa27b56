package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func performHealthCheck(t *testing.T, handler *HealthHandler) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", handler.HealthCheck)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return w, response
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	redis := &MockHealthChecker{}
	redis.On("HealthCheck", mock.Anything).Return(nil)
	db := &MockHealthChecker{}
	db.On("HealthCheck", mock.Anything).Return(nil)

	handler := NewHealthHandler("1.0.0", map[string]HealthChecker{"redis": redis, "database": db})
	w, response := performHealthCheck(t, handler)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "1.0.0", response.Version)
	assert.Equal(t, "healthy", response.Services["redis"])
	assert.Equal(t, "healthy", response.Services["database"])
	assert.NotEmpty(t, response.Uptime)
	redis.AssertExpectations(t)
	db.AssertExpectations(t)
}

func TestHealthHandler_DisabledServicesStayHealthy(t *testing.T) {
	handler := NewHealthHandler("1.0.0", map[string]HealthChecker{"redis": nil, "database": nil})
	w, response := performHealthCheck(t, handler)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "disabled", response.Services["redis"])
	assert.Equal(t, "disabled", response.Services["database"])
}

func TestHealthHandler_Degraded(t *testing.T) {
	redis := &MockHealthChecker{}
	redis.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

	handler := NewHealthHandler("1.0.0", map[string]HealthChecker{"redis": redis, "database": nil})
	w, response := performHealthCheck(t, handler)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", response.Status)
	assert.Equal(t, "unhealthy: connection refused", response.Services["redis"])
	assert.Equal(t, "disabled", response.Services["database"])
}
