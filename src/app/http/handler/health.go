// Package handler contains HTTP handlers for the API.
// Handlers are responsible for:
// - Parsing and validating HTTP requests
// - Calling use case methods
// - Converting results to HTTP responses
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"productservice/src/core/usecase"
	"productservice/src/infra/db"
)

// DatabaseChecker produces a full database health report.
type DatabaseChecker interface {
	Check(ctx context.Context) db.HealthReport
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	healthService *usecase.HealthService
	database      DatabaseChecker
	service       string
	port          int
	now           func() time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(healthService *usecase.HealthService, database DatabaseChecker, service string, port int) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
		database:      database,
		service:       service,
		port:          port,
		now:           time.Now,
	}
}

// HealthResponse is the response for the liveness endpoint.
type HealthResponse struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Port      int       `json:"port"`
}

// Health reports that the process is up. It never touches the database.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Service:   h.service,
		Status:    "ok",
		Timestamp: h.now().UTC(),
		Port:      h.port,
	})
}

// DetailedHealth returns the status of every dependency. It answers 200
// even when degraded; /health/db is the one load balancers should probe.
// GET /health/detailed
func (h *HealthHandler) DetailedHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.healthService.Check(c.Request.Context()))
}

// Database returns the full database report, with 503 when unhealthy.
// GET /health/db
func (h *HealthHandler) Database(c *gin.Context) {
	report := h.database.Check(c.Request.Context())
	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}
