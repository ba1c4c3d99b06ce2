package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/CampusLink/notify-sync-backend/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process liveness and dependency reachability.
type HealthHandler struct {
	version string
	deps    map[string]Pinger
	logger  *zap.SugaredLogger
}

// NewHealthHandler creates a health handler over the named dependencies.
func NewHealthHandler(version string, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		version: version,
		deps:    deps,
		logger:  logger.GetLogger().Named("HealthHandler"),
	}
}

// Liveness always reports up. Used by orchestrator liveness probes.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "up", "version": h.version})
}

// Readiness pings every dependency with a short deadline and reports 503
// if any of them is down.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warnw("Dependency unreachable", "dependency", name, "error", err)
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	c.JSON(status, gin.H{"status": checks, "version": h.version})
}
