package handlers

import (
	"context"
	"net/http"

	"github.com/CampusLink/notify-sync-backend/errors"
	"github.com/CampusLink/notify-sync-backend/logger"
	"github.com/CampusLink/notify-sync-backend/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaintenanceHandler exposes the reconciliation operations: analysis,
// cleanup, reset and health reporting. Cleanup can run synchronously or be
// handed to the worker pool.
type MaintenanceHandler struct {
	maintenance MaintenanceService
	pool        JobSubmitter
	logger      *zap.SugaredLogger
}

// NewMaintenanceHandler creates a new MaintenanceHandler.
func NewMaintenanceHandler(maintenance MaintenanceService, pool JobSubmitter) *MaintenanceHandler {
	return &MaintenanceHandler{
		maintenance: maintenance,
		pool:        pool,
		logger:      logger.GetLogger().Named("MaintenanceHandler"),
	}
}

// Analyze cross-checks an actor's cached read state against the remote
// store without mutating anything.
func (h *MaintenanceHandler) Analyze(c *gin.Context) {
	audience, ok := parseAudience(c)
	if !ok {
		return
	}
	actorID, ok := parseActorID(c)
	if !ok {
		return
	}

	report, err := h.maintenance.Analyze(c.Request.Context(), audience, actorID)
	if err != nil {
		h.logger.Errorw("Analysis failed", "audience", audience, "actorId", actorID, "error", err)
		_ = c.Error(errors.PersistenceFailed(err, "Failed to analyze read state"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report, "healthScore": report.HealthScore()})
}

// Cleanup evicts confirmed-stale read ids. With async=true the pass runs on
// the worker pool and the request returns immediately.
func (h *MaintenanceHandler) Cleanup(c *gin.Context) {
	audience, ok := parseAudience(c)
	if !ok {
		return
	}
	actorID, ok := parseActorID(c)
	if !ok {
		return
	}

	if c.Query("async") == "true" {
		queued := h.pool.Submit(services.Job{
			Name: "cleanup-" + actorID,
			Execute: func(ctx context.Context) error {
				_, err := h.maintenance.Cleanup(ctx, audience, actorID)
				return err
			},
		})
		if !queued {
			_ = c.Error(errors.New(errors.ServerError, "Maintenance queue is full", ""))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true})
		return
	}

	result, err := h.maintenance.Cleanup(c.Request.Context(), audience, actorID)
	if err != nil {
		h.logger.Errorw("Cleanup failed", "audience", audience, "actorId", actorID, "error", err)
		_ = c.Error(errors.PersistenceFailed(err, "Failed to clean up read state"))
		return
	}

	c.JSON(http.StatusOK, result)
}

// Maintain runs the full analyze-then-repair cycle for one audience.
func (h *MaintenanceHandler) Maintain(c *gin.Context) {
	audience, ok := parseAudience(c)
	if !ok {
		return
	}
	actorID, ok := parseActorID(c)
	if !ok {
		return
	}

	report, err := h.maintenance.PerformMaintenance(c.Request.Context(), audience, actorID)
	if err != nil {
		h.logger.Errorw("Maintenance failed", "audience", audience, "actorId", actorID, "error", err)
		_ = c.Error(errors.PersistenceFailed(err, "Maintenance pass failed"))
		return
	}

	c.JSON(http.StatusOK, report)
}

// Reset wipes an actor's cached read state across all audiences.
func (h *MaintenanceHandler) Reset(c *gin.Context) {
	actorID, ok := parseActorID(c)
	if !ok {
		return
	}

	if err := h.maintenance.Reset(c.Request.Context(), actorID); err != nil {
		h.logger.Errorw("Reset failed", "actorId", actorID, "error", err)
		_ = c.Error(errors.PersistenceFailed(err, "Failed to reset read state"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"reset": true})
}

// Health renders the per-audience health report for one actor.
func (h *MaintenanceHandler) Health(c *gin.Context) {
	actorID := c.Param("actorId")
	if actorID == "" {
		_ = c.Error(errors.ValidationFailed("Missing actor id", "actorId path parameter is required"))
		return
	}

	summary, err := h.maintenance.HealthReport(c.Request.Context(), actorID)
	if err != nil {
		h.logger.Errorw("Health report failed", "actorId", actorID, "error", err)
		_ = c.Error(errors.PersistenceFailed(err, "Failed to build health report"))
		return
	}

	c.JSON(http.StatusOK, summary)
}
