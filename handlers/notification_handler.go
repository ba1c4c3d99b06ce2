// Package handlers exposes the engine's operations over HTTP. Handlers
// validate input, delegate to the services and attach AppErrors to the gin
// context for the error-handler middleware to render.
package handlers

import (
	"net/http"

	"github.com/CampusLink/notify-sync-backend/errors"
	"github.com/CampusLink/notify-sync-backend/logger"
	"github.com/CampusLink/notify-sync-backend/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NotificationHandler handles HTTP requests for notification read-state
// mutations.
type NotificationHandler struct {
	mutations MutationService
	lister    NotificationLister
	logger    *zap.SugaredLogger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(mutations MutationService, lister NotificationLister) *NotificationHandler {
	return &NotificationHandler{
		mutations: mutations,
		lister:    lister,
		logger:    logger.GetLogger().Named("NotificationHandler"),
	}
}

// parseAudience reads and validates the audience query parameter. On
// failure it attaches a validation error and reports false.
func parseAudience(c *gin.Context) (types.Audience, bool) {
	audience := types.Audience(c.Query("audience"))
	if !audience.Valid() {
		_ = c.Error(errors.ValidationFailed("Invalid audience", "audience must be 'student' or 'club'"))
		return "", false
	}
	return audience, true
}

// parseActorID reads the actor id query parameter.
func parseActorID(c *gin.Context) (string, bool) {
	actorID := c.Query("actorId")
	if actorID == "" {
		_ = c.Error(errors.ValidationFailed("Missing actor id", "actorId query parameter is required"))
		return "", false
	}
	return actorID, true
}

// ListNotifications returns an audience's notifications in ascending
// creation order.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	audience, ok := parseAudience(c)
	if !ok {
		return
	}

	records, err := h.lister.ListByAudience(c.Request.Context(), audience)
	if err != nil {
		h.logger.Errorw("Failed to list notifications", "audience", audience, "error", err)
		_ = c.Error(errors.TransientStore(err, "Failed to retrieve notifications"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": records, "count": len(records)})
}

// MarkRead marks one notification as read for an actor. The write is
// dual-path: overall success requires only one of the two stores to accept
// it.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	audience, ok := parseAudience(c)
	if !ok {
		return
	}
	actorID, ok := parseActorID(c)
	if !ok {
		return
	}
	id := c.Param("id")

	result := h.mutations.MarkRead(c.Request.Context(), audience, actorID, id)
	if !result.Success {
		_ = c.Error(errors.New(errors.TransientStoreError, "Failed to mark notification read", result.Error))
		return
	}

	c.JSON(http.StatusOK, result)
}

// MarkAllRead resyncs an actor's full read state against the audience's
// current notification list.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	audience, ok := parseAudience(c)
	if !ok {
		return
	}
	actorID, ok := parseActorID(c)
	if !ok {
		return
	}

	records, err := h.lister.ListByAudience(c.Request.Context(), audience)
	if err != nil {
		h.logger.Errorw("Failed to list notifications for read-all", "audience", audience, "error", err)
		_ = c.Error(errors.TransientStore(err, "Failed to retrieve notifications"))
		return
	}

	result := h.mutations.MarkAllRead(c.Request.Context(), audience, actorID, records)
	c.JSON(http.StatusOK, result)
}

// UpdateNotification applies a partial patch to one notification.
func (h *NotificationHandler) UpdateNotification(c *gin.Context) {
	audience, ok := parseAudience(c)
	if !ok {
		return
	}
	id := c.Param("id")

	var patch types.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		_ = c.Error(errors.ValidationFailed("Invalid patch body", err.Error()))
		return
	}
	if len(patch) == 0 {
		_ = c.Error(errors.ValidationFailed("Empty patch", "at least one field is required"))
		return
	}

	result := h.mutations.UpdateOne(c.Request.Context(), audience, id, patch)
	if result.NotFound {
		_ = c.Error(errors.NotFound("Notification", id))
		return
	}
	if !result.Success {
		_ = c.Error(errors.New(errors.TransientStoreError, "Failed to update notification", result.Error))
		return
	}

	c.JSON(http.StatusOK, result)
}

// DeleteNotification removes one notification. Deleting an absent
// notification succeeds: the goal state is reached either way.
func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	audience, ok := parseAudience(c)
	if !ok {
		return
	}
	id := c.Param("id")

	result := h.mutations.DeleteOne(c.Request.Context(), audience, id)
	if !result.Success {
		_ = c.Error(errors.New(errors.TransientStoreError, "Failed to delete notification", result.Error))
		return
	}

	c.JSON(http.StatusOK, result)
}
