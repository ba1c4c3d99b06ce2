package handlers

import (
	"net/http"

	"github.com/CampusLink/notify-sync-backend/errors"
	"github.com/CampusLink/notify-sync-backend/logger"
	"github.com/CampusLink/notify-sync-backend/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BroadcastHandler accepts administrator push messages, persists them as
// notifications and publishes them to the broadcast queue. The queue is
// at-least-once; consumers dedup by id.
type BroadcastHandler struct {
	creator  NotificationCreator
	producer BroadcastProducer
	logger   *zap.SugaredLogger
}

// NewBroadcastHandler creates a new BroadcastHandler.
func NewBroadcastHandler(creator NotificationCreator, producer BroadcastProducer) *BroadcastHandler {
	return &BroadcastHandler{
		creator:  creator,
		producer: producer,
		logger:   logger.GetLogger().Named("BroadcastHandler"),
	}
}

type broadcastRequest struct {
	Title    string `json:"title" binding:"required"`
	Message  string `json:"message" binding:"required"`
	Audience string `json:"audience" binding:"required"`
	Category string `json:"category"`
	Mode     string `json:"mode"`
}

// Publish stores the message as a notification for the target audience and
// announces it on the broadcast queue under the store-assigned id, so that
// dedup state and stored documents agree on identity.
func (h *BroadcastHandler) Publish(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.ValidationFailed("Invalid broadcast body", err.Error()))
		return
	}

	audience := types.Audience(req.Audience)
	if !audience.Valid() {
		_ = c.Error(errors.ValidationFailed("Invalid audience", "audience must be 'student' or 'club'"))
		return
	}

	rec := &types.NotificationRecord{
		Audience: audience,
		Title:    req.Title,
		Message:  req.Message,
		Category: req.Category,
	}
	id, err := h.creator.Add(c.Request.Context(), rec)
	if err != nil {
		h.logger.Errorw("Failed to store broadcast notification", "title", req.Title, "error", err)
		_ = c.Error(errors.PersistenceFailed(err, "Failed to store broadcast"))
		return
	}

	item := types.BroadcastItem{
		ID:      id,
		Title:   req.Title,
		Message: req.Message,
		Mode:    types.DeliveryMode(req.Mode),
	}
	if err := h.producer.Publish(c.Request.Context(), item); err != nil {
		// The notification is stored; only the push announcement is lost.
		h.logger.Errorw("Failed to publish broadcast", "id", id, "error", err)
		_ = c.Error(errors.TransientStore(err, "Failed to publish broadcast"))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": id})
}
