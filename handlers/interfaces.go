package handlers

import (
	"context"

	"github.com/CampusLink/notify-sync-backend/services"
	"github.com/CampusLink/notify-sync-backend/types"
)

// MutationService defines the mutation operations needed by handlers.
type MutationService interface {
	UpdateOne(ctx context.Context, audience types.Audience, id string, patch types.Patch) types.MutationResult
	DeleteOne(ctx context.Context, audience types.Audience, id string) types.MutationResult
	MarkRead(ctx context.Context, audience types.Audience, actorID, id string) types.MarkReadResult
	MarkAllRead(ctx context.Context, audience types.Audience, actorID string, records []types.NotificationRecord) types.BatchResult
}

// MaintenanceService defines the reconciliation operations needed by handlers.
type MaintenanceService interface {
	Analyze(ctx context.Context, audience types.Audience, actorID string) (*types.AnalysisReport, error)
	Cleanup(ctx context.Context, audience types.Audience, actorID string) (*types.CleanupResult, error)
	Reset(ctx context.Context, actorID string) error
	PerformMaintenance(ctx context.Context, audience types.Audience, actorID string) (*types.MaintenanceReport, error)
	HealthReport(ctx context.Context, actorID string) (*types.HealthSummary, error)
}

// NotificationLister provides read access to the remote store for handlers.
type NotificationLister interface {
	ListByAudience(ctx context.Context, audience types.Audience) ([]types.NotificationRecord, error)
}

// NotificationCreator inserts new notifications into the remote store.
type NotificationCreator interface {
	Add(ctx context.Context, rec *types.NotificationRecord) (string, error)
}

// BroadcastProducer publishes a broadcast item to the push queue.
type BroadcastProducer interface {
	Publish(ctx context.Context, item types.BroadcastItem) error
}

// JobSubmitter hands maintenance work to the background worker pool.
type JobSubmitter interface {
	Submit(job services.Job) bool
}
