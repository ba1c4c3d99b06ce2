// Package store defines the interfaces over the remote notification store.
// The remote store is authoritative and shared across devices; this engine
// never assumes it is the sole writer.
package store

import (
	"context"

	"github.com/CampusLink/notify-sync-backend/types"
)

// BatchWrite pairs a document id with the patch applied to it inside an
// atomic batched write.
type BatchWrite struct {
	ID    string
	Patch types.Patch
}

// RemoteStore is the document-store boundary consumed by the mutation and
// reconciliation services. Implementations must return ErrNotFound (possibly
// wrapped) when a document is absent; any other error is treated as a
// transient store failure by callers.
type RemoteStore interface {
	// Get retrieves one notification by id within an audience collection.
	Get(ctx context.Context, audience types.Audience, id string) (*types.NotificationRecord, error)
	// Update applies a partial patch to an existing notification.
	Update(ctx context.Context, audience types.Audience, id string, patch types.Patch) error
	// Delete removes a notification. Deleting an absent document returns ErrNotFound.
	Delete(ctx context.Context, audience types.Audience, id string) error
	// BatchWrite applies all writes atomically: the whole batch succeeds or
	// fails as one. Callers chunk to the configured batch limit.
	BatchWrite(ctx context.Context, audience types.Audience, writes []BatchWrite) error
	// Add inserts a new notification and returns its store-assigned id.
	Add(ctx context.Context, rec *types.NotificationRecord) (string, error)
	// ListByAudience returns an audience's notifications in ascending
	// creation order.
	ListByAudience(ctx context.Context, audience types.Audience) ([]types.NotificationRecord, error)
}
