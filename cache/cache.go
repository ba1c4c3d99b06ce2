// Package cache defines the on-device persisted key-value boundary used for
// read-state and dedup bookkeeping. Values are opaque string blobs; there
// are no transactional guarantees across keys.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/CampusLink/notify-sync-backend/types"
)

// ErrMiss indicates that a key has no value. A miss is not a failure:
// callers fall back to an empty view.
var ErrMiss = errors.New("cache miss")

// Store is the local cache boundary. The engine is the only mutator of its
// own keys, so no cross-process locking is required.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
}

// ProcessedPushIDsKey persists the broadcast dedup cache.
const ProcessedPushIDsKey = "admin_processed_push_ids"

// ReadIDSetKey names an actor's per-audience read-id set.
func ReadIDSetKey(audience types.Audience, actorID string) string {
	return fmt.Sprintf("readNotifications_%s_%s", audience, actorID)
}

// CountKey names the maintenance-only unread count. Cleared on reset.
func CountKey(audience types.Audience, actorID string) string {
	return fmt.Sprintf("notificationCount_%s_%s", audience, actorID)
}

// LastCheckKey names the timestamp of the last reconciliation pass.
func LastCheckKey(audience types.Audience, actorID string) string {
	return fmt.Sprintf("lastNotificationCheck_%s_%s", audience, actorID)
}

// GetIDList reads a JSON-encoded id list from the cache. A miss yields an
// empty list; a decode failure is surfaced to the caller alongside an
// empty list so that each caller can decide between discard and fail-safe.
func GetIDList(ctx context.Context, s Store, key string) ([]string, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return []string{}, nil
		}
		return []string{}, err
	}
	if raw == "" {
		return []string{}, nil
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return []string{}, fmt.Errorf("corrupt id list at %s: %w", key, err)
	}
	return ids, nil
}

// SetIDList writes a JSON-encoded id list back to the cache.
func SetIDList(ctx context.Context, s Store, key string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode id list for %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}
