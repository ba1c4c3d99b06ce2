package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CampusLink/notify-sync-backend/cache"
	"github.com/CampusLink/notify-sync-backend/config"
	"github.com/CampusLink/notify-sync-backend/logger"
	"github.com/CampusLink/notify-sync-backend/store"
	"github.com/CampusLink/notify-sync-backend/types"
	"go.uber.org/zap"
)

// Default tuning for remote mutations. The retry delay is deliberately
// fixed, not exponential: three quick attempts either clear a transient
// hiccup or the write is handed off to reconciliation.
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	DefaultBatchLimit   = 500
)

// SafeMutationService performs remote mutations that must not blow up on
// missing documents, retries transient failures (reads and writes alike)
// with a fixed delay, and caps batch sizes to the store's limit. Every
// operation returns a structured outcome instead of an error escaping to
// the caller.
type SafeMutationService struct {
	remote store.RemoteStore
	local  cache.Store
	cfg    config.MutationConfig
	logger *zap.SugaredLogger
}

// NewSafeMutationService creates the mutation service. Zero config fields
// fall back to the defaults.
func NewSafeMutationService(remote store.RemoteStore, local cache.Store, cfg config.MutationConfig) *SafeMutationService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelayMs <= 0 {
		cfg.RetryDelayMs = DefaultRetryDelayMs
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	return &SafeMutationService{
		remote: remote,
		local:  local,
		cfg:    cfg,
		logger: logger.GetLogger().Named("mutation"),
	}
}

// retryOp runs op up to MaxRetries times with the fixed delay between
// attempts. store.ErrNotFound is a definitive answer, not a transient
// failure, so it is returned immediately without burning retries.
func (s *SafeMutationService) retryOp(ctx context.Context, name string, op func() error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		err := op()
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return attempt, err
		}
		lastErr = err
		s.logger.Warnw("Attempt failed",
			"op", name, "attempt", attempt, "maxRetries", s.cfg.MaxRetries, "error", err)
		if attempt < s.cfg.MaxRetries {
			select {
			case <-time.After(s.cfg.RetryDelay()):
			case <-ctx.Done():
				return attempt, fmt.Errorf("%s cancelled: %w", name, ctx.Err())
			}
		}
	}
	return s.cfg.MaxRetries, lastErr
}

// checkExists verifies a document before a destructive mutation, retrying
// transient store failures. The second return value reports whether the
// check itself succeeded; only after the retries are exhausted does the
// caller fail safe and leave the document untouched.
func (s *SafeMutationService) checkExists(ctx context.Context, audience types.Audience, id string) (exists bool, checked bool, err error) {
	_, err = s.retryOp(ctx, "existence check "+id, func() error {
		_, getErr := s.remote.Get(ctx, audience, id)
		return getErr
	})
	if err == nil {
		return true, true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, true, nil
	}
	return false, false, err
}

// UpdateOne applies a patch to a single notification. A missing document is
// a NotFound outcome with no write attempted; an unverifiable document
// (existence check exhausted its retries) is also left untouched. Otherwise
// the update is attempted up to MaxRetries times with the fixed delay
// between attempts.
func (s *SafeMutationService) UpdateOne(ctx context.Context, audience types.Audience, id string, patch types.Patch) types.MutationResult {
	exists, checked, err := s.checkExists(ctx, audience, id)
	if !checked {
		s.logger.Warnw("Existence check failed, refusing to update",
			"id", id, "audience", audience, "error", err)
		return types.MutationResult{
			Success: false,
			Error:   fmt.Sprintf("existence check failed for %s: %v", id, err),
		}
	}
	if !exists {
		return types.MutationResult{
			Success:  false,
			NotFound: true,
			Error:    fmt.Sprintf("notification %s not found", id),
		}
	}

	attempts, err := s.retryOp(ctx, "update "+id, func() error {
		return s.remote.Update(ctx, audience, id, patch)
	})
	if err == nil {
		return types.MutationResult{Success: true, Attempts: attempts}
	}
	if errors.Is(err, store.ErrNotFound) {
		// Deleted between check and write; nothing left to update.
		return types.MutationResult{
			Success:  false,
			NotFound: true,
			Attempts: attempts,
			Error:    fmt.Sprintf("notification %s not found", id),
		}
	}
	return types.MutationResult{
		Success:  false,
		Attempts: attempts,
		Error:    fmt.Sprintf("update of %s failed after %d attempts: %v", id, attempts, err),
	}
}

// DeleteOne removes a notification. "Already gone" counts as goal achieved;
// an unverifiable document is left untouched (fail safe).
func (s *SafeMutationService) DeleteOne(ctx context.Context, audience types.Audience, id string) types.MutationResult {
	exists, checked, err := s.checkExists(ctx, audience, id)
	if !checked {
		s.logger.Warnw("Existence check failed, refusing to delete",
			"id", id, "audience", audience, "error", err)
		return types.MutationResult{
			Success: false,
			Error:   fmt.Sprintf("existence check failed for %s: %v", id, err),
		}
	}
	if !exists {
		// Idempotent delete.
		return types.MutationResult{Success: true, NotFound: true}
	}

	if err := s.remote.Delete(ctx, audience, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deleted out from under us between check and write.
			return types.MutationResult{Success: true, NotFound: true}
		}
		return types.MutationResult{
			Success: false,
			Error:   fmt.Sprintf("delete of %s failed: %v", id, err),
		}
	}
	return types.MutationResult{Success: true}
}

// BatchUpdate applies one patch to many notifications. Records that cannot
// be confirmed to exist are skipped with an error string; the confirmed
// subset is chunked to the batch limit and written one atomic chunk at a
// time, each chunk retried like a single update. A chunk that exhausts its
// retries marks all its records failed but never aborts the remaining
// chunks.
func (s *SafeMutationService) BatchUpdate(ctx context.Context, audience types.Audience, records []types.NotificationRecord, patch types.Patch) types.BatchResult {
	result := types.BatchResult{Errors: []string{}}

	valid := make([]string, 0, len(records))
	for _, rec := range records {
		exists, checked, err := s.checkExists(ctx, audience, rec.ID)
		if !checked {
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("existence check failed for %s: %v", rec.ID, err))
			continue
		}
		if !exists {
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("notification %s skipped: not found", rec.ID))
			continue
		}
		valid = append(valid, rec.ID)
	}

	for start := 0; start < len(valid); start += s.cfg.BatchLimit {
		end := start + s.cfg.BatchLimit
		if end > len(valid) {
			end = len(valid)
		}
		chunk := valid[start:end]

		writes := make([]store.BatchWrite, len(chunk))
		for i, id := range chunk {
			writes[i] = store.BatchWrite{ID: id, Patch: patch}
		}

		if _, err := s.retryOp(ctx, "batch chunk", func() error {
			return s.remote.BatchWrite(ctx, audience, writes)
		}); err != nil {
			result.FailedCount += len(chunk)
			result.Errors = append(result.Errors, fmt.Sprintf("batch chunk of %d failed: %v", len(chunk), err))
			s.logger.Warnw("Batch chunk failed",
				"audience", audience, "chunkSize", len(chunk), "error", err)
			continue
		}
		result.SuccessCount += len(chunk)
	}

	return result
}

// MarkRead records a notification as read in both stores. The local
// read-id set is the fast path and the remote store the durable one; the
// two are deliberately not transactional (reconciliation converges them),
// so success is local OR remote.
func (s *SafeMutationService) MarkRead(ctx context.Context, audience types.Audience, actorID, id string) types.MarkReadResult {
	localOK := s.appendReadID(ctx, audience, actorID, id)

	remote := s.UpdateOne(ctx, audience, id, types.ReadPatch(time.Now()))

	result := types.MarkReadResult{
		Success: localOK || remote.Success,
		Local:   localOK,
		Remote:  remote.Success,
	}
	if !remote.Success {
		result.Error = remote.Error
	}
	if !result.Success {
		s.logger.Warnw("Mark read failed on both paths",
			"id", id, "actorID", actorID, "audience", audience, "remoteError", remote.Error)
	}
	return result
}

// appendReadID idempotently adds id to the actor's read-id set and persists
// the full set back. Cache failures are logged and reported as a local
// miss, never propagated.
func (s *SafeMutationService) appendReadID(ctx context.Context, audience types.Audience, actorID, id string) bool {
	key := cache.ReadIDSetKey(audience, actorID)

	ids, err := cache.GetIDList(ctx, s.local, key)
	if err != nil {
		s.logger.Warnw("Failed to load read-id set", "key", key, "error", err)
		return false
	}

	for _, existing := range ids {
		if existing == id {
			return true
		}
	}

	ids = append(ids, id)
	if err := cache.SetIDList(ctx, s.local, key, ids); err != nil {
		s.logger.Warnw("Failed to persist read-id set", "key", key, "error", err)
		return false
	}
	return true
}

// MarkAllRead overwrites the actor's read-id set with the full id list of
// records (a full resync, not an incremental merge) and batch-updates the
// subset still unread remotely.
func (s *SafeMutationService) MarkAllRead(ctx context.Context, audience types.Audience, actorID string, records []types.NotificationRecord) types.BatchResult {
	key := cache.ReadIDSetKey(audience, actorID)

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	if err := cache.SetIDList(ctx, s.local, key, ids); err != nil {
		// Local overwrite failure does not block the remote resync.
		s.logger.Warnw("Failed to overwrite read-id set", "key", key, "error", err)
	}

	unread := make([]types.NotificationRecord, 0, len(records))
	for _, rec := range records {
		if !rec.Read {
			unread = append(unread, rec)
		}
	}
	if len(unread) == 0 {
		return types.BatchResult{Errors: []string{}}
	}

	return s.BatchUpdate(ctx, audience, unread, types.ReadPatch(time.Now()))
}
