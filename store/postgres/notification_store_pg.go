package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/CampusLink/notify-sync-backend/store"
	"github.com/CampusLink/notify-sync-backend/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by the store. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Ensure pgNotificationStore implements store.RemoteStore.
var _ store.RemoteStore = (*pgNotificationStore)(nil)

type pgNotificationStore struct {
	db DB
}

// NewPgNotificationStore creates a PostgreSQL-backed remote notification store.
func NewPgNotificationStore(db DB) store.RemoteStore {
	return &pgNotificationStore{db: db}
}

// Get retrieves a notification by id within an audience collection.
func (s *pgNotificationStore) Get(ctx context.Context, audience types.Audience, id string) (*types.NotificationRecord, error) {
	query := `SELECT id, audience, title, message, category, read, read_at, created_at, payload
	          FROM notifications
	          WHERE id = $1 AND audience = $2`

	n := &types.NotificationRecord{}
	var payload []byte
	err := s.db.QueryRow(ctx, query, id, string(audience)).Scan(
		&n.ID, &n.Audience, &n.Title, &n.Message, &n.Category, &n.Read, &n.ReadAt, &n.CreatedAt, &payload,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get notification %s: %w", id, err)
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload for %s: %w", id, err)
		}
	}
	return n, nil
}

// buildPatchSet translates a document patch into SET clauses. Known keys map
// to dedicated columns; everything else merges into the JSONB payload.
func buildPatchSet(patch types.Patch, startArg int) (string, []any, error) {
	sets := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch))
	extras := map[string]any{}
	arg := startArg

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := patch[k]
		switch k {
		case "read":
			sets = append(sets, fmt.Sprintf("read = $%d", arg))
			args = append(args, v)
			arg++
		case "readAt":
			sets = append(sets, fmt.Sprintf("read_at = $%d", arg))
			args = append(args, v)
			arg++
		default:
			extras[k] = v
		}
	}

	if len(extras) > 0 {
		data, err := json.Marshal(extras)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode patch payload: %w", err)
		}
		sets = append(sets, fmt.Sprintf("payload = COALESCE(payload, '{}'::jsonb) || $%d::jsonb", arg))
		args = append(args, string(data))
	}

	if len(sets) == 0 {
		return "", nil, fmt.Errorf("empty patch")
	}

	set := sets[0]
	for _, s := range sets[1:] {
		set += ", " + s
	}
	return set, args, nil
}

// Update applies a partial patch to an existing notification.
func (s *pgNotificationStore) Update(ctx context.Context, audience types.Audience, id string, patch types.Patch) error {
	set, args, err := buildPatchSet(patch, 3)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE notifications SET %s WHERE id = $1 AND audience = $2`, set)
	allArgs := append([]any{id, string(audience)}, args...)

	cmdTag, err := s.db.Exec(ctx, query, allArgs...)
	if err != nil {
		return fmt.Errorf("failed to update notification %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("cannot update notification %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// Delete removes a notification. Absent documents report ErrNotFound; the
// caller decides whether that counts as success.
func (s *pgNotificationStore) Delete(ctx context.Context, audience types.Audience, id string) error {
	query := `DELETE FROM notifications WHERE id = $1 AND audience = $2`

	cmdTag, err := s.db.Exec(ctx, query, id, string(audience))
	if err != nil {
		return fmt.Errorf("failed to delete notification %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("cannot delete notification %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// BatchWrite applies all writes inside one transaction. Any failure rolls
// the whole chunk back so the batch stays atomic.
func (s *pgNotificationStore) BatchWrite(ctx context.Context, audience types.Audience, writes []store.BatchWrite) error {
	if len(writes) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch write: %w", err)
	}

	for _, w := range writes {
		set, args, err := buildPatchSet(w.Patch, 3)
		if err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		query := fmt.Sprintf(`UPDATE notifications SET %s WHERE id = $1 AND audience = $2`, set)
		allArgs := append([]any{w.ID, string(audience)}, args...)

		cmdTag, err := tx.Exec(ctx, query, allArgs...)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("batch write failed at notification %s: %w", w.ID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("batch write: notification %s: %w", w.ID, store.ErrNotFound)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch write: %w", err)
	}
	return nil
}

// Add inserts a new notification and returns its store-assigned id.
func (s *pgNotificationStore) Add(ctx context.Context, rec *types.NotificationRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	payload := "{}"
	if rec.Payload != nil {
		data, err := json.Marshal(rec.Payload)
		if err != nil {
			return "", fmt.Errorf("failed to encode payload: %w", err)
		}
		payload = string(data)
	}

	query := `INSERT INTO notifications (id, audience, title, message, category, read, read_at, created_at, payload)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.Exec(ctx, query,
		rec.ID, string(rec.Audience), rec.Title, rec.Message, rec.Category,
		rec.Read, rec.ReadAt, rec.CreatedAt, payload,
	)
	if err != nil {
		return "", fmt.Errorf("failed to add notification: %w", err)
	}
	return rec.ID, nil
}

// ListByAudience returns an audience's notifications in ascending creation
// order, matching the ordering guarantee of the change subscription.
func (s *pgNotificationStore) ListByAudience(ctx context.Context, audience types.Audience) ([]types.NotificationRecord, error) {
	query := `SELECT id, audience, title, message, category, read, read_at, created_at, payload
	          FROM notifications
	          WHERE audience = $1
	          ORDER BY created_at ASC`

	rows, err := s.db.Query(ctx, query, string(audience))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	records := []types.NotificationRecord{}
	for rows.Next() {
		var n types.NotificationRecord
		var payload []byte
		if err := rows.Scan(&n.ID, &n.Audience, &n.Title, &n.Message, &n.Category, &n.Read, &n.ReadAt, &n.CreatedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &n.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode payload for %s: %w", n.ID, err)
			}
		}
		records = append(records, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during notification row iteration: %w", err)
	}
	return records, nil
}
