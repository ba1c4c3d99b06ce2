package services

import (
	"context"
	"sync"

	"github.com/CampusLink/notify-sync-backend/cache"
	"github.com/CampusLink/notify-sync-backend/config"
	"github.com/CampusLink/notify-sync-backend/logger"
	"github.com/CampusLink/notify-sync-backend/types"
	"go.uber.org/zap"
)

// DefaultMaxStoredIDs bounds the persisted seen-id window. FIFO: when the
// window is full the oldest ids are dropped first.
const DefaultMaxStoredIDs = 50

// Displayer performs the user-visible side effect for a broadcast item.
// Implementations must tolerate being skipped: the service records an item
// as seen before displaying it, so a crash mid-display loses the
// notification rather than duplicating it.
type Displayer interface {
	Display(ctx context.Context, item types.BroadcastItem) error
}

// DedupDeliveryService consumes broadcast change events and guarantees
// at-most-once display per item id across restarts. The seen-id window is
// persisted to the shared cache and hydrated before any delivery decision
// is made; events arriving before hydration completes are dropped.
type DedupDeliveryService struct {
	local     cache.Store
	displayer Displayer
	cfg       config.DedupConfig
	logger    *zap.SugaredLogger

	mu       sync.Mutex
	hydrated bool
	seen     map[string]struct{}
	order    []string
}

func NewDedupDeliveryService(local cache.Store, displayer Displayer, cfg config.DedupConfig) *DedupDeliveryService {
	if cfg.MaxStoredIDs <= 0 {
		cfg.MaxStoredIDs = DefaultMaxStoredIDs
	}
	if cfg.DeliveryMode == "" {
		cfg.DeliveryMode = string(types.DeliveryModeLocal)
	}
	return &DedupDeliveryService{
		local:     local,
		displayer: displayer,
		cfg:       cfg,
		logger:    logger.GetLogger().Named("dedup"),
		seen:      make(map[string]struct{}),
		order:     []string{},
	}
}

// Hydrate loads the persisted seen-id window. A cache miss starts an empty
// window; a corrupt entry is discarded and the window starts empty too.
func (s *DedupDeliveryService) Hydrate(ctx context.Context) error {
	ids, err := cache.GetIDList(ctx, s.local, cache.ProcessedPushIDsKey)
	if err != nil {
		s.logger.Warnw("Discarding corrupt processed-id entry", "error", err)
		ids = []string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen = make(map[string]struct{}, len(ids))
	s.order = s.order[:0]
	for _, id := range ids {
		if _, dup := s.seen[id]; dup {
			continue
		}
		s.seen[id] = struct{}{}
		s.order = append(s.order, id)
	}
	s.trimLocked()
	s.hydrated = true

	s.logger.Infow("Processed-id window hydrated", "count", len(s.order))
	return nil
}

// OnItemAdded decides whether to deliver a freshly announced item. The id
// is recorded and persisted before the display side effect runs, so a
// failure between the two yields a lost notification, never a duplicate.
func (s *DedupDeliveryService) OnItemAdded(ctx context.Context, item types.BroadcastItem) {
	s.mu.Lock()
	if !s.hydrated {
		s.mu.Unlock()
		s.logger.Warnw("Dropping broadcast item, window not hydrated yet", "id", item.ID)
		return
	}
	s.mu.Unlock()

	if string(item.Mode) != s.cfg.DeliveryMode {
		return
	}
	if err := item.Validate(); err != nil {
		s.logger.Warnw("Skipping malformed broadcast item", "id", item.ID, "error", err)
		return
	}

	s.mu.Lock()
	if _, dup := s.seen[item.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.seen[item.ID] = struct{}{}
	s.order = append(s.order, item.ID)
	s.trimLocked()
	s.mu.Unlock()

	if err := s.Persist(ctx); err != nil {
		s.logger.Warnw("Failed to persist processed-id window", "id", item.ID, "error", err)
	}

	if err := s.displayer.Display(ctx, item); err != nil {
		s.logger.Warnw("Display failed", "id", item.ID, "error", err)
	}
}

// Persist writes the current seen-id window to the shared cache.
func (s *DedupDeliveryService) Persist(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	s.mu.Unlock()

	return cache.SetIDList(ctx, s.local, cache.ProcessedPushIDsKey, ids)
}

// trimLocked drops the oldest ids until the window fits. Callers hold mu.
func (s *DedupDeliveryService) trimLocked() {
	for len(s.order) > s.cfg.MaxStoredIDs {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.seen, oldest)
	}
}

// Run hydrates the window and then consumes broadcast events until the
// stream closes or the context is cancelled. Only additions trigger
// delivery; modifications and removals carry no user-facing side effect.
func (s *DedupDeliveryService) Run(ctx context.Context, stream <-chan types.ChangeEvent) error {
	if err := s.Hydrate(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-stream:
			if !ok {
				return nil
			}
			if event.Type != types.ChangeAdded {
				continue
			}
			s.OnItemAdded(ctx, event.Item)
		}
	}
}

// SeenCount reports the current window size. Diagnostic use only.
func (s *DedupDeliveryService) SeenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
