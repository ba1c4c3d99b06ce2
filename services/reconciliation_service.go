package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/CampusLink/notify-sync-backend/cache"
	"github.com/CampusLink/notify-sync-backend/logger"
	"github.com/CampusLink/notify-sync-backend/store"
	"github.com/CampusLink/notify-sync-backend/types"
	"go.uber.org/zap"
)

const (
	// resetThreshold is the invalid/total ratio above which an actor's
	// cached read state is considered too corrupt to repair in place.
	resetThreshold = 0.7

	// analyzeConcurrency bounds parallel existence probes per analysis run.
	analyzeConcurrency = 8
)

// ReconciliationService detects and repairs drift between the local
// read-id sets and the remote store. Eviction is conservative: an id is
// only removed when the remote store positively confirms the document is
// gone, never on a failed lookup.
type ReconciliationService struct {
	remote store.RemoteStore
	local  cache.Store
	logger *zap.SugaredLogger
}

func NewReconciliationService(remote store.RemoteStore, local cache.Store) *ReconciliationService {
	return &ReconciliationService{
		remote: remote,
		local:  local,
		logger: logger.GetLogger().Named("reconcile"),
	}
}

// Analyze verifies every id in the actor's cached read set against the
// remote store and reports which entries are stale. Lookup failures leave
// the id in the valid set; only a confirmed not-found marks it invalid.
func (s *ReconciliationService) Analyze(ctx context.Context, audience types.Audience, actorID string) (*types.AnalysisReport, error) {
	key := cache.ReadIDSetKey(audience, actorID)

	ids, err := cache.GetIDList(ctx, s.local, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load read-id set %s: %w", key, err)
	}

	report := &types.AnalysisReport{
		Audience:        audience,
		TotalStored:     len(ids),
		ValidIDs:        []string{},
		InvalidIDs:      []string{},
		Issues:          []string{},
		Recommendations: []string{},
	}
	if len(ids) == 0 {
		return report, nil
	}

	type probe struct {
		id      string
		missing bool
		err     error
	}

	results := make([]probe, len(ids))
	sem := make(chan struct{}, analyzeConcurrency)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			_, err := s.remote.Get(ctx, audience, id)
			results[i] = probe{
				id:      id,
				missing: errors.Is(err, store.ErrNotFound),
				err:     err,
			}
		}(i, id)
	}
	wg.Wait()

	for _, r := range results {
		if r.missing {
			report.InvalidIDs = append(report.InvalidIDs, r.id)
			report.Issues = append(report.Issues, fmt.Sprintf("read id %s no longer exists remotely", r.id))
			continue
		}
		if r.err != nil {
			// Unverifiable: keep it, flag it.
			report.Issues = append(report.Issues, fmt.Sprintf("could not verify read id %s: %v", r.id, r.err))
		}
		report.ValidIDs = append(report.ValidIDs, r.id)
	}

	report.ValidInRemote = len(report.ValidIDs)
	report.InvalidEntries = len(report.InvalidIDs)

	if report.InvalidEntries > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("remove %d stale read id(s) from the local set", report.InvalidEntries))
	}
	if float64(report.InvalidEntries) > resetThreshold*float64(report.TotalStored) {
		report.Recommendations = append(report.Recommendations,
			"local read state is mostly stale, a full reset is cheaper than repair")
	}

	return report, nil
}

// Cleanup evicts the confirmed-stale ids found by a fresh analysis,
// dedupes the surviving set and refreshes the derived count and last-check
// keys. Running it twice in a row is a no-op the second time.
func (s *ReconciliationService) Cleanup(ctx context.Context, audience types.Audience, actorID string) (*types.CleanupResult, error) {
	report, err := s.Analyze(ctx, audience, actorID)
	if err != nil {
		return nil, err
	}

	key := cache.ReadIDSetKey(audience, actorID)

	// Dedupe in place; the set is an ordered list, so survivors keep
	// their original position.
	seen := make(map[string]struct{}, len(report.ValidIDs))
	kept := make([]string, 0, len(report.ValidIDs))
	for _, id := range report.ValidIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		kept = append(kept, id)
	}

	if err := cache.SetIDList(ctx, s.local, key, kept); err != nil {
		return nil, fmt.Errorf("failed to persist cleaned read-id set %s: %w", key, err)
	}
	if err := s.local.Set(ctx, cache.CountKey(audience, actorID), fmt.Sprintf("%d", len(kept))); err != nil {
		s.logger.Warnw("Failed to refresh count key", "audience", audience, "actorID", actorID, "error", err)
	}
	if err := s.local.Set(ctx, cache.LastCheckKey(audience, actorID), time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Warnw("Failed to refresh last-check key", "audience", audience, "actorID", actorID, "error", err)
	}

	removed := report.TotalStored - len(kept)
	s.logger.Infow("Cleanup finished",
		"audience", audience, "actorID", actorID, "removed", removed, "remaining", len(kept))

	return &types.CleanupResult{Removed: removed, Remaining: len(kept)}, nil
}

// Reset wipes the actor's cached read state for every audience. Used when
// the state is too corrupt to repair.
func (s *ReconciliationService) Reset(ctx context.Context, actorID string) error {
	var firstErr error
	for _, audience := range types.Audiences {
		for _, key := range []string{
			cache.ReadIDSetKey(audience, actorID),
			cache.CountKey(audience, actorID),
			cache.LastCheckKey(audience, actorID),
		} {
			if err := s.local.Remove(ctx, key); err != nil && !errors.Is(err, cache.ErrMiss) {
				s.logger.Warnw("Failed to remove cache key during reset", "key", key, "error", err)
				if firstErr == nil {
					firstErr = fmt.Errorf("failed to remove %s: %w", key, err)
				}
			}
		}
	}
	if firstErr == nil {
		s.logger.Infow("Read state reset", "actorID", actorID)
	}
	return firstErr
}

// PerformMaintenance runs the analyze-then-repair cycle for one actor and
// audience. Mostly-stale state (beyond the reset threshold) is flagged as
// reset-required; the reset itself stays with the caller so that wiping an
// actor's state is always a deliberate decision.
func (s *ReconciliationService) PerformMaintenance(ctx context.Context, audience types.Audience, actorID string) (*types.MaintenanceReport, error) {
	analysis, err := s.Analyze(ctx, audience, actorID)
	if err != nil {
		return nil, err
	}

	report := &types.MaintenanceReport{Analysis: *analysis}

	if analysis.InvalidEntries > 0 {
		cleanup, err := s.Cleanup(ctx, audience, actorID)
		if err != nil {
			return report, err
		}
		report.Cleanup = cleanup
	}

	if analysis.TotalStored > 0 &&
		float64(analysis.InvalidEntries) > resetThreshold*float64(analysis.TotalStored) {
		report.ResetRequired = true
	}

	return report, nil
}

// HealthReport renders a human-readable summary of an actor's read-state
// health across all audiences.
func (s *ReconciliationService) HealthReport(ctx context.Context, actorID string) (*types.HealthSummary, error) {
	summary := &types.HealthSummary{Actor: actorID}

	var b strings.Builder
	fmt.Fprintf(&b, "Read-state health for %s\n", actorID)

	for _, audience := range types.Audiences {
		analysis, err := s.Analyze(ctx, audience, actorID)
		if err != nil {
			return nil, err
		}
		health := types.AudienceHealth{
			Audience: audience,
			Score:    analysis.HealthScore(),
			Analysis: *analysis,
		}
		summary.Scopes = append(summary.Scopes, health)
		fmt.Fprintf(&b, "  %s: score %d (%d stored, %d stale)\n",
			audience, health.Score, analysis.TotalStored, analysis.InvalidEntries)
	}

	summary.Rendered = b.String()
	return summary, nil
}
