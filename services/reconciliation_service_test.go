package services

import (
	"context"
	"errors"
	"testing"

	"github.com/CampusLink/notify-sync-backend/cache"
	"github.com/CampusLink/notify-sync-backend/store"
	"github.com/CampusLink/notify-sync-backend/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func seedReadSet(t *testing.T, local cache.Store, audience types.Audience, actorID string, ids []string) {
	t.Helper()
	require.NoError(t, cache.SetIDList(context.Background(), local, cache.ReadIDSetKey(audience, actorID), ids))
}

func TestAnalyze_MixedValidAndStale(t *testing.T) {
	remote := new(MockRemoteStore)
	local := newFakeCache()
	svc := NewReconciliationService(remote, local)

	seedReadSet(t, local, types.AudienceStudent, "actor-1", []string{"a", "b", "c"})
	remote.On("Get", mock.Anything, types.AudienceStudent, "a").Return(record("a"), nil)
	remote.On("Get", mock.Anything, types.AudienceStudent, "b").Return(nil, store.ErrNotFound)
	remote.On("Get", mock.Anything, types.AudienceStudent, "c").Return(nil, store.ErrNotFound)

	report, err := svc.Analyze(context.Background(), types.AudienceStudent, "actor-1")
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalStored)
	assert.Equal(t, 1, report.ValidInRemote)
	assert.Equal(t, 2, report.InvalidEntries)
	assert.ElementsMatch(t, []string{"b", "c"}, report.InvalidIDs)
	assert.Equal(t, []string{"a"}, report.ValidIDs)
	assert.Equal(t, 33, report.HealthScore())
	assert.NotEmpty(t, report.Recommendations)
}

func TestAnalyze_EmptySetIsHealthy(t *testing.T) {
	remote := new(MockRemoteStore)
	svc := NewReconciliationService(remote, newFakeCache())

	report, err := svc.Analyze(context.Background(), types.AudienceStudent, "actor-1")
	require.NoError(t, err)

	assert.Equal(t, 0, report.TotalStored)
	assert.Equal(t, 100, report.HealthScore())
	remote.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyze_UnverifiableIDsAreKept(t *testing.T) {
	remote := new(MockRemoteStore)
	local := newFakeCache()
	svc := NewReconciliationService(remote, local)

	seedReadSet(t, local, types.AudienceStudent, "actor-1", []string{"a", "b"})
	remote.On("Get", mock.Anything, types.AudienceStudent, "a").Return(record("a"), nil)
	remote.On("Get", mock.Anything, types.AudienceStudent, "b").Return(nil, errors.New("store unreachable"))

	report, err := svc.Analyze(context.Background(), types.AudienceStudent, "actor-1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.ValidInRemote)
	assert.Equal(t, 0, report.InvalidEntries)
	assert.NotEmpty(t, report.Issues)
}

func TestCleanup_EvictsStaleAndRefreshesDerivedKeys(t *testing.T) {
	remote := new(MockRemoteStore)
	local := newFakeCache()
	svc := NewReconciliationService(remote, local)

	seedReadSet(t, local, types.AudienceStudent, "actor-1", []string{"a", "b", "c"})
	remote.On("Get", mock.Anything, types.AudienceStudent, "a").Return(record("a"), nil)
	remote.On("Get", mock.Anything, types.AudienceStudent, "b").Return(nil, store.ErrNotFound)
	remote.On("Get", mock.Anything, types.AudienceStudent, "c").Return(nil, store.ErrNotFound)

	result, err := svc.Cleanup(context.Background(), types.AudienceStudent, "actor-1")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Removed)
	assert.Equal(t, 1, result.Remaining)

	ids, err := cache.GetIDList(context.Background(), local, cache.ReadIDSetKey(types.AudienceStudent, "actor-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	count, err := local.Get(context.Background(), cache.CountKey(types.AudienceStudent, "actor-1"))
	require.NoError(t, err)
	assert.Equal(t, "1", count)

	_, err = local.Get(context.Background(), cache.LastCheckKey(types.AudienceStudent, "actor-1"))
	assert.NoError(t, err)
}

func TestCleanup_SecondRunIsNoOp(t *testing.T) {
	remote := new(MockRemoteStore)
	local := newFakeCache()
	svc := NewReconciliationService(remote, local)

	seedReadSet(t, local, types.AudienceStudent, "actor-1", []string{"a", "b"})
	remote.On("Get", mock.Anything, types.AudienceStudent, "a").Return(record("a"), nil)
	remote.On("Get", mock.Anything, types.AudienceStudent, "b").Return(nil, store.ErrNotFound)

	first, err := svc.Cleanup(context.Background(), types.AudienceStudent, "actor-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Removed)

	second, err := svc.Cleanup(context.Background(), types.AudienceStudent, "actor-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Removed)
	assert.Equal(t, 1, second.Remaining)
}

func TestCleanup_DedupesSurvivors(t *testing.T) {
	remote := new(MockRemoteStore)
	local := newFakeCache()
	svc := NewReconciliationService(remote, local)

	seedReadSet(t, local, types.AudienceClub, "actor-2", []string{"a", "a", "b"})
	remote.On("Get", mock.Anything, types.AudienceClub, "a").Return(record("a"), nil)
	remote.On("Get", mock.Anything, types.AudienceClub, "b").Return(record("b"), nil)

	result, err := svc.Cleanup(context.Background(), types.AudienceClub, "actor-2")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 2, result.Remaining)

	ids, err := cache.GetIDList(context.Background(), local, cache.ReadIDSetKey(types.AudienceClub, "actor-2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestCleanup_PreservesInsertionOrder(t *testing.T) {
	remote := new(MockRemoteStore)
	local := newFakeCache()
	svc := NewReconciliationService(remote, local)

	seedReadSet(t, local, types.AudienceStudent, "actor-3", []string{"c", "a", "b"})
	remote.On("Get", mock.Anything, types.AudienceStudent, "c").Return(record("c"), nil)
	remote.On("Get", mock.Anything, types.AudienceStudent, "a").Return(nil, store.ErrNotFound)
	remote.On("Get", mock.Anything, types.AudienceStudent, "b").Return(record("b"), nil)

	result, err := svc.Cleanup(context.Background(), types.AudienceStudent, "actor-3")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)

	ids, err := cache.GetIDList(context.Background(), local, cache.ReadIDSetKey(types.AudienceStudent, "actor-3"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids)
}

func TestReset_WipesAllAudiences(t *testing.T) {
	local := newFakeCache()
	svc := NewReconciliationService(new(MockRemoteStore), local)

	ctx := context.Background()
	for _, audience := range types.Audiences {
		seedReadSet(t, local, audience, "actor-1", []string{"x"})
		require.NoError(t, local.Set(ctx, cache.CountKey(audience, "actor-1"), "1"))
		require.NoError(t, local.Set(ctx, cache.LastCheckKey(audience, "actor-1"), "now"))
	}

	require.NoError(t, svc.Reset(ctx, "actor-1"))

	for _, audience := range types.Audiences {
		for _, key := range []string{
			cache.ReadIDSetKey(audience, "actor-1"),
			cache.CountKey(audience, "actor-1"),
			cache.LastCheckKey(audience, "actor-1"),
		} {
			_, err := local.Get(ctx, key)
			assert.ErrorIs(t, err, cache.ErrMiss, "key %s should be gone", key)
		}
	}
}

func TestPerformMaintenance_FlagsResetBeyondThreshold(t *testing.T) {
	remote := new(MockRemoteStore)
	local := newFakeCache()
	svc := NewReconciliationService(remote, local)

	// Eight of ten stale: past the 0.7 threshold.
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	seedReadSet(t, local, types.AudienceStudent, "actor-1", ids)
	for _, id := range ids[:2] {
		remote.On("Get", mock.Anything, types.AudienceStudent, id).Return(record(id), nil)
	}
	for _, id := range ids[2:] {
		remote.On("Get", mock.Anything, types.AudienceStudent, id).Return(nil, store.ErrNotFound)
	}

	report, err := svc.PerformMaintenance(context.Background(), types.AudienceStudent, "actor-1")
	require.NoError(t, err)

	assert.True(t, report.ResetRequired)
	require.NotNil(t, report.Cleanup)
	assert.Equal(t, 8, report.Cleanup.Removed)
	assert.Equal(t, 2, report.Cleanup.Remaining)

	// The flag only signals the condition; the surviving set stays intact.
	kept, err := cache.GetIDList(context.Background(), local, cache.ReadIDSetKey(types.AudienceStudent, "actor-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, kept)
}

func TestPerformMaintenance_RepairsBelowThreshold(t *testing.T) {
	remote := new(MockRemoteStore)
	local := newFakeCache()
	svc := NewReconciliationService(remote, local)

	// Six of ten stale: below the threshold, repaired in place.
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	seedReadSet(t, local, types.AudienceStudent, "actor-1", ids)
	for _, id := range ids[:4] {
		remote.On("Get", mock.Anything, types.AudienceStudent, id).Return(record(id), nil)
	}
	for _, id := range ids[4:] {
		remote.On("Get", mock.Anything, types.AudienceStudent, id).Return(nil, store.ErrNotFound)
	}

	report, err := svc.PerformMaintenance(context.Background(), types.AudienceStudent, "actor-1")
	require.NoError(t, err)

	assert.False(t, report.ResetRequired)
	require.NotNil(t, report.Cleanup)
	assert.Equal(t, 6, report.Cleanup.Removed)
	assert.Equal(t, 4, report.Cleanup.Remaining)
}

func TestPerformMaintenance_HealthySetDoesNothing(t *testing.T) {
	remote := new(MockRemoteStore)
	local := newFakeCache()
	svc := NewReconciliationService(remote, local)

	seedReadSet(t, local, types.AudienceStudent, "actor-1", []string{"a"})
	remote.On("Get", mock.Anything, types.AudienceStudent, "a").Return(record("a"), nil)

	report, err := svc.PerformMaintenance(context.Background(), types.AudienceStudent, "actor-1")
	require.NoError(t, err)

	assert.False(t, report.ResetRequired)
	assert.Nil(t, report.Cleanup)
}

func TestHealthReport_CoversBothAudiences(t *testing.T) {
	remote := new(MockRemoteStore)
	local := newFakeCache()
	svc := NewReconciliationService(remote, local)

	seedReadSet(t, local, types.AudienceStudent, "actor-1", []string{"a", "b"})
	remote.On("Get", mock.Anything, types.AudienceStudent, "a").Return(record("a"), nil)
	remote.On("Get", mock.Anything, types.AudienceStudent, "b").Return(nil, store.ErrNotFound)

	summary, err := svc.HealthReport(context.Background(), "actor-1")
	require.NoError(t, err)

	require.Len(t, summary.Scopes, 2)
	assert.Equal(t, types.AudienceStudent, summary.Scopes[0].Audience)
	assert.Equal(t, 50, summary.Scopes[0].Score)
	assert.Equal(t, types.AudienceClub, summary.Scopes[1].Audience)
	assert.Equal(t, 100, summary.Scopes[1].Score)
	assert.Contains(t, summary.Rendered, "actor-1")
	assert.Contains(t, summary.Rendered, "student")
	assert.Contains(t, summary.Rendered, "club")
}
