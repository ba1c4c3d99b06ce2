package services

import (
	"context"
	"sync"

	"github.com/CampusLink/notify-sync-backend/cache"
	"github.com/CampusLink/notify-sync-backend/store"
	"github.com/CampusLink/notify-sync-backend/types"
	"github.com/stretchr/testify/mock"
)

// MockRemoteStore is a testify mock over the remote store boundary.
type MockRemoteStore struct {
	mock.Mock
}

func (m *MockRemoteStore) Get(ctx context.Context, audience types.Audience, id string) (*types.NotificationRecord, error) {
	args := m.Called(ctx, audience, id)
	if rec := args.Get(0); rec != nil {
		return rec.(*types.NotificationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRemoteStore) Update(ctx context.Context, audience types.Audience, id string, patch types.Patch) error {
	args := m.Called(ctx, audience, id, patch)
	return args.Error(0)
}

func (m *MockRemoteStore) Delete(ctx context.Context, audience types.Audience, id string) error {
	args := m.Called(ctx, audience, id)
	return args.Error(0)
}

func (m *MockRemoteStore) BatchWrite(ctx context.Context, audience types.Audience, writes []store.BatchWrite) error {
	args := m.Called(ctx, audience, writes)
	return args.Error(0)
}

func (m *MockRemoteStore) Add(ctx context.Context, rec *types.NotificationRecord) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

func (m *MockRemoteStore) ListByAudience(ctx context.Context, audience types.Audience) ([]types.NotificationRecord, error) {
	args := m.Called(ctx, audience)
	if recs := args.Get(0); recs != nil {
		return recs.([]types.NotificationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeCache is an in-memory cache.Store used where tests only care about
// the values that end up persisted.
type fakeCache struct {
	mu     sync.Mutex
	data   map[string]string
	setErr error
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	return nil
}

func (f *fakeCache) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

// recordingDisplayer captures displayed items for assertions.
type recordingDisplayer struct {
	mu    sync.Mutex
	items []types.BroadcastItem
	err   error
}

func (d *recordingDisplayer) Display(ctx context.Context, item types.BroadcastItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, item)
	return d.err
}

func (d *recordingDisplayer) displayed() []types.BroadcastItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.BroadcastItem, len(d.items))
	copy(out, d.items)
	return out
}
