package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chronicle/internal/storage"
	"github.com/scrypster/chronicle/internal/storage/sqlite"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T, opts ...sqlite.Option) *sqlite.StateStore {
	t.Helper()
	store, err := sqlite.NewStateStore(":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStateStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	blob := []byte(`{"version":1,"campaign_id":"camp-1"}`)
	require.NoError(t, store.SaveState(ctx, "camp-1", blob))

	got, err := store.LoadState(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	replaced := []byte(`{"version":1,"campaign_id":"camp-1","sequence":4}`)
	require.NoError(t, store.SaveState(ctx, "camp-1", replaced))
	got, err = store.LoadState(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, replaced, got)
}

func TestStateStore_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.LoadState(ctx, "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.DeleteState(ctx, "ghost"), storage.ErrNotFound)
	assert.Error(t, store.SaveState(ctx, "", []byte("x")))
}

func TestStateStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveState(ctx, "camp-1", []byte("{}")))
	require.NoError(t, store.DeleteState(ctx, "camp-1"))
	_, err := store.LoadState(ctx, "camp-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStateStore_ListCampaigns(t *testing.T) {
	now := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	store := newTestStore(t, sqlite.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i, id := range []string{"alpha", "bravo", "charlie"} {
		now = now.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.SaveState(ctx, id, []byte(id)))
	}

	page, err := store.ListCampaigns(ctx, storage.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasMore)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "charlie", page.Items[0].ID, "newest first by default")
	assert.Equal(t, storage.Checksum([]byte("charlie")), page.Items[0].Checksum)
	assert.Equal(t, len("charlie"), page.Items[0].Bytes)

	rest, err := store.ListCampaigns(ctx, storage.ListOptions{Limit: 2, Page: 2})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Equal(t, "alpha", rest.Items[0].ID)
	assert.False(t, rest.HasMore)

	byName, err := store.ListCampaigns(ctx, storage.ListOptions{SortBy: "campaign_id", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, byName.Items, 3)
	assert.Equal(t, "alpha", byName.Items[0].ID)

	stale, err := store.ListCampaigns(ctx, storage.ListOptions{SavedBefore: byName.Items[2].SavedAt})
	require.NoError(t, err)
	assert.Equal(t, 2, stale.Total)
}

func TestStateStore_ReopenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronicle.db")
	ctx := context.Background()

	store, err := sqlite.NewStateStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveState(ctx, "camp-1", []byte("persisted")))
	require.NoError(t, store.Close())

	reopened, err := sqlite.NewStateStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.LoadState(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}
