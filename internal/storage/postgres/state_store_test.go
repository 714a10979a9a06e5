package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chronicle/internal/storage"
	"github.com/scrypster/chronicle/internal/storage/postgres"
)

// newTestStore connects to CHRONICLE_TEST_POSTGRES_DSN or skips the test.
func newTestStore(t *testing.T) *postgres.StateStore {
	t.Helper()

	dsn := os.Getenv("CHRONICLE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHRONICLE_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}

	store, err := postgres.NewStateStore(dsn)
	require.NoError(t, err, "NewStateStore should succeed")
	require.NoError(t, store.TruncateForTest(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStateStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	blob := []byte(`{"version":1,"campaign_id":"camp-1"}`)
	require.NoError(t, store.SaveState(ctx, "camp-1", blob))
	got, err := store.LoadState(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	page, err := store.ListCampaigns(ctx, storage.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "camp-1", page.Items[0].ID)

	require.NoError(t, store.DeleteState(ctx, "camp-1"))
	_, err = store.LoadState(ctx, "camp-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
