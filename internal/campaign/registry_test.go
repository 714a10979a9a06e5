package campaign_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chronicle/internal/campaign"
	"github.com/scrypster/chronicle/internal/narrative"
	"github.com/scrypster/chronicle/internal/storage"
	"github.com/scrypster/chronicle/internal/storage/sqlite"
	"github.com/scrypster/chronicle/pkg/types"
)

func newRegistry(t *testing.T, idle time.Duration) (*campaign.Registry, *sqlite.StateStore, *fakeClock) {
	t.Helper()
	store, err := sqlite.NewStateStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &fakeClock{now: t0}
	reg, err := campaign.NewRegistry(store, campaign.DefaultConfig(), idle, testOptions(clock)...)
	require.NoError(t, err)
	return reg, store, clock
}

func TestRegistry_CreateSaveReload(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newRegistry(t, 0)

	c, err := reg.Get(ctx, "camp-1")
	require.NoError(t, err)
	record(t, c, "the king fell", 1.0)

	same, err := reg.Get(ctx, "camp-1")
	require.NoError(t, err)
	assert.Same(t, c, same)

	require.NoError(t, reg.Save(ctx, "camp-1"))
	assert.False(t, c.Dirty())
	_, err = store.LoadState(ctx, "camp-1")
	require.NoError(t, err)

	assert.True(t, reg.Discard("camp-1"))
	assert.Empty(t, reg.Loaded())

	reloaded, err := reg.Get(ctx, "camp-1")
	require.NoError(t, err)
	assert.NotSame(t, c, reloaded)
	assert.Equal(t, 1, reloaded.Memories().Len())
	assert.True(t, reloaded.LoadReport().Clean())
}

func TestRegistry_SaveUnknown(t *testing.T) {
	reg, _, _ := newRegistry(t, 0)
	assert.ErrorIs(t, reg.Save(context.Background(), "ghost"), types.ErrNotFound)
	_, err := reg.Get(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRegistry_SweepIdle(t *testing.T) {
	ctx := context.Background()
	reg, store, clock := newRegistry(t, time.Hour)

	quiet, err := reg.Get(ctx, "quiet")
	require.NoError(t, err)
	record(t, quiet, "the road was empty", 0.3)

	clock.Advance(50 * time.Minute)
	busy, err := reg.Get(ctx, "busy")
	require.NoError(t, err)
	record(t, busy, "the tavern erupted", 0.7)

	clock.Advance(20 * time.Minute)
	swept, err := reg.SweepIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"quiet"}, swept)
	assert.Equal(t, []string{"busy"}, reg.Loaded())

	_, err = store.LoadState(ctx, "quiet")
	assert.NoError(t, err, "idle campaign is saved before it is discarded")
	_, err = store.LoadState(ctx, "busy")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = quiet.RecordEvent(types.NewRecord{Content: "a late arrival", EmotionalWeight: 0.4})
	assert.ErrorIs(t, err, campaign.ErrClosed, "writes to a swept campaign would be lost")
	record(t, busy, "the tavern quieted", 0.2)
}

// TestRegistry_DiscardClosesCampaign checks a holder of a discarded campaign
// cannot write to it, while a fresh Get returns a working copy.
func TestRegistry_DiscardClosesCampaign(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newRegistry(t, 0)

	stale, err := reg.Get(ctx, "camp-1")
	require.NoError(t, err)
	record(t, stale, "the king fell", 1.0)
	require.NoError(t, reg.Save(ctx, "camp-1"))
	require.True(t, reg.Discard("camp-1"))

	_, err = stale.RecordEvent(types.NewRecord{Content: "lost words", EmotionalWeight: 0.5})
	assert.ErrorIs(t, err, campaign.ErrClosed)
	_, err = stale.OpenThread(narrative.NewThread{Name: "The drowned bell", Type: types.ThreadMystery, Priority: 5})
	assert.ErrorIs(t, err, campaign.ErrClosed)
	_, err = stale.PendingEvents(ctx, 1)
	assert.ErrorIs(t, err, campaign.ErrClosed)
	assert.False(t, stale.Maintain().Changed())
	assert.Equal(t, 1, stale.Memories().Len(), "reads still work")

	fresh, err := reg.Get(ctx, "camp-1")
	require.NoError(t, err)
	assert.NotSame(t, stale, fresh)
	record(t, fresh, "the heir was crowned", 0.8)
	assert.Equal(t, 2, fresh.Memories().Len())
}

func TestRegistry_ConcurrentGetSharesCampaign(t *testing.T) {
	reg, err := campaign.NewRegistry(nil, campaign.DefaultConfig(), 0)
	require.NoError(t, err)

	const n = 8
	got := make([]*campaign.Campaign, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := reg.Get(context.Background(), "camp-1")
			assert.NoError(t, err)
			got[i] = c
		}()
	}
	wg.Wait()
	for _, c := range got[1:] {
		assert.Same(t, got[0], c)
	}
	assert.Equal(t, []string{"camp-1"}, reg.Loaded())
}

func TestRegistry_CorruptBlob(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newRegistry(t, 0)
	require.NoError(t, store.SaveState(ctx, "broken", []byte("not json")))

	_, err := reg.Get(ctx, "broken")
	assert.ErrorIs(t, err, types.ErrCorruptState)

	require.NoError(t, reg.Delete(ctx, "broken"))
	c, err := reg.Get(ctx, "broken")
	require.NoError(t, err)
	assert.Zero(t, c.Memories().Len())
}

func TestRegistry_MemoryOnly(t *testing.T) {
	ctx := context.Background()
	reg, err := campaign.NewRegistry(nil, campaign.DefaultConfig(), 0)
	require.NoError(t, err)

	c, err := reg.Get(ctx, "camp-1")
	require.NoError(t, err)
	record(t, c, "the king fell", 1.0)
	require.NoError(t, reg.SaveAll(ctx))
	require.NoError(t, reg.Close(ctx))
	assert.Equal(t, []string{"camp-1"}, reg.Loaded())
}

func TestScheduler(t *testing.T) {
	ctx := context.Background()
	reg, store, clock := newRegistry(t, time.Hour)

	_, err := campaign.NewScheduler(reg, "every tuesday")
	require.Error(t, err)

	s, err := campaign.NewScheduler(reg, campaign.DefaultSchedule)
	require.NoError(t, err)
	next, err := s.Next(t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), next)

	c, err := reg.Get(ctx, "camp-1")
	require.NoError(t, err)
	record(t, c, "the king fell", 1.0)
	clock.Advance(2 * time.Hour)

	tick, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Contains(t, tick.Maintained, "camp-1")
	assert.Equal(t, []string{"camp-1"}, tick.Swept)
	_, err = store.LoadState(ctx, "camp-1")
	assert.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.Run(cancelled), context.Canceled)
}

func TestScheduler_LoadAll(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newRegistry(t, 0)
	for _, id := range []string{"north", "south"} {
		c, err := campaign.New(id, campaign.DefaultConfig())
		require.NoError(t, err)
		blob, err := c.SaveState()
		require.NoError(t, err)
		require.NoError(t, store.SaveState(ctx, id, blob))
	}

	passes := 0
	s, err := campaign.NewScheduler(reg, campaign.DefaultSchedule, campaign.WithLoadAll(),
		campaign.WithAfterPass(func(context.Context) error { passes++; return nil }))
	require.NoError(t, err)
	tick, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, tick.Maintained, 2)
	assert.Equal(t, 1, passes)
	assert.Equal(t, []string{"north", "south"}, reg.Loaded())
}
