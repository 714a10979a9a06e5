package narrative_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chronicle/internal/narrative"
	"github.com/scrypster/chronicle/pkg/types"
)

func newThreads(clock *fakeClock) *narrative.ThreadRegistry {
	return narrative.NewThreadRegistry("camp-1", narrative.WithClock(clock.Now), narrative.WithIDGenerator(sequentialIDs("thread")))
}

func TestThreadRegistry_Lifecycle(t *testing.T) {
	clock := &fakeClock{now: t0}
	r := newThreads(clock)

	th, err := r.Open(narrative.NewThread{Name: "Who burned the mill?", Type: types.ThreadMystery, Priority: 6, CharacterIDs: []string{"mira"}})
	require.NoError(t, err)
	assert.Equal(t, types.ThreadOpen, th.Status)
	assert.Equal(t, t0, th.LastActivity())

	clock.Advance(2 * time.Hour)
	nine := 9
	th, err = r.AddUpdate(th.ID, narrative.NewUpdate{Title: "Soot on Oskar's boots", MemoryIDs: []string{"mem-4"}, Priority: &nine})
	require.NoError(t, err)
	assert.Equal(t, types.ThreadAdvancing, th.Status)
	assert.Equal(t, 9, th.Priority)
	assert.Equal(t, t0.Add(2*time.Hour), th.LastActivity())

	_, err = r.AddUpdate(th.ID, narrative.NewUpdate{Title: "Oskar flees"})
	require.NoError(t, err)

	_, err = r.Resolve(th.ID, "Oskar confessed", nil)
	assert.ErrorIs(t, err, types.ErrValidation, "a resolution must cite memories")
	_, err = r.Resolve(th.ID, "", []string{"mem-9"})
	assert.ErrorIs(t, err, types.ErrValidation)

	th, err = r.Resolve(th.ID, "Oskar confessed", []string{"mem-9"})
	require.NoError(t, err)
	assert.Equal(t, types.ThreadResolved, th.Status)
	assert.Equal(t, []string{"mem-9"}, th.ResolvedBy)

	_, err = r.AddUpdate(th.ID, narrative.NewUpdate{Title: "Afterthought"})
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	_, err = r.Abandon(th.ID, "bored")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	th, err = r.SetMetadata(th.ID, map[string]any{"journal_page": 12})
	require.NoError(t, err, "metadata stays editable after resolution")
	assert.Equal(t, 12, th.Metadata["journal_page"])
	th, err = r.SetMetadata(th.ID, map[string]any{"journal_page": nil})
	require.NoError(t, err)
	assert.NotContains(t, th.Metadata, "journal_page")
}

func TestThreadRegistry_Validation(t *testing.T) {
	r := newThreads(&fakeClock{now: t0})
	tests := []struct {
		name string
		in   narrative.NewThread
	}{
		{"missing name", narrative.NewThread{Type: types.ThreadQuest, Priority: 5}},
		{"bad type", narrative.NewThread{Name: "x", Type: "romance", Priority: 5}},
		{"priority low", narrative.NewThread{Name: "x", Type: types.ThreadQuest, Priority: 0}},
		{"priority high", narrative.NewThread{Name: "x", Type: types.ThreadQuest, Priority: 11}},
		{"invalid utf-8", narrative.NewThread{Name: "bell\xff", Type: types.ThreadQuest, Priority: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Open(tt.in)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
	assert.Empty(t, r.List())

	th, err := r.Open(narrative.NewThread{Name: "Find the ferryman", Type: types.ThreadQuest, Priority: 3})
	require.NoError(t, err)
	bad := 0
	_, err = r.AddUpdate(th.ID, narrative.NewUpdate{Title: "x", Priority: &bad})
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = r.AddUpdate("missing", narrative.NewUpdate{Title: "x"})
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = r.AddUpdate(th.ID, narrative.NewUpdate{Title: "x", Description: "\xfe"})
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = r.Resolve(th.ID, "found \xff", []string{"mem-1"})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestThreadRegistry_ListOpenThreads(t *testing.T) {
	r := newThreads(&fakeClock{now: t0})
	low, _ := r.Open(narrative.NewThread{Name: "Lost cat", Type: types.ThreadQuest, Priority: 2})
	high, _ := r.Open(narrative.NewThread{Name: "Succession", Type: types.ThreadPolitical, Priority: 8})
	gone, _ := r.Open(narrative.NewThread{Name: "Old feud", Type: types.ThreadRelationship, Priority: 9})
	_, err := r.Abandon(gone.ID, "both parties died")
	require.NoError(t, err)

	open, err := r.ListOpenThreads(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, high.ID, open[0].ID)
	assert.Equal(t, low.ID, open[1].ID)
}
