package narrative_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chronicle/internal/narrative"
	"github.com/scrypster/chronicle/pkg/types"
)

var t0 = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newArcs(clock *fakeClock) *narrative.ArcRegistry {
	return narrative.NewArcRegistry("camp-1", narrative.WithClock(clock.Now), narrative.WithIDGenerator(sequentialIDs("arc")))
}

func TestArcRegistry_Lifecycle(t *testing.T) {
	clock := &fakeClock{now: t0}
	r := newArcs(clock)

	arc, err := r.Create(narrative.NewArc{CharacterID: "mira", Type: types.ArcRedemption, Description: "Mira atones for the fire"})
	require.NoError(t, err)
	assert.Equal(t, "arc-1", arc.ID)
	assert.Equal(t, types.ArcActive, arc.Status)
	assert.Zero(t, arc.Completion())

	clock.Advance(time.Hour)
	_, err = r.AddMilestone(arc.ID, narrative.NewMilestone{Title: "Confession", Completion: 1, MemoryIDs: []string{"mem-1"}})
	require.NoError(t, err)
	arc, err = r.AddMilestone(arc.ID, narrative.NewMilestone{Title: "Rebuild the mill"})
	require.NoError(t, err)
	require.Len(t, arc.Milestones, 2)
	assert.InDelta(t, 1.0/3.0, arc.Completion(), 1e-9, "later milestones weigh more")
	assert.Equal(t, t0.Add(time.Hour), arc.UpdatedAt)

	arc, err = r.SetMilestoneCompletion(arc.ID, 1, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, arc.Completion(), 1e-9)

	arc, err = r.SetStatus(arc.ID, types.ArcPaused)
	require.NoError(t, err)
	assert.Equal(t, types.ArcPaused, arc.Status)
	arc, err = r.SetStatus(arc.ID, types.ArcCompleted)
	require.NoError(t, err)

	_, err = r.SetStatus(arc.ID, types.ArcActive)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	_, err = r.AddMilestone(arc.ID, narrative.NewMilestone{Title: "Epilogue"})
	assert.ErrorIs(t, err, types.ErrValidation)

	got, err := r.Get(arc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ArcCompleted, got.Status, "arcs are never deleted")
}

func TestArcRegistry_Validation(t *testing.T) {
	r := newArcs(&fakeClock{now: t0})
	_, err := r.Create(narrative.NewArc{Type: types.ArcGrowth})
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = r.Create(narrative.NewArc{CharacterID: "mira", Type: "comedy"})
	assert.ErrorIs(t, err, types.ErrValidation)

	arc, err := r.Create(narrative.NewArc{CharacterID: "mira", Type: types.ArcGrowth})
	require.NoError(t, err)
	_, err = r.AddMilestone(arc.ID, narrative.NewMilestone{Title: "Too much", Completion: 1.2})
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = r.SetMilestoneCompletion(arc.ID, 0, 0.5)
	assert.ErrorIs(t, err, types.ErrValidation, "no milestone at index 0")
	_, err = r.AddMilestone("nope", narrative.NewMilestone{Title: "x"})
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = r.AddMilestone(arc.ID, narrative.NewMilestone{Title: "x", Description: "\xff"})
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = r.Create(narrative.NewArc{CharacterID: "mira", Type: types.ArcGrowth, Description: "\xc3("})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestArcRegistry_ListActiveArcs(t *testing.T) {
	r := newArcs(&fakeClock{now: t0})
	a, _ := r.Create(narrative.NewArc{CharacterID: "mira", Type: types.ArcGrowth})
	b, _ := r.Create(narrative.NewArc{CharacterID: "oskar", Type: types.ArcTragedy})
	_, _ = r.SetStatus(b.ID, types.ArcAbandoned)

	active, err := r.ListActiveArcs(context.Background(), "camp-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)
	assert.Len(t, r.List(), 2)

	_, err = r.ListActiveArcs(context.Background(), "camp-2")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestArcRegistry_Restore(t *testing.T) {
	r := newArcs(&fakeClock{now: t0})
	good := types.CharacterArc{ID: "a1", CharacterID: "mira", Type: types.ArcQuest, Status: types.ArcActive, CreatedAt: t0}
	bad := types.CharacterArc{ID: "a2", CharacterID: "mira", Type: "farce", Status: types.ArcActive}

	dropped := r.Restore([]types.CharacterArc{good, bad, good})
	assert.Len(t, dropped, 2)
	assert.Equal(t, []types.CharacterArc{good}, r.List())
}
