package orchestration_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chronicle/internal/narrative"
	"github.com/scrypster/chronicle/internal/orchestration"
	"github.com/scrypster/chronicle/pkg/types"
)

var t0 = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newEngine(t *testing.T) (*orchestration.Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: t0}
	n := 0
	e, err := orchestration.New("camp-1", orchestration.DefaultConfig(),
		orchestration.WithClock(clock.Now),
		orchestration.WithIDGenerator(func() string { n++; return fmt.Sprintf("decision-%d", n) }),
	)
	require.NoError(t, err)
	return e, clock
}

func thread(id string, typ types.ThreadType, priority int, idle time.Duration, recent, updates int) narrative.ThreadState {
	th := types.PlotThread{
		ID:        id,
		Name:      "thread " + id,
		Type:      typ,
		Priority:  priority,
		Status:    types.ThreadOpen,
		CreatedAt: t0.Add(-idle),
	}
	for i := range updates {
		th.Updates = append(th.Updates, types.ThreadUpdate{Title: fmt.Sprintf("update %d", i), At: t0.Add(-idle)})
		th.Status = types.ThreadAdvancing
	}
	return narrative.ThreadState{Thread: th, LastActivity: t0.Add(-idle), Idle: idle, RecentUpdates: recent}
}

func arc(id string, typ types.ArcType, completion float64) narrative.ArcState {
	return narrative.ArcState{
		Arc:        types.CharacterArc{ID: id, CharacterID: "mira", Type: typ, Status: types.ArcActive},
		Completion: completion,
	}
}

func eventTypes(evs []types.OrchestrationEvent) []types.EventType {
	out := make([]types.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

// TestGenerateEvents_StagnantHighPriorityThread covers a priority 9 thread
// untouched past the stagnation window with no arcs: the single event must
// push that thread.
func TestGenerateEvents_StagnantHighPriorityThread(t *testing.T) {
	for _, tt := range []struct {
		typ  types.ThreadType
		want types.EventType
	}{
		{types.ThreadMystery, types.EventPlotTwist},
		{types.ThreadQuest, types.EventTensionEscalation},
	} {
		t.Run(string(tt.typ), func(t *testing.T) {
			e, _ := newEngine(t)
			snap := narrative.Snapshot{
				TakenAt:     t0,
				OpenThreads: []narrative.ThreadState{thread("th-1", tt.typ, 9, 100*time.Hour, 0, 1)},
			}
			res := e.GenerateEvents(snap, 1)
			require.Len(t, res.Events, 1)
			ev := res.Events[0]
			assert.Equal(t, tt.want, ev.Type)
			assert.Equal(t, "th-1", ev.ThreadID)
			assert.Equal(t, types.PriorityCritical, ev.Priority)
			assert.Equal(t, types.EventPending, ev.Status)
			assert.NotEmpty(t, ev.TriggerConditions)
		})
	}
}

func TestGenerateEvents_Ranking(t *testing.T) {
	e, _ := newEngine(t)
	snap := narrative.Snapshot{
		TakenAt:    t0,
		ActiveArcs: []narrative.ArcState{arc("arc-1", types.ArcRelationship, 0.8)},
		OpenThreads: []narrative.ThreadState{
			thread("th-hot", types.ThreadQuest, 8, time.Hour, 3, 3),
			thread("th-cold", types.ThreadRelationship, 5, 80*time.Hour, 0, 1),
		},
		Trend: narrative.EmotionalTrend{Dominant: []string{"grief"}, Intensity: 0.7, SampleSize: 6},
	}

	res := e.GenerateEvents(snap, 10)
	assert.Equal(t, []types.EventType{
		types.EventResolutionOpportunity,
		types.EventRelationshipDevelopment,
		types.EventMoralDilemma,
		types.EventTensionEscalation,
	}, eventTypes(res.Events))
	assert.Equal(t, "th-hot", res.Events[2].ThreadID, "dilemma attaches to the top open thread")
	assert.Equal(t, types.PriorityHigh, res.Events[0].Priority)
	assert.Equal(t, "resolve", res.Events[0].Recommendations[0].Action)
	assert.Equal(t, "arc-1", res.Events[1].ArcID)
	assert.Equal(t, "mira", res.Events[1].CharacterID)

	top := e.GenerateEvents(snap, 2)
	assert.Equal(t, res.Events[:2], top.Events)
}

func TestGenerateEvents_Deterministic(t *testing.T) {
	e, _ := newEngine(t)
	snap := narrative.Snapshot{
		TakenAt:    t0,
		ActiveArcs: []narrative.ArcState{arc("arc-1", types.ArcGrowth, 0.4), arc("arc-2", types.ArcGrowth, 0.4)},
		OpenThreads: []narrative.ThreadState{
			thread("th-1", types.ThreadPolitical, 7, 90*time.Hour, 0, 2),
			thread("th-2", types.ThreadQuest, 4, 0, 0, 0),
		},
		Trend: narrative.EmotionalTrend{Dominant: []string{"joy"}, Intensity: 0.1, SampleSize: 5},
	}
	first := e.GenerateEvents(snap, 5)
	second := e.GenerateEvents(snap, 5)
	assert.Equal(t, first, second)
	assert.Len(t, e.Pending(0), len(first.Events))

	other, _ := newEngine(t)
	assert.Equal(t, first, other.GenerateEvents(snap, 5), "ids derive from content, not randomness")
}

// TestGenerateEvents_CoolDown verifies a dismissed thread event does not
// reappear until the cool-down has passed.
func TestGenerateEvents_CoolDown(t *testing.T) {
	e, clock := newEngine(t)
	snap := narrative.Snapshot{
		TakenAt:     t0,
		OpenThreads: []narrative.ThreadState{thread("th-1", types.ThreadMystery, 9, 100*time.Hour, 0, 1)},
	}
	first := e.GenerateEvents(snap, 1)
	require.Len(t, first.Events, 1)
	dismissed, err := e.Dismiss(first.Events[0].ID, "not now")
	require.NoError(t, err)
	assert.Equal(t, types.EventDismissed, dismissed.Status)

	clock.Advance(time.Hour)
	again := e.GenerateEvents(snap, 1)
	assert.Equal(t, 1, again.Suppressed)
	for _, ev := range again.Events {
		assert.False(t, ev.ThreadID == "th-1" && ev.Type == types.EventPlotTwist, "suppressed event came back")
	}
	assert.True(t, again.Degraded())

	clock.Advance(24 * time.Hour)
	later := e.GenerateEvents(snap, 1)
	require.Len(t, later.Events, 1)
	assert.Equal(t, types.EventPlotTwist, later.Events[0].Type)
	assert.NotEqual(t, first.Events[0].ID, later.Events[0].ID)
}

// TestGenerateEvents_ActiveThreadGetsSideLead covers a thread that is moving
// but neither stalled nor ready to resolve: it still yields a low-priority
// candidate instead of falling through to the generic fallback.
func TestGenerateEvents_ActiveThreadGetsSideLead(t *testing.T) {
	e, _ := newEngine(t)
	snap := narrative.Snapshot{
		TakenAt:     t0,
		OpenThreads: []narrative.ThreadState{thread("th-1", types.ThreadQuest, 5, 2*time.Hour, 1, 2)},
	}
	res := e.GenerateEvents(snap, 1)
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, types.EventNewQuest, ev.Type)
	assert.Equal(t, types.PriorityLow, ev.Priority)
	assert.Equal(t, "th-1", ev.ThreadID)
	assert.Equal(t, "add_update", ev.Recommendations[0].Action)
	assert.False(t, res.Degraded())
}

func TestGenerateEvents_EmptySnapshotFallsBack(t *testing.T) {
	e, _ := newEngine(t)
	res := e.GenerateEvents(narrative.Snapshot{TakenAt: t0}, 3)
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, types.EventWorldEvent, ev.Type)
	assert.Equal(t, types.PriorityLow, ev.Priority)
	assert.Empty(t, ev.ThreadID)
	assert.Empty(t, ev.ArcID)
	assert.True(t, res.Degraded())

	neg := e.GenerateEvents(narrative.Snapshot{Trend: narrative.EmotionalTrend{Dominant: []string{"fear"}, SampleSize: 1}}, 3)
	require.Len(t, neg.Events, 1)
	assert.Equal(t, types.EventQuietMoment, neg.Events[0].Type)
}

func TestGenerateEvents_SkipsArcsOutsideReadyBand(t *testing.T) {
	e, _ := newEngine(t)
	snap := narrative.Snapshot{ActiveArcs: []narrative.ArcState{
		arc("fresh", types.ArcGrowth, 0),
		arc("done", types.ArcGrowth, 0.95),
		arc("ready", types.ArcTragedy, 0.3),
	}}
	res := e.GenerateEvents(snap, 5)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "ready", res.Events[0].ArcID)
	assert.Equal(t, types.EventCharacterInsight, res.Events[0].Type)
	assert.Equal(t, types.PriorityMedium, res.Events[0].Priority)
}

func TestGenerateEvents_OmitsUnconstructible(t *testing.T) {
	e, _ := newEngine(t)
	orphan := arc("arc-x", types.ArcGrowth, 0.5)
	orphan.Arc.CharacterID = ""
	res := e.GenerateEvents(narrative.Snapshot{ActiveArcs: []narrative.ArcState{orphan}, Gaps: []string{"threads"}}, 1)
	require.Len(t, res.Events, 1)
	assert.Equal(t, types.EventWorldEvent, res.Events[0].Type)
	assert.GreaterOrEqual(t, len(res.Warnings), 2)
}

func TestEngine_Lifecycle(t *testing.T) {
	e, clock := newEngine(t)
	res := e.GenerateEvents(narrative.Snapshot{}, 1)
	id := res.Events[0].ID

	_, err := e.Execute("missing", "x")
	assert.ErrorIs(t, err, types.ErrNotFound)

	clock.Advance(time.Minute)
	ev, err := e.Execute(id, "a caravan arrived")
	require.NoError(t, err)
	assert.Equal(t, types.EventExecuted, ev.Status)
	require.NotNil(t, ev.ExecutedAt)
	assert.Equal(t, t0.Add(time.Minute), *ev.ExecutedAt)

	_, err = e.Execute(id, "again")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	_, err = e.Dismiss(id, "")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	decisions := e.DecisionLog()
	require.Len(t, decisions, 1)
	assert.Equal(t, types.DecisionEntry{
		ID:        "decision-1",
		EventID:   id,
		EventType: types.EventWorldEvent,
		Action:    types.DecisionExecuted,
		Outcome:   "a caravan arrived",
		At:        t0.Add(time.Minute),
	}, decisions[0])
	assert.Empty(t, e.Pending(0))
}

func TestEngine_ExpireStale(t *testing.T) {
	e, clock := newEngine(t)
	res := e.GenerateEvents(narrative.Snapshot{}, 1)
	id := res.Events[0].ID

	clock.Advance(47 * time.Hour)
	assert.Zero(t, e.ExpireStale())

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, e.ExpireStale())
	assert.Zero(t, e.ExpireStale(), "second pass is a no-op")

	ev, err := e.Event(id)
	require.NoError(t, err)
	assert.Equal(t, types.EventExpired, ev.Status)
	assert.Empty(t, e.DecisionLog(), "expiry is not a decision")

	_, err = e.Execute(id, "too late")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
}

func TestEngine_Restore(t *testing.T) {
	e, _ := newEngine(t)
	snap := narrative.Snapshot{
		OpenThreads: []narrative.ThreadState{thread("th-1", types.ThreadMystery, 9, 100*time.Hour, 0, 1)},
	}
	res := e.GenerateEvents(snap, 1)
	_, err := e.Dismiss(res.Events[0].ID, "no")
	require.NoError(t, err)

	restored, _ := newEngine(t)
	bad := types.OrchestrationEvent{ID: "bad", Type: "parade", Priority: types.PriorityLow, Status: types.EventPending}
	dropped := restored.Restore(append(e.Events(), bad), e.DecisionLog())
	assert.Len(t, dropped, 1)
	assert.Equal(t, e.Events(), restored.Events())
	assert.Equal(t, e.DecisionLog(), restored.DecisionLog())

	// The restored log still drives the cool-down.
	again := restored.GenerateEvents(snap, 1)
	assert.Equal(t, 1, again.Suppressed)
}

func TestConfig_Validate(t *testing.T) {
	cfg := orchestration.DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.ReadyBandLow = 0.95
	assert.ErrorIs(t, cfg.Validate(), types.ErrValidation)

	cfg = orchestration.DefaultConfig()
	cfg.CriticalThreadPriority = 5
	assert.ErrorIs(t, cfg.Validate(), types.ErrValidation)

	_, err := orchestration.New("c", orchestration.Config{})
	assert.Error(t, err)
}
