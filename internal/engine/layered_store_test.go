package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chronicle/internal/engine"
	"github.com/scrypster/chronicle/pkg/types"
)

var t0 = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newStore(t *testing.T, cfg engine.Config) (*engine.LayeredStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: t0}
	s, err := engine.NewLayeredStore(cfg, engine.WithClock(clock.Now))
	require.NoError(t, err)
	return s, clock
}

func mustAdd(t *testing.T, s *engine.LayeredStore, content string, weight float64) string {
	t.Helper()
	id, err := s.Add(types.NewRecord{Content: content, EmotionalWeight: weight})
	require.NoError(t, err)
	return id
}

// TestAdd_RejectsOutOfRangeWeight verifies a weight of 1.7 is a validation
// error and leaves the record count unchanged.
func TestAdd_RejectsOutOfRangeWeight(t *testing.T) {
	s, _ := newStore(t, engine.DefaultConfig())
	mustAdd(t, s, "The party made camp", 0.2)

	_, err := s.Add(types.NewRecord{Content: "Too much", EmotionalWeight: 1.7})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Equal(t, 1, s.Len())

	_, err = s.Add(types.NewRecord{Content: "Bad layer", Layer: "eternal"})
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Equal(t, 1, s.Len())
}

func TestAdd_DefaultsAndProfile(t *testing.T) {
	s, _ := newStore(t, engine.DefaultConfig())
	id, err := s.Add(types.NewRecord{
		Content:         "Mira swore an oath to the order",
		OwnerID:         "mira",
		SessionID:       "s1",
		EmotionalWeight: 0.6,
		EmotionalTags:   []string{"Hope", "hope"},
		ThematicTags:    []string{"Loyalty"},
	})
	require.NoError(t, err)

	rec, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.LayerShort, rec.Layer)
	assert.Equal(t, types.KindEvent, rec.Kind)
	assert.Equal(t, t0, rec.CreatedAt)
	assert.Equal(t, 1.0, rec.DecayMultiplier)
	assert.Equal(t, []string{"hope"}, rec.EmotionalTags)
	assert.Equal(t, []string{"loyalty"}, rec.ThematicTags)

	p, ok := s.Profile("mira")
	require.True(t, ok)
	assert.Equal(t, 1, p.Records)
	assert.Equal(t, 1, p.Emotions["hope"])
	assert.Equal(t, 1, p.Themes["loyalty"])

	assert.Len(t, s.ByOwner("mira"), 1)
	assert.Empty(t, s.ByOwner("oskar"))
}

func TestGet_NotFound(t *testing.T) {
	s, _ := newStore(t, engine.DefaultConfig())
	_, err := s.Get("missing")
	var nf *types.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "memory", nf.Kind)

	_, err = s.MarkAccessed("missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// TestPromoteOrDecay_Lifecycle walks records through every maintenance rule.
func TestPromoteOrDecay_Lifecycle(t *testing.T) {
	s, clock := newStore(t, engine.DefaultConfig())
	vivid := mustAdd(t, s, "The dragon burned the village", 0.9)
	bland := mustAdd(t, s, "It drizzled", 0.02)
	middling := mustAdd(t, s, "A merchant haggled over salt", 0.5)

	// Still inside the scene window: nothing moves.
	clock.Advance(10 * time.Minute)
	assert.False(t, s.PromoteOrDecay().Changed())

	clock.Advance(21 * time.Minute)
	report := s.PromoteOrDecay()
	assert.Equal(t, 2, report.PromotedToMid)
	assert.Equal(t, 1, report.Discarded)
	_, err := s.Get(bland)
	assert.ErrorIs(t, err, types.ErrNotFound)

	clock.Advance(73*time.Hour - 31*time.Minute)
	report = s.PromoteOrDecay()
	assert.Equal(t, 1, report.PromotedToLong)
	assert.Zero(t, report.Decayed)

	rec, err := s.Get(vivid)
	require.NoError(t, err)
	assert.Equal(t, types.LayerLong, rec.Layer)
	rec, err = s.Get(middling)
	require.NoError(t, err)
	assert.Equal(t, types.LayerMid, rec.Layer)

	clock.Advance(24 * time.Hour)
	report = s.PromoteOrDecay()
	assert.Equal(t, 1, report.Decayed)
	rec, err = s.Get(middling)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, rec.DecayMultiplier, 1e-9)

	clock.Advance(30 * 24 * time.Hour)
	report = s.PromoteOrDecay()
	assert.Equal(t, 1, report.Evicted)
	_, err = s.Get(middling)
	assert.ErrorIs(t, err, types.ErrNotFound)

	// Long-term content and weight are never touched.
	rec, err = s.Get(vivid)
	require.NoError(t, err)
	assert.Equal(t, "The dragon burned the village", rec.Content)
	assert.Equal(t, 0.9, rec.EmotionalWeight)
	assert.Equal(t, 1.0, rec.DecayMultiplier)
}

// TestPromoteOrDecay_Idempotent verifies a second pass at the same instant is a no-op.
func TestPromoteOrDecay_Idempotent(t *testing.T) {
	s, clock := newStore(t, engine.DefaultConfig())
	for i, w := range []float64{0.9, 0.5, 0.3, 0.04, 0.1} {
		mustAdd(t, s, "memory "+string(rune('a'+i)), w)
	}
	for _, step := range []time.Duration{time.Hour, 80 * time.Hour, 50 * time.Hour} {
		clock.Advance(step)
		s.PromoteOrDecay()
		before := s.Records()

		second := s.PromoteOrDecay()
		assert.False(t, second.Changed(), "second pass after %v changed the store: %+v", step, second)
		assert.Equal(t, before, s.Records())
	}
}

// TestPromoteOrDecay_LayerMonotonicity checks no record ever moves backward.
func TestPromoteOrDecay_LayerMonotonicity(t *testing.T) {
	s, clock := newStore(t, engine.DefaultConfig())
	for i := range 20 {
		_, err := s.Add(types.NewRecord{Content: "beat", EmotionalWeight: float64(i) / 20})
		require.NoError(t, err)
	}
	seen := map[string]types.Layer{}
	for range 40 {
		clock.Advance(7 * time.Hour)
		s.PromoteOrDecay()
		for _, rec := range s.Records() {
			if prev, ok := seen[rec.ID]; ok {
				assert.GreaterOrEqual(t, rec.Layer.Rank(), prev.Rank(), "record %s moved %s -> %s", rec.ID, prev, rec.Layer)
			}
			seen[rec.ID] = rec.Layer
		}
	}
}

// TestCapacity_EvictsLeastSignificant verifies eviction follows significance,
// not recency.
func TestCapacity_EvictsLeastSignificant(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.ShortTermCap = 2
	s, clock := newStore(t, cfg)

	oldVivid := mustAdd(t, s, "Her brother died in her arms", 0.95)
	clock.Advance(time.Minute)
	bland := mustAdd(t, s, "Bought bread", 0.1)
	clock.Advance(time.Minute)
	fresh := mustAdd(t, s, "Rain on the road", 0.3)

	assert.Equal(t, 2, s.Len())
	_, err := s.Get(bland)
	assert.ErrorIs(t, err, types.ErrNotFound)
	for _, id := range []string{oldVivid, fresh} {
		_, err := s.Get(id)
		assert.NoError(t, err)
	}
}

// TestCapacity_NewcomerRankedWithResidents checks a bland new record is the
// one dropped when every resident outranks it.
func TestCapacity_NewcomerRankedWithResidents(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.ShortTermCap = 2
	s, clock := newStore(t, cfg)

	grief := mustAdd(t, s, "Her brother died in her arms", 0.95)
	clock.Advance(time.Minute)
	oath := mustAdd(t, s, "Oskar swore to avenge him", 0.8)
	clock.Advance(time.Minute)
	rain := mustAdd(t, s, "It rained", 0.0)

	assert.NotEmpty(t, rain)
	assert.Equal(t, 2, s.Len())
	_, err := s.Get(rain)
	assert.ErrorIs(t, err, types.ErrNotFound)
	for _, id := range []string{grief, oath} {
		_, err := s.Get(id)
		assert.NoError(t, err)
	}
}

func TestRestore_DropsInvalidRecords(t *testing.T) {
	s, _ := newStore(t, engine.DefaultConfig())
	id := mustAdd(t, s, "kept", 0.4)
	saved := s.Records()

	bad := saved[0]
	bad.ID = "bad"
	bad.EmotionalWeight = 3
	dup := saved[0]

	other, _ := newStore(t, engine.DefaultConfig())
	dropped := other.Restore(append(saved, bad, dup), s.Profiles(), s.Sequence())
	assert.Len(t, dropped, 2)
	assert.Equal(t, 1, other.Len())

	rec, err := other.Get(id)
	require.NoError(t, err)
	assert.Equal(t, saved[0], rec)

	// New records continue the sequence.
	next := mustAdd(t, other, "after restore", 0.1)
	rec, err = other.Get(next)
	require.NoError(t, err)
	assert.Greater(t, rec.Seq, saved[0].Seq)
}

func TestByLayer(t *testing.T) {
	s, _ := newStore(t, engine.DefaultConfig())
	mustAdd(t, s, "one", 0.1)
	_, err := s.Add(types.NewRecord{Content: "two", Layer: types.LayerLong})
	require.NoError(t, err)

	long, err := s.ByLayer(types.LayerLong)
	require.NoError(t, err)
	require.Len(t, long, 1)
	assert.Equal(t, "two", long[0].Content)

	_, err = s.ByLayer("nowhere")
	assert.ErrorIs(t, err, types.ErrValidation)

	counts := s.Counts()
	assert.Equal(t, 1, counts[types.LayerShort])
	assert.Equal(t, 0, counts[types.LayerMid])
	assert.Equal(t, 1, counts[types.LayerLong])
}

func TestConfigValidate(t *testing.T) {
	cfg := engine.DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.DecayFactor = 1.2
	assert.Error(t, cfg.Validate())

	cfg = engine.DefaultConfig()
	cfg.MidTermMaxAge = time.Minute
	assert.Error(t, cfg.Validate())

	_, err := engine.NewLayeredStore(engine.Config{})
	assert.Error(t, err)
}
