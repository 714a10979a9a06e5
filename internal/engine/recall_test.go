package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chronicle/internal/engine"
	"github.com/scrypster/chronicle/pkg/types"
)

func contents(recs []engine.ScoredRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Record.Content
	}
	return out
}

// TestRecall_OrdersBySignificance checks the betrayed/key/rope scenario:
// three records added at the same instant come back by emotional weight.
func TestRecall_OrdersBySignificance(t *testing.T) {
	s, _ := newStore(t, engine.DefaultConfig())
	mustAdd(t, s, "party betrayed", 0.9)
	mustAdd(t, s, "bought rope", 0.1)
	mustAdd(t, s, "found a key", 0.5)

	got, err := engine.NewRecallEngine(s).Recall(engine.RecallQuery{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"party betrayed", "found a key", "bought rope"}, contents(got))
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Significance, got[i].Significance)
	}
}

func TestRecall_TiesBrokenByRecency(t *testing.T) {
	s, _ := newStore(t, engine.DefaultConfig())
	mustAdd(t, s, "older", 0.5)
	mustAdd(t, s, "newer", 0.5)

	got, err := engine.NewRecallEngine(s).Rank(engine.RecallQuery{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, got[0].Significance, got[1].Significance)
	assert.Equal(t, []string{"newer", "older"}, contents(got))
}

// TestRecall_Reinforces verifies recall bumps access counters while Rank does not.
func TestRecall_Reinforces(t *testing.T) {
	s, clock := newStore(t, engine.DefaultConfig())
	id := mustAdd(t, s, "the lighthouse keeper lied", 0.4)
	r := engine.NewRecallEngine(s)

	_, err := r.Rank(engine.RecallQuery{})
	require.NoError(t, err)
	rec, _ := s.Get(id)
	assert.Zero(t, rec.AccessCount)

	clock.Advance(time.Minute)
	got, err := r.Recall(engine.RecallQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Record.AccessCount)
	assert.Equal(t, t0.Add(time.Minute), got[0].Record.LastAccessedAt)

	rec, _ = s.Get(id)
	assert.Equal(t, 1, rec.AccessCount)
	assert.Equal(t, "the lighthouse keeper lied", rec.Content)
}

func TestRecall_Filters(t *testing.T) {
	s, _ := newStore(t, engine.DefaultConfig())
	add := func(n types.NewRecord) {
		_, err := s.Add(n)
		require.NoError(t, err)
	}
	add(types.NewRecord{Content: "Oskar betrayed the caravan", OwnerID: "oskar", EmotionalWeight: 0.8, EmotionalTags: []string{"anger"}, ThematicTags: []string{"betrayal"}})
	add(types.NewRecord{Content: "Mira lit a candle for her mother", OwnerID: "mira", EmotionalWeight: 0.6, EmotionalTags: []string{"grief"}, ThematicTags: []string{"family"}})
	add(types.NewRecord{Content: "The caravan reached the ford", OwnerID: "mira", Layer: types.LayerLong, EmotionalWeight: 0.2, Payload: map[string]any{"location": "Greywater Ford"}})

	r := engine.NewRecallEngine(s)
	tests := []struct {
		name  string
		query engine.RecallQuery
		want  []string
	}{
		{"stemmed text overlap", engine.RecallQuery{Text: "a betrayal"}, []string{"Oskar betrayed the caravan"}},
		{"payload text", engine.RecallQuery{Text: "greywater"}, []string{"The caravan reached the ford"}},
		{"stopwords only", engine.RecallQuery{Text: "the of and", Limit: 1}, []string{"Oskar betrayed the caravan"}},
		{"emotion", engine.RecallQuery{Emotion: "Grief"}, []string{"Mira lit a candle for her mother"}},
		{"themes", engine.RecallQuery{Themes: []string{"loyalty", "betrayal"}}, []string{"Oskar betrayed the caravan"}},
		{"owner", engine.RecallQuery{OwnerID: "mira"}, []string{"Mira lit a candle for her mother", "The caravan reached the ford"}},
		{"layer", engine.RecallQuery{Layer: types.LayerLong}, []string{"The caravan reached the ford"}},
		{"owner and text", engine.RecallQuery{OwnerID: "mira", Text: "caravan"}, []string{"The caravan reached the ford"}},
		{"no match", engine.RecallQuery{Text: "dragon"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Rank(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, contents(got))
		})
	}
}

func TestRecall_EmptyStoreIsNotAnError(t *testing.T) {
	s, _ := newStore(t, engine.DefaultConfig())
	got, err := engine.NewRecallEngine(s).Recall(engine.RecallQuery{Text: "anything"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecall_RejectsBadQuery(t *testing.T) {
	s, _ := newStore(t, engine.DefaultConfig())
	r := engine.NewRecallEngine(s)
	_, err := r.Recall(engine.RecallQuery{Layer: "attic"})
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = r.Recall(engine.RecallQuery{Limit: -1})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRecall_SinceAndLimit(t *testing.T) {
	s, clock := newStore(t, engine.DefaultConfig())
	mustAdd(t, s, "first", 0.9)
	clock.Advance(time.Hour)
	mustAdd(t, s, "second", 0.2)
	mustAdd(t, s, "third", 0.3)

	r := engine.NewRecallEngine(s)
	got, err := r.Rank(engine.RecallQuery{Since: t0.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second"}, contents(got))

	got, err = r.Rank(engine.RecallQuery{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, contents(got))
}

func TestRecent_NewestFirst(t *testing.T) {
	s, clock := newStore(t, engine.DefaultConfig())
	mustAdd(t, s, "dawn", 0.9)
	clock.Advance(time.Hour)
	mustAdd(t, s, "noon", 0.1)
	clock.Advance(time.Hour)
	mustAdd(t, s, "dusk", 0.5)

	r := engine.NewRecallEngine(s)
	recent := r.Recent(t0.Add(30*time.Minute), 5)
	require.Len(t, recent, 2)
	assert.Equal(t, "dusk", recent[0].Content)
	assert.Equal(t, "noon", recent[1].Content)
	assert.Len(t, r.Recent(time.Time{}, 1), 1)
}
