package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chronicle/internal/engine"
	"github.com/scrypster/chronicle/pkg/types"
)

func TestHeuristicExtractor(t *testing.T) {
	ext := engine.HeuristicExtractor{}
	f, err := ext.Extract(context.Background(), "Oskar betrayed us at the Salt Gate and drew his sword! Mira was terrified.")
	require.NoError(t, err)

	assert.Equal(t, types.KindCombat, f.Kind)
	assert.Contains(t, f.EmotionalTags, "fear")
	assert.Contains(t, f.ThematicTags, "betrayal")
	assert.Equal(t, []string{"Gate", "Mira", "Oskar", "Salt"}, f.Participants)
	assert.Equal(t, "Salt Gate", f.Location)
	assert.Greater(t, f.EmotionalWeight, 0.5)
	assert.LessOrEqual(t, f.EmotionalWeight, 1.0)

	p := f.Payload()
	assert.Equal(t, "Salt Gate", p["location"])
}

func TestHeuristicExtractor_Deterministic(t *testing.T) {
	text := "They found an ancient map hidden in the chapel. A secret door glowed."
	a, _ := engine.HeuristicExtractor{}.Extract(context.Background(), text)
	b, _ := engine.HeuristicExtractor{}.Extract(context.Background(), text)
	assert.Equal(t, a, b)
	assert.Equal(t, types.KindDiscovery, a.Kind)
	assert.Contains(t, a.EmotionalTags, "wonder")
}

func TestHeuristicExtractor_Mundane(t *testing.T) {
	f, err := engine.HeuristicExtractor{}.Extract(context.Background(), "we ate porridge")
	require.NoError(t, err)
	assert.Equal(t, types.KindEvent, f.Kind)
	assert.Empty(t, f.EmotionalTags)
	assert.Less(t, f.EmotionalWeight, 0.3)
	assert.Nil(t, f.Payload())
}

type stubGenerator struct {
	reply string
	err   error
}

func (g stubGenerator) Complete(context.Context, string) (string, error) { return g.reply, g.err }
func (g stubGenerator) GetModel() string                                 { return "stub" }

func TestLLMExtractor(t *testing.T) {
	gen := stubGenerator{reply: `Here you go: {"kind":"relationship","emotional_weight":0.7,"emotions":["Trust"],"themes":["loyalty"],"participants":["Mira"],"location":"camp"}`}
	f, err := engine.NewLLMExtractor(gen, nil).Extract(context.Background(), "Mira shared her last ration")
	require.NoError(t, err)
	assert.Equal(t, types.KindRelationship, f.Kind)
	assert.Equal(t, 0.7, f.EmotionalWeight)
	assert.Equal(t, []string{"trust"}, f.EmotionalTags)
	assert.Equal(t, "camp", f.Location)
}

// TestLLMExtractor_FallsBack verifies a failing or garbled generator degrades
// to the deterministic extractor instead of failing the turn.
func TestLLMExtractor_FallsBack(t *testing.T) {
	text := "Oskar betrayed the caravan"
	want, _ := engine.HeuristicExtractor{}.Extract(context.Background(), text)

	for _, gen := range []stubGenerator{
		{err: errors.New("connection refused")},
		{reply: "I cannot help with that"},
	} {
		got, err := engine.NewLLMExtractor(gen, nil).Extract(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLLMExtractor_UnknownKind(t *testing.T) {
	gen := stubGenerator{reply: `{"kind":"montage","emotional_weight":0.2}`}
	f, err := engine.NewLLMExtractor(gen, nil).Extract(context.Background(), "time passes")
	require.NoError(t, err)
	assert.Equal(t, types.KindEvent, f.Kind)
}
