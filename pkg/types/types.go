// Package types defines the core data structures for the chronicle
// continuity and pacing core: layered memory records, character arcs, plot
// threads, orchestration events and the closed enumerations that classify
// them.
//
// Every enumeration is a string type with a fixed value set. Parse functions
// and UnmarshalText reject unknown values so that invalid kinds are caught at
// construction or decode time, never at use.
package types

import "slices"

// Layer is the temporal residency class of a memory record.
type Layer string

const (
	// LayerShort holds the immediate scene.
	LayerShort Layer = "short_term"

	// LayerMid holds the last few sessions.
	LayerMid Layer = "mid_term"

	// LayerLong holds everything worth keeping for the whole campaign.
	LayerLong Layer = "long_term"
)

// ValidLayers lists layers in forward transition order.
var ValidLayers = []Layer{LayerShort, LayerMid, LayerLong}

// ParseLayer converts s to a Layer. An empty string defaults to short-term.
func ParseLayer(s string) (Layer, error) {
	if s == "" {
		return LayerShort, nil
	}
	l := Layer(s)
	if !l.Valid() {
		return "", Invalid("layer", "unknown layer %q", s)
	}
	return l, nil
}

// Valid reports whether l is a known layer.
func (l Layer) Valid() bool { return slices.Contains(ValidLayers, l) }

// Rank is the layer's position in the short→mid→long order.
func (l Layer) Rank() int { return slices.Index(ValidLayers, l) }

// CanAdvanceTo reports whether a record may move from l to next. Only
// forward moves are allowed; eviction is not a layer transition.
func (l Layer) CanAdvanceTo(next Layer) bool {
	return l.Valid() && next.Valid() && next.Rank() > l.Rank()
}

func (l *Layer) UnmarshalText(b []byte) error {
	v, err := ParseLayer(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// MemoryKind classifies what a memory record describes.
type MemoryKind string

const (
	KindEvent                MemoryKind = "event"
	KindDecision             MemoryKind = "decision"
	KindDialogue             MemoryKind = "dialogue"
	KindWorldState           MemoryKind = "world_state"
	KindCharacterDevelopment MemoryKind = "character_development"
	KindRelationship         MemoryKind = "relationship"
	KindDiscovery            MemoryKind = "discovery"
	KindCombat               MemoryKind = "combat"
	KindExploration          MemoryKind = "exploration"
)

// ValidMemoryKinds is a slice of all valid memory kinds for validation.
var ValidMemoryKinds = []MemoryKind{
	KindEvent,
	KindDecision,
	KindDialogue,
	KindWorldState,
	KindCharacterDevelopment,
	KindRelationship,
	KindDiscovery,
	KindCombat,
	KindExploration,
}

// ParseMemoryKind converts s to a MemoryKind. An empty string defaults to event.
func ParseMemoryKind(s string) (MemoryKind, error) {
	if s == "" {
		return KindEvent, nil
	}
	k := MemoryKind(s)
	if !k.Valid() {
		return "", Invalid("memory_kind", "unknown memory kind %q", s)
	}
	return k, nil
}

func (k MemoryKind) Valid() bool { return slices.Contains(ValidMemoryKinds, k) }

func (k *MemoryKind) UnmarshalText(b []byte) error {
	v, err := ParseMemoryKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Emotion labels the extractor and the trend summary know about. Records may
// carry any label; these only drive heuristics.
const (
	EmotionJoy     = "joy"
	EmotionFear    = "fear"
	EmotionGrief   = "grief"
	EmotionAnger   = "anger"
	EmotionHope    = "hope"
	EmotionWonder  = "wonder"
	EmotionDespair = "despair"
	EmotionDread   = "dread"
	EmotionSorrow  = "sorrow"
	EmotionShame   = "shame"
	EmotionGuilt   = "guilt"
	EmotionLove    = "love"
	EmotionRelief  = "relief"
	EmotionTrust   = "trust"
)

// NegativeEmotions drive the "sustained negative trend" rule.
var NegativeEmotions = []string{
	EmotionFear,
	EmotionGrief,
	EmotionAnger,
	EmotionDespair,
	EmotionDread,
	EmotionSorrow,
	EmotionShame,
	EmotionGuilt,
}

// IsNegativeEmotion reports whether label is in NegativeEmotions.
func IsNegativeEmotion(label string) bool { return slices.Contains(NegativeEmotions, label) }
