package types

import (
	"maps"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// MemoryRecord is the atomic unit of recorded experience. Records are owned
// exclusively by the layered store; everything else refers to them by ID.
type MemoryRecord struct {
	// Core identification fields
	ID      string         `json:"id" yaml:"id"`                               // Stable across layer transitions
	Content string         `json:"content" yaml:"content"`                     // Free-form text of the fact or event
	Payload map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"` // Structured context (location, participants, ...)

	// Classification and residency
	Kind  MemoryKind `json:"memory_kind" yaml:"memory_kind"`
	Layer Layer      `json:"layer" yaml:"layer"`

	// Attribution
	OwnerID   string `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`

	// Timestamps and reinforcement
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at" yaml:"last_accessed_at"`
	AccessCount    int       `json:"access_count" yaml:"access_count"`

	// Emotional and thematic annotation
	EmotionalWeight float64  `json:"emotional_weight" yaml:"emotional_weight"` // Author-supplied or inferred, in [0,1]
	EmotionalTags   []string `json:"emotional_tags,omitempty" yaml:"emotional_tags,omitempty"`
	ThematicTags    []string `json:"thematic_tags,omitempty" yaml:"thematic_tags,omitempty"`

	// Mid-term decay bookkeeping. DecayMultiplier starts at 1 and is only
	// lowered by maintenance passes; LastDecayAt anchors the next pass.
	DecayMultiplier float64   `json:"decay_multiplier" yaml:"decay_multiplier"`
	LastDecayAt     time.Time `json:"last_decay_at,omitzero" yaml:"last_decay_at,omitempty"`

	// Seq is the insertion order within the store, used as the last tie-breaker.
	Seq int64 `json:"seq" yaml:"seq"`
}

// EffectiveWeight is the emotional weight after mid-term decay passes.
func (r *MemoryRecord) EffectiveWeight() float64 {
	m := r.DecayMultiplier
	if m <= 0 || m > 1 || math.IsNaN(m) {
		m = 1
	}
	return r.EmotionalWeight * m
}

// HasEmotion reports whether the record is tagged with label.
func (r *MemoryRecord) HasEmotion(label string) bool {
	return slices.Contains(r.EmotionalTags, NormalizeTag(label))
}

// HasAnyTheme reports whether the record shares at least one theme with themes.
func (r *MemoryRecord) HasAnyTheme(themes []string) bool {
	for _, t := range themes {
		if slices.Contains(r.ThematicTags, NormalizeTag(t)) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate store-owned state.
func (r MemoryRecord) Clone() MemoryRecord {
	r.Payload = maps.Clone(r.Payload)
	r.EmotionalTags = slices.Clone(r.EmotionalTags)
	r.ThematicTags = slices.Clone(r.ThematicTags)
	return r
}

// Check validates a record that is already resident (for example one decoded
// from persisted state). It does not apply defaults.
func (r *MemoryRecord) Check() error {
	switch {
	case r.ID == "":
		return Invalid("id", "is required")
	case strings.TrimSpace(r.Content) == "":
		return Invalid("content", "is required")
	case !utf8.ValidString(r.Content):
		return Invalid("content", "is not valid UTF-8")
	case !r.Kind.Valid():
		return Invalid("memory_kind", "unknown memory kind %q", r.Kind)
	case !r.Layer.Valid():
		return Invalid("layer", "unknown layer %q", r.Layer)
	case !validUnit(r.EmotionalWeight):
		return Invalid("emotional_weight", "%v outside [0,1]", r.EmotionalWeight)
	case r.AccessCount < 0:
		return Invalid("access_count", "must be >= 0")
	case r.CreatedAt.IsZero():
		return Invalid("created_at", "is required")
	}
	return nil
}

// ValidText rejects values that are not valid UTF-8. JSON encoding would
// replace the bad bytes, so such text could not survive a save and load.
func ValidText(field string, values ...string) error {
	for _, v := range values {
		if !utf8.ValidString(v) {
			return Invalid(field, "is not valid UTF-8")
		}
	}
	return nil
}

// NewRecord is the input to the layered store's Add operation.
type NewRecord struct {
	Content         string
	Payload         map[string]any
	Kind            MemoryKind
	Layer           Layer
	OwnerID         string
	SessionID       string
	EmotionalWeight float64
	EmotionalTags   []string
	ThematicTags    []string
}

// Validate checks the input and fills defaults (event kind, short-term layer).
// Weights outside [0,1] are rejected rather than clamped.
func (n *NewRecord) Validate() error {
	if strings.TrimSpace(n.Content) == "" {
		return Invalid("content", "is required")
	}
	if err := ValidText("content", n.Content); err != nil {
		return err
	}
	if err := ValidText("owner_id", n.OwnerID, n.SessionID); err != nil {
		return err
	}
	if err := ValidText("tags", append(slices.Clone(n.EmotionalTags), n.ThematicTags...)...); err != nil {
		return err
	}
	if n.Kind == "" {
		n.Kind = KindEvent
	}
	if !n.Kind.Valid() {
		return Invalid("memory_kind", "unknown memory kind %q", n.Kind)
	}
	if n.Layer == "" {
		n.Layer = LayerShort
	}
	if !n.Layer.Valid() {
		return Invalid("layer", "unknown layer %q", n.Layer)
	}
	if !validUnit(n.EmotionalWeight) {
		return Invalid("emotional_weight", "%v outside [0,1]", n.EmotionalWeight)
	}
	return nil
}

// OwnerProfile holds running counters of which emotions, themes and kinds
// recur for one owner. It is used for personalization and persisted with the
// campaign.
type OwnerProfile struct {
	OwnerID     string         `json:"owner_id" yaml:"owner_id"`
	Records     int            `json:"records" yaml:"records"`
	Emotions    map[string]int `json:"emotions,omitempty" yaml:"emotions,omitempty"`
	Themes      map[string]int `json:"themes,omitempty" yaml:"themes,omitempty"`
	Kinds       map[string]int `json:"kinds,omitempty" yaml:"kinds,omitempty"`
	WeightTotal float64        `json:"weight_total" yaml:"weight_total"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// Observe folds one record into the profile counters.
func (p *OwnerProfile) Observe(r *MemoryRecord, at time.Time) {
	if p.Emotions == nil {
		p.Emotions = map[string]int{}
	}
	if p.Themes == nil {
		p.Themes = map[string]int{}
	}
	if p.Kinds == nil {
		p.Kinds = map[string]int{}
	}
	p.Records++
	p.WeightTotal += r.EmotionalWeight
	for _, e := range r.EmotionalTags {
		p.Emotions[e]++
	}
	for _, t := range r.ThematicTags {
		p.Themes[t]++
	}
	p.Kinds[string(r.Kind)]++
	p.UpdatedAt = at
}

// AverageWeight is the mean emotional weight of everything the owner recorded.
func (p *OwnerProfile) AverageWeight() float64 {
	if p.Records == 0 {
		return 0
	}
	return p.WeightTotal / float64(p.Records)
}

// TopEmotions returns up to n emotion labels ordered by frequency, then name.
func (p *OwnerProfile) TopEmotions(n int) []string { return topCounts(p.Emotions, n) }

// TopThemes returns up to n theme labels ordered by frequency, then name.
func (p *OwnerProfile) TopThemes(n int) []string { return topCounts(p.Themes, n) }

// Clone returns a deep copy of the profile.
func (p OwnerProfile) Clone() OwnerProfile {
	p.Emotions = maps.Clone(p.Emotions)
	p.Themes = maps.Clone(p.Themes)
	p.Kinds = maps.Clone(p.Kinds)
	return p
}

func topCounts(counts map[string]int, n int) []string {
	keys := slices.Collect(maps.Keys(counts))
	slices.SortFunc(keys, func(a, b string) int {
		if counts[a] != counts[b] {
			return counts[b] - counts[a]
		}
		return strings.Compare(a, b)
	})
	if n >= 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// NormalizeTag lower-cases and trims a tag label.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// NormalizeTags turns tags into a sorted set. Empty input yields nil.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = NormalizeTag(t); t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func validUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
