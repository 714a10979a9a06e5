// Package engine provides the layered memory store and the recall engine.
// The store owns every memory record of one campaign and moves records
// between short, mid and long-term layers during explicit maintenance passes;
// the recall engine scores and ranks records against queries and renders them
// into prompt context for the narrator.
package engine

import (
	"fmt"
	"time"

	"github.com/scrypster/chronicle/pkg/types"
)

// Config holds the tuning constants of the store and the recall engine.
type Config struct {
	// HalfLife is the age at which the recency factor of significance halves (default: 7 days).
	HalfLife time.Duration

	// Reinforcement scales the ln(1+access_count) term of significance (default: 0.10).
	Reinforcement float64

	// ShortTermMaxAge is how long a record stays in the short-term layer (default: 30m).
	ShortTermMaxAge time.Duration

	// MidTermMaxAge is the record age after which mid-term records are
	// promoted or start decaying (default: 72h).
	MidTermMaxAge time.Duration

	// RetentionBar is the significance below which an aging short-term record
	// is discarded instead of moved to mid-term (default: 0.05).
	RetentionBar float64

	// PromotionBar is the significance above which an aging mid-term record
	// moves to long-term (default: 0.45).
	PromotionBar float64

	// DecayFactor multiplies a mid-term record's effective weight once per
	// elapsed DecayInterval (default: 0.85).
	DecayFactor float64

	// DecayInterval is the period of mid-term decay steps (default: 24h).
	DecayInterval time.Duration

	// EvictionFloor is the significance under which a decaying mid-term
	// record is evicted (default: 0.02).
	EvictionFloor float64

	// Per-layer capacity caps (defaults: 64 / 512 / 8192).
	ShortTermCap int
	MidTermCap   int
	LongTermCap  int

	// RecallLimit is the result size when a query does not set one (default: 8).
	RecallLimit int

	// ContextBudget is the token budget of FormatForContext (default: 600).
	ContextBudget int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HalfLife:        168 * time.Hour,
		Reinforcement:   0.10,
		ShortTermMaxAge: 30 * time.Minute,
		MidTermMaxAge:   72 * time.Hour,
		RetentionBar:    0.05,
		PromotionBar:    0.45,
		DecayFactor:     0.85,
		DecayInterval:   24 * time.Hour,
		EvictionFloor:   0.02,
		ShortTermCap:    64,
		MidTermCap:      512,
		LongTermCap:     8192,
		RecallLimit:     8,
		ContextBudget:   600,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.HalfLife <= 0 {
		return fmt.Errorf("HalfLife must be > 0, got %v", c.HalfLife)
	}
	if c.Reinforcement < 0 {
		return fmt.Errorf("Reinforcement must be >= 0, got %v", c.Reinforcement)
	}
	if c.ShortTermMaxAge <= 0 {
		return fmt.Errorf("ShortTermMaxAge must be > 0, got %v", c.ShortTermMaxAge)
	}
	if c.MidTermMaxAge <= c.ShortTermMaxAge {
		return fmt.Errorf("MidTermMaxAge (%v) must exceed ShortTermMaxAge (%v)", c.MidTermMaxAge, c.ShortTermMaxAge)
	}
	if c.DecayFactor <= 0 || c.DecayFactor >= 1 {
		return fmt.Errorf("DecayFactor must be in (0,1), got %v", c.DecayFactor)
	}
	if c.DecayInterval <= 0 {
		return fmt.Errorf("DecayInterval must be > 0, got %v", c.DecayInterval)
	}
	if c.EvictionFloor < 0 || c.RetentionBar < 0 {
		return fmt.Errorf("EvictionFloor and RetentionBar must be >= 0")
	}
	if c.PromotionBar <= c.EvictionFloor {
		return fmt.Errorf("PromotionBar (%v) must exceed EvictionFloor (%v)", c.PromotionBar, c.EvictionFloor)
	}
	if c.ShortTermCap < 1 || c.MidTermCap < 1 || c.LongTermCap < 1 {
		return fmt.Errorf("layer capacities must be >= 1, got %d/%d/%d", c.ShortTermCap, c.MidTermCap, c.LongTermCap)
	}
	if c.RecallLimit < 1 {
		return fmt.Errorf("RecallLimit must be >= 1, got %d", c.RecallLimit)
	}
	return nil
}

func (c *Config) capacity(l types.Layer) int {
	switch l {
	case types.LayerShort:
		return c.ShortTermCap
	case types.LayerMid:
		return c.MidTermCap
	default:
		return c.LongTermCap
	}
}

// MaintenanceReport summarizes one PromoteOrDecay pass.
type MaintenanceReport struct {
	PromotedToMid   int `json:"promoted_to_mid"`
	PromotedToLong  int `json:"promoted_to_long"`
	Discarded       int `json:"discarded"`
	Decayed         int `json:"decayed"`
	Evicted         int `json:"evicted"`
	CapacityEvicted int `json:"capacity_evicted"`
	Skipped         int `json:"skipped"`
}

// Changed reports whether the pass mutated the store.
func (r MaintenanceReport) Changed() bool {
	return r.PromotedToMid+r.PromotedToLong+r.Discarded+r.Decayed+r.Evicted+r.CapacityEvicted > 0
}

// ScoredRecord pairs a record copy with its significance at evaluation time.
type ScoredRecord struct {
	Record       types.MemoryRecord `json:"record"`
	Significance float64            `json:"significance"`
}

// RecallQuery selects records. Every set field narrows the match.
type RecallQuery struct {
	Text      string      // Matched by meaningful token overlap
	OwnerID   string      // Exact match
	SessionID string      // Exact match
	Emotion   string      // Must be one of the record's emotional tags
	Themes    []string    // At least one must be a thematic tag of the record
	Layer     types.Layer // Exact match
	Since     time.Time   // Only records created at or after Since
	Limit     int         // Zero means Config.RecallLimit
}
