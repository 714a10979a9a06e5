package orchestration

import (
	"slices"
	"time"

	"github.com/scrypster/chronicle/pkg/types"
)

// Config holds the thresholds of the candidate rules and the event lifecycle.
type Config struct {
	// Arcs whose completion lies in [ReadyBandLow, ReadyBandHigh) are ready
	// for their next beat.
	ReadyBandLow  float64
	ReadyBandHigh float64
	// Arcs at or above LateArcCompletion propose high priority beats.
	LateArcCompletion float64

	// A thread idle for StagnationWindow is stagnant.
	StagnationWindow time.Duration
	// A thread with ResolutionUpdates recent updates and at least
	// HighThreadPriority is close to resolvable.
	ResolutionUpdates      int
	HighThreadPriority     int
	CriticalThreadPriority int

	// Trend rules need at least MinTrendSample memories.
	MinTrendSample   int
	FlatIntensity    float64
	NegativeEmotions []string

	// An executed or dismissed event suppresses the same type for the same
	// thread and arc for CoolDown.
	CoolDown time.Duration
	// Pending events older than PendingTTL expire.
	PendingTTL time.Duration

	MaxEvents int
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		ReadyBandLow:           0.10,
		ReadyBandHigh:          0.90,
		LateArcCompletion:      0.75,
		StagnationWindow:       72 * time.Hour,
		ResolutionUpdates:      3,
		HighThreadPriority:     7,
		CriticalThreadPriority: 9,
		MinTrendSample:         3,
		FlatIntensity:          0.30,
		NegativeEmotions:       slices.Clone(types.NegativeEmotions),
		CoolDown:               24 * time.Hour,
		PendingTTL:             48 * time.Hour,
		MaxEvents:              3,
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	switch {
	case c.ReadyBandLow < 0 || c.ReadyBandHigh > 1 || c.ReadyBandLow >= c.ReadyBandHigh:
		return types.Invalid("ready_band", "need 0 <= low < high <= 1, got [%v, %v)", c.ReadyBandLow, c.ReadyBandHigh)
	case c.StagnationWindow <= 0:
		return types.Invalid("stagnation_window", "must be positive")
	case c.ResolutionUpdates <= 0:
		return types.Invalid("resolution_updates", "must be positive")
	case !types.ValidThreadPriority(c.HighThreadPriority) || !types.ValidThreadPriority(c.CriticalThreadPriority):
		return types.Invalid("thread_priority", "thresholds must lie in [%d,%d]", types.MinThreadPriority, types.MaxThreadPriority)
	case c.CriticalThreadPriority < c.HighThreadPriority:
		return types.Invalid("critical_thread_priority", "must be >= high_thread_priority")
	case c.MinTrendSample <= 0:
		return types.Invalid("min_trend_sample", "must be positive")
	case c.CoolDown < 0:
		return types.Invalid("cool_down", "must not be negative")
	case c.PendingTTL <= 0:
		return types.Invalid("pending_ttl", "must be positive")
	case c.MaxEvents <= 0:
		return types.Invalid("max_events", "must be positive")
	}
	return nil
}

func (c *Config) negative(emotion string) bool {
	return slices.Contains(c.NegativeEmotions, emotion)
}

// threadPriority maps a stagnant or resolvable thread's priority onto an
// event priority.
func (c *Config) threadPriority(p int) types.EventPriority {
	switch {
	case p >= c.CriticalThreadPriority:
		return types.PriorityCritical
	case p >= c.HighThreadPriority:
		return types.PriorityHigh
	default:
		return types.PriorityMedium
	}
}
