package engine

import (
	"math"
	"time"

	"github.com/scrypster/chronicle/pkg/types"
)

// RecencyFactor is the exponential decay of a record's weight with age:
// 2^(-age/halfLife). It is 1 at age zero, tends to 0, and never increases.
// Negative ages (clock skew) count as zero.
func RecencyFactor(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	return math.Exp2(-age.Hours() / halfLife.Hours())
}

// Significance scores rec at the instant now:
//
//	sig = weight * decay_multiplier * 2^(-age/half_life) + ln(1+access_count) * reinforcement
//
// Age is measured from CreatedAt, so the score is independent of when the
// record was last read; reinforcement comes only from the access count.
func Significance(rec *types.MemoryRecord, now time.Time, cfg Config) float64 {
	recency := RecencyFactor(now.Sub(rec.CreatedAt), cfg.HalfLife)
	reinforcement := math.Log1p(float64(max(rec.AccessCount, 0))) * cfg.Reinforcement
	return rec.EffectiveWeight()*recency + reinforcement
}
