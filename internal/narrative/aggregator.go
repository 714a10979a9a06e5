package narrative

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scrypster/chronicle/internal/engine"
	"github.com/scrypster/chronicle/pkg/types"
)

// MemorySource is the read-only view of a campaign's memories the aggregator
// needs. *engine.RecallEngine implements it.
type MemorySource interface {
	Rank(q engine.RecallQuery) ([]engine.ScoredRecord, error)
	Recent(since time.Time, n int) []types.MemoryRecord
}

// AggregatorConfig tunes what goes into a Snapshot.
type AggregatorConfig struct {
	// Threads below this priority are left out.
	MinThreadPriority int

	// RecentMemories most significant records created within RecentWindow.
	RecentMemories int
	RecentWindow   time.Duration

	// The emotional trend is read from the TrendSample newest records
	// created within TrendWindow.
	TrendSample int
	TrendWindow time.Duration

	// Thread updates within UpdateWindow count as recent.
	UpdateWindow time.Duration
}

// DefaultAggregatorConfig returns the defaults.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		MinThreadPriority: types.MinThreadPriority,
		RecentMemories:    5,
		RecentWindow:      72 * time.Hour,
		TrendSample:       20,
		TrendWindow:       72 * time.Hour,
		UpdateWindow:      72 * time.Hour,
	}
}

// Validate checks the config.
func (c *AggregatorConfig) Validate() error {
	switch {
	case !types.ValidThreadPriority(c.MinThreadPriority):
		return types.Invalid("min_thread_priority", "%d outside [%d,%d]", c.MinThreadPriority, types.MinThreadPriority, types.MaxThreadPriority)
	case c.RecentMemories <= 0:
		return types.Invalid("recent_memories", "must be positive")
	case c.TrendSample <= 0:
		return types.Invalid("trend_sample", "must be positive")
	case c.RecentWindow <= 0 || c.TrendWindow <= 0 || c.UpdateWindow <= 0:
		return types.Invalid("window", "windows must be positive")
	}
	return nil
}

// ArcState is an active arc with its derived completion.
type ArcState struct {
	Arc        types.CharacterArc `json:"arc"`
	Completion float64            `json:"completion"`
}

// ThreadState is a live thread with derived pacing figures.
type ThreadState struct {
	Thread        types.PlotThread `json:"thread"`
	LastActivity  time.Time        `json:"last_activity"`
	Idle          time.Duration    `json:"idle"`
	RecentUpdates int              `json:"recent_updates"`
}

// EmotionalTrend rolls up the emotions of recent memories.
type EmotionalTrend struct {
	// Dominant holds the one or two most frequent emotions, most frequent
	// first, ties broken alphabetically.
	Dominant   []string       `json:"dominant,omitempty"`
	Counts     map[string]int `json:"counts,omitempty"`
	Intensity  float64        `json:"intensity"` // Mean effective emotional weight
	SampleSize int            `json:"sample_size"`
}

// Snapshot is where the story stands at TakenAt. It is the only input of the
// orchestration engine and is safe to serialize for debug views.
type Snapshot struct {
	CampaignID     string                `json:"campaign_id"`
	TakenAt        time.Time             `json:"taken_at"`
	ActiveArcs     []ArcState            `json:"active_arcs"`
	OpenThreads    []ThreadState         `json:"open_threads"`
	RecentMemories []engine.ScoredRecord `json:"recent_memories"`
	Trend          EmotionalTrend        `json:"trend"`

	// Gaps names the sections a provider failed to supply. The snapshot is
	// still usable; those sections are empty.
	Gaps []string `json:"gaps,omitempty"`
}

// HasArc reports whether id is among the active arcs.
func (s *Snapshot) HasArc(id string) bool {
	return slices.ContainsFunc(s.ActiveArcs, func(a ArcState) bool { return a.Arc.ID == id })
}

// HasThread reports whether id is among the open threads.
func (s *Snapshot) HasThread(id string) bool {
	return slices.ContainsFunc(s.OpenThreads, func(t ThreadState) bool { return t.Thread.ID == id })
}

// Aggregator builds snapshots for one campaign. It never mutates what it
// reads: memories are ranked without reinforcement.
type Aggregator struct {
	campaignID string
	arcs       ArcProvider
	threads    ThreadProvider
	memories   MemorySource
	config     AggregatorConfig
	now        func() time.Time
}

// NewAggregator wires the providers of one campaign. Any provider may be nil;
// its section is then empty.
func NewAggregator(campaignID string, arcs ArcProvider, threads ThreadProvider, memories MemorySource, cfg AggregatorConfig, now func() time.Time) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid aggregator config: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		campaignID: campaignID,
		arcs:       arcs,
		threads:    threads,
		memories:   memories,
		config:     cfg,
		now:        now,
	}, nil
}

// Snapshot collects the current narrative state. Provider failures are
// logged and recorded in Snapshot.Gaps; only context cancellation is
// returned as an error.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	now := a.now().UTC()
	snap := Snapshot{CampaignID: a.campaignID, TakenAt: now}

	if a.arcs != nil {
		arcs, err := a.arcs.ListActiveArcs(ctx, a.campaignID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Snapshot{}, ctxErr
			}
			a.gap(&snap, "arcs", err)
		}
		for _, arc := range arcs {
			if arc.Status != types.ArcActive {
				continue
			}
			snap.ActiveArcs = append(snap.ActiveArcs, ArcState{Arc: arc, Completion: arc.Completion()})
		}
	}

	if a.threads != nil {
		threads, err := a.threads.ListOpenThreads(ctx, a.campaignID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Snapshot{}, ctxErr
			}
			a.gap(&snap, "threads", err)
		}
		for _, t := range threads {
			if !t.Status.Live() || t.Priority < a.config.MinThreadPriority {
				continue
			}
			last := t.LastActivity()
			snap.OpenThreads = append(snap.OpenThreads, ThreadState{
				Thread:        t,
				LastActivity:  last,
				Idle:          max(now.Sub(last), 0),
				RecentUpdates: t.UpdatesSince(now.Add(-a.config.UpdateWindow)),
			})
		}
		slices.SortStableFunc(snap.OpenThreads, func(x, y ThreadState) int {
			return cmp.Compare(y.Thread.Priority, x.Thread.Priority)
		})
	}

	if a.memories != nil {
		recent, err := a.memories.Rank(engine.RecallQuery{
			Since: now.Add(-a.config.RecentWindow),
			Limit: a.config.RecentMemories,
		})
		if err != nil {
			a.gap(&snap, "memories", err)
		}
		snap.RecentMemories = recent
		snap.Trend = Trend(a.memories.Recent(now.Add(-a.config.TrendWindow), a.config.TrendSample))
	}

	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (a *Aggregator) gap(snap *Snapshot, section string, err error) {
	log.Warn("snapshot section unavailable", "campaign", a.campaignID, "section", section, "err", err)
	snap.Gaps = append(snap.Gaps, section)
}

// Trend summarizes the emotional tags and weights of records.
func Trend(records []types.MemoryRecord) EmotionalTrend {
	tr := EmotionalTrend{SampleSize: len(records)}
	if len(records) == 0 {
		return tr
	}
	counts := make(map[string]int)
	var sum float64
	for i := range records {
		sum += records[i].EffectiveWeight()
		for _, e := range records[i].EmotionalTags {
			counts[e]++
		}
	}
	tr.Intensity = math.Round(sum/float64(len(records))*1000) / 1000
	if len(counts) == 0 {
		return tr
	}
	tr.Counts = counts

	emotions := slices.Sorted(maps.Keys(counts))
	slices.SortStableFunc(emotions, func(x, y string) int { return cmp.Compare(counts[y], counts[x]) })
	tr.Dominant = emotions[:min(2, len(emotions))]
	return tr
}
