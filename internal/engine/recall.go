package engine

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/scrypster/chronicle/pkg/types"
)

// RecallEngine scores and ranks the records of one LayeredStore.
type RecallEngine struct {
	store *LayeredStore
}

// NewRecallEngine returns a RecallEngine over store.
func NewRecallEngine(store *LayeredStore) *RecallEngine {
	return &RecallEngine{store: store}
}

// Recall returns the records matching q, most significant first, ties broken
// by recency. Every returned record is reinforced: its access_count is
// incremented and last_accessed_at set. The returned copies reflect that
// update while Significance is the score they were ranked by.
//
// No match is not an error; the result is then empty.
func (e *RecallEngine) Recall(q RecallQuery) ([]ScoredRecord, error) {
	ranked, err := e.Rank(q)
	if err != nil || len(ranked) == 0 {
		return ranked, err
	}
	ids := make([]string, len(ranked))
	for i, sr := range ranked {
		ids[i] = sr.Record.ID
	}
	touched, err := e.store.MarkAccessed(ids...)
	if err != nil {
		return nil, fmt.Errorf("reinforce recalled memories: %w", err)
	}
	for i := range ranked {
		ranked[i].Record = touched[i]
	}
	return ranked, nil
}

// Rank is Recall without reinforcement. It never mutates the store, which
// makes it suitable for read-only views such as narrative snapshots.
func (e *RecallEngine) Rank(q RecallQuery) ([]ScoredRecord, error) {
	if q.Layer != "" && !q.Layer.Valid() {
		return nil, types.Invalid("layer", "unknown layer %q", q.Layer)
	}
	if q.Limit < 0 {
		return nil, types.Invalid("limit", "must be >= 0, got %d", q.Limit)
	}
	cfg := e.store.Config()
	limit := q.Limit
	if limit == 0 {
		limit = cfg.RecallLimit
	}

	queryTokens := tokenize(q.Text)
	emotion := types.NormalizeTag(q.Emotion)
	now := e.store.Now()

	e.store.mu.RLock()
	var out []ScoredRecord
	for _, rec := range e.store.sortedLocked() {
		if !matches(rec, q, emotion, queryTokens) {
			continue
		}
		out = append(out, ScoredRecord{Record: rec.Clone(), Significance: Significance(rec, now, cfg)})
	}
	e.store.mu.RUnlock()

	sortScored(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Recent returns up to n records created at or after since, newest first.
// Like Rank it does not reinforce.
func (e *RecallEngine) Recent(since time.Time, n int) []types.MemoryRecord {
	e.store.mu.RLock()
	var out []types.MemoryRecord
	for _, rec := range e.store.sortedLocked() {
		if !rec.CreatedAt.Before(since) {
			out = append(out, rec.Clone())
		}
	}
	e.store.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b types.MemoryRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Seq, a.Seq)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// A query made only of stopwords carries no meaningful tokens and places no
// constraint on content.
func matches(rec *types.MemoryRecord, q RecallQuery, emotion string, queryTokens []string) bool {
	switch {
	case q.OwnerID != "" && rec.OwnerID != q.OwnerID:
		return false
	case q.SessionID != "" && rec.SessionID != q.SessionID:
		return false
	case q.Layer != "" && rec.Layer != q.Layer:
		return false
	case !q.Since.IsZero() && rec.CreatedAt.Before(q.Since):
		return false
	case emotion != "" && !rec.HasEmotion(emotion):
		return false
	case len(q.Themes) > 0 && !rec.HasAnyTheme(q.Themes):
		return false
	}
	if len(queryTokens) == 0 {
		return true
	}
	return overlaps(queryTokens, recordTokens(rec.Content, rec.EmotionalTags, rec.ThematicTags, rec.Payload))
}

// sortScored orders by significance descending, then newest first, then
// latest insertion first.
func sortScored(recs []ScoredRecord) {
	slices.SortStableFunc(recs, func(a, b ScoredRecord) int {
		if c := cmp.Compare(b.Significance, a.Significance); c != 0 {
			return c
		}
		if c := b.Record.CreatedAt.Compare(a.Record.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Record.Seq, a.Record.Seq)
	})
}
