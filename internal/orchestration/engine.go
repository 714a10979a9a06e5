// Package orchestration proposes narrative events from a narrative snapshot
// and keeps their lifecycle and the decision log of one campaign.
package orchestration

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/scrypster/chronicle/internal/narrative"
	"github.com/scrypster/chronicle/pkg/types"
)

// eventNamespace seeds name-based event ids.
var eventNamespace = uuid.MustParse("6f1c7a52-3d0e-4b8e-9a57-2f64c1d9e0b3")

// Result is the outcome of one GenerateEvents call.
type Result struct {
	Events []types.OrchestrationEvent `json:"events"`
	// Warnings explain why fewer or weaker events than requested came back.
	Warnings []types.DegradedRecommendation `json:"warnings,omitempty"`
	// Suppressed counts candidates dropped by the cool-down.
	Suppressed int `json:"suppressed"`
}

// Degraded reports whether any warning was attached.
func (r Result) Degraded() bool { return len(r.Warnings) > 0 }

// Option customizes an Engine.
type Option func(*Engine)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the random UUID generator used for decision
// entries. Event ids are always derived from their content.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// Engine owns the orchestration events and decision log of one campaign. It
// reads narrative state only through the snapshots it is given.
type Engine struct {
	campaignID string
	config     Config
	now        func() time.Time
	newID      func() string

	mu     sync.Mutex
	events map[string]*types.OrchestrationEvent
	log    []types.DecisionEntry
	seq    int64
}

// New creates an engine for campaignID.
func New(campaignID string, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestration config: %w", err)
	}
	e := &Engine{
		campaignID: campaignID,
		config:     cfg,
		now:        time.Now,
		newID:      uuid.NewString,
		events:     make(map[string]*types.OrchestrationEvent),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// GenerateEvents proposes up to maxEvents events for snap, most urgent first.
// A maxEvents of zero or less uses the configured default.
//
// Candidates matching an event executed or dismissed within the cool-down
// are suppressed. Returned events are stored as pending; proposing the same
// candidate again returns the pending event instead of a new one, so two
// calls with the same snapshot and log yield the same list. The result is
// never empty.
func (e *Engine) GenerateEvents(snap narrative.Snapshot, maxEvents int) Result {
	if maxEvents <= 0 {
		maxEvents = e.config.MaxEvents
	}
	now := e.now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	var res Result
	if len(snap.Gaps) > 0 {
		res.Warnings = append(res.Warnings, types.DegradedRecommendation{
			Reason: "snapshot incomplete: missing " + strings.Join(snap.Gaps, ", "),
		})
	}
	if len(snap.ActiveArcs) == 0 && len(snap.OpenThreads) == 0 {
		res.Warnings = append(res.Warnings, types.DegradedRecommendation{Reason: "no active arcs or open threads"})
	}

	var kept []types.OrchestrationEvent
	for _, c := range e.candidates(&snap) {
		if reason := constructible(&snap, &c); reason != "" {
			log.Warn("omitting orchestration candidate", "campaign", e.campaignID, "type", c.Type, "reason", reason)
			res.Warnings = append(res.Warnings, types.DegradedRecommendation{Reason: fmt.Sprintf("omitted %s: %s", c.Type, reason)})
			continue
		}
		if e.coolingDownLocked(&c, now) {
			res.Suppressed++
			continue
		}
		kept = append(kept, c)
	}
	rank(kept)

	if len(kept) == 0 {
		fb := fallback(&snap, e.config.negative)
		res.Warnings = append(res.Warnings, types.DegradedRecommendation{
			Reason: fmt.Sprintf("no candidate events; suggesting a generic %s", fb.Type),
		})
		kept = []types.OrchestrationEvent{fb}
	} else if len(kept) < maxEvents {
		res.Warnings = append(res.Warnings, types.DegradedRecommendation{
			Reason: fmt.Sprintf("only %d of %d requested events could be produced", len(kept), maxEvents),
		})
	}
	if len(kept) > maxEvents {
		kept = kept[:maxEvents]
	}

	res.Events = make([]types.OrchestrationEvent, len(kept))
	for i := range kept {
		res.Events[i] = e.admitLocked(kept[i], now).Clone()
	}
	if res.Degraded() {
		log.Debug("degraded orchestration result", "campaign", e.campaignID, "warnings", len(res.Warnings))
	}
	return res
}

// constructible returns why c cannot be emitted, or "" if it can.
func constructible(snap *narrative.Snapshot, c *types.OrchestrationEvent) string {
	if c.ThreadID != "" && !snap.HasThread(c.ThreadID) {
		return fmt.Sprintf("thread %q not in snapshot", c.ThreadID)
	}
	if c.ArcID != "" {
		if !snap.HasArc(c.ArcID) {
			return fmt.Sprintf("arc %q not in snapshot", c.ArcID)
		}
		if c.CharacterID == "" {
			return fmt.Sprintf("arc %q has no character", c.ArcID)
		}
	}
	return ""
}

// coolingDownLocked reports whether the decision log holds an entry for the
// same type, thread and arc within the cool-down window.
func (e *Engine) coolingDownLocked(c *types.OrchestrationEvent, now time.Time) bool {
	since := now.Add(-e.config.CoolDown)
	for i := len(e.log) - 1; i >= 0; i-- {
		d := &e.log[i]
		if d.At.Before(since) {
			continue
		}
		if d.EventType == c.Type && d.ThreadID == c.ThreadID && d.ArcID == c.ArcID {
			return true
		}
	}
	return false
}

// admitLocked stores c as pending, or refreshes the pending event it
// duplicates.
func (e *Engine) admitLocked(c types.OrchestrationEvent, now time.Time) *types.OrchestrationEvent {
	key := dedupKey(&c)
	closed := 0
	for _, ev := range e.events {
		if dedupKey(ev) != key {
			continue
		}
		if ev.Status == types.EventPending {
			id, created, seq := ev.ID, ev.CreatedAt, ev.Seq
			*ev = c
			ev.ID, ev.CreatedAt, ev.Seq, ev.Status = id, created, seq, types.EventPending
			return ev
		}
		closed++
	}

	e.seq++
	c.ID = uuid.NewSHA1(eventNamespace, fmt.Appendf(nil, "%s|%s|%d", e.campaignID, key, closed)).String()
	c.Status = types.EventPending
	c.CreatedAt = now
	c.Seq = e.seq
	ev := &c
	e.events[c.ID] = ev
	return ev
}

func dedupKey(ev *types.OrchestrationEvent) string {
	return string(ev.Type) + "|" + ev.ThreadID + "|" + ev.ArcID
}

// rank sorts by event priority, then thread priority, then arc readiness.
// Equal candidates keep their order.
func rank(evs []types.OrchestrationEvent) {
	slices.SortStableFunc(evs, func(a, b types.OrchestrationEvent) int {
		if c := cmp.Compare(b.Priority.Rank(), a.Priority.Rank()); c != 0 {
			return c
		}
		if c := cmp.Compare(b.ThreadPriority, a.ThreadPriority); c != 0 {
			return c
		}
		return cmp.Compare(b.ArcReadiness, a.ArcReadiness)
	})
}

// Execute marks a pending event as acted upon and logs the outcome.
func (e *Engine) Execute(eventID, outcome string) (types.OrchestrationEvent, error) {
	return e.close(eventID, types.EventExecuted, types.DecisionExecuted, outcome)
}

// Dismiss marks a pending event as rejected and logs it.
func (e *Engine) Dismiss(eventID, reason string) (types.OrchestrationEvent, error) {
	return e.close(eventID, types.EventDismissed, types.DecisionDismissed, reason)
}

func (e *Engine) close(eventID string, to types.EventStatus, action, outcome string) (types.OrchestrationEvent, error) {
	now := e.now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.events[eventID]
	if !ok {
		return types.OrchestrationEvent{}, &types.NotFoundError{Kind: "event", ID: eventID}
	}
	if !types.IsValidEventTransition(ev.Status, to) {
		return types.OrchestrationEvent{}, &types.TransitionError{Entity: "event", From: string(ev.Status), To: string(to)}
	}
	ev.Status = to
	ev.ClosedAt = &now
	if to == types.EventExecuted {
		at := now
		ev.ExecutedAt = &at
	}
	e.log = append(e.log, types.DecisionEntry{
		ID:        e.newID(),
		EventID:   ev.ID,
		EventType: ev.Type,
		ThreadID:  ev.ThreadID,
		ArcID:     ev.ArcID,
		Action:    action,
		Outcome:   outcome,
		At:        now,
	})
	log.Info("orchestration event closed", "campaign", e.campaignID, "event", ev.ID, "type", ev.Type, "action", action)
	return ev.Clone(), nil
}

// ExpireStale expires pending events older than the pending TTL and returns
// how many it expired. Expiry is not logged as a decision, so the same
// suggestion may come back. Calling it twice in a row is a no-op the second
// time.
func (e *Engine) ExpireStale() int {
	now := e.now().UTC()
	cutoff := now.Add(-e.config.PendingTTL)

	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Status != types.EventPending || ev.CreatedAt.After(cutoff) {
			continue
		}
		ev.Status = types.EventExpired
		at := now
		ev.ClosedAt = &at
		n++
	}
	if n > 0 {
		log.Debug("expired stale events", "campaign", e.campaignID, "count", n)
	}
	return n
}

// Pending returns up to limit pending events, most urgent first. A limit of
// zero or less returns all of them.
func (e *Engine) Pending(limit int) []types.OrchestrationEvent {
	out := e.filter(func(ev *types.OrchestrationEvent) bool { return ev.Status == types.EventPending })
	rank(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Events returns every event in proposal order.
func (e *Engine) Events() []types.OrchestrationEvent {
	return e.filter(func(*types.OrchestrationEvent) bool { return true })
}

func (e *Engine) filter(keep func(*types.OrchestrationEvent) bool) []types.OrchestrationEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []types.OrchestrationEvent
	for _, ev := range e.events {
		if keep(ev) {
			out = append(out, ev.Clone())
		}
	}
	slices.SortFunc(out, func(a, b types.OrchestrationEvent) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}

// Event returns a copy of one event.
func (e *Engine) Event(eventID string) (types.OrchestrationEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.events[eventID]
	if !ok {
		return types.OrchestrationEvent{}, &types.NotFoundError{Kind: "event", ID: eventID}
	}
	return ev.Clone(), nil
}

// DecisionLog returns the append-only decision log, oldest first.
func (e *Engine) DecisionLog() []types.DecisionEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.log)
}

// Restore replaces events and log with persisted state. Invalid events and
// log entries are dropped and reported.
func (e *Engine) Restore(events []types.OrchestrationEvent, decisions []types.DecisionEntry) []error {
	var dropped []error
	byID := make(map[string]*types.OrchestrationEvent, len(events))
	var seq int64
	for i := range events {
		ev := events[i].Clone()
		if err := ev.Check(); err != nil {
			dropped = append(dropped, fmt.Errorf("event %d (%q): %w", i, ev.ID, err))
			continue
		}
		if _, dup := byID[ev.ID]; dup {
			dropped = append(dropped, fmt.Errorf("event %d: duplicate id %q", i, ev.ID))
			continue
		}
		seq = max(seq, ev.Seq)
		byID[ev.ID] = &ev
	}
	var entries []types.DecisionEntry
	for i, d := range decisions {
		if d.EventID == "" || !d.EventType.Valid() {
			dropped = append(dropped, fmt.Errorf("decision %d: missing event reference", i))
			continue
		}
		entries = append(entries, d)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = byID
	e.log = entries
	e.seq = seq
	return dropped
}
