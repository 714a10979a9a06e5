// Package campaign is the collaborator-facing facade of one storytelling
// campaign. A Campaign bundles the memory store, recall engine, arc and
// thread registries, snapshot aggregator and orchestration engine of a
// single campaign; nothing is shared between campaigns. The Registry creates,
// loads, persists and discards campaigns by id.
package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scrypster/chronicle/internal/engine"
	"github.com/scrypster/chronicle/internal/narrative"
	"github.com/scrypster/chronicle/internal/orchestration"
	"github.com/scrypster/chronicle/pkg/types"
)

// ErrClosed is returned by writes to a campaign the Registry has discarded.
// Such writes would never be saved; fetch the campaign again with Get.
var ErrClosed = errors.New("campaign closed")

// Config bundles the component configurations of a campaign.
type Config struct {
	Memory        engine.Config
	Narrative     narrative.AggregatorConfig
	Orchestration orchestration.Config
}

// DefaultConfig returns the component defaults.
func DefaultConfig() Config {
	return Config{
		Memory:        engine.DefaultConfig(),
		Narrative:     narrative.DefaultAggregatorConfig(),
		Orchestration: orchestration.DefaultConfig(),
	}
}

// Validate checks every component configuration.
func (c *Config) Validate() error {
	return errors.Join(c.Memory.Validate(), c.Narrative.Validate(), c.Orchestration.Validate())
}

// Option customizes a Campaign.
type Option func(*options)

type options struct {
	now       func() time.Time
	newID     func() string
	extractor engine.FactExtractor
}

// WithClock sets the time source shared by every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces the random UUID generator for memories, arcs,
// threads and decision entries.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithExtractor sets the FactExtractor used by RecordNarration. The default
// is the deterministic engine.HeuristicExtractor.
func WithExtractor(x engine.FactExtractor) Option {
	return func(o *options) { o.extractor = x }
}

// Campaign is one campaign's continuity and pacing state. All methods are
// safe for concurrent use; calls are serialized per campaign.
type Campaign struct {
	id        string
	config    Config
	now       func() time.Time
	extractor engine.FactExtractor

	mu         sync.Mutex
	store      *engine.LayeredStore
	recall     *engine.RecallEngine
	arcs       *narrative.ArcRegistry
	threads    *narrative.ThreadRegistry
	aggregator *narrative.Aggregator
	orch       *orchestration.Engine
	lastActive time.Time
	dirty      bool
	closed     bool
	loaded     LoadReport
}

// New creates an empty campaign.
func New(id string, cfg Config, opts ...Option) (*Campaign, error) {
	if id == "" {
		return nil, types.Invalid("campaign_id", "is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid campaign config: %w", err)
	}
	o := options{now: time.Now, extractor: engine.HeuristicExtractor{}}
	for _, opt := range opts {
		opt(&o)
	}

	storeOpts := []engine.StoreOption{engine.WithClock(o.now)}
	regOpts := []narrative.Option{narrative.WithClock(o.now)}
	orchOpts := []orchestration.Option{orchestration.WithClock(o.now)}
	if o.newID != nil {
		storeOpts = append(storeOpts, engine.WithIDGenerator(o.newID))
		regOpts = append(regOpts, narrative.WithIDGenerator(o.newID))
		orchOpts = append(orchOpts, orchestration.WithIDGenerator(o.newID))
	}

	store, err := engine.NewLayeredStore(cfg.Memory, storeOpts...)
	if err != nil {
		return nil, err
	}
	orch, err := orchestration.New(id, cfg.Orchestration, orchOpts...)
	if err != nil {
		return nil, err
	}
	c := &Campaign{
		id:         id,
		config:     cfg,
		now:        o.now,
		extractor:  o.extractor,
		store:      store,
		recall:     engine.NewRecallEngine(store),
		arcs:       narrative.NewArcRegistry(id, regOpts...),
		threads:    narrative.NewThreadRegistry(id, regOpts...),
		orch:       orch,
		lastActive: o.now().UTC(),
	}
	c.aggregator, err = narrative.NewAggregator(id, c.arcs, c.threads, c.recall, cfg.Narrative, o.now)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ID returns the campaign id.
func (c *Campaign) ID() string { return c.id }

// Arcs exposes the arc registry for reads. Changes made through it are not
// tracked as unsaved; use the Campaign methods to mutate arcs.
func (c *Campaign) Arcs() *narrative.ArcRegistry { return c.arcs }

// Threads exposes the thread registry for reads, like Arcs.
func (c *Campaign) Threads() *narrative.ThreadRegistry { return c.threads }

// Memories exposes the memory store for direct lookups.
func (c *Campaign) Memories() *engine.LayeredStore { return c.store }

// LastActive is the time of the last call that touched the campaign.
func (c *Campaign) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// LoadReport describes what was lost when the campaign was loaded. It is
// clean for campaigns created with New.
func (c *Campaign) LoadReport() LoadReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Dirty reports whether the campaign changed since it was last saved or loaded.
func (c *Campaign) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

func (c *Campaign) markDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// close rejects further writes. It reports false when the campaign is dirty
// or was active after cutoff; a zero cutoff closes unconditionally.
func (c *Campaign) close(cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !cutoff.IsZero() && (c.dirty || c.lastActive.After(cutoff)) {
		return false
	}
	c.closed = true
	return true
}

func (c *Campaign) checkOpenLocked() error {
	if c.closed {
		return fmt.Errorf("%w: %s", ErrClosed, c.id)
	}
	return nil
}

// touchLocked records activity; mutated marks unsaved changes.
func (c *Campaign) touchLocked(mutated bool) {
	c.lastActive = c.now().UTC()
	if mutated {
		c.dirty = true
	}
}

// RecordEvent stores one memory and returns its id.
func (c *Campaign) RecordEvent(n types.NewRecord) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return "", err
	}
	id, err := c.store.Add(n)
	if err != nil {
		return "", err
	}
	c.touchLocked(true)
	return id, nil
}

// Narration is the result of RecordNarration.
type Narration struct {
	MemoryID string       `json:"memory_id"`
	Facts    engine.Facts `json:"facts"`
}

// RecordNarration extracts facts from free text and stores them as a memory.
// Extraction may call a language model, so it runs before the campaign lock
// is taken.
func (c *Campaign) RecordNarration(ctx context.Context, text, ownerID, sessionID string) (Narration, error) {
	return c.RecordAnnotatedNarration(ctx, text, ownerID, sessionID, Annotation{})
}

// Annotation holds facts a writer marked up by hand. They are added to what
// the extractor infers; a location replaces the inferred one.
type Annotation struct {
	Themes       []string
	Participants []string
	Location     string
}

// RecordAnnotatedNarration is RecordNarration with hand-marked facts merged
// into the extracted ones.
func (c *Campaign) RecordAnnotatedNarration(ctx context.Context, text, ownerID, sessionID string, a Annotation) (Narration, error) {
	facts, err := c.extractor.Extract(ctx, text)
	if err != nil {
		return Narration{}, fmt.Errorf("extract facts: %w", err)
	}
	if len(a.Themes) > 0 {
		facts.ThematicTags = types.NormalizeTags(append(slices.Clone(facts.ThematicTags), a.Themes...))
	}
	if len(a.Participants) > 0 {
		merged := append(slices.Clone(facts.Participants), a.Participants...)
		slices.Sort(merged)
		facts.Participants = slices.Compact(merged)
	}
	if a.Location != "" {
		facts.Location = a.Location
	}
	id, err := c.RecordEvent(types.NewRecord{
		Content:         text,
		Payload:         facts.Payload(),
		Kind:            facts.Kind,
		OwnerID:         ownerID,
		SessionID:       sessionID,
		EmotionalWeight: facts.EmotionalWeight,
		EmotionalTags:   facts.EmotionalTags,
		ThematicTags:    facts.ThematicTags,
	})
	if err != nil {
		return Narration{}, err
	}
	return Narration{MemoryID: id, Facts: facts}, nil
}

// RecallResult is the output of RecallContext.
type RecallResult struct {
	Context engine.ContextBlock   `json:"context"`
	Records []engine.ScoredRecord `json:"records"`
}

// RecallContext recalls memories matching q, reinforcing them, and renders
// them for the narrator prompt within budget tokens. A budget of zero uses
// the configured context budget; a negative budget disables truncation.
func (c *Campaign) RecallContext(q engine.RecallQuery, budget int) (RecallResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return RecallResult{}, err
	}
	recs, err := c.recall.Recall(q)
	if err != nil {
		return RecallResult{}, err
	}
	if len(recs) > 0 {
		c.touchLocked(true)
	}
	switch {
	case budget == 0:
		budget = c.config.Memory.ContextBudget
	case budget < 0:
		budget = 0
	}
	return RecallResult{Context: engine.FormatForContext(recs, budget), Records: recs}, nil
}

// Snapshot returns where the story stands. It does not reinforce memories.
func (c *Campaign) Snapshot(ctx context.Context) (narrative.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked(false)
	return c.aggregator.Snapshot(ctx)
}

// PendingEvents takes a snapshot and asks the orchestration engine for up
// to limit events. The result is never empty.
func (c *Campaign) PendingEvents(ctx context.Context, limit int) (orchestration.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return orchestration.Result{}, err
	}
	snap, err := c.aggregator.Snapshot(ctx)
	if err != nil {
		return orchestration.Result{}, err
	}
	res := c.orch.GenerateEvents(snap, limit)
	c.touchLocked(true)
	return res, nil
}

// ResolveEvent executes a pending event with the given outcome. It reports
// false with an error when the event is unknown or already closed.
func (c *Campaign) ResolveEvent(eventID, outcome string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return false, err
	}
	if _, err := c.orch.Execute(eventID, outcome); err != nil {
		return false, err
	}
	c.touchLocked(true)
	return true, nil
}

// DismissEvent rejects a pending event.
func (c *Campaign) DismissEvent(eventID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	if _, err := c.orch.Dismiss(eventID, reason); err != nil {
		return err
	}
	c.touchLocked(true)
	return nil
}

// Event returns one orchestration event.
func (c *Campaign) Event(eventID string) (types.OrchestrationEvent, error) {
	return c.orch.Event(eventID)
}

// DecisionLog returns the orchestration decision log.
func (c *Campaign) DecisionLog() []types.DecisionEntry {
	return c.orch.DecisionLog()
}

// MaintenanceResult reports one Maintain pass.
type MaintenanceResult struct {
	Memory  engine.MaintenanceReport `json:"memory"`
	Expired int                      `json:"expired_events"`
}

// Changed reports whether the pass altered anything.
func (r MaintenanceResult) Changed() bool { return r.Memory.Changed() || r.Expired > 0 }

// Maintain runs the memory promote/decay pass and expires stale events. It
// is idempotent: a second call right after the first changes nothing. A
// closed campaign is left as it is.
func (c *Campaign) Maintain() MaintenanceResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return MaintenanceResult{}
	}
	res := MaintenanceResult{
		Memory:  c.store.PromoteOrDecay(),
		Expired: c.orch.ExpireStale(),
	}
	if res.Changed() {
		c.dirty = true
		log.Debug("campaign maintained", "campaign", c.id, "expired", res.Expired, "evicted", res.Memory.Evicted+res.Memory.CapacityEvicted)
	}
	return res
}

// State captures the full campaign state.
func (c *Campaign) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Campaign) stateLocked() State {
	return State{
		Version:       StateVersion,
		CampaignID:    c.id,
		SavedAt:       c.now().UTC(),
		Memories:      c.store.Records(),
		OwnerProfiles: c.store.Profiles(),
		Arcs:          c.arcs.List(),
		Threads:       c.threads.List(),
		Events:        c.orch.Events(),
		DecisionLog:   c.orch.DecisionLog(),
		Sequence:      c.store.Sequence(),
	}
}

// SaveState serializes the campaign into its portable JSON document and
// clears the dirty flag.
func (c *Campaign) SaveState() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stateLocked()
	blob, err := json.Marshal(&st)
	if err != nil {
		return nil, fmt.Errorf("encode campaign %s: %w", c.id, err)
	}
	c.dirty = false
	return blob, nil
}

// ExportYAML renders the campaign state as YAML.
func (c *Campaign) ExportYAML() ([]byte, error) {
	st := c.State()
	return st.YAML()
}

// LoadState rebuilds a campaign from a SaveState document. Sections or items
// that fail to decode are dropped, logged and listed in the report; the
// campaign is still returned. Only an unreadable document is an error.
func LoadState(blob []byte, cfg Config, opts ...Option) (*Campaign, LoadReport, error) {
	st, report, err := decodeState(blob)
	if err != nil {
		return nil, LoadReport{}, err
	}
	c, err := New(st.CampaignID, cfg, opts...)
	if err != nil {
		return nil, LoadReport{}, err
	}

	report.Skipped = append(report.Skipped, c.store.Restore(st.Memories, st.OwnerProfiles, st.Sequence)...)
	report.Skipped = append(report.Skipped, c.arcs.Restore(st.Arcs)...)
	report.Skipped = append(report.Skipped, c.threads.Restore(st.Threads)...)
	report.Skipped = append(report.Skipped, c.orch.Restore(st.Events, st.DecisionLog)...)
	for _, err := range report.Skipped {
		log.Warn("skipped invalid state item", "campaign", c.id, "err", err)
	}
	c.loaded = report
	return c, report, nil
}
