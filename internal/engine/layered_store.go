package engine

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/scrypster/chronicle/pkg/types"
)

// LayeredStore holds the memory records of one campaign across the short,
// mid and long-term layers. It is safe for concurrent use, but it is meant
// to be owned by a single campaign and never shared between campaigns.
type LayeredStore struct {
	config Config
	now    func() time.Time
	newID  func() string

	mu       sync.RWMutex
	records  map[string]*types.MemoryRecord
	profiles map[string]*types.OwnerProfile
	seq      int64
}

// StoreOption customizes a LayeredStore.
type StoreOption func(*LayeredStore)

// WithClock sets the time source used for creation stamps and maintenance.
func WithClock(now func() time.Time) StoreOption {
	return func(s *LayeredStore) { s.now = now }
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(newID func() string) StoreOption {
	return func(s *LayeredStore) { s.newID = newID }
}

// NewLayeredStore creates an empty store.
func NewLayeredStore(cfg Config, opts ...StoreOption) (*LayeredStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &LayeredStore{
		config:   cfg,
		now:      time.Now,
		newID:    uuid.NewString,
		records:  make(map[string]*types.MemoryRecord),
		profiles: make(map[string]*types.OwnerProfile),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the store's configuration.
func (s *LayeredStore) Config() Config { return s.config }

// Now returns the store clock's current time in UTC.
func (s *LayeredStore) Now() time.Time { return s.now().UTC() }

// Add validates n and stores it as a new record. Invalid input returns a
// *types.ValidationError and leaves the store untouched.
//
// If the target layer is over capacity afterwards, its least significant
// record is evicted. That may be the new record itself, in which case the
// returned id no longer resolves; it is still not an error.
func (s *LayeredStore) Add(n types.NewRecord) (string, error) {
	if err := n.Validate(); err != nil {
		return "", err
	}
	now := s.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	rec := &types.MemoryRecord{
		ID:              s.newID(),
		Content:         n.Content,
		Payload:         maps.Clone(n.Payload),
		Kind:            n.Kind,
		Layer:           n.Layer,
		OwnerID:         n.OwnerID,
		SessionID:       n.SessionID,
		CreatedAt:       now,
		LastAccessedAt:  now,
		EmotionalWeight: n.EmotionalWeight,
		EmotionalTags:   types.NormalizeTags(n.EmotionalTags),
		ThematicTags:    types.NormalizeTags(n.ThematicTags),
		DecayMultiplier: 1,
		Seq:             s.seq,
	}
	if len(rec.Payload) == 0 {
		rec.Payload = nil
	}
	s.records[rec.ID] = rec
	s.observeLocked(rec, now)

	if evicted := s.enforceCapLocked(rec.Layer, now); slices.Contains(evicted, rec.ID) {
		log.Info("new memory not retained, layer full of more significant records",
			"id", rec.ID, "layer", rec.Layer, "cap", s.config.capacity(rec.Layer))
	}
	return rec.ID, nil
}

func (s *LayeredStore) observeLocked(rec *types.MemoryRecord, now time.Time) {
	if rec.OwnerID == "" {
		return
	}
	p, ok := s.profiles[rec.OwnerID]
	if !ok {
		p = &types.OwnerProfile{OwnerID: rec.OwnerID}
		s.profiles[rec.OwnerID] = p
	}
	p.Observe(rec, now)
}

// Get returns a copy of the record with the given id.
func (s *LayeredStore) Get(id string) (types.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return types.MemoryRecord{}, &types.NotFoundError{Kind: "memory", ID: id}
	}
	return rec.Clone(), nil
}

// ByOwner returns copies of every record attributed to owner, in insertion order.
func (s *LayeredStore) ByOwner(owner string) []types.MemoryRecord {
	return s.collect(func(r *types.MemoryRecord) bool { return r.OwnerID == owner })
}

// ByLayer returns copies of every record resident in layer, in insertion order.
func (s *LayeredStore) ByLayer(layer types.Layer) ([]types.MemoryRecord, error) {
	if !layer.Valid() {
		return nil, types.Invalid("layer", "unknown layer %q", layer)
	}
	return s.collect(func(r *types.MemoryRecord) bool { return r.Layer == layer }), nil
}

// Records returns copies of all records in insertion order.
func (s *LayeredStore) Records() []types.MemoryRecord {
	return s.collect(func(*types.MemoryRecord) bool { return true })
}

func (s *LayeredStore) collect(keep func(*types.MemoryRecord) bool) []types.MemoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.MemoryRecord, 0)
	for _, rec := range s.sortedLocked() {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// sortedLocked returns resident records ordered by insertion sequence so that
// every scan is deterministic.
func (s *LayeredStore) sortedLocked() []*types.MemoryRecord {
	recs := slices.Collect(maps.Values(s.records))
	slices.SortFunc(recs, func(a, b *types.MemoryRecord) int { return cmp.Compare(a.Seq, b.Seq) })
	return recs
}

// MarkAccessed records a read of each id: access_count is incremented and
// last_accessed_at set to now. It returns the updated copies in argument
// order. Unknown ids fail the whole call before anything is touched.
func (s *LayeredStore) MarkAccessed(ids ...string) ([]types.MemoryRecord, error) {
	now := s.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.records[id]; !ok {
			return nil, &types.NotFoundError{Kind: "memory", ID: id}
		}
	}
	out := make([]types.MemoryRecord, 0, len(ids))
	for _, id := range ids {
		rec := s.records[id]
		rec.AccessCount++
		rec.LastAccessedAt = now
		out = append(out, rec.Clone())
	}
	return out, nil
}

// Delete removes a record. Arcs and threads that reference the id are not
// consulted; their references simply dangle.
func (s *LayeredStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return &types.NotFoundError{Kind: "memory", ID: id}
	}
	delete(s.records, id)
	return nil
}

// Len returns the number of resident records.
func (s *LayeredStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Counts returns the number of resident records per layer.
func (s *LayeredStore) Counts() map[types.Layer]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[types.Layer]int, len(types.ValidLayers))
	for _, l := range types.ValidLayers {
		counts[l] = 0
	}
	for _, rec := range s.records {
		counts[rec.Layer]++
	}
	return counts
}

// Profile returns the personalization counters of owner.
func (s *LayeredStore) Profile(owner string) (types.OwnerProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[owner]
	if !ok {
		return types.OwnerProfile{}, false
	}
	return p.Clone(), true
}

// Profiles returns every owner profile ordered by owner id.
func (s *LayeredStore) Profiles() []types.OwnerProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.OwnerProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b types.OwnerProfile) int { return cmp.Compare(a.OwnerID, b.OwnerID) })
	return out
}

// Sequence returns the last assigned insertion sequence number.
func (s *LayeredStore) Sequence() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Restore replaces the store's contents with previously saved records and
// profiles. Records that fail validation or repeat an id are dropped and
// returned as errors; the rest are kept. The sequence counter resumes from
// the larger of seq and the highest restored record sequence.
func (s *LayeredStore) Restore(records []types.MemoryRecord, profiles []types.OwnerProfile, seq int64) []error {
	var dropped []error
	recs := make(map[string]*types.MemoryRecord, len(records))
	for i := range records {
		rec := records[i].Clone()
		if err := rec.Check(); err != nil {
			dropped = append(dropped, fmt.Errorf("memory %d (%q): %w", i, rec.ID, err))
			continue
		}
		if _, dup := recs[rec.ID]; dup {
			dropped = append(dropped, fmt.Errorf("memory %d: duplicate id %q", i, rec.ID))
			continue
		}
		if rec.DecayMultiplier <= 0 || rec.DecayMultiplier > 1 {
			rec.DecayMultiplier = 1
		}
		seq = max(seq, rec.Seq)
		recs[rec.ID] = &rec
	}
	profs := make(map[string]*types.OwnerProfile, len(profiles))
	for _, p := range profiles {
		if p.OwnerID == "" {
			dropped = append(dropped, fmt.Errorf("owner profile without owner_id"))
			continue
		}
		p = p.Clone()
		profs[p.OwnerID] = &p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = recs
	s.profiles = profs
	s.seq = seq
	return dropped
}

// PromoteOrDecay runs one maintenance pass over every record:
//
//   - short-term records older than ShortTermMaxAge move to mid-term, or are
//     discarded when their significance is below RetentionBar;
//   - mid-term records older than MidTermMaxAge move to long-term when their
//     significance exceeds PromotionBar, otherwise their effective weight is
//     multiplied by DecayFactor once per DecayInterval elapsed since the last
//     step, and they are evicted once significance falls under EvictionFloor;
//   - long-term records are never changed;
//   - layers over capacity lose their least significant records.
//
// Decay steps are anchored to whole intervals, so calling the pass again at
// the same instant changes nothing. Records that fail validation are logged
// and left alone.
func (s *LayeredStore) PromoteOrDecay() MaintenanceReport {
	now := s.Now()
	cfg := s.config
	var report MaintenanceReport

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.sortedLocked() {
		if err := rec.Check(); err != nil {
			log.Warn("skipping corrupt memory during maintenance", "id", rec.ID, "err", err)
			report.Skipped++
			continue
		}

		if rec.Layer == types.LayerShort && now.Sub(rec.CreatedAt) > cfg.ShortTermMaxAge {
			if Significance(rec, now, cfg) < cfg.RetentionBar {
				delete(s.records, rec.ID)
				report.Discarded++
				continue
			}
			rec.Layer = types.LayerMid
			report.PromotedToMid++
		}

		if rec.Layer != types.LayerMid || now.Sub(rec.CreatedAt) <= cfg.MidTermMaxAge {
			continue
		}
		if Significance(rec, now, cfg) > cfg.PromotionBar {
			rec.Layer = types.LayerLong
			report.PromotedToLong++
			continue
		}
		if s.decayLocked(rec, now) {
			report.Decayed++
		}
		if Significance(rec, now, cfg) < cfg.EvictionFloor {
			delete(s.records, rec.ID)
			report.Evicted++
		}
	}

	for _, l := range types.ValidLayers {
		report.CapacityEvicted += len(s.enforceCapLocked(l, now))
	}

	if report.Changed() || report.Skipped > 0 {
		log.Debug("memory maintenance pass",
			"to_mid", report.PromotedToMid,
			"to_long", report.PromotedToLong,
			"discarded", report.Discarded,
			"decayed", report.Decayed,
			"evicted", report.Evicted+report.CapacityEvicted,
			"skipped", report.Skipped)
	}
	return report
}

// decayLocked applies the decay steps that are due for rec and reports
// whether any were.
func (s *LayeredStore) decayLocked(rec *types.MemoryRecord, now time.Time) bool {
	anchor := rec.CreatedAt.Add(s.config.MidTermMaxAge)
	if rec.LastDecayAt.After(anchor) {
		anchor = rec.LastDecayAt
	}
	steps := int(now.Sub(anchor) / s.config.DecayInterval)
	if steps <= 0 {
		return false
	}
	if rec.DecayMultiplier <= 0 || rec.DecayMultiplier > 1 {
		rec.DecayMultiplier = 1
	}
	for range steps {
		rec.DecayMultiplier *= s.config.DecayFactor
	}
	rec.LastDecayAt = anchor.Add(time.Duration(steps) * s.config.DecayInterval)
	return true
}

// enforceCapLocked evicts the least significant records of layer until it is
// within capacity and returns their ids. Ties go to the older record.
func (s *LayeredStore) enforceCapLocked(layer types.Layer, now time.Time) []string {
	limit := s.config.capacity(layer)
	type scored struct {
		rec *types.MemoryRecord
		sig float64
	}
	var candidates []scored
	for _, rec := range s.records {
		if rec.Layer == layer {
			candidates = append(candidates, scored{rec, Significance(rec, now, s.config)})
		}
	}
	excess := len(candidates) - limit
	if excess <= 0 {
		return nil
	}

	slices.SortFunc(candidates, func(a, b scored) int {
		if c := cmp.Compare(a.sig, b.sig); c != 0 {
			return c
		}
		if c := a.rec.CreatedAt.Compare(b.rec.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.rec.Seq, b.rec.Seq)
	})
	evicted := make([]string, excess)
	for i, c := range candidates[:excess] {
		delete(s.records, c.rec.ID)
		evicted[i] = c.rec.ID
	}
	log.Debug("layer over capacity", "layer", layer, "cap", limit, "evicted", excess)
	return evicted
}
