package campaign

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scrypster/chronicle/internal/storage"
	"github.com/scrypster/chronicle/pkg/types"
)

// Registry keeps the loaded campaigns of a process, keyed by campaign id. A
// campaign is created or loaded on first use, saved on request or when idle,
// and discarded after IdleTimeout without activity.
//
// The persisted state of a campaign is assumed to have a single writer: the
// process whose Registry has it loaded. Two processes loading the same
// campaign from a shared StateStore overwrite each other's saves.
//
// A discarded campaign is closed: callers still holding it get ErrClosed
// from writes and must call Get again.
type Registry struct {
	store       storage.StateStore
	config      Config
	idleTimeout time.Duration
	now         func() time.Time
	opts        []Option

	mu        sync.Mutex
	campaigns map[string]*Campaign
}

// NewRegistry creates a registry. store may be nil, in which case campaigns
// live only in memory. An idleTimeout of zero disables idle discards.
func NewRegistry(store storage.StateStore, cfg Config, idleTimeout time.Duration, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid campaign config: %w", err)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		store:       store,
		config:      cfg,
		idleTimeout: idleTimeout,
		now:         o.now,
		opts:        opts,
		campaigns:   make(map[string]*Campaign),
	}, nil
}

// Get returns the loaded campaign, loading it from the store or creating it
// on first use. Partial load losses are logged and available through
// Campaign.LoadReport. A damaged blob is reported as a
// *types.CorruptStateError; call Delete to start over.
//
// Loading runs without the registry lock. When two callers load the same id
// at once, the first to finish wins and the other copy is dropped unused.
func (r *Registry) Get(ctx context.Context, id string) (*Campaign, error) {
	if id == "" {
		return nil, types.Invalid("campaign_id", "is required")
	}
	r.mu.Lock()
	c, ok := r.campaigns[id]
	r.mu.Unlock()
	if ok {
		return c, nil
	}

	c, err := r.open(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.campaigns[id]; ok {
		return existing, nil
	}
	r.campaigns[id] = c
	return c, nil
}

func (r *Registry) open(ctx context.Context, id string) (*Campaign, error) {
	if r.store == nil {
		return New(id, r.config, r.opts...)
	}
	blob, err := r.store.LoadState(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Info("starting new campaign", "campaign", id)
		return New(id, r.config, r.opts...)
	case errors.Is(err, storage.ErrChecksum):
		return nil, &types.CorruptStateError{Sections: []string{"document"}, Cause: err}
	case err != nil:
		return nil, fmt.Errorf("load campaign %s: %w", id, err)
	}

	c, report, err := LoadState(blob, r.config, r.opts...)
	if err != nil {
		return nil, fmt.Errorf("load campaign %s: %w", id, err)
	}
	if c.ID() != id {
		return nil, &types.CorruptStateError{Sections: []string{"campaign_id"}, Cause: fmt.Errorf("stored under %q but names %q", id, c.ID())}
	}
	if !report.Clean() {
		log.Warn("campaign loaded with losses", "campaign", id, "dropped", report.Dropped, "skipped", len(report.Skipped))
	}
	return c, nil
}

// LoadAll loads every persisted campaign that is not loaded yet and returns
// how many were loaded. Campaigns that fail to load are logged and skipped.
func (r *Registry) LoadAll(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	loaded := 0
	opts := storage.ListOptions{Page: 1, Limit: 100, SortBy: "campaign_id", SortOrder: "asc"}
	for {
		page, err := r.store.ListCampaigns(ctx, opts)
		if err != nil {
			return loaded, fmt.Errorf("list campaigns: %w", err)
		}
		for _, info := range page.Items {
			r.mu.Lock()
			_, ok := r.campaigns[info.ID]
			r.mu.Unlock()
			if ok {
				continue
			}
			if _, err := r.Get(ctx, info.ID); err != nil {
				log.Error("failed to load campaign", "campaign", info.ID, "err", err)
				continue
			}
			loaded++
		}
		if !page.HasMore {
			return loaded, nil
		}
		opts.Page++
	}
}

// Save persists one loaded campaign.
func (r *Registry) Save(ctx context.Context, id string) error {
	r.mu.Lock()
	c, ok := r.campaigns[id]
	r.mu.Unlock()
	if !ok {
		return &types.NotFoundError{Kind: "campaign", ID: id}
	}
	return r.save(ctx, c)
}

func (r *Registry) save(ctx context.Context, c *Campaign) error {
	if r.store == nil {
		return nil
	}
	blob, err := c.SaveState()
	if err != nil {
		return err
	}
	if err := r.store.SaveState(ctx, c.ID(), blob); err != nil {
		c.markDirty()
		return fmt.Errorf("save campaign %s: %w", c.ID(), err)
	}
	return nil
}

// SaveAll persists every loaded campaign with unsaved changes.
func (r *Registry) SaveAll(ctx context.Context) error {
	var errs []error
	for _, c := range r.loaded() {
		if !c.Dirty() {
			continue
		}
		errs = append(errs, r.save(ctx, c))
	}
	return errors.Join(errs...)
}

// Discard drops a loaded campaign without saving it and closes it. It
// reports whether the campaign was loaded.
func (r *Registry) Discard(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if ok {
		c.close(time.Time{})
		delete(r.campaigns, id)
	}
	return ok
}

// Delete discards the campaign and removes its persisted state.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.Discard(id)
	if r.store == nil {
		return nil
	}
	if err := r.store.DeleteState(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete campaign %s: %w", id, err)
	}
	return nil
}

// SweepIdle saves and discards campaigns idle for at least the idle timeout
// and returns their ids. A campaign whose save fails, or that is written to
// while being saved, stays loaded.
func (r *Registry) SweepIdle(ctx context.Context) ([]string, error) {
	if r.idleTimeout <= 0 {
		return nil, nil
	}
	cutoff := r.now().UTC().Add(-r.idleTimeout)
	var swept []string
	var errs []error
	for _, c := range r.loaded() {
		if c.LastActive().After(cutoff) {
			continue
		}
		if c.Dirty() {
			if err := r.save(ctx, c); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		r.mu.Lock()
		if r.campaigns[c.ID()] == c && c.close(cutoff) {
			delete(r.campaigns, c.ID())
			swept = append(swept, c.ID())
		}
		r.mu.Unlock()
	}
	if len(swept) > 0 {
		log.Info("discarded idle campaigns", "count", len(swept))
	}
	return swept, errors.Join(errs...)
}

// MaintainAll runs Maintain on every loaded campaign.
func (r *Registry) MaintainAll() map[string]MaintenanceResult {
	out := make(map[string]MaintenanceResult)
	for _, c := range r.loaded() {
		out[c.ID()] = c.Maintain()
	}
	return out
}

// Loaded returns the ids of loaded campaigns, sorted.
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.campaigns))
}

// Close saves every dirty campaign.
func (r *Registry) Close(ctx context.Context) error {
	return r.SaveAll(ctx)
}

// loaded snapshots the loaded campaigns in id order so callers can work on
// them without holding the registry lock.
func (r *Registry) loaded() []*Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Campaign, 0, len(r.campaigns))
	for _, id := range slices.Sorted(maps.Keys(r.campaigns)) {
		out = append(out, r.campaigns[id])
	}
	return out
}
