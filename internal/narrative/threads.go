package narrative

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/scrypster/chronicle/pkg/types"
)

// NewThread is the input to ThreadRegistry.Open.
type NewThread struct {
	Name         string
	Type         types.ThreadType
	Description  string
	Priority     int
	CharacterIDs []string
	Metadata     map[string]any
}

// NewUpdate is the input to ThreadRegistry.AddUpdate. A non-nil Priority
// revises the thread priority.
type NewUpdate struct {
	Title       string
	Description string
	MemoryIDs   []string
	Priority    *int
}

// ThreadRegistry owns the plot threads of one campaign.
type ThreadRegistry struct {
	registryBase

	mu      sync.RWMutex
	threads map[string]*types.PlotThread
	order   []string
}

// NewThreadRegistry creates an empty registry for campaignID.
func NewThreadRegistry(campaignID string, opts ...Option) *ThreadRegistry {
	return &ThreadRegistry{
		registryBase: newBase(campaignID, opts),
		threads:      make(map[string]*types.PlotThread),
	}
}

// Open starts a new thread in the open state.
func (r *ThreadRegistry) Open(n NewThread) (types.PlotThread, error) {
	switch {
	case strings.TrimSpace(n.Name) == "":
		return types.PlotThread{}, types.Invalid("name", "is required")
	case !n.Type.Valid():
		return types.PlotThread{}, types.Invalid("thread_type", "unknown thread type %q", n.Type)
	case !types.ValidThreadPriority(n.Priority):
		return types.PlotThread{}, priorityError(n.Priority)
	}
	if err := types.ValidText("name", n.Name, n.Description); err != nil {
		return types.PlotThread{}, err
	}
	now := r.stamp()
	t := &types.PlotThread{
		ID:           r.newID(),
		Name:         n.Name,
		Type:         n.Type,
		Description:  n.Description,
		Priority:     n.Priority,
		Status:       types.ThreadOpen,
		CharacterIDs: slices.Clone(n.CharacterIDs),
		Metadata:     maps.Clone(n.Metadata),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads[t.ID] = t
	r.order = append(r.order, t.ID)
	return t.Clone(), nil
}

// AddUpdate appends to the thread's history. The first update moves an open
// thread to advancing.
func (r *ThreadRegistry) AddUpdate(threadID string, u NewUpdate) (types.PlotThread, error) {
	if strings.TrimSpace(u.Title) == "" {
		return types.PlotThread{}, types.Invalid("title", "is required")
	}
	if u.Priority != nil && !types.ValidThreadPriority(*u.Priority) {
		return types.PlotThread{}, priorityError(*u.Priority)
	}
	if err := types.ValidText("title", u.Title, u.Description); err != nil {
		return types.PlotThread{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.liveLocked(threadID, types.ThreadAdvancing)
	if err != nil {
		return types.PlotThread{}, err
	}
	now := r.stamp()
	t.Updates = append(t.Updates, types.ThreadUpdate{
		Title:       u.Title,
		Description: u.Description,
		MemoryIDs:   slices.Clone(u.MemoryIDs),
		At:          now,
	})
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	t.Status = types.ThreadAdvancing
	t.UpdatedAt = now
	return t.Clone(), nil
}

// Resolve closes the thread. A resolution needs a description of how it
// ended and at least one memory documenting it. Afterwards only metadata
// may change.
func (r *ThreadRegistry) Resolve(threadID, resolution string, memoryIDs []string) (types.PlotThread, error) {
	if strings.TrimSpace(resolution) == "" {
		return types.PlotThread{}, types.Invalid("resolution", "is required")
	}
	if err := types.ValidText("resolution", resolution); err != nil {
		return types.PlotThread{}, err
	}
	ids := slices.DeleteFunc(slices.Clone(memoryIDs), func(id string) bool { return strings.TrimSpace(id) == "" })
	if len(ids) == 0 {
		return types.PlotThread{}, types.Invalid("memory_ids", "at least one memory must document the resolution")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.liveLocked(threadID, types.ThreadResolved)
	if err != nil {
		return types.PlotThread{}, err
	}
	t.Status = types.ThreadResolved
	t.Resolution = resolution
	t.ResolvedBy = ids
	t.UpdatedAt = r.stamp()
	return t.Clone(), nil
}

// Abandon drops the thread without a resolution.
func (r *ThreadRegistry) Abandon(threadID, reason string) (types.PlotThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.liveLocked(threadID, types.ThreadAbandoned)
	if err != nil {
		return types.PlotThread{}, err
	}
	t.Status = types.ThreadAbandoned
	t.Resolution = reason
	t.UpdatedAt = r.stamp()
	return t.Clone(), nil
}

// SetMetadata merges md into the thread metadata; a nil value deletes the
// key. It is the one mutation allowed on resolved and abandoned threads.
func (r *ThreadRegistry) SetMetadata(threadID string, md map[string]any) (types.PlotThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[threadID]
	if !ok {
		return types.PlotThread{}, &types.NotFoundError{Kind: "thread", ID: threadID}
	}
	if t.Metadata == nil {
		t.Metadata = make(map[string]any, len(md))
	}
	for k, v := range md {
		if v == nil {
			delete(t.Metadata, k)
			continue
		}
		t.Metadata[k] = v
	}
	t.UpdatedAt = r.stamp()
	return t.Clone(), nil
}

func (r *ThreadRegistry) liveLocked(threadID string, next types.ThreadStatus) (*types.PlotThread, error) {
	t, ok := r.threads[threadID]
	if !ok {
		return nil, &types.NotFoundError{Kind: "thread", ID: threadID}
	}
	if t.Status == next && next == types.ThreadAdvancing {
		return t, nil
	}
	if !types.IsValidThreadTransition(t.Status, next) {
		return nil, &types.TransitionError{Entity: "thread", From: string(t.Status), To: string(next)}
	}
	return t, nil
}

// Get returns a copy of the thread.
func (r *ThreadRegistry) Get(threadID string) (types.PlotThread, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.threads[threadID]
	if !ok {
		return types.PlotThread{}, &types.NotFoundError{Kind: "thread", ID: threadID}
	}
	return t.Clone(), nil
}

// List returns every thread in creation order.
func (r *ThreadRegistry) List() []types.PlotThread {
	return r.filter(func(*types.PlotThread) bool { return true })
}

// ListOpenThreads implements ThreadProvider. Threads come back by priority,
// highest first, then in creation order.
func (r *ThreadRegistry) ListOpenThreads(ctx context.Context, campaignID string) ([]types.PlotThread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.checkCampaign(campaignID); err != nil {
		return nil, err
	}
	out := r.filter(func(t *types.PlotThread) bool { return t.Status.Live() })
	slices.SortStableFunc(out, func(a, b types.PlotThread) int { return cmp.Compare(b.Priority, a.Priority) })
	return out, nil
}

func (r *ThreadRegistry) filter(keep func(*types.PlotThread) bool) []types.PlotThread {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.PlotThread
	for _, id := range r.order {
		if t := r.threads[id]; keep(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Restore replaces the registry contents with threads decoded from persisted
// state. Invalid or duplicate threads are dropped and reported.
func (r *ThreadRegistry) Restore(threads []types.PlotThread) []error {
	var dropped []error
	byID := make(map[string]*types.PlotThread, len(threads))
	order := make([]string, 0, len(threads))
	for i := range threads {
		t := threads[i].Clone()
		if err := t.Check(); err != nil {
			dropped = append(dropped, fmt.Errorf("thread %d (%q): %w", i, t.ID, err))
			continue
		}
		if _, dup := byID[t.ID]; dup {
			dropped = append(dropped, fmt.Errorf("thread %d: duplicate id %q", i, t.ID))
			continue
		}
		byID[t.ID] = &t
		order = append(order, t.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads = byID
	r.order = order
	return dropped
}

func priorityError(p int) error {
	return types.Invalid("priority", "%d outside [%d,%d]", p, types.MinThreadPriority, types.MaxThreadPriority)
}
