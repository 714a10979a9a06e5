package narrative

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/scrypster/chronicle/pkg/types"
)

// NewArc is the input to ArcRegistry.Create.
type NewArc struct {
	CharacterID string
	Type        types.ArcType
	Description string
}

// NewMilestone is the input to ArcRegistry.AddMilestone.
type NewMilestone struct {
	Title       string
	Description string
	MemoryIDs   []string
	Completion  float64
}

// ArcRegistry owns the character arcs of one campaign. Arcs reference
// memories by id only; nothing here checks that the memories still exist.
type ArcRegistry struct {
	registryBase

	mu    sync.RWMutex
	arcs  map[string]*types.CharacterArc
	order []string
}

// NewArcRegistry creates an empty registry for campaignID.
func NewArcRegistry(campaignID string, opts ...Option) *ArcRegistry {
	return &ArcRegistry{
		registryBase: newBase(campaignID, opts),
		arcs:         make(map[string]*types.CharacterArc),
	}
}

// Create starts a new active arc.
func (r *ArcRegistry) Create(n NewArc) (types.CharacterArc, error) {
	if strings.TrimSpace(n.CharacterID) == "" {
		return types.CharacterArc{}, types.Invalid("character_id", "is required")
	}
	if !n.Type.Valid() {
		return types.CharacterArc{}, types.Invalid("arc_type", "unknown arc type %q", n.Type)
	}
	if err := types.ValidText("character_id", n.CharacterID); err != nil {
		return types.CharacterArc{}, err
	}
	if err := types.ValidText("description", n.Description); err != nil {
		return types.CharacterArc{}, err
	}
	now := r.stamp()
	arc := &types.CharacterArc{
		ID:          r.newID(),
		CharacterID: n.CharacterID,
		Type:        n.Type,
		Description: n.Description,
		Status:      types.ArcActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.arcs[arc.ID] = arc
	r.order = append(r.order, arc.ID)
	return arc.Clone(), nil
}

// AddMilestone appends a milestone. Completed and abandoned arcs are closed.
func (r *ArcRegistry) AddMilestone(arcID string, m NewMilestone) (types.CharacterArc, error) {
	if strings.TrimSpace(m.Title) == "" {
		return types.CharacterArc{}, types.Invalid("title", "is required")
	}
	if !validFraction(m.Completion) {
		return types.CharacterArc{}, types.Invalid("completion", "%v outside [0,1]", m.Completion)
	}
	if err := types.ValidText("title", m.Title, m.Description); err != nil {
		return types.CharacterArc{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	arc, err := r.openLocked(arcID)
	if err != nil {
		return types.CharacterArc{}, err
	}
	now := r.stamp()
	arc.Milestones = append(arc.Milestones, types.Milestone{
		Title:       m.Title,
		Description: m.Description,
		MemoryIDs:   slices.Clone(m.MemoryIDs),
		Completion:  m.Completion,
		AddedAt:     now,
	})
	arc.UpdatedAt = now
	return arc.Clone(), nil
}

// SetMilestoneCompletion updates the completion fraction of the milestone at
// index (0-based, in order of addition).
func (r *ArcRegistry) SetMilestoneCompletion(arcID string, index int, completion float64) (types.CharacterArc, error) {
	if !validFraction(completion) {
		return types.CharacterArc{}, types.Invalid("completion", "%v outside [0,1]", completion)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	arc, err := r.openLocked(arcID)
	if err != nil {
		return types.CharacterArc{}, err
	}
	if index < 0 || index >= len(arc.Milestones) {
		return types.CharacterArc{}, types.Invalid("index", "arc has %d milestones, got index %d", len(arc.Milestones), index)
	}
	arc.Milestones[index].Completion = completion
	arc.UpdatedAt = r.stamp()
	return arc.Clone(), nil
}

// SetStatus moves the arc through its lifecycle. Arcs are never deleted;
// they end as completed or abandoned.
func (r *ArcRegistry) SetStatus(arcID string, status types.ArcStatus) (types.CharacterArc, error) {
	if !status.Valid() {
		return types.CharacterArc{}, types.Invalid("status", "unknown arc status %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	arc, ok := r.arcs[arcID]
	if !ok {
		return types.CharacterArc{}, &types.NotFoundError{Kind: "arc", ID: arcID}
	}
	if !types.IsValidArcTransition(arc.Status, status) {
		return types.CharacterArc{}, &types.TransitionError{Entity: "arc", From: string(arc.Status), To: string(status)}
	}
	arc.Status = status
	arc.UpdatedAt = r.stamp()
	return arc.Clone(), nil
}

func (r *ArcRegistry) openLocked(arcID string) (*types.CharacterArc, error) {
	arc, ok := r.arcs[arcID]
	if !ok {
		return nil, &types.NotFoundError{Kind: "arc", ID: arcID}
	}
	if arc.Status == types.ArcCompleted || arc.Status == types.ArcAbandoned {
		return nil, types.Invalid("status", "arc %s is %s", arcID, arc.Status)
	}
	return arc, nil
}

// Get returns a copy of the arc.
func (r *ArcRegistry) Get(arcID string) (types.CharacterArc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	arc, ok := r.arcs[arcID]
	if !ok {
		return types.CharacterArc{}, &types.NotFoundError{Kind: "arc", ID: arcID}
	}
	return arc.Clone(), nil
}

// List returns every arc in creation order.
func (r *ArcRegistry) List() []types.CharacterArc {
	return r.filter(func(*types.CharacterArc) bool { return true })
}

// ListActiveArcs implements ArcProvider.
func (r *ArcRegistry) ListActiveArcs(ctx context.Context, campaignID string) ([]types.CharacterArc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.checkCampaign(campaignID); err != nil {
		return nil, err
	}
	return r.filter(func(a *types.CharacterArc) bool { return a.Status == types.ArcActive }), nil
}

func (r *ArcRegistry) filter(keep func(*types.CharacterArc) bool) []types.CharacterArc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.CharacterArc
	for _, id := range r.order {
		if a := r.arcs[id]; keep(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}

// Restore replaces the registry contents with arcs decoded from persisted
// state. Invalid or duplicate arcs are dropped and reported.
func (r *ArcRegistry) Restore(arcs []types.CharacterArc) []error {
	var dropped []error
	byID := make(map[string]*types.CharacterArc, len(arcs))
	order := make([]string, 0, len(arcs))
	for i := range arcs {
		a := arcs[i].Clone()
		if err := a.Check(); err != nil {
			dropped = append(dropped, fmt.Errorf("arc %d (%q): %w", i, a.ID, err))
			continue
		}
		if _, dup := byID[a.ID]; dup {
			dropped = append(dropped, fmt.Errorf("arc %d: duplicate id %q", i, a.ID))
			continue
		}
		byID[a.ID] = &a
		order = append(order, a.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.arcs = byID
	r.order = order
	return dropped
}

// validFraction also rejects NaN.
func validFraction(f float64) bool { return f >= 0 && f <= 1 }
