package campaign

import (
	"github.com/scrypster/chronicle/internal/narrative"
	"github.com/scrypster/chronicle/pkg/types"
)

// mutate runs fn under the campaign lock and marks the campaign dirty when
// fn succeeds. Closed campaigns return ErrClosed without calling fn.
func mutate[T any](c *Campaign, fn func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn()
	if err == nil {
		c.touchLocked(true)
	}
	return v, err
}

// CreateArc starts a character arc.
func (c *Campaign) CreateArc(n narrative.NewArc) (types.CharacterArc, error) {
	return mutate(c, func() (types.CharacterArc, error) { return c.arcs.Create(n) })
}

// AddMilestone appends a milestone to an arc.
func (c *Campaign) AddMilestone(arcID string, m narrative.NewMilestone) (types.CharacterArc, error) {
	return mutate(c, func() (types.CharacterArc, error) { return c.arcs.AddMilestone(arcID, m) })
}

// SetMilestoneCompletion updates the completion of the milestone at index.
func (c *Campaign) SetMilestoneCompletion(arcID string, index int, completion float64) (types.CharacterArc, error) {
	return mutate(c, func() (types.CharacterArc, error) {
		return c.arcs.SetMilestoneCompletion(arcID, index, completion)
	})
}

// SetArcStatus moves an arc through its lifecycle.
func (c *Campaign) SetArcStatus(arcID string, status types.ArcStatus) (types.CharacterArc, error) {
	return mutate(c, func() (types.CharacterArc, error) { return c.arcs.SetStatus(arcID, status) })
}

// OpenThread opens a plot thread.
func (c *Campaign) OpenThread(n narrative.NewThread) (types.PlotThread, error) {
	return mutate(c, func() (types.PlotThread, error) { return c.threads.Open(n) })
}

// AddThreadUpdate records progress on a thread.
func (c *Campaign) AddThreadUpdate(threadID string, u narrative.NewUpdate) (types.PlotThread, error) {
	return mutate(c, func() (types.PlotThread, error) { return c.threads.AddUpdate(threadID, u) })
}

// ResolveThread closes a thread with its resolution.
func (c *Campaign) ResolveThread(threadID, resolution string, memoryIDs []string) (types.PlotThread, error) {
	return mutate(c, func() (types.PlotThread, error) {
		return c.threads.Resolve(threadID, resolution, memoryIDs)
	})
}

// AbandonThread drops a thread.
func (c *Campaign) AbandonThread(threadID, reason string) (types.PlotThread, error) {
	return mutate(c, func() (types.PlotThread, error) { return c.threads.Abandon(threadID, reason) })
}

// SetThreadMetadata merges md into the thread metadata.
func (c *Campaign) SetThreadMetadata(threadID string, md map[string]any) (types.PlotThread, error) {
	return mutate(c, func() (types.PlotThread, error) { return c.threads.SetMetadata(threadID, md) })
}
