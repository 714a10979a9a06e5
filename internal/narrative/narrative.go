// Package narrative tracks character arcs and plot threads for one campaign
// and rolls them up, together with recent memories, into the read-only
// Snapshot consumed by the orchestration engine.
package narrative

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/chronicle/pkg/types"
)

// ArcProvider lists the active arcs of a campaign.
type ArcProvider interface {
	ListActiveArcs(ctx context.Context, campaignID string) ([]types.CharacterArc, error)
}

// ThreadProvider lists the open and advancing threads of a campaign.
type ThreadProvider interface {
	ListOpenThreads(ctx context.Context, campaignID string) ([]types.PlotThread, error)
}

// Option customizes a registry.
type Option func(*registryBase)

// WithClock sets the time source for creation and update stamps.
func WithClock(now func() time.Time) Option {
	return func(b *registryBase) { b.now = now }
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(b *registryBase) { b.newID = newID }
}

type registryBase struct {
	campaignID string
	now        func() time.Time
	newID      func() string
}

func newBase(campaignID string, opts []Option) registryBase {
	b := registryBase{campaignID: campaignID, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *registryBase) stamp() time.Time { return b.now().UTC() }

// checkCampaign rejects lookups for a campaign this registry does not hold.
// An empty campaignID matches.
func (b *registryBase) checkCampaign(campaignID string) error {
	if campaignID != "" && campaignID != b.campaignID {
		return &types.NotFoundError{Kind: "campaign", ID: campaignID}
	}
	return nil
}
