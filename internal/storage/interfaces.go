// Package storage persists campaign state documents.
//
// A campaign's state is written by exactly one process at a time: the
// process that has the campaign loaded. Implementations serialise writes
// within a process but do not coordinate between processes; two processes
// saving the same campaign race and the last write wins.
package storage

import (
	"context"
)

// StateStore persists one opaque state blob per campaign.
//
// Implementations: sqlite.StateStore, postgres.StateStore.
type StateStore interface {
	// SaveState creates or replaces the state of campaignID.
	SaveState(ctx context.Context, campaignID string, state []byte) error

	// LoadState returns the last saved state of campaignID.
	// Returns ErrNotFound if nothing was saved, ErrChecksum if the stored
	// blob is damaged.
	LoadState(ctx context.Context, campaignID string) ([]byte, error)

	// DeleteState removes the state of campaignID.
	// Returns ErrNotFound if nothing was saved.
	DeleteState(ctx context.Context, campaignID string) error

	// ListCampaigns lists persisted campaigns with pagination.
	ListCampaigns(ctx context.Context, opts ListOptions) (*PaginatedResult[CampaignInfo], error)

	// Close releases database resources.
	Close() error
}
