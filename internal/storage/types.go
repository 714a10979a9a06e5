package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrChecksum indicates a stored state blob no longer matches the
	// checksum written with it.
	ErrChecksum = errors.New("state checksum mismatch")
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// CampaignInfo describes one persisted campaign without loading its state.
type CampaignInfo struct {
	ID       string    `json:"id"`
	SavedAt  time.Time `json:"saved_at"`
	Bytes    int       `json:"bytes"`
	Checksum string    `json:"checksum"`
}

// ListOptions provides pagination and filtering options for list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 20, max: 200).
	Limit int

	// SortBy specifies the column to sort by ("campaign_id", "saved_at" or "size_bytes").
	SortBy string

	// SortOrder specifies the sort direction ("asc" or "desc", default: "desc").
	SortOrder string

	// SavedBefore keeps campaigns last saved strictly before this time.
	// Zero value means no upper bound.
	SavedBefore time.Time
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection
	switch o.SortBy {
	case "campaign_id", "saved_at", "size_bytes":
	default:
		o.SortBy = "saved_at"
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Page < 1 {
		o.Page = 1
	}

	if o.Limit < 1 {
		o.Limit = 20
	}

	if o.Limit > 200 {
		o.Limit = 200
	}
}

// Offset calculates the offset for SQL queries based on page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// Checksum returns the hex SHA-256 of a state blob.
func Checksum(state []byte) string {
	sum := sha256.Sum256(state)
	return hex.EncodeToString(sum[:])
}
