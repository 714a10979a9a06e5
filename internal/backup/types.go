// Package backup archives every persisted campaign state into timestamped
// files with tiered retention and integrity verification, and restores
// campaigns from those archives.
package backup

import (
	"time"
)

// Config holds backup service configuration.
type Config struct {
	// Dir is the directory where archives are stored
	Dir string

	// Retention defines how many archives to keep at each age tier
	Retention RetentionPolicy

	// Verify re-reads and checks every archive after writing it (default: true)
	Verify bool
}

// RetentionPolicy defines how many archives to keep at each tier.
// Archives are categorized by age:
// - Hourly: archives less than 24 hours old
// - Daily: archives between 1-7 days old
// - Weekly: archives between 7-30 days old
// - Monthly: archives between 30-365 days old
// Archives older than a year are always removed.
type RetentionPolicy struct {
	Hourly  int // default: 24
	Daily   int // default: 7
	Weekly  int // default: 4
	Monthly int // default: 12
}

// DefaultRetention returns the default tiers.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12}
}

// Info describes one archive file.
type Info struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Result is the outcome of one backup.
type Result struct {
	Path      string        `json:"path"`
	Campaigns int           `json:"campaigns"`
	Size      int64         `json:"size"`
	Duration  time.Duration `json:"duration"`
	Verified  bool          `json:"verified"`
	Removed   int           `json:"removed"`
}

// archive is the on-disk format: the raw state blob of every campaign with
// the checksum it had in storage.
type archive struct {
	CreatedAt time.Time       `json:"created_at"`
	Campaigns []archivedState `json:"campaigns"`
}

type archivedState struct {
	ID       string `json:"id"`
	Checksum string `json:"checksum"`
	State    []byte `json:"state"`
}
