// Package inbox hands turns from short-lived processes to the process that
// owns a campaign. Submitters drop one JSON file per turn into a shared
// directory; the owner watches it, applies each turn and removes the file.
// This keeps a single writer per campaign while other processes keep
// recording.
package inbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scrypster/chronicle/pkg/types"
)

const (
	turnExt   = ".turn"
	failedExt = ".failed"
)

// Turn is the payload of a turn file. Without Weight the receiver infers
// kind, weight and tags from Text.
type Turn struct {
	CampaignID string   `json:"campaign_id"`
	Text       string   `json:"text"`
	OwnerID    string   `json:"owner_id,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	Weight     *float64 `json:"weight,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	Emotions   []string `json:"emotions,omitempty"`
	Themes     []string `json:"themes,omitempty"`
	Time       int64    `json:"time"`
}

// Validate checks the fields every turn needs.
func (t Turn) Validate() error {
	switch {
	case t.CampaignID == "":
		return types.Invalid("campaign_id", "is required")
	case strings.TrimSpace(t.Text) == "":
		return types.Invalid("text", "is required")
	}
	return nil
}

// Record converts an explicitly weighted turn to a NewRecord.
func (t Turn) Record() types.NewRecord {
	var w float64
	if t.Weight != nil {
		w = *t.Weight
	}
	return types.NewRecord{
		Content:         t.Text,
		Kind:            types.MemoryKind(t.Kind),
		OwnerID:         t.OwnerID,
		SessionID:       t.SessionID,
		EmotionalWeight: w,
		EmotionalTags:   t.Emotions,
		ThematicTags:    t.Themes,
	}
}

// Writer drops turn files into an inbox directory.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter creates a writer for dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Submit writes t and returns the file path. The file appears under its
// final name only once complete, so a watcher never reads a partial turn.
func (w *Writer) Submit(t Turn) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return "", fmt.Errorf("inbox: mkdir %s: %w", w.dir, err)
	}
	if t.Time == 0 {
		t.Time = w.now().UnixNano()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("inbox: encode turn: %w", err)
	}

	tmp, err := os.CreateTemp(w.dir, ".pending-*")
	if err != nil {
		return "", fmt.Errorf("inbox: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("inbox: write turn: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("inbox: write turn: %w", err)
	}

	// The temp file's random suffix keeps names unique within a nanosecond.
	suffix := strings.TrimPrefix(filepath.Base(tmp.Name()), ".pending-")
	path := filepath.Join(w.dir, fmt.Sprintf("%d-%s-%s%s", t.Time, sanitizeID(t.CampaignID), suffix, turnExt))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("inbox: publish turn: %w", err)
	}
	return path, nil
}

// sanitizeID replaces characters unsafe for filenames.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.', ' ':
			return '_'
		}
		return r
	}, id)
}
