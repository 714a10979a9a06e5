package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scrypster/chronicle/internal/storage"
)

// Service archives the campaigns of one StateStore.
type Service struct {
	store     storage.StateStore
	dir       string
	retention RetentionPolicy
	verify    bool
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock sets the time source used to name archives and age them.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a backup service, creating cfg.Dir if needed. Zero
// retention tiers take their defaults.
func NewService(store storage.StateStore, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("backup: state store is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("backup: directory is required")
	}
	def := DefaultRetention()
	r := cfg.Retention
	if r.Hourly == 0 {
		r.Hourly = def.Hourly
	}
	if r.Daily == 0 {
		r.Daily = def.Daily
	}
	if r.Weekly == 0 {
		r.Weekly = def.Weekly
	}
	if r.Monthly == 0 {
		r.Monthly = def.Monthly
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	s := &Service{store: store, dir: cfg.Dir, retention: r, verify: cfg.Verify, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BackupNow writes one archive holding every persisted campaign, verifies it
// when enabled and applies the retention policy. Campaigns whose stored blob
// fails its checksum are logged and left out.
func (s *Service) BackupNow(ctx context.Context) (*Result, error) {
	start := time.Now()
	at := s.now().UTC()

	doc := archive{CreatedAt: at}
	opts := storage.ListOptions{Page: 1, Limit: 100, SortBy: "campaign_id", SortOrder: "asc"}
	for {
		page, err := s.store.ListCampaigns(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("backup: list campaigns: %w", err)
		}
		for _, info := range page.Items {
			blob, err := s.store.LoadState(ctx, info.ID)
			if err != nil {
				log.Warn("backup: skipping campaign", "campaign", info.ID, "err", err)
				continue
			}
			doc.Campaigns = append(doc.Campaigns, archivedState{ID: info.ID, Checksum: storage.Checksum(blob), State: blob})
		}
		if !page.HasMore {
			break
		}
		opts.Page++
	}

	data, err := json.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("backup: encode archive: %w", err)
	}
	path := filepath.Join(s.dir, archiveName(at))
	if err := writeFileSync(path, data); err != nil {
		return nil, err
	}

	result := &Result{Path: path, Campaigns: len(doc.Campaigns), Size: int64(len(data))}
	if s.verify {
		if _, err := readArchive(path); err != nil {
			return result, fmt.Errorf("backup verification failed: %w", err)
		}
		result.Verified = true
	}

	removed, err := applyRetention(s.dir, s.retention, at)
	if err != nil {
		log.Warn("backup: failed to apply retention policy", "err", err)
	}
	result.Removed = removed
	result.Duration = time.Since(start)

	log.Info("backup completed", "path", path, "campaigns", result.Campaigns, "bytes", result.Size, "removed", removed)
	return result, nil
}

// List returns the archives in the backup directory, newest first.
func (s *Service) List() ([]Info, error) {
	return listArchives(s.dir)
}

// Restore verifies the archive at path and writes every campaign in it back
// to the store, replacing their current state. It returns the restored ids.
func (s *Service) Restore(ctx context.Context, path string) ([]string, error) {
	doc, err := readArchive(path)
	if err != nil {
		return nil, fmt.Errorf("backup verification failed: %w", err)
	}
	ids := make([]string, 0, len(doc.Campaigns))
	for _, c := range doc.Campaigns {
		if err := s.store.SaveState(ctx, c.ID, c.State); err != nil {
			return ids, fmt.Errorf("restore campaign %s: %w", c.ID, err)
		}
		ids = append(ids, c.ID)
	}
	log.Info("campaigns restored from backup", "path", path, "count", len(ids))
	return ids, nil
}

// readArchive decodes an archive and checks every campaign checksum.
func readArchive(path string) (*archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc archive
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for _, c := range doc.Campaigns {
		if c.ID == "" {
			return nil, errors.New("archived campaign without id")
		}
		if storage.Checksum(c.State) != c.Checksum {
			return nil, fmt.Errorf("campaign %s: %w", c.ID, storage.ErrChecksum)
		}
	}
	return &doc, nil
}

// writeFileSync writes data to path through a temporary file so a crash
// never leaves a truncated archive behind.
func writeFileSync(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("backup: create archive: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("backup: write archive: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("backup: sync archive: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("backup: close archive: %w", err)
	}
	return os.Rename(tmp, path)
}
