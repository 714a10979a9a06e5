// Package sqlite provides a SQLite implementation of storage.StateStore.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/chronicle/internal/storage"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// StateStore implements storage.StateStore using SQLite.
type StateStore struct {
	db  *sql.DB
	now func() time.Time
}

// Option customizes a StateStore.
type Option func(*StateStore)

// WithClock sets the time source for saved_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *StateStore) { s.now = now }
}

// NewStateStore opens (or creates) a SQLite state store with WAL
// self-healing. If the initial open fails due to stale WAL files left behind
// by a crashed process, it verifies no other process holds them and retries
// once after removing the stale -shm/-wal files.
func NewStateStore(dsn string, opts ...Option) (*StateStore, error) {
	store, err := openStateStore(dsn)
	if err != nil {
		if !isRecoverableWALError(err) {
			return nil, err
		}
		dbPath := dbPathFromDSN(dsn)
		if dbPath == "" || !isWALStale(dbPath) {
			return nil, err
		}
		removeStaleWAL(dbPath)

		var retryErr error
		store, retryErr = openStateStore(dsn)
		if retryErr != nil {
			return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
		}
		log.Warn("sqlite: recovered from stale WAL files", "path", dbPath)
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// openStateStore opens a SQLite database, configures WAL mode, and migrates the schema.
func openStateStore(dsn string) (*StateStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	source, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrations: %w", err)
	}
	mgr, err := storage.NewMigrationManager(db, source, storage.DialectSQLite)
	if err == nil {
		err = mgr.Up()
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to migrate schema: %w", err)
	}

	return &StateStore{db: db, now: time.Now}, nil
}

// SaveState implements storage.StateStore.
func (s *StateStore) SaveState(ctx context.Context, campaignID string, state []byte) error {
	if campaignID == "" {
		return fmt.Errorf("sqlite: campaign id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign_state (campaign_id, state, checksum, size_bytes, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(campaign_id) DO UPDATE SET
			state = excluded.state,
			checksum = excluded.checksum,
			size_bytes = excluded.size_bytes,
			saved_at = excluded.saved_at`,
		campaignID, state, storage.Checksum(state), len(state), s.now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite: failed to save campaign %s: %w", campaignID, err)
	}
	return nil
}

// LoadState implements storage.StateStore.
func (s *StateStore) LoadState(ctx context.Context, campaignID string) ([]byte, error) {
	var (
		state    []byte
		checksum string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT state, checksum FROM campaign_state WHERE campaign_id = ?", campaignID,
	).Scan(&state, &checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load campaign %s: %w", campaignID, err)
	}
	if storage.Checksum(state) != checksum {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, storage.ErrChecksum)
	}
	return state, nil
}

// DeleteState implements storage.StateStore.
func (s *StateStore) DeleteState(ctx context.Context, campaignID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM campaign_state WHERE campaign_id = ?", campaignID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete campaign %s: %w", campaignID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("campaign %s: %w", campaignID, storage.ErrNotFound)
	}
	return nil
}

// ListCampaigns implements storage.StateStore.
func (s *StateStore) ListCampaigns(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[storage.CampaignInfo], error) {
	opts.Normalize()

	where := ""
	var args []any
	if !opts.SavedBefore.IsZero() {
		where = " WHERE saved_at < ?"
		args = append(args, opts.SavedBefore.UTC().UnixNano())
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM campaign_state"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count campaigns: %w", err)
	}

	// SortBy and SortOrder are whitelisted by Normalize.
	query := fmt.Sprintf(
		"SELECT campaign_id, checksum, size_bytes, saved_at FROM campaign_state%s ORDER BY %s %s, campaign_id ASC LIMIT ? OFFSET ?",
		where, opts.SortBy, strings.ToUpper(opts.SortOrder))
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var items []storage.CampaignInfo
	for rows.Next() {
		var (
			info  storage.CampaignInfo
			saved int64
		)
		if err := rows.Scan(&info.ID, &info.Checksum, &info.Bytes, &saved); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan campaign: %w", err)
		}
		info.SavedAt = time.Unix(0, saved).UTC()
		items = append(items, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to list campaigns: %w", err)
	}

	return &storage.PaginatedResult[storage.CampaignInfo]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// Close checkpoints the WAL and closes the database.
func (s *StateStore) Close() error {
	if s.db == nil {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Warn("sqlite: WAL checkpoint on close failed (non-fatal)", "err", err)
	}

	return s.db.Close()
}

// dbPathFromDSN extracts the file path from a DSN, or "" for in-memory
// databases.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}

	return dsn
}

func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale reports whether WAL side files exist and no process holds them.
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		// lsof not available (e.g. Alpine Docker); assume not stale.
		return false
	}

	output, err := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath).Output()
	if err != nil {
		// lsof returns exit code 1 when no files are open, so the files are stale.
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("sqlite: failed to remove stale WAL file", "path", path, "err", err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
