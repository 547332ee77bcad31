// Package catalog keeps a SQLite index of the report files a process has
// written, and prunes old generated reports from disk.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hugo-lorenzo-mato/procreport/internal/fsutil"
	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

//go:embed migrations/001_reports.sql
var migrationV1 string

// ErrNotFound is returned when no report matches a query.
var ErrNotFound = errors.New("report not found")

// Entry is a cataloged report.
type Entry struct {
	ID int64 `json:"id"`
	report.Record
}

// Store is a report catalog backed by SQLite. It implements report.Catalog.
type Store struct {
	path     string
	maxFiles int
	logger   *slog.Logger

	db *sql.DB
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithMaxFiles keeps at most n generated reports; older ones are deleted from
// disk and from the catalog after each Record. Zero disables pruning.
func WithMaxFiles(n int) Option {
	return func(s *Store) { s.maxFiles = n }
}

// WithLogger sets the logger used for pruning diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens or creates the catalog database at path.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	// One writer at a time; sqlite serializes anyway.
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// Record stores rec and prunes old generated reports when a limit is set.
func (s *Store) Record(ctx context.Context, rec report.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (report_id, filename, path, event, message, location, bytes, generated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ReportID, rec.Filename, rec.Path, rec.Event, rec.Message, rec.Location,
		rec.Bytes, rec.Generated, rec.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("inserting report %s: %w", rec.ReportID, err)
	}

	if rec.Generated && s.maxFiles > 0 {
		if _, err := s.pruneLocked(ctx, s.maxFiles); err != nil {
			return err
		}
	}
	return nil
}

// List returns up to limit reports, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, report_id, filename, path, event, message, location, bytes, generated, created_at
		FROM reports ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}
	return entries, nil
}

// Latest returns the most recent report.
func (s *Store) Latest(ctx context.Context) (Entry, error) {
	entries, err := s.List(ctx, 1)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNotFound
	}
	return entries[0], nil
}

// Get returns the report with the given report id.
func (s *Store) Get(ctx context.Context, reportID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, report_id, filename, path, event, message, location, bytes, generated, created_at
		FROM reports WHERE report_id = ?
	`, reportID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// MaxContentBytes bounds how much of a report file Content returns.
const MaxContentBytes = 16 << 20

// Content returns the text of the report with the given report id, read from
// the path it was recorded under.
func (s *Store) Content(ctx context.Context, reportID string) (Entry, []byte, error) {
	e, err := s.Get(ctx, reportID)
	if err != nil {
		return Entry{}, nil, err
	}
	data, err := fsutil.ReadFileScoped(e.Path, MaxContentBytes)
	if errors.Is(err, fs.ErrNotExist) {
		return e, nil, fmt.Errorf("%w: %s was removed", ErrNotFound, e.Path)
	}
	if err != nil {
		return e, nil, fmt.Errorf("reading report %s: %w", e.Path, err)
	}
	return e, data, nil
}

// Prune keeps the newest keep generated reports and removes the rest from
// disk and from the catalog. Explicitly named reports are never pruned.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(ctx, keep)
}

func (s *Store) pruneLocked(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path FROM reports WHERE generated = 1
		ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("selecting reports to prune: %w", err)
	}

	type victim struct {
		id   int64
		path string
	}
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.id, &v.path); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scanning report to prune: %w", err)
		}
		victims = append(victims, v)
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("closing prune query: %w", err)
	}

	removed := 0
	for _, v := range victims {
		if err := os.Remove(v.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("removing old report", "path", v.path, "error", err)
			continue
		}
		if _, err := s.db.ExecContext(ctx, "DELETE FROM reports WHERE id = ?", v.id); err != nil {
			return removed, fmt.Errorf("deleting report row: %w", err)
		}
		removed++
	}
	if removed > 0 {
		s.logger.Debug("pruned old reports", "count", removed, "keep", keep)
	}
	return removed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e       Entry
		created int64
	)
	err := row.Scan(&e.ID, &e.ReportID, &e.Filename, &e.Path, &e.Event, &e.Message,
		&e.Location, &e.Bytes, &e.Generated, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scanning report: %w", err)
	}
	e.CreatedAt = time.Unix(0, created)
	return e, nil
}

var _ report.Catalog = (*Store)(nil)
