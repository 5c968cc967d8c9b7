// Package history keeps summaries of past runs in a SQLite database so that
// trends can be listed without re-running the tools.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/gauntlet/internal/status"
	"github.com/steveyegge/gauntlet/internal/types"
)

// ErrRunNotFound is returned when no stored run matches.
var ErrRunNotFound = errors.New("run not found")

// Run is the stored summary of one run.
type Run struct {
	ID          string
	Profile     string
	StartedAt   time.Time
	CompletedAt time.Time
	Status      types.ExitStatus
	Cancelled   bool
	Stats       types.Stats
	Packages    []PackageRun
}

// PackageRun is the stored summary of one package within a run.
type PackageRun struct {
	Name    string
	Path    string
	Issues  int
	Skipped bool
	Error   string
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path and brings
// its schema up to date.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save records report. Saving the same run ID twice is an error.
func (s *Store) Save(ctx context.Context, report *types.RunReport) error {
	st := report.Stats()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, profile, started_at, completed_at, exit_status, cancelled,
			packages, issues, errors, warnings, infos, suppressed, duplicates,
			plugins_run, plugins_failed, plugins_timed_out
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.Profile, formatTime(report.StartedAt), formatTime(report.CompletedAt),
		int(status.Resolve(report)), report.Cancelled,
		st.Packages, st.Issues, st.Errors, st.Warnings, st.Infos, st.Suppressed, st.Duplicates,
		st.PluginsRun, st.PluginsFailed, st.PluginsTimedOut,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.ID, err)
	}

	for i, pkg := range report.Packages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_packages (run_id, position, name, path, issues, skipped, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			report.ID, i, pkg.Name, pkg.Path, len(pkg.Issues), pkg.Skipped, pkg.Error,
		); err != nil {
			return fmt.Errorf("failed to insert package %s: %w", pkg.Name, err)
		}
	}
	return tx.Commit()
}

const runColumns = `
	id, profile, started_at, completed_at, exit_status, cancelled,
	packages, issues, errors, warnings, infos, suppressed, duplicates,
	plugins_run, plugins_failed, plugins_timed_out`

// List returns the most recent runs, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT" + runColumns + " FROM runs ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Packages, err = s.packages(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Latest returns the most recent run or ErrRunNotFound.
func (s *Store) Latest(ctx context.Context) (*Run, error) {
	runs, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return &runs[0], nil
}

// Get returns the run with the given ID or ErrRunNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT"+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if r.Packages, err = s.packages(ctx, id); err != nil {
		return nil, err
	}
	return &r, nil
}

// Prune deletes runs that started before cutoff, with their package rows,
// and returns how many runs were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) packages(ctx context.Context, runID string) ([]PackageRun, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, path, issues, skipped, error FROM run_packages WHERE run_id = ? ORDER BY position", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read packages of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []PackageRun
	for rows.Next() {
		var p PackageRun
		if err := rows.Scan(&p.Name, &p.Path, &p.Issues, &p.Skipped, &p.Error); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r                 Run
		started, finished string
		exit              int
	)
	err := row.Scan(
		&r.ID, &r.Profile, &started, &finished, &exit, &r.Cancelled,
		&r.Stats.Packages, &r.Stats.Issues, &r.Stats.Errors, &r.Stats.Warnings, &r.Stats.Infos,
		&r.Stats.Suppressed, &r.Stats.Duplicates,
		&r.Stats.PluginsRun, &r.Stats.PluginsFailed, &r.Stats.PluginsTimedOut,
	)
	if err != nil {
		return Run{}, err
	}
	r.Status = types.ExitStatus(exit)
	if r.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if r.CompletedAt, err = parseTime(finished); err != nil {
		return Run{}, err
	}
	return r, nil
}

// Times are stored as fixed-width UTC text so that they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}
