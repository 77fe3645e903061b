// Package history archives completed sweeps in a SQLite database so results
// can be compared across revisions after the state file is gone.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/odvcencio/bcp/pkg/state"
)

//go:embed schema.sql
var schemaSQL string

// migration is a schema change applied after the base schema.
type migration struct {
	Version int
	Name    string
	Apply   func(*sql.DB) error
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "sweeps_archived_at_index",
		Apply: func(db *sql.DB) error {
			_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_sweeps_archived_at ON sweeps(archived_at)`)
			return err
		},
	},
}

// Archive is the SQLite-backed history of completed sweeps.
type Archive struct {
	db  *sql.DB
	now func() time.Time
}

// Sweep summarises one archived sweep.
type Sweep struct {
	ID         string        `json:"id"`
	Manifest   string        `json:"manifest"`
	Revision   string        `json:"revision,omitempty"`
	Cases      int           `json:"cases"`
	ArchivedAt time.Time     `json:"archived_at"`
	BestLabel  string        `json:"best_label"`
	BestTotal  time.Duration `json:"best_total_ns"`
}

// Row is one archived result.
type Row struct {
	SweepID string        `json:"sweep_id"`
	Case    int           `json:"case"`
	Label   string        `json:"label"`
	Build   time.Duration `json:"build_ns"`
	Run     time.Duration `json:"run_ns"`
}

// Total is build plus run time.
func (r Row) Total() time.Duration {
	return r.Build + r.Run
}

// Open creates or opens the archive at path.
func Open(path string) (*Archive, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create history directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	// One writer; the CLI never needs more.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure history (%s): %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Archive{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (a *Archive) Close() error {
	return a.db.Close()
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := m.Apply(db); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the latest applied migration.
func (a *Archive) SchemaVersion() (int, error) {
	var version int
	err := a.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Archive stores a completed sweep. Archiving the same sweep again replaces
// its rows.
func (a *Archive) Archive(ctx context.Context, st *state.State) error {
	if !st.Complete() {
		return fmt.Errorf("sweep %s is not complete", st.ID)
	}

	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = a.archive(ctx, st)
		if err == nil {
			return nil
		}
		if isBusyError(err) && attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		return err
	}
	return err
}

func (a *Archive) archive(ctx context.Context, st *state.State) (err error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM results WHERE sweep_id = ?`, st.ID); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sweeps (id, manifest, revision, cases, archived_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			manifest = excluded.manifest,
			revision = excluded.revision,
			cases = excluded.cases,
			archived_at = excluded.archived_at`,
		st.ID, st.Meta.Manifest, st.Meta.Revision, len(st.Plan.Cases), a.now().UTC())
	if err != nil {
		return fmt.Errorf("insert sweep: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (sweep_id, case_index, label, overrides, build_ns, run_ns)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare results: %w", err)
	}
	defer stmt.Close()

	for i, exp := range st.Plan.Cases {
		overrides, mErr := json.Marshal(exp.Overrides)
		if mErr != nil {
			err = fmt.Errorf("encode overrides: %w", mErr)
			return err
		}
		r := st.Results[i]
		if _, err = stmt.ExecContext(ctx, st.ID, i, exp.Label(), string(overrides), int64(r.Build), int64(r.Run)); err != nil {
			return fmt.Errorf("insert result %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

// Sweeps lists archived sweeps, newest first, each with its fastest case.
// limit <= 0 means all.
func (a *Archive) Sweeps(ctx context.Context, limit int) ([]Sweep, error) {
	query := `
		SELECT s.id, s.manifest, s.revision, s.cases, s.archived_at,
			COALESCE((SELECT r.label FROM results r WHERE r.sweep_id = s.id
				ORDER BY r.build_ns + r.run_ns, r.case_index LIMIT 1), ''),
			COALESCE((SELECT MIN(r.build_ns + r.run_ns) FROM results r WHERE r.sweep_id = s.id), 0)
		FROM sweeps s
		ORDER BY s.archived_at DESC, s.id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sweeps: %w", err)
	}
	defer rows.Close()

	var sweeps []Sweep
	for rows.Next() {
		var s Sweep
		var best int64
		if err := rows.Scan(&s.ID, &s.Manifest, &s.Revision, &s.Cases, &s.ArchivedAt, &s.BestLabel, &best); err != nil {
			return nil, fmt.Errorf("scan sweep: %w", err)
		}
		s.BestTotal = time.Duration(best)
		sweeps = append(sweeps, s)
	}
	return sweeps, rows.Err()
}

// Results returns the rows of one sweep in plan order.
func (a *Archive) Results(ctx context.Context, sweepID string) ([]Row, error) {
	return a.queryRows(ctx, `
		SELECT sweep_id, case_index, label, build_ns, run_ns FROM results
		WHERE sweep_id = ? ORDER BY case_index`, sweepID)
}

// ByLabel returns every archived measurement of one experiment across
// sweeps, oldest first.
func (a *Archive) ByLabel(ctx context.Context, label string) ([]Row, error) {
	return a.queryRows(ctx, `
		SELECT r.sweep_id, r.case_index, r.label, r.build_ns, r.run_ns
		FROM results r JOIN sweeps s ON s.id = r.sweep_id
		WHERE r.label = ? ORDER BY s.archived_at, s.id`, strings.TrimSpace(label))
}

func (a *Archive) queryRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var build, run int64
		if err := rows.Scan(&r.SweepID, &r.Case, &r.Label, &build, &run); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Build = time.Duration(build)
		r.Run = time.Duration(run)
		out = append(out, r)
	}
	return out, rows.Err()
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}
