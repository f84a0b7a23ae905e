// Package report stores the outcome of package reads in a SQLite database
// so that validation history can be inspected later.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/threemf/core/errors"
	"github.com/FocuswithJustin/threemf/core/sqlite"
	"github.com/FocuswithJustin/threemf/core/threemf"
	"github.com/FocuswithJustin/threemf/core/vlog"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	path        TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	ok          INTEGER NOT NULL,
	fatal       TEXT NOT NULL DEFAULT '',
	models      INTEGER NOT NULL DEFAULT 0,
	thumbnails  INTEGER NOT NULL DEFAULT 0,
	textures    INTEGER NOT NULL DEFAULT 0,
	warnings    INTEGER NOT NULL DEFAULT 0,
	errors      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
CREATE TABLE IF NOT EXISTS events (
	run_id   TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	seq      INTEGER NOT NULL,
	severity TEXT NOT NULL,
	context  TEXT NOT NULL,
	message  TEXT NOT NULL,
	kind     TEXT NOT NULL DEFAULT '',
	page     INTEGER,
	PRIMARY KEY (run_id, seq)
);
`

// Run summarizes one read of one package.
type Run struct {
	ID         string        `json:"id"`
	Path       string        `json:"path"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	OK         bool          `json:"ok"`
	Fatal      string        `json:"fatal,omitempty"`
	Models     int           `json:"models"`
	Thumbnails int           `json:"thumbnails"`
	Textures   int           `json:"textures"`
	Warnings   int           `json:"warnings"`
	Errors     int           `json:"errors"`
}

// Event is a stored validation event.
type Event struct {
	RunID    string `json:"run_id"`
	Seq      int    `json:"seq"`
	Severity string `json:"severity"`
	Context  string `json:"context"`
	Message  string `json:"message"`
	Kind     string `json:"kind,omitempty"`
	Page     int    `json:"page,omitempty"`
}

// NewRun summarizes the result of threemf.Read. id is normally the read id
// of the document; a new one is generated when empty.
func NewRun(id, path string, started time.Time, doc *threemf.Document, log *vlog.Log, err error) Run {
	if id == "" {
		id = uuid.NewString()
	}
	r := Run{
		ID:        id,
		Path:      path,
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
		OK:        err == nil,
	}
	if err != nil {
		r.Fatal = err.Error()
	}
	if doc != nil {
		r.Models = len(doc.Models())
		r.Thumbnails = len(doc.Thumbnails())
		r.Textures = len(doc.Textures())
	}
	if log != nil {
		r.Warnings = log.Count(vlog.SeverityWarning)
		r.Errors = log.Count(vlog.SeverityError)
	}
	return r
}

// EventsFromLog converts the events of log for storage under runID.
func EventsFromLog(runID string, log *vlog.Log) []Event {
	if log == nil {
		return nil
	}
	var out []Event
	for i, ev := range log.Events() {
		e := Event{
			RunID:    runID,
			Seq:      i,
			Severity: ev.Severity.String(),
			Context:  ev.Context(),
			Message:  ev.Message,
		}
		if ev.Kind != nil {
			e.Kind = ev.Kind.Error()
		}
		if page, ok := ev.Page(); ok {
			e.Page = page
		}
		out = append(out, e)
	}
	return out
}

// Store is a SQLite backed run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the report database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlite.OpenFile(path)
	if err != nil {
		return nil, errors.NewIO("open report database", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.NewIO("create report schema", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores run and its events in one transaction.
func (s *Store) Save(ctx context.Context, run Run, events []Event) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, path, started_at, duration_ns, ok, fatal, models, thumbnails, textures, warnings, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Path, run.StartedAt.UnixNano(), int64(run.Duration), run.OK, run.Fatal,
		run.Models, run.Thumbnails, run.Textures, run.Warnings, run.Errors)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, severity, context, message, kind, page) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()
	for _, ev := range events {
		var page any
		if ev.Page != 0 {
			page = ev.Page
		}
		if _, err = stmt.ExecContext(ctx, run.ID, ev.Seq, ev.Severity, ev.Context, ev.Message, ev.Kind, page); err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Seq, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const runColumns = `id, path, started_at, duration_ns, ok, fatal, models, thumbnails, textures, warnings, errors`

// List returns up to limit runs, newest first. A limit <= 0 returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
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
	return runs, rows.Err()
}

// Get returns the run with the given id.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return Run{}, errors.NewNotFound("run", id)
	}
	return r, err
}

// Events returns the events of a run in recorded order.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, severity, context, message, kind, page FROM events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var page sql.NullInt64
		if err := rows.Scan(&e.RunID, &e.Seq, &e.Severity, &e.Context, &e.Message, &e.Kind, &page); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Page = int(page.Int64)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Delete removes a run and its events.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("run", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r        Run
		started  int64
		duration int64
	)
	err := sc.Scan(&r.ID, &r.Path, &started, &duration, &r.OK, &r.Fatal,
		&r.Models, &r.Thumbnails, &r.Textures, &r.Warnings, &r.Errors)
	if err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.StartedAt = time.Unix(0, started).UTC()
	r.Duration = time.Duration(duration)
	return r, nil
}
