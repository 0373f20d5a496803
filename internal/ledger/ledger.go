// Package ledger keeps a SQLite history of job runs.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/forPelevin/automv/internal/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by Get for an unknown job id.
var ErrNotFound = errors.New("ledger: job not found")

// Row statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// InterruptedError is stored for rows left running by a previous process.
const InterruptedError = "interrupted"

const (
	timeLayout   = "2006-01-02T15:04:05.000000000Z"
	defaultLimit = 50
)

// Entry is one job row.
type Entry struct {
	ID              string     `json:"id"`
	VideoPath       string     `json:"video_path"`
	AudioPath       string     `json:"audio_path"`
	OutputPath      string     `json:"output_path,omitempty"`
	ProcessedPath   string     `json:"processed_path,omitempty"`
	Status          string     `json:"status"`
	FailedStage     string     `json:"failed_stage,omitempty"`
	Error           string     `json:"error,omitempty"`
	SegmentsPlanned int        `json:"segments_planned"`
	Segments        int        `json:"segments"`
	TargetDuration  float64    `json:"target_duration"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

type Store struct {
	conn *sql.DB
	log  zerolog.Logger
}

// Open opens or creates the ledger at path, applies pending migrations and
// marks rows left running by a previous process as failed.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s := &Store{conn: conn, log: log.With().Str("component", "ledger").Logger()}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if n, err := s.markInterrupted(); err != nil {
		s.log.Warn().Err(err).Msg("failed to mark interrupted jobs")
	} else if n > 0 {
		s.log.Warn().Int64("jobs", n).Msg("marked interrupted jobs as failed")
	}
	return s, nil
}

func (s *Store) Close() error { return s.conn.Close() }

func (s *Store) migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, m := range entries {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if s.migrationApplied(name) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		s.log.Debug().Str("name", name).Msg("applied migration")
	}
	return nil
}

func (s *Store) migrationApplied(name string) bool {
	var exists int
	if err := s.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists); err != nil {
		return false
	}
	var applied int
	err := s.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

func (s *Store) markInterrupted() (int64, error) {
	res, err := s.conn.Exec(
		`UPDATE jobs SET status = ?, error = ?, finished_at = ? WHERE status = ?`,
		StatusFailed, InterruptedError, formatTime(time.Now()), StatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Start records r as running. Re-starting an id overwrites the row.
func (s *Store) Start(ctx context.Context, r types.JobResult) error {
	started := r.Started
	if started.IsZero() {
		started = time.Now()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO jobs (id, video_path, audio_path, output_path, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			video_path = excluded.video_path,
			audio_path = excluded.audio_path,
			output_path = excluded.output_path,
			status = excluded.status,
			failed_stage = '',
			error = '',
			started_at = excluded.started_at,
			finished_at = NULL`,
		r.JobID, r.VideoPath, r.AudioPath, r.OutputPath, StatusRunning, formatTime(started))
	if err != nil {
		return fmt.Errorf("ledger start %s: %w", r.JobID, err)
	}
	return nil
}

// Finish stores the outcome of r, inserting the row if Start was never
// recorded.
func (s *Store) Finish(ctx context.Context, r types.JobResult) error {
	status, failedStage, errMsg := StatusSucceeded, "", ""
	if !r.OK() {
		status = StatusFailed
		failedStage = string(types.StageOf(r.Err))
		if r.Err != nil {
			errMsg = r.Err.Error()
		}
	}
	started, finished := r.Started, r.Finished
	if finished.IsZero() {
		finished = time.Now()
	}
	if started.IsZero() {
		started = finished
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO jobs (id, video_path, audio_path, output_path, processed_path, status, failed_stage, error,
			segments_planned, segments, target_duration, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			output_path = excluded.output_path,
			processed_path = excluded.processed_path,
			status = excluded.status,
			failed_stage = excluded.failed_stage,
			error = excluded.error,
			segments_planned = excluded.segments_planned,
			segments = excluded.segments,
			target_duration = excluded.target_duration,
			finished_at = excluded.finished_at`,
		r.JobID, r.VideoPath, r.AudioPath, r.OutputPath, r.ProcessedPath, status, failedStage, errMsg,
		r.SegmentsPlanned, r.Segments, r.TargetDuration, formatTime(started), formatTime(finished))
	if err != nil {
		return fmt.Errorf("ledger finish %s: %w", r.JobID, err)
	}
	return nil
}

const selectColumns = `id, video_path, audio_path, output_path, processed_path, status, failed_stage, error,
	segments_planned, segments, target_duration, started_at, finished_at`

// List returns up to limit rows, newest first. limit <= 0 means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM jobs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM jobs WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e        Entry
		started  string
		finished sql.NullString
	)
	if err := sc.Scan(&e.ID, &e.VideoPath, &e.AudioPath, &e.OutputPath, &e.ProcessedPath, &e.Status,
		&e.FailedStage, &e.Error, &e.SegmentsPlanned, &e.Segments, &e.TargetDuration, &started, &finished); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return Entry{}, fmt.Errorf("job %s: bad started_at %q: %w", e.ID, started, err)
	}
	e.StartedAt = t
	if finished.Valid {
		ft, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return Entry{}, fmt.Errorf("job %s: bad finished_at %q: %w", e.ID, finished.String, err)
		}
		e.FinishedAt = &ft
	}
	return e, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }
