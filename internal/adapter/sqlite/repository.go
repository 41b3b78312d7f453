package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cwygoda/chaptercast/internal/domain"
	_ "modernc.org/sqlite"
)

// RecoveredReason is recorded on runs that were processing when the server stopped.
const RecoveredReason = "interrupted by restart"

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    url        TEXT NOT NULL,
    format     TEXT NOT NULL,
    quality    TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'pending',
    title      TEXT,
    video_id   TEXT,
    artifact   TEXT,
    warnings   TEXT,
    error      TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

CREATE TABLE IF NOT EXISTS progress (
    job_id     INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    seq        INTEGER NOT NULL,
    line       TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (job_id, seq)
);
`

const jobColumns = `id, url, format, quality, status, COALESCE(title, ''), COALESCE(video_id, ''),
	COALESCE(artifact, ''), COALESCE(warnings, ''), COALESCE(error, ''), created_at, updated_at`

// Repository implements domain.JobRepository using SQLite.
type Repository struct {
	db *sql.DB
}

// New creates a new SQLite repository, initializing the schema if needed.
func New(dbPath string) (*Repository, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	// The worker writes progress while HTTP handlers read it.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new pending job.
func (r *Repository) Create(ctx context.Context, url string, opts domain.Options) (*domain.Job, error) {
	now := time.Now()
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (url, format, quality, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		url, opts.Format, opts.Quality, domain.StatusPending, now, now,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &domain.Job{
		ID:        id,
		URL:       url,
		Format:    opts.Format,
		Quality:   opts.Quality,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Get retrieves a job by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// List returns the most recent jobs, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]domain.Job, error) {
	return r.query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY id DESC LIMIT ?`, limit)
}

// FindPending returns pending jobs up to limit, oldest first.
func (r *Repository) FindPending(ctx context.Context, limit int) ([]domain.Job, error) {
	return r.query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY id ASC LIMIT ?`,
		domain.StatusPending, limit,
	)
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Claim atomically claims a pending job for processing.
func (r *Repository) Claim(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.StatusProcessing, time.Now(), id, domain.StatusPending,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Complete records the run result and marks the job completed.
func (r *Repository) Complete(ctx context.Context, id int64, result *domain.Result) error {
	if result == nil {
		return errors.New("complete: nil result")
	}
	warnings, err := encodeWarnings(result.Normalize.Warnings())
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, title = ?, video_id = ?, artifact = ?, warnings = ?, error = NULL, updated_at = ?
		 WHERE id = ?`,
		domain.StatusCompleted, result.Ref.Title, result.Ref.ID, result.Artifact.Path, warnings, time.Now(), id,
	)
	return err
}

// Fail marks a job as permanently failed.
func (r *Repository) Fail(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		domain.StatusFailed, reason, time.Now(), id,
	)
	return err
}

// RecoverStale fails every job left processing by a previous server.
// A half-finished run may have left a work dir behind, so it is not requeued.
func (r *Repository) RecoverStale(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE status = ?`,
		domain.StatusFailed, RecoveredReason, time.Now(), domain.StatusProcessing,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// AppendProgress stores the next progress line for a job.
func (r *Repository) AppendProgress(ctx context.Context, id int64, line string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO progress (job_id, seq, line, created_at)
		 SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ? FROM progress WHERE job_id = ?`,
		id, line, time.Now(), id,
	)
	return err
}

// Progress returns a job's progress lines in the order they were appended.
func (r *Repository) Progress(ctx context.Context, id int64) ([]domain.ProgressLine, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, line, created_at FROM progress WHERE job_id = ? ORDER BY seq ASC`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.ProgressLine
	for rows.Next() {
		var pl domain.ProgressLine
		if err := rows.Scan(&pl.Seq, &pl.Line, &pl.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, pl)
	}
	return lines, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var job domain.Job
	var status, warnings string
	err := row.Scan(&job.ID, &job.URL, &job.Format, &job.Quality, &status, &job.Title, &job.VideoID,
		&job.Artifact, &warnings, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if job.Warnings, err = decodeWarnings(warnings); err != nil {
		return nil, fmt.Errorf("job %d: %w", job.ID, err)
	}
	return &job, nil
}

func encodeWarnings(warnings []string) (any, error) {
	if len(warnings) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(warnings)
	if err != nil {
		return nil, fmt.Errorf("encode warnings: %w", err)
	}
	return string(b), nil
}

func decodeWarnings(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var warnings []string
	if err := json.Unmarshal([]byte(s), &warnings); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	return warnings, nil
}
