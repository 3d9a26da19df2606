package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned when no job row exists for the given id.
var ErrJobNotFound = errors.New("job not found")

// Status is the lifecycle state of a scan job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusFailed
}

// Job is a snapshot of one scan job row. The engine is the sole writer of
// progress/status/metrics fields; control commands are the sole writer of
// paused/cancelled. Readers must not assume a multi-field snapshot is
// consistent across concurrent updates.
type Job struct {
	ID             string
	Name           string
	Status         Status
	RootPath       string
	ProcessedBytes int64
	TotalBytes     int64
	ThroughputBps  float64
	ETASeconds     *int64
	EmailsFound    int64
	IncludeDomains string
	DenyDomains    string
	BusinessOnly   bool
	Workers        int
	ChunkMB        int
	Paused         bool
	Cancelled      bool
	CreatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

// NewJob holds the fields supplied at submission time.
type NewJob struct {
	Name           string
	RootPath       string
	TotalBytes     int64
	IncludeDomains string
	DenyDomains    string
	BusinessOnly   bool
	Workers        int
	ChunkMB        int
}

// Jobs provides access to the jobs table.
type Jobs struct {
	db *sql.DB
}

// NewJobs creates a job store backed by db.
func NewJobs(db *sql.DB) *Jobs {
	return &Jobs{db: db}
}

const jobColumns = `id, name, status, root_path, processed_bytes, total_bytes,
	throughput_bps, eta_seconds, emails_found,
	include_domains, deny_domains, business_only, workers, chunk_mb,
	paused, cancelled, created_at, started_at, finished_at`

// Create inserts a queued job with zeroed counters and returns its snapshot.
func (s *Jobs) Create(ctx context.Context, n NewJob) (Job, error) {
	id := uuid.NewString()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs
			(id, name, status, root_path, total_bytes,
			 include_domains, deny_domains, business_only, workers, chunk_mb,
			 created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, n.Name, StatusQueued, n.RootPath, n.TotalBytes,
		n.IncludeDomains, n.DenyDomains, n.BusinessOnly, n.Workers, n.ChunkMB,
		now.Unix())
	if err != nil {
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
	return s.Get(ctx, id)
}

// Get returns the job with the given id, or ErrJobNotFound.
func (s *Jobs) Get(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

// List returns jobs most-recent-first with the total row count.
func (s *Jobs) List(ctx context.Context, limit, offset int) ([]Job, int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			slog.Error("jobs list: scan row", "error", err)
			continue
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}
	return jobs, total, nil
}

// MarkRunning transitions a job to running, records its start time and zeroes
// the processed-byte counter. No-op once the job is terminal.
func (s *Jobs) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, started_at = ?, processed_bytes = 0
		WHERE id = ? AND status NOT IN (?, ?, ?)`,
		StatusRunning, startedAt.Unix(), id,
		StatusDone, StatusCancelled, StatusFailed)
	if err != nil {
		return fmt.Errorf("mark running %s: %w", id, err)
	}
	return s.checkAffected(ctx, res, id)
}

// UpdateProgress writes the per-file progress metrics. eta may be nil when
// throughput is not yet measurable.
func (s *Jobs) UpdateProgress(ctx context.Context, id string, processed int64, throughput float64, eta *int64) error {
	var etaVal sql.NullInt64
	if eta != nil {
		etaVal = sql.NullInt64{Int64: *eta, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET processed_bytes = ?, throughput_bps = ?, eta_seconds = ?
		WHERE id = ?`,
		processed, throughput, etaVal, id)
	if err != nil {
		return fmt.Errorf("update progress %s: %w", id, err)
	}
	return nil
}

// SetEmailsFound mirrors the registry's current distinct-token total onto the
// job. This is the global count, not the job's own contribution.
func (s *Jobs) SetEmailsFound(ctx context.Context, id string, total int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET emails_found = ? WHERE id = ?`, total, id)
	if err != nil {
		return fmt.Errorf("set emails_found %s: %w", id, err)
	}
	return nil
}

// Finish moves a job to a terminal status and stamps finished_at.
// Once terminal, the status never changes again, so a second Finish is a no-op.
func (s *Jobs) Finish(ctx context.Context, id string, status Status, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, finished_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?)`,
		status, finishedAt.Unix(), id,
		StatusDone, StatusCancelled, StatusFailed)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, err)
	}
	return nil
}

// Pause sets the paused flag. The engine observes it at the next safe point.
// Pausing a terminal job is harmless; the flag has no effect there.
func (s *Jobs) Pause(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET paused = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("pause job %s: %w", id, err)
	}
	return affectedOrNotFound(res)
}

// Resume clears the paused flag and forces a drifted status back to running.
// Terminal statuses are left untouched.
func (s *Jobs) Resume(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET paused = 0,
		    status = CASE WHEN status IN (?, ?) THEN ? ELSE status END
		WHERE id = ?`,
		StatusQueued, StatusRunning, StatusRunning, id)
	if err != nil {
		return fmt.Errorf("resume job %s: %w", id, err)
	}
	return affectedOrNotFound(res)
}

// Cancel sets the monotonic cancelled flag and the terminal cancelled status.
// Cancelling a job that already reached a terminal status is a no-op.
func (s *Jobs) Cancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET cancelled = 1, status = ?
		WHERE id = ? AND status NOT IN (?, ?, ?)`,
		StatusCancelled, id,
		StatusDone, StatusCancelled, StatusFailed)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", id, err)
	}
	return s.checkAffected(ctx, res, id)
}

// Delete removes the job row outright. A running engine observes the missing
// record at its next safe point and stops as if cancelled.
func (s *Jobs) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return affectedOrNotFound(res)
}

// CountByStatus returns the number of jobs currently in the given status.
func (s *Jobs) CountByStatus(ctx context.Context, status Status) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE status = ?`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs by status: %w", err)
	}
	return n, nil
}

// MarkStaleFailed marks jobs still queued or running as failed. Called once at
// startup in case a previous process crashed mid-scan.
func (s *Jobs) MarkStaleFailed(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, finished_at = ?
		WHERE status IN (?, ?)`,
		StatusFailed, time.Now().Unix(),
		StatusQueued, StatusRunning)
	if err != nil {
		return fmt.Errorf("mark stale jobs failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Warn("marked stale jobs as failed", "count", n)
	}
	return nil
}

// PurgeFinishedBefore deletes terminal jobs that finished before cutoff.
func (s *Jobs) PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status IN (?, ?, ?) AND finished_at IS NOT NULL AND finished_at < ?`,
		StatusDone, StatusCancelled, StatusFailed, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge finished jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// checkAffected distinguishes "row is terminal, update skipped" (no-op, nil)
// from "row does not exist" (ErrJobNotFound) after a guarded update.
func (s *Jobs) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return nil
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (Job, error) {
	var (
		j          Job
		eta        sql.NullInt64
		createdAt  int64
		startedAt  sql.NullInt64
		finishedAt sql.NullInt64
	)
	err := r.Scan(
		&j.ID, &j.Name, &j.Status, &j.RootPath, &j.ProcessedBytes, &j.TotalBytes,
		&j.ThroughputBps, &eta, &j.EmailsFound,
		&j.IncludeDomains, &j.DenyDomains, &j.BusinessOnly, &j.Workers, &j.ChunkMB,
		&j.Paused, &j.Cancelled, &createdAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return Job{}, err
	}
	if eta.Valid {
		j.ETASeconds = &eta.Int64
	}
	j.CreatedAt = time.Unix(createdAt, 0)
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		j.StartedAt = &t
	}
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0)
		j.FinishedAt = &t
	}
	return j, nil
}
