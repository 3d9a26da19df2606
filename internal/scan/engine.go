package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/divyansh2401/email-intel/internal/store"
)

// Config holds engine tuning parameters.
type Config struct {
	// BatchSize is the number of distinct canonical tokens buffered before a
	// registry flush.
	BatchSize int
	// PollInterval bounds how long a pause or a cancellation can go unnoticed.
	PollInterval time.Duration
	// EnumWorkers is the concurrency of the submission-time directory walk.
	EnumWorkers int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:    2000,
		PollInterval: 500 * time.Millisecond,
		EnumWorkers:  4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.EnumWorkers <= 0 {
		c.EnumWorkers = d.EnumWorkers
	}
	return c
}

// errJobStopped signals that the job was cancelled or its record deleted.
// The engine stops without writing a terminal status of its own: cancellation
// status belongs to the controller, and a deleted record has nothing left to
// update.
var errJobStopped = errors.New("job stopped by controller")

// Engine executes a single scan job: it walks the enumerated files, extracts
// and canonicalizes tokens, flushes batches to the registry, and keeps the
// job record's progress metrics current. Control flags are observed at safe
// points only — between files and while polling during a pause; a file that
// has started extracting is never interrupted mid-way.
type Engine struct {
	jobs      *store.Jobs
	registry  *store.Registry
	extractor *Extractor
	cfg       Config
}

// NewEngine creates an Engine. The same Engine may run many jobs, one
// goroutine per job.
func NewEngine(jobs *store.Jobs, registry *store.Registry, extractor *Extractor, cfg Config) *Engine {
	return &Engine{jobs: jobs, registry: registry, extractor: extractor, cfg: cfg.withDefaults()}
}

// Run drives one job to a terminal state. files is the enumeration captured
// at submission time. Run never returns an error to its caller: failures are
// recorded on the job itself.
func (e *Engine) Run(ctx context.Context, jobID string, files []FileEntry) {
	startedAt := time.Now()
	if err := e.jobs.MarkRunning(ctx, jobID, startedAt); err != nil {
		slog.Error("scan: mark running", "job", jobID, "error", err)
		return
	}
	slog.Info("scan started", "job", jobID, "files", len(files))

	err := e.loop(ctx, jobID, files, startedAt)
	switch {
	case errors.Is(err, errJobStopped):
		// Terminal status (or record removal) already done by the controller.
		slog.Info("scan stopped", "job", jobID)
	case errors.Is(err, context.Canceled):
		// Process shutdown. Startup recovery will mark the job failed.
		slog.Info("scan interrupted by shutdown", "job", jobID)
	case err != nil:
		slog.Error("scan failed", "job", jobID, "error", err)
		if ferr := e.jobs.Finish(context.Background(), jobID, store.StatusFailed, time.Now()); ferr != nil {
			slog.Error("scan: mark failed", "job", jobID, "error", ferr)
		}
	default:
		if ferr := e.jobs.Finish(context.Background(), jobID, store.StatusDone, time.Now()); ferr != nil {
			slog.Error("scan: mark done", "job", jobID, "error", ferr)
		}
		slog.Info("scan finished", "job", jobID)
	}
}

// loop is the main per-file loop. It returns errJobStopped on cancellation or
// deletion, ctx.Err() on shutdown, nil on exhaustion, and any other error for
// engine-fatal failures (the caller marks the job failed; flushed registry
// contributions stay — there is no rollback).
func (e *Engine) loop(ctx context.Context, jobID string, files []FileEntry, startedAt time.Time) error {
	var processed int64
	batch := make(map[string]struct{}, e.cfg.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		tokens := make([]string, 0, len(batch))
		for t := range batch {
			tokens = append(tokens, t)
		}
		if err := e.registry.UpsertBatch(ctx, tokens); err != nil {
			return fmt.Errorf("flush batch: %w", err)
		}
		clear(batch)
		// The mirrored count is global across jobs, so it can jump by more
		// than the batch when other jobs are flushing concurrently.
		total, err := e.registry.Count(ctx)
		if err != nil {
			return fmt.Errorf("refresh registry count: %w", err)
		}
		return e.jobs.SetEmailsFound(ctx, jobID, total)
	}

	for _, f := range files {
		job, err := e.checkpoint(ctx, jobID)
		if err != nil {
			// Stopped mid-flight: the half-built batch is dropped, not flushed.
			return err
		}

		if LooksLikeText(f.Path) {
			var flushErr error
			e.extractor.ScanFile(ctx, f.Path, func(raw string) {
				if flushErr != nil {
					return
				}
				if c := Canonicalize(raw); c != "" {
					batch[c] = struct{}{}
				}
				if len(batch) >= e.cfg.BatchSize {
					flushErr = flush()
				}
			})
			if flushErr != nil {
				return flushErr
			}
		}

		// Skipped binaries count fully: progress reflects bytes walked, not
		// bytes meaningfully scanned.
		processed += f.Size
		if err := e.updateMetrics(ctx, jobID, processed, job.TotalBytes, startedAt); err != nil {
			return err
		}
	}

	if err := flush(); err != nil {
		return err
	}
	return nil
}

// checkpoint is the safe point between files: it re-reads the job record,
// stops on cancellation or deletion, and busy-polls while paused. A
// cancellation issued during a pause is noticed within one poll interval.
func (e *Engine) checkpoint(ctx context.Context, jobID string) (store.Job, error) {
	job, err := e.jobs.Get(ctx, jobID)
	for {
		if errors.Is(err, store.ErrJobNotFound) {
			return store.Job{}, errJobStopped
		}
		if err != nil {
			return store.Job{}, err
		}
		if job.Cancelled {
			return job, errJobStopped
		}
		if !job.Paused {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}
		job, err = e.jobs.Get(ctx, jobID)
	}
}

// updateMetrics recomputes throughput and ETA after each file. Elapsed time
// is clamped away from zero so the first files do not divide by ~0.
func (e *Engine) updateMetrics(ctx context.Context, jobID string, processed, total int64, startedAt time.Time) error {
	elapsed := time.Since(startedAt).Seconds()
	if elapsed < 0.001 {
		elapsed = 0.001
	}
	throughput := float64(processed) / elapsed

	var eta *int64
	if throughput > 0 && total > 0 {
		remaining := total - processed
		if remaining < 0 {
			remaining = 0
		}
		secs := int64(float64(remaining) / throughput)
		eta = &secs
	}
	return e.jobs.UpdateProgress(ctx, jobID, processed, throughput, eta)
}
