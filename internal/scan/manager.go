package scan

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/divyansh2401/email-intel/internal/store"
)

// Submission validation errors, surfaced synchronously. No job record is
// created when any of them fires.
var (
	ErrPathMissing     = errors.New("a file or folder path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path not found")
	ErrNoFiles         = errors.New("no readable files found under path")
)

// maxWorkers bounds the worker concurrency hint accepted at submission.
// The hint is validated and persisted but the engine itself is
// single-threaded per job.
const maxWorkers = 64

// Submission holds the fields accepted by Submit. Domain filters, the
// business-only flag and the chunk-size hint are opaque pass-through values
// persisted on the job; the engine does not interpret them.
type Submission struct {
	Name           string
	Path           string
	IncludeDomains string
	DenyDomains    string
	BusinessOnly   bool
	Workers        int
	ChunkMB        int
}

// Manager validates submissions and launches exactly one engine goroutine per
// job. Controllers never hold a handle to a running engine: pause, resume,
// cancel and delete act purely on the job record, and the engine picks the
// change up at its next safe point.
type Manager struct {
	mu     sync.Mutex
	active map[string]struct{}

	jobs    *store.Jobs
	engine  *Engine
	cfg     Config
	baseCtx context.Context
}

// NewManager creates a Manager. baseCtx is the parent of every engine run;
// cancelling it (e.g. on shutdown) stops all running scans.
func NewManager(baseCtx context.Context, jobs *store.Jobs, registry *store.Registry, extractor *Extractor, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		active:  make(map[string]struct{}),
		jobs:    jobs,
		engine:  NewEngine(jobs, registry, extractor, cfg),
		cfg:     cfg,
		baseCtx: baseCtx,
	}
}

// Submit validates the submission, enumerates the input set, creates the job
// record in queued status and starts its engine. The returned snapshot is the
// job as created; the engine advances it asynchronously.
func (m *Manager) Submit(ctx context.Context, sub Submission) (store.Job, error) {
	path := strings.TrimSpace(sub.Path)
	if path == "" {
		return store.Job{}, ErrPathMissing
	}
	if !filepath.IsAbs(path) {
		return store.Job{}, ErrPathNotAbsolute
	}
	if _, err := os.Stat(path); err != nil {
		return store.Job{}, ErrPathNotFound
	}

	files := Enumerate(path, m.cfg.EnumWorkers)
	if len(files) == 0 {
		return store.Job{}, ErrNoFiles
	}
	var totalBytes int64
	for _, f := range files {
		totalBytes += f.Size
	}

	name := strings.TrimSpace(sub.Name)
	if name == "" {
		name = "scan"
	}
	workers := sub.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	chunkMB := sub.ChunkMB
	if chunkMB <= 0 {
		chunkMB = 512
	}

	job, err := m.jobs.Create(ctx, store.NewJob{
		Name:           name,
		RootPath:       path,
		TotalBytes:     totalBytes,
		IncludeDomains: sub.IncludeDomains,
		DenyDomains:    sub.DenyDomains,
		BusinessOnly:   sub.BusinessOnly,
		Workers:        workers,
		ChunkMB:        chunkMB,
	})
	if err != nil {
		return store.Job{}, err
	}

	m.mu.Lock()
	m.active[job.ID] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.active, job.ID)
			m.mu.Unlock()
		}()
		m.engine.Run(m.baseCtx, job.ID, files)
	}()

	slog.Info("job submitted", "job", job.ID, "name", name, "path", path,
		"files", len(files), "total_bytes", totalBytes)
	return job, nil
}

// ActiveCount returns the number of jobs with a running engine goroutine.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
