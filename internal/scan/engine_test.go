package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/divyansh2401/email-intel/internal/store"
)

// fastConfig keeps test pause-polls short.
func fastConfig() Config {
	return Config{BatchSize: 2000, PollInterval: 10 * time.Millisecond, EnumWorkers: 2}
}

type engineFixture struct {
	jobs     *store.Jobs
	registry *store.Registry
	engine   *Engine
}

func newEngineFixture(tb testing.TB, cfg Config) engineFixture {
	tb.Helper()
	db := mustOpenDB(tb)
	jobs := store.NewJobs(db)
	registry := store.NewRegistry(db)
	return engineFixture{
		jobs:     jobs,
		registry: registry,
		engine:   NewEngine(jobs, registry, fallbackExtractor(), cfg),
	}
}

func (fx engineFixture) submit(tb testing.TB, root string) (store.Job, []FileEntry) {
	tb.Helper()
	files := Enumerate(root, 2)
	if len(files) == 0 {
		tb.Fatalf("no files enumerated under %q", root)
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	job, err := fx.jobs.Create(context.Background(), store.NewJob{
		Name: "test", RootPath: root, TotalBytes: total, Workers: 1, ChunkMB: 512,
	})
	if err != nil {
		tb.Fatalf("create job: %v", err)
	}
	return job, files
}

// TestEngineDeduplicatesAndCanonicalizes scans a directory with one file and
// expects the two canonical tokens, each seen once.
func TestEngineDeduplicatesAndCanonicalizes(t *testing.T) {
	fx := newEngineFixture(t, fastConfig())
	dir := t.TempDir()
	writeFile(t, dir, "contact.txt", "Contact: John.Doe@Example.COM and <jane@sub.example.org>")

	job, files := fx.submit(t, dir)
	fx.engine.Run(context.Background(), job.ID, files)

	got, err := fx.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusDone {
		t.Fatalf("status = %q, want done", got.Status)
	}
	if got.ProcessedBytes != got.TotalBytes {
		t.Errorf("processed %d != total %d", got.ProcessedBytes, got.TotalBytes)
	}
	if got.EmailsFound != 2 {
		t.Errorf("emails_found = %d, want 2", got.EmailsFound)
	}
	if got.FinishedAt == nil || got.StartedAt == nil {
		t.Error("expected started_at and finished_at to be set")
	}

	for _, want := range []string{"john.doe@example.com", "jane@sub.example.org"} {
		entries, _, err := fx.registry.Search(context.Background(), want, 10, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Fatalf("registry search %q: %d entries, want 1", want, len(entries))
		}
		if entries[0].SeenCount != 1 {
			t.Errorf("token %q seen_count = %d, want 1", want, entries[0].SeenCount)
		}
	}
}

// TestEngineSeenCountAcrossJobs scans the same file in two separate jobs and
// expects seen_count = 2 for each token.
func TestEngineSeenCountAcrossJobs(t *testing.T) {
	fx := newEngineFixture(t, fastConfig())
	dir := t.TempDir()
	writeFile(t, dir, "dup.txt", "repeat@example.com and again@example.net")

	for i := 0; i < 2; i++ {
		job, files := fx.submit(t, dir)
		fx.engine.Run(context.Background(), job.ID, files)

		got, err := fx.jobs.Get(context.Background(), job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != store.StatusDone {
			t.Fatalf("run %d: status = %q, want done", i, got.Status)
		}
		// emails_found mirrors the registry's global count at the last flush.
		if got.EmailsFound != 2 {
			t.Errorf("run %d: emails_found = %d, want 2", i, got.EmailsFound)
		}
	}

	entries, total, err := fx.registry.Search(context.Background(), "", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Fatalf("registry total = %d, want 2", total)
	}
	for _, e := range entries {
		if e.SeenCount != 2 {
			t.Errorf("token %q seen_count = %d, want 2", e.Email, e.SeenCount)
		}
	}
}

// TestEngineSkipsBinariesButCountsBytes verifies a .png's bytes count toward
// progress even though its content is never scanned.
func TestEngineSkipsBinariesButCountsBytes(t *testing.T) {
	fx := newEngineFixture(t, fastConfig())
	dir := t.TempDir()
	writeFile(t, dir, "note.txt", "only@here.example.com")
	// The png contains an email-shaped token that must NOT be registered.
	writeFile(t, dir, "image.png", "sneaky@binary.example.com plus padding bytes")

	job, files := fx.submit(t, dir)
	fx.engine.Run(context.Background(), job.ID, files)

	got, err := fx.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ProcessedBytes != got.TotalBytes {
		t.Errorf("processed %d != total %d (binaries must still count)", got.ProcessedBytes, got.TotalBytes)
	}
	_, total, err := fx.registry.Search(context.Background(), "", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("registry total = %d, want 1 (png content must be skipped)", total)
	}
}

// TestEngineBatchFlushMidFile uses a tiny batch size so the flush threshold
// trips during extraction of a single file.
func TestEngineBatchFlushMidFile(t *testing.T) {
	cfg := fastConfig()
	cfg.BatchSize = 2
	fx := newEngineFixture(t, cfg)
	dir := t.TempDir()
	writeFile(t, dir, "many.txt", "a@x.io b@x.io c@x.io d@x.io a@x.io")

	job, files := fx.submit(t, dir)
	fx.engine.Run(context.Background(), job.ID, files)

	_, total, err := fx.registry.Search(context.Background(), "", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 {
		t.Errorf("registry total = %d, want 4 distinct tokens", total)
	}
	got, _ := fx.jobs.Get(context.Background(), job.ID)
	if got.Status != store.StatusDone {
		t.Errorf("status = %q, want done", got.Status)
	}
}

// TestEnginePauseThenCancel pauses the job before the engine starts, verifies
// progress stays frozen, then cancels and expects a cancelled terminal state
// with no further progress.
func TestEnginePauseThenCancel(t *testing.T) {
	fx := newEngineFixture(t, fastConfig())
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, dir, "f"+string(rune('a'+i))+".txt", "user@frozen.example.com content")
	}

	job, files := fx.submit(t, dir)
	if err := fx.jobs.Pause(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		fx.engine.Run(context.Background(), job.ID, files)
		close(done)
	}()

	// Give the engine several poll intervals while paused.
	time.Sleep(100 * time.Millisecond)
	got, err := fx.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ProcessedBytes != 0 {
		t.Errorf("processed_bytes advanced to %d while paused", got.ProcessedBytes)
	}
	if got.Status != store.StatusRunning {
		t.Errorf("status = %q, want running while paused", got.Status)
	}

	if err := fx.jobs.Cancel(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not stop after cancel")
	}

	got, err = fx.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	if !got.Cancelled {
		t.Error("cancelled flag not set")
	}
	if got.ProcessedBytes >= got.TotalBytes {
		t.Errorf("processed %d should be less than total %d after early cancel",
			got.ProcessedBytes, got.TotalBytes)
	}
	// Nothing was flushed before the stop.
	if n, _ := fx.registry.Count(context.Background()); n != 0 {
		t.Errorf("registry count = %d, want 0 (half-built batch must not flush)", n)
	}
}

// TestEngineStopsOnDelete deletes the record while the engine is paused and
// expects the engine to stop within a poll interval, leaving nothing behind.
func TestEngineStopsOnDelete(t *testing.T) {
	fx := newEngineFixture(t, fastConfig())
	dir := t.TempDir()
	writeFile(t, dir, "gone.txt", "soon@deleted.example.com")

	job, files := fx.submit(t, dir)
	if err := fx.jobs.Pause(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		fx.engine.Run(context.Background(), job.ID, files)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := fx.jobs.Delete(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not stop after delete")
	}

	if _, err := fx.jobs.Get(context.Background(), job.ID); !errors.Is(err, store.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound after delete, got %v", err)
	}
}

// TestEngineShutdownLeavesStatusRunning cancels the engine context (process
// shutdown) and verifies the engine does not invent a terminal status; startup
// recovery owns that.
func TestEngineShutdownLeavesStatusRunning(t *testing.T) {
	fx := newEngineFixture(t, fastConfig())
	dir := t.TempDir()
	writeFile(t, dir, "pending.txt", "later@example.com")

	job, files := fx.submit(t, dir)
	if err := fx.jobs.Pause(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fx.engine.Run(ctx, job.ID, files)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not stop after context cancel")
	}

	got, err := fx.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusRunning {
		t.Errorf("status = %q, want running (recovery marks it failed at next startup)", got.Status)
	}
}
