package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
)

// FileEntry is one enumerated file: its absolute path and size in bytes at
// enumeration time.
type FileEntry struct {
	Path string
	Size int64
}

// Enumerate returns every regular file under root, sorted by path so the
// sequence is deterministic for a fixed filesystem snapshot. A root naming a
// single file yields exactly that file. Unreadable directories, symlinks and
// irregular entries are skipped silently — enumeration never fails part-way.
// Callers are expected to have checked that root exists.
func Enumerate(root string, workers int) []FileEntry {
	info, err := os.Stat(root)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		return []FileEntry{{Path: root, Size: info.Size()}}
	}

	if workers < 1 {
		workers = 1
	}
	out := make(chan FileEntry, 1024)
	go walk(root, workers, out)

	var entries []FileEntry
	for e := range out {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// walk traverses root concurrently using workers goroutines and sends every
// regular file it finds to out, closing out when done.
func walk(root string, workers int, out chan<- FileEntry) {
	defer close(out)

	q := newDirQueue()
	q.pending.Add(1)
	q.Push(root)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			walkerWorker(q, out)
		}()
	}
	wg.Wait()
}

// walkerWorker pops directories from q, reads their entries, enqueues
// sub-directories (incrementing pending first), sends files to out, then
// calls q.Done() to decrement pending.
func walkerWorker(q *dirQueue, out chan<- FileEntry) {
	for {
		dir, ok := q.Pop()
		if !ok {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			// Permission errors and the like skip the directory, never the walk.
			q.Done()
			continue
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())

			if entry.IsDir() {
				// Increment BEFORE pushing so pending is never zero prematurely.
				q.pending.Add(1)
				q.Push(path)
				continue
			}

			if entry.Type()&fs.ModeSymlink != 0 {
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				// Size became unreadable between ReadDir and Info: skip the file.
				continue
			}

			out <- FileEntry{Path: path, Size: info.Size()}
		}

		q.Done()
	}
}

// dirQueue is an unbounded, concurrency-safe queue of directory paths.
// It tracks a pending counter so that walk() knows when all work is done.
//
// Termination protocol:
//   - Push increments pending BEFORE enqueuing (caller must own the increment).
//   - Done decrements pending AFTER all children of a directory have been
//     pushed. When pending reaches 0, Done closes the queue and broadcasts.
type dirQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []string
	head    int // index of the next item to pop; avoids O(n) re-slicing
	pending atomic.Int64
	closed  bool
}

func newDirQueue() *dirQueue {
	q := &dirQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a directory. Must be called after incrementing pending.
func (q *dirQueue) Push(dir string) {
	q.mu.Lock()
	q.items = append(q.items, dir)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue is closed.
// Returns ("", false) when the queue is closed and empty.
func (q *dirQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head >= len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.head >= len(q.items) {
		return "", false
	}
	item := q.items[q.head]
	q.items[q.head] = "" // release string reference so GC can collect it
	q.head++
	// Compact once enough items have been consumed so the backing array does
	// not grow without bound on deep trees.
	if q.head >= 1000 && q.head >= len(q.items)/2 {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return item, true
}

// Done must be called once per directory after all its child-directories have
// been pushed. Decrements pending; if pending reaches 0, closes the queue.
func (q *dirQueue) Done() {
	if q.pending.Add(-1) == 0 {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		q.cond.Broadcast()
	}
}
