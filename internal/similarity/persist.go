package similarity

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultSaveInterval is the minimum time between two debounced hash cache writes.
const DefaultSaveInterval = 30 * time.Second

// CacheFileName is the name of the persisted hash cache inside a project cache folder.
const CacheFileName = "hash_cache.json"

// Option configures an Index.
type Option func(*Index)

// WithSaveInterval overrides the debounce interval of the hash cache writer.
func WithSaveInterval(d time.Duration) Option {
	return func(idx *Index) {
		if idx.writer != nil {
			idx.writer.gate.interval = d
		}
	}
}

// WithClock replaces the time source used for debouncing.
func WithClock(now func() time.Time) Option {
	return func(idx *Index) {
		if idx.writer != nil && now != nil {
			idx.writer.gate.now = now
		}
	}
}

// Debouncer gates a side effect so it runs at most once per interval.
type Debouncer struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewDebouncer returns a gate that opens at most once per interval.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval, now: time.Now}
}

// Allow reports whether the interval has elapsed since the last allowed call and, if
// so, starts a new interval.
func (d *Debouncer) Allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if !d.last.IsZero() && now.Sub(d.last) < d.interval {
		return false
	}
	d.last = now
	return true
}

// Mark starts a new interval without asking.
func (d *Debouncer) Mark() {
	d.mu.Lock()
	d.last = d.now()
	d.mu.Unlock()
}

type cacheWriter struct {
	path string
	gate *Debouncer
	mu   sync.Mutex
}

func newCacheWriter(path string, interval time.Duration) *cacheWriter {
	return &cacheWriter{path: path, gate: NewDebouncer(interval)}
}

func (w *cacheWriter) write(hashes map[string]uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(hashes)
	if err != nil {
		return fmt.Errorf("failed to encode hash cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write hash cache: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace hash cache: %w", err)
	}
	return nil
}

// Load reads the persisted hash cache, merging it into memory. A missing or corrupt
// file is ignored. It returns the number of hashes read.
func (idx *Index) Load() int {
	if idx.writer == nil {
		return 0
	}
	data, err := os.ReadFile(idx.writer.path)
	if err != nil {
		return 0
	}
	var stored map[string]uint64
	if err := json.Unmarshal(data, &stored); err != nil {
		if os.Getenv("LABELPROP_LOG_LEVEL") == "debug" {
			log.Printf("ignoring corrupt hash cache %s: %v", idx.writer.path, err)
		}
		return 0
	}

	idx.mu.Lock()
	for k, v := range stored {
		idx.hashes[cacheKey(k)] = v
	}
	idx.mu.Unlock()
	return len(stored)
}

func (idx *Index) snapshot() map[string]uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make(map[string]uint64, len(idx.hashes))
	for k, v := range idx.hashes {
		out[k] = v
	}
	idx.dirty = false
	return out
}

func (idx *Index) isDirty() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dirty
}

func (idx *Index) markDirty() {
	idx.mu.Lock()
	idx.dirty = true
	idx.mu.Unlock()
}

// MaybeSave writes the hash cache if it changed and the last write was at least the
// save interval ago. Failures are logged and swallowed. It reports whether a write
// happened.
func (idx *Index) MaybeSave() bool {
	if idx.writer == nil || !idx.isDirty() || !idx.writer.gate.Allow() {
		return false
	}
	if err := idx.writer.write(idx.snapshot()); err != nil {
		idx.markDirty()
		log.Printf("WARNING: %v", err)
		return false
	}
	return true
}

// Flush writes the hash cache immediately if it changed, ignoring the debounce.
func (idx *Index) Flush() error {
	if idx.writer == nil || !idx.isDirty() {
		return nil
	}
	idx.writer.gate.Mark()
	if err := idx.writer.write(idx.snapshot()); err != nil {
		idx.markDirty()
		return err
	}
	return nil
}
