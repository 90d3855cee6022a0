package propagation

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ironsheep/label-propagator/internal/labels"
)

// Progress is one update of a running propagation.
type Progress struct {
	Phase   string `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// ProgressFunc receives progress updates.
type ProgressFunc func(Progress)

// throttle rate-limits progress callbacks for one phase. The final update of a phase
// is always delivered.
type throttle struct {
	fn       ProgressFunc
	phase    string
	total    int
	interval time.Duration
	current  atomic.Int64

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newThrottle(fn ProgressFunc, phase string, total int, interval time.Duration) *throttle {
	return &throttle{fn: fn, phase: phase, total: total, interval: interval, now: time.Now}
}

// step records one finished unit.
func (t *throttle) step() {
	c := int(t.current.Add(1))
	t.emit(c, false)
}

// finish delivers the last update of the phase.
func (t *throttle) finish() {
	t.emit(int(t.current.Load()), true)
}

func (t *throttle) emit(current int, final bool) {
	if t == nil || t.fn == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if !final && !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return
	}
	t.last = now
	t.fn(Progress{Phase: t.phase, Current: current, Total: t.total})
}

// forEach runs fn for 0..n-1 on at most workers goroutines. Once ctx is done no new
// unit starts; units already running are allowed to finish.
func forEach(ctx context.Context, workers, n int, fn func(i int)) {
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

loop:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			<-sem
			break
		}
		wg.Add(1)
		go func(i int) {
			defer func() {
				<-sem
				wg.Done()
			}()
			fn(i)
		}(i)
	}
	wg.Wait()
}

// budget tracks how many results a run has added per image against a cap.
type budget struct {
	limit int

	mu   sync.Mutex
	used map[string]*atomic.Int64
}

func newBudget(limit int) *budget {
	return &budget{limit: limit, used: make(map[string]*atomic.Int64)}
}

func (b *budget) counter(path string) *atomic.Int64 {
	k := filepath.Clean(path)
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.used[k]
	if !ok {
		c = new(atomic.Int64)
		b.used[k] = c
	}
	return c
}

// reserve claims up to n slots for path and returns how many were granted.
func (b *budget) reserve(path string, n int) int {
	if b.limit <= 0 || n <= 0 {
		return max(n, 0)
	}
	c := b.counter(path)
	for {
		used := c.Load()
		free := int64(b.limit) - used
		if free <= 0 {
			return 0
		}
		take := min(int64(n), free)
		if c.CompareAndSwap(used, used+take) {
			return int(take)
		}
	}
}

// release returns n unused slots for path.
func (b *budget) release(path string, n int) {
	if b.limit <= 0 || n <= 0 {
		return
	}
	b.counter(path).Add(-int64(n))
}

// full reports whether path has no slots left.
func (b *budget) full(path string) bool {
	return b.limit > 0 && b.counter(path).Load() >= int64(b.limit)
}

// tally accumulates a Summary from concurrent workers.
type tally struct {
	suggestions atomic.Int64
	labels      atomic.Int64

	mu       sync.Mutex
	affected map[string]struct{}
}

func newTally() *tally {
	return &tally{affected: make(map[string]struct{})}
}

func (t *tally) touch(path string) {
	t.mu.Lock()
	t.affected[filepath.Clean(path)] = struct{}{}
	t.mu.Unlock()
}

func (t *tally) summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		SuggestionsAdded: int(t.suggestions.Load()),
		LabelsAdded:      int(t.labels.Load()),
		ImagesAffected:   len(t.affected),
	}
}

// run is the state shared by the workers of one propagation call.
type run struct {
	o      *Orchestrator
	cfg    runConfig
	budget *budget
	tally  *tally
}

func (o *Orchestrator) newRun(cfg runConfig) *run {
	return &run{o: o, cfg: cfg, budget: newBudget(cfg.limit), tally: newTally()}
}

// emit hands results for path to the store, honouring the per-image budget.
func (r *run) emit(path string, results []labels.Suggestion) int {
	granted := r.budget.reserve(path, len(results))
	if granted == 0 {
		return 0
	}
	results = results[:granted]

	var added int
	if r.cfg.autoAccept {
		added = r.o.store.MergeLabels(path, results, r.cfg.mergeIoU)
		r.tally.labels.Add(int64(added))
	} else {
		added = r.o.store.AddSuggestions(path, results, r.cfg.mergeIoU)
		r.tally.suggestions.Add(int64(added))
	}
	r.budget.release(path, granted-max(added, 0))
	if added > 0 {
		r.tally.touch(path)
	}
	return added
}

// finish closes a run: it pokes the debounced hash-cache writer and reports the
// outcome.
func (r *run) finish(ctx context.Context, name string) Summary {
	r.o.index.MaybeSave()
	s := r.tally.summary()
	if ctx.Err() != nil {
		log.Printf("%s propagation cancelled: %d suggestions, %d labels on %d images",
			name, s.SuggestionsAdded, s.LabelsAdded, s.ImagesAffected)
	} else {
		debugf("%s propagation done: %d suggestions, %d labels on %d images",
			name, s.SuggestionsAdded, s.LabelsAdded, s.ImagesAffected)
	}
	return s
}
