package similarity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ironsheep/label-propagator/internal/imaging"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestDebouncer(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	d := NewDebouncer(10 * time.Second)
	d.now = clock.now

	if !d.Allow() {
		t.Fatal("first call must be allowed")
	}
	clock.t = clock.t.Add(5 * time.Second)
	if d.Allow() {
		t.Error("call inside the interval must be gated")
	}
	clock.t = clock.t.Add(6 * time.Second)
	if !d.Allow() {
		t.Error("call after the interval must be allowed")
	}
	d.Mark()
	if d.Allow() {
		t.Error("Mark must restart the interval")
	}
}

func TestIndex_MaybeSaveDebounced(t *testing.T) {
	dir := t.TempDir()
	cacheFile := filepath.Join(dir, ".labelprop", CacheFileName)
	clock := &fakeClock{t: time.Unix(1000, 0)}

	dec := imaging.NewMemoryDecoder()
	dec.Add("/img/a.png", checkerImage(32, 32, 4))
	dec.Add("/img/b.png", gradientImage(32, 32))
	idx := NewIndex(dec, cacheFile, WithSaveInterval(time.Minute), WithClock(clock.now))

	if idx.MaybeSave() {
		t.Error("clean cache must not be written")
	}

	idx.Hash("/img/a.png")
	if !idx.MaybeSave() {
		t.Fatal("first dirty save must be written")
	}
	if _, err := os.Stat(cacheFile); err != nil {
		t.Fatalf("cache file missing: %v", err)
	}

	idx.Hash("/img/b.png")
	clock.t = clock.t.Add(10 * time.Second)
	if idx.MaybeSave() {
		t.Error("save inside the debounce interval must be skipped")
	}

	clock.t = clock.t.Add(time.Minute)
	if !idx.MaybeSave() {
		t.Error("save after the interval must be written")
	}

	data, _ := os.ReadFile(cacheFile)
	var stored map[string]uint64
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("cache file is not a JSON path->hash map: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored hashes: got %d, want 2", len(stored))
	}
}

func TestIndex_FlushAndLoad(t *testing.T) {
	cacheFile := filepath.Join(t.TempDir(), CacheFileName)
	dec := imaging.NewMemoryDecoder()
	dec.Add("/img/a.png", checkerImage(32, 32, 4))

	idx := NewIndex(dec, cacheFile)
	want, _ := idx.Hash("/img/a.png")
	if err := idx.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// A fresh index with an empty decoder can only answer from the file.
	reloaded := NewIndex(imaging.NewMemoryDecoder(), cacheFile)
	if n := reloaded.Load(); n != 1 {
		t.Fatalf("Load: got %d entries, want 1", n)
	}
	got, err := reloaded.Hash("/img/a.png")
	if err != nil {
		t.Fatalf("Hash after Load failed: %v", err)
	}
	if got != want {
		t.Errorf("reloaded hash: got %016x, want %016x", got, want)
	}
}

func TestIndex_LoadMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()

	missing := NewIndex(nil, filepath.Join(dir, "missing.json"))
	if n := missing.Load(); n != 0 || missing.Len() != 0 {
		t.Error("missing cache file must yield an empty cache")
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	os.WriteFile(corrupt, []byte("{not json"), 0o644)
	idx := NewIndex(nil, corrupt)
	if n := idx.Load(); n != 0 || idx.Len() != 0 {
		t.Error("corrupt cache file must yield an empty cache")
	}
}

func TestIndex_SaveFailureIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	os.WriteFile(blocker, []byte("x"), 0o644)

	dec := imaging.NewMemoryDecoder()
	dec.Add("/img/a.png", checkerImage(16, 16, 4))
	// The cache directory cannot be created below a regular file.
	idx := NewIndex(dec, filepath.Join(blocker, "sub", CacheFileName))
	idx.Hash("/img/a.png")

	if idx.MaybeSave() {
		t.Error("MaybeSave must report the failed write")
	}
	if err := idx.Flush(); err == nil {
		t.Error("Flush should return the write error")
	}
}
