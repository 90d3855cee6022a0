package project

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/label-propagator/internal/config"
	"github.com/ironsheep/label-propagator/internal/labels"
	"github.com/ironsheep/label-propagator/internal/propagation"
	"github.com/ironsheep/label-propagator/internal/similarity"
)

func writePNG(t *testing.T, path string, seed uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(x*4) ^ uint8(y*5) ^ seed
			img.Set(x, y, color.RGBA{v, 255 - v, v / 2, 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

func TestOpen_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	os.WriteFile(file, []byte("x"), 0o644)

	if _, err := Open(file, nil, nil); err == nil {
		t.Error("Open should reject a file")
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing"), nil, nil); err == nil {
		t.Error("Open should reject a missing directory")
	}
}

func TestOpen_ReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, config.DefaultFile), []byte("classes: [car, truck]\ncache_dir: cache\n"), 0o644)

	p, err := Open(dir, nil, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := p.Store.Classes().Name(1); got != "truck" {
		t.Errorf("class 1: got %q, want truck", got)
	}
	if want := filepath.Join(p.Dir, "cache", similarity.CacheFileName); p.cachePath() != want {
		t.Errorf("cache path: got %s, want %s", p.cachePath(), want)
	}
}

func TestProject_PropagateSaveReopen(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 0)
	writePNG(t, filepath.Join(dir, "b.png"), 0)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)

	p, err := Open(dir, nil, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	images, err := p.Images()
	if err != nil || len(images) != 2 {
		t.Fatalf("Images: got %v, %v", images, err)
	}

	a := p.Resolve("a.png")
	if _, err := p.Store.AddLabel(a, labels.Label{Rect: labels.Rect{X: 5, Y: 5, W: 20, H: 20}}); err != nil {
		t.Fatalf("AddLabel failed: %v", err)
	}
	sum, err := p.Engine.RunImageSimilarity(context.Background(), []string{a}, images, propagation.Options{})
	if err != nil {
		t.Fatalf("RunImageSimilarity failed: %v", err)
	}
	if sum.SuggestionsAdded != 1 {
		t.Fatalf("summary: got %+v", sum)
	}

	if err := p.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LabelsFile)); err != nil {
		t.Errorf("labels file missing: %v", err)
	}
	if _, err := os.Stat(p.cachePath()); err != nil {
		t.Errorf("hash cache missing: %v", err)
	}

	reopened, err := Open(dir, nil, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := reopened.Store.PendingCount(p.Resolve("b.png")); got != 1 {
		t.Errorf("pending after reopen: got %d, want 1", got)
	}
	if reopened.Index.Len() != 2 {
		t.Errorf("hash cache after reopen: got %d entries, want 2", reopened.Index.Len())
	}
}

func TestResolve(t *testing.T) {
	p := &Project{Dir: "/data/set"}
	if got := p.Resolve("img/a.png"); got != "/data/set/img/a.png" {
		t.Errorf("relative: got %s", got)
	}
	if got := p.Resolve("/other/../x.png"); got != "/x.png" {
		t.Errorf("absolute: got %s", got)
	}
}

func TestRelative(t *testing.T) {
	p := &Project{Dir: "/data/set"}
	tests := []struct {
		path string
		want string
	}{
		{"/data/set/a.png", "a.png"},
		{"/data/set/img/b.png", "img/b.png"},
		{"/data/other/c.png", "/data/other/c.png"},
		{"/data/settings/d.png", "/data/settings/d.png"},
	}
	for _, tt := range tests {
		if got := p.Relative(tt.path); got != tt.want {
			t.Errorf("Relative(%s) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestRefresh_ReplacedImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writePNG(t, path, 3)

	cfg := config.Default()
	p, err := Open(dir, &cfg, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	rec, err := p.Records.Get(path)
	if err != nil || rec.Width != 64 || rec.Height != 48 {
		t.Fatalf("initial record: got %+v, %v", rec, err)
	}
	if _, err := p.Index.Hash(path); err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	// Same path, new content and size.
	repl := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			repl.Set(x, y, color.RGBA{uint8(255 - x*6), uint8(y * 8), 90, 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to rewrite %s: %v", path, err)
	}
	if err := png.Encode(f, repl); err != nil {
		t.Fatalf("failed to encode replacement: %v", err)
	}
	f.Close()

	if err := p.Refresh(path); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	rec, err = p.Records.Get(path)
	if err != nil || rec.Width != 40 || rec.Height != 30 {
		t.Errorf("record after refresh: got %+v, %v; want 40x30", rec, err)
	}
	h, err := p.Index.Hash(path)
	if err != nil {
		t.Fatalf("Hash after refresh failed: %v", err)
	}
	if want := similarity.DHash(repl); h != want {
		t.Errorf("hash after refresh: got %016x, want %016x of the new content", h, want)
	}

	if err := p.Refresh(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("refreshing a missing file should fail")
	}
}
