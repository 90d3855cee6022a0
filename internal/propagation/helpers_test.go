package propagation

import (
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"testing"

	"github.com/ironsheep/label-propagator/internal/imaging"
	"github.com/ironsheep/label-propagator/internal/labels"
	"github.com/ironsheep/label-propagator/internal/similarity"
)

// noise returns a deterministic image of random colour blocks.
func noise(width, height, block int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	cols := (width + block - 1) / block
	rows := (height + block - 1) / block
	vals := make([]uint8, cols*rows)
	for i := range vals {
		vals[i] = uint8(20 + rng.Intn(200))
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := vals[(y/block)*cols+x/block]
			img.Set(x, y, color.RGBA{v, v / 2, v/3 + 40, 255})
		}
	}
	return img
}

// paste draws src onto a copy of dst at (x,y).
func paste(dst, src image.Image, x, y int) *image.RGBA {
	out := image.NewRGBA(dst.Bounds())
	draw.Draw(out, out.Bounds(), dst, dst.Bounds().Min, draw.Src)
	r := image.Rect(x, y, x+src.Bounds().Dx(), y+src.Bounds().Dy())
	draw.Draw(out, r, src, src.Bounds().Min, draw.Src)
	return out
}

func testSettings() Settings {
	s := DefaultSettings()
	s.Workers = 4
	s.ProgressInterval = 0
	return s
}

type fixture struct {
	dec     *imaging.MemoryDecoder
	store   *labels.Store
	records *imaging.Records
	orch    *Orchestrator
}

func newFixture(t *testing.T, settings Settings) *fixture {
	t.Helper()
	dec := imaging.NewMemoryDecoder()
	store := labels.NewStore(labels.ClassSet{Names: []string{"car", "person"}})
	records := imaging.NewRecords(dec)
	orch := New(settings, Deps{
		Store:   store,
		Index:   similarity.NewIndex(dec, ""),
		Decoder: dec,
		Records: records,
	})
	return &fixture{dec: dec, store: store, records: records, orch: orch}
}

func (f *fixture) label(t *testing.T, path string, r labels.Rect, class int) labels.Label {
	t.Helper()
	l, err := f.store.AddLabel(path, labels.Label{Rect: r, ClassID: class})
	if err != nil {
		t.Fatalf("AddLabel failed: %v", err)
	}
	return l
}
