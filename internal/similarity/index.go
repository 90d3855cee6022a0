package similarity

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ironsheep/label-propagator/internal/imaging"
)

// Mode selects how two images are compared.
type Mode int

const (
	// ModeHash compares difference hashes by Hamming distance.
	ModeHash Mode = iota
	// ModeHistogram compares grayscale histograms by cosine similarity.
	ModeHistogram
)

func (m Mode) String() string {
	switch m {
	case ModeHash:
		return "hash"
	case ModeHistogram:
		return "histogram"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts "hash" or "histogram" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hash":
		return ModeHash, nil
	case "histogram":
		return ModeHistogram, nil
	}
	return ModeHash, fmt.Errorf("unknown similarity mode %q (want hash or histogram)", s)
}

// Index computes and caches per-image fingerprints.
//
// Hashes and histograms are computed on first request and then served from memory.
// Concurrent first requests for the same path may compute twice; both computations
// produce the same value, so the cache converges without a single-flight lock.
// Paths are keyed case-insensitively.
type Index struct {
	dec Decoder

	mu         sync.RWMutex
	hashes     map[string]uint64
	histograms map[string]Histogram
	dirty      bool

	writer *cacheWriter
}

// Decoder is the subset of imaging.Decoder the index needs.
type Decoder interface {
	Decode(path string) (image.Image, error)
}

var _ Decoder = imaging.FileDecoder{}

// NewIndex creates an index that decodes through dec. When cacheFile is non-empty the
// hash cache is persisted there (see Load, MaybeSave and Flush).
func NewIndex(dec Decoder, cacheFile string, opts ...Option) *Index {
	if dec == nil {
		dec = imaging.FileDecoder{}
	}
	idx := &Index{
		dec:        dec,
		hashes:     make(map[string]uint64),
		histograms: make(map[string]Histogram),
	}
	if cacheFile != "" {
		idx.writer = newCacheWriter(cacheFile, DefaultSaveInterval)
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func cacheKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return strings.ToLower(filepath.Clean(path))
}

// Hash returns the difference hash of the image at path.
func (idx *Index) Hash(path string) (uint64, error) {
	k := cacheKey(path)

	idx.mu.RLock()
	h, ok := idx.hashes[k]
	idx.mu.RUnlock()
	if ok {
		return h, nil
	}

	img, err := idx.dec.Decode(path)
	if err != nil {
		return 0, fmt.Errorf("hash %s: %w", path, err)
	}
	h = DHash(img)

	idx.mu.Lock()
	idx.hashes[k] = h
	idx.dirty = true
	idx.mu.Unlock()
	return h, nil
}

// Histogram returns the grayscale histogram of the image at path.
func (idx *Index) Histogram(path string) (Histogram, error) {
	k := cacheKey(path)

	idx.mu.RLock()
	h, ok := idx.histograms[k]
	idx.mu.RUnlock()
	if ok {
		return h, nil
	}

	img, err := idx.dec.Decode(path)
	if err != nil {
		return Histogram{}, fmt.Errorf("histogram %s: %w", path, err)
	}
	h = ComputeHistogram(img)

	idx.mu.Lock()
	idx.histograms[k] = h
	idx.mu.Unlock()
	return h, nil
}

// Similarity scores two images in [0,1] where 1 means identical under mode.
func (idx *Index) Similarity(a, b string, mode Mode) (float64, error) {
	switch mode {
	case ModeHash:
		ha, err := idx.Hash(a)
		if err != nil {
			return 0, err
		}
		hb, err := idx.Hash(b)
		if err != nil {
			return 0, err
		}
		return HashSimilarity(ha, hb), nil
	case ModeHistogram:
		ha, err := idx.Histogram(a)
		if err != nil {
			return 0, err
		}
		hb, err := idx.Histogram(b)
		if err != nil {
			return 0, err
		}
		return HistogramSimilarity(ha, hb), nil
	}
	return 0, fmt.Errorf("unsupported similarity mode %v", mode)
}

// Len returns the number of cached hashes.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.hashes)
}

// Forget drops cached fingerprints for path, e.g. after the file changed on disk.
func (idx *Index) Forget(path string) {
	k := cacheKey(path)
	idx.mu.Lock()
	if _, ok := idx.hashes[k]; ok {
		delete(idx.hashes, k)
		idx.dirty = true
	}
	delete(idx.histograms, k)
	idx.mu.Unlock()
}
