package imaging

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
)

// MemoryDecoder serves images from memory and records every path it was asked for.
//
// It is used where images are produced programmatically (synthetic frames, tests) and
// to observe which files a propagation run actually touched.
type MemoryDecoder struct {
	mu      sync.Mutex
	images  map[string]image.Image
	decoded map[string]int
}

// NewMemoryDecoder returns an empty MemoryDecoder.
func NewMemoryDecoder() *MemoryDecoder {
	return &MemoryDecoder{
		images:  make(map[string]image.Image),
		decoded: make(map[string]int),
	}
}

// Add registers img under path.
func (m *MemoryDecoder) Add(path string, img image.Image) {
	m.mu.Lock()
	m.images[filepath.Clean(path)] = img
	m.mu.Unlock()
}

// Decode returns the image registered under path.
func (m *MemoryDecoder) Decode(path string) (image.Image, error) {
	key := filepath.Clean(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decoded[key]++
	img, ok := m.images[key]
	if !ok {
		return nil, fmt.Errorf("failed to open image: %w", os.ErrNotExist)
	}
	return img, nil
}

// DecodeConfig returns the dimensions of the image registered under path.
func (m *MemoryDecoder) DecodeConfig(path string) (image.Config, error) {
	m.mu.Lock()
	img, ok := m.images[filepath.Clean(path)]
	m.mu.Unlock()
	if !ok {
		return image.Config{}, fmt.Errorf("failed to open image: %w", os.ErrNotExist)
	}
	b := img.Bounds()
	return image.Config{ColorModel: img.ColorModel(), Width: b.Dx(), Height: b.Dy()}, nil
}

// Decoded returns how many times each path was passed to Decode.
func (m *MemoryDecoder) Decoded() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.decoded))
	for k, v := range m.decoded {
		out[k] = v
	}
	return out
}
