package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// Decoder turns an image path into pixels.
//
// It is the seam between the propagation engine and whatever actually reads
// image files. The engine never opens files itself; tests substitute in-memory
// decoders and production code uses FileDecoder.
type Decoder interface {
	// Decode returns the full decoded image stored at path.
	Decode(path string) (image.Image, error)

	// DecodeConfig returns only the dimensions and color model of the image at
	// path. Implementations should avoid decoding pixel data here.
	DecodeConfig(path string) (image.Config, error)
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// IsImageFile reports whether name has an extension FileDecoder can read.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// FileDecoder decodes images from the local filesystem.
//
// Supported formats are PNG, JPEG, GIF, BMP, TIFF and WebP.
type FileDecoder struct{}

// Decode opens and fully decodes the image at path.
func (FileDecoder) Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// DecodeConfig reads only the image header at path.
func (FileDecoder) DecodeConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Config{}, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg, nil
}

// ImageCache provides thread-safe caching of decoded images to avoid redundant decodes.
//
// The cache stores decoded image.Image objects keyed by their cleaned file path. Once an
// image is loaded, subsequent Load() calls for the same path return the cached copy
// without touching the Decoder.
//
// ImageCache is safe for concurrent use by multiple goroutines. Two goroutines that miss
// on the same path at the same time may both decode it; the last one stored wins, which
// is harmless because decoding is deterministic.
//
// # Memory Management
//
// A propagation run creates one ImageCache and clears it when the run returns, so decoded
// pixels never outlive the run that needed them.
//
// # Example Usage
//
//	cache := imaging.NewImageCache(imaging.FileDecoder{})
//	defer cache.Clear()
//	img, err := cache.Load("/path/to/frame_0001.png")
type ImageCache struct {
	dec    Decoder
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewImageCache creates an empty image cache backed by dec.
//
// A nil decoder falls back to FileDecoder.
func NewImageCache(dec Decoder) *ImageCache {
	if dec == nil {
		dec = FileDecoder{}
	}
	return &ImageCache{
		dec:    dec,
		images: make(map[string]image.Image),
	}
}

// Load retrieves an image from the cache or decodes it if not cached.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: Non-nil if the decoder fails. Failed decodes are not cached.
func (c *ImageCache) Load(path string) (image.Image, error) {
	key := filepath.Clean(path)

	c.mu.RLock()
	if img, ok := c.images[key]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := c.dec.Decode(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if cached, ok := c.images[key]; ok {
		img = cached
	} else {
		c.images[key] = img
	}
	c.mu.Unlock()

	return img, nil
}

// Len reports how many decoded images are currently held.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear removes all images from the cache, freeing the associated memory.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
//
// If the path is not in the cache, this method does nothing.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, filepath.Clean(path))
	c.mu.Unlock()
}

// ImageRecord holds the cached dimensions of an image file.
//
// Propagation rescales rectangles between images of different sizes; keeping the
// dimensions here avoids decoding full pixel data just to learn them.
type ImageRecord struct {
	// Path is the image path as first requested.
	Path string `json:"path"`

	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`
}

// Bounds returns the record's extent as a rectangle anchored at the origin.
func (r ImageRecord) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Width, r.Height)
}

// Records caches ImageRecord values per path. It is safe for concurrent use and lives
// for as long as its owner (typically a project) does.
type Records struct {
	dec     Decoder
	mu      sync.RWMutex
	records map[string]ImageRecord
}

// NewRecords creates an empty dimension cache backed by dec.
func NewRecords(dec Decoder) *Records {
	if dec == nil {
		dec = FileDecoder{}
	}
	return &Records{
		dec:     dec,
		records: make(map[string]ImageRecord),
	}
}

// Get returns the dimensions of the image at path, reading its header on first use.
func (r *Records) Get(path string) (ImageRecord, error) {
	key := filepath.Clean(path)

	r.mu.RLock()
	rec, ok := r.records[key]
	r.mu.RUnlock()
	if ok {
		return rec, nil
	}

	cfg, err := r.dec.DecodeConfig(path)
	if err != nil {
		return ImageRecord{}, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageRecord{}, fmt.Errorf("image %s has invalid dimensions %dx%d", path, cfg.Width, cfg.Height)
	}

	rec = ImageRecord{Path: path, Width: cfg.Width, Height: cfg.Height}
	r.mu.Lock()
	r.records[key] = rec
	r.mu.Unlock()
	return rec, nil
}

// Put stores dimensions learned elsewhere, e.g. from an already decoded image.
func (r *Records) Put(path string, width, height int) {
	r.mu.Lock()
	r.records[filepath.Clean(path)] = ImageRecord{Path: path, Width: width, Height: height}
	r.mu.Unlock()
}
