package imaging

import (
	"image"
	"image/color"
	"testing"
)

// createInMemoryImage creates an in-memory test image
func createInMemoryImage(width, height int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createPatternImage creates an image with different colors in each quadrant
func createPatternImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.Color
			if x < width/2 && y < height/2 {
				c = color.RGBA{255, 0, 0, 255} // Red top-left
			} else if x >= width/2 && y < height/2 {
				c = color.RGBA{0, 255, 0, 255} // Green top-right
			} else if x < width/2 && y >= height/2 {
				c = color.RGBA{0, 0, 255, 255} // Blue bottom-left
			} else {
				c = color.RGBA{255, 255, 255, 255} // White bottom-right
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCropRegion(t *testing.T) {
	img := createPatternImage(100, 100)

	cropped, err := CropRegion(img, image.Rect(50, 0, 100, 50))
	if err != nil {
		t.Fatalf("CropRegion failed: %v", err)
	}
	if cropped.Bounds() != image.Rect(0, 0, 50, 50) {
		t.Errorf("bounds: got %v, want (0,0)-(50,50)", cropped.Bounds())
	}

	got := cropped.NRGBAAt(10, 10)
	if got.R != 0 || got.G != 255 || got.B != 0 {
		t.Errorf("cropped top-right quadrant should be green, got %v", got)
	}
}

func TestCropRegion_ClipsToBounds(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 0, 0, 255})

	cropped, err := CropRegion(img, image.Rect(80, 80, 150, 150))
	if err != nil {
		t.Fatalf("CropRegion failed: %v", err)
	}
	if cropped.Bounds().Dx() != 20 || cropped.Bounds().Dy() != 20 {
		t.Errorf("clipped dimensions: got %dx%d, want 20x20", cropped.Bounds().Dx(), cropped.Bounds().Dy())
	}
}

func TestCropRegion_OutOfBounds(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 0, 0, 255})

	tests := []struct {
		name   string
		region image.Rectangle
	}{
		{"entirely left", image.Rect(-50, 0, -1, 50)},
		{"entirely below", image.Rect(0, 200, 50, 250)},
		{"empty", image.Rect(10, 10, 10, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CropRegion(img, tt.region); err == nil {
				t.Error("CropRegion should fail for a region outside the image")
			}
		})
	}
}

func TestDownscale(t *testing.T) {
	img := createInMemoryImage(200, 100, color.RGBA{10, 20, 30, 255})

	tests := []struct {
		name  string
		scale float64
		w, h  int
	}{
		{"half", 0.5, 100, 50},
		{"identity", 1.0, 200, 100},
		{"never upscales", 2.0, 200, 100},
		{"at least one pixel", 0.001, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Downscale(img, tt.scale)
			if out.Bounds().Dx() != tt.w || out.Bounds().Dy() != tt.h {
				t.Errorf("dimensions: got %dx%d, want %dx%d", out.Bounds().Dx(), out.Bounds().Dy(), tt.w, tt.h)
			}
		})
	}
}

func TestChannelPlanes(t *testing.T) {
	img := Downscale(createPatternImage(4, 4), 1)
	p := ChannelPlanes(img)

	if p.Width != 4 || p.Height != 4 {
		t.Fatalf("plane dimensions: got %dx%d, want 4x4", p.Width, p.Height)
	}
	// (0,0) red, (3,0) green, (0,3) blue, (3,3) white
	checks := []struct {
		x, y    int
		r, g, b uint8
	}{
		{0, 0, 255, 0, 0},
		{3, 0, 0, 255, 0},
		{0, 3, 0, 0, 255},
		{3, 3, 255, 255, 255},
	}
	for _, c := range checks {
		i := c.y*p.Width + c.x
		if p.R[i] != c.r || p.G[i] != c.g || p.B[i] != c.b {
			t.Errorf("pixel (%d,%d): got (%d,%d,%d), want (%d,%d,%d)", c.x, c.y, p.R[i], p.G[i], p.B[i], c.r, c.g, c.b)
		}
	}
	if &p.Channel(0)[0] != &p.R[0] || &p.Channel(2)[0] != &p.B[0] {
		t.Error("Channel did not return the matching plane")
	}
}
