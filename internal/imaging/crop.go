package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// CropRegion extracts a rectangular region from an image.
//
// The region is given in the image's own coordinate space and is clipped to the image
// bounds before cropping. The result is always anchored at (0,0).
//
// Returns an error if the clipped region is empty.
func CropRegion(img image.Image, region image.Rectangle) (*image.NRGBA, error) {
	clipped := region.Intersect(img.Bounds())
	if clipped.Empty() {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", region, img.Bounds())
	}
	return imaging.Crop(img, clipped), nil
}

// Downscale resizes img by the factor scale using linear filtering.
//
// A scale of 1 (or more) returns the image converted to NRGBA without resampling, so
// the result can always be indexed directly. Dimensions never drop below one pixel.
func Downscale(img image.Image, scale float64) *image.NRGBA {
	if scale >= 1 {
		return imaging.Clone(img)
	}
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*scale+0.5))
	h := max(1, int(float64(b.Dy())*scale+0.5))
	return imaging.Resize(img, w, h, imaging.Linear)
}

// Planes holds the red, green and blue channels of an image as separate byte planes.
//
// Each plane is row-major with Stride == Width.
type Planes struct {
	Width  int
	Height int
	R      []uint8
	G      []uint8
	B      []uint8
}

// Channel returns plane c where 0=R, 1=G, 2=B.
func (p *Planes) Channel(c int) []uint8 {
	switch c {
	case 0:
		return p.R
	case 1:
		return p.G
	default:
		return p.B
	}
}

// ChannelPlanes splits an NRGBA image into three channel planes. Alpha is ignored.
func ChannelPlanes(img *image.NRGBA) *Planes {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	p := &Planes{
		Width:  w,
		Height: h,
		R:      make([]uint8, w*h),
		G:      make([]uint8, w*h),
		B:      make([]uint8, w*h),
	}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			p.R[i] = row[x*4]
			p.G[i] = row[x*4+1]
			p.B[i] = row[x*4+2]
		}
	}
	return p
}
