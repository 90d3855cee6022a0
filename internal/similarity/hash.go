package similarity

import (
	"image"
	"math"
	"math/bits"

	"github.com/anthonynsimon/bild/effect"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"
)

// HistogramBins is the number of grayscale intensity bins in a Histogram.
const HistogramBins = 16

// Histogram is a grayscale intensity histogram normalized by pixel count.
type Histogram [HistogramBins]float32

// DHash computes a 64-bit difference hash.
//
// The image is resized to 9x8 and converted to grayscale. For each row, bit
// row*8+col is set when pixel col is brighter than pixel col+1.
func DHash(img image.Image) uint64 {
	small := image.NewRGBA(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var gray [8][9]float64
	for y := 0; y < 8; y++ {
		for x := 0; x < 9; x++ {
			c := small.RGBAAt(x, y)
			// ITU-R BT.601 luma formula.
			gray[y][x] = 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
		}
	}

	var hash uint64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if gray[y][x] > gray[y][x+1] {
				hash |= 1 << uint(y*8+x)
			}
		}
	}
	return hash
}

// ComputeHistogram returns the 16-bin grayscale histogram of img.
func ComputeHistogram(img image.Image) Histogram {
	var h Histogram
	gray := effect.Grayscale(img)
	b := gray.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return h
	}

	var counts [HistogramBins]int
	// Grayscale keeps RGBA layout; R holds the intensity.
	for y := 0; y < b.Dy(); y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()*4]
		for x := 0; x < b.Dx(); x++ {
			counts[int(row[x*4])*HistogramBins/256]++
		}
	}
	for i, c := range counts {
		h[i] = float32(float64(c) / float64(total))
	}
	return h
}

// HammingDistance counts differing bits.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// HashSimilarity maps the Hamming distance of two hashes onto [0,1], 1 = identical.
func HashSimilarity(a, b uint64) float64 {
	return 1 - float64(HammingDistance(a, b))/64
}

// CosineSimilarity returns the cosine of the angle between a and b clamped to [0,1].
// Zero-norm or mismatched inputs yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	aa := floats.Dot(a, a)
	bb := floats.Dot(b, b)
	if aa == 0 || bb == 0 {
		return 0
	}
	s := floats.Dot(a, b) / math.Sqrt(aa*bb)
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// HistogramSimilarity is the cosine similarity of two histograms.
func HistogramSimilarity(a, b Histogram) float64 {
	return CosineSimilarity(a.vector(), b.vector())
}

func (h Histogram) vector() []float64 {
	v := make([]float64, HistogramBins)
	for i, x := range h {
		v[i] = float64(x)
	}
	return v
}
