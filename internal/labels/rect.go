package labels

import (
	"fmt"
	"image"
	"math"
)

// Rect is an axis-aligned box in pixel space. X and Y are the top-left corner.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// RectFrom converts an image.Rectangle.
func RectFrom(r image.Rectangle) Rect {
	r = r.Canon()
	return Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Valid reports whether the box has a positive area.
func (r Rect) Valid() bool {
	return r.W > 0 && r.H > 0
}

// Empty reports whether the box has no area.
func (r Rect) Empty() bool {
	return !r.Valid()
}

// Area returns W*H, or 0 for invalid boxes.
func (r Rect) Area() int {
	if !r.Valid() {
		return 0
	}
	return r.W * r.H
}

// Image returns the box as an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Center returns the box centre.
func (r Rect) Center() (float64, float64) {
	return float64(r.X) + float64(r.W)/2, float64(r.Y) + float64(r.H)/2
}

// Scale multiplies position and size independently per axis, rounding to the
// nearest pixel and keeping a non-empty box at least one pixel wide.
func (r Rect) Scale(sx, sy float64) Rect {
	x0 := int(math.Round(float64(r.X) * sx))
	y0 := int(math.Round(float64(r.Y) * sy))
	x1 := int(math.Round(float64(r.X+r.W) * sx))
	y1 := int(math.Round(float64(r.Y+r.H) * sy))
	out := Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
	if r.Valid() {
		out.W = max(out.W, 1)
		out.H = max(out.H, 1)
	}
	return out
}

// Clamp intersects the box with bounds.
func (r Rect) Clamp(bounds image.Rectangle) Rect {
	return RectFrom(r.Image().Intersect(bounds))
}

// Expand returns a box of factor times the size sharing the same centre.
func (r Rect) Expand(factor float64) Rect {
	cx, cy := r.Center()
	w := float64(r.W) * factor
	h := float64(r.H) * factor
	x0 := int(math.Floor(cx - w/2))
	y0 := int(math.Floor(cy - h/2))
	return Rect{X: x0, Y: y0, W: int(math.Ceil(cx+w/2)) - x0, H: int(math.Ceil(cy+h/2)) - y0}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.W, r.H)
}

// IoU returns the intersection-over-union of a and b in [0,1].
// Two invalid boxes, or disjoint boxes, yield 0.
func IoU(a, b Rect) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}
	inter := a.Image().Intersect(b.Image())
	if inter.Empty() {
		return 0
	}
	i := float64(inter.Dx() * inter.Dy())
	u := float64(a.Area()+b.Area()) - i
	if u <= 0 {
		return 0
	}
	return i / u
}
