package overlay

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/label-propagator/internal/labels"
)

// Options control what Render draws.
type Options struct {
	// HideLabels skips committed labels.
	HideLabels bool

	// HideSuggestions skips pending suggestions.
	HideSuggestions bool

	// MinScore hides suggestions scoring below it.
	MinScore float64

	// Color overrides the per-class palette with a single "#RRGGBB" colour.
	Color string

	// MaxSide shrinks the output so its longer side is at most MaxSide. Zero keeps the
	// original size.
	MaxSide int

	// ShowTags draws the class id (and score for suggestions) above each box.
	ShowTags bool
}

// Result is a rendered overlay.
type Result struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	Labels      int    `json:"labels"`
	Suggestions int    `json:"suggestions"`
}

// ClassColor returns a stable, well separated colour for a class id.
func ClassColor(classID int) color.RGBA {
	hue := math.Mod(float64(classID)*137.508, 360)
	if hue < 0 {
		hue += 360
	}
	r, g, b := colorful.Hsv(hue, 0.85, 0.95).Clamped().RGB255()
	return color.RGBA{r, g, b, 255}
}

// Draw paints committed labels as solid boxes and suggestions as dashed boxes onto a
// copy of img. It returns the copy and how many boxes of each kind were drawn.
func Draw(img image.Image, committed []labels.Label, pending []labels.Suggestion, opts Options) (*image.RGBA, int, int, error) {
	var override *color.RGBA
	if opts.Color != "" {
		c, err := colorful.Hex(opts.Color)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("invalid color %q: %w", opts.Color, err)
		}
		r, g, b := c.RGB255()
		override = &color.RGBA{r, g, b, 255}
	}
	pick := func(classID int) color.RGBA {
		if override != nil {
			return *override
		}
		return ClassColor(classID)
	}

	scale := 1.0
	src := img
	if b := img.Bounds(); opts.MaxSide > 0 && max(b.Dx(), b.Dy()) > opts.MaxSide {
		scale = float64(opts.MaxSide) / float64(max(b.Dx(), b.Dy()))
		src = imaging.Fit(img, opts.MaxSide, opts.MaxSide, imaging.Linear)
	}

	bounds := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), src, bounds.Min, draw.Src)

	tagFG := color.RGBA{255, 255, 255, 255}
	nLabels, nSuggestions := 0, 0

	if !opts.HideLabels {
		for _, l := range committed {
			r := l.Rect.Scale(scale, scale).Clamp(out.Bounds())
			if !r.Valid() {
				continue
			}
			c := pick(l.ClassID)
			strokeRect(out, r, c, 0)
			if opts.ShowTags {
				drawTag(out, r.X, r.Y, fmt.Sprintf("%d", l.ClassID), tagFG, c)
			}
			nLabels++
		}
	}

	if !opts.HideSuggestions {
		for _, s := range pending {
			if s.Score < opts.MinScore {
				continue
			}
			r := s.Rect.Scale(scale, scale).Clamp(out.Bounds())
			if !r.Valid() {
				continue
			}
			c := pick(s.ClassID)
			strokeRect(out, r, c, 4)
			if opts.ShowTags {
				drawTag(out, r.X, r.Y, fmt.Sprintf("%d %.2f", s.ClassID, s.Score), tagFG, c)
			}
			nSuggestions++
		}
	}
	return out, nLabels, nSuggestions, nil
}

// Render draws the overlay and encodes it as a base64 PNG.
func Render(img image.Image, committed []labels.Label, pending []labels.Suggestion, opts Options) (*Result, error) {
	out, nl, ns, err := Draw(img, committed, pending, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &Result{
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
		Labels:      nl,
		Suggestions: ns,
	}, nil
}

// strokeRect outlines r. A positive dash alternates dash pixels on and off.
func strokeRect(img *image.RGBA, r labels.Rect, c color.RGBA, dash int) {
	on := func(i int) bool { return dash <= 0 || (i/dash)%2 == 0 }
	x0, y0 := r.X, r.Y
	x1, y1 := r.X+r.W-1, r.Y+r.H-1
	for i, x := 0, x0; x <= x1; i, x = i+1, x+1 {
		if on(i) {
			img.SetRGBA(x, y0, c)
			img.SetRGBA(x, y1, c)
		}
	}
	for i, y := 0, y0; y <= y1; i, y = i+1, y+1 {
		if on(i) {
			img.SetRGBA(x0, y, c)
			img.SetRGBA(x1, y, c)
		}
	}
}

// drawTag writes text on a filled background just above top, or just inside the box
// when there is no room above it.
func drawTag(img *image.RGBA, x, top int, text string, fg, bg color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()

	y := top - face.Height
	if y < img.Bounds().Min.Y {
		y = top
	}
	box := image.Rect(x-1, y, x+width+1, y+face.Height).Intersect(img.Bounds())
	draw.Draw(img, box, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	d.DrawString(text)
}
