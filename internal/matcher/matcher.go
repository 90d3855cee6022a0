package matcher

import (
	"context"
	"image"
	"math"
	"sync"

	"github.com/anthonynsimon/bild/parallel"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/label-propagator/internal/imaging"
	"github.com/ironsheep/label-propagator/internal/labels"
)

const (
	// AbsoluteFloor is the lowest score ever treated as a match, whatever threshold
	// the caller configured.
	AbsoluteFloor = 0.3

	// DefaultMaxSide bounds the longer side of the candidate during the scan.
	DefaultMaxSide = 640

	// DefaultMinTemplateSide is the smallest template side the downscale may produce.
	DefaultMinTemplateSide = 32

	// minStd is the standard deviation below which a channel is considered flat.
	minStd = 1e-3
)

// Accepts reports whether score is a match under threshold. The absolute floor always
// applies, so a threshold below it has no effect.
func Accepts(score, threshold float64) bool {
	return score >= math.Max(AbsoluteFloor, threshold)
}

// Result is the best location found for a template.
//
// A zero Result (Score 0, empty Rect) means nothing could be evaluated.
type Result struct {
	Score float64     `json:"score"`
	Rect  labels.Rect `json:"rect"`
}

// Matcher locates templates in candidate images by normalized cross-correlation.
//
// Matcher values are safe for concurrent use; Match keeps no state between calls.
type Matcher struct {
	// Stride is the step between evaluated offsets on both axes during the coarse
	// scan. Values below 1 are treated as 1.
	Stride int

	// MaxSide is the longest candidate side after downscaling.
	MaxSide int

	// MinTemplateSide is the smallest template side the downscale may produce.
	MinTemplateSide int
}

// New returns a Matcher with the default size limits.
func New(stride int) *Matcher {
	return &Matcher{
		Stride:          stride,
		MaxSide:         DefaultMaxSide,
		MinTemplateSide: DefaultMinTemplateSide,
	}
}

// ScaleFor returns the common downscale factor for a template of tw x th searched in
// a candidate of cw x ch. It shrinks the candidate to MaxSide unless that would take
// the template's shorter side below MinTemplateSide, in which case the factor is
// derived from the template instead. The factor never exceeds 1.
func (m *Matcher) ScaleFor(tw, th, cw, ch int) float64 {
	maxSide := m.MaxSide
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}
	minSide := m.MinTemplateSide
	if minSide <= 0 {
		minSide = DefaultMinTemplateSide
	}

	scale := math.Min(1, float64(maxSide)/float64(max(cw, ch)))
	if shortest := min(tw, th); shortest > 0 && float64(shortest)*scale < float64(minSide) {
		scale = math.Min(1, float64(minSide)/float64(shortest))
	}
	return scale
}

type prepared struct {
	w, h   int
	n      float64
	center [3][]float64
	std    [3]float64
}

func prepareTemplate(p *imaging.Planes) *prepared {
	t := &prepared{w: p.Width, h: p.Height, n: float64(p.Width * p.Height)}
	vals := make([]float64, p.Width*p.Height)
	for c := 0; c < 3; c++ {
		for i, v := range p.Channel(c) {
			vals[i] = float64(v)
		}
		mean, std := stat.PopMeanStdDev(vals, nil)
		t.std[c] = std
		centered := make([]float64, len(vals))
		for i, v := range vals {
			centered[i] = v - mean
		}
		t.center[c] = centered
	}
	return t
}

func (t *prepared) flat() bool {
	return t.std[0] < minStd && t.std[1] < minStd && t.std[2] < minStd
}

// integral holds summed-area tables of one channel and its square.
type integral struct {
	stride int
	sum    []int64
	sq     []int64
}

func newIntegral(plane []uint8, w, h int) *integral {
	in := &integral{stride: w + 1, sum: make([]int64, (w+1)*(h+1)), sq: make([]int64, (w+1)*(h+1))}
	for y := 0; y < h; y++ {
		var rowSum, rowSq int64
		for x := 0; x < w; x++ {
			v := int64(plane[y*w+x])
			rowSum += v
			rowSq += v * v
			i := (y+1)*in.stride + x + 1
			in.sum[i] = in.sum[i-in.stride] + rowSum
			in.sq[i] = in.sq[i-in.stride] + rowSq
		}
	}
	return in
}

func (in *integral) window(x, y, w, h int) (sum, sq int64) {
	a := y*in.stride + x
	b := a + w
	c := (y+h)*in.stride + x
	d := c + w
	return in.sum[d] - in.sum[b] - in.sum[c] + in.sum[a], in.sq[d] - in.sq[b] - in.sq[c] + in.sq[a]
}

type searchSpace struct {
	planes *imaging.Planes
	ints   [3]*integral
	tpl    *prepared
}

// score evaluates the template at offset (x,y) of the scaled candidate.
func (s *searchSpace) score(x, y int) float64 {
	t := s.tpl
	cw := s.planes.Width
	var total float64
	for c := 0; c < 3; c++ {
		if t.std[c] < minStd {
			continue
		}
		sum, sq := s.ints[c].window(x, y, t.w, t.h)
		mean := float64(sum) / t.n
		variance := float64(sq)/t.n - mean*mean
		if variance <= minStd*minStd {
			continue
		}
		imgStd := math.Sqrt(variance)

		plane := s.planes.Channel(c)
		tc := t.center[c]
		// Template values are mean-centred, so the image mean drops out of the sum.
		var acc float64
		for j := 0; j < t.h; j++ {
			row := plane[(y+j)*cw+x : (y+j)*cw+x+t.w]
			trow := tc[j*t.w : (j+1)*t.w]
			for i, v := range row {
				acc += float64(v) * trow[i]
			}
		}
		ncc := acc / (t.n * imgStd * t.std[c])
		total += math.Max(-1, math.Min(1, ncc))
	}
	return (total/3 + 1) / 2
}

type best struct {
	x, y  int
	score float64
	ok    bool
}

func (b best) beats(o best) bool {
	if !o.ok {
		return b.ok
	}
	if b.score != o.score {
		return b.score > o.score
	}
	if b.y != o.y {
		return b.y < o.y
	}
	return b.x < o.x
}

// Match finds the best location of template inside candidate. When search is non-nil
// only placements fully inside search (in candidate coordinates) are considered.
//
// The returned rectangle is in the candidate's coordinate space. An empty search
// space, a flat template or a cancelled context before any evaluation yields a zero
// Result.
func (m *Matcher) Match(ctx context.Context, template, candidate image.Image, search *image.Rectangle) Result {
	tb, cb := template.Bounds(), candidate.Bounds()
	if tb.Empty() || cb.Empty() {
		return Result{}
	}

	if search != nil && (tb.Dx() > search.Dx() || tb.Dy() > search.Dy()) {
		return Result{}
	}

	scale := m.ScaleFor(tb.Dx(), tb.Dy(), cb.Dx(), cb.Dy())
	cand := imaging.ChannelPlanes(imaging.Downscale(candidate, scale))
	tpl := prepareTemplate(imaging.ChannelPlanes(imaging.Downscale(template, scale)))
	if tpl.flat() {
		return Result{}
	}

	region := image.Rect(0, 0, cand.Width, cand.Height)
	if search != nil {
		sr := search.Sub(cb.Min)
		region = region.Intersect(image.Rect(
			int(math.Ceil(float64(sr.Min.X)*scale)),
			int(math.Ceil(float64(sr.Min.Y)*scale)),
			int(math.Floor(float64(sr.Max.X)*scale)),
			int(math.Floor(float64(sr.Max.Y)*scale)),
		))
	}
	minX, minY := region.Min.X, region.Min.Y
	maxX, maxY := region.Max.X-tpl.w, region.Max.Y-tpl.h
	if region.Empty() || maxX < minX || maxY < minY {
		return Result{}
	}

	space := &searchSpace{planes: cand, tpl: tpl}
	for c := 0; c < 3; c++ {
		space.ints[c] = newIntegral(cand.Channel(c), cand.Width, cand.Height)
	}

	stride := max(m.Stride, 1)
	var rows []int
	for y := minY; y <= maxY; y += stride {
		rows = append(rows, y)
	}

	var (
		mu     sync.Mutex
		global best
	)
	parallel.Line(len(rows), func(start, end int) {
		var local best
		for k := start; k < end; k++ {
			if ctx.Err() != nil {
				break
			}
			y := rows[k]
			for x := minX; x <= maxX; x += stride {
				cur := best{x: x, y: y, score: space.score(x, y), ok: true}
				if cur.beats(local) {
					local = cur
				}
			}
		}
		mu.Lock()
		if local.beats(global) {
			global = local
		}
		mu.Unlock()
	})
	if !global.ok {
		return Result{}
	}

	if stride > 1 && ctx.Err() == nil {
		global = refine(space, global, stride, minX, minY, maxX, maxY)
	}

	inv := 1 / scale
	rect := labels.Rect{
		X: cb.Min.X + int(math.Round(float64(global.x)*inv)),
		Y: cb.Min.Y + int(math.Round(float64(global.y)*inv)),
		W: tb.Dx(),
		H: tb.Dy(),
	}
	// Rounding back to full resolution may nudge the box past the window edge.
	bounds := cb
	if search != nil {
		bounds = search.Intersect(cb)
	}
	rect.X = max(bounds.Min.X, min(rect.X, bounds.Max.X-rect.W))
	rect.Y = max(bounds.Min.Y, min(rect.Y, bounds.Max.Y-rect.H))
	return Result{Score: math.Max(0, math.Min(1, global.score)), Rect: rect}
}

// refine re-scans the neighbourhood skipped by the coarse stride around b.
func refine(s *searchSpace, b best, stride, minX, minY, maxX, maxY int) best {
	for y := max(minY, b.y-stride+1); y <= min(maxY, b.y+stride-1); y++ {
		for x := max(minX, b.x-stride+1); x <= min(maxX, b.x+stride-1); x++ {
			cur := best{x: x, y: y, score: s.score(x, y), ok: true}
			if cur.beats(b) {
				b = cur
			}
		}
	}
	return b
}
