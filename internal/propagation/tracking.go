package propagation

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/ironsheep/label-propagator/internal/imaging"
	"github.com/ironsheep/label-propagator/internal/labels"
	"github.com/ironsheep/label-propagator/internal/matcher"
)

// TrackingFrames returns the frame indices visited from anchor in a sequence of n
// frames: up to window frames after it in increasing order and up to window frames
// before it in decreasing order. Indices never leave [0, n-1]; an anchor outside that
// range yields no frames.
func TrackingFrames(n, anchor, window int) (forward, backward []int) {
	if anchor < 0 || anchor >= n || window <= 0 {
		return nil, nil
	}
	for i := anchor + 1; i <= min(anchor+window, n-1); i++ {
		forward = append(forward, i)
	}
	for i := anchor - 1; i >= max(anchor-window, 0); i-- {
		backward = append(backward, i)
	}
	return forward, backward
}

// track is one label followed through a direction of the sequence.
type track struct {
	label    labels.Label
	template image.Image
	last     labels.Rect
}

// RunTracking follows every label of frames[anchor] through neighbouring frames.
//
// Both directions run concurrently. Within a direction frames are visited in order
// and each label is searched for in a window twice its size centred on its last known
// position; an accepted match moves that position, so drift is carried from frame to
// frame. The anchor frame's crops are the templates throughout. Matches below the
// absolute floor are never emitted, whatever the threshold. A frame stops receiving
// results once its cap is reached.
func (o *Orchestrator) RunTracking(ctx context.Context, frames []string, anchor int, opts TrackingOptions) (Summary, error) {
	if anchor < 0 || anchor >= len(frames) {
		return Summary{}, fmt.Errorf("anchor frame %d outside sequence of %d frames", anchor, len(frames))
	}
	window := opts.FrameWindow
	if window <= 0 {
		window = DefaultFrameWindow
	}

	r := o.newRun(o.resolve(opts.Options, o.settings.TrackingThreshold))
	cache := imaging.NewImageCache(o.decoder)
	defer cache.Clear()

	src := frames[anchor]
	tracked := o.store.Labels(src)
	if len(tracked) == 0 {
		return r.finish(ctx, "tracking"), nil
	}

	anchorImg, err := cache.Load(src)
	if err != nil {
		return Summary{}, fmt.Errorf("load anchor frame: %w", err)
	}
	var base []track
	for _, l := range tracked {
		tpl, err := imaging.CropRegion(anchorImg, l.Rect.Image())
		if err != nil {
			log.Printf("WARNING: cannot track label %s of %s: %v", l.ID, src, err)
			continue
		}
		base = append(base, track{label: l, template: tpl, last: l.Rect})
	}

	forward, backward := TrackingFrames(len(frames), anchor, window)
	progress := newThrottle(r.cfg.progress, PhaseTracking, len(forward)+len(backward), o.settings.ProgressInterval)

	var wg sync.WaitGroup
	for _, dir := range [][]int{forward, backward} {
		tracks := append([]track(nil), base...)
		wg.Add(1)
		go func(indices []int) {
			defer wg.Done()
			for _, idx := range indices {
				if ctx.Err() != nil {
					return
				}
				o.trackFrame(ctx, r, cache, src, frames[idx], tracks)
				// Each frame is visited by exactly one direction.
				cache.Evict(frames[idx])
				progress.step()
			}
		}(dir)
	}
	wg.Wait()
	progress.finish()

	return r.finish(ctx, "tracking"), nil
}

// trackFrame searches one frame for every track, updating positions in place and
// emitting accepted matches in label order.
func (o *Orchestrator) trackFrame(ctx context.Context, r *run, cache *imaging.ImageCache, source, frame string, tracks []track) {
	if r.budget.full(frame) {
		return
	}
	img, err := cache.Load(frame)
	if err != nil {
		log.Printf("WARNING: skipping frame %s: %v", frame, err)
		return
	}
	bounds := img.Bounds()
	o.records.Put(frame, bounds.Dx(), bounds.Dy())

	found := make([]*labels.Suggestion, len(tracks))
	forEach(ctx, o.settings.Workers, len(tracks), func(i int) {
		t := &tracks[i]
		search := t.last.Expand(2).Clamp(bounds).Image()
		res := o.matcher.Match(ctx, t.template, img, &search)
		if !matcher.Accepts(res.Score, r.cfg.threshold) {
			return
		}
		rect := res.Rect.Clamp(bounds)
		if rect.W < o.settings.MinBoxSize || rect.H < o.settings.MinBoxSize {
			return
		}
		t.last = rect
		found[i] = &labels.Suggestion{
			Rect:          rect,
			ClassID:       t.label.ClassID,
			Score:         res.Score,
			Source:        labels.SourceTracking,
			SourceImage:   source,
			SourceLabelID: t.label.ID,
		}
	})

	if r.cfg.skipLabeled && o.store.HasLabels(frame) {
		return
	}
	var results []labels.Suggestion
	for _, s := range found {
		if s != nil {
			results = append(results, *s)
		}
	}
	r.emit(frame, results)
}
