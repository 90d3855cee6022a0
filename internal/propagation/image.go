package propagation

import (
	"context"
	"log"

	"github.com/ironsheep/label-propagator/internal/labels"
)

type pair struct {
	source    string
	candidate string
}

// RunImageSimilarity copies the labels of each labeled source onto every candidate
// whose whole-image similarity reaches the image threshold. Label rectangles are
// scaled by the candidate/source size ratio on each axis.
//
// Unreadable images skip their pair. A cancelled ctx stops the run early and the
// partial summary is returned with a nil error.
func (o *Orchestrator) RunImageSimilarity(ctx context.Context, sources, candidates []string, opts Options) (Summary, error) {
	r := o.newRun(o.resolve(opts, o.settings.ImageThreshold))

	pairs := o.pairs(sources, candidates, r.cfg.skipLabeled)
	progress := newThrottle(r.cfg.progress, PhaseImage, len(pairs), o.settings.ProgressInterval)

	forEach(ctx, o.settings.Workers, len(pairs), func(i int) {
		defer progress.step()
		if ctx.Err() != nil {
			return
		}
		p := pairs[i]
		if r.budget.full(p.candidate) {
			return
		}

		score, err := o.index.Similarity(p.source, p.candidate, o.settings.Mode)
		if err != nil {
			log.Printf("WARNING: skipping %s -> %s: %v", p.source, p.candidate, err)
			return
		}
		if score < r.cfg.threshold {
			return
		}

		results, err := o.scaledLabels(p.source, p.candidate, score)
		if err != nil {
			log.Printf("WARNING: skipping %s -> %s: %v", p.source, p.candidate, err)
			return
		}
		r.emit(p.candidate, results)
	})
	progress.finish()

	return r.finish(ctx, "image"), nil
}

// pairs lists every (labeled source, candidate) combination worth comparing.
func (o *Orchestrator) pairs(sources, candidates []string, skipLabeled bool) []pair {
	targets := o.targets(candidates, skipLabeled)
	var out []pair
	for _, src := range sources {
		if !o.store.HasLabels(src) {
			continue
		}
		for _, cand := range targets {
			if samePath(src, cand) {
				continue
			}
			out = append(out, pair{source: src, candidate: cand})
		}
	}
	return out
}

func (o *Orchestrator) targets(candidates []string, skipLabeled bool) []string {
	if !skipLabeled {
		return candidates
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !o.store.HasLabels(c) {
			out = append(out, c)
		}
	}
	return out
}

func (o *Orchestrator) scaledLabels(source, candidate string, score float64) ([]labels.Suggestion, error) {
	src, err := o.records.Get(source)
	if err != nil {
		return nil, err
	}
	dst, err := o.records.Get(candidate)
	if err != nil {
		return nil, err
	}
	sx := float64(dst.Width) / float64(src.Width)
	sy := float64(dst.Height) / float64(src.Height)

	var out []labels.Suggestion
	for _, l := range o.store.Labels(source) {
		rect := l.Rect.Scale(sx, sy).Clamp(dst.Bounds())
		if !rect.Valid() {
			continue
		}
		out = append(out, labels.Suggestion{
			Rect:          rect,
			ClassID:       l.ClassID,
			Score:         score,
			Source:        labels.SourceImageSimilarity,
			SourceImage:   source,
			SourceLabelID: l.ID,
		})
	}
	return out, nil
}
