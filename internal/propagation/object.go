package propagation

import (
	"context"
	"image"
	"log"
	"sort"
	"sync"

	"github.com/ironsheep/label-propagator/internal/imaging"
	"github.com/ironsheep/label-propagator/internal/labels"
	"github.com/ironsheep/label-propagator/internal/matcher"
)

type ranked struct {
	path  string
	score float64
}

type matchUnit struct {
	source    string
	label     labels.Label
	candidate string
}

// RunObjectSimilarity searches candidates for each labeled object of each source.
//
// Unless ranking is disabled, candidates are first ranked by whole-image similarity
// to the source and only the TopK are searched. Every label of the source is cropped
// as a template and matched against each remaining candidate; a match is emitted when
// it clears both the absolute floor and the object threshold and its box is at least
// MinBoxSize on each side.
func (o *Orchestrator) RunObjectSimilarity(ctx context.Context, sources, candidates []string, opts ObjectOptions) (Summary, error) {
	r := o.newRun(o.resolve(opts.Options, o.settings.ObjectThreshold))
	cache := imaging.NewImageCache(o.decoder)
	defer cache.Clear()

	topK := opts.TopK
	if topK == 0 {
		topK = o.settings.TopK
	}

	pairs := o.pairs(sources, candidates, r.cfg.skipLabeled)
	perSource := o.rank(ctx, r, pairs, opts.DisableRanking, topK)

	var units []matchUnit
	for _, src := range sources {
		cands := perSource[src]
		if len(cands) == 0 {
			continue
		}
		for _, l := range o.store.Labels(src) {
			for _, c := range cands {
				units = append(units, matchUnit{source: src, label: l, candidate: c})
			}
		}
	}

	templates := newTemplateCache(cache)
	progress := newThrottle(r.cfg.progress, PhaseObjectMatching, len(units), o.settings.ProgressInterval)

	forEach(ctx, o.settings.Workers, len(units), func(i int) {
		defer progress.step()
		if ctx.Err() != nil {
			return
		}
		u := units[i]
		if r.budget.full(u.candidate) {
			return
		}

		tpl, err := templates.get(u.source, u.label)
		if err != nil {
			log.Printf("WARNING: skipping label %s of %s: %v", u.label.ID, u.source, err)
			return
		}
		img, err := cache.Load(u.candidate)
		if err != nil {
			log.Printf("WARNING: skipping %s: %v", u.candidate, err)
			return
		}

		res := o.matcher.Match(ctx, tpl, img, nil)
		if !matcher.Accepts(res.Score, r.cfg.threshold) {
			return
		}
		rect := res.Rect.Clamp(img.Bounds())
		if rect.W < o.settings.MinBoxSize || rect.H < o.settings.MinBoxSize {
			return
		}
		r.emit(u.candidate, []labels.Suggestion{{
			Rect:          rect,
			ClassID:       u.label.ClassID,
			Score:         res.Score,
			Source:        labels.SourceObjectSimilarity,
			SourceImage:   u.source,
			SourceLabelID: u.label.ID,
		}})
	})
	progress.finish()

	return r.finish(ctx, "object"), nil
}

// rank groups candidates per source, keeping the topK most similar when ranking is on.
func (o *Orchestrator) rank(ctx context.Context, r *run, pairs []pair, disabled bool, topK int) map[string][]string {
	out := make(map[string][]string)
	if disabled {
		for _, p := range pairs {
			out[p.source] = append(out[p.source], p.candidate)
		}
		return out
	}

	scores := make([]float64, len(pairs))
	valid := make([]bool, len(pairs))
	progress := newThrottle(r.cfg.progress, PhaseObjectRanking, len(pairs), o.settings.ProgressInterval)
	forEach(ctx, o.settings.Workers, len(pairs), func(i int) {
		defer progress.step()
		if ctx.Err() != nil {
			return
		}
		s, err := o.index.Similarity(pairs[i].source, pairs[i].candidate, o.settings.Mode)
		if err != nil {
			log.Printf("WARNING: skipping %s -> %s: %v", pairs[i].source, pairs[i].candidate, err)
			return
		}
		scores[i] = s
		valid[i] = true
	})
	progress.finish()

	byScore := make(map[string][]ranked)
	for i, p := range pairs {
		if valid[i] {
			byScore[p.source] = append(byScore[p.source], ranked{path: p.candidate, score: scores[i]})
		}
	}
	for src, list := range byScore {
		sort.SliceStable(list, func(a, b int) bool {
			if list[a].score != list[b].score {
				return list[a].score > list[b].score
			}
			return list[a].path < list[b].path
		})
		if topK > 0 && len(list) > topK {
			list = list[:topK]
		}
		paths := make([]string, len(list))
		for i, c := range list {
			paths[i] = c.path
		}
		out[src] = paths
	}
	return out
}

// templateCache crops each source label once per run.
type templateCache struct {
	images *imaging.ImageCache

	mu    sync.RWMutex
	crops map[string]image.Image
}

func newTemplateCache(images *imaging.ImageCache) *templateCache {
	return &templateCache{images: images, crops: make(map[string]image.Image)}
}

func (t *templateCache) get(source string, l labels.Label) (image.Image, error) {
	k := source + "\x00" + l.ID
	t.mu.RLock()
	tpl, ok := t.crops[k]
	t.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	img, err := t.images.Load(source)
	if err != nil {
		return nil, err
	}
	crop, err := imaging.CropRegion(img, l.Rect.Image())
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.crops[k] = crop
	t.mu.Unlock()
	return crop, nil
}
