package propagation

import (
	"context"
	"sync"
	"testing"

	"github.com/ironsheep/label-propagator/internal/labels"
)

func objectScene(t *testing.T) (*fixture, labels.Label) {
	t.Helper()
	f := newFixture(t, testSettings())
	bg := noise(160, 120, 4, 1)
	obj := noise(24, 24, 3, 99)
	f.dec.Add("a.png", paste(bg, obj, 20, 20))
	f.dec.Add("b.png", paste(bg, obj, 90, 60))
	src := f.label(t, "a.png", labels.Rect{X: 20, Y: 20, W: 24, H: 24}, 1)
	return f, src
}

func TestRunObjectSimilarity_FindsMovedObject(t *testing.T) {
	f, src := objectScene(t)

	sum, err := f.orch.RunObjectSimilarity(context.Background(), []string{"a.png"}, []string{"b.png"},
		ObjectOptions{DisableRanking: true})
	if err != nil {
		t.Fatalf("RunObjectSimilarity failed: %v", err)
	}
	if sum.SuggestionsAdded != 1 {
		t.Fatalf("summary: got %+v, want one suggestion", sum)
	}

	s := f.store.Suggestions("b.png")[0]
	want := labels.Rect{X: 90, Y: 60, W: 24, H: 24}
	if s.Rect != want {
		t.Errorf("rect: got %v, want %v", s.Rect, want)
	}
	if s.Score < 0.95 || s.ClassID != 1 || s.Source != labels.SourceObjectSimilarity || s.SourceLabelID != src.ID {
		t.Errorf("suggestion: got %+v", s)
	}
}

func TestRunObjectSimilarity_RankingKeepsTopK(t *testing.T) {
	f, _ := objectScene(t)
	f.dec.Add("c.png", noise(160, 120, 4, 7))

	var (
		mu     sync.Mutex
		phases = map[string]Progress{}
	)
	_, err := f.orch.RunObjectSimilarity(context.Background(), []string{"a.png"}, []string{"c.png", "b.png"},
		ObjectOptions{
			TopK: 1,
			Options: Options{Progress: func(p Progress) {
				mu.Lock()
				phases[p.Phase] = p
				mu.Unlock()
			}},
		})
	if err != nil {
		t.Fatalf("RunObjectSimilarity failed: %v", err)
	}

	if n := f.dec.Decoded()["c.png"]; n != 1 {
		t.Errorf("c.png decoded %d times; want only the ranking hash", n)
	}
	if f.store.PendingCount("b.png") != 1 {
		t.Errorf("top-ranked candidate should receive the match")
	}
	if p := phases[PhaseObjectRanking]; p.Total != 2 || p.Current != 2 {
		t.Errorf("ranking progress: got %+v", p)
	}
	if p := phases[PhaseObjectMatching]; p.Total != 1 || p.Current != 1 {
		t.Errorf("matching progress: got %+v", p)
	}
}

func TestRunObjectSimilarity_ThresholdAndFloor(t *testing.T) {
	f, _ := objectScene(t)
	f.dec.Add("c.png", noise(160, 120, 4, 11))

	sum, err := f.orch.RunObjectSimilarity(context.Background(), []string{"a.png"}, []string{"c.png"},
		ObjectOptions{DisableRanking: true, Options: Options{Threshold: 0.99}})
	if err != nil {
		t.Fatalf("RunObjectSimilarity failed: %v", err)
	}
	if sum.SuggestionsAdded != 0 {
		t.Errorf("unrelated candidate matched: %+v", f.store.Suggestions("c.png"))
	}
}

func TestRunObjectSimilarity_TemplateLargerThanCandidate(t *testing.T) {
	f, _ := objectScene(t)
	f.dec.Add("tiny.png", noise(16, 16, 2, 3))

	sum, err := f.orch.RunObjectSimilarity(context.Background(), []string{"a.png"}, []string{"tiny.png"},
		ObjectOptions{DisableRanking: true, Options: Options{Threshold: 0.01}})
	if err != nil {
		t.Fatalf("RunObjectSimilarity failed: %v", err)
	}
	if sum.SuggestionsAdded != 0 {
		t.Errorf("template larger than candidate must emit nothing, got %+v", sum)
	}
}

func TestRunObjectSimilarity_MinBoxSize(t *testing.T) {
	settings := testSettings()
	settings.MinBoxSize = 30
	f := newFixture(t, settings)
	bg := noise(160, 120, 4, 1)
	obj := noise(24, 24, 3, 99)
	f.dec.Add("a.png", paste(bg, obj, 20, 20))
	f.dec.Add("b.png", paste(bg, obj, 90, 60))
	f.label(t, "a.png", labels.Rect{X: 20, Y: 20, W: 24, H: 24}, 0)

	sum, _ := f.orch.RunObjectSimilarity(context.Background(), []string{"a.png"}, []string{"b.png"},
		ObjectOptions{DisableRanking: true})
	if sum.SuggestionsAdded != 0 {
		t.Errorf("box below minimum size was emitted")
	}
}
