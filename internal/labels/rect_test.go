package labels

import (
	"image"
	"math"
	"testing"
)

func TestIoU_Reflexive(t *testing.T) {
	rects := []Rect{
		{0, 0, 10, 10},
		{5, 7, 1, 1},
		{-20, -20, 40, 3},
		{100, 200, 640, 480},
	}
	for _, r := range rects {
		if got := IoU(r, r); got != 1 {
			t.Errorf("IoU(%v,%v): got %v, want 1", r, r, got)
		}
	}
}

func TestIoU_Symmetric(t *testing.T) {
	rects := []Rect{
		{0, 0, 10, 10},
		{5, 5, 10, 10},
		{20, 20, 5, 5},
		{0, 0, 0, 10},
		{-3, 2, 8, 8},
		{9, 0, 4, 30},
	}
	for _, a := range rects {
		for _, b := range rects {
			if IoU(a, b) != IoU(b, a) {
				t.Errorf("IoU not symmetric for %v and %v: %v vs %v", a, b, IoU(a, b), IoU(b, a))
			}
		}
	}
}

func TestIoU_Values(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want float64
	}{
		{"half overlap", Rect{0, 0, 10, 10}, Rect{5, 0, 10, 10}, 50.0 / 150.0},
		{"contained", Rect{0, 0, 10, 10}, Rect{0, 0, 5, 5}, 0.25},
		{"disjoint", Rect{0, 0, 10, 10}, Rect{20, 20, 5, 5}, 0},
		{"touching edges", Rect{0, 0, 10, 10}, Rect{10, 0, 10, 10}, 0},
		{"invalid", Rect{0, 0, 0, 10}, Rect{0, 0, 0, 10}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IoU(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("IoU: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRect_Scale(t *testing.T) {
	r := Rect{X: 10, Y: 20, W: 30, H: 40}

	if got := r.Scale(1, 1); got != r {
		t.Errorf("identity scale: got %v, want %v", got, r)
	}
	if got := r.Scale(2, 0.5); got != (Rect{X: 20, Y: 10, W: 60, H: 20}) {
		t.Errorf("axis-independent scale: got %v", got)
	}
	if got := (Rect{X: 0, Y: 0, W: 1, H: 1}).Scale(0.1, 0.1); !got.Valid() {
		t.Errorf("scaled valid box must stay valid, got %v", got)
	}
}

func TestRect_ExpandAndClamp(t *testing.T) {
	r := Rect{X: 10, Y: 10, W: 20, H: 10}

	e := r.Expand(2)
	if e != (Rect{X: 0, Y: 5, W: 40, H: 20}) {
		t.Errorf("Expand(2): got %v", e)
	}
	ecx, ecy := e.Center()
	rcx, rcy := r.Center()
	if ecx != rcx || ecy != rcy {
		t.Errorf("Expand moved the centre: (%v,%v) vs (%v,%v)", ecx, ecy, rcx, rcy)
	}

	c := Rect{X: -5, Y: -5, W: 20, H: 20}.Clamp(image.Rect(0, 0, 10, 10))
	if c != (Rect{X: 0, Y: 0, W: 10, H: 10}) {
		t.Errorf("Clamp: got %v", c)
	}
	if !(Rect{X: 50, Y: 50, W: 5, H: 5}).Clamp(image.Rect(0, 0, 10, 10)).Empty() {
		t.Error("Clamp outside bounds should be empty")
	}
}

func TestClassSet(t *testing.T) {
	cs := ClassSet{Names: []string{"car", "person"}, Default: 1}

	if cs.Resolve(0) != 0 || cs.Resolve(1) != 1 {
		t.Error("known ids must resolve to themselves")
	}
	if cs.Resolve(7) != 1 || cs.Resolve(-1) != 1 {
		t.Error("unknown ids must resolve to the default")
	}
	if cs.Name(1) != "person" {
		t.Errorf("Name(1): got %s", cs.Name(1))
	}
	if cs.Name(9) != "class_9" {
		t.Errorf("Name(9): got %s", cs.Name(9))
	}

	open := ClassSet{}
	if open.Resolve(42) != 42 {
		t.Error("with no names configured any non-negative id is known")
	}
}
