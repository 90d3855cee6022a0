package labels

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// DefaultMergeIoU is used when a caller passes a merge threshold outside (0,1].
const DefaultMergeIoU = 0.5

// Store holds committed labels and pending suggestions per image.
//
// The image map is guarded by an RWMutex; each image has its own mutex so that
// read-modify-write updates on one image never block workers writing to another.
type Store struct {
	classes ClassSet

	mu     sync.RWMutex
	images map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	labels  []Label
	pending []Suggestion
}

// NewStore creates an empty store that resolves class ids against classes.
func NewStore(classes ClassSet) *Store {
	return &Store{
		classes: classes,
		images:  make(map[string]*entry),
	}
}

// Classes returns the class set used for id resolution and display names.
func (s *Store) Classes() ClassSet {
	return s.classes
}

func key(path string) string {
	return filepath.Clean(path)
}

func (s *Store) lookup(path string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.images[key(path)]
}

func (s *Store) entry(path string) *entry {
	k := key(path)
	s.mu.RLock()
	e, ok := s.images[k]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.images[k]; !ok {
		e = &entry{}
		s.images[k] = e
	}
	return e
}

func normalizeIoU(mergeIoU float64) float64 {
	if mergeIoU <= 0 || mergeIoU > 1 {
		return DefaultMergeIoU
	}
	return mergeIoU
}

func clampScore(score float64) float64 {
	switch {
	case score < 0 || score != score:
		return 0
	case score > 1:
		return 1
	}
	return score
}

// Labels returns a copy of the committed labels for path.
func (s *Store) Labels(path string) []Label {
	e := s.lookup(path)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Label(nil), e.labels...)
}

// HasLabels reports whether path has at least one committed label.
func (s *Store) HasLabels(path string) bool {
	e := s.lookup(path)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.labels) > 0
}

// SetLabels replaces the committed labels for path. Labels without an id get one,
// unknown classes are remapped and invalid boxes are dropped.
func (s *Store) SetLabels(path string, labels []Label) {
	clean := make([]Label, 0, len(labels))
	for _, l := range labels {
		if !l.Rect.Valid() {
			continue
		}
		clean = append(clean, s.normalizeLabel(l))
	}

	e := s.entry(path)
	e.mu.Lock()
	e.labels = clean
	e.mu.Unlock()
}

// AddLabel appends one committed label and returns it as stored.
func (s *Store) AddLabel(path string, l Label) (Label, error) {
	if !l.Rect.Valid() {
		return Label{}, fmt.Errorf("label rect %v has no area", l.Rect)
	}
	l = s.normalizeLabel(l)

	e := s.entry(path)
	e.mu.Lock()
	e.labels = append(e.labels, l)
	e.mu.Unlock()
	return l, nil
}

// RemoveLabel deletes a committed label by id.
func (s *Store) RemoveLabel(path, id string) error {
	e := s.lookup(path)
	if e == nil {
		return fmt.Errorf("%s on %s: %w", id, path, ErrLabelNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, l := range e.labels {
		if l.ID == id {
			e.labels = append(e.labels[:i], e.labels[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s on %s: %w", id, path, ErrLabelNotFound)
}

func (s *Store) normalizeLabel(l Label) Label {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.ClassID = s.classes.Resolve(l.ClassID)
	if l.Name == "" {
		l.Name = s.classes.Name(l.ClassID)
	}
	return l
}

// All returns a copy of every image's committed labels. Images without labels are
// omitted.
func (s *Store) All() map[string][]Label {
	s.mu.RLock()
	keys := make([]string, 0, len(s.images))
	entries := make([]*entry, 0, len(s.images))
	for k, e := range s.images {
		keys = append(keys, k)
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make(map[string][]Label, len(keys))
	for i, e := range entries {
		e.mu.Lock()
		if len(e.labels) > 0 {
			out[keys[i]] = append([]Label(nil), e.labels...)
		}
		e.mu.Unlock()
	}
	return out
}

// Images returns every image path known to the store in sorted order.
func (s *Store) Images() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.images))
	for k := range s.images {
		out = append(out, k)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Suggestions returns a copy of the pending suggestions for path.
func (s *Store) Suggestions(path string) []Suggestion {
	e := s.lookup(path)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Suggestion(nil), e.pending...)
}

// PendingCount returns the number of pending suggestions for path.
func (s *Store) PendingCount(path string) int {
	e := s.lookup(path)
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// AddSuggestions merges incoming candidates into the pending set of path and returns
// the net increase in pending count.
//
// Each candidate is dropped if its box has no area or if it overlaps any committed
// label with IoU >= mergeIoU. A candidate overlapping a pending suggestion of the same
// class at IoU >= mergeIoU replaces that suggestion's fields only when it scores
// higher. Anything else is appended.
func (s *Store) AddSuggestions(path string, incoming []Suggestion, mergeIoU float64) int {
	if len(incoming) == 0 {
		return 0
	}
	mergeIoU = normalizeIoU(mergeIoU)

	e := s.entry(path)
	e.mu.Lock()
	defer e.mu.Unlock()

	before := len(e.pending)
	for _, in := range incoming {
		if !in.Rect.Valid() {
			continue
		}
		in.ClassID = s.classes.Resolve(in.ClassID)
		in.Score = clampScore(in.Score)

		if overlapsLabel(e.labels, in.Rect, mergeIoU) {
			continue
		}

		merged := false
		for i := range e.pending {
			p := &e.pending[i]
			if p.ClassID != in.ClassID || IoU(p.Rect, in.Rect) < mergeIoU {
				continue
			}
			if in.Score > p.Score {
				p.Rect = in.Rect
				p.Score = in.Score
				p.Source = in.Source
				p.SourceImage = in.SourceImage
				p.SourceLabelID = in.SourceLabelID
			}
			merged = true
			break
		}
		if merged {
			continue
		}

		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		e.pending = append(e.pending, in)
	}
	return len(e.pending) - before
}

// MergeLabels commits incoming candidates directly, skipping any that overlap an
// existing committed label (including ones committed earlier in the same call) with
// IoU >= mergeIoU. Pending suggestions of the same class made redundant by a new label
// are dropped. It returns the number of labels added.
func (s *Store) MergeLabels(path string, incoming []Suggestion, mergeIoU float64) int {
	if len(incoming) == 0 {
		return 0
	}
	mergeIoU = normalizeIoU(mergeIoU)

	e := s.entry(path)
	e.mu.Lock()
	defer e.mu.Unlock()

	added := 0
	for _, in := range incoming {
		if !in.Rect.Valid() {
			continue
		}
		in.ClassID = s.classes.Resolve(in.ClassID)
		if overlapsLabel(e.labels, in.Rect, mergeIoU) {
			continue
		}
		e.labels = append(e.labels, s.labelFrom(in))
		e.pending = dropOverlapping(e.pending, in.Rect, in.ClassID, mergeIoU)
		added++
	}
	return added
}

func (s *Store) labelFrom(sg Suggestion) Label {
	id := sg.ID
	if id == "" {
		id = uuid.NewString()
	}
	return Label{
		ID:      id,
		Name:    s.classes.Name(sg.ClassID),
		Rect:    sg.Rect,
		ClassID: s.classes.Resolve(sg.ClassID),
	}
}

func overlapsLabel(labels []Label, r Rect, mergeIoU float64) bool {
	for _, l := range labels {
		if IoU(l.Rect, r) >= mergeIoU {
			return true
		}
	}
	return false
}

func dropOverlapping(pending []Suggestion, r Rect, classID int, mergeIoU float64) []Suggestion {
	kept := pending[:0]
	for _, p := range pending {
		if p.ClassID != classID || IoU(p.Rect, r) < mergeIoU {
			kept = append(kept, p)
		}
	}
	return kept
}

// AcceptSuggestion moves one pending suggestion into the committed labels.
func (s *Store) AcceptSuggestion(path, id string) (Label, error) {
	e := s.lookup(path)
	if e == nil {
		return Label{}, fmt.Errorf("%s on %s: %w", id, path, ErrSuggestionNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, p := range e.pending {
		if p.ID != id {
			continue
		}
		l := s.labelFrom(p)
		e.labels = append(e.labels, l)
		e.pending = append(e.pending[:i], e.pending[i+1:]...)
		return l, nil
	}
	return Label{}, fmt.Errorf("%s on %s: %w", id, path, ErrSuggestionNotFound)
}

// AcceptAllSuggestions moves every pending suggestion of path into the committed
// labels and returns how many were moved.
func (s *Store) AcceptAllSuggestions(path string) int {
	e := s.lookup(path)
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.pending)
	for _, p := range e.pending {
		e.labels = append(e.labels, s.labelFrom(p))
	}
	e.pending = nil
	return n
}

// RejectSuggestion discards one pending suggestion.
func (s *Store) RejectSuggestion(path, id string) error {
	e := s.lookup(path)
	if e == nil {
		return fmt.Errorf("%s on %s: %w", id, path, ErrSuggestionNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, p := range e.pending {
		if p.ID == id {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s on %s: %w", id, path, ErrSuggestionNotFound)
}

// RejectAllSuggestions discards the pending suggestions of path and returns how many
// were removed.
func (s *Store) RejectAllSuggestions(path string) int {
	e := s.lookup(path)
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.pending)
	e.pending = nil
	return n
}

// ClearAllSuggestions discards pending suggestions on every image.
func (s *Store) ClearAllSuggestions() int {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.images))
	for _, e := range s.images {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	n := 0
	for _, e := range entries {
		e.mu.Lock()
		n += len(e.pending)
		e.pending = nil
		e.mu.Unlock()
	}
	return n
}
