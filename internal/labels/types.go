package labels

import (
	"errors"
	"fmt"
)

var (
	// ErrSuggestionNotFound is returned when a suggestion id is unknown for an image.
	ErrSuggestionNotFound = errors.New("suggestion not found")

	// ErrLabelNotFound is returned when a label id is unknown for an image.
	ErrLabelNotFound = errors.New("label not found")
)

// Source identifies which algorithm produced a suggestion.
type Source string

const (
	SourceImageSimilarity  Source = "image-similarity"
	SourceObjectSimilarity Source = "object-similarity"
	SourceTracking         Source = "tracking"
)

// Label is a committed bounding box on an image.
type Label struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Rect    Rect   `json:"rect"`
	ClassID int    `json:"class_id"`
}

// Suggestion is a propagated box awaiting review.
type Suggestion struct {
	ID            string  `json:"id"`
	Rect          Rect    `json:"rect"`
	ClassID       int     `json:"class_id"`
	Score         float64 `json:"score"`
	Source        Source  `json:"source"`
	SourceImage   string  `json:"source_image"`
	SourceLabelID string  `json:"source_label_id,omitempty"`
}

// ClassSet names the known classes. Index i of Names is class id i.
//
// With no names configured every non-negative id is accepted as is.
type ClassSet struct {
	Names   []string `json:"names" yaml:"names"`
	Default int      `json:"default" yaml:"default"`
}

// Known reports whether id refers to a configured class.
func (c ClassSet) Known(id int) bool {
	if id < 0 {
		return false
	}
	return len(c.Names) == 0 || id < len(c.Names)
}

// Resolve maps unknown ids to the default class.
func (c ClassSet) Resolve(id int) int {
	if c.Known(id) {
		return id
	}
	return c.Default
}

// Name returns the display name for a class id.
func (c ClassSet) Name(id int) string {
	if id >= 0 && id < len(c.Names) && c.Names[id] != "" {
		return c.Names[id]
	}
	return fmt.Sprintf("class_%d", id)
}
