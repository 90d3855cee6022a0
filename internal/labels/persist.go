package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const fileVersion = 1

type fileImage struct {
	Labels      []Label      `json:"labels,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

type file struct {
	Version int                  `json:"version"`
	Images  map[string]fileImage `json:"images"`
}

// Save writes every image's labels and pending suggestions to path as JSON.
//
// The file is written to a temporary sibling first and renamed into place.
func (s *Store) Save(path string) error {
	out := file{Version: fileVersion, Images: make(map[string]fileImage)}
	for _, img := range s.Images() {
		e := s.lookup(img)
		if e == nil {
			continue
		}
		e.mu.Lock()
		fi := fileImage{
			Labels:      append([]Label(nil), e.labels...),
			Suggestions: append([]Suggestion(nil), e.pending...),
		}
		e.mu.Unlock()
		if len(fi.Labels) == 0 && len(fi.Suggestions) == 0 {
			continue
		}
		out.Images[img] = fi
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create label directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write labels: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace labels file: %w", err)
	}
	return nil
}

// Load replaces the store's contents with the file at path. A missing file leaves the
// store empty and is not an error.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read labels: %w", err)
	}

	var in file
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to parse labels %s: %w", path, err)
	}
	if in.Version > fileVersion {
		return fmt.Errorf("labels file %s has unsupported version %d", path, in.Version)
	}

	images := make(map[string]*entry, len(in.Images))
	for img, fi := range in.Images {
		e := &entry{}
		for _, l := range fi.Labels {
			if l.Rect.Valid() {
				e.labels = append(e.labels, s.normalizeLabel(l))
			}
		}
		for _, sg := range fi.Suggestions {
			if !sg.Rect.Valid() || sg.ID == "" {
				continue
			}
			sg.ClassID = s.classes.Resolve(sg.ClassID)
			sg.Score = clampScore(sg.Score)
			e.pending = append(e.pending, sg)
		}
		images[key(img)] = e
	}

	s.mu.Lock()
	s.images = images
	s.mu.Unlock()
	return nil
}
