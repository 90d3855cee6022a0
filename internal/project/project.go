// Package project ties a directory of images to its labels, caches and configuration.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/label-propagator/internal/config"
	"github.com/ironsheep/label-propagator/internal/imaging"
	"github.com/ironsheep/label-propagator/internal/labels"
	"github.com/ironsheep/label-propagator/internal/matcher"
	"github.com/ironsheep/label-propagator/internal/propagation"
	"github.com/ironsheep/label-propagator/internal/similarity"
)

// LabelsFile is the name of the label store inside a project directory.
const LabelsFile = "labels.json"

// Project is an open project directory.
type Project struct {
	Dir     string
	Config  *config.Config
	Decoder imaging.Decoder
	Store   *labels.Store
	Index   *similarity.Index
	Records *imaging.Records
	Engine  *propagation.Orchestrator
}

// Open loads the project in dir. When cfg is nil the configuration is read from
// dir/labelprop.yaml if present. dec may be nil to read images from disk.
func Open(dir string, cfg *config.Config, dec imaging.Decoder) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open project: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project path %s is not a directory", abs)
	}

	if cfg == nil {
		if cfg, err = config.Load(filepath.Join(abs, config.DefaultFile), false); err != nil {
			return nil, err
		}
	}
	if dec == nil {
		dec = imaging.FileDecoder{}
	}

	p := &Project{
		Dir:     abs,
		Config:  cfg,
		Decoder: dec,
		Store:   labels.NewStore(cfg.ClassSet()),
		Records: imaging.NewRecords(dec),
	}
	if err := p.Store.Load(p.labelsPath()); err != nil {
		return nil, err
	}

	p.Index = similarity.NewIndex(dec, p.cachePath(), similarity.WithSaveInterval(cfg.SaveInterval))
	p.Index.Load()

	p.Engine = propagation.New(cfg.Settings(), propagation.Deps{
		Store:   p.Store,
		Index:   p.Index,
		Matcher: matcher.New(cfg.MatchStride),
		Decoder: dec,
		Records: p.Records,
	})
	return p, nil
}

func (p *Project) labelsPath() string {
	return filepath.Join(p.Dir, LabelsFile)
}

func (p *Project) cachePath() string {
	dir := p.Config.CacheDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(p.Dir, dir)
	}
	return filepath.Join(dir, similarity.CacheFileName)
}

// Resolve turns a path relative to the project directory into an absolute one.
func (p *Project) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.Dir, path)
}

// Relative returns path relative to the project directory, or path unchanged when it
// lies outside it.
func (p *Project) Relative(path string) string {
	rel, err := filepath.Rel(p.Dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

// ResolveAll applies Resolve to every path.
func (p *Project) ResolveAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, path := range paths {
		out[i] = p.Resolve(path)
	}
	return out
}

// Images lists the decodable image files directly inside the project directory,
// sorted by name.
func (p *Project) Images() ([]string, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list project: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !imaging.IsImageFile(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(p.Dir, e.Name()))
	}
	return out, nil
}

// Save writes the labels and flushes the hash cache. A hash cache failure is
// returned but the labels are written first.
func (p *Project) Save() error {
	if err := p.Store.Save(p.labelsPath()); err != nil {
		return err
	}
	if err := p.Index.Flush(); err != nil {
		return fmt.Errorf("failed to flush hash cache: %w", err)
	}
	return nil
}

// Refresh drops the cached fingerprints of an image whose file changed on disk and
// re-reads its dimensions.
func (p *Project) Refresh(path string) error {
	p.Index.Forget(path)
	cfg, err := p.Decoder.DecodeConfig(path)
	if err != nil {
		return fmt.Errorf("failed to refresh %s: %w", path, err)
	}
	p.Records.Put(path, cfg.Width, cfg.Height)
	return nil
}
