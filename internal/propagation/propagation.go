package propagation

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ironsheep/label-propagator/internal/imaging"
	"github.com/ironsheep/label-propagator/internal/labels"
	"github.com/ironsheep/label-propagator/internal/matcher"
	"github.com/ironsheep/label-propagator/internal/similarity"
)

// Progress phases reported to a ProgressFunc.
const (
	PhaseImage          = "image"
	PhaseObjectRanking  = "object-ranking"
	PhaseObjectMatching = "object-matching"
	PhaseTracking       = "tracking"
)

// DefaultFrameWindow is used by RunTracking when no frame window is given.
const DefaultFrameWindow = 5

// Settings are the engine-wide thresholds and limits. They are fixed for the life of
// an Orchestrator; per-run Options may override some of them.
type Settings struct {
	MergeIoU               float64
	Mode                   similarity.Mode
	ImageThreshold         float64
	ObjectThreshold        float64
	TrackingThreshold      float64
	TopK                   int
	MaxSuggestionsPerImage int
	MinBoxSize             int
	MatchStride            int
	Workers                int
	ProgressInterval       time.Duration
}

// DefaultSettings returns the settings used when no configuration is supplied.
func DefaultSettings() Settings {
	return Settings{
		MergeIoU:               labels.DefaultMergeIoU,
		Mode:                   similarity.ModeHash,
		ImageThreshold:         0.9,
		ObjectThreshold:        0.7,
		TrackingThreshold:      0.6,
		TopK:                   10,
		MaxSuggestionsPerImage: 50,
		MinBoxSize:             4,
		MatchStride:            2,
		Workers:                runtime.NumCPU(),
		ProgressInterval:       100 * time.Millisecond,
	}
}

// Deps are the collaborators an Orchestrator drives. Nil fields get working defaults.
type Deps struct {
	Store   *labels.Store
	Index   *similarity.Index
	Matcher *matcher.Matcher
	Decoder imaging.Decoder
	Records *imaging.Records
}

// Options control a single run. Zero values fall back to the orchestrator's settings.
type Options struct {
	// AutoAccept commits results as labels instead of queuing suggestions.
	AutoAccept bool

	// SkipAlreadyLabeled leaves candidates that already carry labels untouched.
	SkipAlreadyLabeled bool

	// MaxSuggestionsPerImage caps how many results one run may add to a single image.
	// Negative means unlimited.
	MaxSuggestionsPerImage int

	// MergeIoU is the overlap at which a result counts as a duplicate.
	MergeIoU float64

	// Threshold overrides the algorithm's configured threshold.
	Threshold float64

	// Progress receives throttled progress updates. Calls are serialized.
	Progress ProgressFunc
}

// ObjectOptions control RunObjectSimilarity.
type ObjectOptions struct {
	Options

	// DisableRanking matches every candidate instead of the TopK most similar ones.
	DisableRanking bool

	// TopK is the number of ranked candidates matched per source image.
	TopK int
}

// TrackingOptions control RunTracking.
type TrackingOptions struct {
	Options

	// FrameWindow is how many frames to walk in each direction from the anchor.
	FrameWindow int
}

// Summary counts what a run changed. A cancelled run returns the partial summary.
type Summary struct {
	SuggestionsAdded int `json:"suggestions_added"`
	LabelsAdded      int `json:"labels_added"`
	ImagesAffected   int `json:"images_affected"`
}

// Orchestrator runs the propagation algorithms against a label store.
//
// Runs may execute concurrently; each one owns its decoded-pixel cache and its
// per-image budget, and shares only the store, the similarity index and the dimension
// records.
type Orchestrator struct {
	settings Settings
	store    *labels.Store
	index    *similarity.Index
	matcher  *matcher.Matcher
	decoder  imaging.Decoder
	records  *imaging.Records
}

// New creates an Orchestrator.
func New(settings Settings, deps Deps) *Orchestrator {
	def := DefaultSettings()
	if settings.Workers <= 0 {
		settings.Workers = def.Workers
	}
	if settings.MatchStride <= 0 {
		settings.MatchStride = def.MatchStride
	}
	if settings.MergeIoU <= 0 || settings.MergeIoU > 1 {
		settings.MergeIoU = def.MergeIoU
	}
	if settings.ProgressInterval < 0 {
		settings.ProgressInterval = 0
	}

	o := &Orchestrator{
		settings: settings,
		store:    deps.Store,
		index:    deps.Index,
		matcher:  deps.Matcher,
		decoder:  deps.Decoder,
		records:  deps.Records,
	}
	if o.decoder == nil {
		o.decoder = imaging.FileDecoder{}
	}
	if o.store == nil {
		o.store = labels.NewStore(labels.ClassSet{})
	}
	if o.index == nil {
		o.index = similarity.NewIndex(o.decoder, "")
	}
	if o.matcher == nil {
		o.matcher = matcher.New(settings.MatchStride)
	}
	if o.records == nil {
		o.records = imaging.NewRecords(o.decoder)
	}
	return o
}

// Settings returns the orchestrator's settings after defaults were applied.
func (o *Orchestrator) Settings() Settings {
	return o.settings
}

// Store returns the label store results are written to.
func (o *Orchestrator) Store() *labels.Store {
	return o.store
}

// runConfig is Options resolved against Settings for one algorithm.
type runConfig struct {
	autoAccept  bool
	skipLabeled bool
	limit       int
	mergeIoU    float64
	threshold   float64
	progress    ProgressFunc
}

func (o *Orchestrator) resolve(opts Options, threshold float64) runConfig {
	rc := runConfig{
		autoAccept:  opts.AutoAccept,
		skipLabeled: opts.SkipAlreadyLabeled,
		limit:       opts.MaxSuggestionsPerImage,
		mergeIoU:    opts.MergeIoU,
		threshold:   opts.Threshold,
		progress:    opts.Progress,
	}
	if rc.limit == 0 {
		rc.limit = o.settings.MaxSuggestionsPerImage
	}
	if rc.mergeIoU <= 0 || rc.mergeIoU > 1 {
		rc.mergeIoU = o.settings.MergeIoU
	}
	if rc.threshold <= 0 {
		rc.threshold = threshold
	}
	return rc
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

func debugf(format string, args ...any) {
	if os.Getenv("LABELPROP_LOG_LEVEL") == "debug" {
		log.Printf(format, args...)
	}
}
