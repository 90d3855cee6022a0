package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/label-propagator/internal/labels"
	"github.com/ironsheep/label-propagator/internal/propagation"
	"github.com/ironsheep/label-propagator/internal/similarity"
)

// DefaultFile is the configuration file looked for in a project directory.
const DefaultFile = "labelprop.yaml"

type Config struct {
	MergeIoU               float64       `yaml:"merge_iou"`
	SimilarityMode         string        `yaml:"similarity_mode"`
	ImageThreshold         float64       `yaml:"image_threshold"`
	ObjectThreshold        float64       `yaml:"object_threshold"`
	TrackingThreshold      float64       `yaml:"tracking_threshold"`
	TopK                   int           `yaml:"top_k"`
	MaxSuggestionsPerImage int           `yaml:"max_suggestions_per_image"` // negative disables the cap
	MinBoxSize             int           `yaml:"min_box_size"`
	MatchStride            int           `yaml:"match_stride"`
	FrameWindow            int           `yaml:"frame_window"`
	Workers                int           `yaml:"workers"`
	CacheDir               string        `yaml:"cache_dir"` // relative to the project directory
	SaveInterval           time.Duration `yaml:"save_interval"`
	ProgressInterval       time.Duration `yaml:"progress_interval"`
	Classes                []string      `yaml:"classes"`
	DefaultClass           int           `yaml:"default_class"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MergeIoU:               labels.DefaultMergeIoU,
		SimilarityMode:         similarity.ModeHash.String(),
		ImageThreshold:         0.9,
		ObjectThreshold:        0.7,
		TrackingThreshold:      0.6,
		TopK:                   10,
		MaxSuggestionsPerImage: 50,
		MinBoxSize:             4,
		MatchStride:            2,
		FrameWindow:            propagation.DefaultFrameWindow,
		Workers:                runtime.NumCPU(),
		CacheDir:               ".labelprop",
		SaveInterval:           similarity.DefaultSaveInterval,
		ProgressInterval:       100 * time.Millisecond,
	}
}

// Load builds the configuration from defaults, the YAML file at path and LABELPROP_*
// environment variables, in that order. An empty path skips the file; a path that
// does not exist is only an error when required is true.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	applyEnv(&cfg)
	cfg = sanitize(cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.MergeIoU = envFloat("LABELPROP_MERGE_IOU", cfg.MergeIoU)
	if s := os.Getenv("LABELPROP_SIMILARITY_MODE"); s != "" {
		cfg.SimilarityMode = s
	}
	cfg.ImageThreshold = envFloat("LABELPROP_IMAGE_THRESHOLD", cfg.ImageThreshold)
	cfg.ObjectThreshold = envFloat("LABELPROP_OBJECT_THRESHOLD", cfg.ObjectThreshold)
	cfg.TrackingThreshold = envFloat("LABELPROP_TRACKING_THRESHOLD", cfg.TrackingThreshold)
	cfg.TopK = envInt("LABELPROP_TOP_K", cfg.TopK)
	cfg.MaxSuggestionsPerImage = envInt("LABELPROP_MAX_SUGGESTIONS", cfg.MaxSuggestionsPerImage)
	cfg.MinBoxSize = envInt("LABELPROP_MIN_BOX_SIZE", cfg.MinBoxSize)
	cfg.MatchStride = envInt("LABELPROP_MATCH_STRIDE", cfg.MatchStride)
	cfg.FrameWindow = envInt("LABELPROP_FRAME_WINDOW", cfg.FrameWindow)
	cfg.Workers = envInt("LABELPROP_WORKERS", cfg.Workers)
	if s := os.Getenv("LABELPROP_CACHE_DIR"); s != "" {
		cfg.CacheDir = s
	}
	cfg.SaveInterval = envDuration("LABELPROP_SAVE_INTERVAL", cfg.SaveInterval)
	cfg.ProgressInterval = envDuration("LABELPROP_PROGRESS_INTERVAL", cfg.ProgressInterval)
	if s := os.Getenv("LABELPROP_CLASSES"); s != "" {
		cfg.Classes = nil
		for _, name := range strings.Split(s, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Classes = append(cfg.Classes, name)
			}
		}
	}
	if s := os.Getenv("LABELPROP_DEFAULT_CLASS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			cfg.DefaultClass = n
		}
	}
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float, keeping defaultVal when it is
// unset or unparsable.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return defaultVal
}

func sanitize(cfg Config) Config {
	def := Default()

	if cfg.MergeIoU <= 0 || cfg.MergeIoU > 1 {
		cfg.MergeIoU = def.MergeIoU
	}
	if _, err := similarity.ParseMode(cfg.SimilarityMode); err != nil {
		log.Printf("WARNING: %v, using %s", err, def.SimilarityMode)
		cfg.SimilarityMode = def.SimilarityMode
	}
	cfg.ImageThreshold = unit(cfg.ImageThreshold, def.ImageThreshold)
	cfg.ObjectThreshold = unit(cfg.ObjectThreshold, def.ObjectThreshold)
	cfg.TrackingThreshold = unit(cfg.TrackingThreshold, def.TrackingThreshold)
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MaxSuggestionsPerImage == 0 {
		cfg.MaxSuggestionsPerImage = def.MaxSuggestionsPerImage
	}
	if cfg.MinBoxSize < 1 {
		cfg.MinBoxSize = 1
	}
	if cfg.MatchStride < 1 {
		cfg.MatchStride = 1
	}
	if cfg.MatchStride > 16 {
		cfg.MatchStride = 16
	}
	if cfg.FrameWindow <= 0 {
		cfg.FrameWindow = def.FrameWindow
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = def.CacheDir
	}
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = def.SaveInterval
	}
	if cfg.ProgressInterval < 0 {
		cfg.ProgressInterval = def.ProgressInterval
	}
	if cfg.DefaultClass < 0 || (len(cfg.Classes) > 0 && cfg.DefaultClass >= len(cfg.Classes)) {
		cfg.DefaultClass = 0
	}
	return cfg
}

// unit keeps v when it lies in (0,1].
func unit(v, defaultVal float64) float64 {
	if v <= 0 || v > 1 {
		return defaultVal
	}
	return v
}

// Mode returns the parsed similarity mode.
func (c *Config) Mode() similarity.Mode {
	m, _ := similarity.ParseMode(c.SimilarityMode)
	return m
}

// ClassSet returns the configured classes.
func (c *Config) ClassSet() labels.ClassSet {
	return labels.ClassSet{Names: append([]string(nil), c.Classes...), Default: c.DefaultClass}
}

// Settings returns the propagation settings described by c.
func (c *Config) Settings() propagation.Settings {
	return propagation.Settings{
		MergeIoU:               c.MergeIoU,
		Mode:                   c.Mode(),
		ImageThreshold:         c.ImageThreshold,
		ObjectThreshold:        c.ObjectThreshold,
		TrackingThreshold:      c.TrackingThreshold,
		TopK:                   c.TopK,
		MaxSuggestionsPerImage: c.MaxSuggestionsPerImage,
		MinBoxSize:             c.MinBoxSize,
		MatchStride:            c.MatchStride,
		Workers:                c.Workers,
		ProgressInterval:       c.ProgressInterval,
	}
}
