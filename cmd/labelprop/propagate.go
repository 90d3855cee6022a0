package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ironsheep/label-propagator/internal/project"
	"github.com/ironsheep/label-propagator/internal/propagation"
)

var propagateCmd = &cobra.Command{
	Use:   "propagate",
	Short: "Propagate labels to other images",
	Long: `Propagate committed labels to other images in the project.

Results are queued as suggestions for review with 'labelprop suggestions' unless
--auto-accept is given. Ctrl+C stops the run early; whatever was found so far is
still saved.`,
}

var propagateImageCmd = &cobra.Command{
	Use:   "image [candidate...]",
	Short: "Copy labels onto near-identical images",
	Long: `Copy every label of each source image onto candidates that look the same as a
whole, scaled to the candidate's size.

Examples:
  # Compare frame_001.png with every other image in the project
  labelprop propagate image --source frame_001.png

  # Only consider unlabeled candidates and commit directly
  labelprop propagate image --source a.png --skip-labeled --auto-accept`,
	RunE: runPropagateImage,
}

var propagateObjectCmd = &cobra.Command{
	Use:   "object [candidate...]",
	Short: "Search for each labeled object in similar images",
	Long: `Crop every label of each source image and search for it in the candidates by
normalized cross-correlation. Candidates are ranked by whole-image similarity first
and only the --top-k best are searched, unless --no-ranking is given.`,
	RunE: runPropagateObject,
}

var propagateTrackCmd = &cobra.Command{
	Use:   "track <anchor> [frame...]",
	Short: "Follow the anchor frame's labels through neighbouring frames",
	Long: `Follow every label of the anchor frame forward and backward through an ordered
frame sequence. Frames default to every image in the project sorted by name.

Examples:
  labelprop propagate track frame_010.png --window 8`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPropagateTrack,
}

func init() {
	rootCmd.AddCommand(propagateCmd)
	propagateCmd.AddCommand(propagateImageCmd, propagateObjectCmd, propagateTrackCmd)

	for _, c := range []*cobra.Command{propagateImageCmd, propagateObjectCmd, propagateTrackCmd} {
		c.Flags().Bool("auto-accept", false, "Commit results as labels instead of suggestions")
		c.Flags().Bool("skip-labeled", false, "Leave images that already have labels untouched")
		c.Flags().Int("max-suggestions", 0, "Results one run may add to a single image (0 = config, negative = unlimited)")
		c.Flags().Float64("merge-iou", 0, "IoU at which a result counts as a duplicate (0 = config)")
		c.Flags().Float64("threshold", 0, "Minimum score for a result (0 = config)")
		c.Flags().Bool("json", false, "Output the summary as JSON")
	}

	for _, c := range []*cobra.Command{propagateImageCmd, propagateObjectCmd} {
		c.Flags().StringSlice("source", nil, "Labeled source image (can be specified multiple times)")
		_ = c.MarkFlagRequired("source")
	}
	propagateObjectCmd.Flags().Int("top-k", 0, "Ranked candidates searched per source (0 = config)")
	propagateObjectCmd.Flags().Bool("no-ranking", false, "Search every candidate")
	propagateTrackCmd.Flags().Int("window", 0, "Frames to follow in each direction (0 = config)")
}

// runOptions reads the flags shared by every propagate command.
func runOptions(cmd *cobra.Command) (propagation.Options, *progressReporter) {
	reporter := newProgressReporter(mustGetBool(cmd, "json"))
	return propagation.Options{
		AutoAccept:             mustGetBool(cmd, "auto-accept"),
		SkipAlreadyLabeled:     mustGetBool(cmd, "skip-labeled"),
		MaxSuggestionsPerImage: mustGetInt(cmd, "max-suggestions"),
		MergeIoU:               mustGetFloat64(cmd, "merge-iou"),
		Threshold:              mustGetFloat64(cmd, "threshold"),
		Progress:               reporter.update,
	}, reporter
}

// images resolves paths against the project, defaulting to all of its images.
func images(p *project.Project, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return p.Images()
	}
	return p.ResolveAll(paths), nil
}

// propagate runs fn with Ctrl+C cancellation, then saves the project and reports.
// A cancelled run still saves what it added.
func propagate(cmd *cobra.Command, p *project.Project, reporter *progressReporter, fn func(ctx context.Context) (propagation.Summary, error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := fn(ctx)
	reporter.done()
	if err != nil {
		return err
	}
	cancelled := ctx.Err() != nil

	if err := p.Save(); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}

	if mustGetBool(cmd, "json") {
		out := struct {
			propagation.Summary
			Cancelled bool `json:"cancelled"`
		}{sum, cancelled}
		return outputJSON(out)
	}

	if cancelled {
		fmt.Println("Interrupted, partial result saved.")
	}
	fmt.Printf("Suggestions added: %d\n", sum.SuggestionsAdded)
	fmt.Printf("Labels added:      %d\n", sum.LabelsAdded)
	fmt.Printf("Images affected:   %d\n", sum.ImagesAffected)
	return nil
}

func runPropagateImage(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	candidates, err := images(p, args)
	if err != nil {
		return err
	}
	sources := p.ResolveAll(mustGetStringSlice(cmd, "source"))
	opts, reporter := runOptions(cmd)

	return propagate(cmd, p, reporter, func(ctx context.Context) (propagation.Summary, error) {
		return p.Engine.RunImageSimilarity(ctx, sources, candidates, opts)
	})
}

func runPropagateObject(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	candidates, err := images(p, args)
	if err != nil {
		return err
	}
	sources := p.ResolveAll(mustGetStringSlice(cmd, "source"))
	opts, reporter := runOptions(cmd)
	objOpts := propagation.ObjectOptions{
		Options:        opts,
		TopK:           mustGetInt(cmd, "top-k"),
		DisableRanking: mustGetBool(cmd, "no-ranking"),
	}

	return propagate(cmd, p, reporter, func(ctx context.Context) (propagation.Summary, error) {
		return p.Engine.RunObjectSimilarity(ctx, sources, candidates, objOpts)
	})
}

func runPropagateTrack(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	frames, err := images(p, args[1:])
	if err != nil {
		return err
	}
	anchor := p.Resolve(args[0])
	idx := -1
	for i, f := range frames {
		if f == anchor {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("anchor %s is not one of the frames", anchor)
	}

	window := mustGetInt(cmd, "window")
	if window <= 0 {
		window = p.Config.FrameWindow
	}
	opts, reporter := runOptions(cmd)
	trackOpts := propagation.TrackingOptions{Options: opts, FrameWindow: window}

	return propagate(cmd, p, reporter, func(ctx context.Context) (propagation.Summary, error) {
		return p.Engine.RunTracking(ctx, frames, idx, trackOpts)
	})
}

// progressReporter renders one progress bar per run phase on stderr.
type progressReporter struct {
	quiet bool
	phase string
	bar   *progressbar.ProgressBar
}

func newProgressReporter(quiet bool) *progressReporter {
	return &progressReporter{quiet: quiet}
}

// update is called serially by the orchestrator.
func (r *progressReporter) update(p propagation.Progress) {
	if r.quiet {
		return
	}
	if r.bar == nil || p.Phase != r.phase {
		r.done()
		r.phase = p.Phase
		r.bar = progressbar.NewOptions(p.Total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(p.Phase),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}
	_ = r.bar.Set(p.Current)
}

// done closes the current bar.
func (r *progressReporter) done() {
	if r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	fmt.Fprintln(os.Stderr)
	r.bar = nil
}
