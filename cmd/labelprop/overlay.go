package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/ironsheep/label-propagator/internal/overlay"
)

var overlayCmd = &cobra.Command{
	Use:   "overlay <image>",
	Short: "Draw labels and suggestions onto an image",
	Long: `Write a copy of the image with committed labels drawn solid and pending
suggestions drawn dashed. The output format follows the --out extension.

Examples:
  labelprop overlay frame_004.png -o review.png --min-score 0.8`,
	Args: cobra.ExactArgs(1),
	RunE: runOverlay,
}

func init() {
	rootCmd.AddCommand(overlayCmd)
	overlayCmd.Flags().StringP("out", "o", "", "Output file (default <image>_overlay.png)")
	overlayCmd.Flags().Int("max-side", 0, "Shrink the output so its longer side fits (0 = full size)")
	overlayCmd.Flags().Float64("min-score", 0, "Hide suggestions scoring below this")
	overlayCmd.Flags().String("color", "", "Single #RRGGBB colour instead of per-class colours")
	overlayCmd.Flags().Bool("hide-labels", false, "Do not draw committed labels")
	overlayCmd.Flags().Bool("hide-suggestions", false, "Do not draw pending suggestions")
	overlayCmd.Flags().Bool("no-tags", false, "Do not draw class and score tags")
}

func runOverlay(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	path := p.Resolve(args[0])

	out := mustGetString(cmd, "out")
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + "_overlay.png"
	}

	img, err := p.Decoder.Decode(path)
	if err != nil {
		return err
	}
	drawn, nl, ns, err := overlay.Draw(img, p.Store.Labels(path), p.Store.Suggestions(path), overlay.Options{
		HideLabels:      mustGetBool(cmd, "hide-labels"),
		HideSuggestions: mustGetBool(cmd, "hide-suggestions"),
		MinScore:        mustGetFloat64(cmd, "min-score"),
		Color:           mustGetString(cmd, "color"),
		MaxSide:         mustGetInt(cmd, "max-side"),
		ShowTags:        !mustGetBool(cmd, "no-tags"),
	})
	if err != nil {
		return err
	}

	if err := imaging.Save(drawn, out); err != nil {
		return fmt.Errorf("failed to write overlay: %w", err)
	}
	fmt.Printf("Wrote %s (%d labels, %d suggestions)\n", out, nl, ns)
	return nil
}
