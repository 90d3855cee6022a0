package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ironsheep/label-propagator/internal/similarity"
)

var similarityCmd = &cobra.Command{
	Use:   "similarity <a> <b>",
	Short: "Score how alike two images are",
	Long: `Print a whole-image similarity score in [0,1].

The hash mode compares 64-bit difference hashes; the histogram mode compares
grayscale histograms. Hashes are cached in the project's cache directory.`,
	Args: cobra.ExactArgs(2),
	RunE: runSimilarity,
}

func init() {
	rootCmd.AddCommand(similarityCmd)
	similarityCmd.Flags().String("mode", "", "hash or histogram (default from config)")
}

func runSimilarity(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}

	mode := p.Config.Mode()
	if m := mustGetString(cmd, "mode"); m != "" {
		if mode, err = similarity.ParseMode(m); err != nil {
			return err
		}
	}

	score, err := p.Index.Similarity(p.Resolve(args[0]), p.Resolve(args[1]), mode)
	if err != nil {
		return err
	}
	if err := p.Index.Flush(); err != nil {
		return err
	}
	fmt.Printf("%.4f (%s)\n", score, mode)
	return nil
}
