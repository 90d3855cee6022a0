package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ironsheep/label-propagator/internal/labels"
	"github.com/ironsheep/label-propagator/internal/project"
)

var suggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "Review pending suggestions",
}

var suggestionsListCmd = &cobra.Command{
	Use:   "list [image]",
	Short: "List pending suggestions",
	Long: `Without an image, print the number of pending suggestions per image.
With an image, print its suggestions, best score first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSuggestionsList,
}

var suggestionsAcceptCmd = &cobra.Command{
	Use:   "accept <image> [id...]",
	Short: "Commit suggestions as labels",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSuggestionsAccept,
}

var suggestionsRejectCmd = &cobra.Command{
	Use:   "reject <image> [id...]",
	Short: "Discard suggestions",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSuggestionsReject,
}

var suggestionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the pending suggestions of every image",
	Args:  cobra.NoArgs,
	RunE:  runSuggestionsClear,
}

func init() {
	rootCmd.AddCommand(suggestionsCmd)
	suggestionsCmd.AddCommand(suggestionsListCmd, suggestionsAcceptCmd, suggestionsRejectCmd, suggestionsClearCmd)

	suggestionsListCmd.Flags().Bool("json", false, "Output as JSON")
	suggestionsAcceptCmd.Flags().Bool("all", false, "Accept every suggestion of the image")
	suggestionsRejectCmd.Flags().Bool("all", false, "Reject every suggestion of the image")
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSuggestionsList(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")
	store := p.Store

	if len(args) == 1 {
		path := p.Resolve(args[0])
		list := store.Suggestions(path)
		sort.SliceStable(list, func(i, j int) bool { return list[i].Score > list[j].Score })
		if jsonOutput {
			if list == nil {
				list = []labels.Suggestion{}
			}
			return outputJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No pending suggestions.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCLASS\tSCORE\tRECT\tSOURCE\tFROM")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%.3f\t%d,%d %dx%d\t%s\t%s\n",
				s.ID, store.Classes().Name(s.ClassID), s.Score,
				s.Rect.X, s.Rect.Y, s.Rect.W, s.Rect.H, s.Source, p.Relative(s.SourceImage))
		}
		return w.Flush()
	}

	counts := map[string]int{}
	total := 0
	for _, path := range store.Images() {
		if n := store.PendingCount(path); n > 0 {
			counts[p.Relative(path)] = n
			total += n
		}
	}
	if jsonOutput {
		return outputJSON(map[string]interface{}{"images": counts, "total": total})
	}
	if total == 0 {
		fmt.Println("No pending suggestions.")
		return nil
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tPENDING")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%d\n", name, counts[name])
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	return w.Flush()
}

// reviewTarget validates the image/id arguments of accept and reject.
func reviewTarget(cmd *cobra.Command, args []string) (*project.Project, string, []string, error) {
	all := mustGetBool(cmd, "all")
	ids := args[1:]
	if all == (len(ids) > 0) {
		return nil, "", nil, errors.New("give suggestion ids or --all, not both")
	}
	p, err := openProject()
	if err != nil {
		return nil, "", nil, err
	}
	return p, p.Resolve(args[0]), ids, nil
}

func runSuggestionsAccept(cmd *cobra.Command, args []string) error {
	p, path, ids, err := reviewTarget(cmd, args)
	if err != nil {
		return err
	}

	n := 0
	if len(ids) == 0 {
		n = p.Store.AcceptAllSuggestions(path)
	}
	for _, id := range ids {
		if _, err := p.Store.AcceptSuggestion(path, id); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
			continue
		}
		n++
	}
	if err := p.Save(); err != nil {
		return err
	}
	fmt.Printf("Accepted %d suggestion(s).\n", n)
	return nil
}

func runSuggestionsReject(cmd *cobra.Command, args []string) error {
	p, path, ids, err := reviewTarget(cmd, args)
	if err != nil {
		return err
	}

	n := 0
	if len(ids) == 0 {
		n = p.Store.RejectAllSuggestions(path)
	}
	for _, id := range ids {
		if err := p.Store.RejectSuggestion(path, id); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
			continue
		}
		n++
	}
	if err := p.Save(); err != nil {
		return err
	}
	fmt.Printf("Rejected %d suggestion(s).\n", n)
	return nil
}

func runSuggestionsClear(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	n := p.Store.ClearAllSuggestions()
	if err := p.Save(); err != nil {
		return err
	}
	fmt.Printf("Cleared %d suggestion(s).\n", n)
	return nil
}
