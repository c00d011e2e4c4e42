package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/eventlens/internal/eventapi"
	"github.com/kozaktomas/eventlens/internal/search"
	"github.com/kozaktomas/eventlens/internal/selfie"
)

var searchCmd = &cobra.Command{
	Use:   "search <event-id> [selfie]",
	Short: "Find your photos in an event with a selfie",
	Long: `Search an event for photos of the person in a selfie.

Images marked as "not me" (with --hide or "eventlens hidden add") are
remembered for the event and excluded from every later search. Marking
an image also tells the service, which then ranks similar false matches
lower for this selfie.

With --query the search becomes a smart search: photos are matched by a
text description, optionally combined with the selfie.

Examples:
  eventlens search 7f3c... me.jpg
  eventlens search 7f3c... me.jpg --threshold 0.8
  eventlens search 7f3c... me.jpg --hide 41a2...,9bc0...
  eventlens search 7f3c... --query "cake cutting"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Float64("threshold", 0, "Minimum similarity (default EVENTLENS_THRESHOLD)")
	searchCmd.Flags().StringSlice("exclude", nil, "Image IDs to exclude from this search only")
	searchCmd.Flags().StringSlice("hide", nil, "Image IDs to mark as not me after searching")
	searchCmd.Flags().String("query", "", "Text description for a smart search")
	searchCmd.Flags().Int("max-results", 0, "Maximum smart search results (default 50)")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	eventID := args[0]
	threshold := mustGetFloat64(cmd, "threshold")
	exclude := mustGetStringSlice(cmd, "exclude")
	hide := mustGetStringSlice(cmd, "hide")
	query := mustGetString(cmd, "query")
	maxResults := mustGetInt(cmd, "max-results")
	jsonOutput := mustGetBool(cmd, "json")

	if len(args) < 2 && query == "" {
		return errors.New("a selfie is required unless --query is given")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if threshold <= 0 {
		threshold = cfg.Search.Threshold
	}

	var selfieData []byte
	if len(args) == 2 {
		selfieData, err = selfie.PrepareFile(args[1], cfg.Search.SelfieMaxSize)
		if err != nil {
			return fmt.Errorf("failed to read selfie: %w", err)
		}
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, closer, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	if maxResults <= 0 {
		maxResults = cfg.Search.MaxResults
	}
	session, err := search.NewSession(ctx, client, st, eventID,
		search.WithFeedbackTimeout(cfg.Search.FeedbackTimeout),
		search.WithMaxResults(maxResults))
	if err != nil {
		return err
	}

	var results []eventapi.SearchResult
	if query != "" {
		resp, err := session.SmartSearch(ctx, query, selfieData, threshold, exclude...)
		if err != nil {
			return fmt.Errorf("smart search failed: %w", err)
		}
		results = resp.Results
	} else {
		resp, err := session.Search(ctx, selfieData, threshold, exclude...)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		results = resp.Results
	}

	if len(hide) > 0 {
		if err := hideImages(ctx, session, hide); err != nil {
			return err
		}
		results = session.VisibleResults()
	}

	snap := session.Snapshot()
	snap.Results = results
	if jsonOutput {
		return printJSON(snap)
	}
	printSearchResults(cfg.API.ImageLink, snap)
	return nil
}

// hideImages marks images as not me and waits for the service to record it.
// Feedback failures are logged by the session and never fail the command.
func hideImages(ctx context.Context, session *search.Session, ids []string) error {
	for _, id := range ids {
		if err := session.Hide(ctx, id); err != nil {
			return fmt.Errorf("failed to hide %s: %w", id, err)
		}
	}
	if err := session.WaitFeedback(ctx); err != nil {
		return fmt.Errorf("waiting for feedback: %w", err)
	}
	fmt.Printf("Marked %d image(s) as not me\n", len(ids))
	return nil
}

func printSearchResults(link func(id, url string) string, snap search.Snapshot) {
	results := snap.Results
	if len(results) == 0 {
		fmt.Println("No matching photos found.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "IMAGE\tFILENAME\tSIMILARITY\tRELEVANCE")
		for _, r := range results {
			relevance := "-"
			if r.RelevanceScore != nil {
				relevance = fmt.Sprintf("%.2f", *r.RelevanceScore)
			}
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", link(r.Image.ID, r.Image.URL), r.Image.OriginalFilename, r.Similarity, relevance)
		}
		_ = w.Flush()
	}

	fmt.Printf("\n%d photo(s)", len(results))
	if snap.Threshold > 0 {
		fmt.Printf(" at threshold %.2f", snap.Threshold)
	}
	fmt.Println()
	if snap.FeedbackApplied {
		fmt.Printf("Feedback applied: %d personal, %d total\n",
			snap.FeedbackStats.PersonalFeedbackCount, snap.FeedbackStats.TotalFeedbackCount)
	}
	if n := len(snap.HiddenIDs); n > 0 {
		fmt.Printf("%d image(s) hidden as not me\n", n)
	}
}
