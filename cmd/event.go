package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/eventlens/internal/constants"
	"github.com/kozaktomas/eventlens/internal/eventapi"
	"github.com/kozaktomas/eventlens/internal/poller"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Find and manage events",
	Long: `Find events by access code and inspect them. Creating, listing and
deleting events are organizer operations and need EVENTLENS_TOKEN.`,
}

var eventLookupCmd = &cobra.Command{
	Use:   "lookup <access-code>",
	Short: "Find an event by its access code",
	Long: `Find an event by the access code printed on the invitation.
The code is normalized first: spaces and diacritics are dropped and
letters are upper-cased.

Example:
  eventlens event lookup "wed 2026"`,
	Args: cobra.ExactArgs(1),
	RunE: runEventLookup,
}

var eventVerifyCmd = &cobra.Command{
	Use:   "verify <event-id> <access-code>",
	Short: "Check an access code against an event",
	Args:  cobra.ExactArgs(2),
	RunE:  runEventVerify,
}

var eventGetCmd = &cobra.Command{
	Use:   "get <event-id>",
	Short: "Show event details",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventGet,
}

var eventStatsCmd = &cobra.Command{
	Use:   "stats <event-id>",
	Short: "Show image, face and storage counts",
	Long: `Show image, face and storage counts for an event.
With --watch the counts are refreshed until Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runEventStats,
}

var eventImagesCmd = &cobra.Command{
	Use:   "images <event-id>",
	Short: "List event images, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventImages,
}

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all events (organizer)",
	Args:  cobra.NoArgs,
	RunE:  runEventList,
}

var eventCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an event (organizer)",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventCreate,
}

var eventDeleteCmd = &cobra.Command{
	Use:   "delete <event-id>",
	Short: "Delete an event and its images (organizer)",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventDelete,
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(eventLookupCmd, eventVerifyCmd, eventGetCmd, eventStatsCmd,
		eventImagesCmd, eventListCmd, eventCreateCmd, eventDeleteCmd)

	for _, c := range []*cobra.Command{eventGetCmd, eventStatsCmd, eventImagesCmd, eventListCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
	}

	eventStatsCmd.Flags().Bool("watch", false, "Refresh the counts until interrupted")
	eventStatsCmd.Flags().Duration("interval", 0, "Refresh interval (default EVENTLENS_STATS_INTERVAL)")

	eventImagesCmd.Flags().Int("page", 1, "Page number")
	eventImagesCmd.Flags().Int("per-page", constants.DefaultPageSize, "Images per page")
	eventImagesCmd.Flags().Bool("all", false, "Fetch every page")

	eventCreateCmd.Flags().String("code", "", "Access code (generated by the server when empty)")
	eventCreateCmd.Flags().String("expires", "", "Expiry time in RFC 3339 format")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runEventLookup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	found, err := client.LookupEvent(cmd.Context(), args[0])
	if err != nil {
		if eventapi.IsNotFoundError(err) {
			return fmt.Errorf("no event found for code %q", strings.TrimSpace(args[0]))
		}
		return fmt.Errorf("failed to look up event: %w", err)
	}
	fmt.Printf("Event: %s\n", found.EventName)
	fmt.Printf("ID:    %s\n", found.EventID)
	return nil
}

func runEventVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	result, err := client.VerifyEvent(cmd.Context(), args[0], args[1])
	if err != nil {
		if eventapi.StatusCode(err) == 403 {
			return fmt.Errorf("access code does not match event %s", args[0])
		}
		return fmt.Errorf("failed to verify access code: %w", err)
	}
	fmt.Printf("Access code verified for event: %s\n", result.Event.Name)
	return nil
}

func runEventGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	event, err := client.GetEvent(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return printJSON(event)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", event.ID)
	fmt.Fprintf(w, "Name:\t%s\n", event.Name)
	fmt.Fprintf(w, "Access code:\t%s\n", event.AccessCode)
	fmt.Fprintf(w, "Active:\t%t\n", event.IsActive)
	fmt.Fprintf(w, "Images:\t%d\n", event.ImageCount)
	fmt.Fprintf(w, "Created:\t%s\n", event.CreatedAt)
	if event.ExpiresAt != "" {
		fmt.Fprintf(w, "Expires:\t%s\n", event.ExpiresAt)
	}
	return w.Flush()
}

func printStats(stats *eventapi.EventStats) {
	fmt.Printf("%s: %d images (%d processed), %d faces, %s\n",
		stats.EventName, stats.ImageCount, stats.ProcessedCount, stats.FaceCount, formatBytes(stats.StorageUsedBytes))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func runEventStats(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	watch := mustGetBool(cmd, "watch")
	interval := mustGetDuration(cmd, "interval")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	if !watch {
		stats, err := client.GetEventStats(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}
		if jsonOutput {
			return printJSON(stats)
		}
		printStats(stats)
		return nil
	}

	if interval <= 0 {
		interval = cfg.Poll.StatsInterval
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	p, err := poller.NewStatsPoller(client, interval,
		poller.WithOnUpdate(func(u poller.Update[*eventapi.EventStats]) {
			if u.Err != nil {
				fmt.Fprintf(os.Stderr, "%s  error: %v\n", u.At.Format(time.TimeOnly), u.Err)
				return
			}
			if jsonOutput {
				_ = printJSON(u.Value)
				return
			}
			fmt.Printf("%s  ", u.At.Format(time.TimeOnly))
			printStats(u.Value)
		}))
	if err != nil {
		return err
	}
	p.Start(ctx, args[0])
	<-ctx.Done()
	p.Stop()
	return nil
}

func runEventImages(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	page := mustGetInt(cmd, "page")
	perPage := mustGetInt(cmd, "per-page")
	all := mustGetBool(cmd, "all")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	var images []eventapi.Image
	footer := ""
	if all {
		images, err = client.ListAllImages(cmd.Context(), args[0], perPage)
		if err != nil {
			return fmt.Errorf("failed to list images: %w", err)
		}
	} else {
		result, err := client.ListImages(cmd.Context(), args[0], page, perPage)
		if err != nil {
			return fmt.Errorf("failed to list images: %w", err)
		}
		images = result.Images
		footer = fmt.Sprintf("\nPage %d of %d (%d images total)\n", result.Page, result.Pages, result.Total)
	}

	if jsonOutput {
		return printJSON(images)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILENAME\tFACES\tPROCESSED\tSIZE")
	for _, img := range images {
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n",
			cfg.API.ImageLink(img.ID, img.URL), img.OriginalFilename, img.FaceCount, img.IsProcessed, formatBytes(img.FileSize))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Print(footer)
	return nil
}

func runEventList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	events, err := client.ListEvents(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return printJSON(events)
	}
	if len(events) == 0 {
		fmt.Println("No events found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCODE\tACTIVE\tIMAGES")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\n", e.ID, e.Name, e.AccessCode, e.IsActive, e.ImageCount)
	}
	return w.Flush()
}

func runEventCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	event, err := client.CreateEvent(cmd.Context(), eventapi.CreateEventRequest{
		Name:       args[0],
		AccessCode: mustGetString(cmd, "code"),
		ExpiresAt:  mustGetString(cmd, "expires"),
	})
	if err != nil {
		if eventapi.IsConflictError(err) {
			return fmt.Errorf("access code is already in use")
		}
		return fmt.Errorf("failed to create event: %w", err)
	}
	fmt.Printf("Created event %s\n", event.Name)
	fmt.Printf("  ID:          %s\n", event.ID)
	fmt.Printf("  Access code: %s\n", event.AccessCode)
	return nil
}

func runEventDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	if err := client.DeleteEvent(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	fmt.Printf("Deleted event %s\n", args[0])
	return nil
}
