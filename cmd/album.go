package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/eventlens/internal/eventapi"
	"github.com/kozaktomas/eventlens/internal/poller"
)

var albumCmd = &cobra.Command{
	Use:   "album",
	Short: "Generate and browse event albums (organizer)",
	Long: `Albums group an event's processed photos into moments. Generation
runs on the server; these commands need EVENTLENS_TOKEN.`,
}

var albumGenerateCmd = &cobra.Command{
	Use:   "generate <event-id>",
	Short: "Start album generation",
	Long: `Start album generation for an event. Only one album can be generated
at a time; if one is already running, --wait follows that one instead.

Example:
  eventlens album generate 7f3c... --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runAlbumGenerate,
}

var albumListCmd = &cobra.Command{
	Use:   "list <event-id>",
	Short: "List albums of an event",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlbumList,
}

var albumGetCmd = &cobra.Command{
	Use:   "get <event-id> <album-id>",
	Short: "Show an album with its moments",
	Args:  cobra.ExactArgs(2),
	RunE:  runAlbumGet,
}

var albumDeleteCmd = &cobra.Command{
	Use:   "delete <event-id> <album-id>",
	Short: "Delete an album",
	Args:  cobra.ExactArgs(2),
	RunE:  runAlbumDelete,
}

func init() {
	rootCmd.AddCommand(albumCmd)
	albumCmd.AddCommand(albumGenerateCmd, albumListCmd, albumGetCmd, albumDeleteCmd)

	albumGenerateCmd.Flags().Bool("wait", false, "Wait until generation completes")
	albumGetCmd.Flags().Bool("json", false, "Output as JSON")
}

// generatingAlbum finds the album a conflicting generate request refers to.
func generatingAlbum(ctx context.Context, client *eventapi.Client, eventID string) (string, error) {
	albums, err := client.ListAlbums(ctx, eventID)
	if err != nil {
		return "", err
	}
	for _, a := range albums {
		if !a.Status.IsTerminal() {
			return a.ID, nil
		}
	}
	return "", errors.New("no album is being generated")
}

func runAlbumGenerate(cmd *cobra.Command, args []string) error {
	eventID := args[0]
	wait := mustGetBool(cmd, "wait")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var albumID string
	gen, err := client.GenerateAlbum(ctx, eventID)
	switch {
	case eventapi.IsConflictError(err):
		fmt.Println("An album is already being generated for this event.")
		if !wait {
			return nil
		}
		if albumID, err = generatingAlbum(ctx, client, eventID); err != nil {
			return fmt.Errorf("failed to find running generation: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to start album generation: %w", err)
	default:
		albumID = gen.AlbumID
		fmt.Printf("Album generation started: %s\n", albumID)
		if !wait {
			return nil
		}
	}

	p, err := poller.NewAlbumPoller(client, eventID, cfg.Poll.Interval,
		poller.WithOnUpdate(func(u poller.Update[*eventapi.Album]) {
			if u.Err != nil {
				fmt.Fprintf(os.Stderr, "poll error: %v\n", u.Err)
			}
		}))
	if err != nil {
		return err
	}
	p.Start(ctx, albumID)
	final, err := p.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for album %s: %w", albumID, err)
	}

	album := final.Value
	if album.Status == eventapi.AlbumStatusFailed {
		return fmt.Errorf("album generation failed: %s", album.ErrorMessage)
	}
	printAlbum(cfg.API.ImageLink, album)
	return nil
}

func runAlbumList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	albums, err := client.ListAlbums(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list albums: %w", err)
	}
	if len(albums) == 0 {
		fmt.Println("No albums found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tMOMENTS\tTITLE\tCREATED")
	for _, a := range albums {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", a.ID, a.Status, a.MomentCount, a.Title, a.CreatedAt)
	}
	return w.Flush()
}

func runAlbumGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	album, err := client.GetAlbum(cmd.Context(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to get album: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return printJSON(album)
	}
	printAlbum(cfg.API.ImageLink, album)
	return nil
}

func printAlbum(link func(id, url string) string, album *eventapi.Album) {
	title := album.Title
	if title == "" {
		title = album.ID
	}
	fmt.Printf("%s (%s)\n", title, album.Status)
	if album.Summary != "" {
		fmt.Println(album.Summary)
	}
	if album.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", album.ErrorMessage)
	}

	for i, m := range album.Moments {
		fmt.Printf("\n%d. %s (%d photos)\n", i+1, m.Caption, m.PhotoCount)
		for _, photo := range m.Photos {
			fmt.Printf("   %s  %s\n", link(photo.ID, photo.URL), photo.OriginalFilename)
		}
	}
}

func runAlbumDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	if err := client.DeleteAlbum(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("failed to delete album: %w", err)
	}
	fmt.Printf("Deleted album %s\n", args[1])
	return nil
}
