package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/eventlens/internal/search"
)

var hiddenCmd = &cobra.Command{
	Use:   "hidden",
	Short: "Manage images marked as not me",
	Long: `Images marked as not me are stored locally per event (see
EVENTLENS_STORE_URL) and excluded from every search of that event.`,
}

var hiddenListCmd = &cobra.Command{
	Use:   "list <event-id>",
	Short: "List hidden images of an event",
	Args:  cobra.ExactArgs(1),
	RunE:  runHiddenList,
}

var hiddenAddCmd = &cobra.Command{
	Use:   "add <event-id> <image-id> [image-id...]",
	Short: "Hide images from future searches",
	Long: `Hide images from future searches of an event. Only the local
exclusion set changes; use "eventlens search --hide" to also send
feedback for the selfie you searched with.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runHiddenAdd,
}

var hiddenClearCmd = &cobra.Command{
	Use:   "clear <event-id>",
	Short: "Show all hidden images again",
	Args:  cobra.ExactArgs(1),
	RunE:  runHiddenClear,
}

func init() {
	rootCmd.AddCommand(hiddenCmd)
	hiddenCmd.AddCommand(hiddenListCmd, hiddenAddCmd, hiddenClearCmd)
}

// openSession opens a search session for eventID on the configured store.
// The returned func closes the store.
func openSession(cmd *cobra.Command, eventID string) (*search.Session, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	st, closer, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	session, err := search.NewSession(cmd.Context(), client, st, eventID)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return session, closer.Close, nil
}

func runHiddenList(cmd *cobra.Command, args []string) error {
	session, closeStore, err := openSession(cmd, args[0])
	if err != nil {
		return err
	}
	defer closeStore()

	ids := session.HiddenIDs()
	if len(ids) == 0 {
		fmt.Println("No hidden images.")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	fmt.Printf("\n%d hidden image(s)\n", len(ids))
	return nil
}

func runHiddenAdd(cmd *cobra.Command, args []string) error {
	session, closeStore, err := openSession(cmd, args[0])
	if err != nil {
		return err
	}
	defer closeStore()

	for _, id := range args[1:] {
		if err := session.AddHiddenID(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to hide %s: %w", id, err)
		}
	}
	fmt.Printf("%d hidden image(s) for event %s\n", len(session.HiddenIDs()), args[0])
	return nil
}

func runHiddenClear(cmd *cobra.Command, args []string) error {
	session, closeStore, err := openSession(cmd, args[0])
	if err != nil {
		return err
	}
	defer closeStore()

	if err := session.ClearHiddenIDs(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear hidden images: %w", err)
	}
	fmt.Printf("Cleared hidden images for event %s\n", args[0])
	return nil
}
