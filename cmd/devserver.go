package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/eventlens/internal/fakeserver"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory event photo service for local testing",
	Long: `Run an in-memory implementation of the event photo service API.
State is lost on exit. Jobs and albums advance each time they are read,
so uploads finish after a few polls.

Example:
  eventlens devserver --seed "Anna & Tom:WED2026"
  EVENTLENS_URL=http://127.0.0.1:8090 eventlens event lookup wed2026`,
	Args: cobra.NoArgs,
	RunE: runDevserver,
}

func init() {
	rootCmd.AddCommand(devserverCmd)

	devserverCmd.Flags().String("addr", "", "Address to listen on (default EVENTLENS_DEVSERVER_ADDR)")
	devserverCmd.Flags().String("admin-token", "", "Bearer token required for organizer routes (default EVENTLENS_TOKEN)")
	devserverCmd.Flags().StringSlice("seed", nil, `Events to create at startup as "name:code"`)
}

func runDevserver(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr := mustGetString(cmd, "addr")
	if addr == "" {
		addr = cfg.DevServer.Addr
	}
	token := mustGetString(cmd, "admin-token")
	if token == "" {
		token = cfg.API.Token
	}

	srv := fakeserver.New(fakeserver.WithLogger(slog.Default()), fakeserver.WithAdminToken(token))
	for _, seed := range mustGetStringSlice(cmd, "seed") {
		name, code, _ := strings.Cut(seed, ":")
		event := srv.AddEvent(name, code)
		fmt.Printf("Seeded event %q: id=%s code=%s\n", event.Name, event.ID, event.AccessCode)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting dev server on http://%s\n", addr)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
