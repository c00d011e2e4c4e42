package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/eventlens/internal/config"
	"github.com/kozaktomas/eventlens/internal/logging"
)

var (
	captureDir string
	apiURL     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "eventlens",
	Short: "A CLI client for the event photo service",
	Long: `EventLens talks to an event photo service: guests find an event by its
access code, upload photos, and search for photos of themselves with a
selfie. Images a guest marks as "not me" are remembered per event and
excluded from later searches.

Configuration is read from the environment (and an optional .env file).
EVENTLENS_URL selects the service, EVENTLENS_TOKEN authorizes organizer
commands and EVENTLENS_STORE_URL chooses where local state is kept.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&captureDir, "capture", "", "Directory to save API responses for testing")
	rootCmd.PersistentFlags().StringVar(&apiURL, "url", "", "Service URL (overrides EVENTLENS_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the configuration, applies global flags and installs the
// default logger. Commands call it first.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if apiURL != "" {
		cfg.API.URL = apiURL
	}
	if captureDir != "" {
		cfg.API.CaptureDir = captureDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
