package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/eventlens/internal/constants"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	API       APIConfig       `yaml:"api"`
	Store     StoreConfig     `yaml:"store"`
	Search    SearchConfig    `yaml:"search"`
	Poll      PollConfig      `yaml:"poll"`
	Log       LogConfig       `yaml:"log"`
	DevServer DevServerConfig `yaml:"devserver"`
}

type APIConfig struct {
	URL         string        `yaml:"url"`
	Token       string        `yaml:"-"` // bearer token for admin routes
	CaptureDir  string        `yaml:"-"` // directory for captured responses (optional)
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// ImageLink returns an OSC 8 hyperlink for terminal emulators (iTerm2, etc.)
// Displays the image ID but makes it clickable to open the image.
// Relative image URLs are resolved against the service URL.
// Returns the bare ID if the image has no URL.
func (c *APIConfig) ImageLink(id, imageURL string) string {
	if imageURL == "" {
		return id
	}
	if !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
		resolved, err := url.JoinPath(c.URL, imageURL)
		if err != nil {
			return id
		}
		imageURL = resolved
	}
	// OSC 8 hyperlink format: \e]8;;URL\e\\TEXT\e]8;;\e\\
	return "\x1b]8;;" + imageURL + "\x1b\\" + id + "\x1b]8;;\x1b\\"
}

type StoreConfig struct {
	URL string `yaml:"url"` // memory://, file://, sqlite://, postgres://, mysql://, redis://
}

type SearchConfig struct {
	Threshold       float64       `yaml:"threshold"`
	SelfieMaxSize   int           `yaml:"selfie_max_size"`
	FeedbackTimeout time.Duration `yaml:"feedback_timeout"`
	MaxResults      int           `yaml:"max_results"`
}

type PollConfig struct {
	Interval      time.Duration `yaml:"interval"`
	StatsInterval time.Duration `yaml:"stats_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

type DevServerConfig struct {
	Addr string `yaml:"addr"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back like envInt.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a positive Go duration such as "500ms" or "2s".
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// defaults parses the embedded defaults.yaml.
func defaults() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return cfg
}

// defaultStoreURL places the state directory under the user config directory.
func defaultStoreURL() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "memory://"
	}
	return "file://" + filepath.Join(dir, "eventlens", "state")
}

func Load() *Config {
	d := defaults()

	cfg := &Config{
		API: APIConfig{
			URL:         envString("EVENTLENS_URL", d.API.URL),
			Token:       os.Getenv("EVENTLENS_TOKEN"),
			CaptureDir:  os.Getenv("EVENTLENS_CAPTURE_DIR"),
			HTTPTimeout: envDuration("EVENTLENS_HTTP_TIMEOUT", d.API.HTTPTimeout),
		},
		Store: StoreConfig{
			URL: envString("EVENTLENS_STORE_URL", d.Store.URL),
		},
		Search: SearchConfig{
			Threshold:       envFloat("EVENTLENS_THRESHOLD", d.Search.Threshold),
			SelfieMaxSize:   envInt("EVENTLENS_SELFIE_MAX_SIZE", d.Search.SelfieMaxSize),
			FeedbackTimeout: envDuration("EVENTLENS_FEEDBACK_TIMEOUT", d.Search.FeedbackTimeout),
			MaxResults:      d.Search.MaxResults,
		},
		Poll: PollConfig{
			Interval:      envDuration("EVENTLENS_POLL_INTERVAL", d.Poll.Interval),
			StatsInterval: envDuration("EVENTLENS_STATS_INTERVAL", d.Poll.StatsInterval),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", d.Log.Level),
			Format: envString("LOG_FORMAT", d.Log.Format),
		},
		DevServer: DevServerConfig{
			Addr: envString("EVENTLENS_DEVSERVER_ADDR", d.DevServer.Addr),
		},
	}

	if cfg.Store.URL == "" {
		cfg.Store.URL = defaultStoreURL()
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = constants.DefaultSmartSearchResults
	}
	return cfg
}

// Validate checks values the service would reject or clamp.
func (c *Config) Validate() error {
	var errs []error
	if c.API.URL == "" {
		errs = append(errs, errors.New("EVENTLENS_URL is required"))
	}
	if c.Search.Threshold < constants.MinThreshold || c.Search.Threshold > constants.MaxThreshold {
		errs = append(errs, fmt.Errorf("threshold %.2f is outside [%.2f, %.2f]",
			c.Search.Threshold, constants.MinThreshold, constants.MaxThreshold))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Poll.StatsInterval <= 0 {
		errs = append(errs, errors.New("stats interval must be positive"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
