// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Pagination constants
const (
	// DefaultPageSize is the number of images fetched per API page
	DefaultPageSize = 100

	// MaxPageSize is the largest page the service returns
	MaxPageSize = 100
)

// Search constants
const (
	// DefaultThreshold is the similarity threshold the service applies when none is sent
	DefaultThreshold = 0.70

	// MinThreshold and MaxThreshold bound the threshold; the service clamps to this range
	MinThreshold = 0.3
	MaxThreshold = 0.99

	// DefaultSmartSearchResults is the default result cap for hybrid search
	DefaultSmartSearchResults = 50

	// DefaultFeedbackTimeout bounds one best-effort feedback call
	DefaultFeedbackTimeout = 10 * time.Second
)

// Polling constants
const (
	// DefaultPollInterval is the interval between job status fetches
	DefaultPollInterval = 2 * time.Second

	// DefaultStatsInterval is the interval between event stats fetches
	DefaultStatsInterval = 10 * time.Second
)

// Processing constants
const (
	// MaxSelfieSize is the maximum dimension (width or height) of a selfie sent for search
	MaxSelfieSize = 1024

	// SelfieJPEGQuality is the encoder quality for downscaled selfies
	SelfieJPEGQuality = 90
)

// HTTP constants
const (
	// DefaultHTTPTimeout bounds JSON requests. Uploads rely on cancellation instead.
	DefaultHTTPTimeout = 60 * time.Second
)
