package constants

// Development server constants
const (
	// DefaultDevServerAddr is the listen address of the local development server
	DefaultDevServerAddr = "127.0.0.1:8090"

	// MaxUploadSize is the maximum upload request size in bytes (100MB)
	MaxUploadSize = 100 << 20

	// MaxSelfieUploadSize is the maximum search request size in bytes (10MB)
	MaxSelfieUploadSize = 10 << 20

	// JobReadsPerStep is how many status reads advance a fake job by one state
	JobReadsPerStep = 1

	// AlbumReadsToComplete is how many album reads finish a fake album generation
	AlbumReadsToComplete = 2
)
