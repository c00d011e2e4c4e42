// Package fakeserver is an in-memory implementation of the event photo
// service API. It backs end-to-end tests and the devserver command.
package fakeserver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kozaktomas/eventlens/internal/constants"
	"github.com/kozaktomas/eventlens/internal/eventapi"
)

const requestIDHeader = "X-Request-ID"

type storedImage struct {
	eventapi.Image
	contentHash string
	data        []byte
}

type storedAlbum struct {
	eventapi.Album
	reads int
}

// Server holds all state in memory. It is safe for concurrent use.
type Server struct {
	router     *chi.Mux
	logger     *slog.Logger
	adminToken string

	// jobReadsPerStep and albumReads control how fast async work finishes
	jobReadsPerStep int
	albumReads      int

	mu          sync.Mutex
	events      map[string]*eventapi.Event
	eventOrder  []string
	images      map[string][]*storedImage
	jobs        map[string]*fakeJob
	albums      map[string][]*storedAlbum
	feedback    map[string]map[string][]string // event -> selfie hash -> image IDs
	failUploads map[string]int                 // file name -> remaining failures
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAdminToken requires a bearer token on organizer routes.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = token
	}
}

// WithJobReadsPerStep sets how many status reads advance a job by one state.
func WithJobReadsPerStep(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.jobReadsPerStep = n
		}
	}
}

// WithAlbumReadsToComplete sets how many reads finish an album generation.
func WithAlbumReadsToComplete(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.albumReads = n
		}
	}
}

// New creates an empty server
func New(opts ...Option) *Server {
	s := &Server{
		router:          chi.NewRouter(),
		logger:          slog.Default(),
		jobReadsPerStep: constants.JobReadsPerStep,
		albumReads:      constants.AlbumReadsToComplete,
		events:          make(map[string]*eventapi.Event),
		images:          make(map[string][]*storedImage),
		jobs:            make(map[string]*fakeJob),
		albums:          make(map[string][]*storedAlbum),
		feedback:        make(map[string]map[string][]string),
		failUploads:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(requestID)
	s.router.Use(chiMiddleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(chiMiddleware.Recoverer)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)

		r.Post("/events/lookup", s.lookupEvent)
		r.Get("/events/{eventID}", s.getEvent)
		r.Post("/events/{eventID}/verify", s.verifyEvent)
		r.Get("/events/{eventID}/stats", s.eventStats)
		r.Get("/events/{eventID}/images", s.listImages)
		r.Get("/events/{eventID}/file/{imageID}", s.serveImage)

		r.Post("/upload", s.upload)
		r.Get("/jobs/{jobID}", s.getJob)

		r.Post("/search", s.search)
		r.Post("/search/feedback", s.searchFeedback)
		r.Post("/search/smart", s.smartSearch)

		// Organizer routes
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)

			r.Get("/events", s.listEvents)
			r.Post("/events", s.createEvent)
			r.Delete("/events/{eventID}", s.deleteEvent)

			r.Post("/events/{eventID}/albums/generate", s.generateAlbum)
			r.Get("/events/{eventID}/albums", s.listAlbums)
			r.Get("/events/{eventID}/albums/{albumID}", s.getAlbum)
			r.Delete("/events/{eventID}/albums/{albumID}", s.deleteAlbum)
		})
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FailUpload makes the next n uploads of the named file fail with a 500.
func (s *Server) FailUpload(name string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUploads[name] = n
}

// requestID echoes the caller's request ID, generating one when absent.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", w.Header().Get(requestIDHeader),
		)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token != s.adminToken {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	events := len(s.events)
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, eventapi.Health{
		Status:  "healthy",
		Service: "eventlens-devserver",
		Version: "dev",
		Checks: map[string]map[string]any{
			"memory": {"status": "healthy", "events": events},
		},
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
