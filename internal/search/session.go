// Package search manages a face-search session for one event: the current
// result set, the selfie hash the server assigned, and the persisted "not me"
// exclusion set that is merged into every request.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/eventlens/internal/constants"
	"github.com/kozaktomas/eventlens/internal/eventapi"
	"github.com/kozaktomas/eventlens/internal/store"
)

// ErrSuperseded is returned by a search whose response arrived after a newer
// search had started. Its result is discarded.
var ErrSuperseded = errors.New("search superseded by a newer request")

// Searcher is the subset of the remote client a session needs.
type Searcher interface {
	Search(ctx context.Context, input eventapi.SearchRequest) (*eventapi.SearchResponse, error)
	SmartSearch(ctx context.Context, input eventapi.SmartSearchRequest) (*eventapi.SmartSearchResponse, error)
	SubmitFeedback(ctx context.Context, input eventapi.FeedbackRequest) (*eventapi.FeedbackResponse, error)
}

// State is the lifecycle position of a session.
type State string

const (
	StateIdle      State = "idle"
	StateSearching State = "searching"
	StateResults   State = "results"
	StateErrored   State = "errored"
)

// Snapshot is a copy of the session state at one point in time.
type Snapshot struct {
	EventID         string
	State           State
	Results         []eventapi.SearchResult
	SelfieHash      string
	FeedbackApplied bool
	FeedbackStats   eventapi.FeedbackStats
	Threshold       float64
	Query           string
	Error           string
	HiddenIDs       []string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for best-effort feedback failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFeedbackTimeout bounds each background feedback call.
func WithFeedbackTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.feedbackTimeout = d
		}
	}
}

// WithMaxResults caps smart search results. Zero lets the server decide.
func WithMaxResults(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// WithOnChange registers a callback invoked after every state change.
func WithOnChange(fn func(Snapshot)) Option {
	return func(s *Session) {
		s.onChange = fn
	}
}

// Session is safe for concurrent use.
type Session struct {
	client          Searcher
	store           store.Store
	eventID         string
	logger          *slog.Logger
	feedbackTimeout time.Duration
	maxResults      int
	onChange        func(Snapshot)

	mu              sync.Mutex
	generation      uint64
	state           State
	results         []eventapi.SearchResult
	selfieHash      string
	feedbackApplied bool
	feedbackStats   eventapi.FeedbackStats
	threshold       float64
	query           string
	errMsg          string
	hidden          []string

	// persistMu serializes read-modify-write cycles against the store
	persistMu sync.Mutex
	feedback  sync.WaitGroup
}

// NewSession opens a session for eventID and loads its persisted exclusion set.
func NewSession(ctx context.Context, client Searcher, st store.Store, eventID string, opts ...Option) (*Session, error) {
	if client == nil {
		return nil, errors.New("search client is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if eventID == "" {
		return nil, errors.New("event ID is required")
	}

	s := &Session{
		client:          client,
		store:           st,
		eventID:         eventID,
		logger:          slog.Default(),
		feedbackTimeout: constants.DefaultFeedbackTimeout,
		state:           StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}

	hidden, err := loadHidden(ctx, st, eventID)
	if err != nil {
		return nil, err
	}
	s.hidden = hidden
	return s, nil
}

// EventID returns the event the session is scoped to
func (s *Session) EventID() string {
	return s.eventID
}

// Search runs a face search. The persisted exclusion set and the explicit
// IDs are merged and sent together. A call overtaken by a newer search
// returns ErrSuperseded and leaves the session untouched.
func (s *Session) Search(ctx context.Context, selfie []byte, threshold float64, explicit ...string) (*eventapi.SearchResponse, error) {
	gen, exclusions := s.begin("", explicit)

	resp, err := s.client.Search(ctx, eventapi.SearchRequest{
		EventID:          s.eventID,
		Selfie:           selfie,
		Threshold:        threshold,
		ExcludedImageIDs: exclusions,
	})

	err = s.settle(gen, err, func() {
		s.results = resp.Results
		s.selfieHash = resp.SelfieHash
		s.feedbackApplied = resp.FeedbackApplied
		s.feedbackStats = resp.FeedbackStats
		s.threshold = resp.Threshold
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// SmartSearch runs a hybrid text and face search with the same exclusion
// merge and stale-response guard as Search.
func (s *Session) SmartSearch(ctx context.Context, query string, selfie []byte, threshold float64, explicit ...string) (*eventapi.SmartSearchResponse, error) {
	gen, exclusions := s.begin(query, explicit)

	resp, err := s.client.SmartSearch(ctx, eventapi.SmartSearchRequest{
		EventID:          s.eventID,
		Query:            query,
		Selfie:           selfie,
		Threshold:        threshold,
		ExcludedImageIDs: exclusions,
		MaxResults:       s.maxResults,
	})

	err = s.settle(gen, err, func() {
		s.results = resp.Results
		s.feedbackApplied = false
		s.threshold = threshold
		if resp.SelfieHash != "" {
			s.selfieHash = resp.SelfieHash
		}
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// begin moves the session into searching and returns the call's generation
// with the exclusions to send.
func (s *Session) begin(query string, explicit []string) (uint64, []string) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.state = StateSearching
	s.query = query
	s.errMsg = ""
	exclusions := mergeIDs(s.hidden, explicit)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return gen, exclusions
}

// settle applies a finished call unless a newer one has started since.
func (s *Session) settle(gen uint64, callErr error, apply func()) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrSuperseded
	}

	if callErr != nil {
		s.state = StateErrored
		s.results = nil
		s.feedbackApplied = false
		s.errMsg = callErr.Error()
	} else {
		apply()
		s.state = StateResults
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return callErr
}

// AddHiddenID marks an image as "not me" and persists the exclusion set.
// Adding an ID that is already present changes nothing.
func (s *Session) AddHiddenID(ctx context.Context, imageID string) error {
	if imageID == "" {
		return errors.New("image ID is required")
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	alreadyHidden := slices.Contains(s.hidden, imageID)
	if !alreadyHidden {
		s.hidden = append(s.hidden, imageID)
	}
	local := slices.Clone(s.hidden)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if !alreadyHidden {
		s.notify(snap)
	}

	// Another process may have written the key since we loaded it.
	persisted, err := loadHidden(ctx, s.store, s.eventID)
	if err != nil {
		return err
	}
	merged := mergeIDs(persisted, local)
	if slices.Equal(merged, persisted) {
		return nil
	}
	if err := saveHidden(ctx, s.store, s.eventID, merged); err != nil {
		return err
	}

	s.mu.Lock()
	s.hidden = mergeIDs(s.hidden, merged)
	s.mu.Unlock()
	return nil
}

// ClearHiddenIDs empties the exclusion set. Feedback already recorded by the
// server is not retracted.
func (s *Session) ClearHiddenIDs(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.hidden = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	return saveHidden(ctx, s.store, s.eventID, []string{})
}

// Hide adds imageID to the exclusion set and then reports it to the server
// in the background. Only the local part can fail.
func (s *Session) Hide(ctx context.Context, imageID string) error {
	if err := s.AddHiddenID(ctx, imageID); err != nil {
		return err
	}
	s.submitFeedback(ctx, imageID)
	return nil
}

func (s *Session) submitFeedback(ctx context.Context, imageID string) {
	s.mu.Lock()
	selfieHash := s.selfieHash
	s.mu.Unlock()

	if selfieHash == "" {
		s.logger.Debug("skipping feedback without a selfie hash", "event_id", s.eventID, "image_id", imageID)
		return
	}

	s.feedback.Add(1)
	go func() {
		defer s.feedback.Done()

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.feedbackTimeout)
		defer cancel()

		resp, err := s.client.SubmitFeedback(fctx, eventapi.FeedbackRequest{
			EventID:    s.eventID,
			ImageID:    imageID,
			SelfieHash: selfieHash,
		})
		if err != nil {
			s.logger.Warn("feedback submission failed",
				"event_id", s.eventID,
				"image_id", imageID,
				"error", err,
			)
			return
		}
		if resp == nil || resp.FeedbackStats == nil {
			return
		}

		s.mu.Lock()
		if s.selfieHash != selfieHash {
			s.mu.Unlock()
			return
		}
		s.feedbackStats = *resp.FeedbackStats
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
	}()
}

// WaitFeedback blocks until every background feedback call has finished or
// ctx is done.
func (s *Session) WaitFeedback(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.feedback.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for feedback: %w", ctx.Err())
	}
}

// HiddenIDs returns the exclusion set in insertion order
func (s *Session) HiddenIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.hidden)
}

// IsHidden reports whether imageID is in the exclusion set
func (s *Session) IsHidden(imageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.hidden, imageID)
}

// VisibleResults returns the current results minus hidden images.
func (s *Session) VisibleResults() []eventapi.SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	visible := make([]eventapi.SearchResult, 0, len(s.results))
	for _, r := range s.results {
		if !slices.Contains(s.hidden, r.Image.ID) {
			visible = append(visible, r)
		}
	}
	return visible
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		EventID:         s.eventID,
		State:           s.state,
		Results:         slices.Clone(s.results),
		SelfieHash:      s.selfieHash,
		FeedbackApplied: s.feedbackApplied,
		FeedbackStats:   s.feedbackStats,
		Threshold:       s.threshold,
		Query:           s.query,
		Error:           s.errMsg,
		HiddenIDs:       slices.Clone(s.hidden),
	}
}

func (s *Session) notify(snap Snapshot) {
	if s.onChange != nil {
		s.onChange(snap)
	}
}

// mergeIDs concatenates the lists, dropping blanks and repeats while keeping
// first-seen order.
func mergeIDs(lists ...[]string) []string {
	var merged []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	return merged
}
