// Package poller repeatedly fetches a remote resource on a fixed interval
// until it reaches a terminal state.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/eventlens/internal/eventapi"
)

var (
	// ErrStopped is returned by Wait when polling was stopped before a terminal value.
	ErrStopped = errors.New("polling stopped before reaching a terminal state")
	// ErrNotStarted is returned by Wait when nothing was ever polled.
	ErrNotStarted = errors.New("polling not started")
)

// FetchFunc loads the current value of the resource identified by id.
type FetchFunc[T any] func(ctx context.Context, id string) (T, error)

// Update is delivered after every fetch.
type Update[T any] struct {
	ID       string
	Value    T
	Err      error
	Fetches  int
	Terminal bool
	At       time.Time
}

// Option configures a Poller.
type Option[T any] func(*Poller[T])

// WithLogger sets the logger used for fetch failures.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(p *Poller[T]) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithOnUpdate registers a callback invoked after every accepted fetch.
func WithOnUpdate[T any](fn func(Update[T])) Option[T] {
	return func(p *Poller[T]) {
		p.onUpdate = fn
	}
}

// Poller polls one identifier at a time. Once an identifier has reached a
// terminal value it is never polled again by the same Poller.
type Poller[T any] struct {
	fetch    FetchFunc[T]
	terminal func(T) bool
	interval time.Duration
	logger   *slog.Logger
	onUpdate func(Update[T])

	mu       sync.Mutex
	id       string
	token    uint64
	cancel   context.CancelFunc
	done     chan struct{}
	latest   Update[T]
	finished map[string]Update[T]
}

// New creates a poller. A nil terminal predicate polls until Stop.
func New[T any](fetch func(ctx context.Context, id string) (T, error), terminal func(T) bool, interval time.Duration, opts ...Option[T]) (*Poller[T], error) {
	if fetch == nil {
		return nil, errors.New("fetch function is required")
	}
	if interval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}

	p := &Poller[T]{
		fetch:    fetch,
		terminal: terminal,
		interval: interval,
		logger:   slog.Default(),
		finished: make(map[string]Update[T]),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewJobPoller polls processing jobs until they complete or fail.
func NewJobPoller(client interface {
	GetJob(ctx context.Context, jobID string) (*eventapi.Job, error)
}, interval time.Duration, opts ...Option[*eventapi.Job]) (*Poller[*eventapi.Job], error) {
	return New(client.GetJob, func(job *eventapi.Job) bool {
		return job != nil && job.Status.IsTerminal()
	}, interval, opts...)
}

// NewAlbumPoller polls an event's album until generation completes or fails.
func NewAlbumPoller(client interface {
	GetAlbum(ctx context.Context, eventID, albumID string) (*eventapi.Album, error)
}, eventID string, interval time.Duration, opts ...Option[*eventapi.Album]) (*Poller[*eventapi.Album], error) {
	fetch := func(ctx context.Context, albumID string) (*eventapi.Album, error) {
		return client.GetAlbum(ctx, eventID, albumID)
	}
	return New(fetch, func(album *eventapi.Album) bool {
		return album != nil && album.Status.IsTerminal()
	}, interval, opts...)
}

// NewStatsPoller polls event stats until stopped.
func NewStatsPoller(client interface {
	GetEventStats(ctx context.Context, eventID string) (*eventapi.EventStats, error)
}, interval time.Duration, opts ...Option[*eventapi.EventStats]) (*Poller[*eventapi.EventStats], error) {
	return New(client.GetEventStats, nil, interval, opts...)
}

// Start begins polling id, fetching immediately. Starting the identifier
// already being polled is a no-op, and an empty id stops polling.
func (p *Poller[T]) Start(ctx context.Context, id string) {
	if id == "" {
		p.Stop()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if id == p.id && p.cancel != nil {
		return
	}
	if final, ok := p.finished[id]; ok {
		p.stopLocked()
		p.id = id
		p.latest = final
		return
	}

	p.stopLocked()
	loopCtx, cancel := context.WithCancel(ctx)
	p.id = id
	p.cancel = cancel
	p.done = make(chan struct{})
	p.latest = Update[T]{ID: id}

	go p.loop(loopCtx, id, p.token, p.done)
}

// Stop ends polling. It is safe to call more than once.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller[T]) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	// invalidates any fetch still in flight
	p.token++
}

// Running reports whether a polling loop is active
func (p *Poller[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Latest returns the most recent update
func (p *Poller[T]) Latest() Update[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Wait blocks until the current loop ends and returns its last update.
func (p *Poller[T]) Wait(ctx context.Context) (Update[T], error) {
	p.mu.Lock()
	done := p.done
	id := p.id
	p.mu.Unlock()

	if id == "" {
		return Update[T]{}, ErrNotStarted
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return p.Latest(), ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if final, ok := p.finished[id]; ok {
		return final, nil
	}
	return p.latest, ErrStopped
}

func (p *Poller[T]) loop(ctx context.Context, id string, token uint64, done chan struct{}) {
	defer close(done)
	defer p.release(token)

	timer := time.NewTimer(0)
	defer timer.Stop()

	fetches := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		value, err := p.fetch(ctx, id)
		fetches++
		if !p.record(token, id, value, err, fetches) {
			return
		}
		timer.Reset(p.interval)
	}
}

// release clears the loop's handle when it ends on its own, for example
// because the parent context was cancelled.
func (p *Poller[T]) release(token uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if token == p.token && p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// record publishes a fetch result. It returns false when the loop must end,
// either because the value is terminal or because the poller was stopped
// while the fetch was in flight.
func (p *Poller[T]) record(token uint64, id string, value T, err error, fetches int) bool {
	p.mu.Lock()
	if token != p.token {
		p.mu.Unlock()
		return false
	}

	update := Update[T]{ID: id, Value: value, Err: err, Fetches: fetches, At: time.Now()}
	if err != nil {
		p.logger.Debug("poll fetch failed", "id", id, "fetches", fetches, "error", err)
	} else if p.terminal != nil && p.terminal(value) {
		update.Terminal = true
		p.finished[id] = update
		p.stopLocked()
	}
	p.latest = update
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(update)
	}
	return !update.Terminal
}
