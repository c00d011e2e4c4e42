// Package upload drives a batch of file uploads one file at a time, tracking
// byte progress and tolerating individual failures.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kozaktomas/eventlens/internal/eventapi"
)

var (
	// ErrNoFiles is returned when a batch is started without files.
	ErrNoFiles = errors.New("no files to upload")
	// ErrConsentRequired is returned when a batch is started without consent.
	ErrConsentRequired = errors.New("consent is required to upload images")
	// ErrBatchRunning is returned when Run is called on a batch that is still running.
	ErrBatchRunning = errors.New("upload batch already running")
)

// Uploader transfers a single file.
type Uploader interface {
	UploadFile(ctx context.Context, eventID string, consent bool, file eventapi.UploadFile, onProgress eventapi.ProgressFunc) (*eventapi.UploadResult, error)
}

// Progress describes the batch at one point in time. CurrentIndex is zero-based.
type Progress struct {
	CurrentIndex    int
	TotalFiles      int
	CurrentLoaded   int64
	CurrentTotal    int64
	CurrentFileName string
	FilesCompleted  int
	FilesFailed     int
}

// FileError records why one file of a batch failed.
type FileError struct {
	Index int
	Name  string
	Err   error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// Result aggregates the successfully uploaded files of a batch.
type Result struct {
	JobIDs            []string
	ImagesAccepted    int
	ImagesRejected    int
	DuplicatesSkipped int
	FilesCompleted    int
	FilesFailed       int
	FilesSkipped      int
	Cancelled         bool
	Failures          []FileError
}

// BatchError is returned when no file of a batch succeeded.
type BatchError struct {
	Total     int
	Failed    int
	Cancelled bool
	Failures  []FileError
}

func (e *BatchError) Error() string {
	if e.Cancelled && e.Failed == 0 {
		return "upload cancelled before any file was uploaded"
	}
	if e.Failed == e.Total {
		return fmt.Sprintf("all %d uploads failed", e.Total)
	}
	return fmt.Sprintf("no uploads succeeded: %d of %d failed", e.Failed, e.Total)
}

// Unwrap lets errors.Is match eventapi.ErrUploadCancelled for cancelled batches.
func (e *BatchError) Unwrap() error {
	if e.Cancelled {
		return eventapi.ErrUploadCancelled
	}
	return nil
}

// Option configures a Batch.
type Option func(*Batch)

// WithLogger sets the logger used for per-file outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Batch) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithProgress registers a callback for every progress change. Calls are
// serialized and arrive in order.
func WithProgress(fn func(Progress)) Option {
	return func(b *Batch) {
		b.onProgress = fn
	}
}

// Batch uploads files to one event. A Batch may be run again after a run
// finishes; each run starts from empty progress.
type Batch struct {
	client     Uploader
	eventID    string
	logger     *slog.Logger
	onProgress func(Progress)

	// emitMu keeps progress callbacks ordered across goroutines
	emitMu sync.Mutex

	mu           sync.Mutex
	running      bool
	cancelled    bool
	cancelActive context.CancelFunc
	activeToken  uint64
	tokens       uint64
	progress     Progress
}

// NewBatch creates an upload batch for eventID
func NewBatch(client Uploader, eventID string, opts ...Option) (*Batch, error) {
	if client == nil {
		return nil, errors.New("upload client is required")
	}
	if eventID == "" {
		return nil, errors.New("event ID is required")
	}

	b := &Batch{
		client:  client,
		eventID: eventID,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Run uploads files strictly in order. A failed file is recorded and the
// batch moves on; cancellation stops it before the next file. The aggregate
// is returned when at least one file succeeded, otherwise a *BatchError.
func (b *Batch) Run(ctx context.Context, files []eventapi.UploadFile, consent bool) (*Result, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if !consent {
		return nil, ErrConsentRequired
	}

	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil, ErrBatchRunning
	}
	b.running = true
	b.cancelled = false
	b.progress = Progress{TotalFiles: len(files)}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.cancelActive = nil
		b.mu.Unlock()
	}()

	result := &Result{}
	for i, file := range files {
		fileCtx, token, ok := b.start(ctx, i, file)
		if !ok {
			result.Cancelled = true
			result.FilesSkipped = len(files) - i
			break
		}

		res, err := b.client.UploadFile(fileCtx.ctx, b.eventID, consent, file, b.progressFunc(token))
		fileCtx.cancel()

		if err == nil && res == nil {
			err = errors.New("empty upload response")
		}

		if err != nil && errors.Is(err, eventapi.ErrUploadCancelled) {
			b.settle(func() {})
			b.logger.Info("upload cancelled", "event_id", b.eventID, "file", file.Name, "index", i)
			result.Cancelled = true
			result.FilesSkipped = len(files) - i
			break
		}

		if err != nil {
			b.logger.Warn("upload failed", "event_id", b.eventID, "file", file.Name, "index", i, "error", err)
			result.FilesFailed++
			result.Failures = append(result.Failures, FileError{Index: i, Name: file.Name, Err: err})
			b.settle(func() { b.progress.FilesFailed++ })
			continue
		}

		b.logger.Debug("upload accepted",
			"event_id", b.eventID,
			"file", file.Name,
			"job_id", res.JobID,
			"accepted", res.ImagesAccepted,
			"duplicates", res.DuplicatesSkipped,
		)
		result.FilesCompleted++
		result.JobIDs = append(result.JobIDs, res.JobID)
		result.ImagesAccepted += res.ImagesAccepted
		result.ImagesRejected += res.ImagesRejected
		result.DuplicatesSkipped += res.DuplicatesSkipped
		b.settle(func() {
			b.progress.FilesCompleted++
			b.progress.CurrentLoaded = b.progress.CurrentTotal
		})
	}

	if result.FilesCompleted == 0 {
		return nil, &BatchError{
			Total:     len(files),
			Failed:    result.FilesFailed,
			Cancelled: result.Cancelled,
			Failures:  result.Failures,
		}
	}
	return result, nil
}

// Cancel stops the running batch: queued files are skipped and the active
// transfer is aborted. Files already accepted by the server stay uploaded.
func (b *Batch) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	b.cancelled = true
	if b.cancelActive != nil {
		b.cancelActive()
	}
}

// Progress returns the latest progress snapshot
func (b *Batch) Progress() Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progress
}

type cancellableCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// start registers file i as the active transfer and emits its zero snapshot.
// It reports false when the batch or its parent context was cancelled before
// the file started. An expired deadline is not a cancel: the file is attempted
// and fails on its own.
func (b *Batch) start(ctx context.Context, i int, file eventapi.UploadFile) (cancellableCtx, uint64, bool) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	if b.cancelled || errors.Is(ctx.Err(), context.Canceled) {
		b.mu.Unlock()
		return cancellableCtx{}, 0, false
	}

	fileCtx, cancel := context.WithCancel(ctx)
	b.cancelActive = cancel
	b.tokens++
	b.activeToken = b.tokens
	b.progress.CurrentIndex = i
	b.progress.CurrentFileName = file.Name
	b.progress.CurrentLoaded = 0
	b.progress.CurrentTotal = file.Size
	token := b.activeToken
	snap := b.progress
	b.mu.Unlock()

	b.emit(snap)
	return cancellableCtx{ctx: fileCtx, cancel: cancel}, token, true
}

// progressFunc returns the byte callback for one transfer. Callbacks that
// arrive after the transfer settled are dropped.
func (b *Batch) progressFunc(token uint64) eventapi.ProgressFunc {
	return func(loaded, total int64) {
		b.emitMu.Lock()
		defer b.emitMu.Unlock()

		b.mu.Lock()
		if b.activeToken != token {
			b.mu.Unlock()
			return
		}
		b.progress.CurrentLoaded = loaded
		if total > 0 {
			b.progress.CurrentTotal = total
		}
		snap := b.progress
		b.mu.Unlock()

		b.emit(snap)
	}
}

// settle closes the active transfer and applies update to the progress.
func (b *Batch) settle(update func()) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	b.activeToken = 0
	b.cancelActive = nil
	update()
	snap := b.progress
	b.mu.Unlock()

	b.emit(snap)
}

func (b *Batch) emit(p Progress) {
	if b.onProgress != nil {
		b.onProgress(p)
	}
}
