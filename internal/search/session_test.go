package search

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/eventlens/internal/eventapi"
	"github.com/kozaktomas/eventlens/internal/store"
)

// fakeSearcher records requests and answers them with the configured funcs.
type fakeSearcher struct {
	mu        sync.Mutex
	searches  []eventapi.SearchRequest
	smart     []eventapi.SmartSearchRequest
	feedbacks []eventapi.FeedbackRequest

	searchFn   func(ctx context.Context, input eventapi.SearchRequest) (*eventapi.SearchResponse, error)
	smartFn    func(ctx context.Context, input eventapi.SmartSearchRequest) (*eventapi.SmartSearchResponse, error)
	feedbackFn func(ctx context.Context, input eventapi.FeedbackRequest) (*eventapi.FeedbackResponse, error)
}

func (f *fakeSearcher) Search(ctx context.Context, input eventapi.SearchRequest) (*eventapi.SearchResponse, error) {
	f.mu.Lock()
	f.searches = append(f.searches, input)
	fn := f.searchFn
	f.mu.Unlock()
	if fn == nil {
		return &eventapi.SearchResponse{SelfieHash: "hash-1"}, nil
	}
	return fn(ctx, input)
}

func (f *fakeSearcher) SmartSearch(ctx context.Context, input eventapi.SmartSearchRequest) (*eventapi.SmartSearchResponse, error) {
	f.mu.Lock()
	f.smart = append(f.smart, input)
	fn := f.smartFn
	f.mu.Unlock()
	if fn == nil {
		return &eventapi.SmartSearchResponse{}, nil
	}
	return fn(ctx, input)
}

func (f *fakeSearcher) SubmitFeedback(ctx context.Context, input eventapi.FeedbackRequest) (*eventapi.FeedbackResponse, error) {
	f.mu.Lock()
	f.feedbacks = append(f.feedbacks, input)
	fn := f.feedbackFn
	f.mu.Unlock()
	if fn == nil {
		return &eventapi.FeedbackResponse{Status: "recorded", ImageID: input.ImageID}, nil
	}
	return fn(ctx, input)
}

func (f *fakeSearcher) lastSearch(t *testing.T) eventapi.SearchRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.searches) == 0 {
		t.Fatal("expected a search request")
	}
	return f.searches[len(f.searches)-1]
}

func newTestSession(t *testing.T, client Searcher, st store.Store) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), client, st, "event-1")
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

func persisted(t *testing.T, st store.Store) string {
	t.Helper()
	data, err := st.Get(context.Background(), HiddenKey("event-1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return string(data)
}

func result(id string, similarity float64) eventapi.SearchResult {
	return eventapi.SearchResult{Image: eventapi.Image{ID: id, EventID: "event-1"}, Similarity: similarity}
}

func TestNewSessionValidation(t *testing.T) {
	st := store.NewMemoryStore()
	if _, err := NewSession(context.Background(), nil, st, "e"); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := NewSession(context.Background(), &fakeSearcher{}, nil, "e"); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := NewSession(context.Background(), &fakeSearcher{}, st, ""); err == nil {
		t.Error("expected error for empty event ID")
	}
}

func TestNewSessionRejectsCorruptHiddenSet(t *testing.T) {
	st := store.NewMemoryStore()
	if err := st.Set(context.Background(), HiddenKey("event-1"), []byte("{not json")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := NewSession(context.Background(), &fakeSearcher{}, st, "event-1"); err == nil {
		t.Error("expected error for corrupt hidden set")
	}
}

func TestAddHiddenIDIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	s := newTestSession(t, &fakeSearcher{}, st)

	if err := s.AddHiddenID(context.Background(), "img-1"); err != nil {
		t.Fatalf("AddHiddenID failed: %v", err)
	}
	once := persisted(t, st)

	if err := s.AddHiddenID(context.Background(), "img-1"); err != nil {
		t.Fatalf("second AddHiddenID failed: %v", err)
	}
	twice := persisted(t, st)

	if once != twice {
		t.Errorf("persisted set changed on repeat add: %s vs %s", once, twice)
	}
	if once != `["img-1"]` {
		t.Errorf("unexpected persisted set: %s", once)
	}
	if got := s.HiddenIDs(); !slices.Equal(got, []string{"img-1"}) {
		t.Errorf("expected [img-1], got %v", got)
	}
}

func TestAddHiddenIDRequiresID(t *testing.T) {
	s := newTestSession(t, &fakeSearcher{}, store.NewMemoryStore())
	if err := s.AddHiddenID(context.Background(), ""); err == nil {
		t.Error("expected error for empty image ID")
	}
}

func TestHiddenSetSurvivesNewSession(t *testing.T) {
	st := store.NewMemoryStore()
	first := newTestSession(t, &fakeSearcher{}, st)
	for _, id := range []string{"img-1", "img-2", "img-3"} {
		if err := first.AddHiddenID(context.Background(), id); err != nil {
			t.Fatalf("AddHiddenID(%s) failed: %v", id, err)
		}
	}

	second := newTestSession(t, &fakeSearcher{}, st)
	if got := second.HiddenIDs(); !slices.Equal(got, []string{"img-1", "img-2", "img-3"}) {
		t.Errorf("expected hidden set to round-trip, got %v", got)
	}

	other, err := NewSession(context.Background(), &fakeSearcher{}, st, "event-2")
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if got := other.HiddenIDs(); len(got) != 0 {
		t.Errorf("expected other event to start empty, got %v", got)
	}
}

func TestAddHiddenIDKeepsIDsWrittenElsewhere(t *testing.T) {
	st := store.NewMemoryStore()
	s := newTestSession(t, &fakeSearcher{}, st)

	// Another process hides an image after this session loaded.
	if err := st.Set(context.Background(), HiddenKey("event-1"), []byte(`["img-x"]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := s.AddHiddenID(context.Background(), "img-y"); err != nil {
		t.Fatalf("AddHiddenID failed: %v", err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(persisted(t, st)), &ids); err != nil {
		t.Fatalf("could not decode persisted set: %v", err)
	}
	if !slices.Equal(ids, []string{"img-x", "img-y"}) {
		t.Errorf("expected [img-x img-y], got %v", ids)
	}
	if !s.IsHidden("img-x") {
		t.Error("expected externally hidden image to be picked up")
	}
}

func TestClearHiddenIDs(t *testing.T) {
	st := store.NewMemoryStore()
	s := newTestSession(t, &fakeSearcher{}, st)
	if err := s.AddHiddenID(context.Background(), "img-1"); err != nil {
		t.Fatalf("AddHiddenID failed: %v", err)
	}

	if err := s.ClearHiddenIDs(context.Background()); err != nil {
		t.Fatalf("ClearHiddenIDs failed: %v", err)
	}
	if got := persisted(t, st); got != `[]` {
		t.Errorf("expected empty persisted set, got %s", got)
	}
	if s.IsHidden("img-1") {
		t.Error("expected image to be visible after clear")
	}
}

func TestSearchSendsUnionOfExclusions(t *testing.T) {
	client := &fakeSearcher{}
	s := newTestSession(t, client, store.NewMemoryStore())
	for _, id := range []string{"a", "b"} {
		if err := s.AddHiddenID(context.Background(), id); err != nil {
			t.Fatalf("AddHiddenID failed: %v", err)
		}
	}

	if _, err := s.Search(context.Background(), []byte("selfie"), 0.8, "b", "c", "c"); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	req := client.lastSearch(t)
	if !slices.Equal(req.ExcludedImageIDs, []string{"a", "b", "c"}) {
		t.Errorf("expected [a b c], got %v", req.ExcludedImageIDs)
	}
	if req.EventID != "event-1" {
		t.Errorf("expected event-1, got %s", req.EventID)
	}
	if req.Threshold != 0.8 {
		t.Errorf("expected threshold 0.8, got %v", req.Threshold)
	}
}

func TestSearchWithoutExclusionsSendsNone(t *testing.T) {
	client := &fakeSearcher{}
	s := newTestSession(t, client, store.NewMemoryStore())

	if _, err := s.Search(context.Background(), []byte("selfie"), 0.7); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if req := client.lastSearch(t); req.ExcludedImageIDs != nil {
		t.Errorf("expected no exclusions, got %v", req.ExcludedImageIDs)
	}
}

func TestSearchExposesFeedbackValues(t *testing.T) {
	client := &fakeSearcher{
		searchFn: func(_ context.Context, _ eventapi.SearchRequest) (*eventapi.SearchResponse, error) {
			return &eventapi.SearchResponse{
				Results:         []eventapi.SearchResult{result("img-1", 0.91)},
				Count:           1,
				Threshold:       0.7,
				SelfieHash:      "abc123",
				FeedbackApplied: true,
				FeedbackStats:   eventapi.FeedbackStats{PersonalFeedbackCount: 3, TotalFeedbackCount: 7},
			}, nil
		},
	}
	s := newTestSession(t, client, store.NewMemoryStore())

	resp, err := s.Search(context.Background(), []byte("selfie"), 0.7)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !resp.FeedbackApplied || resp.FeedbackStats.PersonalFeedbackCount != 3 {
		t.Errorf("unexpected response values: %+v", resp)
	}

	snap := s.Snapshot()
	if snap.State != StateResults {
		t.Errorf("expected state results, got %s", snap.State)
	}
	if !snap.FeedbackApplied {
		t.Error("expected FeedbackApplied to be true")
	}
	if snap.FeedbackStats.PersonalFeedbackCount != 3 {
		t.Errorf("expected personal feedback count 3, got %d", snap.FeedbackStats.PersonalFeedbackCount)
	}
	if snap.SelfieHash != "abc123" {
		t.Errorf("expected selfie hash abc123, got %s", snap.SelfieHash)
	}
	if len(snap.Results) != 1 || snap.Results[0].Image.ID != "img-1" {
		t.Errorf("unexpected results: %+v", snap.Results)
	}
}

func TestSearchErrorClearsResults(t *testing.T) {
	fail := false
	client := &fakeSearcher{}
	client.searchFn = func(_ context.Context, _ eventapi.SearchRequest) (*eventapi.SearchResponse, error) {
		if fail {
			return nil, &eventapi.APIError{StatusCode: 503, Message: "face service unavailable"}
		}
		return &eventapi.SearchResponse{Results: []eventapi.SearchResult{result("img-1", 0.9)}, SelfieHash: "h"}, nil
	}
	s := newTestSession(t, client, store.NewMemoryStore())

	if _, err := s.Search(context.Background(), []byte("selfie"), 0.7); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	fail = true
	_, err := s.Search(context.Background(), []byte("selfie"), 0.7)
	if eventapi.StatusCode(err) != 503 {
		t.Fatalf("expected 503 error, got %v", err)
	}

	snap := s.Snapshot()
	if snap.State != StateErrored {
		t.Errorf("expected state errored, got %s", snap.State)
	}
	if len(snap.Results) != 0 {
		t.Errorf("expected results to be cleared, got %d", len(snap.Results))
	}
	if snap.Error == "" {
		t.Error("expected error message")
	}
}

func TestStaleSearchDoesNotOverwrite(t *testing.T) {
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})

	client := &fakeSearcher{}
	client.searchFn = func(_ context.Context, input eventapi.SearchRequest) (*eventapi.SearchResponse, error) {
		if string(input.Selfie) == "slow" {
			close(firstStarted)
			<-releaseFirst
			return &eventapi.SearchResponse{Results: []eventapi.SearchResult{result("old", 0.9)}, SelfieHash: "slow-hash"}, nil
		}
		return &eventapi.SearchResponse{Results: []eventapi.SearchResult{result("new", 0.8)}, SelfieHash: "fast-hash"}, nil
	}
	s := newTestSession(t, client, store.NewMemoryStore())

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Search(context.Background(), []byte("slow"), 0.7)
		firstErr <- err
	}()
	<-firstStarted

	if _, err := s.Search(context.Background(), []byte("fast"), 0.7); err != nil {
		t.Fatalf("second Search failed: %v", err)
	}
	close(releaseFirst)

	if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded for stale search, got %v", err)
	}

	snap := s.Snapshot()
	if snap.SelfieHash != "fast-hash" {
		t.Errorf("expected fast-hash, got %s", snap.SelfieHash)
	}
	if len(snap.Results) != 1 || snap.Results[0].Image.ID != "new" {
		t.Errorf("expected results of the newer search, got %+v", snap.Results)
	}
}

func TestStateTransitions(t *testing.T) {
	var (
		mu     sync.Mutex
		states []State
	)
	onChange := func(snap Snapshot) {
		mu.Lock()
		states = append(states, snap.State)
		mu.Unlock()
	}

	s, err := NewSession(context.Background(), &fakeSearcher{}, store.NewMemoryStore(), "event-1", WithOnChange(onChange))
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if got := s.Snapshot().State; got != StateIdle {
		t.Fatalf("expected idle, got %s", got)
	}

	if _, err := s.Search(context.Background(), []byte("selfie"), 0.7); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(states, []State{StateSearching, StateResults}) {
		t.Errorf("expected [searching results], got %v", states)
	}
}

func TestHideSwallowsFeedbackFailure(t *testing.T) {
	client := &fakeSearcher{
		searchFn: func(_ context.Context, _ eventapi.SearchRequest) (*eventapi.SearchResponse, error) {
			return &eventapi.SearchResponse{Results: []eventapi.SearchResult{result("img-1", 0.9)}, SelfieHash: "abc"}, nil
		},
		feedbackFn: func(_ context.Context, _ eventapi.FeedbackRequest) (*eventapi.FeedbackResponse, error) {
			return nil, errors.New("network unreachable")
		},
	}
	st := store.NewMemoryStore()
	s := newTestSession(t, client, st)

	if _, err := s.Search(context.Background(), []byte("selfie"), 0.7); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if err := s.Hide(context.Background(), "img-1"); err != nil {
		t.Fatalf("Hide returned feedback error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.WaitFeedback(ctx); err != nil {
		t.Fatalf("WaitFeedback failed: %v", err)
	}

	if !s.IsHidden("img-1") {
		t.Error("expected image to stay hidden after feedback failure")
	}
	if got := persisted(t, st); got != `["img-1"]` {
		t.Errorf("expected persisted hide, got %s", got)
	}
	if len(s.VisibleResults()) != 0 {
		t.Error("expected hidden image to be filtered from visible results")
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.feedbacks) != 1 {
		t.Fatalf("expected 1 feedback call, got %d", len(client.feedbacks))
	}
	fb := client.feedbacks[0]
	if fb.ImageID != "img-1" || fb.SelfieHash != "abc" || fb.EventID != "event-1" {
		t.Errorf("unexpected feedback request: %+v", fb)
	}
}

func TestHideUpdatesFeedbackStats(t *testing.T) {
	client := &fakeSearcher{
		feedbackFn: func(_ context.Context, input eventapi.FeedbackRequest) (*eventapi.FeedbackResponse, error) {
			return &eventapi.FeedbackResponse{
				Status:        "recorded",
				ImageID:       input.ImageID,
				FeedbackStats: &eventapi.FeedbackStats{PersonalFeedbackCount: 1, TotalFeedbackCount: 4},
			}, nil
		},
	}
	s := newTestSession(t, client, store.NewMemoryStore())
	if _, err := s.Search(context.Background(), []byte("selfie"), 0.7); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if err := s.Hide(context.Background(), "img-9"); err != nil {
		t.Fatalf("Hide failed: %v", err)
	}
	if err := s.WaitFeedback(context.Background()); err != nil {
		t.Fatalf("WaitFeedback failed: %v", err)
	}

	if got := s.Snapshot().FeedbackStats.TotalFeedbackCount; got != 4 {
		t.Errorf("expected total feedback count 4, got %d", got)
	}
}

func TestHideWithoutSelfieHashSkipsFeedback(t *testing.T) {
	client := &fakeSearcher{}
	s := newTestSession(t, client, store.NewMemoryStore())

	if err := s.Hide(context.Background(), "img-1"); err != nil {
		t.Fatalf("Hide failed: %v", err)
	}
	if err := s.WaitFeedback(context.Background()); err != nil {
		t.Fatalf("WaitFeedback failed: %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.feedbacks) != 0 {
		t.Errorf("expected no feedback without a selfie hash, got %d", len(client.feedbacks))
	}
}

func TestSmartSearchMergesExclusions(t *testing.T) {
	relevance := 0.42
	client := &fakeSearcher{
		smartFn: func(_ context.Context, input eventapi.SmartSearchRequest) (*eventapi.SmartSearchResponse, error) {
			return &eventapi.SmartSearchResponse{
				Results: []eventapi.SearchResult{{Image: eventapi.Image{ID: "img-5"}, RelevanceScore: &relevance}},
				Count:   1,
				Query:   input.Query,
			}, nil
		},
	}
	s := newTestSession(t, client, store.NewMemoryStore())
	if err := s.AddHiddenID(context.Background(), "img-1"); err != nil {
		t.Fatalf("AddHiddenID failed: %v", err)
	}

	if _, err := s.SmartSearch(context.Background(), "cutting the cake", nil, 0, "img-2"); err != nil {
		t.Fatalf("SmartSearch failed: %v", err)
	}

	client.mu.Lock()
	req := client.smart[0]
	client.mu.Unlock()
	if !slices.Equal(req.ExcludedImageIDs, []string{"img-1", "img-2"}) {
		t.Errorf("expected [img-1 img-2], got %v", req.ExcludedImageIDs)
	}

	snap := s.Snapshot()
	if snap.Query != "cutting the cake" || len(snap.Results) != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestMergeIDs(t *testing.T) {
	tests := []struct {
		name  string
		lists [][]string
		want  []string
	}{
		{"empty", nil, nil},
		{"single", [][]string{{"a", "b"}}, []string{"a", "b"}},
		{"dedupe across lists", [][]string{{"a", "b"}, {"b", "c"}}, []string{"a", "b", "c"}},
		{"dedupe within list", [][]string{{"a", "a"}}, []string{"a"}},
		{"blanks dropped", [][]string{{"", "a"}, {""}}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeIDs(tt.lists...)
			if !slices.Equal(got, tt.want) {
				t.Errorf("mergeIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSmartSearchSendsMaxResults(t *testing.T) {
	client := &fakeSearcher{}
	s, err := NewSession(context.Background(), client, store.NewMemoryStore(), "event-1", WithMaxResults(5))
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if _, err := s.SmartSearch(context.Background(), "first dance", nil, 0); err != nil {
		t.Fatalf("SmartSearch failed: %v", err)
	}
	if got := client.smart[0].MaxResults; got != 5 {
		t.Errorf("expected max results 5, got %d", got)
	}
}
