package fakeserver

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/eventlens/internal/eventapi"
	"github.com/kozaktomas/eventlens/internal/poller"
	"github.com/kozaktomas/eventlens/internal/search"
	"github.com/kozaktomas/eventlens/internal/store"
	"github.com/kozaktomas/eventlens/internal/upload"
)

func setupServer(t *testing.T, opts ...Option) (*Server, *eventapi.Client) {
	t.Helper()
	srv := New(opts...)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	client, err := eventapi.NewClient(ts.URL, "")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return srv, client
}

// pngBytes renders a small solid image so each shade has distinct content.
func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := range 8 {
		for y := range 8 {
			img.Set(x, y, color.RGBA{R: shade, G: 255 - shade, B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func uploadAndProcess(t *testing.T, client *eventapi.Client, eventID string, files []eventapi.UploadFile) *upload.Result {
	t.Helper()
	batch, err := upload.NewBatch(client, eventID)
	if err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}
	result, err := batch.Run(context.Background(), files, true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, jobID := range result.JobIDs {
		p, err := poller.NewJobPoller(client, time.Millisecond)
		if err != nil {
			t.Fatalf("NewJobPoller failed: %v", err)
		}
		p.Start(context.Background(), jobID)
		final, err := p.Wait(waitCtx(t))
		if err != nil {
			t.Fatalf("Wait for job %s failed: %v", jobID, err)
		}
		if !final.Value.Status.IsTerminal() {
			t.Fatalf("expected job %s to finish, got %s", jobID, final.Value.Status)
		}
	}
	return result
}

func TestLookupAndVerify(t *testing.T) {
	srv, client := setupServer(t)
	event := srv.AddEvent("Anna & Tom", "WED2026")

	found, err := client.LookupEvent(context.Background(), " wed2026 ")
	if err != nil {
		t.Fatalf("LookupEvent failed: %v", err)
	}
	if found.EventID != event.ID || found.EventName != "Anna & Tom" {
		t.Errorf("unexpected lookup result: %+v", found)
	}

	verified, err := client.VerifyEvent(context.Background(), event.ID, " WED2026 ")
	if err != nil {
		t.Fatalf("VerifyEvent failed: %v", err)
	}
	if !verified.Verified || verified.Event.ID != event.ID {
		t.Errorf("unexpected verification: %+v", verified)
	}

	// codes are compared exactly
	_, err = client.VerifyEvent(context.Background(), event.ID, "wed2026")
	if eventapi.StatusCode(err) != 403 {
		t.Errorf("expected 403 for a differently cased code, got %v", err)
	}

	_, err = client.LookupEvent(context.Background(), "NOPE")
	if !eventapi.IsNotFoundError(err) {
		t.Fatalf("expected 404, got %v", err)
	}
	if apiErr, ok := err.(*eventapi.APIError); !ok || apiErr.RequestID == "" || apiErr.Message != "Event not found" {
		t.Errorf("expected API error with request ID and message, got %+v", err)
	}
}

func TestUploadBatchWithPartialFailure(t *testing.T) {
	srv, client := setupServer(t)
	event := srv.AddEvent("Party", "")
	srv.FailUpload("b.png", 1)

	files := []eventapi.UploadFile{
		eventapi.FileFromBytes("a.png", pngBytes(t, 10)),
		eventapi.FileFromBytes("b.png", pngBytes(t, 20)),
		eventapi.FileFromBytes("c.png", pngBytes(t, 30)),
		eventapi.FileFromBytes("notes.txt", []byte("not an image at all")),
		eventapi.FileFromBytes("a-copy.png", pngBytes(t, 10)),
	}
	result := uploadAndProcess(t, client, event.ID, files)

	if result.FilesCompleted != 4 || result.FilesFailed != 1 {
		t.Errorf("expected 4 completed and 1 failed, got %d and %d", result.FilesCompleted, result.FilesFailed)
	}
	if result.ImagesAccepted != 2 {
		t.Errorf("expected 2 accepted images, got %d", result.ImagesAccepted)
	}
	if result.ImagesRejected != 1 {
		t.Errorf("expected 1 rejected file, got %d", result.ImagesRejected)
	}
	if result.DuplicatesSkipped != 1 {
		t.Errorf("expected 1 duplicate, got %d", result.DuplicatesSkipped)
	}
	if len(result.JobIDs) != 4 {
		t.Errorf("expected 4 job IDs, got %d", len(result.JobIDs))
	}
	if len(result.Failures) != 1 || eventapi.StatusCode(result.Failures[0]) != 500 {
		t.Errorf("expected one 500 failure, got %+v", result.Failures)
	}

	stats, err := client.GetEventStats(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("GetEventStats failed: %v", err)
	}
	if stats.ImageCount != 3 || stats.ProcessedCount != 3 || stats.FaceCount != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	images, err := client.ListAllImages(context.Background(), event.ID, 1)
	if err != nil {
		t.Fatalf("ListAllImages failed: %v", err)
	}
	if len(images) != 3 {
		t.Errorf("expected 3 images across pages, got %d", len(images))
	}
}

func TestUploadRequiresConsent(t *testing.T) {
	srv, client := setupServer(t)
	event := srv.AddEvent("Party", "")

	_, err := client.UploadFile(context.Background(), event.ID, false, eventapi.FileFromBytes("a.png", pngBytes(t, 1)), nil)
	if eventapi.StatusCode(err) != 400 {
		t.Errorf("expected 400 without consent, got %v", err)
	}
}

func TestJobStatusSequence(t *testing.T) {
	srv, client := setupServer(t)
	event := srv.AddEvent("Party", "")

	res, err := client.UploadFile(context.Background(), event.ID, true, eventapi.FileFromBytes("a.png", pngBytes(t, 5)), nil)
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}

	want := []eventapi.JobStatus{eventapi.JobStatusPending, eventapi.JobStatusProcessing, eventapi.JobStatusCompleted, eventapi.JobStatusCompleted}
	for i, status := range want {
		job, err := client.GetJob(context.Background(), res.JobID)
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if job.Status != status {
			t.Errorf("read %d: expected %s, got %s", i+1, status, job.Status)
		}
	}
}

func TestSearchSessionAgainstServer(t *testing.T) {
	srv, client := setupServer(t)
	event := srv.AddEvent("Party", "")
	uploadAndProcess(t, client, event.ID, []eventapi.UploadFile{
		eventapi.FileFromBytes("one.png", pngBytes(t, 1)),
		eventapi.FileFromBytes("two.png", pngBytes(t, 2)),
		eventapi.FileFromBytes("three.png", pngBytes(t, 3)),
	})

	st := store.NewMemoryStore()
	session, err := search.NewSession(context.Background(), client, st, event.ID)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	selfie := pngBytes(t, 200)
	first, err := session.Search(context.Background(), selfie, 0.3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if first.Count != 3 || first.SelfieHash == "" || first.FeedbackApplied {
		t.Fatalf("unexpected first search: count=%d hash=%q applied=%v", first.Count, first.SelfieHash, first.FeedbackApplied)
	}

	hidden := first.Results[0].Image.ID
	if err := session.Hide(context.Background(), hidden); err != nil {
		t.Fatalf("Hide failed: %v", err)
	}
	if err := session.WaitFeedback(waitCtx(t)); err != nil {
		t.Fatalf("WaitFeedback failed: %v", err)
	}

	second, err := session.Search(context.Background(), selfie, 0.3)
	if err != nil {
		t.Fatalf("second Search failed: %v", err)
	}
	for _, r := range second.Results {
		if r.Image.ID == hidden {
			t.Errorf("hidden image %s returned again", hidden)
		}
	}
	if !second.FeedbackApplied || second.FeedbackStats.PersonalFeedbackCount != 1 {
		t.Errorf("expected feedback to be applied, got applied=%v stats=%+v", second.FeedbackApplied, second.FeedbackStats)
	}
	if second.SelfieHash != first.SelfieHash {
		t.Error("expected the same selfie to hash identically")
	}

	// A new session for the same event starts with the hidden image.
	reopened, err := search.NewSession(context.Background(), client, st, event.ID)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if !reopened.IsHidden(hidden) {
		t.Error("expected hidden set to survive a new session")
	}
}

func TestSmartSearch(t *testing.T) {
	srv, client := setupServer(t)
	event := srv.AddEvent("Party", "")
	uploadAndProcess(t, client, event.ID, []eventapi.UploadFile{
		eventapi.FileFromBytes("cake-cutting.png", pngBytes(t, 1)),
		eventapi.FileFromBytes("first-dance.png", pngBytes(t, 2)),
	})

	resp, err := client.SmartSearch(context.Background(), eventapi.SmartSearchRequest{EventID: event.ID, Query: "cake"})
	if err != nil {
		t.Fatalf("SmartSearch failed: %v", err)
	}
	if resp.Count != 1 || resp.Results[0].Image.OriginalFilename != "cake-cutting.png" {
		t.Fatalf("unexpected smart search results: %+v", resp.Results)
	}
	if resp.Results[0].RelevanceScore == nil || *resp.Results[0].RelevanceScore <= 0 {
		t.Error("expected a relevance score")
	}
}

func TestAlbumGeneration(t *testing.T) {
	srv, client := setupServer(t, WithAlbumReadsToComplete(2))
	event := srv.AddEvent("Party", "")
	uploadAndProcess(t, client, event.ID, []eventapi.UploadFile{
		eventapi.FileFromBytes("a.png", pngBytes(t, 1)),
		eventapi.FileFromBytes("b.png", pngBytes(t, 2)),
		eventapi.FileFromBytes("c.png", pngBytes(t, 3)),
		eventapi.FileFromBytes("d.png", pngBytes(t, 4)),
		eventapi.FileFromBytes("e.png", pngBytes(t, 5)),
	})

	gen, err := client.GenerateAlbum(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("GenerateAlbum failed: %v", err)
	}
	if gen.Status != eventapi.AlbumStatusGenerating || gen.AlbumID == "" {
		t.Fatalf("unexpected generation response: %+v", gen)
	}

	if _, err := client.GenerateAlbum(context.Background(), event.ID); !eventapi.IsConflictError(err) {
		t.Errorf("expected 409 while generating, got %v", err)
	}

	p, err := poller.NewAlbumPoller(client, event.ID, time.Millisecond)
	if err != nil {
		t.Fatalf("NewAlbumPoller failed: %v", err)
	}
	p.Start(context.Background(), gen.AlbumID)
	final, err := p.Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	album := final.Value
	if album.Status != eventapi.AlbumStatusCompleted {
		t.Fatalf("expected completed album, got %s", album.Status)
	}
	if album.MomentCount != 2 || len(album.Moments) != 2 || len(album.Moments[0].Photos) != 4 {
		t.Errorf("unexpected moments: count=%d moments=%d", album.MomentCount, len(album.Moments))
	}

	albums, err := client.ListAlbums(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("ListAlbums failed: %v", err)
	}
	if len(albums) != 1 || len(albums[0].Moments) != 0 {
		t.Errorf("expected one album summary without moments, got %+v", albums)
	}

	if err := client.DeleteAlbum(context.Background(), event.ID, gen.AlbumID); err != nil {
		t.Fatalf("DeleteAlbum failed: %v", err)
	}
	if _, err := client.GetAlbum(context.Background(), event.ID, gen.AlbumID); !eventapi.IsNotFoundError(err) {
		t.Errorf("expected 404 after delete, got %v", err)
	}
}

func TestAdminToken(t *testing.T) {
	srv := New(WithAdminToken("secret"))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	anonymous, err := eventapi.NewClient(ts.URL, "")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := anonymous.CreateEvent(context.Background(), eventapi.CreateEventRequest{Name: "x"}); eventapi.StatusCode(err) != 401 {
		t.Errorf("expected 401 without token, got %v", err)
	}

	admin, err := eventapi.NewClient(ts.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	created, err := admin.CreateEvent(context.Background(), eventapi.CreateEventRequest{Name: "Gala", AccessCode: "gala-1"})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if created.AccessCode != "gala-1" {
		t.Errorf("expected access code stored as given, got %s", created.AccessCode)
	}

	events, err := admin.ListEvents(context.Background())
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Name != "Gala" {
		t.Errorf("unexpected events: %+v", events)
	}

	// guest routes stay open
	if _, err := anonymous.LookupEvent(context.Background(), "gala-1"); err != nil {
		t.Errorf("expected guest lookup without token, got %v", err)
	}

	if err := admin.DeleteEvent(context.Background(), created.ID); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if _, err := admin.GetEvent(context.Background(), created.ID); !eventapi.IsNotFoundError(err) {
		t.Errorf("expected 404 after delete, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	_, client := setupServer(t)

	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy, got %s", health.Status)
	}
}

func TestThresholdIsClamped(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"", 0.70},
		{"0.1", 0.3},
		{"1.5", 0.99},
		{"0.85", 0.85},
		{"abc", 0.70},
	}
	for _, tt := range tests {
		if got := parseThreshold(tt.raw); got != tt.want {
			t.Errorf("parseThreshold(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
