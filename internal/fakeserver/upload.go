package fakeserver

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/eventlens/internal/constants"
	"github.com/kozaktomas/eventlens/internal/eventapi"
)

// fakeJob advances one state every readsPerStep status reads.
type fakeJob struct {
	eventapi.Job
	imageIDs []string
	reads    int
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	eventID := r.FormValue("event_id")
	if eventID == "" {
		respondError(w, http.StatusBadRequest, "event_id is required")
		return
	}
	if !strings.EqualFold(r.FormValue("consent"), "true") {
		respondError(w, http.StatusBadRequest, "Consent is required to upload photos")
		return
	}
	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "No images provided")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok || !event.IsActive {
		respondError(w, http.StatusNotFound, "Invalid or inactive event")
		return
	}
	for _, fh := range files {
		if remaining := s.failUploads[fh.Filename]; remaining > 0 {
			s.failUploads[fh.Filename] = remaining - 1
			respondError(w, http.StatusInternalServerError, "storage unavailable")
			return
		}
	}

	job := &fakeJob{Job: eventapi.Job{
		ID:          uuid.NewString(),
		EventID:     eventID,
		Status:      eventapi.JobStatusPending,
		TotalImages: len(files),
		CreatedAt:   now(),
	}}
	result := eventapi.UploadResult{JobID: job.ID}

	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil || !isImage(data) {
			result.ImagesRejected++
			job.FailedImages++
			continue
		}

		hash := contentHash(data)
		img := &storedImage{
			Image: eventapi.Image{
				ID:               uuid.NewString(),
				EventID:          eventID,
				OriginalFilename: fh.Filename,
				FileSize:         int64(len(data)),
				UploadedAt:       now(),
			},
			contentHash: hash,
			data:        data,
		}
		img.URL = fmt.Sprintf("/api/events/%s/file/%s", eventID, img.ID)
		img.ThumbnailURL = img.URL

		if s.hasContentLocked(eventID, hash) {
			img.IsDuplicate = true
			img.IsProcessed = true
			result.DuplicatesSkipped++
			s.images[eventID] = append(s.images[eventID], img)
			continue
		}

		s.images[eventID] = append(s.images[eventID], img)
		job.imageIDs = append(job.imageIDs, img.ID)
		result.ImagesAccepted++
	}

	s.jobs[job.ID] = job
	s.logger.Debug("upload complete",
		"event_id", eventID,
		"job_id", job.ID,
		"accepted", result.ImagesAccepted,
		"duplicates", result.DuplicatesSkipped,
		"rejected", result.ImagesRejected,
	)
	respondJSON(w, http.StatusAccepted, result)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func isImage(data []byte) bool {
	return strings.HasPrefix(http.DetectContentType(data), "image/")
}

func (s *Server) hasContentLocked(eventID, hash string) bool {
	for _, img := range s.images[eventID] {
		if !img.IsDuplicate && img.contentHash == hash {
			return true
		}
	}
	return false
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[chi.URLParam(r, "jobID")]
	if !ok {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	// the caller sees the current state; the next read may see the following one
	current := job.Job
	if !job.Status.IsTerminal() {
		job.reads++
		if job.reads >= s.jobReadsPerStep {
			job.reads = 0
			s.advanceJobLocked(job)
		}
	}
	respondJSON(w, http.StatusOK, current)
}

// advanceJobLocked moves a job one state forward: pending, processing, completed.
func (s *Server) advanceJobLocked(job *fakeJob) {
	switch job.Status {
	case eventapi.JobStatusPending:
		job.Status = eventapi.JobStatusProcessing
	case eventapi.JobStatusProcessing:
		for _, img := range s.images[job.EventID] {
			for _, id := range job.imageIDs {
				if img.ID == id {
					img.IsProcessed = true
					img.FaceCount = 1
				}
			}
		}
		job.ProcessedImages = len(job.imageIDs)
		job.TotalFacesFound = len(job.imageIDs)
		job.CompletedAt = now()
		job.Status = eventapi.JobStatusCompleted
		if len(job.imageIDs) == 0 && job.FailedImages > 0 {
			job.Status = eventapi.JobStatusFailed
			job.ErrorMessage = "no valid images in upload"
		}
	}
}
