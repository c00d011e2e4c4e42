package fakeserver

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/eventlens/internal/eventapi"
)

// momentSize is how many photos the fake generator puts into one moment.
const momentSize = 4

func (s *Server) generateAlbum(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		respondError(w, http.StatusNotFound, "Event not found")
		return
	}
	for _, a := range s.albums[eventID] {
		if a.Status == eventapi.AlbumStatusGenerating {
			respondJSON(w, http.StatusConflict, map[string]string{
				"error":    "Album generation already in progress",
				"message":  "Album generation already in progress",
				"album_id": a.ID,
				"status":   string(a.Status),
			})
			return
		}
	}

	album := &storedAlbum{Album: eventapi.Album{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Status:    eventapi.AlbumStatusGenerating,
		CreatedAt: now(),
	}}
	s.albums[eventID] = append(s.albums[eventID], album)

	respondJSON(w, http.StatusAccepted, eventapi.AlbumGeneration{
		AlbumID: album.ID,
		Status:  eventapi.AlbumStatusGenerating,
		Message: "Album generation started",
	})
}

// readAlbumLocked counts a read and finishes generation once enough reads happened.
func (s *Server) readAlbumLocked(album *storedAlbum) {
	if album.Status != eventapi.AlbumStatusGenerating {
		return
	}
	album.reads++
	if album.reads < s.albumReads {
		return
	}

	var photos []eventapi.Image
	for _, img := range s.images[album.EventID] {
		if img.IsProcessed && !img.IsDuplicate {
			photos = append(photos, img.Image)
		}
	}
	if len(photos) == 0 {
		album.Status = eventapi.AlbumStatusFailed
		album.ErrorMessage = "No processed photos to build an album from"
		album.CompletedAt = now()
		return
	}

	album.Moments = nil
	for i := 0; i < len(photos); i += momentSize {
		chunk := photos[i:min(i+momentSize, len(photos))]
		album.Moments = append(album.Moments, eventapi.Moment{
			ID:         uuid.NewString(),
			Caption:    fmt.Sprintf("Moment %d", len(album.Moments)+1),
			PhotoCount: len(chunk),
			AvgFaces:   1,
			SortOrder:  len(album.Moments),
			Photos:     chunk,
		})
	}
	album.MomentCount = len(album.Moments)
	album.Title = "Event highlights"
	album.Summary = fmt.Sprintf("%d photos in %d moments", len(photos), album.MomentCount)
	album.Status = eventapi.AlbumStatusCompleted
	album.CompletedAt = now()
}

func (s *Server) findAlbumLocked(eventID, albumID string) (*storedAlbum, int) {
	for i, a := range s.albums[eventID] {
		if a.ID == albumID {
			return a, i
		}
	}
	return nil, -1
}

func (s *Server) listAlbums(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		respondError(w, http.StatusNotFound, "Event not found")
		return
	}

	stored := s.albums[eventID]
	albums := make([]eventapi.Album, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		s.readAlbumLocked(stored[i])
		summary := stored[i].Album
		summary.Moments = nil
		albums = append(albums, summary)
	}
	respondJSON(w, http.StatusOK, eventapi.AlbumList{Albums: albums, Count: len(albums)})
}

func (s *Server) getAlbum(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	album, _ := s.findAlbumLocked(chi.URLParam(r, "eventID"), chi.URLParam(r, "albumID"))
	if album == nil {
		respondError(w, http.StatusNotFound, "Album not found")
		return
	}
	s.readAlbumLocked(album)
	respondJSON(w, http.StatusOK, album.Album)
}

func (s *Server) deleteAlbum(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	s.mu.Lock()
	defer s.mu.Unlock()

	album, i := s.findAlbumLocked(eventID, chi.URLParam(r, "albumID"))
	if album == nil {
		respondError(w, http.StatusNotFound, "Album not found")
		return
	}
	s.albums[eventID] = append(s.albums[eventID][:i], s.albums[eventID][i+1:]...)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Album deleted"})
}
