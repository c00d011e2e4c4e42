package fakeserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/eventlens/internal/constants"
	"github.com/kozaktomas/eventlens/internal/eventapi"
)

// AddEvent creates an event directly, bypassing the API. An empty access
// code gets a generated one. Codes are stored and matched exactly.
func (s *Server) AddEvent(name, accessCode string) eventapi.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.addEventLocked(name, accessCode, "")
}

func (s *Server) addEventLocked(name, accessCode, expiresAt string) *eventapi.Event {
	if accessCode == "" {
		accessCode = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	}
	event := &eventapi.Event{
		ID:         uuid.NewString(),
		Name:       name,
		AccessCode: accessCode,
		IsActive:   true,
		CreatedAt:  now(),
		ExpiresAt:  expiresAt,
	}
	s.events[event.ID] = event
	s.eventOrder = append(s.eventOrder, event.ID)
	return event
}

// activeEventLocked returns the event or writes the error response.
func (s *Server) activeEventLocked(w http.ResponseWriter, eventID string) *eventapi.Event {
	event, ok := s.events[eventID]
	if !ok {
		respondError(w, http.StatusNotFound, "Event not found")
		return nil
	}
	if !event.IsActive {
		respondError(w, http.StatusForbidden, "Event is no longer active")
		return nil
	}
	if event.ExpiresAt != "" {
		if expires, err := time.Parse(time.RFC3339, event.ExpiresAt); err == nil && expires.Before(time.Now()) {
			respondError(w, http.StatusForbidden, "Event has expired")
			return nil
		}
	}
	return event
}

func (s *Server) eventView(event *eventapi.Event) eventapi.Event {
	view := *event
	view.ImageCount = len(s.images[event.ID])
	return view
}

func (s *Server) listEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]eventapi.Event, 0, len(s.eventOrder))
	for i := len(s.eventOrder) - 1; i >= 0; i-- {
		events = append(events, s.eventView(s.events[s.eventOrder[i]]))
	}
	respondJSON(w, http.StatusOK, events)
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	var req eventapi.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respondError(w, http.StatusBadRequest, "Event name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.AccessCode != "" {
		for _, e := range s.events {
			if e.AccessCode == req.AccessCode {
				respondError(w, http.StatusConflict, "Access code already in use")
				return
			}
		}
	}
	event := s.addEventLocked(req.Name, req.AccessCode, req.ExpiresAt)
	respondJSON(w, http.StatusCreated, s.eventView(event))
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[chi.URLParam(r, "eventID")]
	if !ok {
		respondError(w, http.StatusNotFound, "Event not found")
		return
	}
	respondJSON(w, http.StatusOK, s.eventView(event))
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		respondError(w, http.StatusNotFound, "Event not found")
		return
	}
	delete(s.events, eventID)
	delete(s.images, eventID)
	delete(s.albums, eventID)
	delete(s.feedback, eventID)
	for i, id := range s.eventOrder {
		if id == eventID {
			s.eventOrder = append(s.eventOrder[:i], s.eventOrder[i+1:]...)
			break
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Event deleted"})
}

func decodeAccessCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		AccessCode string `json:"access_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessCode == "" {
		respondError(w, http.StatusBadRequest, "Access code is required")
		return "", false
	}
	return req.AccessCode, true
}

func (s *Server) lookupEvent(w http.ResponseWriter, r *http.Request) {
	code, ok := decodeAccessCode(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.eventOrder {
		if s.events[id].AccessCode != code {
			continue
		}
		event := s.activeEventLocked(w, id)
		if event == nil {
			return
		}
		respondJSON(w, http.StatusOK, eventapi.EventLookup{EventID: event.ID, EventName: event.Name})
		return
	}
	respondError(w, http.StatusNotFound, "Event not found")
}

func (s *Server) verifyEvent(w http.ResponseWriter, r *http.Request) {
	code, ok := decodeAccessCode(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event := s.activeEventLocked(w, chi.URLParam(r, "eventID"))
	if event == nil {
		return
	}
	if event.AccessCode != code {
		respondError(w, http.StatusForbidden, "Invalid access code")
		return
	}
	respondJSON(w, http.StatusOK, eventapi.EventVerification{Verified: true, Event: s.eventView(event)})
}

func (s *Server) eventStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[chi.URLParam(r, "eventID")]
	if !ok {
		respondError(w, http.StatusNotFound, "Event not found")
		return
	}

	stats := eventapi.EventStats{EventID: event.ID, EventName: event.Name}
	for _, img := range s.images[event.ID] {
		stats.ImageCount++
		stats.FaceCount += img.FaceCount
		stats.StorageUsedBytes += img.FileSize
		if img.IsProcessed {
			stats.ProcessedCount++
		}
	}
	respondJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func (s *Server) listImages(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := min(queryInt(r, "per_page", 50), constants.MaxPageSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	eventID := chi.URLParam(r, "eventID")
	if _, ok := s.events[eventID]; !ok {
		respondError(w, http.StatusNotFound, "Event not found")
		return
	}

	// newest first
	all := s.images[eventID]
	total := len(all)
	result := eventapi.ImagePage{Images: []eventapi.Image{}, Total: total, Page: page}
	result.Pages = (total + perPage - 1) / perPage

	start := (page - 1) * perPage
	for i := start; i < start+perPage && i < total; i++ {
		result.Images = append(result.Images, all[total-1-i].Image)
	}
	result.HasNext = page < result.Pages
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) serveImage(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	imageID := chi.URLParam(r, "imageID")

	s.mu.Lock()
	var data []byte
	for _, img := range s.images[eventID] {
		if img.ID == imageID {
			data = img.data
			break
		}
	}
	s.mu.Unlock()

	if data == nil {
		respondError(w, http.StatusNotFound, "Image not found")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
