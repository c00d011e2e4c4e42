package fakeserver

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/kozaktomas/eventlens/internal/constants"
	"github.com/kozaktomas/eventlens/internal/eventapi"
)

const (
	personalPenalty = -0.15
	globalPenalty   = -0.05
	// globalRejections is how many distinct selfies must reject an image
	// before it is penalized for everyone
	globalRejections = 2
)

// similarity derives a stable score in [0.3, 1.0] from a selfie and an image.
func similarity(selfieHash, imageHash string) float64 {
	sum := sha256.Sum256([]byte(selfieHash + ":" + imageHash))
	v := binary.BigEndian.Uint16(sum[:2])
	return constants.MinThreshold + (1-constants.MinThreshold)*float64(v)/65535
}

func parseThreshold(raw string) float64 {
	threshold := constants.DefaultThreshold
	if raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			threshold = f
		}
	}
	return max(constants.MinThreshold, min(constants.MaxThreshold, threshold))
}

func parseExclusions(raw string) map[string]struct{} {
	excluded := make(map[string]struct{})
	for id := range strings.SplitSeq(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			excluded[id] = struct{}{}
		}
	}
	return excluded
}

// readSelfie returns the uploaded selfie bytes, or nil when none was sent.
func readSelfie(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("selfie")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// feedbackStatsLocked counts personal and event-wide "not me" feedback.
func (s *Server) feedbackStatsLocked(eventID, selfieHash string) eventapi.FeedbackStats {
	var stats eventapi.FeedbackStats
	for hash, ids := range s.feedback[eventID] {
		stats.TotalFeedbackCount += len(ids)
		if hash == selfieHash {
			stats.PersonalFeedbackCount = len(ids)
		}
	}
	return stats
}

// penaltiesLocked returns the score penalty per image for one searcher.
func (s *Server) penaltiesLocked(eventID, selfieHash string) map[string]float64 {
	penalties := make(map[string]float64)
	rejections := make(map[string]int)
	for hash, ids := range s.feedback[eventID] {
		for _, id := range ids {
			rejections[id]++
			if hash == selfieHash {
				penalties[id] = personalPenalty
			}
		}
	}
	for id, n := range rejections {
		if n >= globalRejections && penalties[id] == 0 {
			penalties[id] = globalPenalty
		}
	}
	return penalties
}

// rankLocked scores every searchable image of the event against a selfie.
func (s *Server) rankLocked(eventID, selfieHash string, threshold float64, excluded map[string]struct{}) []eventapi.SearchResult {
	penalties := s.penaltiesLocked(eventID, selfieHash)

	results := []eventapi.SearchResult{}
	for _, img := range s.images[eventID] {
		if img.IsDuplicate || !img.IsProcessed {
			continue
		}
		if _, skip := excluded[img.ID]; skip {
			continue
		}
		raw := similarity(selfieHash, img.contentHash)
		score := raw + penalties[img.ID]
		if score < threshold {
			continue
		}
		results = append(results, eventapi.SearchResult{
			Image:      img.Image,
			Similarity: score,
			MatchDetails: &eventapi.MatchDetails{
				VectorSimilarity: raw,
				FeedbackPenalty:  penalties[img.ID],
			},
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	return results
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxSelfieUploadSize)
	if err := r.ParseMultipartForm(constants.MaxSelfieUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	eventID := r.FormValue("event_id")
	if eventID == "" {
		respondError(w, http.StatusBadRequest, "event_id is required")
		return
	}
	selfie, err := readSelfie(r)
	if err != nil || len(selfie) == 0 {
		respondError(w, http.StatusBadRequest, "Selfie image is required")
		return
	}
	if !isImage(selfie) {
		respondError(w, http.StatusBadRequest, "Invalid image file")
		return
	}
	threshold := parseThreshold(r.FormValue("threshold"))
	excluded := parseExclusions(r.FormValue("excluded_image_ids"))

	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok || !event.IsActive {
		respondError(w, http.StatusNotFound, "Invalid or inactive event")
		return
	}

	selfieHash := contentHash(selfie)
	results := s.rankLocked(eventID, selfieHash, threshold, excluded)
	stats := s.feedbackStatsLocked(eventID, selfieHash)

	respondJSON(w, http.StatusOK, eventapi.SearchResponse{
		Results:         results,
		Count:           len(results),
		Threshold:       threshold,
		SelfieHash:      selfieHash,
		FeedbackApplied: len(s.penaltiesLocked(eventID, selfieHash)) > 0,
		FeedbackStats:   stats,
	})
}

func (s *Server) searchFeedback(w http.ResponseWriter, r *http.Request) {
	var req eventapi.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "JSON body required")
		return
	}
	if req.ImageID == "" || req.EventID == "" || req.SelfieHash == "" {
		respondError(w, http.StatusBadRequest, "image_id, event_id, and selfie_hash required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.feedback[req.EventID]; !ok {
		s.feedback[req.EventID] = make(map[string][]string)
	}
	ids := s.feedback[req.EventID][req.SelfieHash]
	if !slices.Contains(ids, req.ImageID) {
		s.feedback[req.EventID][req.SelfieHash] = append(ids, req.ImageID)
	}

	stats := s.feedbackStatsLocked(req.EventID, req.SelfieHash)
	respondJSON(w, http.StatusOK, eventapi.FeedbackResponse{
		Status:        "recorded",
		ImageID:       req.ImageID,
		FeedbackStats: &stats,
	})
}

// smartSearch matches query words against file names and, when a selfie is
// sent, blends in face similarity.
func (s *Server) smartSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxSelfieUploadSize)
	if err := r.ParseMultipartForm(constants.MaxSelfieUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	eventID := r.FormValue("event_id")
	query := strings.TrimSpace(r.FormValue("query"))
	selfie, err := readSelfie(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid selfie upload")
		return
	}
	if eventID == "" {
		respondError(w, http.StatusBadRequest, "event_id is required")
		return
	}
	if query == "" && len(selfie) == 0 {
		respondError(w, http.StatusBadRequest, "A query or a selfie is required")
		return
	}
	maxResults := constants.DefaultSmartSearchResults
	if n, err := strconv.Atoi(r.FormValue("max_results")); err == nil && n > 0 {
		maxResults = n
	}
	excluded := parseExclusions(r.FormValue("excluded_image_ids"))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		respondError(w, http.StatusNotFound, "Invalid or inactive event")
		return
	}

	var selfieHash string
	if len(selfie) > 0 {
		selfieHash = contentHash(selfie)
	}
	words := strings.Fields(strings.ToLower(query))

	results := []eventapi.SearchResult{}
	for _, img := range s.images[eventID] {
		if img.IsDuplicate || !img.IsProcessed {
			continue
		}
		if _, skip := excluded[img.ID]; skip {
			continue
		}

		var textScore float64
		name := strings.ToLower(img.OriginalFilename)
		for _, word := range words {
			if strings.Contains(name, word) {
				textScore += 1 / float64(len(words))
			}
		}

		result := eventapi.SearchResult{Image: img.Image, MatchDetails: &eventapi.MatchDetails{BM25Score: textScore}}
		relevance := textScore
		if selfieHash != "" {
			result.Similarity = similarity(selfieHash, img.contentHash)
			result.MatchDetails.VectorSimilarity = result.Similarity
			if len(words) > 0 {
				relevance = (textScore + result.Similarity) / 2
			} else {
				relevance = result.Similarity
			}
		}
		if relevance <= 0 {
			continue
		}
		result.RelevanceScore = &relevance
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return *results[i].RelevanceScore > *results[j].RelevanceScore
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	respondJSON(w, http.StatusOK, eventapi.SmartSearchResponse{
		Results:    results,
		Count:      len(results),
		Query:      query,
		SelfieHash: selfieHash,
	})
}
