package server

import (
	"net/http"
	"strconv"

	"github.com/jonathan/applier/internal/matching"
	"github.com/jonathan/applier/internal/vectorindex"
)

// RunMatchingRequest bounds a matching pass. Limit 0 processes every pending job.
type RunMatchingRequest struct {
	Limit int `json:"limit" validate:"gte=0,lte=100000"`
}

// RunMatchingResponse summarizes a matching pass
type RunMatchingResponse struct {
	Counts  map[matching.Outcome]int `json:"counts"`
	Results []matching.JobResult     `json:"results"`
	Index   vectorindex.Stats        `json:"index"`
}

// TopMatchesResponse lists ranked matches
type TopMatchesResponse struct {
	Matches  []matching.Match `json:"matches"`
	K        int              `json:"k"`
	MinScore float64          `json:"min_score"`
}

// handleRunMatching embeds and scores pending jobs against the current resume
func (s *Server) handleRunMatching(w http.ResponseWriter, r *http.Request) {
	var req RunMatchingRequest
	if !s.decodeJSON(w, r, &req, true) {
		return
	}
	if s.resume == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "no resume configured")
		return
	}

	resume, err := s.resume(r.Context())
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	results, err := s.engine.ProcessPending(r.Context(), resume, req.Limit)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	counts := map[matching.Outcome]int{}
	for _, res := range results {
		counts[res.Outcome]++
	}
	if results == nil {
		results = []matching.JobResult{}
	}
	s.jsonResponse(w, http.StatusOK, RunMatchingResponse{
		Counts:  counts,
		Results: results,
		Index:   s.engine.Index().Stats(),
	})
}

// handleTopMatches returns the k best matches ordered by score descending
func (s *Server) handleTopMatches(w http.ResponseWriter, r *http.Request) {
	k := 10
	if raw := r.URL.Query().Get("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 || v > 100 {
			s.errorResponse(w, http.StatusBadRequest, "k must be an integer between 0 and 100")
			return
		}
		k = v
	}
	var minScore float64
	if raw := r.URL.Query().Get("min_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 100 {
			s.errorResponse(w, http.StatusBadRequest, "min_score must be a number between 0 and 100")
			return
		}
		minScore = v
	}
	if s.resume == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "no resume configured")
		return
	}

	resume, err := s.resume(r.Context())
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	matches, err := s.engine.TopK(r.Context(), resume, k, matching.TopKOptions{MinScore: minScore})
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, TopMatchesResponse{Matches: matches, K: k, MinScore: minScore})
}
