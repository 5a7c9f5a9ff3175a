package server

import (
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/dedup"
	"github.com/jonathan/applier/internal/types"
)

// IngestRequest is a JSON batch of scraped records
type IngestRequest struct {
	Records []types.RawJobRecord `json:"records" validate:"required,min=1,max=1000"`
}

// IngestItem reports one record of a batch. Line is 1-based: the position in
// the records array, or the feed line for JSON Lines bodies.
type IngestItem struct {
	Line    int           `json:"line"`
	JobID   *uuid.UUID    `json:"job_id,omitempty"`
	Outcome dedup.Outcome `json:"outcome"`
	Error   string        `json:"error,omitempty"`
}

// IngestResponse summarizes a batch
type IngestResponse struct {
	Results []IngestItem          `json:"results"`
	Counts  map[dedup.Outcome]int `json:"counts"`
}

// ListJobsResponse represents the response for listing jobs
type ListJobsResponse struct {
	Jobs   []types.Job `json:"jobs"`
	Count  int         `json:"count"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// handleIngest runs a batch of scraped records through the dedup gate. The
// body is either an IngestRequest or, with Content-Type
// application/x-ndjson, a scrape feed with one record per line.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var (
		records []types.RawJobRecord
		lines   []int
		items   []IngestItem
	)

	if isNDJSON(r) {
		if s.feed == nil {
			s.errorResponse(w, http.StatusUnsupportedMediaType, "JSON Lines feeds are not enabled")
			return
		}
		rows, err := s.feed.Read(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(rows) == 0 {
			s.errorResponse(w, http.StatusBadRequest, "feed contains no records")
			return
		}
		for _, row := range rows {
			if row.Err != nil {
				items = append(items, IngestItem{Line: row.Line, Outcome: dedup.OutcomeRejected, Error: row.Err.Error()})
				continue
			}
			records = append(records, row.Record)
			lines = append(lines, row.Line)
		}
	} else {
		var req IngestRequest
		if !s.decodeJSON(w, r, &req, false) {
			return
		}
		records = req.Records
		for i := range records {
			lines = append(lines, i+1)
		}
	}

	results, err := s.gate.IngestBatch(r.Context(), records)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	for i, res := range results {
		item := IngestItem{Line: lines[i], Outcome: res.Outcome}
		if res.JobID != uuid.Nil {
			id := res.JobID
			item.JobID = &id
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		items = append(items, item)
	}

	counts := map[dedup.Outcome]int{}
	for _, item := range items {
		counts[item.Outcome]++
	}
	s.jsonResponse(w, http.StatusOK, IngestResponse{Results: items, Counts: counts})
}

func isNDJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/x-ndjson" || mediaType == "application/jsonl"
}

// handleListJobs lists jobs with optional status and source filters
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseQueryInt(r, "limit", 50, 200)
	offset := parseQueryInt(r, "offset", 0, 0)

	filter := types.JobFilter{
		Source: r.URL.Query().Get("source"),
		Limit:  limit,
		Offset: offset,
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := types.JobStatus(strings.TrimSpace(part))
			if !status.Valid() {
				s.errorResponse(w, http.StatusBadRequest, "Invalid status: "+string(status))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	jobs, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []types.Job{}
	}
	s.jsonResponse(w, http.StatusOK, ListJobsResponse{Jobs: jobs, Count: len(jobs), Limit: limit, Offset: offset})
}

// handleGetJob retrieves a job by its ID
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "job")
	if !ok {
		return
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if job == nil {
		s.serviceError(w, r, &types.ErrNotFound{Entity: "job", ID: id})
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

// handleDeleteJob deletes a job together with its applications
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "job")
	if !ok {
		return
	}
	if err := s.engine.DeleteJob(r.Context(), id); err != nil {
		s.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRejectJob marks a processed job as not worth applying to
func (s *Server) handleRejectJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "job")
	if !ok {
		return
	}
	if err := s.engine.Reject(r.Context(), id); err != nil {
		s.serviceError(w, r, err)
		return
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}
