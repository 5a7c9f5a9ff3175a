package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/types"
)

// DocumentRequest attaches a generated document by path, inline text or both
type DocumentRequest struct {
	Path string `json:"path" validate:"max=1024"`
	Text string `json:"text" validate:"max=1000000"`
}

// ScreenshotRequest attaches a captured screenshot
type ScreenshotRequest struct {
	Path string `json:"path" validate:"required,max=1024"`
}

// NotesRequest replaces the free-form notes
type NotesRequest struct {
	Notes string `json:"notes" validate:"max=10000"`
}

// FailRequest records why an attempt was abandoned
type FailRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// ListApplicationsResponse represents the response for listing a job's applications
type ListApplicationsResponse struct {
	Applications []types.Application `json:"applications"`
	Count        int                 `json:"count"`
}

// handleCreateApplication opens a draft for a processed job
func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.pathID(w, r, "job")
	if !ok {
		return
	}
	app, err := s.applications.Create(r.Context(), jobID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, app)
}

// handleListJobApplications lists every attempt for a job, oldest first
func (s *Server) handleListJobApplications(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.pathID(w, r, "job")
	if !ok {
		return
	}
	apps, err := s.applications.ListByJob(r.Context(), jobID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if apps == nil {
		apps = []types.Application{}
	}
	s.jsonResponse(w, http.StatusOK, ListApplicationsResponse{Applications: apps, Count: len(apps)})
}

// handleGetApplication retrieves an application by its ID
func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "application")
	if !ok {
		return
	}
	app, err := s.applications.Get(r.Context(), id)
	s.applicationResponse(w, r, app, err)
}

func (s *Server) handleAttachResume(w http.ResponseWriter, r *http.Request) {
	s.attachDocument(w, r, s.applications.AttachResume)
}

func (s *Server) handleAttachCoverLetter(w http.ResponseWriter, r *http.Request) {
	s.attachDocument(w, r, s.applications.AttachCoverLetter)
}

type attachFunc func(ctx context.Context, id uuid.UUID, path, text string) (*types.Application, error)

func (s *Server) attachDocument(w http.ResponseWriter, r *http.Request, attach attachFunc) {
	id, ok := s.pathID(w, r, "application")
	if !ok {
		return
	}
	var req DocumentRequest
	if !s.decodeJSON(w, r, &req, false) {
		return
	}
	app, err := attach(r.Context(), id, req.Path, req.Text)
	s.applicationResponse(w, r, app, err)
}

// handleAttachScreenshot records the screenshot taken by the automation layer
func (s *Server) handleAttachScreenshot(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "application")
	if !ok {
		return
	}
	var req ScreenshotRequest
	if !s.decodeJSON(w, r, &req, false) {
		return
	}
	app, err := s.applications.AttachScreenshot(r.Context(), id, req.Path)
	s.applicationResponse(w, r, app, err)
}

// handleSetNotes replaces an application's notes in any status
func (s *Server) handleSetNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "application")
	if !ok {
		return
	}
	var req NotesRequest
	if !s.decodeJSON(w, r, &req, false) {
		return
	}
	app, err := s.applications.SetNotes(r.Context(), id, req.Notes)
	s.applicationResponse(w, r, app, err)
}

// handleSubmit submits a complete draft and marks its job applied
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "application")
	if !ok {
		return
	}
	app, err := s.applications.Submit(r.Context(), id)
	s.applicationResponse(w, r, app, err)
}

// handleFail abandons a draft with an error message
func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "application")
	if !ok {
		return
	}
	var req FailRequest
	if !s.decodeJSON(w, r, &req, false) {
		return
	}
	app, err := s.applications.Fail(r.Context(), id, req.Message)
	s.applicationResponse(w, r, app, err)
}

func (s *Server) applicationResponse(w http.ResponseWriter, r *http.Request, app *types.Application, err error) {
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, app)
}
