// Package application implements the application lifecycle: a draft is created
// for a matched job, collects its generated documents and ends either
// submitted or failed.
package application

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/store"
	"github.com/jonathan/applier/internal/types"
	"go.uber.org/zap"
)

// Options configures a Service
type Options struct {
	// MaxPerJob caps the applications (of any status) a job may accumulate.
	// Create returns *types.ErrConflict once it is reached. 0 = unlimited.
	MaxPerJob int
	// Now stamps submitted_at. Defaults to time.Now.
	Now func() time.Time
}

// Service drives applications through draft -> submitted | failed
type Service struct {
	store  store.Store
	opts   Options
	logger *zap.Logger
}

// NewService creates a Service over s
func NewService(s store.Store, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: s, opts: opts, logger: logger}
}

// Create opens a draft application for a processed job, copying the job's
// company, title and URL into it.
func (s *Service) Create(ctx context.Context, jobID uuid.UUID) (*types.Application, error) {
	var app *types.Application
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		job, err := tx.LockJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return &types.ErrNotFound{Entity: "job", ID: jobID}
		}

		active, err := tx.ActiveApplication(ctx, jobID)
		if err != nil {
			return err
		}
		if active != nil {
			return &types.ErrConflict{JobID: jobID, ApplicationID: active.ID}
		}
		if job.Status != types.JobStatusProcessed {
			return &types.ErrInvalidState{Entity: "job", ID: jobID, State: string(job.Status), Operation: "create application"}
		}
		if s.opts.MaxPerJob > 0 {
			n, err := tx.CountApplications(ctx, jobID)
			if err != nil {
				return err
			}
			if n >= s.opts.MaxPerJob {
				return &types.ErrConflict{JobID: jobID, Message: "application limit reached"}
			}
		}

		app = &types.Application{
			JobID:       job.ID,
			CompanyName: job.CompanyName,
			JobTitle:    job.JobTitle,
			JobURL:      job.JobURL,
			Status:      types.ApplicationStatusDraft,
		}
		return tx.InsertApplication(ctx, app)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created application", zap.Stringer("application_id", app.ID), zap.Stringer("job_id", jobID))
	return app, nil
}

// AttachResume sets the resume artifact of a draft. An empty path or text
// keeps the stored value, so artifact fields are never cleared.
func (s *Service) AttachResume(ctx context.Context, id uuid.UUID, path, text string) (*types.Application, error) {
	if path == "" && text == "" {
		return nil, &types.ErrValidation{Field: "resume", Message: "path or text is required"}
	}
	return s.updateDraft(ctx, id, "attach resume", func(app *types.Application) {
		replaceIfSet(&app.ResumePath, path)
		replaceIfSet(&app.ResumeText, text)
	})
}

// AttachCoverLetter sets the cover letter artifact of a draft. An empty path
// or text keeps the stored value.
func (s *Service) AttachCoverLetter(ctx context.Context, id uuid.UUID, path, text string) (*types.Application, error) {
	if path == "" && text == "" {
		return nil, &types.ErrValidation{Field: "cover_letter", Message: "path or text is required"}
	}
	return s.updateDraft(ctx, id, "attach cover letter", func(app *types.Application) {
		replaceIfSet(&app.CoverLetterPath, path)
		replaceIfSet(&app.CoverLetterText, text)
	})
}

// AttachScreenshot sets the screenshot path of a draft
func (s *Service) AttachScreenshot(ctx context.Context, id uuid.UUID, path string) (*types.Application, error) {
	if path == "" {
		return nil, &types.ErrValidation{Field: "screenshot_path", Message: "must not be empty"}
	}
	return s.updateDraft(ctx, id, "attach screenshot", func(app *types.Application) {
		app.ScreenshotPath = &path
	})
}

// SetNotes replaces the free-form notes of an application in any status
func (s *Service) SetNotes(ctx context.Context, id uuid.UUID, notes string) (*types.Application, error) {
	return s.update(ctx, id, func(app *types.Application) error {
		app.Notes = types.StringPtr(notes)
		return nil
	})
}

// Submit moves a draft with both documents to submitted and its job to
// applied in one transaction.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (*types.Application, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var app *types.Application
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		// job first, the same order Create locks in
		job, err := tx.LockJob(ctx, current.JobID)
		if err != nil {
			return err
		}
		app, err = tx.LockApplication(ctx, id)
		if err != nil {
			return err
		}
		if app == nil {
			return &types.ErrNotFound{Entity: "application", ID: id}
		}
		if app.Status != types.ApplicationStatusDraft {
			return &types.ErrInvalidState{Entity: "application", ID: id, State: string(app.Status), Operation: "submit"}
		}
		if missing := missingArtifacts(app); len(missing) > 0 {
			return &types.ErrPrecondition{ApplicationID: id, Missing: missing}
		}
		if job == nil {
			return &types.ErrNotFound{Entity: "job", ID: current.JobID}
		}
		if job.Status != types.JobStatusProcessed {
			return &types.ErrInvalidState{Entity: "job", ID: job.ID, State: string(job.Status), Operation: "mark applied"}
		}

		now := s.opts.Now().UTC()
		app.Status = types.ApplicationStatusSubmitted
		app.SubmittedAt = &now
		if err := tx.SaveApplication(ctx, app); err != nil {
			return err
		}
		return tx.SetJobStatus(ctx, job.ID, types.JobStatusApplied)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("submitted application", zap.Stringer("application_id", id), zap.Stringer("job_id", app.JobID))
	return app, nil
}

// Fail moves a draft to failed with a reason. The job is left as it is, so a
// new application may be created for it.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, message string) (*types.Application, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, &types.ErrValidation{Field: "error_message", Message: "must not be empty"}
	}
	app, err := s.updateDraft(ctx, id, "fail", func(app *types.Application) {
		app.Status = types.ApplicationStatusFailed
		app.ErrorMessage = &message
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("application failed", zap.Stringer("application_id", id), zap.String("reason", message))
	return app, nil
}

// Get returns an application or *types.ErrNotFound
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*types.Application, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, &types.ErrNotFound{Entity: "application", ID: id}
	}
	return app, nil
}

// ListByJob returns every application of a job, oldest first
func (s *Service) ListByJob(ctx context.Context, jobID uuid.UUID) ([]types.Application, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, &types.ErrNotFound{Entity: "job", ID: jobID}
	}
	return s.store.ListApplications(ctx, types.ApplicationFilter{JobID: jobID})
}

// List returns applications matching filter
func (s *Service) List(ctx context.Context, filter types.ApplicationFilter) ([]types.Application, error) {
	return s.store.ListApplications(ctx, filter)
}

// Active returns the draft or submitted application of a job, or nil
func (s *Service) Active(ctx context.Context, jobID uuid.UUID) (*types.Application, error) {
	apps, err := s.store.ListApplications(ctx, types.ApplicationFilter{
		JobID:    jobID,
		Statuses: []types.ApplicationStatus{types.ApplicationStatusDraft, types.ApplicationStatusSubmitted},
		Limit:    1,
	})
	if err != nil || len(apps) == 0 {
		return nil, err
	}
	return &apps[0], nil
}

func (s *Service) updateDraft(ctx context.Context, id uuid.UUID, operation string, mutate func(app *types.Application)) (*types.Application, error) {
	return s.update(ctx, id, func(app *types.Application) error {
		if app.Status != types.ApplicationStatusDraft {
			return &types.ErrInvalidState{Entity: "application", ID: id, State: string(app.Status), Operation: operation}
		}
		mutate(app)
		return nil
	})
}

func (s *Service) update(ctx context.Context, id uuid.UUID, mutate func(app *types.Application) error) (*types.Application, error) {
	var app *types.Application
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		app, err = tx.LockApplication(ctx, id)
		if err != nil {
			return err
		}
		if app == nil {
			return &types.ErrNotFound{Entity: "application", ID: id}
		}
		if err := mutate(app); err != nil {
			return err
		}
		return tx.SaveApplication(ctx, app)
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

func replaceIfSet(field **string, value string) {
	if value != "" {
		*field = &value
	}
}

func missingArtifacts(app *types.Application) []string {
	var missing []string
	if !app.HasResume() {
		missing = append(missing, string(types.ArtifactResume))
	}
	if !app.HasCoverLetter() {
		missing = append(missing, string(types.ArtifactCoverLetter))
	}
	return missing
}
