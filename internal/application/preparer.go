package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/types"
	"go.uber.org/zap"
)

// Documents are the generated texts for one application
type Documents struct {
	Resume      string
	CoverLetter string
}

// DocumentGenerator writes a tailored resume and cover letter for a job
type DocumentGenerator interface {
	Generate(ctx context.Context, job *types.Job, profile string) (*Documents, error)
}

// ArtifactStore persists generated artifacts and returns their location
type ArtifactStore interface {
	Save(ctx context.Context, kind types.ArtifactKind, applicationID uuid.UUID, content []byte) (string, error)
	Path(kind types.ArtifactKind, applicationID uuid.UUID) string
}

// Automation interacts with the job page on behalf of the user
type Automation interface {
	// Screenshot captures the job page at url into path
	Screenshot(ctx context.Context, url, path string) error
}

// AutomationFailure is returned by an Automation when the job page itself
// rules the application out, for example a URL that can never be opened.
// Any other automation error is treated as transient.
type AutomationFailure struct {
	Reason string
}

func (e *AutomationFailure) Error() string {
	return "automation failed: " + e.Reason
}

// JobReader loads the job an application is prepared for
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
}

// PreparerOptions configures a Preparer
type PreparerOptions struct {
	// Profile is the candidate's base resume the documents are tailored from
	Profile string
	// AutoSubmit submits the draft once documents and screenshot are attached
	// instead of leaving it for review
	AutoSubmit bool
}

// Preparer runs the preparation workflow for a selected job: open or reuse a
// draft, generate and attach documents, capture the job page, then leave the
// draft for review.
type Preparer struct {
	service    *Service
	jobs       JobReader
	generator  DocumentGenerator
	artifacts  ArtifactStore
	automation Automation
	opts       PreparerOptions
	logger     *zap.Logger
}

// NewPreparer creates a Preparer. automation may be nil to skip screenshots.
func NewPreparer(service *Service, jobs JobReader, generator DocumentGenerator, artifacts ArtifactStore, automation Automation, opts PreparerOptions, logger *zap.Logger) *Preparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preparer{
		service:    service,
		jobs:       jobs,
		generator:  generator,
		artifacts:  artifacts,
		automation: automation,
		opts:       opts,
		logger:     logger,
	}
}

// Prepare runs the workflow for jobID and returns the resulting application.
//
// A generator, artifact or transient automation failure leaves the draft
// untouched so Prepare can be retried. Only an *AutomationFailure fails the draft.
func (p *Preparer) Prepare(ctx context.Context, jobID uuid.UUID) (*types.Application, error) {
	app, err := p.draftFor(ctx, jobID)
	if err != nil {
		return nil, err
	}
	logger := p.logger.With(zap.Stringer("application_id", app.ID), zap.Stringer("job_id", jobID))

	if !app.HasResume() || !app.HasCoverLetter() {
		job, err := p.jobs.GetJob(ctx, jobID)
		if err != nil {
			return app, err
		}
		if job == nil {
			return app, &types.ErrNotFound{Entity: "job", ID: jobID}
		}

		docs, err := p.generator.Generate(ctx, job, p.opts.Profile)
		if err != nil {
			logger.Warn("document generation failed", zap.Error(err))
			return app, fmt.Errorf("failed to generate documents: %w", err)
		}
		if app, err = p.attachDocuments(ctx, app.ID, docs); err != nil {
			return app, err
		}
		logger.Info("attached generated documents")
	}

	if p.automation != nil && app.ScreenshotPath == nil {
		path := p.artifacts.Path(types.ArtifactScreenshot, app.ID)
		if err := p.automation.Screenshot(ctx, app.JobURL, path); err != nil {
			var failure *AutomationFailure
			if !errors.As(err, &failure) {
				logger.Warn("automation failed, draft kept for retry", zap.Error(err))
				return app, fmt.Errorf("failed to capture job page: %w", err)
			}
			logger.Warn("automation rejected job page", zap.Error(err))
			failed, failErr := p.service.Fail(ctx, app.ID, failure.Error())
			if failErr != nil {
				return app, errors.Join(err, failErr)
			}
			return failed, err
		}
		if app, err = p.service.AttachScreenshot(ctx, app.ID, path); err != nil {
			return app, err
		}
	}

	if p.opts.AutoSubmit {
		return p.service.Submit(ctx, app.ID)
	}
	return app, nil
}

// draftFor creates a draft for the job or returns the one already open
func (p *Preparer) draftFor(ctx context.Context, jobID uuid.UUID) (*types.Application, error) {
	app, err := p.service.Create(ctx, jobID)
	var conflict *types.ErrConflict
	if !errors.As(err, &conflict) || conflict.ApplicationID == uuid.Nil {
		return app, err
	}

	existing, getErr := p.service.Get(ctx, conflict.ApplicationID)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Status != types.ApplicationStatusDraft {
		return nil, err
	}
	return existing, nil
}

func (p *Preparer) attachDocuments(ctx context.Context, id uuid.UUID, docs *Documents) (*types.Application, error) {
	resumePath, err := p.artifacts.Save(ctx, types.ArtifactResume, id, []byte(docs.Resume))
	if err != nil {
		return nil, err
	}
	if _, err := p.service.AttachResume(ctx, id, resumePath, docs.Resume); err != nil {
		return nil, err
	}

	letterPath, err := p.artifacts.Save(ctx, types.ArtifactCoverLetter, id, []byte(docs.CoverLetter))
	if err != nil {
		return nil, err
	}
	return p.service.AttachCoverLetter(ctx, id, letterPath, docs.CoverLetter)
}
