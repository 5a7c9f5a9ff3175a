package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/store"
	"github.com/jonathan/applier/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	calls int
	err   error
}

func (g *fakeGenerator) Generate(_ context.Context, job *types.Job, profile string) (*Documents, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &Documents{
		Resume:      fmt.Sprintf("%s for %s", profile, job.CompanyName),
		CoverLetter: "Dear " + job.CompanyName,
	}, nil
}

type memArtifacts struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (a *memArtifacts) Path(kind types.ArtifactKind, id uuid.UUID) string {
	return fmt.Sprintf("%s/%s", kind, id)
}

func (a *memArtifacts) Save(_ context.Context, kind types.ArtifactKind, id uuid.UUID, content []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.files == nil {
		a.files = map[string][]byte{}
	}
	path := a.Path(kind, id)
	a.files[path] = content
	return path, nil
}

type fakeAutomation struct {
	err  error
	urls []string
}

func (f *fakeAutomation) Screenshot(_ context.Context, url, _ string) error {
	f.urls = append(f.urls, url)
	return f.err
}

func newPreparer(s store.Store, gen DocumentGenerator, auto Automation, autoSubmit bool) (*Preparer, *memArtifacts) {
	artifacts := &memArtifacts{}
	svc := newService(s, 0)
	return NewPreparer(svc, s, gen, artifacts, auto, PreparerOptions{Profile: "Base resume", AutoSubmit: autoSubmit}, nil), artifacts
}

func TestPrepare_LeavesDraftForReview(t *testing.T) {
	s := store.NewMemory()
	jobID := seedJob(t, s, types.JobStatusProcessed)
	auto := &fakeAutomation{}
	p, artifacts := newPreparer(s, &fakeGenerator{}, auto, false)

	app, err := p.Prepare(context.Background(), jobID)
	require.NoError(t, err)

	assert.Equal(t, types.ApplicationStatusDraft, app.Status)
	assert.True(t, app.Submittable())
	assert.Equal(t, "Base resume for Acme", *app.ResumeText)
	assert.Equal(t, fmt.Sprintf("resume/%s", app.ID), *app.ResumePath)
	assert.Equal(t, []byte("Dear Acme"), artifacts.files[*app.CoverLetterPath])
	require.NotNil(t, app.ScreenshotPath)
	assert.Equal(t, []string{app.JobURL}, auto.urls)

	job, err := s.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusProcessed, job.Status)
}

func TestPrepare_AutoSubmit(t *testing.T) {
	s := store.NewMemory()
	jobID := seedJob(t, s, types.JobStatusProcessed)
	p, _ := newPreparer(s, &fakeGenerator{}, nil, true)

	app, err := p.Prepare(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, types.ApplicationStatusSubmitted, app.Status)
	assert.Nil(t, app.ScreenshotPath)

	job, err := s.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusApplied, job.Status)
}

func TestPrepare_GeneratorFailureKeepsDraft(t *testing.T) {
	s := store.NewMemory()
	jobID := seedJob(t, s, types.JobStatusProcessed)
	gen := &fakeGenerator{err: errors.New("model overloaded")}
	p, _ := newPreparer(s, gen, nil, false)

	_, err := p.Prepare(context.Background(), jobID)
	require.Error(t, err)

	apps, err := s.ListApplications(context.Background(), types.ApplicationFilter{JobID: jobID})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, types.ApplicationStatusDraft, apps[0].Status)
	assert.False(t, apps[0].HasResume())

	// retry reuses the same draft
	gen.err = nil
	app, err := p.Prepare(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, apps[0].ID, app.ID)
	assert.Equal(t, 2, gen.calls)
}

func TestPrepare_ExistingDocumentsNotRegenerated(t *testing.T) {
	s := store.NewMemory()
	jobID := seedJob(t, s, types.JobStatusProcessed)
	gen := &fakeGenerator{}
	p, _ := newPreparer(s, gen, nil, false)

	_, err := p.Prepare(context.Background(), jobID)
	require.NoError(t, err)
	_, err = p.Prepare(context.Background(), jobID)
	require.NoError(t, err)

	assert.Equal(t, 1, gen.calls)
}

func TestPrepare_TransientAutomationErrorKeepsDraft(t *testing.T) {
	s := store.NewMemory()
	jobID := seedJob(t, s, types.JobStatusProcessed)
	gen := &fakeGenerator{}
	auto := &fakeAutomation{err: fmt.Errorf("browser screenshot failed: %w", context.DeadlineExceeded)}
	p, _ := newPreparer(s, gen, auto, false)

	app, err := p.Prepare(context.Background(), jobID)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, app)

	got, err := s.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApplicationStatusDraft, got.Status)
	assert.Nil(t, got.ErrorMessage)
	assert.True(t, got.Submittable())
	assert.Nil(t, got.ScreenshotPath)

	// retry reuses the draft and its documents
	auto.err = nil
	retried, err := p.Prepare(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, app.ID, retried.ID)
	assert.Equal(t, 1, gen.calls)
	require.NotNil(t, retried.ScreenshotPath)
	assert.Len(t, auto.urls, 2)
}

func TestPrepare_AutomationFailureFailsDraft(t *testing.T) {
	s := store.NewMemory()
	jobID := seedJob(t, s, types.JobStatusProcessed)
	auto := &fakeAutomation{err: &AutomationFailure{Reason: "listing removed"}}
	p, _ := newPreparer(s, &fakeGenerator{}, auto, false)

	app, err := p.Prepare(context.Background(), jobID)
	var failure *AutomationFailure
	require.True(t, errors.As(err, &failure))
	require.NotNil(t, app)
	assert.Equal(t, types.ApplicationStatusFailed, app.Status)

	got, err := s.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApplicationStatusFailed, got.Status)
	assert.Contains(t, *got.ErrorMessage, "listing removed")

	job, err := s.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusProcessed, job.Status)
}

func TestPrepare_SubmittedJobConflicts(t *testing.T) {
	s := store.NewMemory()
	jobID := seedJob(t, s, types.JobStatusProcessed)
	p, _ := newPreparer(s, &fakeGenerator{}, nil, true)
	_, err := p.Prepare(context.Background(), jobID)
	require.NoError(t, err)

	_, err = p.Prepare(context.Background(), jobID)
	var conflict *types.ErrConflict
	assert.True(t, errors.As(err, &conflict))
}
