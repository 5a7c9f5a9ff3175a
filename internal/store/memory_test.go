package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(url string) *types.Job {
	return &types.Job{
		Source:      "linkedin",
		CompanyName: "Acme",
		JobTitle:    "Backend Engineer",
		JobURL:      url,
		Description: "Go, Postgres",
	}
}

func testEmbedding() []float32 {
	v := make([]float32, types.EmbeddingDimension)
	v[0] = 1
	return v
}

func insertJob(t *testing.T, s *Memory, job *types.Job) *types.Job {
	t.Helper()
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertJob(context.Background(), job)
	}))
	return job
}

func TestMemory_InsertJobAssignsDefaults(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryWithClock(func() time.Time { return fixed })

	job := insertJob(t, s, testJob("https://example.com/jobs/1"))

	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, types.JobStatusNew, job.Status)
	assert.Equal(t, fixed, job.CreatedAt)
	assert.Equal(t, fixed, job.ScrapedAt)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.JobURL, got.JobURL)
}

func TestMemory_GetMissingReturnsNil(t *testing.T) {
	s := NewMemory()

	job, err := s.GetJob(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, job)

	app, err := s.GetApplication(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, app)
}

func TestMemory_DuplicateURL(t *testing.T) {
	s := NewMemory()
	insertJob(t, s, testJob("https://example.com/jobs/1"))

	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertJob(context.Background(), testJob("https://example.com/jobs/1"))
	})

	var dup *types.ErrDuplicateKey
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "job_url", dup.Key)

	jobs, err := s.ListJobs(context.Background(), types.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestMemory_DuplicateSourceExternalID(t *testing.T) {
	s := NewMemory()
	first := testJob("https://example.com/jobs/1")
	first.ExternalJobID = types.StringPtr("ext-1")
	insertJob(t, s, first)

	second := testJob("https://example.com/jobs/1-reposted")
	second.ExternalJobID = types.StringPtr("ext-1")
	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertJob(context.Background(), second)
	})

	var dup *types.ErrDuplicateKey
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, types.DedupKeySourceExternalID, dup.Key)

	// no external id, or another source, never collides
	other := testJob("https://example.com/jobs/2")
	other.ExternalJobID = types.StringPtr("ext-1")
	other.Source = "indeed"
	insertJob(t, s, other)
	insertJob(t, s, testJob("https://example.com/jobs/3"))
	insertJob(t, s, testJob("https://example.com/jobs/4"))
}

func TestMemory_RollbackDiscardsAllWrites(t *testing.T) {
	s := NewMemory()
	job := insertJob(t, s, testJob("https://example.com/jobs/1"))
	boom := errors.New("crash between writes")

	err := s.InTx(context.Background(), func(tx Tx) error {
		match := types.JobMatch{Embedding: testEmbedding(), MatchScore: 80, ResumeFingerprint: "fp"}
		if err := tx.SetJobMatch(context.Background(), job.ID, match, types.JobStatusProcessed); err != nil {
			return err
		}
		if err := tx.InsertJob(context.Background(), testJob("https://example.com/jobs/2")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusNew, got.Status)
	assert.Nil(t, got.MatchScore)
	assert.Empty(t, got.Embedding)

	other, err := s.GetJobByURL(context.Background(), "https://example.com/jobs/2")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestMemory_TxReadsOwnWrites(t *testing.T) {
	s := NewMemory()

	err := s.InTx(context.Background(), func(tx Tx) error {
		job := testJob("https://example.com/jobs/1")
		require.NoError(t, tx.InsertJob(context.Background(), job))

		got, err := tx.GetJobByURL(context.Background(), job.JobURL)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, job.ID, got.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemory_RejectsBrokenInvariant(t *testing.T) {
	s := NewMemory()
	job := insertJob(t, s, testJob("https://example.com/jobs/1"))

	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.SetJobStatus(context.Background(), job.ID, types.JobStatusProcessed)
	})

	var stateErr *types.ErrInvalidState
	assert.True(t, errors.As(err, &stateErr))
}

func TestMemory_UpdateJobContentRejectsInvertedSalary(t *testing.T) {
	s := NewMemory()
	job := testJob("https://example.com/jobs/1")
	salaryMax := 100000
	job.SalaryMax = &salaryMax
	insertJob(t, s, job)

	salaryMin := 150000
	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.UpdateJobContent(context.Background(), job.ID, types.JobUpdate{Description: "updated", SalaryMin: &salaryMin})
	})
	var stateErr *types.ErrInvalidState
	require.True(t, errors.As(err, &stateErr))

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SalaryMin)
	assert.Equal(t, "Go, Postgres", got.Description)
}

func TestMemory_SecondActiveApplicationConflicts(t *testing.T) {
	s := NewMemory()
	job := insertJob(t, s, testJob("https://example.com/jobs/1"))
	first := &types.Application{JobID: job.ID, Status: types.ApplicationStatusDraft}

	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertApplication(context.Background(), first)
	}))

	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertApplication(context.Background(), &types.Application{JobID: job.ID, Status: types.ApplicationStatusDraft})
	})
	var conflict *types.ErrConflict
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, first.ID, conflict.ApplicationID)

	// a failed application frees the slot
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		app, err := tx.LockApplication(context.Background(), first.ID)
		if err != nil {
			return err
		}
		msg := "form rejected"
		app.Status = types.ApplicationStatusFailed
		app.ErrorMessage = &msg
		return tx.SaveApplication(context.Background(), app)
	}))
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertApplication(context.Background(), &types.Application{JobID: job.ID, Status: types.ApplicationStatusDraft})
	}))

	apps, err := s.ListApplications(context.Background(), types.ApplicationFilter{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, first.ID, apps[0].ID)
}

func TestMemory_InsertApplicationRequiresJob(t *testing.T) {
	s := NewMemory()

	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertApplication(context.Background(), &types.Application{JobID: uuid.New(), Status: types.ApplicationStatusDraft})
	})

	var notFound *types.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestMemory_DeleteJobCascades(t *testing.T) {
	s := NewMemory()
	job := insertJob(t, s, testJob("https://example.com/jobs/1"))
	keep := insertJob(t, s, testJob("https://example.com/jobs/2"))
	app := &types.Application{JobID: job.ID, Status: types.ApplicationStatusDraft}
	other := &types.Application{JobID: keep.ID, Status: types.ApplicationStatusDraft}
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		if err := tx.InsertApplication(context.Background(), app); err != nil {
			return err
		}
		return tx.InsertApplication(context.Background(), other)
	}))

	var deleted bool
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		var err error
		deleted, err = tx.DeleteJob(context.Background(), job.ID)
		return err
	}))
	assert.True(t, deleted)

	gone, err := s.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := s.GetApplication(context.Background(), other.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		deleted, err = tx.DeleteJob(context.Background(), job.ID)
		return err
	}))
	assert.False(t, deleted)
}

func TestMemory_SaveApplicationKeepsSnapshot(t *testing.T) {
	s := NewMemory()
	job := insertJob(t, s, testJob("https://example.com/jobs/1"))
	app := &types.Application{
		JobID:       job.ID,
		CompanyName: job.CompanyName,
		JobTitle:    job.JobTitle,
		JobURL:      job.JobURL,
		Status:      types.ApplicationStatusDraft,
	}
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertApplication(context.Background(), app)
	}))

	changed := app.Clone()
	changed.CompanyName = "Someone Else"
	changed.Notes = types.StringPtr("referred by Sam")
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		return tx.SaveApplication(context.Background(), changed)
	}))

	got, err := s.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.CompanyName)
	require.NotNil(t, got.Notes)
	assert.Equal(t, "referred by Sam", *got.Notes)
}

func TestMemory_ListJobsFilterAndOrder(t *testing.T) {
	s := NewMemory()
	a := insertJob(t, s, testJob("https://example.com/jobs/a"))
	b := insertJob(t, s, testJob("https://example.com/jobs/b"))
	c := insertJob(t, s, testJob("https://example.com/jobs/c"))

	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		match := types.JobMatch{Embedding: testEmbedding(), MatchScore: 50, ResumeFingerprint: "fp"}
		return tx.SetJobMatch(context.Background(), b.ID, match, types.JobStatusProcessed)
	}))

	pending, err := s.ListJobs(context.Background(), types.JobFilter{Statuses: []types.JobStatus{types.JobStatusNew}})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a.ID, pending[0].ID)
	assert.Equal(t, c.ID, pending[1].ID)

	page, err := s.ListJobs(context.Background(), types.JobFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, b.ID, page[0].ID)

	embeddings, err := s.ListJobEmbeddings(context.Background())
	require.NoError(t, err)
	require.Len(t, embeddings, 1)
	assert.Equal(t, b.ID, embeddings[0].ID)
}

func TestMemory_RecordEmbeddingFailure(t *testing.T) {
	s := NewMemory()
	job := insertJob(t, s, testJob("https://example.com/jobs/1"))

	for i := 0; i < 2; i++ {
		require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
			return tx.RecordEmbeddingFailure(context.Background(), job.ID, "provider timeout")
		}))
	}

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.EmbeddingAttempts)
	assert.Equal(t, types.JobStatusNew, got.Status)

	capped, err := s.ListJobs(context.Background(), types.JobFilter{MaxEmbeddingAttempts: 2})
	require.NoError(t, err)
	assert.Empty(t, capped)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	s := NewMemory()
	job := insertJob(t, s, testJob("https://example.com/jobs/1"))

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	got.CompanyName = "mutated"

	again, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.CompanyName)
}
