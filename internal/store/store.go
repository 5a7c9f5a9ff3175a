// Package store defines the persistence boundary shared by the deduplication
// gate, the matching engine and the application state machine.
//
// Implementations must enforce the storage-level guarantees on their own:
// job_url is unique, (source, external_job_id) is unique when the id is set, at most one draft or submitted application exists per
// job, deleting a job deletes its applications, and the status/embedding and
// status/timestamp couplings of both entities hold for every committed row.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/types"
)

// Reader exposes lookups. Getters return nil, nil when the row does not exist.
type Reader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
	GetJobByURL(ctx context.Context, jobURL string) (*types.Job, error)
	GetJobBySourceExternalID(ctx context.Context, source, externalJobID string) (*types.Job, error)
	GetJobs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Job, error)
	ListJobs(ctx context.Context, filter types.JobFilter) ([]types.Job, error)
	ListJobEmbeddings(ctx context.Context) ([]types.JobEmbedding, error)

	GetApplication(ctx context.Context, id uuid.UUID) (*types.Application, error)
	ListApplications(ctx context.Context, filter types.ApplicationFilter) ([]types.Application, error)
}

// Tx is a unit of work. Reads through a Tx observe its own uncommitted writes.
type Tx interface {
	Reader

	// LockJob reads a job and holds it against concurrent writers until the transaction ends
	LockJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
	// LockApplication reads an application and holds it until the transaction ends
	LockApplication(ctx context.Context, id uuid.UUID) (*types.Application, error)

	// InsertJob persists a new job, assigning ID and timestamps when unset.
	// A job_url or (source, external_job_id) collision returns *types.ErrDuplicateKey.
	InsertJob(ctx context.Context, job *types.Job) error
	UpdateJobContent(ctx context.Context, id uuid.UUID, update types.JobUpdate) error
	// SetJobMatch stores embedding, score and resume fingerprint together with status
	SetJobMatch(ctx context.Context, id uuid.UUID, match types.JobMatch, status types.JobStatus) error
	SetJobStatus(ctx context.Context, id uuid.UUID, status types.JobStatus) error
	RecordEmbeddingFailure(ctx context.Context, id uuid.UUID, message string) error
	// DeleteJob removes a job and all of its applications
	DeleteJob(ctx context.Context, id uuid.UUID) (bool, error)

	ActiveApplication(ctx context.Context, jobID uuid.UUID) (*types.Application, error)
	CountApplications(ctx context.Context, jobID uuid.UUID) (int, error)
	// InsertApplication persists a new application. A second active
	// application for the same job returns *types.ErrConflict.
	InsertApplication(ctx context.Context, app *types.Application) error
	// SaveApplication writes the mutable columns of an application;
	// the job snapshot columns are never rewritten.
	SaveApplication(ctx context.Context, app *types.Application) error
}

// Store is the transactional persistence boundary
type Store interface {
	Reader

	// InTx runs fn in a transaction. All writes made through tx commit together
	// when fn returns nil; any error discards every one of them.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
