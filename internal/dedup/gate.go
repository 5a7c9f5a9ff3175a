// Package dedup decides whether a scraped record creates a new job, updates an
// existing one or is dropped as a duplicate.
package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/ingestion"
	"github.com/jonathan/applier/internal/store"
	"github.com/jonathan/applier/internal/types"
	"go.uber.org/zap"
)

// Outcome is the result of passing one record through the gate
type Outcome string

// Outcome constants
const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// Result reports what happened to one record. Err is only set by IngestBatch
// for rejected records.
type Result struct {
	JobID   uuid.UUID `json:"job_id,omitempty"`
	Outcome Outcome   `json:"outcome"`
	Err     error     `json:"-"`
}

// Gate applies the dedup policy in order: job_url match, then
// (source, external_job_id) match, then create.
type Gate struct {
	store  store.Store
	logger *zap.Logger
}

// New creates a gate over s
func New(s store.Store, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: s, logger: logger}
}

// Ingest passes one record through the gate. Invalid records return
// *types.ErrValidation and nothing is persisted.
func (g *Gate) Ingest(ctx context.Context, rec types.RawJobRecord) (Result, error) {
	if err := rec.Validate(); err != nil {
		return Result{Outcome: OutcomeRejected}, err
	}
	jobURL, err := NormalizeURL(rec.JobURL)
	if err != nil {
		return Result{Outcome: OutcomeRejected}, err
	}
	description := ingestion.CleanDescription(rec.Description)

	var result Result
	err = g.store.InTx(ctx, func(tx store.Tx) error {
		existing, err := tx.GetJobByURL(ctx, jobURL)
		if err != nil {
			return err
		}
		if existing != nil {
			result = Result{JobID: existing.ID, Outcome: OutcomeDuplicate}
			return nil
		}

		if rec.ExternalJobID != "" {
			existing, err = tx.GetJobBySourceExternalID(ctx, rec.Source, rec.ExternalJobID)
			if err != nil {
				return err
			}
			if existing != nil {
				if err := tx.UpdateJobContent(ctx, existing.ID, updateFrom(rec, description)); err != nil {
					return err
				}
				result = Result{JobID: existing.ID, Outcome: OutcomeUpdated}
				return nil
			}
		}

		job := jobFrom(rec, jobURL, description)
		if err := tx.InsertJob(ctx, job); err != nil {
			return err
		}
		result = Result{JobID: job.ID, Outcome: OutcomeCreated}
		return nil
	})

	var dup *types.ErrDuplicateKey
	if errors.As(err, &dup) {
		// another writer inserted the same posting between our read and insert
		result, err = g.resolveDuplicate(ctx, dup, rec, jobURL, description)
	}
	if err != nil {
		return Result{}, err
	}

	g.logger.Debug("ingested job record",
		zap.String("source", rec.Source),
		zap.String("job_url", jobURL),
		zap.String("outcome", string(result.Outcome)),
		zap.Stringer("job_id", result.JobID),
	)
	return result, nil
}

func (g *Gate) resolveDuplicate(ctx context.Context, dup *types.ErrDuplicateKey, rec types.RawJobRecord, jobURL, description string) (Result, error) {
	if dup.Key == types.DedupKeySourceExternalID {
		existing, err := g.store.GetJobBySourceExternalID(ctx, rec.Source, rec.ExternalJobID)
		if err != nil {
			return Result{}, err
		}
		if existing == nil {
			return Result{}, fmt.Errorf("failed to resolve duplicate external id %s:%s: %w", rec.Source, rec.ExternalJobID, dup)
		}
		err = g.store.InTx(ctx, func(tx store.Tx) error {
			return tx.UpdateJobContent(ctx, existing.ID, updateFrom(rec, description))
		})
		if err != nil {
			return Result{}, err
		}
		return Result{JobID: existing.ID, Outcome: OutcomeUpdated}, nil
	}

	existing, err := g.store.GetJobByURL(ctx, jobURL)
	if err != nil {
		return Result{}, err
	}
	if existing == nil {
		return Result{}, fmt.Errorf("failed to resolve duplicate job_url %s: %w", jobURL, dup)
	}
	return Result{JobID: existing.ID, Outcome: OutcomeDuplicate}, nil
}

// IngestBatch ingests records one by one. A failing record is reported as
// rejected with its error and does not abort the batch; ctx cancellation does.
func (g *Gate) IngestBatch(ctx context.Context, recs []types.RawJobRecord) ([]Result, error) {
	results := make([]Result, 0, len(recs))
	counts := map[Outcome]int{}
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := g.Ingest(ctx, rec)
		if err != nil {
			res = Result{Outcome: OutcomeRejected, Err: err}
			g.logger.Warn("rejected job record",
				zap.String("source", rec.Source),
				zap.String("job_url", rec.JobURL),
				zap.Error(err),
			)
		}
		counts[res.Outcome]++
		results = append(results, res)
	}

	g.logger.Info("ingested batch",
		zap.Int("records", len(recs)),
		zap.Int("created", counts[OutcomeCreated]),
		zap.Int("updated", counts[OutcomeUpdated]),
		zap.Int("duplicate", counts[OutcomeDuplicate]),
		zap.Int("rejected", counts[OutcomeRejected]),
	)
	return results, nil
}

func jobFrom(rec types.RawJobRecord, jobURL, description string) *types.Job {
	return &types.Job{
		ExternalJobID: types.StringPtr(rec.ExternalJobID),
		Source:        rec.Source,
		CompanyName:   rec.CompanyName,
		JobTitle:      rec.JobTitle,
		JobURL:        jobURL,
		Location:      types.StringPtr(rec.Location),
		SalaryMin:     rec.SalaryMin,
		SalaryMax:     rec.SalaryMax,
		Description:   description,
		Requirements:  types.StringPtr(ingestion.CleanDescription(rec.Requirements)),
		PostedDate:    rec.PostedDate,
		Status:        types.JobStatusNew,
	}
}

func updateFrom(rec types.RawJobRecord, description string) types.JobUpdate {
	return types.JobUpdate{
		Description:  description,
		Requirements: types.StringPtr(ingestion.CleanDescription(rec.Requirements)),
		Location:     types.StringPtr(rec.Location),
		SalaryMin:    rec.SalaryMin,
		SalaryMax:    rec.SalaryMax,
		PostedDate:   rec.PostedDate,
	}
}
