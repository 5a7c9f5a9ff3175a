package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/applier/internal/types"
	"github.com/pgvector/pgvector-go"
)

// -----------------------------------------------------------------------------
// Job Queries
// -----------------------------------------------------------------------------

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var jobColumns = []string{
	"id", "external_job_id", "source", "company_name", "job_title", "job_url", "location",
	"salary_min", "salary_max", "job_description", "requirements", "posted_date", "scraped_at",
	"embedding", "match_score::float8 AS match_score", "resume_fingerprint",
	"embedding_attempts", "last_embedding_error", "status", "created_at", "updated_at",
}

var jobSelect = "SELECT " + strings.Join(jobColumns, ", ") + " FROM jobs"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var j types.Job
	var embedding *pgvector.Vector
	var status string

	err := row.Scan(&j.ID, &j.ExternalJobID, &j.Source, &j.CompanyName, &j.JobTitle, &j.JobURL, &j.Location,
		&j.SalaryMin, &j.SalaryMax, &j.Description, &j.Requirements, &j.PostedDate, &j.ScrapedAt,
		&embedding, &j.MatchScore, &j.ResumeFingerprint,
		&j.EmbeddingAttempts, &j.LastEmbeddingErr, &status, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if embedding != nil {
		j.Embedding = embedding.Slice()
	}
	j.Status = types.JobStatus(status)
	return &j, nil
}

func (q queries) getJob(ctx context.Context, query string, args ...any) (*types.Job, error) {
	job, err := scanJob(q.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (q queries) listJobs(ctx context.Context, query string, args ...any) ([]types.Job, error) {
	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

// GetJob retrieves a job by ID
func (q queries) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	return q.getJob(ctx, jobSelect+" WHERE id = $1", id)
}

// GetJobByURL retrieves a job by its normalized URL
func (q queries) GetJobByURL(ctx context.Context, jobURL string) (*types.Job, error) {
	return q.getJob(ctx, jobSelect+" WHERE job_url = $1", jobURL)
}

// GetJobBySourceExternalID retrieves the oldest job with the given source and external ID
func (q queries) GetJobBySourceExternalID(ctx context.Context, source, externalJobID string) (*types.Job, error) {
	return q.getJob(ctx, jobSelect+" WHERE source = $1 AND external_job_id = $2 ORDER BY seq LIMIT 1",
		source, externalJobID)
}

// GetJobs retrieves the jobs among ids that exist
func (q queries) GetJobs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Job, error) {
	out := make(map[uuid.UUID]*types.Job, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	jobs, err := q.listJobs(ctx, jobSelect+" WHERE id = ANY($1::uuid[])", strIDs)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		out[jobs[i].ID] = &jobs[i]
	}
	return out, nil
}

// buildListJobsQuery translates a filter into SQL
func buildListJobsQuery(filter types.JobFilter) (string, []any, error) {
	query := psql.Select(jobColumns...).From("jobs").OrderBy("seq")

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query = query.Where(sq.Eq{"status": statuses})
	}
	if filter.Source != "" {
		query = query.Where(sq.Eq{"source": filter.Source})
	}
	if filter.ExcludeFingerprint != "" {
		query = query.Where(sq.Or{
			sq.Eq{"resume_fingerprint": nil},
			sq.NotEq{"resume_fingerprint": filter.ExcludeFingerprint},
		})
	}
	if filter.MaxEmbeddingAttempts > 0 {
		query = query.Where(sq.Lt{"embedding_attempts": filter.MaxEmbeddingAttempts})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	return query.ToSql()
}

// ListJobs lists jobs matching filter in insertion order
func (q queries) ListJobs(ctx context.Context, filter types.JobFilter) ([]types.Job, error) {
	query, args, err := buildListJobsQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build job query: %w", err)
	}
	return q.listJobs(ctx, query, args...)
}

// ListJobEmbeddings returns every stored embedding in insertion order
func (q queries) ListJobEmbeddings(ctx context.Context) ([]types.JobEmbedding, error) {
	rows, err := q.q.Query(ctx,
		`SELECT id, embedding FROM jobs WHERE embedding IS NOT NULL ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer rows.Close()

	var out []types.JobEmbedding
	for rows.Next() {
		var e types.JobEmbedding
		var v pgvector.Vector
		if err := rows.Scan(&e.ID, &v); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		e.Embedding = v.Slice()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embeddings: %w", err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Job Writes (transaction only)
// -----------------------------------------------------------------------------

func vectorParam(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

// LockJob reads a job with SELECT ... FOR UPDATE
func (t *tx) LockJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	return t.getJob(ctx, jobSelect+" WHERE id = $1 FOR UPDATE", id)
}

// InsertJob creates a job row
func (t *tx) InsertJob(ctx context.Context, job *types.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = types.JobStatusNew
	}
	if err := job.CheckInvariant(); err != nil {
		return err
	}

	var scrapedAt any
	if !job.ScrapedAt.IsZero() {
		scrapedAt = job.ScrapedAt
	}

	err := t.q.QueryRow(ctx,
		`INSERT INTO jobs (id, external_job_id, source, company_name, job_title, job_url, location,
		                   salary_min, salary_max, job_description, requirements, posted_date, scraped_at,
		                   embedding, match_score, resume_fingerprint, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, NOW()), $14, $15, $16, $17)
		 RETURNING scraped_at, created_at, updated_at`,
		job.ID, job.ExternalJobID, job.Source, job.CompanyName, job.JobTitle, job.JobURL, job.Location,
		job.SalaryMin, job.SalaryMax, job.Description, job.Requirements, job.PostedDate, scrapedAt,
		vectorParam(job.Embedding), job.MatchScore, job.ResumeFingerprint, string(job.Status),
	).Scan(&job.ScrapedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		err = translateError(err)
		var dup *types.ErrDuplicateKey
		if errors.As(err, &dup) {
			dup.Value = job.JobURL
			if dup.Key == types.DedupKeySourceExternalID {
				dup.Value = job.Source + ":" + *job.ExternalJobID
			}
			return dup
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (t *tx) execJob(ctx context.Context, id uuid.UUID, op, query string, args ...any) error {
	tag, err := t.q.Exec(ctx, query, args...)
	if err != nil {
		err = translateError(err)
		var stateErr *types.ErrInvalidState
		if errors.As(err, &stateErr) {
			stateErr.ID = id
			return stateErr
		}
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return &types.ErrNotFound{Entity: "job", ID: id}
	}
	return nil
}

// UpdateJobContent merges scraped content into an existing job; nil fields are kept
func (t *tx) UpdateJobContent(ctx context.Context, id uuid.UUID, update types.JobUpdate) error {
	return t.execJob(ctx, id, "update job content",
		`UPDATE jobs SET
		     job_description = $2,
		     requirements = COALESCE($3, requirements),
		     location = COALESCE($4, location),
		     salary_min = COALESCE($5, salary_min),
		     salary_max = COALESCE($6, salary_max),
		     posted_date = COALESCE($7, posted_date),
		     updated_at = NOW()
		 WHERE id = $1`,
		id, update.Description, update.Requirements, update.Location,
		update.SalaryMin, update.SalaryMax, update.PostedDate)
}

// SetJobMatch stores the embedding, score and fingerprint and moves the job to status
func (t *tx) SetJobMatch(ctx context.Context, id uuid.UUID, match types.JobMatch, status types.JobStatus) error {
	if !status.HasEmbedding() {
		return &types.ErrInvalidState{Entity: "job", ID: id, State: string(status), Operation: "store embedding"}
	}
	if err := types.CheckEmbedding(match.Embedding); err != nil {
		return err
	}
	return t.execJob(ctx, id, "set job match",
		`UPDATE jobs SET
		     embedding = $2,
		     match_score = $3,
		     resume_fingerprint = $4,
		     last_embedding_error = NULL,
		     status = $5,
		     updated_at = NOW()
		 WHERE id = $1`,
		id, pgvector.NewVector(match.Embedding), match.MatchScore, match.ResumeFingerprint, string(status))
}

// SetJobStatus updates a job's status. The embedding/status check constraint still applies.
func (t *tx) SetJobStatus(ctx context.Context, id uuid.UUID, status types.JobStatus) error {
	return t.execJob(ctx, id, "set job status",
		`UPDATE jobs SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
}

// RecordEmbeddingFailure increments the attempt counter and stores the last error
func (t *tx) RecordEmbeddingFailure(ctx context.Context, id uuid.UUID, message string) error {
	return t.execJob(ctx, id, "record embedding failure",
		`UPDATE jobs SET
		     embedding_attempts = embedding_attempts + 1,
		     last_embedding_error = $2,
		     updated_at = NOW()
		 WHERE id = $1`,
		id, message)
}

// DeleteJob removes a job; applications are removed by ON DELETE CASCADE
func (t *tx) DeleteJob(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := t.q.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
