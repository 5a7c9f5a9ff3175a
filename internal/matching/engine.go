// Package matching scores jobs against a resume embedding, keeps the vector
// index in step with persisted embeddings and ranks the shortlist.
package matching

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/embedding"
	"github.com/jonathan/applier/internal/store"
	"github.com/jonathan/applier/internal/types"
	"github.com/jonathan/applier/internal/vectorindex"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures an Engine
type Options struct {
	// Concurrency bounds the jobs embedded and scored at once by ProcessPending
	Concurrency int
	// EmbedTimeout bounds each provider call. A timeout is recorded as an
	// embedding failure and the job stays new.
	EmbedTimeout time.Duration
	// MaxEmbeddingAttempts stops ProcessPending from retrying a job after this
	// many failures (0 = unlimited)
	MaxEmbeddingAttempts int
}

// DefaultOptions returns the engine defaults
func DefaultOptions() Options {
	return Options{
		Concurrency:          4,
		EmbedTimeout:         30 * time.Second,
		MaxEmbeddingAttempts: 5,
	}
}

// Engine is the matching engine
type Engine struct {
	store    store.Store
	index    *vectorindex.Index
	provider embedding.Provider
	opts     Options
	logger   *zap.Logger
}

// New creates an engine. The index should be warmed with LoadIndex before
// TopK is served.
func New(s store.Store, index *vectorindex.Index, provider embedding.Provider, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.Concurrency
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = defaults.EmbedTimeout
	}
	if opts.MaxEmbeddingAttempts < 0 {
		opts.MaxEmbeddingAttempts = 0
	}
	return &Engine{store: s, index: index, provider: provider, opts: opts, logger: logger}
}

// Index returns the engine's vector index
func (e *Engine) Index() *vectorindex.Index {
	return e.index
}

// ResumeEmbedding embeds resume text through the provider
func (e *Engine) ResumeEmbedding(ctx context.Context, text string) (Resume, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Resume{}, &types.ErrValidation{Field: "resume", Message: "must not be empty"}
	}

	embedCtx, cancel := context.WithTimeout(ctx, e.opts.EmbedTimeout)
	defer cancel()
	vec, err := e.provider.Embed(embedCtx, text)
	if err != nil {
		return Resume{}, &types.ErrEmbeddingUnavailable{Cause: err}
	}
	return NewResume(vec)
}

// Outcome is what ProcessJob did to one job
type Outcome string

// Outcome constants
const (
	OutcomeProcessed Outcome = "processed"
	OutcomeRescored  Outcome = "rescored"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// JobResult reports the outcome for one job
type JobResult struct {
	JobID   uuid.UUID `json:"job_id"`
	Outcome Outcome   `json:"outcome"`
	Score   *float64  `json:"score,omitempty"`
	Error   string    `json:"error,omitempty"`
	Err     error     `json:"-"`
}

// ProcessJob embeds the job when needed, scores it against the resume and
// stores the match. New jobs become processed; jobs already scored against
// another resume keep their status and get a fresh score.
//
// Embedding failures are recorded on the job, which stays new, and are
// returned as *types.ErrEmbeddingUnavailable.
func (e *Engine) ProcessJob(ctx context.Context, resume Resume, jobID uuid.UUID) (JobResult, error) {
	result := JobResult{JobID: jobID}

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return result, err
	}
	if job == nil {
		return result, &types.ErrNotFound{Entity: "job", ID: jobID}
	}
	if job.Status != types.JobStatusNew && !job.IsStale(resume.Fingerprint) {
		result.Outcome = OutcomeSkipped
		return result, nil
	}

	vec := job.Embedding
	if !job.HasEmbedding() {
		vec, err = e.embedJob(ctx, job)
		if err != nil {
			return e.recordFailure(ctx, job.ID, err)
		}
	}

	score, err := Score(resume.Embedding, vec)
	if err != nil {
		return e.recordFailure(ctx, job.ID, err)
	}

	wasIndexed := e.index.Contains(jobID)
	indexed := false
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockJob(ctx, jobID)
		if err != nil {
			return err
		}
		if locked == nil {
			return &types.ErrNotFound{Entity: "job", ID: jobID}
		}

		// another pass may have finished this job since it was read
		status := locked.Status
		switch {
		case status == types.JobStatusNew:
			status = types.JobStatusProcessed
			result.Outcome = OutcomeProcessed
		case locked.IsStale(resume.Fingerprint):
			result.Outcome = OutcomeRescored
		default:
			result.Outcome = OutcomeSkipped
			return nil
		}
		if locked.HasEmbedding() {
			vec = locked.Embedding
			if score, err = Score(resume.Embedding, vec); err != nil {
				return err
			}
		}

		match := types.JobMatch{Embedding: vec, MatchScore: score, ResumeFingerprint: resume.Fingerprint}
		if err := tx.SetJobMatch(ctx, jobID, match, status); err != nil {
			return err
		}

		// the index must hold the vector before the status flip is visible
		if err := e.index.Insert(jobID, vec); err != nil {
			return err
		}
		indexed = true
		return nil
	})
	if err != nil {
		if indexed && !wasIndexed {
			e.index.Remove(jobID)
		}
		result.Outcome = OutcomeFailed
		result.Err = err
		result.Error = err.Error()
		return result, err
	}

	if result.Outcome != OutcomeSkipped {
		result.Score = &score
		e.logger.Debug("scored job",
			zap.Stringer("job_id", jobID),
			zap.String("outcome", string(result.Outcome)),
			zap.Float64("score", score),
		)
	}
	return result, nil
}

func (e *Engine) embedJob(ctx context.Context, job *types.Job) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, e.opts.EmbedTimeout)
	defer cancel()

	vec, err := e.provider.Embed(embedCtx, JobText(job))
	if err != nil {
		return nil, &types.ErrEmbeddingUnavailable{JobID: job.ID, Cause: err}
	}
	if err := types.CheckEmbedding(vec); err != nil {
		return nil, &types.ErrEmbeddingUnavailable{JobID: job.ID, Cause: err}
	}
	return vec, nil
}

// recordFailure notes a failed embedding on the job and returns cause
func (e *Engine) recordFailure(ctx context.Context, jobID uuid.UUID, cause error) (JobResult, error) {
	result := JobResult{JobID: jobID, Outcome: OutcomeFailed, Err: cause, Error: cause.Error()}

	err := e.store.InTx(ctx, func(tx store.Tx) error {
		return tx.RecordEmbeddingFailure(ctx, jobID, cause.Error())
	})
	if err != nil {
		e.logger.Error("failed to record embedding failure", zap.Stringer("job_id", jobID), zap.Error(err))
	}
	e.logger.Warn("job embedding failed", zap.Stringer("job_id", jobID), zap.Error(cause))
	return result, cause
}

// JobText is the text embedded for a job
func JobText(job *types.Job) string {
	var b strings.Builder
	b.WriteString(job.JobTitle)
	b.WriteString(" at ")
	b.WriteString(job.CompanyName)
	if job.Location != nil {
		b.WriteString(" (")
		b.WriteString(*job.Location)
		b.WriteString(")")
	}
	b.WriteString("\n\n")
	b.WriteString(job.Description)
	if job.Requirements != nil {
		b.WriteString("\n\nRequirements:\n")
		b.WriteString(*job.Requirements)
	}
	return b.String()
}

// ProcessPending scores up to limit jobs (0 = all): new jobs first, then
// processed jobs whose score belongs to another resume. Per-job failures are
// reported in the results and do not stop the batch.
func (e *Engine) ProcessPending(ctx context.Context, resume Resume, limit int) ([]JobResult, error) {
	if err := types.CheckEmbedding(resume.Embedding); err != nil {
		return nil, err
	}

	pending, err := e.store.ListJobs(ctx, types.JobFilter{
		Statuses:             []types.JobStatus{types.JobStatusNew},
		MaxEmbeddingAttempts: e.opts.MaxEmbeddingAttempts,
		Limit:                limit,
	})
	if err != nil {
		return nil, err
	}
	if limit <= 0 || len(pending) < limit {
		stale, err := e.store.ListJobs(ctx, types.JobFilter{
			Statuses:           []types.JobStatus{types.JobStatusProcessed},
			ExcludeFingerprint: resume.Fingerprint,
			Limit:              remaining(limit, len(pending)),
		})
		if err != nil {
			return nil, err
		}
		pending = append(pending, stale...)
	}

	results := make([]JobResult, len(pending))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i := range pending {
		id := pending[i].ID
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res, err := e.ProcessJob(gCtx, resume, id)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				res.JobID, res.Outcome, res.Err, res.Error = id, OutcomeFailed, err, err.Error()
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	if e.index.NeedsRebuild() {
		e.RebuildIndex()
	}

	counts := map[Outcome]int{}
	for _, r := range results {
		counts[r.Outcome]++
	}
	e.logger.Info("processed pending jobs",
		zap.Int("jobs", len(results)),
		zap.Int("processed", counts[OutcomeProcessed]),
		zap.Int("rescored", counts[OutcomeRescored]),
		zap.Int("skipped", counts[OutcomeSkipped]),
		zap.Int("failed", counts[OutcomeFailed]),
	)
	return results, nil
}

func remaining(limit, used int) int {
	if limit <= 0 {
		return 0
	}
	return limit - used
}

// TopKOptions narrows a TopK query
type TopKOptions struct {
	// Exclude lists statuses never returned. Nil means applied and rejected.
	Exclude []types.JobStatus
	// MinScore drops matches scoring below it
	MinScore float64
}

// Match is one ranked job
type Match struct {
	Job      types.Job `json:"job"`
	Score    float64   `json:"score"`
	Distance float64   `json:"distance"`
}

// TopK returns the k best matches for the resume ordered by match score
// descending. Candidates come from the vector index; scores stored against
// another resume are recomputed and persisted on the way.
func (e *Engine) TopK(ctx context.Context, resume Resume, k int, opts TopKOptions) ([]Match, error) {
	if err := types.CheckEmbedding(resume.Embedding); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Match{}, nil
	}

	exclude := opts.Exclude
	if exclude == nil {
		exclude = []types.JobStatus{types.JobStatusApplied, types.JobStatusRejected}
	}
	excluded := map[types.JobStatus]bool{types.JobStatusNew: true}
	for _, s := range exclude {
		excluded[s] = true
	}

	fetch := max(2*k, k+16)
	var matches []Match
	for {
		hits, err := e.index.Query(resume.Embedding, fetch)
		if err != nil {
			return nil, err
		}
		matches, err = e.collect(ctx, resume, hits, excluded, opts.MinScore)
		if err != nil {
			return nil, err
		}
		if len(matches) >= k || len(hits) < fetch {
			break
		}
		fetch *= 2
	}

	// hits arrive in distance order, so equal scores keep it
	slices.SortStableFunc(matches, func(a, b Match) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (e *Engine) collect(ctx context.Context, resume Resume, hits []vectorindex.Result, excluded map[types.JobStatus]bool, minScore float64) ([]Match, error) {
	ids := make([]uuid.UUID, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	jobs, err := e.store.GetJobs(ctx, ids)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		job, ok := jobs[h.ID]
		if !ok {
			// deleted since it was indexed
			e.index.Remove(h.ID)
			continue
		}
		if excluded[job.Status] || job.MatchScore == nil {
			continue
		}

		score := *job.MatchScore
		if job.IsStale(resume.Fingerprint) {
			score, err = e.rescore(ctx, resume, job)
			if err != nil {
				return nil, err
			}
		}
		if score < minScore {
			continue
		}
		j := *job
		j.MatchScore = &score
		matches = append(matches, Match{Job: j, Score: score, Distance: h.Distance})
	}
	return matches, nil
}

// rescore recomputes a stale score and persists it. A persistence failure is
// logged and the fresh score is still used for ranking.
func (e *Engine) rescore(ctx context.Context, resume Resume, job *types.Job) (float64, error) {
	score, err := Score(resume.Embedding, job.Embedding)
	if err != nil {
		return 0, fmt.Errorf("failed to rescore job %s: %w", job.ID, err)
	}

	err = e.store.InTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockJob(ctx, job.ID)
		if err != nil || locked == nil || !locked.HasEmbedding() {
			return err
		}
		match := types.JobMatch{Embedding: locked.Embedding, MatchScore: score, ResumeFingerprint: resume.Fingerprint}
		return tx.SetJobMatch(ctx, job.ID, match, locked.Status)
	})
	if err != nil {
		e.logger.Warn("failed to persist recomputed score", zap.Stringer("job_id", job.ID), zap.Error(err))
	}
	return score, nil
}

// LoadIndex inserts every persisted embedding into the index and retrains
// it when the partitions are out of date. Returns the number loaded.
func (e *Engine) LoadIndex(ctx context.Context) (int, error) {
	embeddings, err := e.store.ListJobEmbeddings(ctx)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, je := range embeddings {
		if err := e.index.Insert(je.ID, je.Embedding); err != nil {
			e.logger.Warn("skipping stored embedding", zap.Stringer("job_id", je.ID), zap.Error(err))
			continue
		}
		loaded++
	}
	if e.index.NeedsRebuild() {
		e.RebuildIndex()
	}

	e.logger.Info("loaded vector index", zap.Int("embeddings", loaded))
	return loaded, nil
}

// RebuildIndex retrains the index partitions. Queries keep being served from
// the previous generation until the new one is published.
func (e *Engine) RebuildIndex() vectorindex.Stats {
	start := time.Now()
	e.index.Rebuild()
	stats := e.index.Stats()
	e.logger.Info("rebuilt vector index",
		zap.Uint64("generation", stats.Generation),
		zap.Int("size", stats.Size),
		zap.Duration("duration", time.Since(start)),
	)
	return stats
}

// Reject marks a processed job as rejected by the user
func (e *Engine) Reject(ctx context.Context, jobID uuid.UUID) error {
	return e.store.InTx(ctx, func(tx store.Tx) error {
		job, err := tx.LockJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return &types.ErrNotFound{Entity: "job", ID: jobID}
		}
		if job.Status != types.JobStatusProcessed {
			return &types.ErrInvalidState{Entity: "job", ID: jobID, State: string(job.Status), Operation: "reject"}
		}
		return tx.SetJobStatus(ctx, jobID, types.JobStatusRejected)
	})
}

// DeleteJob removes a job with its applications and drops it from the index
func (e *Engine) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	var deleted bool
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		deleted, err = tx.DeleteJob(ctx, jobID)
		return err
	})
	if err != nil {
		return err
	}
	if !deleted {
		return &types.ErrNotFound{Entity: "job", ID: jobID}
	}
	e.index.Remove(jobID)
	return nil
}
