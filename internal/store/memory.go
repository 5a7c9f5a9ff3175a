package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/types"
)

// Memory is an in-process Store. Transactions are serialised by a single
// mutex and buffer their writes in an overlay that is applied only on commit,
// so a failed transaction leaves no trace.
type Memory struct {
	mu   sync.Mutex
	data *memData
	now  func() time.Time
}

var _ Store = (*Memory)(nil)

type memData struct {
	jobs    map[uuid.UUID]*types.Job
	apps    map[uuid.UUID]*types.Application
	seq     map[uuid.UUID]uint64
	nextSeq uint64
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates an empty in-memory store that stamps rows with now()
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		data: &memData{
			jobs: make(map[uuid.UUID]*types.Job),
			apps: make(map[uuid.UUID]*types.Application),
			seq:  make(map[uuid.UUID]uint64),
		},
		now: now,
	}
}

// InTx runs fn against a write overlay and commits it if fn succeeds
func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		base: m.data,
		jobs: make(map[uuid.UUID]*types.Job),
		apps: make(map[uuid.UUID]*types.Application),
		seq:  make(map[uuid.UUID]uint64),
		next: m.data.nextSeq,
		now:  m.now,
	}
	tx.reader = reader{v: tx}

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *Memory) read() reader {
	return reader{v: m.data}
}

// GetJob returns a job by id
func (m *Memory) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetJob(ctx, id)
}

// GetJobByURL returns the job with the given URL
func (m *Memory) GetJobByURL(ctx context.Context, jobURL string) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetJobByURL(ctx, jobURL)
}

// GetJobBySourceExternalID returns the job with the given source and external id
func (m *Memory) GetJobBySourceExternalID(ctx context.Context, source, externalJobID string) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetJobBySourceExternalID(ctx, source, externalJobID)
}

// GetJobs returns the subset of ids that exist
func (m *Memory) GetJobs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetJobs(ctx, ids)
}

// ListJobs lists jobs in insertion order
func (m *Memory) ListJobs(ctx context.Context, filter types.JobFilter) ([]types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().ListJobs(ctx, filter)
}

// ListJobEmbeddings returns every stored embedding in insertion order
func (m *Memory) ListJobEmbeddings(ctx context.Context) ([]types.JobEmbedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().ListJobEmbeddings(ctx)
}

// GetApplication returns an application by id
func (m *Memory) GetApplication(ctx context.Context, id uuid.UUID) (*types.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetApplication(ctx, id)
}

// ListApplications lists applications, oldest first
func (m *Memory) ListApplications(ctx context.Context, filter types.ApplicationFilter) ([]types.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().ListApplications(ctx, filter)
}

// -----------------------------------------------------------------------------
// Views
// -----------------------------------------------------------------------------

type view interface {
	job(id uuid.UUID) *types.Job
	eachJob(fn func(*types.Job))
	app(id uuid.UUID) *types.Application
	eachApp(fn func(*types.Application))
	order(id uuid.UUID) uint64
}

func (d *memData) job(id uuid.UUID) *types.Job { return d.jobs[id] }

func (d *memData) eachJob(fn func(*types.Job)) {
	for _, j := range d.jobs {
		fn(j)
	}
}

func (d *memData) app(id uuid.UUID) *types.Application { return d.apps[id] }

func (d *memData) eachApp(fn func(*types.Application)) {
	for _, a := range d.apps {
		fn(a)
	}
}

func (d *memData) order(id uuid.UUID) uint64 { return d.seq[id] }

// reader implements Reader over any view. Results are always copies.
type reader struct {
	v view
}

func (r reader) GetJob(_ context.Context, id uuid.UUID) (*types.Job, error) {
	return r.v.job(id).Clone(), nil
}

func (r reader) GetJobByURL(_ context.Context, jobURL string) (*types.Job, error) {
	var found *types.Job
	r.v.eachJob(func(j *types.Job) {
		if j.JobURL == jobURL {
			found = j
		}
	})
	return found.Clone(), nil
}

func (r reader) GetJobBySourceExternalID(_ context.Context, source, externalJobID string) (*types.Job, error) {
	var found *types.Job
	r.v.eachJob(func(j *types.Job) {
		if j.Source != source || j.ExternalJobID == nil || *j.ExternalJobID != externalJobID {
			return
		}
		if found == nil || r.v.order(j.ID) < r.v.order(found.ID) {
			found = j
		}
	})
	return found.Clone(), nil
}

func (r reader) GetJobs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Job, error) {
	out := make(map[uuid.UUID]*types.Job, len(ids))
	for _, id := range ids {
		if j := r.v.job(id); j != nil {
			out[id] = j.Clone()
		}
	}
	return out, nil
}

func (r reader) sortedJobs(match func(*types.Job) bool) []*types.Job {
	var jobs []*types.Job
	r.v.eachJob(func(j *types.Job) {
		if match(j) {
			jobs = append(jobs, j)
		}
	})
	slices.SortFunc(jobs, func(a, b *types.Job) int {
		return cmp.Compare(r.v.order(a.ID), r.v.order(b.ID))
	})
	return jobs
}

func (r reader) ListJobs(_ context.Context, filter types.JobFilter) ([]types.Job, error) {
	jobs := r.sortedJobs(func(j *types.Job) bool { return filter.Matches(j) })

	if filter.Offset > 0 {
		if filter.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[filter.Offset:]
	}
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}

	out := make([]types.Job, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, *j.Clone())
	}
	return out, nil
}

func (r reader) ListJobEmbeddings(_ context.Context) ([]types.JobEmbedding, error) {
	jobs := r.sortedJobs(func(j *types.Job) bool { return j.HasEmbedding() })
	out := make([]types.JobEmbedding, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, types.JobEmbedding{ID: j.ID, Embedding: append([]float32(nil), j.Embedding...)})
	}
	return out, nil
}

func (r reader) GetApplication(_ context.Context, id uuid.UUID) (*types.Application, error) {
	return r.v.app(id).Clone(), nil
}

func (r reader) ListApplications(_ context.Context, filter types.ApplicationFilter) ([]types.Application, error) {
	var apps []*types.Application
	r.v.eachApp(func(a *types.Application) {
		if filter.JobID != uuid.Nil && a.JobID != filter.JobID {
			return
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, a.Status) {
			return
		}
		apps = append(apps, a)
	})
	slices.SortFunc(apps, func(a, b *types.Application) int {
		return cmp.Compare(r.v.order(a.ID), r.v.order(b.ID))
	})
	if filter.Limit > 0 && len(apps) > filter.Limit {
		apps = apps[:filter.Limit]
	}

	out := make([]types.Application, 0, len(apps))
	for _, a := range apps {
		out = append(out, *a.Clone())
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

// memTx buffers writes. A nil map value marks a deletion.
type memTx struct {
	reader
	base *memData
	jobs map[uuid.UUID]*types.Job
	apps map[uuid.UUID]*types.Application
	seq  map[uuid.UUID]uint64
	next uint64
	now  func() time.Time
}

func (t *memTx) job(id uuid.UUID) *types.Job {
	if j, ok := t.jobs[id]; ok {
		return j
	}
	return t.base.jobs[id]
}

func (t *memTx) eachJob(fn func(*types.Job)) {
	for id, j := range t.base.jobs {
		if _, overridden := t.jobs[id]; !overridden {
			fn(j)
		}
	}
	for _, j := range t.jobs {
		if j != nil {
			fn(j)
		}
	}
}

func (t *memTx) app(id uuid.UUID) *types.Application {
	if a, ok := t.apps[id]; ok {
		return a
	}
	return t.base.apps[id]
}

func (t *memTx) eachApp(fn func(*types.Application)) {
	for id, a := range t.base.apps {
		if _, overridden := t.apps[id]; !overridden {
			fn(a)
		}
	}
	for _, a := range t.apps {
		if a != nil {
			fn(a)
		}
	}
}

func (t *memTx) order(id uuid.UUID) uint64 {
	if s, ok := t.seq[id]; ok {
		return s
	}
	return t.base.seq[id]
}

func (t *memTx) commit() {
	for id, j := range t.jobs {
		if j == nil {
			delete(t.base.jobs, id)
			delete(t.base.seq, id)
			continue
		}
		t.base.jobs[id] = j
	}
	for id, a := range t.apps {
		if a == nil {
			delete(t.base.apps, id)
			delete(t.base.seq, id)
			continue
		}
		t.base.apps[id] = a
	}
	for id, s := range t.seq {
		if t.base.jobs[id] != nil || t.base.apps[id] != nil {
			t.base.seq[id] = s
		}
	}
	t.base.nextSeq = t.next
}

func (t *memTx) assignSeq(id uuid.UUID) {
	t.seq[id] = t.next
	t.next++
}

// mutableJob returns a private copy of a job that the transaction may modify
func (t *memTx) mutableJob(id uuid.UUID) (*types.Job, error) {
	j := t.job(id)
	if j == nil {
		return nil, &types.ErrNotFound{Entity: "job", ID: id}
	}
	if owned, ok := t.jobs[id]; ok && owned != nil {
		return owned, nil
	}
	c := j.Clone()
	t.jobs[id] = c
	return c, nil
}

func (t *memTx) putJob(j *types.Job) error {
	if err := j.CheckInvariant(); err != nil {
		return err
	}
	j.UpdatedAt = t.now()
	t.jobs[j.ID] = j
	return nil
}

func (t *memTx) LockJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	return t.GetJob(ctx, id)
}

func (t *memTx) LockApplication(ctx context.Context, id uuid.UUID) (*types.Application, error) {
	return t.GetApplication(ctx, id)
}

func (t *memTx) InsertJob(ctx context.Context, job *types.Job) error {
	if existing, _ := t.GetJobByURL(ctx, job.JobURL); existing != nil {
		return &types.ErrDuplicateKey{Key: types.DedupKeyJobURL, Value: job.JobURL}
	}
	if job.ExternalJobID != nil {
		if existing, _ := t.GetJobBySourceExternalID(ctx, job.Source, *job.ExternalJobID); existing != nil {
			return &types.ErrDuplicateKey{Key: types.DedupKeySourceExternalID, Value: job.Source + ":" + *job.ExternalJobID}
		}
	}

	now := t.now()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = types.JobStatusNew
	}
	if job.ScrapedAt.IsZero() {
		job.ScrapedAt = now
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	if err := job.CheckInvariant(); err != nil {
		return err
	}

	t.jobs[job.ID] = job.Clone()
	t.assignSeq(job.ID)
	return nil
}

func (t *memTx) UpdateJobContent(_ context.Context, id uuid.UUID, update types.JobUpdate) error {
	j, err := t.mutableJob(id)
	if err != nil {
		return err
	}
	j.Description = update.Description
	if update.Requirements != nil {
		j.Requirements = update.Requirements
	}
	if update.Location != nil {
		j.Location = update.Location
	}
	if update.SalaryMin != nil {
		j.SalaryMin = update.SalaryMin
	}
	if update.SalaryMax != nil {
		j.SalaryMax = update.SalaryMax
	}
	if update.PostedDate != nil {
		j.PostedDate = update.PostedDate
	}
	return t.putJob(j)
}

func (t *memTx) SetJobMatch(_ context.Context, id uuid.UUID, match types.JobMatch, status types.JobStatus) error {
	if err := types.CheckEmbedding(match.Embedding); err != nil {
		return err
	}
	j, err := t.mutableJob(id)
	if err != nil {
		return err
	}
	score := match.MatchScore
	fingerprint := match.ResumeFingerprint
	j.Embedding = append([]float32(nil), match.Embedding...)
	j.MatchScore = &score
	j.ResumeFingerprint = &fingerprint
	j.LastEmbeddingErr = nil
	j.Status = status
	return t.putJob(j)
}

func (t *memTx) SetJobStatus(_ context.Context, id uuid.UUID, status types.JobStatus) error {
	j, err := t.mutableJob(id)
	if err != nil {
		return err
	}
	j.Status = status
	return t.putJob(j)
}

func (t *memTx) RecordEmbeddingFailure(_ context.Context, id uuid.UUID, message string) error {
	j, err := t.mutableJob(id)
	if err != nil {
		return err
	}
	j.EmbeddingAttempts++
	j.LastEmbeddingErr = &message
	return t.putJob(j)
}

func (t *memTx) DeleteJob(_ context.Context, id uuid.UUID) (bool, error) {
	if t.job(id) == nil {
		return false, nil
	}
	var cascade []uuid.UUID
	t.eachApp(func(a *types.Application) {
		if a.JobID == id {
			cascade = append(cascade, a.ID)
		}
	})
	for _, appID := range cascade {
		t.apps[appID] = nil
	}
	t.jobs[id] = nil
	return true, nil
}

func (t *memTx) ActiveApplication(_ context.Context, jobID uuid.UUID) (*types.Application, error) {
	var active *types.Application
	t.eachApp(func(a *types.Application) {
		if a.JobID == jobID && a.Status.IsActive() {
			active = a
		}
	})
	return active.Clone(), nil
}

func (t *memTx) CountApplications(_ context.Context, jobID uuid.UUID) (int, error) {
	n := 0
	t.eachApp(func(a *types.Application) {
		if a.JobID == jobID {
			n++
		}
	})
	return n, nil
}

func (t *memTx) InsertApplication(ctx context.Context, app *types.Application) error {
	if t.job(app.JobID) == nil {
		return &types.ErrNotFound{Entity: "job", ID: app.JobID}
	}
	if app.Status.IsActive() {
		if active, _ := t.ActiveApplication(ctx, app.JobID); active != nil {
			return &types.ErrConflict{JobID: app.JobID, ApplicationID: active.ID}
		}
	}

	now := t.now()
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	if app.ApplicationDate.IsZero() {
		app.ApplicationDate = now
	}
	app.CreatedAt = now
	if err := app.CheckInvariant(); err != nil {
		return err
	}

	t.apps[app.ID] = app.Clone()
	t.assignSeq(app.ID)
	return nil
}

func (t *memTx) SaveApplication(ctx context.Context, app *types.Application) error {
	current := t.app(app.ID)
	if current == nil {
		return &types.ErrNotFound{Entity: "application", ID: app.ID}
	}
	if err := app.CheckInvariant(); err != nil {
		return err
	}
	if app.Status.IsActive() && !current.Status.IsActive() {
		if active, _ := t.ActiveApplication(ctx, current.JobID); active != nil {
			return &types.ErrConflict{JobID: current.JobID, ApplicationID: active.ID}
		}
	}

	next := app.Clone()
	next.JobID = current.JobID
	next.CompanyName = current.CompanyName
	next.JobTitle = current.JobTitle
	next.JobURL = current.JobURL
	next.ApplicationDate = current.ApplicationDate
	next.CreatedAt = current.CreatedAt
	t.apps[app.ID] = next
	return nil
}
