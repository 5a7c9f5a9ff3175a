// Package types provides the domain types shared by the matching and application packages.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingDimension is the fixed length of every job and resume embedding.
const EmbeddingDimension = 1536

// JobStatus tracks a job through the pipeline
type JobStatus string

// Job status constants
const (
	JobStatusNew       JobStatus = "new"
	JobStatusProcessed JobStatus = "processed"
	JobStatusApplied   JobStatus = "applied"
	JobStatusRejected  JobStatus = "rejected"
)

// Valid reports whether s is a known job status
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusNew, JobStatusProcessed, JobStatusApplied, JobStatusRejected:
		return true
	}
	return false
}

// HasEmbedding reports whether jobs in this status must carry an embedding and score
func (s JobStatus) HasEmbedding() bool {
	return s == JobStatusProcessed || s == JobStatusApplied || s == JobStatusRejected
}

// Job represents a scraped job listing
type Job struct {
	ID            uuid.UUID  `json:"id"`
	ExternalJobID *string    `json:"external_job_id,omitempty"`
	Source        string     `json:"source"`
	CompanyName   string     `json:"company_name"`
	JobTitle      string     `json:"job_title"`
	JobURL        string     `json:"job_url"`
	Location      *string    `json:"location,omitempty"`
	SalaryMin     *int       `json:"salary_min,omitempty"`
	SalaryMax     *int       `json:"salary_max,omitempty"`
	Description   string     `json:"job_description"`
	Requirements  *string    `json:"requirements,omitempty"`
	PostedDate    *time.Time `json:"posted_date,omitempty"`
	ScrapedAt     time.Time  `json:"scraped_at"`

	// Matching fields. Embedding and MatchScore are both nil while Status is new.
	Embedding         []float32 `json:"-"`
	MatchScore        *float64  `json:"match_score,omitempty"`
	ResumeFingerprint *string   `json:"resume_fingerprint,omitempty"`
	EmbeddingAttempts int       `json:"embedding_attempts"`
	LastEmbeddingErr  *string   `json:"last_embedding_error,omitempty"`

	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasEmbedding reports whether the job carries an embedding
func (j *Job) HasEmbedding() bool {
	return len(j.Embedding) > 0
}

// IsStale reports whether the stored score was computed against a different resume
func (j *Job) IsStale(fingerprint string) bool {
	if j.MatchScore == nil {
		return true
	}
	return j.ResumeFingerprint == nil || *j.ResumeFingerprint != fingerprint
}

// CheckInvariant verifies the status/embedding/score coupling and the salary
// range of a job
func (j *Job) CheckInvariant() error {
	if !j.Status.Valid() {
		return &ErrInvalidState{Entity: "job", ID: j.ID, State: string(j.Status), Operation: "validate"}
	}
	if j.SalaryMin != nil && j.SalaryMax != nil && *j.SalaryMin > *j.SalaryMax {
		return &ErrInvalidState{Entity: "job", ID: j.ID, State: string(j.Status), Operation: "validate: salary_min exceeds salary_max"}
	}
	hasEmbedding := j.HasEmbedding()
	hasScore := j.MatchScore != nil
	if j.Status.HasEmbedding() {
		if !hasEmbedding || !hasScore {
			return &ErrInvalidState{Entity: "job", ID: j.ID, State: string(j.Status), Operation: "validate: missing embedding or score"}
		}
		return nil
	}
	if hasEmbedding || hasScore {
		return &ErrInvalidState{Entity: "job", ID: j.ID, State: string(j.Status), Operation: "validate: unexpected embedding or score"}
	}
	return nil
}

// Clone returns a deep copy of the job
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.ExternalJobID = cloneString(j.ExternalJobID)
	c.Location = cloneString(j.Location)
	c.Requirements = cloneString(j.Requirements)
	c.ResumeFingerprint = cloneString(j.ResumeFingerprint)
	c.LastEmbeddingErr = cloneString(j.LastEmbeddingErr)
	if j.SalaryMin != nil {
		v := *j.SalaryMin
		c.SalaryMin = &v
	}
	if j.SalaryMax != nil {
		v := *j.SalaryMax
		c.SalaryMax = &v
	}
	if j.PostedDate != nil {
		v := *j.PostedDate
		c.PostedDate = &v
	}
	if j.MatchScore != nil {
		v := *j.MatchScore
		c.MatchScore = &v
	}
	if j.Embedding != nil {
		c.Embedding = append([]float32(nil), j.Embedding...)
	}
	return &c
}

// JobUpdate holds the fields the deduplication gate merges into an existing job
type JobUpdate struct {
	Description  string
	Requirements *string
	Location     *string
	SalaryMin    *int
	SalaryMax    *int
	PostedDate   *time.Time
}

// JobMatch is the result of scoring a job against a resume
type JobMatch struct {
	Embedding         []float32
	MatchScore        float64
	ResumeFingerprint string
}

// JobFilter narrows job listings
type JobFilter struct {
	Statuses []JobStatus
	Source   string
	// ExcludeFingerprint drops jobs already scored against this resume fingerprint
	ExcludeFingerprint string
	// MaxEmbeddingAttempts drops jobs with at least this many failed embedding attempts (0 = no limit)
	MaxEmbeddingAttempts int
	Limit                int
	Offset               int
}

// Matches reports whether j passes the filter, ignoring Limit and Offset
func (f JobFilter) Matches(j *Job) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if j.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Source != "" && j.Source != f.Source {
		return false
	}
	if f.ExcludeFingerprint != "" && j.ResumeFingerprint != nil && *j.ResumeFingerprint == f.ExcludeFingerprint {
		return false
	}
	if f.MaxEmbeddingAttempts > 0 && j.EmbeddingAttempts >= f.MaxEmbeddingAttempts {
		return false
	}
	return true
}

// JobEmbedding pairs a job id with its stored embedding
type JobEmbedding struct {
	ID        uuid.UUID
	Embedding []float32
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
