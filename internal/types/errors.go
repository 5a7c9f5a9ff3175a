package types

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// ErrValidation indicates malformed input that must be rejected, not persisted
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrConflict indicates an active application already exists for a job
type ErrConflict struct {
	JobID         uuid.UUID
	ApplicationID uuid.UUID
	Message       string
}

func (e *ErrConflict) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("conflict for job %s: %s", e.JobID, e.Message)
	}
	if e.ApplicationID != uuid.Nil {
		return fmt.Sprintf("job %s already has active application %s", e.JobID, e.ApplicationID)
	}
	return fmt.Sprintf("job %s already has an active application", e.JobID)
}

// Dedup keys reported by ErrDuplicateKey
const (
	DedupKeyJobURL           = "job_url"
	DedupKeySourceExternalID = "source_external_job_id"
)

// ErrDuplicateKey indicates a uniqueness constraint on a dedup key rejected a write
type ErrDuplicateKey struct {
	Key   string
	Value string
}

func (e *ErrDuplicateKey) Error() string {
	return fmt.Sprintf("duplicate %s: %s", e.Key, e.Value)
}

// ErrInvalidState indicates an operation attempted against the wrong job or application state
type ErrInvalidState struct {
	Entity    string
	ID        uuid.UUID
	State     string
	Operation string
}

func (e *ErrInvalidState) Error() string {
	return fmt.Sprintf("%s %s is %q: cannot %s", e.Entity, e.ID, e.State, e.Operation)
}

// ErrPrecondition indicates submit was called before the required artifacts were attached
type ErrPrecondition struct {
	ApplicationID uuid.UUID
	Missing       []string
}

func (e *ErrPrecondition) Error() string {
	return fmt.Sprintf("application %s is missing required artifacts: %s",
		e.ApplicationID, strings.Join(e.Missing, ", "))
}

// ErrDimensionMismatch indicates an embedding of the wrong length
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// ErrNotFound indicates a missing job or application
type ErrNotFound struct {
	Entity string
	ID     uuid.UUID
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ErrEmbeddingUnavailable indicates a transient embedding provider failure.
// The job stays in status new and may be retried.
type ErrEmbeddingUnavailable struct {
	JobID uuid.UUID
	Cause error
}

func (e *ErrEmbeddingUnavailable) Error() string {
	return fmt.Sprintf("embedding unavailable for job %s: %v", e.JobID, e.Cause)
}

func (e *ErrEmbeddingUnavailable) Unwrap() error {
	return e.Cause
}

// CheckDimension returns ErrDimensionMismatch unless v has EmbeddingDimension entries
func CheckDimension(v []float32) error {
	if len(v) != EmbeddingDimension {
		return &ErrDimensionMismatch{Expected: EmbeddingDimension, Got: len(v)}
	}
	return nil
}

// CheckFinite rejects vectors holding NaN or infinite components
func CheckFinite(v []float32) error {
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return &ErrValidation{Field: "embedding", Message: fmt.Sprintf("component %d is not finite", i)}
		}
	}
	return nil
}

// CheckEmbedding verifies both the length and the components of an embedding
func CheckEmbedding(v []float32) error {
	if err := CheckDimension(v); err != nil {
		return err
	}
	return CheckFinite(v)
}
