package types

import (
	"time"

	"github.com/google/uuid"
)

// ApplicationStatus tracks an application attempt
type ApplicationStatus string

// Application status constants
const (
	ApplicationStatusDraft     ApplicationStatus = "draft"
	ApplicationStatusSubmitted ApplicationStatus = "submitted"
	ApplicationStatusFailed    ApplicationStatus = "failed"
)

// IsActive reports whether an application in this status blocks a new one for the same job
func (s ApplicationStatus) IsActive() bool {
	return s == ApplicationStatusDraft || s == ApplicationStatusSubmitted
}

// IsTerminal reports whether no further transitions are possible
func (s ApplicationStatus) IsTerminal() bool {
	return s == ApplicationStatusSubmitted || s == ApplicationStatusFailed
}

// Application represents one attempt to apply to a job.
// CompanyName, JobTitle and JobURL are copied from the job at creation and never change.
type Application struct {
	ID    uuid.UUID `json:"id"`
	JobID uuid.UUID `json:"job_id"`

	// Snapshot of the job at creation time
	CompanyName string `json:"company_name"`
	JobTitle    string `json:"job_title"`
	JobURL      string `json:"job_url"`

	// Generated artifacts
	ResumePath      *string `json:"resume_path,omitempty"`
	ResumeText      *string `json:"resume_text,omitempty"`
	CoverLetterPath *string `json:"cover_letter_path,omitempty"`
	CoverLetterText *string `json:"cover_letter_text,omitempty"`
	ScreenshotPath  *string `json:"screenshot_path,omitempty"`

	Status          ApplicationStatus `json:"status"`
	ApplicationDate time.Time         `json:"application_date"`
	SubmittedAt     *time.Time        `json:"submitted_at,omitempty"`
	Notes           *string           `json:"notes,omitempty"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// HasResume reports whether a resume artifact is attached
func (a *Application) HasResume() bool {
	return a.ResumePath != nil || a.ResumeText != nil
}

// HasCoverLetter reports whether a cover letter artifact is attached
func (a *Application) HasCoverLetter() bool {
	return a.CoverLetterPath != nil || a.CoverLetterText != nil
}

// Submittable reports whether the application is a draft with both documents attached
func (a *Application) Submittable() bool {
	return a.Status == ApplicationStatusDraft && a.HasResume() && a.HasCoverLetter()
}

// Clone returns a deep copy of the application
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	c.ResumePath = cloneString(a.ResumePath)
	c.ResumeText = cloneString(a.ResumeText)
	c.CoverLetterPath = cloneString(a.CoverLetterPath)
	c.CoverLetterText = cloneString(a.CoverLetterText)
	c.ScreenshotPath = cloneString(a.ScreenshotPath)
	c.Notes = cloneString(a.Notes)
	c.ErrorMessage = cloneString(a.ErrorMessage)
	if a.SubmittedAt != nil {
		v := *a.SubmittedAt
		c.SubmittedAt = &v
	}
	return &c
}

// ApplicationFilter narrows application listings
type ApplicationFilter struct {
	JobID    uuid.UUID
	Statuses []ApplicationStatus
	Limit    int
}

// ArtifactKind identifies a generated artifact slot on an application
type ArtifactKind string

// Artifact kinds
const (
	ArtifactResume      ArtifactKind = "resume"
	ArtifactCoverLetter ArtifactKind = "cover_letter"
	ArtifactScreenshot  ArtifactKind = "screenshot"
)

// CheckInvariant verifies submitted_at is set iff submitted and error_message iff failed
func (a *Application) CheckInvariant() error {
	switch a.Status {
	case ApplicationStatusDraft, ApplicationStatusSubmitted, ApplicationStatusFailed:
	default:
		return &ErrInvalidState{Entity: "application", ID: a.ID, State: string(a.Status), Operation: "validate"}
	}
	if (a.Status == ApplicationStatusSubmitted) != (a.SubmittedAt != nil) {
		return &ErrInvalidState{Entity: "application", ID: a.ID, State: string(a.Status), Operation: "validate: submitted_at"}
	}
	if (a.Status == ApplicationStatusFailed) != (a.ErrorMessage != nil) {
		return &ErrInvalidState{Entity: "application", ID: a.ID, State: string(a.Status), Operation: "validate: error_message"}
	}
	return nil
}
