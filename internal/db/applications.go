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
)

// -----------------------------------------------------------------------------
// Application Queries
// -----------------------------------------------------------------------------

var applicationColumns = []string{
	"id", "job_id", "company_name", "job_title", "job_url",
	"resume_path", "resume_text", "cover_letter_path", "cover_letter_text", "screenshot_path",
	"status", "application_date", "submitted_at", "notes", "error_message", "created_at",
}

var applicationSelect = "SELECT " + strings.Join(applicationColumns, ", ") + " FROM applications"

func scanApplication(row rowScanner) (*types.Application, error) {
	var a types.Application
	var status string

	err := row.Scan(&a.ID, &a.JobID, &a.CompanyName, &a.JobTitle, &a.JobURL,
		&a.ResumePath, &a.ResumeText, &a.CoverLetterPath, &a.CoverLetterText, &a.ScreenshotPath,
		&status, &a.ApplicationDate, &a.SubmittedAt, &a.Notes, &a.ErrorMessage, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	a.Status = types.ApplicationStatus(status)
	return &a, nil
}

func (q queries) getApplication(ctx context.Context, query string, args ...any) (*types.Application, error) {
	app, err := scanApplication(q.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

// GetApplication retrieves an application by ID
func (q queries) GetApplication(ctx context.Context, id uuid.UUID) (*types.Application, error) {
	return q.getApplication(ctx, applicationSelect+" WHERE id = $1", id)
}

// buildListApplicationsQuery translates a filter into SQL
func buildListApplicationsQuery(filter types.ApplicationFilter) (string, []any, error) {
	query := psql.Select(applicationColumns...).From("applications").OrderBy("seq")

	if filter.JobID != uuid.Nil {
		query = query.Where(sq.Eq{"job_id": filter.JobID.String()})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query = query.Where(sq.Eq{"status": statuses})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	return query.ToSql()
}

// ListApplications lists applications matching filter, oldest first
func (q queries) ListApplications(ctx context.Context, filter types.ApplicationFilter) ([]types.Application, error) {
	query, args, err := buildListApplicationsQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build application query: %w", err)
	}

	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []types.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applications: %w", err)
	}
	return apps, nil
}

// -----------------------------------------------------------------------------
// Application Writes (transaction only)
// -----------------------------------------------------------------------------

// LockApplication reads an application with SELECT ... FOR UPDATE
func (t *tx) LockApplication(ctx context.Context, id uuid.UUID) (*types.Application, error) {
	return t.getApplication(ctx, applicationSelect+" WHERE id = $1 FOR UPDATE", id)
}

// ActiveApplication returns the draft or submitted application for a job, if any
func (t *tx) ActiveApplication(ctx context.Context, jobID uuid.UUID) (*types.Application, error) {
	return t.getApplication(ctx, applicationSelect+" WHERE job_id = $1 AND status <> 'failed' LIMIT 1", jobID)
}

// CountApplications counts every application ever created for a job
func (t *tx) CountApplications(ctx context.Context, jobID uuid.UUID) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM applications WHERE job_id = $1`, jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	return n, nil
}

// InsertApplication creates an application row
func (t *tx) InsertApplication(ctx context.Context, app *types.Application) error {
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	if err := app.CheckInvariant(); err != nil {
		return err
	}

	var applicationDate any
	if !app.ApplicationDate.IsZero() {
		applicationDate = app.ApplicationDate
	}

	err := t.q.QueryRow(ctx,
		`INSERT INTO applications (id, job_id, company_name, job_title, job_url,
		                           resume_path, resume_text, cover_letter_path, cover_letter_text, screenshot_path,
		                           status, application_date, submitted_at, notes, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()), $13, $14, $15)
		 RETURNING application_date, created_at`,
		app.ID, app.JobID, app.CompanyName, app.JobTitle, app.JobURL,
		app.ResumePath, app.ResumeText, app.CoverLetterPath, app.CoverLetterText, app.ScreenshotPath,
		string(app.Status), applicationDate, app.SubmittedAt, app.Notes, app.ErrorMessage,
	).Scan(&app.ApplicationDate, &app.CreatedAt)
	if err != nil {
		err = translateError(err)
		var conflict *types.ErrConflict
		if errors.As(err, &conflict) {
			conflict.JobID = app.JobID
			return conflict
		}
		var notFound *types.ErrNotFound
		if errors.As(err, &notFound) {
			notFound.ID = app.JobID
			return notFound
		}
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// SaveApplication writes the mutable columns of an application
func (t *tx) SaveApplication(ctx context.Context, app *types.Application) error {
	if err := app.CheckInvariant(); err != nil {
		return err
	}

	tag, err := t.q.Exec(ctx,
		`UPDATE applications SET
		     resume_path = $2,
		     resume_text = $3,
		     cover_letter_path = $4,
		     cover_letter_text = $5,
		     screenshot_path = $6,
		     status = $7,
		     submitted_at = $8,
		     notes = $9,
		     error_message = $10
		 WHERE id = $1`,
		app.ID, app.ResumePath, app.ResumeText, app.CoverLetterPath, app.CoverLetterText, app.ScreenshotPath,
		string(app.Status), app.SubmittedAt, app.Notes, app.ErrorMessage)
	if err != nil {
		err = translateError(err)
		var conflict *types.ErrConflict
		if errors.As(err, &conflict) {
			conflict.JobID = app.JobID
			return conflict
		}
		return fmt.Errorf("failed to save application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &types.ErrNotFound{Entity: "application", ID: app.ID}
	}
	return nil
}
