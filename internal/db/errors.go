package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonathan/applier/internal/types"
)

// PostgreSQL SQLSTATE codes mapped onto the domain error taxonomy
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// Constraint names from schema.sql
const (
	constraintJobURL            = "jobs_job_url_key"
	constraintSourceExternalID  = "jobs_source_external_id_key"
	constraintOneActivePerJob   = "applications_one_active_per_job"
	constraintApplicationsJobFK = "applications_job_id_fkey"
)

// translateError converts constraint violations into typed domain errors.
// Anything else is returned unchanged.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintJobURL:
			return &types.ErrDuplicateKey{Key: types.DedupKeyJobURL, Value: pgErr.Detail}
		case constraintSourceExternalID:
			return &types.ErrDuplicateKey{Key: types.DedupKeySourceExternalID, Value: pgErr.Detail}
		case constraintOneActivePerJob:
			return &types.ErrConflict{Message: "an active application already exists"}
		}
	case codeForeignKeyViolation:
		if pgErr.ConstraintName == constraintApplicationsJobFK {
			return &types.ErrNotFound{Entity: "job"}
		}
	case codeCheckViolation:
		return &types.ErrInvalidState{Entity: pgErr.TableName, State: pgErr.ConstraintName, Operation: "write"}
	}
	return err
}
