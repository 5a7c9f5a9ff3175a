package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/types"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error         string     `json:"error"`
	ApplicationID *uuid.UUID `json:"application_id,omitempty"`
	Missing       []string   `json:"missing,omitempty"`
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation  *types.ErrValidation
		conflict    *types.ErrConflict
		duplicate   *types.ErrDuplicateKey
		state       *types.ErrInvalidState
		precond     *types.ErrPrecondition
		dimension   *types.ErrDimensionMismatch
		notFound    *types.ErrNotFound
		unavailable *types.ErrEmbeddingUnavailable
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &dimension):
		return http.StatusBadRequest
	case errors.As(err, &conflict), errors.As(err, &duplicate):
		return http.StatusConflict
	case errors.As(err, &state):
		return http.StatusUnprocessableEntity
	case errors.As(err, &precond):
		return http.StatusPreconditionFailed
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody builds the response body for err, adding the fields clients act on
func errorBody(err error) ErrorResponse {
	body := ErrorResponse{Error: err.Error()}

	var conflict *types.ErrConflict
	if errors.As(err, &conflict) && conflict.ApplicationID != uuid.Nil {
		id := conflict.ApplicationID
		body.ApplicationID = &id
	}
	var precond *types.ErrPrecondition
	if errors.As(err, &precond) {
		body.Missing = precond.Missing
	}
	return body
}
