package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/data-augmenter/internal/dispatch"
	"github.com/jonathan/data-augmenter/internal/ingestion"
	"github.com/jonathan/data-augmenter/internal/pipeline"
	"github.com/jonathan/data-augmenter/internal/schemas"
	"github.com/jonathan/data-augmenter/internal/storage"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// fromValidator converts the first validator failure into an ErrValidation
func fromValidator(errs validator.ValidationErrors) *ErrValidation {
	if len(errs) == 0 {
		return &ErrValidation{Message: "invalid request"}
	}
	fe := errs[0]
	// Namespace starts with the root struct name, which clients never see.
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	msg := fmt.Sprintf("failed %q check", fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("failed %q check (%s)", fe.Tag(), fe.Param())
	}
	return &ErrValidation{Field: field, Message: msg}
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr *ErrValidation
		schemaErr     *schemas.ValidationError
		fieldErrs     validator.ValidationErrors
		parseErr      *ingestion.ParseError
	)
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.Is(err, pipeline.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrFinished), errors.Is(err, pipeline.ErrNotFinished), errors.Is(err, dispatch.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, pipeline.ErrInvalidRequest),
		errors.As(err, &validationErr),
		errors.As(err, &schemaErr),
		errors.As(err, &fieldErrs),
		errors.As(err, &parseErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
