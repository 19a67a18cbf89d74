package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common sentinel errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrInternal     = errors.New("internal error")
)

// Interpretation error taxonomy.
var (
	// ErrStructuralViolation marks an unsupported model construct, such as a
	// multi-typed feature or a malformed expression root.
	ErrStructuralViolation = errors.New("structural violation")

	// ErrConvergence marks an exhausted fixed-point or retry budget.
	ErrConvergence = errors.New("convergence budget exhausted")

	// ErrLookupMiss marks an unknown projection name or type filter.
	ErrLookupMiss = errors.New("lookup miss")

	// ErrOperatorUnsupported marks an operator symbol with no evaluator.
	ErrOperatorUnsupported = errors.New("operator unsupported")
)

// AppError represents an application-specific error with an HTTP status code.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MapError maps a common error to an AppError with an appropriate HTTP status code.
func MapError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return NewAppError(http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLookupMiss):
		return NewAppError(http.StatusNotFound, "Resource not found", err)
	case errors.Is(err, ErrStructuralViolation), errors.Is(err, ErrOperatorUnsupported):
		return NewAppError(http.StatusUnprocessableEntity, "Model not interpretable", err)
	}

	return NewAppError(http.StatusInternalServerError, "Internal server error", err)
}

// IsKnown reports whether err wraps one of the sentinels of this package.
func IsKnown(err error) bool {
	for _, s := range []error{
		ErrInvalidInput, ErrNotFound, ErrInternal,
		ErrStructuralViolation, ErrConvergence, ErrLookupMiss, ErrOperatorUnsupported,
	} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
