// Package errors carries the coded failures of the workflow engine: step
// faults, provider answers the engine cannot use, and store outages. The
// status API renders them as {code, message, params}.
//
// Import Path: dbaas.io/workflow/internal/pkg/errors
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a coded failure raised by a step, a provider client or the
// store. HTTPStatus only matters when it reaches the status API.
type AppError struct {
	// Code is a machine-readable error code (e.g., "RESTORE_NOT_FOUND").
	Code string `json:"code"`

	// Message names the object involved (host, app, environment).
	Message string `json:"message"`

	// HTTPStatus is used by the error middleware.
	HTTPStatus int `json:"-"`

	// Params carries structured context (environment, step, rule id).
	Params map[string]interface{} `json:"params,omitempty"`

	// Err is the cause: a transport error, a store error, a sentinel.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// WithParams attaches structured parameters to the error.
func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// NotFound creates a 404 error.
func NotFound(code, message string) *AppError {
	return New(code, message, http.StatusNotFound)
}

// BadRequest creates a 400 error.
func BadRequest(code, message string) *AppError {
	return New(code, message, http.StatusBadRequest)
}

// Upstream creates a 502 error for a provider that answered with something
// the engine cannot act on.
func Upstream(code, message string) *AppError {
	return New(code, message, http.StatusBadGateway)
}

// Unavailable wraps a failed call to the store or a provider as a 503.
func Unavailable(err error, code, message string) *AppError {
	return Wrap(err, code, message, http.StatusServiceUnavailable)
}

// IsAppError returns the first AppError in err's chain, including errors
// joined by a rollback.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err wraps an AppError carrying code.
func HasCode(err error, code string) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}
