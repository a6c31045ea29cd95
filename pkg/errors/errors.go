// Package errors provides structured error handling for the application.
// AppError carries a numeric code, a short message, the raw remote payload
// (when there is one) and the underlying cause.
package errors

import (
	"errors"
	"fmt"
)

// Error codes organized by category
const (
	// General errors (1000-1099)
	CodeSuccess       = 0
	CodeUnknown       = 1000
	CodeInvalidParams = 1001
	CodeNotFound      = 1002
	CodeUnauthorized  = 1003
	CodeCanceled      = 1004
	CodeBusy          = 1005

	// Summarization errors (1100-1199)
	CodeSummarySubmit    = 1100
	CodeSummaryFailed    = 1101
	CodeSummaryTimeout   = 1102
	CodeSummaryCache     = 1103
	CodeSummaryTransport = 1104

	// Text generation errors (1200-1299)
	CodeTextGenFailed = 1200
	CodeTextGenEmpty  = 1201

	// Browser session / stage errors (1300-1399)
	CodeSessionStart = 1300
	CodeStageFailed  = 1301
	CodeStageTimeout = 1302

	// Artifact errors (1400-1499)
	CodeArtifactTimeout   = 1400
	CodeWatchDirMissing   = 1401
	CodeArtifactMove      = 1402
	CodeArtifactCollision = 1403
	CodeArtifactPublish   = 1404

	// Storage errors (1500-1599)
	CodeDBError        = 1500
	CodeFileNotFound   = 1501
	CodeFileWriteError = 1502

	// Configuration errors (1600-1699)
	CodeConfigInvalid      = 1600
	CodeMissingCredentials = 1601
)

// AppError represents a structured application error
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code int, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithDetail wraps an error with additional detail, usually the raw
// response body of a remote call.
func WrapWithDetail(code int, message string, detail string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Detail:  detail,
		Cause:   cause,
	}
}

// Is checks if the target error is an AppError with the specified code
func Is(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode extracts error code from error, returns CodeUnknown if not AppError
func GetCode(err error) int {
	if err == nil {
		return CodeSuccess
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetMessage extracts message from error
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// GetDetail returns the detail of the first AppError in the chain.
func GetDetail(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Detail
	}
	return ""
}

// IsTimeout reports whether err is one of the timeout flavoured codes, so
// callers can tell "try again with a bigger budget" apart from hard failures.
func IsTimeout(err error) bool {
	switch GetCode(err) {
	case CodeSummaryTimeout, CodeStageTimeout, CodeArtifactTimeout:
		return true
	}
	return false
}

// IsFatal reports whether err must abort a run before any step executes.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeConfigInvalid, CodeMissingCredentials, CodeWatchDirMissing, CodeSessionStart:
		return true
	}
	return false
}

// Predefined common errors
var (
	ErrInvalidParams = New(CodeInvalidParams, "invalid parameters")
	ErrNotFound      = New(CodeNotFound, "resource not found")
	ErrUnauthorized  = New(CodeUnauthorized, "unauthorized")

	ErrDBError      = New(CodeDBError, "database error")
	ErrFileNotFound = New(CodeFileNotFound, "file not found")

	ErrMissingCredentials = New(CodeMissingCredentials, "missing credentials")
)
