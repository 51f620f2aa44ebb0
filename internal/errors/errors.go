package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeInvalidFileType   ErrorType = "invalid_file_type"
	ErrorTypeFileTooLarge      ErrorType = "file_too_large"
	ErrorTypePreviewDecode     ErrorType = "preview_decode"
	ErrorTypeNetwork           ErrorType = "network"
	ErrorTypeServer            ErrorType = "server"
	ErrorTypeMalformedResponse ErrorType = "malformed_response"
	ErrorTypeBusy              ErrorType = "busy"
	ErrorTypeNoSelection       ErrorType = "no_selection"
	ErrorTypeNoResults         ErrorType = "no_results"
	ErrorTypeInternal          ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// UserMessage is the text shown to the user for this error.
// Server errors carry the server-supplied message verbatim.
func (e *AppError) UserMessage() string {
	switch e.Type {
	case ErrorTypeServer:
		return e.Message
	case ErrorTypeNetwork:
		if e.Cause != nil {
			return fmt.Sprintf("Error analyzing image: %v", e.Cause)
		}
		return "Error analyzing image: " + e.Message
	default:
		return e.Message
	}
}

func newError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewInvalidFileTypeError reports a MIME type outside the allow-list
func NewInvalidFileTypeError(mimeType string) *AppError {
	e := newError(ErrorTypeInvalidFileType, http.StatusUnsupportedMediaType,
		"Please upload a valid image file (PNG, JPG, JPEG, BMP, TIFF)", nil)
	e.Details = mimeType
	return e
}

// NewFileTooLargeError reports a file over the size limit
func NewFileTooLargeError(size, limit int64) *AppError {
	e := newError(ErrorTypeFileTooLarge, http.StatusRequestEntityTooLarge,
		"File size must be less than 16MB", nil)
	e.Details = fmt.Sprintf("size=%d limit=%d", size, limit)
	return e
}

// NewPreviewDecodeError is non-fatal; the selection stays usable
func NewPreviewDecodeError(cause error) *AppError {
	return newError(ErrorTypePreviewDecode, http.StatusOK, "preview could not be decoded", cause)
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return newError(ErrorTypeNetwork, http.StatusBadGateway, message, cause)
}

// NewServerError carries the message the analysis server returned
func NewServerError(message string) *AppError {
	return newError(ErrorTypeServer, http.StatusBadGateway, message, nil)
}

// NewMalformedResponseError reports a response that does not match the contract
func NewMalformedResponseError(message string, cause error) *AppError {
	return newError(ErrorTypeMalformedResponse, http.StatusBadGateway, message, cause)
}

// NewBusyError rejects an action while an analysis is in flight
func NewBusyError(action string) *AppError {
	return newError(ErrorTypeBusy, http.StatusConflict,
		fmt.Sprintf("cannot %s while an analysis is in progress", action), nil)
}

// NewNoSelectionError rejects a submission without a selected file
func NewNoSelectionError() *AppError {
	return newError(ErrorTypeNoSelection, http.StatusConflict, "no image selected", nil)
}

// NewNoResultsError reports a read of the results region before any result
func NewNoResultsError() *AppError {
	return newError(ErrorTypeNoResults, http.StatusNotFound, "no analysis results to show", nil)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// As extracts an *AppError from an error chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := As(err); ok {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
