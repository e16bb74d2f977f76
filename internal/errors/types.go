package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeMethodNotAllowed ErrorType = "method_not_allowed"
	ErrorTypeBadRequest       ErrorType = "bad_request"
	ErrorTypeTemplate         ErrorType = "template"
	ErrorTypeConfig           ErrorType = "config"
	ErrorTypeIO               ErrorType = "io"
	ErrorTypeInternal         ErrorType = "internal"
)

// FeaspError is a structured error type carrying the HTTP status it maps to.
type FeaspError struct {
	Type    ErrorType
	Code    string
	Message string
	Status  int
	Cause   error
	Context map[string]interface{}

	// Template location, set for template errors.
	Template string
	Line     int
}

// Error implements the error interface.
func (e *FeaspError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Template != "" {
		location := e.Template
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *FeaspError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *FeaspError) Is(target error) bool {
	var t *FeaspError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *FeaspError) WithContext(key string, value interface{}) *FeaspError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation records the template and line an error was raised at.
func (e *FeaspError) WithLocation(template string, line int) *FeaspError {
	e.Template = template
	e.Line = line

	return e
}

// Sentinel values usable with errors.Is.
var (
	ErrNotFound         = &FeaspError{Type: ErrorTypeNotFound, Code: "NOT_FOUND"}
	ErrMethodNotAllowed = &FeaspError{Type: ErrorTypeMethodNotAllowed, Code: "METHOD_NOT_ALLOWED"}
)

// NewNotFound creates a not-found error.
func NewNotFound(message string) *FeaspError {
	return &FeaspError{
		Type:    ErrorTypeNotFound,
		Code:    "NOT_FOUND",
		Message: message,
		Status:  http.StatusNotFound,
	}
}

// NewMethodNotAllowed creates a 405 error for the given method.
func NewMethodNotAllowed(method, path string) *FeaspError {
	return &FeaspError{
		Type:    ErrorTypeMethodNotAllowed,
		Code:    "METHOD_NOT_ALLOWED",
		Message: fmt.Sprintf("method %s not allowed for %s", method, path),
		Status:  http.StatusMethodNotAllowed,
	}
}

// NewBadRequest creates a 400 error.
func NewBadRequest(code, message string, cause error) *FeaspError {
	return &FeaspError{
		Type:    ErrorTypeBadRequest,
		Code:    code,
		Message: message,
		Status:  http.StatusBadRequest,
		Cause:   cause,
	}
}

// NewTemplateError creates a template parse or render error.
func NewTemplateError(code, message string, cause error) *FeaspError {
	return &FeaspError{
		Type:    ErrorTypeTemplate,
		Code:    code,
		Message: message,
		Status:  http.StatusInternalServerError,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *FeaspError {
	return &FeaspError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

// NewInternal creates an internal error.
func NewInternal(message string, cause error) *FeaspError {
	return &FeaspError{
		Type:    ErrorTypeInternal,
		Code:    "INTERNAL",
		Message: message,
		Status:  http.StatusInternalServerError,
		Cause:   cause,
	}
}

// Wrap wraps err as a FeaspError of the given type. An existing FeaspError
// keeps its status and template location.
func Wrap(err error, errType ErrorType, code, message string) *FeaspError {
	if err == nil {
		return nil
	}

	wrapped := &FeaspError{
		Type:    errType,
		Code:    code,
		Message: message,
		Status:  http.StatusInternalServerError,
		Cause:   err,
	}

	var fe *FeaspError
	if errors.As(err, &fe) {
		if fe.Status != 0 {
			wrapped.Status = fe.Status
		}
		wrapped.Template = fe.Template
		wrapped.Line = fe.Line
	}

	return wrapped
}

// StatusOf returns the HTTP status an error maps to. Errors that are not
// FeaspErrors map to 500.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var fe *FeaspError
	if errors.As(err, &fe) && fe.Status != 0 {
		return fe.Status
	}

	return http.StatusInternalServerError
}

// IsType reports whether any error in err's chain is a FeaspError of errType.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		if fe, ok := err.(*FeaspError); ok && fe.Type == errType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// As is a re-export of the standard library's errors.As so callers importing
// this package under the name errors keep access to it.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a re-export of the standard library's errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// New is a re-export of the standard library's errors.New.
func New(text string) error {
	return errors.New(text)
}
