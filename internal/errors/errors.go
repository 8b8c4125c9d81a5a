// Package errors provides structured error types for chunkdata.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryDependency ErrorCategory = "DEPENDENCY"
	ErrCategoryRegistry   ErrorCategory = "REGISTRY"
	ErrCategoryCodec      ErrorCategory = "CODEC"
	ErrCategoryFixture    ErrorCategory = "FIXTURE"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidOption = "INVALID_OPTION"
	CodeInvalidRecord = "INVALID_RECORD"

	// Dependency codes
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"

	// Registry codes
	CodeUnknownEntity    = "UNKNOWN_ENTITY"
	CodeUnknownNamespace = "UNKNOWN_NAMESPACE"
	CodeInvalidSchema    = "INVALID_SCHEMA"

	// Codec codes
	CodeUnsupportedCodec = "UNSUPPORTED_CODEC"
	CodeEncodingFailed   = "ENCODING_FAILED"
	CodeDecodingFailed   = "DECODING_FAILED"

	// Fixture codes
	CodeMultipleFixturesFound = "MULTIPLE_FIXTURES_FOUND"

	// Storage codes
	CodeQueryFailed = "QUERY_FAILED"
	CodeLoadFailed  = "LOAD_FAILED"
	CodeWriteFailed = "WRITE_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for errors.Is matching. Is compares category and code only, so
// any error built with the same pair matches its sentinel.
var (
	ErrInvalidOption         = New(ErrCategoryValidation, CodeInvalidOption, "invalid option")
	ErrInvalidRecord         = New(ErrCategoryValidation, CodeInvalidRecord, "invalid record")
	ErrCircularDependency    = New(ErrCategoryDependency, CodeCircularDependency, "circular dependency")
	ErrUnknownEntity         = New(ErrCategoryRegistry, CodeUnknownEntity, "unknown entity")
	ErrUnknownNamespace      = New(ErrCategoryRegistry, CodeUnknownNamespace, "unknown namespace")
	ErrInvalidSchema         = New(ErrCategoryRegistry, CodeInvalidSchema, "invalid schema")
	ErrUnsupportedCodec      = New(ErrCategoryCodec, CodeUnsupportedCodec, "unsupported codec")
	ErrEncodingFailed        = New(ErrCategoryCodec, CodeEncodingFailed, "encoding failed")
	ErrDecodingFailed        = New(ErrCategoryCodec, CodeDecodingFailed, "decoding failed")
	ErrMultipleFixturesFound = New(ErrCategoryFixture, CodeMultipleFixturesFound, "multiple fixtures found")
	ErrQueryFailed           = New(ErrCategoryStorage, CodeQueryFailed, "query failed")
	ErrLoadFailed            = New(ErrCategoryStorage, CodeLoadFailed, "load failed")
	ErrWriteFailed           = New(ErrCategoryStorage, CodeWriteFailed, "write failed")
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Newf creates a new Error with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *Error {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// GetDetails extracts the details map from an error chain.
func GetDetails(err error) map[string]interface{} {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Details
	}
	return nil
}

// isRetryable reports whether a failure may succeed on a later attempt.
// Only chunk uploads qualify: every other failure in this tool is
// deterministic for a given input.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryStorage && code == CodeWriteFailed
}

// Convenience constructors for common errors.

func NewValidationError(message string) *Error {
	return New(ErrCategoryValidation, CodeInvalidOption, message)
}

func NewInvalidRecordError(file string, cause error) *Error {
	return Wrap(ErrCategoryValidation, CodeInvalidRecord, "invalid records in "+file, cause).
		WithDetails(map[string]interface{}{"file": file})
}

func NewCircularDependencyError(message string) *Error {
	return New(ErrCategoryDependency, CodeCircularDependency, message)
}

func NewUnknownEntityError(label string) *Error {
	return Newf(ErrCategoryRegistry, CodeUnknownEntity, "unknown entity: %s", label).
		WithDetails(map[string]interface{}{"label": label})
}

func NewUnknownNamespaceError(label string) *Error {
	return Newf(ErrCategoryRegistry, CodeUnknownNamespace, "unknown namespace: %s", label).
		WithDetails(map[string]interface{}{"label": label})
}

func NewSchemaError(message string) *Error {
	return New(ErrCategoryRegistry, CodeInvalidSchema, message)
}

func NewUnsupportedCodecError(name string) *Error {
	return Newf(ErrCategoryCodec, CodeUnsupportedCodec, "unknown serialization format: %s", name).
		WithDetails(map[string]interface{}{"format": name})
}

func NewEncodingError(message string, cause error) *Error {
	return Wrap(ErrCategoryCodec, CodeEncodingFailed, message, cause)
}

func NewDecodingError(message string, cause error) *Error {
	return Wrap(ErrCategoryCodec, CodeDecodingFailed, message, cause)
}

func NewMultipleFixturesFoundError(name string, dirs []string) *Error {
	return Newf(ErrCategoryFixture, CodeMultipleFixturesFound, "multiple fixtures named %q found", name).
		WithDetails(map[string]interface{}{"fixture": name, "dirs": dirs})
}

func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
