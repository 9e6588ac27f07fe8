package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Wrapped errors are matched with errors.Is.
var (
	// ErrIO is returned when a file cannot be opened, read or written.
	ErrIO = errors.New("i/o error")

	// ErrParse is returned when structured content is malformed.
	ErrParse = errors.New("parse error")

	// ErrSchema is returned when content is well-formed but misses required fields.
	ErrSchema = errors.New("schema error")

	// ErrNetwork is returned on transport failures or non-success statuses.
	ErrNetwork = errors.New("network error")

	// ErrNotFound is returned when a referenced file or id is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidVariantReference is returned for malformed video ids or unknown unique ids.
	ErrInvalidVariantReference = errors.New("invalid variant reference")

	// ErrUnsupportedOperation is returned when downloading a local variant.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrNotInitialized is returned when a song id is unknown to the local store.
	ErrNotInitialized = errors.New("song not initialized")

	// ErrEmptyResponse is returned when a download succeeds with no content.
	ErrEmptyResponse = errors.New("empty response")

	// ErrDuplicateVariant is returned when a unique id is already used in a collection.
	ErrDuplicateVariant = errors.New("duplicate variant")

	// ErrCancelled is returned when a download task is cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrClosed is returned when a service is used after Shutdown.
	ErrClosed = errors.New("service closed")
)

// CatalogError wraps a failure to fetch or load one remote catalog.
type CatalogError struct {
	Op     string // "fetch" or "load"
	Source string // catalog URL or cache file path
	Err    error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %s %s: %v", e.Op, e.Source, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// NewCatalogError creates a new CatalogError.
func NewCatalogError(op, source string, err error) *CatalogError {
	return &CatalogError{Op: op, Source: source, Err: err}
}

// RepositoryError wraps a storage failure with the store and operation
// that hit it.
type RepositoryError struct {
	Op      string // save, load, delete, open
	Type    string // nongs, values, settings
	Message string
	Err     error
}

func (e *RepositoryError) Error() string {
	msg := fmt.Sprintf("%s store: %s: %s", e.Type, e.Op, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// NewRepositoryError creates a new RepositoryError.
func NewRepositoryError(op, repoType, message string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Type: repoType, Message: message, Err: err}
}

// ValidationError reports caller input that was rejected before any work
// was done: a short index URL, a duplicate source, an import into a song
// that already has a default.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ServiceError wraps a failure inside a service operation.
type ServiceError struct {
	Service string // IndexService, DownloadService, ...
	Op      string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("%s.%s: %s", e.Service, e.Op, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ServiceError) Unwrap() error { return e.Err }

// NewServiceError creates a new ServiceError.
func NewServiceError(service, op, message string, err error) *ServiceError {
	return &ServiceError{Service: service, Op: op, Message: message, Err: err}
}
