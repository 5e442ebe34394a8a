package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotAllowed         = errors.New("user is not allowed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Relay stage errors. Use errors.Is against these, errors.As against the typed errors below.
	ErrFetch  = errors.New("fetch failed")
	ErrUpload = errors.New("upload failed")
	ErrConfig = errors.New("missing configuration")
)

// FetchError reports a network, IO or platform failure while retrieving source bytes.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("fetch: %v", e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// UploadError reports that the remote endpoint rejected or failed to acknowledge a file.
type UploadError struct {
	Backend string
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload via %s: %v", e.Backend, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) Is(target error) bool { return target == ErrUpload }

// ConfigError is returned when a capability needs a credential that is not configured.
type ConfigError struct {
	Key string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Key)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

func NewFetchError(source string, err error) error {
	return &FetchError{Source: source, Err: err}
}

func NewUploadError(backend string, err error) error {
	return &UploadError{Backend: backend, Err: err}
}
