// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// SchemaError means the destination schema could not be provisioned. It is
// fatal: no account processing is attempted after it.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema provisioning failed: %v", e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// RemoteFetchError is returned when the GitHub API answers with a non-200
// status, or when the request times out. It is scoped to a single account.
type RemoteFetchError struct {
	Handle     string
	StatusCode int
	Body       string
	Timeout    bool
	Err        error
}

func (e *RemoteFetchError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("fetch for %q timed out: %v", e.Handle, e.Err)
	}
	return fmt.Sprintf("fetch for %q failed with status %d: %s", e.Handle, e.StatusCode, e.Body)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

// DecodeError is returned when a response body cannot be parsed as the
// expected JSON shape. Scoped to a single account.
type DecodeError struct {
	Handle string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed response body for %q: %v", e.Handle, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MappingError is returned when a fetched record is missing an identity field
// and therefore cannot become a row. Scoped to a single account.
type MappingError struct {
	Handle string
	Record string // "account" or "repository"
	Field  string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("%s record for %q is missing required field %q", e.Record, e.Handle, e.Field)
}

// PersistenceError is returned when a write is rejected by the destination
// store, typically a constraint violation. Scoped to a single account.
type PersistenceError struct {
	Handle string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Handle == "" {
		return fmt.Sprintf("write rejected by store: %v", e.Err)
	}
	return fmt.Sprintf("write for %q rejected by store: %v", e.Handle, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StorageUnavailableError means the destination connection itself is gone.
// Unlike the other account-scoped errors it escalates and aborts the run,
// since no later write can succeed either.
type StorageUnavailableError struct {
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("destination store unavailable: %v", e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort the whole run rather than be
// recorded against the current account.
func IsFatal(err error) bool {
	var schemaErr *SchemaError
	var storageErr *StorageUnavailableError
	return errors.As(err, &schemaErr) || errors.As(err, &storageErr)
}
