package services

import (
	"errors"
	"fmt"
)

// Typed failures surfaced by the update engine and its collaborators.
// Hosts branch on these with errors.As and map each to a precise user
// message; none are used as ordinary control flow inside the engine.

// ValidationError reports bad or missing input. The table is unchanged
// and the user must resubmit.
type ValidationError struct {
	Entity string // record name, when known
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("validation failed for %q: %s: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// IdentityConflictError reports that a first-update submission raced
// with another writer that already created the same name. The caller
// should retry the submission as an update to the existing record.
type IdentityConflictError struct {
	Name string
}

func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("record %q already exists; retry as an update to the existing record", e.Name)
}

// StaleWriteError reports that the store's version stamp advanced
// between load and save. Nothing was written; reload and retry.
type StaleWriteError struct {
	Loaded int64
}

func (e *StaleWriteError) Error() string {
	return fmt.Sprintf("sheet changed since version %d was loaded; reload and retry", e.Loaded)
}

// StoreError reports an I/O failure against the record store.
type StoreError struct {
	Op  string // "load" or "save"
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// RowParseError reports a persisted cell that does not satisfy the
// canonical serialization. Load wraps it in a StoreError.
type RowParseError struct {
	Row    int // zero-based data row index, excluding the header
	Column string
	Value  string
	Reason string
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("row %d, column %q: %s (value %q)", e.Row, e.Column, e.Reason, e.Value)
}

// SendError reports a notification delivery failure. It is never fatal
// to the update workflow and is reported independently.
type SendError struct {
	Recipient string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to notify %s: %v", e.Recipient, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsStale reports whether err is a StaleWriteError anywhere in its chain.
func IsStale(err error) bool {
	var se *StaleWriteError
	return errors.As(err, &se)
}
