package types

import (
	"errors"
	"fmt"
)

// Schema errors.
var (
	ErrInvalidSchema   = errors.New("invalid schema")
	ErrDuplicateEntity = errors.New("entity already registered")
	ErrUnknownEntity   = errors.New("unknown entity type")
)

// Precondition reasons. Each is wrapped by a *PreconditionError and matches
// ErrPrecondition under errors.Is.
var (
	ErrPrecondition    = errors.New("precondition failed")
	ErrNoIdentity      = errors.New("record has no persisted identity")
	ErrNotArchived     = errors.New("cannot unarchive a record that is not archived")
	ErrNotArchiveAware = errors.New("entity type is not archive-aware")
	ErrNoDatabase      = errors.New("no database for alias")
)

// Storage and traversal errors.
var (
	ErrNotFound    = errors.New("record not found")
	ErrRestricted  = errors.New("delete restricted by dependent rows")
	ErrUnknownView = errors.New("unknown view")
)

// PreconditionError is returned before any storage access when a record
// cannot take part in the requested operation.
type PreconditionError struct {
	Entity string
	Key    any
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Key == nil {
		return fmt.Sprintf("%s: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("%s %v: %v", e.Entity, e.Key, e.Err)
}

// Unwrap returns the reason.
func (e *PreconditionError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrPrecondition) match every precondition failure.
func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }

// StorageExecutionError carries a failure returned by the database while a
// plan was being collected or executed. The driver error is kept unchanged.
type StorageExecutionError struct {
	Op     string
	Entity string
	Err    error
}

func (e *StorageExecutionError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the driver error.
func (e *StorageExecutionError) Unwrap() error { return e.Err }

// RestrictedError reports dependent rows behind a restrict relation.
type RestrictedError struct {
	Entity   string
	Relation Relation
	Keys     []any
}

func (e *RestrictedError) Error() string {
	return fmt.Sprintf("%v: %d %s row(s) reference %s via %s",
		ErrRestricted, len(e.Keys), e.Entity, e.Relation.References, e.Relation.Column)
}

// Unwrap returns ErrRestricted.
func (e *RestrictedError) Unwrap() error { return ErrRestricted }
