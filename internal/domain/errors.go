// Package domain defines core types, interfaces, and errors for the bronze ingestion pipeline.
package domain

import (
	"context"
	"errors"
	"fmt"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input or configuration.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., a table run already in progress).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// SchemaNotFoundError indicates that no schema document exists for a table.
type SchemaNotFoundError struct {
	Table string
}

func (e *SchemaNotFoundError) Error() string {
	return fmt.Sprintf("schema not found for table %q", e.Table)
}

// ReadError indicates the raw source is missing, empty, or does not conform
// to the table's schema.
type ReadError struct {
	Table   string
	Message string
	Err     error
}

func (e *ReadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("read %q: %s: %v", e.Table, e.Message, e.Err)
	}
	return fmt.Sprintf("read %q: %s", e.Table, e.Message)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ProbeFailedError indicates the existence probe could not decide whether the
// destination holds data. It is never treated as "new".
type ProbeFailedError struct {
	Table string
	Err   error
}

func (e *ProbeFailedError) Error() string {
	return fmt.Sprintf("existence probe failed for %q: %v", e.Table, e.Err)
}

func (e *ProbeFailedError) Unwrap() error { return e.Err }

// MergeKeyMissingError indicates the merge path was selected for a table that
// has no match key configured.
type MergeKeyMissingError struct {
	Table string
}

func (e *MergeKeyMissingError) Error() string {
	return fmt.Sprintf("table %q has existing data but no match key is configured", e.Table)
}

// WriteOp names the write strategy that failed.
type WriteOp string

// Write strategies.
const (
	WriteOpOverwrite WriteOp = "overwrite"
	WriteOpMerge     WriteOp = "merge"
)

// WriteError indicates that the overwrite write or the merge commit failed.
type WriteError struct {
	Table string
	Op    WriteOp
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Table, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ManifestError indicates manifest regeneration failed after a successful
// merge. The merged data is committed; only the manifest is stale.
type ManifestError struct {
	Table string
	Err   error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("regenerate manifest for %q: %v", e.Table, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrRead creates a ReadError for table with a formatted message.
func ErrRead(table string, err error, format string, args ...interface{}) *ReadError {
	return &ReadError{Table: table, Message: fmt.Sprintf(format, args...), Err: err}
}

// Error kind names recorded on failed runs and exported as metric labels.
const (
	KindSchemaNotFound  = "SchemaNotFound"
	KindReadError       = "ReadError"
	KindProbeFailure    = "ProbeFailure"
	KindMergeKeyMissing = "MergeKeyMissing"
	KindWriteFailure    = "WriteFailure"
	KindMergeFailure    = "MergeFailure"
	KindManifest        = "ManifestWarning"
	KindValidation      = "Validation"
	KindConflict        = "Conflict"
	KindCanceled        = "Canceled"
	KindInternal        = "Internal"
)

// ErrorKind classifies err into one of the Kind* names. A nil error has no kind.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var (
		schemaNotFound *SchemaNotFoundError
		readErr        *ReadError
		probeErr       *ProbeFailedError
		keyMissing     *MergeKeyMissingError
		writeErr       *WriteError
		manifestErr    *ManifestError
		validation     *ValidationError
		conflict       *ConflictError
	)

	switch {
	case errors.As(err, &schemaNotFound):
		return KindSchemaNotFound
	case errors.As(err, &keyMissing):
		return KindMergeKeyMissing
	case errors.As(err, &probeErr):
		return KindProbeFailure
	case errors.As(err, &readErr):
		return KindReadError
	case errors.As(err, &writeErr):
		if writeErr.Op == WriteOpMerge {
			return KindMergeFailure
		}
		return KindWriteFailure
	case errors.As(err, &manifestErr):
		return KindManifest
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &conflict):
		return KindConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
