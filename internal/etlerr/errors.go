// Package etlerr defines the error taxonomy shared by every stage of the
// sparkify loader and maps it onto process exit codes.
//
// Classification is done with errors.As / errors.Is; every type implements
// Unwrap so driver and decoder errors stay inspectable underneath.
package etlerr

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 10
	ExitStoreError   = 11
	ExitNotFound     = 12
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// NotFoundError reports a missing input root. It is fatal to the run.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input root not found: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("input root not found: %s", e.Path)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// MalformedRecordError reports bytes that are not valid JSON.
//
// Line is 1-based for line-delimited files and 0 for single-object files.
type MalformedRecordError struct {
	Path string
	Line int
	Err  error
}

func (e *MalformedRecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed record in %s (line %d): %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("malformed record in %s: %v", e.Path, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// SchemaError reports a required field that is missing, null, or of the wrong type.
type SchemaError struct {
	Path   string
	Line   int
	Field  string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s (line %d)", e.Path, e.Line)
	}
	msg := fmt.Sprintf("schema error in %s [field: %s]: %s", loc, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

// StoreError reports a failure talking to the destination store.
//
// Op names the operation ("connect", "begin", "insert", "upsert", "lookup",
// "commit"); Table is empty for operations that are not table-scoped.
type StoreError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// FileError attaches the source file to the failure that aborted it.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("process %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Store wraps err as a StoreError. A nil err stays nil.
func Store(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Table: table, Err: err}
}

// ExitCode maps an error returned by a run onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		notFound *NotFoundError
		store    *StoreError
	)
	switch {
	case errors.Is(err, ErrInvalidConfig):
		return ExitConfigError
	case errors.As(err, &notFound):
		return ExitNotFound
	case errors.As(err, &store) && store.Op == "connect":
		return ExitStoreError
	}
	return ExitGeneralError
}
