package etlerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitSuccess},
		{name: "config", err: fmt.Errorf("storage.kind: %w", ErrInvalidConfig), want: ExitConfigError},
		{name: "not_found", err: &NotFoundError{Path: "data/song_data"}, want: ExitNotFound},
		{name: "connect", err: &StoreError{Op: "connect", Err: boom}, want: ExitStoreError},
		{name: "insert_is_general", err: &StoreError{Op: "insert", Table: "songs", Err: boom}, want: ExitGeneralError},
		{name: "wrapped_file_error", err: &FileError{Path: "a.json", Err: &MalformedRecordError{Path: "a.json", Err: boom}}, want: ExitGeneralError},
		{name: "wrapped_not_found", err: fmt.Errorf("song pass: %w", &NotFoundError{Path: "x"}), want: ExitNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.want {
				t.Fatalf("ExitCode(%v)=%d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestStore_DoesNotDoubleWrap(t *testing.T) {
	t.Parallel()

	if Store("insert", "songs", nil) != nil {
		t.Fatalf("Store(nil) should be nil")
	}

	inner := Store("insert", "songs", errors.New("duplicate key"))
	outer := Store("commit", "", inner)
	if outer != inner {
		t.Fatalf("Store re-wrapped an existing StoreError: %v", outer)
	}
	var se *StoreError
	if !errors.As(outer, &se) || se.Table != "songs" {
		t.Fatalf("errors.As StoreError failed: %v", outer)
	}
}

func TestErrorMessages_CarryLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: &MalformedRecordError{Path: "log.json", Line: 3, Err: errors.New("bad")}, want: "log.json (line 3)"},
		{err: &MalformedRecordError{Path: "song.json", Err: errors.New("bad")}, want: "malformed record in song.json"},
		{err: &SchemaError{Path: "log.json", Line: 2, Field: "userId", Reason: "missing"}, want: "[field: userId]: missing"},
		{err: &StoreError{Op: "upsert", Table: "users", Err: errors.New("x")}, want: "store upsert users"},
		{err: &FileError{Path: "f.json", Err: errors.New("x")}, want: "process f.json"},
	}
	for _, tc := range tests {
		if !strings.Contains(tc.err.Error(), tc.want) {
			t.Fatalf("%q does not contain %q", tc.err.Error(), tc.want)
		}
	}
}
