package storage

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	ts := time.Date(2018, 11, 12, 2, 37, 38, 796_000_000, time.FixedZone("x", 3600))

	tests := []struct {
		in   any
		want string
	}{
		{in: nil, want: ""},
		{in: "SOUPIRU12A6D4FA1E1", want: "SOUPIRU12A6D4FA1E1"},
		{in: "7 ", want: "7 "},
		{in: int64(8429529), want: "8429529"},
		{in: 42, want: "42"},
		{in: []byte(" 26 "), want: " 26 "},
		{in: ts, want: "2018-11-12T01:37:38.796Z"},
		{in: 1.5, want: "1.5"},
	}
	for _, tc := range tests {
		if got := NormalizeKey(tc.in); got != tc.want {
			t.Fatalf("NormalizeKey(%#v)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFirstByKey_KeepsFirstOccurrence(t *testing.T) {
	t.Parallel()

	rows := [][]any{
		{"AR1", "first", nil, nil, nil},
		{"AR2", "other", nil, nil, nil},
		{"AR1", "second", nil, nil, nil},
	}
	got := FirstByKey(Artists, rows)
	want := [][]any{rows[0], rows[1]}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FirstByKey=%v, want %v", got, want)
	}
}

func TestLastByKey_KeepsLastOccurrenceInOrder(t *testing.T) {
	t.Parallel()

	rows := [][]any{
		{"26", "Ryan", "Smith", "M", "free"},
		{"10", "Sylvie", "Cruz", "F", "free"},
		{"26", "Ryan", "Smith", "M", "paid"},
	}
	got := LastByKey(Users, rows)
	want := [][]any{rows[1], rows[2]}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("LastByKey=%v, want %v", got, want)
	}
}

func TestLastByKey_WhitespaceKeysStayDistinct(t *testing.T) {
	t.Parallel()

	rows := [][]any{
		{"7", "A", "B", "F", "free"},
		{"7 ", "A", "B", "F", "paid"},
	}
	if got := LastByKey(Users, rows); !reflect.DeepEqual(got, rows) {
		t.Fatalf("LastByKey=%v, want both rows", got)
	}
	if got := FirstByKey(Users, rows); !reflect.DeepEqual(got, rows) {
		t.Fatalf("FirstByKey=%v, want both rows", got)
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 7)
	for i := range rows {
		rows[i] = []any{i, i}
	}

	tests := []struct {
		name      string
		maxParams int
		wantSizes []int
	}{
		{name: "fits", maxParams: 100, wantSizes: []int{7}},
		{name: "splits", maxParams: 6, wantSizes: []int{3, 3, 1}},
		{name: "at_least_one_row", maxParams: 1, wantSizes: []int{1, 1, 1, 1, 1, 1, 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chunks := Chunk(rows, 2, tc.maxParams)
			var sizes []int
			for _, c := range chunks {
				sizes = append(sizes, len(c))
			}
			if !reflect.DeepEqual(sizes, tc.wantSizes) {
				t.Fatalf("chunk sizes=%v, want %v", sizes, tc.wantSizes)
			}
		})
	}

	if Chunk(nil, 2, 10) != nil {
		t.Fatalf("Chunk(nil) should be nil")
	}
}

func TestTable_NonKeyColumnsAndKeyIndexes(t *testing.T) {
	t.Parallel()

	if got := Times.NonKeyColumns(); strings.Join(got, ",") != "hour,day,week,month,year,weekday" {
		t.Fatalf("NonKeyColumns=%v", got)
	}
	if got := Songplays.KeyIndexes(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("KeyIndexes=%v", got)
	}
}

func TestRowValues_NilPointersBecomeNil(t *testing.T) {
	t.Parallel()

	loc := "Hamilton, Ohio"
	rows := RowValues([]ArtistRow{
		{ArtistID: "AR1", Name: "Dizzy"},
		{ArtistID: "AR2", Name: "Line", Location: &loc},
	})
	if len(rows) != 2 {
		t.Fatalf("len=%d", len(rows))
	}
	for i := 2; i < 5; i++ {
		if rows[0][i] != nil {
			t.Fatalf("col %d = %#v, want nil", i, rows[0][i])
		}
	}
	if rows[1][2] != "Hamilton, Ohio" {
		t.Fatalf("location=%#v", rows[1][2])
	}
	if len(rows[0]) != len(Artists.Columns) {
		t.Fatalf("row width %d != columns %d", len(rows[0]), len(Artists.Columns))
	}
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
	if _, err := Open(context.Background(), Config{Kind: "nope-not-registered"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestRegister_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on empty kind")
		}
	}()
	Register("", nil)
}
