package postgres

import (
	"strings"
	"testing"

	"sparkify/internal/storage"
)

func TestBuildWriteSQL_Append(t *testing.T) {
	t.Parallel()

	rows := [][]any{
		{int64(1), "t", "26", "free", nil, nil, int64(583), "SF", "ua"},
		{int64(2), "t", "26", "free", "S1", "A1", int64(583), "SF", "ua"},
	}
	sql, args := buildWriteSQL(storage.Songplays, storage.Append, rows)

	if !strings.HasPrefix(sql, `INSERT INTO "songplays" ("songplay_id", "start_time"`) {
		t.Fatalf("unexpected prefix: %q", sql)
	}
	if strings.Contains(sql, "ON CONFLICT") {
		t.Fatalf("append must not carry a conflict clause: %q", sql)
	}
	if !strings.Contains(sql, "($10, $11") || !strings.HasSuffix(sql, "$18);") {
		t.Fatalf("placeholders not numbered across rows: %q", sql)
	}
	if len(args) != 18 {
		t.Fatalf("len(args)=%d, want 18", len(args))
	}
}

func TestBuildWriteSQL_InsertIfAbsent(t *testing.T) {
	t.Parallel()

	sql, _ := buildWriteSQL(storage.Songs, storage.InsertIfAbsent, [][]any{{"S1", "T", "A1", int64(0), 1.0}})
	if !strings.HasSuffix(sql, ` ON CONFLICT ("song_id") DO NOTHING;`) {
		t.Fatalf("missing DO NOTHING clause: %q", sql)
	}
}

func TestBuildWriteSQL_Upsert(t *testing.T) {
	t.Parallel()

	sql, _ := buildWriteSQL(storage.Users, storage.Upsert, [][]any{{"26", "Ryan", "Smith", "M", "paid"}})
	want := ` ON CONFLICT ("user_id") DO UPDATE SET "first_name" = EXCLUDED."first_name", ` +
		`"last_name" = EXCLUDED."last_name", "gender" = EXCLUDED."gender", "level" = EXCLUDED."level";`
	if !strings.HasSuffix(sql, want) {
		t.Fatalf("got %q\nwant suffix %q", sql, want)
	}
}

func TestBuildWriteSQL_QuotesReservedTableName(t *testing.T) {
	t.Parallel()

	sql, _ := buildWriteSQL(storage.Times, storage.InsertIfAbsent, [][]any{{nil, 0, 0, 0, 0, 0, 0}})
	if !strings.HasPrefix(sql, `INSERT INTO "time" ("start_time", "hour"`) {
		t.Fatalf("time table not quoted: %q", sql)
	}
}

func TestPgIdent_EscapesQuotes(t *testing.T) {
	t.Parallel()

	if got := pgIdent(`a"b`); got != `"a""b"` {
		t.Fatalf("pgIdent=%s", got)
	}
}
