// Package testinfra provisions destination databases for tests: a schema'd
// SQLite file per test, and a Postgres container for integration runs.
package testinfra

import (
	"context"
	"database/sql"
	_ "embed"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

var (
	//go:embed schema/sqlite.sql
	SQLiteSchema string

	//go:embed schema/postgres.sql
	PostgresSchema string
)

// OpenSQLite creates a fresh SQLite database file under tb.TempDir with the
// star schema applied and foreign keys enforced. It returns the DSN to hand
// to the sqlite backend.
func OpenSQLite(tb testing.TB) string {
	tb.Helper()

	dsn := "file:" + filepath.Join(tb.TempDir(), "sparkify.db") + "?_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	for _, stmt := range Statements(SQLiteSchema) {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			tb.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return dsn
}

// QuerySQLite opens dsn for read-back assertions. The handle is closed when
// the test ends.
func QuerySQLite(tb testing.TB, dsn string) *sql.DB {
	tb.Helper()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })
	return db
}

// CountRows returns SELECT COUNT(*) for table.
func CountRows(tb testing.TB, db *sql.DB, table string) int {
	tb.Helper()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "` + table + `"`).Scan(&n); err != nil {
		tb.Fatalf("count %s: %v", table, err)
	}
	return n
}

// Statements splits a schema script on ';' and drops empty pieces.
func Statements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
