package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sparkify/internal/etlerr"
	"sparkify/internal/storage"
)

// timeLayout is RFC3339 with a fixed nine-digit fraction. RFC3339Nano drops
// trailing zeros, so "...38.79Z" would sort after "...38.796Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// maxParams stays under SQLITE_MAX_VARIABLE_NUMBER (32766 since 3.32).
const maxParams = 30000

// Store implements storage.Store for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no native timestamp type. Timestamps are bound as fixed-width
//     UTC text (nine fractional digits) so they round-trip and sort lexically.
//   - The pool is pinned to one connection; an in-memory DSN would otherwise
//     hand each connection its own empty database.
type Store struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", Open)
}

// Open opens the database at cfg.DSN (a file path or file: URI) and pings it.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, etlerr.Store("connect", "", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, etlerr.Store("connect", "", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, etlerr.Store("begin", "", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx is one SQLite transaction.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Write(ctx context.Context, table storage.Table, mode storage.WriteMode, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if mode == storage.Upsert {
		rows = storage.LastByKey(table, rows)
	}

	var total int64
	for _, chunk := range storage.Chunk(rows, len(table.Columns), maxParams) {
		q, args := buildWriteSQL(table, mode, chunk)
		res, err := t.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, etlerr.Store(opFor(mode), table.Name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (t *Tx) LookupSong(ctx context.Context, title, artist string, duration float64) ([]storage.SongMatch, error) {
	rows, err := t.tx.QueryContext(ctx, lookupSongSQL, title, artist, duration)
	if err != nil {
		return nil, etlerr.Store("lookup", "songs", err)
	}
	defer rows.Close()

	var out []storage.SongMatch
	for rows.Next() {
		var m storage.SongMatch
		if err := rows.Scan(&m.SongID, &m.ArtistID); err != nil {
			return nil, etlerr.Store("lookup", "songs", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, etlerr.Store("lookup", "songs", err)
	}
	return out, nil
}

func (t *Tx) Commit(context.Context) error {
	return etlerr.Store("commit", "", t.tx.Commit())
}

func (t *Tx) Rollback(context.Context) error {
	return etlerr.Store("rollback", "", t.tx.Rollback())
}

const lookupSongSQL = `SELECT s.song_id, s.artist_id
FROM songs s
JOIN artists a ON a.artist_id = s.artist_id
WHERE s.title = ? AND a.name = ? AND s.duration = ?
LIMIT 2`

func opFor(mode storage.WriteMode) string {
	if mode == storage.Upsert {
		return "upsert"
	}
	return "insert"
}

// buildWriteSQL constructs a multi-row INSERT for SQLite.
//
// InsertIfAbsent uses INSERT OR IGNORE, which relies on the PRIMARY KEY of
// the target table. Upsert uses the ON CONFLICT(...) DO UPDATE form
// available since SQLite 3.24.
func buildWriteSQL(t storage.Table, mode storage.WriteMode, rows [][]any) (string, []any) {
	var b strings.Builder
	if mode == storage.InsertIfAbsent {
		b.WriteString("INSERT OR IGNORE INTO ")
	} else {
		b.WriteString("INSERT INTO ")
	}
	b.WriteString(sqlIdent(t.Name))
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	ph := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(t.Columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ph)
		for j := range t.Columns {
			args = append(args, bindValue(row[j]))
		}
	}

	if mode == storage.Upsert {
		b.WriteString(" ON CONFLICT(")
		for i, k := range t.Key {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(sqlIdent(k))
		}
		b.WriteString(") DO UPDATE SET ")
		for i, c := range t.NonKeyColumns() {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s = excluded.%s", sqlIdent(c), sqlIdent(c))
		}
	}
	b.WriteString(";")
	return b.String(), args
}

func bindValue(v any) any {
	if ts, ok := v.(time.Time); ok {
		return formatSQLiteTime(ts)
	}
	return v
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// formatSQLiteTime formats a time as fixed-width UTC text.
// We store timestamps as TEXT for reliable scanning/parsing with modernc.org/sqlite.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime parses timestamps read back from SQLite.
//
// Supported formats:
//   - timeLayout (what we write) and RFC3339Nano
//   - RFC3339
//   - "2006-01-02 15:04:05.999999999Z07:00"
//   - "2006-01-02 15:04:05" (interpreted as UTC)
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
