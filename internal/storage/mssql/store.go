package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"sparkify/internal/etlerr"
	"sparkify/internal/storage"
)

// maxParams stays under SQL Server's 2100 parameters per request.
const maxParams = 2000

// Store implements storage.Store for Microsoft SQL Server.
//
// Write modes map onto:
//   - Append:         multi-row INSERT ... VALUES
//   - InsertIfAbsent: INSERT ... SELECT FROM (VALUES ...) WHERE NOT EXISTS,
//     with duplicates inside the batch collapsed first (keep first)
//   - Upsert:         per-row UPDATE; IF @@ROWCOUNT = 0 INSERT
//
// SQL Server statements do not collapse duplicates inside a VALUES source the
// way ON CONFLICT does, hence the explicit batch dedupe.
type Store struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", Open)
}

// Open connects using the "sqlserver" driver registered by go-mssqldb.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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
	return &Tx{tx: tx, exec: tx}, nil
}

// execer is the slice of *sql.Tx that Write needs; tests substitute a recorder.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Tx is one SQL Server transaction.
type Tx struct {
	tx   *sql.Tx
	exec execer
}

func (t *Tx) Write(ctx context.Context, table storage.Table, mode storage.WriteMode, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	switch mode {
	case storage.Upsert:
		return t.upsertRows(ctx, table, storage.LastByKey(table, rows))
	case storage.InsertIfAbsent:
		rows = storage.FirstByKey(table, rows)
	}

	var total int64
	for _, chunk := range storage.Chunk(rows, len(table.Columns), maxParams) {
		var (
			q    string
			args []any
		)
		if mode == storage.InsertIfAbsent {
			q, args = buildInsertNotExistsSQL(table, chunk)
		} else {
			q, args = buildInsertSQL(table, chunk)
		}
		res, err := t.exec.ExecContext(ctx, q, args...)
		if err != nil {
			return total, etlerr.Store("insert", table.Name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (t *Tx) upsertRows(ctx context.Context, table storage.Table, rows [][]any) (int64, error) {
	q := buildUpsertRowSQL(table)
	var total int64
	for _, row := range rows {
		res, err := t.exec.ExecContext(ctx, q, row...)
		if err != nil {
			return total, etlerr.Store("upsert", table.Name, err)
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

const lookupSongSQL = `SELECT TOP 2 s.[song_id], s.[artist_id]
FROM [songs] s
JOIN [artists] a ON a.[artist_id] = s.[artist_id]
WHERE s.[title] = @p1 AND a.[name] = @p2 AND s.[duration] = @p3`

// buildInsertSQL constructs a plain multi-row INSERT with @pN placeholders.
func buildInsertSQL(t storage.Table, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(t.Name))
	b.WriteString(" (")
	writeIdentList(&b, "", t.Columns)
	b.WriteString(") VALUES ")
	args := writeValues(&b, t, rows)
	return b.String(), args
}

// buildInsertNotExistsSQL constructs a single INSERT...SELECT...WHERE NOT EXISTS for a chunk of rows.
//
// It materializes incoming rows as a derived table v via VALUES, then inserts only those
// rows whose key does not already exist in the target.
func buildInsertNotExistsSQL(t storage.Table, rows [][]any) (string, []any) {
	var b strings.Builder

	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(t.Name))
	b.WriteString(" (")
	writeIdentList(&b, "", t.Columns)
	b.WriteString(") SELECT ")
	writeIdentList(&b, "v.", t.Columns)
	b.WriteString(" FROM (VALUES ")
	args := writeValues(&b, t, rows)
	b.WriteString(") AS v(")
	writeIdentList(&b, "", t.Columns)
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(mssqlTableIdent(t.Name))
	b.WriteString(" t WHERE ")
	for i, k := range t.Key {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "t.%s = v.%s", mssqlIdent(k), mssqlIdent(k))
	}
	b.WriteString(")")

	return b.String(), args
}

// buildUpsertRowSQL returns an UPDATE-then-INSERT batch for one row. The
// parameters are the row's values in column order.
func buildUpsertRowSQL(t storage.Table) string {
	pos := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		pos[c] = i + 1
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(mssqlTableIdent(t.Name))
	b.WriteString(" SET ")
	for i, c := range t.NonKeyColumns() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = @p%d", mssqlIdent(c), pos[c])
	}
	b.WriteString(" WHERE ")
	for i, k := range t.Key {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s = @p%d", mssqlIdent(k), pos[k])
	}
	b.WriteString("; IF @@ROWCOUNT = 0 INSERT INTO ")
	b.WriteString(mssqlTableIdent(t.Name))
	b.WriteString(" (")
	writeIdentList(&b, "", t.Columns)
	b.WriteString(") VALUES (")
	for i := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@p%d", i+1)
	}
	b.WriteString(");")
	return b.String()
}

func writeIdentList(b *strings.Builder, prefix string, cols []string) {
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(prefix)
		b.WriteString(mssqlIdent(c))
	}
}

func writeValues(b *strings.Builder, t storage.Table, rows [][]any) []any {
	args := make([]any, 0, len(rows)*len(t.Columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range t.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return args
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.songs" -> [dbo].[songs]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
