package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"sparkify/internal/etlerr"
	"sparkify/internal/storage"
)

// maxParams stays under the 65535 bind-parameter limit of the wire protocol.
const maxParams = 60000

/*
Store implements storage.Store for Postgres.

It holds a single pgx connection for the whole run. Writes go through
multi-row INSERT statements whose conflict clause depends on the write mode:

  - Append:         plain INSERT
  - InsertIfAbsent: ON CONFLICT (key) DO NOTHING
  - Upsert:         ON CONFLICT (key) DO UPDATE SET c = EXCLUDED.c
*/
type Store struct {
	conn *pgx.Conn
}

// Open connects to Postgres using cfg.DSN (URL or key=value form).
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, etlerr.Store("connect", "", err)
	}
	return &Store{conn: conn}, nil
}

func (s *Store) Close() error {
	return s.conn.Close(context.Background())
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, etlerr.Store("begin", "", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx is one Postgres transaction.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) Write(ctx context.Context, table storage.Table, mode storage.WriteMode, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if mode == storage.Upsert {
		// a single ON CONFLICT DO UPDATE may not touch the same key twice
		rows = storage.LastByKey(table, rows)
	}

	var total int64
	for _, chunk := range storage.Chunk(rows, len(table.Columns), maxParams) {
		sql, args := buildWriteSQL(table, mode, chunk)
		tag, err := t.tx.Exec(ctx, sql, args...)
		if err != nil {
			return total, etlerr.Store(opFor(mode), table.Name, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (t *Tx) LookupSong(ctx context.Context, title, artist string, duration float64) ([]storage.SongMatch, error) {
	rows, err := t.tx.Query(ctx, lookupSongSQL, title, artist, duration)
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

func (t *Tx) Commit(ctx context.Context) error {
	return etlerr.Store("commit", "", t.tx.Commit(ctx))
}

func (t *Tx) Rollback(ctx context.Context) error {
	return etlerr.Store("rollback", "", t.tx.Rollback(ctx))
}

const lookupSongSQL = `SELECT s.song_id, s.artist_id
FROM songs s
JOIN artists a ON a.artist_id = s.artist_id
WHERE s.title = $1 AND a.name = $2 AND s.duration = $3
LIMIT 2`

func opFor(mode storage.WriteMode) string {
	if mode == storage.Upsert {
		return "upsert"
	}
	return "insert"
}

// buildWriteSQL constructs a single INSERT statement and its args.
//
// It is pure so placeholder numbering and the conflict clause can be unit
// tested without a database. Every row must have len(t.Columns) values.
func buildWriteSQL(t storage.Table, mode storage.WriteMode, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(t.Name))
	b.WriteString(" (")
	writeIdentList(&b, t.Columns)
	b.WriteString(") VALUES ")

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
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	switch mode {
	case storage.InsertIfAbsent:
		b.WriteString(" ON CONFLICT (")
		writeIdentList(&b, t.Key)
		b.WriteString(") DO NOTHING")
	case storage.Upsert:
		b.WriteString(" ON CONFLICT (")
		writeIdentList(&b, t.Key)
		b.WriteString(") DO UPDATE SET ")
		for i, c := range t.NonKeyColumns() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
			b.WriteString(" = EXCLUDED.")
			b.WriteString(pgIdent(c))
		}
	}

	b.WriteString(";")
	return b.String(), args
}

func writeIdentList(b *strings.Builder, cols []string) {
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
}

// pgIdent quotes an identifier. "time" is a reserved word, so every
// identifier is quoted rather than only the ones that need it.
func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
