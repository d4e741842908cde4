package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NormalizeKey converts a key value to a string form for in-memory dedupe
// maps (e.g. "AR8IEZO1187B99055E" or "8429529").
//
// Strings are kept byte for byte. The destination compares keys exactly, so
// "7" and "7 " are different users.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// rowKey joins the normalized key columns of row.
func rowKey(row []any, keyIdx []int) string {
	if len(keyIdx) == 1 {
		return NormalizeKey(row[keyIdx[0]])
	}
	parts := make([]string, len(keyIdx))
	for i, idx := range keyIdx {
		parts[i] = NormalizeKey(row[idx])
	}
	return strings.Join(parts, "\x00")
}

// FirstByKey keeps the first row for each key of t, preserving the order of
// first occurrences.
//
// Insert-if-absent statements that do not collapse duplicates inside their
// own VALUES list (SQL Server's NOT EXISTS form) need this to avoid unique
// violations within one batch.
func FirstByKey(t Table, rows [][]any) [][]any {
	keyIdx := t.KeyIndexes()
	seen := make(map[string]struct{}, len(rows))
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		k := rowKey(r, keyIdx)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// LastByKey keeps the last row for each key of t, ordered by the position of
// that last occurrence.
//
// Applying the result as one upsert statement has the same effect as
// upserting every input row in order.
func LastByKey(t Table, rows [][]any) [][]any {
	keyIdx := t.KeyIndexes()
	last := make(map[string]int, len(rows))
	for i, r := range rows {
		last[rowKey(r, keyIdx)] = i
	}
	out := make([][]any, 0, len(last))
	for i, r := range rows {
		if last[rowKey(r, keyIdx)] == i {
			out = append(out, r)
		}
	}
	return out
}

// Chunk splits rows so that no chunk binds more than maxParams parameters.
// A chunk always holds at least one row.
func Chunk(rows [][]any, columns, maxParams int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := 1
	if columns > 0 && maxParams > columns {
		per = maxParams / columns
	}
	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
