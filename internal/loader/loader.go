// Package loader writes transformed rows to the destination, one transaction
// per source file.
package loader

import (
	"context"
	"fmt"

	"sparkify/internal/storage"
)

// Batch is everything derived from one source file. Catalog files fill
// Artists and Songs; activity files fill Times, Users and Songplays.
type Batch struct {
	Artists   []storage.ArtistRow
	Songs     []storage.SongRow
	Times     []storage.TimeRow
	Users     []storage.UserRow
	Songplays []storage.SongplayRow
}

// Counts reports rows affected per table, as the driver reports them.
// Conflict-ignored rows are not counted.
type Counts map[string]int64

// Add merges o into c.
func (c Counts) Add(o Counts) {
	for k, v := range o {
		c[k] += v
	}
}

type step struct {
	table storage.Table
	mode  storage.WriteMode
	rows  [][]any
}

// Apply writes b through tx in foreign-key order: artists, songs, time,
// users, songplays.
//
//   - artists, songs: insert if absent
//   - time:           insert, conflicts on start_time ignored
//   - users:          upsert, the last row per user_id wins
//   - songplays:      append
func Apply(ctx context.Context, tx storage.Tx, b Batch) (Counts, error) {
	steps := []step{
		{storage.Artists, storage.InsertIfAbsent, storage.RowValues(b.Artists)},
		{storage.Songs, storage.InsertIfAbsent, storage.RowValues(b.Songs)},
		{storage.Times, storage.InsertIfAbsent, storage.RowValues(b.Times)},
		{storage.Users, storage.Upsert, storage.RowValues(b.Users)},
		{storage.Songplays, storage.Append, storage.RowValues(b.Songplays)},
	}

	counts := Counts{}
	for _, s := range steps {
		if len(s.rows) == 0 {
			continue
		}
		n, err := tx.Write(ctx, s.table, s.mode, s.rows)
		if err != nil {
			return counts, err
		}
		counts[s.table.Name] += n
	}
	return counts, nil
}

// InFileTx runs fn inside one transaction. It commits when fn returns nil and
// rolls back when fn returns an error or panics; the panic is re-raised after
// the rollback.
func InFileTx(ctx context.Context, store storage.Store, fn func(tx storage.Tx) error) (err error) {
	tx, err := store.Begin(ctx)
	if err != nil {
		return err
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		// ctx may already be canceled; the rollback must still reach the store
		rbErr := tx.Rollback(context.WithoutCancel(ctx))
		if p := recover(); p != nil {
			panic(p)
		}
		if err != nil && rbErr != nil {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	// a failed commit leaves nothing to roll back
	finished = true
	return tx.Commit(ctx)
}
