// Package transformer reshapes parsed records into destination rows.
//
// Catalog records map one-to-one onto a song row and an artist row. Activity
// records are filtered to plays, decomposed into time and user rows, and
// resolved against the catalog to build songplay facts.
package transformer

import (
	"context"
	"time"

	"sparkify/internal/record"
	"sparkify/internal/storage"
)

// SongRows copies a catalog record into its song and artist rows.
func SongRows(rec record.Song) (storage.SongRow, storage.ArtistRow) {
	song := storage.SongRow{
		SongID:   rec.SongID,
		Title:    rec.Title,
		ArtistID: rec.ArtistID,
		Year:     rec.Year,
		Duration: rec.Duration,
	}
	artist := storage.ArtistRow{
		ArtistID:  rec.ArtistID,
		Name:      rec.ArtistName,
		Location:  rec.ArtistLocation,
		Latitude:  rec.ArtistLatitude,
		Longitude: rec.ArtistLongitude,
	}
	return song, artist
}

// TimeParts converts epoch milliseconds to UTC and derives the calendar
// fields. Week is the ISO-8601 week; Weekday counts from 0 = Monday to
// 6 = Sunday.
func TimeParts(ts int64) storage.TimeRow {
	t := time.UnixMilli(ts).UTC()
	_, week := t.ISOWeek()
	return storage.TimeRow{
		StartTime: t,
		Hour:      t.Hour(),
		Day:       t.Day(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   (int(t.Weekday()) + 6) % 7,
	}
}

// EventBatch holds the rows derived from one activity file, in record order.
type EventBatch struct {
	Times     []storage.TimeRow
	Users     []storage.UserRow
	Songplays []storage.SongplayRow
}

// EventRows filters recs to plays and builds one time row, one user row and
// one songplay row per play, preserving order.
//
// Song and artist ids come from resolver; a play whose song, artist or length
// is null is left unresolved without a lookup. Songplay ids come from ids,
// keyed by the record's position in its file.
func EventRows(ctx context.Context, recs []record.Event, resolver SongResolver, ids IDSource) (EventBatch, error) {
	var b EventBatch
	for _, rec := range recs {
		if !rec.IsPlay() {
			continue
		}

		tr := TimeParts(rec.TS)
		b.Times = append(b.Times, tr)
		b.Users = append(b.Users, storage.UserRow{
			UserID:    rec.UserID,
			FirstName: rec.FirstName,
			LastName:  rec.LastName,
			Gender:    rec.Gender,
			Level:     rec.Level,
		})

		var songID, artistID *string
		if rec.Song != nil && rec.Artist != nil && rec.Length != nil {
			var err error
			songID, artistID, err = resolver.ResolveSong(ctx, *rec.Song, *rec.Artist, *rec.Length)
			if err != nil {
				return EventBatch{}, err
			}
		}

		b.Songplays = append(b.Songplays, storage.SongplayRow{
			SongplayID: ids.Next(rec.Index),
			StartTime:  tr.StartTime,
			UserID:     rec.UserID,
			Level:      rec.Level,
			SongID:     songID,
			ArtistID:   artistID,
			SessionID:  rec.SessionID,
			Location:   rec.Location,
			UserAgent:  rec.UserAgent,
		})
	}
	return b, nil
}
