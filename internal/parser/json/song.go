// Package json decodes the two source formats: single-object catalog files
// and newline-delimited activity logs.
package json

import (
	"fmt"
	"io"
	"os"

	"sparkify/internal/record"
)

// DecodeSong reads one catalog object from r. source is used in errors.
//
// All nine catalog keys must be present. artist_location, artist_latitude and
// artist_longitude may be null; year must be >= 0 (0 means unknown).
func DecodeSong(r io.Reader, source string) (record.Song, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return record.Song{}, fmt.Errorf("read %s: %w", source, err)
	}

	f, err := parseObject(data, source, 0)
	if err != nil {
		return record.Song{}, err
	}

	s := record.Song{
		SongID:          f.nonEmptyStr("song_id"),
		Title:           f.str("title"),
		ArtistID:        f.nonEmptyStr("artist_id"),
		Year:            int(f.int64("year")),
		Duration:        f.float("duration"),
		ArtistName:      f.str("artist_name"),
		ArtistLocation:  f.optStr("artist_location"),
		ArtistLatitude:  f.optFloat("artist_latitude"),
		ArtistLongitude: f.optFloat("artist_longitude"),
	}
	if f.err == nil && s.Year < 0 {
		f.fail("year", "negative", nil)
	}
	if f.err != nil {
		return record.Song{}, f.err
	}
	return s, nil
}

// ReadSongFile opens path and decodes it with DecodeSong.
func ReadSongFile(path string) (record.Song, error) {
	fh, err := os.Open(path)
	if err != nil {
		return record.Song{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()
	return DecodeSong(fh, path)
}
