// Row and table types live in storage so the transformer, the loader and the
// backend packages can share them without import cycles.
package storage

import "time"

// Table describes a destination table the way the loader writes it.
// Key lists the natural-key columns used as the conflict target.
type Table struct {
	Name    string
	Columns []string
	Key     []string
}

// NonKeyColumns returns the columns not in Key, in declaration order.
func (t Table) NonKeyColumns() []string {
	key := make(map[string]bool, len(t.Key))
	for _, k := range t.Key {
		key[k] = true
	}
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !key[c] {
			out = append(out, c)
		}
	}
	return out
}

// KeyIndexes returns the positions of the Key columns within Columns.
func (t Table) KeyIndexes() []int {
	out := make([]int, 0, len(t.Key))
	for _, k := range t.Key {
		for i, c := range t.Columns {
			if c == k {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

var (
	Songs = Table{
		Name:    "songs",
		Columns: []string{"song_id", "title", "artist_id", "year", "duration"},
		Key:     []string{"song_id"},
	}
	Artists = Table{
		Name:    "artists",
		Columns: []string{"artist_id", "name", "location", "latitude", "longitude"},
		Key:     []string{"artist_id"},
	}
	Times = Table{
		Name:    "time",
		Columns: []string{"start_time", "hour", "day", "week", "month", "year", "weekday"},
		Key:     []string{"start_time"},
	}
	Users = Table{
		Name:    "users",
		Columns: []string{"user_id", "first_name", "last_name", "gender", "level"},
		Key:     []string{"user_id"},
	}
	Songplays = Table{
		Name: "songplays",
		Columns: []string{
			"songplay_id", "start_time", "user_id", "level", "song_id",
			"artist_id", "session_id", "location", "user_agent",
		},
		Key: []string{"songplay_id"},
	}
)

// SongRow is a row of the songs dimension.
type SongRow struct {
	SongID   string
	Title    string
	ArtistID string
	Year     int
	Duration float64
}

func (r SongRow) Values() []any {
	return []any{r.SongID, r.Title, r.ArtistID, int64(r.Year), r.Duration}
}

// ArtistRow is a row of the artists dimension.
type ArtistRow struct {
	ArtistID  string
	Name      string
	Location  *string
	Latitude  *float64
	Longitude *float64
}

func (r ArtistRow) Values() []any {
	return []any{r.ArtistID, r.Name, nullable(r.Location), nullable(r.Latitude), nullable(r.Longitude)}
}

// TimeRow is a row of the time dimension. All fields but StartTime are
// derived from StartTime.
type TimeRow struct {
	StartTime time.Time
	Hour      int
	Day       int
	Week      int
	Month     int
	Year      int
	Weekday   int
}

func (r TimeRow) Values() []any {
	return []any{
		r.StartTime, int64(r.Hour), int64(r.Day), int64(r.Week),
		int64(r.Month), int64(r.Year), int64(r.Weekday),
	}
}

// UserRow is a row of the users dimension.
type UserRow struct {
	UserID    string
	FirstName string
	LastName  string
	Gender    string
	Level     string
}

func (r UserRow) Values() []any {
	return []any{r.UserID, r.FirstName, r.LastName, r.Gender, r.Level}
}

// SongplayRow is a row of the songplays fact table. SongID and ArtistID are
// nil when the play could not be resolved against the catalog.
type SongplayRow struct {
	SongplayID int64
	StartTime  time.Time
	UserID     string
	Level      string
	SongID     *string
	ArtistID   *string
	SessionID  int64
	Location   string
	UserAgent  string
}

func (r SongplayRow) Values() []any {
	return []any{
		r.SongplayID, r.StartTime, r.UserID, r.Level, nullable(r.SongID),
		nullable(r.ArtistID), r.SessionID, r.Location, r.UserAgent,
	}
}

// Valuer is implemented by every row type.
type Valuer interface {
	Values() []any
}

// RowValues converts typed rows into positional rows for Tx.Write.
func RowValues[R Valuer](rows []R) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values()
	}
	return out
}

// nullable turns a nil pointer into an untyped nil so every driver binds NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
