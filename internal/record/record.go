// Package record holds the typed source records produced by the parsers.
package record

// PageNextSong is the activity-log page value that marks a playback event.
const PageNextSong = "NextSong"

// Song is one catalog metadata file.
type Song struct {
	SongID          string
	Title           string
	ArtistID        string
	Year            int
	Duration        float64
	ArtistName      string
	ArtistLocation  *string
	ArtistLatitude  *float64
	ArtistLongitude *float64
}

// Event is one activity-log line.
//
// Index is the 0-based position of the record among the records of its file,
// counting every page type. Line is the 1-based physical line number.
type Event struct {
	Index int
	Line  int

	TS        int64
	Page      string
	UserID    string
	FirstName string
	LastName  string
	Gender    string
	Level     string
	Song      *string
	Artist    *string
	Length    *float64
	SessionID int64
	Location  string
	UserAgent string
}

// IsPlay reports whether the event is a playback event.
func (e Event) IsPlay() bool { return e.Page == PageNextSong }
