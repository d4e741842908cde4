package transformer

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"

	"sparkify/internal/storage"
)

// SongResolver maps a play's (title, artist name, duration) triple onto
// catalog ids. Both ids are nil when the play cannot be resolved.
type SongResolver interface {
	ResolveSong(ctx context.Context, title, artist string, length float64) (songID, artistID *string, err error)
}

// LookupFunc is the shape of storage.Tx.LookupSong.
type LookupFunc func(ctx context.Context, title, artist string, duration float64) ([]storage.SongMatch, error)

// ExactMatch resolves by exact equality on all three fields. Exactly one
// catalog match resolves; none or several leave the play unresolved.
type ExactMatch struct {
	Lookup LookupFunc
}

func (m ExactMatch) ResolveSong(ctx context.Context, title, artist string, length float64) (*string, *string, error) {
	matches, err := m.Lookup(ctx, title, artist, length)
	if err != nil {
		return nil, nil, err
	}
	if len(matches) != 1 {
		return nil, nil, nil
	}
	songID, artistID := matches[0].SongID, matches[0].ArtistID
	return &songID, &artistID, nil
}

// IDSource hands out songplay ids. index is the record's 0-based position in
// its source file.
type IDSource interface {
	Next(index int) int64
}

// SnowflakeIDs issues globally unique, time-ordered ids.
type SnowflakeIDs struct {
	node *snowflake.Node
}

// NewSnowflakeIDs creates a generator for node (0..1023).
func NewSnowflakeIDs(node int64) (*SnowflakeIDs, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", node, err)
	}
	return &SnowflakeIDs{node: n}, nil
}

func (s *SnowflakeIDs) Next(int) int64 { return s.node.Generate().Int64() }

// FilePositionIDs uses the record's position in its file as the id. Ids
// repeat across files, so the destination must not enforce a unique
// songplay_id in this mode.
type FilePositionIDs struct{}

func (FilePositionIDs) Next(index int) int64 { return int64(index) }

// NewIDSource builds the generator named by kind: "snowflake" (default) or
// "file_position".
func NewIDSource(kind string, node int64) (IDSource, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "snowflake":
		return NewSnowflakeIDs(node)
	case "file_position":
		return FilePositionIDs{}, nil
	default:
		return nil, fmt.Errorf("unknown songplay id source %q (want snowflake|file_position)", kind)
	}
}
