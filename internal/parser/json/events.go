package json

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"sparkify/internal/etlerr"
	"sparkify/internal/record"
)

// MaxLineBytes bounds a single activity-log line.
const MaxLineBytes = 4 << 20

// BadLinePolicy decides what happens to a line that is not valid JSON or
// fails the schema check.
type BadLinePolicy int

const (
	// AbortFile fails the whole file on the first bad line.
	AbortFile BadLinePolicy = iota
	// SkipRecord reports the bad line and continues with the next one.
	SkipRecord
)

func (p BadLinePolicy) String() string {
	switch p {
	case AbortFile:
		return "abort_file"
	case SkipRecord:
		return "skip_record"
	default:
		return fmt.Sprintf("BadLinePolicy(%d)", int(p))
	}
}

// ParseBadLinePolicy parses a config value. Empty means AbortFile.
func ParseBadLinePolicy(s string) (BadLinePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort_file", "abort":
		return AbortFile, nil
	case "skip_record", "skip":
		return SkipRecord, nil
	default:
		return AbortFile, fmt.Errorf("unknown bad-line policy %q (want abort_file|skip_record)", s)
	}
}

// StreamEvents decodes newline-delimited activity events from r and calls
// emit once per record, in file order.
//
// Blank lines are ignored. Event.Line is the 1-based physical line; Event.Index
// is the 0-based position among the records decoded from the file, counting
// every page type.
//
// Under SkipRecord, bad lines are collected into skipped and do not consume an
// Index. Under AbortFile the first bad line is returned as err. An error from
// emit stops the stream and is returned unchanged.
func StreamEvents(
	ctx context.Context,
	r io.Reader,
	source string,
	policy BadLinePolicy,
	emit func(record.Event) error,
) (skipped []error, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)

	line, index := 0, 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return skipped, err
		}

		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}

		ev, err := decodeEvent(b, source, line)
		if err != nil {
			if policy == SkipRecord {
				skipped = append(skipped, err)
				continue
			}
			return skipped, err
		}

		ev.Index = index
		index++
		if err := emit(ev); err != nil {
			return skipped, err
		}
	}

	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return skipped, &etlerr.MalformedRecordError{Path: source, Line: line + 1, Err: err}
		}
		return skipped, fmt.Errorf("read %s: %w", source, err)
	}
	return skipped, nil
}

// ReadEventFile opens path and collects every record StreamEvents yields.
func ReadEventFile(ctx context.Context, path string, policy BadLinePolicy) ([]record.Event, []error, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	var out []record.Event
	skipped, err := StreamEvents(ctx, fh, path, policy, func(ev record.Event) error {
		out = append(out, ev)
		return nil
	})
	if err != nil {
		return nil, skipped, err
	}
	return out, skipped, nil
}

// decodeEvent checks ts and page on every line, and the full play schema only
// on NextSong lines. Other pages never reach the destination, so their
// remaining keys are not required.
func decodeEvent(b []byte, source string, line int) (record.Event, error) {
	f, err := parseObject(b, source, line)
	if err != nil {
		return record.Event{}, err
	}

	ev := record.Event{
		Line: line,
		TS:   f.int64("ts"),
		Page: f.str("page"),
	}
	if f.err != nil {
		return record.Event{}, f.err
	}
	if !ev.IsPlay() {
		return ev, nil
	}

	ev.UserID = f.id("userId")
	ev.FirstName = f.str("firstName")
	ev.LastName = f.str("lastName")
	ev.Gender = f.str("gender")
	ev.Level = f.str("level")
	ev.Song = f.optStr("song")
	ev.Artist = f.optStr("artist")
	ev.Length = f.optFloat("length")
	ev.SessionID = f.int64("sessionId")
	ev.Location = f.str("location")
	ev.UserAgent = f.str("userAgent")
	if f.err != nil {
		return record.Event{}, f.err
	}
	return ev, nil
}
