package json

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparkify/internal/etlerr"
	"sparkify/internal/record"
)

const (
	playLine = `{"artist":"Des'ree","auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":1,` +
		`"lastName":"Summers","length":246.30812,"level":"free","location":"Phoenix-Mesa-Scottsdale, AZ",` +
		`"method":"PUT","page":"NextSong","registration":1540344794796.0,"sessionId":139,"song":"You Gotta Be",` +
		`"status":200,"ts":1541106106796,"userAgent":"Mozilla/5.0","userId":"8"}`
	homeLine = `{"artist":null,"auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":0,` +
		`"lastName":"Summers","length":null,"level":"free","location":"Phoenix-Mesa-Scottsdale, AZ",` +
		`"method":"GET","page":"Home","registration":1540344794796.0,"sessionId":139,"song":null,` +
		`"status":200,"ts":1541106106000,"userAgent":"Mozilla/5.0","userId":"8"}`
	loggedOutLine = `{"artist":null,"auth":"Logged Out","firstName":null,"gender":null,"itemInSession":0,` +
		`"lastName":null,"length":null,"level":"free","location":null,"method":"GET","page":"Home",` +
		`"registration":null,"sessionId":3,"song":null,"status":200,"ts":1541208000000,"userAgent":null,"userId":""}`
)

func collect(t *testing.T, input string, policy BadLinePolicy) ([]record.Event, []error, error) {
	t.Helper()
	var out []record.Event
	skipped, err := StreamEvents(context.Background(), strings.NewReader(input), "events.json", policy,
		func(ev record.Event) error {
			out = append(out, ev)
			return nil
		})
	return out, skipped, err
}

func TestStreamEvents_DecodesPlayAndKeepsOtherPages(t *testing.T) {
	t.Parallel()

	input := homeLine + "\n\n   \n" + playLine + "\n" + loggedOutLine + "\n"
	evs, skipped, err := collect(t, input, AbortFile)
	require.NoError(t, err)
	require.Empty(t, skipped)
	require.Len(t, evs, 3)

	assert.Equal(t, 0, evs[0].Index)
	assert.Equal(t, 1, evs[0].Line)
	assert.False(t, evs[0].IsPlay())

	play := evs[1]
	assert.Equal(t, 1, play.Index)
	assert.Equal(t, 4, play.Line)
	assert.True(t, play.IsPlay())
	assert.Equal(t, int64(1541106106796), play.TS)
	assert.Equal(t, "8", play.UserID)
	assert.Equal(t, "Kaylee", play.FirstName)
	assert.Equal(t, "Summers", play.LastName)
	assert.Equal(t, "F", play.Gender)
	assert.Equal(t, "free", play.Level)
	require.NotNil(t, play.Song)
	assert.Equal(t, "You Gotta Be", *play.Song)
	require.NotNil(t, play.Artist)
	assert.Equal(t, "Des'ree", *play.Artist)
	require.NotNil(t, play.Length)
	assert.InDelta(t, 246.30812, *play.Length, 0)
	assert.Equal(t, int64(139), play.SessionID)
	assert.Equal(t, "Phoenix-Mesa-Scottsdale, AZ", play.Location)
	assert.Equal(t, "Mozilla/5.0", play.UserAgent)

	assert.Equal(t, 2, evs[2].Index)
}

func TestStreamEvents_NumericUserID(t *testing.T) {
	t.Parallel()

	in := strings.Replace(playLine, `"userId":"8"`, `"userId":8`, 1)
	evs, _, err := collect(t, in, AbortFile)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "8", evs[0].UserID)
}

func TestStreamEvents_NullSongFieldsOnPlay(t *testing.T) {
	t.Parallel()

	in := strings.NewReplacer(`"song":"You Gotta Be"`, `"song":null`, `"length":246.30812`, `"length":null`).Replace(playLine)
	evs, _, err := collect(t, in, AbortFile)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Nil(t, evs[0].Song)
	assert.Nil(t, evs[0].Length)
	assert.NotNil(t, evs[0].Artist)
}

func TestStreamEvents_AbortFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		bad       string
		malformed bool
		field     string
	}{
		{name: "invalid_json", bad: `{"page": "NextSong",`, malformed: true},
		{name: "missing_ts", bad: `{"page":"Home"}`, field: "ts"},
		{name: "play_missing_user", bad: strings.Replace(playLine, `"userId":"8"`, `"x":"8"`, 1), field: "userId"},
		{name: "play_empty_user", bad: strings.Replace(playLine, `"userId":"8"`, `"userId":""`, 1), field: "userId"},
		{name: "play_wrong_session_type", bad: strings.Replace(playLine, `"sessionId":139`, `"sessionId":"139"`, 1), field: "sessionId"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := playLine + "\n" + tc.bad + "\n" + playLine + "\n"
			evs, skipped, err := collect(t, input, AbortFile)
			require.Error(t, err)
			assert.Empty(t, skipped)
			assert.Len(t, evs, 1, "records before the bad line are emitted")

			if tc.malformed {
				var mr *etlerr.MalformedRecordError
				require.True(t, errors.As(err, &mr), "got %v", err)
				assert.Equal(t, 2, mr.Line)
				return
			}
			var se *etlerr.SchemaError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, 2, se.Line)
			assert.Equal(t, tc.field, se.Field)
		})
	}
}

func TestStreamEvents_SkipRecord(t *testing.T) {
	t.Parallel()

	input := playLine + "\nnot json\n" + `{"page":"NextSong","ts":1}` + "\n" + homeLine + "\n"
	evs, skipped, err := collect(t, input, SkipRecord)
	require.NoError(t, err)
	require.Len(t, skipped, 2)
	require.Len(t, evs, 2)
	assert.Equal(t, 0, evs[0].Index)
	assert.Equal(t, 1, evs[1].Index, "skipped lines do not consume an index")
	assert.Equal(t, 4, evs[1].Line)
}

func TestStreamEvents_EmitErrorStops(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	_, err := StreamEvents(context.Background(), strings.NewReader(playLine+"\n"+playLine), "e.json", AbortFile,
		func(record.Event) error {
			calls++
			return boom
		})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestStreamEvents_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := StreamEvents(ctx, strings.NewReader(playLine), "e.json", AbortFile, func(record.Event) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestStreamEvents_LineTooLong(t *testing.T) {
	t.Parallel()

	long := `{"page":"Home","ts":1,"pad":"` + strings.Repeat("x", MaxLineBytes) + `"}`
	_, _, err := collect(t, playLine+"\n"+long, AbortFile)
	var mr *etlerr.MalformedRecordError
	require.True(t, errors.As(err, &mr), "got %v", err)
	assert.Equal(t, 2, mr.Line)
}

func TestReadEventFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "2018-11-01-events.json")
	require.NoError(t, os.WriteFile(path, []byte(homeLine+"\n"+playLine+"\n"), 0o644))

	evs, skipped, err := ReadEventFile(context.Background(), path, AbortFile)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Len(t, evs, 2)
}

func TestParseBadLinePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    BadLinePolicy
		wantErr bool
	}{
		{in: "", want: AbortFile},
		{in: "abort_file", want: AbortFile},
		{in: " Skip_Record ", want: SkipRecord},
		{in: "explode", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseBadLinePolicy(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
	assert.Equal(t, "skip_record", SkipRecord.String())
}
