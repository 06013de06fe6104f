package transformer

import (
	"reflect"
	"testing"
	"time"

	"sparkify/internal/records"
)

func strp(s string) *string     { return &s }
func floatp(f float64) *float64 { return &f }

func songRecord() records.SongRecord {
	return records.SongRecord{
		SongID:          "S1",
		Title:           "T",
		ArtistID:        "A1",
		ArtistName:      "N",
		ArtistLocation:  strp("L"),
		ArtistLatitude:  floatp(1.0),
		ArtistLongitude: floatp(2.0),
		Year:            2000,
		Duration:        200.5,
	}
}

func TestSongRows_EndToEndScenario(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    SongOptions
		wantLon float64
	}{
		{"legacy longitude", SongOptions{}, 1.0},
		{"corrected longitude", SongOptions{CorrectArtistLongitude: true}, 2.0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			song, artist := SongRows(songRecord(), tt.opts)

			wantSong := []any{"S1", "T", "A1", 2000, 200.5}
			if got := song.Args(); !reflect.DeepEqual(got, wantSong) {
				t.Fatalf("song.Args()=%#v, want %#v", got, wantSong)
			}
			wantArtist := []any{"A1", "N", "L", 1.0, tt.wantLon}
			if got := artist.Args(); !reflect.DeepEqual(got, wantArtist) {
				t.Fatalf("artist.Args()=%#v, want %#v", got, wantArtist)
			}
		})
	}
}

func TestSongRows_NullCoordinatesStayNil(t *testing.T) {
	t.Parallel()

	rec := songRecord()
	rec.ArtistLocation = nil
	rec.ArtistLatitude = nil
	rec.ArtistLongitude = nil

	_, artist := SongRows(rec, SongOptions{CorrectArtistLongitude: true})
	args := artist.Args()
	for i := 2; i < 5; i++ {
		if args[i] != nil {
			t.Fatalf("args[%d]=%#v, want untyped nil", i, args[i])
		}
	}
}

func TestSongRows_DoesNotAliasRecord(t *testing.T) {
	t.Parallel()

	rec := songRecord()
	_, artist := SongRows(rec, SongOptions{})
	*rec.ArtistLatitude = 99

	if *artist.Latitude != 1.0 {
		t.Fatalf("artist latitude changed with record: %v", *artist.Latitude)
	}
}

func TestCalendar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		at   time.Time
		want TimeRow
	}{
		{
			name: "thursday",
			at:   time.Date(2018, 11, 1, 21, 1, 46, 0, time.UTC),
			want: TimeRow{Hour: 21, Day: 1, Week: 44, Month: 11, Year: 2018, Weekday: 3},
		},
		{
			name: "monday",
			at:   time.Date(2018, 11, 5, 0, 0, 0, 0, time.UTC),
			want: TimeRow{Hour: 0, Day: 5, Week: 45, Month: 11, Year: 2018, Weekday: 0},
		},
		{
			name: "sunday",
			at:   time.Date(2018, 11, 4, 23, 59, 59, 0, time.UTC),
			want: TimeRow{Hour: 23, Day: 4, Week: 44, Month: 11, Year: 2018, Weekday: 6},
		},
		{
			// ISO week 1 of 2019 starts on Monday 2018-12-31.
			name: "iso year boundary",
			at:   time.Date(2018, 12, 31, 12, 0, 0, 0, time.UTC),
			want: TimeRow{Hour: 12, Day: 31, Week: 1, Month: 12, Year: 2018, Weekday: 0},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Calendar(tt.at)
			tt.want.StartTime = tt.at
			if got != tt.want {
				t.Fatalf("Calendar=%+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStartTime_WallClockInLocation(t *testing.T) {
	t.Parallel()

	// 2018-11-01T21:01:46.796Z
	const ts = int64(1541106106796)

	got := StartTime(ts, time.UTC)
	want := time.Date(2018, 11, 1, 21, 1, 46, 796000000, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("UTC: got %v, want %v", got, want)
	}

	east := time.FixedZone("UTC+2", 2*60*60)
	got = StartTime(ts, east)
	want = time.Date(2018, 11, 1, 23, 1, 46, 796000000, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("UTC+2: got %v, want wall clock %v tagged UTC", got, want)
	}
}

func playEvent(user string, level string, ts int64) records.LogEvent {
	var uid records.Int
	_ = uid.UnmarshalJSON([]byte(`"` + user + `"`))
	return records.LogEvent{
		Page:      "NextSong",
		TS:        records.Int{Value: ts, Valid: true},
		UserID:    uid,
		FirstName: strp("F" + user),
		LastName:  strp("L" + user),
		Gender:    strp("F"),
		Level:     level,
		SessionID: records.Int{Value: 1, Valid: true},
		Song:      strp("T"),
		Artist:    strp("N"),
		Length:    floatp(200.5),
		Location:  strp("Here"),
		UserAgent: strp("UA"),
	}
}

func TestLogRows_FiltersAndCounts(t *testing.T) {
	t.Parallel()

	home := playEvent("", "free", 0)
	home.Page = "Home"
	home.UserID = records.Int{}

	events := []records.LogEvent{
		playEvent("10", "free", 1541106106796),
		home,
		playEvent("11", "paid", 1541106106800),
		playEvent("10", "free", 1541106106900),
	}

	b, err := LogRows(events, LogOptions{Location: time.UTC})
	if err != nil {
		t.Fatalf("LogRows: %v", err)
	}
	if len(b.Times) != 3 || len(b.Plays) != 3 {
		t.Fatalf("times=%d plays=%d, want 3 each", len(b.Times), len(b.Plays))
	}
	if len(b.Users) != 2 {
		t.Fatalf("users=%d, want 2", len(b.Users))
	}
	if b.Users[0].UserID != 10 || b.Users[1].UserID != 11 {
		t.Fatalf("user order=%d,%d, want 10,11", b.Users[0].UserID, b.Users[1].UserID)
	}

	p := b.Plays[0]
	if !p.Lookup.Complete() || p.Songplay.UserID != 10 || p.Songplay.SongID != nil {
		t.Fatalf("play[0]=%+v", p)
	}
	if !p.Songplay.StartTime.Equal(b.Times[0].StartTime) {
		t.Fatalf("songplay start %v != time start %v", p.Songplay.StartTime, b.Times[0].StartTime)
	}
}

func TestLogRows_UserDedupLastWins(t *testing.T) {
	t.Parallel()

	events := []records.LogEvent{
		playEvent("10", "free", 1),
		playEvent("10", "free", 2),
		playEvent("10", "paid", 3),
	}

	b, err := LogRows(events, LogOptions{Location: time.UTC})
	if err != nil {
		t.Fatalf("LogRows: %v", err)
	}
	if len(b.Users) != 1 {
		t.Fatalf("users=%d, want 1", len(b.Users))
	}
	if b.Users[0].Level != "paid" {
		t.Fatalf("level=%q, want paid (last occurrence)", b.Users[0].Level)
	}
	if len(b.Times) != 3 || len(b.Plays) != 3 {
		t.Fatalf("times=%d plays=%d, want 3 each", len(b.Times), len(b.Plays))
	}
}

func TestLogRows_CustomPage(t *testing.T) {
	t.Parallel()

	ev := playEvent("10", "free", 1)
	ev.Page = "Play"

	b, err := LogRows([]records.LogEvent{ev, playEvent("11", "free", 2)}, LogOptions{SongPlayPage: "Play"})
	if err != nil {
		t.Fatalf("LogRows: %v", err)
	}
	if len(b.Plays) != 1 || b.Plays[0].Songplay.UserID != 10 {
		t.Fatalf("plays=%+v", b.Plays)
	}
}

func TestLogRows_MissingFieldOnPlayIsParseError(t *testing.T) {
	t.Parallel()

	bad := playEvent("", "free", 1)
	bad.Line = 4

	_, err := LogRows([]records.LogEvent{playEvent("10", "free", 1), bad}, LogOptions{})
	pe, ok := err.(*records.ParseError)
	if !ok {
		t.Fatalf("err=%v (%T), want *records.ParseError", err, err)
	}
	if pe.Field != "userId" || pe.Line != 4 {
		t.Fatalf("field=%q line=%d", pe.Field, pe.Line)
	}
}

func TestPlayCandidate_Resolve(t *testing.T) {
	t.Parallel()

	c := PlayCandidate{Songplay: Songplay{UserID: 10, Level: "free"}}

	hit := c.Resolve("S1", "A1")
	if hit.SongID == nil || *hit.SongID != "S1" || hit.ArtistID == nil || *hit.ArtistID != "A1" {
		t.Fatalf("hit=%+v", hit)
	}
	miss := c.Resolve("", "")
	args := miss.Args()
	if args[3] != nil || args[4] != nil {
		t.Fatalf("miss args song/artist=%#v,%#v, want nil", args[3], args[4])
	}
	if c.Songplay.SongID != nil {
		t.Fatalf("Resolve mutated candidate")
	}
}

func TestLookupKey_Complete(t *testing.T) {
	t.Parallel()

	k := LookupKey{Song: strp("T"), Artist: strp("N")}
	if k.Complete() {
		t.Fatalf("key without length reported complete")
	}
	k.Length = floatp(1)
	if !k.Complete() {
		t.Fatalf("full key reported incomplete")
	}
}
