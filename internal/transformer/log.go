package transformer

import (
	"time"

	"sparkify/internal/records"
)

// DefaultSongPlayPage is the page value that marks a song play event.
const DefaultSongPlayPage = "NextSong"

// LogOptions tunes the log path.
type LogOptions struct {
	// SongPlayPage selects play events; empty means DefaultSongPlayPage.
	SongPlayPage string
	// Location is the zone epoch timestamps are read in; nil means time.Local.
	Location *time.Location
}

// LogBatch is everything one log file contributes.
//
// Times and Plays are parallel: one entry per play event, in file order.
// Users holds each user id once, with the fields of its last event, in the
// order the ids first appear.
type LogBatch struct {
	Times []TimeRow
	Users []User
	Plays []PlayCandidate
}

// LogRows filters events to song plays and derives the time, user and
// songplay rows. A play event missing ts, userId, level or sessionId fails
// the whole file with a *records.ParseError.
func LogRows(events []records.LogEvent, opts LogOptions) (LogBatch, error) {
	page := opts.SongPlayPage
	if page == "" {
		page = DefaultSongPlayPage
	}

	var b LogBatch
	userIdx := make(map[int64]int)

	for _, ev := range events {
		if ev.Page != page {
			continue
		}
		if err := ev.Validate(); err != nil {
			return LogBatch{}, err
		}

		start := StartTime(ev.TS.Value, opts.Location)
		b.Times = append(b.Times, Calendar(start))

		u := User{
			UserID:    ev.UserID.Value,
			FirstName: copyString(ev.FirstName),
			LastName:  copyString(ev.LastName),
			Gender:    copyString(ev.Gender),
			Level:     ev.Level,
		}
		if i, ok := userIdx[u.UserID]; ok {
			b.Users[i] = u
		} else {
			userIdx[u.UserID] = len(b.Users)
			b.Users = append(b.Users, u)
		}

		b.Plays = append(b.Plays, PlayCandidate{
			Songplay: Songplay{
				StartTime: start,
				UserID:    ev.UserID.Value,
				Level:     ev.Level,
				SessionID: ev.SessionID.Value,
				Location:  copyString(ev.Location),
				UserAgent: copyString(ev.UserAgent),
			},
			Lookup: LookupKey{
				Song:   copyString(ev.Song),
				Artist: copyString(ev.Artist),
				Length: copyFloat(ev.Length),
			},
			Line: ev.Line,
		})
	}
	return b, nil
}
