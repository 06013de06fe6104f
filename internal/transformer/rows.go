// Package transformer turns typed input records into rows for the star
// schema tables. It does no I/O; the pipeline persists what it returns.
//
// Every Args method returns plain Go scalars (string, int, int64, float64,
// time.Time) or untyped nil, in the column order the storage Statements
// expect. No decoder wrapper type reaches a driver.
package transformer

import "time"

// Song is one row of the songs dimension.
type Song struct {
	SongID   string
	Title    string
	ArtistID string
	Year     int
	Duration float64
}

func (s Song) Args() []any {
	return []any{s.SongID, s.Title, s.ArtistID, s.Year, s.Duration}
}

// Artist is one row of the artists dimension.
type Artist struct {
	ArtistID  string
	Name      string
	Location  *string
	Latitude  *float64
	Longitude *float64
}

func (a Artist) Args() []any {
	return []any{a.ArtistID, a.Name, str(a.Location), float(a.Latitude), float(a.Longitude)}
}

// User is one row of the users dimension.
type User struct {
	UserID    int64
	FirstName *string
	LastName  *string
	Gender    *string
	Level     string
}

func (u User) Args() []any {
	return []any{u.UserID, str(u.FirstName), str(u.LastName), str(u.Gender), u.Level}
}

// TimeRow is one row of the time dimension. StartTime is a wall clock
// reading; its Location is always UTC and carries no meaning.
type TimeRow struct {
	StartTime time.Time
	Hour      int
	Day       int
	Week      int
	Month     int
	Year      int
	Weekday   int
}

func (t TimeRow) Args() []any {
	return []any{t.StartTime, t.Hour, t.Day, t.Week, t.Month, t.Year, t.Weekday}
}

// Songplay is one row of the songplays fact table. SongplayID is assigned
// by the database and is not part of the row.
type Songplay struct {
	StartTime time.Time
	UserID    int64
	Level     string
	SongID    *string
	ArtistID  *string
	SessionID int64
	Location  *string
	UserAgent *string
}

func (p Songplay) Args() []any {
	return []any{
		p.StartTime, p.UserID, p.Level,
		str(p.SongID), str(p.ArtistID),
		p.SessionID, str(p.Location), str(p.UserAgent),
	}
}

// LookupKey is the (title, artist name, duration) triple used to resolve a
// play to a loaded song and artist.
type LookupKey struct {
	Song   *string
	Artist *string
	Length *float64
}

// Complete reports whether all three parts are present. An incomplete key
// cannot match any row, so the pipeline skips the query.
func (k LookupKey) Complete() bool {
	return k.Song != nil && k.Artist != nil && k.Length != nil
}

func (k LookupKey) Args() []any {
	return []any{str(k.Song), str(k.Artist), float(k.Length)}
}

// PlayCandidate is a songplay whose song and artist ids are not resolved yet.
type PlayCandidate struct {
	Songplay Songplay
	Lookup   LookupKey
	Line     int
}

// Resolve returns the songplay with the looked-up ids filled in.
// Empty ids leave both columns null.
func (c PlayCandidate) Resolve(songID, artistID string) Songplay {
	p := c.Songplay
	if songID != "" && artistID != "" {
		p.SongID = &songID
		p.ArtistID = &artistID
	}
	return p
}

func str(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func float(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
