// Package records holds the typed input records read from song metadata files
// and event log files, plus the parse error kind shared by both.
package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingField marks a record that lacks a field the transformer needs.
var ErrMissingField = errors.New("missing required field")

// ParseError reports a malformed file or record.
//
// Line is 1-based for log files and 0 when the error concerns the whole file.
// Field is empty unless a specific field is missing or invalid.
type ParseError struct {
	Path  string
	Line  int
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse ")
	b.WriteString(e.Path)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field=%s", e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// SongRecord is one song metadata object.
type SongRecord struct {
	SongID          string   `json:"song_id"`
	Title           string   `json:"title"`
	ArtistID        string   `json:"artist_id"`
	ArtistName      string   `json:"artist_name"`
	ArtistLocation  *string  `json:"artist_location"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	Year            int      `json:"year"`
	Duration        float64  `json:"duration"`
	NumSongs        int      `json:"num_songs"`
}

// Validate checks the fields the song and artist rows cannot do without.
func (r SongRecord) Validate() error {
	for _, f := range []struct {
		name, val string
	}{
		{"song_id", r.SongID},
		{"title", r.Title},
		{"artist_id", r.ArtistID},
		{"artist_name", r.ArtistName},
	} {
		if f.val == "" {
			return &ParseError{Field: f.name, Err: ErrMissingField}
		}
	}
	return nil
}

// LogEvent is one line of an event log file.
//
// userId arrives as a string ("10") on play events and as "" on anonymous
// page views, so it is decoded through Int. Song, Artist and Length are the
// lookup key for the songs/artists join and are absent on non-play pages.
type LogEvent struct {
	Artist        *string  `json:"artist"`
	Auth          string   `json:"auth"`
	FirstName     *string  `json:"firstName"`
	Gender        *string  `json:"gender"`
	ItemInSession int      `json:"itemInSession"`
	LastName      *string  `json:"lastName"`
	Length        *float64 `json:"length"`
	Level         string   `json:"level"`
	Location      *string  `json:"location"`
	Method        string   `json:"method"`
	Page          string   `json:"page"`
	Registration  *float64 `json:"registration"`
	SessionID     Int      `json:"sessionId"`
	Song          *string  `json:"song"`
	Status        int      `json:"status"`
	TS            Int      `json:"ts"`
	UserAgent     *string  `json:"userAgent"`
	UserID        Int      `json:"userId"`

	// Line is the 1-based line number within the source file.
	Line int `json:"-"`
}

// Validate checks the fields a play event needs to produce time, user and
// songplay rows.
func (e LogEvent) Validate() error {
	switch {
	case !e.TS.Valid:
		return &ParseError{Line: e.Line, Field: "ts", Err: ErrMissingField}
	case !e.UserID.Valid:
		return &ParseError{Line: e.Line, Field: "userId", Err: ErrMissingField}
	case e.Level == "":
		return &ParseError{Line: e.Line, Field: "level", Err: ErrMissingField}
	case !e.SessionID.Valid:
		return &ParseError{Line: e.Line, Field: "sessionId", Err: ErrMissingField}
	}
	return nil
}

// Int is an integer that accepts a JSON number or a numeric string.
// null and "" leave Valid false.
type Int struct {
	Value int64
	Valid bool
}

func (n *Int) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = Int{}
		return nil
	}

	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = Int{}
			return nil
		}
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some exports write integral ids as floats ("10.0").
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return fmt.Errorf("not an integer: %s", b)
		}
		v = int64(f)
	}
	*n = Int{Value: v, Valid: true}
	return nil
}
