// Package json reads song metadata files and newline-delimited event log
// files into typed records.
//
// Both readers accept an optional UTF-8 byte order mark and report every
// failure as *records.ParseError so the caller sees one error kind.
package json

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"sparkify/internal/records"
)

// maxLineBytes bounds one log line. Events are a few hundred bytes; the cap
// only guards against a file that is not line-delimited at all.
const maxLineBytes = 4 << 20

// ErrEmptyFile is returned (wrapped in a ParseError) for a song file with no record.
var ErrEmptyFile = errors.New("no record in file")

// utf8Reader strips a leading BOM and validates the stream as UTF-8.
func utf8Reader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// ReadSongFile opens path and decodes its song record.
func ReadSongFile(path string) (records.SongRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return records.SongRecord{}, &records.ParseError{Path: path, Err: err}
	}
	defer f.Close()

	rec, err := DecodeSong(f)
	if err != nil {
		return records.SongRecord{}, withPath(err, path)
	}
	return rec, nil
}

// DecodeSong decodes the first song record in r.
//
// A song file normally holds exactly one object. A root array, or several
// objects one per line, is accepted and only the first record is used.
// Missing identity fields are reported as a ParseError naming the field.
func DecodeSong(r io.Reader) (records.SongRecord, error) {
	dec := json.NewDecoder(utf8Reader(r))

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return records.SongRecord{}, &records.ParseError{Err: ErrEmptyFile}
		}
		return records.SongRecord{}, &records.ParseError{Err: fmt.Errorf("json: decode song: %w", err)}
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var all []records.SongRecord
		if err := json.Unmarshal(raw, &all); err != nil {
			return records.SongRecord{}, &records.ParseError{Err: fmt.Errorf("json: decode song array: %w", err)}
		}
		if len(all) == 0 {
			return records.SongRecord{}, &records.ParseError{Err: ErrEmptyFile}
		}
		return all[0], all[0].Validate()
	}

	var rec records.SongRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return records.SongRecord{}, &records.ParseError{Err: fmt.Errorf("json: decode song: %w", err)}
	}
	return rec, rec.Validate()
}

// ReadLogFile opens path and decodes every event line.
func ReadLogFile(path string) ([]records.LogEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &records.ParseError{Path: path, Err: err}
	}
	defer f.Close()

	events, err := DecodeLog(f)
	if err != nil {
		return nil, withPath(err, path)
	}
	return events, nil
}

// DecodeLog decodes one JSON object per line. Blank lines are skipped.
// Field presence is not checked here: only play events must carry the
// user and session fields, and the transformer filters by page first.
func DecodeLog(r io.Reader) ([]records.LogEvent, error) {
	sc := bufio.NewScanner(utf8Reader(r))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var events []records.LogEvent
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}

		var ev records.LogEvent
		if err := json.Unmarshal(b, &ev); err != nil {
			return nil, &records.ParseError{Line: line, Err: fmt.Errorf("json: decode event: %w", err)}
		}
		ev.Line = line
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, &records.ParseError{Line: line + 1, Err: err}
	}
	return events, nil
}

// withPath fills in the file path on a ParseError produced by a decoder.
func withPath(err error, path string) error {
	var pe *records.ParseError
	if errors.As(err, &pe) && pe.Path == "" {
		pe.Path = path
		return pe
	}
	return &records.ParseError{Path: path, Err: err}
}
