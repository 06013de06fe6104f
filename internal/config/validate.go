package config

import (
	"fmt"
	"os"
	"strings"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding from ValidatePipeline. Path is the dotted config key.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// KnownStorageKinds lists the backends the binaries register.
var KnownStorageKinds = []string{"postgres", "sqlite", "mssql"}

// ValidatePipeline checks a defaulted Pipeline. Errors make the run
// impossible; warnings flag settings that load surprising data.
func ValidatePipeline(p Pipeline) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, args ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	switch {
	case p.Storage.Kind == "":
		add(SeverityError, "storage.kind", "is required (one of %s)", strings.Join(KnownStorageKinds, ", "))
	case !contains(KnownStorageKinds, p.Storage.Kind):
		add(SeverityError, "storage.kind", "unsupported kind %q (one of %s)", p.Storage.Kind, strings.Join(KnownStorageKinds, ", "))
	}
	if p.Storage.DSN == "" {
		add(SeverityError, "storage.dsn", "%v", ErrMissingDSN)
	}

	switch p.OnRowError {
	case OnRowErrorContinue, OnRowErrorAbort:
	default:
		add(SeverityError, "on_row_error", "must be %q or %q, got %q", OnRowErrorContinue, OnRowErrorAbort, p.OnRowError)
	}

	if _, err := p.Location(); err != nil {
		add(SeverityError, "transform.timezone", "%v", err)
	}

	if p.Source.Ext != "" && !strings.HasPrefix(p.Source.Ext, ".") {
		add(SeverityWarning, "source.ext", "%q has no leading dot; matching %q", p.Source.Ext, "."+p.Source.Ext)
	}
	if p.Source.SongData != "" && p.Source.SongData == p.Source.LogData {
		add(SeverityWarning, "source.log_data", "same directory as source.song_data")
	}
	for _, root := range []struct{ path, dir string }{
		{"source.song_data", p.Source.SongData},
		{"source.log_data", p.Source.LogData},
	} {
		if root.dir == "" {
			continue
		}
		if fi, err := os.Stat(root.dir); err != nil || !fi.IsDir() {
			add(SeverityWarning, root.path, "directory %q not found; the pass will find no files", root.dir)
		}
	}

	if !p.Transform.CorrectArtistLongitude {
		add(SeverityWarning, "transform.correct_artist_longitude",
			"false: artists.longitude is loaded from artist_latitude")
	}
	return out
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
