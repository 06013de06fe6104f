package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDecode_JSONAndYAML(t *testing.T) {
	t.Parallel()

	jsonIn := `{
  "job": "nightly",
  "source": {"song_data": "s", "log_data": "l"},
  "storage": {"kind": "sqlite", "dsn": "file:etl.db"},
  "transform": {"correct_artist_longitude": true, "timezone": "UTC"},
  "on_row_error": "abort"
}`
	yamlIn := `
job: nightly
source:
  song_data: s
  log_data: l
storage:
  kind: sqlite
  dsn: file:etl.db
transform:
  correct_artist_longitude: true
  timezone: UTC
on_row_error: abort
`
	tests := []struct {
		path string
		in   string
	}{
		{"p.json", jsonIn},
		{"p.yaml", yamlIn},
		{"P.YML", yamlIn},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			var p Pipeline
			if err := Decode(tt.path, []byte(tt.in), &p); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			want := Pipeline{
				Job:        "nightly",
				Source:     Source{SongData: "s", LogData: "l"},
				Storage:    Storage{Kind: "sqlite", DSN: "file:etl.db"},
				Transform:  Transform{CorrectArtistLongitude: true, Timezone: "UTC"},
				OnRowError: "abort",
			}
			if p != want {
				t.Fatalf("got %+v\nwant %+v", p, want)
			}
		})
	}
}

func TestDecode_JSONRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	var p Pipeline
	err := Decode("p.json", []byte(`{"storag": {}}`), &p)
	if err == nil || !strings.Contains(err.Error(), "storag") {
		t.Fatalf("err=%v, want unknown field error", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "nope.json")); err == nil || !strings.Contains(err.Error(), "read config:") {
		t.Fatalf("missing file err=%v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "parse config:") {
		t.Fatalf("bad file err=%v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Setenv("SPARKIFY_TEST_PW", "s3cret")

	p := Pipeline{Storage: Storage{DSN: " postgres://u:${SPARKIFY_TEST_PW}@h/db "}}
	p.ApplyDefaults()

	if p.Job != DefaultJob || p.Source.SongData != DefaultSongData || p.Source.LogData != DefaultLogData {
		t.Fatalf("source defaults not applied: %+v", p)
	}
	if p.Source.Ext != ".json" || p.Storage.Kind != "postgres" || p.Transform.SongPlayPage != "NextSong" {
		t.Fatalf("defaults not applied: %+v", p)
	}
	if p.OnRowError != OnRowErrorContinue {
		t.Fatalf("on_row_error=%q", p.OnRowError)
	}
	if p.Storage.DSN != "postgres://u:s3cret@h/db" {
		t.Fatalf("dsn=%q", p.Storage.DSN)
	}
}

func TestLocation(t *testing.T) {
	t.Parallel()

	for _, tz := range []string{"", "Local", "local"} {
		loc, err := Pipeline{Transform: Transform{Timezone: tz}}.Location()
		if err != nil || loc != time.Local {
			t.Fatalf("tz=%q: loc=%v err=%v", tz, loc, err)
		}
	}

	loc, err := Pipeline{Transform: Transform{Timezone: "UTC"}}.Location()
	if err != nil || loc.String() != "UTC" {
		t.Fatalf("UTC: loc=%v err=%v", loc, err)
	}

	if _, err := (Pipeline{Transform: Transform{Timezone: "Mars/Olympus"}}).Location(); err == nil {
		t.Fatalf("want error for unknown zone")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	if err := os.WriteFile(env, []byte("SPARKIFY_DOTENV_A=from-file\nSPARKIFY_DOTENV_B=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SPARKIFY_DOTENV_B", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("SPARKIFY_DOTENV_A") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), env); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("SPARKIFY_DOTENV_A"); got != "from-file" {
		t.Fatalf("A=%q", got)
	}
	if got := os.Getenv("SPARKIFY_DOTENV_B"); got != "from-env" {
		t.Fatalf("B=%q, existing env must win", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "none.env")); err != nil {
		t.Fatalf("missing only: %v", err)
	}
}

func validPipeline(t *testing.T) Pipeline {
	t.Helper()
	dir := t.TempDir()
	songs := filepath.Join(dir, "song_data")
	logs := filepath.Join(dir, "log_data")
	for _, d := range []string{songs, logs} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	p := Pipeline{
		Source:    Source{SongData: songs, LogData: logs},
		Storage:   Storage{Kind: "sqlite", DSN: ":memory:"},
		Transform: Transform{CorrectArtistLongitude: true, Timezone: "UTC"},
	}
	p.ApplyDefaults()
	return p
}

func TestValidatePipeline_Clean(t *testing.T) {
	t.Parallel()

	if issues := ValidatePipeline(validPipeline(t)); len(issues) != 0 {
		t.Fatalf("issues=%+v, want none", issues)
	}
}

func TestValidatePipeline_Findings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mut      func(*Pipeline)
		wantPath string
		wantSev  Severity
	}{
		{"unknown kind", func(p *Pipeline) { p.Storage.Kind = "oracle" }, "storage.kind", SeverityError},
		{"empty kind", func(p *Pipeline) { p.Storage.Kind = "" }, "storage.kind", SeverityError},
		{"missing dsn", func(p *Pipeline) { p.Storage.DSN = "" }, "storage.dsn", SeverityError},
		{"bad policy", func(p *Pipeline) { p.OnRowError = "retry" }, "on_row_error", SeverityError},
		{"bad timezone", func(p *Pipeline) { p.Transform.Timezone = "Nowhere/Else" }, "transform.timezone", SeverityError},
		{"ext without dot", func(p *Pipeline) { p.Source.Ext = "json" }, "source.ext", SeverityWarning},
		{"same roots", func(p *Pipeline) { p.Source.LogData = p.Source.SongData }, "source.log_data", SeverityWarning},
		{"missing root", func(p *Pipeline) { p.Source.SongData = filepath.Join(p.Source.SongData, "x") }, "source.song_data", SeverityWarning},
		{"legacy longitude", func(p *Pipeline) { p.Transform.CorrectArtistLongitude = false }, "transform.correct_artist_longitude", SeverityWarning},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := validPipeline(t)
			tt.mut(&p)

			issues := ValidatePipeline(p)
			var found *Issue
			for i := range issues {
				if issues[i].Path == tt.wantPath {
					found = &issues[i]
					break
				}
			}
			if found == nil {
				t.Fatalf("no issue for %s in %+v", tt.wantPath, issues)
			}
			if found.Severity != tt.wantSev {
				t.Fatalf("severity=%s, want %s", found.Severity, tt.wantSev)
			}
			if HasErrors(issues) != (tt.wantSev == SeverityError) {
				t.Fatalf("HasErrors=%v for %+v", HasErrors(issues), issues)
			}
		})
	}
}

func TestValidatePipeline_MissingDSNMentionsSentinel(t *testing.T) {
	t.Parallel()

	p := validPipeline(t)
	p.Storage.DSN = ""
	for _, iss := range ValidatePipeline(p) {
		if iss.Path == "storage.dsn" && strings.Contains(iss.Message, ErrMissingDSN.Error()) {
			return
		}
	}
	t.Fatalf("missing dsn issue does not carry %v", ErrMissingDSN)
}
