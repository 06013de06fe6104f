// Package config loads and validates the loader's pipeline configuration.
//
// A pipeline file is JSON or YAML, chosen by extension. Values may reference
// environment variables (${PGPASSWORD}); LoadDotEnv populates the
// environment from .env files first. CLI flags override file values.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Row error policies for failed song, artist and user inserts.
const (
	OnRowErrorContinue = "continue"
	OnRowErrorAbort    = "abort"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultSongData     = "data/song_data"
	DefaultLogData      = "data/log_data"
	DefaultExt          = ".json"
	DefaultSongPlayPage = "NextSong"
	DefaultStorageKind  = "postgres"
	DefaultJob          = "sparkify-etl"
)

// ErrMissingDSN is reported when no connection string is configured.
var ErrMissingDSN = errors.New("storage.dsn is required")

// Pipeline is the full loader configuration.
type Pipeline struct {
	Job        string    `json:"job" yaml:"job"`
	Source     Source    `json:"source" yaml:"source"`
	Storage    Storage   `json:"storage" yaml:"storage"`
	Transform  Transform `json:"transform" yaml:"transform"`
	OnRowError string    `json:"on_row_error" yaml:"on_row_error"`
}

// Source names the two input trees.
type Source struct {
	SongData string `json:"song_data" yaml:"song_data"`
	LogData  string `json:"log_data" yaml:"log_data"`
	Ext      string `json:"ext" yaml:"ext"`
}

// Storage selects the backend. DSN is expanded against the environment.
type Storage struct {
	Kind string `json:"kind" yaml:"kind"`
	DSN  string `json:"dsn" yaml:"dsn"`
}

// Transform tunes the record transformer.
type Transform struct {
	CorrectArtistLongitude bool   `json:"correct_artist_longitude" yaml:"correct_artist_longitude"`
	SongPlayPage           string `json:"song_play_page" yaml:"song_play_page"`
	// Timezone is an IANA name or "Local". Epoch timestamps are read in it.
	Timezone string `json:"timezone" yaml:"timezone"`
}

// Decode parses data as YAML when path ends in .yaml or .yml and as JSON
// otherwise. Unknown JSON fields are rejected so typos surface early.
func Decode(path string, data []byte, p *Pipeline) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, p); err != nil {
			return fmt.Errorf("yaml: %w", err)
		}
		return nil
	default:
		dec := json.NewDecoder(strings.NewReader(string(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(p); err != nil {
			return fmt.Errorf("json: %w", err)
		}
		return nil
	}
}

// Load reads and decodes the pipeline file at path.
func Load(path string) (Pipeline, error) {
	var p Pipeline
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(path, data, &p); err != nil {
		return p, fmt.Errorf("parse config: %w", err)
	}
	return p, nil
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// ApplyDefaults fills unset fields and expands environment references in
// the DSN.
func (p *Pipeline) ApplyDefaults() {
	if p.Job == "" {
		p.Job = DefaultJob
	}
	if p.Source.SongData == "" {
		p.Source.SongData = DefaultSongData
	}
	if p.Source.LogData == "" {
		p.Source.LogData = DefaultLogData
	}
	if p.Source.Ext == "" {
		p.Source.Ext = DefaultExt
	}
	if p.Storage.Kind == "" {
		p.Storage.Kind = DefaultStorageKind
	}
	p.Storage.DSN = strings.TrimSpace(os.ExpandEnv(p.Storage.DSN))
	if p.Transform.SongPlayPage == "" {
		p.Transform.SongPlayPage = DefaultSongPlayPage
	}
	if p.OnRowError == "" {
		p.OnRowError = OnRowErrorContinue
	}
}

// Location resolves Transform.Timezone. Empty and "Local" mean time.Local.
func (p Pipeline) Location() (*time.Location, error) {
	tz := strings.TrimSpace(p.Transform.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("transform.timezone: %w", err)
	}
	return loc, nil
}
