// The table specs live here so every backend renders the same star schema
// from one description.
package storage

import (
	"context"
	"fmt"
)

// Table names of the star schema.
const (
	TableSongplays = "songplays"
	TableUsers     = "users"
	TableSongs     = "songs"
	TableArtists   = "artists"
	TableTime      = "time"
)

// Logical column types. Each backend maps them to its own DDL types.
const (
	TypeVarchar   = "varchar" // short, indexable text (keys, names)
	TypeText      = "text"    // unbounded text
	TypeInt       = "int"
	TypeBigInt    = "bigint"
	TypeFloat     = "float"
	TypeTimestamp = "timestamp" // timezone-naive
	TypeSerial    = "serial"    // auto-increment surrogate key
)

type TableSpec struct {
	Name       string
	PrimaryKey *PrimaryKeySpec
	Columns    []ColumnSpec
}

type PrimaryKeySpec struct {
	Name string
	Type string // logical type; serial means auto-increment
}

type ColumnSpec struct {
	Name     string
	Type     string
	Nullable bool
}

// StarSchema returns the five tables in creation order (dimensions first).
func StarSchema() []TableSpec {
	return []TableSpec{
		{
			Name:       TableUsers,
			PrimaryKey: &PrimaryKeySpec{Name: "user_id", Type: TypeBigInt},
			Columns: []ColumnSpec{
				{Name: "first_name", Type: TypeVarchar, Nullable: true},
				{Name: "last_name", Type: TypeVarchar, Nullable: true},
				{Name: "gender", Type: TypeVarchar, Nullable: true},
				{Name: "level", Type: TypeVarchar},
			},
		},
		{
			Name:       TableSongs,
			PrimaryKey: &PrimaryKeySpec{Name: "song_id", Type: TypeVarchar},
			Columns: []ColumnSpec{
				{Name: "title", Type: TypeVarchar},
				{Name: "artist_id", Type: TypeVarchar},
				{Name: "year", Type: TypeInt, Nullable: true},
				{Name: "duration", Type: TypeFloat},
			},
		},
		{
			Name:       TableArtists,
			PrimaryKey: &PrimaryKeySpec{Name: "artist_id", Type: TypeVarchar},
			Columns: []ColumnSpec{
				{Name: "name", Type: TypeVarchar},
				{Name: "location", Type: TypeText, Nullable: true},
				{Name: "latitude", Type: TypeFloat, Nullable: true},
				{Name: "longitude", Type: TypeFloat, Nullable: true},
			},
		},
		{
			// No key: one row per play, duplicates are expected.
			Name: TableTime,
			Columns: []ColumnSpec{
				{Name: "start_time", Type: TypeTimestamp},
				{Name: "hour", Type: TypeInt},
				{Name: "day", Type: TypeInt},
				{Name: "week", Type: TypeInt},
				{Name: "month", Type: TypeInt},
				{Name: "year", Type: TypeInt},
				{Name: "weekday", Type: TypeInt},
			},
		},
		{
			Name:       TableSongplays,
			PrimaryKey: &PrimaryKeySpec{Name: "songplay_id", Type: TypeSerial},
			Columns: []ColumnSpec{
				{Name: "start_time", Type: TypeTimestamp},
				{Name: "user_id", Type: TypeBigInt},
				{Name: "level", Type: TypeVarchar},
				{Name: "song_id", Type: TypeVarchar, Nullable: true},
				{Name: "artist_id", Type: TypeVarchar, Nullable: true},
				{Name: "session_id", Type: TypeBigInt},
				{Name: "location", Type: TypeText, Nullable: true},
				{Name: "user_agent", Type: TypeText, Nullable: true},
			},
		},
	}
}

// Statements is the full statement set the loader needs for one dialect.
//
// Insert statements take their arguments in the column order of the
// matching transformer row's Args method. SongSelect takes
// (title, artist name, duration) and returns (song_id, artist_id).
type Statements struct {
	CreateTables []string
	DropTables   []string

	InsertSong     string
	InsertArtist   string
	InsertUser     string
	InsertTime     string
	InsertSongplay string

	SongSelect string
}

// Validate reports the first missing statement.
func (s Statements) Validate() error {
	checks := []struct {
		name string
		sql  string
	}{
		{"insert_song", s.InsertSong},
		{"insert_artist", s.InsertArtist},
		{"insert_user", s.InsertUser},
		{"insert_time", s.InsertTime},
		{"insert_songplay", s.InsertSongplay},
		{"song_select", s.SongSelect},
	}
	for _, c := range checks {
		if c.sql == "" {
			return fmt.Errorf("storage: statement %s is empty", c.name)
		}
	}
	return nil
}

// EnsureSchema runs every CREATE TABLE IF NOT EXISTS statement.
func EnsureSchema(ctx context.Context, repo Repository) error {
	for _, q := range repo.Statements().CreateTables {
		if err := repo.Exec(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// ResetSchema drops all five tables and creates them again.
func ResetSchema(ctx context.Context, repo Repository) error {
	for _, q := range repo.Statements().DropTables {
		if err := repo.Exec(ctx, q); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
	}
	return EnsureSchema(ctx, repo)
}
