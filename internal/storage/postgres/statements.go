package postgres

import (
	"fmt"
	"strings"

	"sparkify/internal/storage"
)

// Statements renders the star-schema DDL and the loader's DML for Postgres.
//
// Natural-key dimensions use ON CONFLICT so reprocessing a file is safe:
// songs and artists keep the first version, users refresh their level.
// time and songplays are plain inserts and duplicate on rerun.
func Statements() (storage.Statements, error) {
	var s storage.Statements

	for _, t := range storage.StarSchema() {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return storage.Statements{}, err
		}
		s.CreateTables = append(s.CreateTables, ddl)
	}
	// Reverse order so the fact table goes first.
	tables := storage.StarSchema()
	for i := len(tables) - 1; i >= 0; i-- {
		s.DropTables = append(s.DropTables, fmt.Sprintf("DROP TABLE IF EXISTS %s;", pgIdent(tables[i].Name)))
	}

	s.InsertSong = buildInsertSQL(storage.TableSongs,
		[]string{"song_id", "title", "artist_id", "year", "duration"},
		" ON CONFLICT (song_id) DO NOTHING")

	s.InsertArtist = buildInsertSQL(storage.TableArtists,
		[]string{"artist_id", "name", "location", "latitude", "longitude"},
		" ON CONFLICT (artist_id) DO NOTHING")

	s.InsertUser = buildInsertSQL(storage.TableUsers,
		[]string{"user_id", "first_name", "last_name", "gender", "level"},
		" ON CONFLICT (user_id) DO UPDATE SET level = EXCLUDED.level")

	s.InsertTime = buildInsertSQL(storage.TableTime,
		[]string{"start_time", "hour", "day", "week", "month", "year", "weekday"}, "")

	s.InsertSongplay = buildInsertSQL(storage.TableSongplays,
		[]string{"start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent"}, "")

	s.SongSelect = `SELECT s.song_id, a.artist_id
FROM songs s
JOIN artists a ON s.artist_id = a.artist_id
WHERE s.title = $1 AND a.name = $2 AND s.duration = $3
ORDER BY s.song_id, a.artist_id
LIMIT 1`

	return s, nil
}

// buildInsertSQL constructs a single-row INSERT with numbered placeholders.
// suffix is appended verbatim (conflict clause).
func buildInsertSQL(table string, columns []string, suffix string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("$%d", i+1))
	}
	b.WriteString(")")
	b.WriteString(suffix)
	return b.String()
}

// buildCreateSQL generates CREATE TABLE IF NOT EXISTS for one table.
//
// Primary key handling:
//   - If PrimaryKeySpec is provided, it is created as the first column.
//   - serial maps to BIGSERIAL.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	if t.PrimaryKey != nil {
		pk := strings.TrimSpace(t.PrimaryKey.Name)
		if pk == "" {
			return "", fmt.Errorf("table %s: primary_key.name is required", t.Name)
		}
		typ, err := pgType(t.PrimaryKey.Type)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		cols = append(cols, fmt.Sprintf(`%s %s PRIMARY KEY`, pgIdent(pk), typ))
	}

	for _, c := range t.Columns {
		def, err := buildColumnDef(c)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		cols = append(cols, def)
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("table %s: no columns", t.Name)
	}

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`, pgIdent(t.Name), strings.Join(cols, ", ")), nil
}

// buildColumnDef renders a single column definition.
func buildColumnDef(c storage.ColumnSpec) (string, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "", fmt.Errorf("column name must be set")
	}
	typ, err := pgType(c.Type)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", name, err)
	}

	def := pgIdent(name) + " " + typ
	if !c.Nullable {
		def += " NOT NULL"
	}
	return def, nil
}

func pgType(logical string) (string, error) {
	switch logical {
	case storage.TypeVarchar:
		return "VARCHAR", nil
	case storage.TypeText:
		return "TEXT", nil
	case storage.TypeInt:
		return "INTEGER", nil
	case storage.TypeBigInt:
		return "BIGINT", nil
	case storage.TypeFloat:
		return "DOUBLE PRECISION", nil
	case storage.TypeTimestamp:
		return "TIMESTAMP", nil
	case storage.TypeSerial:
		return "BIGSERIAL", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", logical)
	}
}

// pgIdent double-quotes an identifier, escaping embedded quotes.
func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
