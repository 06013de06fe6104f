package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"sparkify/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - modernc.org/sqlite is pure Go, so this backend doubles as the local and
//     test target. A DSN of ":memory:" gives a throwaway database.
//   - The pool is capped at one connection: the loader is serial, and an
//     in-memory database exists only on the connection that created it.
//   - Dimension idempotence uses INSERT OR IGNORE, which requires the PRIMARY
//     KEY constraints created by Statements().CreateTables.
type Repo struct {
	db    *sql.DB
	stmts storage.Statements
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	stmts, err := Statements()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, stmts: stmts}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) Kind() string { return "sqlite" }

func (r *Repo) Statements() storage.Statements { return r.stmts }

func (r *Repo) Exec(ctx context.Context, query string, args ...any) error {
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := storage.BeginSQL(ctx, r.db)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	return tx, nil
}

// DB exposes the handle for read-back queries in tests and tooling.
func (r *Repo) DB() *sql.DB { return r.db }

// Statements renders the star schema and loader DML for SQLite.
func Statements() (storage.Statements, error) {
	var s storage.Statements

	tables := storage.StarSchema()
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return storage.Statements{}, err
		}
		s.CreateTables = append(s.CreateTables, ddl)
	}
	for i := len(tables) - 1; i >= 0; i-- {
		s.DropTables = append(s.DropTables, "DROP TABLE IF EXISTS "+sqlIdent(tables[i].Name)+";")
	}

	s.InsertSong = buildInsertSQL("INSERT OR IGNORE", storage.TableSongs,
		[]string{"song_id", "title", "artist_id", "year", "duration"}, "")
	s.InsertArtist = buildInsertSQL("INSERT OR IGNORE", storage.TableArtists,
		[]string{"artist_id", "name", "location", "latitude", "longitude"}, "")
	s.InsertUser = buildInsertSQL("INSERT", storage.TableUsers,
		[]string{"user_id", "first_name", "last_name", "gender", "level"},
		` ON CONFLICT ("user_id") DO UPDATE SET "level" = excluded."level"`)
	s.InsertTime = buildInsertSQL("INSERT", storage.TableTime,
		[]string{"start_time", "hour", "day", "week", "month", "year", "weekday"}, "")
	s.InsertSongplay = buildInsertSQL("INSERT", storage.TableSongplays,
		[]string{"start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent"}, "")

	s.SongSelect = `SELECT s.song_id, a.artist_id
FROM songs s
JOIN artists a ON s.artist_id = a.artist_id
WHERE s.title = ? AND a.name = ? AND s.duration = ?
ORDER BY s.song_id, a.artist_id
LIMIT 1`

	return s, nil
}

func buildInsertSQL(verb, table string, columns []string, suffix string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = sqlIdent(c)
	}
	ph := strings.TrimRight(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("%s INTO %s (%s) VALUES (%s)%s",
		verb, sqlIdent(table), strings.Join(quoted, ", "), ph, suffix)
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	var parts []string
	if t.PrimaryKey != nil {
		// "INTEGER PRIMARY KEY" is special in sqlite: it becomes the rowid and auto-generates values.
		switch t.PrimaryKey.Type {
		case storage.TypeSerial:
			parts = append(parts, fmt.Sprintf(`%s INTEGER PRIMARY KEY AUTOINCREMENT`, sqlIdent(t.PrimaryKey.Name)))
		default:
			typ, err := sqliteType(t.PrimaryKey.Type)
			if err != nil {
				return "", fmt.Errorf("table %s: %w", t.Name, err)
			}
			parts = append(parts, fmt.Sprintf(`%s %s PRIMARY KEY`, sqlIdent(t.PrimaryKey.Name), typ))
		}
	}

	for _, c := range t.Columns {
		typ, err := sqliteType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
		}
		col := fmt.Sprintf("%s %s", sqlIdent(c.Name), typ)
		if !c.Nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

func sqliteType(logical string) (string, error) {
	switch logical {
	case storage.TypeVarchar, storage.TypeText:
		return "TEXT", nil
	case storage.TypeInt, storage.TypeBigInt, storage.TypeSerial:
		return "INTEGER", nil
	case storage.TypeFloat:
		return "REAL", nil
	case storage.TypeTimestamp:
		return "TIMESTAMP", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", logical)
	}
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
