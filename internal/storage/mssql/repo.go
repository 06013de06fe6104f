package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"sparkify/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// SQL Server has no ON CONFLICT. Idempotent dimension inserts use
// INSERT ... SELECT ... WHERE NOT EXISTS, and the users upsert is an
// UPDATE followed by a guarded INSERT in the same batch.
type Repo struct {
	db    *sql.DB
	stmts storage.Statements
}

func init() {
	storage.Register("mssql", New)
}

// New opens a database/sql handle with the "sqlserver" driver and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) Kind() string { return "mssql" }

func (r *Repo) Statements() storage.Statements { return r.stmts }

func (r *Repo) Exec(ctx context.Context, query string, args ...any) error {
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := storage.BeginSQL(ctx, r.db)
	if err != nil {
		return nil, fmt.Errorf("mssql: begin: %w", err)
	}
	return tx, nil
}

// Statements renders the star schema and loader DML for SQL Server.
func Statements() (storage.Statements, error) {
	var s storage.Statements

	tables := storage.StarSchema()
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return storage.Statements{}, err
		}
		s.CreateTables = append(s.CreateTables, ddl)
	}
	for i := len(tables) - 1; i >= 0; i-- {
		name := tables[i].Name
		s.DropTables = append(s.DropTables,
			fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;", name, mssqlIdent(name)))
	}

	s.InsertSong = buildInsertNotExistsSQL(storage.TableSongs,
		[]string{"song_id", "title", "artist_id", "year", "duration"}, "song_id")
	s.InsertArtist = buildInsertNotExistsSQL(storage.TableArtists,
		[]string{"artist_id", "name", "location", "latitude", "longitude"}, "artist_id")

	s.InsertUser = fmt.Sprintf(
		"UPDATE %s SET [level] = @p5 WHERE [user_id] = @p1;\nIF @@ROWCOUNT = 0 %s",
		mssqlIdent(storage.TableUsers),
		buildInsertSQL(storage.TableUsers, []string{"user_id", "first_name", "last_name", "gender", "level"}),
	)

	s.InsertTime = buildInsertSQL(storage.TableTime,
		[]string{"start_time", "hour", "day", "week", "month", "year", "weekday"})
	s.InsertSongplay = buildInsertSQL(storage.TableSongplays,
		[]string{"start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent"})

	s.SongSelect = `SELECT TOP 1 s.[song_id], a.[artist_id]
FROM [songs] s
JOIN [artists] a ON s.[artist_id] = a.[artist_id]
WHERE s.[title] = @p1 AND a.[name] = @p2 AND s.[duration] = @p3
ORDER BY s.[song_id], a.[artist_id]`

	return s, nil
}

func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("@p%d", i+1)
	}
	return strings.Join(ph, ", ")
}

func quoteColumns(columns []string) string {
	q := make([]string, len(columns))
	for i, c := range columns {
		q[i] = mssqlIdent(c)
	}
	return strings.Join(q, ", ")
}

func buildInsertSQL(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
		mssqlIdent(table), quoteColumns(columns), placeholders(len(columns)))
}

// buildInsertNotExistsSQL inserts one row unless a row with the same key
// exists. keyColumn must be the first column so its placeholder is @p1.
func buildInsertNotExistsSQL(table string, columns []string, keyColumn string) string {
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s WHERE NOT EXISTS (SELECT 1 FROM %s WITH (UPDLOCK, HOLDLOCK) WHERE %s = @p1);",
		mssqlIdent(table), quoteColumns(columns), placeholders(len(columns)),
		mssqlIdent(table), mssqlIdent(keyColumn),
	)
}

// buildCreateSQL wraps CREATE TABLE in an OBJECT_ID guard, since SQL Server
// has no CREATE TABLE IF NOT EXISTS.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}

	defs := make([]string, 0, len(t.Columns)+1)
	if t.PrimaryKey != nil {
		def, err := mssqlPrimaryKeyDef(*t.PrimaryKey)
		if err != nil {
			return "", fmt.Errorf("mssql: table %s: %w", t.Name, err)
		}
		defs = append(defs, def)
	}
	for _, c := range t.Columns {
		def, err := mssqlColumnDef(c)
		if err != nil {
			return "", fmt.Errorf("mssql: table %s: %w", t.Name, err)
		}
		defs = append(defs, def)
	}

	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
		t.Name, mssqlIdent(t.Name), strings.Join(defs, ",\n    ")), nil
}

func mssqlPrimaryKeyDef(pk storage.PrimaryKeySpec) (string, error) {
	if strings.TrimSpace(pk.Name) == "" {
		return "", fmt.Errorf("primary key name is required")
	}
	if pk.Type == storage.TypeSerial {
		return fmt.Sprintf("%s BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY", mssqlIdent(pk.Name)), nil
	}
	typ, err := mssqlType(pk.Type)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s NOT NULL PRIMARY KEY", mssqlIdent(pk.Name), typ), nil
}

func mssqlColumnDef(c storage.ColumnSpec) (string, error) {
	typ, err := mssqlType(c.Type)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", c.Name, err)
	}
	null := " NOT NULL"
	if c.Nullable {
		null = " NULL"
	}
	return mssqlIdent(c.Name) + " " + typ + null, nil
}

func mssqlType(logical string) (string, error) {
	switch logical {
	case storage.TypeVarchar:
		return "NVARCHAR(400)", nil
	case storage.TypeText:
		return "NVARCHAR(MAX)", nil
	case storage.TypeInt:
		return "INT", nil
	case storage.TypeBigInt:
		return "BIGINT", nil
	case storage.TypeFloat:
		return "FLOAT", nil
	case storage.TypeTimestamp:
		return "DATETIME2", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", logical)
	}
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
