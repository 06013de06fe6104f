package mssql

import (
	"strings"
	"testing"

	"sparkify/internal/storage"
)

func TestStatements_NotExistsGuardsNaturalKeys(t *testing.T) {
	t.Parallel()

	s, err := Statements()
	if err != nil {
		t.Fatalf("Statements: %v", err)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if !strings.Contains(s.InsertSong, "WHERE NOT EXISTS") || !strings.Contains(s.InsertSong, "[song_id] = @p1") {
		t.Fatalf("InsertSong=%q", s.InsertSong)
	}
	if !strings.Contains(s.InsertArtist, "[artist_id] = @p1") {
		t.Fatalf("InsertArtist=%q", s.InsertArtist)
	}
	if !strings.HasPrefix(s.InsertUser, "UPDATE [users] SET [level] = @p5") || !strings.Contains(s.InsertUser, "IF @@ROWCOUNT = 0 INSERT INTO [users]") {
		t.Fatalf("InsertUser=%q", s.InsertUser)
	}
	if strings.Contains(s.InsertSongplay, "NOT EXISTS") {
		t.Fatalf("songplays must be a plain insert: %q", s.InsertSongplay)
	}
	if !strings.HasPrefix(s.SongSelect, "SELECT TOP 1") {
		t.Fatalf("SongSelect=%q", s.SongSelect)
	}
}

func TestBuildCreateSQL_IdentityAndGuard(t *testing.T) {
	t.Parallel()

	got, err := buildCreateSQL(storage.TableSpec{
		Name:       "songplays",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "songplay_id", Type: storage.TypeSerial},
		Columns: []storage.ColumnSpec{
			{Name: "start_time", Type: storage.TypeTimestamp},
			{Name: "user_agent", Type: storage.TypeText, Nullable: true},
		},
	})
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	for _, sub := range []string{
		"IF OBJECT_ID(N'songplays', N'U') IS NULL",
		"[songplay_id] BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY",
		"[start_time] DATETIME2 NOT NULL",
		"[user_agent] NVARCHAR(MAX) NULL",
	} {
		if !strings.Contains(got, sub) {
			t.Fatalf("ddl=%q, want contains %q", got, sub)
		}
	}
}

func TestMssqlIdent_EscapesBracket(t *testing.T) {
	t.Parallel()
	if got := mssqlIdent("a]b"); got != "[a]]b]" {
		t.Fatalf("mssqlIdent=%q", got)
	}
}
