package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sparkify/internal/storage"
)

// Statement names double as query text so fakes can switch on them.
var fakeStatements = storage.Statements{
	InsertSong:     "insert_song",
	InsertArtist:   "insert_artist",
	InsertUser:     "insert_user",
	InsertTime:     "insert_time",
	InsertSongplay: "insert_songplay",
	SongSelect:     "song_select",
}

type execCall struct {
	query string
	args  []any
}

// fakeRepo records statements per transaction and keeps only committed ones.
type fakeRepo struct {
	mu sync.Mutex

	// failExec returns a non-nil error to fail a statement.
	failExec func(query string, args []any) error
	// songs maps "title|artist|length" to (song_id, artist_id).
	songs map[string][2]string

	committed []execCall
	begins    int
	commits   int
	rollbacks int
}

func newFakeRepo() *fakeRepo { return &fakeRepo{songs: map[string][2]string{}} }

func (f *fakeRepo) Close()                         {}
func (f *fakeRepo) Kind() string                   { return "fake" }
func (f *fakeRepo) Statements() storage.Statements { return fakeStatements }

func (f *fakeRepo) Exec(context.Context, string, ...any) error { return nil }

func (f *fakeRepo) Begin(context.Context) (storage.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begins++
	return &fakeTx{repo: f}, nil
}

func (f *fakeRepo) count(query string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.committed {
		if c.query == query {
			n++
		}
	}
	return n
}

func (f *fakeRepo) calls(query string) []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []execCall
	for _, c := range f.committed {
		if c.query == query {
			out = append(out, c)
		}
	}
	return out
}

type fakeTx struct {
	repo    *fakeRepo
	pending []execCall
	done    bool
}

func (t *fakeTx) Exec(_ context.Context, query string, args ...any) error {
	if t.done {
		return fmt.Errorf("tx already closed")
	}
	if t.repo.failExec != nil {
		if err := t.repo.failExec(query, args); err != nil {
			return err
		}
	}
	t.pending = append(t.pending, execCall{query: query, args: args})
	return nil
}

func (t *fakeTx) QueryRow(_ context.Context, query string, args ...any) storage.Row {
	if query != fakeStatements.SongSelect {
		return errRow{err: fmt.Errorf("unexpected query %q", query)}
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	t.repo.mu.Lock()
	ids, ok := t.repo.songs[strings.Join(parts, "|")]
	t.repo.mu.Unlock()
	if !ok {
		return errRow{err: storage.ErrNoRows}
	}
	return fakeRow{vals: ids}
}

func (t *fakeTx) Commit(context.Context) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.done = true
	t.repo.commits++
	t.repo.committed = append(t.repo.committed, t.pending...)
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.done = true
	t.repo.rollbacks++
	t.pending = nil
	return nil
}

type fakeRow struct{ vals [2]string }

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.vals[0]
	*(dest[1].(*string)) = r.vals[1]
	return nil
}
