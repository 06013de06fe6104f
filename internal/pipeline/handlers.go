package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"sparkify/internal/metrics"
	jsonparser "sparkify/internal/parser/json"
	"sparkify/internal/records"
	"sparkify/internal/storage"
	"sparkify/internal/transformer"
)

type songHandler struct{ r *Runner }

type logHandler struct{ r *Runner }

// SongHandler loads one song metadata file into songs and artists.
func (r *Runner) SongHandler() Handler { return songHandler{r: r} }

// LogHandler loads one event log file into time, users and songplays.
func (r *Runner) LogHandler() Handler { return logHandler{r: r} }

func (songHandler) Pass() string { return "song" }

func (h songHandler) Handle(ctx context.Context, ftx *FileTx, path string) (FileReport, error) {
	r := h.r
	fr := newFileReport(path)

	if !r.opts.Song.CorrectArtistLongitude && !r.warnedLongitude {
		r.warnedLongitude = true
		r.log.Printf("stage=song_pass warning: artists.longitude is loaded from artist_latitude; set transform.correct_artist_longitude to load artist_longitude")
	}

	rec, err := jsonparser.ReadSongFile(path)
	if err != nil {
		return fr, err
	}
	song, artist := transformer.SongRows(rec, r.opts.Song)

	if err := r.insertGroup(ctx, ftx, &fr, storage.TableSongs, song.SongID, r.stmts.InsertSong, song.Args()); err != nil {
		return fr, err
	}
	if err := r.insertGroup(ctx, ftx, &fr, storage.TableArtists, artist.ArtistID, r.stmts.InsertArtist, artist.Args()); err != nil {
		return fr, err
	}
	return fr, nil
}

func (logHandler) Pass() string { return "log" }

// Handle inserts every time row, then every user, then every songplay.
// Time and songplay failures end the file; user failures follow the row
// error policy.
func (h logHandler) Handle(ctx context.Context, ftx *FileTx, path string) (FileReport, error) {
	r := h.r
	fr := newFileReport(path)

	events, err := jsonparser.ReadLogFile(path)
	if err != nil {
		return fr, err
	}
	batch, err := transformer.LogRows(events, r.opts.Log)
	if err != nil {
		var pe *records.ParseError
		if errors.As(err, &pe) && pe.Path == "" {
			pe.Path = path
		}
		return fr, err
	}

	for i, t := range batch.Times {
		if err := ftx.Exec(ctx, r.stmts.InsertTime, t.Args()...); err != nil {
			return fr, fmt.Errorf("insert time (line %d): %w", batch.Plays[i].Line, err)
		}
		fr.Inserted[storage.TableTime]++
	}

	for _, u := range batch.Users {
		key := strconv.FormatInt(u.UserID, 10)
		if err := r.insertGroup(ctx, ftx, &fr, storage.TableUsers, key, r.stmts.InsertUser, u.Args()); err != nil {
			return fr, err
		}
	}

	for _, c := range batch.Plays {
		songID, artistID, err := r.lookup(ctx, ftx, c.Lookup)
		if err != nil {
			return fr, fmt.Errorf("song lookup (line %d): %w", c.Line, err)
		}
		if songID != "" {
			fr.LookupHits++
		} else {
			fr.LookupMisses++
		}

		p := c.Resolve(songID, artistID)
		if err := ftx.Exec(ctx, r.stmts.InsertSongplay, p.Args()...); err != nil {
			return fr, fmt.Errorf("insert songplay (line %d): %w", c.Line, err)
		}
		fr.Inserted[storage.TableSongplays]++
	}
	return fr, nil
}

// lookup resolves a play to (song_id, artist_id). A miss, or a key with a
// missing part, returns empty ids and no error.
func (r *Runner) lookup(ctx context.Context, ftx *FileTx, k transformer.LookupKey) (string, string, error) {
	if !k.Complete() {
		metrics.IncCounter(metrics.LookupsTotal, 1, metrics.Labels{"result": "incomplete"})
		return "", "", nil
	}

	var songID, artistID string
	err := ftx.QueryRow(ctx, r.stmts.SongSelect, k.Args()...).Scan(&songID, &artistID)
	switch {
	case errors.Is(err, storage.ErrNoRows):
		metrics.IncCounter(metrics.LookupsTotal, 1, metrics.Labels{"result": "miss"})
		return "", "", nil
	case err != nil:
		return "", "", err
	}
	metrics.IncCounter(metrics.LookupsTotal, 1, metrics.Labels{"result": "hit"})
	return songID, artistID, nil
}
