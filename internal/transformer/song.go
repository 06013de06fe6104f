package transformer

import "sparkify/internal/records"

// SongOptions tunes the song path.
type SongOptions struct {
	// CorrectArtistLongitude sources Artist.Longitude from artist_longitude.
	// When false the longitude column repeats artist_latitude, which is what
	// every table loaded so far contains.
	CorrectArtistLongitude bool
}

// SongRows projects one song record onto its song and artist rows.
func SongRows(rec records.SongRecord, opts SongOptions) (Song, Artist) {
	song := Song{
		SongID:   rec.SongID,
		Title:    rec.Title,
		ArtistID: rec.ArtistID,
		Year:     rec.Year,
		Duration: rec.Duration,
	}

	lon := rec.ArtistLatitude
	if opts.CorrectArtistLongitude {
		lon = rec.ArtistLongitude
	}

	artist := Artist{
		ArtistID:  rec.ArtistID,
		Name:      rec.ArtistName,
		Location:  copyString(rec.ArtistLocation),
		Latitude:  copyFloat(rec.ArtistLatitude),
		Longitude: copyFloat(lon),
	}
	return song, artist
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
