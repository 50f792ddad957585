package transform

import (
	"math"
	"sort"
	"time"

	"songplay_etl/internal/model"
)

// DefaultDurationTolerance is the strict upper bound, in seconds, on
// |event length - song duration| for a play to match a catalog song.
const DefaultDurationTolerance = 2.0

// Catalog indexes song records by (title, artist name) for the song-play
// join.
type Catalog struct {
	buckets   map[joinKey][]model.SongRecord
	tolerance float64
	size      int
}

// NewCatalog deduplicates recs by song_id (first wins) and indexes them. A
// non-positive tolerance selects DefaultDurationTolerance.
func NewCatalog(recs []model.SongRecord, tolerance float64) *Catalog {
	if tolerance <= 0 {
		tolerance = DefaultDurationTolerance
	}
	unique := Dedup(recs, func(r model.SongRecord) string { return r.SongID }, KeepFirst)

	c := &Catalog{
		buckets:   make(map[joinKey][]model.SongRecord, len(unique)),
		tolerance: tolerance,
		size:      len(unique),
	}
	for _, r := range unique {
		k := joinKey{title: r.Title, artist: r.ArtistName}
		c.buckets[k] = append(c.buckets[k], r)
	}
	return c
}

// Len returns the number of distinct songs indexed.
func (c *Catalog) Len() int { return c.size }

// Match returns every catalog song with exactly this title and artist name
// whose duration is within tolerance of length, in catalog order.
func (c *Catalog) Match(title, artist string, length float64) []model.SongRecord {
	var out []model.SongRecord
	for _, r := range c.buckets[joinKey{title: title, artist: artist}] {
		if math.Abs(length-r.Duration) < c.tolerance {
			out = append(out, r)
		}
	}
	return out
}

type joinKey struct {
	title, artist string
}

// SongPlays sorts plays by ts, numbers them from zero and left-outer joins
// them with the catalog. A play with no match yields one row with nil
// song_id and artist_id; a play matching several songs yields one row per
// match sharing its songplay_id. plays is not modified.
func SongPlays(plays []model.LogEvent, cat *Catalog, loc *time.Location) []model.SongPlay {
	sorted := make([]model.LogEvent, len(plays))
	copy(sorted, plays)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS < sorted[j].TS })

	out := make([]model.SongPlay, 0, len(sorted))
	for id, e := range sorted {
		start := EventTime(e.TS, loc)
		row := model.SongPlay{
			SongPlayID: int64(id),
			StartTime:  start,
			UserID:     e.UserID,
			Level:      e.Level,
			SessionID:  e.SessionID,
			Location:   e.Location,
			UserAgent:  e.UserAgent,
			Year:       start.Year(),
			Month:      int(start.Month()),
		}

		var matches []model.SongRecord
		if cat != nil && e.Song != nil && e.Artist != nil && e.Length != nil {
			matches = cat.Match(*e.Song, *e.Artist, *e.Length)
		}
		if len(matches) == 0 {
			out = append(out, row)
			continue
		}
		for _, m := range matches {
			r := row
			songID, artistID := m.SongID, m.ArtistID
			r.SongID, r.ArtistID = &songID, &artistID
			out = append(out, r)
		}
	}
	return out
}

// Matched counts song plays that joined a catalog song.
func Matched(plays []model.SongPlay) int {
	n := 0
	for _, p := range plays {
		if p.SongID != nil {
			n++
		}
	}
	return n
}
