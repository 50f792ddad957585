package transform

import "songplay_etl/internal/model"

// Songs projects the song catalog to the songs table, one row per song_id
// (first occurrence wins).
func Songs(recs []model.SongRecord) []model.Song {
	songs := make([]model.Song, 0, len(recs))
	for _, r := range recs {
		songs = append(songs, model.Song{
			SongID:   r.SongID,
			Title:    r.Title,
			ArtistID: r.ArtistID,
			Year:     r.Year,
			Duration: r.Duration,
		})
	}
	return Dedup(songs, func(s model.Song) string { return s.SongID }, KeepFirst)
}

// Artists projects the song catalog to the artists table, one row per
// artist_id (first occurrence wins).
func Artists(recs []model.SongRecord) []model.Artist {
	artists := make([]model.Artist, 0, len(recs))
	for _, r := range recs {
		artists = append(artists, model.Artist{
			ArtistID:  r.ArtistID,
			Name:      r.ArtistName,
			Location:  r.ArtistLocation,
			Latitude:  r.ArtistLatitude,
			Longitude: r.ArtistLongitude,
		})
	}
	return Dedup(artists, func(a model.Artist) string { return a.ArtistID }, KeepFirst)
}
