// Package model holds the raw input record shapes and the derived table
// entities of the song-play data lake.
package model

import "time"

// PageNextSong is the activity-log page value that marks a song play.
const PageNextSong = "NextSong"

// SongRecord is one line of the song metadata dataset (song_data/**.json).
type SongRecord struct {
	NumSongs        int      `json:"num_songs"`
	SongID          string   `json:"song_id"`
	Title           string   `json:"title"`
	ArtistID        string   `json:"artist_id"`
	ArtistName      string   `json:"artist_name"`
	ArtistLocation  string   `json:"artist_location"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	Year            int      `json:"year"`
	Duration        float64  `json:"duration"`
}

// LogEvent is one line of the activity-log dataset (log_data/**.json).
// Song, Artist and Length are null for non-play pages.
type LogEvent struct {
	Artist        *string  `json:"artist"`
	Auth          string   `json:"auth"`
	FirstName     string   `json:"firstName"`
	Gender        string   `json:"gender"`
	ItemInSession int      `json:"itemInSession"`
	LastName      string   `json:"lastName"`
	Length        *float64 `json:"length"`
	Level         string   `json:"level"`
	Location      string   `json:"location"`
	Method        string   `json:"method"`
	Page          string   `json:"page"`
	Registration  *float64 `json:"registration"`
	SessionID     int64    `json:"sessionId"`
	Song          *string  `json:"song"`
	Status        int      `json:"status"`
	TS            int64    `json:"ts"`
	UserAgent     string   `json:"userAgent"`
	UserID        string   `json:"userId"`
}

// IsPlay reports whether the event is a song play.
func (e LogEvent) IsPlay() bool {
	return e.Page == PageNextSong
}

// Song is a row of the songs table.
type Song struct {
	SongID   string
	Title    string
	ArtistID string
	Year     int
	Duration float64
}

// Artist is a row of the artists table.
type Artist struct {
	ArtistID  string
	Name      string
	Location  string
	Latitude  *float64
	Longitude *float64
}

// User is a row of the users table.
type User struct {
	UserID    string
	FirstName string
	LastName  string
	Gender    string
	Level     string
}

// TimeBucket is a row of the time table. Calendar fields are computed in the
// zone of StartTime.
type TimeBucket struct {
	StartTime time.Time
	Hour      int
	Day       int
	Week      int
	Month     int
	Year      int
	Weekday   int // ISO day number, 1=Monday..7=Sunday
}

// SongPlay is a row of the songplays fact table. SongID and ArtistID are nil
// when the play matched no catalog song.
type SongPlay struct {
	SongPlayID int64
	StartTime  time.Time
	UserID     string
	Level      string
	SongID     *string
	ArtistID   *string
	SessionID  int64
	Location   string
	UserAgent  string
	Year       int
	Month      int
}
