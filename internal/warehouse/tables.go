package warehouse

import (
	"strconv"

	"songplay_etl/internal/model"
	"songplay_etl/internal/parquetio"
)

// Names holds the destination directory of each table.
type Names struct {
	Songs     string `koanf:"songs" json:"songs" validate:"required"`
	Artists   string `koanf:"artists" json:"artists" validate:"required"`
	Users     string `koanf:"users" json:"users" validate:"required"`
	Time      string `koanf:"time" json:"time" validate:"required"`
	SongPlays string `koanf:"songplays" json:"songplays" validate:"required"`
}

// DefaultNames returns the standard table directories.
func DefaultNames() Names {
	return Names{
		Songs:     "songs",
		Artists:   "artists",
		Users:     "users",
		Time:      "time",
		SongPlays: "songplays",
	}
}

// Songs is partitioned by (year, artist_id).
func Songs(name string) parquetio.Table[model.Song] {
	return parquetio.Table[model.Song]{
		Name:        name,
		PartitionBy: []string{"year", "artist_id"},
		Partition: func(s model.Song) []string {
			return []string{strconv.Itoa(s.Year), s.ArtistID}
		},
		Schema: new(SongFile),
		Row: func(s model.Song) any {
			return SongFile{SongID: s.SongID, Title: s.Title, Duration: s.Duration}
		},
	}
}

// Artists is unpartitioned, one row per artist_id.
func Artists(name string) parquetio.Table[model.Artist] {
	return parquetio.Table[model.Artist]{
		Name:   name,
		Schema: new(ArtistFile),
		Row: func(a model.Artist) any {
			return ArtistFile{
				ArtistID:  a.ArtistID,
				Name:      a.Name,
				Location:  a.Location,
				Latitude:  a.Latitude,
				Longitude: a.Longitude,
			}
		},
	}
}

// Users is unpartitioned, one row per user_id.
func Users(name string) parquetio.Table[model.User] {
	return parquetio.Table[model.User]{
		Name:   name,
		Schema: new(UserFile),
		Row: func(u model.User) any {
			return UserFile{
				UserID:    u.UserID,
				FirstName: u.FirstName,
				LastName:  u.LastName,
				Gender:    u.Gender,
				Level:     u.Level,
			}
		},
	}
}

// Time is partitioned by (year, month).
func Time(name string) parquetio.Table[model.TimeBucket] {
	return parquetio.Table[model.TimeBucket]{
		Name:        name,
		PartitionBy: []string{"year", "month"},
		Partition: func(b model.TimeBucket) []string {
			return []string{strconv.Itoa(b.Year), strconv.Itoa(b.Month)}
		},
		Schema: new(TimeFile),
		Row: func(b model.TimeBucket) any {
			return TimeFile{
				StartTime: b.StartTime.UnixMilli(),
				Hour:      int32(b.Hour),
				Day:       int32(b.Day),
				Week:      int32(b.Week),
				Weekday:   int32(b.Weekday),
			}
		},
	}
}

// SongPlays is partitioned by (year, month) of start_time.
func SongPlays(name string) parquetio.Table[model.SongPlay] {
	return parquetio.Table[model.SongPlay]{
		Name:        name,
		PartitionBy: []string{"year", "month"},
		Partition: func(p model.SongPlay) []string {
			return []string{strconv.Itoa(p.Year), strconv.Itoa(p.Month)}
		},
		Schema: new(SongPlayFile),
		Row: func(p model.SongPlay) any {
			return SongPlayFile{
				SongPlayID: p.SongPlayID,
				StartTime:  p.StartTime.UnixMilli(),
				UserID:     p.UserID,
				Level:      p.Level,
				SongID:     p.SongID,
				ArtistID:   p.ArtistID,
				SessionID:  p.SessionID,
				Location:   p.Location,
				UserAgent:  p.UserAgent,
			}
		},
	}
}
