// Package warehouse defines the parquet layout of the five analytical
// tables: the file row structs and how model rows map onto them.
package warehouse

// SongFile is a songs part row; year and artist_id live in the path.
type SongFile struct {
	SongID   string  `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Title    string  `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8"`
	Duration float64 `parquet:"name=duration, type=DOUBLE"`
}

type ArtistFile struct {
	ArtistID  string   `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Name      string   `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Location  string   `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude  *float64 `parquet:"name=latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	Longitude *float64 `parquet:"name=longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
}

type UserFile struct {
	UserID    string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	FirstName string `parquet:"name=first_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastName  string `parquet:"name=last_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Gender    string `parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level     string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// TimeFile is a time part row; year and month live in the path.
type TimeFile struct {
	StartTime int64 `parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Hour      int32 `parquet:"name=hour, type=INT32"`
	Day       int32 `parquet:"name=day, type=INT32"`
	Week      int32 `parquet:"name=week, type=INT32"`
	Weekday   int32 `parquet:"name=weekday, type=INT32"`
}

// SongPlayFile is a songplays part row; year and month live in the path.
type SongPlayFile struct {
	SongPlayID int64   `parquet:"name=songplay_id, type=INT64"`
	StartTime  int64   `parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	UserID     string  `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level      string  `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8"`
	SongID     *string `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ArtistID   *string `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SessionID  int64   `parquet:"name=session_id, type=INT64"`
	Location   string  `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	UserAgent  string  `parquet:"name=user_agent, type=BYTE_ARRAY, convertedtype=UTF8"`
}
