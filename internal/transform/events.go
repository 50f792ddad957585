package transform

import (
	"time"

	"songplay_etl/internal/model"
)

// FilterPlays keeps only song-play events. Every other event-derived table
// is built from its result.
func FilterPlays(events []model.LogEvent) []model.LogEvent {
	plays := make([]model.LogEvent, 0, len(events))
	for _, e := range events {
		if e.IsPlay() {
			plays = append(plays, e)
		}
	}
	return plays
}

// LatestPerUser keeps one play per user_id: the user's most recent play,
// or on equal ts the later input row.
func LatestPerUser(plays []model.LogEvent) []model.LogEvent {
	return DedupFunc(plays,
		func(e model.LogEvent) string { return e.UserID },
		func(cur, cand model.LogEvent) bool { return cand.TS >= cur.TS },
	)
}

// Users projects plays to the users table, one row per user_id. Profile
// fields and level come from the user's latest play.
func Users(plays []model.LogEvent) []model.User {
	latest := LatestPerUser(plays)
	users := make([]model.User, 0, len(latest))
	for _, e := range latest {
		users = append(users, model.User{
			UserID:    e.UserID,
			FirstName: e.FirstName,
			LastName:  e.LastName,
			Gender:    e.Gender,
			Level:     e.Level,
		})
	}
	return users
}

// EventTime converts a millisecond epoch to a time in loc.
func EventTime(ts int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ts).In(loc)
}

// Bucket decomposes t into the time table's calendar fields.
func Bucket(t time.Time) model.TimeBucket {
	_, week := t.ISOWeek()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return model.TimeBucket{
		StartTime: t,
		Hour:      t.Hour(),
		Day:       t.Day(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   weekday,
	}
}

// TimeTable derives one time bucket per distinct play timestamp.
func TimeTable(plays []model.LogEvent, loc *time.Location) []model.TimeBucket {
	unique := Dedup(plays, func(e model.LogEvent) int64 { return e.TS }, KeepFirst)

	buckets := make([]model.TimeBucket, 0, len(unique))
	for _, e := range unique {
		buckets = append(buckets, Bucket(EventTime(e.TS, loc)))
	}
	return buckets
}
