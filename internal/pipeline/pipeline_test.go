package pipeline

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"songplay_etl/internal/engine"
	"songplay_etl/internal/parquetio"
	"songplay_etl/internal/source"
	"songplay_etl/internal/storage"
	"songplay_etl/internal/storage/local"
	"songplay_etl/internal/warehouse"
)

var fixtures = map[string]string{
	"in/song_data/A/A/A/TRAAAAA.json": `{"num_songs":1,"artist_id":"A1","artist_latitude":null,"artist_longitude":null,"artist_location":"","artist_name":"Bee","song_id":"S1","title":"Rock","duration":199.2,"year":2001}`,
	"in/song_data/A/A/A/TRAAAAB.json": `{"num_songs":1,"artist_id":"A2","artist_latitude":35.1,"artist_longitude":-90.0,"artist_location":"Memphis, TN","artist_name":"Cee","song_id":"S2","title":"Roll","duration":100.0,"year":0}`,
	"in/song_data/A/A/A/TRAAAAC.json": `{"num_songs":1,"artist_id":"A1","artist_latitude":null,"artist_longitude":null,"artist_location":"","artist_name":"Bee","song_id":"S1","title":"Rock","duration":199.2,"year":2001}`,
	"in/log_data/2018/11/2018-11-12-events.json": strings.Join([]string{
		`{"artist":"Bee","auth":"Logged In","firstName":"Ann","gender":"F","itemInSession":0,"lastName":"Lee","length":200.0,"level":"free","location":"Lansing-East Lansing, MI","method":"PUT","page":"NextSong","registration":1540919166796.0,"sessionId":7,"song":"Rock","status":200,"ts":1542003223796,"userAgent":"Mozilla/5.0","userId":"12"}`,
		`{"artist":null,"auth":"Logged In","firstName":"Zed","gender":"M","itemInSession":0,"lastName":"Roe","length":null,"level":"free","location":"Tampa, FL","method":"GET","page":"Home","registration":1540919166796.0,"sessionId":8,"song":null,"status":200,"ts":1542003224000,"userAgent":"curl","userId":"99"}`,
		`{"artist":"Nobody","auth":"Logged In","firstName":"Bo","gender":"M","itemInSession":1,"lastName":"Dee","length":180.0,"level":"paid","location":"Tampa, FL","method":"PUT","page":"NextSong","registration":1540919166796.0,"sessionId":9,"song":"Unknown","status":200,"ts":1542003225000,"userAgent":"curl","userId":"13"}`,
		`{"artist":"Bee","auth":"Logged In","firstName":"Ann","gender":"F","itemInSession":1,"lastName":"Lee","length":210.0,"level":"paid","location":"Lansing-East Lansing, MI","method":"PUT","page":"NextSong","registration":1540919166796.0,"sessionId":7,"song":"Rock","status":200,"ts":1542003226000,"userAgent":"Mozilla/5.0","userId":"12"}`,
	}, "\n") + "\n",
}

func seed(t *testing.T) storage.Store {
	t.Helper()
	st := local.New(t.TempDir(), nil)
	for k, v := range fixtures {
		require.NoError(t, st.Put(context.Background(), k, []byte(v), nil))
	}
	return st
}

func run(t *testing.T, st storage.Store, runID string) *engine.Session {
	t.Helper()
	sess, err := engine.New(engine.StaticResolver{Store: st}, engine.Options{Location: time.UTC, Workers: 2, RunID: runID}, nil)
	require.NoError(t, err)

	p := New(Layout{SongGlob: "song_data/*/*/*/*.json", LogGlob: "log_data/*/*/*.json", Tables: warehouse.DefaultNames()})
	ctx := context.Background()
	require.NoError(t, p.ProcessSongData(ctx, sess, "in", "out"))
	require.NoError(t, p.ProcessLogData(ctx, sess, "in", "out"))
	return sess
}

// readTable returns the rows of every part under dir, keyed by partition
// path relative to dir.
func readTable[T any](t *testing.T, st storage.Store, dir string) map[string][]T {
	t.Helper()
	ctx := context.Background()
	objs, err := st.List(ctx, storage.DirPrefix(dir))
	require.NoError(t, err)

	out := map[string][]T{}
	for _, o := range objs {
		if !strings.HasSuffix(o.Key, ".parquet") {
			continue
		}
		rc, err := st.Open(ctx, o.Key)
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)

		pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(b), new(T), 1)
		require.NoError(t, err)
		rows := make([]T, int(pr.GetNumRows()))
		if len(rows) > 0 {
			require.NoError(t, pr.Read(&rows))
		}
		pr.ReadStop()

		rel := strings.TrimPrefix(o.Key, storage.DirPrefix(dir))
		part := ""
		if i := strings.LastIndex(rel, "/"); i >= 0 {
			part = rel[:i]
		}
		out[part] = append(out[part], rows...)
	}
	return out
}

func TestPipelineEndToEnd(t *testing.T) {
	st := seed(t)
	sess := run(t, st, "run1")

	songs := readTable[warehouse.SongFile](t, st, "out/songs")
	require.Len(t, songs, 2)
	require.Len(t, songs["year=2001/artist_id=A1"], 1, "duplicate song_id collapsed")
	assert.Equal(t, "S1", songs["year=2001/artist_id=A1"][0].SongID)
	assert.Equal(t, "S2", songs["year=0/artist_id=A2"][0].SongID)

	artists := readTable[warehouse.ArtistFile](t, st, "out/artists")[""]
	require.Len(t, artists, 2)
	assert.Equal(t, "A1", artists[0].ArtistID)
	assert.Nil(t, artists[0].Latitude)
	require.NotNil(t, artists[1].Latitude)
	assert.InDelta(t, 35.1, *artists[1].Latitude, 1e-9)

	users := readTable[warehouse.UserFile](t, st, "out/users")[""]
	require.Len(t, users, 2)
	byID := map[string]warehouse.UserFile{}
	for _, u := range users {
		byID[u.UserID] = u
	}
	assert.NotContains(t, byID, "99", "non-play events never reach users")
	assert.Equal(t, "paid", byID["12"].Level, "latest play wins")
	assert.Equal(t, "paid", byID["13"].Level)

	times := readTable[warehouse.TimeFile](t, st, "out/time")
	require.Len(t, times, 1)
	buckets := times["year=2018/month=11"]
	require.Len(t, buckets, 3)
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].StartTime < buckets[j].StartTime })
	assert.Equal(t, warehouse.TimeFile{StartTime: 1542003223796, Hour: 6, Day: 12, Week: 46, Weekday: 1}, buckets[0])

	plays := readTable[warehouse.SongPlayFile](t, st, "out/songplays")
	require.Len(t, plays, 1)
	rows := plays["year=2018/month=11"]
	require.Len(t, rows, 3)
	sort.Slice(rows, func(i, j int) bool { return rows[i].SongPlayID < rows[j].SongPlayID })

	assert.Equal(t, int64(0), rows[0].SongPlayID)
	assert.Equal(t, int64(1542003223796), rows[0].StartTime)
	require.NotNil(t, rows[0].SongID)
	assert.Equal(t, "S1", *rows[0].SongID)
	assert.Equal(t, "A1", *rows[0].ArtistID)
	assert.Equal(t, "13", rows[1].UserID)
	assert.Nil(t, rows[1].SongID, "unmatched plays are kept")
	assert.Nil(t, rows[2].SongID, "length outside tolerance")

	for _, table := range []string{"songs", "artists", "users", "time", "songplays"} {
		_, err := st.Stat(context.Background(), "out/"+table+"/"+parquetio.SuccessMarker)
		assert.NoError(t, err, table)
	}

	stats := sess.Stats()
	written := map[string]int{}
	for _, ts := range stats.Tables {
		written[ts.Table] = ts.Rows
	}
	assert.Equal(t, map[string]int{"songs": 2, "artists": 2, "users": 2, "time": 3, "songplays": 3}, written)
	assert.Equal(t, 2+2+2+3+3, stats.RowsWritten)
}

func TestPipelineRerunReplacesOutput(t *testing.T) {
	st := seed(t)
	run(t, st, "first")
	first := readTable[warehouse.SongPlayFile](t, st, "out/songplays")

	run(t, st, "second")
	second := readTable[warehouse.SongPlayFile](t, st, "out/songplays")
	assert.ElementsMatch(t, first["year=2018/month=11"], second["year=2018/month=11"])

	objs, err := st.List(context.Background(), "out/")
	require.NoError(t, err)
	for _, o := range objs {
		assert.NotContains(t, o.Key, "-first.", "previous run parts removed")
	}
}

func TestProcessLogDataNeedsInput(t *testing.T) {
	st := local.New(t.TempDir(), nil)
	sess, err := engine.New(engine.StaticResolver{Store: st}, engine.Options{Location: time.UTC}, nil)
	require.NoError(t, err)

	err = New(DefaultLayout()).ProcessLogData(context.Background(), sess, "in", "out")
	assert.ErrorIs(t, err, source.ErrNoInput)
}
