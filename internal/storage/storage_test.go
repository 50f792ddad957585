package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songplay_etl/internal/storage"
	"songplay_etl/internal/storage/local"
)

func TestJoin(t *testing.T) {
	assert.Equal(t, "a/b/c", storage.Join("a", "", "/b/", "c/"))
	assert.Equal(t, "", storage.Join("", "/"))
	assert.Equal(t, "songs/year=2018", storage.Join("", "songs", "year=2018"))
}

func TestDirPrefix(t *testing.T) {
	assert.Equal(t, "", storage.DirPrefix(""))
	assert.Equal(t, "", storage.DirPrefix("/"))
	assert.Equal(t, "a/b/", storage.DirPrefix("a/b"))
	assert.Equal(t, "a/b/", storage.DirPrefix("/a/b//"))
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in   string
		want storage.Location
	}{
		{"s3a://udacity-dend/", storage.Location{Scheme: storage.SchemeS3, Bucket: "udacity-dend"}},
		{"s3://lake/out/v1/", storage.Location{Scheme: storage.SchemeS3, Bucket: "lake", Prefix: "out/v1"}},
		{"S3N://lake", storage.Location{Scheme: storage.SchemeS3, Bucket: "lake"}},
		{"file:///tmp/data/", storage.Location{Scheme: storage.SchemeFile, Bucket: "/tmp/data"}},
		{"output_data/", storage.Location{Scheme: storage.SchemeFile, Bucket: "output_data"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := storage.ParseLocation(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "  ", "s3:///prefix", "gs://bucket/x", "file://"} {
		_, err := storage.ParseLocation(bad)
		assert.Error(t, err, bad)
	}
}

func TestLocationString(t *testing.T) {
	assert.Equal(t, "s3://lake/", storage.Location{Scheme: storage.SchemeS3, Bucket: "lake"}.String())
	assert.Equal(t, "s3://lake/out/", storage.Location{Scheme: storage.SchemeS3, Bucket: "lake", Prefix: "out"}.String())
	assert.Equal(t, "data", storage.Location{Scheme: storage.SchemeFile, Bucket: "data"}.String())
}

func TestGlob(t *testing.T) {
	ctx := context.Background()
	s := local.New(t.TempDir(), nil)
	for _, k := range []string{
		"in/song_data/A/A/A/TRAAAAK.json",
		"in/song_data/A/B/C/TRABCXY.json",
		"in/song_data/A/A/A/readme.txt",
		"in/log_data/2018/11/2018-11-12-events.json",
		"other/song_data/A/A/A/TRZZZ.json",
	} {
		require.NoError(t, s.Put(ctx, k, []byte("{}"), nil))
	}

	keys := func(objs []storage.ObjectInfo) []string {
		var out []string
		for _, o := range objs {
			out = append(out, o.Key)
		}
		return out
	}

	got, err := storage.Glob(ctx, s, "in", "song_data/*/*/*/*.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"in/song_data/A/A/A/TRAAAAK.json", "in/song_data/A/B/C/TRABCXY.json"}, keys(got))

	got, err = storage.Glob(ctx, s, "in/", "song_data/A/A/A/*.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"in/song_data/A/A/A/TRAAAAK.json"}, keys(got))

	got, err = storage.Glob(ctx, s, "in", "log_data/**/*.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"in/log_data/2018/11/2018-11-12-events.json"}, keys(got))

	got, err = storage.Glob(ctx, s, "", "**/TRZZZ.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"other/song_data/A/A/A/TRZZZ.json"}, keys(got))

	got, err = storage.Glob(ctx, s, "in", "missing/*.json")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = storage.Glob(ctx, s, "in", "song_data/[")
	assert.Error(t, err)
}
