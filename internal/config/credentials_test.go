package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredentialsINI(t *testing.T) {
	creds, err := ParseCredentials(strings.NewReader(`
; udacity style
[KEYS]
AWS_ACCESS_KEY_ID=AKIAEXAMPLE
AWS_SECRET_ACCESS_KEY='s3cr3t/with+chars'
`))
	require.NoError(t, err)
	assert.Equal(t, "AKIAEXAMPLE", creds.AccessKeyID)
	assert.Equal(t, "s3cr3t/with+chars", creds.SecretAccessKey)
	assert.Empty(t, creds.SessionToken)
	assert.False(t, creds.Empty())
}

func TestParseCredentialsCaseInsensitive(t *testing.T) {
	creds, err := ParseCredentials(strings.NewReader("aws_access_key_id=id\naws_secret_access_key=key\naws_session_token=tok\n"))
	require.NoError(t, err)
	assert.Equal(t, Credentials{AccessKeyID: "id", SecretAccessKey: "key", SessionToken: "tok"}, creds)
}

func TestCredentialsStringRedacts(t *testing.T) {
	c := Credentials{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "s3cr3t"}
	assert.Equal(t, "credentials(access_key_id=AKIA****)", c.String())
	assert.NotContains(t, c.String(), "s3cr3t")
	assert.Equal(t, "credentials(none)", Credentials{}.String())
}

func TestLoadCredentials(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "dl.cfg")

	creds, err := LoadCredentials(missing, false)
	require.NoError(t, err)
	assert.True(t, creds.Empty())

	_, err = LoadCredentials(missing, true)
	assert.ErrorIs(t, err, ErrMissingCredentials)

	partial := writeFile(t, "dl.cfg", "[KEYS]\nAWS_ACCESS_KEY_ID=id\n")
	_, err = LoadCredentials(partial, true)
	assert.ErrorIs(t, err, ErrMissingCredentials)

	creds, err = LoadCredentials(partial, false)
	require.NoError(t, err)
	assert.Equal(t, "id", creds.AccessKeyID)

	full := writeFile(t, "dl.cfg", "[KEYS]\nAWS_ACCESS_KEY_ID=id\nAWS_SECRET_ACCESS_KEY=key\n")
	creds, err = LoadCredentials(full, true)
	require.NoError(t, err)
	assert.Equal(t, "key", creds.SecretAccessKey)
}
