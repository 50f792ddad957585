package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// ErrMissingCredentials is returned when S3 access needs credentials the
// credentials file does not provide.
var ErrMissingCredentials = errors.New("config: missing credentials")

const (
	keyAccessKeyID     = "AWS_ACCESS_KEY_ID"
	keySecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	keySessionToken    = "AWS_SESSION_TOKEN"
)

// Credentials authorize object-storage access. They are handed to the
// storage constructor and never exported to the process environment.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Empty reports whether no key pair is set.
func (c Credentials) Empty() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == ""
}

// String redacts the secret parts.
func (c Credentials) String() string {
	if c.Empty() {
		return "credentials(none)"
	}
	id := c.AccessKeyID
	if len(id) > 4 {
		id = id[:4] + "****"
	}
	return fmt.Sprintf("credentials(access_key_id=%s)", id)
}

// LoadCredentials reads the credentials file at path. When required is
// false a missing file yields empty credentials.
func LoadCredentials(path string, required bool) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return Credentials{}, nil
		}
		return Credentials{}, fmt.Errorf("%w: open %s: %v", ErrMissingCredentials, path, err)
	}
	defer f.Close()

	creds, err := ParseCredentials(f)
	if err != nil {
		return Credentials{}, fmt.Errorf("%s: %w", path, err)
	}
	if required && (creds.AccessKeyID == "" || creds.SecretAccessKey == "") {
		return Credentials{}, fmt.Errorf("%w: %s must set %s and %s", ErrMissingCredentials, path, keyAccessKeyID, keySecretAccessKey)
	}
	return creds, nil
}

// ParseCredentials reads KEY=VALUE lines. INI section headers such as
// [KEYS] and ';' comments are skipped, so dl.cfg style files work as is.
// Key names are case-insensitive.
func ParseCredentials(r io.Reader) (Credentials, error) {
	var b strings.Builder
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, ";") || (strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")) {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return Credentials{}, fmt.Errorf("%w: read: %v", ErrInvalidConfig, err)
	}

	vals, err := godotenv.Unmarshal(b.String())
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: parse credentials: %v", ErrInvalidConfig, err)
	}

	upper := make(map[string]string, len(vals))
	for k, v := range vals {
		upper[strings.ToUpper(k)] = v
	}
	return Credentials{
		AccessKeyID:     upper[keyAccessKeyID],
		SecretAccessKey: upper[keySecretAccessKey],
		SessionToken:    upper[keySessionToken],
	}, nil
}
