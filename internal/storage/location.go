package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Scheme names a storage backend.
type Scheme string

const (
	SchemeFile Scheme = "file"
	SchemeS3   Scheme = "s3"
)

// Location is a parsed root URI. For SchemeFile, Bucket holds the directory
// and Prefix is empty.
type Location struct {
	Scheme Scheme
	Bucket string
	Prefix string
}

// ParseLocation accepts s3://bucket/prefix, s3a://bucket/prefix,
// file:///dir or a bare filesystem path.
func ParseLocation(uri string) (Location, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Location{}, fmt.Errorf("storage: empty location")
	}

	scheme, rest, found := strings.Cut(uri, "://")
	if !found {
		return Location{Scheme: SchemeFile, Bucket: filepath.Clean(uri)}, nil
	}

	switch strings.ToLower(scheme) {
	case "file":
		if rest == "" {
			return Location{}, fmt.Errorf("storage: empty path in %q", uri)
		}
		return Location{Scheme: SchemeFile, Bucket: filepath.Clean(rest)}, nil
	case "s3", "s3a", "s3n":
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Location{}, fmt.Errorf("storage: missing bucket in %q", uri)
		}
		return Location{Scheme: SchemeS3, Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
	default:
		return Location{}, fmt.Errorf("storage: unsupported scheme %q in %q", scheme, uri)
	}
}

func (l Location) String() string {
	switch l.Scheme {
	case SchemeS3:
		if l.Prefix == "" {
			return "s3://" + l.Bucket + "/"
		}
		return "s3://" + l.Bucket + "/" + l.Prefix + "/"
	default:
		return l.Bucket
	}
}
