package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"songplay_etl/internal/config"
	"songplay_etl/internal/storage"
	"songplay_etl/internal/storage/local"
	"songplay_etl/internal/storage/s3store"
)

// Resolver maps a root URI to a store and the key prefix of the root
// inside it.
type Resolver interface {
	Resolve(ctx context.Context, uri string) (storage.Store, string, error)
}

// S3Options configures the S3 clients built by Stores.
type S3Options struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

// Stores resolves file paths to local stores and s3 URIs to one cached
// client per bucket.
type Stores struct {
	creds config.Credentials
	s3    S3Options
	log   *zap.Logger

	mu     sync.Mutex
	stores map[string]storage.Store
}

// NewStores returns the production resolver.
func NewStores(creds config.Credentials, s3 S3Options, log *zap.Logger) *Stores {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stores{creds: creds, s3: s3, log: log, stores: make(map[string]storage.Store)}
}

func (r *Stores) Resolve(_ context.Context, uri string) (storage.Store, string, error) {
	loc, err := storage.ParseLocation(uri)
	if err != nil {
		return nil, "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cacheKey := string(loc.Scheme) + "://" + loc.Bucket
	if st, ok := r.stores[cacheKey]; ok {
		return st, loc.Prefix, nil
	}

	var st storage.Store
	switch loc.Scheme {
	case storage.SchemeS3:
		st, err = s3store.New(s3store.Options{
			Bucket:          loc.Bucket,
			Region:          r.s3.Region,
			Endpoint:        r.s3.Endpoint,
			PathStyle:       r.s3.PathStyle,
			AccessKeyID:     r.creds.AccessKeyID,
			SecretAccessKey: r.creds.SecretAccessKey,
			SessionToken:    r.creds.SessionToken,
		}, r.log)
		if err != nil {
			return nil, "", fmt.Errorf("engine: resolve %s: %w", uri, err)
		}
	default:
		st = local.New(loc.Bucket, r.log)
	}

	r.stores[cacheKey] = st
	return st, loc.Prefix, nil
}

// StaticResolver serves every URI from one store, mapping the URI's
// bucket (or path) and prefix to a key prefix: "s3://lake/out" and "lake/out"
// both resolve to "lake/out".
type StaticResolver struct {
	Store storage.Store
}

func (r StaticResolver) Resolve(_ context.Context, uri string) (storage.Store, string, error) {
	loc, err := storage.ParseLocation(uri)
	if err != nil {
		return nil, "", err
	}
	return r.Store, storage.Join(loc.Bucket, loc.Prefix), nil
}
