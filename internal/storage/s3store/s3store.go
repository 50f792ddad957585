// Package s3store implements storage.Store on an S3 bucket with aws-sdk-go.
//
// Credentials are passed in explicitly; the store never reads or writes the
// process environment.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"go.uber.org/zap"

	"songplay_etl/internal/storage"
)

// deleteBatch is the DeleteObjects per-request key limit.
const deleteBatch = 1000

// accessTestKey is written and removed by CheckWrite.
const accessTestKey = "_etl_connection_test"

// Options configures New.
type Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Store is an S3-backed storage.Store for a single bucket.
type Store struct {
	client   s3iface.S3API
	uploader s3manageriface.UploaderAPI
	bucket   string
	log      *zap.Logger
}

// New builds an AWS session from opts. Without an access key the session
// uses anonymous credentials, which is enough for public input buckets.
func New(opts Options, log *zap.Logger) (*Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3store: bucket is required")
	}

	cfg := &aws.Config{Region: aws.String(opts.Region)}
	if opts.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)
	} else {
		cfg.Credentials = credentials.AnonymousCredentials
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
	}
	if opts.PathStyle {
		cfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("s3store: new session: %w", err)
	}

	client := s3.New(sess)
	return NewWithClient(opts.Bucket, client, s3manager.NewUploaderWithClient(client), log), nil
}

// NewWithClient wires a store over existing clients.
func NewWithClient(bucket string, client s3iface.S3API, uploader s3manageriface.UploaderAPI, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		log:      log.With(zap.String("store", "s3"), zap.String("bucket", bucket)),
	}
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	err := s.client.ListObjectsV2PagesWithContext(ctx,
		&s3.ListObjectsV2Input{Bucket: aws.String(s.bucket), Prefix: aws.String(prefix)},
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				out = append(out, storage.ObjectInfo{Key: aws.StringValue(obj.Key), Size: aws.Int64Value(obj.Size)})
			}
			return !lastPage
		})
	if err != nil {
		return nil, fmt.Errorf("s3store: list s3://%s/%s: %w", s.bucket, prefix, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Open streams the object body instead of buffering it.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: get s3://%s/%s: %w", s.bucket, key, mapNotFound(err))
	}
	return obj.Body, nil
}

func (s *Store) Put(ctx context.Context, key string, body []byte, meta map[string]string) error {
	in := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if len(meta) > 0 {
		in.Metadata = aws.StringMap(meta)
	}

	res, err := s.uploader.UploadWithContext(ctx, in)
	if err != nil {
		return fmt.Errorf("s3store: upload s3://%s/%s: %w", s.bucket, key, err)
	}
	s.log.Debug("uploaded", zap.String("key", key), zap.Int("bytes", len(body)), zap.String("location", res.Location))
	return nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	head, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("s3store: head s3://%s/%s: %w", s.bucket, key, mapNotFound(err))
	}
	return storage.ObjectInfo{Key: key, Size: aws.Int64Value(head.ContentLength)}, nil
}

// DeletePrefix lists the directory and removes it in DeleteObjects batches.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	dir := storage.DirPrefix(prefix)
	if dir == "" {
		return 0, fmt.Errorf("s3store: refusing to delete bucket root s3://%s/", s.bucket)
	}

	objs, err := s.List(ctx, dir)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(objs); start += deleteBatch {
		end := min(start+deleteBatch, len(objs))
		ids := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, o := range objs[start:end] {
			ids = append(ids, &s3.ObjectIdentifier{Key: aws.String(o.Key)})
		}

		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("s3store: delete s3://%s/%s: %w", s.bucket, dir, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return deleted, fmt.Errorf("s3store: delete s3://%s/%s: %d keys failed, first %s: %s",
				s.bucket, aws.StringValue(first.Key), len(out.Errors), aws.StringValue(first.Code), aws.StringValue(first.Message))
		}
		deleted += len(ids)
	}

	s.log.Debug("deleted prefix", zap.String("prefix", dir), zap.Int("objects", deleted))
	return deleted, nil
}

// CheckWrite uploads and removes a small probe object so that a missing
// write permission fails the run before any table is derived.
func (s *Store) CheckWrite(ctx context.Context, prefix string) error {
	key := storage.Join(prefix, accessTestKey)
	if err := s.Put(ctx, key, []byte("S3 connection test successful"), nil); err != nil {
		return fmt.Errorf("s3store: write check failed: %w", err)
	}

	if _, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		s.log.Warn("failed to clean up write check object", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func mapNotFound(err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return fmt.Errorf("%w: %s", storage.ErrNotFound, aerr.Message())
		}
	}
	var rf awserr.RequestFailure
	if errors.As(err, &rf) && rf.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, strings.TrimSpace(rf.Message()))
	}
	return err
}

var _ storage.Store = (*Store)(nil)
