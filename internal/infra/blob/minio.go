package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/stackfolio/stackfolio/internal/domain/profile"
)

var _ profile.ReportStore = (*Store)(nil)

// Config holds the MinIO connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Store is the MinIO-backed object store. Objects with a .gzip key are
// stored compressed and transparently decompressed on read.
type Store struct {
	client *minio.Client
	bucket string
}

// NewStore connects to MinIO and ensures the bucket exists.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// GetObject fetches an object, decompressing it if the key marks it gzipped.
func (s *Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	defer obj.Close()

	if isGzipKey(key) {
		data, err := gzipDecompress(obj)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		return data, nil
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// PutObject stores an object, compressing it if the key marks it gzipped.
func (s *Store) PutObject(ctx context.Context, key string, body []byte) error {
	contentType := "application/json"
	if isGzipKey(key) {
		var err error
		if body, err = gzipCompress(body); err != nil {
			return fmt.Errorf("storing %s: %w", key, err)
		}
		contentType = "application/gzip"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

// CopyObject copies srcKey to dstKey server-side.
func (s *Store) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("copying %s to %s: %w", srcKey, dstKey, err)
	}
	return nil
}

// DeleteObject removes an object. Deleting a missing object is not an error.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// ListReports returns the current report object for each of the owner's
// projects, skipping the immutable filed copies.
func (s *Store) ListReports(ctx context.Context, ownerID string) ([]profile.ReportObject, error) {
	var out []profile.ReportObject
	opts := minio.ListObjectsOptions{Prefix: OwnerReportsPrefix(ownerID), Recursive: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing reports for %s: %w", ownerID, obj.Err)
		}
		if !IsLatestReportKey(obj.Key) {
			continue
		}
		out = append(out, profile.ReportObject{Key: obj.Key, LastModified: obj.LastModified})
	}
	return out, nil
}

// GetReport fetches and decompresses one report payload.
func (s *Store) GetReport(ctx context.Context, key string) ([]byte, error) {
	return s.GetObject(ctx, key)
}

// PutProfile stores the aggregated profile document for an owner.
func (s *Store) PutProfile(ctx context.Context, ownerID string, body []byte) error {
	return s.PutObject(ctx, ProfileKey(ownerID), body)
}
