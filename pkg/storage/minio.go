package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/noah-isme/docshare-api/pkg/config"
)

const defaultPresignTTL = 600 * time.Second

// MinIOStorage keeps blobs in a single S3-compatible bucket.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinIOStorage creates a MinIO client from the storage configuration.
func NewMinIOStorage(cfg config.StorageConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.MinIOEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
		Secure: cfg.MinIOUseSSL,
		Region: cfg.MinIORegion,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &MinIOStorage{client: client, bucket: cfg.MinIOBucket, region: cfg.MinIORegion}, nil
}

// EnsureBucket creates the document bucket when missing.
func (s *MinIOStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put uploads the blob under key.
func (s *MinIOStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, opts); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Get streams the blob stored under key.
func (s *MinIOStorage) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close() //nolint:errcheck
		return nil, s.translate(key, err)
	}
	return &Object{Body: obj, Size: info.Size, ContentType: info.ContentType}, nil
}

// Delete removes the blob; missing keys are not an error.
func (s *MinIOStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if err := s.translate(key, err); err != ErrObjectNotFound {
			return err
		}
	}
	return nil
}

// PresignGet returns a presigned GET URL that overrides the response headers
// so browsers get the original filename and MIME type.
func (s *MinIOStorage) PresignGet(ctx context.Context, key string, opts PresignOptions) (*PresignedURL, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	params := url.Values{}
	if opts.Filename != "" {
		kind := "inline"
		if opts.Attachment {
			kind = "attachment"
		}
		params.Set("response-content-disposition", fmt.Sprintf("%s; filename*=UTF-8''%s", kind, url.PathEscape(opts.Filename)))
	}
	if opts.ContentType != "" {
		params.Set("response-content-type", opts.ContentType)
	}
	issuedAt := time.Now()
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, params)
	if err != nil {
		return nil, fmt.Errorf("presign object %s: %w", key, err)
	}
	return &PresignedURL{URL: u.String(), ExpiresAt: issuedAt.Add(ttl)}, nil
}

func (s *MinIOStorage) translate(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject" {
		return ErrObjectNotFound
	}
	return fmt.Errorf("minio object %s: %w", key, err)
}
