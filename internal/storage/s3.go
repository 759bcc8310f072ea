package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/metafusion/metafusion/pkg/errors"
)

// S3Config configures the S3-compatible backend.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Validate checks the config for required fields.
func (c S3Config) Validate() error {
	if c.Endpoint == "" {
		return errors.NewValidationError("endpoint", c.Endpoint, "endpoint is required")
	}
	if c.Bucket == "" {
		return errors.NewValidationError("bucket", c.Bucket, "bucket is required")
	}
	return nil
}

// S3 is a Backend that stores assets in an S3-compatible bucket, for
// setups where the media server reads artwork from object storage
// rather than the local disk.
type S3 struct {
	client *minio.Client
	bucket string
}

// NewS3 creates the backend and ensures the bucket exists.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// minio wants the endpoint without a scheme.
	endpoint := strings.TrimPrefix(cfg.Endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("creating bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &S3{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads data at path. When the stored object's ETag matches the
// payload's MD5 the upload is skipped.
func (s *S3) Put(ctx context.Context, path string, data []byte) (bool, error) {
	if info, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{}); err == nil {
		sum := md5.Sum(data)
		if info.ETag == hex.EncodeToString(sum[:]) {
			return false, nil
		}
	}

	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(path),
	})
	if err != nil {
		return false, errors.WrapIO("upload", path, err)
	}
	return true, nil
}

// Exists reports whether an object is present at path.
func (s *S3) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, errors.WrapIO("stat", path, err)
	}
	return true, nil
}

// Delete removes the object at path.
func (s *S3) Delete(ctx context.Context, path string) error {
	err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return errors.WrapIO("delete", path, err)
	}
	return nil
}

// List returns every object path under prefix.
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, errors.WrapIO("list", prefix, object.Err)
		}
		paths = append(paths, object.Key)
	}
	return paths, nil
}

func contentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".png"):
		return "image/png"
	case strings.HasSuffix(path, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
