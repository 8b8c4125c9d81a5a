package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Storage implements ObjectStorage for AWS S3 and S3-compatible stores.
type S3Storage struct {
	client *s3.Client
	bucket string
	config S3Config
	retry  backoff
}

// S3Config holds configuration for S3 storage.
type S3Config struct {
	// Region is the AWS region for the S3 bucket.
	Region string
	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
	// Prefix is prepended to every object key.
	Prefix string
	// ContentType is set on uploaded chunk files when non-empty.
	ContentType string
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region: "us-east-1",
	}
}

// NewS3Storage creates a new S3 storage client.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3StorageWithClient(s3.NewFromConfig(awsCfg, s3Opts...), bucket, cfg), nil
}

// NewS3StorageWithClient creates a new S3 storage with a pre-configured client.
func NewS3StorageWithClient(client *s3.Client, bucket string, cfg S3Config) *S3Storage {
	return &S3Storage{
		client: client,
		bucket: bucket,
		config: cfg,
		retry:  defaultBackoff,
	}
}

// Put uploads a chunk in one PutObject call. S3 objects appear
// atomically, so a failed upload leaves nothing behind.
func (s *S3Storage) Put(ctx context.Context, objectPath string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(objectPath)),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if s.config.ContentType != "" {
		input.ContentType = aws.String(s.config.ContentType)
	}

	err := s.retry.do(ctx, func() error {
		// Each attempt needs a fresh body.
		input.Body = bytes.NewReader(data)
		_, err := s.client.PutObject(ctx, input)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: s3://%s/%s: %v", ErrUploadFailed, s.bucket, aws.ToString(input.Key), err)
	}
	return nil
}

// Delete removes an object. S3 reports success for missing keys.
func (s *S3Storage) Delete(ctx context.Context, objectPath string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(objectPath)),
	}
	err := s.retry.do(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, input)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

// ListObjects returns the paths of every object under prefix, relative to
// the configured key prefix.
func (s *S3Storage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	listPrefix := s.key(prefix)
	if listPrefix != "" {
		listPrefix += "/"
	}
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix),
	})

	var out []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, listPrefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, s.relative(aws.ToString(obj.Key)))
		}
	}
	return out, nil
}

// Location returns the s3:// URL of the object.
func (s *S3Storage) Location(objectPath string) string {
	return "s3://" + s.bucket + "/" + s.key(objectPath)
}

// key maps an object path onto a bucket key below the configured prefix.
// Absolute local paths lose their leading slash.
func (s *S3Storage) key(objectPath string) string {
	k := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(objectPath)), "/")
	if pre := s.prefix(); pre != "" {
		return path.Join(pre, k)
	}
	return k
}

func (s *S3Storage) relative(key string) string {
	if pre := s.prefix(); pre != "" {
		return strings.TrimPrefix(strings.TrimPrefix(key, pre), "/")
	}
	return key
}

func (s *S3Storage) prefix() string {
	return strings.Trim(s.config.Prefix, "/")
}
