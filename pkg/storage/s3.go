package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage uploads product images to an S3 bucket fronted by a CDN.
type S3Storage struct {
	client  s3API
	bucket  string
	cdnBase string
}

// NewS3Storage loads the default AWS credential chain for region.
func NewS3Storage(ctx context.Context, region, bucket, cdnBase string) (*S3Storage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cdnBase == "" {
		cdnBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return newS3Storage(s3.NewFromConfig(cfg), bucket, cdnBase), nil
}

func newS3Storage(client s3API, bucket, cdnBase string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, cdnBase: strings.TrimRight(cdnBase, "/")}
}

// Store uploads r under key and returns the key.
func (s *S3Storage) Store(ctx context.Context, key string, r io.Reader) (string, error) {
	bucket := s.bucket
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   r,
	}); err != nil {
		return "", fmt.Errorf("upload image to s3: %w", err)
	}
	return key, nil
}

// URL returns the public CDN URL for key.
func (s *S3Storage) URL(key string) (string, error) {
	return s.cdnBase + "/" + key, nil
}

// Delete removes key from the bucket.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	bucket := s.bucket
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &bucket, Key: &key}); err != nil {
		return fmt.Errorf("delete image from s3: %w", err)
	}
	return nil
}
