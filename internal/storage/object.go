package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ObjectConfig configures an S3-compatible bucket.
type ObjectConfig struct {
	// Endpoint overrides the service URL. Empty with AccountID set means
	// Cloudflare R2; empty without AccountID means AWS S3.
	Endpoint  string
	AccountID string

	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string // Defaults to "auto"

	// PathStyle addresses buckets as endpoint/bucket/key, as MinIO expects.
	PathStyle bool
}

func (c ObjectConfig) endpoint() string {
	switch {
	case c.Endpoint != "":
		return strings.TrimSuffix(c.Endpoint, "/")
	case c.AccountID != "":
		return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
	default:
		return ""
	}
}

// ObjectStore stores files in an S3-compatible bucket.
type ObjectStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	logger  *slog.Logger
}

// NewObjectStore builds the S3 client. No network calls are made.
func NewObjectStore(cfg ObjectConfig, logger *slog.Logger) (*ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object storage: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	endpoint := cfg.endpoint()

	client := s3.New(s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: cfg.PathStyle,
	}, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	logger.Info("initialized object storage", "bucket", cfg.Bucket, "endpoint", endpoint, "region", region)
	return &ObjectStore{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		logger:  logger,
	}, nil
}

func validKey(key string) bool {
	return key != "" && !strings.HasPrefix(key, "/") && !strings.Contains(key, "..")
}

func (s *ObjectStore) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error {
	if !validKey(key) {
		return opErr("put", key, ErrInvalidKey)
	}
	if !opts.Overwrite {
		exists, err := s.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return opErr("put", key, ErrKeyExists)
		}
	}

	body := data
	if opts.MaxSize > 0 {
		body = io.LimitReader(data, opts.MaxSize)
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return opErr("put", key, translate(err))
	}
	s.logger.Debug("stored object", "key", key, "etag", aws.ToString(out.ETag))
	return nil
}

func (s *ObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if !validKey(key) {
		return nil, ObjectInfo{}, opErr("get", key, ErrInvalidKey)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ObjectInfo{}, opErr("get", key, translate(err))
	}
	return out.Body, ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         aws.ToString(out.ETag),
	}, nil
}

func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return opErr("delete", key, ErrInvalidKey)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return opErr("delete", key, translate(err))
	}
	return nil
}

func (s *ObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	if !validKey(key) {
		return false, opErr("exists", key, ErrInvalidKey)
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(translate(err), ErrNotFound) {
		return false, nil
	}
	return false, opErr("exists", key, translate(err))
}

// URL returns a presigned GET link.
func (s *ObjectStore) URL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if !validKey(key) {
		return "", opErr("url", key, ErrInvalidKey)
	}
	if expires <= 0 {
		expires = 15 * time.Minute
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", opErr("url", key, err)
	}
	return req.URL, nil
}

// translate maps SDK errors onto the package sentinels.
func translate(err error) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return ErrNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return ErrNotFound
		case "AccessDenied", "Forbidden":
			return ErrAccessDenied
		case "EntityTooLarge":
			return ErrTooLarge
		}
	}
	return err
}
