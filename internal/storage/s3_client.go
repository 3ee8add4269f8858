package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
	Prefix    string
}

// Client stores dead-letter attachments in an S3 bucket.
type Client struct {
	cfg S3Config
	s3  *s3.Client
}

func NewClient(ctx context.Context, cfg S3Config) (*Client, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	if cfg.Prefix == "" {
		cfg.Prefix = "failed-files"
	}
	return &Client{cfg: cfg, s3: s3Client}, nil
}

func (c *Client) Backend() string { return BackendS3 }

func (c *Client) key(name string) string {
	return strings.TrimSuffix(c.cfg.Prefix, "/") + "/" + ObjectName(name, time.Now())
}

// Save uploads the content and returns an s3://bucket/key path.
func (c *Client) Save(ctx context.Context, name, mimeType string, r io.Reader, size int64) (string, error) {
	if c == nil {
		return "", errors.New("s3 client not initialized")
	}
	key := c.key(name)
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := c.s3.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return "s3://" + c.cfg.Bucket + "/" + key, nil
}

// Delete removes an object. A missing object is reported as ErrFileMissing.
func (c *Client) Delete(ctx context.Context, path string) error {
	if c == nil {
		return errors.New("s3 client not initialized")
	}
	bucket, key, err := c.splitPath(path)
	if err != nil {
		return err
	}

	_, err = c.s3.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return ErrFileMissing
		}
		return fmt.Errorf("head object %s: %w", key, err)
	}

	if _, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (c *Client) splitPath(path string) (string, string, error) {
	if !strings.HasPrefix(path, "s3://") {
		return c.cfg.Bucket, strings.TrimPrefix(path, "/"), nil
	}
	rest := strings.TrimPrefix(path, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 path %q", path)
	}
	return bucket, key, nil
}
