// Package s3blob stores archive objects in S3-compatible storage (AWS S3,
// MinIO, R2). The desk uses it as the archive target for closed positions.
package s3blob

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds the connection parameters for the object store.
type ClientConfig struct {
	// Endpoint overrides the S3 endpoint for compatible providers. Leave
	// empty for AWS S3 proper.
	Endpoint string

	Region    string
	Bucket    string
	AccessKey string
	SecretKey string

	// UseSSL picks the scheme when Endpoint is given without one.
	UseSSL bool

	// ForcePathStyle puts the bucket in the URL path instead of the
	// subdomain. Most self-hosted S3-compatible stores need this.
	ForcePathStyle bool
}

// Client is a bucket-scoped S3 client.
type Client struct {
	api    *s3.Client
	bucket string
}

// New creates a Client bound to the configured bucket.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{api: api, bucket: cfg.Bucket}, nil
}

// Ping verifies the bucket is reachable and the credentials can see it.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close is a no-op; the SDK's HTTP client needs no explicit teardown.
func (c *Client) Close() error {
	return nil
}

// withScheme prepends http:// or https:// when the endpoint has no scheme.
func withScheme(endpoint string, useSSL bool) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Scheme != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
