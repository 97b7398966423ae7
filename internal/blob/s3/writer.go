package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// minPartSize is the S3 multipart minimum (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// Writer implements domain.BlobWriter against the client's bucket.
type Writer struct {
	c *Client
}

// NewWriter creates a Writer over the given client.
func NewWriter(c *Client) *Writer {
	return &Writer{c: c}
}

// Put uploads data as a single object.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.c.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", path, err)
	}
	return nil
}

// PutMultipart streams data through the SDK upload manager, which splits it
// into parts and uploads them concurrently. partSize below the S3 minimum is
// clamped up to it.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	if partSize < minPartSize {
		partSize = minPartSize
	}

	uploader := manager.NewUploader(w.c.api, func(u *manager.Uploader) {
		u.PartSize = partSize
	})

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.c.bucket),
		Key:    aws.String(path),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}
