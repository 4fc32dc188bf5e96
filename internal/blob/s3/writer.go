package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/supafund/supafund-engine/internal/domain"
)

// minPartSize is the smallest part size S3 accepts for multipart uploads.
const minPartSize = 5 * 1024 * 1024

// Writer implements domain.BlobWriter on top of the S3 client.
type Writer struct {
	client *Client
}

// NewWriter creates a Writer bound to the client's configured bucket.
func NewWriter(client *Client) *Writer {
	return &Writer{client: client}
}

// Put uploads a single object under the given path.
func (w *Writer) Put(ctx context.Context, path string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(w.client.bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := w.client.s3.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// PutMultipart streams a large object using the SDK's multipart upload
// manager. Suitable for archive batches whose size is unknown up front.
func (w *Writer) PutMultipart(ctx context.Context, path string, r io.Reader, contentType string) error {
	uploader := manager.NewUploader(w.client.s3, func(u *manager.Uploader) {
		u.PartSize = minPartSize
	})

	input := &s3.PutObjectInput{
		Bucket: aws.String(w.client.bucket),
		Key:    aws.String(path),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("s3blob: multipart put %s: %w", path, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BlobWriter = (*Writer)(nil)
