package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

type objectWriterFunc func(ctx context.Context, object string) io.WriteCloser

// GCSSink uploads reports to a Cloud Storage bucket.
type GCSSink struct {
	bucket    string
	prefix    string
	newWriter objectWriterFunc
}

// NewGCSSink creates a sink writing to bucket under prefix.
func NewGCSSink(client *storage.Client, bucket, prefix string) (*GCSSink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return newGCSSink(bucket, prefix, func(ctx context.Context, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = "application/json"
		return w
	})
}

func newGCSSink(bucket, prefix string, newWriter objectWriterFunc) (*GCSSink, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSSink{bucket: bucket, prefix: strings.Trim(prefix, "/"), newWriter: newWriter}, nil
}

// Save uploads the payload and returns a gs:// URI.
func (s *GCSSink) Save(ctx context.Context, run Run) (string, error) {
	object := path.Join(s.prefix, ObjectName(run.Host, run.StartedAt))
	writer := s.newWriter(ctx, object)
	if _, err := io.Copy(writer, bytes.NewReader(run.Payload)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}
