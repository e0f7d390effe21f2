// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store keeps rendered images in an S3 bucket and serves provider result
// references (plain HTTPS URLs) through an HTTP fetch fallback.
type S3Store struct {
	client     *s3.Client
	bucket     string
	region     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewS3Store(ctx context.Context, bucket, region string, logger *slog.Logger) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &S3Store{
		client:     s3.NewFromConfig(cfg),
		bucket:     bucket,
		region:     region,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}, nil
}

func (s *S3Store) Store(ctx context.Context, key string, data []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	url := ObjectURL(s.bucket, s.region, key)
	s.logger.Debug("image stored", "key", key, "bytes", len(data), "url", url)
	return url, nil
}

func (s *S3Store) Fetch(ctx context.Context, url string) ([]byte, error) {
	if key, ok := s.objectKey(url); ok {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: &s.bucket,
			Key:    &key,
		})
		if err != nil {
			return nil, fmt.Errorf("get object %s: %w", key, err)
		}
		defer out.Body.Close()
		return io.ReadAll(out.Body)
	}

	// Provider result references and original uploads live outside our
	// bucket; fetch them over plain HTTPS.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
}

// ObjectURL builds the virtual-hosted URL for a bucket object.
func ObjectURL(bucket, region, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}

func (s *S3Store) objectKey(url string) (string, bool) {
	prefix := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", s.bucket, s.region)
	if strings.HasPrefix(url, prefix) {
		return strings.TrimPrefix(url, prefix), true
	}
	return "", false
}
