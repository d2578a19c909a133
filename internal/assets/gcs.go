package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	gcsUploadTimeout = 2 * time.Minute
	gcsDeleteTimeout = 30 * time.Second
)

// GCSStore хранит картинки в бакете Google Cloud Storage.
type GCSStore struct {
	client        *storage.Client
	bucket        string
	publicBaseURL string
	logger        *zap.Logger
}

// NewGCSStore создает клиента. Пустой credentialsFile - Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket, credentialsFile, publicBaseURL string, logger *zap.Logger) (*GCSStore, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	if publicBaseURL == "" || publicBaseURL == "/images" {
		publicBaseURL = "https://storage.googleapis.com/" + bucket
	}
	return &GCSStore{
		client:        client,
		bucket:        bucket,
		publicBaseURL: publicBaseURL,
		logger:        logger.Named("GCSStore").With(zap.String("bucket", bucket)),
	}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) (ref string, err error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, gcsUploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return "", multierr.Append(fmt.Errorf("failed to write data to GCS: %w", err), w.Close())
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	s.logger.Debug("Asset uploaded", zap.String("key", key), zap.Int("size_bytes", len(data)))
	return joinURL(s.publicBaseURL, key), nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, gcsDeleteTimeout)
	defer cancel()
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

// Close закрывает клиента GCS.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
