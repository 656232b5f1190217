package blob

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/storycast/storycast/internal/config"
)

// presignExpiry bounds the lifetime of returned URLs when no public base URL
// is configured.
const presignExpiry = 72 * time.Hour

// Storage is the audio blob storage interface. All uploads go through here.
// Implementations must be safe for concurrent use.
type Storage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Ping(ctx context.Context) error
}

// MinIOStorage implements the Storage interface against any S3-compatible
// endpoint using minio-go/v7.
type MinIOStorage struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// NewMinIOStorage connects to the configured endpoint and ensures the bucket
// exists. The bucket check runs once here, not per upload.
func NewMinIOStorage(ctx context.Context, cfg config.BlobConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &MinIOStorage{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

func (s *MinIOStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}

	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, presignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return presigned.String(), nil
}

func (s *MinIOStorage) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("checking bucket %q: %w", s.bucket, err)
	}
	return nil
}

// AudioKey builds the object key for one utterance's audio. Keys are
// namespaced by project and scene, with a millisecond suffix so regenerated
// audio never overwrites the blob an older item row still points at.
func AudioKey(projectID, sceneID, itemID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("projects/%s/scenes/%s/audio/%s-%d.mp3", projectID, sceneID, itemID, at.UnixMilli())
}
