package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/starfrich/cryptletter/internal/common"
)

// MinioConfig holds connection settings for a MinIO backend.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore implements Store over MinIO using its native client.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Upload stores data under its content identifier.
func (m *MinioStore) Upload(ctx context.Context, data []byte, contentType string) (*Object, error) {
	id := ContentID(data)
	_, err := m.client.PutObject(ctx, m.bucket, id, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("%w: put object: %v", common.ErrNetwork, err)
	}
	return &Object{
		ID:      id,
		Locator: fmt.Sprintf("minio://%s/%s", m.bucket, id),
		Size:    int64(len(data)),
	}, nil
}

// Download returns the bytes stored under id, rejecting HTML error bodies.
func (m *MinioStore) Download(ctx context.Context, id string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get object: %v", common.ErrNetwork, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", common.ErrContentNotFound, id)
		}
		return nil, fmt.Errorf("%w: read body: %v", common.ErrNetwork, err)
	}
	if err := ValidatePayload(data); err != nil {
		return nil, err
	}
	return data, nil
}
