package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var errInvalidEndpoint = errors.New("invalid storage endpoint")

// Minio stores objects in an S3 compatible service. Containers map to buckets.
type Minio struct {
	client *minio.Client
}

// NewMinio connects to the endpoint in storageURI, e.g. http://localhost:9000.
// The scheme selects TLS.
func NewMinio(storageURI, accessKey, secretKey string) (*Minio, error) {
	u, err := url.Parse(storageURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidEndpoint, err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", errInvalidEndpoint, storageURI)
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Minio{client: client}, nil
}

// MinioOpener returns an Opener using static access keys.
func MinioOpener(accessKey, secretKey string) Opener {
	return func(storageURI string) (ObjectStore, error) {
		return NewMinio(storageURI, accessKey, secretKey)
	}
}

// Upload puts data under key unless an object already exists there.
func (m *Minio) Upload(ctx context.Context, container, key string, data []byte) error {
	_, err := m.client.StatObject(ctx, container, key, minio.StatObjectOptions{})
	if err == nil {
		return fmt.Errorf("%w: %s/%s", ErrBlobExists, container, key)
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return err
	}

	_, err = m.client.PutObject(ctx, container, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}
