// Package storage serializes combined weather tables and uploads them to
// object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/i474232898/weather-blob-pipeline/internal/table"
)

const (
	keyPrefix     = "weather_data_"
	keyExtension  = ".parquet"
	keyTimeLayout = "20060102_150405"

	contentType = "application/vnd.apache.parquet"
)

// maxKeyAttempts bounds how many keys one upload tries when keys are taken.
const maxKeyAttempts = 3

// ErrBlobExists is returned by an ObjectStore when the key is already taken.
var ErrBlobExists = errors.New("blob already exists")

// ObjectStore stores named byte blobs in containers. Upload never replaces
// an existing blob: it fails with ErrBlobExists instead.
type ObjectStore interface {
	Upload(ctx context.Context, container, key string, data []byte) error
}

// Opener builds an ObjectStore for a storage endpoint URI.
type Opener func(storageURI string) (ObjectStore, error)

// Uploader writes tables as Parquet blobs named after the upload time.
type Uploader struct {
	open Opener
	now  func() time.Time

	mu      sync.Mutex
	lastKey string
	dupes   int
}

// NewUploader returns an Uploader opening stores with open.
func NewUploader(open Opener) *Uploader {
	return &Uploader{
		open: open,
		now:  time.Now,
	}
}

// Key returns the blob key for an upload at t: weather_data_YYYYMMDD_HHMMSS.parquet.
func Key(t time.Time) string {
	return keyPrefix + t.UTC().Format(keyTimeLayout) + keyExtension
}

// nextKey returns a key for now that differs from the previous one even
// when two uploads fall within the same second.
func (u *Uploader) nextKey() string {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.now().UTC()
	base := Key(now)
	if base != u.lastKey {
		u.lastKey = base
		u.dupes = 0
		return base
	}
	u.dupes++
	return fmt.Sprintf("%s%s_%d%s", keyPrefix, now.Format(keyTimeLayout), u.dupes, keyExtension)
}

// Upload encodes t as Parquet and stores it in container at storageURI.
// An empty table is not uploaded: Upload returns "" and a nil error without
// touching the store. A taken key is never overwritten; the next free key is
// tried instead. On success it returns the blob key.
func (u *Uploader) Upload(ctx context.Context, t *table.Table, storageURI, container string) (string, error) {
	if t.Empty() {
		slog.Warn("no weather data to upload")
		return "", nil
	}

	key := u.nextKey()

	var buf bytes.Buffer
	if err := t.WriteParquet(&buf); err != nil {
		slog.Error("failed to encode weather data", "key", key, "error", err)
		return "", fmt.Errorf("encode %s: %w", key, err)
	}

	store, err := u.open(storageURI)
	if err != nil {
		slog.Error("failed to open object store", "error", err)
		return "", fmt.Errorf("open object store: %w", err)
	}

	for attempt := 1; ; attempt++ {
		slog.Info("uploading weather data", "container", container, "key", key, "rows", t.Len(), "bytes", buf.Len())
		err = store.Upload(ctx, container, key, buf.Bytes())
		if err == nil {
			break
		}
		if !errors.Is(err, ErrBlobExists) || attempt == maxKeyAttempts {
			slog.Error("failed to upload weather data", "container", container, "key", key, "error", err)
			return "", fmt.Errorf("upload %s to %s: %w", key, container, err)
		}
		slog.Warn("blob key already taken", "container", container, "key", key)
		key = u.nextKey()
	}

	slog.Info("uploaded weather data", "container", container, "key", key)
	return key, nil
}
