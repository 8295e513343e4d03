package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeS3 serves just enough of the S3 API for StatObject and PutObject.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]bool
	puts    int
}

func (f *fakeS3) state(path string) (exists bool, puts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[path], f.puts
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method == http.MethodGet && r.URL.Query().Has("location") {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, `<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodHead:
		if !f.objects[path] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", "4")
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		_, _ = io.Copy(io.Discard, r.Body)
		f.objects[path] = true
		f.puts++
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestMinioUploadNeverOverwrites(t *testing.T) {
	t.Parallel()

	s3 := &fakeS3{objects: make(map[string]bool)}
	srv := httptest.NewServer(s3)
	t.Cleanup(srv.Close)

	m, err := NewMinio(srv.URL, "access", "secret")
	require.NoError(t, err)

	ctx := context.Background()
	key := "weather_data_20241001_070000.parquet"

	require.NoError(t, m.Upload(ctx, "openweather", key, []byte("PAR1")))
	exists, _ := s3.state("openweather/" + key)
	require.True(t, exists)

	err = m.Upload(ctx, "openweather", key, []byte("PAR1"))
	require.ErrorIs(t, err, ErrBlobExists)
	_, puts := s3.state("")
	require.Equal(t, 1, puts, "an existing object must not be written again")

	require.NoError(t, m.Upload(ctx, "openweather", "weather_data_20241001_070000_1.parquet", []byte("PAR1")))
	_, puts = s3.state("")
	require.Equal(t, 2, puts)
}

func TestMinioUploadReturnsStatErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("location") {
			_, _ = io.WriteString(w, `<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></LocationConstraint>`)
			return
		}
		if r.Method == http.MethodPut {
			t.Errorf("unexpected PUT %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	m, err := NewMinio(srv.URL, "access", "secret")
	require.NoError(t, err)

	err = m.Upload(context.Background(), "openweather", "k.parquet", []byte("PAR1"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrBlobExists)
}
