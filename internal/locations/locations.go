// Package locations loads the list of coordinates the pipeline queries.
package locations

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/weather-blob-pipeline/internal/weather"
)

var (
	// ErrFileNotFound is returned when the resolved locations file does not exist.
	ErrFileNotFound = errors.New("locations file not found")
	// ErrEmpty is returned by Require when a file holds no locations.
	ErrEmpty = errors.New("no locations loaded")
	// ErrOutsideIncludeDir is returned for paths that leave the include directory.
	ErrOutsideIncludeDir = errors.New("locations file outside include directory")
)

var validate = validator.New()

// Loader reads location files relative to a fixed include directory.
type Loader struct {
	baseDir string
}

// NewLoader returns a Loader rooted at baseDir.
func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

// Path returns the location of relPath under the include directory.
// Absolute paths and paths climbing out of the directory are rejected.
func (l *Loader) Path(relPath string) (string, error) {
	if filepath.IsAbs(relPath) || !filepath.IsLocal(relPath) {
		return "", fmt.Errorf("%w: %q", ErrOutsideIncludeDir, relPath)
	}
	return filepath.Join(l.baseDir, relPath), nil
}

// Load reads a JSON array of {lat, lon} records.
//
// A missing file yields ErrFileNotFound, any other read or parse problem is
// returned as is. A well formed file with no records yields an empty,
// non-nil slice and no error.
func (l *Loader) Load(relPath string) ([]weather.Location, error) {
	path, err := l.Path(relPath)
	if err != nil {
		slog.Error("refusing to read locations file", "path", relPath, "error", err)
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Error("locations file not found", "path", path)
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if err != nil {
		slog.Error("failed to read locations file", "path", path, "error", err)
		return nil, fmt.Errorf("read locations %s: %w", path, err)
	}

	var locs []weather.Location
	if err := json.Unmarshal(data, &locs); err != nil {
		slog.Error("failed to parse locations file", "path", path, "error", err)
		return nil, fmt.Errorf("parse locations %s: %w", path, err)
	}

	for i, loc := range locs {
		if err := validate.Struct(loc); err != nil {
			return nil, fmt.Errorf("location %d in %s: %w", i, path, err)
		}
	}

	if locs == nil {
		locs = []weather.Location{}
	}
	slog.Info("loaded locations", "path", path, "count", len(locs))
	return locs, nil
}

// Require loads relPath and fails with ErrEmpty when the file is valid but
// holds no locations.
func (l *Loader) Require(relPath string) ([]weather.Location, error) {
	locs, err := l.Load(relPath)
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return nil, fmt.Errorf("%w from %s", ErrEmpty, relPath)
	}
	return locs, nil
}
