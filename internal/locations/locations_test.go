package locations_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-blob-pipeline/internal/locations"
	"github.com/i474232898/weather-blob-pipeline/internal/weather"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content *string

		want      []weather.Location
		wantErrIs error
		wantErr   bool
	}{
		"Valid file": {
			content: ptr(`[{"lat":"44.34","lon":"10.99"},{"lat":"51.51","lon":"-0.13"}]`),
			want:    []weather.Location{{Lat: "44.34", Lon: "10.99"}, {Lat: "51.51", Lon: "-0.13"}},
		},
		"Numeric coordinates": {
			content: ptr(`[{"lat":44.34,"lon":10.99}]`),
			want:    []weather.Location{{Lat: "44.34", Lon: "10.99"}},
		},
		"Empty array": {
			content: ptr(`[]`),
			want:    []weather.Location{},
		},
		"Missing file":    {wantErrIs: locations.ErrFileNotFound, wantErr: true},
		"Invalid json":    {content: ptr(`[{"lat":`), wantErr: true},
		"Not an array":    {content: ptr(`{"lat":"1","lon":"2"}`), wantErr: true},
		"Missing lon":     {content: ptr(`[{"lat":"1"}]`), wantErr: true},
		"Empty lat value": {content: ptr(`[{"lat":"","lon":"2"}]`), wantErr: true},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			if tc.content != nil {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "locations.json"), []byte(*tc.content), 0o600))
			}

			got, err := locations.NewLoader(dir).Load("locations.json")
			if tc.wantErr {
				require.Error(t, err)
				require.Empty(t, got, "failed loads must not return locations")
				if tc.wantErrIs != nil {
					require.ErrorIs(t, err, tc.wantErrIs)
				}
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestRequire(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.json"), []byte(`[]`), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "one.json"), []byte(`[{"lat":"1","lon":"2"}]`), 0o600))

	l := locations.NewLoader(dir)

	_, err := l.Require("empty.json")
	require.ErrorIs(t, err, locations.ErrEmpty)

	_, err = l.Require("missing.json")
	require.ErrorIs(t, err, locations.ErrFileNotFound)

	got, err := l.Require("nested/one.json")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestLoadStaysInsideIncludeDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	include := filepath.Join(root, "include")
	require.NoError(t, os.MkdirAll(filepath.Join(include, "sub"), 0o700))
	outside := `[{"lat":"1","lon":"2"}]`
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.json"), []byte(outside), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(include, "sub", "ok.json"), []byte(outside), 0o600))

	l := locations.NewLoader(include)

	tests := map[string]struct {
		relPath string

		wantErr bool
	}{
		"Plain file in a subdirectory":   {relPath: "sub/ok.json"},
		"Dot segments that stay inside":  {relPath: "sub/../sub/./ok.json"},
		"Parent directory":               {relPath: "../secret.json", wantErr: true},
		"Parent directory after a child": {relPath: "sub/../../secret.json", wantErr: true},
		"Absolute path":                  {relPath: filepath.Join(root, "secret.json"), wantErr: true},
		"Empty path":                     {relPath: "", wantErr: true},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := l.Load(tc.relPath)
			if tc.wantErr {
				require.ErrorIs(t, err, locations.ErrOutsideIncludeDir)
				require.Empty(t, got)

				_, err = l.Path(tc.relPath)
				require.ErrorIs(t, err, locations.ErrOutsideIncludeDir)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, 1)
		})
	}
}

func ptr(s string) *string { return &s }
