package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-blob-pipeline/internal/weather"
)

func TestOpenWeatherFetch(t *testing.T) {
	t.Parallel()

	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"coord":{"lon":10.99,"lat":44.34},"weather":[{"id":800,"main":"Clear"}],"main":{"temp":280.3}}`))
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider(srv.Client(), srv.URL)
	payload, err := p.Fetch(context.Background(), weather.Location{Lat: "44.34", Lon: "10.99"}, "secret")
	require.NoError(t, err)

	q := gotQuery.Load().(url.Values)
	require.Equal(t, []string{"44.34"}, q["lat"])
	require.Equal(t, []string{"10.99"}, q["lon"])
	require.Equal(t, []string{"secret"}, q["appid"])

	require.Equal(t, "coord", payload[0].Key)
	_, ok := payload.Get("weather")
	require.True(t, ok)
}

func TestOpenWeatherFetchFailures(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status int
		body   string
		apiKey string

		wantStatus int
	}{
		"Unauthorized":     {status: http.StatusUnauthorized, body: `{"cod":401}`, apiKey: "k", wantStatus: http.StatusUnauthorized},
		"Server error":     {status: http.StatusInternalServerError, apiKey: "k", wantStatus: http.StatusInternalServerError},
		"Not json":         {status: http.StatusOK, body: `<html>`, apiKey: "k"},
		"Array body":       {status: http.StatusOK, body: `[]`, apiKey: "k"},
		"Missing api key":  {status: http.StatusOK, body: `{}`},
		"Too many request": {status: http.StatusTooManyRequests, apiKey: "k", wantStatus: http.StatusTooManyRequests},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p := NewOpenWeatherProvider(srv.Client(), srv.URL)
			_, err := p.Fetch(context.Background(), weather.Location{Lat: "1", Lon: "2"}, tc.apiKey)
			require.Error(t, err)

			if tc.wantStatus != 0 {
				var se *StatusError
				require.True(t, errors.As(err, &se), "expected StatusError, got %v", err)
				require.Equal(t, tc.wantStatus, se.Code)
				require.EqualValues(t, 1, calls.Load(), "fetch must not retry")
			}
		})
	}
}

func TestOpenWeatherBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider(srv.Client(), srv.URL)
	for i := 0; i < breakerThreshold+3; i++ {
		_, err := p.Fetch(context.Background(), weather.Location{Lat: "1", Lon: "2"}, "k")
		require.Error(t, err)
	}

	require.EqualValues(t, breakerThreshold, calls.Load())

	_, err := p.Fetch(context.Background(), weather.Location{Lat: "1", Lon: "2"}, "k")
	require.ErrorIs(t, err, errCircuitOpen)
}

func TestOpenWeatherBadLocationsDoNotOpenBreaker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("lat") != "good" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"cod":"400","message":"wrong latitude"}`))
			return
		}
		_, _ = w.Write([]byte(`{"coord":{"lon":1,"lat":2},"weather":[{"id":800,"main":"Clear"}],"main":{"temp":280.3}}`))
	}))
	defer srv.Close()

	var locs []weather.Location
	for i := 0; i < breakerThreshold+2; i++ {
		locs = append(locs, weather.Location{Lat: weather.Coordinate(fmt.Sprintf("bad%d", i)), Lon: "1"})
	}
	locs = append(locs, weather.Location{Lat: "good", Lon: "1"})

	svc := weather.NewService(NewOpenWeatherProvider(srv.Client(), srv.URL), nil)
	res := svc.FetchConvertCombine(context.Background(), locs, "k")

	require.EqualValues(t, len(locs), calls.Load(), "every location reaches the API")
	require.Equal(t, 1, res.Table.Len())
	require.Len(t, res.Skipped, breakerThreshold+2)
	for _, s := range res.Skipped {
		require.Contains(t, s.Reason, "400")
	}
}

func TestOpenWeatherRateLimitOpensBreaker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider(srv.Client(), srv.URL)
	for i := 0; i < breakerThreshold+1; i++ {
		_, _ = p.Fetch(context.Background(), weather.Location{Lat: "1", Lon: "2"}, "k")
	}

	require.EqualValues(t, breakerThreshold, calls.Load())
}

func TestAPIHealthy(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want bool
	}{
		"No error":          {want: true},
		"Bad request":       {err: &StatusError{Code: http.StatusBadRequest}, want: true},
		"Not found":         {err: fmt.Errorf("wrapped: %w", &StatusError{Code: http.StatusNotFound}), want: true},
		"Caller cancelled":  {err: context.Canceled, want: true},
		"Unauthorized":      {err: &StatusError{Code: http.StatusUnauthorized}, want: true},
		"Rate limited":      {err: &StatusError{Code: http.StatusTooManyRequests}, want: false},
		"Server error":      {err: &StatusError{Code: http.StatusServiceUnavailable}, want: false},
		"Transport failure": {err: errors.New("connection refused"), want: false},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, apiHealthy(tc.err))
		})
	}
}

func TestOpenWeatherFetchNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := srv.URL
	srv.Close()

	p := NewOpenWeatherProvider(http.DefaultClient, closedURL)
	_, err := p.Fetch(context.Background(), weather.Location{Lat: "1", Lon: "2"}, "k")
	require.Error(t, err)
}

func TestOpenWeatherFetchPreconditions(t *testing.T) {
	t.Parallel()

	loc := weather.Location{Lat: "1", Lon: "2"}

	_, err := NewOpenWeatherProvider(nil, "http://127.0.0.1:1").Fetch(context.Background(), loc, "k")
	require.ErrorIs(t, err, errNoHTTPClient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewOpenWeatherProvider(http.DefaultClient, "http://127.0.0.1:1").Fetch(ctx, loc, "k")
	require.ErrorIs(t, err, context.Canceled)

	_, err = NewOpenWeatherProvider(http.DefaultClient, "://bad").Fetch(context.Background(), loc, "k")
	require.Error(t, err)
}
