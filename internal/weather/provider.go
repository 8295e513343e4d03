package weather

import (
	"context"

	"github.com/i474232898/weather-blob-pipeline/internal/table"
)

// Fetcher retrieves the raw current-weather document for a location.
// A non-nil error marks the location as unavailable for this run.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, loc Location, apiKey string) (table.Object, error)
}
