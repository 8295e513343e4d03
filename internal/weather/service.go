package weather

import (
	"context"
	"log/slog"

	"github.com/i474232898/weather-blob-pipeline/internal/table"
)

// Observer is notified of per-location outcomes. It may be nil.
type Observer interface {
	LocationFetched()
	LocationSkipped(stage string)
}

// Result is the outcome of one fetch/flatten/combine pass.
type Result struct {
	// Table is never nil; it is empty when no location produced a row.
	Table   *table.Table
	Skipped []Skip
}

// Service fetches, flattens and combines weather data for a location list.
type Service struct {
	fetcher  Fetcher
	observer Observer
}

// NewService creates a new Service.
func NewService(fetcher Fetcher, observer Observer) *Service {
	return &Service{
		fetcher:  fetcher,
		observer: observer,
	}
}

// FetchConvertCombine fetches every location in order, flattens each payload
// and concatenates the rows into one table. Locations whose fetch or
// flatten fails are logged and skipped; they never abort the pass.
func (s *Service) FetchConvertCombine(ctx context.Context, locations []Location, apiKey string) Result {
	var (
		rows    []table.Row
		skipped []Skip
	)

	for _, loc := range locations {
		if ctx.Err() != nil {
			skipped = append(skipped, Skip{Location: loc, Stage: StageFetch, Reason: ctx.Err().Error()})
			s.skipped(StageFetch)
			continue
		}

		slog.Info("fetching weather data", "location", loc.Key())

		payload, err := s.fetcher.Fetch(ctx, loc, apiKey)
		if err != nil {
			slog.Error("failed to fetch weather data", "provider", s.fetcher.Name(), "location", loc.Key(), "error", err)
			skipped = append(skipped, Skip{Location: loc, Stage: StageFetch, Reason: err.Error()})
			s.skipped(StageFetch)
			continue
		}

		row, err := Flatten(payload)
		if err != nil || row.Empty() {
			if err == nil {
				err = ErrMissingConditions
			}
			slog.Error("failed to flatten weather data", "location", loc.Key(), "error", err)
			skipped = append(skipped, Skip{Location: loc, Stage: StageFlatten, Reason: err.Error()})
			s.skipped(StageFlatten)
			continue
		}

		rows = append(rows, row)
		if s.observer != nil {
			s.observer.LocationFetched()
		}
	}

	if len(rows) == 0 {
		slog.Warn("no weather data to combine", "locations", len(locations))
		return Result{Table: table.New(), Skipped: skipped}
	}

	combined := table.Concat(rows...)
	slog.Info("combined weather data", "rows", combined.Len(), "columns", len(combined.Columns()), "skipped", len(skipped))
	return Result{Table: combined, Skipped: skipped}
}

func (s *Service) skipped(stage string) {
	if s.observer != nil {
		s.observer.LocationSkipped(stage)
	}
}
