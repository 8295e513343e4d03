// Package pipeline drives one weather collection run: retrieve secrets,
// load locations, fetch and combine weather data, upload the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-blob-pipeline/internal/secrets"
	"github.com/i474232898/weather-blob-pipeline/internal/store"
	"github.com/i474232898/weather-blob-pipeline/internal/table"
	"github.com/i474232898/weather-blob-pipeline/internal/weather"
)

// Step names, in execution order.
const (
	StepRetrieveSecrets = "retrieve_secrets"
	StepLoadLocations   = "load_location_data"
	StepProcessWeather  = "process_weather_data"
	StepUpload          = "upload_weather_data_to_blob"
)

// ErrNoData is returned when no location produced a usable row.
var ErrNoData = errors.New("no weather data was fetched")

// Params are the per-run parameters.
type Params struct {
	APISecretName     string
	BlobURLSecretName string
	LocationsFile     string
	ContainerName     string
}

// RetryPolicy controls step level retries. Retries is the number of extra
// attempts after the first one.
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
}

// LocationLoader returns a non-empty location list or an error.
type LocationLoader interface {
	Require(relPath string) ([]weather.Location, error)
}

// Combiner fetches and combines weather data for a location list.
type Combiner interface {
	FetchConvertCombine(ctx context.Context, locations []weather.Location, apiKey string) weather.Result
}

// Uploader persists a combined table and returns its key.
type Uploader interface {
	Upload(ctx context.Context, t *table.Table, storageURI, container string) (string, error)
}

// RunStore records run progress.
type RunStore interface {
	SaveRun(run store.Run)
}

// Recorder receives run and step measurements.
type Recorder interface {
	StepAttempt(step string, err error, d time.Duration)
	RunFinished(status string, at time.Time)
	RowsUploaded(n int)
}

// Deps are the collaborators of a Pipeline. Runs and Metrics may be nil.
type Deps struct {
	Secrets  secrets.Provider
	Loader   LocationLoader
	Combiner Combiner
	Uploader Uploader
	Runs     RunStore
	Metrics  Recorder
}

// Pipeline runs the four steps in order. Each step is retried according to
// the retry policy; the first step that keeps failing fails the run and the
// remaining steps are skipped.
type Pipeline struct {
	deps   Deps
	params Params
	retry  RetryPolicy

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Pipeline.
func New(deps Deps, params Params, retry RetryPolicy) *Pipeline {
	return &Pipeline{
		deps:   deps,
		params: params,
		retry:  retry,
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepContext,
	}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Run executes a run with a new ID.
func (p *Pipeline) Run(ctx context.Context, trigger store.Trigger) (store.Run, error) {
	return p.RunWithID(ctx, NewRunID(), trigger)
}

// RunWithID executes a run recorded under id. The returned run carries the
// final status of every step; the error is the cause of a failed run.
func (p *Pipeline) RunWithID(ctx context.Context, id string, trigger store.Trigger) (store.Run, error) {
	run := store.Run{
		ID:        id,
		Trigger:   trigger,
		Status:    store.StatusRunning,
		StartedAt: p.now(),
	}

	var (
		creds  secrets.Credentials
		locs   []weather.Location
		result weather.Result
	)

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{StepRetrieveSecrets, func(ctx context.Context) error {
			var err error
			creds, err = secrets.Resolve(ctx, p.deps.Secrets, p.params.APISecretName, p.params.BlobURLSecretName)
			return err
		}},
		{StepLoadLocations, func(context.Context) error {
			var err error
			locs, err = p.deps.Loader.Require(p.params.LocationsFile)
			if err != nil {
				return fmt.Errorf("failed to load locations from %s: %w", p.params.LocationsFile, err)
			}
			run.Locations = len(locs)
			return nil
		}},
		{StepProcessWeather, func(ctx context.Context) error {
			result = p.deps.Combiner.FetchConvertCombine(ctx, locs, creds.APIKey)
			run.Skipped = result.Skipped
			if result.Table.Empty() {
				return fmt.Errorf("%w: %d locations skipped", ErrNoData, len(result.Skipped))
			}
			run.Rows = result.Table.Len()
			return nil
		}},
		{StepUpload, func(ctx context.Context) error {
			key, err := p.deps.Uploader.Upload(ctx, result.Table, creds.StorageURI, p.params.ContainerName)
			if err != nil {
				return err
			}
			run.BlobKey = key
			return nil
		}},
	}

	for _, st := range steps {
		run.Steps = append(run.Steps, store.Step{Name: st.name, Status: store.StatusPending})
	}

	logger := slog.With("run_id", id, "trigger", trigger)
	logger.Info("starting weather pipeline run")
	p.save(run)

	var runErr error
	for i, st := range steps {
		if err := p.runStep(ctx, logger, &run, i, st.fn); err != nil {
			runErr = fmt.Errorf("%s: %w", st.name, err)
			break
		}
	}

	for i := range run.Steps {
		if run.Steps[i].Status == store.StatusPending {
			run.Steps[i].Status = store.StatusSkipped
		}
	}

	run.FinishedAt = p.now()
	if runErr != nil {
		run.Status = store.StatusFailed
		run.Error = runErr.Error()
		logger.Error("weather pipeline run failed", "error", runErr)
	} else {
		run.Status = store.StatusSucceeded
		logger.Info("weather pipeline run succeeded", "rows", run.Rows, "blob_key", run.BlobKey)
		if p.deps.Metrics != nil {
			p.deps.Metrics.RowsUploaded(run.Rows)
		}
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.RunFinished(string(run.Status), run.FinishedAt)
	}
	p.save(run)

	return run, runErr
}

func (p *Pipeline) runStep(ctx context.Context, logger *slog.Logger, run *store.Run, i int, fn func(context.Context) error) error {
	step := &run.Steps[i]
	step.Status = store.StatusRunning
	step.StartedAt = p.now()
	logger = logger.With("step", step.Name)

	var err error
	for attempt := 1; ; attempt++ {
		step.Attempts = attempt
		p.save(*run)

		start := time.Now()
		err = fn(ctx)
		if p.deps.Metrics != nil {
			p.deps.Metrics.StepAttempt(step.Name, err, time.Since(start))
		}
		if err == nil {
			break
		}

		step.Error = err.Error()
		if attempt > p.retry.Retries || ctx.Err() != nil {
			break
		}

		logger.Warn("step failed, retrying", "attempt", attempt, "retries", p.retry.Retries, "delay", p.retry.Delay, "error", err)
		if serr := p.sleep(ctx, p.retry.Delay); serr != nil {
			break
		}
	}

	step.FinishedAt = p.now()
	if err != nil {
		step.Status = store.StatusFailed
		logger.Error("step failed", "attempts", step.Attempts, "error", err)
		return err
	}

	step.Status = store.StatusSucceeded
	step.Error = ""
	logger.Info("step succeeded", "attempts", step.Attempts)
	return nil
}

func (p *Pipeline) save(run store.Run) {
	if p.deps.Runs != nil {
		p.deps.Runs.SaveRun(run)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
