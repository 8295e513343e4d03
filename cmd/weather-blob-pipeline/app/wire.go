package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/weather-blob-pipeline/internal/api/http"
	"github.com/i474232898/weather-blob-pipeline/internal/config"
	"github.com/i474232898/weather-blob-pipeline/internal/locations"
	"github.com/i474232898/weather-blob-pipeline/internal/metrics"
	"github.com/i474232898/weather-blob-pipeline/internal/pipeline"
	"github.com/i474232898/weather-blob-pipeline/internal/secrets"
	"github.com/i474232898/weather-blob-pipeline/internal/storage"
	"github.com/i474232898/weather-blob-pipeline/internal/store"
	"github.com/i474232898/weather-blob-pipeline/internal/weather"
	"github.com/i474232898/weather-blob-pipeline/internal/weather/providers"
)

// components are the long lived objects shared by the commands.
type components struct {
	pipeline *pipeline.Pipeline
	runs     *store.MemoryStore
	metrics  *metrics.Metrics
}

func build(cfg *config.AppConfig) (*components, error) {
	var cred azcore.TokenCredential
	azureCred := func() (azcore.TokenCredential, error) {
		if cred != nil {
			return cred, nil
		}
		id, err := secrets.IdentityFromEnv()
		if err != nil {
			return nil, err
		}
		cred, err = id.Credential()
		return cred, err
	}

	var sp secrets.Provider
	switch cfg.SecretsBackend {
	case config.SecretsKeyVault:
		c, err := azureCred()
		if err != nil {
			return nil, fmt.Errorf("failed to set up key vault access: %w", err)
		}
		kv, err := secrets.NewKeyVault(cfg.VaultURI, c)
		if err != nil {
			return nil, err
		}
		sp = kv
	case config.SecretsEnv:
		sp = secrets.NewEnv()
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", cfg.SecretsBackend)
	}

	var open storage.Opener
	switch cfg.StorageBackend {
	case config.StorageAzureBlob:
		c, err := azureCred()
		if err != nil {
			return nil, fmt.Errorf("failed to set up blob storage access: %w", err)
		}
		open = storage.AzureOpener(c)
	case config.StorageMinio:
		open = storage.MinioOpener(cfg.MinioAccessKey, cfg.MinioSecretKey)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	// Shared HTTP client for outbound weather calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	m := metrics.New()
	runs := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	p := pipeline.New(pipeline.Deps{
		Secrets:  sp,
		Loader:   locations.NewLoader(cfg.IncludeDir),
		Combiner: weather.NewService(providers.NewOpenWeatherProvider(httpClient, cfg.WeatherBaseURL), m),
		Uploader: storage.NewUploader(open),
		Runs:     runs,
		Metrics:  m,
	}, pipeline.Params{
		APISecretName:     cfg.Params.APISecretName,
		BlobURLSecretName: cfg.Params.BlobURLSecretName,
		LocationsFile:     cfg.Params.LocationsFile,
		ContainerName:     cfg.Params.ContainerName,
	}, pipeline.RetryPolicy{
		Retries: cfg.StepRetries,
		Delay:   cfg.StepRetryDelay,
	})

	slog.Debug("pipeline configured",
		"secrets_backend", cfg.SecretsBackend,
		"storage_backend", cfg.StorageBackend,
		"include_dir", cfg.IncludeDir,
		"locations_file", cfg.Params.LocationsFile,
		"container", cfg.Params.ContainerName)

	return &components{pipeline: p, runs: runs, metrics: m}, nil
}

func newServer(comp *components, trigger httpapi.Trigger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cmdName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": cmdName,
		})
	})

	httpapi.RegisterRoutes(app, comp.runs, trigger, comp.metrics.Registry())
	return app
}
