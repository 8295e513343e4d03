package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Backends.
const (
	SecretsKeyVault = "keyvault"
	SecretsEnv      = "env"

	StorageAzureBlob = "azblob"
	StorageMinio     = "minio"
)

// EnvPrefix namespaces the environment variables read by Load: key
// container_name is read from WEATHER_PIPELINE_CONTAINER_NAME. The vault URI
// is shared with the Azure identity and read from AZURE_VAULT_URI.
const EnvPrefix = "weather_pipeline"

const envVaultURI = "AZURE_VAULT_URI"

// Configuration keys.
const (
	KeyAPISecretName     = "api_secret_name"
	KeyBlobURLSecretName = "blob_url_secret_name"
	KeyLocationsFile     = "locations_file"
	KeyContainerName     = "container_name"
	KeyWeatherBaseURL    = "weather_base_url"
	KeyIncludeDir        = "include_dir"
	KeySchedule          = "schedule"
	KeyCatchUp           = "catch_up"
	KeyStepRetries       = "step_retries"
	KeyStepRetryDelay    = "step_retry_delay"
	KeyHTTPTimeout       = "http_timeout"
	KeyStoreMaxHistory   = "store_max_history"
	KeyStoreMaxAge       = "store_max_age"
	KeyPort              = "port"
	KeySecretsBackend    = "secrets_backend"
	KeyStorageBackend    = "storage_backend"
	KeyVaultURI          = "azure_vault_uri"
	KeyMinioAccessKey    = "minio_access_key"
	KeyMinioSecretKey    = "minio_secret_key"
)

// RunParams are the parameters of every pipeline run.
type RunParams struct {
	APISecretName     string `validate:"required"`
	BlobURLSecretName string `validate:"required"`
	LocationsFile     string `validate:"required"`
	ContainerName     string `validate:"required"`
}

type AppConfig struct {
	Params RunParams

	WeatherBaseURL string `validate:"required,url"`

	// IncludeDir is the fixed base directory location files are read from.
	IncludeDir string `validate:"required"`

	// Schedule is a standard cron expression or descriptor, evaluated in UTC.
	Schedule string `validate:"required,schedule"`
	// CatchUp fires one run at startup to cover a missed interval.
	CatchUp bool

	StepRetries    int           `validate:"gte=0"`
	StepRetryDelay time.Duration `validate:"gte=0"`

	// HTTPTimeout bounds weather API calls (0 = no timeout).
	HTTPTimeout time.Duration `validate:"gte=0"`

	// Run history retention.
	StoreMaxHistory int           // max number of runs kept (0 = unlimited)
	StoreMaxAge     time.Duration // max age of runs (0 = unlimited)

	Port string `validate:"required,numeric"`

	SecretsBackend string `validate:"oneof=keyvault env"`
	VaultURI       string `validate:"required_if=SecretsBackend keyvault"`

	StorageBackend string `validate:"oneof=azblob minio"`
	MinioAccessKey string `validate:"required_if=StorageBackend minio"`
	MinioSecretKey string `validate:"required_if=StorageBackend minio"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("schedule", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	}); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to register schedule validation: %v", err))
	}
	return v
}

// SetDefaults installs the documented defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyAPISecretName, "OpenWeatherApiKey")
	v.SetDefault(KeyBlobURLSecretName, "AzureStorageUrl")
	v.SetDefault(KeyLocationsFile, "locations.json")
	v.SetDefault(KeyContainerName, "openweather")
	v.SetDefault(KeyWeatherBaseURL, "https://api.openweathermap.org/data/2.5/weather")
	v.SetDefault(KeyIncludeDir, "include")
	v.SetDefault(KeySchedule, "0 * * * *")
	v.SetDefault(KeyCatchUp, false)
	v.SetDefault(KeyStepRetries, 3)
	v.SetDefault(KeyStepRetryDelay, "5m")
	v.SetDefault(KeyHTTPTimeout, "0s")
	v.SetDefault(KeyStoreMaxHistory, 168) // one week of hourly runs
	v.SetDefault(KeyStoreMaxAge, "168h")
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeySecretsBackend, SecretsKeyVault)
	v.SetDefault(KeyStorageBackend, StorageAzureBlob)
}

// Load reads configuration from .env, the prefixed environment and any flags
// bound on v, applies defaults and validates the result.
func Load(v *viper.Viper) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	if err := v.BindEnv(KeyVaultURI, envVaultURI); err != nil {
		return nil, fmt.Errorf("could not bind environment variable: %w", err)
	}

	cfg := &AppConfig{
		Params: RunParams{
			APISecretName:     v.GetString(KeyAPISecretName),
			BlobURLSecretName: v.GetString(KeyBlobURLSecretName),
			LocationsFile:     v.GetString(KeyLocationsFile),
			ContainerName:     v.GetString(KeyContainerName),
		},
		WeatherBaseURL:  v.GetString(KeyWeatherBaseURL),
		IncludeDir:      v.GetString(KeyIncludeDir),
		Schedule:        v.GetString(KeySchedule),
		CatchUp:         v.GetBool(KeyCatchUp),
		StepRetries:     v.GetInt(KeyStepRetries),
		StepRetryDelay:  v.GetDuration(KeyStepRetryDelay),
		HTTPTimeout:     v.GetDuration(KeyHTTPTimeout),
		StoreMaxHistory: v.GetInt(KeyStoreMaxHistory),
		StoreMaxAge:     v.GetDuration(KeyStoreMaxAge),
		Port:            v.GetString(KeyPort),
		SecretsBackend:  v.GetString(KeySecretsBackend),
		VaultURI:        v.GetString(KeyVaultURI),
		StorageBackend:  v.GetString(KeyStorageBackend),
		MinioAccessKey:  v.GetString(KeyMinioAccessKey),
		MinioSecretKey:  v.GetString(KeyMinioSecretKey),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
