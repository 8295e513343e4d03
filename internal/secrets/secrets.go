// Package secrets resolves the credentials a pipeline run needs from a
// secret store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrMissingSecrets is returned when a required secret could not be
// retrieved or is empty.
var ErrMissingSecrets = errors.New("failed to retrieve required secrets")

// Provider looks up secrets by name. ok is false when the lookup itself
// failed, which is distinct from a secret whose value is empty.
type Provider interface {
	GetSecret(ctx context.Context, name string) (value string, ok bool)
}

// Credentials holds the per-run values read from the secret store.
// It is never persisted.
type Credentials struct {
	APIKey     string
	StorageURI string
}

// LogValue keeps secret values out of logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("api_key_set", c.APIKey != ""),
		slog.Bool("storage_uri_set", c.StorageURI != ""),
	)
}

// Resolve fetches the API key and storage URI secrets. It fails with
// ErrMissingSecrets naming every secret that was not found or was empty.
func Resolve(ctx context.Context, p Provider, apiSecretName, storageSecretName string) (Credentials, error) {
	var (
		creds   Credentials
		missing []string
	)

	apiKey, ok := p.GetSecret(ctx, apiSecretName)
	if !ok || apiKey == "" {
		missing = append(missing, apiSecretName)
	}
	storageURI, ok := p.GetSecret(ctx, storageSecretName)
	if !ok || storageURI == "" {
		missing = append(missing, storageSecretName)
	}

	if len(missing) > 0 {
		slog.Error("failed to retrieve secrets", "missing", missing)
		return creds, fmt.Errorf("%w: %s", ErrMissingSecrets, strings.Join(missing, ", "))
	}

	creds.APIKey = apiKey
	creds.StorageURI = storageURI
	slog.Info("retrieved secrets", "credentials", creds)
	return creds, nil
}
