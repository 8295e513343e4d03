package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// Environment variables holding the service principal identity.
const (
	EnvClientID     = "AZURE_CLIENT_ID"
	EnvTenantID     = "AZURE_TENANT_ID"
	EnvClientSecret = "AZURE_CLIENT_SECRET"
	EnvVaultURI     = "AZURE_VAULT_URI"
)

// ErrIdentityNotConfigured is returned when the service principal
// environment is incomplete.
var ErrIdentityNotConfigured = errors.New("azure identity is not configured")

// Identity is a service principal used for both Key Vault and Blob Storage.
type Identity struct {
	ClientID     string
	TenantID     string
	ClientSecret string
}

// IdentityFromEnv reads the service principal from the process environment.
func IdentityFromEnv() (Identity, error) {
	id := Identity{
		ClientID:     os.Getenv(EnvClientID),
		TenantID:     os.Getenv(EnvTenantID),
		ClientSecret: os.Getenv(EnvClientSecret),
	}

	var missing []string
	if id.ClientID == "" {
		missing = append(missing, EnvClientID)
	}
	if id.TenantID == "" {
		missing = append(missing, EnvTenantID)
	}
	if id.ClientSecret == "" {
		missing = append(missing, EnvClientSecret)
	}
	if len(missing) > 0 {
		return Identity{}, fmt.Errorf("%w: missing %s", ErrIdentityNotConfigured, strings.Join(missing, ", "))
	}
	return id, nil
}

// Credential builds the azcore credential for this identity.
func (id Identity) Credential() (azcore.TokenCredential, error) {
	cred, err := azidentity.NewClientSecretCredential(id.TenantID, id.ClientID, id.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("create client secret credential: %w", err)
	}
	return cred, nil
}

// keyVaultAPI is the subset of azsecrets.Client used here.
type keyVaultAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// KeyVault reads secrets from Azure Key Vault.
type KeyVault struct {
	client keyVaultAPI
}

// NewKeyVault authenticates against vaultURL with cred.
func NewKeyVault(vaultURL string, cred azcore.TokenCredential) (*KeyVault, error) {
	if vaultURL == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrIdentityNotConfigured, EnvVaultURI)
	}
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create key vault client: %w", err)
	}
	return &KeyVault{client: client}, nil
}

// GetSecret returns the latest version of the named secret.
func (k *KeyVault) GetSecret(ctx context.Context, name string) (string, bool) {
	resp, err := k.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		slog.Error("failed to retrieve secret", "name", name, "error", err)
		return "", false
	}
	if resp.Value == nil {
		slog.Error("secret has no value", "name", name)
		return "", false
	}
	slog.Debug("retrieved secret", "name", name)
	return *resp.Value, true
}
