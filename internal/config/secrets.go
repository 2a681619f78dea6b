package config

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// VaultClient reads secrets from a HashiCorp Vault KV v2 mount. Secrets
// live under secret/data/stockfunk/<path>.
type VaultClient struct {
	client *vault.Client
}

const (
	vaultMountPath  = "secret"
	vaultSecretPath = "stockfunk"
)

// NewVaultClient connects to Vault at cfg.Addr with cfg.Token.
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	vc := vault.DefaultConfig()
	vc.Address = cfg.Addr
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	return &VaultClient{client: client}, nil
}

// GetSecret reads the KV v2 secret at the given relative path.
func (vc *VaultClient) GetSecret(ctx context.Context, path string) (map[string]any, error) {
	fullPath := fmt.Sprintf("%s/data/%s/%s", vaultMountPath, vaultSecretPath, path)
	secret, err := vc.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading secret from vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at %s", fullPath)
	}
	// KV v2 nests the payload under "data".
	if data, ok := secret.Data["data"].(map[string]any); ok {
		return data, nil
	}
	return secret.Data, nil
}

// GetSecretString reads a single string value from a secret.
func (vc *VaultClient) GetSecretString(ctx context.Context, path, key string) (string, error) {
	data, err := vc.GetSecret(ctx, path)
	if err != nil {
		return "", err
	}
	value, ok := data[key].(string)
	if !ok {
		return "", fmt.Errorf("secret key %q not found or not a string at %s", key, path)
	}
	return value, nil
}

// LoadSecrets overlays Vault secrets onto the configuration. When Vault
// is not configured the values already present (from file or env) stand.
// Individual secret paths being absent is not an error; deployments may
// keep only some secrets in Vault.
func LoadSecrets(ctx context.Context, cfg *Config) error {
	if cfg.Vault.Addr == "" {
		log.Debug().Msg("Vault not configured, using environment secrets")
		return nil
	}

	vc, err := NewVaultClient(cfg.Vault)
	if err != nil {
		return err
	}

	overlays := []struct {
		path string
		key  string
		dest *string
	}{
		{"provider", "api_key", &cfg.Provider.APIKey},
		{"database", "url", &cfg.Database.URL},
		{"redis", "password", &cfg.Redis.Password},
		{"telegram", "bot_token", &cfg.Telegram.BotToken},
		{"llm", "api_key", &cfg.LLM.APIKey},
	}
	for _, o := range overlays {
		value, err := vc.GetSecretString(ctx, o.path, o.key)
		if err != nil {
			log.Warn().Err(err).Str("path", o.path).Msg("Secret not loaded from Vault")
			continue
		}
		if value != "" {
			*o.dest = value
			log.Info().Str("path", o.path).Str("key", o.key).Msg("Loaded secret from Vault")
		}
	}
	return nil
}
