package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	vault "github.com/hashicorp/vault/api"
	"github.com/kevin07696/funding-service/internal/domain/ports"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for HashiCorp Vault
type VaultConfig struct {
	Address   string
	Token     string
	Namespace string
	// KV secrets engine mount path (default: "secret")
	MountPath string
	// KV version: "v1" or "v2" (default: "v2")
	KVVersion string
}

// VaultStore reads secrets from a Vault KV engine
type VaultStore struct {
	client *vault.Client
	config *VaultConfig
	logger *zap.Logger
}

// NewVaultStore creates a token-authenticated Vault store
func NewVaultStore(cfg *VaultConfig, logger *zap.Logger) (*VaultStore, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required for token auth")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	logger.Info("Vault adapter initialized",
		zap.String("address", cfg.Address),
		zap.String("mount_path", cfg.MountPath),
		zap.String("kv_version", cfg.KVVersion),
	)

	return &VaultStore{client: client, config: cfg, logger: logger}, nil
}

// GetSecret reads the "value" key of the secret at path
func (a *VaultStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	fullPath := fmt.Sprintf("%s/%s", a.config.MountPath, path)
	if a.config.KVVersion != "v1" {
		fullPath = fmt.Sprintf("%s/data/%s", a.config.MountPath, path)
	}

	secret, err := a.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		a.logger.Error("Failed to retrieve secret from Vault", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	data := secret.Data
	version := "1"
	var createdTime string
	if a.config.KVVersion != "v1" {
		nested, ok := secret.Data["data"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid secret format from Vault")
		}
		data = nested
		if metadata, ok := secret.Data["metadata"].(map[string]interface{}); ok {
			if v, ok := metadata["version"].(json.Number); ok {
				version = v.String()
			}
			if ct, ok := metadata["created_time"].(string); ok {
				createdTime = ct
			}
		}
	}

	value, ok := data["value"].(string)
	if !ok || value == "" {
		return nil, fmt.Errorf("%w: %s has no value", ErrSecretNotFound, path)
	}

	result := &ports.Secret{
		Value:     value,
		Version:   version,
		CreatedAt: createdTime,
		Metadata:  make(map[string]string),
	}
	for k, v := range data {
		if str, ok := v.(string); ok && k != "value" {
			result.Metadata[k] = str
		}
	}
	return result, nil
}
