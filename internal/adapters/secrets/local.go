package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kevin07696/funding-service/internal/domain/ports"
	"go.uber.org/zap"
)

// LocalStore reads secrets from files under a base directory.
// For development only; use AWS Secrets Manager or Vault in production.
type LocalStore struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalStore creates a filesystem secret store
func NewLocalStore(basePath string, logger *zap.Logger) *LocalStore {
	return &LocalStore{basePath: basePath, logger: logger}
}

// GetSecret reads basePath/secretPath. Files may hold plain text or
// JSON of the form {"value": "...", "tags": {...}, "created_at": "..."}.
func (m *LocalStore) GetSecret(_ context.Context, secretPath string) (*ports.Secret, error) {
	clean := filepath.Clean("/" + secretPath)
	filePath := filepath.Join(m.basePath, clean)

	m.logger.Debug("Reading secret from filesystem", zap.String("path", secretPath))

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, secretPath)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	var secretData struct {
		Value     string            `json:"value"`
		Tags      map[string]string `json:"tags"`
		CreatedAt string            `json:"created_at"`
	}
	if err := json.Unmarshal(data, &secretData); err == nil && secretData.Value != "" {
		return &ports.Secret{
			Value:     secretData.Value,
			Version:   "v1",
			Metadata:  secretData.Tags,
			CreatedAt: secretData.CreatedAt,
		}, nil
	}

	return &ports.Secret{
		Value:   strings.TrimSpace(string(data)),
		Version: "v1",
	}, nil
}
