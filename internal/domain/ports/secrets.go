package ports

import (
	"context"
)

// Secret is a value read from a secret store
type Secret struct {
	Value     string
	Version   string
	Metadata  map[string]string
	CreatedAt string
}

// SecretStore reads provider secrets (webhook signing keys, API keys)
type SecretStore interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
