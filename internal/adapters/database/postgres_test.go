package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestNewPostgreSQLAdapter requires a real database connection
func TestNewPostgreSQLAdapter(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	adapter, err := NewPostgreSQLAdapter(ctx, DefaultPostgreSQLConfig(databaseURL), zap.NewNop())
	require.NoError(t, err)
	defer adapter.Close()

	assert.NotNil(t, adapter.Pool())
	assert.NoError(t, adapter.HealthCheck(ctx))
	assert.NotNil(t, adapter.Stats())
}

func TestNewPostgreSQLAdapter_InvalidURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := DefaultPostgreSQLConfig("not-a-valid-url")

	adapter, err := NewPostgreSQLAdapter(ctx, cfg, zap.NewNop())

	require.Error(t, err)
	assert.Nil(t, adapter)
	assert.Contains(t, err.Error(), "failed to parse database URL")
}

func TestDefaultPostgreSQLConfig(t *testing.T) {
	cfg := DefaultPostgreSQLConfig("postgres://localhost/db")

	assert.Equal(t, "postgres://localhost/db", cfg.DatabaseURL)
	assert.Equal(t, int32(25), cfg.MaxConns)
	assert.Equal(t, int32(5), cfg.MinConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
}

func TestPoolUtilization(t *testing.T) {
	tests := []struct {
		name     string
		acquired int32
		total    int32
		want     float64
	}{
		{"empty pool", 0, 25, 0},
		{"half", 10, 20, 50},
		{"full", 25, 25, 100},
		{"zero size", 3, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PoolUtilization(tt.acquired, tt.total), 0.001)
		})
	}
}
