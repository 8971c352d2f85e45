package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	assert.Empty(t, cfg.AuthSecret)
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("SALE_COMMIT_RETRIES", "0")
	t.Setenv("ANALYTICS_CACHE_TTL_SECONDS", "soon")
	t.Setenv("LOW_STOCK_THRESHOLD", "8")

	cfg := Load()
	assert.Equal(t, 5, cfg.SaleCommitRetries)
	assert.Equal(t, 30, cfg.AnalyticsCacheTTLSeconds)
	assert.Equal(t, 8, cfg.LowStockThreshold)
}

func TestLocationLoadsStoreTimezone(t *testing.T) {
	t.Setenv("STORE_TIMEZONE", "UTC")

	loc, err := Load().Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = Config{StoreTimezone: "Mars/Olympus"}.Location()
	require.Error(t, err)
}
