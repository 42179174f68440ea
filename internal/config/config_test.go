package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.firecrawl.dev/v1", cfg.Firecrawl.BaseURL)
	assert.InDelta(t, 5.0, cfg.Pricing.MinPrice, 0.001)
	assert.InDelta(t, 100.0, cfg.Pricing.MaxPrice, 0.001)
	assert.Equal(t, "GBP", cfg.Pricing.Currency)
	assert.Equal(t, 10, cfg.Batch.BatchSize)
	assert.Equal(t, 500, cfg.Batch.MaxItems)
	assert.Equal(t, 5*time.Second, cfg.Batch.BatchPause())
	assert.Equal(t, time.Second, cfg.Batch.ItemPause())
	assert.Equal(t, 5*time.Minute, cfg.Batch.LeaseStale())
	assert.Equal(t, 50, cfg.Discover.MaxURLs)
	assert.Equal(t, 2000, cfg.Extract.WaitForMs)
	assert.Contains(t, cfg.Extract.ExcludeTags, "footer")
	assert.Equal(t, "0 3 * * *", cfg.Schedule.Cron)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
pricing:
  min_price: 1
  max_price: 250
batch:
  batch_size: 3
discover:
  listing_urls:
    - https://shop.example.com/collections/all
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 1.0, cfg.Pricing.MinPrice, 0.001)
	assert.InDelta(t, 250.0, cfg.Pricing.MaxPrice, 0.001)
	assert.Equal(t, 3, cfg.Batch.BatchSize)
	assert.Equal(t, []string{"https://shop.example.com/collections/all"}, cfg.Discover.ListingURLs)
	// Defaults still apply for unset values
	assert.Equal(t, 500, cfg.Batch.MaxItems)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CATALOG_STORE_DRIVER", "postgres")
	t.Setenv("CATALOG_PRICING_MAX_PRICE", "80")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.InDelta(t, 80.0, cfg.Pricing.MaxPrice, 0.001)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

func validPipeline() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/catalog"
	cfg.Firecrawl.Key = "fc-key"
	cfg.Pricing.MinPrice = 5
	cfg.Pricing.MaxPrice = 100
	cfg.Batch.BatchSize = 10
	cfg.Server.Port = 8080
	return cfg
}

func TestValidatePipeline_AllPresent(t *testing.T) {
	assert.NoError(t, validPipeline().Validate("pipeline"))
	assert.NoError(t, validPipeline().Validate("serve"))
}

func TestValidatePipeline_MissingFields(t *testing.T) {
	cfg := validPipeline()
	cfg.Store.DatabaseURL = ""
	cfg.Firecrawl.Key = ""
	cfg.Pricing.MaxPrice = 1

	err := cfg.Validate("pipeline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.NotContains(t, err.Error(), "firecrawl.key")
	assert.Contains(t, err.Error(), "pricing.max_price must be >= pricing.min_price")
}

func TestValidateScrape_RequiresKey(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate("scrape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firecrawl.key is required")

	cfg.Firecrawl.Key = "fc-key"
	assert.NoError(t, cfg.Validate("scrape"))
}

func TestValidateStore_SQLiteNeedsNoURL(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "mysql"
	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validPipeline()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validPipeline().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
