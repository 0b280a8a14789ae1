package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnvSecret(t *testing.T) {
	t.Setenv("PAYMENT_AUTH_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "payment-service", cfg.Service.Name)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, "/inventory/validate", cfg.Inventory.Path)
	assert.Equal(t, 5*time.Second, cfg.Inventory.Timeout)
	assert.Equal(t, "memory", cfg.Events.Driver)
	assert.Equal(t, "payment-service", cfg.Events.ConsumerGroup)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  secret: from-file
inventory:
  host: inventory.internal:9000
  timeout: 2s
store:
  driver: sqlite
  dsn: file:payments.db
events:
  driver: nats
`), 0o600))
	t.Setenv("PAYMENT_INVENTORY_HOST", "inventory.override:9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Auth.Secret)
	assert.Equal(t, "inventory.override:9100", cfg.Inventory.Host)
	assert.Equal(t, 2*time.Second, cfg.Inventory.Timeout)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "nats", cfg.Events.Driver)
}

func TestValidate(t *testing.T) {
	t.Setenv("PAYMENT_AUTH_SECRET", "")
	_, err := Load("")
	assert.ErrorContains(t, err, "auth.secret is required")

	cfg := &Config{
		Auth:   AuthConfig{Secret: "x"},
		Events: EventsConfig{Driver: "kafka"},
		Store:  StoreConfig{Driver: "postgres"},
	}
	err = cfg.Validate()
	assert.ErrorContains(t, err, "events.driver")
	assert.ErrorContains(t, err, "store.dsn is required")
	assert.ErrorContains(t, err, "inventory.host is required")
}

func TestMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
