package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults without env file", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, time.Hour, cfg.JWT.Expiry)
		assert.False(t, cfg.Ledger.AllowSelfTransfer)
		assert.Equal(t, 3, cfg.Ledger.MaxRetries)
		assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	})

	t.Run("missing env file is ignored", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		assert.NoError(t, err)
	})

	t.Run("env file values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		content := "DATABASE_HOST=db.internal\nLEDGER_ALLOW_SELF_TRANSFER=true\nKAFKA_BROKERS=k1:9092,k2:9092\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.True(t, cfg.Ledger.AllowSelfTransfer)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("DATABASE_HOST=from-file\n"), 0o600))
		t.Setenv("DATABASE_HOST", "from-env")
		t.Setenv("JWT_EXPIRY", "2h")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "from-env", cfg.Database.Host)
		assert.Equal(t, 2*time.Hour, cfg.JWT.Expiry)
	})

	t.Run("negative retries rejected", func(t *testing.T) {
		t.Setenv("LEDGER_MAX_RETRIES", "-1")
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.JWT.SecretKey = ""
	assert.EqualError(t, cfg.Validate(), "jwt.secret_key must be set")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}

	assert.Equal(t, "host=h port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
	assert.Equal(t, "postgres://u:p@h:5432/n?sslmode=disable", c.MigrationURL())
}
