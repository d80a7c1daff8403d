package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresCredentials(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MGATE_API_KEY")
	assert.Contains(t, err.Error(), "MGATE_ADMIN_TOKEN")
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MGATE_API_KEY", "key123")
	t.Setenv("MGATE_API_SECRET", "secret456")
	t.Setenv("MGATE_ADMIN_TOKEN", "admin789")
	t.Setenv("MGATE_RATE_LIMIT_RPM", "25")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "key123", cfg.Broker.APIKey)
	assert.Equal(t, "secret456", cfg.Broker.APISecret)
	assert.Equal(t, "admin789", cfg.Admin.Token)
	assert.Equal(t, 25, cfg.RateLimit.RequestsPerMinute)
	// Username/password stay optional for out-of-band login.
	assert.Empty(t, cfg.Broker.Username)
}

func TestLoadFromYAMLWithEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("MGATE_ADMIN_TOKEN", "env-wins")

	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	data := `
app:
  name: mgate
  env: test
broker:
  api_key: yaml-key
  api_secret: yaml-secret
admin:
  token: yaml-token
rate_limit:
  enabled: true
  requests_per_minute: 30
`
	require.NoError(t, os.WriteFile(file, []byte(data), 0o600))

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "yaml-key", cfg.Broker.APIKey)
	assert.Equal(t, "env-wins", cfg.Admin.Token)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
}

func TestEncryptedEnvRoundTrip(t *testing.T) {
	t.Setenv("MGATE_ENCRYPTION_KEY", "test-encryption-key")

	em := NewEnvManager("", "")
	enc, err := em.EncryptValue("super-secret")
	require.NoError(t, err)
	require.Contains(t, enc, "ENC:")

	t.Setenv("MGATE_API_SECRET", enc)
	assert.Equal(t, "super-secret", em.GetEncryptedString("api_secret", ""))
}

func TestEncryptedEnvBadCiphertext(t *testing.T) {
	t.Setenv("MGATE_ENCRYPTION_KEY", "test-encryption-key")
	t.Setenv("MGATE_API_SECRET", "ENC:not-valid-base64!!!")

	em := NewEnvManager("", "")
	assert.Equal(t, "fallback", em.GetEncryptedString("api_secret", "fallback"))
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MGATE_API_KEY", "MGATE_API_SECRET", "MGATE_USERNAME", "MGATE_PASSWORD",
		"MGATE_ADMIN_TOKEN", "MGATE_RATE_LIMIT_RPM", "MGATE_REDIS_ADDR",
		"MGATE_TOKEN_FILE", "MGATE_LOG_LEVEL", "MGATE_HOST", "MGATE_PORT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}
