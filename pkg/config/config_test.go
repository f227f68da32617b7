package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PAYMENTS_CURRENCY", "idr")
	t.Setenv("DOCUMENTS_SIGNED_URL_TTL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "http://localhost:8080", cfg.PublicBaseURL)
	assert.Equal(t, "IDR", cfg.Payments.Currency)
	assert.False(t, cfg.Payments.GatewayEnabled())
	assert.Equal(t, 30*time.Minute, cfg.Documents.SignedURLTTL)
	assert.Equal(t, "@every 1h", cfg.Payments.OverdueSweepSpec)
	assert.Equal(t, 10, cfg.RateLimit.VerifyBurst)
}

func TestLoadRejectsDevSecretInProduction(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ENV", EnvProduction)

	_, err := Load()
	assert.Error(t, err)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
	assert.Nil(t, splitAndTrim(""))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
