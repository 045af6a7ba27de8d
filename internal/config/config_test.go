package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PRIVATE_KEY", testKey)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OFFER_TTL", "")
	t.Setenv("DISPUTE_WINDOW", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, int64(DefaultChainID), cfg.ChainID)
	assert.Equal(t, DefaultOfferTTL, cfg.DefaultOfferTTL)
	assert.Equal(t, DefaultDispute, cfg.DisputeWindow)
	assert.False(t, cfg.SweepExpiredOffers)
	assert.False(t, cfg.SweepClaimTimeouts)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_MissingPrivateKey(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "")
	t.Setenv("ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "PRIVATE_KEY"))
}

func TestLoad_NoPrivateKeyInDevelopment(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "")
	t.Setenv("ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.PrivateKey)
}

func TestLoad_PrivateKeyWith0xPrefix(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "0x"+testKey)

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoad_BadPrivateKeyLength(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "abc123")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PRIVATE_KEY", testKey)
	t.Setenv("PORT", "9999")
	t.Setenv("ENV", "production")
	t.Setenv("OFFER_TTL", "24h")
	t.Setenv("DISPUTE_WINDOW", "1h")
	t.Setenv("SWEEP_CLAIM_TIMEOUTS", "true")
	t.Setenv("ACTIONS_PER_MINUTE", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 24*time.Hour, cfg.DefaultOfferTTL)
	assert.Equal(t, time.Hour, cfg.DisputeWindow)
	assert.True(t, cfg.SweepClaimTimeouts)
	assert.Equal(t, 3, cfg.ActionsPerMinute)
}

func TestValidate_NonPositiveWindows(t *testing.T) {
	cfg := &Config{
		PrivateKey:      testKey,
		RPCURL:          DefaultRPCURL,
		DefaultOfferTTL: 0,
		DisputeWindow:   time.Hour,
	}
	require.Error(t, cfg.Validate())

	cfg.DefaultOfferTTL = time.Hour
	cfg.DisputeWindow = -time.Minute
	require.Error(t, cfg.Validate())
}
