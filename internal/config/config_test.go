package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const platformAddr = "0x1000000000000000000000000000000000000004"

func validConfig() Config {
	cfg := Defaults()
	cfg.Engine.PlatformAddress = platformAddr
	return cfg
}

func TestDefaultsValidateWithPlatformAddress(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingPlatformAddress(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform_address")
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "turbo"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateERC20Backend(t *testing.T) {
	cfg := validConfig()
	cfg.Escrow.Backend = "erc20"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_url")
	assert.Contains(t, err.Error(), "token_address")
	assert.Contains(t, err.Error(), "operator_key")

	cfg.Escrow.RPCURL = "https://polygon-rpc.com"
	cfg.Escrow.TokenAddress = "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"
	cfg.Escrow.OperatorKey = "deadbeef"
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Addr = ""
	cfg.Server.Port = 0
	cfg.Engine.ProposalDelay = duration{0}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "server: port")
	assert.Contains(t, err.Error(), "proposal_delay")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "server"
log_level = "debug"

[engine]
grace_period = "10m"
minimum_volume = 25000
platform_address = "` + platformAddr + `"

[postgres]
host = "db.internal"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, 10*time.Minute, cfg.Engine.GracePeriod.Duration)
	assert.Equal(t, int64(25_000), cfg.Engine.MinimumVolume)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	// Untouched fields keep their defaults.
	assert.Equal(t, 48*time.Hour, cfg.Engine.ProposalDelay.Duration)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "engine"`), 0o600))

	t.Setenv("SETTLE_MODE", "archive")
	t.Setenv("SETTLE_ENGINE_MAX_REVERSALS", "5")
	t.Setenv("SETTLE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("SETTLE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "archive", cfg.Mode)
	assert.Equal(t, 5, cfg.Engine.MaxReversals)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
