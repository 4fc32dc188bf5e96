package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Engine.Wallet = "0x1111111111111111111111111111111111111111"
	return cfg
}

func TestDefaultsAreValidWithWallet(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.Engine.Wallet = ""
	cfg.Engine.OversellPolicy = "explode"
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, "unknown mode")
	require.ErrorContains(t, err, "wallet must not be empty")
	require.ErrorContains(t, err, "oversell_policy")
	require.ErrorContains(t, err, "redis: addr")
}

func TestValidateStakingRequiresContracts(t *testing.T) {
	cfg := validConfig()
	cfg.Staking.ServiceID = 7
	cfg.Staking.Contracts = nil

	err := cfg.Validate()
	require.ErrorContains(t, err, "staking: contracts must not be empty")
}

func TestValidateIdleIntervalBound(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.PollInterval = duration{5 * time.Minute}
	cfg.Engine.IdlePollInterval = duration{1 * time.Minute}

	err := cfg.Validate()
	require.ErrorContains(t, err, "idle_poll_interval")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "once"

[engine]
wallet = "0x2222222222222222222222222222222222222222"
poll_interval = "30s"
idle_poll_interval = "2m"

[staking]
service_id = 7
contracts = ["0xAAA"]
self_checkpoint_contracts = ["0xAAA"]
`), 0o600))

	t.Setenv("SUPAFUND_ENGINE_WALLET", "0x3333333333333333333333333333333333333333")
	t.Setenv("SUPAFUND_STAKING_CONTRACTS", "0xBBB, 0xCCC")
	t.Setenv("SUPAFUND_SERVER_PORT", "9000")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Env wins over file, file wins over defaults.
	require.Equal(t, "0x3333333333333333333333333333333333333333", cfg.Engine.Wallet)
	require.Equal(t, "once", cfg.Mode)
	require.Equal(t, 30*time.Second, cfg.Engine.PollInterval.Duration)
	require.Equal(t, []string{"0xBBB", "0xCCC"}, cfg.Staking.Contracts)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, "zero_cost", cfg.Engine.OversellPolicy)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
