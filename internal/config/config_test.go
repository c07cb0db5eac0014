package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "..", cfg.DeploymentsRoot)
	assert.Equal(t, "https://api.tenderly.co/api/v1", cfg.Tenderly.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Tenderly.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.StateDiff.Timeout)
	assert.Equal(t, "m/44'/60'/3'/0/0", cfg.HDPath(3))
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
deployments_root: /srv/contract-deployments
rpc:
  mainnet: https://file.example/mainnet
  sepolia: https://file.example/sepolia
tenderly:
  account: base
  project: upgrades
state_diff:
  timeout: 45s
`), 0o600))

	t.Setenv("RPC_MAINNET", "https://env.example/mainnet")
	t.Setenv("TENDERLY_ACCESS", "secret")
	t.Setenv("STATE_DIFF_COMMAND", "/usr/local/bin/state-diff")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/contract-deployments", cfg.DeploymentsRoot)
	assert.Equal(t, "https://env.example/mainnet", cfg.RPC.Mainnet)
	assert.Equal(t, "https://file.example/sepolia", cfg.RPC.Sepolia)
	assert.Equal(t, "secret", cfg.Tenderly.AccessKey)
	assert.Equal(t, "base", cfg.Tenderly.Account)
	assert.Equal(t, "/usr/local/bin/state-diff", cfg.StateDiff.Command)
	assert.Equal(t, 45*time.Second, cfg.StateDiff.Timeout)
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Setenv("SEPOLIA_RPC_URL", "https://legacy.example")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "https://legacy.example", cfg.RPC.Sepolia)
}

func TestRPCConfig_URL(t *testing.T) {
	t.Parallel()

	rpc := RPCConfig{Mainnet: "https://mainnet.example"}

	u, err := rpc.URL(NetworkMainnet)
	require.NoError(t, err)
	assert.Equal(t, "https://mainnet.example", u)

	_, err = rpc.URL(NetworkSepolia)
	require.EqualError(t, err, `no RPC URL configured for network "sepolia"`)

	_, err = rpc.URL("holesky")
	require.EqualError(t, err, `unknown network "holesky"`)
}

func TestUpgradeDir(t *testing.T) {
	t.Parallel()

	cfg := &Config{DeploymentsRoot: "/deploy", TestUpgradesRoot: "/fixtures"}

	assert.Equal(t, filepath.Join("/deploy", "mainnet", "2025-01-01-upgrade"), cfg.UpgradeDir(NetworkMainnet, "2025-01-01-upgrade"))
	assert.Equal(t, filepath.Join("/fixtures", "demo"), cfg.UpgradeDir(NetworkTest, "demo"))
}

func TestHDPath_Literal(t *testing.T) {
	t.Parallel()

	cfg := &Config{LedgerHDPath: "m/44'/60'/0'/0/7"}
	assert.Equal(t, "m/44'/60'/0'/0/7", cfg.HDPath(2))
}
