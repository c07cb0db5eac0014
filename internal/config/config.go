package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	NetworkMainnet = "mainnet"
	NetworkSepolia = "sepolia"
	NetworkTest    = "test"
)

// Networks lists the deployment networks in display order.
var Networks = []string{NetworkMainnet, NetworkSepolia, NetworkTest}

// TenderlyConfig holds the Tenderly API credentials.
//
// WARNING: AccessKey is a secret and should only come from the environment.
type TenderlyConfig struct {
	AccessKey string        `mapstructure:"access_key" yaml:"access_key"`
	Account   string        `mapstructure:"account" yaml:"account"`
	Project   string        `mapstructure:"project" yaml:"project"`
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// StateDiffConfig configures the local simulator subprocess. An empty Command
// means this binary's own simulate subcommand.
type StateDiffConfig struct {
	Command string        `mapstructure:"command" yaml:"command"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type RPCConfig struct {
	Mainnet string `mapstructure:"mainnet" yaml:"mainnet"`
	Sepolia string `mapstructure:"sepolia" yaml:"sepolia"`
	Test    string `mapstructure:"test" yaml:"test"`
}

// URL returns the RPC endpoint configured for network.
func (c RPCConfig) URL(network string) (string, error) {
	var u string
	switch network {
	case NetworkMainnet:
		u = c.Mainnet
	case NetworkSepolia:
		u = c.Sepolia
	case NetworkTest:
		u = c.Test
	default:
		return "", fmt.Errorf("unknown network %q", network)
	}
	if u == "" {
		return "", fmt.Errorf("no RPC URL configured for network %q", network)
	}
	return u, nil
}

// Config is the runtime configuration. DeploymentsRoot holds
// <network>/<upgrade>/validations/*.json; TestUpgradesRoot replaces
// <DeploymentsRoot>/test for the test network.
type Config struct {
	DeploymentsRoot  string          `mapstructure:"deployments_root" yaml:"deployments_root"`
	TestUpgradesRoot string          `mapstructure:"test_upgrades_root" yaml:"test_upgrades_root"`
	LogLevel         string          `mapstructure:"log_level" yaml:"log_level"`
	LedgerHDPath     string          `mapstructure:"ledger_hd_path" yaml:"ledger_hd_path"`
	RPC              RPCConfig       `mapstructure:"rpc" yaml:"rpc"`
	Tenderly         TenderlyConfig  `mapstructure:"tenderly" yaml:"tenderly"`
	StateDiff        StateDiffConfig `mapstructure:"state_diff" yaml:"state_diff"`
}

// UpgradeDir is the directory holding one upgrade's scripts and validations.
func (c *Config) UpgradeDir(network, upgrade string) string {
	if network == NetworkTest {
		return filepath.Join(c.TestUpgradesRoot, upgrade)
	}
	return filepath.Join(c.DeploymentsRoot, network, upgrade)
}

// HDPath renders LedgerHDPath for an account index. A path without a %d verb
// is used as is.
func (c *Config) HDPath(account int) string {
	if !strings.Contains(c.LedgerHDPath, "%d") {
		return c.LedgerHDPath
	}
	return fmt.Sprintf(c.LedgerHDPath, account)
}

var (
	envBindings = map[string][]string{
		"deployments_root":    {"DEPLOYMENTS_ROOT"},
		"test_upgrades_root":  {"TEST_UPGRADES_ROOT"},
		"log_level":           {"LOG_LEVEL"},
		"ledger_hd_path":      {"LEDGER_HD_PATH"},
		"rpc.mainnet":         {"RPC_MAINNET", "MAINNET_RPC_URL"},
		"rpc.sepolia":         {"RPC_SEPOLIA", "SEPOLIA_RPC_URL"},
		"rpc.test":            {"RPC_TEST"},
		"tenderly.access_key": {"TENDERLY_ACCESS", "TENDERLY_ACCESS_KEY"},
		"tenderly.account":    {"TENDERLY_ACCOUNT"},
		"tenderly.project":    {"TENDERLY_PROJECT"},
		"tenderly.base_url":   {"TENDERLY_BASE_URL"},
		"tenderly.timeout":    {"TENDERLY_TIMEOUT"},
		"state_diff.command":  {"STATE_DIFF_COMMAND"},
		"state_diff.timeout":  {"STATE_DIFF_TIMEOUT"},
	}

	defaults = map[string]any{
		"deployments_root":   "..",
		"test_upgrades_root": "test-upgrade",
		"log_level":          "info",
		"ledger_hd_path":     "m/44'/60'/%d'/0/0",
		"tenderly.base_url":  "https://api.tenderly.co/api/v1",
		"tenderly.timeout":   30 * time.Second,
		"state_diff.timeout": 2 * time.Minute,
	}
)

// Load reads filePath when it exists and overlays the environment. An empty
// filePath loads defaults and environment only.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	if filePath != "" {
		v.SetConfigFile(filePath)
		if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", filePath, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		if err := v.BindEnv(slices.Insert(slices.Clone(envs), 0, key)...); err != nil {
			return err
		}
	}
	return nil
}
