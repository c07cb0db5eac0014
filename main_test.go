package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/base/validation-tool/internal/diff"
	"github.com/base/validation-tool/internal/signer"
	"github.com/base/validation-tool/internal/validation"
)

const (
	anvilKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	anvilAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	safeAddress  = "0x7bb41c3008b3f03fe483b28b8db90e19cf07595c"
	domainHash   = "0x88aac3dc27cc1618ec43a87b3df21482acd24d172027ba3fbb5a5e625d895a0b"
	messageHash  = "0x5a0b6b7d1fdb0e8d6cd2d4bf0b27c4ae9f0b6e6b1c8f1d0b0a0f1e2d3c4b5a69"
	slotFour     = "0x0000000000000000000000000000000000000000000000000000000000000004"
	one          = "0x0000000000000000000000000000000000000000000000000000000000000001"
	two          = "0x0000000000000000000000000000000000000000000000000000000000000002"
)

var validConfig = `{
  "task_name": "2025-01-upgrade",
  "script_name": "UpgradeScript",
  "signature": "sign(address[])",
  "args": "[]",
  "ledger-id": 1,
  "expected_domain_and_message_hashes": {
    "address": "` + safeAddress + `",
    "domain_hash": "` + domainHash + `",
    "message_hash": "` + messageHash + `"
  },
  "expected_nested_hash": "",
  "state_overrides": [],
  "state_changes": []
}`

// runCLI executes the root command against a runtime config whose
// deployments root is deployments.
func runCLI(t *testing.T, deployments string, args ...string) (string, error) {
	t.Helper()
	return runCLIWithConfig(t, "deployments_root: "+deployments+"\nlog_level: error\n", args...)
}

func runCLIWithConfig(t *testing.T, config string, args ...string) (string, error) {
	t.Helper()

	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(config), 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", cfgFile}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRootCmd_Structure(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	var uses []string
	for _, c := range root.Commands() {
		uses = append(uses, c.Name())
	}
	assert.ElementsMatch(t, []string{"validate", "compare", "check-config", "configs", "extract", "ledger", "simulate"}, uses)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestCompareCmd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	override := func(value string) string {
		return `{"name":"ProxyAdminOwner","address":"` + safeAddress + `","overrides":[{"key":"` + slotFour + `","value":"` + value + `","description":"threshold"}]}`
	}
	expected := writeFile(t, filepath.Join(dir, "expected.json"), override(one))
	same := writeFile(t, filepath.Join(dir, "same.json"), override(one))
	other := writeFile(t, filepath.Join(dir, "other.json"), override(two))

	out, err := runCLI(t, dir, "compare", "--kind", "override", expected, same)
	require.NoError(t, err)
	var result diff.ComparisonResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, diff.StatusMatch, result.Status)

	out, err = runCLI(t, dir, "compare", "--kind", "override", expected, other)
	require.ErrorIs(t, err, errValidationFailed)
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, diff.StatusMismatch, result.Status)
	assert.Equal(t, 1, result.Stats.MismatchedFields)

	_, err = runCLI(t, dir, "compare", "--kind", "storage", expected, same)
	require.ErrorContains(t, err, `unknown comparison kind "storage"`)
}

func TestCheckConfigCmd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	valid := writeFile(t, filepath.Join(dir, "valid.json"), validConfig)
	invalid := writeFile(t, filepath.Join(dir, "invalid.json"), strings.Replace(validConfig, safeAddress, "0x1234", 1))

	out, err := runCLI(t, dir, "check-config", valid)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	out, err = runCLI(t, dir, "check-config", invalid)
	require.ErrorIs(t, err, errValidationFailed)
	assert.Contains(t, out, "expected_domain_and_message_hashes.address: Invalid Ethereum address")

	_, err = runCLI(t, dir, "check-config", filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigsCmd(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "mainnet", "2025-01-upgrade", "validations", "base-sc.json"), validConfig)
	writeFile(t, filepath.Join(root, "mainnet", "2025-01-upgrade", "validations", "security-council.json"), "{}")

	out, err := runCLI(t, root, "configs", "--network", "mainnet", "--upgrade", "2025-01-upgrade", "--json")
	require.NoError(t, err)

	var options []struct {
		FileName    string `json:"fileName"`
		DisplayName string `json:"displayName"`
		LedgerID    int    `json:"ledgerId"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &options))
	require.Len(t, options, 2)
	assert.Equal(t, "Base Sc", options[0].DisplayName)
	assert.Equal(t, 1, options[0].LedgerID)
	assert.Equal(t, "Security Council", options[1].DisplayName)
	assert.Equal(t, 0, options[1].LedgerID)

	out, err = runCLI(t, root, "configs", "--network", "mainnet", "--upgrade", "missing")
	require.NoError(t, err)
	assert.Contains(t, out, "no validation files")
}

func TestExtractCmd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	output := "Simulating...\nData to sign:\n  vvvvvvvv\n  0x1901" + domainHash[2:] + messageHash[2:] + "\n  ^^^^^^^^\n"
	saved := writeFile(t, filepath.Join(dir, "out.txt"), output)

	out, err := runCLI(t, dir, "extract", saved)
	require.NoError(t, err)
	assert.Contains(t, out, `"dataToSign": "0x1901`+domainHash[2:])
	assert.Contains(t, out, `"nestedHashes": []`)

	out, err = runCLI(t, dir, "extract", "--summary", saved)
	require.NoError(t, err)
	assert.Contains(t, out, "Simulation link: not found")
}

func TestLedgerCmd_WithPrivateKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out, err := runCLI(t, dir, "ledger", "address", "--private-key", anvilKey)
	require.NoError(t, err)
	assert.Equal(t, anvilAddress+"\n", out)

	out, err = runCLI(t, dir, "ledger", "sign", "--private-key", anvilKey,
		"--domain-hash", domainHash, "--message-hash", messageHash)
	require.NoError(t, err)
	var sig signer.Signature
	require.NoError(t, json.Unmarshal([]byte(out), &sig))
	assert.Equal(t, anvilAddress, sig.SignerAddress)
	assert.Len(t, sig.Signature, 2+130)

	_, err = runCLI(t, dir, "ledger", "sign", "--private-key", anvilKey,
		"--domain-hash", "0x1234", "--message-hash", messageHash)
	require.ErrorContains(t, err, "invalid domain hash format")

	_, err = runCLI(t, dir, "ledger", "address", "--private-key", anvilKey, "--mnemonic", "test test")
	require.Error(t, err)
}

func TestSimulateCmd_InputErrors(t *testing.T) {
	t.Parallel()

	signing := "0x1901" + domainHash[2:] + messageHash[2:]
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "unknown format",
			args:    []string{"--format", "yaml", "--use-extracted"},
			wantErr: `unknown format "yaml"`,
		},
		{
			name:    "no link",
			args:    []string{"--use-extracted", "--signing-data", signing},
			wantErr: "no simulation link",
		},
		{
			name:    "no signing data",
			args:    []string{"--use-extracted", "--contract", safeAddress, "--sender", anvilAddress},
			wantErr: "no signing data",
		},
		{
			name:    "short signing data",
			args:    []string{"--use-extracted", "--contract", safeAddress, "--sender", anvilAddress, "--signing-data", "0x1901aa"},
			wantErr: "expected EIP-712 hex string with 66 bytes",
		},
		{
			name:    "bad overrides",
			args:    []string{"--use-extracted", "--contract", safeAddress, "--sender", anvilAddress, "--signing-data", signing, "--state-overrides", "[{contractAddress:0x12,storage:[]}]"},
			wantErr: "invalid override address",
		},
		{
			name:    "script mode needs a task config",
			args:    []string{},
			wantErr: "--task-config is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			args := append([]string{"simulate", "--rpc", "http://127.0.0.1:1"}, tt.args...)
			_, err := runCLI(t, t.TempDir(), args...)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateCmd_MissingConfig(t *testing.T) {
	t.Parallel()

	out, err := runCLI(t, t.TempDir(), "validate", "--network", "mainnet", "--upgrade", "2025-01-upgrade", "--user-type", "Base SC", "--json")
	require.ErrorIs(t, err, errValidationFailed)

	var resp validation.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "config file not found")
	assert.Contains(t, resp.Error, filepath.Join("validations", "base-sc.json"))
}

func TestValidateCmd_ExtractOnlyKeepsSavedOutput(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	upgradeDir := filepath.Join(root, "mainnet", "2025-01-upgrade")
	writeFile(t, filepath.Join(upgradeDir, "validations", "base-sc.json"), validConfig)
	saved := writeFile(t, filepath.Join(upgradeDir, "temp-script-output-replay.txt"), "Script ran successfully.\n")

	config := "deployments_root: " + root + "\nlog_level: error\nrpc:\n  mainnet: http://127.0.0.1:1\n"
	args := []string{"validate", "--network", "mainnet", "--upgrade", "2025-01-upgrade", "--user-type", "Base SC",
		"--extract-only", "--run-id", "replay", "--json"}

	for range 2 {
		out, err := runCLIWithConfig(t, config, args...)
		require.ErrorIs(t, err, errValidationFailed)

		var resp validation.Response
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Contains(t, resp.Error, "simulation link")
		assert.FileExists(t, saved)
	}
}

func TestCheckNetwork(t *testing.T) {
	t.Parallel()

	require.NoError(t, checkNetwork("1", "1"))
	require.NoError(t, checkNetwork("unknown", "1"))
	require.ErrorContains(t, checkNetwork("11155111", "1"), "RPC serves chain 1")
}
