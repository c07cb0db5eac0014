package task

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Option describes one signer role that has a validation file for an upgrade.
type Option struct {
	FileName    string `json:"fileName"`
	DisplayName string `json:"displayName"`
	ConfigFile  string `json:"configFile"`
	LedgerID    int    `json:"ledgerId"`
}

var whitespace = regexp.MustCompile(`\s+`)

// FileNameForUserType maps a display name such as "Base SC" to its
// validation file name, "base-sc.json".
func FileNameForUserType(userType string) string {
	return whitespace.ReplaceAllString(strings.ToLower(userType), "-") + ".json"
}

// DisplayName maps a validation file base name such as "base-sc" to
// "Base Sc".
func DisplayName(baseName string) string {
	words := strings.Split(baseName, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// LoadFile reads and validates the configuration at path. The returned error
// is only set when the file cannot be read; schema failures are reported in
// the ParsedConfig.
func LoadFile(path string) (ParsedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return failed(), err
	}
	return ParseFromString(string(data)), nil
}

// ListOptions returns one Option per *.json file in validationsDir, sorted by
// file name. A missing directory yields no options. Files that fail validation
// are still listed with ledger id 0.
func ListOptions(validationsDir string) ([]Option, error) {
	entries, err := os.ReadDir(validationsDir)
	if os.IsNotExist(err) {
		return []Option{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", validationsDir, err)
	}

	options := []Option{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		baseName := strings.TrimSuffix(entry.Name(), ".json")

		ledgerID := 0
		parsed, err := LoadFile(filepath.Join(validationsDir, entry.Name()))
		if err == nil && parsed.Result.Success {
			ledgerID = parsed.Config.LedgerID
		}

		options = append(options, Option{
			FileName:    baseName,
			DisplayName: DisplayName(baseName),
			ConfigFile:  entry.Name(),
			LedgerID:    ledgerID,
		})
	}

	sort.Slice(options, func(i, j int) bool {
		return options[i].ConfigFile < options[j].ConfigFile
	})
	return options, nil
}
