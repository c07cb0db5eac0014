package task

// TaskConfig is the expected outcome of one upgrade task for one signer role,
// as authored in validations/<user-type>.json.
type TaskConfig struct {
	TaskName                       string          `json:"task_name"`
	ScriptName                     string          `json:"script_name"`
	Signature                      string          `json:"signature"`
	Args                           string          `json:"args"`
	LedgerID                       int             `json:"ledger-id"`
	ExpectedDomainAndMessageHashes ExpectedHashes  `json:"expected_domain_and_message_hashes"`
	ExpectedNestedHash             string          `json:"expected_nested_hash"`
	StateOverrides                 []StateOverride `json:"state_overrides"`
	StateChanges                   []StateChange   `json:"state_changes"`
}

// ExpectedHashes is the EIP-712 domain/message pair the signature commits to.
type ExpectedHashes struct {
	Address     string `json:"address"`
	DomainHash  string `json:"domain_hash"`
	MessageHash string `json:"message_hash"`
}

type StateOverride struct {
	Name      string     `json:"name"`
	Address   string     `json:"address"`
	Overrides []Override `json:"overrides"`
}

type StateChange struct {
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Changes []Change `json:"changes"`
}

type Override struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

type Change struct {
	Key         string `json:"key"`
	Before      string `json:"before"`
	After       string `json:"after"`
	Description string `json:"description"`
}

// DataToSign returns the EIP-712 payload 0x1901 || domain || message, or an
// empty string when either hash is missing.
func (h ExpectedHashes) DataToSign() string {
	if h.DomainHash == "" || h.MessageHash == "" {
		return ""
	}
	return "0x1901" + trimHexPrefix(h.DomainHash) + trimHexPrefix(h.MessageHash)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func defaultConfig() TaskConfig {
	return TaskConfig{
		StateOverrides: []StateOverride{},
		StateChanges:   []StateChange{},
	}
}
