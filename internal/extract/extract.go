package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	SigningPrefix = "vvvvvvvv"
	SigningSuffix = "^^^^^^^^"
)

var (
	nestedHashPattern     = regexp.MustCompile(`Nested hash for safe (0x[a-fA-F0-9]{40}):\s*(0x[a-fA-F0-9]{64})`)
	simulationLinkPattern = regexp.MustCompile(`https://dashboard\.tenderly\.co/[^\s]+`)
	approvalHashPattern   = regexp.MustCompile(`call Safe\.approveHash on (0x[a-fA-F0-9]{40}) with the following hash:\s*(0x[a-fA-F0-9]{64})`)
	signingDataPattern    = regexp.MustCompile(`Data to sign:\s*` + regexp.QuoteMeta(SigningPrefix) + `\s*(0x[a-fA-F0-9]+)\s*` + regexp.QuoteMeta(SigningSuffix))
	rawInputPattern       = regexp.MustCompile(`Insert the following hex into the 'Raw input data' field:\s*(0x[a-fA-F0-9]+)`)
)

type NestedHash struct {
	SafeAddress string `json:"safeAddress"`
	Hash        string `json:"hash"`
}

type ApprovalHash struct {
	SafeAddress string `json:"safeAddress"`
	Hash        string `json:"hash"`
}

type SigningData struct {
	DataToSign string `json:"dataToSign"`
}

// Data is everything recognised in one script run's output. Only nested
// hashes collect every occurrence; the other fields hold the first match.
type Data struct {
	NestedHashes   []NestedHash    `json:"nestedHashes"`
	SimulationLink *SimulationLink `json:"simulationLink,omitempty"`
	ApprovalHash   *ApprovalHash   `json:"approvalHash,omitempty"`
	SigningData    *SigningData    `json:"signingData,omitempty"`
}

// Extract scans script output. Output without any recognised block yields an
// empty Data, not an error.
func Extract(output string) Data {
	data := Data{NestedHashes: []NestedHash{}}

	for _, m := range nestedHashPattern.FindAllStringSubmatch(output, -1) {
		data.NestedHashes = append(data.NestedHashes, NestedHash{SafeAddress: m[1], Hash: m[2]})
	}

	var rawInput string
	if m := rawInputPattern.FindStringSubmatch(output); m != nil {
		rawInput = m[1]
	}
	if link := simulationLinkPattern.FindString(output); link != "" {
		parsed := ParseSimulationURL(link, rawInput)
		data.SimulationLink = &parsed
	}

	if m := approvalHashPattern.FindStringSubmatch(output); m != nil {
		data.ApprovalHash = &ApprovalHash{SafeAddress: m[1], Hash: m[2]}
	}

	if m := signingDataPattern.FindStringSubmatch(output); m != nil {
		data.SigningData = &SigningData{DataToSign: m[1]}
	}

	return data
}

// Hashes splits the EIP-712 payload 0x1901 || domain || message.
func (s SigningData) Hashes() (domain, message common.Hash, err error) {
	raw := common.FromHex(strings.TrimSpace(s.DataToSign))
	if len(raw) != 66 {
		return common.Hash{}, common.Hash{}, fmt.Errorf("expected EIP-712 hex string with 66 bytes, got %d bytes, value: %s", len(raw), s.DataToSign)
	}
	if raw[0] != 0x19 || raw[1] != 0x01 {
		return common.Hash{}, common.Hash{}, fmt.Errorf("expected EIP-712 prefix 0x1901, got 0x%x", raw[:2])
	}
	return common.BytesToHash(raw[2:34]), common.BytesToHash(raw[34:66]), nil
}

// Summary is a short human readable listing of what was found.
func (d Data) Summary() string {
	var b strings.Builder
	if l := d.SimulationLink; l != nil {
		fmt.Fprintf(&b, "Simulation link: network=%s contract=%s from=%s\n", l.Network, l.ContractAddress, l.From)
	} else {
		b.WriteString("Simulation link: not found\n")
	}
	if d.SigningData != nil {
		fmt.Fprintf(&b, "Data to sign: %s\n", d.SigningData.DataToSign)
	}
	if d.ApprovalHash != nil {
		fmt.Fprintf(&b, "Approval hash: %s on %s\n", d.ApprovalHash.Hash, d.ApprovalHash.SafeAddress)
	}
	for _, n := range d.NestedHashes {
		fmt.Fprintf(&b, "Nested hash: %s for %s\n", n.Hash, n.SafeAddress)
	}
	return b.String()
}
