package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	UnknownNetwork = "unknown"
	ZeroAddress    = "0x0000000000000000000000000000000000000000"
)

// SimulationLink is a Tenderly dashboard link and its query parameters.
// StateOverrides holds the query-decoded parameter as it appeared in the link.
type SimulationLink struct {
	URL              string `json:"url"`
	Network          string `json:"network"`
	ContractAddress  string `json:"contractAddress"`
	From             string `json:"from"`
	StateOverrides   string `json:"stateOverrides,omitempty"`
	RawFunctionInput string `json:"rawFunctionInput,omitempty"`
}

// ParseSimulationURL reads the query of link. It never fails: a link that
// does not parse, or that lacks parameters, keeps the raw URL and falls back
// to the unknown network and the zero address. A non-empty rawInput wins over
// the rawFunctionInput parameter, which forge may truncate.
func ParseSimulationURL(link, rawInput string) SimulationLink {
	out := SimulationLink{
		URL:             link,
		Network:         UnknownNetwork,
		ContractAddress: ZeroAddress,
		From:            ZeroAddress,
	}

	u, err := url.Parse(link)
	if err == nil {
		q := u.Query()
		out.Network = valueOr(q.Get("network"), UnknownNetwork)
		out.ContractAddress = valueOr(q.Get("contractAddress"), ZeroAddress)
		out.From = valueOr(q.Get("from"), ZeroAddress)
		out.StateOverrides = q.Get("stateOverrides")
		out.RawFunctionInput = q.Get("rawFunctionInput")
	}
	if rawInput != "" {
		out.RawFunctionInput = rawInput
	}
	return out
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Input returns the calldata of the simulated call.
func (l SimulationLink) Input() []byte {
	return common.FromHex(l.RawFunctionInput)
}

type StorageSlot struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// LinkOverride is one contract's storage overrides as carried by the link.
type LinkOverride struct {
	ContractAddress string        `json:"contractAddress"`
	Storage         []StorageSlot `json:"storage"`
}

var (
	bareKey   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	bareValue = regexp.MustCompile(`(:\s*)(0x[0-9a-fA-F]*)(\s*[,}\]])`)
)

// DecodeStateOverrides parses the stateOverrides parameter. Both JSON and
// the unquoted form printed by forge scripts are accepted, e.g.
//
//	[{contractAddress:0xabc...,storage:[{key:0x04,value:0x01}]}]
//
// Keys and values without a 0x prefix get one.
func DecodeStateOverrides(raw string) ([]LinkOverride, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []LinkOverride{}, nil
	}
	if !strings.HasPrefix(raw, "[") {
		if unescaped, err := url.QueryUnescape(raw); err == nil {
			raw = unescaped
		}
	}

	var overrides []LinkOverride
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		quoted := bareKey.ReplaceAllString(raw, `$1"$2":`)
		quoted = bareValue.ReplaceAllString(quoted, `$1"$2"$3`)
		if err2 := json.Unmarshal([]byte(quoted), &overrides); err2 != nil {
			return nil, fmt.Errorf("decoding state overrides: %w", err)
		}
	}

	for i := range overrides {
		if overrides[i].Storage == nil {
			overrides[i].Storage = []StorageSlot{}
		}
		for j := range overrides[i].Storage {
			overrides[i].Storage[j].Key = withHexPrefix(overrides[i].Storage[j].Key)
			overrides[i].Storage[j].Value = withHexPrefix(overrides[i].Storage[j].Value)
		}
	}
	if overrides == nil {
		overrides = []LinkOverride{}
	}
	return overrides, nil
}

func withHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
