package template

import (
	_ "embed"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

//go:embed registry.yaml
var embeddedRegistry []byte

type Slot struct {
	Type            string `yaml:"type"`
	Summary         string `yaml:"summary"`
	OverrideMeaning string `yaml:"override-meaning"`
}

type Contract struct {
	Name  string          `yaml:"name"`
	Slots map[string]Slot `yaml:"slots"`
}

// Registry names contracts per chain ID and address.
type Registry struct {
	Contracts map[string]map[string]Contract `yaml:"contracts"`
}

var (
	unknownContract = Contract{Name: "<<ContractName>>", Slots: map[string]Slot{}}
	unknownSlot     = Slot{Type: "<<DecodedKind>>", Summary: "<<Summary>>", OverrideMeaning: "<<OverrideMeaning>>"}
)

// LoadRegistry parses a registry document. Nil data loads the built-in one.
func LoadRegistry(data []byte) (*Registry, error) {
	if data == nil {
		data = embeddedRegistry
	}
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("error parsing contract registry: %w", err)
	}
	return &reg, nil
}

// Contract returns the entry of address on chainID and whether it is known.
func (r *Registry) Contract(chainID, address string) (Contract, bool) {
	c, ok := r.Contracts[chainID][strings.ToLower(address)]
	if !ok {
		return unknownContract, false
	}
	return c, true
}

// Slot looks key up directly, then through the base slot in preimage when
// key is a mapping entry (preimage is the 64 byte abi encoding of key, slot).
func (c Contract) Slot(key, preimage string) (Slot, bool) {
	if s, ok := c.Slots[strings.ToLower(key)]; ok {
		return s, true
	}
	if len(preimage) != 128 {
		return unknownSlot, false
	}
	if s, ok := c.Slots["0x"+strings.ToLower(preimage[64:])]; ok {
		return s, true
	}
	return unknownSlot, false
}

func decodeValue(slotType string, value common.Hash) string {
	switch slotType {
	case "uint256", "uint8", "uint64":
		return new(big.Int).SetBytes(value.Bytes()).String()
	case "address":
		return common.BytesToAddress(value.Bytes()).Hex()
	case "bool":
		if value == (common.Hash{}) {
			return "false"
		}
		return "true"
	}
	return "<<DecodedValue>>"
}
