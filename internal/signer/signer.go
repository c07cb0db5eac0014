package signer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrDeviceLocked = errors.New("ledger is locked or the Ethereum app is not open")
	ErrDenied       = errors.New("signature request denied on device")
	ErrNoDevice     = errors.New("no ledger device found")
)

// SignRequest asks for a signature over 0x1901 || DomainHash || MessageHash
// with the account at AccountIndex.
type SignRequest struct {
	DomainHash   string `json:"domainHash"`
	MessageHash  string `json:"messageHash"`
	AccountIndex int    `json:"accountIndex"`
}

type Signature struct {
	Signature     string `json:"signature"`
	SignerAddress string `json:"signerAddress"`
}

// Signer produces EIP-712 signatures for Safe transactions.
type Signer interface {
	GetAddress(ctx context.Context, accountIndex int) (common.Address, error)
	Sign(ctx context.Context, req SignRequest) (Signature, error)
}

var hash32 = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Payload validates req and returns the 66 byte EIP-712 payload.
func (req SignRequest) Payload() ([]byte, error) {
	if !hash32.MatchString(req.DomainHash) {
		return nil, fmt.Errorf("invalid domain hash format: %q", req.DomainHash)
	}
	if !hash32.MatchString(req.MessageHash) {
		return nil, fmt.Errorf("invalid message hash format: %q", req.MessageHash)
	}
	if req.AccountIndex < 0 {
		return nil, fmt.Errorf("invalid account index %d", req.AccountIndex)
	}
	return common.FromHex("0x1901" + req.DomainHash[2:] + req.MessageHash[2:]), nil
}

// Remediation turns a signer error into the message a person at the device
// can act on.
func Remediation(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case errors.Is(err, ErrDeviceLocked) || strings.Contains(msg, "reply lacks public key entry"):
		return "Please unlock your Ledger device and open the Ethereum app"
	case errors.Is(err, ErrDenied) || strings.Contains(strings.ToLower(msg), "denied"):
		return "Transaction was denied on the Ledger device"
	case errors.Is(err, ErrNoDevice):
		return "No Ledger device found. Please connect your Ledger"
	}
	return msg
}

// normalizeV moves the recovery id into the 27/28 range Safe expects.
func normalizeV(sig []byte) []byte {
	if len(sig) == 65 && sig[64] < 27 {
		sig[64] += 27
	}
	return sig
}
