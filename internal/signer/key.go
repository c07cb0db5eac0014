package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/decred/dcrd/hdkeychain/v3"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// KeySigner signs in software, with a raw private key or keys derived from a
// BIP-39 mnemonic.
type KeySigner struct {
	key      *ecdsa.PrivateKey
	mnemonic string
	hdPath   func(accountIndex int) string
}

// NewPrivateKeySigner uses one key for every account index.
func NewPrivateKeySigner(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("error parsing private key: %w", err)
	}
	return &KeySigner{key: key}, nil
}

// NewMnemonicSigner derives the key of each account index at hdPath(index).
func NewMnemonicSigner(mnemonic string, hdPath func(accountIndex int) string) (*KeySigner, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	return &KeySigner{mnemonic: mnemonic, hdPath: hdPath}, nil
}

func (s *KeySigner) privateKey(accountIndex int) (*ecdsa.PrivateKey, error) {
	if s.key != nil {
		return s.key, nil
	}
	path, err := accounts.ParseDerivationPath(s.hdPath(accountIndex))
	if err != nil {
		return nil, err
	}
	key, err := derivePrivateKey(s.mnemonic, path)
	if err != nil {
		return nil, fmt.Errorf("error deriving key from mnemonic: %w", err)
	}
	return key, nil
}

func (s *KeySigner) GetAddress(ctx context.Context, accountIndex int) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}
	key, err := s.privateKey(accountIndex)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// Sign signs keccak256(0x1901 || domain || message).
func (s *KeySigner) Sign(ctx context.Context, req SignRequest) (Signature, error) {
	data, err := req.Payload()
	if err != nil {
		return Signature{}, err
	}
	if err := ctx.Err(); err != nil {
		return Signature{}, err
	}
	key, err := s.privateKey(req.AccountIndex)
	if err != nil {
		return Signature{}, err
	}
	sig, err := crypto.Sign(crypto.Keccak256(data), key)
	if err != nil {
		return Signature{}, fmt.Errorf("error signing data: %w", err)
	}
	return Signature{
		Signature:     hexutil.Encode(normalizeV(sig)),
		SignerAddress: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

func derivePrivateKey(mnemonic string, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, err
	}

	extended, err := hdkeychain.NewMaster(seed, bip32Params{})
	if err != nil {
		return nil, err
	}
	for _, child := range path {
		extended, err = extended.ChildBIP32Std(child)
		if err != nil {
			return nil, err
		}
	}

	raw, err := extended.SerializedPrivKey()
	if err != nil {
		return nil, err
	}
	return crypto.ToECDSA(raw)
}

// bip32Params satisfies hdkeychain.NetworkParams. The version bytes only
// matter for serialized extended keys, which are never produced here.
type bip32Params struct{}

func (bip32Params) HDPrivKeyVersion() [4]byte { return [4]byte{} }

func (bip32Params) HDPubKeyVersion() [4]byte { return [4]byte{} }
