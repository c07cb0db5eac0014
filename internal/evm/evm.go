package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/base/validation-tool/internal/chain"
	"github.com/base/validation-tool/internal/extract"
	"github.com/base/validation-tool/internal/logger"
	"github.com/base/validation-tool/internal/state"
	"github.com/base/validation-tool/internal/transaction"
)

// Client is the part of ethclient.Client needed to fork a chain.
type Client interface {
	state.Reader
	chain.HeaderReader
	ChainID(ctx context.Context) (*big.Int, error)
}

// Call is the transaction to run on the fork.
type Call struct {
	From      common.Address
	To        common.Address
	Data      []byte
	Overrides []state.Override
}

// Result is what running a Call changed.
type Result struct {
	ChainID   *big.Int
	Block     uint64
	Overrides []state.Override
	Diffs     []state.StateDiff
}

// NewEVM forks the chain at header. The returned state database records the
// writes of whatever the EVM executes.
func NewEVM(ctx context.Context, client Client, chainID *big.Int, header *types.Header, overrides []state.Override) (*vm.EVM, *state.CachingStateDB, error) {
	chainConfig, err := chain.Config(chainID)
	if err != nil {
		return nil, nil, err
	}

	db := state.NewCachingStateDB(ctx, client, header.Number)
	db.ApplyOverrides(overrides)

	blockContext := core.NewEVMBlockContext(header, chain.NewChainContext(ctx, chainConfig, client), &common.Address{})

	var evmConfig vm.Config
	evmConfig.EnablePreimageRecording = true
	return vm.NewEVM(blockContext, db, chainConfig, evmConfig), db, nil
}

// Run forks the latest block and executes call on it.
func Run(ctx context.Context, lggr logger.Logger, client Client, call Call) (Result, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get chain ID: %w", err)
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get latest block: %w", err)
	}

	vmenv, db, err := NewEVM(ctx, client, chainID, header, call.Overrides)
	if err != nil {
		return Result{}, err
	}

	tx := transaction.CreateTransaction(chainID, db.GetNonce(call.From), call.To, call.Data)
	diffs, err := transaction.SimulateTransaction(vmenv, db, tx, call.From)
	if err != nil {
		return Result{}, err
	}

	lggr.Infow("transaction simulated", "chainID", chainID, "block", header.Number, "accounts", len(diffs))
	return Result{
		ChainID:   chainID,
		Block:     header.Number.Uint64(),
		Overrides: db.Overrides(),
		Diffs:     diffs,
	}, nil
}

// OverridesFromLink converts the state overrides of a simulation link.
func OverridesFromLink(link []extract.LinkOverride) ([]state.Override, error) {
	out := make([]state.Override, 0, len(link))
	for _, o := range link {
		if !common.IsHexAddress(o.ContractAddress) {
			return nil, fmt.Errorf("invalid override address %q", o.ContractAddress)
		}
		override := state.Override{ContractAddress: common.HexToAddress(o.ContractAddress)}
		for _, s := range o.Storage {
			key, err := parseWord(s.Key)
			if err != nil {
				return nil, fmt.Errorf("override key of %s: %w", o.ContractAddress, err)
			}
			value, err := parseWord(s.Value)
			if err != nil {
				return nil, fmt.Errorf("override value of %s slot %s: %w", o.ContractAddress, s.Key, err)
			}
			override.Storage = append(override.Storage, state.StorageOverride{Key: key, Value: value})
		}
		out = append(out, override)
	}
	return out, nil
}

// parseWord reads a 0x-prefixed word of at most 32 bytes; odd-length values
// such as 0x1 are accepted.
func parseWord(s string) (common.Hash, error) {
	if len(s)%2 == 1 && strings.HasPrefix(s, "0x") {
		s = "0x0" + s[2:]
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%q: %w", s, err)
	}
	if len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("%q is longer than 32 bytes", s)
	}
	return common.BytesToHash(b), nil
}
