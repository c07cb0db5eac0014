package transaction

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/base/validation-tool/internal/state"
)

// Gas is the gas limit of simulated calls.
const Gas = 8_000_000

// CreateTransaction builds the zero-value, zero-fee call to simulate.
func CreateTransaction(chainID *big.Int, nonce uint64, to common.Address, data []byte) *types.Transaction {
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(0),
		GasFeeCap: big.NewInt(0),
		Gas:       Gas,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})
}

// SimulateTransaction executes tx from the given sender on evm and returns
// what it changed. evm must run on db.
func SimulateTransaction(evm *vm.EVM, db *state.CachingStateDB, tx *types.Transaction, from common.Address) ([]state.StateDiff, error) {
	if tx.To() == nil {
		return nil, fmt.Errorf("contract creation is not supported")
	}

	value, overflow := uint256.FromBig(tx.Value())
	if overflow {
		return nil, fmt.Errorf("transaction value %s overflows uint256", tx.Value())
	}

	db.SetNonce(from, db.GetNonce(from)+1, tracing.NonceChangeUnspecified)

	_, _, err := evm.Call(from, *tx.To(), tx.Data(), tx.Gas(), value)
	if err != nil {
		return nil, fmt.Errorf("failed to execute transaction: %w", err)
	}
	if err := db.Err(); err != nil {
		return nil, err
	}
	return db.GetStateDiffs(), nil
}
