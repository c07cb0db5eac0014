package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
)

// HeaderReader fetches historical headers for BLOCKHASH.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

type chainContext struct {
	ctx    context.Context
	config *params.ChainConfig
	client HeaderReader
}

func NewChainContext(ctx context.Context, config *params.ChainConfig, client HeaderReader) core.ChainContext {
	return &chainContext{ctx: ctx, config: config, client: client}
}

func (c *chainContext) Config() *params.ChainConfig {
	return c.config
}

func (c *chainContext) Engine() consensus.Engine {
	return nil
}

func (c *chainContext) GetHeader(_ common.Hash, number uint64) *types.Header {
	header, err := c.client.HeaderByNumber(c.ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil
	}
	return header
}

// Config returns the chain configuration of an L1 the tool can fork.
func Config(chainID *big.Int) (*params.ChainConfig, error) {
	switch {
	case chainID == nil:
		return nil, fmt.Errorf("missing chain ID")
	case chainID.Cmp(params.MainnetChainConfig.ChainID) == 0:
		return params.MainnetChainConfig, nil
	case chainID.Cmp(params.SepoliaChainConfig.ChainID) == 0:
		return params.SepoliaChainConfig, nil
	case chainID.Cmp(params.HoleskyChainConfig.ChainID) == 0:
		return params.HoleskyChainConfig, nil
	}
	return nil, fmt.Errorf("unsupported chain ID: %s", chainID)
}
