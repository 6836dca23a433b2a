package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// HeadProvider reports the current L1 head block number.
type HeadProvider interface {
	HeadBlockNumber(ctx context.Context) (uint64, error)
}

type ethereumClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

type EthereumHeadProviderConfig struct {
	RpcUrl string
	// Timeout bounds every call made to the node.
	Timeout time.Duration
}

type EthereumHeadProvider struct {
	client ethereumClient
	config *EthereumHeadProviderConfig
	logger *zap.Logger
}

func NewEthereumHeadProvider(ctx context.Context, config *EthereumHeadProviderConfig, logger *zap.Logger) (*EthereumHeadProvider, error) {
	client, err := ethclient.DialContext(ctx, config.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", config.RpcUrl, err)
	}
	return newEthereumHeadProvider(client, config, logger), nil
}

func newEthereumHeadProvider(client ethereumClient, config *EthereumHeadProviderConfig, logger *zap.Logger) *EthereumHeadProvider {
	return &EthereumHeadProvider{client: client, config: config, logger: logger}
}

func (p *EthereumHeadProvider) HeadBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	blockNum, err := p.client.BlockNumber(ctx)
	if err != nil {
		p.logger.Sugar().Warnw("Failed to get latest block number", "error", err)
		return 0, err
	}
	p.logger.Sugar().Debugw("Got latest block number", "blockNumber", blockNum)
	return blockNum, nil
}

func (p *EthereumHeadProvider) ChainID(ctx context.Context) (uint64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	chainID, err := p.client.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return 0, fmt.Errorf("chain id %s does not fit in uint64", chainID)
	}
	return chainID.Uint64(), nil
}

func (p *EthereumHeadProvider) Close() {
	p.client.Close()
}

func (p *EthereumHeadProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.config.Timeout)
}
