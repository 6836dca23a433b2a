package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClient struct {
	blockNumber uint64
	chainID     *big.Int
	delay       time.Duration
	err         error
	closed      bool
}

func (c *fakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return c.blockNumber, c.err
}

func (c *fakeClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.chainID, c.err
}

func (c *fakeClient) Close() { c.closed = true }

func TestHeadBlockNumber(t *testing.T) {
	client := &fakeClient{blockNumber: 1000, chainID: big.NewInt(167001)}
	p := newEthereumHeadProvider(client, &EthereumHeadProviderConfig{Timeout: time.Second}, zaptest.NewLogger(t))

	head, err := p.HeadBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), head)

	chainID, err := p.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(167001), chainID)

	p.Close()
	assert.True(t, client.closed)
}

func TestHeadBlockNumberTimeout(t *testing.T) {
	client := &fakeClient{blockNumber: 1000, delay: time.Minute}
	p := newEthereumHeadProvider(client, &EthereumHeadProviderConfig{Timeout: 20 * time.Millisecond}, zaptest.NewLogger(t))

	start := time.Now()
	_, err := p.HeadBlockNumber(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestHeadBlockNumberError(t *testing.T) {
	client := &fakeClient{err: errors.New("connection refused")}
	p := newEthereumHeadProvider(client, &EthereumHeadProviderConfig{}, zaptest.NewLogger(t))

	_, err := p.HeadBlockNumber(context.Background())
	require.EqualError(t, err, "connection refused")

	_, err = p.ChainID(context.Background())
	require.ErrorContains(t, err, "failed to get chain id")
}

func TestChainIDOverflow(t *testing.T) {
	client := &fakeClient{chainID: new(big.Int).Lsh(big.NewInt(1), 70)}
	p := newEthereumHeadProvider(client, &EthereumHeadProviderConfig{}, zaptest.NewLogger(t))

	_, err := p.ChainID(context.Background())
	require.ErrorContains(t, err, "does not fit in uint64")
}
