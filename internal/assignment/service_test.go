package assignment

import (
	"context"
	"errors"
	"math"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kroma-network/prover-assignment-server/internal/capacity"
	"github.com/kroma-network/prover-assignment-server/internal/payload"
	"github.com/kroma-network/prover-assignment-server/internal/policy"
	"github.com/kroma-network/prover-assignment-server/internal/signer"
	"github.com/kroma-network/prover-assignment-server/internal/tier"
)

var testTxListHash = common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000001")

type fakeHead struct {
	head  uint64
	err   error
	block chan struct{}
}

func (f *fakeHead) HeadBlockNumber(ctx context.Context) (uint64, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.head, f.err
}

type testEnv struct {
	service *Service
	signer  *signer.Signer
	head    *fakeHead
	now     time.Time
}

func newTestEnv(t *testing.T, capacityMax uint64, release ReleasePolicy) *testEnv {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := signer.New(key)

	p := &policy.ProverPolicy{
		MinFees: tier.MinimumFees{
			Optimistic:     100,
			Sgx:            200,
			PseZkevm:       300,
			SgxAndPseZkevm: 400,
		},
		MaxExpiry:             time.Hour,
		MaxSlippage:           10,
		MaxProposedIn:         25,
		ProverAddress:         s.Address(),
		TaikoL1Address:        common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb2"),
		AssignmentHookAddress: common.HexToAddress("0x0000000000000000000000000000000000000777"),
		LivenessBond:          big.NewInt(250),
		ChainID:               167001,
	}
	require.NoError(t, p.Validate())

	head := &fakeHead{head: 1000}
	svc, err := NewService(
		&Config{Policy: p, ReleasePolicy: release, HeadTimeout: 50 * time.Millisecond},
		capacity.New(capacityMax),
		head,
		s,
		zaptest.NewLogger(t),
	)
	require.NoError(t, err)

	env := &testEnv{service: svc, signer: s, head: head, now: time.UnixMilli(1_700_000_000_000)}
	svc.now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) request(fee uint64) *policy.Request {
	return &policy.Request{
		TierFees:   []tier.Fee{{Tier: tier.Optimistic, Fee: fee}},
		Expiry:     uint64(e.now.Add(time.Second).UnixMilli()),
		TxListHash: testTxListHash,
	}
}

func TestAssignAccepted(t *testing.T) {
	env := newTestEnv(t, 4, ReleaseOnExpiry)
	req := env.request(200)

	a, err := env.service.Assign(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, env.signer.Address(), a.Prover)
	assert.Equal(t, uint64(1010), a.MaxBlockID)
	assert.Equal(t, uint64(1025), a.MaxProposedIn)
	assert.Equal(t, req.Expiry, a.Expiry)
	assert.True(t, signer.Verify(a.EncodedPayload, a.Signature, env.signer.Address()))

	expected, err := payload.Encode(&payload.Terms{
		ChainID:        167001,
		TaikoL1:        common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb2"),
		AssignmentHook: common.HexToAddress("0x0000000000000000000000000000000000000777"),
		TxListHash:     testTxListHash,
		Expiry:         req.Expiry,
		TierFees:       req.TierFees,
		MaxBlockID:     1010,
		MaxProposedIn:  1025,
	})
	require.NoError(t, err)
	assert.Equal(t, expected, a.EncodedPayload, "a verifier can rebuild the payload from the terms")

	assert.Equal(t, 1, env.service.Outstanding(), "slot is held until expiry")
	env.now = env.now.Add(time.Second)
	assert.Equal(t, 0, env.service.Outstanding())
}

func TestAssignReleaseImmediately(t *testing.T) {
	env := newTestEnv(t, 1, ReleaseImmediately)

	for i := 0; i < 3; i++ {
		_, err := env.service.Assign(context.Background(), env.request(200))
		require.NoError(t, err)
	}
	assert.Equal(t, 0, env.service.Outstanding())
}

func TestAssignRejectionConsumesNoCapacity(t *testing.T) {
	env := newTestEnv(t, 1, ReleaseOnExpiry)

	_, err := env.service.Assign(context.Background(), env.request(50))
	require.ErrorIs(t, err, policy.ErrProofFeeTooLow)

	req := env.request(200)
	req.TxListHash = common.Hash{}
	_, err = env.service.Assign(context.Background(), req)
	require.ErrorIs(t, err, policy.ErrInvalidTxListHash)

	assert.Equal(t, 0, env.service.Outstanding())
	_, err = env.service.Assign(context.Background(), env.request(200))
	require.NoError(t, err)
}

func TestAssignAtCapacity(t *testing.T) {
	env := newTestEnv(t, 1, ReleaseOnExpiry)

	_, err := env.service.Assign(context.Background(), env.request(200))
	require.NoError(t, err)

	_, err = env.service.Assign(context.Background(), env.request(200))
	require.ErrorIs(t, err, ErrProverAtCapacity)
	assert.False(t, policy.IsRejection(err))

	assert.Equal(t, 1, env.service.Complete(testTxListHash))
	_, err = env.service.Assign(context.Background(), env.request(200))
	require.NoError(t, err)
}

func TestAssignUpstreamFailureReleasesSlot(t *testing.T) {
	env := newTestEnv(t, 1, ReleaseOnExpiry)
	env.head.err = errors.New("connection refused")

	_, err := env.service.Assign(context.Background(), env.request(200))
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 0, env.service.Outstanding())
}

func TestAssignUpstreamTimeoutReleasesSlot(t *testing.T) {
	env := newTestEnv(t, 1, ReleaseOnExpiry)
	env.head.block = make(chan struct{})

	start := time.Now()
	_, err := env.service.Assign(context.Background(), env.request(200))
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, env.service.Outstanding())
}

func TestAssignCancelledReleasesSlot(t *testing.T) {
	env := newTestEnv(t, 1, ReleaseOnExpiry)
	env.service.headTimeout = time.Minute
	env.head.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		_, err := env.service.Assign(ctx, env.request(200))
		done <- err
	}()

	require.Eventually(t, func() bool { return env.service.Outstanding() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Assign did not return after cancellation")
	}
	assert.Equal(t, 0, env.service.Outstanding())
}

func TestAssignKeepsSlotWhileInFlight(t *testing.T) {
	for _, release := range []ReleasePolicy{ReleaseOnExpiry, ReleaseImmediately} {
		t.Run(release.String(), func(t *testing.T) {
			env := newTestEnv(t, 1, release)
			env.service.headTimeout = time.Minute
			env.head.block = make(chan struct{})

			first := env.request(200)
			first.Expiry = uint64(env.now.UnixMilli())
			done := make(chan error, 1)
			go func() {
				_, err := env.service.Assign(context.Background(), first)
				done <- err
			}()
			require.Eventually(t, func() bool { return env.service.Outstanding() == 1 }, time.Second, time.Millisecond)

			// The first expiry has already passed, but its request is still waiting on the head.
			second := env.request(200)
			second.TxListHash = common.HexToHash("0xdef0000000000000000000000000000000000000000000000000000000000002")
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_, err := env.service.Assign(ctx, second)
			require.ErrorIs(t, err, ErrProverAtCapacity)

			close(env.head.block)
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("first assignment did not finish")
			}
			assert.Equal(t, 0, env.service.Outstanding())
		})
	}
}

func TestAssignInvalidTierConsumesNoCapacity(t *testing.T) {
	env := newTestEnv(t, 1, ReleaseOnExpiry)
	req := env.request(200)
	req.TierFees = append(req.TierFees, tier.Fee{Tier: tier.Kind(7)})

	_, err := env.service.Assign(context.Background(), req)
	require.ErrorIs(t, err, policy.ErrInvalidTier)
	assert.True(t, policy.IsRejection(err))
	assert.Equal(t, 0, env.service.Outstanding())
}

func TestAssignOverflowIsInternal(t *testing.T) {
	env := newTestEnv(t, 1, ReleaseOnExpiry)
	env.head.head = math.MaxUint64 - 5

	_, err := env.service.Assign(context.Background(), env.request(200))
	require.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, 0, env.service.Outstanding())
}

func TestAssignConcurrentRequestsNeverOverCommit(t *testing.T) {
	const capacityMax = 3
	const requests = 24
	env := newTestEnv(t, capacityMax, ReleaseOnExpiry)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		accepted   int
		atCapacity int
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.Assign(context.Background(), env.request(200))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrProverAtCapacity):
				atCapacity++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacityMax, accepted)
	assert.Equal(t, requests-capacityMax, atCapacity)
	assert.Equal(t, capacityMax, env.service.Outstanding())
}

func TestNewServiceChecksProverAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	p := &policy.ProverPolicy{ProverAddress: common.HexToAddress("0x01")}

	_, err = NewService(&Config{Policy: p, HeadTimeout: time.Second}, capacity.New(0), &fakeHead{}, signer.New(key), zaptest.NewLogger(t))
	require.ErrorContains(t, err, "does not match signing key address")
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, 0, ReleaseOnExpiry)
	status := env.service.Status()

	assert.Equal(t, &StatusResponse{
		MinOptimisticTierFee: 100,
		MinSgxTierFee:        200,
		MinPseZkevmTierFee:   300,
		MaxExpiry:            uint64(time.Hour.Milliseconds()),
		Prover:               env.signer.Address().Hex(),
	}, status)
}

func TestParseReleasePolicy(t *testing.T) {
	for input, want := range map[string]ReleasePolicy{"": ReleaseOnExpiry, "expiry": ReleaseOnExpiry, "immediate": ReleaseImmediately} {
		got, err := ParseReleasePolicy(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseReleasePolicy("never")
	require.Error(t, err)
	assert.Equal(t, "immediate", ReleaseImmediately.String())
}
