package assignment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/kroma-network/prover-assignment-server/internal/capacity"
	"github.com/kroma-network/prover-assignment-server/internal/chain"
	"github.com/kroma-network/prover-assignment-server/internal/logging"
	"github.com/kroma-network/prover-assignment-server/internal/payload"
	"github.com/kroma-network/prover-assignment-server/internal/policy"
	"github.com/kroma-network/prover-assignment-server/internal/signer"
)

// ReleasePolicy decides when the capacity slot of a signed assignment is returned.
type ReleasePolicy int

const (
	// ReleaseOnExpiry holds the slot until the assignment expires or is completed.
	ReleaseOnExpiry ReleasePolicy = iota
	// ReleaseImmediately returns the slot as soon as the assignment is signed.
	ReleaseImmediately
)

func ParseReleasePolicy(s string) (ReleasePolicy, error) {
	switch s {
	case "", "expiry":
		return ReleaseOnExpiry, nil
	case "immediate":
		return ReleaseImmediately, nil
	default:
		return 0, fmt.Errorf("unknown release policy %q", s)
	}
}

func (r ReleasePolicy) String() string {
	if r == ReleaseImmediately {
		return "immediate"
	}
	return "expiry"
}

// State is the progress of a single assignment request.
type State int

const (
	StateReceived State = iota
	StateValidated
	StateCapacityReserved
	StateEncoded
	StateSigned
	StateCompleted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidated:
		return "validated"
	case StateCapacityReserved:
		return "capacity_reserved"
	case StateEncoded:
		return "encoded"
	case StateSigned:
		return "signed"
	case StateCompleted:
		return "completed"
	default:
		return "rejected"
	}
}

type Config struct {
	Policy        *policy.ProverPolicy
	ReleasePolicy ReleasePolicy
	// HeadTimeout bounds the chain head query of a single request.
	HeadTimeout time.Duration
}

type Service struct {
	policy      *policy.ProverPolicy
	release     ReleasePolicy
	headTimeout time.Duration

	guard  *capacity.Guard
	head   chain.HeadProvider
	signer *signer.Signer
	logger *zap.Logger
	now    func() time.Time
}

func NewService(
	config *Config,
	guard *capacity.Guard,
	head chain.HeadProvider,
	signer *signer.Signer,
	logger *zap.Logger,
) (*Service, error) {
	if config.Policy.ProverAddress != signer.Address() {
		return nil, fmt.Errorf("prover address %s does not match signing key address %s",
			config.Policy.ProverAddress.Hex(), signer.Address().Hex())
	}
	if config.HeadTimeout <= 0 {
		return nil, errors.New("head timeout must be positive")
	}
	return &Service{
		policy:      config.Policy,
		release:     config.ReleasePolicy,
		headTimeout: config.HeadTimeout,
		guard:       guard,
		head:        head,
		signer:      signer,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Assign decides on req and, when accepted, returns the signed assignment.
// A capacity slot reserved for the request is released on every path that
// does not return an assignment.
func (s *Service) Assign(ctx context.Context, req *policy.Request) (assignment *Assignment, err error) {
	l := logging.FromContextOr(ctx, s.logger).Sugar()
	start := s.now()
	state := StateReceived
	defer func() {
		result := resultFor(err)
		requestsMetric.WithLabelValues(result).Inc()
		requestDurationMetric.Observe(time.Since(start).Seconds())
		if err != nil {
			l.Debugw("Assignment request ended", "state", state, "result", result)
		}
	}()

	l.Infow("Assignment request",
		"feeToken", req.FeeToken.Hex(),
		"tierFees", req.TierFees,
		"expiry", req.Expiry,
		"txListHash", req.TxListHash.Hex(),
	)

	terms, err := policy.Evaluate(req, s.policy, start)
	if err != nil {
		l.Warnw("Assignment rejected", "reason", err.Error(), "detail", policy.Detail(err))
		state = StateRejected
		return nil, err
	}
	state = StateValidated

	slot, ok := s.guard.TryAcquire(terms.TxListHash, time.UnixMilli(int64(terms.Expiry)), start)
	if !ok {
		l.Warnw("Prover at capacity", "capacity", s.guard.Max())
		state = StateRejected
		return nil, ErrProverAtCapacity
	}
	state = StateCapacityReserved
	defer func() {
		if err != nil || s.release == ReleaseImmediately {
			s.guard.Release(slot)
			return
		}
		s.guard.Commit(slot, s.now())
	}()

	head, err := s.headBlockNumber(ctx)
	if err != nil {
		l.Warnw("Failed to get L1 head", "error", err)
		return nil, err
	}

	maxBlockID, ok := addUint64(head, s.policy.MaxSlippage)
	if !ok {
		return nil, s.internal(l, fmt.Errorf("max block id overflows: head %d slippage %d", head, s.policy.MaxSlippage))
	}
	maxProposedIn, ok := addUint64(head, s.policy.MaxProposedIn)
	if !ok {
		return nil, s.internal(l, fmt.Errorf("max proposed in overflows: head %d window %d", head, s.policy.MaxProposedIn))
	}

	encoded, err := payload.Encode(&payload.Terms{
		ChainID:        s.policy.ChainID,
		TaikoL1:        s.policy.TaikoL1Address,
		AssignmentHook: s.policy.AssignmentHookAddress,
		FeeToken:       terms.FeeToken,
		TxListHash:     terms.TxListHash,
		Expiry:         terms.Expiry,
		TierFees:       terms.TierFees,
		MaxBlockID:     maxBlockID,
		MaxProposedIn:  maxProposedIn,
	})
	if err != nil {
		return nil, s.internal(l, err)
	}
	state = StateEncoded

	sig, err := s.signer.Sign(encoded)
	if err != nil {
		return nil, s.internal(l, err)
	}
	state = StateSigned

	// The proposer may have gone away while we were signing.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("request cancelled: %w", err)
	}

	state = StateCompleted
	l.Infow("Assignment signed",
		"txListHash", terms.TxListHash.Hex(),
		"maxBlockId", maxBlockID,
		"maxProposedIn", maxProposedIn,
		"release", s.release,
	)
	return &Assignment{
		EncodedPayload: encoded,
		Signature:      sig,
		Prover:         s.policy.ProverAddress,
		Expiry:         terms.Expiry,
		MaxBlockID:     maxBlockID,
		MaxProposedIn:  maxProposedIn,
	}, nil
}

// Complete signals that the proof for txListHash was delivered and releases
// the capacity held for it.
func (s *Service) Complete(txListHash common.Hash) int {
	released := s.guard.Complete(txListHash)
	s.logger.Sugar().Infow("Assignment completed", "txListHash", txListHash.Hex(), "released", released)
	return released
}

func (s *Service) Outstanding() int {
	return s.guard.Outstanding(s.now())
}

func (s *Service) Status() *StatusResponse {
	return &StatusResponse{
		MinOptimisticTierFee: s.policy.MinFees.Optimistic,
		MinSgxTierFee:        s.policy.MinFees.Sgx,
		MinPseZkevmTierFee:   s.policy.MinFees.PseZkevm,
		MaxExpiry:            uint64(s.policy.MaxExpiry.Milliseconds()),
		Prover:               s.policy.ProverAddress.Hex(),
	}
}

func (s *Service) headBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.headTimeout)
	defer cancel()
	head, err := s.head.HeadBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return head, nil
}

func (s *Service) internal(l *zap.SugaredLogger, err error) error {
	l.Errorw("Assignment invariant violated", "error", err)
	return fmt.Errorf("%w: %w", ErrInternal, err)
}

func addUint64(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

func resultFor(err error) string {
	switch {
	case err == nil:
		return resultAccepted
	case policy.IsRejection(err):
		return resultRejected
	case errors.Is(err, ErrProverAtCapacity):
		return resultAtCapacity
	case errors.Is(err, ErrUpstreamUnavailable):
		return resultUpstreamUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resultCancelled
	default:
		return resultInternal
	}
}
