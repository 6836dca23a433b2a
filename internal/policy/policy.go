package policy

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"

	"github.com/kroma-network/prover-assignment-server/internal/tier"
)

// ProverPolicy is the prover's acceptance policy. It is loaded once at
// startup and never modified afterwards.
type ProverPolicy struct {
	MinFees tier.MinimumFees
	// MaxExpiry bounds how far in the future a requested expiry may be.
	MaxExpiry time.Duration
	// ExpiryTolerance absorbs clock skew between proposer and prover.
	ExpiryTolerance time.Duration
	MaxSlippage     uint64
	MaxProposedIn   uint64

	ProverAddress         common.Address
	IsGuardian            bool
	TaikoL1Address        common.Address
	AssignmentHookAddress common.Address
	LivenessBond          *big.Int
	ChainID               uint64
}

func (p *ProverPolicy) Validate() error {
	var result *multierror.Error
	if p.MaxExpiry <= 0 {
		result = multierror.Append(result, errors.New("max expiry must be positive"))
	}
	if p.ExpiryTolerance < 0 {
		result = multierror.Append(result, errors.New("expiry tolerance must not be negative"))
	}
	if p.ProverAddress == (common.Address{}) {
		result = multierror.Append(result, errors.New("prover address is not set"))
	}
	if p.TaikoL1Address == (common.Address{}) {
		result = multierror.Append(result, errors.New("taiko L1 address is not set"))
	}
	if p.AssignmentHookAddress == (common.Address{}) {
		result = multierror.Append(result, errors.New("assignment hook address is not set"))
	}
	if p.LivenessBond != nil && p.LivenessBond.Sign() < 0 {
		result = multierror.Append(result, fmt.Errorf("liveness bond %s is negative", p.LivenessBond))
	}
	if p.ChainID == 0 {
		result = multierror.Append(result, errors.New("chain id is not set"))
	}
	return result.ErrorOrNil()
}

// MaxExpiryAt is the latest expiry, in unix millis, accepted at now.
func (p *ProverPolicy) MaxExpiryAt(now time.Time) uint64 {
	return uint64(now.Add(p.MaxExpiry + p.ExpiryTolerance).UnixMilli())
}
