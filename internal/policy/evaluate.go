package policy

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kroma-network/prover-assignment-server/internal/tier"
)

// Request is a proposer's assignment request.
type Request struct {
	FeeToken   common.Address `json:"feeToken"`
	TierFees   []tier.Fee     `json:"tierFees"`
	Expiry     uint64         `json:"expiry"`
	TxListHash common.Hash    `json:"txListHash"`
}

// ValidatedTerms are the request terms the prover agreed to.
type ValidatedTerms struct {
	FeeToken   common.Address
	TierFees   []tier.Fee
	Expiry     uint64
	TxListHash common.Hash
}

// Evaluate checks req against p at time now. Checks run in a fixed order and
// the first failing check decides the returned error.
func Evaluate(req *Request, p *ProverPolicy, now time.Time) (*ValidatedTerms, error) {
	if req.TxListHash == (common.Hash{}) {
		return nil, ErrInvalidTxListHash
	}
	if req.FeeToken != (common.Address{}) {
		return nil, ErrUnsupportedFeeToken
	}
	for _, tf := range req.TierFees {
		if !tf.Tier.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrInvalidTier, tf.Tier)
		}
		minFee, ok := p.MinFees.MinimumFor(tf.Tier)
		if !ok {
			continue
		}
		if tf.Fee < minFee {
			return nil, &ProofFeeTooLowError{Tier: tf.Tier, Fee: tf.Fee, MinFee: minFee}
		}
	}
	if maxExpiry := p.MaxExpiryAt(now); req.Expiry > maxExpiry {
		return nil, &ExpiryTooLongError{Expiry: req.Expiry, MaxExpiry: maxExpiry}
	}

	tierFees := make([]tier.Fee, len(req.TierFees))
	copy(tierFees, req.TierFees)
	return &ValidatedTerms{
		FeeToken:   req.FeeToken,
		TierFees:   tierFees,
		Expiry:     req.Expiry,
		TxListHash: req.TxListHash,
	}, nil
}
