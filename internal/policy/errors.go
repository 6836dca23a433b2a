package policy

import (
	"errors"
	"fmt"

	"github.com/kroma-network/prover-assignment-server/internal/tier"
)

var (
	ErrInvalidTxListHash   = errors.New("invalid txList hash")
	ErrUnsupportedFeeToken = errors.New("only receive ETH")
	ErrProofFeeTooLow      = errors.New("proof fee too low")
	ErrExpiryTooLong       = errors.New("expiry too long")
	// ErrInvalidTier is only reachable from code; the JSON decoder already
	// refuses unknown tiers.
	ErrInvalidTier = errors.New("invalid tier")
)

// ProofFeeTooLowError reports the first tier fee below its configured minimum.
type ProofFeeTooLowError struct {
	Tier   tier.Kind
	Fee    uint64
	MinFee uint64
}

func (e *ProofFeeTooLowError) Error() string { return ErrProofFeeTooLow.Error() }

func (e *ProofFeeTooLowError) Is(target error) bool { return target == ErrProofFeeTooLow }

// ExpiryTooLongError carries the requested expiry and the latest expiry the
// prover accepted at evaluation time, both in unix millis.
type ExpiryTooLongError struct {
	Expiry    uint64
	MaxExpiry uint64
}

func (e *ExpiryTooLongError) Error() string { return ErrExpiryTooLong.Error() }

func (e *ExpiryTooLongError) Is(target error) bool { return target == ErrExpiryTooLong }

// Detail renders the offending values for logs; Error stays within the
// fixed set of reasons returned to proposers.
func Detail(err error) string {
	var feeErr *ProofFeeTooLowError
	if errors.As(err, &feeErr) {
		return fmt.Sprintf("tier %s fee %d below minimum %d", feeErr.Tier, feeErr.Fee, feeErr.MinFee)
	}
	var expiryErr *ExpiryTooLongError
	if errors.As(err, &expiryErr) {
		return fmt.Sprintf("expiry %d after max %d", expiryErr.Expiry, expiryErr.MaxExpiry)
	}
	return err.Error()
}

// IsRejection reports whether err is a validation rejection caused by the request itself.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidTxListHash) ||
		errors.Is(err, ErrUnsupportedFeeToken) ||
		errors.Is(err, ErrProofFeeTooLow) ||
		errors.Is(err, ErrExpiryTooLong) ||
		errors.Is(err, ErrInvalidTier)
}
