package assignment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrProverAtCapacity is transient: the proposer may retry later.
	ErrProverAtCapacity = errors.New("prover at capacity")
	// ErrUpstreamUnavailable is transient: the chain head could not be read in time.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInternal hides invariant failures from proposers.
	ErrInternal = errors.New("internal error")
)

// Assignment is a signed commitment of the prover. It is complete or absent;
// there is no partially signed assignment.
type Assignment struct {
	EncodedPayload []byte
	Signature      []byte
	Prover         common.Address
	Expiry         uint64
	MaxBlockID     uint64
	MaxProposedIn  uint64
}

type (
	AssignmentResponse struct {
		SignedPayload ByteArray `json:"signedPayload"`
		// Prover is the checksummed address, as in StatusResponse.
		Prover        string `json:"prover"`
		MaxBlockID    uint64 `json:"maxBlockId"`
		MaxProposedIn uint64 `json:"maxProposedIn"`
	}

	StatusResponse struct {
		MinOptimisticTierFee uint64 `json:"minOptimisticTierFee"`
		MinSgxTierFee        uint64 `json:"minSgxTierFee"`
		MinPseZkevmTierFee   uint64 `json:"minPseZkevmTierFee"`
		// MaxExpiry is in milliseconds.
		MaxExpiry uint64 `json:"maxExpiry"`
		Prover    string `json:"prover"`
	}

	CompleteResponse struct {
		Released int `json:"released"`
	}
)

// ByteArray is encoded as a JSON array of byte values, e.g. [27, 1, 255],
// instead of the base64 string encoding/json uses for []byte.
type ByteArray []byte

func (b ByteArray) MarshalJSON() ([]byte, error) {
	values := make([]uint16, len(b))
	for i, v := range b {
		values[i] = uint16(v)
	}
	return json.Marshal(values)
}

func (b *ByteArray) UnmarshalJSON(data []byte) error {
	var values []uint16
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	out := make(ByteArray, len(values))
	for i, v := range values {
		if v > 0xff {
			return fmt.Errorf("byte value %d out of range at index %d", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

func newAssignmentResponse(a *Assignment) *AssignmentResponse {
	return &AssignmentResponse{
		SignedPayload: a.Signature,
		Prover:        a.Prover.Hex(),
		MaxBlockID:    a.MaxBlockID,
		MaxProposedIn: a.MaxProposedIn,
	}
}
