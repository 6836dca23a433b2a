package payload

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/kroma-network/prover-assignment-server/internal/tier"
)

// SchemaVersion is encoded as the first field, so payloads of different
// schema versions never collide.
const SchemaVersion = "PROVER_ASSIGNMENT_V1"

var ErrMalformedTerms = errors.New("malformed assignment terms")

var (
	stringType  = mustNewType("string", nil)
	uint64Type  = mustNewType("uint64", nil)
	addressType = mustNewType("address", nil)
	bytes32Type = mustNewType("bytes32", nil)

	tierFeesType = mustNewType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "tier", Type: "uint16"},
		{Name: "fee", Type: "uint128"},
	})

	// The order of the arguments is part of the schema.
	assignmentArgs = abi.Arguments{
		{Name: "schema", Type: stringType},
		{Name: "chainId", Type: uint64Type},
		{Name: "taikoL1", Type: addressType},
		{Name: "assignmentHook", Type: addressType},
		{Name: "feeToken", Type: addressType},
		{Name: "txListHash", Type: bytes32Type},
		{Name: "expiry", Type: uint64Type},
		{Name: "tierFees", Type: tierFeesType},
		{Name: "maxBlockId", Type: uint64Type},
		{Name: "maxProposedIn", Type: uint64Type},
	}
)

func mustNewType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Errorf("failed to create abi type %s: %w", t, err))
	}
	return typ
}

// Terms are the accepted assignment terms with the chain-derived bounds
// already resolved.
type Terms struct {
	ChainID        uint64
	TaikoL1        common.Address
	AssignmentHook common.Address
	FeeToken       common.Address
	TxListHash     common.Hash
	Expiry         uint64
	TierFees       []tier.Fee
	MaxBlockID     uint64
	MaxProposedIn  uint64
}

type abiTierFee struct {
	Tier uint16   `abi:"tier"`
	Fee  *big.Int `abi:"fee"`
}

// Encode returns the canonical ABI encoding of t. The same terms always
// produce the same bytes.
func Encode(t *Terms) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil terms", ErrMalformedTerms)
	}
	tierFees := make([]abiTierFee, 0, len(t.TierFees))
	for _, tf := range t.TierFees {
		if !tf.Tier.Valid() {
			return nil, fmt.Errorf("%w: unknown tier %d", ErrMalformedTerms, tf.Tier)
		}
		tierFees = append(tierFees, abiTierFee{Tier: uint16(tf.Tier), Fee: new(big.Int).SetUint64(tf.Fee)})
	}
	encoded, err := assignmentArgs.Pack(
		SchemaVersion,
		t.ChainID,
		t.TaikoL1,
		t.AssignmentHook,
		t.FeeToken,
		[32]byte(t.TxListHash),
		t.Expiry,
		tierFees,
		t.MaxBlockID,
		t.MaxProposedIn,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTerms, err)
	}
	return encoded, nil
}

// Digest is the keccak256 hash of an encoded payload; it is the message the
// prover signs.
func Digest(encoded []byte) common.Hash {
	return crypto.Keccak256Hash(encoded)
}
