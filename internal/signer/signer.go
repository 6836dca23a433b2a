package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxPayloadSize bounds the payloads accepted for signing. Encoded
// assignments are a few hundred bytes.
const MaxPayloadSize = 64 * 1024

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrSigningFailed    = errors.New("couldn't sign")
	ErrInvalidSignature = errors.New("signature is invalid")
)

// Signer signs assignment payloads with the prover key. It is safe for
// concurrent use; the key is read-only after construction.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func New(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func NewFromHex(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		// err may quote the input; never include it.
		return nil, errors.New("failed to parse private key")
	}
	return New(key), nil
}

func (s *Signer) Address() common.Address { return s.address }

// String never reveals the key.
func (s *Signer) String() string { return fmt.Sprintf("signer(%s)", s.address.Hex()) }

// Sign signs keccak256(payload) and returns a 65 byte [R || S || V]
// signature with V in {27, 28}, as expected by ecrecover.
func (s *Signer) Sign(payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedPayload, len(payload))
	}
	sig, err := crypto.Sign(crypto.Keccak256(payload), s.key)
	if err != nil {
		return nil, fmt.Errorf("%w (%v)", ErrSigningFailed, err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverAddress returns the address that produced sig over payload.
func RecoverAddress(payload, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(payload), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w (%v)", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether sig is a signature over payload by address.
func Verify(payload, sig []byte, address common.Address) bool {
	recovered, err := RecoverAddress(payload, sig)
	return err == nil && recovered == address
}
