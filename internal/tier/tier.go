package tier

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a proof tier. Tiers are ordered by increasing trust and cost.
type Kind uint8

const (
	Optimistic Kind = iota
	Sgx
	PseZkevm
	SgxAndPseZkevm
	Guardian
)

func (k Kind) Valid() bool { return k <= Guardian }

func (k Kind) String() string {
	switch k {
	case Optimistic:
		return "Optimistic"
	case Sgx:
		return "Sgx"
	case PseZkevm:
		return "PseZkevm"
	case SgxAndPseZkevm:
		return "SgxAndPseZkevm"
	case Guardian:
		return "Guardian"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var v uint8
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid tier %s: %w", data, err)
	}
	if !Kind(v).Valid() {
		return fmt.Errorf("unknown tier %d", v)
	}
	*k = Kind(v)
	return nil
}

// MinimumFees holds the configured floor for every tier that has one.
// Guardian is deliberately absent.
type MinimumFees struct {
	Optimistic     uint64
	Sgx            uint64
	PseZkevm       uint64
	SgxAndPseZkevm uint64
}

// MinimumFor returns the minimum fee for kind. The second result is false
// when the tier carries no minimum at all.
func (m MinimumFees) MinimumFor(kind Kind) (uint64, bool) {
	switch kind {
	case Optimistic:
		return m.Optimistic, true
	case Sgx:
		return m.Sgx, true
	case PseZkevm:
		return m.PseZkevm, true
	case SgxAndPseZkevm:
		return m.SgxAndPseZkevm, true
	default:
		return 0, false
	}
}

// Fee is a fee offer for a single tier.
type Fee struct {
	Tier Kind   `json:"tier"`
	Fee  uint64 `json:"fee"`
}

func (f Fee) String() string {
	return fmt.Sprintf("{tier: %s, fee: %d}", f.Tier, f.Fee)
}
