package tier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimumFor(t *testing.T) {
	fees := MinimumFees{Optimistic: 1, Sgx: 2, PseZkevm: 3, SgxAndPseZkevm: 4}

	for kind, want := range map[Kind]uint64{Optimistic: 1, Sgx: 2, PseZkevm: 3, SgxAndPseZkevm: 4} {
		got, ok := fees.MinimumFor(kind)
		assert.True(t, ok, kind.String())
		assert.Equal(t, want, got, kind.String())
	}

	_, ok := fees.MinimumFor(Guardian)
	assert.False(t, ok, "guardian tier must carry no minimum")
}

func TestKindUnmarshalJSON(t *testing.T) {
	var fees []Fee
	require.NoError(t, json.Unmarshal([]byte(`[{"tier":0,"fee":100},{"tier":4,"fee":0}]`), &fees))
	assert.Equal(t, []Fee{{Tier: Optimistic, Fee: 100}, {Tier: Guardian, Fee: 0}}, fees)

	err := json.Unmarshal([]byte(`[{"tier":5,"fee":1}]`), &fees)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tier 5")

	err = json.Unmarshal([]byte(`[{"tier":"sgx","fee":1}]`), &fees)
	require.Error(t, err)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "SgxAndPseZkevm", SgxAndPseZkevm.String())
	assert.Equal(t, "Unknown(9)", Kind(9).String())
	assert.Equal(t, "{tier: Sgx, fee: 7}", Fee{Tier: Sgx, Fee: 7}.String())
}
