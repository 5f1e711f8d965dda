package rebalance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	xerrors "OpenRebalancer/internal/errors"
)

func symbolsOf(a Allocation) []string {
	out := make([]string, 0, len(a))
	for _, target := range a {
		out = append(out, target.Symbol)
	}
	return out
}

func TestAllocationKeepsObjectKeyOrder(t *testing.T) {
	var allocation Allocation
	require.NoError(t, json.Unmarshal([]byte(`{"sol": 20, "BTC": "50.5", "Eth": 29.5}`), &allocation))

	require.Equal(t, []string{"SOL", "BTC", "ETH"}, symbolsOf(allocation))
	require.Equal(t, "50.5", allocation[1].Percent.String())

	raw, err := json.Marshal(allocation)
	require.NoError(t, err)
	require.Equal(t, `{"SOL":20,"BTC":50.5,"ETH":29.5}`, string(raw))
}

func TestAllocationAcceptsArrayForm(t *testing.T) {
	var allocation Allocation
	require.NoError(t, json.Unmarshal([]byte(`[{"symbol":"eth","percent":60},{"symbol":"btc","percent":40}]`), &allocation))
	require.Equal(t, []string{"ETH", "BTC"}, symbolsOf(allocation))
}

func TestAllocationRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"duplicate after normalisation": `{"BTC": 50, "btc": 50}`,
		"negative percent":              `{"BTC": -1}`,
		"non numeric percent":           `{"BTC": "half"}`,
		"not an object":                 `"BTC"`,
		"empty symbol":                  `{" ": 10}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			var allocation Allocation
			err := json.Unmarshal([]byte(body), &allocation)
			require.Error(t, err)
			require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
		})
	}
}

func TestAllocationNullAndEmpty(t *testing.T) {
	var payload struct {
		Allocations Allocation `json:"allocations"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"allocations": null}`), &payload))
	require.Empty(t, payload.Allocations)

	require.NoError(t, json.Unmarshal([]byte(`{"allocations": {}}`), &payload))
	require.Empty(t, payload.Allocations)
}
