package discovery

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quorumworks/govpilot/internal/model"
	"github.com/quorumworks/govpilot/pkg/registry"
)

const (
	proposerAddr = "0x1111111111111111111111111111111111111111"
	assetAddr    = "0x2222222222222222222222222222222222222222"
)

func mustRaw(t *testing.T, v any) *registry.RawProposal {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var raw registry.RawProposal
	require.NoError(t, json.Unmarshal(data, &raw))
	return &raw
}

func TestNormalize_PositionalV1(t *testing.T) {
	raw := mustRaw(t, []any{
		7, 0, assetAddr, "2500", "Invest in stable reserve", proposerAddr,
		1_700_000_000, 1_700_003_600, "120", "30", 1, false,
	})

	p, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, "7", p.ID)
	require.Equal(t, model.KindInvest, p.Kind)
	require.Equal(t, assetAddr, p.TargetAsset)
	require.Equal(t, proposerAddr, p.Proposer)
	require.Equal(t, "2500", p.Amount)
	require.Equal(t, int64(1_700_003_600), p.EndTime)
	require.Equal(t, model.StateActive, p.State)
	require.False(t, p.Executed)
}

func TestNormalize_PositionalV2SwappedSlots(t *testing.T) {
	// v2 ABI: proposer at slot 2, asset at slot 5. The asset slot here is
	// the zero address, which is what betrays the swapped ordering.
	raw := mustRaw(t, []any{
		"9", 1, proposerAddr, "100.5", "Divest from legacy position", model.ZeroAddress,
		1_700_000_000, 1_700_007_200, "0", "0", 1, false,
	})

	p, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, "9", p.ID)
	require.Equal(t, model.KindDivest, p.Kind)
	require.Equal(t, proposerAddr, p.Proposer)
	require.Equal(t, model.ZeroAddress, p.TargetAsset)
}

func TestNormalize_PositionalNumericVariants(t *testing.T) {
	// Some providers stringify numbers and encode booleans as 0/1.
	raw := mustRaw(t, []any{
		"12", "2", assetAddr, 750, "Rebalance toward treasury target", proposerAddr,
		"1700000000", "0x6553f100", 0, 0, "5", 1,
	})

	p, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, model.KindRebalance, p.Kind)
	require.Equal(t, "750", p.Amount)
	require.Equal(t, int64(1_700_000_000), p.StartTime)
	require.Equal(t, int64(0x6553f100), p.EndTime)
	require.Equal(t, model.StateExecuted, p.State)
	require.True(t, p.Executed)
}

func TestNormalize_Named(t *testing.T) {
	raw := mustRaw(t, map[string]any{
		"proposalId":   21,
		"proposalType": 0,
		"token":        assetAddr,
		"amount":       "9000",
		"description":  "Acquire growth asset",
		"creator":      proposerAddr,
		"createdAt":    1_700_000_000,
		"votingEnds":   1_700_010_000,
		"forVotes":     "10",
		"againstVotes": "90",
		"status":       1,
		"executed":     false,
	})

	p, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, "21", p.ID)
	require.Equal(t, assetAddr, p.TargetAsset)
	require.Equal(t, proposerAddr, p.Proposer)
	require.Equal(t, int64(1_700_010_000), p.EndTime)
	require.InDelta(t, 0.1, p.SupportRatio(), 1e-9)
}

func TestNormalize_NamedMissingID(t *testing.T) {
	raw := mustRaw(t, map[string]any{"amount": "10"})
	_, err := Normalize(raw)
	require.Error(t, err)
}

func TestNormalize_PositionalTooShort(t *testing.T) {
	raw := mustRaw(t, []any{1, 2, 3})
	_, err := Normalize(raw)
	require.Error(t, err)
}

func TestNormalize_Nil(t *testing.T) {
	_, err := Normalize(nil)
	require.Error(t, err)
}
