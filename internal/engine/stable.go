package engine

import (
	"strings"

	"github.com/quorumworks/govpilot/internal/model"
)

// StableAssetSet flags proposals that target stable assets. Matching is a
// case-insensitive substring check against the proposal description and the
// target asset address. Inherited behavior: fragile on reworded
// descriptions, kept for decision-outcome compatibility and isolated here so
// a proper asset-registry lookup can replace it.
type StableAssetSet struct {
	idents []string
}

// DefaultStableIdentifiers are the stable-asset markers recognized out of
// the box. Addresses can be appended via configuration.
var DefaultStableIdentifiers = []string{
	"usdc", "usdt", "dai", "busd", "frax", "stablecoin", "stable reserve",
}

// NewStableAssetSet builds a set from the given identifiers; an empty list
// falls back to the defaults.
func NewStableAssetSet(idents []string) *StableAssetSet {
	if len(idents) == 0 {
		idents = DefaultStableIdentifiers
	}
	lowered := make([]string, len(idents))
	for i, id := range idents {
		lowered[i] = strings.ToLower(id)
	}
	return &StableAssetSet{idents: lowered}
}

// Flagged reports whether the proposal looks like it targets a stable asset.
func (s *StableAssetSet) Flagged(p model.Proposal) bool {
	haystack := strings.ToLower(p.Description + " " + p.TargetAsset)
	for _, id := range s.idents {
		if strings.Contains(haystack, id) {
			return true
		}
	}
	return false
}
