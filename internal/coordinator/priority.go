package coordinator

import (
	"sort"
	"strings"

	"github.com/quorumworks/govpilot/internal/model"
)

// Prioritize orders proposals for action: priority-asset proposals first,
// then descending amount, keeping discovery order for ties. Unparseable
// amounts sort last within their group.
func Prioritize(proposals []model.Proposal, priorityAsset string) {
	sort.SliceStable(proposals, func(i, j int) bool {
		pi := isPriority(proposals[i], priorityAsset)
		pj := isPriority(proposals[j], priorityAsset)
		if pi != pj {
			return pi
		}
		return amountOrZero(proposals[i]) > amountOrZero(proposals[j])
	})
}

func isPriority(p model.Proposal, asset string) bool {
	return asset != "" && strings.EqualFold(p.TargetAsset, asset)
}

func amountOrZero(p model.Proposal) float64 {
	amount, err := p.AmountUnits()
	if err != nil {
		return 0
	}
	return amount
}
