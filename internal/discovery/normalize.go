package discovery

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/quorumworks/govpilot/internal/model"
	"github.com/quorumworks/govpilot/pkg/registry"
)

// Positional slot order for the registry ABI:
//
//	[id, kind, asset, amount, description, proposer,
//	 createdAt, votingEnds, votesFor, votesAgainst, state, executed]
//
// Deployed v2 contracts swap slots 2 and 5 (proposer at 2, asset at 5).
// Both slots hold addresses, so the probe picks the ordering that places a
// non-zero address in the proposer position.
const positionalSlots = 12

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// isLiveAddress reports whether s is an address other than the zero address.
func isLiveAddress(s string) bool {
	return addressPattern.MatchString(s) && !strings.EqualFold(s, model.ZeroAddress)
}

// Normalize maps a raw registry record (either layout, either ABI order)
// into the canonical proposal.
func Normalize(raw *registry.RawProposal) (model.Proposal, error) {
	if raw == nil {
		return model.Proposal{}, eris.New("discovery: nil raw proposal")
	}
	if raw.IsPositional() {
		return normalizePositional(raw.Positional)
	}
	return normalizeNamed(raw.Named)
}

func normalizePositional(slots []json.RawMessage) (model.Proposal, error) {
	if len(slots) < positionalSlots {
		return model.Proposal{}, eris.Errorf("discovery: positional record has %d slots, want %d", len(slots), positionalSlots)
	}

	idxAsset, idxProposer := 2, 5
	s2, _ := decodeString(slots[2])
	s5, _ := decodeString(slots[5])
	if !isLiveAddress(s5) && isLiveAddress(s2) {
		// v2 ordering: proposer at slot 2, asset at slot 5.
		idxAsset, idxProposer = 5, 2
	}
	const (
		idxKind   = 1
		idxAmount = 3
		idxDesc   = 4
	)

	var p model.Proposal
	var err error

	if p.ID, err = decodeNumericString(slots[0]); err != nil {
		return p, eris.Wrap(err, "discovery: decode id")
	}
	kind, err := decodeInt64(slots[idxKind])
	if err != nil {
		return p, eris.Wrap(err, "discovery: decode kind")
	}
	p.Kind = model.ProposalKind(kind)

	if p.TargetAsset, err = decodeString(slots[idxAsset]); err != nil {
		return p, eris.Wrap(err, "discovery: decode target asset")
	}
	if p.Amount, err = decodeNumericString(slots[idxAmount]); err != nil {
		return p, eris.Wrap(err, "discovery: decode amount")
	}
	if p.Description, err = decodeString(slots[idxDesc]); err != nil {
		return p, eris.Wrap(err, "discovery: decode description")
	}
	if p.Proposer, err = decodeString(slots[idxProposer]); err != nil {
		return p, eris.Wrap(err, "discovery: decode proposer")
	}
	if p.StartTime, err = decodeInt64(slots[6]); err != nil {
		return p, eris.Wrap(err, "discovery: decode start time")
	}
	if p.EndTime, err = decodeInt64(slots[7]); err != nil {
		return p, eris.Wrap(err, "discovery: decode end time")
	}
	if p.VotesFor, err = decodeNumericString(slots[8]); err != nil {
		return p, eris.Wrap(err, "discovery: decode votes for")
	}
	if p.VotesAgainst, err = decodeNumericString(slots[9]); err != nil {
		return p, eris.Wrap(err, "discovery: decode votes against")
	}
	state, err := decodeInt64(slots[10])
	if err != nil {
		return p, eris.Wrap(err, "discovery: decode state")
	}
	p.State = model.ProposalState(state)
	if p.Executed, err = decodeBool(slots[11]); err != nil {
		return p, eris.Wrap(err, "discovery: decode executed")
	}

	return p, nil
}

// namedAliases maps canonical fields to the key names seen across contract
// versions and provider serializers.
var namedAliases = map[string][]string{
	"id":           {"id", "proposalId", "proposal_id"},
	"kind":         {"kind", "proposalType", "proposal_type"},
	"asset":        {"token", "asset", "targetAsset", "target_asset"},
	"amount":       {"amount"},
	"description":  {"description", "desc"},
	"proposer":     {"proposer", "creator"},
	"startTime":    {"createdAt", "created_at", "startTime", "start_time"},
	"endTime":      {"votingEnds", "voting_ends", "endTime", "end_time", "deadline"},
	"votesFor":     {"votesFor", "votes_for", "forVotes"},
	"votesAgainst": {"votesAgainst", "votes_against", "againstVotes"},
	"state":        {"state", "status"},
	"executed":     {"executed"},
}

func namedSlot(obj map[string]json.RawMessage, field string) (json.RawMessage, bool) {
	for _, alias := range namedAliases[field] {
		if v, ok := obj[alias]; ok {
			return v, true
		}
	}
	return nil, false
}

func normalizeNamed(obj map[string]json.RawMessage) (model.Proposal, error) {
	var p model.Proposal

	get := func(field string) json.RawMessage {
		v, _ := namedSlot(obj, field)
		return v
	}

	idRaw, ok := namedSlot(obj, "id")
	if !ok {
		return p, eris.New("discovery: named record missing id")
	}
	var err error
	if p.ID, err = decodeNumericString(idRaw); err != nil {
		return p, eris.Wrap(err, "discovery: decode id")
	}

	if v := get("kind"); v != nil {
		kind, err := decodeInt64(v)
		if err != nil {
			return p, eris.Wrap(err, "discovery: decode kind")
		}
		p.Kind = model.ProposalKind(kind)
	}
	if v := get("asset"); v != nil {
		if p.TargetAsset, err = decodeString(v); err != nil {
			return p, eris.Wrap(err, "discovery: decode target asset")
		}
	}
	if v := get("amount"); v != nil {
		if p.Amount, err = decodeNumericString(v); err != nil {
			return p, eris.Wrap(err, "discovery: decode amount")
		}
	}
	if v := get("description"); v != nil {
		if p.Description, err = decodeString(v); err != nil {
			return p, eris.Wrap(err, "discovery: decode description")
		}
	}
	if v := get("proposer"); v != nil {
		if p.Proposer, err = decodeString(v); err != nil {
			return p, eris.Wrap(err, "discovery: decode proposer")
		}
	}
	if v := get("startTime"); v != nil {
		if p.StartTime, err = decodeInt64(v); err != nil {
			return p, eris.Wrap(err, "discovery: decode start time")
		}
	}
	if v := get("endTime"); v != nil {
		if p.EndTime, err = decodeInt64(v); err != nil {
			return p, eris.Wrap(err, "discovery: decode end time")
		}
	}
	if v := get("votesFor"); v != nil {
		if p.VotesFor, err = decodeNumericString(v); err != nil {
			return p, eris.Wrap(err, "discovery: decode votes for")
		}
	}
	if v := get("votesAgainst"); v != nil {
		if p.VotesAgainst, err = decodeNumericString(v); err != nil {
			return p, eris.Wrap(err, "discovery: decode votes against")
		}
	}
	if v := get("state"); v != nil {
		state, err := decodeInt64(v)
		if err != nil {
			return p, eris.Wrap(err, "discovery: decode state")
		}
		p.State = model.ProposalState(state)
	}
	if v := get("executed"); v != nil {
		if p.Executed, err = decodeBool(v); err != nil {
			return p, eris.Wrap(err, "discovery: decode executed")
		}
	}

	return p, nil
}

// decodeString accepts a JSON string or renders a bare number as text.
func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", eris.Errorf("discovery: cannot decode %s as string", string(raw))
}

// decodeNumericString normalizes string-or-number slots into a decimal
// string (ids, amounts, and vote tallies keep their full precision as text).
func decodeNumericString(raw json.RawMessage) (string, error) {
	s, err := decodeString(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// decodeInt64 accepts a JSON number, a decimal string, or a 0x-hex string.
func decodeInt64(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			return strconv.ParseInt(s[2:], 16, 64)
		}
		return strconv.ParseInt(s, 10, 64)
	}
	return 0, eris.Errorf("discovery: cannot decode %s as integer", string(raw))
}

// decodeBool accepts a JSON bool or the numeric 0/1 some providers emit.
func decodeBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	n, err := decodeInt64(raw)
	if err != nil {
		return false, eris.Errorf("discovery: cannot decode %s as bool", string(raw))
	}
	return n != 0, nil
}
