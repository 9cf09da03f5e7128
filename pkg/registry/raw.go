package registry

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// RawProposal is the untyped record returned by gov_getProposal. Deployed
// contract versions disagree on shape: some providers return a positional
// tuple (JSON array, ~12 slots), others a named-field object. Both are
// preserved here as a tagged variant; normalization into the canonical
// proposal happens in the discovery pipeline.
type RawProposal struct {
	// Positional holds the tuple form, in contract slot order. Nil when the
	// record came back as an object.
	Positional []json.RawMessage

	// Named holds the object form keyed by field name. Nil when the record
	// came back as a tuple.
	Named map[string]json.RawMessage
}

// IsPositional reports whether the record uses the tuple layout.
func (r *RawProposal) IsPositional() bool {
	return r.Positional != nil
}

// UnmarshalJSON accepts either layout.
func (r *RawProposal) UnmarshalJSON(data []byte) error {
	trimmed := firstNonSpace(data)
	switch trimmed {
	case '[':
		var tuple []json.RawMessage
		if err := json.Unmarshal(data, &tuple); err != nil {
			return eris.Wrap(err, "registry: decode positional proposal")
		}
		r.Positional = tuple
		r.Named = nil
		return nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return eris.Wrap(err, "registry: decode named proposal")
		}
		r.Named = obj
		r.Positional = nil
		return nil
	default:
		return eris.New("registry: proposal record is neither array nor object")
	}
}

// MarshalJSON round-trips whichever layout was decoded.
func (r *RawProposal) MarshalJSON() ([]byte, error) {
	if r.Positional != nil {
		return json.Marshal(r.Positional)
	}
	return json.Marshal(r.Named)
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
