// Package identity loads the set of voting identities the coordinator acts
// for. Key material is never held here; each identity carries an opaque
// KeyRef resolved by the signing node.
package identity

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/quorumworks/govpilot/internal/model"
)

// Entry is one configured identity before validation.
type Entry struct {
	Address string `mapstructure:"address" yaml:"address"`
	KeyRef  string `mapstructure:"key_ref" yaml:"key_ref"`
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Load validates the configured entries and assigns contiguous indexes
// starting at zero. Order follows the configuration.
func Load(entries []Entry) ([]model.VotingIdentity, error) {
	if len(entries) == 0 {
		return nil, eris.New("identity: no voting identities configured")
	}

	seen := make(map[string]int, len(entries))
	identities := make([]model.VotingIdentity, 0, len(entries))
	for i, e := range entries {
		addr := strings.TrimSpace(e.Address)
		if !addressPattern.MatchString(addr) {
			return nil, eris.Errorf("identity: entry %d has invalid address %q", i, e.Address)
		}
		key := strings.ToLower(addr)
		if prev, dup := seen[key]; dup {
			return nil, eris.Errorf("identity: entry %d duplicates address of entry %d", i, prev)
		}
		seen[key] = i

		if strings.TrimSpace(e.KeyRef) == "" {
			return nil, eris.Errorf("identity: entry %d has no key reference", i)
		}

		identities = append(identities, model.VotingIdentity{
			Index:   i,
			Address: addr,
			KeyRef:  e.KeyRef,
		})
	}
	return identities, nil
}
