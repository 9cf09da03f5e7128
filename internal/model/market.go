package model

// SignalAction is a market recommendation for one asset symbol.
type SignalAction string

const (
	ActionBuy  SignalAction = "buy"
	ActionSell SignalAction = "sell"
	ActionHold SignalAction = "hold"
)

// Signal is a per-asset market recommendation.
type Signal struct {
	Action     SignalAction `json:"action"`
	Confidence float64      `json:"confidence"`
}

// MarketContext is the optional market snapshot consumed by the decision
// engine. A nil context means "no market signal" and never blocks decisions.
type MarketContext struct {
	RiskScore float64           `json:"risk_score"` // overall market risk in [0,1]
	Signals   map[string]Signal `json:"signals"`    // keyed by upper-case asset symbol
}

// SignalFor returns the signal for a symbol, if present.
func (m *MarketContext) SignalFor(symbol string) (Signal, bool) {
	if m == nil || m.Signals == nil {
		return Signal{}, false
	}
	s, ok := m.Signals[symbol]
	return s, ok
}
