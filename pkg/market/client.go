// Package market provides a client for the optional market-context service.
// The decision engine treats a missing or failing provider as "no market
// signal"; nothing here is on the critical path of a voting round.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/quorumworks/govpilot/internal/model"
)

// Provider supplies market context for a set of asset symbols.
type Provider interface {
	// Context fetches the current market snapshot for the given symbols.
	Context(ctx context.Context, symbols []string) (*model.MarketContext, error)
}

// Option configures the market client.
type Option func(*httpProvider)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(base string) Option {
	return func(p *httpProvider) {
		p.baseURL = base
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *httpProvider) {
		p.hc = hc
	}
}

// NewClient creates a market context client.
func NewClient(key string, opts ...Option) Provider {
	p := &httpProvider{
		key:     key,
		baseURL: "https://api.marketfeed.example/v1",
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type httpProvider struct {
	key     string
	baseURL string
	hc      *http.Client
}

type contextResponse struct {
	RiskScore float64 `json:"risk_score"`
	Signals   map[string]struct {
		Action     string  `json:"action"`
		Confidence float64 `json:"confidence"`
	} `json:"signals"`
}

func (p *httpProvider) Context(ctx context.Context, symbols []string) (*model.MarketContext, error) {
	u := fmt.Sprintf("%s/context?symbols=%s", p.baseURL, url.QueryEscape(strings.Join(symbols, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "market: build request")
	}
	if p.key != "" {
		req.Header.Set("Authorization", "Bearer "+p.key)
	}

	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "market: fetch context")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, eris.Errorf("market: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var cr contextResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, eris.Wrap(err, "market: decode context")
	}

	mc := &model.MarketContext{
		RiskScore: cr.RiskScore,
		Signals:   make(map[string]model.Signal, len(cr.Signals)),
	}
	for sym, s := range cr.Signals {
		mc.Signals[strings.ToUpper(sym)] = model.Signal{
			Action:     model.SignalAction(strings.ToLower(s.Action)),
			Confidence: s.Confidence,
		}
	}
	return mc, nil
}
