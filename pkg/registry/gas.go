package registry

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// DefaultGasPriceWei is the fallback gas price (20 gwei) used when fee data
// cannot be fetched.
const DefaultGasPriceWei uint64 = 20_000_000_000

// DefaultGasLimit covers a castVote transaction with headroom.
const DefaultGasLimit uint64 = 300_000

// GasPricer supplies gas parameters for vote transactions.
type GasPricer interface {
	// SuggestPrice returns a gas price in wei. Never fails: fee-data
	// lookup errors fall back to DefaultGasPriceWei.
	SuggestPrice(ctx context.Context, endpoint string) uint64
}

// NewGasPricer creates a pricer that queries the node's fee oracle.
func NewGasPricer(opts ...Option) GasPricer {
	c := &httpClient{hc: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return &gasPricer{c: c}
}

type gasPricer struct {
	c *httpClient
}

func (g *gasPricer) SuggestPrice(ctx context.Context, endpoint string) uint64 {
	var price uint64
	if err := g.c.call(ctx, endpoint, "eth_gasPrice", nil, &price); err != nil {
		zap.L().Debug("registry: gas price lookup failed, using default",
			zap.Uint64("default_wei", DefaultGasPriceWei),
			zap.Error(err),
		)
		return DefaultGasPriceWei
	}
	if price == 0 {
		return DefaultGasPriceWei
	}
	return price
}

// StaticGasPricer always returns a fixed price. Used in tests and as the
// configured fallback when no fee oracle is reachable.
type StaticGasPricer uint64

// SuggestPrice implements GasPricer.
func (s StaticGasPricer) SuggestPrice(context.Context, string) uint64 {
	if s == 0 {
		return DefaultGasPriceWei
	}
	return uint64(s)
}
