// Package discovery walks the on-chain proposal list and produces the set of
// proposals currently eligible for a vote, normalized into the canonical
// model. All reads go through the resilience layer, strictly sequentially
// and deliberately throttled: the dominant failure mode upstream is
// provider-side rate limiting, not latency.
package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quorumworks/govpilot/internal/model"
	"github.com/quorumworks/govpilot/internal/provider"
	"github.com/quorumworks/govpilot/internal/rpc"
	"github.com/quorumworks/govpilot/pkg/registry"
)

// ScanConfig controls the discovery window and throttling.
type ScanConfig struct {
	// WindowSize is how many of the most recent proposals to scan.
	// Default: 20, capped at MaxWindow.
	WindowSize int

	// MaxWindow is the global cap protecting against unbounded scans on
	// large registries. Default: 50.
	MaxWindow int

	// BaseDelay is the mandatory pause before each per-index read.
	// Default: 500ms.
	BaseDelay time.Duration

	// ChunkSize groups reads; every full chunk grows the inter-call delay
	// by ChunkDelayStep and inserts ChunkPause. Default: 5.
	ChunkSize int

	// ChunkDelayStep is the per-chunk increment added to BaseDelay.
	// Default: 200ms.
	ChunkDelayStep time.Duration

	// ChunkPause is the fixed pause between chunks. Default: 2s.
	ChunkPause time.Duration

	// RateLimitPause is the extra delay inserted after a rate-limited read
	// mid-scan. Default: 5s.
	RateLimitPause time.Duration
}

// DefaultScanConfig returns the production defaults.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		WindowSize:     20,
		MaxWindow:      50,
		BaseDelay:      500 * time.Millisecond,
		ChunkSize:      5,
		ChunkDelayStep: 200 * time.Millisecond,
		ChunkPause:     2 * time.Second,
		RateLimitPause: 5 * time.Second,
	}
}

func (c ScanConfig) withDefaults() ScanConfig {
	d := DefaultScanConfig()
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.MaxWindow <= 0 {
		c.MaxWindow = d.MaxWindow
	}
	if c.WindowSize > c.MaxWindow {
		c.WindowSize = c.MaxWindow
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkDelayStep < 0 {
		c.ChunkDelayStep = 0
	}
	if c.ChunkPause < 0 {
		c.ChunkPause = 0
	}
	if c.RateLimitPause <= 0 {
		c.RateLimitPause = d.RateLimitPause
	}
	return c
}

// Scanner discovers votable proposals through the resilience layer.
type Scanner struct {
	exec   *rpc.Executor
	client registry.Client
	cfg    ScanConfig

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewScanner creates a scanner.
func NewScanner(exec *rpc.Executor, client registry.Client, cfg ScanConfig) *Scanner {
	return &Scanner{
		exec:      exec,
		client:    client,
		cfg:       cfg.withDefaults(),
		nowFunc:   time.Now,
		sleepFunc: sleepCtx,
	}
}

// WithNow sets a fixed clock for testing.
func (s *Scanner) WithNow(fn func() time.Time) *Scanner {
	s.nowFunc = fn
	return s
}

// WithSleep overrides the throttling sleeper for testing.
func (s *Scanner) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Scanner {
	s.sleepFunc = fn
	return s
}

// DiscoverVotable scans the most recent window of the proposal list and
// returns the currently-votable proposals plus the number of indexes
// scanned. It never returns an error: per-index failures are logged and
// skipped, and a failed count read yields an empty result.
func (s *Scanner) DiscoverVotable(ctx context.Context) ([]model.Proposal, int) {
	count, err := rpc.Execute(ctx, s.exec, rpc.CallCountRead,
		func(ctx context.Context, ep *provider.Endpoint) (uint64, error) {
			return s.client.ProposalCount(ctx, ep.URL)
		})
	if err != nil {
		zap.L().Warn("discovery: proposal count read failed, skipping scan", zap.Error(err))
		return nil, 0
	}
	if count == 0 {
		zap.L().Info("discovery: registry is empty")
		return nil, 0
	}

	window := uint64(s.cfg.WindowSize)
	start := uint64(0)
	if count > window {
		start = count - window
	}

	zap.L().Info("discovery: scanning proposal window",
		zap.Uint64("total", count),
		zap.Uint64("from", start),
		zap.Uint64("to", count-1),
	)

	var votable []model.Proposal
	scanned := 0
	for index := start; index < count; index++ {
		pos := int(index - start)

		// Chunk boundary: grow the spacing and take a breather. The delay
		// schedule is the rate-limit discipline; nothing here runs in
		// parallel.
		if pos > 0 && pos%s.cfg.ChunkSize == 0 {
			if err := s.sleepFunc(ctx, s.cfg.ChunkPause); err != nil {
				return votable, scanned
			}
		}
		delay := s.cfg.BaseDelay + time.Duration(pos/s.cfg.ChunkSize)*s.cfg.ChunkDelayStep
		if err := s.sleepFunc(ctx, delay); err != nil {
			return votable, scanned
		}

		raw, err := rpc.Execute(ctx, s.exec, rpc.CallProposalRead,
			func(ctx context.Context, ep *provider.Endpoint) (*registry.RawProposal, error) {
				return s.client.ProposalAt(ctx, ep.URL, index)
			})
		scanned++
		if err != nil {
			zap.L().Warn("discovery: proposal read failed, skipping index",
				zap.Uint64("index", index),
				zap.Error(err),
			)
			if rpc.IsRateLimited(err) {
				if err := s.sleepFunc(ctx, s.cfg.RateLimitPause); err != nil {
					return votable, scanned
				}
			}
			continue
		}

		p, err := Normalize(raw)
		if err != nil {
			zap.L().Warn("discovery: malformed proposal record, skipping index",
				zap.Uint64("index", index),
				zap.Error(err),
			)
			continue
		}

		if p.Votable(s.nowFunc()) {
			votable = append(votable, p)
		}
	}

	zap.L().Info("discovery: scan complete",
		zap.Int("scanned", scanned),
		zap.Int("votable", len(votable)),
	)
	return votable, scanned
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
