// Package provider tracks the health of the configured RPC endpoints and
// decides which one the resilience layer should try next.
package provider

import (
	"sort"
	"sync"
	"time"
)

// Endpoint describes one remote ledger RPC endpoint. All mutation goes
// through the Pool; callers treat returned pointers as read-mostly handles.
type Endpoint struct {
	URL          string
	Name         string
	Priority     int // lower = preferred
	FailureCount int
	Healthy      bool
	LastUsedAt   time.Time
}

// PoolConfig controls health bookkeeping.
type PoolConfig struct {
	// MaxFailures is the consecutive-failure count that marks an endpoint
	// unhealthy. Default: 3.
	MaxFailures int

	// RateLimitInterval is the minimum spacing between uses of the same
	// endpoint. Default: 2s.
	RateLimitInterval time.Duration
}

// DefaultPoolConfig returns the production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxFailures:       3,
		RateLimitInterval: 2 * time.Second,
	}
}

// Pool is the provider health registry. It performs no I/O; the resilience
// layer reports call outcomes into it and asks it for candidates. The voting
// round itself is strictly sequential; the mutex exists for the status
// surface, which reads snapshots concurrently.
type Pool struct {
	mu        sync.Mutex
	endpoints []*Endpoint
	cfg       PoolConfig

	nowFunc func() time.Time // injectable for tests
}

// NewPool creates a pool over the configured endpoints. Endpoints start
// healthy with a zero LastUsedAt so any of them is immediately eligible.
func NewPool(endpoints []Endpoint, cfg PoolConfig) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.RateLimitInterval <= 0 {
		cfg.RateLimitInterval = 2 * time.Second
	}
	eps := make([]*Endpoint, len(endpoints))
	for i := range endpoints {
		ep := endpoints[i]
		ep.Healthy = true
		ep.FailureCount = 0
		eps[i] = &ep
	}
	return &Pool{
		endpoints: eps,
		cfg:       cfg,
		nowFunc:   time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (p *Pool) WithNow(fn func() time.Time) *Pool {
	p.nowFunc = fn
	return p
}

// RateLimitInterval exposes the configured spacing.
func (p *Pool) RateLimitInterval() time.Duration {
	return p.cfg.RateLimitInterval
}

// SelectCandidate returns the preferred usable endpoint: healthy, not used
// within RateLimitInterval, lowest priority first, ties broken by least
// recently used. Returns nil when nothing is usable right now.
func (p *Pool) SelectCandidate(now time.Time) *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	var usable []*Endpoint
	for _, ep := range p.endpoints {
		if !ep.Healthy {
			continue
		}
		if now.Sub(ep.LastUsedAt) < p.cfg.RateLimitInterval {
			continue
		}
		usable = append(usable, ep)
	}
	if len(usable) == 0 {
		return nil
	}
	sort.SliceStable(usable, func(i, j int) bool {
		if usable[i].Priority != usable[j].Priority {
			return usable[i].Priority < usable[j].Priority
		}
		return usable[i].LastUsedAt.Before(usable[j].LastUsedAt)
	})
	return usable[0]
}

// RecoveryCandidate returns the least-recently-failed unhealthy endpoint,
// for a liveness probe when every healthy endpoint is exhausted. Returns nil
// when there is nothing to recover.
func (p *Pool) RecoveryCandidate(now time.Time) *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidate *Endpoint
	for _, ep := range p.endpoints {
		if ep.Healthy {
			continue
		}
		if candidate == nil || ep.LastUsedAt.Before(candidate.LastUsedAt) {
			candidate = ep
		}
	}
	return candidate
}

// RecordSuccess resets the endpoint's failure state and stamps LastUsedAt.
func (p *Pool) RecordSuccess(ep *Endpoint, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep.FailureCount = 0
	ep.Healthy = true
	ep.LastUsedAt = now
}

// RecordFailure increments the failure count and, on a rate-limited failure,
// pushes the endpoint's next eligible use out by 2× the rate-limit interval.
// Crossing MaxFailures marks the endpoint unhealthy.
func (p *Pool) RecordFailure(ep *Endpoint, now time.Time, rateLimited bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep.FailureCount++
	ep.LastUsedAt = now
	if rateLimited {
		// Extra backoff: the endpoint told us to slow down.
		ep.LastUsedAt = now.Add(2 * p.cfg.RateLimitInterval)
	}
	if ep.FailureCount >= p.cfg.MaxFailures {
		ep.Healthy = false
	}
}

// Snapshot returns a copy of every endpoint's state for the status surface.
func (p *Pool) Snapshot() []Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Endpoint, len(p.endpoints))
	for i, ep := range p.endpoints {
		out[i] = *ep
	}
	return out
}

// HealthyCount returns how many endpoints are currently marked healthy.
func (p *Pool) HealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, ep := range p.endpoints {
		if ep.Healthy {
			n++
		}
	}
	return n
}
