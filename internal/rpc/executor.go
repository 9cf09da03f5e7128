// Package rpc is the resilience layer between the voting pipeline and the
// remote ledger endpoints. It is the only package that performs network I/O;
// everything else goes through Execute.
package rpc

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quorumworks/govpilot/internal/provider"
)

// Call names an operation class and carries its absolute timeout budget and
// default attempt count. Budgets differ per call type: a single proposal
// read is cheap, a vote submission waits on transaction acceptance.
type Call struct {
	Name        string
	Budget      time.Duration
	MaxAttempts int
}

// Standard call classes used by discovery and the coordinator.
var (
	CallCountRead    = Call{Name: "proposal_count", Budget: 10 * time.Second, MaxAttempts: 3}
	CallProposalRead = Call{Name: "proposal_read", Budget: 3 * time.Second, MaxAttempts: 2}
	CallHasVoted     = Call{Name: "has_voted", Budget: 2 * time.Second, MaxAttempts: 2}
	CallVoteSubmit   = Call{Name: "vote_submit", Budget: 15 * time.Second, MaxAttempts: 3}
	callProbe        = Call{Name: "liveness_probe", Budget: 3 * time.Second, MaxAttempts: 1}
)

// Pinger is the lightweight liveness call used to recover unhealthy
// endpoints. Implemented by the registry client.
type Pinger interface {
	Ping(ctx context.Context, endpointURL string) error
}

// Executor selects endpoints from the pool, runs calls against their budget,
// classifies outcomes, and fails over with exponential backoff.
type Executor struct {
	pool   *provider.Pool
	pinger Pinger
	pacer  *rate.Limiter // global outbound pacing across all endpoints

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor over the given pool. pinger may be nil,
// in which case the recovery probe optimistically resurrects the candidate.
func NewExecutor(pool *provider.Pool, pinger Pinger) *Executor {
	return &Executor{
		pool:      pool,
		pinger:    pinger,
		pacer:     rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		nowFunc:   time.Now,
		sleepFunc: sleepCtx,
	}
}

// WithPacer overrides the global outbound rate limiter.
func (e *Executor) WithPacer(l *rate.Limiter) *Executor {
	e.pacer = l
	return e
}

// WithNow sets a fixed clock for testing.
func (e *Executor) WithNow(fn func() time.Time) *Executor {
	e.nowFunc = fn
	return e
}

// WithSleep overrides the backoff sleeper for testing.
func (e *Executor) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Executor {
	e.sleepFunc = fn
	return e
}

// Pool exposes the underlying health registry for the status surface.
func (e *Executor) Pool() *provider.Pool {
	return e.pool
}

// Execute runs fn against a selected endpoint, retrying with failover up to
// call.MaxAttempts. Every attempt: pick a candidate (or probe an unhealthy
// one back to life), race fn against the call budget, classify the outcome
// into the pool, and back off before the next attempt.
func Execute[T any](ctx context.Context, e *Executor, call Call, fn func(ctx context.Context, ep *provider.Endpoint) (T, error)) (T, error) {
	var zero T
	maxAttempts := call.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		ep, err := e.acquire(ctx)
		if err != nil {
			// Total provider exhaustion is terminal for the operation.
			return zero, err
		}

		if e.pacer != nil {
			if err := e.pacer.Wait(ctx); err != nil {
				return zero, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, call.Budget)
		val, callErr := fn(callCtx, ep)
		cancel()

		now := e.nowFunc()
		if callErr == nil {
			e.pool.RecordSuccess(ep, now)
			return val, nil
		}

		rateLimited := IsRateLimited(callErr)
		e.pool.RecordFailure(ep, now, rateLimited)

		switch {
		case rateLimited:
			lastErr = eris.Wrapf(ErrRateLimited, "%s via %s: %v", call.Name, ep.Name, callErr)
		case IsTimeout(callErr):
			lastErr = eris.Wrapf(ErrTimeout, "%s via %s after %s", call.Name, ep.Name, call.Budget)
		default:
			lastErr = eris.Wrapf(callErr, "rpc: %s via %s", call.Name, ep.Name)
		}

		zap.L().Warn("rpc: call failed",
			zap.String("call", call.Name),
			zap.String("endpoint", ep.Name),
			zap.Int("attempt", attempt),
			zap.Bool("rate_limited", rateLimited),
			zap.Error(callErr),
		)

		if attempt < maxAttempts {
			if err := e.sleepFunc(ctx, Backoff(attempt)); err != nil {
				return zero, lastErr
			}
		}
	}

	return zero, lastErr
}

// acquire returns a usable endpoint, attempting recovery of an unhealthy one
// when every healthy endpoint is exhausted or cooling down.
func (e *Executor) acquire(ctx context.Context) (*provider.Endpoint, error) {
	now := e.nowFunc()
	if ep := e.pool.SelectCandidate(now); ep != nil {
		return ep, nil
	}

	rc := e.pool.RecoveryCandidate(now)
	if rc == nil {
		return nil, eris.Wrap(ErrNoProviderAvailable, "rpc: pool exhausted")
	}

	if e.pinger != nil {
		probeCtx, cancel := context.WithTimeout(ctx, callProbe.Budget)
		err := e.pinger.Ping(probeCtx, rc.URL)
		cancel()
		if err != nil {
			e.pool.RecordFailure(rc, e.nowFunc(), IsRateLimited(err))
			return nil, eris.Wrapf(ErrNoProviderAvailable, "rpc: recovery probe of %s failed: %v", rc.Name, err)
		}
	}

	zap.L().Info("rpc: recovered endpoint", zap.String("endpoint", rc.Name))
	e.pool.RecordSuccess(rc, e.nowFunc())
	return rc, nil
}

// Backoff returns the delay before the next attempt:
// min(1000ms × 2^(attempt-1), 5000ms).
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Second << (attempt - 1)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
