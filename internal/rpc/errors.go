package rpc

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/rotisserie/eris"
)

// Sentinel errors surfaced by the executor. Callers branch on these with
// eris/errors.Is rather than string matching.
var (
	// ErrNoProviderAvailable means every configured endpoint is unhealthy
	// and the recovery probe failed too. Callers return an empty/neutral
	// result rather than crashing the round.
	ErrNoProviderAvailable = eris.New("rpc: no provider available")

	// ErrTimeout means the per-call budget was exceeded.
	ErrTimeout = eris.New("rpc: call timed out")

	// ErrRateLimited means the provider rejected the call for rate reasons.
	ErrRateLimited = eris.New("rpc: provider rate limited")
)

// rateLimitPatterns are the message fragments observed across provider
// implementations when a call is throttled.
var rateLimitPatterns = []string{
	"429",
	"too many requests",
	"rate limit",
	"rate-limit",
	"quota exceeded",
	"throttled",
}

// IsRateLimited reports whether the error looks like provider-side
// throttling. Detection is by message pattern: providers disagree on how
// they report 429s, and some bury it inside JSON-RPC error strings.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range rateLimitPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTimeout reports whether the error is a per-call budget expiry or a
// network-level timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "i/o timeout") || strings.Contains(msg, "deadline exceeded")
}
