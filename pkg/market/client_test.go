package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quorumworks/govpilot/internal/model"
)

func TestClient_Context(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Contains(t, r.URL.RawQuery, "symbols=")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"risk_score": 0.62,
			"signals": {
				"eth": {"action": "BUY", "confidence": 0.8},
				"usdc": {"action": "hold", "confidence": 0.5}
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	mc, err := c.Context(context.Background(), []string{"ETH", "USDC"})
	require.NoError(t, err)
	require.InDelta(t, 0.62, mc.RiskScore, 1e-9)

	sig, ok := mc.SignalFor("ETH")
	require.True(t, ok)
	require.Equal(t, model.ActionBuy, sig.Action)
	require.InDelta(t, 0.8, sig.Confidence, 1e-9)
}

func TestClient_Context_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL))
	_, err := c.Context(context.Background(), []string{"ETH"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}
