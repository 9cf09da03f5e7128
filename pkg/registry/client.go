// Package registry provides a client for the on-chain governance voting
// registry. Every method takes the endpoint URL explicitly: endpoint
// selection belongs to the resilience layer, not to this client.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
)

// Client defines the ledger read/write operations the voting pipeline needs.
type Client interface {
	// ProposalCount returns the total number of proposals in the registry.
	ProposalCount(ctx context.Context, endpoint string) (uint64, error)
	// ProposalAt fetches the raw record at the given index.
	ProposalAt(ctx context.Context, endpoint string, index uint64) (*RawProposal, error)
	// HasVoted reports whether the address already voted on the proposal.
	HasVoted(ctx context.Context, endpoint string, proposalID, voter string) (bool, error)
	// SubmitVote signs and submits a vote transaction, returning its hash.
	SubmitVote(ctx context.Context, endpoint string, req VoteRequest) (string, error)
	// Ping is a lightweight liveness check used by provider recovery.
	Ping(ctx context.Context, endpoint string) error
}

// VoteRequest carries everything needed to cast one vote.
type VoteRequest struct {
	ProposalID  string `json:"proposal_id"`
	Support     bool   `json:"support"`
	Voter       string `json:"voter"`
	KeyRef      string `json:"key_ref"` // opaque signer handle, resolved node-side
	GasLimit    uint64 `json:"gas_limit"`
	GasPriceWei uint64 `json:"gas_price_wei"`
}

// Option configures the HTTP client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.hc = hc
	}
}

// WithContract sets the registry contract address included in each request.
func WithContract(address string) Option {
	return func(c *httpClient) {
		c.contract = address
	}
}

// NewClient creates a registry client for the given contract.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		hc: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type httpClient struct {
	hc       *http.Client
	contract string
	seq      atomic.Uint64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

func (c *httpClient) call(ctx context.Context, endpoint, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.seq.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return eris.Wrap(err, "registry: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "registry: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return eris.Wrapf(err, "registry: %s", method)
	}
	defer resp.Body.Close()

	// Keep the status text in the error so rate-limit classification can
	// pattern-match 429 responses.
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return eris.Errorf("registry: %s returned HTTP %d %s: %s",
			method, resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(snippet)))
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return eris.Wrapf(err, "registry: decode %s response", method)
	}
	if rr.Error != nil {
		return eris.Errorf("registry: %s rpc error %d: %s", method, rr.Error.Code, rr.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return eris.Wrapf(err, "registry: unmarshal %s result", method)
		}
	}
	return nil
}

func (c *httpClient) ProposalCount(ctx context.Context, endpoint string) (uint64, error) {
	var count uint64
	if err := c.call(ctx, endpoint, "gov_getProposalCount", []any{c.contract}, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (c *httpClient) ProposalAt(ctx context.Context, endpoint string, index uint64) (*RawProposal, error) {
	var raw RawProposal
	if err := c.call(ctx, endpoint, "gov_getProposal", []any{c.contract, index}, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

func (c *httpClient) HasVoted(ctx context.Context, endpoint string, proposalID, voter string) (bool, error) {
	var voted bool
	if err := c.call(ctx, endpoint, "gov_hasVoted", []any{c.contract, proposalID, voter}, &voted); err != nil {
		return false, err
	}
	return voted, nil
}

func (c *httpClient) SubmitVote(ctx context.Context, endpoint string, req VoteRequest) (string, error) {
	var txHash string
	if err := c.call(ctx, endpoint, "gov_castVote", []any{c.contract, req}, &txHash); err != nil {
		return "", err
	}
	return txHash, nil
}

func (c *httpClient) Ping(ctx context.Context, endpoint string) error {
	var version string
	return c.call(ctx, endpoint, "net_version", nil, &version)
}

// IsAlreadyVoted reports whether an error is the registry's revert for a
// duplicate vote. Treated as a normal idempotent outcome, not a failure.
func IsAlreadyVoted(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already voted") || strings.Contains(msg, "duplicate vote")
}
