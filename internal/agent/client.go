package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentgate/agentgate/internal/approval"
	"github.com/agentgate/agentgate/internal/logging"
)

// Identity is the client identity announced to the backend during
// initialization. It is passed explicitly; there is no process-wide
// configuration singleton.
type Identity struct {
	Name    string
	Version string
}

// Client is the typed surface over the agent transport: initialization,
// session calls, decision acknowledgements, and the diagnostics probe.
type Client struct {
	transport Transport
	identity  Identity
	attempts  int64
}

// NewClient wraps a transport.
func NewClient(t Transport) *Client {
	return &Client{transport: t}
}

// Configure sets the client identity. Must happen before Initialize.
func (c *Client) Configure(id Identity) {
	c.identity = id
}

// Initialize authenticates against the backend. Transient failures are
// retried with exponential backoff; the attempt count is kept for error
// reporting.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"clientInfo": map[string]string{
			"name":    c.identity.Name,
			"version": c.identity.Version,
		},
	}

	operation := func() error {
		atomic.AddInt64(&c.attempts, 1)
		_, err := c.transport.Call(ctx, "initialize", params)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}
	return nil
}

// Attempts returns how many initialize attempts were made. The network
// classifier displays this as the retry count.
func (c *Client) Attempts() int {
	return int(atomic.LoadInt64(&c.attempts))
}

// NewSession creates the backend session with the first user message. The
// context blocks are injected ahead of the prompt.
func (c *Client) NewSession(ctx context.Context, prompt string, contextBlocks []string) (string, error) {
	result, err := c.transport.Call(ctx, "session/new", map[string]any{
		"prompt":  prompt,
		"context": contextBlocks,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		SessionID string `json:"sessionID"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return "", fmt.Errorf("invalid session/new result: %w", err)
	}
	return out.SessionID, nil
}

// Prompt sends a follow-up user message to an existing backend session.
func (c *Client) Prompt(ctx context.Context, sessionID, text string) error {
	_, err := c.transport.Call(ctx, "session/prompt", map[string]any{
		"sessionID": sessionID,
		"text":      text,
	})
	return err
}

// ResolvePermission acknowledges a terminal decision to the backend, keyed
// by the backend's own (un-prefixed) call id.
func (c *Client) ResolvePermission(ctx context.Context, callID string, decision approval.Decision) error {
	_, err := c.transport.Call(ctx, "permission/resolve", map[string]any{
		"callID":   callID,
		"decision": string(decision),
	})
	return err
}

// Diagnostics runs the post-connection probe.
func (c *Client) Diagnostics(ctx context.Context) (*DiagnosticsReport, error) {
	result, err := c.transport.Call(ctx, "diagnostics/status", nil)
	if err != nil {
		return nil, err
	}

	var report DiagnosticsReport
	if err := json.Unmarshal(result, &report); err != nil {
		return nil, fmt.Errorf("invalid diagnostics result: %w", err)
	}
	return &report, nil
}

// Notifications exposes the transport's agent-originated event stream.
func (c *Client) Notifications() <-chan Notification {
	return c.transport.Notifications()
}

// Stop closes the transport. A stop failure is the caller's to tolerate.
func (c *Client) Stop() error {
	if err := c.transport.Close(); err != nil {
		logging.Warn().Err(err).Msg("agent transport close failed")
		return err
	}
	return nil
}
