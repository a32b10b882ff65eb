// Package agent provides an HTTP client for the AI scoring service that
// analyzes tickets and proposes resolutions.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/resolveq/helpdesk/internal/config"
	"github.com/resolveq/helpdesk/internal/domain/ticket"
	"github.com/resolveq/helpdesk/internal/port/scoring"
	"github.com/resolveq/helpdesk/internal/resilience"
)

// Client talks to the scoring service's analyze endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a scoring client from config.
func NewClient(cfg config.Agent) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Analyze submits a ticket for analysis and returns the confidence signal.
// Transport failures and 5xx responses wrap scoring.ErrUnavailable so
// callers can retry; 4xx responses are terminal.
func (c *Client) Analyze(ctx context.Context, req scoring.Request) (*ticket.Signal, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	data, err := c.doRequest(ctx, "/v1/analyze", body)
	if err != nil {
		return nil, fmt.Errorf("analyze ticket %s: %w", req.TicketID, err)
	}

	var sig ticket.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, fmt.Errorf("unmarshal signal for ticket %s: %w", req.TicketID, err)
	}
	if sig.Confidence < 0 || sig.Confidence > 1 {
		return nil, fmt.Errorf("ticket %s: confidence %v out of range", req.TicketID, sig.Confidence)
	}
	return &sig, nil
}

func (c *Client) doRequest(ctx context.Context, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", scoring.ErrUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: status %d: %s", scoring.ErrUnavailable, resp.StatusCode, string(data))
		case resp.StatusCode >= 400:
			return fmt.Errorf("scoring API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
