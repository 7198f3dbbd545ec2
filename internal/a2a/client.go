package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/quorum/internal/credential"
)

const DefaultTimeout = 60 * time.Second

// ErrRemote marks an error envelope returned by the remote agent.
var ErrRemote = errors.New("remote agent error")

// Client sends tasks to specialist agents. It never retries.
type Client struct {
	http    *http.Client
	timeout atomic.Int64
}

// NewClient returns a client with a per-call timeout. When creds is non-nil
// every request carries its bearer token.
func NewClient(timeout time.Duration, creds credential.Provider) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{http: credential.HTTPClient(creds, &http.Client{})}
	c.timeout.Store(int64(timeout))
	return c
}

// SetTimeout changes the per-call timeout for subsequent calls.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout.Store(int64(d))
	}
}

// SendTask posts a single-text tasks/send to base and returns the reply text.
func (c *Client) SendTask(ctx context.Context, base, text string) (string, error) {
	return c.Send(ctx, base, UserMessage(text))
}

// Send posts msg as tasks/send to {base}/a2a and returns the extracted text.
func (c *Client) Send(ctx context.Context, base string, msg Message) (string, error) {
	base = strings.TrimRight(base, "/")
	req := NewSendRequest(uuid.New().String(), msg)

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.timeout.Load()))
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/a2a", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", describeTransportError(base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", describeTransportError(base, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", describeStatus(base, resp.StatusCode, data)
	}

	var rpc Response
	if err := json.Unmarshal(data, &rpc); err != nil {
		return "", fmt.Errorf("decode response from %s: %w", base, err)
	}
	if rpc.Error != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrRemote, base, rpc.Error)
	}
	if rpc.Result == nil {
		return string(data), nil
	}
	return ExtractText(rpc.Result), nil
}

// Card fetches the agent card from {base}/.well-known/agent.json.
func (c *Client) Card(ctx context.Context, base string) (*Card, error) {
	var card Card
	if err := c.getJSON(ctx, strings.TrimRight(base, "/")+"/.well-known/agent.json", &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// Health fetches {base}/health.
func (c *Client) Health(ctx context.Context, base string) (*Health, error) {
	var h Health
	if err := c.getJSON(ctx, strings.TrimRight(base, "/")+"/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.timeout.Load()))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return describeTransportError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return describeStatus(url, resp.StatusCode, data)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func describeTransportError(base string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("timeout connecting to agent at %s, the agent may be overloaded or the network is slow: %w", base, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("failed to connect to agent at %s, check that it is running and reachable: %w", base, err)
	}
	return fmt.Errorf("call agent at %s: %w", base, err)
}

func describeStatus(base string, status int, body []byte) error {
	detail := ""
	var rpc Response
	if err := json.Unmarshal(body, &rpc); err == nil && rpc.Error != nil {
		detail = " - " + rpc.Error.Message
	} else if len(body) > 0 {
		detail = " - " + truncate(string(body), 200)
	}
	if status == http.StatusForbidden {
		return fmt.Errorf("agent at %s returned 403 Forbidden, the model provider likely rejected the request (check credentials or token validity)%s", base, detail)
	}
	return fmt.Errorf("agent at %s returned status %d%s", base, status, detail)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
