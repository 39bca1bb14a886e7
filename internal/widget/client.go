// Package widget implements the embeddable widget's streaming client: it
// posts a chat turn, consumes the SSE response, and applies the retry and
// cooldown policy on failures.
package widget

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mverkuijl/babbelbox/internal/domain"
)

// State is the connection state of the client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStreaming
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

// RateLimitedError is returned when the backend answers 429. The widget
// shows RetryAfter as a cooldown message instead of retrying immediately.
type RateLimitedError struct {
	RetryAfter      int
	Reason          string
	CaptchaRequired bool
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.CaptchaRequired {
		return fmt.Sprintf("verification required: %s", e.Reason)
	}
	return fmt.Sprintf("rate limited, retry after %ds: %s", e.RetryAfter, e.Reason)
}

// ErrRetriesExhausted is wrapped around the last attempt's failure once the
// retry budget is spent.
var ErrRetriesExhausted = errors.New("all connection attempts failed")

const (
	defaultMaxRetries = 2
	defaultBaseDelay  = 1000 * time.Millisecond
	defaultMaxDelay   = 5000 * time.Millisecond
	maxJitter         = 1000 * time.Millisecond
)

// Config holds widget client settings.
type Config struct {
	BaseURL    string
	TenantID   string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     bool
	HTTPClient *http.Client
}

// Callbacks receive stream events as they arrive. Nil callbacks are skipped.
type Callbacks struct {
	OnPersona func(domain.PersonaEvent)
	OnTyping  func()
	OnToken   func(domain.ContentEvent)
	OnDone    func(domain.DoneEvent)
	OnError   func(error)
}

// Client is the widget's streaming consumer. One Send runs at a time; the
// client can be disconnected from another goroutine.
type Client struct {
	cfg Config
	cb  Callbacks

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// NewClient creates a widget client. Zero retry/backoff values fall back to
// the defaults (2 retries, 1s base, 5s cap).
func NewClient(cfg Config, cb Callbacks) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{cfg: cfg, cb: cb}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Disconnect aborts an in-flight stream. Buffered but unprocessed events
// are dropped; no callback fires after this returns.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = StateDisconnected
}

// Send posts one chat turn and consumes the response stream, invoking the
// callbacks per event. HTTP-level failures are retried with capped
// exponential backoff; a 429 is surfaced immediately as *RateLimitedError.
func (c *Client) Send(ctx context.Context, conversationID, message string) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.state = StateDisconnected
		c.mu.Unlock()
	}()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries+1; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(attempt-1, c.cfg.BaseDelay, c.cfg.MaxDelay)
			if c.cfg.Jitter {
				delay += time.Duration(rand.Int63n(int64(maxJitter)))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.attempt(ctx, conversationID, message)
		if err == nil {
			return nil
		}
		lastErr = err

		// Policy rejections and cancellation are not transient; retrying
		// would only dig the hole deeper.
		var rle *RateLimitedError
		if errors.As(err, &rle) || errors.Is(err, context.Canceled) {
			c.emitError(err)
			return err
		}
	}

	err := fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
	c.emitError(err)
	return err
}

// attempt runs one POST + stream consumption cycle.
func (c *Client) attempt(ctx context.Context, conversationID, message string) error {
	c.setState(StateConnecting)

	payload, err := json.Marshal(map[string]string{
		"content":        message,
		"conversationId": conversationID,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/ai/query", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-Tenant-ID", c.cfg.TenantID)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return parseRateLimited(resp.Body)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.setState(StateConnected)
	return c.consume(ctx, resp.Body)
}

// consume reads frames until a terminal event or disconnect. A stream that
// ends without a terminal event is a protocol violation and reported as an
// error.
func (c *Client) consume(ctx context.Context, body io.Reader) error {
	c.setState(StateStreaming)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitFrames)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return context.Canceled
		}
		payload := framePayload(scanner.Text())
		if payload == "" {
			continue
		}
		ev, err := domain.ParseStreamEvent([]byte(payload))
		if err != nil {
			return fmt.Errorf("malformed frame: %w", err)
		}

		switch ev := ev.(type) {
		case domain.PersonaEvent:
			if c.cb.OnPersona != nil {
				c.cb.OnPersona(ev)
			}
		case domain.TypingEvent:
			if c.cb.OnTyping != nil {
				c.cb.OnTyping()
			}
		case domain.ContentEvent:
			if c.cb.OnToken != nil {
				c.cb.OnToken(ev)
			}
		case domain.DoneEvent:
			if c.cb.OnDone != nil {
				c.cb.OnDone(ev)
			}
			return nil
		case domain.ErrorEvent:
			err := fmt.Errorf("stream error: %s", ev.Message)
			c.emitError(err)
			return nil // terminal and delivered; not a transport failure
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return fmt.Errorf("read stream: %w", err)
	}
	if ctx.Err() != nil {
		return context.Canceled
	}
	return errors.New("stream closed without terminal event")
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) emitError(err error) {
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

// backoffDelay computes min(base * 2^(attempt-1), max).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// splitFrames is a bufio.SplitFunc that tokenizes on the blank line between
// SSE frames.
func splitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// framePayload extracts the JSON payload from a frame's data line.
func framePayload(frame string) string {
	for _, line := range strings.Split(frame, "\n") {
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimPrefix(line, "data: ")
		}
	}
	return ""
}

// parseRateLimited decodes a 429 body into a RateLimitedError.
func parseRateLimited(body io.Reader) error {
	var payload struct {
		Reason          string `json:"reason"`
		RetryAfter      int    `json:"retryAfter"`
		CaptchaRequired bool   `json:"captchaRequired"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return &RateLimitedError{RetryAfter: 1, Reason: "rate limited"}
	}
	return &RateLimitedError{
		RetryAfter:      payload.RetryAfter,
		Reason:          payload.Reason,
		CaptchaRequired: payload.CaptchaRequired,
	}
}
