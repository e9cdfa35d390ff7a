// Package ai is a client for the text-completion provider used to draft articles.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com"
	DefaultModel      = "claude-sonnet-4-20250514"
	DefaultTimeout    = 90 * time.Second
	DefaultMaxRetries = 3
	DefaultMaxTokens  = 4096

	apiVersion = "2023-06-01"
)

// Request is one completion call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Response carries the completion text with its accounting.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	DurationMs   int64
	Attempts     int
}

// Completer is implemented by Client and by test fakes.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Config holds the provider settings. A zero MaxRetries means
// DefaultMaxRetries; a negative one disables retries.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to a Messages-style completion endpoint.
type Client struct {
	cfg   Config
	http  *http.Client
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(cl *Client) { cl.sleep = sleep }
}

// NewClient fills unset config fields with defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}

	c := &Client{
		cfg:   cfg,
		http:  &http.Client{},
		sleep: sleepContext,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends req, backing off on 429 responses. Each attempt is bounded
// by the configured timeout and a timed out attempt is not retried.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	body, err := json.Marshal(messagesRequest{
		Model:       c.cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      req.SystemPrompt,
		Messages:    []message{{Role: "user", Content: req.UserPrompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := c.now()
	for attempt := 0; ; attempt++ {
		parsed, retryAfter, err := c.attempt(ctx, body)
		if err == nil {
			resp := &Response{
				Text:         joinText(parsed),
				Model:        parsed.Model,
				InputTokens:  parsed.Usage.InputTokens,
				OutputTokens: parsed.Usage.OutputTokens,
				DurationMs:   c.now().Sub(start).Milliseconds(),
				Attempts:     attempt + 1,
			}
			if resp.Model == "" {
				resp.Model = c.cfg.Model
			}
			resp.CostUSD = Cost(resp.Model, resp.InputTokens, resp.OutputTokens)
			return resp, nil
		}

		var rl *RateLimitError
		if !errors.As(err, &rl) {
			return nil, err
		}
		if attempt >= c.cfg.MaxRetries {
			rl.Attempts = attempt + 1
			return nil, rl
		}

		wait := Backoff(attempt, retryAfter)
		log.Warn().Int("attempt", attempt+1).Dur("wait", wait).Msg("AI provider rate limited, backing off")
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// Backoff returns the larger of the server hint and 2^(attempt+1) seconds.
func Backoff(attempt int, retryAfter time.Duration) time.Duration {
	exp := time.Duration(math.Pow(2, float64(attempt+1))) * time.Second
	if retryAfter > exp {
		return retryAfter
	}
	return exp
}

func (c *Client) attempt(ctx context.Context, body []byte) (*messagesResponse, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, c.classify(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, c.classify(ctx, attemptCtx, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		return nil, retryAfter, &RateLimitError{RetryAfter: retryAfter}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, 0, &ProviderError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed messagesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, 0, fmt.Errorf("failed to parse completion response: %w", err)
	}
	return &parsed, 0, nil
}

func (c *Client) classify(parent, attemptCtx context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("ai completion: %w", parent.Err())
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Timeout: c.cfg.Timeout}
	}
	return fmt.Errorf("ai completion request: %w", err)
}

func joinText(r *messagesResponse) string {
	var parts []string
	for _, block := range r.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "")
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
