// Package feed fetches RSS, Atom and JSON feeds and normalizes their items.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 10 << 20

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	acceptFeeds      = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"
	acceptLanguage   = "he-IL,he;q=0.9,en-US;q=0.8,en;q=0.7"
)

// Item is one normalized feed entry.
type Item struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Description string     `json:"description"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Fetcher retrieves and parses feeds.
type Fetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	maxBytes int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithRateLimit paces outgoing requests to rps per second. Zero disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(f *Fetcher) {
		if rps <= 0 {
			f.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewFetcher creates a Fetcher with a 30 second timeout and a 10 MiB body cap.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{},
		timeout:  DefaultTimeout,
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads feedURL and parses it. A feed with no items yields an empty
// slice and no error.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]Item, error) {
	body, err := f.FetchRaw(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	items, err := Parse(body)
	if err != nil {
		var nx *NotXMLError
		if errors.As(err, &nx) {
			nx.URL = feedURL
			return nil, nx
		}
		return nil, fmt.Errorf("parse %s: %w", feedURL, err)
	}

	log.Debug().Str("url", feedURL).Int("items", len(items)).Msg("Fetched feed")
	return items, nil
}

// FetchRaw downloads feedURL with browser-like headers.
func (f *Fetcher) FetchRaw(ctx context.Context, feedURL string) ([]byte, error) {
	u, err := url.Parse(feedURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid feed url %q", feedURL)
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", feedURL, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", acceptFeeds)
	req.Header.Set("Accept-Language", acceptLanguage)
	req.Header.Set("Referer", u.Scheme+"://"+u.Host+"/")

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, &TimeoutError{URL: feedURL, Timeout: f.timeout}
		}
		return nil, fmt.Errorf("fetch %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: feedURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, &TimeoutError{URL: feedURL, Timeout: f.timeout}
		}
		return nil, fmt.Errorf("read %s: %w", feedURL, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &EmptyBodyError{URL: feedURL}
	}
	return body, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
