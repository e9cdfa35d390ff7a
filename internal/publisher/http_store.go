package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPStore writes documents through a mutations endpoint authenticated with
// a bearer token.
type HTTPStore struct {
	baseURL string
	dataset string
	token   string
	client  *http.Client
}

// NewHTTPStore returns a store for baseURL/dataset. Missing settings surface
// as ErrNotConfigured on first use.
func NewHTTPStore(baseURL, dataset, token string, client *http.Client) *HTTPStore {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		dataset: dataset,
		token:   token,
		client:  client,
	}
}

func (s *HTTPStore) configured() bool {
	return s.baseURL != "" && s.dataset != "" && s.token != ""
}

type mutation struct {
	CreateOrReplace Document `json:"createOrReplace"`
}

func (s *HTTPStore) CreateOrReplace(ctx context.Context, doc Document) error {
	if !s.configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(map[string][]mutation{"mutations": {{CreateOrReplace: doc}}})
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	endpoint := fmt.Sprintf("%s/data/mutate/%s", s.baseURL, url.PathEscape(s.dataset))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return &UnavailableError{Op: "mutate", Err: err}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("document store rejected credentials (status %d): %w", resp.StatusCode, ErrNotConfigured)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return &UnavailableError{Op: "mutate", StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("document store rejected mutation (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (s *HTTPStore) Exists(ctx context.Context, id string) (bool, error) {
	if !s.configured() {
		return false, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/data/doc/%s/%s", s.baseURL, url.PathEscape(s.dataset), url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return false, &UnavailableError{Op: "get", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 500:
		return false, &UnavailableError{Op: "get", StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return false, fmt.Errorf("document store lookup failed (status %d)", resp.StatusCode)
	}

	var out struct {
		Documents []json.RawMessage `json:"documents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode lookup response: %w", err)
	}
	return len(out.Documents) > 0, nil
}
