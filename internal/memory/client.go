// Package memory fetches agent memory entries over the gateway's HTTP
// side channel. Lookups fail soft: every error resolves to an empty
// list so UI consumers never need defensive handling.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Onepiecedad/skyland-command-center/internal/metrics"
)

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Entry is a single memory record returned by the side channel.
type Entry struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	Score     float64 `json:"score,omitempty"`
	Source    string  `json:"source,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// Client wraps the memory REST endpoints.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewClient creates a memory side-channel client. The metrics
// collector may be nil.
func NewClient(baseURL string, m *metrics.Metrics, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		metrics:    m,
		logger:     logger.With().Str("component", "memory").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type entriesResponse struct {
	Entries []Entry `json:"entries"`
}

// Search runs a memory search. Never returns an error; failures are
// logged and yield an empty list.
func (c *Client) Search(ctx context.Context, query string, limit int) []Entry {
	body, err := json.Marshal(searchRequest{Query: query, Limit: limit})
	if err != nil {
		c.record("search", "error")
		c.logger.Warn().Err(err).Msg("memory search request encoding failed")
		return []Entry{}
	}

	entries, err := c.fetch(ctx, http.MethodPost, "/api/v1/alex/search", bytes.NewReader(body))
	if err != nil {
		c.record("search", "error")
		c.logger.Warn().Err(err).Str("query", query).Msg("memory search failed")
		return []Entry{}
	}

	c.record("search", "ok")
	return entries
}

// List fetches recent memory entries. Never returns an error; failures
// are logged and yield an empty list.
func (c *Client) List(ctx context.Context, limit int) []Entry {
	path := "/api/v1/alex/list"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	entries, err := c.fetch(ctx, http.MethodGet, path, nil)
	if err != nil {
		c.record("list", "error")
		c.logger.Warn().Err(err).Msg("memory list failed")
		return []Entry{}
	}

	c.record("list", "ok")
	return entries
}

// Ping probes the side channel. Unlike the lookups it reports the
// error, so readiness checks can observe it.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.fetch(ctx, http.MethodGet, "/api/v1/alex/list?limit=1", nil)
	return err
}

func (c *Client) fetch(ctx context.Context, method, path string, body io.Reader) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("memory API error (status %d): %s", resp.StatusCode, respBody)
	}

	var decoded entriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if decoded.Entries == nil {
		return []Entry{}, nil
	}
	return decoded.Entries, nil
}

func (c *Client) record(op, status string) {
	if c.metrics != nil {
		c.metrics.RecordMemoryLookup(op, status)
	}
}
