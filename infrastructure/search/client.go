// Package search provides an HTTP client for JSON web-search APIs.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
	"github.com/felixgeelhaar/agent-router/domain/search"
)

// Config configures the search client.
type Config struct {
	// Endpoint is queried with GET ?q=<text>&count=<n>.
	Endpoint   string
	APIKey     string
	MaxResults int
	Timeout    time.Duration
}

// ConfigFrom maps router search settings to a client configuration.
func ConfigFrom(c domainconfig.SearchConfig) Config {
	return Config{
		Endpoint:   c.Endpoint,
		APIKey:     c.APIKey,
		MaxResults: c.MaxResults,
	}
}

// Client queries a JSON search API. The response may list hits under
// "results", "items" or "web.results"; each hit's snippet is read from
// "snippet", "content" or "description".
type Client struct {
	endpoint   string
	apiKey     string
	maxResults int
	http       *http.Client
	cleaner    *SnippetCleaner
}

// NewClient creates a new search client.
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", search.ErrSearchFailed)
	}
	if _, err := url.Parse(config.Endpoint); err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %v", search.ErrSearchFailed, err)
	}
	maxResults := config.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint:   config.Endpoint,
		apiKey:     config.APIKey,
		maxResults: maxResults,
		http:       &http.Client{Timeout: timeout},
		cleaner:    NewSnippetCleaner(),
	}, nil
}

type hit struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

type response struct {
	Results []hit `json:"results"`
	Items   []hit `json:"items"`
	Web     struct {
		Results []hit `json:"results"`
	} `json:"web"`
}

func (r response) hits() []hit {
	switch {
	case len(r.Results) > 0:
		return r.Results
	case len(r.Items) > 0:
		return r.Items
	default:
		return r.Web.Results
	}
}

// Query implements search.Searcher.
func (c *Client) Query(ctx context.Context, text string) ([]search.Result, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", search.ErrSearchFailed, err)
	}
	q := u.Query()
	q.Set("q", text)
	q.Set("count", strconv.Itoa(c.maxResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", search.ErrSearchFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", search.ErrSearchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", search.ErrSearchFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", search.ErrSearchFailed, resp.StatusCode)
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse body: %v", search.ErrSearchFailed, err)
	}

	hits := parsed.hits()
	results := make([]search.Result, 0, min(len(hits), c.maxResults))
	for _, h := range hits {
		if len(results) == c.maxResults {
			break
		}
		snippet := h.Snippet
		if snippet == "" {
			snippet = h.Content
		}
		if snippet == "" {
			snippet = h.Description
		}
		link := h.URL
		if link == "" {
			link = h.Link
		}
		results = append(results, search.Result{
			Title:   c.cleaner.Clean(h.Title),
			Snippet: c.cleaner.Clean(snippet),
			URL:     link,
		})
	}
	return results, nil
}

var _ search.Searcher = (*Client)(nil)
