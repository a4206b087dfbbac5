// Package search provides the web-search capability port.
package search

import (
	"context"
	"errors"
)

// ErrSearchFailed indicates the search backend could not answer.
var ErrSearchFailed = errors.New("web search failed")

// Result is one ranked search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Searcher is the web-search capability port. Results are ranked best first.
type Searcher interface {
	Query(ctx context.Context, text string) ([]Result, error)
}
