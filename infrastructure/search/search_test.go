package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/felixgeelhaar/agent-router/domain/search"
)

func TestSnippetCleaner(t *testing.T) {
	t.Parallel()

	c := NewSnippetCleaner()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "  Go 1.25 released  ", "Go 1.25 released"},
		{"bold", "Go <b>1.25</b> released", "Go **1.25** released"},
		{"script removed", "<p>hi</p><script>alert(1)</script>", "hi"},
		{"cjk passthrough", "最新 天气", "最新 天气"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := c.Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}); !errors.Is(err, search.ErrSearchFailed) {
		t.Errorf("empty endpoint error = %v, want ErrSearchFailed", err)
	}
	c, err := NewClient(Config{Endpoint: "http://localhost/search"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.maxResults != 5 {
		t.Errorf("maxResults = %d, want 5", c.maxResults)
	}
}

func TestClient_Query(t *testing.T) {
	t.Parallel()

	t.Run("parses results and sends query", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("q") != "golang news" {
				t.Errorf("q = %q", r.URL.Query().Get("q"))
			}
			if r.URL.Query().Get("count") != "2" {
				t.Errorf("count = %q", r.URL.Query().Get("count"))
			}
			if r.Header.Get("Authorization") != "Bearer secret" {
				t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
			}
			_, _ = w.Write([]byte(`{"results":[
				{"title":"One","url":"https://a","snippet":"first <em>hit</em>"},
				{"title":"Two","link":"https://b","content":"second"},
				{"title":"Three","url":"https://c","description":"third"}
			]}`))
		}))
		defer server.Close()

		c, err := NewClient(Config{Endpoint: server.URL, APIKey: "secret", MaxResults: 2})
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		results, err := c.Query(context.Background(), "golang news")
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("len(results) = %d, want 2", len(results))
		}
		if results[0].Snippet != "first _hit_" {
			t.Errorf("snippet = %q", results[0].Snippet)
		}
		if results[1].URL != "https://b" || results[1].Snippet != "second" {
			t.Errorf("second result = %+v", results[1])
		}
	})

	t.Run("reads nested web results", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"web":{"results":[{"title":"T","url":"https://x","description":"d"}]}}`))
		}))
		defer server.Close()

		c, _ := NewClient(Config{Endpoint: server.URL})
		results, err := c.Query(context.Background(), "x")
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(results) != 1 || results[0].Snippet != "d" {
			t.Errorf("results = %+v", results)
		}
	})

	t.Run("status error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c, _ := NewClient(Config{Endpoint: server.URL})
		_, err := c.Query(context.Background(), "x")
		if !errors.Is(err, search.ErrSearchFailed) {
			t.Errorf("error = %v, want ErrSearchFailed", err)
		}
		if !strings.Contains(err.Error(), "429") {
			t.Errorf("error %q should mention status", err)
		}
	})
}
