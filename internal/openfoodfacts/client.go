// Package openfoodfacts reads food products from the public Open Food Facts
// search API.
package openfoodfacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client queries the Open Food Facts search endpoint.
type Client struct {
	http      *http.Client
	catalog   Catalog
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another Open Food Facts instance (or a
// test server).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.catalog.BaseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithPageSize overrides the number of products requested per category.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.catalog.PageSize = n
		}
	}
}

// WithUserAgent sets the User-Agent header. Open Food Facts asks API users
// to identify their application.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient returns a client for the given catalog.
func NewClient(catalog Catalog, opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		catalog:   catalog,
		userAgent: "PurBeurre/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Catalog returns the catalog the client queries, after options.
func (c *Client) Catalog() Catalog {
	return c.catalog
}

// Search fetches the products of one catalog category.
// A non-200 answer is an error.
func (c *Client) Search(ctx context.Context, category string) (*SearchResult, error) {
	u := c.catalog.SearchURL(category)
	if u == "" {
		return nil, fmt.Errorf("openfoodfacts: unknown category %q", category)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("openfoodfacts: building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openfoodfacts: searching %s: %w", category, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("openfoodfacts: searching %s: status %d: %s",
			category, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// UseNumber keeps nutriment values as written ("3.0" stays "3.0").
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var result SearchResult
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("openfoodfacts: decoding %s results: %w", category, err)
	}
	return &result, nil
}
