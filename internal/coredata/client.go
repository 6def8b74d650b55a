// Package coredata is the HTTP client for the record-store service. Every
// read or write of rules, contacts, and notification logs goes through this
// client; the alerting side never touches the record store's storage
// directly.
package coredata

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a retrying JSON client over a pooled keep-alive transport.
// Transport failures and 5xx answers are retried with a linear backoff of
// retryDelay * attempt; 404 and other 4xx answers are terminal.
type Client struct {
	baseURL    string
	parsedURL  *url.URL
	httpClient *http.Client
	transport  *http.Transport
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// Options configures a Client. Zero values fall back to usable defaults.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// New creates a client for the record store at rawURL.
func New(rawURL string, opts Options) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSuffix(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid core data URL: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL:   parsed.String(),
		parsedURL: parsed,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		transport:  transport,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
	}, nil
}

// Close releases the pooled connections. The client must not be used after.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

// resolveURL builds a full URL from the base URL and the given path segments.
// If the last segment contains a query string (e.g. "logs?limit=10"), it is
// split so JoinPath only receives the path portion and the query is appended.
func (c *Client) resolveURL(pathSegments ...string) string {
	if len(pathSegments) == 0 {
		return c.parsedURL.String()
	}
	last := pathSegments[len(pathSegments)-1]
	if pathPart, query, ok := strings.Cut(last, "?"); ok {
		pathSegments[len(pathSegments)-1] = pathPart
		result := c.parsedURL.JoinPath(pathSegments...)
		result.RawQuery = query
		return result.String()
	}
	return c.parsedURL.JoinPath(pathSegments...).String()
}
