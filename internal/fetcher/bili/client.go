// Package bili implements crawler.Fetcher against the Bilibili search API.
package bili

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bilimath/crawler/internal/crawler"
	"github.com/bilimath/crawler/internal/metrics"
)

// DefaultBaseURL is the production search endpoint.
const DefaultBaseURL = "https://api.bilibili.com/x/web-interface/search/type"

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config controls client behavior. Cookie is an opaque secret provisioned
// externally; the client never generates or stores credentials itself.
// MaxRetries and Backoff are taken as given: zero means no retries and no
// pause, with defaults owned by the config layer.
type Config struct {
	BaseURL    string
	UserAgent  string
	Referer    string
	Cookie     string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// Client issues search requests with bounded automatic retries on transient
// upstream failures. Connections are reused between calls; no other state is
// retained.
type Client struct {
	cfg        Config
	httpClient *http.Client
	sleep      func(time.Duration)
}

// New builds a Client, filling in defaults for unset fields.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Referer == "" {
		cfg.Referer = "https://www.bilibili.com/"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sleep:      time.Sleep,
	}
}

// Fetch retrieves one search page for the keyword. Responses with HTTP
// status 500/502/503/504 are retried up to MaxRetries times with a fixed
// Backoff; a successful response whose application code is non-zero returns
// *crawler.APIError and is never retried.
func (c *Client) Fetch(ctx context.Context, keyword string, page int) (crawler.SearchPage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.ObserveFetchRetry()
			select {
			case <-ctx.Done():
				return crawler.SearchPage{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
			default:
			}
			c.sleep(c.cfg.Backoff)
		}

		result, retryable, err := c.fetchOnce(ctx, keyword, page)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return crawler.SearchPage{}, err
		}
	}
	return crawler.SearchPage{}, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, keyword string, page int) (crawler.SearchPage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL, nil)
	if err != nil {
		return crawler.SearchPage{}, false, fmt.Errorf("build search request: %w", err)
	}

	query := url.Values{}
	query.Set("search_type", "video")
	query.Set("keyword", keyword)
	query.Set("page", strconv.Itoa(page))
	query.Set("order", "click")
	req.URL.RawQuery = query.Encode()

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Referer", c.cfg.Referer)
	if c.cfg.Cookie != "" {
		req.Header.Set("Cookie", c.cfg.Cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return crawler.SearchPage{}, true, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return crawler.SearchPage{}, true, fmt.Errorf("read search response: %w", err)
	}

	if isTransient(resp.StatusCode) {
		return crawler.SearchPage{}, true, fmt.Errorf("search api returned http %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return crawler.SearchPage{}, false, fmt.Errorf("search api returned http %d", resp.StatusCode)
	}

	pageResult, err := decodeSearchPage(body)
	if err != nil {
		return crawler.SearchPage{}, false, err
	}
	return pageResult, false, nil
}

func isTransient(status int) bool {
	switch status {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
