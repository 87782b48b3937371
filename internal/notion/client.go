package notion

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

	"github.com/tildaslashalef/notesync/internal/loggy"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultAPIVersion is sent in the Notion-Version header
const DefaultAPIVersion = "2022-06-28"

// maxErrorBody caps how much of an error response is kept
const maxErrorBody = 64 << 10

// ClientConfig configures a Client
type ClientConfig struct {
	BaseURL           string        // API base URL
	APIVersion        string        // Notion-Version header value
	Token             string        // Integration token
	Proxy             string        // Optional HTTP(S) proxy URL
	Timeout           time.Duration // Per-call timeout
	RequestsPerSecond float64       // Client side rate limit, <= 0 disables it
	BurstLimit        int
}

// Client handles HTTP communication with the Notion API
type Client struct {
	baseURL    string
	apiVersion string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *loggy.Logger
}

// NewClient creates a new HTTP client authenticated with cfg.Token
func NewClient(cfg ClientConfig, logger *loggy.Logger) (*Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	// oauth2 picks the base transport up from the context
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: transport})
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})

	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = cfg.Timeout

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiVersion: apiVersion,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		limiter:    newLimiter(cfg.RequestsPerSecond, cfg.BurstLimit),
		logger:     logger,
	}, nil
}

// newLimiter creates a token bucket limiter, unlimited when rps is not positive
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// do sends one API request and decodes a 2xx response into out when out is not nil
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Notion-Version", c.apiVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Notion API call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newRemoteError(resp.StatusCode, respBody)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
