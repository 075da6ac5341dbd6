package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/scrobtools/scrob/internal/shared"
)

// defaultRetryAfter is used when a 429 response carries no Retry-After header.
const defaultRetryAfter = 60 * time.Second

// HTTPError is a non-2xx response surfaced to the caller with its body intact,
// so provider wrappers can decode API-level error payloads.
type HTTPError struct {
	Provider string
	Status   int
	Body     []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.Status)
}

// Client is the shared HTTP core behind every provider wrapper.
//
// It enforces a per-host minimum request spacing, retries a 429 exactly once
// after honoring Retry-After, and trips a circuit breaker when a host fails
// repeatedly so a dead provider cannot stall a whole enrichment run.
type Client struct {
	name      string
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[[]byte]
	userAgent string
	logger    *log.Logger
}

// NewClient creates a provider client named name with the given minimum
// spacing between requests. A nil httpClient gets a fresh client with
// [DefaultTimeout]; a nil logger silences the client.
func NewClient(name string, minInterval time.Duration, httpClient *http.Client, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	settings := gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 30 * time.Second,
	}

	return &Client{
		name:    name,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:  logger.With("provider", name),
	}
}

// SetUserAgent sets the User-Agent header sent on every request.
func (c *Client) SetUserAgent(ua string) {
	c.userAgent = ua
}

// GetJSON fetches rawURL and decodes the JSON response body into out.
// A nil out discards the body after the status check.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, rawURL, header, true)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: %s circuit open", shared.ErrProviderUnavailable, c.name)
	}
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", c.name, err)
	}
	return nil
}

// fetch performs one rate-limited request. On a 429 it sleeps for the
// Retry-After duration and retries once; the second 429 is terminal.
func (c *Client) fetch(ctx context.Context, rawURL string, header http.Header, retryOn429 bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", c.name, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", c.name, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if !retryOn429 {
			return nil, fmt.Errorf("%w: %s still throttled after retry", shared.ErrRateLimited, c.name)
		}
		delay := retryAfter(resp)
		c.logger.Warn("rate limited, backing off", "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return c.fetch(ctx, rawURL, header, false)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Provider: c.name, Status: resp.StatusCode, Body: body}
	}

	return body, nil
}

// retryAfter parses the Retry-After header, defaulting when absent or bogus.
func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}
