package strava

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stridelog-strava-sync/internal/metrics"
)

const (
	defaultBaseURL = "https://www.strava.com/api/v3"
	maxRetries     = 5
	initialDelay   = 1 * time.Second
	maxDelay       = 2 * time.Minute

	// Strava allows 200 requests per 15 minutes. Pace outbound calls well
	// under that so a bootstrap sync leaves headroom for other users.
	requestsPerSecond = 5
	requestBurst      = 10
)

// CredentialSource supplies a working access credential for a user. Token
// acquisition and refresh happen outside this engine; the source only has
// to return something currently usable.
type CredentialSource interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// Client is a Strava API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      CredentialSource
	logger     *slog.Logger
	limiter    *rate.Limiter
	tracker    *UsageTracker
}

// NewClient creates a new Strava API client
func NewClient(creds CredentialSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		creds:      creds,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		tracker:    NewUsageTracker(),
	}
}

// SetBaseURL overrides the API base URL (used in tests)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// UsageStatus returns the current rate limit usage as reported by Strava
func (c *Client) UsageStatus() UsageStatus {
	return c.tracker.Status()
}

// doRequest performs an authenticated GET with pacing and retries.
// Rate-limited (429) and server (5xx) responses are retried with
// exponential backoff; auth and client errors are returned immediately as
// *HTTPError.
func (c *Client) doRequest(ctx context.Context, userID, path, operation string) ([]byte, error) {
	accessToken, err := c.creds.AccessToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get access credential: %w", err)
	}

	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Info("retrying request", "path", path, "attempt", attempt, "delay_ms", delay.Milliseconds())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			if delay *= 2; delay > maxDelay {
				delay = maxDelay
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)

		if err != nil {
			lastErr = err
			c.logger.Error("request failed", "path", path, "error", err, "attempt", attempt)
			continue
		}

		c.parseRateLimitHeaders(resp.Header)
		metrics.StravaAPIRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()
		metrics.StravaAPIRequestDuration.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Observe(duration.Seconds())

		c.logger.Debug("strava_api_request",
			"operation", operation,
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", duration.Milliseconds())

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				lastErr = fmt.Errorf("failed to read response body: %w", err)
				continue
			}
			return body, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			if retryAfter := c.parseRetryAfter(resp.Header); retryAfter > 0 {
				delay = retryAfter
			}
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: "rate limited"}
			continue

		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: "server error"}
			continue

		default:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// parseRateLimitHeaders extracts rate limit usage from response headers
func (c *Client) parseRateLimitHeaders(headers http.Header) {
	limitHeader := headers.Get("X-RateLimit-Limit")
	usageHeader := headers.Get("X-RateLimit-Usage")
	if limitHeader == "" || usageHeader == "" {
		return
	}

	limits := strings.Split(limitHeader, ",")
	usages := strings.Split(usageHeader, ",")
	if len(limits) != 2 || len(usages) != 2 {
		return
	}

	limit15, _ := strconv.Atoi(strings.TrimSpace(limits[0]))
	limitDaily, _ := strconv.Atoi(strings.TrimSpace(limits[1]))
	usage15, _ := strconv.Atoi(strings.TrimSpace(usages[0]))
	usageDaily, _ := strconv.Atoi(strings.TrimSpace(usages[1]))

	c.tracker.Update(limit15, usage15, limitDaily, usageDaily)

	metrics.StravaRateLimitUsage.WithLabelValues(metrics.RateLimit15Min, metrics.BucketLimit).Set(float64(limit15))
	metrics.StravaRateLimitUsage.WithLabelValues(metrics.RateLimit15Min, metrics.BucketUsage).Set(float64(usage15))
	metrics.StravaRateLimitUsage.WithLabelValues(metrics.RateLimitDaily, metrics.BucketLimit).Set(float64(limitDaily))
	metrics.StravaRateLimitUsage.WithLabelValues(metrics.RateLimitDaily, metrics.BucketUsage).Set(float64(usageDaily))
}

// parseRetryAfter extracts retry delay from the Retry-After header
func (c *Client) parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	seconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
