package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/music-miko/t/internal/domain"
)

// ErrAPINotConfigured is returned when the base URL or API key is missing
var ErrAPINotConfigured = errors.New("job api not configured")

const maxAPIBodyBytes = 4 << 20

// JobAPIClient submits download jobs and polls their status
type JobAPIClient struct {
	config *domain.JobAPIConfig
	client *http.Client
	policy RetryPolicy
	logger *zap.Logger
}

// NewJobAPIClient creates a client on the shared connection pool
func NewJobAPIClient(config *domain.JobAPIConfig, logger *zap.Logger) *JobAPIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobAPIClient{
		config: config,
		client: SharedHTTPClient(),
		policy: FixedPolicy(config.HTTPRetries, config.HTTPRetryDelay),
		logger: logger,
	}
}

// SubmitJob asks the API to start downloading query
func (c *JobAPIClient) SubmitJob(ctx context.Context, query string, variant domain.Variant) (any, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("isVideo", strconv.FormatBool(variant.IsVideo()))
	return c.request(ctx, c.config.SubmitPath, params)
}

// PollJob fetches the current status payload for a job
func (c *JobAPIClient) PollJob(ctx context.Context, jobID string) (any, error) {
	params := url.Values{}
	params.Set("job_id", jobID)
	return c.request(ctx, c.config.StatusPath, params)
}

// request performs a GET with bounded retries. A 401/403 returns a
// *domain.HardAPIError immediately; an exhausted budget returns an error
// wrapping domain.ErrTransient.
func (c *JobAPIClient) request(ctx context.Context, endpoint string, params url.Values) (any, error) {
	if c.config.BaseURL == "" || c.config.APIKey == "" {
		return nil, ErrAPINotConfigured
	}

	endpointURL := strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	if params.Get("api_key") == "" {
		params.Set("api_key", c.config.APIKey)
	}
	fullURL := endpointURL + "?" + params.Encode()

	attempts := c.policy.Attempts()
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.policy.Wait(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		payload, retry, err := c.do(ctx, fullURL)
		if err == nil {
			return payload, nil
		}
		if !retry {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		c.logger.Warn("Job API request failed",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
	}

	return nil, fmt.Errorf("%w: %s failed after %d attempts: %v", domain.ErrTransient, endpoint, attempts, lastErr)
}

// do performs one attempt; retry reports whether the failure is transient
func (c *JobAPIClient) do(ctx context.Context, fullURL string) (payload any, retry bool, err error) {
	callCtx := ctx
	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIBodyBytes))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, domain.NewHardAPIError(resp.StatusCode, string(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, true, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	payload, err = DecodePayload(body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	return payload, false, nil
}
