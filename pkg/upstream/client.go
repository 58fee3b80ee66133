// Package upstream provides the HTTP client shared by all outbound
// integrations. Every request runs as a task on the upstream's scheduler;
// optional caller-side retries re-enter the scheduler for each attempt.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/tmdb-discover-gateway/pkg/scheduler"
	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
)

// maxErrorBody bounds how much of an error response ends up in Error.Message.
const maxErrorBody = 512

// Config holds the client configuration.
type Config struct {
	// BaseURL is prepended to every endpoint, e.g. "https://api.themoviedb.org/3".
	BaseURL string

	// UserAgent is sent with every request.
	UserAgent string

	// Headers are static headers sent with every request (API keys, versions).
	Headers map[string]string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	Retry RetryConfig
}

// DefaultConfig returns a configuration for baseURL without retries.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "tmdb-discover-gateway/1.0",
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client performs scheduled HTTP calls against one upstream.
type Client struct {
	httpClient *http.Client
	sched      *scheduler.Scheduler
	config     Config
	logger     zerolog.Logger
}

// New creates a client bound to the given scheduler.
func New(cfg Config, sched *scheduler.Scheduler, logger zerolog.Logger) (*Client, error) {
	if sched == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sched:      sched,
		config:     cfg,
		logger:     logger.With().Str("upstream", sched.Name()).Logger(),
	}, nil
}

// Name returns the upstream name of the underlying scheduler.
func (c *Client) Name() string {
	return c.sched.Name()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Get performs a GET request and returns the response body.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, header http.Header) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, params, nil, header)
}

// PostJSON marshals body and POSTs it, returning the response body.
func (c *Client) PostJSON(ctx context.Context, endpoint string, body any, header http.Header) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	return c.do(ctx, http.MethodPost, endpoint, nil, payload, h)
}

func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body []byte, header http.Header) ([]byte, error) {
	name := c.sched.Name()
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(name).Observe(time.Since(startTime).Seconds())
	}()

	target := strings.TrimRight(c.config.BaseURL, "/") + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	attempt := func() ([]byte, error) {
		return c.sched.Do(ctx, func(taskCtx context.Context) ([]byte, error) {
			return c.roundTrip(taskCtx, method, target, endpoint, body, header)
		})
	}

	if c.config.Retry.MaxAttempts == 1 {
		return attempt()
	}

	data, err := retry.DoWithData(attempt,
		retry.Context(ctx),
		retry.Attempts(uint(c.config.Retry.MaxAttempts)),
		retry.DelayType(c.config.Retry.delayType()),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			class := ClassOf(err)
			retriesTotal.WithLabelValues(name, string(class)).Inc()
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("error_class", string(class)).
				Uint("attempt", n+1).
				Msg("Retrying upstream request")
		}),
	)
	if err != nil && isRetryable(err) {
		retryExhaustedTotal.WithLabelValues(name).Inc()
		c.logger.Warn().
			Err(err).
			Str("endpoint", endpoint).
			Int("max_attempts", c.config.Retry.MaxAttempts).
			Msg("Retry attempts exhausted")
	}
	return data, err
}

// roundTrip executes one HTTP exchange inside a scheduler task.
func (c *Client) roundTrip(ctx context.Context, method, target, endpoint string, body []byte, header http.Header) ([]byte, error) {
	name := c.sched.Name()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(name, string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(name, "network_error").Inc()
		return nil, &Error{
			Upstream: name,
			Endpoint: endpoint,
			Class:    classifyError(nil, err),
			Message:  "request failed",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(name, string(ErrorClassNetwork)).Inc()
		return nil, &Error{
			Upstream:   name,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	requestsTotal.WithLabelValues(name, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classifyError(resp, nil)
		errorsTotal.WithLabelValues(name, string(class)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream request error")

		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = resp.Status
		}
		return nil, &Error{
			Upstream:   name,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    msg,
		}
	}

	return data, nil
}
