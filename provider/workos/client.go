// Package workos implements provider.Lister against the WorkOS events API.
package workos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/mirror/event"
	"github.com/xraph/mirror/provider"
	"github.com/xraph/mirror/ratelimit"
)

// Defaults for the client.
const (
	DefaultBaseURL    = "https://api.workos.com"
	DefaultTimeout    = 10 * time.Second
	DefaultMaxTries   = 5
	DefaultMaxElapsed = time.Minute
)

const maxErrorBody = 4 << 10 // 4KB cap on error body reads

// compile-time interface check.
var _ provider.Lister = (*Client)(nil)

// Client lists events with one rate-limited, retried HTTP round trip per
// page.
type Client struct {
	apiKey     string
	baseURL    string
	http       *http.Client
	timeout    time.Duration
	limiter    *ratelimit.Limiter
	rate       int
	maxTries   uint
	maxElapsed time.Duration
	initial    time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each HTTP round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRateLimit shares limiter across clients and caps calls at rps per
// API key. rps <= 0 disables limiting.
func WithRateLimit(limiter *ratelimit.Limiter, rps int) Option {
	return func(c *Client) {
		c.limiter = limiter
		c.rate = rps
	}
}

// WithRetry sets the retry budget for transient failures.
func WithRetry(maxTries uint, maxElapsed time.Duration) Option {
	return func(c *Client) {
		c.maxTries = maxTries
		c.maxElapsed = maxElapsed
	}
}

// WithBackOff sets the exponential backoff bounds between retries.
func WithBackOff(initial, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.initial = initial
		c.maxDelay = maxDelay
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client authenticated with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		http:       &http.Client{},
		timeout:    DefaultTimeout,
		limiter:    ratelimit.New(),
		rate:       ratelimit.DefaultRate,
		maxTries:   DefaultMaxTries,
		maxElapsed: DefaultMaxElapsed,
		initial:    500 * time.Millisecond,
		maxDelay:   10 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// listResponse is the body of GET /events.
type listResponse struct {
	Data         []*event.Event `json:"data"`
	ListMetadata struct {
		After *string `json:"after"`
	} `json:"list_metadata"`
}

// ListEvents fetches one page. Network errors, 429 and 5xx responses are
// retried with exponential backoff; other API errors are returned at once as
// *provider.APIError.
func (c *Client) ListEvents(ctx context.Context, opts provider.ListOpts) (*provider.Page, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxInterval = c.maxDelay

	attempt := 0
	op := func() (*provider.Page, error) {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, c.apiKey, c.rate); err != nil {
				return nil, backoff.Permanent(err)
			}
		}

		page, retryAfter, err := c.fetch(ctx, opts)
		if err == nil {
			return page, nil
		}
		if !provider.IsRetryable(err) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}

		c.logger.WarnContext(ctx, "list events failed, retrying", "attempt", attempt, "after", opts.After, "error", err)
		if retryAfter > 0 {
			return nil, backoff.RetryAfter(retryAfter)
		}
		return nil, err
	}

	page, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithMaxElapsedTime(c.maxElapsed),
	)
	if err != nil {
		return nil, fmt.Errorf("workos: list events: %w", err)
	}
	return page, nil
}

// fetch performs one round trip. The int result is the server's Retry-After
// in seconds, or zero.
func (c *Client) fetch(ctx context.Context, opts provider.ListOpts) (*provider.Page, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events?"+query(opts).Encode(), http.NoBody)
	if err != nil {
		return nil, 0, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mirror/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, retryAfter, apiError(resp)
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, fmt.Errorf("decode response: %w", err)
	}

	page := &provider.Page{Data: body.Data}
	if body.ListMetadata.After != nil {
		page.After = *body.ListMetadata.After
	}
	return page, 0, nil
}

func query(opts provider.ListOpts) url.Values {
	q := url.Values{}
	for _, t := range opts.Types {
		q.Add("events", t)
	}
	if opts.After != "" {
		q.Set("after", opts.After)
	}
	if opts.RangeStart != nil {
		q.Set("range_start", opts.RangeStart.UTC().Format(time.RFC3339Nano))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	return q
}

func apiError(resp *http.Response) error {
	apiErr := &provider.APIError{StatusCode: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Message
	}
	return apiErr
}
