package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL      = "https://api.congress.gov/v3"
	DefaultHourlyLimit  = 5000
	defaultTimeout      = 60 * time.Second
	defaultMaxRetries   = 3
	defaultRetryBackoff = 5 * time.Second
	maxPageSize         = 250
)

// ClientConfig configures a CongressClient. Zero values fall back to defaults.
type ClientConfig struct {
	BaseURL      string
	APIKey       string
	HourlyLimit  int
	RequestDelay time.Duration // overrides the delay derived from HourlyLimit
	MaxRetries   int
	RetryBackoff time.Duration
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// RequestDelay is the minimum spacing between calls that keeps a client
// under an hourly request limit: ceil(3600000 ms / limit)
func RequestDelay(hourlyLimit int) time.Duration {
	if hourlyLimit <= 0 {
		return 0
	}
	ms := (3_600_000 + hourlyLimit - 1) / hourlyLimit
	return time.Duration(ms) * time.Millisecond
}

// CongressClient handles communication with the Congress.gov API.
// All calls made through one client share a single limiter, so the minimum
// delay holds across bills and sub-resources alike.
type CongressClient struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	delay      time.Duration
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// NewCongressClient creates a new Congress.gov API client
func NewCongressClient(cfg ClientConfig) *CongressClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HourlyLimit <= 0 {
		cfg.HourlyLimit = DefaultHourlyLimit
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	delay := cfg.RequestDelay
	if delay <= 0 {
		delay = RequestDelay(cfg.HourlyLimit)
	}

	return &CongressClient{
		client:     cfg.HTTPClient,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(rate.Every(delay), 1),
		delay:      delay,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		logger:     cfg.Logger,
	}
}

// Validate reports whether the client has the credentials it needs
func (c *CongressClient) Validate() error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Delay returns the enforced delay between requests
func (c *CongressClient) Delay() time.Duration {
	return c.delay
}

// Get fetches path with the given query parameters and decodes the JSON body into out
func (c *CongressClient) Get(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.fetchWithRetry(ctx, path, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransformError{Reason: fmt.Sprintf("decode %s: %v", path, err)}
	}
	return nil
}

// FetchCurrentCongress returns the number of the sitting congress
func (c *CongressClient) FetchCurrentCongress(ctx context.Context) (int, error) {
	var resp currentCongressResponse
	if err := c.Get(ctx, "/congress/current", nil, &resp); err != nil {
		return 0, fmt.Errorf("failed to fetch current congress: %w", err)
	}
	return resp.Congress.Number, nil
}

// ListBills retrieves one page of bills for a congress and bill type
func (c *CongressClient) ListBills(ctx context.Context, congress int, billType string, opts ListOptions) (*BillPage, error) {
	if opts.Limit <= 0 || opts.Limit > maxPageSize {
		opts.Limit = maxPageSize
	}

	params := url.Values{}
	params.Set("offset", strconv.Itoa(opts.Offset))
	params.Set("limit", strconv.Itoa(opts.Limit))
	if opts.Sort != "" {
		params.Set("sort", opts.Sort)
	}
	if !opts.FromDateTime.IsZero() {
		params.Set("fromDateTime", opts.FromDateTime.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if !opts.ToDateTime.IsZero() {
		params.Set("toDateTime", opts.ToDateTime.UTC().Format("2006-01-02T15:04:05Z"))
	}

	var resp billListResponse
	path := fmt.Sprintf("/bill/%d/%s", congress, billType)
	if err := c.Get(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("failed to list %s bills for congress %d: %w", billType, congress, err)
	}

	return &BillPage{
		Bills:   resp.Bills,
		Offset:  opts.Offset,
		Limit:   opts.Limit,
		HasMore: len(resp.Bills) == opts.Limit,
	}, nil
}

// FetchBill retrieves the detail payload of one bill
func (c *CongressClient) FetchBill(ctx context.Context, congress int, billType string, number int) (*BillDetail, error) {
	var resp billDetailResponse
	if err := c.Get(ctx, billPath(congress, billType, number, ""), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch bill %d%s%d: %w", number, billType, congress, err)
	}
	return &resp.Bill, nil
}

// FetchActions retrieves the complete action history of a bill, following pages
func (c *CongressClient) FetchActions(ctx context.Context, congress int, billType string, number int) ([]ActionItem, error) {
	path := billPath(congress, billType, number, "actions")

	var all []ActionItem
	for offset := 0; ; offset += maxPageSize {
		params := url.Values{}
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(maxPageSize))

		var resp actionsResponse
		if err := c.Get(ctx, path, params, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch actions: %w", err)
		}
		all = append(all, resp.Actions...)
		if len(resp.Actions) < maxPageSize {
			return all, nil
		}
	}
}

// FetchSummaries retrieves every summary version of a bill
func (c *CongressClient) FetchSummaries(ctx context.Context, congress int, billType string, number int) ([]SummaryItem, error) {
	var resp summariesResponse
	if err := c.Get(ctx, billPath(congress, billType, number, "summaries"), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch summaries: %w", err)
	}
	return resp.Summaries, nil
}

// FetchTitles retrieves every title of a bill
func (c *CongressClient) FetchTitles(ctx context.Context, congress int, billType string, number int) ([]TitleItem, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(maxPageSize))

	var resp titlesResponse
	if err := c.Get(ctx, billPath(congress, billType, number, "titles"), params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch titles: %w", err)
	}
	return resp.Titles, nil
}

// FetchTextVersions retrieves the published text versions of a bill
func (c *CongressClient) FetchTextVersions(ctx context.Context, congress int, billType string, number int) ([]TextVersionItem, error) {
	var resp textVersionsResponse
	if err := c.Get(ctx, billPath(congress, billType, number, "text"), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch text versions: %w", err)
	}
	return resp.TextVersions, nil
}

func billPath(congress int, billType string, number int, sub string) string {
	path := fmt.Sprintf("/bill/%d/%s/%d", congress, billType, number)
	if sub != "" {
		path += "/" + sub
	}
	return path
}

// fetchWithRetry performs a rate-limited GET, retrying transient failures
// with a fixed backoff
func (c *CongressClient) fetchWithRetry(ctx context.Context, path string, params url.Values) ([]byte, error) {
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("format", "json")
	query.Set("api_key", c.apiKey)
	fullURL := c.baseURL + path + "?" + query.Encode()

	var lastErr *FetchError
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying congress API request",
				"path", path, "attempt", attempt, "backoff", c.backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, err := c.do(ctx, path, fullURL)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !err.Retryable() {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *CongressClient) do(ctx context.Context, path, fullURL string) ([]byte, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &FetchError{Path: path, Err: fmt.Errorf("failed to create request: %w", redactURL(err))}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Path: path, Err: redactURL(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Path: path, Err: err}
	}

	c.logger.Debug("congress API request", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{Path: path, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return body, nil
}

// redactURL drops the request URL, which carries the API key, from transport errors
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
