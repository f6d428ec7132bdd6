package soilweb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/soil-explorer/internal/grid"
	"github.com/sells-group/soil-explorer/internal/resilience"
)

// DefaultBaseURL is the SoilWeb reflector endpoint.
const DefaultBaseURL = "http://casoilresource.lawr.ucdavis.edu/soil_web/reflector_api/soils.php"

const maxBodyBytes = 4 << 20

// Options configures a Client. Zero values take defaults.
type Options struct {
	BaseURL       string
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Retry         resilience.RetryConfig
	Breaker       resilience.CircuitBreakerConfig
}

// Client fetches map unit names for cell bounding boxes. It is safe for
// concurrent use by every worker of a pool; the limiter and breaker are shared.
type Client struct {
	http    *http.Client
	base    *url.URL
	ua      string
	limiter *AdaptiveLimiter
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewClient creates a SoilWeb client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "soil-explorer/1.0"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = int(opts.RatePerSecond) + 1
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.LogRetry("soilweb.fetch")
	}
	if opts.Breaker.ShouldTrip == nil {
		opts.Breaker.ShouldTrip = resilience.IsTransient
	}

	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "soilweb: parse base url %q", opts.BaseURL)
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout, Transport: transport},
		base:    base,
		ua:      opts.UserAgent,
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		retry:   opts.Retry,
		breaker: resilience.NewCircuitBreaker("soilweb", opts.Breaker),
	}, nil
}

// QueryURL returns the bbox query URL for a cell.
func (c *Client) QueryURL(b grid.BBox) string {
	u := *c.base
	q := u.Query()
	q.Set("what", "mapunit")
	q.Set("bbox", b.String())
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch returns the raw map unit record text for the bounding box.
func (c *Client) Fetch(ctx context.Context, b grid.BBox) (string, error) {
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (string, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (string, error) {
			return c.lookup(ctx, b)
		})
	})
}

func (c *Client) lookup(ctx context.Context, b grid.BBox) (string, error) {
	queryURL := c.QueryURL(b)
	page, err := c.get(ctx, queryURL)
	if err != nil {
		return "", err
	}

	href, err := FirstLink(bytes.NewReader(page))
	if err != nil {
		return "", eris.Wrapf(err, "soilweb: bbox %s", b)
	}
	reportURL, err := resolve(queryURL, href)
	if err != nil {
		return "", err
	}

	report, err := c.get(ctx, reportURL)
	if err != nil {
		return "", err
	}

	record, err := MapUnitRecord(bytes.NewReader(report))
	if err != nil {
		return "", eris.Wrapf(err, "soilweb: bbox %s", b)
	}

	zap.L().Debug("soilweb: map unit",
		zap.String("bbox", b.String()),
		zap.String("record", record),
	)
	return record, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "soilweb: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "soilweb: create request")
	}
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, resilience.NewTransientError(eris.Wrapf(err, "soilweb: GET %s", rawURL), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.OnRateLimit()
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("soilweb: http %d from %s", resp.StatusCode, rawURL)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "soilweb: read body"), 0)
	}

	c.limiter.OnSuccess()
	return body, nil
}

func resolve(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", eris.Wrap(err, "soilweb: parse query url")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", eris.Wrapf(err, "soilweb: parse link %q", href)
	}
	return b.ResolveReference(ref).String(), nil
}
