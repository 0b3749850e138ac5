// Package geoip resolves approximate coordinates for an IP address via the
// ipapi.co JSON API.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/speedtrack/internal/resilience"
)

// DefaultBaseURL is the public ipapi.co endpoint.
const DefaultBaseURL = "https://ipapi.co"

var (
	// ErrNoAddress is returned when the IP is blank; no request is made.
	ErrNoAddress = eris.New("geoip: no address")
	// ErrRateLimited is returned for HTTP 429.
	ErrRateLimited = eris.New("geoip: rate limited")
	// ErrMalformedResponse is returned when a 200 body cannot be used.
	ErrMalformedResponse = eris.New("geoip: malformed response")
)

// APIError is an application-level refusal carried in a 200 response,
// e.g. a reserved or private address.
type APIError struct {
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Reason
	}
	return "geoip: api error: " + msg
}

// StatusError is returned for non-200 responses other than 429.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geoip: unexpected status %d", e.Code)
}

// Location is the subset of the lookup response the warehouse keeps.
type Location struct {
	IP        string  `json:"ip"`
	City      string  `json:"city"`
	Region    string  `json:"region"`
	Country   string  `json:"country_name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Client looks up IP geolocation.
type Client interface {
	Lookup(ctx context.Context, ip string) (*Location, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL points the client at a different ipapi-compatible host.
func WithBaseURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds each lookup.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit sets the requests-per-second budget.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient creates a Client. ipapi.co's free tier is small, so the default
// budget is one request per second with an 8 second timeout.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 8 * time.Second},
		baseURL:    DefaultBaseURL,
		limiter:    rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type lookupResponse struct {
	IP        string   `json:"ip"`
	City      string   `json:"city"`
	Region    string   `json:"region"`
	Country   string   `json:"country_name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Error     bool     `json:"error"`
	Reason    string   `json:"reason"`
	Message   string   `json:"message"`
}

// Lookup issues a single GET for ip. It never retries.
func (c *client) Lookup(ctx context.Context, ip string) (*Location, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, ErrNoAddress
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geoip: rate limit wait"), 0)
	}

	reqURL := fmt.Sprintf("%s/%s/json/", c.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geoip: build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "speedtrack/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "geoip: request %s", ip), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.NewTransientError(ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		se := &StatusError{Code: resp.StatusCode}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(se, resp.StatusCode)
		}
		return nil, se
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geoip: read body"), 0)
	}

	var lr lookupResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "decode: %v", err)
	}
	if lr.Error {
		return nil, &APIError{Reason: lr.Reason, Message: lr.Message}
	}
	if lr.Latitude == nil || lr.Longitude == nil {
		return nil, eris.Wrap(ErrMalformedResponse, "missing latitude/longitude")
	}

	return &Location{
		IP:        lr.IP,
		City:      lr.City,
		Region:    lr.Region,
		Country:   lr.Country,
		Latitude:  *lr.Latitude,
		Longitude: *lr.Longitude,
	}, nil
}
