// Package fetch performs registry HTTP requests with a per-attempt timeout
// and bounded retries with jittered exponential backoff.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
)

// Defaults used when Options fields are left zero
const (
	DefaultTimeout          = 12 * time.Hour
	DefaultRetryWaitTime    = 500 * time.Millisecond
	DefaultRetryMaxWaitTime = 30 * time.Second
	DefaultUserAgent        = "wfleet/1.0 (ship registry scraper)"
)

var (
	ErrEmptyURL          = errors.New("empty URL")
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")
)

// RequestError is returned when a request could not be completed at the
// transport level after every attempt was used.
type RequestError struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusError is returned for non-2xx responses when FailOnError is set.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}

// Response is a response that reached the client. A non-2xx response
// tolerated because FailOnError is unset has an empty Body and keeps its
// StatusCode so callers can tell it apart from genuine empty content.
type Response struct {
	Body       string
	StatusCode int
}

// Degraded reports whether the response was a non-2xx status turned into
// empty content.
func (r Response) Degraded() bool {
	return r.StatusCode < 200 || r.StatusCode > 299
}

// Options configures a Client.
type Options struct {
	// Timeout bounds a single attempt. The remote registry can hang
	// indefinitely, so this is always set; zero means DefaultTimeout.
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after the first one
	// fails at the transport level.
	MaxRetries int
	// Backoff bounds between retries. Zero means the package defaults.
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	// FailOnError turns non-2xx responses into a StatusError. When unset
	// such responses are treated as empty content.
	FailOnError bool
	// InsecureSkipVerify disables certificate validation. Only for sources
	// known to serve broken certificates.
	InsecureSkipVerify bool
	UserAgent          string
	// Transport replaces the underlying round tripper.
	Transport http.RoundTripper
	Logger    *log.Logger
}

// Client issues GET and form POST requests. A Client is safe for concurrent
// use by multiple goroutines.
type Client struct {
	rc     *resty.Client
	opts   Options
	logger *log.Logger
}

// New creates a client with the given options.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryWaitTime <= 0 {
		opts.RetryWaitTime = DefaultRetryWaitTime
	}
	if opts.RetryMaxWaitTime <= 0 {
		opts.RetryMaxWaitTime = DefaultRetryMaxWaitTime
	}
	if opts.RetryMaxWaitTime < opts.RetryWaitTime {
		opts.RetryMaxWaitTime = opts.RetryWaitTime
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	rc := resty.New().
		SetLogger(restyLogger{logger}).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.MaxRetries).
		SetRetryWaitTime(opts.RetryWaitTime).
		SetRetryMaxWaitTime(opts.RetryMaxWaitTime).
		SetHeader("User-Agent", opts.UserAgent)

	if opts.Transport != nil {
		rc.SetTransport(opts.Transport)
	} else if opts.InsecureSkipVerify {
		rc.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}

	rc.AddRetryHook(func(res *resty.Response, err error) {
		attempt := 0
		url := ""
		if res != nil && res.Request != nil {
			attempt = res.Request.Attempt
			url = res.Request.URL
		}
		// Hooks also run after the last attempt
		if attempt > opts.MaxRetries {
			return
		}
		logger.Warn("Retrying request", "url", url, "attempt", attempt, "max_retries", opts.MaxRetries, "err", err)
	})

	return &Client{rc: rc, opts: opts, logger: logger}
}

// Get issues a GET request with params encoded in the query string.
func (c *Client) Get(ctx context.Context, url string, params map[string]string) (string, error) {
	return c.Do(ctx, http.MethodGet, url, params)
}

// Post issues a POST request with params sent as a url-encoded form.
func (c *Client) Post(ctx context.Context, url string, params map[string]string) (string, error) {
	return c.Do(ctx, http.MethodPost, url, params)
}

// Do performs one logical request and returns the response body. Transport
// failures are retried up to MaxRetries times and then reported as a
// RequestError. Non-2xx responses are never retried.
func (c *Client) Do(ctx context.Context, method, url string, params map[string]string) (string, error) {
	res, err := c.Fetch(ctx, method, url, params)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}

// Fetch is Do, returning the status code along with the body.
func (c *Client) Fetch(ctx context.Context, method, url string, params map[string]string) (Response, error) {
	if strings.TrimSpace(url) == "" {
		return Response{}, ErrEmptyURL
	}

	req := c.rc.R().SetContext(ctx)

	method = strings.ToUpper(method)
	switch method {
	case http.MethodGet:
		req.SetQueryParams(params)
	case http.MethodPost:
		req.SetFormData(params)
	default:
		return Response{}, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	c.logger.Debug("HTTP request", "method", method, "url", url, "params", params)

	res, err := req.Execute(method, url)
	if err != nil {
		attempts := c.opts.MaxRetries + 1
		if res != nil && res.Request != nil && res.Request.Attempt > 0 {
			attempts = res.Request.Attempt
		}
		return Response{}, &RequestError{Method: method, URL: url, Attempts: attempts, Err: err}
	}

	if !res.IsSuccess() {
		if c.opts.FailOnError {
			return Response{}, &StatusError{StatusCode: res.StatusCode(), Status: http.StatusText(res.StatusCode())}
		}
		c.logger.Warn("Non-success response treated as empty", "method", method, "url", url, "status", res.StatusCode())
		return Response{StatusCode: res.StatusCode()}, nil
	}

	return Response{Body: res.String(), StatusCode: res.StatusCode()}, nil
}

// restyLogger keeps resty's per-attempt messages at debug level. Failures
// are reported by the retry hook and the returned errors.
type restyLogger struct {
	l *log.Logger
}

func (r restyLogger) Errorf(format string, v ...any) { r.l.Debugf(format, v...) }
func (r restyLogger) Warnf(format string, v ...any) { r.l.Debugf(format, v...) }
func (r restyLogger) Debugf(format string, v ...any) { r.l.Debugf(format, v...) }
