// Package httpx is the HTTP client context shared by every stage of a
// download: one connection pool, one cookie jar and the headers the remote
// CDN expects on every request.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"hls-downloader/internal/platform/logger"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// Options configures a Client. Zero values are usable.
type Options struct {
	UserAgent string
	Referer   string
	Origin    string
	// Header is added to every request, e.g. frontend identification or
	// credentials. Per-request headers win.
	Header http.Header

	// Timeout bounds a whole request including the body. Leave zero for
	// segment downloads, which stream large bodies.
	Timeout               time.Duration
	ResponseHeaderTimeout time.Duration

	// RequestsPerSecond caps the request rate across all callers; zero
	// disables the limiter.
	RequestsPerSecond float64
	Burst             int

	Jar       http.CookieJar
	Transport http.RoundTripper
}

// Client wraps http.Client with shared headers, a cookie jar and an
// optional rate limiter. It is safe for concurrent use.
type Client struct {
	hc      *http.Client
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger
}

// New builds a Client. A cookie jar backed by the public suffix list is
// created when opts.Jar is nil.
func New(opts Options, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = logger.Nop()
	}
	jar := opts.Jar
	if jar == nil {
		j, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		jar = j
	}
	opts.Jar = jar

	base := opts.Transport
	if base == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if opts.ResponseHeaderTimeout > 0 {
			t.ResponseHeaderTimeout = opts.ResponseHeaderTimeout
		}
		base = t
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		hc: &http.Client{
			Jar:       jar,
			Timeout:   opts.Timeout,
			Transport: logger.Transport(log, base),
		},
		opts:    opts,
		limiter: limiter,
		log:     log,
	}, nil
}

// Jar returns the cookie jar shared by all requests.
func (c *Client) Jar() http.CookieJar {
	return c.opts.Jar
}

// Do applies the common headers, waits for the rate limiter and sends req.
// Network failures are returned as *TransportError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.applyHeaders(req)
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, &TransportError{Method: req.Method, URL: Redact(req.URL.String()), Err: err}
		}
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: Redact(req.URL.String()), Err: err}
	}
	return resp, nil
}

// Get issues a GET request. The caller owns the response body and must
// inspect the status code.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.Do(req)
}

// GetBytes fetches url and returns the full body. Non-2xx responses yield
// a *StatusError.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: Redact(url), Err: err}
	}
	return body, nil
}

// GetText is GetBytes returning a string.
func (c *Client) GetText(ctx context.Context, url string) (string, error) {
	b, err := c.GetBytes(ctx, url)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SendJSON encodes in as the request body, sends it with the given method
// and decodes a 2xx response into out when out is non-nil.
func (c *Client) SendJSON(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", Redact(url), err)
	}
	return nil
}

func (c *Client) applyHeaders(req *http.Request) {
	for k, vs := range c.opts.Header {
		if req.Header.Get(k) != "" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	setDefault(req.Header, "User-Agent", c.opts.UserAgent)
	setDefault(req.Header, "Referer", c.opts.Referer)
	setDefault(req.Header, "Origin", c.opts.Origin)
}

func setDefault(h http.Header, key, value string) {
	if value != "" && h.Get(key) == "" {
		h.Set(key, value)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{
		Method:     resp.Request.Method,
		URL:        Redact(resp.Request.URL.String()),
		StatusCode: resp.StatusCode,
		Body:       string(snippet),
	}
}
