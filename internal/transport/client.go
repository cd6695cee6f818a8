// Package transport issues signed HTTP requests to an S3-compatible API.
//
// It is the only I/O boundary of the client: one TLS connection per call,
// no retries, no status-code interpretation. Callers decide what each
// status means.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/featherstore/featherstore/internal/config"
	"github.com/featherstore/featherstore/internal/errors"
	"github.com/featherstore/featherstore/internal/metrics"
	"github.com/featherstore/featherstore/internal/sigv4"
)

// Request describes one storage API call. Construct a fresh value per call;
// a Request is never mutated or reused by the client.
type Request struct {
	// Method is the HTTP method, upper case.
	Method string
	// Path is the bucket-rooted object path (e.g. "/test.txt").
	Path string
	// Query holds query parameters. May be nil.
	Query map[string]string
	// Header holds extra headers to sign and send (e.g. Range). May be nil.
	Header map[string]string
	// Body is the request body, or nil when absent. The client hashes and
	// measures it in one pass and rewinds it before sending. Wrap byte
	// slices with bytes.NewReader.
	Body io.ReadSeeker
}

// Client signs and dispatches requests against one bucket. Credentials and
// endpoint are fixed at construction; a Client is safe for concurrent use.
type Client struct {
	creds  sigv4.Credentials
	scheme string
	host   string

	httpClient *http.Client

	// now is the signing clock, replaceable in tests.
	now func() time.Time
}

// NewClient builds a Client for the bucket and credentials in cfg.
// The target host is {bucket}.s3.{region}.{endpoint_domain} unless
// cfg.Endpoint overrides it entirely.
func NewClient(cfg *config.Config) (*Client, error) {
	c := &Client{
		creds: sigv4.Credentials{
			AccessKeyID:  cfg.AccessKey,
			SecretKey:    cfg.SecretKey,
			SessionToken: cfg.SessionToken,
			Region:       cfg.Region,
		},
		scheme: "https",
		host:   fmt.Sprintf("%s.s3.%s.%s", cfg.Bucket, cfg.Region, cfg.EndpointDomain),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			Transport: &http.Transport{
				// One connection per exchange; nothing is kept alive
				// across calls.
				DisableKeepAlives: true,
			},
		},
		now: time.Now,
	}

	if cfg.Endpoint != "" {
		u, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("parsing endpoint %q: %w", cfg.Endpoint, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("endpoint %q must be scheme://host[:port]", cfg.Endpoint)
		}
		c.scheme = u.Scheme
		c.host = u.Host
	}

	return c, nil
}

// Host returns the host the client signs and dials.
func (c *Client) Host() string { return c.host }

// Do signs req and performs exactly one HTTP exchange. The response is
// returned regardless of status code; the caller owns resp.Body. Transport
// failures are reported as *errors.ConnError.
func (c *Client) Do(ctx context.Context, req *Request) (*http.Response, error) {
	payloadHash := sigv4.EmptyPayloadHash
	var length int64
	if req.Body != nil {
		var err error
		payloadHash, length, err = sigv4.HashReadSeeker(req.Body)
		if err != nil {
			return nil, fmt.Errorf("hashing request body: %w", err)
		}
	}

	signed := sigv4.Sign(sigv4.SignInput{
		Method:      req.Method,
		Path:        req.Path,
		Query:       req.Query,
		Headers:     req.Header,
		Host:        c.host,
		PayloadHash: payloadHash,
		Time:        c.now(),
	}, c.creds)

	// The URL carries the exact canonical query string that was signed.
	rawURL := c.scheme + "://" + c.host + sigv4.EncodePath(req.Path)
	if qs := sigv4.CanonicalQueryString(req.Query); qs != "" {
		rawURL += "?" + qs
	}

	var body io.Reader
	if req.Body != nil {
		body = req.Body
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.ContentLength = length

	for name, value := range req.Header {
		httpReq.Header.Set(name, value)
	}
	for name, value := range signed {
		httpReq.Header.Set(name, value)
	}
	httpReq.Header.Set("Content-Length", strconv.FormatInt(length, 10))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveRequest(req.Method, 0, 0, elapsed)
		return nil, &errors.ConnError{
			Op:   req.Method + " " + req.Path,
			Host: c.host,
			Err:  err,
		}
	}

	metrics.ObserveRequest(req.Method, resp.StatusCode, length, elapsed)
	slog.Debug("storage API exchange",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"elapsed", elapsed,
	)
	return resp, nil
}
