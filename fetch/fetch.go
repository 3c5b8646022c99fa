// Package fetch downloads single files such as server certificates and
// repository indexes.
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ruteri/registration-client/interfaces"
)

const defaultUserAgent = "registration-client/1.0"

// Client implements interfaces.Fetcher over HTTP(S) and local file:// URLs.
// Requests are never retried.
type Client struct {
	log       *slog.Logger
	userAgent string
	timeout   time.Duration

	// rootCAs overrides the system pool for verified requests.
	rootCAs *x509.CertPool

	mu      sync.Mutex
	trusted []*x509.Certificate
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithTimeout bounds every request in addition to the caller's context.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRootCAs replaces the system certificate pool.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(c *Client) {
		c.rootCAs = pool
	}
}

// NewClient creates a fetch client.
func NewClient(log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		log:       log,
		userAgent: defaultUserAgent,
		timeout:   60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trust adds cert to the roots of later verified requests. Host names are
// still checked.
func (c *Client) Trust(cert *x509.Certificate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.trusted {
		if t.Equal(cert) {
			return
		}
	}
	c.log.Info("Trusting server certificate for downloads", "subject", cert.Subject.CommonName)
	c.trusted = append(c.trusted, cert)
}

// roots returns the pool for verified requests: rootCAs or the system pool,
// extended with the trusted certificates.
func (c *Client) roots() *x509.CertPool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.trusted) == 0 {
		return c.rootCAs
	}

	var pool *x509.CertPool
	if c.rootCAs != nil {
		pool = c.rootCAs.Clone()
	} else {
		var err error
		if pool, err = x509.SystemCertPool(); err != nil {
			c.log.Warn("System certificate pool unavailable", "err", err)
			pool = x509.NewCertPool()
		}
	}
	for _, cert := range c.trusted {
		pool.AddCert(cert)
	}
	return pool
}

// Fetch downloads rawURL. With insecure set, the server certificate of this
// request is not verified. Every failure matches interfaces.ErrFetch.
func (c *Client) Fetch(ctx context.Context, rawURL string, insecure bool) ([]byte, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %v", interfaces.ErrFetch, err)
	}

	switch strings.ToLower(parsedURL.Scheme) {
	case "file":
		return c.fetchFile(parsedURL)
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported URL scheme %q", interfaces.ErrFetch, parsedURL.Scheme)
	}

	// Service URLs may carry credentials as userinfo.
	logURL := parsedURL.Redacted()

	if insecure {
		c.log.Warn("Downloading without certificate verification", "url", logURL)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = c.timeout
	retryClient.HTTPClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			RootCAs:            c.roots(),
			InsecureSkipVerify: insecure,
		},
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", interfaces.ErrFetch, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := retryClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", interfaces.ErrFetch, logURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", interfaces.ErrFetch, logURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", interfaces.ErrFetch, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty body", interfaces.ErrFetch, logURL)
	}

	c.log.Debug("Downloaded file", slog.String("url", logURL), slog.Int("size", len(body)))
	return body, nil
}

func (c *Client) fetchFile(u *url.URL) ([]byte, error) {
	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrFetch, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", interfaces.ErrFetch, path)
	}
	return data, nil
}
