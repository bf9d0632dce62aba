package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds every outbound request.
	DefaultTimeout = 5 * time.Second
	// DefaultMaxRedirects bounds redirect chains.
	DefaultMaxRedirects = 5
	// DefaultUserAgent identifies the crawler to remote sites.
	DefaultUserAgent = "formscout/dev (+forms lookup)"

	defaultMaxBodyBytes = 1 << 20
)

// ErrTooManyRedirects is returned when a redirect chain exceeds the limit.
var ErrTooManyRedirects = errors.New("too many redirects")

// StatusError reports a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// NewHTTPClient returns a client with a total timeout and a redirect cap.
func NewHTTPClient(timeout time.Duration, maxRedirects int) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRedirects < 0 {
		maxRedirects = DefaultMaxRedirects
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// Fetcher issues identified, time-bounded requests on behalf of strategies.
type Fetcher struct {
	Client       *http.Client
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// NewFetcher builds a Fetcher with its own redirect-capped client.
func NewFetcher(userAgent string, timeout time.Duration, maxRedirects int) *Fetcher {
	return &Fetcher{
		Client:    NewHTTPClient(timeout, maxRedirects),
		UserAgent: userAgent,
		Timeout:   timeout,
	}
}

// Response is a fully read GET response.
type Response struct {
	URL         string
	ContentType string
	Body        []byte
}

// Get fetches target and returns the (size-capped) body of a 200 response.
func (f *Fetcher) Get(ctx context.Context, target string, accept string) (*Response, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	f.identify(req)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes()))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Head issues a HEAD request and returns the final status code.
func (f *Fetcher) Head(ctx context.Context, target string) (int, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return 0, err
	}
	f.identify(req)

	resp, err := f.client().Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	return resp.StatusCode, nil
}

func (f *Fetcher) identify(req *http.Request) {
	agent := DefaultUserAgent
	if f != nil && strings.TrimSpace(f.UserAgent) != "" {
		agent = f.UserAgent
	}
	req.Header.Set("User-Agent", agent)
}

func (f *Fetcher) client() *http.Client {
	if f != nil && f.Client != nil {
		return f.Client
	}
	return NewHTTPClient(f.timeout(), DefaultMaxRedirects)
}

func (f *Fetcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, f.timeout())
}

func (f *Fetcher) timeout() time.Duration {
	if f != nil && f.Timeout > 0 {
		return f.Timeout
	}
	return DefaultTimeout
}

func (f *Fetcher) maxBodyBytes() int64 {
	if f != nil && f.MaxBodyBytes > 0 {
		return f.MaxBodyBytes
	}
	return defaultMaxBodyBytes
}
