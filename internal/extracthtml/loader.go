package extracthtml

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"recipes/internal/metrics"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is a desktop Chrome user agent. Several recipe sites serve
// reduced markup or block requests without one.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

const errorSnippetBytes = 4096

// Request describes one page fetch.
type Request struct {
	URL string
	// Timeout bounds the whole request. Zero means no per-request bound.
	Timeout time.Duration
	// Encoding forces a charset (WHATWG label such as "windows-1251").
	// Empty means detect from the Content-Type header and the document.
	Encoding string
}

// Fetcher returns the decoded HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (string, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	// Body holds up to 4KB of the response body.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// FetcherOptions configure an HTTPFetcher.
type FetcherOptions struct {
	// UserAgent defaults to DefaultUserAgent.
	UserAgent string
	// RatePerSecond limits request rate. Zero or negative disables limiting.
	RatePerSecond float64
	// CloudflareBypass wraps the transport with browser-like TLS and headers.
	CloudflareBypass bool
	// Transport replaces the default transport (tests).
	Transport http.RoundTripper
}

// HTTPFetcher fetches pages with a resty client.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher builds a fetcher. One fetcher may be shared by concurrent pipelines.
func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	client := resty.New()
	if opts.Transport != nil {
		client.SetTransport(opts.Transport)
	}
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	ua := opts.UserAgent
	if strings.TrimSpace(ua) == "" {
		ua = DefaultUserAgent
	}
	client.SetHeader("User-Agent", ua)

	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	return &HTTPFetcher{client: client}
}

// Fetch performs a GET and returns the body decoded to UTF-8.
//
// Errors:
//   - transport failures and timeouts are wrapped with the URL.
//   - non-2xx responses return *StatusError.
//   - an unknown forced encoding is an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := f.client.R().SetContext(ctx).Get(req.URL)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.IncCounter(metrics.HTTPRequestsTotal, 1, metrics.Labels{"status": "error"})
		metrics.ObserveHistogram(metrics.FetchDurationSeconds, elapsed, metrics.Labels{"status": "error"})
		return "", fmt.Errorf("http get %s: %w", req.URL, err)
	}

	status := strconv.Itoa(resp.StatusCode())
	metrics.IncCounter(metrics.HTTPRequestsTotal, 1, metrics.Labels{"status": status})
	metrics.ObserveHistogram(metrics.FetchDurationSeconds, elapsed, metrics.Labels{"status": status})

	body := resp.Body()
	if !resp.IsSuccess() {
		snippet := body
		if len(snippet) > errorSnippetBytes {
			snippet = snippet[:errorSnippetBytes]
		}
		return "", &StatusError{
			URL:        req.URL,
			StatusCode: resp.StatusCode(),
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	html, err := decodeBody(body, resp.Header().Get("Content-Type"), req.Encoding)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", req.URL, err)
	}
	return html, nil
}

// decodeBody converts body to UTF-8. A forced encoding wins over detection.
func decodeBody(body []byte, contentType, encoding string) (string, error) {
	if enc := strings.TrimSpace(encoding); enc != "" {
		e, err := htmlindex.Get(enc)
		if err != nil {
			return "", fmt.Errorf("unknown encoding %q: %w", enc, err)
		}
		out, err := e.NewDecoder().Bytes(body)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}

	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
