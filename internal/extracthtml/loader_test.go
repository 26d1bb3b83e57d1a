package extracthtml

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// TestHTTPFetcher_SendsUserAgent verifies the spoofed browser UA is sent.
func TestHTTPFetcher_SendsUserAgent(t *testing.T) {
	t.Parallel()

	uaCh := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uaCh <- r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	t.Cleanup(srv.Close)

	f := NewHTTPFetcher(FetcherOptions{})
	html, err := f.Fetch(context.Background(), Request{URL: srv.URL, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if html != "<p>ok</p>" {
		t.Fatalf("unexpected html: %q", html)
	}
	if gotUA := <-uaCh; gotUA != DefaultUserAgent {
		t.Fatalf("User-Agent = %q", gotUA)
	}
}

// TestHTTPFetcher_Non2xx verifies non-2xx responses become *StatusError with
// the status code and a body snippet.
func TestHTTPFetcher_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := NewHTTPFetcher(FetcherOptions{}).Fetch(context.Background(), Request{URL: srv.URL, Timeout: 2 * time.Second})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("want *StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusForbidden || !strings.Contains(se.Body, "nope") {
		t.Fatalf("unexpected status error: %+v", se)
	}
	if !strings.Contains(err.Error(), "http status 403") {
		t.Fatalf("unexpected message: %v", err)
	}
}

// TestHTTPFetcher_Timeout verifies the per-request timeout is enforced.
func TestHTTPFetcher_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	_, err := NewHTTPFetcher(FetcherOptions{}).Fetch(context.Background(), Request{URL: srv.URL, Timeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

// TestHTTPFetcher_ForcedEncoding verifies a windows-1251 page is decoded when
// the rule set names the encoding and the server does not.
func TestHTTPFetcher_ForcedEncoding(t *testing.T) {
	t.Parallel()

	encoded, err := charmap.Windows1251.NewEncoder().String("<h1>Борщ</h1>")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(encoded))
	}))
	t.Cleanup(srv.Close)

	f := NewHTTPFetcher(FetcherOptions{})
	html, err := f.Fetch(context.Background(), Request{URL: srv.URL, Timeout: 2 * time.Second, Encoding: "windows-1251"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if html != "<h1>Борщ</h1>" {
		t.Fatalf("decoded html = %q", html)
	}

	if _, err := f.Fetch(context.Background(), Request{URL: srv.URL, Encoding: "no-such-charset"}); err == nil {
		t.Fatalf("expected unknown encoding error")
	}
}

// TestHTTPFetcher_HeaderCharset verifies charset detection from Content-Type.
func TestHTTPFetcher_HeaderCharset(t *testing.T) {
	t.Parallel()

	encoded, _ := charmap.Windows1251.NewEncoder().String("<p>Соль</p>")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		_, _ = w.Write([]byte(encoded))
	}))
	t.Cleanup(srv.Close)

	html, err := NewHTTPFetcher(FetcherOptions{}).Fetch(context.Background(), Request{URL: srv.URL, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if html != "<p>Соль</p>" {
		t.Fatalf("decoded html = %q", html)
	}
}
