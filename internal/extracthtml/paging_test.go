package extracthtml

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sync"
	"testing"

	"recipes/internal/rules"
)

// mapFetcher serves canned HTML by URL and records the fetch order.
type mapFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []Request
}

func (m *mapFetcher) Fetch(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	html, ok := m.pages[req.URL]
	if !ok {
		return "", &StatusError{URL: req.URL, StatusCode: 404, Body: "not found"}
	}
	return html, nil
}

func resolveLinks(t *testing.T, lr rules.LinkRules) rules.LinkRules {
	t.Helper()
	rs, err := rules.Resolve(rules.Source{Name: "test", URL: "https://site.example", Links: lr})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return rs.Links
}

// TestDiscoverLinks_ResolvesAgainstFeedPage verifies hrefs are absolutised
// against the feed page URL and tagged with the page's category.
func TestDiscoverLinks_ResolvesAgainstFeedPage(t *testing.T) {
	t.Parallel()

	f := &mapFetcher{pages: map[string]string{
		"https://site.example/soups": `
			<a class="card" href="/recipes/borscht">B</a>
			<a class="card" href="shchi">S</a>
			<a class="card">no href</a>
			<a class="other" href="/ignored">x</a>`,
	}}
	lr := resolveLinks(t, rules.LinkRules{
		Selectors: []string{"a.card"},
		Pages:     []rules.LinkPage{{URL: "/soups", CategoryCode: "SOUPS"}},
	})

	got, err := DiscoverLinks(context.Background(), f, lr)
	if err != nil {
		t.Fatalf("DiscoverLinks: %v", err)
	}
	want := map[string]string{
		"https://site.example/recipes/borscht": "SOUPS",
		"https://site.example/shchi":           "SOUPS",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("links:\nwant=%v\ngot=%v", want, got)
	}
	if f.calls[0].Timeout != rules.DefaultLinksTimeout {
		t.Fatalf("feed fetched with timeout %v", f.calls[0].Timeout)
	}
}

// TestDiscoverLinks_LastWriteWins verifies pages are visited in order and a
// URL listed on two pages keeps the later category.
func TestDiscoverLinks_LastWriteWins(t *testing.T) {
	t.Parallel()

	f := &mapFetcher{pages: map[string]string{
		"https://site.example/a": `<a class="c" href="/r/1">1</a><a class="c" href="/r/2">2</a>`,
		"https://site.example/b": `<a class="c" href="/r/2">2</a>`,
	}}
	lr := resolveLinks(t, rules.LinkRules{
		Selectors: []string{"a.c"},
		Pages:     []rules.LinkPage{{URL: "/a", CategoryCode: "MAIN"}, {URL: "/b", CategoryCode: "OTHER"}},
	})

	got, err := DiscoverLinks(context.Background(), f, lr)
	if err != nil {
		t.Fatalf("DiscoverLinks: %v", err)
	}
	if got["https://site.example/r/1"] != "MAIN" || got["https://site.example/r/2"] != "OTHER" {
		t.Fatalf("unexpected categories: %v", got)
	}
	if len(f.calls) != 2 || f.calls[0].URL != "https://site.example/a" || f.calls[1].URL != "https://site.example/b" {
		t.Fatalf("unexpected fetch order: %+v", f.calls)
	}
}

// TestDiscoverLinks_FeedFailure verifies a failing feed page fails discovery.
func TestDiscoverLinks_FeedFailure(t *testing.T) {
	t.Parallel()

	f := &mapFetcher{pages: map[string]string{}}
	lr := resolveLinks(t, rules.LinkRules{Selectors: []string{"a"}})

	_, err := DiscoverLinks(context.Background(), f, lr)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 404 {
		t.Fatalf("want wrapped 404 StatusError, got %v", err)
	}
}

// TestDiscoverLinks_CallbackOverrides verifies the callback replaces page
// discovery and no feed page is fetched.
func TestDiscoverLinks_CallbackOverrides(t *testing.T) {
	t.Parallel()

	f := &mapFetcher{}
	lr := resolveLinks(t, rules.LinkRules{
		Selectors: []string{"a"},
		Callback: func(context.Context) (map[string]string, error) {
			return map[string]string{"https://site.example/x": "SALADS"}, nil
		},
	})
	got, err := DiscoverLinks(context.Background(), f, lr)
	if err != nil {
		t.Fatalf("DiscoverLinks: %v", err)
	}
	if got["https://site.example/x"] != "SALADS" || len(f.calls) != 0 {
		t.Fatalf("got=%v calls=%d", got, len(f.calls))
	}

	failing := resolveLinks(t, rules.LinkRules{
		Callback: func(context.Context) (map[string]string, error) { return nil, fmt.Errorf("api down") },
	})
	if _, err := DiscoverLinks(context.Background(), f, failing); err == nil {
		t.Fatalf("expected callback error")
	}
}

// TestResolveHref covers absolute, relative and invalid hrefs.
func TestResolveHref(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://site.example/recepty/supy")
	tests := []struct {
		href string
		want string
	}{
		{"/r/1", "https://site.example/r/1"},
		{"r/2", "https://site.example/recepty/r/2"},
		{"https://cdn.example/x", "https://cdn.example/x"},
		{"%zz", "%zz"},
	}
	for _, tc := range tests {
		if got := ResolveHref(base, tc.href); got != tc.want {
			t.Fatalf("ResolveHref(%q) = %q, want %q", tc.href, got, tc.want)
		}
	}
	if got := ResolveHref(nil, "/r/1"); got != "/r/1" {
		t.Fatalf("nil base: %q", got)
	}
}
