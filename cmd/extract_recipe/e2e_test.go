//go:build e2e

package main

import (
	"context"
	"os"
	"sort"
	"strconv"
	"testing"
	"time"

	"recipes/internal/extracthtml"
	"recipes/internal/rules"
	"recipes/internal/scrape/sources"
)

// TestE2E_DeclaredSourcesStillMatch crawls every declared module against the
// live site: discovery must find links and at least one of the first pages
// must yield a title. It catches site redesigns that break selectors.
//
// Run:
//
//	E2E=1 go test -tags=e2e ./cmd/extract_recipe/
//
// E2E_PAGES limits how many recipe pages are fetched per source (default 3).
func TestE2E_DeclaredSourcesStillMatch(t *testing.T) {
	if os.Getenv("E2E") != "1" {
		t.Skip("set E2E=1 to enable real network E2E tests")
	}
	pages := 3
	if v := os.Getenv("E2E_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pages = n
		}
	}

	for _, src := range sources.All() {
		t.Run(src.Name, func(t *testing.T) {
			rs, err := rules.Resolve(src)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			f := extracthtml.NewHTTPFetcher(extracthtml.FetcherOptions{
				RatePerSecond:    1,
				CloudflareBypass: rs.Fetch.CloudflareBypass,
			})

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			links, err := extracthtml.DiscoverLinks(ctx, f, rs.Links)
			if err != nil {
				t.Fatalf("discover: %v", err)
			}
			if len(links) == 0 {
				t.Fatalf("no recipe links found on %d feed pages", len(rs.Links.Pages))
			}

			urls := make([]string, 0, len(links))
			for u := range links {
				urls = append(urls, u)
			}
			sort.Strings(urls)
			if len(urls) > pages {
				urls = urls[:pages]
			}

			titled := 0
			for _, u := range urls {
				rec, err := extracthtml.ParsePage(ctx, f, rs.Parsing, u, links[u])
				if err != nil {
					t.Logf("page %s: %v", u, err)
					continue
				}
				if rec.HasTitle() {
					titled++
				}
			}
			if titled == 0 {
				t.Fatalf("none of %d pages produced a title", len(urls))
			}
		})
	}
}
