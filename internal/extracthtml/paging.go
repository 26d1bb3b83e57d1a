package extracthtml

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"recipes/internal/rules"

	"github.com/PuerkitoBio/goquery"
)

// DiscoverLinks returns recipe URLs mapped to category codes ("" for none).
//
// A links callback, when configured, replaces discovery entirely. Otherwise
// feed pages are fetched one after another, every anchor matched by every
// selector is resolved against its feed page URL, and later pages overwrite
// the category of URLs seen earlier.
//
// Errors:
//   - the first feed page that cannot be fetched or parsed fails discovery.
//   - callback errors are returned wrapped.
func DiscoverLinks(ctx context.Context, f Fetcher, lr rules.LinkRules) (map[string]string, error) {
	if lr.Callback != nil {
		links, err := lr.Callback(ctx)
		if err != nil {
			return nil, fmt.Errorf("links callback: %w", err)
		}
		if links == nil {
			links = map[string]string{}
		}
		return links, nil
	}

	links := make(map[string]string)
	for _, page := range lr.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		html, err := f.Fetch(ctx, Request{URL: page.URL, Timeout: lr.Timeout})
		if err != nil {
			return nil, fmt.Errorf("feed page %s: %w", page.URL, err)
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("parse feed page %s: %w", page.URL, err)
		}

		base, _ := url.Parse(page.URL)
		for _, selector := range lr.Selectors {
			doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
				href, ok := a.Attr("href")
				if !ok || strings.TrimSpace(href) == "" {
					return
				}
				links[ResolveHref(base, strings.TrimSpace(href))] = page.CategoryCode
			})
		}
	}
	return links, nil
}

// ResolveHref resolves href against base, returning an absolute URL string.
// If href is invalid, it is returned unchanged.
func ResolveHref(base *url.URL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
