// Command extract-recipe applies one source's parsing rules to a single page
// and prints the extracted recipe as JSON. It is meant for authoring and
// checking rules, and never touches the database.
//
// Usage (stdin, declared module):
//
//	cat page.html | extract-recipe -source "Eda ru"
//
// Usage (fetch URL, rules file):
//
//	extract-recipe -rules site.yaml -url "https://example.com/recipe/1"
//
// Usage (list discovered recipe URLs):
//
//	extract-recipe -source "Povarenok by" -links
//
// Debug (print text for selector matches):
//
//	cat page.html | extract-recipe -selector "ul.recipe__steps li" -text
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"recipes/internal/extracthtml"
	"recipes/internal/rules"
	"recipes/internal/scrape/sources"
)

// fetcherFactory builds the fetcher for the selected source.
type fetcherFactory func(rules.FetchOptions) extracthtml.Fetcher

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		func(o rules.FetchOptions) extracthtml.Fetcher {
			return extracthtml.NewHTTPFetcher(extracthtml.FetcherOptions{
				UserAgent:        o.UserAgent,
				CloudflareBypass: o.CloudflareBypass,
			})
		},
	))
}

// run is split out from main so we can unit test the command without spawning
// an OS process.
//
// It returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	newFetcher fetcherFactory,
) int {
	fs := flag.NewFlagSet("extract-recipe", flag.ContinueOnError)
	fs.SetOutput(stderr)

	sourceName := fs.String("source", "", "Name of a declared source module whose rules to apply")
	rulesPath := fs.String("rules", "", "Path to a YAML rules file (alternative to -source)")
	urlFlag := fs.String("url", "", "Optional: fetch HTML from URL instead of stdin")
	category := fs.String("category", "", "Category code to carry into the output")
	timeout := fs.Duration("timeout", 0, "Override the rules' fetch timeout for -url")
	listLinks := fs.Bool("links", false, "Print discovered recipe URLs and categories instead of parsing a page")
	debugSelector := fs.String("selector", "", "Debug: CSS selector to print matches for (not JSON)")
	onlyText := fs.Bool("text", false, "Debug: print text blocks for -selector matches (not JSON)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Debug selector mode needs HTML input (stdin or url) but no rules.
	if *debugSelector != "" {
		html, err := load(ctx, newFetcher(rules.FetchOptions{}), stdin, extracthtml.Request{URL: *urlFlag, Timeout: *timeout})
		if err != nil {
			fmt.Fprintf(stderr, "load html: %v\n", err)
			return 1
		}
		if _, err := extracthtml.DebugPrintSelector(stdout, html, *debugSelector, *onlyText); err != nil {
			fmt.Fprintf(stderr, "debug selector: %v\n", err)
			return 1
		}
		return 0
	}

	src, err := selectSource(*sourceName, *rulesPath)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	rs, err := rules.Resolve(src)
	if err != nil {
		fmt.Fprintf(stderr, "rules: %v\n", err)
		return 2
	}
	f := newFetcher(rs.Fetch)

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if *listLinks {
		links, err := extracthtml.DiscoverLinks(ctx, f, rs.Links)
		if err != nil {
			fmt.Fprintf(stderr, "discover links: %v\n", err)
			return 1
		}
		if err := enc.Encode(links); err != nil {
			fmt.Fprintf(stderr, "encode json: %v\n", err)
			return 1
		}
		return 0
	}

	reqTimeout := rs.Parsing.Timeout
	if *timeout > 0 {
		reqTimeout = *timeout
	}
	html, err := load(ctx, f, stdin, extracthtml.Request{URL: *urlFlag, Timeout: reqTimeout, Encoding: rs.Parsing.Encoding})
	if err != nil {
		fmt.Fprintf(stderr, "load html: %v\n", err)
		return 1
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		fmt.Fprintf(stderr, "parse html: %v\n", err)
		return 1
	}

	rec, err := extracthtml.ExtractRecipe(doc, rs.Parsing)
	if err != nil {
		fmt.Fprintf(stderr, "extract: %v\n", err)
		return 1
	}
	rec.URL = *urlFlag
	rec.Category = *category

	if err := enc.Encode(rec); err != nil {
		fmt.Fprintf(stderr, "encode json: %v\n", err)
		return 1
	}
	if !rec.HasTitle() {
		fmt.Fprintln(stderr, "warning: no title extracted; the pipeline would drop this page")
	}
	return 0
}

// selectSource returns the declared module called name or the source described
// by the rules file at path. Exactly one of them must be set.
func selectSource(name, path string) (rules.Source, error) {
	switch {
	case name != "" && path != "":
		return rules.Source{}, fmt.Errorf("-source and -rules are mutually exclusive")
	case path != "":
		return rules.LoadFile(path)
	case name != "":
		for _, s := range sources.All() {
			if s.Name == name {
				return s, nil
			}
		}
		var known []string
		for _, s := range sources.All() {
			known = append(known, s.Name)
		}
		return rules.Source{}, fmt.Errorf("unknown source %q (declared: %s)", name, strings.Join(known, ", "))
	default:
		return rules.Source{}, fmt.Errorf("missing -source or -rules")
	}
}

// load fetches req.URL when set, otherwise reads stdin.
func load(ctx context.Context, f extracthtml.Fetcher, stdin io.Reader, req extracthtml.Request) (string, error) {
	if req.URL != "" {
		if req.Timeout <= 0 {
			req.Timeout = 20 * time.Second
		}
		return f.Fetch(ctx, req)
	}
	if stdin == nil {
		return "", fmt.Errorf("no -url and no stdin")
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}
