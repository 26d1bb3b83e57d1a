package rules

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Engine names the page-fetching strategy of a rule set.
const (
	EngineBS       = "bs"
	EngineSelenium = "selenium"
)

const (
	DefaultParsingTimeout = 3 * time.Second
	DefaultLinksTimeout   = 3 * time.Second
)

// DatePreprocessor turns the matched publication-date element into the string
// handed to the date parser.
type DatePreprocessor func(sel *goquery.Selection) (string, error)

// LinksCallback replaces feed-page discovery entirely. It returns recipe URLs
// mapped to category codes; an empty code means "no category".
type LinksCallback func(ctx context.Context) (map[string]string, error)

// ParsingRules describes how to extract a recipe from one page.
//
// Slice fields follow "nil means unset": a nil slice keeps the default while a
// non-nil empty slice clears it. TextAutoCleanup is a pointer for the same reason.
type ParsingRules struct {
	Title       Rule[string]
	Text        Rule[string]
	MainImage   Rule[string]
	PubDate     Rule[string]
	Ingredients Rule[map[string]string]
	PrepTime    Rule[time.Duration]

	TextFinallyExcludeRegexes        []string
	TextExcludeParagraphsWithClasses []string
	TextExcludeParagraphsContaining  []string
	TextAutoCleanup                  *bool

	PubDatePreprocessor DatePreprocessor
	// PubDateFormat is a Go time layout. When set, parsing is strict.
	PubDateFormat string

	Timeout  time.Duration
	Engine   string
	Encoding string

	// excludeRes holds TextFinallyExcludeRegexes compiled by Resolve.
	excludeRes []*regexp.Regexp
}

// AutoCleanup reports the effective auto-cleanup flag (default on).
func (p ParsingRules) AutoCleanup() bool {
	return p.TextAutoCleanup == nil || *p.TextAutoCleanup
}

// LinkPage is one feed page and the category every recipe found on it belongs to.
type LinkPage struct {
	URL          string
	CategoryCode string
}

// LinkRules describes how recipe URLs are discovered for a source.
type LinkRules struct {
	Timeout   time.Duration
	Callback  LinksCallback
	Selectors []string
	Pages     []LinkPage
	Engine    string
}

// FetchOptions tune the HTTP client used for one source.
type FetchOptions struct {
	UserAgent        string
	CloudflareBypass bool
}

// Source is the declaration of one recipe website. Zero-valued fields inherit defaults.
type Source struct {
	Name     string
	URL      string
	Disabled bool

	Parsing ParsingRules
	Links   LinkRules
	Fetch   FetchOptions
}

// RuleSet is a resolved Source. Build it with Resolve and treat it as read-only.
type RuleSet struct {
	Source
}

// DefaultParsingRules returns the rules every source starts from.
//
// Title and text are absent unless declared. The main image defaults to the
// Open Graph image tags.
func DefaultParsingRules() ParsingRules {
	cleanup := true
	return ParsingRules{
		Title: None[string](),
		Text:  None[string](),
		MainImage: Chain[string](
			`meta[property="og:image:secure_url"]`,
			`meta[name="og:image:secure_url"]`,
			`meta[property="og:image"]`,
			`meta[name="og:image"]`,
		),
		PubDate:     None[string](),
		Ingredients: None[map[string]string](),
		PrepTime:    None[time.Duration](),

		TextFinallyExcludeRegexes:        []string{},
		TextExcludeParagraphsWithClasses: []string{},
		TextExcludeParagraphsContaining:  []string{},
		TextAutoCleanup:                  &cleanup,

		Timeout: DefaultParsingTimeout,
		Engine:  EngineBS,
	}
}

// DefaultLinkRules returns the link rules every source starts from: the site
// root is the only feed page and no selector is configured.
func DefaultLinkRules() LinkRules {
	return LinkRules{
		Timeout:   DefaultLinksTimeout,
		Selectors: []string{},
		Pages:     []LinkPage{{URL: "/"}},
		Engine:    EngineBS,
	}
}

// MergeParsing applies every declared field of override on top of base.
// The result shares no slices with either argument.
func MergeParsing(base, override ParsingRules) ParsingRules {
	out := ParsingRules{
		Title:       override.Title.or(base.Title),
		Text:        override.Text.or(base.Text),
		MainImage:   override.MainImage.or(base.MainImage),
		PubDate:     override.PubDate.or(base.PubDate),
		Ingredients: override.Ingredients.or(base.Ingredients),
		PrepTime:    override.PrepTime.or(base.PrepTime),

		TextFinallyExcludeRegexes:        mergeStrings(base.TextFinallyExcludeRegexes, override.TextFinallyExcludeRegexes),
		TextExcludeParagraphsWithClasses: mergeStrings(base.TextExcludeParagraphsWithClasses, override.TextExcludeParagraphsWithClasses),
		TextExcludeParagraphsContaining:  mergeStrings(base.TextExcludeParagraphsContaining, override.TextExcludeParagraphsContaining),

		PubDatePreprocessor: base.PubDatePreprocessor,
		PubDateFormat:       firstNonEmpty(override.PubDateFormat, base.PubDateFormat),
		Timeout:             firstPositive(override.Timeout, base.Timeout),
		Engine:              firstNonEmpty(override.Engine, base.Engine),
		Encoding:            firstNonEmpty(override.Encoding, base.Encoding),
	}
	if override.PubDatePreprocessor != nil {
		out.PubDatePreprocessor = override.PubDatePreprocessor
	}
	switch {
	case override.TextAutoCleanup != nil:
		v := *override.TextAutoCleanup
		out.TextAutoCleanup = &v
	case base.TextAutoCleanup != nil:
		v := *base.TextAutoCleanup
		out.TextAutoCleanup = &v
	}
	return out
}

// MergeLinks applies every declared field of override on top of base.
func MergeLinks(base, override LinkRules) LinkRules {
	out := LinkRules{
		Timeout:   firstPositive(override.Timeout, base.Timeout),
		Callback:  base.Callback,
		Selectors: mergeStrings(base.Selectors, override.Selectors),
		Engine:    firstNonEmpty(override.Engine, base.Engine),
	}
	if override.Callback != nil {
		out.Callback = override.Callback
	}
	pages := base.Pages
	if override.Pages != nil {
		pages = override.Pages
	}
	if pages != nil {
		out.Pages = append([]LinkPage{}, pages...)
	}
	return out
}

func mergeStrings(base, override []string) []string {
	src := base
	if override != nil {
		src = override
	}
	if src == nil {
		return nil
	}
	return append([]string{}, src...)
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func firstPositive(a, b time.Duration) time.Duration {
	if a > 0 {
		return a
	}
	return b
}
