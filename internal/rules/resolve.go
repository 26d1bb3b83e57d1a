package rules

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrEngineNotImplemented is returned for engines that are recognised but not built (selenium).
	ErrEngineNotImplemented = errors.New("engine not implemented")
	// ErrUnknownEngine is returned for any engine name other than "bs" and "selenium".
	ErrUnknownEngine = errors.New("unknown engine")
	// ErrCallbackOnly is returned when a callback-only field is given a literal or selector.
	ErrCallbackOnly = errors.New("field accepts only callbacks")
	// ErrInvalidRule covers malformed rules: empty selectors, bad regexes, bad URLs.
	ErrInvalidRule = errors.New("invalid rule")
)

// ConfigError reports a rule-set problem found while building a pipeline.
// Configuration errors are the only errors that abort a whole source.
type ConfigError struct {
	Source string
	Field  string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("source %q: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("source %q: %s: %v", e.Source, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Resolve merges src over the defaults, validates the result and normalises
// feed-page URLs against src.URL.
//
// Resolving the Source of an already resolved RuleSet yields an identical RuleSet.
func Resolve(src Source) (RuleSet, error) {
	cfgErr := func(field string, err error) (RuleSet, error) {
		return RuleSet{}, &ConfigError{Source: src.Name, Field: field, Err: err}
	}

	if strings.TrimSpace(src.Name) == "" {
		return cfgErr("name", fmt.Errorf("%w: empty source name", ErrInvalidRule))
	}
	base, err := url.Parse(src.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return cfgErr("url", fmt.Errorf("%w: source url %q is not absolute", ErrInvalidRule, src.URL))
	}

	parsing := MergeParsing(DefaultParsingRules(), src.Parsing)
	links := MergeLinks(DefaultLinkRules(), src.Links)

	if err := checkEngine(parsing.Engine); err != nil {
		return cfgErr("parsing.engine", err)
	}
	if err := checkEngine(links.Engine); err != nil {
		return cfgErr("links.engine", err)
	}

	if err := checkSelectors(parsing.Title); err != nil {
		return cfgErr("title", err)
	}
	if err := checkSelectors(parsing.Text); err != nil {
		return cfgErr("text", err)
	}
	if err := checkSelectors(parsing.MainImage); err != nil {
		return cfgErr("main_image", err)
	}
	if err := checkSelectors(parsing.PubDate); err != nil {
		return cfgErr("pub_date", err)
	}
	if err := checkCallbackOnly(parsing.Ingredients.Kind()); err != nil {
		return cfgErr("ingredients", err)
	}
	if err := checkCallbackOnly(parsing.PrepTime.Kind()); err != nil {
		return cfgErr("prep_time", err)
	}
	parsing.excludeRes = nil
	for _, expr := range parsing.TextFinallyExcludeRegexes {
		re, err := regexp.Compile(expr)
		if err != nil {
			return cfgErr("text_finally_exclude_regexes", fmt.Errorf("%w: %v", ErrInvalidRule, err))
		}
		parsing.excludeRes = append(parsing.excludeRes, re)
	}
	for _, sel := range links.Selectors {
		if strings.TrimSpace(sel) == "" {
			return cfgErr("links.selectors", fmt.Errorf("%w: empty selector", ErrInvalidRule))
		}
	}

	for i, p := range links.Pages {
		links.Pages[i].URL = NormalizePageURL(src.URL, p.URL)
	}

	rs := RuleSet{Source: Source{
		Name:     src.Name,
		URL:      src.URL,
		Disabled: src.Disabled,
		Parsing:  parsing,
		Links:    links,
		Fetch:    src.Fetch,
	}}
	return rs, nil
}

// NormalizePageURL turns a feed-page entry into an absolute URL.
//
// Entries with a scheme and host, or that contain both "http" and a ".", are
// returned unchanged. Everything else gets a leading "/" and is appended to base.
func NormalizePageURL(base, page string) string {
	if u, err := url.Parse(page); err == nil && u.Scheme != "" && u.Host != "" {
		return page
	}
	if strings.Contains(page, "http") && strings.Contains(page, ".") {
		return page
	}
	if !strings.HasPrefix(page, "/") {
		page = "/" + page
	}
	return strings.TrimRight(base, "/") + page
}

// ExcludeRegexes returns the text removal patterns compiled by Resolve.
// Rules that did not come out of Resolve have none.
func (p ParsingRules) ExcludeRegexes() []*regexp.Regexp {
	return p.excludeRes
}

func checkEngine(engine string) error {
	switch engine {
	case EngineBS:
		return nil
	case EngineSelenium:
		return fmt.Errorf("%w: %s", ErrEngineNotImplemented, engine)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

func checkSelectors[T any](r Rule[T]) error {
	if r.Kind() != KindSelector && r.Kind() != KindChain {
		return nil
	}
	sels := r.Selectors()
	if len(sels) == 0 {
		return fmt.Errorf("%w: %s rule without selectors", ErrInvalidRule, r.Kind())
	}
	for _, s := range sels {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: empty selector", ErrInvalidRule)
		}
	}
	return nil
}

func checkCallbackOnly(k Kind) error {
	switch k {
	case KindUnset, KindNone, KindCallback:
		return nil
	default:
		return fmt.Errorf("%w: got %s", ErrCallbackOnly, k)
	}
}
