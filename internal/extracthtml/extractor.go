package extracthtml

import (
	"fmt"
	"strings"
	"time"

	"recipes/internal/rules"

	"github.com/PuerkitoBio/goquery"
)

// builtinForbiddenFragments are dropped from text when auto-cleanup is on:
// inline ad scripts and hidden layout blocks.
var builtinForbiddenFragments = []string{"googletag", "0px;"}

// imageAttrs are tried in order on the element matched by a main-image selector.
var imageAttrs = []string{"src", "href", "content"}

// Title extracts the recipe title. The boolean is false when the field is absent.
func Title(doc *goquery.Document, r rules.ParsingRules) (string, bool) {
	return stringField(doc, r.Title, func(sel *goquery.Selection) (string, bool) {
		return strings.TrimSpace(sel.Text()), true
	})
}

// MainImage extracts the main image URL as found in the page (possibly relative).
func MainImage(doc *goquery.Document, r rules.ParsingRules) (string, bool) {
	return stringField(doc, r.MainImage, func(sel *goquery.Selection) (string, bool) {
		return FirstAttr(sel, imageAttrs...)
	})
}

// Text extracts the recipe instructions.
//
// Every selector contributes the trimmed text of every element it matches, in
// order. Elements are dropped when they (or a descendant) carry a forbidden
// class, or when their text or markup contains a forbidden fragment. The kept
// texts are newline-joined, forbidden regexes are removed and the result is
// trimmed.
//
// Edge cases:
//   - no selector matches anything: absent.
//   - matches exist but all are filtered out: present and empty.
func Text(doc *goquery.Document, r rules.ParsingRules) (string, bool) {
	switch r.Text.Kind() {
	case rules.KindSelector, rules.KindChain:
	default:
		return stringField(doc, r.Text, nil)
	}

	fragments := append([]string(nil), r.TextExcludeParagraphsContaining...)
	if r.AutoCleanup() {
		fragments = append(fragments, builtinForbiddenFragments...)
	}

	var (
		parts   []string
		matched bool
	)
	for _, selector := range r.Text.Selectors() {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			matched = true
			if hasForbiddenClass(sel, r.TextExcludeParagraphsWithClasses) {
				return
			}
			text := strings.TrimSpace(sel.Text())
			if containsFragment(text, fragments) {
				return
			}
			parts = append(parts, text)
		})
	}
	if !matched {
		return "", false
	}

	out := strings.Join(parts, "\n")
	for _, re := range r.ExcludeRegexes() {
		out = re.ReplaceAllString(out, "")
	}
	return strings.TrimSpace(out), true
}

// PubDate extracts and parses the publication date.
//
// The matched element is passed through the preprocessor when one is set,
// otherwise its trimmed text is used. With PubDateFormat set the string must
// match that layout exactly and a mismatch is an error (the page is discarded);
// without it parsing is best-effort and an unparseable date is absent.
func PubDate(doc *goquery.Document, r rules.ParsingRules) (time.Time, bool, error) {
	var preprocessErr error
	raw, ok := stringField(doc, r.PubDate, func(sel *goquery.Selection) (string, bool) {
		if r.PubDatePreprocessor == nil {
			return strings.TrimSpace(sel.Text()), true
		}
		s, err := r.PubDatePreprocessor(sel)
		if err != nil {
			preprocessErr = err
			return "", false
		}
		return s, true
	})
	if preprocessErr != nil {
		return time.Time{}, false, fmt.Errorf("pub_date preprocessor: %w", preprocessErr)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	return ParseDate(raw, r.PubDateFormat)
}

// Ingredients runs the ingredients callback. Literal and selector rules are
// rejected with rules.ErrCallbackOnly.
func Ingredients(doc *goquery.Document, r rules.ParsingRules) (map[string]string, bool, error) {
	return callbackField(doc, r.Ingredients, "ingredients")
}

// PrepTime runs the preparation-time callback. Literal and selector rules are
// rejected with rules.ErrCallbackOnly.
func PrepTime(doc *goquery.Document, r rules.ParsingRules) (time.Duration, bool, error) {
	return callbackField(doc, r.PrepTime, "prep_time")
}

// stringField evaluates a string rule. For selectors, pick converts the first
// matched element into a value; a chain stops at the first selector whose
// value is present.
func stringField(doc *goquery.Document, rule rules.Rule[string], pick func(*goquery.Selection) (string, bool)) (string, bool) {
	switch rule.Kind() {
	case rules.KindLiteral:
		return rule.Value(), true
	case rules.KindCallback:
		return rule.Func()(doc)
	case rules.KindSelector, rules.KindChain:
		if pick == nil {
			return "", false
		}
		for _, selector := range rule.Selectors() {
			sel := doc.Find(selector).First()
			if sel.Length() == 0 {
				continue
			}
			if v, ok := pick(sel); ok {
				return v, true
			}
		}
		return "", false
	default:
		return "", false
	}
}

func callbackField[T any](doc *goquery.Document, rule rules.Rule[T], field string) (T, bool, error) {
	var zero T
	switch rule.Kind() {
	case rules.KindCallback:
		v, ok := rule.Func()(doc)
		return v, ok, nil
	case rules.KindLiteral, rules.KindSelector, rules.KindChain:
		return zero, false, fmt.Errorf("%s: %w", field, rules.ErrCallbackOnly)
	default:
		return zero, false, nil
	}
}

func hasForbiddenClass(sel *goquery.Selection, classes []string) bool {
	for _, c := range classes {
		if sel.HasClass(c) {
			return true
		}
		found := sel.Find("*").FilterFunction(func(_ int, d *goquery.Selection) bool {
			return d.HasClass(c)
		})
		if found.Length() > 0 {
			return true
		}
	}
	return false
}

func containsFragment(text string, fragments []string) bool {
	for _, f := range fragments {
		if f == "" {
			continue
		}
		if strings.Contains(text, f) {
			return true
		}
	}
	return false
}
