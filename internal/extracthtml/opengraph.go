package extracthtml

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FirstAttr returns the first non-empty attribute among attrs on sel.
func FirstAttr(sel *goquery.Selection, attrs ...string) (string, bool) {
	for _, a := range attrs {
		if v, ok := sel.Attr(a); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// TagText returns the trimmed text of the first element matching selector.
func TagText(doc *goquery.Document, selector string) (string, bool) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(sel.Text()), true
}

// metaContent returns the content attribute of the first meta tag matching
// one of the selectors.
func metaContent(doc *goquery.Document, selectors ...string) (string, bool) {
	for _, s := range selectors {
		sel := doc.Find(s).First()
		if sel.Length() == 0 {
			continue
		}
		if v, ok := FirstAttr(sel, "content"); ok {
			return v, true
		}
	}
	return "", false
}

// OGImage returns the Open Graph image, preferring the secure URL.
// Both property= and name= spellings are accepted.
func OGImage(doc *goquery.Document) (string, bool) {
	return metaContent(doc,
		`meta[property="og:image:secure_url"]`,
		`meta[name="og:image:secure_url"]`,
		`meta[property="og:image"]`,
		`meta[name="og:image"]`,
	)
}

// OGTitle returns the Open Graph title.
func OGTitle(doc *goquery.Document) (string, bool) {
	return metaContent(doc, `meta[property="og:title"]`, `meta[name="og:title"]`)
}

// OGPublishedTime returns article:published_time as written in the page,
// typically RFC 3339 with an offset.
func OGPublishedTime(doc *goquery.Document) (string, bool) {
	return metaContent(doc,
		`meta[property="article:published_time"]`,
		`meta[name="article:published_time"]`,
	)
}
