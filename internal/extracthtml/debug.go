package extracthtml

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DebugPrintSelector writes every match of selector in html to w, either as
// outer HTML or as trimmed text, separated by blank lines. It returns the
// number of matches so callers can tell "no match" from "empty match".
func DebugPrintSelector(w io.Writer, html, selector string, textOnly bool) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, fmt.Errorf("parse html: %w", err)
	}

	matches := doc.Find(selector)
	var writeErr error
	matches.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out := strings.TrimSpace(s.Text())
		if !textOnly {
			if h, err := goquery.OuterHtml(s); err == nil {
				out = h
			}
		}
		_, writeErr = fmt.Fprintf(w, "%s\n\n", out)
		return writeErr == nil
	})
	return matches.Length(), writeErr
}
