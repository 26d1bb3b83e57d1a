package extracthtml

import (
	"context"
	"fmt"
	"strings"

	"recipes/internal/rules"

	"github.com/PuerkitoBio/goquery"
)

// ParsePage fetches pageURL with the parsing rules' timeout and encoding and
// extracts a RawRecipe from it. category is carried through unchanged.
//
// Errors are per page: fetch failures, non-2xx responses, strict date
// mismatches and panicking callbacks all fail only this page.
func ParsePage(ctx context.Context, f Fetcher, r rules.ParsingRules, pageURL, category string) (RawRecipe, error) {
	html, err := f.Fetch(ctx, Request{URL: pageURL, Timeout: r.Timeout, Encoding: r.Encoding})
	if err != nil {
		return RawRecipe{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return RawRecipe{}, fmt.Errorf("parse html %s: %w", pageURL, err)
	}

	rec, err := ExtractRecipe(doc, r)
	if err != nil {
		return RawRecipe{}, fmt.Errorf("extract %s: %w", pageURL, err)
	}
	rec.URL = pageURL
	rec.Category = category
	return rec, nil
}

// ExtractRecipe runs every field extractor over doc. URL and Category are left empty.
//
// Source callbacks run against markup we do not control; a panic inside one
// is returned as an error.
func ExtractRecipe(doc *goquery.Document, r rules.ParsingRules) (rec RawRecipe, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec = RawRecipe{}
			err = fmt.Errorf("extractor panic: %v", p)
		}
	}()

	if v, ok := Title(doc, r); ok {
		rec.Title = ptr(v)
	}
	if v, ok := Text(doc, r); ok {
		rec.Text = ptr(v)
	}
	if v, ok := MainImage(doc, r); ok {
		rec.MainImage = ptr(v)
	}

	date, ok, err := PubDate(doc, r)
	if err != nil {
		return RawRecipe{}, err
	}
	if ok {
		rec.PubDate = ptr(date)
	}

	ingredients, ok, err := Ingredients(doc, r)
	if err != nil {
		return RawRecipe{}, err
	}
	if ok {
		if ingredients == nil {
			ingredients = map[string]string{}
		}
		rec.Ingredients = ingredients
	}

	prep, ok, err := PrepTime(doc, r)
	if err != nil {
		return RawRecipe{}, err
	}
	if ok {
		rec.PrepTime = ptr(prep)
	}
	return rec, nil
}
