package sources

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"recipes/internal/rules"
)

// PovarenokBy declares https://povarenok.by.
func PovarenokBy() rules.Source {
	return rules.Source{
		Name: "Povarenok by",
		URL:  "https://povarenok.by",
		Parsing: rules.ParsingRules{
			Timeout:             6 * time.Second,
			Title:               rules.Selector[string]("div.item-preview > h1"),
			Text:                rules.Selector[string](`div[itemprop="recipeInstructions"]`),
			MainImage:           rules.Selector[string]("div.item-preview__image > a"),
			PubDate:             rules.Selector[string]("div.item-preview__info_short"),
			PubDatePreprocessor: povarenokDate,
			Ingredients:         rules.Callback[map[string]string](povarenokIngredients),
			PrepTime:            rules.None[time.Duration](),
		},
		Links: rules.LinkRules{
			Selectors: []string{"div.item-preview > div.title > div > a"},
			Pages: []rules.LinkPage{
				{URL: "/recepty/pervye-blyuda", CategoryCode: "SOUPS"},
				{URL: "/recepty/vtorye-blyuda", CategoryCode: "MAIN"},
				{URL: "/recepty/salaty", CategoryCode: "SALADS"},
				{URL: "/recepty/deserty", CategoryCode: "DESSERTS"},
				{URL: "/recepty/raznoe", CategoryCode: "OTHER"},
			},
		},
	}
}

// povarenokDate keeps words 3-5 of the info line:
// "Добавлено: автор 12 марта 2021 ..." -> "12 марта 2021".
// A shorter line yields an empty string, which leaves the date absent.
func povarenokDate(sel *goquery.Selection) (string, error) {
	words := strings.Fields(sel.Text())
	if len(words) < 5 {
		return "", nil
	}
	return strings.Join(words[2:5], " "), nil
}

// povarenokIngredients reads two-cell recipeIngredient rows. Rows without a
// quantity cell are skipped.
func povarenokIngredients(doc *goquery.Document) (map[string]string, bool) {
	out := make(map[string]string)
	doc.Find(`tr[itemprop="recipeIngredient"]`).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() != 2 {
			return
		}
		name := strings.TrimSpace(cells.Eq(0).Text())
		if name == "" {
			return
		}
		out[name] = strings.TrimSpace(cells.Eq(1).Text())
	})
	return out, len(out) > 0
}
