package sources

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/titanous/json5"

	"recipes/internal/extracthtml"
	"recipes/internal/rules"
)

// EdaRu declares https://eda.ru.
func EdaRu() rules.Source {
	return rules.Source{
		Name: "Eda ru",
		URL:  "https://eda.ru",
		Parsing: rules.ParsingRules{
			Timeout:     4 * time.Second,
			Title:       rules.Selector[string]("h1"),
			Text:        rules.Selector[string]("ul.recipe__steps > li > div > span"),
			PubDate:     rules.None[string](),
			Ingredients: rules.Callback[map[string]string](edaIngredients),
			PrepTime:    rules.Callback[time.Duration](edaPrepTime),
		},
		Links: rules.LinkRules{
			Selectors: []string{
				"div.tile-list__horizontal-tile > div.clearfix > div.horizontal-tile__content > h3 > a",
			},
			Pages: []rules.LinkPage{
				{URL: "/recepty/supy", CategoryCode: "SOUPS"},
				{URL: "/recepty/osnovnye-blyuda", CategoryCode: "MAIN"},
				{URL: "/recepty/salaty", CategoryCode: "SALADS"},
				{URL: "/recepty/vypechka-deserty", CategoryCode: "DESSERTS"},
			},
		},
	}
}

const edaIngredientSelector = "div.ingredients-list__content > p.ingredients-list__content-item"

// edaIngredient is the object eda.ru stores in data-ingredient-object. The
// attribute is written with single quotes, hence json5.
type edaIngredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// edaIngredients reads every ingredient object. One malformed entry makes the
// whole list absent.
func edaIngredients(doc *goquery.Document) (map[string]string, bool) {
	items := doc.Find(edaIngredientSelector)
	if items.Length() == 0 {
		return nil, false
	}
	out := make(map[string]string, items.Length())
	ok := true
	items.EachWithBreak(func(_ int, p *goquery.Selection) bool {
		raw, has := p.Attr("data-ingredient-object")
		if !has {
			ok = false
			return false
		}
		var ing edaIngredient
		if err := json5.Unmarshal([]byte(raw), &ing); err != nil || strings.TrimSpace(ing.Name) == "" {
			ok = false
			return false
		}
		out[strings.TrimSpace(ing.Name)] = strings.TrimSpace(ing.Amount)
		return true
	})
	if !ok {
		return nil, false
	}
	return out, true
}

// edaPrepTime reads the second info-pad item ("1 час 20 минут").
func edaPrepTime(doc *goquery.Document) (time.Duration, bool) {
	pads := doc.Find("span.info-pad__item")
	if pads.Length() < 2 {
		return 0, false
	}
	text := strings.TrimSpace(pads.Eq(1).Find("span.info-text").First().Text())
	if text == "" {
		return 0, false
	}
	return extracthtml.ParseRussianDuration(text)
}
