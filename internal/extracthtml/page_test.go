package extracthtml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"recipes/internal/rules"

	"github.com/PuerkitoBio/goquery"
)

const recipePage = `<html><head>
<meta property="og:image" content="/media/borscht.jpg">
</head><body>
<h1> Borscht </h1>
<ul class="steps"><li>Boil beets.</li><li>Add cabbage.</li></ul>
<time>2020-03-12</time>
<span class="prep">1 час 15 мин</span>
<table><tr class="ing"><td>Beet</td><td>2 pcs</td></tr><tr class="ing"><td>Salt</td><td>to taste</td></tr></table>
</body></html>`

func recipeRules(t *testing.T) rules.ParsingRules {
	t.Helper()
	return mustResolve(t, rules.ParsingRules{
		Title:         rules.Selector[string]("h1"),
		Text:          rules.Selector[string]("ul.steps li"),
		PubDate:       rules.Selector[string]("time"),
		PubDateFormat: time.DateOnly,
		Ingredients: rules.Callback[map[string]string](func(doc *goquery.Document) (map[string]string, bool) {
			out := map[string]string{}
			doc.Find("tr.ing").Each(func(_ int, tr *goquery.Selection) {
				tds := tr.Find("td")
				out[strings.TrimSpace(tds.Eq(0).Text())] = strings.TrimSpace(tds.Eq(1).Text())
			})
			return out, len(out) > 0
		}),
		PrepTime: rules.Callback[time.Duration](func(doc *goquery.Document) (time.Duration, bool) {
			s, ok := TagText(doc, "span.prep")
			if !ok {
				return 0, false
			}
			return ParseRussianDuration(s)
		}),
	})
}

// TestParsePage_AllFields verifies a full page round trip over HTTP.
func TestParsePage_AllFields(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(recipePage))
	}))
	t.Cleanup(srv.Close)

	rec, err := ParsePage(context.Background(), NewHTTPFetcher(FetcherOptions{}), recipeRules(t), srv.URL+"/r/1", "SOUPS")
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}

	if rec.URL != srv.URL+"/r/1" || rec.Category != "SOUPS" {
		t.Fatalf("identity: %q %q", rec.URL, rec.Category)
	}
	if !rec.HasTitle() || *rec.Title != "Borscht" {
		t.Fatalf("title: %v", rec.Title)
	}
	if rec.Text == nil || *rec.Text != "Boil beets.\nAdd cabbage." {
		t.Fatalf("text: %v", rec.Text)
	}
	if rec.MainImage == nil || *rec.MainImage != "/media/borscht.jpg" {
		t.Fatalf("main image: %v", rec.MainImage)
	}
	if rec.PubDate == nil || rec.PubDate.Format(time.DateOnly) != "2020-03-12" {
		t.Fatalf("pub date: %v", rec.PubDate)
	}
	if rec.PrepTime == nil || *rec.PrepTime != 75*time.Minute {
		t.Fatalf("prep time: %v", rec.PrepTime)
	}
	if rec.Ingredients["Beet"] != "2 pcs" || rec.Ingredients["Salt"] != "to taste" {
		t.Fatalf("ingredients: %v", rec.Ingredients)
	}

	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"pub_date":"2020-03-12"`, `"prep_time":"1h15m0s"`, `"category":"SOUPS"`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("json %s missing %s", b, want)
		}
	}
}

// TestParsePage_AbsentFieldsStayNil verifies fields without a value are nil,
// not empty strings.
func TestParsePage_AbsentFieldsStayNil(t *testing.T) {
	t.Parallel()

	f := &mapFetcher{pages: map[string]string{"https://site.example/r": `<p>nothing here</p>`}}
	rec, err := ParsePage(context.Background(), f, recipeRules(t), "https://site.example/r", "")
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	if rec.Title != nil || rec.Text != nil || rec.MainImage != nil || rec.PubDate != nil || rec.PrepTime != nil || rec.Ingredients != nil {
		t.Fatalf("expected all fields absent, got %+v", rec)
	}
	if rec.HasTitle() {
		t.Fatalf("HasTitle on absent title")
	}
}

// TestParsePage_PassesTimeoutAndEncoding verifies fetch options come from the rules.
func TestParsePage_PassesTimeoutAndEncoding(t *testing.T) {
	t.Parallel()

	f := &mapFetcher{pages: map[string]string{"https://site.example/r": `<h1>x</h1>`}}
	r := mustResolve(t, rules.ParsingRules{Timeout: 6 * time.Second, Encoding: "windows-1251"})

	if _, err := ParsePage(context.Background(), f, r, "https://site.example/r", ""); err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	if got := f.calls[0]; got.Timeout != 6*time.Second || got.Encoding != "windows-1251" {
		t.Fatalf("request = %+v", got)
	}
}

// TestParsePage_StrictDateMismatchFailsPage verifies a strict layout mismatch
// discards the page.
func TestParsePage_StrictDateMismatchFailsPage(t *testing.T) {
	t.Parallel()

	f := &mapFetcher{pages: map[string]string{"https://site.example/r": `<h1>x</h1><time>12/03/2020</time>`}}
	if _, err := ParsePage(context.Background(), f, recipeRules(t), "https://site.example/r", ""); err == nil {
		t.Fatalf("expected error")
	}
}
