package rules

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// selectorField decodes either a single selector (string) or a chain (list).
type selectorField struct {
	set       bool
	selectors []string
}

func (s *selectorField) UnmarshalYAML(n *yaml.Node) error {
	s.set = true
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil
		}
		s.selectors = []string{n.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return err
		}
		s.selectors = list
		return nil
	default:
		return fmt.Errorf("line %d: selector must be a string or a list of strings", n.Line)
	}
}

func (s selectorField) rule() Rule[string] {
	switch {
	case !s.set:
		return Rule[string]{}
	case len(s.selectors) == 0:
		return None[string]()
	case len(s.selectors) == 1:
		return Selector[string](s.selectors[0])
	default:
		return Chain[string](s.selectors...)
	}
}

type pageEntry struct {
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
}

// fileSource is the YAML shape of a declarative source. Callbacks cannot be
// expressed in a file, so ingredients and prep time stay absent.
type fileSource struct {
	Name     string        `yaml:"name"`
	URL      string        `yaml:"url"`
	Disabled bool          `yaml:"disabled"`
	Timeout  time.Duration `yaml:"timeout"`
	Encoding string        `yaml:"encoding"`
	Engine   string        `yaml:"engine"`

	Title     selectorField `yaml:"title"`
	Text      selectorField `yaml:"text"`
	MainImage selectorField `yaml:"main_image"`
	PubDate   selectorField `yaml:"pub_date"`

	PubDateFormat                    string   `yaml:"pub_date_format"`
	TextFinallyExcludeRegexes        []string `yaml:"text_finally_exclude_regexes"`
	TextExcludeParagraphsWithClasses []string `yaml:"text_exclude_paragraphs_with_classes"`
	TextExcludeParagraphsContaining  []string `yaml:"text_exclude_paragraphs_containing"`
	TextAutoCleanup                  *bool    `yaml:"text_auto_cleanup"`

	CloudflareBypass bool `yaml:"cloudflare_bypass"`

	Links struct {
		Timeout   time.Duration `yaml:"timeout"`
		Selectors []string      `yaml:"selectors"`
		Pages     []pageEntry    `yaml:"pages"`
	} `yaml:"links"`
}

// LoadFile reads a declarative source description (YAML or JSON).
// The returned Source is not resolved yet.
func LoadFile(path string) (Source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseFile(b)
}

// ParseFile decodes a declarative source description.
func ParseFile(b []byte) (Source, error) {
	var fs fileSource
	if err := yaml.Unmarshal(b, &fs); err != nil {
		return Source{}, fmt.Errorf("parse rules file: %w", err)
	}
	if fs.Name == "" || fs.URL == "" {
		return Source{}, fmt.Errorf("rules file: name and url are required")
	}

	src := Source{
		Name:     fs.Name,
		URL:      fs.URL,
		Disabled: fs.Disabled,
		Parsing: ParsingRules{
			Title:                            fs.Title.rule(),
			Text:                             fs.Text.rule(),
			MainImage:                        fs.MainImage.rule(),
			PubDate:                          fs.PubDate.rule(),
			PubDateFormat:                    fs.PubDateFormat,
			TextFinallyExcludeRegexes:        fs.TextFinallyExcludeRegexes,
			TextExcludeParagraphsWithClasses: fs.TextExcludeParagraphsWithClasses,
			TextExcludeParagraphsContaining:  fs.TextExcludeParagraphsContaining,
			TextAutoCleanup:                  fs.TextAutoCleanup,
			Timeout:                          fs.Timeout,
			Engine:                           fs.Engine,
			Encoding:                         fs.Encoding,
		},
		Links: LinkRules{
			Timeout:   fs.Links.Timeout,
			Selectors: fs.Links.Selectors,
			Engine:    fs.Engine,
		},
		Fetch: FetchOptions{CloudflareBypass: fs.CloudflareBypass},
	}
	if fs.Links.Pages != nil {
		src.Links.Pages = make([]LinkPage, 0, len(fs.Links.Pages))
		for _, p := range fs.Links.Pages {
			src.Links.Pages = append(src.Links.Pages, LinkPage{URL: p.URL, CategoryCode: p.Category})
		}
	}
	return src, nil
}
