package extracthtml

import (
	"encoding/json"
	"time"
)

// RawRecipe is one parsed recipe page before persistence.
//
// Nil pointers (and a nil Ingredients map) mean the field is absent, which is
// different from present-but-empty.
type RawRecipe struct {
	URL string
	// Category is the category code attached by link discovery ("" for none).
	Category string

	Title       *string
	Text        *string
	MainImage   *string
	PubDate     *time.Time
	Ingredients map[string]string
	PrepTime    *time.Duration
}

// HasTitle reports whether the title is present and non-empty.
func (r RawRecipe) HasTitle() bool {
	return r.Title != nil && *r.Title != ""
}

// MarshalJSON renders the publication date as YYYY-MM-DD and the
// preparation time as a Go duration string.
func (r RawRecipe) MarshalJSON() ([]byte, error) {
	type out struct {
		URL         string            `json:"url"`
		Category    string            `json:"category,omitempty"`
		Title       *string           `json:"title"`
		Text        *string           `json:"text"`
		MainImage   *string           `json:"main_image"`
		PubDate     *string           `json:"pub_date"`
		Ingredients map[string]string `json:"ingredients"`
		PrepTime    *string           `json:"prep_time"`
	}
	o := out{
		URL:         r.URL,
		Category:    r.Category,
		Title:       r.Title,
		Text:        r.Text,
		MainImage:   r.MainImage,
		Ingredients: r.Ingredients,
	}
	if r.PubDate != nil {
		s := r.PubDate.Format(time.DateOnly)
		o.PubDate = &s
	}
	if r.PrepTime != nil {
		s := r.PrepTime.String()
		o.PrepTime = &s
	}
	return json.Marshal(o)
}

func ptr[T any](v T) *T { return &v }
