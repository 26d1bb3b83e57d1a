package extracthtml

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// monthStems maps Russian month stems (any case form) to English abbreviations.
// Order matters: "мар" must be tried before "ма".
var monthStems = []struct{ stem, en string }{
	{"янв", "Jan"},
	{"фев", "Feb"},
	{"мар", "Mar"},
	{"апр", "Apr"},
	{"мая", "May"},
	{"май", "May"},
	{"июн", "Jun"},
	{"июл", "Jul"},
	{"авг", "Aug"},
	{"сен", "Sep"},
	{"окт", "Oct"},
	{"ноя", "Nov"},
	{"дек", "Dec"},
}

var (
	reYearSuffix = regexp.MustCompile(`(?i)\s*(г\.?|года?)\s*$`)
	reHours      = regexp.MustCompile(`(?i)(\d+)\s*(?:ч|час\p{L}*|h|hours?|hrs?)`)
	reMinutes    = regexp.MustCompile(`(?i)(\d+)\s*(?:м|мин\p{L}*|m|min\p{L}*)`)
	reDays       = regexp.MustCompile(`(?i)(\d+)\s*(?:д|дн\p{L}*|день|days?)`)
)

var nowFunc = time.Now

// ParseDate parses a publication date.
//
// With a layout the parse is strict and a mismatch is returned as an error.
// Without one the parse is best-effort: Russian month names and the words
// "сегодня"/"вчера" are understood, anything dateparse accepts is accepted,
// and an unparseable string is reported as absent with no error.
func ParseDate(s, layout string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	if layout != "" {
		t, err := time.Parse(layout, s)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("pub_date %q does not match layout %q: %w", s, layout, err)
		}
		return t, true, nil
	}
	t, ok := parseNaturalDate(s, nowFunc())
	return t, ok, nil
}

func parseNaturalDate(s string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case strings.HasPrefix(lower, "сегодня"), strings.HasPrefix(lower, "today"):
		return today, true
	case strings.HasPrefix(lower, "вчера"), strings.HasPrefix(lower, "yesterday"):
		return today.AddDate(0, 0, -1), true
	}

	normalized := reYearSuffix.ReplaceAllString(translateMonths(strings.TrimSpace(s)), "")
	t, err := dateparse.ParseAny(normalized)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// translateMonths replaces Russian month words with English abbreviations.
func translateMonths(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		lw := strings.ToLower(w)
		for _, m := range monthStems {
			if strings.HasPrefix(lw, m.stem) {
				words[i] = m.en
				break
			}
		}
	}
	return strings.Join(words, " ")
}

// ParseRussianDuration parses durations such as "1 час 30 мин", "45 минут",
// "2 ч" or "1 день". The boolean is false when no component is found.
func ParseRussianDuration(s string) (time.Duration, bool) {
	var (
		total time.Duration
		found bool
	)
	add := func(re *regexp.Regexp, unit time.Duration) {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			total += time.Duration(n) * unit
			found = true
		}
	}
	add(reDays, 24*time.Hour)
	add(reHours, time.Hour)
	add(reMinutes, time.Minute)
	return total, found
}
