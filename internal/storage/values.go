package storage

import (
	"strings"
	"time"
)

// NormalizeSourceURL is the canonical form sources are stored and matched under:
// surrounding space and one trailing "/" removed.
func NormalizeSourceURL(url string) string {
	url = strings.TrimSpace(url)
	return strings.TrimSuffix(url, "/")
}

// NullString converts an optional string to a driver argument.
func NullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// NullSeconds converts an optional duration to whole seconds.
func NullSeconds(d *time.Duration) any {
	if d == nil {
		return nil
	}
	return int64(d.Round(time.Second) / time.Second)
}

// NullDate converts an optional date to a "YYYY-MM-DD" string for backends
// without a native DATE type.
func NullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}
