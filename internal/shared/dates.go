package shared

import (
	"fmt"
	"strings"
	"time"
)

// DisplayDateLayout is the DD-MM-YYYY layout used across enquiry and payment records.
const DisplayDateLayout = "02-01-2006"

// FormatDate renders t as DD-MM-YYYY.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DisplayDateLayout)
}

// ParseDate accepts DD-MM-YYYY, YYYY-MM-DD or RFC3339 input.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{DisplayDateLayout, "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}
