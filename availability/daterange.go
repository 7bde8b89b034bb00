package availability

import (
	"fmt"
	"regexp"
	"strings"
)

// Fixed English abbreviations so rendered keys never depend on the host locale.
var weekdayAbbrev = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

var rangePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s*\(([A-Za-z]+)\)\s*->\s*(\d{4}-\d{2}-\d{2})\s*\(([A-Za-z]+)\)$`)

// Window is the half-open stay [Start, End): Start is check-in, End is check-out.
type Window struct {
	Start Date
	End   Date
}

func (w Window) Nights() int {
	return DaysBetween(w.Start, w.End)
}

// Key renders the window the way reports key their entries.
func (w Window) Key() string {
	return FormatRange(w.Start, w.End)
}

// FormatRange renders "2025-08-15 (Fri) -> 2025-08-17 (Sun)".
func FormatRange(start, end Date) string {
	return fmt.Sprintf("%s (%s) -> %s (%s)",
		start, weekdayAbbrev[start.Weekday()],
		end, weekdayAbbrev[end.Weekday()])
}

// ParseRange is the inverse of FormatRange. The weekday names are informational
// and are not checked against the dates.
func ParseRange(s string) (Date, Date, error) {
	m := rangePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Date{}, Date{}, &FormatError{Input: s, Reason: "expected YYYY-MM-DD (Day) -> YYYY-MM-DD (Day)"}
	}
	start, err := ParseDate(m[1])
	if err != nil {
		return Date{}, Date{}, err
	}
	end, err := ParseDate(m[3])
	if err != nil {
		return Date{}, Date{}, err
	}
	return start, end, nil
}
