package notifier

import (
	"fmt"
	"strings"

	"campwatch.dev/worker/availability"
)

// Stay is one bookable window in a notification.
type Stay struct {
	Facility  string
	Range     string
	Available int
}

// Stays lists the windows of one category across every facility, facilities
// in label order and windows in date order.
func Stays(report availability.Report, cat availability.Category) []Stay {
	var stays []Stay
	for _, label := range report.Labels() {
		ranges := report[label].Bucket(cat)
		for _, key := range ranges.Keys() {
			stays = append(stays, Stay{Facility: label, Range: key, Available: ranges[key]})
		}
	}
	return stays
}

func subject(n *Notification) string {
	return fmt.Sprintf("[campwatch] Campsites available - %s", n.FacilityName)
}

func siteCount(n int) string {
	if n == 1 {
		return "1 site"
	}
	return fmt.Sprintf("%d sites", n)
}

// FormatText renders a plain text message: weekend stays first, then the
// other good fits. Off-peak windows are only counted.
func FormatText(n *Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Campsites opened up for your watch on %s.\n", n.FacilityName)

	sections := []struct {
		title string
		cat   availability.Category
	}{
		{"Weekend stays", availability.Priority},
		{"Other stays", availability.Regular},
	}
	for _, sec := range sections {
		stays := Stays(n.Report, sec.cat)
		if len(stays) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", sec.title)
		for _, s := range stays {
			fmt.Fprintf(&b, "  %s: %s, %s\n", s.Facility, s.Range, siteCount(s.Available))
		}
	}

	if off := len(Stays(n.Report, availability.Ignored)); off > 0 {
		fmt.Fprintf(&b, "\n%d off-peak window(s) not shown.\n", off)
	}
	b.WriteString("\nBook soon, sites go fast.\n")
	return b.String()
}
