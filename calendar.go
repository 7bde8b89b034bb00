package worker

import (
	"regexp"
	"strings"

	"campwatch.dev/worker/availability"
	"campwatch.dev/worker/scraper"
)

var labelIDPattern = regexp.MustCompile(`\s*\(((?:rc:|rg:)?\d+)\)\s*$`)

// CalendarDay is one bookable check-in night.
type CalendarDay struct {
	Count    int    `json:"count"`
	Type     string `json:"type"`
	Checkout string `json:"checkout"`
}

// FacilityCalendar lays a facility's windows out per night.
type FacilityCalendar struct {
	ParkID   string                 `json:"park_id"`
	Provider string                 `json:"provider"`
	Dates    map[string]CalendarDay `json:"dates"`
}

// BuildCalendar projects a report onto per-night calendars keyed by facility
// name. Each night takes the best category that covers it; within a category
// the earliest window wins. Range keys that do not parse are skipped.
func BuildCalendar(report availability.Report) map[string]FacilityCalendar {
	out := make(map[string]FacilityCalendar, len(report))

	for _, label := range report.Labels() {
		name, parkID := splitLabel(label)
		provider, _ := scraper.ParseProviderID(parkID)

		dates := make(map[string]CalendarDay)
		fr := report[label]
		for _, cat := range []availability.Category{availability.Priority, availability.Regular, availability.Ignored} {
			ranges := fr.Bucket(cat)
			for _, key := range ranges.Keys() {
				start, end, err := availability.ParseRange(key)
				if err != nil {
					continue
				}
				for d := start; d.Before(end); d = d.AddDays(1) {
					if _, taken := dates[d.String()]; taken {
						continue
					}
					dates[d.String()] = CalendarDay{
						Count:    ranges[key],
						Type:     cat.String(),
						Checkout: end.String(),
					}
				}
			}
		}

		out[name] = FacilityCalendar{
			ParkID:   parkID,
			Provider: provider.DisplayName(),
			Dates:    dates,
		}
	}
	return out
}

// splitLabel turns "Big Basin (rc:718)" into ("Big Basin", "rc:718").
func splitLabel(label string) (name, id string) {
	m := labelIDPattern.FindStringSubmatchIndex(label)
	if m == nil {
		return strings.TrimSpace(label), ""
	}
	return strings.TrimSpace(label[:m[0]]), label[m[2]:m[3]]
}
