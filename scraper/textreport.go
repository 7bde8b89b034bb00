package scraper

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"campwatch.dev/worker/availability"
)

const (
	parkMarker = "🏕"
	siteMarker = "* Site"
)

// ParseTextReport reads the line-oriented availability report printed by the
// Recreation.gov camping script:
//
//	🏕 Kirby Cove (232447): 2 site(s) available out of 5 site(s)
//	* Site 012 is available on the following dates:
//	  * 2025-08-15 -> 2025-08-17
//
// and returns, per park label, how many distinct sites are free on each date.
// Range lines outside a site section and malformed range lines are skipped.
func ParseTextReport(r io.Reader) (map[string]availability.FreeCounts, error) {
	sites := make(map[string]map[availability.Date]map[string]bool)
	var order []string

	var park, site string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, parkMarker):
			label, _, _ := strings.Cut(line, ":")
			park = strings.TrimSpace(strings.TrimPrefix(label, parkMarker))
			site = ""
			if _, ok := sites[park]; !ok {
				sites[park] = make(map[availability.Date]map[string]bool)
				order = append(order, park)
			}

		case strings.HasPrefix(line, siteMarker):
			fields := strings.Fields(line)
			site = ""
			if len(fields) >= 3 {
				site = fields[2]
			}

		case strings.HasPrefix(line, "* "):
			if park == "" || site == "" {
				slog.Debug("range line outside a site section", "line", lineNo)
				continue
			}
			start, end, err := parseTextRange(strings.TrimPrefix(line, "* "))
			if err != nil {
				slog.Debug("skipping malformed range line", "line", lineNo, "error", err)
				continue
			}
			for d := start; d.Before(end); d = d.AddDays(1) {
				if sites[park][d] == nil {
					sites[park][d] = make(map[string]bool)
				}
				sites[park][d][site] = true
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read text report: %w", err)
	}

	out := make(map[string]availability.FreeCounts, len(order))
	for _, label := range order {
		counts := availability.FreeCounts{}
		for d, free := range sites[label] {
			counts[d] = len(free)
		}
		out[label] = counts
	}
	return out, nil
}

func parseTextRange(s string) (availability.Date, availability.Date, error) {
	a, b, ok := strings.Cut(s, "->")
	if !ok {
		return availability.Date{}, availability.Date{}, &availability.FormatError{Input: s, Reason: "expected YYYY-MM-DD -> YYYY-MM-DD"}
	}
	start, err := availability.ParseDate(strings.TrimSpace(a))
	if err != nil {
		return availability.Date{}, availability.Date{}, err
	}
	end, err := availability.ParseDate(strings.TrimSpace(b))
	if err != nil {
		return availability.Date{}, availability.Date{}, err
	}
	if !start.Before(end) {
		return availability.Date{}, availability.Date{}, &availability.FormatError{Input: s, Reason: "end must be after start"}
	}
	return start, end, nil
}
