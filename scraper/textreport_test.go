package scraper

import (
	"strings"
	"testing"

	"campwatch.dev/worker/availability"
)

const sampleReport = `There are campsites available from 2025-08-14 to 2025-08-18!!!
🏕 Kirby Cove (232447): 2 site(s) available out of 5 site(s)
* Site 012 is available on the following dates:
  * 2025-08-15 -> 2025-08-17
* Site 003 is available on the following dates:
  * 2025-08-16 -> 2025-08-17
  * 2025-08-16 -> 2025-08-18
🏕 Hawk Camp (232448): 0 site(s) available out of 3 site(s)
`

func d(s string) availability.Date {
	return availability.MustParseDate(s)
}

func TestParseTextReport(t *testing.T) {
	parks, err := ParseTextReport(strings.NewReader(sampleReport))
	if err != nil {
		t.Fatalf("ParseTextReport: %v", err)
	}

	if len(parks) != 2 {
		t.Fatalf("expected 2 parks, got %d: %v", len(parks), parks)
	}

	kirby, ok := parks["Kirby Cove (232447)"]
	if !ok {
		t.Fatalf("missing Kirby Cove, got %v", parks)
	}

	want := map[availability.Date]int{
		d("2025-08-15"): 1,
		d("2025-08-16"): 2, // site 003 reported twice for this night counts once
		d("2025-08-17"): 1,
	}
	if len(kirby) != len(want) {
		t.Errorf("expected %d dates, got %v", len(want), kirby)
	}
	for day, n := range want {
		if kirby[day] != n {
			t.Errorf("count for %s = %d, expected %d", day, kirby[day], n)
		}
	}

	if hawk := parks["Hawk Camp (232448)"]; len(hawk) != 0 {
		t.Errorf("expected no free dates for Hawk Camp, got %v", hawk)
	}
}

func TestParseTextReportTolerance(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]int // label -> number of free dates
	}{
		{
			name:  "range before any site is ignored",
			input: "🏕 A (1): x\n  * 2025-08-15 -> 2025-08-16\n",
			want:  map[string]int{"A (1)": 0},
		},
		{
			name:  "range before any park is ignored",
			input: "* 2025-08-15 -> 2025-08-16\n🏕 A (1): x\n",
			want:  map[string]int{"A (1)": 0},
		},
		{
			name:  "malformed range lines are skipped",
			input: "🏕 A (1): x\n* Site 1 is available\n  * 2025-08-15 to 2025-08-16\n  * 2025-02-30 -> 2025-03-01\n  * 2025-08-20 -> 2025-08-21\n",
			want:  map[string]int{"A (1)": 1},
		},
		{
			name:  "park marker resets the current site",
			input: "🏕 A (1): x\n* Site 1 is available\n🏕 B (2): x\n  * 2025-08-15 -> 2025-08-16\n",
			want:  map[string]int{"A (1)": 0, "B (2)": 0},
		},
		{
			name:  "site marker without id clears the site",
			input: "🏕 A (1): x\n* Site 1 is available\n* Site\n  * 2025-08-15 -> 2025-08-16\n",
			want:  map[string]int{"A (1)": 0},
		},
		{
			name:  "reversed range is skipped",
			input: "🏕 A (1): x\n* Site 1 is available\n  * 2025-08-16 -> 2025-08-15\n",
			want:  map[string]int{"A (1)": 0},
		},
		{
			name:  "empty input",
			input: "",
			want:  map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parks, err := ParseTextReport(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("ParseTextReport: %v", err)
			}
			if len(parks) != len(tt.want) {
				t.Fatalf("expected %d parks, got %v", len(tt.want), parks)
			}
			for label, n := range tt.want {
				if got := len(parks[label].Dates()); got != n {
					t.Errorf("%s: expected %d free dates, got %d", label, n, got)
				}
			}
		})
	}
}

func TestParseTextReportFeedsWindowFinder(t *testing.T) {
	parks, err := ParseTextReport(strings.NewReader(sampleReport))
	if err != nil {
		t.Fatalf("ParseTextReport: %v", err)
	}

	report := availability.BuildFacilityReport(parks["Kirby Cove (232447)"], 2)
	key := "2025-08-15 (Fri) -> 2025-08-17 (Sun)"
	if report.Priority[key] != 1 {
		t.Errorf("expected priority %q with 1 site, got %v", key, report.Priority)
	}
	key = "2025-08-16 (Sat) -> 2025-08-18 (Mon)"
	if report.Regular[key] != 1 {
		t.Errorf("expected regular %q with 1 site, got %v", key, report.Regular)
	}
}
