package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	// 2025-08-14 is a Thursday.
	tests := []struct {
		name      string
		start     string
		nights    int
		minNights int
		want      Category
	}{
		{"1 night friday", "2025-08-15", 1, 1, Priority},
		{"1 night saturday", "2025-08-16", 1, 1, Priority},
		{"1 night thursday", "2025-08-14", 1, 1, Regular},
		{"1 night sunday", "2025-08-17", 1, 1, Regular},
		{"1 night monday", "2025-08-18", 1, 1, Ignored},
		{"1 night wednesday", "2025-08-13", 1, 1, Ignored},

		{"2 nights friday to sunday", "2025-08-15", 2, 2, Priority},
		{"2 nights thursday to saturday", "2025-08-14", 2, 2, Regular},
		{"2 nights saturday to monday", "2025-08-16", 2, 2, Regular},
		{"2 nights sunday to tuesday", "2025-08-17", 2, 2, Ignored},
		{"2 nights monday to wednesday", "2025-08-18", 2, 2, Ignored},
		{"2 nights wednesday to friday", "2025-08-13", 2, 2, Ignored},

		{"3 nights thursday", "2025-08-14", 3, 3, Priority},
		{"3 nights friday", "2025-08-15", 3, 3, Priority},
		{"3 nights saturday", "2025-08-16", 3, 3, Ignored},
		{"3 nights sunday", "2025-08-17", 3, 3, Ignored},

		{"4 nights thursday", "2025-08-14", 4, 4, Priority},
		{"4 nights friday", "2025-08-15", 4, 4, Ignored},

		{"5 nights monday", "2025-08-18", 5, 5, Priority},
		{"7 nights tuesday", "2025-08-19", 7, 7, Priority},

		{"stay shorter than requested", "2025-08-15", 1, 2, Excluded},
		{"zero min nights", "2025-08-15", 1, 0, Excluded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := MustParseDate(tt.start)
			got := Classify(start, start.AddDays(tt.nights), tt.minNights)
			require.Equal(t, tt.want, got, "Classify(%s, +%d, %d)", tt.start, tt.nights, tt.minNights)
		})
	}
}

func TestClassifyIgnoresYear(t *testing.T) {
	for year := 2019; year <= 2032; year++ {
		d := Date{Year: year, Month: time.August, Day: 1}
		for d.Weekday() != time.Friday {
			d = d.AddDays(1)
		}
		require.Equal(t, Priority, Classify(d, d.AddDays(1), 1), "friday %s", d)
		require.Equal(t, Priority, Classify(d, d.AddDays(2), 2), "friday %s", d)
		require.Equal(t, Regular, Classify(d.AddDays(-1), d.AddDays(1), 2), "thursday %s", d.AddDays(-1))
		require.Equal(t, Ignored, Classify(d.AddDays(3), d.AddDays(4), 1), "monday %s", d.AddDays(3))
	}
}

func TestClassifyExcludesShortStays(t *testing.T) {
	start := MustParseDate("2025-01-01")
	for minNights := 1; minNights <= 6; minNights++ {
		for nights := 0; nights < minNights; nights++ {
			for offset := 0; offset < 7; offset++ {
				s := start.AddDays(offset)
				require.Equal(t, Excluded, Classify(s, s.AddDays(nights), minNights))
			}
		}
	}
}

func TestCategoryString(t *testing.T) {
	require.Equal(t, "priority", Priority.String())
	require.Equal(t, "regular", Regular.String())
	require.Equal(t, "ignored", Ignored.String())
	require.Equal(t, "excluded", Excluded.String())
}
