package availability

import "sort"

// FreeCounts maps a calendar day to the number of units free on it.
// A missing day and a zero count both mean nothing is free.
type FreeCounts map[Date]int

// Add increments the count for d.
func (fc FreeCounts) Add(d Date, n int) {
	fc[d] += n
}

// Dates returns the days with at least one free unit in ascending order.
func (fc FreeCounts) Dates() []Date {
	dates := make([]Date, 0, len(fc))
	for d, n := range fc {
		if n > 0 {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// WindowCount is a fully free window and its bottleneck unit count.
type WindowCount struct {
	Window
	Available int
}

// ClassifiedWindow is a window tagged with its weekend category.
type ClassifiedWindow struct {
	Window
	Category  Category
	Available int
}

// FindWindows returns every window of exactly minNights nights whose nights
// all have a free unit, in ascending start order. Overlapping windows are all
// reported; Available is the smallest count across the window's nights.
func FindWindows(counts FreeCounts, minNights int) []WindowCount {
	if minNights < 1 {
		return nil
	}

	var windows []WindowCount
	seen := make(map[Window]bool)
	for _, day := range counts.Dates() {
		available := counts[day]
		ok := true
		for n := 1; n < minNights; n++ {
			c := counts[day.AddDays(n)]
			if c <= 0 {
				ok = false
				break
			}
			if c < available {
				available = c
			}
		}
		if !ok {
			continue
		}

		w := Window{Start: day, End: day.AddDays(minNights)}
		if seen[w] {
			continue
		}
		seen[w] = true
		windows = append(windows, WindowCount{Window: w, Available: available})
	}
	return windows
}

// ClassifyWindows tags each window and drops the excluded ones.
func ClassifyWindows(windows []WindowCount, minNights int) []ClassifiedWindow {
	out := make([]ClassifiedWindow, 0, len(windows))
	for _, w := range windows {
		cat := Classify(w.Start, w.End, minNights)
		if cat == Excluded {
			continue
		}
		out = append(out, ClassifiedWindow{Window: w.Window, Category: cat, Available: w.Available})
	}
	return out
}
