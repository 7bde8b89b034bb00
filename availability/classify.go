package availability

import "time"

// Category ranks a window by how well it fits a weekend trip.
type Category int

const (
	// Excluded windows are shorter than requested and never reported.
	Excluded Category = iota
	Ignored
	Regular
	Priority
)

func (c Category) String() string {
	switch c {
	case Priority:
		return "priority"
	case Regular:
		return "regular"
	case Ignored:
		return "ignored"
	default:
		return "excluded"
	}
}

// Classify tags the stay [start, end) requested with minNights.
//
//	1 night:  Fri/Sat priority, Thu/Sun regular
//	2 nights: Fri->Sat priority; Thu..Sun start ending Sat/Sun/Mon regular
//	3 nights: Thu/Fri start priority
//	4 nights: Thu start priority
//	5+:       always priority
//
// 3 and 4 night stays have no regular tier.
func Classify(start, end Date, minNights int) Category {
	if minNights < 1 || DaysBetween(start, end) < minNights {
		return Excluded
	}

	sw := start.Weekday()
	switch minNights {
	case 1:
		switch sw {
		case time.Friday, time.Saturday:
			return Priority
		case time.Thursday, time.Sunday:
			return Regular
		}
		return Ignored

	case 2:
		if sw == time.Friday && start.AddDays(1).Weekday() == time.Saturday {
			return Priority
		}
		ew := end.Weekday()
		startsLate := sw == time.Thursday || sw == time.Friday || sw == time.Saturday || sw == time.Sunday
		endsWeekend := ew == time.Saturday || ew == time.Sunday || ew == time.Monday
		if startsLate && endsWeekend {
			return Regular
		}
		return Ignored

	case 3:
		if sw == time.Thursday || sw == time.Friday {
			return Priority
		}
		return Ignored

	case 4:
		if sw == time.Thursday {
			return Priority
		}
		return Ignored
	}

	return Priority
}
