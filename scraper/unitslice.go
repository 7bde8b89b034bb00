package scraper

import (
	"log/slog"

	"campwatch.dev/worker/availability"
)

// GridResponse is the body returned by the ReserveCalifornia /rdr/search/grid endpoint.
type GridResponse struct {
	Facility *GridFacility `json:"Facility"`
}

type GridFacility struct {
	FacilityID int                 `json:"FacilityId"`
	Name       string              `json:"Name"`
	Units      map[string]GridUnit `json:"Units"`
}

type GridUnit struct {
	UnitID int                  `json:"UnitId"`
	Name   string               `json:"Name"`
	Slices map[string]GridSlice `json:"Slices"`
}

// GridSlice is one bookable slice of a unit. Its date is the first ten
// characters of the key in GridUnit.Slices.
type GridSlice struct {
	Date   string `json:"Date"`
	IsFree bool   `json:"IsFree"`
}

// CountFreeUnits returns, per date, how many distinct units have at least one
// free slice. A facility with no units yields an empty map.
func CountFreeUnits(f *GridFacility) availability.FreeCounts {
	counts := availability.FreeCounts{}
	if f == nil {
		return counts
	}

	seen := make(map[availability.Date]map[string]bool)
	for unitID, unit := range f.Units {
		for key, slice := range unit.Slices {
			if !slice.IsFree {
				continue
			}
			if len(key) < 10 {
				slog.Debug("skipping slice with short key", "unit", unitID, "key", key)
				continue
			}
			day, err := availability.ParseDate(key[:10])
			if err != nil {
				slog.Debug("skipping slice with bad date", "unit", unitID, "key", key)
				continue
			}
			if seen[day] == nil {
				seen[day] = make(map[string]bool)
			}
			if seen[day][unitID] {
				continue
			}
			seen[day][unitID] = true
			counts.Add(day, 1)
		}
	}
	return counts
}
