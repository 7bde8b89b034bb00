package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	placesPath     = "/rdr/fd/places"
	facilitiesPath = "/rdr/fd/facilities"

	// DefaultRCBookingBaseURL is the public ReserveCalifornia site.
	DefaultRCBookingBaseURL = "https://www.reservecalifornia.com"
	// DefaultRCMetadataTTL is how long place and facility listings are cached.
	DefaultRCMetadataTTL = time.Hour

	earthRadiusMiles = 3958.8
	maxListingBodyMB = 64
)

// ErrEmptyQuery is returned by SearchByName for a blank query.
var ErrEmptyQuery = errors.New("reservecal: empty campground name query")

// RCPlace is a park in the ReserveCalifornia listings.
type RCPlace struct {
	PlaceID     int     `json:"PlaceId"`
	Name        string  `json:"Name"`
	Description string  `json:"Description"`
	Latitude    float64 `json:"Latitude"`
	Longitude   float64 `json:"Longitude"`
}

// RCFacility is a bookable area (usually a campground) inside a place.
type RCFacility struct {
	FacilityID      int    `json:"FacilityId"`
	PlaceID         int    `json:"PlaceId"`
	Name            string `json:"Name"`
	AllowWebBooking bool   `json:"AllowWebBooking"`
}

// RCMetadata is one snapshot of the place and facility listings.
type RCMetadata struct {
	Places     []RCPlace
	Facilities []RCFacility
	FetchedAt  time.Time
}

func (m *RCMetadata) placeMap() map[int]RCPlace {
	places := make(map[int]RCPlace, len(m.Places))
	for _, p := range m.Places {
		if p.PlaceID != 0 {
			places[p.PlaceID] = p
		}
	}
	return places
}

// Campground is a discovered facility in the shape campground listings use.
// ID is provider-qualified ("rc:718") and can be passed straight to a search.
type Campground struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Description   string  `json:"description"`
	Type          string  `json:"type"`
	Provider      string  `json:"provider"`
	BookingURL    string  `json:"booking_url"`
	DistanceMiles float64 `json:"distance_miles,omitempty"`
}

// Metadata returns the place and facility listings, fetching them again once
// MetadataTTL has passed. When a refresh fails and an older snapshot exists,
// the older snapshot is returned.
func (s *ReserveCal) Metadata(ctx context.Context) (*RCMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.meta != nil && now.Sub(s.meta.FetchedAt) < s.MetadataTTL {
		return s.meta, nil
	}

	slog.Info("refreshing reservecalifornia metadata")
	meta := &RCMetadata{FetchedAt: now}
	err := s.getListing(ctx, placesPath, &meta.Places)
	if err == nil {
		err = s.getListing(ctx, facilitiesPath, &meta.Facilities)
	}
	if err != nil {
		if s.meta != nil {
			slog.Warn("reservecalifornia metadata refresh failed, using cached listings",
				"age", now.Sub(s.meta.FetchedAt), "error", err)
			return s.meta, nil
		}
		return nil, &UpstreamError{Provider: ReserveCalifornia, Status: StatusNetworkError, Err: err}
	}

	s.meta = meta
	slog.Info("reservecalifornia metadata loaded", "places", len(meta.Places), "facilities", len(meta.Facilities))
	return meta, nil
}

func (s *ReserveCal) getListing(ctx context.Context, path string, v any) error {
	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status: %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxListingBodyMB<<20)).Decode(v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Discover lists online-bookable campgrounds whose park lies within
// radiusMiles of (lat, lng), nearest first. Parks without coordinates are
// skipped.
func (s *ReserveCal) Discover(ctx context.Context, lat, lng, radiusMiles float64) ([]Campground, error) {
	meta, err := s.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	places := meta.placeMap()

	var out []Campground
	for _, fac := range meta.Facilities {
		if !fac.AllowWebBooking {
			continue
		}
		place, ok := places[fac.PlaceID]
		if !ok || (place.Latitude == 0 && place.Longitude == 0) {
			continue
		}
		dist := HaversineMiles(lat, lng, place.Latitude, place.Longitude)
		if dist > radiusMiles {
			continue
		}
		c := s.campground(fac, &place)
		c.DistanceMiles = math.Round(dist*10) / 10
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMiles < out[j].DistanceMiles })
	slog.Info("reservecalifornia discovery", "campgrounds", len(out), "radius_miles", radiusMiles, "lat", lat, "lng", lng)
	return out, nil
}

// SearchByName lists online-bookable campgrounds whose own name or park name
// contains query, ignoring case.
func (s *ReserveCal) SearchByName(ctx context.Context, query string) ([]Campground, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, ErrEmptyQuery
	}
	meta, err := s.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	places := meta.placeMap()

	var out []Campground
	for _, fac := range meta.Facilities {
		if !fac.AllowWebBooking {
			continue
		}
		var place *RCPlace
		if p, ok := places[fac.PlaceID]; ok {
			place = &p
		}
		matches := strings.Contains(strings.ToLower(fac.Name), q)
		if !matches && place != nil {
			matches = strings.Contains(strings.ToLower(place.Name), q)
		}
		if matches {
			out = append(out, s.campground(fac, place))
		}
	}
	return out, nil
}

func (s *ReserveCal) campground(fac RCFacility, place *RCPlace) Campground {
	id := strconv.Itoa(fac.FacilityID)
	name := fac.Name
	if name == "" {
		name = "Unknown"
	}
	c := Campground{
		ID:       QualifiedID(ReserveCalifornia, id),
		Name:     name,
		Type:     "Campground",
		Provider: ReserveCalifornia.DisplayName(),
	}
	placeID := ""
	if place != nil {
		placeID = strconv.Itoa(place.PlaceID)
		c.Latitude = place.Latitude
		c.Longitude = place.Longitude
		c.Description = place.Description
	}
	c.BookingURL = fmt.Sprintf("%s/Web/Default.aspx#!park/%s/%s", strings.TrimRight(s.BookingBaseURL, "/"), placeID, id)
	return c
}

// HaversineMiles is the great-circle distance between two points in miles.
func HaversineMiles(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
