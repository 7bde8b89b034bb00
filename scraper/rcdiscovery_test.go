package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const samplePlaces = `[
	{"PlaceId": 1, "Name": "Golden Gate SP", "Description": "Bay views", "Latitude": 37.7749, "Longitude": -122.4194},
	{"PlaceId": 2, "Name": "Angeles SP", "Latitude": 34.0522, "Longitude": -118.2437},
	{"PlaceId": 3, "Name": "Nowhere SP", "Latitude": 0, "Longitude": 0}
]`

const sampleFacilities = `[
	{"FacilityId": 10, "PlaceId": 1, "Name": "Lakeside Camp", "AllowWebBooking": true},
	{"FacilityId": 11, "PlaceId": 1, "Name": "Group Lodge", "AllowWebBooking": false},
	{"FacilityId": 20, "PlaceId": 2, "Name": "Pine Flat", "AllowWebBooking": true},
	{"FacilityId": 30, "PlaceId": 3, "Name": "Ghost Camp", "AllowWebBooking": true},
	{"FacilityId": 40, "PlaceId": 99, "Name": "Orphan Grove", "AllowWebBooking": true}
]`

func newListingServer(t *testing.T, failing *atomic.Bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header")
		}
		if failing != nil && failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		switch r.URL.Path {
		case placesPath:
			w.Write([]byte(samplePlaces))
		case facilitiesPath:
			w.Write([]byte(sampleFacilities))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newDiscoverySource(baseURL string, clock *time.Time) *ReserveCal {
	src := NewReserveCal(baseURL, NewRateLimiter(time.Millisecond))
	src.now = func() time.Time { return *clock }
	return src
}

func TestReserveCalMetadata(t *testing.T) {
	var failing atomic.Bool
	srv, hits := newListingServer(t, &failing)
	clock := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	src := newDiscoverySource(srv.URL, &clock)
	ctx := context.Background()

	meta, err := src.Metadata(ctx)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if len(meta.Places) != 3 || len(meta.Facilities) != 5 {
		t.Fatalf("unexpected listings: %d places, %d facilities", len(meta.Places), len(meta.Facilities))
	}

	t.Run("cached within ttl", func(t *testing.T) {
		clock = clock.Add(30 * time.Minute)
		if _, err := src.Metadata(ctx); err != nil {
			t.Fatalf("Metadata: %v", err)
		}
		if got := hits.Load(); got != 2 {
			t.Errorf("expected 2 upstream requests, got %d", got)
		}
	})

	t.Run("refreshed after ttl", func(t *testing.T) {
		clock = clock.Add(time.Hour)
		refreshed, err := src.Metadata(ctx)
		if err != nil {
			t.Fatalf("Metadata: %v", err)
		}
		if got := hits.Load(); got != 4 {
			t.Errorf("expected 4 upstream requests, got %d", got)
		}
		if !refreshed.FetchedAt.Equal(clock) {
			t.Errorf("expected fetch time %s, got %s", clock, refreshed.FetchedAt)
		}
	})

	t.Run("stale listings survive a failed refresh", func(t *testing.T) {
		failing.Store(true)
		clock = clock.Add(2 * time.Hour)
		stale, err := src.Metadata(ctx)
		if err != nil {
			t.Fatalf("expected stale listings, got %v", err)
		}
		if len(stale.Facilities) != 5 || !stale.FetchedAt.Before(clock) {
			t.Errorf("unexpected stale listings %+v", stale)
		}
	})

	t.Run("first load failure", func(t *testing.T) {
		fresh := newDiscoverySource(srv.URL, &clock)
		_, err := fresh.Metadata(ctx)
		var uerr *UpstreamError
		if !errors.As(err, &uerr) || uerr.Provider != ReserveCalifornia {
			t.Fatalf("expected UpstreamError, got %v", err)
		}
	})
}

func TestReserveCalDiscover(t *testing.T) {
	srv, _ := newListingServer(t, nil)
	clock := time.Now()
	src := newDiscoverySource(srv.URL, &clock)
	src.BookingBaseURL = "https://book.example/"
	ctx := context.Background()

	near, err := src.Discover(ctx, 37.80, -122.45, 50)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(near) != 1 {
		t.Fatalf("expected 1 nearby campground, got %+v", near)
	}
	c := near[0]
	if c.ID != "rc:10" || c.Name != "Lakeside Camp" || c.Provider != "ReserveCalifornia" || c.Type != "Campground" {
		t.Errorf("unexpected campground %+v", c)
	}
	if c.BookingURL != "https://book.example/Web/Default.aspx#!park/1/10" {
		t.Errorf("unexpected booking url %q", c.BookingURL)
	}
	if c.Latitude != 37.7749 || c.Description != "Bay views" || c.DistanceMiles <= 0 || c.DistanceMiles > 5 {
		t.Errorf("unexpected location fields %+v", c)
	}

	wide, err := src.Discover(ctx, 37.80, -122.45, 500)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	var ids []string
	for _, c := range wide {
		ids = append(ids, c.ID)
	}
	if len(ids) != 2 || ids[0] != "rc:10" || ids[1] != "rc:20" {
		t.Errorf("expected nearest first without unbookable or unplaced entries, got %v", ids)
	}

	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "name", "latitude", "longitude", "booking_url", "provider", "distance_miles"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing JSON field %q in %s", key, raw)
		}
	}
}

func TestReserveCalSearchByName(t *testing.T) {
	srv, _ := newListingServer(t, nil)
	clock := time.Now()
	src := newDiscoverySource(srv.URL, &clock)
	ctx := context.Background()

	tests := []struct {
		query    string
		expected []string
	}{
		{"lakeside", []string{"rc:10"}},
		{"  GOLDEN gate ", []string{"rc:10"}},
		{"camp", []string{"rc:10", "rc:30"}},
		{"orphan", []string{"rc:40"}},
		{"lodge", nil},
		{"yosemite", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			found, err := src.SearchByName(ctx, tt.query)
			if err != nil {
				t.Fatalf("SearchByName: %v", err)
			}
			var ids []string
			for _, c := range found {
				ids = append(ids, c.ID)
			}
			if len(ids) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, ids)
			}
			for i := range ids {
				if ids[i] != tt.expected[i] {
					t.Errorf("expected %v, got %v", tt.expected, ids)
				}
			}
		})
	}

	t.Run("unplaced facility keeps a booking url", func(t *testing.T) {
		found, _ := src.SearchByName(ctx, "orphan")
		if len(found) != 1 || found[0].BookingURL != DefaultRCBookingBaseURL+"/Web/Default.aspx#!park//40" {
			t.Errorf("unexpected result %+v", found)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		if _, err := src.SearchByName(ctx, "  "); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("expected ErrEmptyQuery, got %v", err)
		}
	})
}

func TestHaversineMiles(t *testing.T) {
	// San Francisco to Los Angeles.
	got := HaversineMiles(37.7749, -122.4194, 34.0522, -118.2437)
	if math.Abs(got-347) > 2 {
		t.Errorf("expected about 347 miles, got %.1f", got)
	}
	if d := HaversineMiles(36.5, -118.5, 36.5, -118.5); d != 0 {
		t.Errorf("expected zero distance, got %f", d)
	}
}
