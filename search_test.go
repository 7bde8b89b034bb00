package worker

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"campwatch.dev/worker/availability"
	"campwatch.dev/worker/db"
	"campwatch.dev/worker/scraper"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenAndMigrate(context.Background(), db.Config{
		Path: filepath.Join(t.TempDir(), "test.sqlite3"),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// fakeSource reports every facility free on a Friday and Saturday unless its
// ID starts with "bad".
type fakeSource struct {
	provider scraper.Provider

	mu    sync.Mutex
	calls [][]string
}

func (f *fakeSource) Provider() scraper.Provider { return f.provider }

func (f *fakeSource) Fetch(ctx context.Context, q scraper.Query) (*scraper.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, slices.Clone(q.FacilityIDs))
	f.mu.Unlock()

	for _, id := range q.FacilityIDs {
		if strings.HasPrefix(id, "bad") {
			return &scraper.Result{Status: scraper.StatusNetworkError, Error: "connection refused"}, nil
		}
	}

	res := &scraper.Result{
		Success:    true,
		Status:     scraper.StatusSuccess,
		Facilities: make(map[string]availability.FreeCounts),
	}
	for _, id := range q.FacilityIDs {
		res.Facilities[scraper.FacilityLabel(f.provider, "Camp "+id, id)] = availability.FreeCounts{
			availability.MustParseDate("2025-08-15"): 2,
			availability.MustParseDate("2025-08-16"): 3,
		}
	}
	return res, nil
}

func (f *fakeSource) batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

type mapCache struct {
	entries map[string]availability.Report
	gets    int
}

func (c *mapCache) Get(ctx context.Context, key string) (availability.Report, bool, error) {
	c.gets++
	r, ok := c.entries[key]
	return r, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key string, report availability.Report) error {
	c.entries[key] = report
	return nil
}

func testRequest(ids ...string) SearchRequest {
	return SearchRequest{
		FacilityIDs: ids,
		Start:       availability.MustParseDate("2025-08-14"),
		End:         availability.MustParseDate("2025-08-18"),
		Nights:      2,
	}
}

const friToSun = "2025-08-15 (Fri) -> 2025-08-17 (Sun)"

func TestSearchRequestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(r *SearchRequest)
		problems []string
	}{
		{"valid", func(r *SearchRequest) {}, nil},
		{"no ids", func(r *SearchRequest) { r.FacilityIDs = []string{" ", ""} }, []string{"at least one facility ID is required"}},
		{"missing dates", func(r *SearchRequest) { r.Start = availability.Date{}; r.End = availability.Date{} },
			[]string{"start date is required", "end date is required"}},
		{"end before start", func(r *SearchRequest) { r.End = r.Start.AddDays(-1) }, []string{"end date must be after start date"}},
		{"zero nights", func(r *SearchRequest) { r.Nights = 0 }, []string{"nights must be at least 1"}},
		{"nights exceed range", func(r *SearchRequest) { r.Nights = 5 }, []string{"nights (5) exceeds the 4-day date range"}},
		{"nights fill range", func(r *SearchRequest) { r.Nights = 4 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest("232447")
			tt.mutate(&req)
			err := req.Validate()
			if tt.problems == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var verr *availability.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !slices.Equal(verr.Problems, tt.problems) {
				t.Errorf("problems = %q, expected %q", verr.Problems, tt.problems)
			}
		})
	}
}

func TestBatchHelpers(t *testing.T) {
	t.Run("batches of five", func(t *testing.T) {
		ids := []string{"1", "2", "3", "4", "5", "6", "7"}
		got := Batches(ids, 5)
		if len(got) != 2 || len(got[0]) != 5 || len(got[1]) != 2 {
			t.Errorf("Batches = %v, expected groups of 5 and 2", got)
		}
	})

	t.Run("invalid size falls back to default", func(t *testing.T) {
		got := Batches([]string{"1", "2", "3", "4", "5", "6"}, 0)
		if len(got) != 2 {
			t.Errorf("expected 2 batches, got %d", len(got))
		}
	})

	t.Run("searcher default timeout", func(t *testing.T) {
		s := NewSearcher(scraper.NewRegistry())
		if got := s.Timeout(4); got != BatchTimeout(4) {
			t.Errorf("default Timeout(4) = %s, expected %s", got, BatchTimeout(4))
		}
	})

	t.Run("timeout", func(t *testing.T) {
		tests := []struct {
			n        int
			expected time.Duration
		}{
			{1, 60 * time.Second},
			{2, 60 * time.Second},
			{3, 90 * time.Second},
			{5, 150 * time.Second},
		}
		for _, tt := range tests {
			if got := BatchTimeout(tt.n); got != tt.expected {
				t.Errorf("BatchTimeout(%d) = %s, expected %s", tt.n, got, tt.expected)
			}
		}
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("merges both providers", func(t *testing.T) {
		rg := &fakeSource{provider: scraper.RecreationGov}
		rc := &fakeSource{provider: scraper.ReserveCalifornia}
		s := NewSearcher(scraper.NewRegistry(rg, rc))

		report, err := s.Search(ctx, testRequest("232447", "rc:718"))
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}

		expected := []string{"Camp 232447 (232447)", "Camp 718 (rc:718)"}
		if !slices.Equal(report.Labels(), expected) {
			t.Fatalf("labels = %q, expected %q", report.Labels(), expected)
		}
		if got := report["Camp 718 (rc:718)"].Priority[friToSun]; got != 2 {
			t.Errorf("priority count = %d, expected 2", got)
		}
	})

	t.Run("batches facilities per provider", func(t *testing.T) {
		rc := &fakeSource{provider: scraper.ReserveCalifornia}
		s := NewSearcher(scraper.NewRegistry(rc))

		ids := []string{"rc:1", "rc:2", "rc:3", "rc:4", "rc:5", "rc:6", "rc:7"}
		report, err := s.Search(ctx, testRequest(ids...))
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(report) != 7 {
			t.Errorf("expected 7 facilities, got %d", len(report))
		}

		calls := rc.batches()
		if len(calls) != 2 {
			t.Fatalf("expected 2 upstream calls, got %d", len(calls))
		}
		if !slices.Equal(calls[0], []string{"1", "2", "3", "4", "5"}) || !slices.Equal(calls[1], []string{"6", "7"}) {
			t.Errorf("unexpected batches %v", calls)
		}
	})

	t.Run("failed batch is isolated", func(t *testing.T) {
		rg := &fakeSource{provider: scraper.RecreationGov}
		s := NewSearcher(scraper.NewRegistry(rg))
		s.BatchSize = 1

		report, err := s.Search(ctx, testRequest("101", "bad1", "102"))
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		expected := []string{"Camp 101 (101)", "Camp 102 (102)"}
		if !slices.Equal(report.Labels(), expected) {
			t.Errorf("labels = %q, expected %q", report.Labels(), expected)
		}
	})

	t.Run("all batches failed", func(t *testing.T) {
		rg := &fakeSource{provider: scraper.RecreationGov}
		s := NewSearcher(scraper.NewRegistry(rg))

		_, err := s.Search(ctx, testRequest("bad1", "bad2"))
		if !errors.Is(err, ErrAllBatchesFailed) {
			t.Fatalf("expected ErrAllBatchesFailed, got %v", err)
		}
		var upErr *scraper.UpstreamError
		if !errors.As(err, &upErr) || upErr.Status != scraper.StatusNetworkError {
			t.Errorf("expected wrapped network error, got %v", err)
		}
	})

	t.Run("missing source counts as failure", func(t *testing.T) {
		s := NewSearcher(scraper.NewRegistry())

		_, err := s.Search(ctx, testRequest("rc:718"))
		if !errors.Is(err, ErrAllBatchesFailed) {
			t.Fatalf("expected ErrAllBatchesFailed, got %v", err)
		}
	})

	t.Run("invalid request never reaches upstream", func(t *testing.T) {
		rg := &fakeSource{provider: scraper.RecreationGov}
		s := NewSearcher(scraper.NewRegistry(rg))

		req := testRequest("232447")
		req.Nights = 0
		if _, err := s.Search(ctx, req); err == nil {
			t.Fatal("expected validation error")
		}
		if len(rg.batches()) != 0 {
			t.Error("expected no upstream calls")
		}
	})

	t.Run("cached report is reused", func(t *testing.T) {
		rg := &fakeSource{provider: scraper.RecreationGov}
		s := NewSearcher(scraper.NewRegistry(rg))
		c := &mapCache{entries: make(map[string]availability.Report)}
		s.Cache = c

		for range 2 {
			if _, err := s.Search(ctx, testRequest("232447")); err != nil {
				t.Fatalf("search failed: %v", err)
			}
		}
		if len(rg.batches()) != 1 {
			t.Errorf("expected 1 upstream call, got %d", len(rg.batches()))
		}
		if c.gets != 2 {
			t.Errorf("expected 2 cache lookups, got %d", c.gets)
		}
	})
}

// lateSource ignores its deadline for facility "slow": it waits for the
// batch context to expire and then reports success anyway.
type lateSource struct {
	fakeSource
}

func (l *lateSource) Fetch(ctx context.Context, q scraper.Query) (*scraper.Result, error) {
	if slices.Contains(q.FacilityIDs, "slow") {
		<-ctx.Done()
		return &scraper.Result{
			Success: true,
			Status:  scraper.StatusSuccess,
			Facilities: map[string]availability.FreeCounts{
				"Late (slow)": {
					availability.MustParseDate("2025-08-15"): 1,
					availability.MustParseDate("2025-08-16"): 1,
				},
			},
		}, nil
	}
	return l.fakeSource.Fetch(ctx, q)
}

func TestSearchDiscardsLateBatch(t *testing.T) {
	database := openTestDB(t)
	src := &lateSource{fakeSource{provider: scraper.RecreationGov}}
	s := NewSearcher(scraper.NewRegistry(src))
	s.BatchSize = 1
	s.Timeout = func(n int) time.Duration { return 50 * time.Millisecond }
	w := NewWorker(database, s)

	report, err := s.Search(context.Background(), testRequest("101", "slow", "103"))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	expected := []string{"Camp 101 (101)", "Camp 103 (103)"}
	if !slices.Equal(report.Labels(), expected) {
		t.Errorf("labels = %q, expected %q", report.Labels(), expected)
	}
	if _, ok := report["Late (slow)"]; ok {
		t.Error("late batch result should be discarded")
	}

	jobs, err := w.RecentJobs(context.Background(), 10)
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	var timedOut int
	for _, j := range jobs {
		if j.Status == StatusFailed && strings.Contains(j.ErrorMessage, scraper.StatusTimeout) {
			timedOut++
		}
	}
	if timedOut != 1 {
		t.Errorf("expected 1 timed-out job, got %d", timedOut)
	}
}

func TestSearchRecordsJobs(t *testing.T) {
	database := openTestDB(t)
	rg := &fakeSource{provider: scraper.RecreationGov}
	s := NewSearcher(scraper.NewRegistry(rg))
	s.BatchSize = 1
	w := NewWorker(database, s)

	if _, err := s.Search(context.Background(), testRequest("101", "bad1")); err != nil {
		t.Fatalf("search failed: %v", err)
	}

	jobs, err := w.RecentJobs(context.Background(), 10)
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}

	byIDs := make(map[string]ScrapeJob)
	for _, j := range jobs {
		byIDs[strings.Join(j.FacilityIDs, ",")] = j
	}
	if j := byIDs["101"]; j.Status != StatusCompleted || j.FacilitiesFound != 1 {
		t.Errorf("job 101 = %+v, expected completed with 1 facility", j)
	}
	if j := byIDs["bad1"]; j.Status != StatusFailed || !strings.Contains(j.ErrorMessage, "connection refused") {
		t.Errorf("job bad1 = %+v, expected failed with upstream message", j)
	}
}
