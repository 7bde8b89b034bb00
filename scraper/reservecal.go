package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultReserveCalBaseURL is the UseDirect API behind reservecalifornia.com.
const DefaultReserveCalBaseURL = "https://california-rdr.prod.cali.rd12.recreation-management.tylerapp.com"

const (
	gridPath      = "/rdr/search/grid"
	rcDateLayout  = "01-02-2006"
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxGridBodyMB = 16
)

// ReserveCal queries the ReserveCalifornia availability grid in process and
// discovers campgrounds from its place and facility listings.
type ReserveCal struct {
	client  *http.Client
	baseURL string
	limiter *RateLimiter

	// BookingBaseURL prefixes the booking links of discovered campgrounds.
	BookingBaseURL string
	// MetadataTTL is how long place and facility listings are reused.
	MetadataTTL time.Duration
	now         func() time.Time

	mu   sync.Mutex
	meta *RCMetadata
}

// NewReserveCal creates a client. The limiter is shared by every request the
// client sends; pass one created with the provider's interval.
func NewReserveCal(baseURL string, limiter *RateLimiter) *ReserveCal {
	if baseURL == "" {
		baseURL = DefaultReserveCalBaseURL
	}
	return &ReserveCal{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:        baseURL,
		limiter:        limiter,
		BookingBaseURL: DefaultRCBookingBaseURL,
		MetadataTTL:    DefaultRCMetadataTTL,
		now:            time.Now,
	}
}

func (s *ReserveCal) Provider() Provider {
	return ReserveCalifornia
}

type gridRequest struct {
	FacilityID   int    `json:"FacilityId"`
	StartDate    string `json:"StartDate"`
	EndDate      string `json:"EndDate"`
	InSeasonOnly bool   `json:"InSeasonOnly"`
	WebOnly      bool   `json:"WebOnly"`
	UnitSort     string `json:"UnitSort"`
}

// Fetch requests each facility in turn. A facility that fails is logged and
// skipped; the batch fails only when every facility failed.
func (s *ReserveCal) Fetch(ctx context.Context, q Query) (*Result, error) {
	if len(q.FacilityIDs) == 0 {
		return nil, errors.New("reservecal: no facility ids")
	}
	result := newResult()

	var failed int
	var lastErr error
	for _, id := range q.FacilityIDs {
		if err := s.limiter.Acquire(ctx); err != nil {
			return result.fail(StatusTimeout, fmt.Sprintf("rate limiter: %v", err)), nil
		}

		grid, err := s.fetchGrid(ctx, id, q)
		if err != nil {
			if ctx.Err() != nil {
				return result.fail(StatusTimeout, fmt.Sprintf("facility %s: %v", id, err)), nil
			}
			slog.Warn("reservecalifornia request failed", "facility_id", id, "error", err)
			failed++
			lastErr = err
			continue
		}

		if grid.Facility == nil {
			slog.Info("reservecalifornia returned no facility", "facility_id", id)
			continue
		}
		name := grid.Facility.Name
		if name == "" {
			name = "Facility " + id
		}
		if len(grid.Facility.Units) == 0 {
			slog.Info("reservecalifornia facility has no bookable units", "facility_id", id, "name", name)
			continue
		}

		counts := CountFreeUnits(grid.Facility)
		if len(counts.Dates()) == 0 {
			continue
		}
		result.Facilities[FacilityLabel(ReserveCalifornia, name, id)] = counts
	}

	result.Diagnostics["facilities_failed"] = failed
	if failed == len(q.FacilityIDs) {
		status := StatusNetworkError
		var syntaxErr *json.SyntaxError
		if errors.As(lastErr, &syntaxErr) {
			status = StatusParseError
		}
		return result.fail(status, fmt.Sprintf("all %d facility requests failed: %v", failed, lastErr)), nil
	}
	return result.succeed(), nil
}

func (s *ReserveCal) fetchGrid(ctx context.Context, id string, q Query) (*GridResponse, error) {
	facilityID, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("invalid facility id %q", id)
	}

	body, err := json.Marshal(gridRequest{
		FacilityID:   facilityID,
		StartDate:    q.Start.Time().Format(rcDateLayout),
		EndDate:      q.End.Time().Format(rcDateLayout),
		InSeasonOnly: true,
		WebOnly:      true,
		UnitSort:     "orderby",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+gridPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var grid GridResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxGridBodyMB<<20)).Decode(&grid); err != nil {
		return nil, err
	}
	return &grid, nil
}
