// Package scraper fetches raw campground availability from upstream booking
// systems and normalizes it into per-date free unit counts.
package scraper

import (
	"context"
	"time"

	"campwatch.dev/worker/availability"
)

// Query is one batch of facilities searched against a single provider.
type Query struct {
	FacilityIDs []string // provider-local IDs, without the "rc:"/"rg:" prefix
	Start       availability.Date
	End         availability.Date
	Nights      int
}

// Result represents the result of one fetch.
type Result struct {
	Success bool
	Status  string
	Error   string
	// Facilities maps a facility label such as "Kirby Cove (232447)" to its
	// free unit counts. Facilities with no bookable units are left out.
	Facilities  map[string]availability.FreeCounts
	ScrapedAt   time.Time
	Diagnostics map[string]interface{}
}

// Status codes for fetch results.
const (
	StatusSuccess      = "success"
	StatusSuccessEmpty = "success_no_units"
	StatusNetworkError = "network_error"
	StatusParseError   = "parse_error"
	StatusTimeout      = "timeout"
	StatusUnknownError = "unknown_error"
)

func newResult() *Result {
	return &Result{
		Facilities:  make(map[string]availability.FreeCounts),
		ScrapedAt:   time.Now(),
		Diagnostics: make(map[string]interface{}),
	}
}

// fail marks r as failed and returns it.
func (r *Result) fail(status string, msg string) *Result {
	r.Success = false
	r.Status = status
	r.Error = msg
	return r
}

// succeed marks r as successful, distinguishing an empty fetch.
func (r *Result) succeed() *Result {
	r.Success = true
	r.Status = StatusSuccess
	if len(r.Facilities) == 0 {
		r.Status = StatusSuccessEmpty
	}
	return r
}

// Err returns the failure as an *UpstreamError, or nil for a successful result.
func (r *Result) Err(provider Provider) error {
	if r == nil || r.Success {
		return nil
	}
	return &UpstreamError{Provider: provider, Status: r.Status, Message: r.Error}
}

// Source fetches availability for a batch of facilities.
//
// Upstream failures are reported through Result.Status with a nil error, so
// that callers can record them; a non-nil error means the query itself was
// unusable.
type Source interface {
	Fetch(ctx context.Context, q Query) (*Result, error)
	// Provider returns the provider this source serves.
	Provider() Provider
}
