package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"campwatch.dev/worker/availability"
	"campwatch.dev/worker/cache"
	"campwatch.dev/worker/scraper"
)

// ErrAllBatchesFailed is returned when no upstream batch produced a result.
var ErrAllBatchesFailed = errors.New("all upstream batches failed")

// SearchRequest is one availability search across any mix of providers.
type SearchRequest struct {
	FacilityIDs []string // "232447", "rg:232447" or "rc:718"
	Start       availability.Date
	End         availability.Date
	Nights      int
}

// Validate reports every problem with the request at once.
func (r SearchRequest) Validate() error {
	var problems []string

	hasID := false
	for _, id := range r.FacilityIDs {
		if _, local := scraper.ParseProviderID(id); local != "" {
			hasID = true
			break
		}
	}
	if !hasID {
		problems = append(problems, "at least one facility ID is required")
	}

	datesOK := true
	if r.Start.IsZero() {
		problems = append(problems, "start date is required")
		datesOK = false
	}
	if r.End.IsZero() {
		problems = append(problems, "end date is required")
		datesOK = false
	}
	if datesOK && !r.End.After(r.Start) {
		problems = append(problems, "end date must be after start date")
		datesOK = false
	}

	if r.Nights < 1 {
		problems = append(problems, "nights must be at least 1")
	} else if datesOK {
		if span := availability.DaysBetween(r.Start, r.End); r.Nights > span {
			problems = append(problems, fmt.Sprintf("nights (%d) exceeds the %d-day date range", r.Nights, span))
		}
	}

	if len(problems) > 0 {
		return &availability.ValidationError{Problems: problems}
	}
	return nil
}

// ReportCache is a short-lived store of merged reports.
type ReportCache interface {
	Get(ctx context.Context, key string) (availability.Report, bool, error)
	Set(ctx context.Context, key string, report availability.Report) error
}

// JobRecorder keeps a ledger of upstream batches.
type JobRecorder interface {
	CreateJob(ctx context.Context, provider string, facilityIDs []string) (string, error)
	UpdateJob(ctx context.Context, jobID, status string, facilitiesFound int, errorMsg string) error
}

// Searcher fans a search out to the registered sources in batches and merges
// what comes back.
type Searcher struct {
	Registry  *scraper.Registry
	BatchSize int
	Cache     ReportCache // optional
	Jobs      JobRecorder // optional
	// Timeout gives the deadline for a batch of n facilities.
	Timeout func(n int) time.Duration
}

// NewSearcher creates a searcher with the default batch size.
func NewSearcher(registry *scraper.Registry) *Searcher {
	return &Searcher{
		Registry:  registry,
		BatchSize: DefaultBatchSize,
		Timeout:   BatchTimeout,
	}
}

// BatchTimeout is the time allowed for a batch of n facilities.
func BatchTimeout(n int) time.Duration {
	return max(MinBatchTimeout, PerFacilityTimeout*time.Duration(n))
}

// Batches cuts ids into consecutive groups of at most size.
func Batches(ids []string, size int) [][]string {
	if size < 1 {
		size = DefaultBatchSize
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

type providerOutcome struct {
	reports []availability.Report
	batches int
	failed  int
	lastErr error
}

// Search validates req, then searches each provider's facilities in batches.
// Providers run concurrently; a provider's batches run one after another.
// A failed or timed-out batch contributes nothing; only when every batch
// fails does Search return an error, wrapping ErrAllBatchesFailed.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (availability.Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := cache.Key(req.FacilityIDs, req.Start, req.End, req.Nights)
	if s.Cache != nil {
		report, ok, err := s.Cache.Get(ctx, key)
		if err != nil {
			slog.Warn("search cache lookup failed", "key", key, "error", err)
		} else if ok {
			slog.Debug("search cache hit", "key", key)
			return report, nil
		}
	}

	byProvider := scraper.SplitByProvider(req.FacilityIDs)
	outcomes := make([]providerOutcome, len(scraper.Providers))

	var wg sync.WaitGroup
	for i, p := range scraper.Providers {
		ids := byProvider[p]
		if len(ids) == 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = s.searchProvider(ctx, p, ids, req)
		}()
	}
	wg.Wait()

	merged := availability.Report{}
	var batches, failed int
	var lastErr error
	for _, o := range outcomes {
		batches += o.batches
		failed += o.failed
		if o.lastErr != nil {
			lastErr = o.lastErr
		}
		for _, r := range o.reports {
			merged.Update(r)
		}
	}

	if batches > 0 && failed == batches {
		return nil, fmt.Errorf("%w: %w", ErrAllBatchesFailed, lastErr)
	}
	if failed > 0 {
		slog.Warn("search completed with failed batches", "batches", batches, "failed", failed)
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, merged); err != nil {
			slog.Warn("search cache store failed", "key", key, "error", err)
		}
	}
	return merged, nil
}

func (s *Searcher) searchProvider(ctx context.Context, p scraper.Provider, ids []string, req SearchRequest) providerOutcome {
	var out providerOutcome
	src := s.Registry.Get(p)

	for n, batch := range Batches(ids, s.BatchSize) {
		out.batches++
		if src == nil {
			out.failed++
			out.lastErr = fmt.Errorf("no source registered for provider %s", p)
			slog.Error("search batch failed", "provider", p, "batch", n+1, "error", out.lastErr)
			continue
		}

		report, err := s.runBatch(ctx, src, batch, req)
		if err != nil {
			out.failed++
			out.lastErr = err
			slog.Error("search batch failed", "provider", p, "batch", n+1, "facility_ids", strings.Join(batch, ","), "error", err)
			continue
		}
		out.reports = append(out.reports, report)
	}
	return out
}

func (s *Searcher) runBatch(ctx context.Context, src scraper.Source, batch []string, req SearchRequest) (availability.Report, error) {
	p := src.Provider()
	jobID := s.startJob(ctx, p, batch)

	timeout := s.Timeout
	if timeout == nil {
		timeout = BatchTimeout
	}
	bctx, cancel := context.WithTimeout(ctx, timeout(len(batch)))
	defer cancel()

	result, err := src.Fetch(bctx, scraper.Query{
		FacilityIDs: batch,
		Start:       req.Start,
		End:         req.End,
		Nights:      req.Nights,
	})
	if err == nil {
		err = result.Err(p)
	}
	if err == nil && bctx.Err() != nil {
		// Whatever arrived after the deadline is not trusted.
		err = &scraper.UpstreamError{Provider: p, Status: scraper.StatusTimeout, Err: bctx.Err()}
	}
	if err != nil {
		s.finishJob(ctx, jobID, StatusFailed, 0, err.Error())
		return nil, err
	}

	report := availability.Report{}
	for label, counts := range result.Facilities {
		if !report.Add(label, availability.BuildFacilityReport(counts, req.Nights)) {
			slog.Debug("facility has no bookable windows", "facility", label)
		}
	}

	s.finishJob(ctx, jobID, StatusCompleted, len(report), "")
	slog.Info("search batch completed", "provider", p, "facility_ids", strings.Join(batch, ","), "facilities_found", len(report))
	return report, nil
}

func (s *Searcher) startJob(ctx context.Context, p scraper.Provider, batch []string) string {
	if s.Jobs == nil {
		return ""
	}
	jobID, err := s.Jobs.CreateJob(ctx, string(p), batch)
	if err != nil {
		slog.Warn("create scrape job", "provider", p, "error", err)
		return ""
	}
	if err := s.Jobs.UpdateJob(ctx, jobID, StatusRunning, 0, ""); err != nil {
		slog.Warn("update scrape job", "job_id", jobID, "error", err)
	}
	return jobID
}

func (s *Searcher) finishJob(ctx context.Context, jobID, status string, found int, errMsg string) {
	if s.Jobs == nil || jobID == "" {
		return
	}
	if err := s.Jobs.UpdateJob(context.WithoutCancel(ctx), jobID, status, found, errMsg); err != nil {
		slog.Warn("update scrape job", "job_id", jobID, "error", err)
	}
}
