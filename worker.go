// Package worker runs campground availability searches against the upstream
// booking systems, and keeps watches that re-run a search on a schedule and
// queue a notification when the result changes.
package worker

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"campwatch.dev/worker/db"
	"github.com/google/uuid"
)

// ScrapeJob is one upstream batch as recorded in the scrape_jobs ledger.
type ScrapeJob struct {
	ID              string
	Provider        string
	FacilityIDs     []string
	Status          string
	FacilitiesFound int
	ErrorMessage    string
	CreatedAt       time.Time
	StartedAt       time.Time
	CompletedAt     time.Time
}

// Worker owns the database-backed parts of the system: the scrape job
// ledger and the watch scheduler.
type Worker struct {
	DB       *sql.DB
	Searcher *Searcher
	Watcher  *Watcher
	Now      func() time.Time
}

// NewWorker creates a Worker whose searcher records every batch in the ledger.
func NewWorker(database *sql.DB, searcher *Searcher) *Worker {
	w := &Worker{
		DB:       database,
		Searcher: searcher,
		Now:      time.Now,
	}
	searcher.Jobs = w
	w.Watcher = NewWatcher(database, searcher)
	w.Watcher.Now = w.now
	return w
}

func (w *Worker) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}

// CreateJob creates a pending scrape job record.
func (w *Worker) CreateJob(ctx context.Context, provider string, facilityIDs []string) (string, error) {
	id := uuid.New().String()
	_, err := w.DB.ExecContext(ctx, `
		INSERT INTO scrape_jobs (id, provider, facility_ids, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, provider, strings.Join(facilityIDs, ","), StatusPending, db.FormatTime(w.now()))
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateJob moves a scrape job through running to completed or failed.
func (w *Worker) UpdateJob(ctx context.Context, jobID, status string, facilitiesFound int, errorMsg string) error {
	ts := db.FormatTime(w.now())
	_, err := w.DB.ExecContext(ctx, `
		UPDATE scrape_jobs SET
			status = ?,
			facilities_found = ?,
			error_message = ?,
			started_at = CASE WHEN ? = 'running' THEN ? ELSE started_at END,
			completed_at = CASE WHEN ? IN ('completed', 'failed') THEN ? ELSE completed_at END
		WHERE id = ?
	`, status, facilitiesFound, errorMsg, status, ts, status, ts, jobID)
	return err
}

// RecentJobs returns the newest scrape jobs first.
func (w *Worker) RecentJobs(ctx context.Context, limit int) ([]ScrapeJob, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	rows, err := w.DB.QueryContext(ctx, `
		SELECT id, provider, facility_ids, status, facilities_found, error_message,
		       created_at, started_at, completed_at
		FROM scrape_jobs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ScrapeJob
	for rows.Next() {
		var j ScrapeJob
		var ids string
		var created, started, completed sql.NullString
		if err := rows.Scan(&j.ID, &j.Provider, &ids, &j.Status, &j.FacilitiesFound, &j.ErrorMessage,
			&created, &started, &completed); err != nil {
			slog.Warn("scan scrape job", "error", err)
			continue
		}
		j.FacilityIDs = strings.Split(ids, ",")
		j.CreatedAt = db.ParseTime(created)
		j.StartedAt = db.ParseTime(started)
		j.CompletedAt = db.ParseTime(completed)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// StartScheduler checks due watches every interval until ctx is cancelled.
func (w *Worker) StartScheduler(ctx context.Context, interval time.Duration) {
	slog.Info("starting watch scheduler", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on start
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	stats, err := w.Watcher.ProcessWatches(ctx)
	if err != nil {
		slog.Error("process watches", "error", err)
		return
	}
	if stats.Checked > 0 {
		slog.Info("watches processed",
			"checked", stats.Checked,
			"changed", stats.Changed,
			"notified", stats.Notified,
			"expired", stats.Expired,
			"failed", stats.Failed)
	}
}
