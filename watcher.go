package worker

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"campwatch.dev/worker/availability"
	"campwatch.dev/worker/db"
	"campwatch.dev/worker/scraper"
	"github.com/google/uuid"
)

// ErrWatchNotFound is returned for an unknown watch ID.
var ErrWatchNotFound = errors.New("watch not found")

// Watch re-runs a single-facility search on a schedule.
type Watch struct {
	ID             string
	Email          string
	Channel        string // email, slack, telegram
	FacilityID     string // provider-qualified, e.g. "rc:718"
	FacilityName   string
	Start          availability.Date
	End            availability.Date
	Nights         int
	Frequency      time.Duration
	Active         bool
	LastResultHash string
	LastCheckedAt  time.Time
	CreatedAt      time.Time
}

// Request returns the search the watch runs.
func (w Watch) Request() SearchRequest {
	return SearchRequest{
		FacilityIDs: []string{w.FacilityID},
		Start:       w.Start,
		End:         w.End,
		Nights:      w.Nights,
	}
}

// Due reports whether the watch should be checked at now.
func (w Watch) Due(now time.Time) bool {
	if !w.Active {
		return false
	}
	if w.LastCheckedAt.IsZero() {
		return true
	}
	return !now.Before(w.LastCheckedAt.Add(w.Frequency))
}

// ValidateWatch checks a new watch. Besides the search rules, the stay must
// not start before today.
func ValidateWatch(w Watch, today availability.Date) error {
	var problems []string
	if err := w.Request().Validate(); err != nil {
		var verr *availability.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		problems = append(problems, verr.Problems...)
	}
	if !w.Start.IsZero() && w.Start.Before(today) {
		problems = append(problems, "start date must not be in the past")
	}
	if w.Email == "" {
		problems = append(problems, "email is required")
	}
	switch w.Channel {
	case "", ChannelEmail, ChannelSlack, ChannelTelegram:
	default:
		problems = append(problems, fmt.Sprintf("unknown notification channel %q", w.Channel))
	}
	if w.Frequency != 0 && w.Frequency < MinWatchFrequency {
		problems = append(problems, fmt.Sprintf("check frequency must be at least %s", MinWatchFrequency))
	}
	if len(problems) > 0 {
		return &availability.ValidationError{Problems: problems}
	}
	return nil
}

// CheckOutcome is what a single watch check did.
type CheckOutcome string

const (
	CheckExpired   CheckOutcome = "expired"
	CheckFailed    CheckOutcome = "failed"
	CheckEmpty     CheckOutcome = "empty"
	CheckUnchanged CheckOutcome = "unchanged"
	CheckChanged   CheckOutcome = "changed"  // new result, notification suppressed by cool-down
	CheckNotified  CheckOutcome = "notified" // new result, notification queued
)

// WatchStats summarises one ProcessWatches pass.
type WatchStats struct {
	Checked  int
	Changed  int
	Notified int
	Expired  int
	Failed   int
}

// Watcher persists watches and runs their checks.
type Watcher struct {
	DB       *sql.DB
	Searcher *Searcher
	Cooldown time.Duration
	Now      func() time.Time
}

// NewWatcher creates a Watcher
func NewWatcher(database *sql.DB, searcher *Searcher) *Watcher {
	return &Watcher{
		DB:       database,
		Searcher: searcher,
		Cooldown: NotificationCooldown,
		Now:      time.Now,
	}
}

func (wt *Watcher) now() time.Time {
	if wt.Now == nil {
		return time.Now().UTC()
	}
	return wt.Now().UTC()
}

// CreateWatch validates and stores a new active watch.
func (wt *Watcher) CreateWatch(ctx context.Context, w Watch) (Watch, error) {
	now := wt.now()
	if err := ValidateWatch(w, availability.DateOf(now)); err != nil {
		return Watch{}, err
	}

	w.ID = uuid.New().String()
	w.Active = true
	w.CreatedAt = now
	if w.Channel == "" {
		w.Channel = ChannelEmail
	}
	if w.Frequency == 0 {
		w.Frequency = DefaultWatchFrequency
	}
	if w.FacilityName == "" {
		w.FacilityName = w.FacilityID
	}

	_, err := wt.DB.ExecContext(ctx, `
		INSERT INTO watches (id, email, channel, facility_id, facility_name,
		                     start_date, end_date, nights, frequency_minutes, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	`, w.ID, w.Email, w.Channel, w.FacilityID, w.FacilityName,
		w.Start.String(), w.End.String(), w.Nights, int(w.Frequency/time.Minute), db.FormatTime(now))
	if err != nil {
		return Watch{}, fmt.Errorf("insert watch: %w", err)
	}
	slog.Info("watch created", "watch_id", w.ID, "facility_id", w.FacilityID, "start", w.Start, "end", w.End)
	return w, nil
}

const watchColumns = `id, email, channel, facility_id, facility_name, start_date, end_date,
	nights, frequency_minutes, active, COALESCE(last_result_hash, ''), last_checked_at, created_at`

func scanWatch(row interface{ Scan(...any) error }) (Watch, error) {
	var w Watch
	var start, end string
	var freqMinutes int
	var checked, created sql.NullString
	if err := row.Scan(&w.ID, &w.Email, &w.Channel, &w.FacilityID, &w.FacilityName, &start, &end,
		&w.Nights, &freqMinutes, &w.Active, &w.LastResultHash, &checked, &created); err != nil {
		return Watch{}, err
	}
	var err error
	if w.Start, err = availability.ParseDate(start); err != nil {
		return Watch{}, fmt.Errorf("watch %s: %w", w.ID, err)
	}
	if w.End, err = availability.ParseDate(end); err != nil {
		return Watch{}, fmt.Errorf("watch %s: %w", w.ID, err)
	}
	w.Frequency = time.Duration(freqMinutes) * time.Minute
	w.LastCheckedAt = db.ParseTime(checked)
	w.CreatedAt = db.ParseTime(created)
	return w, nil
}

// GetWatch loads one watch.
func (wt *Watcher) GetWatch(ctx context.Context, id string) (Watch, error) {
	row := wt.DB.QueryRowContext(ctx, `SELECT `+watchColumns+` FROM watches WHERE id = ?`, id)
	w, err := scanWatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Watch{}, ErrWatchNotFound
	}
	return w, err
}

// ActiveWatches returns every active watch, oldest first.
func (wt *Watcher) ActiveWatches(ctx context.Context) ([]Watch, error) {
	rows, err := wt.DB.QueryContext(ctx, `
		SELECT `+watchColumns+`
		FROM watches
		WHERE active = 1
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var watches []Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			slog.Warn("scan watch", "error", err)
			continue
		}
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

// SetActive deactivates or reactivates a watch.
func (wt *Watcher) SetActive(ctx context.Context, id string, active bool) error {
	res, err := wt.DB.ExecContext(ctx, `UPDATE watches SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWatchNotFound
	}
	return nil
}

// ReportHash fingerprints a report for change detection. JSON object keys
// are emitted sorted, so equal reports always hash equally.
func ReportHash(report availability.Report) (string, []byte, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), data, nil
}

// CheckWatch runs one watch. Past watches are deactivated. A changed,
// non-empty result replaces the stored hash and queues a notification unless
// one was queued within the cool-down window.
func (wt *Watcher) CheckWatch(ctx context.Context, w Watch) (CheckOutcome, error) {
	now := wt.now()

	if w.End.Before(availability.DateOf(now)) {
		if err := wt.SetActive(ctx, w.ID, false); err != nil {
			return CheckFailed, fmt.Errorf("deactivate expired watch: %w", err)
		}
		slog.Info("watch expired", "watch_id", w.ID, "end", w.End)
		return CheckExpired, nil
	}

	report, err := wt.Searcher.Search(ctx, w.Request())
	if err != nil {
		if terr := wt.touch(ctx, w.ID, now); terr != nil {
			slog.Warn("update watch check time", "watch_id", w.ID, "error", terr)
		}
		return CheckFailed, err
	}

	if len(report) == 0 {
		return CheckEmpty, wt.touch(ctx, w.ID, now)
	}

	hash, data, err := ReportHash(report)
	if err != nil {
		return CheckFailed, fmt.Errorf("hash report: %w", err)
	}
	if hash == w.LastResultHash {
		return CheckUnchanged, wt.touch(ctx, w.ID, now)
	}

	tx, err := wt.DB.BeginTx(ctx, nil)
	if err != nil {
		return CheckFailed, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE watches SET last_result_hash = ?, last_checked_at = ? WHERE id = ?
	`, hash, db.FormatTime(now), w.ID); err != nil {
		return CheckFailed, fmt.Errorf("store result hash: %w", err)
	}

	var recent int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE watch_id = ? AND created_at > ?
	`, w.ID, db.FormatTime(now.Add(-wt.Cooldown))).Scan(&recent); err != nil {
		return CheckFailed, fmt.Errorf("check recent notifications: %w", err)
	}

	outcome := CheckChanged
	if recent == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (id, watch_id, channel, status, message, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, uuid.New().String(), w.ID, w.Channel, NotificationStatusPending, string(data), db.FormatTime(now)); err != nil {
			return CheckFailed, fmt.Errorf("queue notification: %w", err)
		}
		outcome = CheckNotified
	}

	if err := tx.Commit(); err != nil {
		return CheckFailed, err
	}

	slog.Info("watch result changed",
		"watch_id", w.ID,
		"facility_id", w.FacilityID,
		"provider", w.FacilityProvider().DisplayName(),
		"facilities", len(report),
		"notified", outcome == CheckNotified)
	return outcome, nil
}

func (wt *Watcher) touch(ctx context.Context, id string, now time.Time) error {
	_, err := wt.DB.ExecContext(ctx, `UPDATE watches SET last_checked_at = ? WHERE id = ?`, db.FormatTime(now), id)
	return err
}

// ProcessWatches checks every active watch that is due.
func (wt *Watcher) ProcessWatches(ctx context.Context) (WatchStats, error) {
	var stats WatchStats

	watches, err := wt.ActiveWatches(ctx)
	if err != nil {
		return stats, err
	}

	now := wt.now()
	for _, w := range watches {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if !w.Due(now) {
			continue
		}

		stats.Checked++
		outcome, err := wt.CheckWatch(ctx, w)
		if err != nil {
			slog.Error("watch check failed", "watch_id", w.ID, "facility_id", w.FacilityID, "error", err)
		}
		switch outcome {
		case CheckExpired:
			stats.Expired++
		case CheckFailed:
			stats.Failed++
		case CheckChanged:
			stats.Changed++
		case CheckNotified:
			stats.Changed++
			stats.Notified++
		}
	}
	return stats, nil
}

// FacilityProvider returns the booking system a watch's facility lives on.
func (w Watch) FacilityProvider() scraper.Provider {
	p, _ := scraper.ParseProviderID(w.FacilityID)
	return p
}
