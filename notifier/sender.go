package notifier

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"campwatch.dev/worker/availability"
	"campwatch.dev/worker/db"
)

const pendingBatchLimit = 100

// Sender processes pending notifications and sends them
type Sender struct {
	DB      *sql.DB
	Manager *Manager
	Now     func() time.Time
}

// NewSender creates a sender with every channel configured in the environment.
// Email always works: SendGrid when SENDGRID_API_KEY is set, SMTP otherwise,
// which itself falls back to logging.
func NewSender(database *sql.DB) *Sender {
	mgr := NewManager()
	if sg := NewSendGridNotifier(); sg.APIKey != "" {
		mgr.Register(sg)
	} else {
		mgr.Register(NewEmailNotifier())
	}
	if sl := NewSlackNotifier(); sl.WebhookURL != "" {
		mgr.Register(sl)
	}
	if tg := NewTelegramNotifier(); tg.Configured() {
		mgr.Register(tg)
	}

	return &Sender{
		DB:      database,
		Manager: mgr,
		Now:     time.Now,
	}
}

// ProcessPending sends all pending notifications, oldest first.
func (s *Sender) ProcessPending(ctx context.Context) (sent, failed int, err error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT n.id, n.watch_id, n.channel, n.message,
		       w.email, w.facility_name
		FROM notifications n
		JOIN watches w ON n.watch_id = w.id
		WHERE n.status = 'pending'
		ORDER BY n.created_at ASC
		LIMIT ?
	`, pendingBatchLimit)
	if err != nil {
		return 0, 0, err
	}

	type pending struct {
		n       Notification
		message string
	}
	var queue []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.n.ID, &p.n.WatchID, &p.n.Channel, &p.message,
			&p.n.Email, &p.n.FacilityName); err != nil {
			slog.Warn("scan notification", "error", err)
			continue
		}
		queue = append(queue, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, 0, err
	}
	rows.Close()

	for _, p := range queue {
		n := p.n
		err := s.deliver(ctx, &n, p.message)
		if err != nil {
			slog.Warn("send notification failed", "id", n.ID, "watch_id", n.WatchID, "channel", n.Channel, "error", err)
			s.updateStatus(ctx, n.ID, "failed")
			failed++
		} else {
			slog.Info("notification sent", "id", n.ID, "watch_id", n.WatchID, "channel", n.Channel, "facilities", len(n.Report))
			s.updateStatus(ctx, n.ID, "sent")
			sent++
		}
	}

	return sent, failed, nil
}

func (s *Sender) deliver(ctx context.Context, n *Notification, message string) error {
	report, err := availability.DecodeReport([]byte(message))
	if err != nil {
		return fmt.Errorf("decode queued report: %w", err)
	}
	n.Report = report
	return s.Manager.Send(ctx, n)
}

func (s *Sender) updateStatus(ctx context.Context, id, status string) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	_, err := s.DB.ExecContext(ctx, `
		UPDATE notifications
		SET status = ?, sent_at = CASE WHEN ? = 'sent' THEN ? ELSE sent_at END
		WHERE id = ?
	`, status, status, db.FormatTime(now()), id)
	if err != nil {
		slog.Warn("update notification status", "error", err)
	}
}

// StartSender starts a periodic notification sender
func (s *Sender) StartSender(ctx context.Context, interval time.Duration) {
	slog.Info("starting notification sender", "interval", interval, "channels", s.Manager.Channels())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("notification sender stopped")
			return
		case <-ticker.C:
			sent, failed, err := s.ProcessPending(ctx)
			if err != nil {
				slog.Error("process pending notifications", "error", err)
			} else if sent > 0 || failed > 0 {
				slog.Info("notifications processed", "sent", sent, "failed", failed)
			}
		}
	}
}
