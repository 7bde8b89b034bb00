// Package notifier delivers queued watch notifications over email, Slack and
// Telegram.
package notifier

import (
	"context"
	"fmt"
	"sort"

	"campwatch.dev/worker/availability"
)

// Notification represents a notification to be sent: the report a watch
// produced when its result changed.
type Notification struct {
	ID           string
	WatchID      string
	Email        string
	FacilityName string
	Channel      string // email, slack, telegram
	Report       availability.Report
}

// Notifier interface for sending notifications
type Notifier interface {
	Send(ctx context.Context, n *Notification) error
	Channel() string
}

// Manager manages multiple notifiers
type Manager struct {
	notifiers map[string]Notifier
}

// NewManager creates a new notification manager
func NewManager() *Manager {
	return &Manager{
		notifiers: make(map[string]Notifier),
	}
}

// Register adds a notifier for a channel, replacing any previous one.
func (m *Manager) Register(n Notifier) {
	m.notifiers[n.Channel()] = n
}

// Channels lists the registered channels in sorted order.
func (m *Manager) Channels() []string {
	channels := make([]string, 0, len(m.notifiers))
	for c := range m.notifiers {
		channels = append(channels, c)
	}
	sort.Strings(channels)
	return channels
}

// Send sends a notification using the appropriate channel
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	notifier, ok := m.notifiers[n.Channel]
	if !ok {
		return fmt.Errorf("no notifier registered for channel: %s", n.Channel)
	}
	return notifier.Send(ctx, n)
}
