package worker

import "time"

const (
	// Search batching
	DefaultBatchSize   = 5
	MinBatchTimeout    = 60 * time.Second
	PerFacilityTimeout = 30 * time.Second

	// Upstream pacing
	ReserveCalInterval = 1 * time.Second
	ParkPageInterval   = 1 * time.Second

	// Search result cache
	SearchCacheTTL = 180 * time.Second

	// Watches
	NotificationCooldown  = 24 * time.Hour
	DefaultWatchFrequency = 60 * time.Minute
	MinWatchFrequency     = 5 * time.Minute
	DefaultCheckInterval  = 5 * time.Minute

	// Database query limits
	DefaultQueryLimit = 100

	// Job status constants
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	// Notification status
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"

	// Notification channels
	ChannelEmail    = "email"
	ChannelSlack    = "slack"
	ChannelTelegram = "telegram"
)
