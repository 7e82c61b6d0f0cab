package scheduler

import (
	"context"
	"time"

	"dealdesk_backend/internal/notification/inapp"
	"dealdesk_backend/internal/notification/outbox"
	"dealdesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultNotificationCleanupInterval = time.Hour
	defaultReadNotificationRetention   = 30 * 24 * time.Hour
	defaultFinishedOutboxRetention     = 14 * 24 * time.Hour
)

// NotificationRetentionCleanup periodically removes read in-app notifications
// and finished outbox rows that are past their retention window.
type NotificationRetentionCleanup struct {
	inappRepo       *inapp.Repository
	outboxRepo      *outbox.Repository
	log             *logger.Logger
	interval        time.Duration
	readRetention   time.Duration
	outboxRetention time.Duration
}

func NewNotificationRetentionCleanup(pool *pgxpool.Pool, log *logger.Logger, interval, readRetention, outboxRetention time.Duration) *NotificationRetentionCleanup {
	if interval <= 0 {
		interval = defaultNotificationCleanupInterval
	}
	if readRetention <= 0 {
		readRetention = defaultReadNotificationRetention
	}
	if outboxRetention <= 0 {
		outboxRetention = defaultFinishedOutboxRetention
	}

	return &NotificationRetentionCleanup{
		inappRepo:       inapp.New(pool),
		outboxRepo:      outbox.New(pool),
		log:             log,
		interval:        interval,
		readRetention:   readRetention,
		outboxRetention: outboxRetention,
	}
}

func (c *NotificationRetentionCleanup) Run(ctx context.Context) {
	if c == nil || c.inappRepo == nil || c.outboxRepo == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *NotificationRetentionCleanup) cleanup(ctx context.Context) {
	now := time.Now()

	deletedRead, err := c.inappRepo.DeleteReadBefore(ctx, now.Add(-c.readRetention))
	if err != nil {
		c.log.Warn("notification cleanup failed", "error", err)
		return
	}

	deletedOutbox, err := c.outboxRepo.DeleteFinishedBefore(ctx, now.Add(-c.outboxRetention))
	if err != nil {
		c.log.Warn("outbox cleanup failed", "error", err)
		return
	}

	if deletedRead > 0 || deletedOutbox > 0 {
		c.log.Info("notification cleanup deleted rows", "read_notifications", deletedRead, "outbox_rows", deletedOutbox)
	}
}
