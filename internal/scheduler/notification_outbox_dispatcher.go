package scheduler

import (
	"context"
	"fmt"
	"time"

	"dealdesk_backend/internal/notification/outbox"
	"dealdesk_backend/platform/config"
	"dealdesk_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	outboxPollInterval   = 2 * time.Second
	outboxClaimBatchSize = 50
)

// NotificationOutboxDispatcher moves due digest rows from the notification
// outbox onto the task queue. Rows are claimed (status -> processing) before
// enqueueing; a failed enqueue flips the row back to pending with the error
// recorded, so the next poll retries it. The worker settles the row after
// the email handler runs.
type NotificationOutboxDispatcher struct {
	client *asynq.Client
	queue  string
	repo   *outbox.Repository
	log    *logger.Logger
}

func NewNotificationOutboxDispatcher(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*NotificationOutboxDispatcher, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &NotificationOutboxDispatcher{
		client: asynq.NewClient(opt),
		queue:  queue,
		repo:   outbox.New(pool),
		log:    log,
	}, nil
}

func (d *NotificationOutboxDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

// Run polls until the context is cancelled.
func (d *NotificationOutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(outboxPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		records, err := d.repo.ClaimPending(ctx, outboxClaimBatchSize)
		if err != nil {
			d.log.Warn("outbox claim failed", "error", err)
			continue
		}

		for _, rec := range records {
			if err := d.dispatch(ctx, rec); err != nil {
				d.log.Warn("outbox dispatch failed, row requeued", "outboxId", rec.ID, "error", err)
			}
		}
	}
}

// dispatch enqueues one claimed row, scheduled at its run time. On failure
// the row goes back to pending with the error stored on it.
func (d *NotificationOutboxDispatcher) dispatch(ctx context.Context, rec outbox.Record) error {
	task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{
		OutboxID:       rec.ID.String(),
		OrganizationID: rec.OrganizationID.String(),
	})
	if err == nil {
		_, err = d.client.EnqueueContext(ctx, task, asynq.ProcessAt(rec.RunAt), asynq.Queue(d.queue))
	}
	if err != nil {
		msg := err.Error()
		_ = d.repo.MarkPending(ctx, rec.ID, &msg)
		return err
	}
	return nil
}
