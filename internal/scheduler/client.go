package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"dealdesk_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// PipelineEnqueuer is the slice of the client the opportunities module needs.
// Nil-able: modules degrade to synchronous-reject behavior when the queue is
// not configured.
type PipelineEnqueuer interface {
	EnqueueTranscriptParse(ctx context.Context, payload TranscriptParsePayload) error
	EnqueueRiskAnalyze(ctx context.Context, payload RiskAnalyzePayload) error
	EnqueueInsightsConsolidate(ctx context.Context, payload InsightsConsolidatePayload) error
	EnqueueScheduleRecalculate(ctx context.Context, payload ScheduleRecalculatePayload) error
	EnqueueAccountResearch(ctx context.Context, payload AccountResearchPayload) error
}

// DocumentEnqueuer is the slice the documents module needs.
type DocumentEnqueuer interface {
	EnqueueDocumentGenerate(ctx context.Context, payload DocumentGeneratePayload) error
}

// ImportEnqueuer is the slice the imports module needs.
type ImportEnqueuer interface {
	EnqueueOpportunityImport(ctx context.Context, payload OpportunityImportPayload) error
}

// IntakeEnqueuer is the slice the webhook module needs.
type IntakeEnqueuer interface {
	EnqueueRecordingTranscribe(ctx context.Context, payload RecordingTranscribePayload) error
	EnqueueScheduleRecalculate(ctx context.Context, payload ScheduleRecalculatePayload) error
}

// OutboxScheduler is the slice the notification module needs.
type OutboxScheduler interface {
	ScheduleNotificationOutboxDue(ctx context.Context, payload NotificationOutboxDuePayload, runAt time.Time) error
}

// Client enqueues pipeline tasks onto the durable queue. All tasks share the
// same bounded delivery budget; consumers are claim-based and idempotent.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	if c == nil || c.client == nil {
		return nil
	}
	opts = append(opts, asynq.Queue(c.queue), asynq.MaxRetry(maxDeliveryAttempts-1))
	_, err := c.client.EnqueueContext(ctx, task, opts...)
	return err
}

func (c *Client) EnqueueTranscriptParse(ctx context.Context, payload TranscriptParsePayload) error {
	task, err := NewTranscriptParseTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) EnqueueRiskAnalyze(ctx context.Context, payload RiskAnalyzePayload) error {
	task, err := NewRiskAnalyzeTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) EnqueueInsightsConsolidate(ctx context.Context, payload InsightsConsolidatePayload) error {
	task, err := NewInsightsConsolidateTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) EnqueueScheduleRecalculate(ctx context.Context, payload ScheduleRecalculatePayload) error {
	task, err := NewScheduleRecalculateTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) EnqueueDocumentGenerate(ctx context.Context, payload DocumentGeneratePayload) error {
	task, err := NewDocumentGenerateTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) EnqueueAccountResearch(ctx context.Context, payload AccountResearchPayload) error {
	task, err := NewAccountResearchTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) EnqueueOpportunityImport(ctx context.Context, payload OpportunityImportPayload) error {
	task, err := NewOpportunityImportTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) EnqueueRecordingTranscribe(ctx context.Context, payload RecordingTranscribePayload) error {
	task, err := NewRecordingTranscribeTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) ScheduleNotificationOutboxDue(ctx context.Context, payload NotificationOutboxDuePayload, runAt time.Time) error {
	task, err := NewNotificationOutboxDueTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, asynq.ProcessAt(runAt))
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
