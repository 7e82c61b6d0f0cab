package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
)

type fakeSchedulerConfig struct {
	redisURL string
	queue    string
}

func (f fakeSchedulerConfig) GetRedisURL() string      { return f.redisURL }
func (f fakeSchedulerConfig) GetRedisTLSInsecure() bool { return false }
func (f fakeSchedulerConfig) GetAsynqQueueName() string { return f.queue }
func (f fakeSchedulerConfig) GetAsynqConcurrency() int  { return 1 }

func newTestClient(t *testing.T) (*Client, *asynq.Inspector) {
	t.Helper()

	srv := miniredis.RunT(t)
	cfg := fakeSchedulerConfig{redisURL: "redis://" + srv.Addr(), queue: "pipeline"}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: srv.Addr()})
	t.Cleanup(func() { _ = inspector.Close() })

	return client, inspector
}

func TestEnqueueTranscriptParseUsesRetryBudget(t *testing.T) {
	client, inspector := newTestClient(t)

	err := client.EnqueueTranscriptParse(context.Background(), TranscriptParsePayload{
		MeetingID:      "0c2d32cf-8a51-4bbf-9e5a-111111111111",
		OpportunityID:  "0c2d32cf-8a51-4bbf-9e5a-222222222222",
		OrganizationID: "0c2d32cf-8a51-4bbf-9e5a-333333333333",
		TranscriptText: "Spoke with the buying committee about rollout timing.",
	})
	if err != nil {
		t.Fatalf("EnqueueTranscriptParse: %v", err)
	}

	tasks, err := inspector.ListPendingTasks("pipeline")
	if err != nil {
		t.Fatalf("ListPendingTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 pending task, got %d", len(tasks))
	}
	if tasks[0].Type != TaskTranscriptParse {
		t.Fatalf("expected task type %q, got %q", TaskTranscriptParse, tasks[0].Type)
	}
	if got, want := tasks[0].MaxRetry, maxDeliveryAttempts-1; got != want {
		t.Fatalf("expected max retry %d, got %d", want, got)
	}

	var payload TranscriptParsePayload
	if err := json.Unmarshal(tasks[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.MeetingID != "0c2d32cf-8a51-4bbf-9e5a-111111111111" {
		t.Fatalf("unexpected meeting id %q", payload.MeetingID)
	}
	if payload.OrganizationName != nil {
		t.Fatalf("expected organization name to stay unset")
	}
}

func TestEnqueueDocumentGenerateCarriesContextSelection(t *testing.T) {
	client, inspector := newTestClient(t)

	selection := json.RawMessage(`{"meetings":true,"research":false}`)
	err := client.EnqueueDocumentGenerate(context.Background(), DocumentGeneratePayload{
		DocumentID:       "9a1f06a0-70cb-4a5e-927e-111111111111",
		OpportunityID:    "9a1f06a0-70cb-4a5e-927e-222222222222",
		OrganizationID:   "9a1f06a0-70cb-4a5e-927e-333333333333",
		ContextSelection: selection,
	})
	if err != nil {
		t.Fatalf("EnqueueDocumentGenerate: %v", err)
	}

	tasks, err := inspector.ListPendingTasks("pipeline")
	if err != nil {
		t.Fatalf("ListPendingTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 pending task, got %d", len(tasks))
	}

	var payload DocumentGeneratePayload
	if err := json.Unmarshal(tasks[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.TemplateID != nil {
		t.Fatalf("expected template id to stay unset")
	}
	if string(payload.ContextSelection) != string(selection) {
		t.Fatalf("context selection changed: %s", payload.ContextSelection)
	}
}

func TestScheduleNotificationOutboxDueIsScheduled(t *testing.T) {
	client, inspector := newTestClient(t)

	runAt := time.Now().Add(45 * time.Minute)
	err := client.ScheduleNotificationOutboxDue(context.Background(), NotificationOutboxDuePayload{
		OutboxID:       "55e8e9a4-2f06-46ef-95f3-111111111111",
		OrganizationID: "55e8e9a4-2f06-46ef-95f3-222222222222",
	}, runAt)
	if err != nil {
		t.Fatalf("ScheduleNotificationOutboxDue: %v", err)
	}

	tasks, err := inspector.ListScheduledTasks("pipeline")
	if err != nil {
		t.Fatalf("ListScheduledTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 scheduled task, got %d", len(tasks))
	}
	if tasks[0].Type != TaskNotificationOutboxDue {
		t.Fatalf("expected task type %q, got %q", TaskNotificationOutboxDue, tasks[0].Type)
	}
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(fakeSchedulerConfig{}); err == nil {
		t.Fatal("expected error for missing redis url")
	}
}
