package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"dealdesk_backend/internal/events"
	"dealdesk_backend/internal/notification/inapp"
	notificationoutbox "dealdesk_backend/internal/notification/outbox"
	"dealdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type testNotificationConfig struct{}

func (testNotificationConfig) GetAppBaseURL() string { return "https://app.example.com" }

type sentEmail struct {
	to      string
	subject string
	body    string
}

type fakeEmailSender struct {
	sent    []sentEmail
	sendErr error
}

func (f *fakeEmailSender) SendCustomEmail(_ context.Context, toEmail, subject, htmlContent string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentEmail{to: toEmail, subject: subject, body: htmlContent})
	return nil
}

type fakeInAppStore struct {
	rows map[string]inapp.Notification
}

func newFakeInAppStore() *fakeInAppStore {
	return &fakeInAppStore{rows: make(map[string]inapp.Notification)}
}

func (f *fakeInAppStore) Create(_ context.Context, p inapp.CreateParams) (inapp.Notification, bool, error) {
	key := p.UserID.String() + "|" + p.ResourceID.String() + "|" + p.TriggerType
	if _, ok := f.rows[key]; ok {
		return inapp.Notification{}, false, nil
	}
	n := inapp.Notification{
		ID:          uuid.New(),
		UserID:      p.UserID,
		TriggerType: p.TriggerType,
		ResourceID:  p.ResourceID,
		Title:       p.Title,
		Content:     p.Content,
		CreatedAt:   time.Now().UTC(),
	}
	f.rows[key] = n
	return n, true, nil
}

func (f *fakeInAppStore) List(context.Context, uuid.UUID, int, int) ([]inapp.Notification, int, error) {
	return nil, 0, nil
}
func (f *fakeInAppStore) CountUnread(context.Context, uuid.UUID) (int, error) { return 0, nil }
func (f *fakeInAppStore) CountUnreadByTriggerTypes(context.Context, uuid.UUID, []string) (int, error) {
	return 0, nil
}
func (f *fakeInAppStore) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (f *fakeInAppStore) MarkAllRead(context.Context, uuid.UUID) error         { return nil }
func (f *fakeInAppStore) Delete(context.Context, uuid.UUID, uuid.UUID) error   { return nil }

type scheduledRetry struct {
	runAt     time.Time
	lastError string
}

type fakeOutboxRepo struct {
	records    map[uuid.UUID]notificationoutbox.Record
	inserts    []notificationoutbox.InsertParams
	processing []uuid.UUID
	succeeded  []uuid.UUID
	failed     map[uuid.UUID]string
	retries    map[uuid.UUID]scheduledRetry
	getErr     error
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{
		records: make(map[uuid.UUID]notificationoutbox.Record),
		failed:  make(map[uuid.UUID]string),
		retries: make(map[uuid.UUID]scheduledRetry),
	}
}

func (f *fakeOutboxRepo) Insert(_ context.Context, p notificationoutbox.InsertParams) (uuid.UUID, error) {
	f.inserts = append(f.inserts, p)
	return uuid.New(), nil
}

func (f *fakeOutboxRepo) GetByID(_ context.Context, id uuid.UUID) (notificationoutbox.Record, error) {
	if f.getErr != nil {
		return notificationoutbox.Record{}, f.getErr
	}
	rec, ok := f.records[id]
	if !ok {
		return notificationoutbox.Record{}, pgx.ErrNoRows
	}
	return rec, nil
}

func (f *fakeOutboxRepo) MarkProcessing(_ context.Context, id uuid.UUID) error {
	f.processing = append(f.processing, id)
	return nil
}

func (f *fakeOutboxRepo) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	f.succeeded = append(f.succeeded, id)
	return nil
}

func (f *fakeOutboxRepo) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	f.failed[id] = lastError
	return nil
}

func (f *fakeOutboxRepo) ScheduleRetry(_ context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	f.retries[id] = scheduledRetry{runAt: runAt, lastError: lastError}
	return nil
}

func newTestModule(sender *fakeEmailSender) (*Module, *fakeInAppStore, *fakeOutboxRepo) {
	log := logger.New("development")
	store := newFakeInAppStore()
	ob := newFakeOutboxRepo()

	m := New(nil, sender, testNotificationConfig{}, log)
	m.inAppService = inapp.NewService(store, log)
	m.SetNotificationOutbox(ob)
	return m, store, ob
}

func seedOutboxRecord(ob *fakeOutboxRepo, payload string, attempts int) notificationoutbox.Record {
	rec := notificationoutbox.Record{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Kind:           "email",
		Template:       "email_send",
		Payload:        json.RawMessage(payload),
		RunAt:          time.Now().UTC(),
		Status:         notificationoutbox.StatusEnqueued,
		Attempts:       attempts,
	}
	ob.records[rec.ID] = rec
	return rec
}

func TestComputeOutboxRetryDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Minute},
		{attempt: 1, want: time.Minute},
		{attempt: 2, want: 2 * time.Minute},
		{attempt: 3, want: 4 * time.Minute},
		{attempt: 4, want: 8 * time.Minute},
		{attempt: 7, want: 60 * time.Minute},
		{attempt: 12, want: 60 * time.Minute},
	}

	for _, tc := range cases {
		if got := computeOutboxRetryDelay(tc.attempt); got != tc.want {
			t.Errorf("computeOutboxRetryDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestUniqueRecipients(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	got := uniqueRecipients(a, a, uuid.Nil, b)
	if len(got) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(got))
	}
	if got[0] != a || got[1] != b {
		t.Errorf("expected order [a b], got %v", got)
	}

	if got := uniqueRecipients(uuid.Nil, uuid.Nil); len(got) != 0 {
		t.Errorf("expected no recipients for nil ids, got %v", got)
	}
}

func TestBuildOpportunityLink(t *testing.T) {
	m, _, _ := newTestModule(&fakeEmailSender{})

	oppID := uuid.New()
	want := "https://app.example.com/opportunities/" + oppID.String()
	if got := m.buildOpportunityLink(oppID); got != want {
		t.Errorf("buildOpportunityLink = %q, want %q", got, want)
	}

	if got := m.buildOpportunityLink(uuid.Nil); got != "" {
		t.Errorf("expected empty link for nil id, got %q", got)
	}
}

func TestInsightsConsolidatedNotifiesOwnerOnce(t *testing.T) {
	m, store, _ := newTestModule(&fakeEmailSender{})

	ev := events.InsightsConsolidated{
		BaseEvent:      events.NewBaseEvent(),
		OpportunityID:  uuid.New(),
		OrganizationID: uuid.New(),
		OwnerID:        uuid.New(),
		MeetingsUsed:   3,
	}

	if err := m.Handle(context.Background(), ev); err != nil {
		t.Fatalf("first handle failed: %v", err)
	}
	if err := m.Handle(context.Background(), ev); err != nil {
		t.Fatalf("second handle failed: %v", err)
	}

	if len(store.rows) != 1 {
		t.Fatalf("expected 1 notification after duplicate event, got %d", len(store.rows))
	}
	for _, n := range store.rows {
		if n.TriggerType != TriggerConsolidationReady {
			t.Errorf("expected trigger %q, got %q", TriggerConsolidationReady, n.TriggerType)
		}
		if n.ResourceID != ev.OpportunityID {
			t.Errorf("expected resource %s, got %s", ev.OpportunityID, n.ResourceID)
		}
		if n.Title != "Consolidated insights ready" {
			t.Errorf("unexpected title %q", n.Title)
		}
		if !strings.Contains(n.Content, "3 parsed meetings") {
			t.Errorf("expected meeting count in content, got %q", n.Content)
		}
	}
}

func TestInsightsConsolidatedWithoutOwnerSkipsNotification(t *testing.T) {
	m, store, _ := newTestModule(&fakeEmailSender{})

	ev := events.InsightsConsolidated{
		BaseEvent:      events.NewBaseEvent(),
		OpportunityID:  uuid.New(),
		OrganizationID: uuid.New(),
		MeetingsUsed:   2,
	}

	if err := m.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if len(store.rows) != 0 {
		t.Fatalf("expected no notifications for ownerless opportunity, got %d", len(store.rows))
	}
}

func TestResearchCompletedNotifiesRequesterAndOwner(t *testing.T) {
	m, store, _ := newTestModule(&fakeEmailSender{})

	ev := events.AccountResearchCompleted{
		BaseEvent:      events.NewBaseEvent(),
		OpportunityID:  uuid.New(),
		OrganizationID: uuid.New(),
		OwnerID:        uuid.New(),
		RequestedBy:    uuid.New(),
	}

	if err := m.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if len(store.rows) != 2 {
		t.Fatalf("expected notifications for requester and owner, got %d", len(store.rows))
	}
}

func TestResearchCompletedSameRequesterAndOwner(t *testing.T) {
	m, store, _ := newTestModule(&fakeEmailSender{})

	userID := uuid.New()
	ev := events.AccountResearchCompleted{
		BaseEvent:      events.NewBaseEvent(),
		OpportunityID:  uuid.New(),
		OrganizationID: uuid.New(),
		OwnerID:        userID,
		RequestedBy:    userID,
	}

	if err := m.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected a single notification when requester owns the opportunity, got %d", len(store.rows))
	}
}

func TestImportCompletedDeduplicatesPerJob(t *testing.T) {
	m, store, _ := newTestModule(&fakeEmailSender{})

	userID := uuid.New()
	orgID := uuid.New()

	first := events.OpportunityImportCompleted{
		BaseEvent:            events.NewBaseEvent(),
		ImportJobID:          uuid.New(),
		OrganizationID:       orgID,
		RequestedBy:          userID,
		OpportunitiesCreated: 10,
		MeetingsCreated:      25,
		RowsSkipped:          2,
	}
	second := events.OpportunityImportCompleted{
		BaseEvent:      events.NewBaseEvent(),
		ImportJobID:    uuid.New(),
		OrganizationID: orgID,
		RequestedBy:    userID,
	}

	if err := m.Handle(context.Background(), first); err != nil {
		t.Fatalf("first import event failed: %v", err)
	}
	if err := m.Handle(context.Background(), first); err != nil {
		t.Fatalf("duplicate import event failed: %v", err)
	}
	if err := m.Handle(context.Background(), second); err != nil {
		t.Fatalf("second import event failed: %v", err)
	}

	// Each import job is its own resource: re-delivery dedups, a new job does not.
	if len(store.rows) != 2 {
		t.Fatalf("expected one notification per import job, got %d", len(store.rows))
	}
}

func TestOutboxDueDeliversEmail(t *testing.T) {
	sender := &fakeEmailSender{}
	m, _, ob := newTestModule(sender)

	rec := seedOutboxRecord(ob, `{"orgId":"","toEmail":"owner@example.com","subject":"Consolidated insights ready","bodyHtml":"<p>done</p>"}`, 0)

	err := m.Handle(context.Background(), events.NotificationOutboxDue{
		BaseEvent:      events.NewBaseEvent(),
		OutboxID:       rec.ID,
		OrganizationID: rec.OrganizationID,
	})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if len(ob.processing) != 1 || ob.processing[0] != rec.ID {
		t.Fatalf("expected record marked processing, got %v", ob.processing)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email sent, got %d", len(sender.sent))
	}
	if sender.sent[0].to != "owner@example.com" || sender.sent[0].subject != "Consolidated insights ready" {
		t.Errorf("unexpected email %+v", sender.sent[0])
	}
	if len(ob.succeeded) != 1 || ob.succeeded[0] != rec.ID {
		t.Fatalf("expected record marked succeeded, got %v", ob.succeeded)
	}
}

func TestOutboxDueSchedulesRetryOnSendFailure(t *testing.T) {
	sender := &fakeEmailSender{sendErr: errors.New("smtp down")}
	m, _, ob := newTestModule(sender)

	rec := seedOutboxRecord(ob, `{"toEmail":"owner@example.com","subject":"s","bodyHtml":"b"}`, 0)

	start := time.Now().UTC()
	err := m.Handle(context.Background(), events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  rec.ID,
	})
	if err != nil {
		t.Fatalf("delivery failures must not bubble up to the task queue, got %v", err)
	}

	retry, ok := ob.retries[rec.ID]
	if !ok {
		t.Fatal("expected a scheduled retry")
	}
	if retry.lastError != "smtp down" {
		t.Errorf("expected last error recorded, got %q", retry.lastError)
	}
	if delay := retry.runAt.Sub(start); delay < time.Minute || delay > 2*time.Minute {
		t.Errorf("expected first retry roughly one minute out, got %v", delay)
	}
	if _, failed := ob.failed[rec.ID]; failed {
		t.Error("record must not be failed while retries remain")
	}
}

func TestOutboxDueExhaustsRetries(t *testing.T) {
	sender := &fakeEmailSender{sendErr: errors.New("smtp down")}
	m, _, ob := newTestModule(sender)

	rec := seedOutboxRecord(ob, `{"toEmail":"owner@example.com","subject":"s","bodyHtml":"b"}`, maxOutboxRetryAttempts-1)

	err := m.Handle(context.Background(), events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  rec.ID,
	})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if ob.failed[rec.ID] != "smtp down" {
		t.Fatalf("expected record failed after final attempt, got %q", ob.failed[rec.ID])
	}
	if _, ok := ob.retries[rec.ID]; ok {
		t.Error("no retry may be scheduled after the final attempt")
	}
}

func TestOutboxDueInvalidPayload(t *testing.T) {
	sender := &fakeEmailSender{}
	m, _, ob := newTestModule(sender)

	rec := seedOutboxRecord(ob, `{not json`, 0)

	err := m.Handle(context.Background(), events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  rec.ID,
	})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if !strings.HasPrefix(ob.failed[rec.ID], invalidOutboxPayloadPrefix) {
		t.Errorf("expected invalid payload failure, got %q", ob.failed[rec.ID])
	}
	if len(sender.sent) != 0 {
		t.Error("no email may be sent for an invalid payload")
	}
}

func TestOutboxDueMissingSubjectFails(t *testing.T) {
	sender := &fakeEmailSender{}
	m, _, ob := newTestModule(sender)

	rec := seedOutboxRecord(ob, `{"toEmail":"owner@example.com","subject":"","bodyHtml":"b"}`, 0)

	if err := m.Handle(context.Background(), events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  rec.ID,
	}); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if ob.failed[rec.ID] != "invalid payload: subject and bodyHtml are required" {
		t.Errorf("unexpected failure message %q", ob.failed[rec.ID])
	}
}

func TestOutboxDueEmptyRecipientSucceeds(t *testing.T) {
	sender := &fakeEmailSender{}
	m, _, ob := newTestModule(sender)

	rec := seedOutboxRecord(ob, `{"toEmail":"","subject":"s","bodyHtml":"b"}`, 0)

	if err := m.Handle(context.Background(), events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  rec.ID,
	}); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if len(sender.sent) != 0 {
		t.Error("no email may be sent without a recipient")
	}
	if len(ob.succeeded) != 1 {
		t.Fatalf("expected record settled as succeeded, got %v", ob.succeeded)
	}
}

func TestOutboxDueUnsupportedKind(t *testing.T) {
	sender := &fakeEmailSender{}
	m, _, ob := newTestModule(sender)

	rec := seedOutboxRecord(ob, `{}`, 0)
	rec.Kind = "sms"
	ob.records[rec.ID] = rec

	if err := m.Handle(context.Background(), events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  rec.ID,
	}); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	want := fmt.Sprintf("unsupported outbox kind/template: %s/%s", "sms", "email_send")
	if ob.failed[rec.ID] != want {
		t.Errorf("expected %q, got %q", want, ob.failed[rec.ID])
	}
}

func TestOutboxDueAlreadySucceededSkips(t *testing.T) {
	sender := &fakeEmailSender{}
	m, _, ob := newTestModule(sender)

	rec := seedOutboxRecord(ob, `{"toEmail":"owner@example.com","subject":"s","bodyHtml":"b"}`, 0)
	rec.Status = notificationoutbox.StatusSucceeded
	ob.records[rec.ID] = rec

	if err := m.Handle(context.Background(), events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  rec.ID,
	}); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if len(ob.processing) != 0 || len(sender.sent) != 0 {
		t.Error("an already succeeded record must not be reprocessed")
	}
}

func TestOutboxDueMissingRecordSkips(t *testing.T) {
	sender := &fakeEmailSender{}
	m, _, ob := newTestModule(sender)

	if err := m.Handle(context.Background(), events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  uuid.New(),
	}); err != nil {
		t.Fatalf("a deleted outbox row must be skipped, got %v", err)
	}
	if len(ob.processing) != 0 || len(sender.sent) != 0 {
		t.Error("nothing may be processed for a missing record")
	}
}

func TestOutboxDuePrepareErrorPropagates(t *testing.T) {
	sender := &fakeEmailSender{}
	m, _, ob := newTestModule(sender)
	ob.getErr = errors.New("db down")

	err := m.Handle(context.Background(), events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  uuid.New(),
	})
	if err == nil {
		t.Fatal("expected lookup failure to propagate so the task is retried")
	}
}

func TestOutboxDueWithoutSenderFails(t *testing.T) {
	m, _, ob := newTestModule(&fakeEmailSender{})
	m.sender = nil

	rec := seedOutboxRecord(ob, `{"toEmail":"owner@example.com","subject":"s","bodyHtml":"b"}`, 0)

	if err := m.Handle(context.Background(), events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  rec.ID,
	}); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if ob.failed[rec.ID] != "email sender not configured" {
		t.Errorf("unexpected failure message %q", ob.failed[rec.ID])
	}
}
