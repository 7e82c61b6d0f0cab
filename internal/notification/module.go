// Package notification turns pipeline events into user-facing signals: SSE
// pushes for live progress, deduplicated in-app notifications for the
// completion triggers, and outbox-backed email delivery. Domain modules
// publish events and never know about mail or sockets.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealdesk_backend/internal/email"
	"dealdesk_backend/internal/events"
	apphttp "dealdesk_backend/internal/http"
	notifhandler "dealdesk_backend/internal/notification/handler"
	"dealdesk_backend/internal/notification/inapp"
	notificationoutbox "dealdesk_backend/internal/notification/outbox"
	"dealdesk_backend/internal/notification/sse"
	"dealdesk_backend/platform/config"
	"dealdesk_backend/platform/httpkit"
	"dealdesk_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Trigger types for deduplicated in-app notifications. One row per
// (user, resource, trigger); re-emitting the same trigger is a no-op.
const (
	TriggerConsolidationReady = "consolidation_ready"
	TriggerResearchReady      = "research_ready"
	TriggerImportReady        = "import_ready"
)

const (
	outboxKindEmail         = "email"
	outboxTemplateEmailSend = "email_send"

	invalidOutboxPayloadPrefix = "invalid payload: "
	maxOutboxRetryAttempts     = 5
	outboxRetryBaseDelay       = time.Minute
	outboxRetryMaxDelay        = 60 * time.Minute
)

// NotificationOutbox is the slice of the outbox repository this module needs
// to enqueue and settle email deliveries.
type NotificationOutbox interface {
	Insert(ctx context.Context, p notificationoutbox.InsertParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (notificationoutbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
}

var _ NotificationOutbox = (*notificationoutbox.Repository)(nil)

type emailSendOutboxPayload struct {
	OrgID    string `json:"orgId"`
	ToEmail  string `json:"toEmail"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"bodyHtml"`
}

// Module handles all notification-related event subscriptions.
type Module struct {
	pool         *pgxpool.Pool
	sender       email.Sender
	cfg          config.NotificationConfig
	log          *logger.Logger
	sse          *sse.Service
	outbox       NotificationOutbox
	inAppService *inapp.Service
	inAppHandler *notifhandler.HTTPHandler
}

// New creates a new notification module.
func New(pool *pgxpool.Pool, sender email.Sender, cfg config.NotificationConfig, log *logger.Logger) *Module {
	inAppRepo := inapp.New(pool)
	inAppSvc := inapp.NewService(inAppRepo, log)

	return &Module{
		pool:         pool,
		sender:       sender,
		cfg:          cfg,
		log:          log,
		inAppService: inAppSvc,
		inAppHandler: notifhandler.NewHTTPHandler(inAppSvc),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes registers the notification read surface and the SSE stream.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	notifications := ctx.Protected.Group("/notifications")
	if m.inAppHandler != nil {
		m.inAppHandler.RegisterRoutes(notifications)
	}
	if m.sse != nil {
		notifications.GET("/stream", m.sse.Handler(
			func(c *gin.Context) (uuid.UUID, bool) {
				id := httpkit.GetIdentity(c)
				if !id.IsAuthenticated() {
					return uuid.Nil, false
				}
				return id.UserID(), true
			},
			func(c *gin.Context) (uuid.UUID, bool) {
				if orgID := httpkit.GetIdentity(c).OrganizationID(); orgID != nil {
					return *orgID, true
				}
				return uuid.Nil, false
			},
		))
	}
}

// SetSSE injects the SSE service so events can be pushed to connected users.
func (m *Module) SetSSE(s *sse.Service) {
	m.sse = s
	if m.inAppService != nil {
		m.inAppService.SetSSE(s)
	}
}

// SetNotificationOutbox enables durable email delivery. Without it the module
// still creates in-app notifications and SSE pushes; emails are skipped.
func (m *Module) SetNotificationOutbox(repo NotificationOutbox) {
	m.outbox = repo
}

// RegisterHandlers subscribes the module to the pipeline events it reacts to.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	// Meeting pipeline progress
	bus.Subscribe(events.TranscriptParsed{}.EventName(), m)
	bus.Subscribe(events.TranscriptParseFailed{}.EventName(), m)
	bus.Subscribe(events.MeetingRiskAssessed{}.EventName(), m)

	// Opportunity aggregates
	bus.Subscribe(events.InsightsConsolidated{}.EventName(), m)
	bus.Subscribe(events.ScheduleRecalculated{}.EventName(), m)
	bus.Subscribe(events.AccountResearchCompleted{}.EventName(), m)
	bus.Subscribe(events.AccountResearchFailed{}.EventName(), m)

	// Generated documents
	bus.Subscribe(events.DocumentGenerated{}.EventName(), m)
	bus.Subscribe(events.DocumentGenerationFailed{}.EventName(), m)

	// CSV imports
	bus.Subscribe(events.OpportunityImportCompleted{}.EventName(), m)
	bus.Subscribe(events.OpportunityImportFailed{}.EventName(), m)

	// Outbox delivery
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.TranscriptParsed:
		return m.handleTranscriptParsed(ctx, e)
	case events.TranscriptParseFailed:
		return m.handleTranscriptParseFailed(ctx, e)
	case events.MeetingRiskAssessed:
		return m.handleMeetingRiskAssessed(ctx, e)
	case events.InsightsConsolidated:
		return m.handleInsightsConsolidated(ctx, e)
	case events.ScheduleRecalculated:
		return m.handleScheduleRecalculated(ctx, e)
	case events.AccountResearchCompleted:
		return m.handleAccountResearchCompleted(ctx, e)
	case events.AccountResearchFailed:
		return m.handleAccountResearchFailed(ctx, e)
	case events.DocumentGenerated:
		return m.handleDocumentGenerated(ctx, e)
	case events.DocumentGenerationFailed:
		return m.handleDocumentGenerationFailed(ctx, e)
	case events.OpportunityImportCompleted:
		return m.handleOpportunityImportCompleted(ctx, e)
	case events.OpportunityImportFailed:
		return m.handleOpportunityImportFailed(ctx, e)
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

// =============================================================================
// Pipeline progress pushes
// =============================================================================

func (m *Module) handleTranscriptParsed(_ context.Context, e events.TranscriptParsed) error {
	m.pushOpportunityEvent(e.OrganizationID, sse.EventTranscriptParsed, e.OpportunityID, "", map[string]any{
		"meetingId":             e.MeetingID,
		"completedMeetingCount": e.CompletedMeetingCount,
	})
	return nil
}

func (m *Module) handleTranscriptParseFailed(_ context.Context, e events.TranscriptParseFailed) error {
	m.pushOpportunityEvent(e.OrganizationID, sse.EventTranscriptParseFailed, e.OpportunityID, e.ErrorMessage, map[string]any{
		"meetingId": e.MeetingID,
	})
	return nil
}

func (m *Module) handleMeetingRiskAssessed(_ context.Context, e events.MeetingRiskAssessed) error {
	m.pushOpportunityEvent(e.OrganizationID, sse.EventMeetingRiskAssessed, e.OpportunityID, "", map[string]any{
		"meetingId": e.MeetingID,
		"riskLevel": e.RiskLevel,
	})
	return nil
}

func (m *Module) handleScheduleRecalculated(_ context.Context, e events.ScheduleRecalculated) error {
	m.pushOpportunityEvent(e.OrganizationID, sse.EventScheduleRecalculated, e.OpportunityID, "", map[string]any{
		"needsNextCallScheduled": e.NeedsNextCallScheduled,
	})
	return nil
}

func (m *Module) handleDocumentGenerated(_ context.Context, e events.DocumentGenerated) error {
	if m.sse == nil {
		return nil
	}
	m.sse.Publish(e.CreatedBy, sse.Event{
		Type:          sse.EventDocumentGenerated,
		OpportunityID: e.OpportunityID,
		Data: map[string]any{
			"documentId": e.DocumentID,
			"version":    e.Version,
			"title":      e.Title,
		},
	})
	return nil
}

func (m *Module) handleDocumentGenerationFailed(_ context.Context, e events.DocumentGenerationFailed) error {
	if m.sse == nil {
		return nil
	}
	m.sse.Publish(e.CreatedBy, sse.Event{
		Type:          sse.EventDocumentGenerationFailed,
		OpportunityID: e.OpportunityID,
		Message:       e.ErrorMessage,
		Data: map[string]any{
			"documentId": e.DocumentID,
		},
	})
	return nil
}

func (m *Module) handleAccountResearchFailed(_ context.Context, e events.AccountResearchFailed) error {
	m.pushOpportunityEvent(e.OrganizationID, sse.EventResearchFailed, e.OpportunityID, e.ErrorMessage, nil)
	return nil
}

func (m *Module) handleOpportunityImportFailed(_ context.Context, e events.OpportunityImportFailed) error {
	if m.sse == nil {
		return nil
	}
	m.sse.Publish(e.RequestedBy, sse.Event{
		Type:    sse.EventImportFailed,
		Message: e.ErrorMessage,
		Data: map[string]any{
			"importJobId": e.ImportJobID,
		},
	})
	return nil
}

// =============================================================================
// Deduplicated completion triggers
// =============================================================================

func (m *Module) handleInsightsConsolidated(ctx context.Context, e events.InsightsConsolidated) error {
	account := m.resolveOpportunityAccount(ctx, e.OpportunityID)

	m.pushOpportunityEvent(e.OrganizationID, sse.EventInsightsConsolidated, e.OpportunityID, "", map[string]any{
		"meetingsUsed": e.MeetingsUsed,
	})

	if e.OwnerID == uuid.Nil {
		return nil
	}

	title := "Consolidated insights ready"
	if account != "" {
		title = fmt.Sprintf("Consolidated insights ready: %s", account)
	}
	content := fmt.Sprintf("Insights from %d parsed meetings were merged into the opportunity profile.", e.MeetingsUsed)

	if m.notifyUserInApp(ctx, e.OrganizationID, e.OwnerID, TriggerConsolidationReady, e.OpportunityID, title, content) {
		subject, body, err := email.BuildConsolidationReadyEmail(account, m.buildOpportunityLink(e.OpportunityID), e.MeetingsUsed)
		if err != nil {
			m.log.Warn("failed to render consolidation email", "opportunityId", e.OpportunityID, "error", err)
			return nil
		}
		m.enqueueEmailOutbox(ctx, e.OrganizationID, e.OwnerID, subject, body)
	}
	return nil
}

func (m *Module) handleAccountResearchCompleted(ctx context.Context, e events.AccountResearchCompleted) error {
	account := m.resolveOpportunityAccount(ctx, e.OpportunityID)

	m.pushOpportunityEvent(e.OrganizationID, sse.EventResearchCompleted, e.OpportunityID, "", nil)

	title := "Account research ready"
	if account != "" {
		title = fmt.Sprintf("Account research ready: %s", account)
	}
	content := "The research brief is ready to review on the opportunity page."

	for _, userID := range uniqueRecipients(e.RequestedBy, e.OwnerID) {
		if m.notifyUserInApp(ctx, e.OrganizationID, userID, TriggerResearchReady, e.OpportunityID, title, content) {
			subject, body, err := email.BuildResearchReadyEmail(account, m.buildOpportunityLink(e.OpportunityID))
			if err != nil {
				m.log.Warn("failed to render research email", "opportunityId", e.OpportunityID, "error", err)
				continue
			}
			m.enqueueEmailOutbox(ctx, e.OrganizationID, userID, subject, body)
		}
	}
	return nil
}

func (m *Module) handleOpportunityImportCompleted(ctx context.Context, e events.OpportunityImportCompleted) error {
	if m.sse != nil {
		m.sse.Publish(e.RequestedBy, sse.Event{
			Type: sse.EventImportCompleted,
			Data: map[string]any{
				"importJobId":          e.ImportJobID,
				"opportunitiesCreated": e.OpportunitiesCreated,
				"meetingsCreated":      e.MeetingsCreated,
				"rowsSkipped":          e.RowsSkipped,
			},
		})
	}

	if e.RequestedBy == uuid.Nil {
		return nil
	}

	title := "Opportunity import finished"
	content := fmt.Sprintf("%d opportunities and %d meetings were created (%d rows skipped).",
		e.OpportunitiesCreated, e.MeetingsCreated, e.RowsSkipped)

	if m.notifyUserInApp(ctx, e.OrganizationID, e.RequestedBy, TriggerImportReady, e.ImportJobID, title, content) {
		subject, body, err := email.BuildImportReadyEmail(e.OpportunitiesCreated, e.MeetingsCreated, e.RowsSkipped, m.buildImportLink(e.ImportJobID))
		if err != nil {
			m.log.Warn("failed to render import email", "importJobId", e.ImportJobID, "error", err)
			return nil
		}
		m.enqueueEmailOutbox(ctx, e.OrganizationID, e.RequestedBy, subject, body)
	}
	return nil
}

// notifyUserInApp creates a deduplicated in-app notification and reports
// whether a new row was created. Failures are logged, never propagated; a
// broken notification must not fail the pipeline step that triggered it.
func (m *Module) notifyUserInApp(ctx context.Context, orgID, userID uuid.UUID, triggerType string, resourceID uuid.UUID, title, content string) bool {
	if m.inAppService == nil || userID == uuid.Nil {
		return false
	}

	created, err := m.inAppService.Send(ctx, inapp.SendParams{
		OrgID:       orgID,
		UserID:      userID,
		TriggerType: triggerType,
		ResourceID:  resourceID,
		Title:       title,
		Content:     content,
	})
	if err != nil {
		m.log.Warn("failed to create in-app notification",
			"userId", userID, "trigger", triggerType, "resourceId", resourceID, "error", err)
		return false
	}
	return created
}

// enqueueEmailOutbox stores a rendered email on the outbox for the dispatcher
// to pick up. Skipped silently when the outbox is not configured or the user
// has no email address.
func (m *Module) enqueueEmailOutbox(ctx context.Context, orgID, userID uuid.UUID, subject, bodyHTML string) {
	if m.outbox == nil {
		m.log.Debug("notification outbox not configured; skipping email", "userId", userID)
		return
	}

	toEmail := m.resolveUserEmail(ctx, userID)
	if toEmail == "" {
		m.log.Warn("no email address for notification recipient", "userId", userID)
		return
	}

	outboxID, err := m.outbox.Insert(ctx, notificationoutbox.InsertParams{
		OrganizationID: orgID,
		Kind:           outboxKindEmail,
		Template:       outboxTemplateEmailSend,
		Payload: emailSendOutboxPayload{
			OrgID:    orgID.String(),
			ToEmail:  toEmail,
			Subject:  subject,
			BodyHTML: bodyHTML,
		},
		RunAt: time.Now().UTC(),
	})
	if err != nil {
		m.log.Warn("failed to enqueue notification email", "userId", userID, "error", err)
		return
	}

	m.log.Info("notification email queued", "outboxId", outboxID, "orgId", orgID, "toEmail", toEmail)
}

// =============================================================================
// Outbox delivery
// =============================================================================

func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	if m.outbox == nil {
		m.log.Debug("notification outbox not configured; skipping outbox due event", "outboxId", e.OutboxID)
		return nil
	}

	rec, process, err := m.prepareOutboxRecord(ctx, e.OutboxID)
	if err != nil || !process {
		if err != nil {
			m.log.Error("failed to prepare outbox record", "outboxId", e.OutboxID, "error", err)
		}
		return err
	}

	if rec.Kind != outboxKindEmail {
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	var processErr error
	switch rec.Template {
	case outboxTemplateEmailSend:
		processErr = m.processEmailOutbox(ctx, rec)
	default:
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	if processErr != nil {
		// Delivery retries live on the outbox row, not the task queue.
		m.handleOutboxDeliveryError(ctx, rec, processErr)
		return nil
	}

	m.log.Info("outbox record processed successfully", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
	return nil
}

func (m *Module) prepareOutboxRecord(ctx context.Context, outboxID uuid.UUID) (notificationoutbox.Record, bool, error) {
	rec, err := m.outbox.GetByID(ctx, outboxID)
	if errors.Is(err, pgx.ErrNoRows) {
		m.log.Debug("outbox record no longer exists; skipping", "outboxId", outboxID)
		return notificationoutbox.Record{}, false, nil
	}
	if err != nil {
		return notificationoutbox.Record{}, false, err
	}
	if rec.Status == notificationoutbox.StatusSucceeded {
		m.log.Debug("outbox record already succeeded; skipping", "outboxId", rec.ID.String())
		return rec, false, nil
	}
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return notificationoutbox.Record{}, false, err
	}
	return rec, true, nil
}

func (m *Module) processEmailOutbox(ctx context.Context, rec notificationoutbox.Record) error {
	var payload emailSendOutboxPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		return nil
	}

	if strings.TrimSpace(payload.ToEmail) == "" {
		m.log.Debug("outbox email payload has no recipient; marking succeeded", "outboxId", rec.ID.String())
		_ = m.outbox.MarkSucceeded(ctx, rec.ID)
		return nil
	}

	if strings.TrimSpace(payload.Subject) == "" || strings.TrimSpace(payload.BodyHTML) == "" {
		_ = m.outbox.MarkFailed(ctx, rec.ID, "invalid payload: subject and bodyHtml are required")
		return nil
	}

	if m.sender == nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, "email sender not configured")
		return nil
	}

	if err := m.sender.SendCustomEmail(ctx, payload.ToEmail, payload.Subject, payload.BodyHTML); err != nil {
		return err
	}

	_ = m.outbox.MarkSucceeded(ctx, rec.ID)
	m.log.Info("email outbox delivered", "outboxId", rec.ID.String(), "orgId", rec.OrganizationID, "toEmail", payload.ToEmail)
	return nil
}

func (m *Module) handleOutboxDeliveryError(ctx context.Context, rec notificationoutbox.Record, deliveryErr error) {
	attempt := rec.Attempts + 1
	if attempt >= maxOutboxRetryAttempts {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Warn("notification outbox exhausted retries",
			"outboxId", rec.ID.String(),
			"kind", rec.Kind,
			"template", rec.Template,
			"attempt", attempt,
			"maxAttempts", maxOutboxRetryAttempts,
			"error", deliveryErr,
		)
		return
	}

	retryAt := time.Now().UTC().Add(computeOutboxRetryDelay(attempt))
	if err := m.outbox.ScheduleRetry(ctx, rec.ID, retryAt, deliveryErr.Error()); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Error("notification outbox retry scheduling failed; marked failed",
			"outboxId", rec.ID.String(),
			"attempt", attempt,
			"error", err,
		)
		return
	}

	m.log.Warn("notification outbox scheduled retry",
		"outboxId", rec.ID.String(),
		"kind", rec.Kind,
		"template", rec.Template,
		"attempt", attempt,
		"maxAttempts", maxOutboxRetryAttempts,
		"retryAt", retryAt,
		"error", deliveryErr,
	)
}

func computeOutboxRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxRetryBaseDelay << (attempt - 1)
	if delay > outboxRetryMaxDelay {
		return outboxRetryMaxDelay
	}
	return delay
}

func (m *Module) markOutboxUnsupported(ctx context.Context, rec notificationoutbox.Record) {
	msg := fmt.Sprintf("unsupported outbox kind/template: %s/%s", rec.Kind, rec.Template)
	_ = m.outbox.MarkFailed(ctx, rec.ID, msg)
	m.log.Warn("unsupported outbox record", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
}

// =============================================================================
// Lookups and helpers
// =============================================================================

// resolveOpportunityAccount fetches the account name for notification copy.
// Best effort: a missing opportunity just means generic wording.
func (m *Module) resolveOpportunityAccount(ctx context.Context, opportunityID uuid.UUID) string {
	if m.pool == nil || opportunityID == uuid.Nil {
		return ""
	}
	var name string
	err := m.pool.QueryRow(ctx,
		`SELECT account_name FROM opportunities WHERE id = $1 AND deleted_at IS NULL`,
		opportunityID,
	).Scan(&name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(name)
}

func (m *Module) resolveUserEmail(ctx context.Context, userID uuid.UUID) string {
	if m.pool == nil || userID == uuid.Nil {
		return ""
	}
	var address string
	err := m.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&address)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(address)
}

func (m *Module) buildOpportunityLink(opportunityID uuid.UUID) string {
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	if base == "" || opportunityID == uuid.Nil {
		return ""
	}
	return fmt.Sprintf("%s/opportunities/%s", base, opportunityID)
}

func (m *Module) buildImportLink(importJobID uuid.UUID) string {
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	if base == "" || importJobID == uuid.Nil {
		return ""
	}
	return fmt.Sprintf("%s/imports/%s", base, importJobID)
}

func (m *Module) pushOpportunityEvent(orgID uuid.UUID, eventType sse.EventType, opportunityID uuid.UUID, message string, data map[string]any) {
	if m.sse == nil {
		return
	}
	m.sse.PublishToOrganization(orgID, sse.Event{
		Type:          eventType,
		OpportunityID: opportunityID,
		Message:       message,
		Data:          data,
	})
}

// uniqueRecipients drops zero and duplicate ids, preserving order.
func uniqueRecipients(ids ...uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
