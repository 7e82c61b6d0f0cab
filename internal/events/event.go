// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"dealdesk_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Meeting Domain Events
// =============================================================================

// MeetingIngested is published when a new meeting record enters the pipeline.
type MeetingIngested struct {
	BaseEvent
	MeetingID      uuid.UUID `json:"meetingId"`
	OpportunityID  uuid.UUID `json:"opportunityId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	Kind           string    `json:"kind"`   // "call_transcript" or "note"
	Source         string    `json:"source"` // "api", "webhook", "mailin", "import"
}

func (e MeetingIngested) EventName() string { return "meetings.meeting.ingested" }

// TranscriptParsed is published after a meeting transcript has been parsed
// and its extracted insights persisted.
type TranscriptParsed struct {
	BaseEvent
	MeetingID             uuid.UUID `json:"meetingId"`
	OpportunityID         uuid.UUID `json:"opportunityId"`
	OrganizationID        uuid.UUID `json:"organizationId"`
	CompletedMeetingCount int       `json:"completedMeetingCount"`
}

func (e TranscriptParsed) EventName() string { return "meetings.transcript.parsed" }

// TranscriptParseFailed is published when parsing exhausted its delivery
// budget and the meeting was marked failed.
type TranscriptParseFailed struct {
	BaseEvent
	MeetingID      uuid.UUID `json:"meetingId"`
	OpportunityID  uuid.UUID `json:"opportunityId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	ErrorMessage   string    `json:"errorMessage"`
}

func (e TranscriptParseFailed) EventName() string { return "meetings.transcript.parse_failed" }

// MeetingRiskAssessed is published when the risk analyzer has stored its
// assessment on a parsed meeting.
type MeetingRiskAssessed struct {
	BaseEvent
	MeetingID      uuid.UUID `json:"meetingId"`
	OpportunityID  uuid.UUID `json:"opportunityId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	RiskLevel      string    `json:"riskLevel"`
}

func (e MeetingRiskAssessed) EventName() string { return "meetings.risk.assessed" }

// =============================================================================
// Opportunity Domain Events
// =============================================================================

// InsightsConsolidated is published when cross-meeting insights have been
// merged and stamped onto an opportunity.
type InsightsConsolidated struct {
	BaseEvent
	OpportunityID  uuid.UUID `json:"opportunityId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	OwnerID        uuid.UUID `json:"ownerId"`
	MeetingsUsed   int       `json:"meetingsUsed"`
}

func (e InsightsConsolidated) EventName() string { return "opportunities.insights.consolidated" }

// ScheduleRecalculated is published after the derived schedule fields of an
// opportunity have been recomputed.
type ScheduleRecalculated struct {
	BaseEvent
	OpportunityID          uuid.UUID `json:"opportunityId"`
	OrganizationID         uuid.UUID `json:"organizationId"`
	NeedsNextCallScheduled bool      `json:"needsNextCallScheduled"`
}

func (e ScheduleRecalculated) EventName() string { return "opportunities.schedule.recalculated" }

// AccountResearchCompleted is published when the research agent has stored
// its findings on an opportunity.
type AccountResearchCompleted struct {
	BaseEvent
	OpportunityID  uuid.UUID `json:"opportunityId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	OwnerID        uuid.UUID `json:"ownerId"`
	RequestedBy    uuid.UUID `json:"requestedBy"`
}

func (e AccountResearchCompleted) EventName() string { return "opportunities.research.completed" }

// AccountResearchFailed is published when research exhausted its delivery budget.
type AccountResearchFailed struct {
	BaseEvent
	OpportunityID  uuid.UUID `json:"opportunityId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	ErrorMessage   string    `json:"errorMessage"`
}

func (e AccountResearchFailed) EventName() string { return "opportunities.research.failed" }

// =============================================================================
// Document Domain Events
// =============================================================================

// DocumentGenerated is published when a document generation job completes.
type DocumentGenerated struct {
	BaseEvent
	DocumentID     uuid.UUID `json:"documentId"`
	OpportunityID  uuid.UUID `json:"opportunityId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	CreatedBy      uuid.UUID `json:"createdBy"`
	Version        int       `json:"version"`
	Title          string    `json:"title"`
}

func (e DocumentGenerated) EventName() string { return "documents.document.generated" }

// DocumentGenerationFailed is published when a generation job is marked failed.
type DocumentGenerationFailed struct {
	BaseEvent
	DocumentID     uuid.UUID `json:"documentId"`
	OpportunityID  uuid.UUID `json:"opportunityId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	CreatedBy      uuid.UUID `json:"createdBy"`
	ErrorMessage   string    `json:"errorMessage"`
}

func (e DocumentGenerationFailed) EventName() string { return "documents.document.generation_failed" }

// =============================================================================
// Calendar Domain Events
// =============================================================================

// CalendarEventsSynced is published after a provider webhook batch has been
// upserted. OpportunityIDs lists the opportunities whose schedules were touched.
type CalendarEventsSynced struct {
	BaseEvent
	OrganizationID uuid.UUID   `json:"organizationId"`
	Provider       string      `json:"provider"`
	OpportunityIDs []uuid.UUID `json:"opportunityIds"`
	EventCount     int         `json:"eventCount"`
	SyncedAt       time.Time   `json:"syncedAt"`
}

func (e CalendarEventsSynced) EventName() string { return "calendar.events.synced" }

// =============================================================================
// Import Domain Events
// =============================================================================

// OpportunityImportCompleted is published when a CSV import job finishes.
type OpportunityImportCompleted struct {
	BaseEvent
	ImportJobID          uuid.UUID `json:"importJobId"`
	OrganizationID       uuid.UUID `json:"organizationId"`
	RequestedBy          uuid.UUID `json:"requestedBy"`
	OpportunitiesCreated int       `json:"opportunitiesCreated"`
	MeetingsCreated      int       `json:"meetingsCreated"`
	RowsSkipped          int       `json:"rowsSkipped"`
}

func (e OpportunityImportCompleted) EventName() string { return "imports.import.completed" }

// OpportunityImportFailed is published when an import job is marked failed.
type OpportunityImportFailed struct {
	BaseEvent
	ImportJobID    uuid.UUID `json:"importJobId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	RequestedBy    uuid.UUID `json:"requestedBy"`
	ErrorMessage   string    `json:"errorMessage"`
}

func (e OpportunityImportFailed) EventName() string { return "imports.import.failed" }

// =============================================================================
// Notification Domain Events
// =============================================================================

// NotificationOutboxDue is published by the scheduler when a notification outbox
// record should be processed.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID       uuid.UUID `json:"outboxId"`
	OrganizationID uuid.UUID `json:"organizationId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
