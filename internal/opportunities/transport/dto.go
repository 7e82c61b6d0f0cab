// Package transport defines the request and response shapes of the
// opportunities HTTP surface.
package transport

import (
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/internal/opportunities/management"
	"dealdesk_backend/internal/opportunities/repository"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// CreateOpportunityRequest is the request body for creating an opportunity.
type CreateOpportunityRequest struct {
	AccountName  string     `json:"accountName" validate:"required,min=1,max=300"`
	ContactName  *string    `json:"contactName" validate:"omitempty,max=200"`
	ContactEmail *string    `json:"contactEmail" validate:"omitempty,email,max=320"`
	ContactPhone *string    `json:"contactPhone" validate:"omitempty,max=40"`
	Stage        string     `json:"stage" validate:"omitempty,opportunity_stage"`
	AmountCents  *int64     `json:"amountCents" validate:"omitempty,min=0"`
	OwnerID      *uuid.UUID `json:"ownerId"`
}

// UpdateOpportunityRequest is the request body for partial updates. Absent
// fields keep their stored value.
type UpdateOpportunityRequest struct {
	AccountName  *string    `json:"accountName" validate:"omitempty,min=1,max=300"`
	ContactName  *string    `json:"contactName" validate:"omitempty,max=200"`
	ContactEmail *string    `json:"contactEmail" validate:"omitempty,email,max=320"`
	ContactPhone *string    `json:"contactPhone" validate:"omitempty,max=40"`
	Stage        *string    `json:"stage" validate:"omitempty,opportunity_stage"`
	AmountCents  *int64     `json:"amountCents" validate:"omitempty,min=0"`
	OwnerID      *uuid.UUID `json:"ownerId"`
}

// IngestMeetingRequest is the request body for adding a transcript or note to
// an opportunity.
type IngestMeetingRequest struct {
	Kind           string     `json:"kind" validate:"required,oneof=call_transcript note"`
	Title          *string    `json:"title" validate:"omitempty,max=300"`
	OccurredAt     *time.Time `json:"occurredAt"`
	TranscriptText string     `json:"transcriptText" validate:"required"`
}

// SetNextCallRequest is the request body for a manual next-call override.
type SetNextCallRequest struct {
	NextCallDate time.Time `json:"nextCallDate" validate:"required"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

type PersonResponse struct {
	Name    string  `json:"name"`
	Role    *string `json:"role,omitempty"`
	Company *string `json:"company,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
}

type RiskResponse struct {
	Level   string   `json:"level"`
	Factors []string `json:"factors"`
	Summary string   `json:"summary,omitempty"`
}

type ConsolidatedInsightsResponse struct {
	PainPoints []string      `json:"painPoints"`
	Goals      []string      `json:"goals"`
	NextSteps  []string      `json:"nextSteps"`
	Metrics    []string      `json:"metrics"`
	Risk       *RiskResponse `json:"risk,omitempty"`
}

type ScheduleResponse struct {
	LastCallDate           *time.Time `json:"lastCallDate,omitempty"`
	LastCallSource         *string    `json:"lastCallSource,omitempty"`
	NextCallDate           *time.Time `json:"nextCallDate,omitempty"`
	NextCallSource         *string    `json:"nextCallSource,omitempty"`
	NextCallManuallySet    bool       `json:"nextCallManuallySet"`
	CheckpointDate         *time.Time `json:"checkpointDate,omitempty"`
	NeedsNextCallScheduled bool       `json:"needsNextCallScheduled"`
	CalculatedAt           *time.Time `json:"calculatedAt,omitempty"`
}

type OpportunityResponse struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	OwnerID        *uuid.UUID `json:"ownerId,omitempty"`
	AccountName    string     `json:"accountName"`
	ContactName    *string    `json:"contactName,omitempty"`
	ContactEmail   *string    `json:"contactEmail,omitempty"`
	ContactPhone   *string    `json:"contactPhone,omitempty"`
	Stage          string     `json:"stage"`
	AmountCents    *int64     `json:"amountCents,omitempty"`

	Schedule ScheduleResponse `json:"schedule"`

	InsightsStatus         string                        `json:"insightsStatus"`
	ConsolidatedInsights   *ConsolidatedInsightsResponse `json:"consolidatedInsights,omitempty"`
	LastConsolidatedAt     *time.Time                    `json:"lastConsolidatedAt,omitempty"`
	ConsolidationCallCount int                           `json:"consolidationCallCount"`

	ResearchMarkdown    *string    `json:"researchMarkdown,omitempty"`
	ResearchGeneratedAt *time.Time `json:"researchGeneratedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type OpportunityListResponse struct {
	Items  []OpportunityResponse `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type MeetingResponse struct {
	ID            uuid.UUID        `json:"id"`
	OpportunityID uuid.UUID        `json:"opportunityId"`
	Kind          string           `json:"kind"`
	Source        string           `json:"source"`
	Title         *string          `json:"title,omitempty"`
	OccurredAt    time.Time        `json:"occurredAt"`
	ParseStatus   string           `json:"parseStatus"`
	ParseError    *string          `json:"parseError,omitempty"`
	Summary       *string          `json:"summary,omitempty"`
	PainPoints    []string         `json:"painPoints,omitempty"`
	Goals         []string         `json:"goals,omitempty"`
	NextSteps     []string         `json:"nextSteps,omitempty"`
	Metrics       []string         `json:"metrics,omitempty"`
	People        []PersonResponse `json:"people,omitempty"`
	Risk          *RiskResponse    `json:"risk,omitempty"`
	ParsedAt      *time.Time       `json:"parsedAt,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// MeetingDetailResponse additionally carries the raw transcript, which list
// views leave out to keep payloads small.
type MeetingDetailResponse struct {
	MeetingResponse
	TranscriptText string `json:"transcriptText"`
}

type ConsolidationOutcomeResponse struct {
	Applied      bool   `json:"applied"`
	Reason       string `json:"reason,omitempty"`
	MeetingsUsed int    `json:"meetingsUsed"`
}

type TimelineEventResponse struct {
	ID        uuid.UUID      `json:"id"`
	MeetingID *uuid.UUID     `json:"meetingId,omitempty"`
	ActorType string         `json:"actorType"`
	ActorName string         `json:"actorName"`
	EventType string         `json:"eventType"`
	Title     string         `json:"title"`
	Summary   *string        `json:"summary,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ── Mapping ───────────────────────────────────────────────────────────────────

func ToOpportunityResponse(view management.View) OpportunityResponse {
	resp := OpportunityResponse{
		ID:             view.ID,
		OrganizationID: view.OrganizationID,
		OwnerID:        view.OwnerID,
		AccountName:    view.AccountName,
		ContactName:    view.ContactName,
		ContactEmail:   view.ContactEmail,
		ContactPhone:   view.ContactPhone,
		Stage:          view.Stage,
		AmountCents:    view.AmountCents,
		Schedule: ScheduleResponse{
			LastCallDate:           view.LastCallDate,
			LastCallSource:         view.LastCallSource,
			NextCallDate:           view.NextCallDate,
			NextCallSource:         view.NextCallSource,
			NextCallManuallySet:    view.NextCallManuallySet,
			CheckpointDate:         view.CheckpointDate,
			NeedsNextCallScheduled: view.NeedsNextCallScheduled,
			CalculatedAt:           view.ScheduleCalculatedAt,
		},
		InsightsStatus:         string(view.InsightsStatus),
		LastConsolidatedAt:     view.LastConsolidatedAt,
		ConsolidationCallCount: view.ConsolidationCallCount,
		ResearchMarkdown:       view.ResearchMarkdown,
		ResearchGeneratedAt:    view.ResearchGeneratedAt,
		CreatedAt:              view.CreatedAt,
		UpdatedAt:              view.UpdatedAt,
	}
	if view.ConsolidatedInsights != nil {
		ci := toConsolidatedInsights(*view.ConsolidatedInsights)
		resp.ConsolidatedInsights = &ci
	}
	return resp
}

func ToOpportunityListResponse(views []management.View, total, limit, offset int) OpportunityListResponse {
	items := make([]OpportunityResponse, len(views))
	for i, v := range views {
		items[i] = ToOpportunityResponse(v)
	}
	return OpportunityListResponse{Items: items, Total: total, Limit: limit, Offset: offset}
}

func toConsolidatedInsights(ci domain.ConsolidatedInsights) ConsolidatedInsightsResponse {
	resp := ConsolidatedInsightsResponse{
		PainPoints: ci.PainPoints,
		Goals:      ci.Goals,
		NextSteps:  ci.NextSteps,
		Metrics:    ci.Metrics,
	}
	if ci.Risk != nil {
		resp.Risk = toRiskResponse(ci.Risk)
	}
	return resp
}

func toRiskResponse(r *domain.RiskAssessment) *RiskResponse {
	if r == nil {
		return nil
	}
	return &RiskResponse{
		Level:   string(r.Level),
		Factors: r.Factors,
		Summary: r.Summary,
	}
}

func ToMeetingResponse(m repository.MeetingRecord) MeetingResponse {
	people := make([]PersonResponse, len(m.People))
	for i, p := range m.People {
		people[i] = PersonResponse{
			Name:    p.Name,
			Role:    p.Role,
			Company: p.Company,
			Phone:   p.Phone,
			Email:   p.Email,
		}
	}

	return MeetingResponse{
		ID:            m.ID,
		OpportunityID: m.OpportunityID,
		Kind:          m.Kind,
		Source:        m.Source,
		Title:         m.Title,
		OccurredAt:    m.OccurredAt,
		ParseStatus:   m.ParseStatus,
		ParseError:    m.ParseError,
		Summary:       m.Summary,
		PainPoints:    m.PainPoints,
		Goals:         m.Goals,
		NextSteps:     m.NextSteps,
		Metrics:       m.Metrics,
		People:        people,
		Risk:          toRiskResponse(m.Risk),
		ParsedAt:      m.ParsedAt,
		CreatedAt:     m.CreatedAt,
	}
}

func ToMeetingDetailResponse(m repository.MeetingRecord) MeetingDetailResponse {
	return MeetingDetailResponse{
		MeetingResponse: ToMeetingResponse(m),
		TranscriptText:  m.TranscriptText,
	}
}

func ToMeetingListResponse(meetings []repository.MeetingRecord) []MeetingResponse {
	items := make([]MeetingResponse, len(meetings))
	for i, m := range meetings {
		items[i] = ToMeetingResponse(m)
	}
	return items
}

func ToTimelineResponse(events []repository.TimelineEvent) []TimelineEventResponse {
	items := make([]TimelineEventResponse, len(events))
	for i, e := range events {
		items[i] = TimelineEventResponse{
			ID:        e.ID,
			MeetingID: e.MeetingID,
			ActorType: e.ActorType,
			ActorName: e.ActorName,
			EventType: e.EventType,
			Title:     e.Title,
			Summary:   e.Summary,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		}
	}
	return items
}
