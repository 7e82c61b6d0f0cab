// Package meetings implements the meeting record lifecycle: ingestion of raw
// transcripts and notes, the async parse pipeline, and the per-meeting risk
// analysis that runs behind it.
package meetings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/events"
	"dealdesk_backend/internal/opportunities/agent"
	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/internal/opportunities/ports"
	"dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"
	"dealdesk_backend/platform/sanitize"
)

// Store is the slice of the opportunities repository this service uses.
type Store interface {
	CreateMeeting(ctx context.Context, params repository.CreateMeetingParams) (repository.MeetingRecord, error)
	GetMeeting(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (repository.MeetingRecord, error)
	GetMeetingByID(ctx context.Context, id uuid.UUID) (repository.MeetingRecord, error)
	ListMeetingsByOpportunity(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]repository.MeetingRecord, error)
	ClaimMeetingForParsing(ctx context.Context, id uuid.UUID) (*repository.MeetingRecord, error)
	CompleteMeetingParse(ctx context.Context, id uuid.UUID, params repository.CompleteParseParams) error
	FailMeetingParse(ctx context.Context, id uuid.UUID, message string) error
	ReleaseMeetingClaim(ctx context.Context, id uuid.UUID) error
	RetryMeetingParse(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (*repository.MeetingRecord, error)
	UpdateMeetingRisk(ctx context.Context, id uuid.UUID, risk *domain.RiskAssessment) error
	DeleteMeeting(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (repository.Opportunity, error)
	GetConsolidationState(ctx context.Context, opportunityID uuid.UUID) (repository.ConsolidationState, error)
	CreateTimelineEvent(ctx context.Context, params repository.CreateTimelineEventParams) (repository.TimelineEvent, error)
}

// TranscriptParser extracts structured insights from one raw meeting record.
// Implemented by the agent package.
type TranscriptParser interface {
	ParseTranscript(ctx context.Context, meetingID uuid.UUID, organizationName *string, kind string, occurredAt time.Time, transcript string) (*domain.ParsedInsights, error)
}

// RiskAnalyzer scores one parsed meeting. Implemented by the agent package.
type RiskAnalyzer interface {
	AnalyzeRisk(ctx context.Context, meetingID uuid.UUID, input agent.RiskAnalysisInput) (*domain.RiskAssessment, error)
}

// Service provides business logic for meeting records.
type Service struct {
	repo       Store
	queue      scheduler.PipelineEnqueuer
	parser     TranscriptParser
	risk       RiskAnalyzer
	orgs       ports.OrganizationReader
	aiSettings ports.OrganizationAISettingsReader
	bus        events.Bus
	log        *logger.Logger
}

// New creates a new meetings service. The AI collaborators are injected via
// the Set* methods after construction.
func New(repo Store, queue scheduler.PipelineEnqueuer, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		queue: queue,
		bus:   bus,
		log:   log,
	}
}

func (s *Service) SetTranscriptParser(p TranscriptParser) { s.parser = p }

func (s *Service) SetRiskAnalyzer(r RiskAnalyzer) { s.risk = r }

func (s *Service) SetOrganizationReader(r ports.OrganizationReader) { s.orgs = r }

func (s *Service) SetAISettingsReader(r ports.OrganizationAISettingsReader) { s.aiSettings = r }

// IngestParams carries one raw meeting record into the pipeline.
type IngestParams struct {
	OpportunityID  uuid.UUID
	OrganizationID uuid.UUID
	Kind           string
	Source         string
	Title          *string
	OccurredAt     *time.Time
	TranscriptText string
}

// IngestTranscript validates and stores a raw meeting record, then enqueues
// the parse task and a schedule recalculation. The record is returned in
// pending state; parsing happens asynchronously.
func (s *Service) IngestTranscript(ctx context.Context, params IngestParams) (repository.MeetingRecord, error) {
	if params.OpportunityID == uuid.Nil || params.OrganizationID == uuid.Nil {
		return repository.MeetingRecord{}, apperr.Validation("opportunityId and organizationId are required")
	}
	if !domain.IsKnownMeetingKind(params.Kind) {
		return repository.MeetingRecord{}, apperr.Validation(fmt.Sprintf("unknown meeting kind %q", params.Kind))
	}

	transcript := strings.TrimSpace(params.TranscriptText)
	if len(transcript) < domain.MinTranscriptLength {
		return repository.MeetingRecord{}, apperr.Validation(fmt.Sprintf("transcript must be at least %d characters", domain.MinTranscriptLength))
	}

	opp, err := s.repo.GetByID(ctx, params.OpportunityID, params.OrganizationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return repository.MeetingRecord{}, apperr.NotFound("opportunity not found")
		}
		return repository.MeetingRecord{}, err
	}

	source := params.Source
	if source == "" {
		source = domain.MeetingSourceManual
	}
	occurredAt := time.Now().UTC()
	if params.OccurredAt != nil {
		occurredAt = params.OccurredAt.UTC()
	}

	// Titles arrive from webhooks, mail subjects and CSV imports.
	rec, err := s.repo.CreateMeeting(ctx, repository.CreateMeetingParams{
		OpportunityID:  params.OpportunityID,
		OrganizationID: params.OrganizationID,
		Kind:           params.Kind,
		Source:         source,
		Title:          sanitize.TextPtr(params.Title),
		OccurredAt:     occurredAt,
		TranscriptText: transcript,
	})
	if err != nil {
		return repository.MeetingRecord{}, err
	}

	if err := s.queue.EnqueueTranscriptParse(ctx, scheduler.TranscriptParsePayload{
		MeetingID:        rec.ID.String(),
		OpportunityID:    rec.OpportunityID.String(),
		OrganizationID:   rec.OrganizationID.String(),
		TranscriptText:   transcript,
		OrganizationName: s.resolveOrganizationName(ctx, rec.OrganizationID),
	}); err != nil {
		// Walk the record to failed through the claim so the state machine
		// holds and the manual retry path stays available.
		if _, claimErr := s.repo.ClaimMeetingForParsing(ctx, rec.ID); claimErr == nil {
			if failErr := s.repo.FailMeetingParse(ctx, rec.ID, "parse task could not be enqueued: "+err.Error()); failErr != nil {
				s.log.Error("failed to mark unqueued meeting as failed", "meetingId", rec.ID, "error", failErr)
			}
		}
		return repository.MeetingRecord{}, fmt.Errorf("enqueue transcript parse: %w", err)
	}

	if err := s.queue.EnqueueScheduleRecalculate(ctx, scheduler.ScheduleRecalculatePayload{
		OpportunityID:  rec.OpportunityID.String(),
		OrganizationID: rec.OrganizationID.String(),
	}); err != nil {
		s.log.Warn("failed to enqueue schedule recalculation after ingest", "opportunityId", rec.OpportunityID, "error", err)
	}

	summary := repository.TruncateSummary(fmt.Sprintf("%s record for %s queued for parsing", params.Kind, opp.AccountName), repository.TimelineSummaryMaxLen)
	_, _ = s.repo.CreateTimelineEvent(ctx, repository.CreateTimelineEventParams{
		OpportunityID:  rec.OpportunityID,
		MeetingID:      &rec.ID,
		OrganizationID: rec.OrganizationID,
		ActorType:      "System",
		ActorName:      "Meeting Intake",
		EventType:      "meeting_ingested",
		Title:          "Meeting record ingested",
		Summary:        summary,
		Metadata: map[string]any{
			"kind":       rec.Kind,
			"source":     rec.Source,
			"occurredAt": rec.OccurredAt,
		},
	})

	if s.bus != nil {
		s.bus.Publish(ctx, events.MeetingIngested{
			BaseEvent:      events.NewBaseEvent(),
			MeetingID:      rec.ID,
			OpportunityID:  rec.OpportunityID,
			OrganizationID: rec.OrganizationID,
			Kind:           rec.Kind,
			Source:         rec.Source,
		})
	}

	return rec, nil
}

// ListMeetings returns the meeting records of one opportunity, newest first.
func (s *Service) ListMeetings(ctx context.Context, opportunityID, organizationID uuid.UUID) ([]repository.MeetingRecord, error) {
	if opportunityID == uuid.Nil || organizationID == uuid.Nil {
		return nil, apperr.Validation("opportunityId and organizationId are required")
	}
	return s.repo.ListMeetingsByOpportunity(ctx, opportunityID, organizationID)
}

// GetMeeting returns one meeting record.
func (s *Service) GetMeeting(ctx context.Context, meetingID, organizationID uuid.UUID) (repository.MeetingRecord, error) {
	rec, err := s.repo.GetMeeting(ctx, meetingID, organizationID)
	if err != nil {
		if err == repository.ErrMeetingNotFound {
			return repository.MeetingRecord{}, apperr.NotFound("meeting not found")
		}
		return repository.MeetingRecord{}, err
	}
	return rec, nil
}

// RetryParse resets a failed meeting record to pending and re-enqueues the
// parse task with a fresh delivery budget. Only failed records can be retried.
func (s *Service) RetryParse(ctx context.Context, meetingID, organizationID, requestedBy uuid.UUID) (repository.MeetingRecord, error) {
	rec, err := s.repo.RetryMeetingParse(ctx, meetingID, organizationID)
	if err != nil {
		return repository.MeetingRecord{}, err
	}
	if rec == nil {
		current, getErr := s.repo.GetMeeting(ctx, meetingID, organizationID)
		if getErr != nil {
			if getErr == repository.ErrMeetingNotFound {
				return repository.MeetingRecord{}, apperr.NotFound("meeting not found")
			}
			return repository.MeetingRecord{}, getErr
		}
		return repository.MeetingRecord{}, apperr.Conflict(fmt.Sprintf("parse can only be retried from failed status, current status is %s", current.ParseStatus))
	}

	if err := s.queue.EnqueueTranscriptParse(ctx, scheduler.TranscriptParsePayload{
		MeetingID:        rec.ID.String(),
		OpportunityID:    rec.OpportunityID.String(),
		OrganizationID:   rec.OrganizationID.String(),
		TranscriptText:   rec.TranscriptText,
		OrganizationName: s.resolveOrganizationName(ctx, rec.OrganizationID),
	}); err != nil {
		if _, claimErr := s.repo.ClaimMeetingForParsing(ctx, rec.ID); claimErr == nil {
			if failErr := s.repo.FailMeetingParse(ctx, rec.ID, "parse task could not be enqueued: "+err.Error()); failErr != nil {
				s.log.Error("failed to mark unqueued meeting as failed", "meetingId", rec.ID, "error", failErr)
			}
		}
		return repository.MeetingRecord{}, fmt.Errorf("enqueue transcript parse: %w", err)
	}

	_, _ = s.repo.CreateTimelineEvent(ctx, repository.CreateTimelineEventParams{
		OpportunityID:  rec.OpportunityID,
		MeetingID:      &rec.ID,
		OrganizationID: rec.OrganizationID,
		ActorType:      "User",
		ActorName:      requestedBy.String(),
		EventType:      "parse_retried",
		Title:          "Transcript parse retried",
		Metadata:       map[string]any{"meetingId": rec.ID},
	})

	return *rec, nil
}

// DeleteMeeting removes a meeting record and recalculates the opportunity
// schedule, since the record's date no longer counts as a signal.
func (s *Service) DeleteMeeting(ctx context.Context, meetingID, organizationID uuid.UUID) error {
	rec, err := s.repo.GetMeeting(ctx, meetingID, organizationID)
	if err != nil {
		if err == repository.ErrMeetingNotFound {
			return apperr.NotFound("meeting not found")
		}
		return err
	}

	if err := s.repo.DeleteMeeting(ctx, meetingID, organizationID); err != nil {
		return err
	}

	if err := s.queue.EnqueueScheduleRecalculate(ctx, scheduler.ScheduleRecalculatePayload{
		OpportunityID:  rec.OpportunityID.String(),
		OrganizationID: rec.OrganizationID.String(),
	}); err != nil {
		s.log.Warn("failed to enqueue schedule recalculation after meeting delete", "opportunityId", rec.OpportunityID, "error", err)
	}

	return nil
}

// resolveOrganizationName is best-effort context for the parser prompt.
func (s *Service) resolveOrganizationName(ctx context.Context, organizationID uuid.UUID) *string {
	if s.orgs == nil {
		return nil
	}
	name, err := s.orgs.GetOrganizationName(ctx, organizationID)
	if err != nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return &name
}

// orgAISettings loads the tenant AI toggles, failing safe to "everything off"
// when the reader errors so autonomous actions are skipped rather than forced.
func (s *Service) orgAISettings(ctx context.Context, organizationID uuid.UUID) ports.OrganizationAISettings {
	if s.aiSettings == nil {
		return ports.DefaultOrganizationAISettings()
	}
	settings, err := s.aiSettings(ctx, organizationID)
	if err != nil {
		s.log.Warn("failed to load organization AI settings", "organizationId", organizationID, "error", err)
		return ports.OrganizationAISettings{}
	}
	return settings
}
