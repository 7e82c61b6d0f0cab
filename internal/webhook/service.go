package webhook

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	calrepo "dealdesk_backend/internal/calendar/repository"
	calservice "dealdesk_backend/internal/calendar/service"
	"dealdesk_backend/internal/events"
	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/internal/opportunities/meetings"
	opprepo "dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/internal/transcription"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"
)

// CalendarSink upserts provider calendar events. Satisfied by the calendar
// service.
type CalendarSink interface {
	UpsertFromProvider(ctx context.Context, params calservice.UpsertParams) (*calrepo.Event, error)
}

// TranscriptIngestor creates meeting records from submitted transcript text.
// Satisfied by the meetings service.
type TranscriptIngestor interface {
	IngestTranscript(ctx context.Context, params meetings.IngestParams) (opprepo.MeetingRecord, error)
}

// RecordingIntake stores uploaded audio and queues transcription. Satisfied
// by the transcription service. Nil when no transcription engine is deployed.
type RecordingIntake interface {
	Submit(ctx context.Context, params transcription.SubmitParams) (transcription.Recording, error)
}

// CalendarPushEvent is one event in a provider push batch. The bridge that
// pushes the batch has already resolved which opportunity each event belongs
// to.
type CalendarPushEvent struct {
	ProviderEventID string     `json:"providerEventId" validate:"required,max=200"`
	OpportunityID   uuid.UUID  `json:"opportunityId" validate:"required"`
	Title           string     `json:"title" validate:"max=300"`
	Status          string     `json:"status" validate:"omitempty,oneof=confirmed cancelled"`
	StartsAt        time.Time  `json:"startsAt" validate:"required"`
	EndsAt          *time.Time `json:"endsAt"`
	Location        *string    `json:"location"`
	MeetingLink     *string    `json:"meetingLink"`
}

// CalendarPushRequest is an inbound batch of provider calendar events.
type CalendarPushRequest struct {
	Provider string              `json:"provider" validate:"required,max=50"`
	Events   []CalendarPushEvent `json:"events" validate:"required,min=1,max=500,dive"`
}

// CalendarPushError reports one rejected event from a push batch.
type CalendarPushError struct {
	ProviderEventID string `json:"providerEventId"`
	Error           string `json:"error"`
}

// CalendarPushResult summarizes a processed push batch.
type CalendarPushResult struct {
	Synced int                 `json:"synced"`
	Failed int                 `json:"failed"`
	Errors []CalendarPushError `json:"errors,omitempty"`
}

// TranscriptSubmission is transcript text pushed by a call provider.
type TranscriptSubmission struct {
	OpportunityID  uuid.UUID
	Title          *string
	OccurredAt     *time.Time
	TranscriptText string
}

// RecordingSubmission is an audio upload pushed by a call provider.
type RecordingSubmission struct {
	OpportunityID uuid.UUID
	FileName      string
	ContentType   string
	SizeBytes     int64
	Audio         io.Reader
	Title         *string
	OccurredAt    *time.Time
}

// Service processes inbound provider pushes.
type Service struct {
	calendar   CalendarSink
	ingestor   TranscriptIngestor
	recordings RecordingIntake
	bus        events.Bus
	log        *logger.Logger
}

// NewService creates a new webhook service. recordings may be nil when the
// deployment has no transcription engine; audio submissions are then refused.
func NewService(calendar CalendarSink, ingestor TranscriptIngestor, recordings RecordingIntake, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		calendar:   calendar,
		ingestor:   ingestor,
		recordings: recordings,
		bus:        bus,
		log:        log,
	}
}

// ProcessCalendarPush upserts each event in the batch. Events are processed
// independently; a rejected event is reported in the result and does not fail
// the batch, so the bridge never has to replay events that already landed.
func (s *Service) ProcessCalendarPush(ctx context.Context, orgID uuid.UUID, req CalendarPushRequest) (CalendarPushResult, error) {
	var result CalendarPushResult
	seen := make(map[uuid.UUID]bool)
	var opportunityIDs []uuid.UUID

	for _, pe := range req.Events {
		_, err := s.calendar.UpsertFromProvider(ctx, calservice.UpsertParams{
			OrganizationID:  orgID,
			OpportunityID:   pe.OpportunityID,
			Provider:        req.Provider,
			ProviderEventID: pe.ProviderEventID,
			Title:           pe.Title,
			Status:          pe.Status,
			StartsAt:        pe.StartsAt,
			EndsAt:          pe.EndsAt,
			Location:        pe.Location,
			MeetingLink:     pe.MeetingLink,
		})
		if err != nil {
			s.log.Warn("calendar push event rejected",
				"organizationId", orgID,
				"providerEventId", pe.ProviderEventID,
				"error", err,
			)
			result.Failed++
			result.Errors = append(result.Errors, CalendarPushError{
				ProviderEventID: pe.ProviderEventID,
				Error:           err.Error(),
			})
			continue
		}

		result.Synced++
		if !seen[pe.OpportunityID] {
			seen[pe.OpportunityID] = true
			opportunityIDs = append(opportunityIDs, pe.OpportunityID)
		}
	}

	if result.Synced > 0 && s.bus != nil {
		s.bus.Publish(ctx, events.CalendarEventsSynced{
			BaseEvent:      events.NewBaseEvent(),
			OrganizationID: orgID,
			Provider:       req.Provider,
			OpportunityIDs: opportunityIDs,
			EventCount:     result.Synced,
			SyncedAt:       time.Now().UTC(),
		})
	}

	s.log.Info("calendar push processed",
		"organizationId", orgID,
		"provider", req.Provider,
		"synced", result.Synced,
		"failed", result.Failed,
	)
	return result, nil
}

// ProcessTranscriptSubmission stores pushed transcript text as a call
// meeting. Parsing runs asynchronously behind the regular pipeline.
func (s *Service) ProcessTranscriptSubmission(ctx context.Context, orgID uuid.UUID, sub TranscriptSubmission) (opprepo.MeetingRecord, error) {
	rec, err := s.ingestor.IngestTranscript(ctx, meetings.IngestParams{
		OpportunityID:  sub.OpportunityID,
		OrganizationID: orgID,
		Kind:           string(domain.MeetingKindCallTranscript),
		Source:         domain.MeetingSourceWebhook,
		Title:          sub.Title,
		OccurredAt:     sub.OccurredAt,
		TranscriptText: sub.TranscriptText,
	})
	if err != nil {
		return opprepo.MeetingRecord{}, err
	}

	s.log.Info("transcript accepted via webhook",
		"organizationId", orgID,
		"opportunityId", sub.OpportunityID,
		"meetingId", rec.ID,
	)
	return rec, nil
}

// ProcessRecordingSubmission stores pushed audio and queues transcription.
func (s *Service) ProcessRecordingSubmission(ctx context.Context, orgID uuid.UUID, sub RecordingSubmission) (transcription.Recording, error) {
	if s.recordings == nil {
		return transcription.Recording{}, apperr.Unavailable("recording transcription is not enabled")
	}

	rec, err := s.recordings.Submit(ctx, transcription.SubmitParams{
		OrganizationID: orgID,
		OpportunityID:  sub.OpportunityID,
		FileName:       sub.FileName,
		ContentType:    sub.ContentType,
		SizeBytes:      sub.SizeBytes,
		Audio:          sub.Audio,
		Title:          sub.Title,
		OccurredAt:     sub.OccurredAt,
	})
	if err != nil {
		return transcription.Recording{}, err
	}

	s.log.Info("recording accepted via webhook",
		"organizationId", orgID,
		"opportunityId", sub.OpportunityID,
		"recordingId", rec.ID,
	)
	return rec, nil
}
