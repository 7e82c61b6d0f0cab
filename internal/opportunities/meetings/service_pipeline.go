package meetings

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"dealdesk_backend/internal/events"
	"dealdesk_backend/internal/opportunities/agent"
	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/internal/scheduler"
)

// ProcessTranscriptParse handles one delivery of a parse task. The claim
// makes redeliveries of already-processed tasks no-ops, and the parse result
// is persisted all-or-nothing: either the record completes with every
// extracted field set, or it keeps none of them.
func (s *Service) ProcessTranscriptParse(ctx context.Context, meetingID uuid.UUID, transcriptText string, organizationName *string, finalAttempt bool) error {
	claimed, err := s.repo.ClaimMeetingForParsing(ctx, meetingID)
	if err != nil {
		return err
	}

	if claimed == nil {
		current, currentErr := s.repo.GetMeetingByID(ctx, meetingID)
		if currentErr != nil {
			if currentErr == repository.ErrMeetingNotFound {
				// Deleted while the task sat in the queue.
				return nil
			}
			return currentErr
		}
		switch current.ParseStatus {
		case string(domain.ParseStatusParsing), string(domain.ParseStatusCompleted), string(domain.ParseStatusFailed):
			s.log.Info("skipping redelivered parse task", "meetingId", meetingID, "parseStatus", current.ParseStatus)
			return nil
		default:
			return fmt.Errorf("meeting %s cannot be claimed from status %s", meetingID, current.ParseStatus)
		}
	}

	if s.parser == nil {
		// No retry can fix a missing parser, fail the record immediately.
		s.failParse(ctx, claimed, "transcript parser is not configured")
		return nil
	}

	transcript := transcriptText
	if strings.TrimSpace(transcript) == "" {
		transcript = claimed.TranscriptText
	}
	if organizationName == nil {
		organizationName = s.resolveOrganizationName(ctx, claimed.OrganizationID)
	}

	insights, err := s.parser.ParseTranscript(ctx, meetingID, organizationName, claimed.Kind, claimed.OccurredAt, transcript)
	if err == nil {
		err = s.repo.CompleteMeetingParse(ctx, meetingID, repository.CompleteParseParams{
			Summary:    insights.Summary,
			PainPoints: insights.PainPoints,
			Goals:      insights.Goals,
			NextSteps:  insights.NextSteps,
			Metrics:    insights.Metrics,
			People:     insights.People,
			ParsedAt:   insights.ParsedAt,
		})
	}
	if err != nil {
		if !finalAttempt {
			if releaseErr := s.repo.ReleaseMeetingClaim(ctx, meetingID); releaseErr != nil {
				return fmt.Errorf("parse transcript: %w (release claim failed: %v)", err, releaseErr)
			}
			return err
		}
		s.failParse(ctx, claimed, err.Error())
		return err
	}

	s.afterParseCompleted(ctx, claimed, insights.Summary)
	return nil
}

// afterParseCompleted runs the post-parse hooks. Each hook has its own error
// boundary: a failing hook is logged and never rolls back the completed parse.
func (s *Service) afterParseCompleted(ctx context.Context, rec *repository.MeetingRecord, summary string) {
	settings := s.orgAISettings(ctx, rec.OrganizationID)

	if settings.RiskAnalysisEnabled {
		if err := s.queue.EnqueueRiskAnalyze(ctx, scheduler.RiskAnalyzePayload{
			MeetingID:      rec.ID.String(),
			OpportunityID:  rec.OpportunityID.String(),
			OrganizationID: rec.OrganizationID.String(),
		}); err != nil {
			s.log.Warn("failed to enqueue risk analysis", "meetingId", rec.ID, "error", err)
		}
	}

	completedCount := 0
	state, err := s.repo.GetConsolidationState(ctx, rec.OpportunityID)
	if err != nil {
		s.log.Warn("failed to load consolidation state", "opportunityId", rec.OpportunityID, "error", err)
	} else {
		completedCount = len(state.CompletedParsedAt)
		if completedCount >= domain.ConsolidationThreshold {
			if err := s.queue.EnqueueInsightsConsolidate(ctx, scheduler.InsightsConsolidatePayload{
				OpportunityID:  rec.OpportunityID.String(),
				OrganizationID: rec.OrganizationID.String(),
			}); err != nil {
				s.log.Warn("failed to enqueue insights consolidation", "opportunityId", rec.OpportunityID, "error", err)
			}
		}
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.TranscriptParsed{
			BaseEvent:             events.NewBaseEvent(),
			MeetingID:             rec.ID,
			OpportunityID:         rec.OpportunityID,
			OrganizationID:        rec.OrganizationID,
			CompletedMeetingCount: completedCount,
		})
	}

	_, _ = s.repo.CreateTimelineEvent(ctx, repository.CreateTimelineEventParams{
		OpportunityID:  rec.OpportunityID,
		MeetingID:      &rec.ID,
		OrganizationID: rec.OrganizationID,
		ActorType:      "AI",
		ActorName:      "Transcript Parser",
		EventType:      "transcript_parsed",
		Title:          "Meeting insights extracted",
		Summary:        repository.TruncateSummary(summary, repository.TimelineSummaryMaxLen),
		Metadata:       map[string]any{"kind": rec.Kind},
	})
}

// failParse marks the record failed with the retained error message and emits
// the failure signals. Storage errors here are logged, not propagated; the
// caller already carries the original parse error.
func (s *Service) failParse(ctx context.Context, rec *repository.MeetingRecord, message string) {
	if err := s.repo.FailMeetingParse(ctx, rec.ID, message); err != nil {
		s.log.Error("failed to mark meeting parse as failed", "meetingId", rec.ID, "error", err)
		return
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.TranscriptParseFailed{
			BaseEvent:      events.NewBaseEvent(),
			MeetingID:      rec.ID,
			OpportunityID:  rec.OpportunityID,
			OrganizationID: rec.OrganizationID,
			ErrorMessage:   message,
		})
	}

	_, _ = s.repo.CreateTimelineEvent(ctx, repository.CreateTimelineEventParams{
		OpportunityID:  rec.OpportunityID,
		MeetingID:      &rec.ID,
		OrganizationID: rec.OrganizationID,
		ActorType:      "AI",
		ActorName:      "Transcript Parser",
		EventType:      "transcript_parse_failed",
		Title:          "Transcript parse failed",
		Summary:        repository.TruncateSummary(message, repository.TimelineSummaryMaxLen),
	})
}

// ProcessRiskAnalysis attaches a risk assessment to a parsed meeting. It runs
// after the parse pipeline and never touches the parse status: a failed
// analysis leaves the meeting completed without a risk object.
func (s *Service) ProcessRiskAnalysis(ctx context.Context, meetingID uuid.UUID, finalAttempt bool) error {
	rec, err := s.repo.GetMeetingByID(ctx, meetingID)
	if err != nil {
		if err == repository.ErrMeetingNotFound {
			return nil
		}
		return err
	}

	if rec.ParseStatus != string(domain.ParseStatusCompleted) {
		s.log.Info("skipping risk analysis for non-completed meeting", "meetingId", meetingID, "parseStatus", rec.ParseStatus)
		return nil
	}
	if rec.Risk != nil {
		// Redelivered task, assessment already stored.
		return nil
	}

	if s.risk == nil {
		s.log.Warn("risk analyzer is not configured, skipping", "meetingId", meetingID)
		return nil
	}
	if settings := s.orgAISettings(ctx, rec.OrganizationID); !settings.RiskAnalysisEnabled {
		s.log.Info("risk analysis disabled for organization", "organizationId", rec.OrganizationID)
		return nil
	}

	summary := ""
	if rec.Summary != nil {
		summary = *rec.Summary
	}

	assessment, err := s.risk.AnalyzeRisk(ctx, meetingID, agent.RiskAnalysisInput{
		Summary:    summary,
		PainPoints: rec.PainPoints,
		Goals:      rec.Goals,
		NextSteps:  rec.NextSteps,
		Metrics:    rec.Metrics,
		OccurredAt: rec.OccurredAt,
	})
	if err != nil {
		if finalAttempt {
			s.log.TaskError("risk_analysis", meetingID.String(), err)
		}
		return err
	}

	if err := s.repo.UpdateMeetingRisk(ctx, meetingID, assessment); err != nil {
		return err
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.MeetingRiskAssessed{
			BaseEvent:      events.NewBaseEvent(),
			MeetingID:      rec.ID,
			OpportunityID:  rec.OpportunityID,
			OrganizationID: rec.OrganizationID,
			RiskLevel:      string(assessment.Level),
		})
	}

	_, _ = s.repo.CreateTimelineEvent(ctx, repository.CreateTimelineEventParams{
		OpportunityID:  rec.OpportunityID,
		MeetingID:      &rec.ID,
		OrganizationID: rec.OrganizationID,
		ActorType:      "AI",
		ActorName:      "Risk Analyzer",
		EventType:      "risk_assessed",
		Title:          fmt.Sprintf("Meeting risk assessed as %s", assessment.Level),
		Summary:        repository.TruncateSummary(assessment.Summary, repository.TimelineSummaryMaxLen),
		Metadata:       map[string]any{"riskLevel": string(assessment.Level), "factorCount": len(assessment.Factors)},
	})

	return nil
}
