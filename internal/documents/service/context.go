package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dealdesk_backend/internal/documents/repository"
)

const (
	// ContextCharBudget caps the context document handed to the writer agent.
	// Everything past the budget is cut, never silently dropped mid-assembly.
	ContextCharBudget = 24000

	// TruncationMarker is appended whenever the assembled context hit the
	// budget, so the writer and anyone inspecting the run can see material
	// was omitted.
	TruncationMarker = "\n\n[CONTEXT TRUNCATED: additional material omitted to stay within the context size limit]"
)

// OpportunitySummary is the header slice of an opportunity the writer needs.
type OpportunitySummary struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	AccountName    string
	ContactName    *string
	Stage          string
	AmountCents    *int64
	LastCallDate   *time.Time
	NextCallDate   *time.Time
}

// MeetingContext is one parsed meeting as document source material. Only
// completed meetings carry summaries and insight lists.
type MeetingContext struct {
	ID         uuid.UUID
	Kind       string
	Title      *string
	OccurredAt time.Time
	Summary    *string
	PainPoints []string
	Goals      []string
	NextSteps  []string
	Metrics    []string
	RiskLevel  *string
}

// InsightsContext is the consolidated cross-meeting view of an opportunity.
type InsightsContext struct {
	PainPoints     []string
	Goals          []string
	NextSteps      []string
	Metrics        []string
	RiskLevel      *string
	RiskSummary    *string
	ConsolidatedAt time.Time
}

// ResearchContext is a stored account research brief.
type ResearchContext struct {
	Markdown    string
	GeneratedAt time.Time
}

// ContextSource supplies the opportunity material documents are written from.
// Implementations return apperr.NotFound when the opportunity does not exist;
// Meetings returns only records that belong to the given opportunity, and
// ConsolidatedInsights and ResearchBrief return nil when nothing is stored.
type ContextSource interface {
	OpportunitySummary(ctx context.Context, opportunityID uuid.UUID) (OpportunitySummary, error)
	Meetings(ctx context.Context, opportunityID uuid.UUID, meetingIDs []uuid.UUID) ([]MeetingContext, error)
	ConsolidatedInsights(ctx context.Context, opportunityID uuid.UUID) (*InsightsContext, error)
	ResearchBrief(ctx context.Context, opportunityID uuid.UUID) (*ResearchContext, error)
}

// TemplateContext is the slice of a brief template that shapes the document.
type TemplateContext struct {
	ID       uuid.UUID
	Name     string
	Tone     string
	Sections []string
}

// TemplateSource resolves brief templates. Template is tenant-scoped for the
// create path; TemplateInternal serves the background generation run, which
// trusts the template id frozen in the context snapshot.
type TemplateSource interface {
	Template(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (TemplateContext, error)
	TemplateInternal(ctx context.Context, id uuid.UUID) (TemplateContext, error)
}

// ContextBundle is the gathered, unrendered source material of one run.
type ContextBundle struct {
	Opportunity       OpportunitySummary
	Meetings          []MeetingContext
	Insights          *InsightsContext
	Research          *ResearchContext
	AdditionalContext string
}

// gatherContext fetches the selected material in parallel. Each selection
// flag spawns its own fetch; a failing fetch cancels the rest.
func (s *Service) gatherContext(ctx context.Context, opportunityID uuid.UUID, snapshot repository.ContextSnapshot) (ContextBundle, error) {
	var bundle ContextBundle
	if snapshot.AdditionalContext != nil {
		bundle.AdditionalContext = strings.TrimSpace(*snapshot.AdditionalContext)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		opp, err := s.source.OpportunitySummary(gctx, opportunityID)
		if err != nil {
			return err
		}
		bundle.Opportunity = opp
		return nil
	})

	if len(snapshot.MeetingIDs) > 0 {
		g.Go(func() error {
			meetings, err := s.source.Meetings(gctx, opportunityID, snapshot.MeetingIDs)
			if err != nil {
				return fmt.Errorf("load meetings: %w", err)
			}
			bundle.Meetings = meetings
			return nil
		})
	}

	if snapshot.IncludeConsolidatedInsights {
		g.Go(func() error {
			insights, err := s.source.ConsolidatedInsights(gctx, opportunityID)
			if err != nil {
				return fmt.Errorf("load consolidated insights: %w", err)
			}
			bundle.Insights = insights
			return nil
		})
	}

	if snapshot.IncludeAccountResearch {
		g.Go(func() error {
			research, err := s.source.ResearchBrief(gctx, opportunityID)
			if err != nil {
				return fmt.Errorf("load research brief: %w", err)
			}
			bundle.Research = research
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return ContextBundle{}, err
	}
	return bundle, nil
}

// renderContext turns a bundle into the single context document the writer
// agent reads. Sections are ordered by importance and meetings newest first,
// so hitting the budget cuts the oldest material. The returned flag reports
// whether the budget truncated anything.
func renderContext(bundle ContextBundle, budget int) (string, bool) {
	var sb strings.Builder

	sb.WriteString("OPPORTUNITY\n")
	sb.WriteString("- Account: " + bundle.Opportunity.AccountName + "\n")
	sb.WriteString("- Pipeline stage: " + bundle.Opportunity.Stage + "\n")
	if bundle.Opportunity.ContactName != nil {
		sb.WriteString("- Primary contact: " + *bundle.Opportunity.ContactName + "\n")
	}
	if bundle.Opportunity.AmountCents != nil {
		sb.WriteString(fmt.Sprintf("- Deal amount: %.2f\n", float64(*bundle.Opportunity.AmountCents)/100))
	}
	if bundle.Opportunity.LastCallDate != nil {
		sb.WriteString("- Last call: " + bundle.Opportunity.LastCallDate.Format("2006-01-02") + "\n")
	}
	if bundle.Opportunity.NextCallDate != nil {
		sb.WriteString("- Next call: " + bundle.Opportunity.NextCallDate.Format("2006-01-02") + "\n")
	}

	if bundle.AdditionalContext != "" {
		sb.WriteString("\nADDITIONAL INSTRUCTIONS FROM THE REQUESTER\n")
		sb.WriteString(bundle.AdditionalContext + "\n")
	}

	if bundle.Insights != nil {
		sb.WriteString("\nCONSOLIDATED INSIGHTS (merged across all parsed meetings, as of " + bundle.Insights.ConsolidatedAt.Format("2006-01-02") + ")\n")
		writeContextList(&sb, "Pain points", bundle.Insights.PainPoints)
		writeContextList(&sb, "Goals", bundle.Insights.Goals)
		writeContextList(&sb, "Next steps", bundle.Insights.NextSteps)
		writeContextList(&sb, "Metrics", bundle.Insights.Metrics)
		if bundle.Insights.RiskLevel != nil {
			sb.WriteString("Risk level: " + *bundle.Insights.RiskLevel + "\n")
			if bundle.Insights.RiskSummary != nil {
				sb.WriteString("Risk summary: " + *bundle.Insights.RiskSummary + "\n")
			}
		}
	}

	if bundle.Research != nil {
		sb.WriteString("\nACCOUNT RESEARCH BRIEF (generated " + bundle.Research.GeneratedAt.Format("2006-01-02") + ")\n")
		sb.WriteString(bundle.Research.Markdown + "\n")
	}

	if len(bundle.Meetings) > 0 {
		meetings := make([]MeetingContext, len(bundle.Meetings))
		copy(meetings, bundle.Meetings)
		sort.Slice(meetings, func(i, j int) bool {
			return meetings[i].OccurredAt.After(meetings[j].OccurredAt)
		})

		sb.WriteString("\nSELECTED MEETINGS (most recent first)\n")
		for _, m := range meetings {
			sb.WriteString("\n--- " + meetingHeading(m) + " ---\n")
			if m.Summary != nil {
				sb.WriteString("Summary: " + *m.Summary + "\n")
			}
			writeContextList(&sb, "Pain points", m.PainPoints)
			writeContextList(&sb, "Goals", m.Goals)
			writeContextList(&sb, "Next steps", m.NextSteps)
			writeContextList(&sb, "Metrics", m.Metrics)
			if m.RiskLevel != nil {
				sb.WriteString("Risk level: " + *m.RiskLevel + "\n")
			}
		}
	}

	text := sb.String()
	if len(text) <= budget {
		return text, false
	}
	return text[:budget] + TruncationMarker, true
}

func meetingHeading(m MeetingContext) string {
	heading := m.OccurredAt.Format("2006-01-02") + " " + m.Kind
	if m.Title != nil && strings.TrimSpace(*m.Title) != "" {
		heading += ": " + strings.TrimSpace(*m.Title)
	}
	return heading
}

func writeContextList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(label + ":\n")
	for _, item := range items {
		sb.WriteString("- " + item + "\n")
	}
}
