package domain

import (
	"strings"
	"time"
)

// ConsolidationThreshold is the minimum number of completed meetings an
// opportunity needs before consolidation runs. Below it the operation is a
// policy skip, not a failure.
const ConsolidationThreshold = 2

// MeetingInsights is the slice of a completed meeting that consolidation
// reads. Order matters: callers pass meetings in gather order and the merged
// lists preserve first occurrence.
type MeetingInsights struct {
	PainPoints []string
	Goals      []string
	NextSteps  []string
	Metrics    []string
	Risk       *RiskAssessment
}

// ConsolidatedInsights is the wholesale-overwritten consolidated view on the
// opportunity.
type ConsolidatedInsights struct {
	PainPoints []string        `json:"painPoints"`
	Goals      []string        `json:"goals"`
	NextSteps  []string        `json:"nextSteps"`
	Metrics    []string        `json:"metrics"`
	Risk       *RiskAssessment `json:"risk,omitempty"`
}

// ConsolidateInsights unions the insight lists of all completed meetings into
// deduplicated flat lists and merges their risk assessments. Deduplication is
// case-insensitive and whitespace-normalized; the first spelling seen is the
// one kept.
func ConsolidateInsights(meetings []MeetingInsights) ConsolidatedInsights {
	result := ConsolidatedInsights{
		PainPoints: make([]string, 0),
		Goals:      make([]string, 0),
		NextSteps:  make([]string, 0),
		Metrics:    make([]string, 0),
	}

	risks := make([]*RiskAssessment, 0, len(meetings))
	painSeen := make(map[string]struct{})
	goalSeen := make(map[string]struct{})
	stepSeen := make(map[string]struct{})
	metricSeen := make(map[string]struct{})

	for _, m := range meetings {
		result.PainPoints = appendUnique(result.PainPoints, painSeen, m.PainPoints)
		result.Goals = appendUnique(result.Goals, goalSeen, m.Goals)
		result.NextSteps = appendUnique(result.NextSteps, stepSeen, m.NextSteps)
		result.Metrics = appendUnique(result.Metrics, metricSeen, m.Metrics)
		risks = append(risks, m.Risk)
	}

	result.Risk = MergeRisk(risks)
	return result
}

func appendUnique(dst []string, seen map[string]struct{}, items []string) []string {
	for _, item := range items {
		key := normalizeInsight(item)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, strings.TrimSpace(item))
	}
	return dst
}

// normalizeInsight is the dedup key: lowercased with interior whitespace
// collapsed to single spaces.
func normalizeInsight(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// InsightsStatus classifies an opportunity's consolidation state. Always
// derived on read from the live meeting set, never persisted.
type InsightsStatus string

const (
	InsightsStatusNone           InsightsStatus = "none"
	InsightsStatusPending        InsightsStatus = "pending"
	InsightsStatusReady          InsightsStatus = "ready"
	InsightsStatusApplied        InsightsStatus = "applied"
	InsightsStatusAppliedWithNew InsightsStatus = "applied_with_new"
)

// DeriveInsightsStatus computes the consolidation status for an opportunity.
// totalMeetings counts every meeting regardless of parse status;
// completedParsedAt holds the parse timestamps of the completed ones.
func DeriveInsightsStatus(totalMeetings int, completedParsedAt []time.Time, lastConsolidatedAt *time.Time) InsightsStatus {
	if totalMeetings == 0 {
		return InsightsStatusNone
	}
	if len(completedParsedAt) == 0 {
		return InsightsStatusPending
	}
	if lastConsolidatedAt == nil {
		return InsightsStatusReady
	}
	for _, parsedAt := range completedParsedAt {
		if parsedAt.After(*lastConsolidatedAt) {
			return InsightsStatusAppliedWithNew
		}
	}
	return InsightsStatusApplied
}
