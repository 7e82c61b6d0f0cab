package domain

import "strings"

// RiskLevel grades how likely an opportunity is to stall or be lost.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// riskSeverity orders levels for merging. Unknown levels rank below low so a
// malformed model answer can never outrank a real assessment.
var riskSeverity = map[RiskLevel]int{
	RiskLevelLow:      1,
	RiskLevelMedium:   2,
	RiskLevelHigh:     3,
	RiskLevelCritical: 4,
}

// RiskAssessment is the structured risk object attached to a meeting and, in
// merged form, to the opportunity's consolidated insights.
type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors"`
	Summary string    `json:"summary,omitempty"`
}

// ParseRiskLevel maps free-form model output onto a known level. Returns
// false for anything it does not recognize.
func ParseRiskLevel(raw string) (RiskLevel, bool) {
	level := RiskLevel(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := riskSeverity[level]; !ok {
		return "", false
	}
	return level, true
}

// MoreSevere reports whether a outranks b.
func MoreSevere(a, b RiskLevel) bool {
	return riskSeverity[a] > riskSeverity[b]
}

// MergeRisk combines per-meeting assessments into one representative
// assessment. The most severe level wins and factors are unioned with the
// same normalization used for insight lists. Nil when no input carries an
// assessment.
func MergeRisk(assessments []*RiskAssessment) *RiskAssessment {
	var merged *RiskAssessment
	seen := make(map[string]struct{})
	factors := make([]string, 0)

	for _, a := range assessments {
		if a == nil {
			continue
		}
		if merged == nil || MoreSevere(a.Level, merged.Level) {
			clone := *a
			merged = &clone
		}
		for _, f := range a.Factors {
			key := normalizeInsight(f)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			factors = append(factors, strings.TrimSpace(f))
		}
	}

	if merged == nil {
		return nil
	}
	merged.Factors = factors
	return merged
}
