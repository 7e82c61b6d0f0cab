package domain

import "testing"

func TestParseStatusTransitions(t *testing.T) {
	tests := []struct {
		from ParseStatus
		to   ParseStatus
		want bool
	}{
		{ParseStatusPending, ParseStatusParsing, true},
		{ParseStatusParsing, ParseStatusCompleted, true},
		{ParseStatusParsing, ParseStatusFailed, true},
		{ParseStatusFailed, ParseStatusPending, true},

		// Completed is terminal.
		{ParseStatusCompleted, ParseStatusPending, false},
		{ParseStatusCompleted, ParseStatusParsing, false},
		{ParseStatusCompleted, ParseStatusFailed, false},

		// No shortcuts.
		{ParseStatusPending, ParseStatusCompleted, false},
		{ParseStatusPending, ParseStatusFailed, false},
		{ParseStatusFailed, ParseStatusParsing, false},
		{ParseStatusFailed, ParseStatusCompleted, false},
	}

	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsTerminalParseStatus(t *testing.T) {
	if IsTerminalParseStatus(ParseStatusPending) || IsTerminalParseStatus(ParseStatusParsing) {
		t.Error("pending and parsing are not terminal")
	}
	if !IsTerminalParseStatus(ParseStatusCompleted) || !IsTerminalParseStatus(ParseStatusFailed) {
		t.Error("completed and failed are terminal")
	}
}

func TestParseRiskLevel(t *testing.T) {
	tests := []struct {
		raw    string
		want   RiskLevel
		wantOK bool
	}{
		{"low", RiskLevelLow, true},
		{" HIGH ", RiskLevelHigh, true},
		{"Critical", RiskLevelCritical, true},
		{"medium", RiskLevelMedium, true},
		{"severe", "", false},
		{"", "", false},
	}

	for _, tc := range tests {
		got, ok := ParseRiskLevel(tc.raw)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("ParseRiskLevel(%q) = (%q, %v), want (%q, %v)", tc.raw, got, ok, tc.want, tc.wantOK)
		}
	}
}
