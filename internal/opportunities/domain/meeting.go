// Package domain provides core business rules for the opportunities bounded context.
package domain

import "time"

// ParseStatus is the lifecycle state of a meeting record's transcript parse.
type ParseStatus string

const (
	ParseStatusPending   ParseStatus = "pending"
	ParseStatusParsing   ParseStatus = "parsing"
	ParseStatusCompleted ParseStatus = "completed"
	ParseStatusFailed    ParseStatus = "failed"
)

// parseTransitions lists the allowed status transitions. Failed records may
// only return to pending (the manual retry path); completed is terminal.
var parseTransitions = map[ParseStatus][]ParseStatus{
	ParseStatusPending: {ParseStatusParsing},
	ParseStatusParsing: {ParseStatusCompleted, ParseStatusFailed},
	ParseStatusFailed:  {ParseStatusPending},
}

// CanTransition reports whether a parse status change is allowed.
func CanTransition(from, to ParseStatus) bool {
	for _, allowed := range parseTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminalParseStatus reports whether no automatic processing should touch
// the record anymore. Failed is terminal for the pipeline but remains
// manually retryable.
func IsTerminalParseStatus(status ParseStatus) bool {
	return status == ParseStatusCompleted || status == ParseStatusFailed
}

func IsKnownParseStatus(status string) bool {
	switch ParseStatus(status) {
	case ParseStatusPending, ParseStatusParsing, ParseStatusCompleted, ParseStatusFailed:
		return true
	}
	return false
}

// MeetingKind distinguishes the two meeting record variants.
type MeetingKind string

const (
	MeetingKindCallTranscript MeetingKind = "call_transcript"
	MeetingKindNote           MeetingKind = "note"
)

func IsKnownMeetingKind(kind string) bool {
	return MeetingKind(kind) == MeetingKindCallTranscript || MeetingKind(kind) == MeetingKindNote
}

// Meeting sources record how a transcript entered the system.
const (
	MeetingSourceManual    = "manual"
	MeetingSourceWebhook   = "webhook"
	MeetingSourceRecording = "recording"
	MeetingSourceMailin    = "mailin"
	MeetingSourceImport    = "import"
)

// MinTranscriptLength is the minimum number of characters a transcript must
// carry before it is accepted for parsing. Enforced synchronously at
// ingestion, never in the background pipeline.
const MinTranscriptLength = 50

// Person is an attendee extracted from a transcript.
type Person struct {
	Name    string  `json:"name"`
	Role    *string `json:"role,omitempty"`
	Company *string `json:"company,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
}

// ParsedInsights is the full structured output of a transcript parse. A
// completed meeting always carries all of it; a failed meeting carries none
// of it. Risk is not part of the parse: the risk analyzer attaches its
// assessment separately after the parse completes.
type ParsedInsights struct {
	Summary    string    `json:"summary"`
	PainPoints []string  `json:"painPoints"`
	Goals      []string  `json:"goals"`
	NextSteps  []string  `json:"nextSteps"`
	Metrics    []string  `json:"metrics"`
	People     []Person  `json:"people"`
	ParsedAt   time.Time `json:"parsedAt"`
}
