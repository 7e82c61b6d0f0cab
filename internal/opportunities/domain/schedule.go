package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleSource identifies where a call timestamp came from. Priority for
// tie-breaking follows the gather order: calendar beats call transcript beats
// note.
type ScheduleSource string

const (
	ScheduleSourceCalendar       ScheduleSource = "calendar"
	ScheduleSourceCallTranscript ScheduleSource = "call_transcript"
	ScheduleSourceNote           ScheduleSource = "note"
	ScheduleSourceManual         ScheduleSource = "manual"
)

var schedulePriority = map[ScheduleSource]int{
	ScheduleSourceCalendar:       3,
	ScheduleSourceCallTranscript: 2,
	ScheduleSourceNote:           1,
}

// ScheduleInput is one timestamped call signal feeding the recalculation.
type ScheduleInput struct {
	OccurredAt     time.Time
	Source         ScheduleSource
	SourceRecordID uuid.UUID
}

// Schedule holds the derived scheduling fields that are overwritten wholesale
// on every recalculation.
type Schedule struct {
	LastCallDate           *time.Time
	LastCallSource         *ScheduleSource
	LastCallSourceEventID  *uuid.UUID
	NextCallDate           *time.Time
	NextCallSource         *ScheduleSource
	NextCallSourceEventID  *uuid.UUID
	CheckpointDate         *time.Time
	NeedsNextCallScheduled bool
	CalculatedAt           time.Time
}

// RecomputeSchedule derives the schedule from every call signal of an
// opportunity. Past signals (at or before now) compete for last call, future
// ones for next call. The checkpoint is the arithmetic midpoint and exists
// only when both ends exist and the gap is positive. The result replaces any
// previous values, including a manually set next call.
func RecomputeSchedule(now time.Time, inputs []ScheduleInput) Schedule {
	result := Schedule{
		NeedsNextCallScheduled: true,
		CalculatedAt:           now,
	}

	var last, next *ScheduleInput
	for i := range inputs {
		in := inputs[i]
		if !in.OccurredAt.After(now) {
			if last == nil || laterWins(in, *last) {
				last = &inputs[i]
			}
			continue
		}
		if next == nil || earlierWins(in, *next) {
			next = &inputs[i]
		}
	}

	if last != nil {
		t := last.OccurredAt
		src := last.Source
		id := last.SourceRecordID
		result.LastCallDate = &t
		result.LastCallSource = &src
		result.LastCallSourceEventID = &id
	}
	if next != nil {
		t := next.OccurredAt
		src := next.Source
		id := next.SourceRecordID
		result.NextCallDate = &t
		result.NextCallSource = &src
		result.NextCallSourceEventID = &id
		result.NeedsNextCallScheduled = false
	}

	if last != nil && next != nil {
		result.CheckpointDate = CheckpointBetween(last.OccurredAt, next.OccurredAt)
	}

	return result
}

// CheckpointBetween returns the arithmetic midpoint of last and next, or nil
// when next is not strictly after last.
func CheckpointBetween(last, next time.Time) *time.Time {
	if !next.After(last) {
		return nil
	}
	mid := last.Add(next.Sub(last) / 2)
	return &mid
}

// laterWins picks the later past signal; on equal timestamps the higher
// priority source wins.
func laterWins(candidate, current ScheduleInput) bool {
	if candidate.OccurredAt.After(current.OccurredAt) {
		return true
	}
	if candidate.OccurredAt.Equal(current.OccurredAt) {
		return schedulePriority[candidate.Source] > schedulePriority[current.Source]
	}
	return false
}

// earlierWins picks the earlier future signal with the same tie-break.
func earlierWins(candidate, current ScheduleInput) bool {
	if candidate.OccurredAt.Before(current.OccurredAt) {
		return true
	}
	if candidate.OccurredAt.Equal(current.OccurredAt) {
		return schedulePriority[candidate.Source] > schedulePriority[current.Source]
	}
	return false
}
