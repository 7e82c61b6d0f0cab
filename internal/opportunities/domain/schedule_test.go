package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRecomputeScheduleCheckpointIsMidpoint(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	last := now.Add(-24 * time.Hour)
	next := now.Add(9 * 24 * time.Hour)

	schedule := RecomputeSchedule(now, []ScheduleInput{
		{OccurredAt: last, Source: ScheduleSourceCallTranscript, SourceRecordID: uuid.New()},
		{OccurredAt: next, Source: ScheduleSourceCalendar, SourceRecordID: uuid.New()},
	})

	if schedule.LastCallDate == nil || !schedule.LastCallDate.Equal(last) {
		t.Fatalf("last call date = %v, want %v", schedule.LastCallDate, last)
	}
	if schedule.NextCallDate == nil || !schedule.NextCallDate.Equal(next) {
		t.Fatalf("next call date = %v, want %v", schedule.NextCallDate, next)
	}
	if schedule.CheckpointDate == nil {
		t.Fatal("expected a checkpoint date")
	}

	// Ten days between last and next puts the checkpoint exactly five days
	// after the last call.
	want := last.Add(5 * 24 * time.Hour)
	if !schedule.CheckpointDate.Equal(want) {
		t.Fatalf("checkpoint = %v, want %v", schedule.CheckpointDate, want)
	}
	if schedule.NeedsNextCallScheduled {
		t.Fatal("future meeting exists, should not need scheduling")
	}
}

func TestRecomputeScheduleLonePastMeeting(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	occurred := now.Add(-48 * time.Hour)

	schedule := RecomputeSchedule(now, []ScheduleInput{
		{OccurredAt: occurred, Source: ScheduleSourceNote, SourceRecordID: uuid.New()},
	})

	if schedule.LastCallDate == nil || !schedule.LastCallDate.Equal(occurred) {
		t.Fatalf("last call date = %v, want %v", schedule.LastCallDate, occurred)
	}
	if schedule.NextCallDate != nil {
		t.Fatalf("next call date should be nil, got %v", schedule.NextCallDate)
	}
	if schedule.CheckpointDate != nil {
		t.Fatalf("checkpoint should be nil without a next call, got %v", schedule.CheckpointDate)
	}
	if !schedule.NeedsNextCallScheduled {
		t.Fatal("expected needs-next-call flag with no future meeting")
	}
}

func TestRecomputeScheduleTieBreaksBySourcePriority(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	occurred := now.Add(-time.Hour)
	calendarID := uuid.New()

	schedule := RecomputeSchedule(now, []ScheduleInput{
		{OccurredAt: occurred, Source: ScheduleSourceNote, SourceRecordID: uuid.New()},
		{OccurredAt: occurred, Source: ScheduleSourceCalendar, SourceRecordID: calendarID},
		{OccurredAt: occurred, Source: ScheduleSourceCallTranscript, SourceRecordID: uuid.New()},
	})

	if schedule.LastCallSource == nil || *schedule.LastCallSource != ScheduleSourceCalendar {
		t.Fatalf("last call source = %v, want calendar", schedule.LastCallSource)
	}
	if schedule.LastCallSourceEventID == nil || *schedule.LastCallSourceEventID != calendarID {
		t.Fatalf("last call source event id = %v, want %v", schedule.LastCallSourceEventID, calendarID)
	}
}

func TestRecomputeScheduleEmptyInput(t *testing.T) {
	now := time.Now()

	schedule := RecomputeSchedule(now, nil)

	if schedule.LastCallDate != nil || schedule.NextCallDate != nil || schedule.CheckpointDate != nil {
		t.Fatal("empty input must leave all dates nil")
	}
	if !schedule.NeedsNextCallScheduled {
		t.Fatal("empty input must flag needs-next-call")
	}
	if !schedule.CalculatedAt.Equal(now) {
		t.Fatalf("calculated at = %v, want %v", schedule.CalculatedAt, now)
	}
}

func TestRecomputeScheduleBoundaryAtNow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// A signal exactly at now counts as past.
	schedule := RecomputeSchedule(now, []ScheduleInput{
		{OccurredAt: now, Source: ScheduleSourceCalendar, SourceRecordID: uuid.New()},
	})

	if schedule.LastCallDate == nil || !schedule.LastCallDate.Equal(now) {
		t.Fatalf("signal at now should be the last call, got %v", schedule.LastCallDate)
	}
	if schedule.NextCallDate != nil {
		t.Fatal("signal at now must not count as a future call")
	}
}

func TestRecomputeSchedulePicksNearestFuture(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	near := now.Add(24 * time.Hour)
	far := now.Add(10 * 24 * time.Hour)

	schedule := RecomputeSchedule(now, []ScheduleInput{
		{OccurredAt: far, Source: ScheduleSourceCalendar, SourceRecordID: uuid.New()},
		{OccurredAt: near, Source: ScheduleSourceCalendar, SourceRecordID: uuid.New()},
	})

	if schedule.NextCallDate == nil || !schedule.NextCallDate.Equal(near) {
		t.Fatalf("next call date = %v, want nearest %v", schedule.NextCallDate, near)
	}
}
