package slaclock

import (
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
)

func testCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.New(calendar.Config{
		Timezone:   "UTC",
		WorkDays:   []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		DailyStart: "09:00",
		DailyEnd:   "18:00",
	})
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}
	return cal
}

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts
}

func TestStart(t *testing.T) {
	cal := testCalendar(t)
	// Monday 09:00.
	now := mustParse(t, "2024-03-04T09:00:00Z")
	state := Start(now, Durations{
		MilestoneResponseDue:   4 * time.Hour,
		MilestoneResolutionDue: 24 * time.Hour,
	}, cal)

	if due, _ := state.DueAt(MilestoneResponseDue); !due.Equal(mustParse(t, "2024-03-04T13:00:00Z")) {
		t.Fatalf("response due %v", due)
	}
	if due, _ := state.DueAt(MilestoneResolutionDue); !due.Equal(mustParse(t, "2024-03-06T15:00:00Z")) {
		t.Fatalf("resolution due %v", due)
	}
	if state.Paused() || state.PausedMs != 0 || state.FirstMilestoneAt != nil || state.ResolvedAt != nil {
		t.Fatalf("fresh clock carries state: %+v", state)
	}
}

func TestPauseIsIdempotent(t *testing.T) {
	cal := testCalendar(t)
	start := mustParse(t, "2024-03-04T09:00:00Z")
	state := Start(start, Durations{MilestoneResponseDue: 4 * time.Hour}, cal)

	first := mustParse(t, "2024-03-04T10:00:00Z")
	state = state.Pause(first)
	state = state.Pause(mustParse(t, "2024-03-04T11:00:00Z"))

	if !state.Paused() || !state.PausedAt.Equal(first) {
		t.Fatalf("second pause replaced the original instant: %+v", state.PausedAt)
	}
}

func TestResumeOnRunningClockIsNoop(t *testing.T) {
	cal := testCalendar(t)
	start := mustParse(t, "2024-03-04T09:00:00Z")
	state := Start(start, Durations{MilestoneResponseDue: 4 * time.Hour}, cal)
	before, _ := state.DueAt(MilestoneResponseDue)

	state = state.Resume(mustParse(t, "2024-03-04T12:00:00Z"), cal)
	after, _ := state.DueAt(MilestoneResponseDue)
	if !after.Equal(before) || state.PausedMs != 0 {
		t.Fatalf("resume on running clock changed state: %+v", state)
	}
}

// Pause Monday 16:00, resume Tuesday 11:00: the frozen window holds two
// business hours on Monday and two on Tuesday, so every due date moves out
// by four hours of wall-clock time.
func TestPauseResumeShiftsDueDates(t *testing.T) {
	cal := testCalendar(t)
	start := mustParse(t, "2024-03-04T09:00:00Z")
	state := Start(start, Durations{
		MilestoneResponseDue:   4 * time.Hour,
		MilestoneResolutionDue: 24 * time.Hour,
	}, cal)

	state = state.Pause(mustParse(t, "2024-03-04T16:00:00Z"))
	state = state.Resume(mustParse(t, "2024-03-05T11:00:00Z"), cal)

	if state.Paused() {
		t.Fatal("still paused after resume")
	}
	if want := (4 * time.Hour).Milliseconds(); state.PausedMs != want {
		t.Fatalf("paused_ms = %d, want %d", state.PausedMs, want)
	}
	if due, _ := state.DueAt(MilestoneResponseDue); !due.Equal(mustParse(t, "2024-03-04T17:00:00Z")) {
		t.Fatalf("response due %v", due)
	}
	if due, _ := state.DueAt(MilestoneResolutionDue); !due.Equal(mustParse(t, "2024-03-06T19:00:00Z")) {
		t.Fatalf("resolution due %v", due)
	}
}

// A pause that spans only non-business time costs nothing.
func TestPauseOverWeekendShiftsNothing(t *testing.T) {
	cal := testCalendar(t)
	start := mustParse(t, "2024-03-01T09:00:00Z") // Friday
	state := Start(start, Durations{MilestoneResponseDue: 4 * time.Hour}, cal)
	before, _ := state.DueAt(MilestoneResponseDue)

	state = state.Pause(mustParse(t, "2024-03-01T18:00:00Z"))
	state = state.Resume(mustParse(t, "2024-03-04T09:00:00Z"), cal)

	after, _ := state.DueAt(MilestoneResponseDue)
	if !after.Equal(before) {
		t.Fatalf("due moved from %v to %v", before, after)
	}
	if state.PausedMs != 0 {
		t.Fatalf("paused_ms = %d, want 0", state.PausedMs)
	}
}

func TestPausedMsAccumulatesAcrossEpisodes(t *testing.T) {
	cal := testCalendar(t)
	start := mustParse(t, "2024-03-04T09:00:00Z")
	state := Start(start, Durations{MilestoneResponseDue: 24 * time.Hour}, cal)

	state = state.Pause(mustParse(t, "2024-03-04T10:00:00Z"))
	state = state.Resume(mustParse(t, "2024-03-04T11:00:00Z"), cal)
	state = state.Pause(mustParse(t, "2024-03-04T14:00:00Z"))
	state = state.Resume(mustParse(t, "2024-03-04T16:30:00Z"), cal)

	if want := (3*time.Hour + 30*time.Minute).Milliseconds(); state.PausedMs != want {
		t.Fatalf("paused_ms = %d, want %d", state.PausedMs, want)
	}
}

func TestMarkResolvedOncePerEpisode(t *testing.T) {
	cal := testCalendar(t)
	start := mustParse(t, "2024-03-04T09:00:00Z")
	state := Start(start, Durations{MilestoneResponseDue: 4 * time.Hour}, cal)

	first := mustParse(t, "2024-03-04T12:00:00Z")
	state = state.MarkResolved(first)
	state = state.MarkResolved(mustParse(t, "2024-03-04T13:00:00Z"))
	if !state.ResolvedAt.Equal(first) {
		t.Fatalf("second MarkResolved replaced the instant: %v", state.ResolvedAt)
	}

	state = state.Reopen()
	if state.ResolvedAt != nil {
		t.Fatal("Reopen kept ResolvedAt")
	}

	second := mustParse(t, "2024-03-04T15:00:00Z")
	state = state.MarkResolved(second)
	if !state.ResolvedAt.Equal(second) {
		t.Fatalf("new episode not recorded: %v", state.ResolvedAt)
	}
}

func TestReopenPreservesAccounting(t *testing.T) {
	cal := testCalendar(t)
	start := mustParse(t, "2024-03-04T09:00:00Z")
	state := Start(start, Durations{MilestoneResponseDue: 4 * time.Hour}, cal)

	state = state.Pause(mustParse(t, "2024-03-04T10:00:00Z"))
	state = state.Resume(mustParse(t, "2024-03-04T12:00:00Z"), cal)
	state = state.MarkResolved(mustParse(t, "2024-03-04T13:00:00Z"))

	dueBefore, _ := state.DueAt(MilestoneResponseDue)
	pausedBefore := state.PausedMs

	state = state.Reopen()
	if due, _ := state.DueAt(MilestoneResponseDue); !due.Equal(dueBefore) {
		t.Fatalf("Reopen moved due date to %v", due)
	}
	if state.PausedMs != pausedBefore {
		t.Fatalf("Reopen changed paused_ms to %d", state.PausedMs)
	}
}

func TestRecordFirstMilestoneOnce(t *testing.T) {
	cal := testCalendar(t)
	start := mustParse(t, "2024-03-04T09:00:00Z")
	state := Start(start, Durations{MilestoneResponseDue: 4 * time.Hour}, cal)

	first := mustParse(t, "2024-03-04T09:30:00Z")
	state = state.RecordFirstMilestone(first)
	state = state.RecordFirstMilestone(mustParse(t, "2024-03-04T10:30:00Z"))
	if !state.FirstMilestoneAt.Equal(first) {
		t.Fatalf("first milestone replaced: %v", state.FirstMilestoneAt)
	}
}

// Operations return copies; the receiver's due-date map must never change.
func TestOperationsDoNotAliasReceiver(t *testing.T) {
	cal := testCalendar(t)
	start := mustParse(t, "2024-03-04T09:00:00Z")
	original := Start(start, Durations{MilestoneResponseDue: 4 * time.Hour}, cal)
	originalDue, _ := original.DueAt(MilestoneResponseDue)

	paused := original.Pause(mustParse(t, "2024-03-04T10:00:00Z"))
	_ = paused.Resume(mustParse(t, "2024-03-04T12:00:00Z"), cal)

	if due, _ := original.DueAt(MilestoneResponseDue); !due.Equal(originalDue) {
		t.Fatalf("receiver mutated: %v", due)
	}
	if original.Paused() || original.PausedMs != 0 {
		t.Fatalf("receiver mutated: %+v", original)
	}
}
