package lifecycle

import (
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/slaclock"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
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

var slaTargets = slaclock.Durations{
	slaclock.MilestoneResponseDue:   4 * time.Hour,
	slaclock.MilestoneResolutionDue: 24 * time.Hour,
}

var olaTargets = slaclock.Durations{
	slaclock.MilestoneOwnDue:        2 * time.Hour,
	slaclock.MilestoneResolutionDue: 24 * time.Hour,
}

func openSnapshot(t *testing.T, cal *calendar.Calendar, createdAt time.Time) Snapshot {
	t.Helper()
	return Snapshot{
		Status: domain.TicketStatusOpen,
		SLA:    CreateTicketClocks(createdAt, cal, slaTargets),
	}
}

func eventKinds(events []Event) []EventKind {
	kinds := make([]EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func TestCreateTicketClocks(t *testing.T) {
	cal := testCalendar(t)
	created := mustParse(t, "2024-03-04T09:00:00Z")
	state := CreateTicketClocks(created, cal, slaTargets)

	if due, _ := state.DueAt(slaclock.MilestoneResponseDue); !due.Equal(mustParse(t, "2024-03-04T13:00:00Z")) {
		t.Fatalf("response due %v", due)
	}
	if due, _ := state.DueAt(slaclock.MilestoneResolutionDue); !due.Equal(mustParse(t, "2024-03-06T15:00:00Z")) {
		t.Fatalf("resolution due %v", due)
	}
}

func TestApplyStatusTransitionRejectsUnknownStatus(t *testing.T) {
	cal := testCalendar(t)
	snap := openSnapshot(t, cal, mustParse(t, "2024-03-04T09:00:00Z"))

	next, events, err := ApplyStatusTransition(snap, domain.TicketStatus("ARCHIVED"), mustParse(t, "2024-03-04T10:00:00Z"), cal)
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
	if next.Status != snap.Status || len(events) != 0 {
		t.Fatalf("snapshot mutated on error: %+v", next)
	}
}

func TestApplyStatusTransitionSameStatusIsNoop(t *testing.T) {
	cal := testCalendar(t)
	snap := openSnapshot(t, cal, mustParse(t, "2024-03-04T09:00:00Z"))

	next, events, err := ApplyStatusTransition(snap, domain.TicketStatusOpen, mustParse(t, "2024-03-04T10:00:00Z"), cal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("no-op emitted events: %v", eventKinds(events))
	}
	if next.Status != domain.TicketStatusOpen || next.SLA.Paused() {
		t.Fatalf("no-op changed snapshot: %+v", next)
	}
}

func TestApplyStatusTransitionClockEffects(t *testing.T) {
	cal := testCalendar(t)
	now := mustParse(t, "2024-03-04T10:00:00Z")

	t.Run("to waiting pauses both clocks", func(t *testing.T) {
		snap := openSnapshot(t, cal, mustParse(t, "2024-03-04T09:00:00Z"))
		snap.Status = domain.TicketStatusInProgress
		ola := slaclock.Start(mustParse(t, "2024-03-04T09:30:00Z"), olaTargets, cal)
		snap.OLA = &ola

		next, events, err := ApplyStatusTransition(snap, domain.TicketStatusWaitingCustomer, now, cal)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !next.SLA.Paused() || !next.OLA.Paused() {
			t.Fatalf("clocks not paused: sla=%v ola=%v", next.SLA.Paused(), next.OLA.Paused())
		}
		if kinds := eventKinds(events); len(kinds) != 1 || kinds[0] != EventStatusChanged {
			t.Fatalf("events %v", kinds)
		}
	})

	t.Run("leaving waiting resumes both clocks", func(t *testing.T) {
		snap := openSnapshot(t, cal, mustParse(t, "2024-03-04T09:00:00Z"))
		snap.Status = domain.TicketStatusInProgress
		paused, _, err := ApplyStatusTransition(snap, domain.TicketStatusWaitingCustomer, now, cal)
		if err != nil {
			t.Fatalf("pause: %v", err)
		}

		resumedAt := mustParse(t, "2024-03-04T12:00:00Z")
		next, _, err := ApplyStatusTransition(paused, domain.TicketStatusInProgress, resumedAt, cal)
		if err != nil {
			t.Fatalf("resume: %v", err)
		}
		if next.SLA.Paused() {
			t.Fatal("sla still paused")
		}
		if want := (2 * time.Hour).Milliseconds(); next.SLA.PausedMs != want {
			t.Fatalf("paused_ms = %d, want %d", next.SLA.PausedMs, want)
		}
		// Response was due 13:00; two frozen hours push it to 15:00.
		if due, _ := next.SLA.DueAt(slaclock.MilestoneResponseDue); !due.Equal(mustParse(t, "2024-03-04T15:00:00Z")) {
			t.Fatalf("response due %v", due)
		}
	})

	t.Run("resolving marks both clocks", func(t *testing.T) {
		snap := openSnapshot(t, cal, mustParse(t, "2024-03-04T09:00:00Z"))
		snap.Status = domain.TicketStatusInProgress
		ola := slaclock.Start(mustParse(t, "2024-03-04T09:30:00Z"), olaTargets, cal)
		snap.OLA = &ola

		next, events, err := ApplyStatusTransition(snap, domain.TicketStatusResolved, now, cal)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if next.SLA.ResolvedAt == nil || !next.SLA.ResolvedAt.Equal(now) {
			t.Fatalf("sla resolved_at %v", next.SLA.ResolvedAt)
		}
		if next.OLA.ResolvedAt == nil {
			t.Fatal("ola resolved_at not set")
		}
		if kinds := eventKinds(events); len(kinds) != 2 || kinds[0] != EventResolved || kinds[1] != EventStatusChanged {
			t.Fatalf("events %v", kinds)
		}
	})

	t.Run("terminal to terminal changes status only", func(t *testing.T) {
		snap := openSnapshot(t, cal, mustParse(t, "2024-03-04T09:00:00Z"))
		snap.Status = domain.TicketStatusInProgress
		resolved, _, err := ApplyStatusTransition(snap, domain.TicketStatusResolved, now, cal)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		resolvedAt := *resolved.SLA.ResolvedAt

		closed, events, err := ApplyStatusTransition(resolved, domain.TicketStatusClosed, mustParse(t, "2024-03-04T14:00:00Z"), cal)
		if err != nil {
			t.Fatalf("close: %v", err)
		}
		if closed.Status != domain.TicketStatusClosed {
			t.Fatalf("status %v", closed.Status)
		}
		if !closed.SLA.ResolvedAt.Equal(resolvedAt) {
			t.Fatalf("resolved_at changed to %v", closed.SLA.ResolvedAt)
		}
		if kinds := eventKinds(events); len(kinds) != 1 || kinds[0] != EventStatusChanged {
			t.Fatalf("events %v", kinds)
		}
	})

	t.Run("reopen clears resolved marker only", func(t *testing.T) {
		snap := openSnapshot(t, cal, mustParse(t, "2024-03-04T09:00:00Z"))
		snap.Status = domain.TicketStatusInProgress
		resolved, _, err := ApplyStatusTransition(snap, domain.TicketStatusResolved, now, cal)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		dueBefore, _ := resolved.SLA.DueAt(slaclock.MilestoneResolutionDue)

		reopened, events, err := ApplyStatusTransition(resolved, domain.TicketStatusOpen, mustParse(t, "2024-03-05T09:00:00Z"), cal)
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		if reopened.SLA.ResolvedAt != nil {
			t.Fatalf("resolved_at survived reopen: %v", reopened.SLA.ResolvedAt)
		}
		if due, _ := reopened.SLA.DueAt(slaclock.MilestoneResolutionDue); !due.Equal(dueBefore) {
			t.Fatalf("reopen moved due date to %v", due)
		}
		if kinds := eventKinds(events); len(kinds) != 2 || kinds[0] != EventReopened || kinds[1] != EventStatusChanged {
			t.Fatalf("events %v", kinds)
		}
	})
}

func TestApplyAssignment(t *testing.T) {
	cal := testCalendar(t)
	created := mustParse(t, "2024-03-04T09:00:00Z")
	now := mustParse(t, "2024-03-04T10:00:00Z")

	t.Run("first assignment starts ola and promotes open", func(t *testing.T) {
		snap := openSnapshot(t, cal, created)
		next, events := ApplyAssignment(snap, true, now, cal, olaTargets)

		if next.OLA == nil {
			t.Fatal("ola not started")
		}
		if next.OLA.FirstMilestoneAt == nil || !next.OLA.FirstMilestoneAt.Equal(now) {
			t.Fatalf("owned_at %v", next.OLA.FirstMilestoneAt)
		}
		if due, _ := next.OLA.DueAt(slaclock.MilestoneOwnDue); !due.Equal(mustParse(t, "2024-03-04T12:00:00Z")) {
			t.Fatalf("own due %v", due)
		}
		if next.Status != domain.TicketStatusInProgress {
			t.Fatalf("status %v", next.Status)
		}
		if kinds := eventKinds(events); len(kinds) != 2 || kinds[0] != EventOLAStarted || kinds[1] != EventStatusChanged {
			t.Fatalf("events %v", kinds)
		}
	})

	t.Run("first assignment on in-progress keeps status", func(t *testing.T) {
		snap := openSnapshot(t, cal, created)
		snap.Status = domain.TicketStatusInProgress
		next, events := ApplyAssignment(snap, true, now, cal, olaTargets)

		if next.Status != domain.TicketStatusInProgress {
			t.Fatalf("status %v", next.Status)
		}
		if kinds := eventKinds(events); len(kinds) != 1 || kinds[0] != EventOLAStarted {
			t.Fatalf("events %v", kinds)
		}
	})

	t.Run("reassignment never restarts the ola", func(t *testing.T) {
		snap := openSnapshot(t, cal, created)
		first, _ := ApplyAssignment(snap, true, now, cal, olaTargets)
		ownDue, _ := first.OLA.DueAt(slaclock.MilestoneOwnDue)

		later := mustParse(t, "2024-03-04T15:00:00Z")
		next, events := ApplyAssignment(first, false, later, cal, olaTargets)
		if len(events) != 0 {
			t.Fatalf("reassignment emitted %v", eventKinds(events))
		}
		if due, _ := next.OLA.DueAt(slaclock.MilestoneOwnDue); !due.Equal(ownDue) {
			t.Fatalf("own due moved to %v", due)
		}
	})
}
