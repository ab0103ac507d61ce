package lifecycle

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/slaclock"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// ApplyCommentEvent translates an appended comment into status and clock
// changes. A public staff reply on an active ticket records the first
// response, moves the ticket to WAITING_CUSTOMER and freezes both clocks; a
// client reply while waiting moves it back to IN_PROGRESS and settles the
// pause window. Every other combination leaves the ticket alone.
func ApplyCommentEvent(snap Snapshot, authorIsStaff, isInternal bool, now time.Time, cal *calendar.Calendar) (Snapshot, []Event, error) {
	if snap.Status.Terminal() {
		return snap, nil, apperrors.NewConflict("ticket no longer accepts comments",
			map[string]any{"status": snap.Status})
	}
	if isInternal && !authorIsStaff {
		return snap, nil, apperrors.NewForbidden("internal notes are restricted to staff")
	}

	switch {
	case authorIsStaff && !isInternal &&
		(snap.Status == domain.TicketStatusOpen || snap.Status == domain.TicketStatusInProgress):
		next := snap
		var events []Event
		if next.SLA.FirstMilestoneAt == nil {
			next.SLA = next.SLA.RecordFirstMilestone(now)
			events = append(events, Event{Kind: EventFirstResponseRecorded, At: now})
		}
		next.SLA = next.SLA.Pause(now)
		next = next.withOLA(func(c slaclock.ClockState) slaclock.ClockState {
			return c.Pause(now)
		})
		next.Status = domain.TicketStatusWaitingCustomer
		events = append(events, Event{
			Kind: EventStatusChanged,
			From: snap.Status,
			To:   domain.TicketStatusWaitingCustomer,
			At:   now,
		})
		return next, events, nil

	case !authorIsStaff && snap.Status == domain.TicketStatusWaitingCustomer:
		next := snap
		next.SLA = next.SLA.Resume(now, cal)
		next = next.withOLA(func(c slaclock.ClockState) slaclock.ClockState {
			return c.Resume(now, cal)
		})
		next.Status = domain.TicketStatusInProgress
		events := []Event{{
			Kind: EventStatusChanged,
			From: snap.Status,
			To:   domain.TicketStatusInProgress,
			At:   now,
		}}
		return next, events, nil
	}

	// Internal notes, staff replies while already waiting and client replies
	// on an active ticket are recorded without touching status or clocks.
	return snap, nil, nil
}
