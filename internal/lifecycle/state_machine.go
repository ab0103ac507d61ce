package lifecycle

import (
	"fmt"
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/slaclock"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// Snapshot is the slice of a ticket this engine reads and rewrites: its
// lifecycle status and both deadline clocks. Callers load it before an
// operation and persist the returned value atomically afterwards.
type Snapshot struct {
	Status domain.TicketStatus
	SLA    slaclock.ClockState
	OLA    *slaclock.ClockState
}

// EventKind enumerates the domain events the engine emits. Delivery is the
// caller's concern.
type EventKind string

const (
	EventStatusChanged         EventKind = "STATUS_CHANGED"
	EventFirstResponseRecorded EventKind = "FIRST_RESPONSE_RECORDED"
	EventResolved              EventKind = "RESOLVED"
	EventReopened              EventKind = "REOPENED"
	EventOLAStarted            EventKind = "OLA_STARTED"
)

// Event describes one engine outcome for audit and notification collaborators.
type Event struct {
	Kind EventKind
	From domain.TicketStatus
	To   domain.TicketStatus
	At   time.Time
}

// CreateTicketClocks starts the SLA clock for a freshly created ticket. The
// OLA clock is created later, at first assignment.
func CreateTicketClocks(now time.Time, cal *calendar.Calendar, sla slaclock.Durations) slaclock.ClockState {
	return slaclock.Start(now, sla, cal)
}

// ApplyStatusTransition moves the ticket to the requested status and applies
// the matching clock effects. Validation happens before any clock mutation;
// on error the snapshot is returned untouched. Requesting the current status
// changes nothing.
func ApplyStatusTransition(snap Snapshot, requested domain.TicketStatus, now time.Time, cal *calendar.Calendar) (Snapshot, []Event, error) {
	if !requested.Valid() {
		return snap, nil, apperrors.NewValidationError(
			fmt.Sprintf("unknown ticket status %q", requested), nil)
	}
	if requested == snap.Status {
		return snap, nil, nil
	}

	next := snap
	var events []Event

	if snap.Status.Terminal() {
		// Leaving a resolution episode clears the resolved marker; pause
		// accounting and due dates survive the reopen unchanged.
		if !requested.Terminal() {
			next.SLA = next.SLA.Reopen()
			next = next.withOLA(func(c slaclock.ClockState) slaclock.ClockState {
				return c.Reopen()
			})
			events = append(events, Event{Kind: EventReopened, At: now})
		}
	} else {
		if snap.Status == domain.TicketStatusWaitingCustomer {
			next.SLA = next.SLA.Resume(now, cal)
			next = next.withOLA(func(c slaclock.ClockState) slaclock.ClockState {
				return c.Resume(now, cal)
			})
		}
		if requested == domain.TicketStatusWaitingCustomer {
			next.SLA = next.SLA.Pause(now)
			next = next.withOLA(func(c slaclock.ClockState) slaclock.ClockState {
				return c.Pause(now)
			})
		}
		if requested.Terminal() {
			next.SLA = next.SLA.MarkResolved(now)
			next = next.withOLA(func(c slaclock.ClockState) slaclock.ClockState {
				return c.MarkResolved(now)
			})
			events = append(events, Event{Kind: EventResolved, At: now})
		}
	}

	next.Status = requested
	events = append(events, Event{
		Kind: EventStatusChanged,
		From: snap.Status,
		To:   requested,
		At:   now,
	})
	return next, events, nil
}

// ApplyAssignment starts the OLA clock on the ticket's first assignment and
// auto-promotes an OPEN ticket to IN_PROGRESS. Reassignments never restart
// the OLA clock.
func ApplyAssignment(snap Snapshot, isFirstAssignment bool, now time.Time, cal *calendar.Calendar, ola slaclock.Durations) (Snapshot, []Event) {
	if !isFirstAssignment || snap.OLA != nil {
		return snap, nil
	}

	started := slaclock.Start(now, ola, cal)
	started = started.RecordFirstMilestone(now) // ownedAt

	next := snap
	next.OLA = &started
	events := []Event{{Kind: EventOLAStarted, At: now}}

	if snap.Status == domain.TicketStatusOpen {
		next.Status = domain.TicketStatusInProgress
		events = append(events, Event{
			Kind: EventStatusChanged,
			From: domain.TicketStatusOpen,
			To:   domain.TicketStatusInProgress,
			At:   now,
		})
	}
	return next, events
}

func (s Snapshot) withOLA(fn func(slaclock.ClockState) slaclock.ClockState) Snapshot {
	if s.OLA == nil {
		return s
	}
	ola := fn(*s.OLA)
	s.OLA = &ola
	return s
}
