package slaclock

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
)

// Milestone names a tracked due date inside a clock.
type Milestone string

const (
	MilestoneResponseDue   Milestone = "response_due"
	MilestoneResolutionDue Milestone = "resolution_due"
	MilestoneOwnDue        Milestone = "own_due"
)

// Durations maps milestones to the business time allowed before each is due.
type Durations map[Milestone]time.Duration

// ClockState is one deadline record for a ticket. A ticket carries one for
// its SLA and, after first assignment, one for its OLA. While paused only
// PausedAt is recorded; the pause delta is settled lazily at resume time.
type ClockState struct {
	DueDates         map[Milestone]time.Time `json:"due_dates"`
	FirstMilestoneAt *time.Time              `json:"first_milestone_at,omitempty"`
	ResolvedAt       *time.Time              `json:"resolved_at,omitempty"`
	PausedAt         *time.Time              `json:"paused_at,omitempty"`
	PausedMs         int64                   `json:"paused_ms"`
}

// Start builds a fresh clock with every due date advanced from now by its
// allowed business time.
func Start(now time.Time, durations Durations, cal *calendar.Calendar) ClockState {
	dueDates := make(map[Milestone]time.Time, len(durations))
	for milestone, d := range durations {
		dueDates[milestone] = cal.AddBusinessTime(now, d)
	}
	return ClockState{DueDates: dueDates}
}

// Pause freezes the clock at now. Pausing an already-paused clock is a no-op;
// the original pause instant is kept.
func (c ClockState) Pause(now time.Time) ClockState {
	if c.PausedAt != nil {
		return c
	}
	next := c.clone()
	next.PausedAt = &now
	return next
}

// Resume settles an open pause window: every due date is pushed out by
// exactly the business time that elapsed while frozen, and the same delta is
// accumulated into PausedMs. Resuming a running clock is a no-op.
func (c ClockState) Resume(now time.Time, cal *calendar.Calendar) ClockState {
	if c.PausedAt == nil {
		return c
	}
	delta := cal.BusinessTimeBetween(*c.PausedAt, now)
	next := c.clone()
	for milestone, due := range next.DueDates {
		next.DueDates[milestone] = due.Add(delta)
	}
	next.PausedMs += delta.Milliseconds()
	next.PausedAt = nil
	return next
}

// MarkResolved records the resolution instant once per resolution episode.
func (c ClockState) MarkResolved(now time.Time) ClockState {
	if c.ResolvedAt != nil {
		return c
	}
	next := c.clone()
	next.ResolvedAt = &now
	return next
}

// Reopen clears the resolution marker. Accumulated pause time and due dates
// are left untouched.
func (c ClockState) Reopen() ClockState {
	if c.ResolvedAt == nil {
		return c
	}
	next := c.clone()
	next.ResolvedAt = nil
	return next
}

// RecordFirstMilestone stamps the clock's first milestone (first public staff
// response for SLA) if it has not been recorded yet.
func (c ClockState) RecordFirstMilestone(now time.Time) ClockState {
	if c.FirstMilestoneAt != nil {
		return c
	}
	next := c.clone()
	next.FirstMilestoneAt = &now
	return next
}

// Paused reports whether the clock currently has an open pause window.
func (c ClockState) Paused() bool {
	return c.PausedAt != nil
}

// DueAt returns the due date for the milestone, if tracked.
func (c ClockState) DueAt(milestone Milestone) (time.Time, bool) {
	due, ok := c.DueDates[milestone]
	return due, ok
}

// clone copies the state deeply enough that operations on the copy never
// alias the receiver's due-date map.
func (c ClockState) clone() ClockState {
	next := c
	next.DueDates = make(map[Milestone]time.Time, len(c.DueDates))
	for milestone, due := range c.DueDates {
		next.DueDates[milestone] = due
	}
	return next
}
