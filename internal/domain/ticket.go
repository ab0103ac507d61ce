package domain

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/slaclock"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "OPEN"
	TicketStatusInProgress      TicketStatus = "IN_PROGRESS"
	TicketStatusWaitingCustomer TicketStatus = "WAITING_CUSTOMER"
	TicketStatusResolved        TicketStatus = "RESOLVED"
	TicketStatusClosed          TicketStatus = "CLOSED"
)

// Valid reports whether status is one of the five lifecycle states.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusWaitingCustomer,
		TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// Terminal reports whether status ends a resolution episode.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Valid reports whether the priority is a known value.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests. SLA exists from creation;
// OLA only after the first assignment.
type Ticket struct {
	ID          string
	ExternalKey string
	TenantID    string
	RequesterID string
	AssigneeID  *string
	Title       string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	Tags        []string
	SLA         slaclock.ClockState
	OLA         *slaclock.ClockState
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
}
