package events

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketMessageAdded    EventType = "ticket_message_added"
	EventFirstResponseRecorded EventType = "first_response_recorded"
	EventTicketResolved        EventType = "ticket_resolved"
	EventTicketReopened        EventType = "ticket_reopened"
	EventOLAStarted            EventType = "ola_started"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	UserID  *string            `json:"user_id,omitempty"`
	StaffID *string            `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TenantID    string                `json:"tenant_id"`
	Priority    domain.TicketPriority `json:"priority"`
	Title       string                `json:"title"`
	ResponseDue *time.Time            `json:"response_due,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeStaffID *string `json:"assignee_staff_id,omitempty"`
	FirstAssignment bool    `json:"first_assignment"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   string                   `json:"message_id"`
	MessageType domain.TicketMessageType `json:"message_type"`
	AuthorType  domain.MessageAuthorType `json:"author_type"`
	AuthorID    *string                  `json:"author_id,omitempty"`
	BodyPreview string                   `json:"body_preview"`
}

// FirstResponsePayload records when the first public staff reply landed.
type FirstResponsePayload struct {
	RespondedAt time.Time `json:"responded_at"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	ResolvedAt time.Time `json:"resolved_at"`
}

// TicketReopenedPayload payload.
type TicketReopenedPayload struct {
	ReopenedAt time.Time `json:"reopened_at"`
}

// OLAStartedPayload records the ownership clock start.
type OLAStartedPayload struct {
	OwnedAt time.Time  `json:"owned_at"`
	OwnDue  *time.Time `json:"own_due,omitempty"`
}
