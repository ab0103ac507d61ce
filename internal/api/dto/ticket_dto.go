package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/slaclock"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	Tags        []string              `json:"tags"`
}

// TicketListQuery captures query filters for listing endpoints.
type TicketListQuery struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	AssigneeID *string
	Search     string
	Page       int
	PageSize   int
}

// ClockResponse exposes a deadline clock on the wire.
type ClockResponse struct {
	DueDates         map[string]time.Time `json:"due_dates"`
	FirstMilestoneAt *time.Time           `json:"first_milestone_at,omitempty"`
	ResolvedAt       *time.Time           `json:"resolved_at,omitempty"`
	PausedAt         *time.Time           `json:"paused_at,omitempty"`
	PausedMs         int64                `json:"paused_ms"`
}

// TicketSummary response.
type TicketSummary struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	Title       string                `json:"title"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	AssigneeID  *string               `json:"assignee_staff_id,omitempty"`
	Tags        []string              `json:"tags"`
	SLA         ClockResponse         `json:"sla"`
	OLA         *ClockResponse        `json:"ola,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID          string                  `json:"id"`
	ExternalKey string                  `json:"external_key"`
	TenantID    string                  `json:"tenant_id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Status      domain.TicketStatus     `json:"status"`
	Priority    domain.TicketPriority   `json:"priority"`
	AssigneeID  *string                 `json:"assignee_staff_id,omitempty"`
	Tags        []string                `json:"tags"`
	SLA         ClockResponse           `json:"sla"`
	OLA         *ClockResponse          `json:"ola,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
	ClosedAt    *time.Time              `json:"closed_at,omitempty"`
	Messages    []TicketMessageResponse `json:"messages"`
}

// TicketMessageResponse represents a thread message.
type TicketMessageResponse struct {
	ID          string                   `json:"id"`
	MessageType domain.TicketMessageType `json:"message_type"`
	AuthorType  domain.MessageAuthorType `json:"author_type"`
	AuthorID    *string                  `json:"author_id"`
	Body        string                   `json:"body"`
	CreatedAt   time.Time                `json:"created_at"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Body        string                    `json:"body"`
	MessageType *domain.TicketMessageType `json:"message_type,omitempty"`
}

// UpdateStatusRequest payload for staff transitions.
type UpdateStatusRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment,omitempty"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AssigneeStaffID string `json:"assignee_staff_id"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// TicketHistoryResponse represents an audit entry.
type TicketHistoryResponse struct {
	ID            string         `json:"id"`
	ChangeType    string         `json:"change_type"`
	ChangedByType string         `json:"changed_by_type"`
	ChangedByID   *string        `json:"changed_by_id,omitempty"`
	OldValue      map[string]any `json:"old_value,omitempty"`
	NewValue      map[string]any `json:"new_value,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ToClockResponse converts a clock state for the wire.
func ToClockResponse(state slaclock.ClockState) ClockResponse {
	resp := ClockResponse{
		DueDates:         make(map[string]time.Time, len(state.DueDates)),
		FirstMilestoneAt: state.FirstMilestoneAt,
		ResolvedAt:       state.ResolvedAt,
		PausedAt:         state.PausedAt,
		PausedMs:         state.PausedMs,
	}
	for milestone, due := range state.DueDates {
		resp.DueDates[string(milestone)] = due
	}
	return resp
}

// ToTicketSummary converts a ticket for list responses.
func ToTicketSummary(t domain.Ticket) TicketSummary {
	summary := TicketSummary{
		ID:          t.ID,
		ExternalKey: t.ExternalKey,
		Title:       t.Title,
		Status:      t.Status,
		Priority:    t.Priority,
		AssigneeID:  t.AssigneeID,
		Tags:        t.Tags,
		SLA:         ToClockResponse(t.SLA),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.OLA != nil {
		ola := ToClockResponse(*t.OLA)
		summary.OLA = &ola
	}
	return summary
}

// ToTicketDetail converts a ticket with its message thread.
func ToTicketDetail(t *domain.Ticket, messages []domain.TicketMessage) TicketDetailResponse {
	resp := TicketDetailResponse{
		ID:          t.ID,
		ExternalKey: t.ExternalKey,
		TenantID:    t.TenantID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		AssigneeID:  t.AssigneeID,
		Tags:        t.Tags,
		SLA:         ToClockResponse(t.SLA),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		ClosedAt:    t.ClosedAt,
		Messages:    make([]TicketMessageResponse, 0, len(messages)),
	}
	if t.OLA != nil {
		ola := ToClockResponse(*t.OLA)
		resp.OLA = &ola
	}
	for _, msg := range messages {
		resp.Messages = append(resp.Messages, TicketMessageResponse{
			ID:          msg.ID,
			MessageType: msg.MessageType,
			AuthorType:  msg.AuthorType,
			AuthorID:    msg.AuthorID,
			Body:        msg.Body,
			CreatedAt:   msg.CreatedAt,
		})
	}
	return resp
}

// ToHistoryResponse converts an audit entry.
func ToHistoryResponse(entry domain.TicketHistory) TicketHistoryResponse {
	return TicketHistoryResponse{
		ID:            entry.ID,
		ChangeType:    string(entry.ChangeType),
		ChangedByType: string(entry.ChangedByType),
		ChangedByID:   entry.ChangedByID,
		OldValue:      entry.OldValue,
		NewValue:      entry.NewValue,
		CreatedAt:     entry.CreatedAt,
	}
}
