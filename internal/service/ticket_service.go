package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/lifecycle"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/slaclock"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// TicketService coordinates ticket workflows around the SLA/OLA clock
// engine: every status, comment and assignment mutation loads the ticket's
// snapshot, lets the lifecycle engine compute the next state, and persists
// the result in a single row update.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	staff      repository.StaffRepository
	history    repository.TicketHistoryRepository
	calendars  *CalendarService
	dispatcher events.Dispatcher
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.TicketMessageRepository
	StaffRepo   repository.StaffRepository
	HistoryRepo repository.TicketHistoryRepository
	Calendars   *CalendarService
	Dispatcher  events.Dispatcher
	Now         func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	Tags        []string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		staff:      deps.StaffRepo,
		history:    deps.HistoryRepo,
		calendars:  deps.Calendars,
		dispatcher: deps.Dispatcher,
		now:        now,
	}
}

// CreateTicket creates a ticket and starts its SLA clock from the tenant's
// business calendar.
func (s *TicketService) CreateTicket(ctx context.Context, requester *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	policy, err := s.calendars.ResolvePolicy(ctx, requester.TenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		TenantID:    requester.TenantID,
		RequesterID: requester.ID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		Tags:        input.Tags,
		SLA:         lifecycle.CreateTicketClocks(now, policy.Calendar, policy.SLA),
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	payload := events.TicketCreatedPayload{
		TenantID: ticket.TenantID,
		Priority: ticket.Priority,
		Title:    ticket.Title,
	}
	if due, ok := ticket.SLA.DueAt(slaclock.MilestoneResponseDue); ok {
		payload.ResponseDue = &due
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    userActor(requester.ID),
		Payload:  payload,
	})
	return ticket, nil
}

// UpdateStatus applies an explicit status transition requested by staff.
func (s *TicketService) UpdateStatus(ctx context.Context, staff *domain.StaffMember, ticketID string, newStatus domain.TicketStatus, comment string) (*domain.Ticket, error) {
	if staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.staffCanAccessTicket(staff, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}

	policy, err := s.calendars.ResolvePolicy(ctx, ticket.TenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next, engineEvents, err := lifecycle.ApplyStatusTransition(snapshotOf(ticket), newStatus, now, policy.Calendar)
	if err != nil {
		return nil, err
	}

	oldStatus := ticket.Status
	applySnapshot(ticket, next, now)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if oldStatus != ticket.Status {
		if err := s.recordStatusChange(ctx, domain.AuthorTypeStaff, &staff.ID, ticket.ID, oldStatus, ticket.Status, comment); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	s.publishEngineEvents(ctx, staffActor(staff.ID), ticket, engineEvents, comment)
	return ticket, nil
}

// CloseTicketAsUser lets a requester close their own resolved or waiting
// ticket through the same transition path.
func (s *TicketService) CloseTicketAsUser(ctx context.Context, userID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.RequesterID != userID {
		return nil, apperrors.NewForbidden("access denied")
	}
	if ticket.Status != domain.TicketStatusResolved && ticket.Status != domain.TicketStatusWaitingCustomer {
		return nil, apperrors.NewConflict("ticket cannot be closed in current status",
			map[string]any{"status": ticket.Status})
	}

	policy, err := s.calendars.ResolvePolicy(ctx, ticket.TenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next, engineEvents, err := lifecycle.ApplyStatusTransition(snapshotOf(ticket), domain.TicketStatusClosed, now, policy.Calendar)
	if err != nil {
		return nil, err
	}

	oldStatus := ticket.Status
	applySnapshot(ticket, next, now)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.recordStatusChange(ctx, domain.AuthorTypeUser, &userID, ticket.ID, oldStatus, ticket.Status, "user_closed"); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEngineEvents(ctx, userActor(userID), ticket, engineEvents, "user_closed")
	return ticket, nil
}

// AddMessage appends a message to a ticket and lets the comment policy drive
// any status transition and clock pause/resume. The message is created only
// when the policy accepts the comment.
func (s *TicketService) AddMessage(ctx context.Context, actor domain.SubjectType, actorID string, staff *domain.StaffMember, ticketID string, messageType domain.TicketMessageType, body string) (*domain.TicketMessage, *domain.Ticket, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil, apperrors.NewValidationError("body required", nil)
	}
	if messageType != domain.MessageTypePublicReply && messageType != domain.MessageTypeInternalNote {
		return nil, nil, apperrors.NewValidationError("unknown message type", map[string]any{"message_type": messageType})
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}

	authorIsStaff := actor == domain.SubjectTypeStaff
	switch actor {
	case domain.SubjectTypeUser:
		if ticket.RequesterID != actorID {
			return nil, nil, apperrors.NewForbidden("access denied")
		}
	case domain.SubjectTypeStaff:
		if staff == nil {
			return nil, nil, apperrors.NewUnauthorized("staff context required")
		}
		if !s.staffCanAccessTicket(staff, ticket) {
			return nil, nil, apperrors.NewForbidden("access denied")
		}
	default:
		return nil, nil, apperrors.NewUnauthorized("unknown actor")
	}

	policy, err := s.calendars.ResolvePolicy(ctx, ticket.TenantID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	isInternal := messageType == domain.MessageTypeInternalNote
	next, engineEvents, err := lifecycle.ApplyCommentEvent(snapshotOf(ticket), authorIsStaff, isInternal, now, policy.Calendar)
	if err != nil {
		return nil, nil, err
	}

	msg := &domain.TicketMessage{
		TicketID:    ticket.ID,
		MessageType: messageType,
		Body:        body,
	}
	if authorIsStaff {
		msg.AuthorType = domain.AuthorTypeStaff
		msg.AuthorID = &staff.ID
	} else {
		msg.AuthorType = domain.AuthorTypeUser
		authorID := actorID
		msg.AuthorID = &authorID
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	oldStatus := ticket.Status
	applySnapshot(ticket, next, now)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	if oldStatus != ticket.Status {
		if err := s.recordStatusChange(ctx, msg.AuthorType, msg.AuthorID, ticket.ID, oldStatus, ticket.Status, "comment_policy"); err != nil {
			return nil, nil, apperrors.MapError(err)
		}
	}

	eventActor := actorFromSubject(actor, actorID)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		Actor:    eventActor,
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			MessageType: msg.MessageType,
			AuthorType:  msg.AuthorType,
			AuthorID:    msg.AuthorID,
			BodyPreview: stringPreview(msg.Body, 120),
		},
	})
	s.publishEngineEvents(ctx, eventActor, ticket, engineEvents, "comment_policy")
	return msg, ticket, nil
}

// AssignTicket assigns a ticket to an active staff member. The first
// assignment starts the OLA clock and promotes an OPEN ticket to
// IN_PROGRESS; reassignments only change the assignee.
func (s *TicketService) AssignTicket(ctx context.Context, actor *domain.StaffMember, ticketID, assigneeID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	if actor.Role != domain.StaffRoleTeamLead && actor.Role != domain.StaffRoleAdmin && actor.ID != assigneeID {
		return nil, apperrors.NewForbidden("insufficient role for assignment")
	}

	assignee, err := s.staff.GetByID(ctx, assigneeID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !assignee.Active {
		return nil, apperrors.NewValidationError("assignee is not an active staff member",
			map[string]any{"staff_id": assigneeID})
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.staffCanAccessTicket(actor, ticket) || assignee.TenantID != ticket.TenantID {
		return nil, apperrors.NewForbidden("access denied")
	}

	policy, err := s.calendars.ResolvePolicy(ctx, ticket.TenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	isFirst := ticket.OLA == nil
	next, engineEvents := lifecycle.ApplyAssignment(snapshotOf(ticket), isFirst, now, policy.Calendar, policy.OLA)

	oldAssignee := ticket.AssigneeID
	oldStatus := ticket.Status
	ticket.AssigneeID = &assignee.ID
	applySnapshot(ticket, next, now)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if err := s.recordAssigneeChange(ctx, actor.ID, ticket.ID, oldAssignee, ticket.AssigneeID); err != nil {
		return nil, apperrors.MapError(err)
	}
	if oldStatus != ticket.Status {
		if err := s.recordStatusChange(ctx, domain.AuthorTypeStaff, &actor.ID, ticket.ID, oldStatus, ticket.Status, "first_assignment"); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    staffActor(actor.ID),
		Payload: events.TicketAssignedPayload{
			AssigneeStaffID: ticket.AssigneeID,
			FirstAssignment: isFirst,
		},
	})
	s.publishEngineEvents(ctx, staffActor(actor.ID), ticket, engineEvents, "first_assignment")
	return ticket, nil
}

// UpdatePriority changes ticket priority by staff.
func (s *TicketService) UpdatePriority(ctx context.Context, staff *domain.StaffMember, ticketID string, newPriority domain.TicketPriority) (*domain.Ticket, error) {
	if staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	if !newPriority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": newPriority})
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.staffCanAccessTicket(staff, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	oldPriority := ticket.Priority
	ticket.Priority = newPriority
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.recordPriorityChange(ctx, &staff.ID, ticket.ID, oldPriority, newPriority); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		Actor:    staffActor(staff.ID),
		Payload: events.TicketPriorityChangedPayload{
			OldPriority: oldPriority,
			NewPriority: newPriority,
		},
	})
	return ticket, nil
}

// ListUserTickets returns paginated tickets for a requester.
func (s *TicketService) ListUserTickets(ctx context.Context, userID string, statuses []domain.TicketStatus, limit, offset int) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{
		RequesterID: &userID,
		Statuses:    statuses,
		Limit:       limit,
		Offset:      offset,
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetTicketForUser fetches a ticket ensuring ownership. Internal notes are
// filtered out of the returned thread.
func (s *TicketService) GetTicketForUser(ctx context.Context, userID, ticketID string) (*domain.Ticket, []domain.TicketMessage, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if ticket.RequesterID != userID {
		return nil, nil, apperrors.NewForbidden("access denied")
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	visible := make([]domain.TicketMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.MessageType == domain.MessageTypeInternalNote {
			continue
		}
		visible = append(visible, msg)
	}
	return ticket, visible, nil
}

// ListStaffTickets returns tickets in the staff member's tenant.
func (s *TicketService) ListStaffTickets(ctx context.Context, staff *domain.StaffMember, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	filter.TenantID = &staff.TenantID
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetTicketForStaff fetches ticket with the full message thread.
func (s *TicketService) GetTicketForStaff(ctx context.Context, staff *domain.StaffMember, ticketID string) (*domain.Ticket, []domain.TicketMessage, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if !s.staffCanAccessTicket(staff, ticket) {
		return nil, nil, apperrors.NewForbidden("access denied")
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, msgs, nil
}

// ListHistoryForStaff returns history entries for staff.
func (s *TicketService) ListHistoryForStaff(ctx context.Context, staff *domain.StaffMember, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.staffCanAccessTicket(staff, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	entries, err := s.history.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) staffCanAccessTicket(staff *domain.StaffMember, ticket *domain.Ticket) bool {
	return staff != nil && staff.TenantID == ticket.TenantID
}

// snapshotOf extracts the slice of the ticket the engine operates on.
func snapshotOf(ticket *domain.Ticket) lifecycle.Snapshot {
	return lifecycle.Snapshot{
		Status: ticket.Status,
		SLA:    ticket.SLA,
		OLA:    ticket.OLA,
	}
}

// applySnapshot writes the engine's result back onto the ticket.
func applySnapshot(ticket *domain.Ticket, snap lifecycle.Snapshot, now time.Time) {
	ticket.Status = snap.Status
	ticket.SLA = snap.SLA
	ticket.OLA = snap.OLA
	if snap.Status == domain.TicketStatusClosed {
		if ticket.ClosedAt == nil {
			closedAt := now
			ticket.ClosedAt = &closedAt
		}
	} else {
		ticket.ClosedAt = nil
	}
}

func (s *TicketService) publishEngineEvents(ctx context.Context, actor events.Actor, ticket *domain.Ticket, engineEvents []lifecycle.Event, comment string) {
	for _, ev := range engineEvents {
		switch ev.Kind {
		case lifecycle.EventStatusChanged:
			s.publishEvent(ctx, events.Event{
				Type:     events.EventTicketStatusChanged,
				TicketID: ticket.ID,
				Actor:    actor,
				Payload: events.TicketStatusChangedPayload{
					OldStatus: ev.From,
					NewStatus: ev.To,
					Comment:   comment,
				},
			})
		case lifecycle.EventFirstResponseRecorded:
			s.publishEvent(ctx, events.Event{
				Type:     events.EventFirstResponseRecorded,
				TicketID: ticket.ID,
				Actor:    actor,
				Payload:  events.FirstResponsePayload{RespondedAt: ev.At},
			})
		case lifecycle.EventResolved:
			s.publishEvent(ctx, events.Event{
				Type:     events.EventTicketResolved,
				TicketID: ticket.ID,
				Actor:    actor,
				Payload:  events.TicketResolvedPayload{ResolvedAt: ev.At},
			})
		case lifecycle.EventReopened:
			s.publishEvent(ctx, events.Event{
				Type:     events.EventTicketReopened,
				TicketID: ticket.ID,
				Actor:    actor,
				Payload:  events.TicketReopenedPayload{ReopenedAt: ev.At},
			})
		case lifecycle.EventOLAStarted:
			payload := events.OLAStartedPayload{OwnedAt: ev.At}
			if ticket.OLA != nil {
				if due, ok := ticket.OLA.DueAt(slaclock.MilestoneOwnDue); ok {
					payload.OwnDue = &due
				}
			}
			s.publishEvent(ctx, events.Event{
				Type:     events.EventOLAStarted,
				TicketID: ticket.ID,
				Actor:    actor,
				Payload:  payload,
			})
		}
	}
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func userActor(userID string) events.Actor {
	return events.Actor{
		Type:   domain.SubjectTypeUser,
		UserID: &userID,
	}
}

func staffActor(staffID string) events.Actor {
	return events.Actor{
		Type:    domain.SubjectTypeStaff,
		StaffID: &staffID,
	}
}

func actorFromSubject(subject domain.SubjectType, id string) events.Actor {
	switch subject {
	case domain.SubjectTypeStaff:
		return staffActor(id)
	default:
		return userActor(id)
	}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func (s *TicketService) recordStatusChange(ctx context.Context, actorType domain.MessageAuthorType, actorID *string, ticketID string, oldStatus, newStatus domain.TicketStatus, comment string) error {
	if s.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: actorType,
		ChangedByID:   actorID,
		ChangeType:    domain.ChangeTypeStatus,
		OldValue: map[string]any{
			"status": oldStatus,
		},
		NewValue: map[string]any{
			"status":  newStatus,
			"comment": comment,
		},
	}
	return s.history.Create(ctx, entry)
}

func (s *TicketService) recordAssigneeChange(ctx context.Context, actorID string, ticketID string, oldAssignee, newAssignee *string) error {
	if s.history == nil {
		return nil
	}
	return s.history.Create(ctx, &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: domain.AuthorTypeStaff,
		ChangedByID:   &actorID,
		ChangeType:    domain.ChangeTypeAssignee,
		OldValue: map[string]any{
			"assignee_staff_id": oldAssignee,
		},
		NewValue: map[string]any{
			"assignee_staff_id": newAssignee,
		},
	})
}

func (s *TicketService) recordPriorityChange(ctx context.Context, actorID *string, ticketID string, oldPriority, newPriority domain.TicketPriority) error {
	if s.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: domain.AuthorTypeStaff,
		ChangedByID:   actorID,
		ChangeType:    domain.ChangeTypePriority,
		OldValue: map[string]any{
			"priority": oldPriority,
		},
		NewValue: map[string]any{
			"priority": newPriority,
		},
	}
	return s.history.Create(ctx, entry)
}
