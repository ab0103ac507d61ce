package service

import (
	"context"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/slaclock"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

type fakeTicketRepo struct {
	tickets map[string]domain.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]domain.Ticket)}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := ticket
	return &copied, nil
}

func (r *fakeTicketRepo) GetByExternalKey(_ context.Context, key string) (*domain.Ticket, error) {
	for _, ticket := range r.tickets {
		if ticket.ExternalKey == key {
			copied := ticket
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.TenantID != nil && ticket.TenantID != *filter.TenantID {
			continue
		}
		result = append(result, ticket)
	}
	return result, nil
}

type fakeMessageRepo struct {
	messages []domain.TicketMessage
}

func (r *fakeMessageRepo) Create(_ context.Context, message *domain.TicketMessage) error {
	message.ID = uuid.NewString()
	message.CreatedAt = time.Now()
	r.messages = append(r.messages, *message)
	return nil
}

func (r *fakeMessageRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketMessage, error) {
	var result []domain.TicketMessage
	for _, msg := range r.messages {
		if msg.TicketID == ticketID {
			result = append(result, msg)
		}
	}
	return result, nil
}

type fakeStaffRepo struct {
	members map[string]domain.StaffMember
}

func (r *fakeStaffRepo) Create(_ context.Context, member *domain.StaffMember) error {
	member.ID = uuid.NewString()
	r.members[member.ID] = *member
	return nil
}

func (r *fakeStaffRepo) Update(_ context.Context, member *domain.StaffMember) error {
	if _, ok := r.members[member.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.members[member.ID] = *member
	return nil
}

func (r *fakeStaffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	member, ok := r.members[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := member
	return &copied, nil
}

func (r *fakeStaffRepo) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	for _, member := range r.members {
		if member.Email == email {
			copied := member
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeStaffRepo) List(_ context.Context, _ repository.StaffFilter) ([]domain.StaffMember, error) {
	var result []domain.StaffMember
	for _, member := range r.members {
		result = append(result, member)
	}
	return result, nil
}

type fakeHistoryRepo struct {
	entries []domain.TicketHistory
}

func (r *fakeHistoryRepo) Create(_ context.Context, entry *domain.TicketHistory) error {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeHistoryRepo) ListByTicket(_ context.Context, ticketID string, _, _ int) ([]domain.TicketHistory, error) {
	var result []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type fakePolicyRepo struct{}

func (fakePolicyRepo) GetByTenant(_ context.Context, _ string) (*domain.TenantPolicy, error) {
	return nil, pgx.ErrNoRows
}

func (fakePolicyRepo) Upsert(_ context.Context, _ *domain.TenantPolicy) error {
	return nil
}

type capturingDispatcher struct {
	published []events.Event
}

func (d *capturingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.published = append(d.published, event)
	return nil
}

func (d *capturingDispatcher) Subscribe(_ events.EventType, _ events.EventHandler) {}

func (d *capturingDispatcher) types() []events.EventType {
	types := make([]events.EventType, 0, len(d.published))
	for _, ev := range d.published {
		types = append(types, ev.Type)
	}
	return types
}

type ticketServiceFixture struct {
	service    *TicketService
	tickets    *fakeTicketRepo
	messages   *fakeMessageRepo
	staff      *fakeStaffRepo
	history    *fakeHistoryRepo
	dispatcher *capturingDispatcher
	now        time.Time
}

func defaultSLAConfig() config.SLAConfig {
	return config.SLAConfig{
		DefaultTimezone:          "UTC",
		DefaultWorkDays:          []int{1, 2, 3, 4, 5},
		DefaultDailyStart:        "09:00",
		DefaultDailyEnd:          "18:00",
		DefaultResponseMinutes:   240,
		DefaultResolutionMinutes: 1440,
		DefaultOwnMinutes:        120,
	}
}

func newTicketServiceFixture(t *testing.T) *ticketServiceFixture {
	t.Helper()
	f := &ticketServiceFixture{
		tickets:    newFakeTicketRepo(),
		messages:   &fakeMessageRepo{},
		staff:      &fakeStaffRepo{members: make(map[string]domain.StaffMember)},
		history:    &fakeHistoryRepo{},
		dispatcher: &capturingDispatcher{},
	}
	// Monday 09:00.
	f.now = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

	calendars := NewCalendarService(defaultSLAConfig(), fakePolicyRepo{}, nil, zap.NewNop())
	f.service = NewTicketService(TicketDependencies{
		TicketRepo:  f.tickets,
		MessageRepo: f.messages,
		StaffRepo:   f.staff,
		HistoryRepo: f.history,
		Calendars:   calendars,
		Dispatcher:  f.dispatcher,
		Now:         func() time.Time { return f.now },
	})
	return f
}

func (f *ticketServiceFixture) requester() *domain.User {
	return &domain.User{ID: uuid.NewString(), TenantID: "acme", Name: "Pat", Email: "pat@example.com"}
}

func (f *ticketServiceFixture) addStaff(t *testing.T, role domain.StaffRole, active bool) *domain.StaffMember {
	t.Helper()
	member := &domain.StaffMember{TenantID: "acme", Name: "Agent", Email: uuid.NewString() + "@acme.test", Role: role, Active: active}
	if err := f.staff.Create(context.Background(), member); err != nil {
		t.Fatalf("staff create: %v", err)
	}
	return member
}

func TestCreateTicketStartsSLAClock(t *testing.T) {
	f := newTicketServiceFixture(t)
	requester := f.requester()

	ticket, err := f.service.CreateTicket(context.Background(), requester, TicketCreateInput{
		Title:       "Printer on fire",
		Description: "It is literally on fire.",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("status %v", ticket.Status)
	}
	if ticket.Priority != domain.TicketPriorityMedium {
		t.Fatalf("priority %v", ticket.Priority)
	}
	if ticket.ExternalKey == "" || ticket.ID == "" {
		t.Fatal("missing identifiers")
	}

	// Default targets: four business hours to respond, twenty-four to resolve.
	wantResponse := time.Date(2024, time.March, 4, 13, 0, 0, 0, time.UTC)
	if due, _ := ticket.SLA.DueAt(slaclock.MilestoneResponseDue); !due.Equal(wantResponse) {
		t.Fatalf("response due %v", due)
	}
	wantResolution := time.Date(2024, time.March, 6, 15, 0, 0, 0, time.UTC)
	if due, _ := ticket.SLA.DueAt(slaclock.MilestoneResolutionDue); !due.Equal(wantResolution) {
		t.Fatalf("resolution due %v", due)
	}
	if ticket.OLA != nil {
		t.Fatal("ola started before first assignment")
	}

	types := f.dispatcher.types()
	if len(types) != 1 || types[0] != events.EventTicketCreated {
		t.Fatalf("events %v", types)
	}
}

func TestCreateTicketRejectsEmptyTitle(t *testing.T) {
	f := newTicketServiceFixture(t)
	_, err := f.service.CreateTicket(context.Background(), f.requester(), TicketCreateInput{Title: "   "})
	if !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestAssignTicketFirstAssignment(t *testing.T) {
	f := newTicketServiceFixture(t)
	requester := f.requester()
	lead := f.addStaff(t, domain.StaffRoleTeamLead, true)
	agent := f.addStaff(t, domain.StaffRoleAgent, true)

	ticket, err := f.service.CreateTicket(context.Background(), requester, TicketCreateInput{Title: "VPN down"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	f.now = f.now.Add(time.Hour) // Monday 10:00
	assigned, err := f.service.AssignTicket(context.Background(), lead, ticket.ID, agent.ID)
	if err != nil {
		t.Fatalf("AssignTicket: %v", err)
	}

	if assigned.Status != domain.TicketStatusInProgress {
		t.Fatalf("status %v", assigned.Status)
	}
	if assigned.AssigneeID == nil || *assigned.AssigneeID != agent.ID {
		t.Fatalf("assignee %v", assigned.AssigneeID)
	}
	if assigned.OLA == nil {
		t.Fatal("ola not started")
	}
	wantOwn := time.Date(2024, time.March, 4, 12, 0, 0, 0, time.UTC)
	if due, _ := assigned.OLA.DueAt(slaclock.MilestoneOwnDue); !due.Equal(wantOwn) {
		t.Fatalf("own due %v", due)
	}

	// Reassignment keeps the existing OLA clock.
	other := f.addStaff(t, domain.StaffRoleAgent, true)
	f.now = f.now.Add(2 * time.Hour)
	reassigned, err := f.service.AssignTicket(context.Background(), lead, ticket.ID, other.ID)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if due, _ := reassigned.OLA.DueAt(slaclock.MilestoneOwnDue); !due.Equal(wantOwn) {
		t.Fatalf("own due moved to %v", due)
	}
}

func TestAssignTicketRejectsInactiveAssignee(t *testing.T) {
	f := newTicketServiceFixture(t)
	lead := f.addStaff(t, domain.StaffRoleTeamLead, true)
	inactive := f.addStaff(t, domain.StaffRoleAgent, false)

	ticket, err := f.service.CreateTicket(context.Background(), f.requester(), TicketCreateInput{Title: "Broken build"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	_, err = f.service.AssignTicket(context.Background(), lead, ticket.ID, inactive.ID)
	if !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestAgentCannotAssignToOthers(t *testing.T) {
	f := newTicketServiceFixture(t)
	agent := f.addStaff(t, domain.StaffRoleAgent, true)
	other := f.addStaff(t, domain.StaffRoleAgent, true)

	ticket, err := f.service.CreateTicket(context.Background(), f.requester(), TicketCreateInput{Title: "Slow wifi"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if _, err := f.service.AssignTicket(context.Background(), agent, ticket.ID, other.ID); !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
	// Self-assignment is allowed for agents.
	if _, err := f.service.AssignTicket(context.Background(), agent, ticket.ID, agent.ID); err != nil {
		t.Fatalf("self-assign: %v", err)
	}
}

func TestAddMessageCommentFlow(t *testing.T) {
	f := newTicketServiceFixture(t)
	requester := f.requester()
	agent := f.addStaff(t, domain.StaffRoleAgent, true)

	ticket, err := f.service.CreateTicket(context.Background(), requester, TicketCreateInput{Title: "Login loop"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if _, err := f.service.AssignTicket(context.Background(), agent, ticket.ID, agent.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Staff public reply at Monday 10:00 pauses the clocks.
	f.now = time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)
	_, updated, err := f.service.AddMessage(context.Background(), domain.SubjectTypeStaff, agent.ID, agent, ticket.ID, domain.MessageTypePublicReply, "Try clearing cookies")
	if err != nil {
		t.Fatalf("staff reply: %v", err)
	}
	if updated.Status != domain.TicketStatusWaitingCustomer || !updated.SLA.Paused() {
		t.Fatalf("after staff reply: status=%v paused=%v", updated.Status, updated.SLA.Paused())
	}
	if updated.SLA.FirstMilestoneAt == nil {
		t.Fatal("first response not recorded")
	}

	// Client reply three business hours later resumes and shifts deadlines.
	f.now = time.Date(2024, time.March, 4, 13, 0, 0, 0, time.UTC)
	_, updated, err = f.service.AddMessage(context.Background(), domain.SubjectTypeUser, requester.ID, nil, ticket.ID, domain.MessageTypePublicReply, "Did not help")
	if err != nil {
		t.Fatalf("client reply: %v", err)
	}
	if updated.Status != domain.TicketStatusInProgress || updated.SLA.Paused() {
		t.Fatalf("after client reply: status=%v paused=%v", updated.Status, updated.SLA.Paused())
	}
	wantResponse := time.Date(2024, time.March, 4, 16, 0, 0, 0, time.UTC)
	if due, _ := updated.SLA.DueAt(slaclock.MilestoneResponseDue); !due.Equal(wantResponse) {
		t.Fatalf("response due %v", due)
	}
	if want := (3 * time.Hour).Milliseconds(); updated.SLA.PausedMs != want {
		t.Fatalf("paused_ms = %d, want %d", updated.SLA.PausedMs, want)
	}
}

func TestAddMessageInternalNoteByUserForbidden(t *testing.T) {
	f := newTicketServiceFixture(t)
	requester := f.requester()
	ticket, err := f.service.CreateTicket(context.Background(), requester, TicketCreateInput{Title: "Feature request"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	_, _, err = f.service.AddMessage(context.Background(), domain.SubjectTypeUser, requester.ID, nil, ticket.ID, domain.MessageTypeInternalNote, "sneaky")
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestAddMessageOnClosedTicketConflicts(t *testing.T) {
	f := newTicketServiceFixture(t)
	requester := f.requester()
	agent := f.addStaff(t, domain.StaffRoleAgent, true)

	ticket, err := f.service.CreateTicket(context.Background(), requester, TicketCreateInput{Title: "Stuck job"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if _, err := f.service.UpdateStatus(context.Background(), agent, ticket.ID, domain.TicketStatusClosed, "done"); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, _, err = f.service.AddMessage(context.Background(), domain.SubjectTypeStaff, agent.ID, agent, ticket.ID, domain.MessageTypePublicReply, "too late")
	if !apperrors.IsCode(err, "CONFLICT") {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
	// The rejected comment must not be stored.
	msgs, _ := f.messages.ListByTicket(context.Background(), ticket.ID)
	if len(msgs) != 0 {
		t.Fatalf("stored %d messages on closed ticket", len(msgs))
	}
}

func TestUpdateStatusResolveAndReopen(t *testing.T) {
	f := newTicketServiceFixture(t)
	requester := f.requester()
	agent := f.addStaff(t, domain.StaffRoleAgent, true)

	ticket, err := f.service.CreateTicket(context.Background(), requester, TicketCreateInput{Title: "Kernel panic"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	f.now = f.now.Add(2 * time.Hour)
	resolved, err := f.service.UpdateStatus(context.Background(), agent, ticket.ID, domain.TicketStatusResolved, "rebooted")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.SLA.ResolvedAt == nil {
		t.Fatal("resolved_at not set")
	}

	f.now = f.now.Add(time.Hour)
	reopened, err := f.service.UpdateStatus(context.Background(), agent, ticket.ID, domain.TicketStatusInProgress, "happened again")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.SLA.ResolvedAt != nil {
		t.Fatal("resolved_at survived reopen")
	}

	var kinds []events.EventType
	for _, ev := range f.dispatcher.published {
		kinds = append(kinds, ev.Type)
	}
	want := map[events.EventType]bool{
		events.EventTicketResolved: false,
		events.EventTicketReopened: false,
	}
	for _, kind := range kinds {
		if _, ok := want[kind]; ok {
			want[kind] = true
		}
	}
	for kind, seen := range want {
		if !seen {
			t.Errorf("event %s not published", kind)
		}
	}
}

func TestCloseTicketAsUser(t *testing.T) {
	f := newTicketServiceFixture(t)
	requester := f.requester()
	agent := f.addStaff(t, domain.StaffRoleAgent, true)

	ticket, err := f.service.CreateTicket(context.Background(), requester, TicketCreateInput{Title: "Monitor flicker"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	// Cannot close while still open.
	if _, err := f.service.CloseTicketAsUser(context.Background(), requester.ID, ticket.ID); !apperrors.IsCode(err, "CONFLICT") {
		t.Fatalf("expected CONFLICT, got %v", err)
	}

	if _, err := f.service.UpdateStatus(context.Background(), agent, ticket.ID, domain.TicketStatusResolved, ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	closed, err := f.service.CloseTicketAsUser(context.Background(), requester.ID, ticket.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.TicketStatusClosed || closed.ClosedAt == nil {
		t.Fatalf("close result: %+v", closed.Status)
	}

	// Only the requester may close.
	other := f.requester()
	ticket2, err := f.service.CreateTicket(context.Background(), other, TicketCreateInput{Title: "Another"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if _, err := f.service.CloseTicketAsUser(context.Background(), requester.ID, ticket2.ID); !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestGetTicketForUserHidesInternalNotes(t *testing.T) {
	f := newTicketServiceFixture(t)
	requester := f.requester()
	agent := f.addStaff(t, domain.StaffRoleAgent, true)

	ticket, err := f.service.CreateTicket(context.Background(), requester, TicketCreateInput{Title: "Billing question"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if _, _, err := f.service.AddMessage(context.Background(), domain.SubjectTypeStaff, agent.ID, agent, ticket.ID, domain.MessageTypeInternalNote, "customer is on legacy plan"); err != nil {
		t.Fatalf("internal note: %v", err)
	}
	if _, _, err := f.service.AddMessage(context.Background(), domain.SubjectTypeUser, requester.ID, nil, ticket.ID, domain.MessageTypePublicReply, "any update?"); err != nil {
		t.Fatalf("public reply: %v", err)
	}

	_, userVisible, err := f.service.GetTicketForUser(context.Background(), requester.ID, ticket.ID)
	if err != nil {
		t.Fatalf("GetTicketForUser: %v", err)
	}
	if len(userVisible) != 1 || userVisible[0].MessageType != domain.MessageTypePublicReply {
		t.Fatalf("user sees %d messages", len(userVisible))
	}

	_, staffVisible, err := f.service.GetTicketForStaff(context.Background(), agent, ticket.ID)
	if err != nil {
		t.Fatalf("GetTicketForStaff: %v", err)
	}
	if len(staffVisible) != 2 {
		t.Fatalf("staff sees %d messages", len(staffVisible))
	}
}

func TestTenantIsolation(t *testing.T) {
	f := newTicketServiceFixture(t)
	requester := f.requester()
	outsider := &domain.StaffMember{TenantID: "globex", Name: "Spy", Email: "spy@globex.test", Role: domain.StaffRoleAdmin, Active: true}
	if err := f.staff.Create(context.Background(), outsider); err != nil {
		t.Fatalf("staff create: %v", err)
	}

	ticket, err := f.service.CreateTicket(context.Background(), requester, TicketCreateInput{Title: "Secret"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if _, _, err := f.service.GetTicketForStaff(context.Background(), outsider, ticket.ID); !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
	if _, err := f.service.UpdateStatus(context.Background(), outsider, ticket.ID, domain.TicketStatusClosed, ""); !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestStringPreviewKeepsRunesIntact(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short body unchanged", "hello", 10, "hello"},
		{"trims whitespace", "  hello  ", 10, "hello"},
		{"ascii truncation", "abcdefghij", 8, "abcde..."},
		{"multibyte body not split", "ведётся расследование", 10, "ведётся..."},
		{"tiny budget", "héllo", 2, "hé"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := stringPreview(tc.in, tc.max)
			if got != tc.want {
				t.Fatalf("stringPreview(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("preview %q is not valid UTF-8", got)
			}
		})
	}
}
