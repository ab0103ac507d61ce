package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// StaffHandler exposes staff auth, staff management and tenant policy
// endpoints.
type StaffHandler struct {
	auth      *service.AuthService
	staff     *service.StaffService
	calendars *service.CalendarService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(authService *service.AuthService, staffService *service.StaffService, calendarService *service.CalendarService) *StaffHandler {
	return &StaffHandler{auth: authService, staff: staffService, calendars: calendarService}
}

// Login handles POST /auth/staff/login.
func (h *StaffHandler) Login(c *fiber.Ctx) error {
	var req dto.StaffLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	member, token, exp, err := h.auth.LoginStaff(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"staff": dto.ToStaffResponse(member),
			"auth":  dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// ChangePassword handles POST /auth/password/change for users and staff.
func (h *StaffHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.PasswordChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("current_password and new_password required", nil)
	}

	subject := service.AuthSubject{Type: principal.SubjectType}
	switch {
	case principal.User != nil:
		subject.ID = principal.User.ID
	case principal.Staff != nil:
		subject.ID = principal.Staff.ID
	default:
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.auth.ChangePassword(c.Context(), subject, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"changed": true}})
}

// CreateStaff handles POST /staff/members.
func (h *StaffHandler) CreateStaff(c *fiber.Ctx) error {
	actor, err := staffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateStaffRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	member, err := h.staff.CreateStaff(c.Context(), actor, service.StaffCreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ToStaffResponse(member)})
}

// ListStaff handles GET /staff/members.
func (h *StaffHandler) ListStaff(c *fiber.Ctx) error {
	actor, err := staffFromContext(c)
	if err != nil {
		return err
	}
	var role *domain.StaffRole
	if raw := c.Query("role"); raw != "" {
		r := domain.StaffRole(strings.ToUpper(raw))
		role = &r
	}
	var active *bool
	switch c.Query("active") {
	case "true":
		v := true
		active = &v
	case "false":
		v := false
		active = &v
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)

	members, err := h.staff.ListStaff(c.Context(), actor, role, active, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.StaffResponse, 0, len(members))
	for i := range members {
		items = append(items, dto.ToStaffResponse(&members[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetStaff handles GET /staff/members/:id.
func (h *StaffHandler) GetStaff(c *fiber.Ctx) error {
	actor, err := staffFromContext(c)
	if err != nil {
		return err
	}
	member, err := h.staff.GetStaff(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToStaffResponse(member)})
}

// SetStaffActive handles PATCH /staff/members/:id/active.
func (h *StaffHandler) SetStaffActive(c *fiber.Ctx) error {
	actor, err := staffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.SetStaffActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	member, err := h.staff.SetStaffActive(c.Context(), actor, c.Params("id"), req.Active)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToStaffResponse(member)})
}

// GetTenantPolicy handles GET /staff/policy.
func (h *StaffHandler) GetTenantPolicy(c *fiber.Ctx) error {
	actor, err := staffFromContext(c)
	if err != nil {
		return err
	}
	policy, err := h.calendars.GetPolicy(c.Context(), actor.TenantID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToTenantPolicyResponse(policy)})
}

// UpdateTenantPolicy handles PUT /staff/policy. Tickets created before the
// update keep the due dates computed under the previous policy.
func (h *StaffHandler) UpdateTenantPolicy(c *fiber.Ctx) error {
	actor, err := staffFromContext(c)
	if err != nil {
		return err
	}
	if actor.Role != domain.StaffRoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	var req dto.TenantPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	workDays := make([]time.Weekday, 0, len(req.WorkDays))
	for _, day := range req.WorkDays {
		workDays = append(workDays, time.Weekday(day))
	}
	policy := &domain.TenantPolicy{
		TenantID: actor.TenantID,
		Calendar: calendar.Config{
			Timezone:   req.Timezone,
			WorkDays:   workDays,
			DailyStart: req.DailyStart,
			DailyEnd:   req.DailyEnd,
		},
		SLAResponse:   time.Duration(req.SLAResponseMin) * time.Minute,
		SLAResolution: time.Duration(req.SLAResolutionMin) * time.Minute,
		OLAOwn:        time.Duration(req.OLAOwnMin) * time.Minute,
		OLAResolution: time.Duration(req.OLAResolutionMin) * time.Minute,
	}
	if err := h.calendars.UpdatePolicy(c.Context(), policy); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToTenantPolicyResponse(policy)})
}
