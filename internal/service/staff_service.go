package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// StaffService manages staff members within a tenant.
type StaffService struct {
	staff      repository.StaffRepository
	bcryptCost int
}

// StaffCreateInput describes a new staff account.
type StaffCreateInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.StaffRole
}

// NewStaffService constructs the service.
func NewStaffService(cfg config.Config, staffRepo repository.StaffRepository) *StaffService {
	return &StaffService{
		staff:      staffRepo,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

func requireAdmin(actor *domain.StaffMember) error {
	if actor == nil || actor.Role != domain.StaffRoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// CreateStaff registers a staff member in the actor's tenant.
func (s *StaffService) CreateStaff(ctx context.Context, actor *domain.StaffMember, input StaffCreateInput) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if name == "" || email == "" {
		return nil, apperrors.NewValidationError("name and email required", nil)
	}
	role := input.Role
	if role == "" {
		role = domain.StaffRoleAgent
	}
	switch role {
	case domain.StaffRoleAgent, domain.StaffRoleTeamLead, domain.StaffRoleAdmin:
	default:
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": role})
	}

	if _, err := s.staff.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	member := &domain.StaffMember{
		TenantID:     actor.TenantID,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.staff.Create(ctx, member); err != nil {
		return nil, apperrors.MapError(err)
	}
	return member, nil
}

// ListStaff returns staff in the actor's tenant.
func (s *StaffService) ListStaff(ctx context.Context, actor *domain.StaffMember, role *domain.StaffRole, active *bool, limit, offset int) ([]domain.StaffMember, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	filter := repository.StaffFilter{
		TenantID: &actor.TenantID,
		Role:     role,
		Active:   active,
		Limit:    limit,
		Offset:   offset,
	}
	members, err := s.staff.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return members, nil
}

// GetStaff fetches a tenant-local staff member.
func (s *StaffService) GetStaff(ctx context.Context, actor *domain.StaffMember, id string) (*domain.StaffMember, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	member, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if member.TenantID != actor.TenantID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return member, nil
}

// SetStaffActive toggles a staff account. Deactivated staff keep their
// ticket assignments but cannot log in or receive new ones.
func (s *StaffService) SetStaffActive(ctx context.Context, actor *domain.StaffMember, id string, active bool) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	member, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if member.TenantID != actor.TenantID {
		return nil, apperrors.NewForbidden("access denied")
	}
	member.Active = active
	if err := s.staff.Update(ctx, member); err != nil {
		return nil, apperrors.MapError(err)
	}
	return member, nil
}
