package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordChangeRequest payload for authenticated password changes.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// CreateStaffRequest payload for admin staff creation.
type CreateStaffRequest struct {
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Password string           `json:"password"`
	Role     domain.StaffRole `json:"role"`
}

// SetStaffActiveRequest payload.
type SetStaffActiveRequest struct {
	Active bool `json:"active"`
}

// StaffResponse describes a staff member.
type StaffResponse struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"tenant_id"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Role      domain.StaffRole `json:"role"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"created_at"`
}

// TenantPolicyRequest payload for updating a tenant's calendar and targets.
type TenantPolicyRequest struct {
	Timezone         string `json:"timezone"`
	WorkDays         []int  `json:"work_days"`
	DailyStart       string `json:"daily_start"`
	DailyEnd         string `json:"daily_end"`
	SLAResponseMin   int    `json:"sla_response_minutes"`
	SLAResolutionMin int    `json:"sla_resolution_minutes"`
	OLAOwnMin        int    `json:"ola_own_minutes"`
	OLAResolutionMin int    `json:"ola_resolution_minutes"`
}

// TenantPolicyResponse mirrors the stored policy.
type TenantPolicyResponse struct {
	TenantID         string    `json:"tenant_id"`
	Timezone         string    `json:"timezone"`
	WorkDays         []int     `json:"work_days"`
	DailyStart       string    `json:"daily_start"`
	DailyEnd         string    `json:"daily_end"`
	SLAResponseMin   int       `json:"sla_response_minutes"`
	SLAResolutionMin int       `json:"sla_resolution_minutes"`
	OLAOwnMin        int       `json:"ola_own_minutes"`
	OLAResolutionMin int       `json:"ola_resolution_minutes"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ToStaffResponse converts a staff member.
func ToStaffResponse(member *domain.StaffMember) StaffResponse {
	return StaffResponse{
		ID:        member.ID,
		TenantID:  member.TenantID,
		Name:      member.Name,
		Email:     member.Email,
		Role:      member.Role,
		Active:    member.Active,
		CreatedAt: member.CreatedAt,
	}
}

// ToTenantPolicyResponse converts a stored policy.
func ToTenantPolicyResponse(policy *domain.TenantPolicy) TenantPolicyResponse {
	workDays := make([]int, 0, len(policy.Calendar.WorkDays))
	for _, day := range policy.Calendar.WorkDays {
		workDays = append(workDays, int(day))
	}
	return TenantPolicyResponse{
		TenantID:         policy.TenantID,
		Timezone:         policy.Calendar.Timezone,
		WorkDays:         workDays,
		DailyStart:       policy.Calendar.DailyStart,
		DailyEnd:         policy.Calendar.DailyEnd,
		SLAResponseMin:   int(policy.SLAResponse / time.Minute),
		SLAResolutionMin: int(policy.SLAResolution / time.Minute),
		OLAOwnMin:        int(policy.OLAOwn / time.Minute),
		OLAResolutionMin: int(policy.OLAResolution / time.Minute),
		UpdatedAt:        policy.UpdatedAt,
	}
}
