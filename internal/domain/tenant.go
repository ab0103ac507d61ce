package domain

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
)

// TenantPolicy holds a tenant's business calendar and SLA/OLA targets.
// It is read-only to the clock engine; edits happen elsewhere.
type TenantPolicy struct {
	TenantID string
	Calendar calendar.Config

	// SLA targets, business time from ticket creation.
	SLAResponse   time.Duration
	SLAResolution time.Duration

	// OLA targets, business time from first assignment. Zero values fall
	// back to the SLA targets.
	OLAOwn        time.Duration
	OLAResolution time.Duration

	CreatedAt time.Time
	UpdatedAt time.Time
}
