package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// TenantPolicyRepository loads per-tenant business calendars and SLA targets.
type TenantPolicyRepository interface {
	GetByTenant(ctx context.Context, tenantID string) (*domain.TenantPolicy, error)
	Upsert(ctx context.Context, policy *domain.TenantPolicy) error
}

type tenantPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewTenantPolicyRepository instantiates the repository.
func NewTenantPolicyRepository(pool *pgxpool.Pool) TenantPolicyRepository {
	return &tenantPolicyRepository{pool: pool}
}

func (r *tenantPolicyRepository) GetByTenant(ctx context.Context, tenantID string) (*domain.TenantPolicy, error) {
	const query = `
        SELECT tenant_id, timezone, work_days, daily_start, daily_end,
               sla_response_minutes, sla_resolution_minutes,
               ola_own_minutes, ola_resolution_minutes,
               created_at, updated_at
        FROM tenant_policies WHERE tenant_id=$1`

	var (
		policy      domain.TenantPolicy
		workDays    []int32
		slaResponse int32
		slaResolve  int32
		olaOwn      int32
		olaResolve  int32
	)
	if err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&policy.TenantID,
		&policy.Calendar.Timezone,
		&workDays,
		&policy.Calendar.DailyStart,
		&policy.Calendar.DailyEnd,
		&slaResponse,
		&slaResolve,
		&olaOwn,
		&olaResolve,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}

	policy.Calendar.WorkDays = toWeekdays(workDays)
	policy.SLAResponse = time.Duration(slaResponse) * time.Minute
	policy.SLAResolution = time.Duration(slaResolve) * time.Minute
	policy.OLAOwn = time.Duration(olaOwn) * time.Minute
	policy.OLAResolution = time.Duration(olaResolve) * time.Minute
	return &policy, nil
}

func (r *tenantPolicyRepository) Upsert(ctx context.Context, policy *domain.TenantPolicy) error {
	const query = `
        INSERT INTO tenant_policies (tenant_id, timezone, work_days, daily_start, daily_end,
            sla_response_minutes, sla_resolution_minutes, ola_own_minutes, ola_resolution_minutes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (tenant_id) DO UPDATE SET
            timezone=EXCLUDED.timezone,
            work_days=EXCLUDED.work_days,
            daily_start=EXCLUDED.daily_start,
            daily_end=EXCLUDED.daily_end,
            sla_response_minutes=EXCLUDED.sla_response_minutes,
            sla_resolution_minutes=EXCLUDED.sla_resolution_minutes,
            ola_own_minutes=EXCLUDED.ola_own_minutes,
            ola_resolution_minutes=EXCLUDED.ola_resolution_minutes,
            updated_at=NOW()
        RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		policy.TenantID,
		policy.Calendar.Timezone,
		fromWeekdays(policy.Calendar.WorkDays),
		policy.Calendar.DailyStart,
		policy.Calendar.DailyEnd,
		int32(policy.SLAResponse/time.Minute),
		int32(policy.SLAResolution/time.Minute),
		int32(policy.OLAOwn/time.Minute),
		int32(policy.OLAResolution/time.Minute),
	).Scan(&policy.CreatedAt, &policy.UpdatedAt)
}

func toWeekdays(raw []int32) []time.Weekday {
	days := make([]time.Weekday, 0, len(raw))
	for _, day := range raw {
		days = append(days, time.Weekday(day))
	}
	return days
}

func fromWeekdays(days []time.Weekday) []int32 {
	raw := make([]int32, 0, len(days))
	for _, day := range days {
		raw = append(raw, int32(day))
	}
	return raw
}
