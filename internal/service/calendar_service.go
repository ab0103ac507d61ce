package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/persistence"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/slaclock"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

const policyCachePrefix = "tenant_policy:"

// TenantClockPolicy is a tenant policy resolved into a validated calendar and
// ready-to-use clock durations.
type TenantClockPolicy struct {
	Calendar *calendar.Calendar
	SLA      slaclock.Durations
	OLA      slaclock.Durations
}

// CalendarService resolves tenant business calendars and SLA/OLA targets,
// with a redis read-through cache in front of postgres. Tenants without a
// policy row fall back to the service-wide defaults.
type CalendarService struct {
	policies repository.TenantPolicyRepository
	cache    *persistence.Redis
	logger   *zap.Logger
	ttl      time.Duration
	defaults config.SLAConfig
}

// NewCalendarService constructs the service.
func NewCalendarService(cfg config.SLAConfig, policies repository.TenantPolicyRepository, cache *persistence.Redis, logger *zap.Logger) *CalendarService {
	return &CalendarService{
		policies: policies,
		cache:    cache,
		logger:   logger,
		ttl:      cfg.CalendarCacheTTL(),
		defaults: cfg,
	}
}

// ResolvePolicy loads the tenant's policy, validates the calendar and derives
// the SLA and OLA durations (OLA targets fall back to the SLA ones when
// unset). Calendar misconfiguration surfaces as CALENDAR_INVALID.
func (s *CalendarService) ResolvePolicy(ctx context.Context, tenantID string) (*TenantClockPolicy, error) {
	policy, err := s.loadPolicy(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	cal, err := calendar.New(policy.Calendar)
	if err != nil {
		return nil, err
	}

	sla := slaclock.Durations{
		slaclock.MilestoneResponseDue:   policy.SLAResponse,
		slaclock.MilestoneResolutionDue: policy.SLAResolution,
	}
	own := policy.OLAOwn
	if own <= 0 {
		own = policy.SLAResponse
	}
	olaResolution := policy.OLAResolution
	if olaResolution <= 0 {
		olaResolution = policy.SLAResolution
	}
	ola := slaclock.Durations{
		slaclock.MilestoneOwnDue:        own,
		slaclock.MilestoneResolutionDue: olaResolution,
	}

	return &TenantClockPolicy{Calendar: cal, SLA: sla, OLA: ola}, nil
}

// UpdatePolicy validates and persists a tenant policy, then drops the cache
// entry so the next resolution sees the new configuration.
func (s *CalendarService) UpdatePolicy(ctx context.Context, policy *domain.TenantPolicy) error {
	if _, err := calendar.New(policy.Calendar); err != nil {
		return err
	}
	if policy.SLAResponse <= 0 || policy.SLAResolution <= 0 {
		return apperrors.NewValidationError("sla targets must be positive", nil)
	}
	if err := s.policies.Upsert(ctx, policy); err != nil {
		return apperrors.MapError(err)
	}
	s.invalidate(ctx, policy.TenantID)
	return nil
}

// GetPolicy returns the tenant's stored policy, falling back to the
// service-wide defaults when none has been configured.
func (s *CalendarService) GetPolicy(ctx context.Context, tenantID string) (*domain.TenantPolicy, error) {
	return s.loadPolicy(ctx, tenantID)
}

func (s *CalendarService) loadPolicy(ctx context.Context, tenantID string) (*domain.TenantPolicy, error) {
	if cached := s.fromCache(ctx, tenantID); cached != nil {
		return cached, nil
	}

	policy, err := s.policies.GetByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			policy = s.defaultPolicy(tenantID)
		} else {
			return nil, apperrors.MapError(err)
		}
	}

	s.toCache(ctx, tenantID, policy)
	return policy, nil
}

func (s *CalendarService) defaultPolicy(tenantID string) *domain.TenantPolicy {
	workDays := make([]time.Weekday, 0, len(s.defaults.DefaultWorkDays))
	for _, day := range s.defaults.DefaultWorkDays {
		workDays = append(workDays, time.Weekday(day))
	}
	return &domain.TenantPolicy{
		TenantID: tenantID,
		Calendar: calendar.Config{
			Timezone:   s.defaults.DefaultTimezone,
			WorkDays:   workDays,
			DailyStart: s.defaults.DefaultDailyStart,
			DailyEnd:   s.defaults.DefaultDailyEnd,
		},
		SLAResponse:   time.Duration(s.defaults.DefaultResponseMinutes) * time.Minute,
		SLAResolution: time.Duration(s.defaults.DefaultResolutionMinutes) * time.Minute,
		OLAOwn:        time.Duration(s.defaults.DefaultOwnMinutes) * time.Minute,
	}
}

// Cache failures are logged and otherwise ignored; policy resolution must
// not depend on redis being reachable.
func (s *CalendarService) fromCache(ctx context.Context, tenantID string) *domain.TenantPolicy {
	if s.cache == nil || s.cache.Client == nil {
		return nil
	}
	raw, err := s.cache.Client.Get(ctx, policyCachePrefix+tenantID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Debug("tenant policy cache read failed", zap.Error(err))
		}
		return nil
	}
	var policy domain.TenantPolicy
	if err := json.Unmarshal(raw, &policy); err != nil {
		s.logger.Warn("corrupt tenant policy cache entry", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil
	}
	return &policy
}

func (s *CalendarService) toCache(ctx context.Context, tenantID string, policy *domain.TenantPolicy) {
	if s.cache == nil || s.cache.Client == nil {
		return
	}
	raw, err := json.Marshal(policy)
	if err != nil {
		return
	}
	if err := s.cache.Client.Set(ctx, policyCachePrefix+tenantID, raw, s.ttl).Err(); err != nil {
		s.logger.Debug("tenant policy cache write failed", zap.Error(err))
	}
}

func (s *CalendarService) invalidate(ctx context.Context, tenantID string) {
	if s.cache == nil || s.cache.Client == nil {
		return
	}
	if err := s.cache.Client.Del(ctx, policyCachePrefix+tenantID).Err(); err != nil {
		s.logger.Debug("tenant policy cache invalidation failed", zap.Error(err))
	}
}
