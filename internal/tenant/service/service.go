// Package service manages the tenant registry and decides which tenants the
// SLA sweep may visit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tenantmetrics "bgv/internal/tenant/metrics"
	"bgv/internal/tenant/models"
	"bgv/internal/verification/ports"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/platform/sentinel"
	"bgv/pkg/requestcontext"
)

type TenantStore interface {
	CreateIfNameAvailable(ctx context.Context, tenant *models.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	FindByName(ctx context.Context, name string) (*models.Tenant, error)
	ListByStatus(ctx context.Context, status models.TenantStatus) ([]models.Tenant, error)
	Execute(ctx context.Context, tenantID id.TenantID, validate func(*models.Tenant) error, mutate func(*models.Tenant)) (*models.Tenant, error)
}

// Service orchestrates tenant lifecycle management.
type Service struct {
	tenants TenantStore
	cases   ports.TenantDirectory
	logger  *slog.Logger
	metrics *tenantmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *tenantmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCaseDirectory supplies the tenants that currently hold open cases.
// ActiveTenants filters that list instead of listing the registry.
func WithCaseDirectory(d ports.TenantDirectory) Option {
	return func(s *Service) {
		s.cases = d
	}
}

func New(tenants TenantStore, opts ...Option) (*Service, error) {
	if tenants == nil {
		return nil, errors.New("tenant store is required")
	}
	s := &Service{tenants: tenants, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) CreateTenant(ctx context.Context, name string) (*models.Tenant, error) {
	t, err := models.NewTenant(id.NewTenantID(), strings.TrimSpace(name), requestcontext.Now(ctx))
	if err != nil {
		if de, ok := dErrors.As(err); ok && de.Code == dErrors.CodeInvariantViolation {
			return nil, dErrors.New(dErrors.CodeValidation, de.Message)
		}
		return nil, err
	}

	if err := s.tenants.CreateIfNameAvailable(ctx, t); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "tenant name must be unique")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create tenant")
	}
	s.logger.InfoContext(ctx, "tenant created",
		"log_type", "audit",
		"tenant_id", t.ID,
		"actor_id", requestcontext.ActorID(ctx),
	)
	s.metrics.IncrementTenantCreated()
	return t, nil
}

func (s *Service) GetTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant ID required")
	}
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err)
	}
	return t, nil
}

// GetTenantByName retrieves a tenant by name (case-insensitive).
func (s *Service) GetTenantByName(ctx context.Context, name string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant name is required")
	}
	t, err := s.tenants.FindByName(ctx, name)
	if err != nil {
		return nil, wrapTenantErr(err)
	}
	return t, nil
}

func (s *Service) DeactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	return s.changeStatus(ctx, tenantID, models.TenantStatusInactive,
		(*models.Tenant).CanDeactivate, (*models.Tenant).ApplyDeactivation)
}

func (s *Service) ReactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	return s.changeStatus(ctx, tenantID, models.TenantStatusActive,
		(*models.Tenant).CanReactivate, (*models.Tenant).ApplyReactivation)
}

func (s *Service) changeStatus(
	ctx context.Context,
	tenantID id.TenantID,
	status models.TenantStatus,
	check func(*models.Tenant) error,
	apply func(*models.Tenant, time.Time),
) (*models.Tenant, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant ID required")
	}
	now := requestcontext.Now(ctx)
	t, err := s.tenants.Execute(ctx, tenantID,
		func(t *models.Tenant) error {
			if err := check(t); err != nil {
				if de, ok := dErrors.As(err); ok {
					return dErrors.New(dErrors.CodeConflict, de.Message)
				}
				return err
			}
			return nil
		},
		func(t *models.Tenant) {
			apply(t, now)
		},
	)
	if err != nil {
		return nil, wrapTenantErr(err)
	}
	s.logger.InfoContext(ctx, "tenant status changed",
		"log_type", "audit",
		"tenant_id", t.ID,
		"status", status,
		"actor_id", requestcontext.ActorID(ctx),
	)
	s.metrics.IncrementStatusChange(string(status))
	return t, nil
}

// IsActive reports whether requests for tenantID may proceed. Tenants that
// were never registered are treated as active.
func (s *Service) IsActive(ctx context.Context, tenantID id.TenantID) (bool, error) {
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return true, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tenant")
	}
	return t.IsActive(), nil
}

// ActiveTenants lists the tenants the SLA sweep should visit. With a case
// directory it returns tenants holding open cases minus deactivated ones;
// otherwise it returns every active registered tenant.
func (s *Service) ActiveTenants(ctx context.Context) ([]id.TenantID, error) {
	if s.cases == nil {
		active, err := s.tenants.ListByStatus(ctx, models.TenantStatusActive)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tenants")
		}
		out := make([]id.TenantID, 0, len(active))
		for _, t := range active {
			out = append(out, t.ID)
		}
		return out, nil
	}

	withCases, err := s.cases.ActiveTenants(ctx)
	if err != nil {
		return nil, err
	}
	inactive, err := s.tenants.ListByStatus(ctx, models.TenantStatusInactive)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tenants")
	}
	paused := make(map[id.TenantID]struct{}, len(inactive))
	for _, t := range inactive {
		paused[t.ID] = struct{}{}
	}
	out := make([]id.TenantID, 0, len(withCases))
	for _, tenantID := range withCases {
		if _, skip := paused[tenantID]; skip {
			continue
		}
		out = append(out, tenantID)
	}
	s.metrics.AddSkipped(len(withCases) - len(out))
	return out, nil
}

func wrapTenantErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "tenant not found")
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update tenant")
}
