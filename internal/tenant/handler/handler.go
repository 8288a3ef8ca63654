// Package handler exposes tenant administration and the gate that keeps
// deactivated tenants out of the workflow routes.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bgv/internal/tenant/models"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/platform/httputil"
	"bgv/pkg/requestcontext"
)

type Service interface {
	CreateTenant(ctx context.Context, name string) (*models.Tenant, error)
	GetTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	DeactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	ReactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	IsActive(ctx context.Context, tenantID id.TenantID) (bool, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// CreateTenantRequest is the body of POST /admin/tenants.
type CreateTenantRequest struct {
	Name string `json:"name"`
}

func (r *CreateTenantRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

// RegisterAdmin mounts tenant administration. Callers guard it with the
// admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/tenants", h.handleCreateTenant)
	r.Get("/admin/tenants/{tenantID}", h.handleGetTenant)
	r.Post("/admin/tenants/{tenantID}/deactivate", h.handleDeactivate)
	r.Post("/admin/tenants/{tenantID}/reactivate", h.handleReactivate)
}

func (h *Handler) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[CreateTenantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	t, err := h.service.CreateTenant(ctx, req.Name)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create tenant", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	h.withTenant(w, r, "get tenant", h.service.GetTenant)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.withTenant(w, r, "deactivate tenant", h.service.DeactivateTenant)
}

func (h *Handler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	h.withTenant(w, r, "reactivate tenant", h.service.ReactivateTenant)
}

func (h *Handler) withTenant(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, id.TenantID) (*models.Tenant, error)) {
	ctx := r.Context()
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := fn(ctx, tenantID)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to "+op,
			"error", err,
			"tenant_id", tenantID,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

// RequireActiveTenant refuses requests whose {tenantID} path parameter names
// a deactivated tenant. It must be mounted inside the route that declares
// the parameter.
func (h *Handler) RequireActiveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		active, err := h.service.IsActive(ctx, tenantID)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to resolve tenant status",
				"error", err,
				"tenant_id", tenantID,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, err)
			return
		}
		if !active {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "tenant is inactive"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
