// Package httpapi assembles the HTTP surface: the middleware chain, probes,
// metrics and the authenticated and operator route groups.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ratelimit "bgv/internal/ratelimit/middleware"
	"bgv/internal/ratelimit/models"
	tenanthandler "bgv/internal/tenant/handler"
	"bgv/internal/verification/handler"
	"bgv/pkg/platform/httputil"
	"bgv/pkg/platform/middleware/admin"
	"bgv/pkg/platform/middleware/auth"
	"bgv/pkg/platform/middleware/metadata"
	request "bgv/pkg/platform/middleware/request"
	"bgv/pkg/platform/middleware/requesttime"
)

// Check reports whether a dependency is ready to serve traffic.
type Check func(ctx context.Context) error

// Deps are the collaborators the router mounts.
type Deps struct {
	Verification *handler.Handler
	Tenants      *tenanthandler.Handler
	Validator    auth.JWTValidator
	RateLimiter  *ratelimit.Middleware
	AdminToken   string
	Logger       *slog.Logger
	Readiness    map[string]Check
}

const readinessTimeout = 2 * time.Second

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Recovery(d.Logger))
	r.Use(request.Logger(d.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(d.Readiness, d.Logger))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(d.Validator, d.Logger))
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.RateLimitByMethod())
		}
		var gates []func(http.Handler) http.Handler
		if d.Tenants != nil {
			gates = append(gates, d.Tenants.RequireActiveTenant)
		}
		d.Verification.Register(r, gates...)
	})

	r.Group(func(r chi.Router) {
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.RateLimit(models.ClassAdmin))
		}
		r.Use(admin.RequireAdminToken(d.AdminToken, d.Logger))
		d.Verification.RegisterAdmin(r)
		if d.Tenants != nil {
			d.Tenants.RegisterAdmin(r)
		}
	})

	return r
}

func readiness(checks map[string]Check, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed",
					"dependency", name,
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, results)
	}
}
