package testutil

import (
	"net/http"
	"time"

	id "bgv/pkg/domain"
	"bgv/pkg/requestcontext"
)

// WithActor adds an actor to the request context, as the auth middleware
// would for an authenticated request. A nil actor is left out.
func WithActor(req *http.Request, actor id.UserID) *http.Request {
	if actor.IsNil() {
		return req
	}
	return req.WithContext(requestcontext.WithActorID(req.Context(), actor))
}

// WithTenantScope restricts the request to one tenant, as a tenant-scoped
// token would.
func WithTenantScope(req *http.Request, tenant id.TenantID) *http.Request {
	if tenant.IsNil() {
		return req
	}
	return req.WithContext(requestcontext.WithTenantID(req.Context(), tenant))
}

// WithTime pins the request clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
