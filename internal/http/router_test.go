package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	jwttoken "bgv/internal/jwt_token"
	ratelimit "bgv/internal/ratelimit/middleware"
	"bgv/internal/ratelimit/store/bucket"
	tenanthandler "bgv/internal/tenant/handler"
	tenantservice "bgv/internal/tenant/service"
	tenantstore "bgv/internal/tenant/store/tenant"
	"bgv/internal/verification/handler"
	"bgv/internal/verification/service"
	"bgv/internal/verification/store/memory"
	id "bgv/pkg/domain"
	"bgv/pkg/platform/middleware/admin"
	request "bgv/pkg/platform/middleware/request"
)

const testAdminToken = "admin-secret"

type RouterSuite struct {
	suite.Suite
	jwt     *jwttoken.JWTService
	tenants *tenantservice.Service
	router  http.Handler
	ready   error
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	var err error
	s.tenants, err = tenantservice.New(tenantstore.NewInMemory(), tenantservice.WithCaseDirectory(store))
	s.Require().NoError(err)
	svc, err := service.New(store, store,
		service.WithLogger(logger),
		service.WithTenantDirectory(s.tenants),
	)
	s.Require().NoError(err)

	s.jwt = jwttoken.NewJWTService("router-key", "bgv", "bgv-api")
	s.ready = nil
	s.router = NewRouter(Deps{
		Verification: handler.New(svc, logger),
		Tenants:      tenanthandler.New(s.tenants, logger),
		Validator:    jwttoken.NewJWTServiceAdapter(s.jwt),
		RateLimiter:  ratelimit.New(bucket.New(), logger),
		AdminToken:   testAdminToken,
		Logger:       logger,
		Readiness: map[string]Check{
			"store": func(context.Context) error { return s.ready },
		},
	})
}

func (s *RouterSuite) token(tenant id.TenantID) string {
	tok, err := s.jwt.GenerateAccessToken(id.NewUserID(), tenant, jwttoken.RoleVerifier, time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *RouterSuite) do(method, path, bearer string, headers map[string]string, body any) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) TestProbes() {
	w := s.do(http.MethodGet, "/healthz", "", nil, nil)
	s.Equal(http.StatusOK, w.Code)
	s.NotEmpty(w.Header().Get(request.HeaderRequestID))

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/readyz", "", nil, nil).Code)
	s.ready = errors.New("down")
	w = s.do(http.MethodGet, "/readyz", "", nil, nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Contains(w.Body.String(), "unavailable")

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/metrics", "", nil, nil).Code)
}

func (s *RouterSuite) TestAuthenticatedCaseFlow() {
	tenant := id.NewTenantID()
	body := map[string]any{"subject_ref": "CAND-1", "package": "BASIC", "sla_days": 10}

	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/tenants/"+tenant.String()+"/cases", "", nil, body).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/tenants/"+tenant.String()+"/cases", "garbage", nil, body).Code)

	w := s.do(http.MethodPost, "/tenants/"+tenant.String()+"/cases", s.token(tenant), nil, body)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.NotEmpty(w.Header().Get("X-RateLimit-Limit"))

	w = s.do(http.MethodPost, "/tenants/"+tenant.String()+"/cases", s.token(id.NewTenantID()), nil, body)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *RouterSuite) TestAdminRoutes() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/admin/sla/sweep", "", nil, nil).Code)

	adminHeader := map[string]string{admin.HeaderAdminToken: testAdminToken}
	w := s.do(http.MethodPost, "/admin/sla/sweep", "", adminHeader, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/admin/tenants", "", adminHeader, map[string]string{"name": "Acme"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID id.TenantID `json:"id"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &created))

	w = s.do(http.MethodPost, "/admin/tenants/"+created.ID.String()+"/deactivate", "", adminHeader, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	body := map[string]any{"subject_ref": "CAND-2", "package": "BASIC", "sla_days": 10}
	w = s.do(http.MethodPost, "/tenants/"+created.ID.String()+"/cases", s.token(created.ID), nil, body)
	s.Equal(http.StatusForbidden, w.Code)
}
