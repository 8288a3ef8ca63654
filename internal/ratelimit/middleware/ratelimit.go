package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"bgv/internal/ratelimit/metrics"
	"bgv/internal/ratelimit/models"
	"bgv/internal/ratelimit/store/bucket"
	"bgv/pkg/platform/circuit"
	"bgv/pkg/platform/httputil"
	metadata "bgv/pkg/platform/middleware/metadata"
	request "bgv/pkg/platform/middleware/request"
	"bgv/pkg/requestcontext"
)

// Store is a sliding window counter.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

type Middleware struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	limits   map[models.EndpointClass]models.Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithLimits overrides the budget of the given classes.
func WithLimits(limits map[models.EndpointClass]models.Limit) Option {
	return func(m *Middleware) {
		for class, limit := range limits {
			if limit.Validate() == nil {
				m.limits[class] = limit
			}
		}
	}
}

// WithFallback replaces the in-memory store used while the primary is failing.
func WithFallback(store Store) Option {
	return func(m *Middleware) {
		m.fallback = store
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.breaker = b
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

func New(store Store, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		primary:  store,
		fallback: bucket.New(),
		breaker:  circuit.New("ratelimit", circuit.WithCooldown(10*time.Second)),
		limits:   make(map[models.EndpointClass]models.Limit, len(models.DefaultLimits)),
		logger:   logger,
	}
	for class, limit := range models.DefaultLimits {
		m.limits[class] = limit
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit budgets requests per client IP.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			ip := metadata.GetClientIP(ctx)

			result, ok := m.check(w, r, models.IPKey(ip, class), class)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if !result.Allowed {
				m.metrics.IncrementRejected(string(class), "ip")
				writeRateLimitExceeded(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitAuthenticated budgets requests per actor. It must run after
// authentication; anonymous requests fall back to the IP budget.
func (m *Middleware) RateLimitAuthenticated(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			actor := requestcontext.ActorID(ctx)
			if actor.IsNil() {
				m.RateLimit(class)(next).ServeHTTP(w, r)
				return
			}

			result, ok := m.check(w, r, models.ActorKey(actor.String(), class), class)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if !result.Allowed {
				m.metrics.IncrementRejected(string(class), "actor")
				writeActorRateLimitExceeded(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByMethod budgets reads and writes separately per actor.
func (m *Middleware) RateLimitByMethod() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		read := m.RateLimitAuthenticated(models.ClassRead)(next)
		write := m.RateLimitAuthenticated(models.ClassWrite)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				read.ServeHTTP(w, r)
			default:
				write.ServeHTTP(w, r)
			}
		})
	}
}

// check consults the primary store, switching to the fallback while the
// breaker is open. ok is false when no store could answer; the request is
// then let through.
func (m *Middleware) check(w http.ResponseWriter, r *http.Request, key string, class models.EndpointClass) (*models.RateLimitResult, bool) {
	ctx := r.Context()
	limit := m.limits[class]

	if m.breaker.Allow(time.Now()) {
		result, err := m.primary.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
		if err == nil {
			if _, change := m.breaker.RecordSuccess(); change.Closed {
				m.logger.InfoContext(ctx, "rate limit store recovered")
				m.metrics.SetDegraded(false)
			}
			if !m.breaker.IsOpen() {
				addRateLimitHeaders(w, result)
				return result, true
			}
		} else {
			m.metrics.IncrementStoreErrors()
			_, change := m.breaker.RecordFailure()
			if change.Opened {
				m.metrics.SetDegraded(true)
			}
			m.logger.ErrorContext(ctx, "failed to check rate limit",
				"error", err,
				"class", class,
				"breaker_open", m.breaker.IsOpen(),
				"request_id", request.GetRequestID(ctx),
			)
			if !m.breaker.IsOpen() {
				return nil, false
			}
		}
	}

	if m.fallback == nil {
		return nil, false
	}
	result, err := m.fallback.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
	if err != nil {
		m.logger.ErrorContext(ctx, "fallback rate limit failed", "error", err)
		return nil, false
	}
	w.Header().Set("X-RateLimit-Status", "degraded")
	addRateLimitHeaders(w, result)
	return result, true
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests from this IP address. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}

func writeActorRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ActorRateLimitExceededResponse{
		Error:          "actor_rate_limit_exceeded",
		Message:        "You have exceeded your request quota for this operation.",
		QuotaLimit:     result.Limit,
		QuotaRemaining: result.Remaining,
		QuotaReset:     result.ResetAt,
	})
}
