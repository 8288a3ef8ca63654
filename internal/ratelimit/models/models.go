package models

import (
	"fmt"
	"time"

	dErrors "bgv/pkg/domain-errors"
)

// EndpointClass groups routes that share a request budget.
type EndpointClass string

const (
	// ClassRead covers case views, timelines and recommendations.
	ClassRead EndpointClass = "read"
	// ClassWrite covers workflow mutations and evidence uploads.
	ClassWrite EndpointClass = "write"
	// ClassAdmin covers operator routes such as the SLA sweep.
	ClassAdmin EndpointClass = "admin"
)

func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassRead, ClassWrite, ClassAdmin:
		return true
	}
	return false
}

// Limit is a sliding window budget.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}

// DefaultLimits are the per-class budgets applied when none are configured.
var DefaultLimits = map[EndpointClass]Limit{
	ClassRead:  {RequestsPerWindow: 300, Window: time.Minute},
	ClassWrite: {RequestsPerWindow: 120, Window: time.Minute},
	ClassAdmin: {RequestsPerWindow: 10, Window: time.Minute},
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// IPKey is the bucket key for anonymous traffic from ip.
func IPKey(ip string, class EndpointClass) string {
	return fmt.Sprintf("ip:%s:%s", ip, class)
}

// ActorKey is the bucket key for an authenticated actor.
func ActorKey(actor string, class EndpointClass) string {
	return fmt.Sprintf("actor:%s:%s", actor, class)
}

// Validate checks a configured limit before it is used.
func (l Limit) Validate() error {
	if l.RequestsPerWindow <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "requests per window must be positive")
	}
	if l.Window <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "window must be positive")
	}
	return nil
}
