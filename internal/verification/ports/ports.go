// Package ports declares the collaborators the verification engine talks to
// but does not implement: byte storage, notification delivery, field
// extraction and the tenant directory.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Notifier,EvidenceStorage,FieldExtractor,TenantDirectory

import (
	"context"
	"io"

	"bgv/internal/verification/models"
	id "bgv/pkg/domain"
)

// NotificationKind classifies an outbound notification.
type NotificationKind string

const (
	NotifySLAReminder NotificationKind = "SLA_REMINDER"
	NotifySLABreach   NotificationKind = "SLA_BREACH"
	NotifyEscalation  NotificationKind = "ESCALATION"
	NotifyCaseClosed  NotificationKind = "CASE_CLOSED"
)

// Notification is a delivery request. Template rendering and transport are
// the notifier's concern.
type Notification struct {
	TenantID  id.TenantID
	CaseID    id.CaseID
	CheckID   id.CheckID
	Kind      NotificationKind
	Template  string
	Recipient string
	Data      map[string]string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// EvidenceStorage opens stored document bytes by storage key.
type EvidenceStorage interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// FieldExtractor returns advisory fields read from a document. Failures are
// tolerated by callers.
type FieldExtractor interface {
	Extract(ctx context.Context, doc models.Document) (map[string]string, error)
}

// TenantDirectory lists tenants whose cases the SLA sweep should visit.
type TenantDirectory interface {
	ActiveTenants(ctx context.Context) ([]id.TenantID, error)
}
