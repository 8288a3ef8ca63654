// Package service orchestrates the verification workflow. It loads value
// snapshots, consults the pure decision packages (statemachine, evidence,
// makerchecker, risk, sla, aggregate), persists the outcome under a per-case
// lock and appends timeline entries.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bgv/internal/verification/aggregate"
	"bgv/internal/verification/evidence"
	"bgv/internal/verification/lock"
	"bgv/internal/verification/metrics"
	"bgv/internal/verification/models"
	"bgv/internal/verification/ports"
	"bgv/internal/verification/risk"
	"bgv/internal/verification/statemachine"
	"bgv/internal/verification/timeline"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/platform/sentinel"
)

type CaseStore interface {
	CreateCase(ctx context.Context, c *models.Case, checks []models.Check) error
	FindCase(ctx context.Context, tenantID id.TenantID, caseID id.CaseID) (*models.Case, error)
	UpdateCase(ctx context.Context, c *models.Case) error
	ListOpenCases(ctx context.Context, tenantID id.TenantID) ([]models.Case, error)
}

type CheckStore interface {
	FindCheck(ctx context.Context, tenantID id.TenantID, checkID id.CheckID) (*models.Check, error)
	ListChecks(ctx context.Context, tenantID id.TenantID, caseID id.CaseID) ([]models.Check, error)
	UpdateCheck(ctx context.Context, ch *models.Check) error
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, d *models.Document) error
	FindDocument(ctx context.Context, tenantID id.TenantID, docID id.DocumentID) (*models.Document, error)
	UpdateDocument(ctx context.Context, d *models.Document) error
	ListDocuments(ctx context.Context, tenantID id.TenantID, checkID id.CheckID) ([]models.Document, error)
}

type RiskStore interface {
	FindRiskScore(ctx context.Context, tenantID id.TenantID, caseID id.CaseID) (*models.RiskScore, error)
	SaveRiskScore(ctx context.Context, r *models.RiskScore) error
}

// Repository is the persistence the service needs. RunInTx groups the writes
// of one operation into a single unit of work.
type Repository interface {
	CaseStore
	CheckStore
	DocumentStore
	RiskStore
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service is the verification engine's operation surface.
type Service struct {
	repo      Repository
	timeline  *timeline.Writer
	locker    lock.Locker
	machine   *statemachine.Machine
	catalog   evidence.Catalog
	risk      *risk.Engine
	notifier  ports.Notifier
	storage   ports.EvidenceStorage
	extractor ports.FieldExtractor
	tenants   ports.TenantDirectory
	hasher    HashQueue
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	sweepConcurrency int
}

// HashQueue accepts documents for background fingerprinting.
type HashQueue interface {
	Enqueue(doc models.Document) bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func WithMachine(m *statemachine.Machine) Option {
	return func(s *Service) {
		s.machine = m
	}
}

func WithCatalog(c evidence.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

func WithRiskEngine(e *risk.Engine) Option {
	return func(s *Service) {
		s.risk = e
	}
}

func WithNotifier(n ports.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithEvidenceStorage(st ports.EvidenceStorage) Option {
	return func(s *Service) {
		s.storage = st
	}
}

func WithFieldExtractor(x ports.FieldExtractor) Option {
	return func(s *Service) {
		s.extractor = x
	}
}

func WithTenantDirectory(d ports.TenantDirectory) Option {
	return func(s *Service) {
		s.tenants = d
	}
}

func WithHashQueue(q HashQueue) Option {
	return func(s *Service) {
		s.hasher = q
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithSweepConcurrency bounds how many tenants SweepAll visits at once.
func WithSweepConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sweepConcurrency = n
		}
	}
}

// New constructs a Service. The repository and timeline are required; every
// other collaborator has an in-process default.
func New(repo Repository, tl timeline.Repository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if tl == nil {
		return nil, errors.New("timeline repository is required")
	}
	s := &Service{
		repo:             repo,
		locker:           lock.NewSharded(),
		catalog:          evidence.DefaultCatalog(),
		logger:           slog.Default(),
		tracer:           otel.Tracer("bgv/verification"),
		sweepConcurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.machine == nil {
		m, err := statemachine.New(statemachine.DefaultTable)
		if err != nil {
			return nil, err
		}
		s.machine = m
	}
	if s.risk == nil {
		table, err := risk.NewTable(risk.DefaultKinds)
		if err != nil {
			return nil, err
		}
		s.risk = risk.NewEngine(table)
	}
	if err := s.catalog.Requirements.Validate(); err != nil {
		return nil, err
	}
	s.timeline = timeline.NewWriter(tl, timeline.WithLogger(s.logger), timeline.WithMetrics(s.metrics))
	return s, nil
}

// Machine exposes the validated transition table.
func (s *Service) Machine() *statemachine.Machine { return s.machine }

// Catalog exposes the evidence requirements in effect.
func (s *Service) Catalog() evidence.Catalog { return s.catalog }

func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "verification."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// withCase runs fn under the case lock inside one unit of work.
func (s *Service) withCase(ctx context.Context, caseID id.CaseID, fn func(ctx context.Context) error) error {
	return s.locker.WithLock(ctx, lock.CaseKey(caseID.String()), func(ctx context.Context) error {
		return s.repo.RunInTx(ctx, fn)
	})
}

// translate maps infrastructure sentinels to domain errors. Domain errors
// pass through untouched.
func translate(err error, entity, action string) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, entity+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, entity+" was modified concurrently")
	case errors.Is(err, sentinel.ErrImmutable):
		return dErrors.New(dErrors.CodeImmutableCase, "case is closed and can no longer change")
	case errors.Is(err, sentinel.ErrLockHeld):
		return dErrors.Wrap(err, dErrors.CodeTimeout, entity+" is busy")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "failed to "+action+": request cancelled")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
}

func requireActor(actor id.UserID) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	return nil
}

// loadCheck fetches a check and its parent case.
func (s *Service) loadCheck(ctx context.Context, tenantID id.TenantID, checkID id.CheckID) (*models.Check, *models.Case, error) {
	ch, err := s.repo.FindCheck(ctx, tenantID, checkID)
	if err != nil {
		return nil, nil, translate(err, "check", "load check")
	}
	c, err := s.repo.FindCase(ctx, tenantID, ch.CaseID)
	if err != nil {
		return nil, nil, translate(err, "case", "load case")
	}
	return ch, c, nil
}

// validateEvidence evaluates a check's current documents against its
// requirement configuration.
func (s *Service) validateEvidence(ctx context.Context, ch *models.Check, now time.Time) (*evidence.Result, error) {
	cfg, err := s.catalog.Requirements.For(ch.Type)
	if err != nil {
		return nil, err
	}
	docs, err := s.repo.ListDocuments(ctx, ch.TenantID, ch.ID)
	if err != nil {
		return nil, translate(err, "documents", "load documents")
	}
	res := evidence.Validate(*ch, docs, cfg, now)
	s.metrics.RecordEvidenceValidation(string(ch.Type), res.HasRequiredEvidence)
	return &res, nil
}

// refreshCaseStatus recomputes the derived case status after a check change
// and returns the timeline entry for it, if any.
func (s *Service) refreshCaseStatus(ctx context.Context, c *models.Case, actor id.UserID, now time.Time) (*models.TimelineEntry, error) {
	checks, err := s.repo.ListChecks(ctx, c.TenantID, c.ID)
	if err != nil {
		return nil, translate(err, "checks", "load checks")
	}
	prev := c.OverallStatus
	next, changed := aggregate.Recompute(*c, checks, now)
	if !changed {
		return nil, nil
	}
	if err := s.repo.UpdateCase(ctx, &next); err != nil {
		return nil, translate(err, "case", "update case")
	}
	*c = next
	entry := timeline.CaseStatusChange(c, prev, actor, now)
	return &entry, nil
}

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	args := append([]any{"log_type", "audit", "event", event}, attrs...)
	s.logger.InfoContext(ctx, event, args...)
}
