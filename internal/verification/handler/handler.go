// Package handler exposes the verification workflow over HTTP. Every route is
// scoped to a tenant in the path; the acting user comes from the request
// context populated by the auth middleware.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bgv/internal/verification/evidence"
	"bgv/internal/verification/models"
	"bgv/internal/verification/service"
	"bgv/internal/verification/statemachine"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/platform/httputil"
	"bgv/pkg/requestcontext"
)

// Service is the verification surface the handler drives.
type Service interface {
	InitiateCase(ctx context.Context, tenantID id.TenantID, subjectRef string, pkg models.Package, slaDays int, opts service.InitiateOptions) (*models.Case, error)
	GetCase(ctx context.Context, tenantID id.TenantID, caseID id.CaseID) (*service.CaseView, error)
	GetTimeline(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, viewer models.Visibility) ([]models.TimelineEntry, error)
	CloseCase(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, decision models.ClosureDecision, actor id.UserID, remarks string) (*models.Case, error)
	EscalateCase(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, actor id.UserID, reason string) (*models.Case, error)
	SendReminders(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, actor id.UserID) (bool, error)

	RequestTransition(ctx context.Context, tenantID id.TenantID, checkID id.CheckID, target models.CheckStatus, actor id.UserID) (*models.Check, error)
	AssignCheck(ctx context.Context, tenantID id.TenantID, checkID id.CheckID, verifier, approver, actor id.UserID) (*models.Check, error)
	SubmitForApproval(ctx context.Context, tenantID id.TenantID, checkID id.CheckID, sub service.Submission) (*models.Check, error)
	DecideApproval(ctx context.Context, tenantID id.TenantID, checkID id.CheckID, decision models.ReviewDecision, actor id.UserID, comments string) (*models.Check, error)

	RecordEvidence(ctx context.Context, tenantID id.TenantID, checkID id.CheckID, up service.DocumentUpload) (*evidence.Result, error)
	ReviewDocument(ctx context.Context, tenantID id.TenantID, docID id.DocumentID, status models.DocumentReviewStatus, reason string, actor id.UserID) (*models.Document, error)
	DeleteDocument(ctx context.Context, tenantID id.TenantID, docID id.DocumentID, actor id.UserID) (*models.Document, error)
	VerifyDocumentIntegrity(ctx context.Context, tenantID id.TenantID, docID id.DocumentID, actor id.UserID) (*evidence.IntegrityResult, error)

	AddDiscrepancy(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, in service.RiskInput) (*models.RiskScore, error)
	AddRedFlag(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, in service.RiskInput) (*models.RiskScore, error)
	AddGreenFlag(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, in service.GreenFlagInput) (*models.RiskScore, error)
	ResolveRiskItem(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, itemID string, actor id.UserID, note string) (*models.RiskScore, error)
	Recommendation(ctx context.Context, tenantID id.TenantID, caseID id.CaseID) (*service.RecommendationView, error)

	SweepSLAs(ctx context.Context, tenantID id.TenantID) (service.SweepSummary, error)
	SweepAll(ctx context.Context) (service.SweepSummary, error)
	Machine() *statemachine.Machine
}

// Handler wires verification endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the tenant-scoped workflow routes. tenantMiddleware runs
// inside the tenant route, where the {tenantID} parameter is resolved.
func (h *Handler) Register(r chi.Router, tenantMiddleware ...func(http.Handler) http.Handler) {
	r.Get("/workflow/transitions", h.handleTransitionTable)

	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Use(tenantMiddleware...)
		r.Post("/cases", h.handleInitiateCase)
		r.Get("/cases/{caseID}", h.handleGetCase)
		r.Get("/cases/{caseID}/timeline", h.handleGetTimeline)
		r.Post("/cases/{caseID}/close", h.handleCloseCase)
		r.Post("/cases/{caseID}/escalate", h.handleEscalateCase)
		r.Post("/cases/{caseID}/reminders", h.handleSendReminder)
		r.Get("/cases/{caseID}/recommendation", h.handleRecommendation)
		r.Post("/cases/{caseID}/discrepancies", h.handleAddDiscrepancy)
		r.Post("/cases/{caseID}/red-flags", h.handleAddRedFlag)
		r.Post("/cases/{caseID}/green-flags", h.handleAddGreenFlag)
		r.Post("/cases/{caseID}/risk-items/{itemID}/resolve", h.handleResolveRiskItem)

		r.Post("/checks/{checkID}/transitions", h.handleTransition)
		r.Post("/checks/{checkID}/assignment", h.handleAssign)
		r.Post("/checks/{checkID}/submission", h.handleSubmit)
		r.Post("/checks/{checkID}/approval", h.handleDecide)
		r.Post("/checks/{checkID}/documents", h.handleRecordEvidence)

		r.Post("/documents/{documentID}/review", h.handleReviewDocument)
		r.Delete("/documents/{documentID}", h.handleDeleteDocument)
		r.Post("/documents/{documentID}/integrity", h.handleVerifyIntegrity)
	})
}

// RegisterAdmin mounts operator routes. Callers protect them with the admin
// token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/sla/sweep", h.handleSweepAll)
	r.Post("/admin/tenants/{tenantID}/sla/sweep", h.handleSweepTenant)
}

// scope resolves the tenant from the path and the acting user from the
// context. A token scoped to another tenant is forbidden.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (id.TenantID, id.UserID, bool) {
	ctx := r.Context()
	actor := requestcontext.ActorID(ctx)
	if actor.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.TenantID{}, id.UserID{}, false
	}
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.TenantID{}, id.UserID{}, false
	}
	if scoped := requestcontext.TenantID(ctx); !scoped.IsNil() && scoped != tenantID {
		h.logger.WarnContext(ctx, "cross-tenant access denied",
			"request_id", requestcontext.RequestID(ctx),
			"actor_id", actor,
			"tenant_id", tenantID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "token is not valid for this tenant"))
		return id.TenantID{}, id.UserID{}, false
	}
	return tenantID, actor, true
}

func caseParam(w http.ResponseWriter, r *http.Request) (id.CaseID, bool) {
	caseID, err := id.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.CaseID{}, false
	}
	return caseID, true
}

func checkParam(w http.ResponseWriter, r *http.Request) (id.CheckID, bool) {
	checkID, err := id.ParseCheckID(chi.URLParam(r, "checkID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.CheckID{}, false
	}
	return checkID, true
}

func documentParam(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.DocumentID{}, false
	}
	return docID, true
}

// fail logs a failed operation and writes the error response. Workflow
// rejections are expected outcomes and log at warn.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error, attrs ...any) {
	args := append([]any{"request_id", requestcontext.RequestID(ctx), "error", err}, attrs...)
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, op+" failed", args...)
	default:
		h.logger.WarnContext(ctx, op+" rejected", args...)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) handleTransitionTable(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, TransitionTableResponse{
		Transitions:      h.service.Machine().Edges(),
		RequiresEvidence: gated(statemachine.RequiresEvidence),
		RequiresApproval: gated(statemachine.RequiresApproval),
	})
}

func (h *Handler) handleInitiateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[InitiateCaseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	c, err := h.service.InitiateCase(ctx, tenantID, req.SubjectRef, req.parsedPackage, req.SLADays, req.options(actor))
	if err != nil {
		h.fail(ctx, w, "case initiation", err, "tenant_id", tenantID)
		return
	}
	h.logger.InfoContext(ctx, "case initiated",
		"request_id", requestcontext.RequestID(ctx),
		"tenant_id", tenantID,
		"case_id", c.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleGetCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _, ok := h.scope(w, r)
	if !ok {
		return
	}
	caseID, ok := caseParam(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetCase(ctx, tenantID, caseID)
	if err != nil {
		h.fail(ctx, w, "case lookup", err, "case_id", caseID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// handleGetTimeline serves GET .../timeline?visibility=CLIENT. Internal
// visibility is the default for staff tokens.
func (h *Handler) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _, ok := h.scope(w, r)
	if !ok {
		return
	}
	caseID, ok := caseParam(w, r)
	if !ok {
		return
	}
	viewer := models.VisibilityInternal
	if v := r.URL.Query().Get("visibility"); v != "" {
		parsed, err := models.ParseVisibility(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		viewer = parsed
	}
	entries, err := h.service.GetTimeline(ctx, tenantID, caseID, viewer)
	if err != nil {
		h.fail(ctx, w, "timeline lookup", err, "case_id", caseID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TimelineResponse{
		CaseID:     caseID,
		Visibility: viewer,
		Entries:    entries,
	})
}

func (h *Handler) handleCloseCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	caseID, ok := caseParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CloseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.CloseCase(ctx, tenantID, caseID, req.parsedDecision, actor, req.Remarks)
	if err != nil {
		h.fail(ctx, w, "case closure", err, "case_id", caseID, "decision", req.parsedDecision)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleEscalateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	caseID, ok := caseParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[EscalateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.EscalateCase(ctx, tenantID, caseID, actor, req.Reason)
	if err != nil {
		h.fail(ctx, w, "case escalation", err, "case_id", caseID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleSendReminder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	caseID, ok := caseParam(w, r)
	if !ok {
		return
	}
	sent, err := h.service.SendReminders(ctx, tenantID, caseID, actor)
	if err != nil {
		h.fail(ctx, w, "reminder", err, "case_id", caseID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ReminderResponse{CaseID: caseID, Delivered: sent})
}

func (h *Handler) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _, ok := h.scope(w, r)
	if !ok {
		return
	}
	caseID, ok := caseParam(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Recommendation(ctx, tenantID, caseID)
	if err != nil {
		h.fail(ctx, w, "recommendation", err, "case_id", caseID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleAddDiscrepancy(w http.ResponseWriter, r *http.Request) {
	h.handleRiskItem(w, r, "discrepancy", h.service.AddDiscrepancy)
}

func (h *Handler) handleAddRedFlag(w http.ResponseWriter, r *http.Request) {
	h.handleRiskItem(w, r, "red flag", h.service.AddRedFlag)
}

type riskItemFunc func(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, in service.RiskInput) (*models.RiskScore, error)

func (h *Handler) handleRiskItem(w http.ResponseWriter, r *http.Request, op string, add riskItemFunc) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	caseID, ok := caseParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RiskItemRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	score, err := add(ctx, tenantID, caseID, req.input(actor))
	if err != nil {
		h.fail(ctx, w, op, err, "case_id", caseID, "kind", req.Kind)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, score)
}

func (h *Handler) handleAddGreenFlag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	caseID, ok := caseParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[GreenFlagRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	score, err := h.service.AddGreenFlag(ctx, tenantID, caseID, service.GreenFlagInput{
		Label:       req.Label,
		CheckID:     req.checkID,
		Description: req.Description,
		Actor:       actor,
	})
	if err != nil {
		h.fail(ctx, w, "green flag", err, "case_id", caseID)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, score)
}

func (h *Handler) handleResolveRiskItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	caseID, ok := caseParam(w, r)
	if !ok {
		return
	}
	itemID := chi.URLParam(r, "itemID")
	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	score, err := h.service.ResolveRiskItem(ctx, tenantID, caseID, itemID, actor, req.Note)
	if err != nil {
		h.fail(ctx, w, "risk item resolution", err, "case_id", caseID, "item_id", itemID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, score)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	checkID, ok := checkParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	ch, err := h.service.RequestTransition(ctx, tenantID, checkID, req.parsedStatus, actor)
	if err != nil {
		h.fail(ctx, w, "check transition", err, "check_id", checkID, "target", req.parsedStatus)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ch)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	checkID, ok := checkParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AssignRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	ch, err := h.service.AssignCheck(ctx, tenantID, checkID, req.verifier, req.approver, actor)
	if err != nil {
		h.fail(ctx, w, "check assignment", err, "check_id", checkID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ch)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	checkID, ok := checkParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	ch, err := h.service.SubmitForApproval(ctx, tenantID, checkID, req.submission(actor))
	if err != nil {
		h.fail(ctx, w, "verification submission", err, "check_id", checkID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ch)
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	checkID, ok := checkParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	ch, err := h.service.DecideApproval(ctx, tenantID, checkID, req.parsedDecision, actor, req.Comments)
	if err != nil {
		h.fail(ctx, w, "approval decision", err, "check_id", checkID, "decision", req.parsedDecision)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ch)
}

func (h *Handler) handleRecordEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	checkID, ok := checkParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DocumentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.RecordEvidence(ctx, tenantID, checkID, req.upload(actor))
	if err != nil {
		h.fail(ctx, w, "evidence upload", err, "check_id", checkID, "document_type", req.parsedType)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleReviewDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	docID, ok := documentParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReviewDocumentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	doc, err := h.service.ReviewDocument(ctx, tenantID, docID, req.parsedStatus, req.Reason, actor)
	if err != nil {
		h.fail(ctx, w, "document review", err, "document_id", docID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	docID, ok := documentParam(w, r)
	if !ok {
		return
	}
	doc, err := h.service.DeleteDocument(ctx, tenantID, docID, actor)
	if err != nil {
		h.fail(ctx, w, "document deletion", err, "document_id", docID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, actor, ok := h.scope(w, r)
	if !ok {
		return
	}
	docID, ok := documentParam(w, r)
	if !ok {
		return
	}
	res, err := h.service.VerifyDocumentIntegrity(ctx, tenantID, docID, actor)
	if err != nil {
		h.fail(ctx, w, "integrity check", err, "document_id", docID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleSweepTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	summary, err := h.service.SweepSLAs(ctx, tenantID)
	if err != nil {
		h.fail(ctx, w, "sla sweep", err, "tenant_id", tenantID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleSweepAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := h.service.SweepAll(ctx)
	if err != nil {
		h.fail(ctx, w, "sla sweep", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}
