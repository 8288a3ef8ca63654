package handler

import (
	"strings"
	"time"

	"bgv/internal/verification/models"
	"bgv/internal/verification/service"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
)

const (
	maxSubjectRefLength = 128
	maxTextLength       = 2000
	maxProfileFields    = 32
)

// InitiateCaseRequest is the body of POST /tenants/{tenantID}/cases.
type InitiateCaseRequest struct {
	SubjectRef   string            `json:"subject_ref"`
	Package      string            `json:"package"`
	SLADays      int               `json:"sla_days"`
	AutoEscalate bool              `json:"auto_escalate"`
	CheckDueDays int               `json:"check_due_days"`
	Profile      map[string]string `json:"profile"`

	parsedPackage models.Package
}

func (r *InitiateCaseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.SubjectRef = strings.TrimSpace(r.SubjectRef)
	if r.SubjectRef == "" {
		return dErrors.New(dErrors.CodeValidation, "subject_ref is required")
	}
	if len(r.SubjectRef) > maxSubjectRefLength {
		return dErrors.Newf(dErrors.CodeValidation, "subject_ref must be at most %d characters", maxSubjectRefLength)
	}
	if r.SLADays <= 0 {
		return dErrors.New(dErrors.CodeValidation, "sla_days must be positive")
	}
	if r.CheckDueDays < 0 {
		return dErrors.New(dErrors.CodeValidation, "check_due_days cannot be negative")
	}
	if len(r.Profile) > maxProfileFields {
		return dErrors.Newf(dErrors.CodeValidation, "profile may hold at most %d fields", maxProfileFields)
	}
	pkg, err := models.ParsePackage(r.Package)
	if err != nil {
		return err
	}
	r.parsedPackage = pkg
	return nil
}

func (r *InitiateCaseRequest) options(actor id.UserID) service.InitiateOptions {
	return service.InitiateOptions{
		Actor:        actor,
		AutoEscalate: r.AutoEscalate,
		Profile:      r.Profile,
		CheckDueDays: r.CheckDueDays,
	}
}

// TransitionRequest is the body of POST .../checks/{checkID}/transitions.
type TransitionRequest struct {
	Status string `json:"status"`

	parsedStatus models.CheckStatus
}

func (r *TransitionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	st, err := models.ParseCheckStatus(r.Status)
	if err != nil {
		return err
	}
	r.parsedStatus = st
	return nil
}

// AssignRequest is the body of POST .../checks/{checkID}/assignment.
type AssignRequest struct {
	VerifierID string `json:"verifier_id"`
	ApproverID string `json:"approver_id"`

	verifier id.UserID
	approver id.UserID
}

func (r *AssignRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	verifier, err := id.ParseUserID(strings.TrimSpace(r.VerifierID))
	if err != nil {
		return err
	}
	approver, err := id.ParseUserID(strings.TrimSpace(r.ApproverID))
	if err != nil {
		return err
	}
	r.verifier, r.approver = verifier, approver
	return nil
}

// SubmitRequest is the maker's verification, POST .../checks/{checkID}/submission.
type SubmitRequest struct {
	ProposedStatus  string `json:"proposed_status"`
	Notes           string `json:"notes"`
	InternalRemarks string `json:"internal_remarks"`

	parsedStatus models.CheckStatus
}

func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Notes) > maxTextLength {
		return dErrors.Newf(dErrors.CodeValidation, "notes must be at most %d characters", maxTextLength)
	}
	if len(r.InternalRemarks) > maxTextLength {
		return dErrors.Newf(dErrors.CodeValidation, "internal_remarks must be at most %d characters", maxTextLength)
	}
	st, err := models.ParseCheckStatus(r.ProposedStatus)
	if err != nil {
		return err
	}
	r.parsedStatus = st
	r.Notes = strings.TrimSpace(r.Notes)
	r.InternalRemarks = strings.TrimSpace(r.InternalRemarks)
	return nil
}

func (r *SubmitRequest) submission(actor id.UserID) service.Submission {
	return service.Submission{
		Proposed:        r.parsedStatus,
		Notes:           r.Notes,
		InternalRemarks: r.InternalRemarks,
		Actor:           actor,
	}
}

// DecisionRequest is the checker's decision, POST .../checks/{checkID}/approval.
type DecisionRequest struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`

	parsedDecision models.ReviewDecision
}

func (r *DecisionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Comments) > maxTextLength {
		return dErrors.Newf(dErrors.CodeValidation, "comments must be at most %d characters", maxTextLength)
	}
	d, err := models.ParseReviewDecision(r.Decision)
	if err != nil {
		return err
	}
	r.parsedDecision = d
	r.Comments = strings.TrimSpace(r.Comments)
	return nil
}

// DocumentRequest registers an uploaded document, POST .../checks/{checkID}/documents.
type DocumentRequest struct {
	DocumentType string     `json:"document_type"`
	FileName     string     `json:"file_name"`
	StorageKey   string     `json:"storage_key"`
	SizeBytes    int64      `json:"size_bytes"`
	IssuedAt     *time.Time `json:"issued_at"`
	ContentHash  string     `json:"content_hash"`
	Replaces     string     `json:"replaces"`

	parsedType models.DocumentType
	replaces   *id.DocumentID
}

func (r *DocumentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	t, err := models.ParseDocumentType(r.DocumentType)
	if err != nil {
		return err
	}
	r.parsedType = t
	r.StorageKey = strings.TrimSpace(r.StorageKey)
	if r.StorageKey == "" {
		return dErrors.New(dErrors.CodeValidation, "storage_key is required")
	}
	if r.Replaces = strings.TrimSpace(r.Replaces); r.Replaces != "" {
		prev, err := id.ParseDocumentID(r.Replaces)
		if err != nil {
			return err
		}
		r.replaces = &prev
	}
	return nil
}

func (r *DocumentRequest) upload(actor id.UserID) service.DocumentUpload {
	return service.DocumentUpload{
		Type:        r.parsedType,
		FileName:    r.FileName,
		StorageKey:  r.StorageKey,
		SizeBytes:   r.SizeBytes,
		IssuedAt:    r.IssuedAt,
		ContentHash: strings.TrimSpace(r.ContentHash),
		Replaces:    r.replaces,
		Actor:       actor,
	}
}

// ReviewDocumentRequest is the body of POST .../documents/{documentID}/review.
type ReviewDocumentRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`

	parsedStatus models.DocumentReviewStatus
}

func (r *ReviewDocumentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.parsedStatus = models.DocumentReviewStatus(strings.ToUpper(strings.TrimSpace(r.Status)))
	switch r.parsedStatus {
	case models.DocumentAccepted, models.DocumentRejected:
	default:
		return dErrors.Newf(dErrors.CodeValidation, "status must be %s or %s", models.DocumentAccepted, models.DocumentRejected)
	}
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}

// CloseRequest is the body of POST .../cases/{caseID}/close.
type CloseRequest struct {
	Decision string `json:"decision"`
	Remarks  string `json:"remarks"`

	parsedDecision models.ClosureDecision
}

func (r *CloseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Remarks) > maxTextLength {
		return dErrors.Newf(dErrors.CodeValidation, "remarks must be at most %d characters", maxTextLength)
	}
	d, err := models.ParseClosureDecision(r.Decision)
	if err != nil {
		return err
	}
	r.parsedDecision = d
	r.Remarks = strings.TrimSpace(r.Remarks)
	return nil
}

// EscalateRequest is the body of POST .../cases/{caseID}/escalate.
type EscalateRequest struct {
	Reason string `json:"reason"`
}

func (r *EscalateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

// RiskItemRequest records a discrepancy or red flag.
type RiskItemRequest struct {
	Kind        string `json:"kind"`
	CheckID     string `json:"check_id"`
	Description string `json:"description"`

	checkID id.CheckID
}

func (r *RiskItemRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Kind = strings.TrimSpace(r.Kind)
	if r.Kind == "" {
		return dErrors.New(dErrors.CodeValidation, "kind is required")
	}
	if len(r.Description) > maxTextLength {
		return dErrors.Newf(dErrors.CodeValidation, "description must be at most %d characters", maxTextLength)
	}
	if r.CheckID = strings.TrimSpace(r.CheckID); r.CheckID != "" {
		checkID, err := id.ParseCheckID(r.CheckID)
		if err != nil {
			return err
		}
		r.checkID = checkID
	}
	return nil
}

func (r *RiskItemRequest) input(actor id.UserID) service.RiskInput {
	return service.RiskInput{
		Kind:        r.Kind,
		CheckID:     r.checkID,
		Description: r.Description,
		Actor:       actor,
	}
}

// GreenFlagRequest records a positive indicator.
type GreenFlagRequest struct {
	Label       string `json:"label"`
	CheckID     string `json:"check_id"`
	Description string `json:"description"`

	checkID id.CheckID
}

func (r *GreenFlagRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Label = strings.TrimSpace(r.Label)
	if r.Label == "" {
		return dErrors.New(dErrors.CodeValidation, "label is required")
	}
	if r.CheckID = strings.TrimSpace(r.CheckID); r.CheckID != "" {
		checkID, err := id.ParseCheckID(r.CheckID)
		if err != nil {
			return err
		}
		r.checkID = checkID
	}
	return nil
}

// ResolveRequest resolves a discrepancy or red flag.
type ResolveRequest struct {
	Note string `json:"note"`
}

func (r *ResolveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Note = strings.TrimSpace(r.Note)
	if r.Note == "" {
		return dErrors.New(dErrors.CodeValidation, "note is required")
	}
	return nil
}
