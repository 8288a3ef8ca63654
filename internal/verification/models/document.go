package models

import (
	"maps"
	"strings"
	"time"

	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
)

// DocumentType names a kind of evidence document.
type DocumentType string

const (
	DocAadhaar            DocumentType = "AADHAAR"
	DocPAN                DocumentType = "PAN"
	DocPassport           DocumentType = "PASSPORT"
	DocAddressProof       DocumentType = "ADDRESS_PROOF"
	DocPayslip            DocumentType = "PAYSLIP"
	DocExperienceLetter   DocumentType = "EXPERIENCE_LETTER"
	DocRelievingLetter    DocumentType = "RELIEVING_LETTER"
	DocDegreeCertificate  DocumentType = "DEGREE_CERTIFICATE"
	DocMarksheet          DocumentType = "MARKSHEET"
	DocPoliceVerification DocumentType = "POLICE_VERIFICATION"
	DocReferenceForm      DocumentType = "REFERENCE_FORM"
	DocSocialMediaReport  DocumentType = "SOCIAL_MEDIA_REPORT"
)

func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToUpper(strings.TrimSpace(s)))
	if t == "" {
		return "", dErrors.New(dErrors.CodeValidation, "document_type is required")
	}
	return t, nil
}

// DocumentReviewStatus is the reviewer's verdict on an uploaded document.
type DocumentReviewStatus string

const (
	DocumentPending  DocumentReviewStatus = "PENDING"
	DocumentAccepted DocumentReviewStatus = "ACCEPTED"
	DocumentRejected DocumentReviewStatus = "REJECTED"
)

// HashStatus tracks the asynchronous content fingerprint computation.
type HashStatus string

const (
	HashPending  HashStatus = "PENDING"
	HashComputed HashStatus = "COMPUTED"
	HashFailed   HashStatus = "FAILED"
)

// Document is an uploaded evidence artifact. Documents are never hard deleted;
// a replacement upload creates a new version and supersedes the old one.
type Document struct {
	ID       id.DocumentID `json:"id"`
	TenantID id.TenantID   `json:"tenant_id"`
	CaseID   id.CaseID     `json:"case_id"`
	CheckID  id.CheckID    `json:"check_id"`
	Type     DocumentType  `json:"document_type"`
	Version  int           `json:"version"`

	// Replaces points at the document this upload superseded, if any.
	Replaces   *id.DocumentID `json:"replaces,omitempty"`
	Superseded bool           `json:"superseded"`

	StorageKey string     `json:"storage_key"`
	FileName   string     `json:"file_name"`
	SizeBytes  int64      `json:"size_bytes"`
	IssuedAt   *time.Time `json:"issued_at,omitempty"`
	UploadedAt time.Time  `json:"uploaded_at"`
	UploadedBy id.UserID  `json:"uploaded_by"`

	ContentHash string     `json:"content_hash,omitempty"`
	HashStatus  HashStatus `json:"hash_status"`

	ReviewStatus    DocumentReviewStatus `json:"review_status"`
	ReviewedBy      id.UserID            `json:"reviewed_by"`
	ReviewedAt      *time.Time           `json:"reviewed_at,omitempty"`
	RejectionReason string               `json:"rejection_reason,omitempty"`

	// ExtractedFields are best-effort OCR outputs; advisory only.
	ExtractedFields map[string]string `json:"extracted_fields,omitempty"`

	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy id.UserID  `json:"deleted_by"`
}

// IsActive reports whether the document counts as current evidence.
func (d *Document) IsActive() bool {
	return !d.Deleted && !d.Superseded
}

// EffectiveDate is the issue date when known, otherwise the upload time.
func (d *Document) EffectiveDate() time.Time {
	if d.IssuedAt != nil {
		return *d.IssuedAt
	}
	return d.UploadedAt
}

func (d Document) Clone() Document {
	out := d
	if d.Replaces != nil {
		r := *d.Replaces
		out.Replaces = &r
	}
	out.IssuedAt = cloneTime(d.IssuedAt)
	out.ReviewedAt = cloneTime(d.ReviewedAt)
	out.DeletedAt = cloneTime(d.DeletedAt)
	out.ExtractedFields = maps.Clone(d.ExtractedFields)
	return out
}

// SoftDelete marks the document deleted. Deleting twice is a no-op.
func (d *Document) SoftDelete(actor id.UserID, now time.Time) {
	if d.Deleted {
		return
	}
	d.Deleted = true
	d.DeletedAt = timePtr(now)
	d.DeletedBy = actor
}
