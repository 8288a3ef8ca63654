package evidence

import (
	"fmt"
	"math"
	"time"

	"bgv/internal/verification/models"
)

// IssueCode classifies a validation error or warning.
type IssueCode string

const (
	IssueMissingDocument    IssueCode = "MISSING_DOCUMENT"
	IssueInsufficientCount  IssueCode = "INSUFFICIENT_COUNT"
	IssueNoneOfRequired     IssueCode = "NONE_OF_REQUIRED"
	IssueDocumentRejected   IssueCode = "DOCUMENT_REJECTED"
	IssueReviewPending      IssueCode = "REVIEW_PENDING"
	IssueDocumentStale      IssueCode = "DOCUMENT_STALE"
	IssueHashMissing        IssueCode = "HASH_MISSING"
	IssueHashFailed         IssueCode = "HASH_FAILED"
	IssueFieldMismatch      IssueCode = "FIELD_MISMATCH"
	IssueNoRequirements     IssueCode = "NO_REQUIREMENTS"
	IssueOptionalIncomplete IssueCode = "OPTIONAL_INCOMPLETE"
)

// Issue is one structured validation error or warning.
type Issue struct {
	Code         IssueCode           `json:"code"`
	DocumentType models.DocumentType `json:"document_type,omitempty"`
	Message      string              `json:"message"`
}

// Result is the outcome of validating a check's evidence.
type Result struct {
	// IsValid is true when there are neither errors nor warnings.
	IsValid bool `json:"is_valid"`
	// HasRequiredEvidence is true iff there are no errors.
	HasRequiredEvidence  bool                  `json:"has_required_evidence"`
	EvidenceCompleteness int                   `json:"evidence_completeness"`
	MissingDocumentTypes []models.DocumentType `json:"missing_document_types"`
	Errors               []Issue               `json:"errors"`
	Warnings             []Issue               `json:"warnings"`
}

// ErrorMessages flattens the error messages for display.
func (r Result) ErrorMessages() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Message
	}
	return out
}

// Snapshot converts the result into the form stored on a check.
func (r Result) Snapshot(now time.Time) models.EvidenceSnapshot {
	at := now
	missing := make([]models.DocumentType, len(r.MissingDocumentTypes))
	copy(missing, r.MissingDocumentTypes)
	return models.EvidenceSnapshot{
		HasRequiredEvidence:  r.HasRequiredEvidence,
		Completeness:         r.EvidenceCompleteness,
		MissingDocumentTypes: missing,
		ValidatedAt:          &at,
	}
}

type typeTally struct {
	usable   int
	rejected int
	pending  int
	newest   time.Time
}

// Validate evaluates documents against cfg for check at time now.
//
// Only active documents (not deleted, not superseded) attached to the check
// are counted. A document type is satisfied when it has at least MinCount
// active documents that are not REJECTED. Completeness is the rounded share
// of satisfied mandatory types in both modes; at-least-one-of mode only
// relaxes which unsatisfied types count as errors.
func Validate(check models.Check, documents []models.Document, cfg RequirementConfig, now time.Time) Result {
	res := Result{
		MissingDocumentTypes: []models.DocumentType{},
		Errors:               []Issue{},
		Warnings:             []Issue{},
	}

	tallies := make(map[models.DocumentType]*typeTally)
	var active []models.Document
	for i := range documents {
		d := documents[i]
		if d.CheckID != check.ID || !d.IsActive() {
			continue
		}
		active = append(active, d)
		t, ok := tallies[d.Type]
		if !ok {
			t = &typeTally{}
			tallies[d.Type] = t
		}
		switch d.ReviewStatus {
		case models.DocumentRejected:
			t.rejected++
			continue
		case models.DocumentPending, "":
			t.pending++
		}
		t.usable++
		if eff := d.EffectiveDate(); eff.After(t.newest) {
			t.newest = eff
		}
	}

	mandatory := 0
	satisfied := 0
	var unsatisfied []models.DocumentType
	for _, req := range cfg.Documents {
		t := tallies[req.Type]
		if t == nil {
			t = &typeTally{}
		}
		ok := t.usable >= req.minimum()

		if req.Mandatory {
			mandatory++
			if ok {
				satisfied++
			} else {
				unsatisfied = append(unsatisfied, req.Type)
				if cfg.RequireAllMandatory {
					res.Errors = append(res.Errors, countIssue(req, t.usable))
				}
			}
		} else if t.usable > 0 && !ok {
			res.Warnings = append(res.Warnings, Issue{
				Code:         IssueOptionalIncomplete,
				DocumentType: req.Type,
				Message:      fmt.Sprintf("%s: %d of %d optional documents uploaded", req.Type, t.usable, req.minimum()),
			})
		}

		if t.rejected > 0 {
			res.Errors = append(res.Errors, Issue{
				Code:         IssueDocumentRejected,
				DocumentType: req.Type,
				Message:      fmt.Sprintf("%s: %d document(s) rejected in review", req.Type, t.rejected),
			})
		}
		if t.pending > 0 {
			res.Warnings = append(res.Warnings, Issue{
				Code:         IssueReviewPending,
				DocumentType: req.Type,
				Message:      fmt.Sprintf("%s: %d document(s) awaiting review", req.Type, t.pending),
			})
		}
		if req.MaxAgeDays > 0 && t.usable > 0 {
			cutoff := now.AddDate(0, 0, -req.MaxAgeDays)
			if t.newest.Before(cutoff) {
				res.Warnings = append(res.Warnings, Issue{
					Code:         IssueDocumentStale,
					DocumentType: req.Type,
					Message:      fmt.Sprintf("%s: newest document is older than %d days", req.Type, req.MaxAgeDays),
				})
			}
		}
	}

	if !cfg.RequireAllMandatory && mandatory > 0 && satisfied == 0 {
		res.Errors = append(res.Errors, Issue{
			Code:    IssueNoneOfRequired,
			Message: fmt.Sprintf("at least one of %v is required", unsatisfied),
		})
	}
	if len(cfg.Documents) == 0 {
		res.Warnings = append(res.Warnings, Issue{
			Code:    IssueNoRequirements,
			Message: fmt.Sprintf("no evidence requirements configured for %s", cfg.CheckType),
		})
	}

	for _, d := range active {
		if d.ReviewStatus == models.DocumentRejected {
			continue
		}
		if issue, bad := integrityIssue(d); bad {
			if cfg.RequireIntegrity {
				res.Errors = append(res.Errors, issue)
			} else {
				res.Warnings = append(res.Warnings, issue)
			}
		}
	}

	switch {
	case mandatory == 0:
		res.EvidenceCompleteness = 0
	default:
		res.EvidenceCompleteness = int(math.Round(float64(satisfied) / float64(mandatory) * 100))
	}

	if cfg.RequireAllMandatory || satisfied == 0 {
		res.MissingDocumentTypes = append(res.MissingDocumentTypes, unsatisfied...)
	}

	res.HasRequiredEvidence = len(res.Errors) == 0
	res.IsValid = res.HasRequiredEvidence && len(res.Warnings) == 0
	return res
}

func countIssue(req DocumentRequirement, have int) Issue {
	if have == 0 {
		return Issue{
			Code:         IssueMissingDocument,
			DocumentType: req.Type,
			Message:      fmt.Sprintf("%s is required", req.Type),
		}
	}
	return Issue{
		Code:         IssueInsufficientCount,
		DocumentType: req.Type,
		Message:      fmt.Sprintf("%s: %d of %d required documents uploaded", req.Type, have, req.minimum()),
	}
}

func integrityIssue(d models.Document) (Issue, bool) {
	switch {
	case d.HashStatus == models.HashFailed:
		return Issue{
			Code:         IssueHashFailed,
			DocumentType: d.Type,
			Message:      fmt.Sprintf("%s %s: content hash could not be computed", d.Type, d.ID),
		}, true
	case d.ContentHash == "":
		return Issue{
			Code:         IssueHashMissing,
			DocumentType: d.Type,
			Message:      fmt.Sprintf("%s %s: content hash not yet computed", d.Type, d.ID),
		}, true
	}
	return Issue{}, false
}
