package models

import (
	"strings"
	"time"

	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
)

// ReviewDecision is the checker's decision on a maker's verification.
type ReviewDecision string

const (
	ReviewApproved ReviewDecision = "APPROVED"
	ReviewRejected ReviewDecision = "REJECTED"
	// ReviewSentBack returns the check to the maker; it is an explicit new
	// decision, not a cancellation of the earlier verification.
	ReviewSentBack ReviewDecision = "SENT_BACK"
)

func ParseReviewDecision(s string) (ReviewDecision, error) {
	d := ReviewDecision(strings.ToUpper(strings.TrimSpace(s)))
	switch d {
	case ReviewApproved, ReviewRejected, ReviewSentBack:
		return d, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown review decision %q", s)
}

// Review is the maker-checker sub-record of a check.
type Review struct {
	MakerID           id.UserID   `json:"maker_id"`
	ProposedStatus    CheckStatus `json:"proposed_status,omitempty"`
	VerificationNotes string      `json:"verification_notes,omitempty"`
	VerifiedAt        *time.Time  `json:"verified_at,omitempty"`

	CheckerID id.UserID      `json:"checker_id"`
	Decision  ReviewDecision `json:"decision,omitempty"`
	Comments  string         `json:"comments,omitempty"`
	DecidedAt *time.Time     `json:"decided_at,omitempty"`
}

// IsVerificationComplete reports whether a maker has submitted a verification.
func (r Review) IsVerificationComplete() bool {
	return !r.MakerID.IsNil() && r.VerifiedAt != nil
}

// IsDecided reports whether a checker has recorded a decision on the current
// verification.
func (r Review) IsDecided() bool {
	return r.DecidedAt != nil && r.Decision != ""
}

// IsApproved reports whether the current verification was approved by a
// checker other than its maker.
func (r Review) IsApproved() bool {
	return r.IsVerificationComplete() &&
		r.Decision == ReviewApproved &&
		!r.CheckerID.IsNil() &&
		r.CheckerID != r.MakerID
}

func (r Review) Clone() Review {
	out := r
	out.VerifiedAt = cloneTime(r.VerifiedAt)
	out.DecidedAt = cloneTime(r.DecidedAt)
	return out
}
