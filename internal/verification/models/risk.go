package models

import (
	"slices"
	"time"

	id "bgv/pkg/domain"
)

// RiskLevel is the band the cumulative risk score falls into.
type RiskLevel string

const (
	RiskClear    RiskLevel = "CLEAR"
	RiskLow      RiskLevel = "LOW_RISK"
	RiskModerate RiskLevel = "MODERATE_RISK"
	RiskHigh     RiskLevel = "HIGH_RISK"
	RiskCritical RiskLevel = "CRITICAL"
)

// Severity grades a single discrepancy or red flag by its points.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Recommendation is the hiring recommendation derived from a risk score.
type Recommendation string

const (
	RecommendApprove               Recommendation = "APPROVE"
	RecommendApproveWithConditions Recommendation = "APPROVE_WITH_CONDITIONS"
	RecommendFurtherInvestigation  Recommendation = "FURTHER_INVESTIGATION"
	RecommendReject                Recommendation = "REJECT"
)

// RiskItemKind names an entry in the fixed discrepancy/flag point table.
type RiskItemKind string

// RiskItem is a discrepancy or red flag contributing points while Active.
type RiskItem struct {
	ID          string       `json:"id"`
	Kind        RiskItemKind `json:"kind"`
	Category    string       `json:"category"`
	CheckID     id.CheckID   `json:"check_id"`
	Points      int          `json:"points"`
	Severity    Severity     `json:"severity"`
	Description string       `json:"description"`
	AddedBy     id.UserID    `json:"added_by"`
	AddedAt     time.Time    `json:"added_at"`

	Active         bool       `json:"active"`
	ResolvedBy     id.UserID  `json:"resolved_by"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
}

// GreenFlag is a positive, informational indicator. It never changes the score.
type GreenFlag struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	CheckID     id.CheckID `json:"check_id"`
	Description string     `json:"description"`
	AddedBy     id.UserID  `json:"added_by"`
	AddedAt     time.Time  `json:"added_at"`
}

// ScoreChange is one entry in the score history.
type ScoreChange struct {
	At            time.Time `json:"at"`
	PreviousScore int       `json:"previous_score"`
	NewScore      int       `json:"new_score"`
	PreviousLevel RiskLevel `json:"previous_level"`
	NewLevel      RiskLevel `json:"new_level"`
	Reason        string    `json:"reason"`
	Actor         id.UserID `json:"actor"`
}

// RiskScore is the accumulating risk record of one case.
//
// Invariant: TotalRiskScore equals the sum of Points over active discrepancies
// and active red flags, and is never negative.
type RiskScore struct {
	CaseID         id.CaseID     `json:"case_id"`
	TenantID       id.TenantID   `json:"tenant_id"`
	TotalRiskScore int           `json:"total_risk_score"`
	RiskLevel      RiskLevel     `json:"risk_level"`
	Discrepancies  []RiskItem    `json:"discrepancies"`
	RedFlags       []RiskItem    `json:"red_flags"`
	GreenFlags     []GreenFlag   `json:"green_flags"`
	History        []ScoreChange `json:"history"`
	Version        int           `json:"version"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// NewRiskScore returns an empty CLEAR score for a case.
func NewRiskScore(caseID id.CaseID, tenantID id.TenantID, now time.Time) RiskScore {
	return RiskScore{
		CaseID:    caseID,
		TenantID:  tenantID,
		RiskLevel: RiskClear,
		UpdatedAt: now,
	}
}

// DiscrepanciesFor returns the discrepancies recorded against one check.
func (r *RiskScore) DiscrepanciesFor(checkID id.CheckID) []RiskItem {
	var out []RiskItem
	for _, d := range r.Discrepancies {
		if d.CheckID == checkID {
			out = append(out, d)
		}
	}
	return out
}

func (r RiskScore) Clone() RiskScore {
	out := r
	out.Discrepancies = cloneItems(r.Discrepancies)
	out.RedFlags = cloneItems(r.RedFlags)
	out.GreenFlags = slices.Clone(r.GreenFlags)
	out.History = slices.Clone(r.History)
	return out
}

func cloneItems(items []RiskItem) []RiskItem {
	if items == nil {
		return nil
	}
	out := make([]RiskItem, len(items))
	for i, it := range items {
		it.ResolvedAt = cloneTime(it.ResolvedAt)
		out[i] = it
	}
	return out
}
