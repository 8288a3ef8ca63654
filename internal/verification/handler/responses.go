package handler

import (
	"bgv/internal/verification/models"
	"bgv/internal/verification/statemachine"
	id "bgv/pkg/domain"
)

// TransitionTableResponse documents the workflow for clients.
type TransitionTableResponse struct {
	Transitions      statemachine.Table   `json:"transitions"`
	RequiresEvidence []models.CheckStatus `json:"requires_evidence"`
	RequiresApproval []models.CheckStatus `json:"requires_approval"`
}

type TimelineResponse struct {
	CaseID     id.CaseID              `json:"case_id"`
	Visibility models.Visibility      `json:"visibility"`
	Entries    []models.TimelineEntry `json:"entries"`
}

type ReminderResponse struct {
	CaseID    id.CaseID `json:"case_id"`
	Delivered bool      `json:"delivered"`
}

func gated(gate func(models.CheckStatus) bool) []models.CheckStatus {
	var out []models.CheckStatus
	for _, s := range models.AllCheckStatuses {
		if gate(s) {
			out = append(out, s)
		}
	}
	return out
}
