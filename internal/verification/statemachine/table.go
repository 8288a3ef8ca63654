// Package statemachine owns the legal status transitions of a verification check.
//
// The transition table is plain data validated at construction. Planning a
// transition is a pure function of the current check snapshot and the gate
// verdicts supplied by the caller; persisting the result is the caller's job.
package statemachine

import (
	"fmt"
	"slices"

	"bgv/internal/verification/models"
)

// Table maps a source status to the statuses it may move to.
type Table map[models.CheckStatus][]models.CheckStatus

// DefaultTable is the check workflow.
var DefaultTable = Table{
	models.CheckNotStarted:        {models.CheckAssigned, models.CheckDocumentsPending},
	models.CheckAssigned:          {models.CheckInProgress, models.CheckDocumentsPending},
	models.CheckDocumentsPending:  {models.CheckDocumentsUploaded, models.CheckEscalated},
	models.CheckDocumentsUploaded: {models.CheckUnderVerification, models.CheckDocumentsPending},
	models.CheckInProgress:        {models.CheckUnderVerification, models.CheckAwaitingResponse, models.CheckEscalated},
	models.CheckAwaitingResponse:  {models.CheckUnderVerification, models.CheckInProgress, models.CheckEscalated},
	models.CheckUnderVerification: {models.CheckUnderReview, models.CheckInProgress, models.CheckEscalated},
	models.CheckUnderReview:       {models.CheckVerified, models.CheckDiscrepancy, models.CheckFailed, models.CheckEscalated},
	models.CheckDiscrepancy:       {models.CheckUnderReview, models.CheckFailed, models.CheckEscalated},
	models.CheckVerified:          {models.CheckClosed},
	models.CheckFailed:            {models.CheckClosed, models.CheckEscalated},
	models.CheckEscalated:         {models.CheckUnderReview, models.CheckInProgress},
	models.CheckClosed:            {},
}

// Statuses entering which require sufficient evidence.
var evidenceRequired = map[models.CheckStatus]bool{
	models.CheckVerified:    true,
	models.CheckUnderReview: true,
	models.CheckDiscrepancy: true,
	models.CheckFailed:      true,
}

// Statuses entering which require an approved maker-checker review.
var approvalRequired = map[models.CheckStatus]bool{
	models.CheckVerified: true,
	models.CheckClosed:   true,
}

// RequiresEvidence reports whether entering s is evidence-gated.
func RequiresEvidence(s models.CheckStatus) bool { return evidenceRequired[s] }

// RequiresApproval reports whether entering s is approval-gated.
func RequiresApproval(s models.CheckStatus) bool { return approvalRequired[s] }

// terminalStatuses have no outgoing edges by definition.
var terminalStatuses = map[models.CheckStatus]bool{
	models.CheckClosed: true,
}

// Machine is a validated, immutable transition table.
type Machine struct {
	edges map[models.CheckStatus]map[models.CheckStatus]struct{}
}

// New validates table and builds a Machine from it.
func New(table Table) (*Machine, error) {
	if err := Validate(table); err != nil {
		return nil, err
	}
	m := &Machine{edges: make(map[models.CheckStatus]map[models.CheckStatus]struct{}, len(table))}
	for from, tos := range table {
		set := make(map[models.CheckStatus]struct{}, len(tos))
		for _, to := range tos {
			set[to] = struct{}{}
		}
		m.edges[from] = set
	}
	return m, nil
}

// MustDefault builds the default machine. It panics if DefaultTable is
// malformed, which surfaces at process start rather than on first use.
func MustDefault() *Machine {
	m, err := New(DefaultTable)
	if err != nil {
		panic(fmt.Sprintf("statemachine: invalid default table: %v", err))
	}
	return m
}

// Validate checks table completeness:
//   - every defined status has an entry
//   - every referenced status is defined
//   - terminal statuses have no outgoing edges
//   - every non-terminal status has at least one outgoing edge
//   - no self loops or duplicate edges
func Validate(table Table) error {
	for _, s := range models.AllCheckStatuses {
		if _, ok := table[s]; !ok {
			return fmt.Errorf("status %s has no table entry", s)
		}
	}
	for from, tos := range table {
		if !from.IsDefined() {
			return fmt.Errorf("source status %q is not defined", from)
		}
		if terminalStatuses[from] {
			if len(tos) > 0 {
				return fmt.Errorf("terminal status %s must not have outgoing transitions", from)
			}
			continue
		}
		if len(tos) == 0 {
			return fmt.Errorf("non-terminal status %s has no outgoing transitions", from)
		}
		seen := make(map[models.CheckStatus]bool, len(tos))
		for _, to := range tos {
			if !to.IsDefined() {
				return fmt.Errorf("status %s references undefined status %q", from, to)
			}
			if to == from {
				return fmt.Errorf("status %s has a self transition", from)
			}
			if seen[to] {
				return fmt.Errorf("status %s lists %s twice", from, to)
			}
			seen[to] = true
		}
	}
	return nil
}

// CanTransition reports whether from -> to is an edge of the table.
func (m *Machine) CanTransition(from, to models.CheckStatus) bool {
	_, ok := m.edges[from][to]
	return ok
}

// Allowed returns the destinations reachable from a status, in workflow order.
func (m *Machine) Allowed(from models.CheckStatus) []models.CheckStatus {
	out := make([]models.CheckStatus, 0, len(m.edges[from]))
	for _, s := range models.AllCheckStatuses {
		if _, ok := m.edges[from][s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// IsTerminal reports whether a status has no outgoing transitions.
func (m *Machine) IsTerminal(s models.CheckStatus) bool {
	return len(m.edges[s]) == 0
}

// Edges returns a copy of the table for display.
func (m *Machine) Edges() Table {
	out := make(Table, len(m.edges))
	for _, s := range models.AllCheckStatuses {
		out[s] = m.Allowed(s)
	}
	return out
}

func statusStrings(statuses []models.CheckStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	slices.Sort(out)
	return out
}
