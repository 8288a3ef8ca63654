package risk

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"bgv/internal/verification/models"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
)

// ItemInput describes a discrepancy or red flag being recorded.
type ItemInput struct {
	Kind        string
	CheckID     id.CheckID
	Description string
	Actor       id.UserID
}

// GreenFlagInput describes a positive indicator.
type GreenFlagInput struct {
	Label       string
	CheckID     id.CheckID
	Description string
	Actor       id.UserID
}

// Engine applies risk operations to RiskScore snapshots. Every method
// returns a new snapshot and leaves its input untouched.
type Engine struct {
	table *Table
}

// NewEngine builds an engine over a validated kind table.
func NewEngine(table *Table) *Engine {
	return &Engine{table: table}
}

// Table exposes the kind table.
func (e *Engine) Table() *Table { return e.table }

// AddDiscrepancy records a discrepancy against a check and rescores.
func (e *Engine) AddDiscrepancy(score models.RiskScore, in ItemInput, now time.Time) (models.RiskScore, models.RiskItem, error) {
	if in.CheckID == (id.CheckID{}) {
		return models.RiskScore{}, models.RiskItem{}, dErrors.New(dErrors.CodeValidation, "discrepancy requires a check")
	}
	item, err := e.newItem(in, now)
	if err != nil {
		return models.RiskScore{}, models.RiskItem{}, err
	}
	next := score.Clone()
	next.Discrepancies = append(next.Discrepancies, item)
	next = rescore(next, fmt.Sprintf("discrepancy %s (+%d)", item.Kind, item.Points), in.Actor, now, true)
	return next, item, nil
}

// AddRedFlag records a red flag, optionally tied to a check, and rescores.
func (e *Engine) AddRedFlag(score models.RiskScore, in ItemInput, now time.Time) (models.RiskScore, models.RiskItem, error) {
	item, err := e.newItem(in, now)
	if err != nil {
		return models.RiskScore{}, models.RiskItem{}, err
	}
	next := score.Clone()
	next.RedFlags = append(next.RedFlags, item)
	next = rescore(next, fmt.Sprintf("red flag %s (+%d)", item.Kind, item.Points), in.Actor, now, true)
	return next, item, nil
}

// AddGreenFlag records a positive indicator. The score is unchanged.
func (e *Engine) AddGreenFlag(score models.RiskScore, in GreenFlagInput, now time.Time) (models.RiskScore, models.GreenFlag, error) {
	if in.Label == "" {
		return models.RiskScore{}, models.GreenFlag{}, dErrors.New(dErrors.CodeValidation, "green flag label is required")
	}
	flag := models.GreenFlag{
		ID:          uuid.NewString(),
		Label:       in.Label,
		CheckID:     in.CheckID,
		Description: in.Description,
		AddedBy:     in.Actor,
		AddedAt:     now,
	}
	next := score.Clone()
	next.GreenFlags = append(next.GreenFlags, flag)
	next.UpdatedAt = now
	return next, flag, nil
}

// Resolve deactivates a discrepancy or red flag; its points leave the total.
func (e *Engine) Resolve(score models.RiskScore, itemID string, actor id.UserID, note string, now time.Time) (models.RiskScore, models.RiskItem, error) {
	next := score.Clone()
	for _, list := range [][]models.RiskItem{next.Discrepancies, next.RedFlags} {
		for i := range list {
			if list[i].ID != itemID {
				continue
			}
			if !list[i].Active {
				return models.RiskScore{}, models.RiskItem{}, dErrors.Newf(dErrors.CodeConflict, "risk item %s is already resolved", itemID)
			}
			at := now
			list[i].Active = false
			list[i].ResolvedBy = actor
			list[i].ResolvedAt = &at
			list[i].ResolutionNote = note
			resolved := list[i]
			next = rescore(next, fmt.Sprintf("resolved %s (-%d)", resolved.Kind, resolved.Points), actor, now, true)
			return next, resolved, nil
		}
	}
	return models.RiskScore{}, models.RiskItem{}, dErrors.Newf(dErrors.CodeNotFound, "risk item %s not found", itemID)
}

// Recalculate recomputes the total and level from the active items. A
// history entry is written only when either changes, so repeated calls are
// idempotent.
func (e *Engine) Recalculate(score models.RiskScore, actor id.UserID, now time.Time) models.RiskScore {
	return rescore(score.Clone(), "recalculated", actor, now, false)
}

// Recommendation maps a score to a hiring recommendation.
func Recommendation(score models.RiskScore) models.Recommendation {
	switch LevelFor(ActiveTotal(score)) {
	case models.RiskClear, models.RiskLow:
		return models.RecommendApprove
	case models.RiskModerate:
		for _, f := range score.RedFlags {
			if f.Active && f.Severity == models.SeverityCritical {
				return models.RecommendFurtherInvestigation
			}
		}
		return models.RecommendApproveWithConditions
	case models.RiskHigh:
		return models.RecommendFurtherInvestigation
	default:
		return models.RecommendReject
	}
}

// ActiveTotal sums the points of active discrepancies and red flags.
func ActiveTotal(score models.RiskScore) int {
	total := 0
	for _, d := range score.Discrepancies {
		if d.Active {
			total += d.Points
		}
	}
	for _, f := range score.RedFlags {
		if f.Active {
			total += f.Points
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

func (e *Engine) newItem(in ItemInput, now time.Time) (models.RiskItem, error) {
	info, err := e.table.Parse(in.Kind)
	if err != nil {
		return models.RiskItem{}, err
	}
	return models.RiskItem{
		ID:          uuid.NewString(),
		Kind:        info.Kind,
		Category:    string(info.Category),
		CheckID:     in.CheckID,
		Points:      info.Points,
		Severity:    SeverityFor(info.Points),
		Description: in.Description,
		AddedBy:     in.Actor,
		AddedAt:     now,
		Active:      true,
	}, nil
}

func rescore(next models.RiskScore, reason string, actor id.UserID, now time.Time, always bool) models.RiskScore {
	prevScore, prevLevel := next.TotalRiskScore, next.RiskLevel
	next.TotalRiskScore = ActiveTotal(next)
	next.RiskLevel = LevelFor(next.TotalRiskScore)
	if !always && prevScore == next.TotalRiskScore && prevLevel == next.RiskLevel {
		return next
	}
	next.History = append(next.History, models.ScoreChange{
		At:            now,
		PreviousScore: prevScore,
		NewScore:      next.TotalRiskScore,
		PreviousLevel: prevLevel,
		NewLevel:      next.RiskLevel,
		Reason:        reason,
		Actor:         actor,
	})
	next.UpdatedAt = now
	return next
}
