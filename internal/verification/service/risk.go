package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"bgv/internal/verification/models"
	"bgv/internal/verification/risk"
	"bgv/internal/verification/timeline"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/platform/sentinel"
	"bgv/pkg/requestcontext"
)

// RiskInput describes a discrepancy or red flag. Kind must name an entry of
// the risk kind table.
type RiskInput struct {
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

// RecommendationView is the hiring recommendation with the score behind it.
type RecommendationView struct {
	CaseID         id.CaseID             `json:"case_id"`
	TotalRiskScore int                   `json:"total_risk_score"`
	RiskLevel      models.RiskLevel      `json:"risk_level"`
	Recommendation models.Recommendation `json:"recommendation"`
}

// riskChange derives the next score. It runs under the case lock.
type riskChange func(c *models.Case, score models.RiskScore, now time.Time) (models.RiskScore, models.TimelineEntry, error)

// riskHooks run under the case lock around a risk change: validate before
// the score is derived, apply after it is stored.
type riskHooks struct {
	validate func(ctx context.Context, c *models.Case) error
	apply    func(ctx context.Context, c *models.Case) error
}

// AddDiscrepancy records a discrepancy against one of the case's checks and
// marks that check as carrying a discrepancy.
func (s *Service) AddDiscrepancy(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, in RiskInput) (_ *models.RiskScore, err error) {
	ctx, span := s.startSpan(ctx, "AddDiscrepancy",
		attribute.String("case_id", caseID.String()),
		attribute.String("kind", in.Kind))
	defer func() { endSpan(span, err) }()

	if err := requireActor(in.Actor); err != nil {
		return nil, err
	}
	if in.CheckID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "check_id is required for a discrepancy")
	}
	hooks := riskHooks{
		validate: func(ctx context.Context, c *models.Case) error {
			_, err := s.checkOfCase(ctx, c, in.CheckID)
			return err
		},
		apply: func(ctx context.Context, c *models.Case) error {
			return s.markDiscrepancy(ctx, c, in.CheckID)
		},
	}
	return s.changeRisk(ctx, tenantID, caseID, in.Actor, "add discrepancy", hooks,
		func(c *models.Case, score models.RiskScore, now time.Time) (models.RiskScore, models.TimelineEntry, error) {
			next, item, err := s.risk.AddDiscrepancy(score, risk.ItemInput(in), now)
			if err != nil {
				return models.RiskScore{}, models.TimelineEntry{}, err
			}
			return next, riskItemEntry(c, models.ActionDiscrepancyAdded, item, in.Actor, now), nil
		})
}

// AddRedFlag records a red flag, optionally tied to a check.
func (s *Service) AddRedFlag(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, in RiskInput) (_ *models.RiskScore, err error) {
	ctx, span := s.startSpan(ctx, "AddRedFlag",
		attribute.String("case_id", caseID.String()),
		attribute.String("kind", in.Kind))
	defer func() { endSpan(span, err) }()

	if err := requireActor(in.Actor); err != nil {
		return nil, err
	}
	var hooks riskHooks
	if !in.CheckID.IsNil() {
		hooks.validate = func(ctx context.Context, c *models.Case) error {
			_, err := s.checkOfCase(ctx, c, in.CheckID)
			return err
		}
	}
	return s.changeRisk(ctx, tenantID, caseID, in.Actor, "add red flag", hooks,
		func(c *models.Case, score models.RiskScore, now time.Time) (models.RiskScore, models.TimelineEntry, error) {
			next, item, err := s.risk.AddRedFlag(score, risk.ItemInput(in), now)
			if err != nil {
				return models.RiskScore{}, models.TimelineEntry{}, err
			}
			return next, riskItemEntry(c, models.ActionRedFlagAdded, item, in.Actor, now), nil
		})
}

// AddGreenFlag records a positive indicator. It never lowers the score.
func (s *Service) AddGreenFlag(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, in GreenFlagInput) (*models.RiskScore, error) {
	if err := requireActor(in.Actor); err != nil {
		return nil, err
	}
	return s.changeRisk(ctx, tenantID, caseID, in.Actor, "add green flag", riskHooks{},
		func(c *models.Case, score models.RiskScore, now time.Time) (models.RiskScore, models.TimelineEntry, error) {
			next, flag, err := s.risk.AddGreenFlag(score, risk.GreenFlagInput(in), now)
			if err != nil {
				return models.RiskScore{}, models.TimelineEntry{}, err
			}
			e := timeline.Entry(c, models.ActionGreenFlagAdded, in.Actor, now)
			e.CheckID = flag.CheckID
			e.Description = "green flag " + flag.Label
			e.Visibility = models.VisibilityClient
			return next, e, nil
		})
}

// ResolveRiskItem deactivates a discrepancy or red flag so its points no
// longer count.
func (s *Service) ResolveRiskItem(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, itemID string, actor id.UserID, note string) (*models.RiskScore, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(note) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "resolution note is required")
	}
	return s.changeRisk(ctx, tenantID, caseID, actor, "resolve risk item", riskHooks{},
		func(c *models.Case, score models.RiskScore, now time.Time) (models.RiskScore, models.TimelineEntry, error) {
			next, item, err := s.risk.Resolve(score, itemID, actor, note, now)
			if err != nil {
				return models.RiskScore{}, models.TimelineEntry{}, err
			}
			e := riskItemEntry(c, models.ActionRiskItemResolved, item, actor, now)
			e.Description = fmt.Sprintf("%s resolved (-%d): %s", item.Kind, item.Points, note)
			return next, e, nil
		})
}

// Recommendation returns the hiring recommendation for a case.
func (s *Service) Recommendation(ctx context.Context, tenantID id.TenantID, caseID id.CaseID) (*RecommendationView, error) {
	c, err := s.repo.FindCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, translate(err, "case", "load case")
	}
	score, err := s.loadRisk(ctx, c)
	if err != nil {
		return nil, err
	}
	return &RecommendationView{
		CaseID:         caseID,
		TotalRiskScore: score.TotalRiskScore,
		RiskLevel:      score.RiskLevel,
		Recommendation: risk.Recommendation(*score),
	}, nil
}

func (s *Service) changeRisk(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, actor id.UserID, action string, hooks riskHooks, change riskChange) (*models.RiskScore, error) {
	now := requestcontext.Now(ctx)
	var (
		out     models.RiskScore
		entries []models.TimelineEntry
	)
	err := s.withCase(ctx, caseID, func(ctx context.Context) error {
		c, err := s.repo.FindCase(ctx, tenantID, caseID)
		if err != nil {
			return err
		}
		if c.IsImmutable {
			return dErrors.New(dErrors.CodeImmutableCase, "case is closed; risk can no longer change")
		}
		if hooks.validate != nil {
			if err := hooks.validate(ctx, c); err != nil {
				return err
			}
		}
		score, err := s.loadRisk(ctx, c)
		if err != nil {
			return err
		}
		prevLevel := score.RiskLevel
		next, entry, err := change(c, *score, now)
		if err != nil {
			return err
		}
		if err := s.repo.SaveRiskScore(ctx, &next); err != nil {
			return err
		}
		s.recordLevelChange(prevLevel, next.RiskLevel)
		if hooks.apply != nil {
			if err := hooks.apply(ctx, c); err != nil {
				return err
			}
		}
		entries = append(entries, entry)
		if caseEntry, err := s.refreshCaseStatus(ctx, c, actor, now); err != nil {
			return err
		} else if caseEntry != nil {
			entries = append(entries, *caseEntry)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, translate(err, "risk score", action)
	}
	s.timeline.Record(ctx, entries...)
	return &out, nil
}

// markDiscrepancy flags a check of the case as carrying a discrepancy.
func (s *Service) markDiscrepancy(ctx context.Context, c *models.Case, checkID id.CheckID) error {
	ch, err := s.checkOfCase(ctx, c, checkID)
	if err != nil {
		return err
	}
	if ch.HasDiscrepancy {
		return nil
	}
	next := ch.Clone()
	next.HasDiscrepancy = true
	next.UpdatedAt = requestcontext.Now(ctx)
	return s.repo.UpdateCheck(ctx, &next)
}

func (s *Service) checkOfCase(ctx context.Context, c *models.Case, checkID id.CheckID) (*models.Check, error) {
	ch, err := s.repo.FindCheck(ctx, c.TenantID, checkID)
	if err != nil {
		return nil, translate(err, "check", "load check")
	}
	if ch.CaseID != c.ID {
		return nil, dErrors.New(dErrors.CodeValidation, "check does not belong to the case")
	}
	return ch, nil
}

// loadRisk returns the case's score, or a fresh CLEAR score when none has
// been stored yet.
func (s *Service) loadRisk(ctx context.Context, c *models.Case) (*models.RiskScore, error) {
	score, err := s.repo.FindRiskScore(ctx, c.TenantID, c.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		fresh := models.NewRiskScore(c.ID, c.TenantID, c.InitiatedAt)
		return &fresh, nil
	}
	if err != nil {
		return nil, translate(err, "risk score", "load risk score")
	}
	return score, nil
}

func (s *Service) recordLevelChange(prev, next models.RiskLevel) {
	if prev != next {
		s.metrics.RecordRiskLevelChange(string(next))
	}
}

// riskItemEntry builds the timeline entry for a discrepancy or red flag.
func riskItemEntry(c *models.Case, action models.TimelineAction, item models.RiskItem, actor id.UserID, now time.Time) models.TimelineEntry {
	e := timeline.Entry(c, action, actor, now)
	e.CheckID = item.CheckID
	e.Description = fmt.Sprintf("%s %s (+%d points, %s)", item.Category, item.Kind, item.Points, item.Severity)
	return e
}
