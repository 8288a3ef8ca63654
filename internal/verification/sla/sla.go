// Package sla holds the deadline arithmetic for cases and the pure decision
// of what a sweep should do to one case at a given instant.
package sla

import (
	"math"
	"slices"
	"time"

	"bgv/internal/verification/models"
)

// ReminderThresholds are the elapsed percentages at which reminders fire.
var ReminderThresholds = []int{50, 80, 100}

const (
	warningPercent  = 50
	criticalPercent = 80
)

// Deadline is initiatedAt plus slaDays calendar days.
func Deadline(initiatedAt time.Time, slaDays int) time.Time {
	return initiatedAt.AddDate(0, 0, slaDays)
}

// PercentElapsed is the share of the SLA window consumed at now, clamped to
// [0, 100]. A zero-length window counts as fully elapsed once reached.
func PercentElapsed(initiatedAt, deadline, now time.Time) float64 {
	window := deadline.Sub(initiatedAt)
	if window <= 0 {
		if now.Before(deadline) {
			return 0
		}
		return 100
	}
	pct := float64(now.Sub(initiatedAt)) / float64(window) * 100
	return math.Max(0, math.Min(100, pct))
}

// Status classifies the case at now.
func Status(initiatedAt, deadline, now time.Time) models.SLAStatus {
	if now.After(deadline) {
		return models.SLABreached
	}
	pct := PercentElapsed(initiatedAt, deadline, now)
	switch {
	case pct >= criticalPercent:
		return models.SLACritical
	case pct >= warningPercent:
		return models.SLAWarning
	default:
		return models.SLAOnTrack
	}
}

// HoursRemaining until the deadline; negative once breached.
func HoursRemaining(deadline, now time.Time) float64 {
	return deadline.Sub(now).Hours()
}

// DueReminders returns the thresholds crossed at pct that are not in sent.
func DueReminders(pct float64, sent []int) []int {
	var due []int
	for _, t := range ReminderThresholds {
		if pct >= float64(t) && !slices.Contains(sent, t) {
			due = append(due, t)
		}
	}
	return due
}

// Evaluation is a read-only view of a case's SLA position.
type Evaluation struct {
	PercentElapsed float64          `json:"percent_elapsed"`
	Status         models.SLAStatus `json:"status"`
	HoursRemaining float64          `json:"hours_remaining"`
	Deadline       time.Time        `json:"deadline"`
	DueReminders   []int            `json:"due_reminders,omitempty"`
}

// Evaluate computes the SLA position of c at now.
func Evaluate(c models.Case, now time.Time) Evaluation {
	pct := PercentElapsed(c.InitiatedAt, c.Deadline, now)
	return Evaluation{
		PercentElapsed: pct,
		Status:         Status(c.InitiatedAt, c.Deadline, now),
		HoursRemaining: HoursRemaining(c.Deadline, now),
		Deadline:       c.Deadline,
		DueReminders:   DueReminders(pct, c.RemindersSent),
	}
}
