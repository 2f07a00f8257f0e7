// Package domain contains core business types and interfaces.
//
// This file defines financial goals and the milestone thresholds tracked
// against them.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// GoalStatus represents the lifecycle of a financial goal.
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusArchived  GoalStatus = "archived"
)

// GoalCategory groups goals for rule evaluation.
type GoalCategory string

const (
	GoalCategoryEmergencyFund GoalCategory = "emergency_fund"
	GoalCategorySavings       GoalCategory = "savings"
	GoalCategoryDebt          GoalCategory = "debt"
	GoalCategoryPurchase      GoalCategory = "purchase"
	GoalCategoryRetirement    GoalCategory = "retirement"
	GoalCategoryOther         GoalCategory = "other"
)

// Valid reports whether c is a known category.
func (c GoalCategory) Valid() bool {
	switch c {
	case GoalCategoryEmergencyFund, GoalCategorySavings, GoalCategoryDebt,
		GoalCategoryPurchase, GoalCategoryRetirement, GoalCategoryOther:
		return true
	default:
		return false
	}
}

// FinancialGoal is a savings target owned by a user.
type FinancialGoal struct {
	ID            uuid.UUID    `json:"id"`
	UserID        uuid.UUID    `json:"user_id"`
	Name          string       `json:"name"`
	Category      GoalCategory `json:"category"`
	TargetAmount  Money        `json:"target_amount"`
	CurrentAmount Money        `json:"current_amount"`
	TargetDate    *time.Time   `json:"target_date,omitempty"`
	Status        GoalStatus   `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ProgressPercent returns current/target as a percentage.
func (g *FinancialGoal) ProgressPercent() float64 {
	return ProgressPercent(g.CurrentAmount, g.TargetAmount)
}

// Remaining returns the amount still needed, never negative.
func (g *FinancialGoal) Remaining() Money {
	if g.CurrentAmount >= g.TargetAmount {
		return 0
	}
	return g.TargetAmount - g.CurrentAmount
}

// CheckContribution returns why delta cannot be applied to the goal, or nil.
func (g *FinancialGoal) CheckContribution(delta Money) error {
	switch {
	case delta == 0:
		return errors.New("Contribution amount cannot be zero")
	case g.Status == GoalStatusArchived:
		return errors.New("Archived goals cannot receive contributions")
	case !delta.InRange() || !(g.CurrentAmount + delta).InRange():
		return errors.New("Contribution exceeds the maximum goal balance")
	case g.CurrentAmount+delta < 0:
		return errors.New("Withdrawal exceeds the goal balance")
	}
	return nil
}

// DaysUntilDeadline returns whole days from now's local day to the target date.
// ok is false when the goal has no target date.
func (g *FinancialGoal) DaysUntilDeadline(now time.Time) (days int, ok bool) {
	if g.TargetDate == nil {
		return 0, false
	}
	loc := now.Location()
	return DaysBetween(StartOfDay(now, loc), StartOfDay(g.TargetDate.In(loc), loc)), true
}

// ProgressPercent computes current/target*100, or 0 when target is not positive.
func ProgressPercent(current, target Money) float64 {
	if target <= 0 {
		return 0
	}
	return float64(current) / float64(target) * 100
}

// =============================================================================
// Milestones
// =============================================================================

// MilestoneThresholds are the percentage-of-target marks, ascending.
var MilestoneThresholds = []int{25, 50, 75, 100}

// GoalMilestone records the first time a goal crossed a threshold.
// At most one row exists per (GoalID, Milestone).
type GoalMilestone struct {
	ID                uuid.UUID `json:"id"`
	GoalID            uuid.UUID `json:"goal_id"`
	UserID            uuid.UUID `json:"user_id"`
	Milestone         int       `json:"milestone"`
	AmountAtMilestone Money     `json:"amount_at_milestone"`
	IsSeen            bool      `json:"is_seen"`
	CreatedAt         time.Time `json:"created_at"`
}

// CrossedThresholds returns every threshold at or below the goal's progress.
func CrossedThresholds(current, target Money) []int {
	pct := ProgressPercent(current, target)
	var crossed []int
	for _, t := range MilestoneThresholds {
		if pct >= float64(t) {
			crossed = append(crossed, t)
		}
	}
	return crossed
}

// =============================================================================
// Service Parameters
// =============================================================================

// CreateGoalParams contains parameters for creating a goal.
type CreateGoalParams struct {
	UserID        uuid.UUID
	Name          string
	Category      GoalCategory
	TargetAmount  Money
	CurrentAmount Money
	TargetDate    *time.Time
}

// UpdateGoalParams contains the mutable fields of a goal. Nil fields are left unchanged.
type UpdateGoalParams struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Name          *string
	Category      *GoalCategory
	TargetAmount  *Money
	CurrentAmount *Money
	TargetDate    *time.Time
}

// GoalUpdateResult reports the side effects of an amount-changing goal mutation.
type GoalUpdateResult struct {
	Goal          *FinancialGoal  `json:"goal"`
	NewMilestones []GoalMilestone `json:"new_milestones"`
	Completed     bool            `json:"completed"`
}
