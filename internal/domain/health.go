// Package domain contains core business types and interfaces.
//
// This file defines the financial health score.
package domain

import "math"

// HealthInputs are the trailing figures the score is computed from.
type HealthInputs struct {
	Income30       Money
	Expenses30     Money
	EmergencyFund  Money   // Current amount across emergency_fund goals
	WeeklyExpenses []Money // Trailing weeks, oldest first
	Goals          []FinancialGoal
}

// HealthScore is a 0-100 score with its component breakdown.
type HealthScore struct {
	Score      int            `json:"score"`
	Grade      string         `json:"grade"`
	Components map[string]int `json:"components"`
	Tips       []string       `json:"tips"`
}

// Component weights. They sum to 100.
const (
	healthSavingsMax   = 30
	healthEmergencyMax = 30
	healthGoalsMax     = 20
	healthStabilityMax = 20
)

// ComputeHealthScore scores savings rate, emergency coverage, goal progress and
// spending stability.
func ComputeHealthScore(in HealthInputs) HealthScore {
	components := make(map[string]int, 4)
	var tips []string

	// Savings: full marks at a 20% savings rate.
	rate := SavingsRate(in.Income30, in.Expenses30)
	savings := int(math.Round(clamp(rate/20, 0, 1) * healthSavingsMax))
	components["savings"] = savings
	if rate < 10 {
		tips = append(tips, "Try to save at least 10% of your income each month.")
	}

	// Emergency fund: full marks at three months of expenses.
	emergency := 0
	if in.Expenses30 > 0 {
		months := float64(in.EmergencyFund) / float64(in.Expenses30)
		emergency = int(math.Round(clamp(months/3, 0, 1) * healthEmergencyMax))
		if months < 1 {
			tips = append(tips, "Build an emergency fund covering at least one month of expenses.")
		}
	} else if in.EmergencyFund > 0 {
		emergency = healthEmergencyMax
	}
	components["emergency_fund"] = emergency

	// Goals: average progress of active goals.
	goals := 0
	var active int
	var progress float64
	for i := range in.Goals {
		if in.Goals[i].Status != GoalStatusActive {
			continue
		}
		active++
		progress += clamp(in.Goals[i].ProgressPercent(), 0, 100)
	}
	if active > 0 {
		goals = int(math.Round(progress / float64(active) / 100 * healthGoalsMax))
	} else {
		tips = append(tips, "Set a financial goal to give your savings a purpose.")
	}
	components["goals"] = goals

	// Stability: lose marks as weekly deviation approaches the mean.
	stability := healthStabilityMax
	v := WeeklyVolatility(in.WeeklyExpenses)
	if v.Mean > 0 {
		stability = int(math.Round((1 - clamp(v.MaxDeviation/v.Mean, 0, 1)) * healthStabilityMax))
	}
	if v.Volatile {
		tips = append(tips, "Your weekly spending swings a lot. A weekly budget can smooth it out.")
	}
	components["stability"] = stability

	score := savings + emergency + goals + stability
	return HealthScore{
		Score:      score,
		Grade:      healthGrade(score),
		Components: components,
		Tips:       tips,
	}
}

func healthGrade(score int) string {
	switch {
	case score >= 85:
		return "A"
	case score >= 70:
		return "B"
	case score >= 55:
		return "C"
	case score >= 40:
		return "D"
	default:
		return "F"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
