// Package domain contains core business types and interfaces.
//
// This file defines daily check-in streaks, the check-in state machine and
// the streak achievements unlocked by it.
package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// UserStreak is the per-user check-in state. One row per user.
type UserStreak struct {
	UserID         uuid.UUID  `json:"user_id"`
	CurrentStreak  int        `json:"current_streak"`
	LongestStreak  int        `json:"longest_streak"`
	TotalCheckIns  int        `json:"total_check_ins"`
	LastCheckIn    *time.Time `json:"last_check_in,omitempty"`
	WeeklyProgress [7]bool    `json:"weekly_progress"` // Index 0 is Sunday
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CheckInResult is returned to callers of a check-in.
type CheckInResult struct {
	StreakIncreased bool       `json:"streak_increased"`
	StreakReset     bool       `json:"streak_reset"`
	NewStreak       int        `json:"new_streak"`
	Streak          UserStreak `json:"streak"`
	NewAchievements []string   `json:"new_achievements"`
}

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DaysBetween returns the number of calendar days from a to b, both local midnights.
// Rounding absorbs 23h and 25h days around DST changes.
func DaysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// WeekStart returns the Sunday midnight that starts the week containing day.
func WeekStart(day time.Time) time.Time {
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// ApplyCheckIn advances a streak for a check-in at now, evaluated in loc.
//
//   - no prior state or no last check-in: streak starts at 1
//   - same calendar day: no-op, changed is false
//   - next calendar day: streak grows by one
//   - gap of two or more days: streak restarts at 1
//
// Every recorded check-in increments TotalCheckIns. prev is not modified.
func ApplyCheckIn(prev *UserStreak, userID uuid.UUID, now time.Time, loc *time.Location) (next UserStreak, changed bool, reset bool) {
	today := StartOfDay(now, loc)

	if prev != nil {
		next = *prev
	}
	next.UserID = userID

	var lastDay time.Time
	hasLast := prev != nil && prev.LastCheckIn != nil
	if hasLast {
		lastDay = StartOfDay(*prev.LastCheckIn, loc)
	}

	switch {
	case !hasLast:
		next.CurrentStreak = 1
	default:
		diff := DaysBetween(lastDay, today)
		switch {
		case diff <= 0:
			// Already checked in today (or clock moved backwards).
			return next, false, false
		case diff == 1:
			next.CurrentStreak++
		default:
			next.CurrentStreak = 1
			reset = true
		}
	}

	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}
	next.TotalCheckIns++
	next.WeeklyProgress = weeklyProgress(next.WeeklyProgress, hasLast, lastDay, today)

	checkIn := now
	next.LastCheckIn = &checkIn
	next.UpdatedAt = now
	return next, true, reset
}

// weeklyProgress carries the stored week forward when the last check-in falls in
// the current Sunday-start week, otherwise starts a fresh week. Today's slot is set.
func weeklyProgress(prior [7]bool, hasLast bool, lastDay, today time.Time) [7]bool {
	var week [7]bool
	if hasLast && !lastDay.Before(WeekStart(today)) {
		week = prior
	}
	week[today.Weekday()] = true
	return week
}

// =============================================================================
// Achievements
// =============================================================================

// AchievementDef describes an unlockable achievement.
type AchievementDef struct {
	ID          string
	Title       string
	Description string
	Target      int
}

// StreakAchievements are unlocked by reaching a current streak length.
var StreakAchievements = []AchievementDef{
	{ID: "streak_7", Title: "Week Warrior", Description: "Checked in 7 days in a row", Target: 7},
	{ID: "streak_30", Title: "Monthly Master", Description: "Checked in 30 days in a row", Target: 30},
}

// UserAchievement tracks progress toward one achievement. Frozen once EarnedAt is set.
type UserAchievement struct {
	UserID        uuid.UUID  `json:"user_id"`
	AchievementID string     `json:"achievement_id"`
	Progress      int        `json:"progress"`
	Target        int        `json:"target"`
	EarnedAt      *time.Time `json:"earned_at,omitempty"`
}

// Earned reports whether the achievement has been unlocked.
func (a *UserAchievement) Earned() bool {
	return a.EarnedAt != nil
}
