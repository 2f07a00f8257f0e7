package service

import (
	"context"
	"testing"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func TestCheckIn_Transitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := e.streaks.CheckIn(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewStreak)
	assert.True(t, first.StreakIncreased)
	assert.False(t, first.StreakReset)

	// Later the same day is a no-op.
	e.clock.Advance(6 * time.Hour)
	again, err := e.streaks.CheckIn(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.NewStreak)
	assert.False(t, again.StreakIncreased)
	assert.False(t, again.StreakReset)
	assert.Empty(t, again.NewAchievements)

	e.clock.Advance(day)
	next, err := e.streaks.CheckIn(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.NewStreak)
	assert.True(t, next.StreakIncreased)

	// Skipping a full day restarts the streak.
	e.clock.Advance(2 * day)
	reset, err := e.streaks.CheckIn(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, reset.NewStreak)
	assert.True(t, reset.StreakReset)
	assert.False(t, reset.StreakIncreased)

	streak, err := e.streaks.GetStreak(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 2, streak.LongestStreak)
	assert.Equal(t, 3, streak.TotalCheckIns)
}

func TestCheckIn_UnlocksWeekAchievementOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	var unlocked []string
	for i := 0; i < 8; i++ {
		res, err := e.streaks.CheckIn(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, i+1, res.NewStreak)
		unlocked = append(unlocked, res.NewAchievements...)
		if i == 6 {
			assert.Equal(t, []string{"streak_7"}, res.NewAchievements)
		}
		e.clock.Advance(day)
	}
	assert.Equal(t, []string{"streak_7"}, unlocked)

	achievements, err := e.streaks.ListAchievements(ctx, userID)
	require.NoError(t, err)
	require.Len(t, achievements, 2)
	assert.Equal(t, "streak_7", achievements[0].AchievementID)
	assert.True(t, achievements[0].Earned())
	assert.Equal(t, 7, achievements[0].Progress)
	assert.Equal(t, "streak_30", achievements[1].AchievementID)
	assert.False(t, achievements[1].Earned())
	assert.Equal(t, 8, achievements[1].Progress)

	announced := e.notificationsOfType(t, userID, domain.NotificationAchievementUnlocked)
	require.Len(t, announced, 1)
	assert.Contains(t, announced[0].Title, "Week Warrior")
}

func TestCheckIn_EarnedAchievementSurvivesReset(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 7; i++ {
		_, err := e.streaks.CheckIn(ctx, userID)
		require.NoError(t, err)
		e.clock.Advance(day)
	}

	e.clock.Advance(3 * day)
	res, err := e.streaks.CheckIn(ctx, userID)
	require.NoError(t, err)
	assert.True(t, res.StreakReset)

	achievements, err := e.streaks.ListAchievements(ctx, userID)
	require.NoError(t, err)
	require.NotEmpty(t, achievements)
	assert.True(t, achievements[0].Earned())
	assert.Equal(t, 7, achievements[0].Progress, "earned achievements are frozen")
}

func TestGetStreak_NeverCheckedIn(t *testing.T) {
	e := newEnv(t)
	userID := uuid.New()

	streak, err := e.streaks.GetStreak(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, userID, streak.UserID)
	assert.Zero(t, streak.CurrentStreak)
	assert.Nil(t, streak.LastCheckIn)
}

func TestCheckIn_LocalCalendarDay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("timezone data unavailable")
	}
	streaks := NewStreakService(e.store, nil, ny, testLogger())
	streaks.(*streakService).now = e.clock.Now

	// 23:30 and 00:30 UTC straddle UTC midnight but are the same New York evening.
	e.clock.Set(time.Date(2024, time.March, 13, 23, 30, 0, 0, time.UTC))
	_, err = streaks.CheckIn(ctx, userID)
	require.NoError(t, err)

	e.clock.Advance(time.Hour)
	res, err := streaks.CheckIn(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewStreak)
	assert.False(t, res.StreakIncreased)
}
