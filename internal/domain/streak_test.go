package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d, hour int) time.Time {
	return time.Date(2026, time.October, d, hour, 0, 0, 0, time.UTC)
}

func TestApplyCheckIn_FirstCheckIn(t *testing.T) {
	userID := uuid.New()

	next, changed, reset := ApplyCheckIn(nil, userID, day(15, 9), time.UTC)

	assert.True(t, changed)
	assert.False(t, reset)
	assert.Equal(t, userID, next.UserID)
	assert.Equal(t, 1, next.CurrentStreak)
	assert.Equal(t, 1, next.LongestStreak)
	assert.Equal(t, 1, next.TotalCheckIns)
	require.NotNil(t, next.LastCheckIn)
	assert.True(t, next.WeeklyProgress[time.Thursday])
}

func TestApplyCheckIn_Transitions(t *testing.T) {
	userID := uuid.New()
	last := day(15, 20)
	prev := &UserStreak{
		UserID:        userID,
		CurrentStreak: 4,
		LongestStreak: 6,
		TotalCheckIns: 10,
		LastCheckIn:   &last,
	}

	tests := []struct {
		name        string
		now         time.Time
		wantChanged bool
		wantReset   bool
		wantCurrent int
		wantLongest int
		wantTotal   int
	}{
		{"same day later", day(15, 23), false, false, 4, 6, 10},
		{"next day just after midnight", day(16, 0), true, false, 5, 6, 11},
		{"two day gap resets", day(17, 8), true, true, 1, 6, 11},
		{"long gap resets", day(30, 8), true, true, 1, 6, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, changed, reset := ApplyCheckIn(prev, userID, tt.now, time.UTC)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantReset, reset)
			assert.Equal(t, tt.wantCurrent, next.CurrentStreak)
			assert.Equal(t, tt.wantLongest, next.LongestStreak)
			assert.Equal(t, tt.wantTotal, next.TotalCheckIns)
		})
	}

	// prev must not be mutated
	assert.Equal(t, 4, prev.CurrentStreak)
	assert.Equal(t, 10, prev.TotalCheckIns)
}

func TestApplyCheckIn_LongestTracksCurrent(t *testing.T) {
	userID := uuid.New()
	var s *UserStreak
	for d := 10; d <= 17; d++ {
		next, changed, _ := ApplyCheckIn(s, userID, day(d, 12), time.UTC)
		require.True(t, changed)
		s = &next
	}
	assert.Equal(t, 8, s.CurrentStreak)
	assert.Equal(t, 8, s.LongestStreak)
	assert.Equal(t, 8, s.TotalCheckIns)
}

func TestApplyCheckIn_UsesLocalMidnight(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	userID := uuid.New()
	// 23:00 local on the 15th is 04:00 UTC on the 16th.
	last := time.Date(2026, time.October, 15, 23, 0, 0, 0, loc)
	prev := &UserStreak{UserID: userID, CurrentStreak: 1, LongestStreak: 1, TotalCheckIns: 1, LastCheckIn: &last}

	// 06:00 UTC on the 16th is still 01:00 local on the 16th: next local day.
	next, changed, _ := ApplyCheckIn(prev, userID, time.Date(2026, time.October, 16, 6, 0, 0, 0, time.UTC), loc)
	assert.True(t, changed)
	assert.Equal(t, 2, next.CurrentStreak)
}

func TestApplyCheckIn_WeeklyProgress(t *testing.T) {
	userID := uuid.New()

	s1, _, _ := ApplyCheckIn(nil, userID, day(15, 9), time.UTC) // Thursday
	s2, _, _ := ApplyCheckIn(&s1, userID, day(16, 9), time.UTC) // Friday, same week

	assert.True(t, s2.WeeklyProgress[time.Thursday])
	assert.True(t, s2.WeeklyProgress[time.Friday])
	assert.False(t, s2.WeeklyProgress[time.Sunday])

	s3, _, _ := ApplyCheckIn(&s2, userID, day(18, 9), time.UTC) // Sunday, new week
	assert.Equal(t, [7]bool{true, false, false, false, false, false, false}, s3.WeeklyProgress)
}

func TestWeekStart(t *testing.T) {
	assert.Equal(t, day(11, 0), WeekStart(day(16, 0)))
	assert.Equal(t, day(18, 0), WeekStart(day(18, 0)))
}

func TestDaysBetween_DST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// DST ends 2026-11-01 in the US; that day is 25 hours long.
	a := StartOfDay(time.Date(2026, time.November, 1, 12, 0, 0, 0, loc), loc)
	b := StartOfDay(time.Date(2026, time.November, 2, 12, 0, 0, 0, loc), loc)
	assert.Equal(t, 1, DaysBetween(a, b))
}
