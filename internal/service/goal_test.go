package service

import (
	"context"
	"testing"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoalCreate_Validation(t *testing.T) {
	e := newEnv(t)
	userID := uuid.New()

	tests := []struct {
		name   string
		params domain.CreateGoalParams
	}{
		{"missing name", domain.CreateGoalParams{UserID: userID, Name: "  ", TargetAmount: 100_00}},
		{"zero target", domain.CreateGoalParams{UserID: userID, Name: "Trip", TargetAmount: 0}},
		{"negative opening balance", domain.CreateGoalParams{UserID: userID, Name: "Trip", TargetAmount: 100_00, CurrentAmount: -1}},
		{"unknown category", domain.CreateGoalParams{UserID: userID, Name: "Trip", TargetAmount: 100_00, Category: "yacht"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.goals.Create(context.Background(), tt.params)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}
}

func TestGoalCreate_OpeningBalanceMilestones(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	res, err := e.goals.Create(ctx, domain.CreateGoalParams{
		UserID:        userID,
		Name:          "  House deposit ",
		TargetAmount:  1000_00,
		CurrentAmount: 600_00,
	})
	require.NoError(t, err)
	assert.Equal(t, "House deposit", res.Goal.Name)
	assert.Equal(t, domain.GoalCategorySavings, res.Goal.Category)
	assert.Equal(t, domain.GoalStatusActive, res.Goal.Status)
	assert.Equal(t, []int{25, 50}, milestoneValues(res.NewMilestones))
	assert.False(t, res.Completed)

	announced := e.notificationsOfType(t, userID, domain.NotificationMilestoneReached)
	assert.Len(t, announced, 2)
}

func TestGoalContribute(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	res, err := e.goals.Create(ctx, domain.CreateGoalParams{UserID: userID, Name: "Trip", TargetAmount: 1000_00})
	require.NoError(t, err)
	goalID := res.Goal.ID
	assert.Empty(t, res.NewMilestones)

	_, err = e.goals.Contribute(ctx, goalID, userID, 0)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	res, err = e.goals.Contribute(ctx, goalID, userID, 300_00)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(300_00), res.Goal.CurrentAmount)
	assert.Equal(t, []int{25}, milestoneValues(res.NewMilestones))

	_, err = e.goals.Contribute(ctx, goalID, userID, -400_00)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err), "cannot withdraw more than the balance")

	// Dipping below and climbing back does not repeat a milestone.
	_, err = e.goals.Contribute(ctx, goalID, userID, -200_00)
	require.NoError(t, err)
	res, err = e.goals.Contribute(ctx, goalID, userID, 200_00)
	require.NoError(t, err)
	assert.Empty(t, res.NewMilestones)

	_, err = e.goals.Contribute(ctx, goalID, userID, domain.MaxMoney)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err), "balance would pass the money bound")
	got, err := e.goals.Get(ctx, goalID, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(300_00), got.CurrentAmount)

	_, err = e.goals.Contribute(ctx, goalID, uuid.New(), 10_00)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestGoalUpdate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	res, err := e.goals.Create(ctx, domain.CreateGoalParams{
		UserID: userID, Name: "Trip", TargetAmount: 1000_00, CurrentAmount: 600_00,
	})
	require.NoError(t, err)
	goalID := res.Goal.ID

	name := "Big trip"
	res, err = e.goals.Update(ctx, domain.UpdateGoalParams{ID: goalID, UserID: userID, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Big trip", res.Goal.Name)
	assert.Empty(t, res.NewMilestones)

	// Lowering the target past the balance completes the goal.
	target := domain.Money(500_00)
	res, err = e.goals.Update(ctx, domain.UpdateGoalParams{ID: goalID, UserID: userID, TargetAmount: &target})
	require.NoError(t, err)
	assert.Equal(t, []int{75, 100}, milestoneValues(res.NewMilestones))
	assert.True(t, res.Completed)

	bad := domain.Money(0)
	_, err = e.goals.Update(ctx, domain.UpdateGoalParams{ID: goalID, UserID: userID, TargetAmount: &bad})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestGoalDelete_Archives(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	res, err := e.goals.Create(ctx, domain.CreateGoalParams{UserID: userID, Name: "Trip", TargetAmount: 1000_00})
	require.NoError(t, err)
	goalID := res.Goal.ID

	require.NoError(t, e.goals.Delete(ctx, goalID, userID))

	goals, err := e.goals.List(ctx, userID, false)
	require.NoError(t, err)
	assert.Empty(t, goals)

	goals, err = e.goals.List(ctx, userID, true)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, domain.GoalStatusArchived, goals[0].Status)

	_, err = e.goals.Contribute(ctx, goalID, userID, 10_00)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	err = e.goals.Delete(ctx, goalID, uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
