package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSavingsRate(t *testing.T) {
	assert.InDelta(t, 25.0, SavingsRate(4000_00, 3000_00), 0.001)
	assert.InDelta(t, -50.0, SavingsRate(2000_00, 3000_00), 0.001)
	assert.Equal(t, 0.0, SavingsRate(0, 0))
	assert.Equal(t, -100.0, SavingsRate(0, 10_00))
}

func TestBriefingForSavingsRate(t *testing.T) {
	tests := []struct {
		rate     float64
		title    string
		priority NotificationPriority
	}{
		{35, "Great savings momentum", PriorityLow},
		{20, "Great savings momentum", PriorityLow},
		{19.9, "Solid savings habit", PriorityLow},
		{10, "Solid savings habit", PriorityLow},
		{0, "Room to save more", PriorityMedium},
		{-0.1, "Spending exceeds income", PriorityHigh},
	}

	for _, tt := range tests {
		b := BriefingForSavingsRate(tt.rate)
		assert.Equal(t, tt.title, b.Title, "rate %v", tt.rate)
		assert.Equal(t, tt.priority, b.Priority, "rate %v", tt.rate)
		assert.NotEmpty(t, b.Message)
	}
}

func TestWeeklyVolatility(t *testing.T) {
	tests := []struct {
		name  string
		weeks []Money
		want  bool
	}{
		{"steady spending", []Money{400_00, 420_00, 380_00, 410_00}, false},
		{"one spike", []Money{200_00, 200_00, 200_00, 1000_00}, true},
		{"volatile but below floor", []Money{10_00, 10_00, 10_00, 90_00}, false},
		{"no data", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeeklyVolatility(tt.weeks).Volatile)
		})
	}
}

func TestOverspendPercent(t *testing.T) {
	assert.Equal(t, 0.0, OverspendPercent(1000_00, 900_00))
	assert.InDelta(t, 25.0, OverspendPercent(1000_00, 1250_00), 0.001)
	assert.Equal(t, 100.0, OverspendPercent(0, 50_00))
}

func TestRequiredDailySavings(t *testing.T) {
	assert.Equal(t, Money(20_00), RequiredDailySavings(600_00, 30))
	assert.Equal(t, Money(34), RequiredDailySavings(100, 3))
	assert.Equal(t, Money(50_00), RequiredDailySavings(50_00, 0))
}
