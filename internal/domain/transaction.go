// Package domain contains core business types and interfaces.
//
// This file defines income, expense and goal-contribution transactions.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionKind classifies a transaction for budgeting rules.
type TransactionKind string

const (
	TransactionIncome       TransactionKind = "income"
	TransactionExpense      TransactionKind = "expense"
	TransactionContribution TransactionKind = "contribution" // Moves money into a goal
)

// Valid reports whether k is a known kind.
func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionIncome, TransactionExpense, TransactionContribution:
		return true
	default:
		return false
	}
}

// Transaction is a single money movement. Amount is always positive and in
// BaseCurrency; OriginalAmount/Currency keep what the user entered.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	GoalID         *uuid.UUID      `json:"goal_id,omitempty"`
	Kind           TransactionKind `json:"kind"`
	Amount         Money           `json:"amount"`
	Currency       string          `json:"currency"`
	OriginalAmount Money           `json:"original_amount"`
	Category       string          `json:"category"`
	Description    string          `json:"description"`
	OccurredAt     time.Time       `json:"occurred_at"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CreateTransactionParams contains parameters for recording a transaction.
type CreateTransactionParams struct {
	UserID      uuid.UUID
	GoalID      *uuid.UUID
	Kind        TransactionKind
	Amount      Money
	Currency    string
	Category    string
	Description string
	OccurredAt  time.Time
}

// TransactionFilter selects transactions for listing and aggregation.
type TransactionFilter struct {
	UserID uuid.UUID
	Kind   TransactionKind // Empty means all kinds
	From   time.Time       // Inclusive; zero means unbounded
	To     time.Time       // Exclusive; zero means unbounded
	Limit  int
}

// TransactionResult reports the side effects of recording a transaction.
type TransactionResult struct {
	Transaction   *Transaction      `json:"transaction"`
	GoalUpdate    *GoalUpdateResult `json:"goal_update,omitempty"`
	CheckIn       *CheckInResult    `json:"check_in,omitempty"`
	Notifications []Notification    `json:"notifications,omitempty"`
}
