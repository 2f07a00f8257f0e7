package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
)

// CurrencyConverter converts amounts between ISO 4217 currencies.
type CurrencyConverter interface {
	Convert(ctx context.Context, amount domain.Money, from, to string) (domain.Money, error)
}

// TransactionService records money movements and fans out their side effects.
type TransactionService interface {
	// Create records a transaction. Foreign amounts are converted to the base
	// currency; contributions add to their goal; every transaction counts as a
	// daily check-in; expenses re-run the budget warning.
	Create(ctx context.Context, params domain.CreateTransactionParams) (*domain.TransactionResult, error)

	// List returns matching transactions, newest first.
	List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
}

type transactionService struct {
	store         store.Store
	converter     CurrencyConverter
	goals         GoalService
	streaks       StreakService
	notifications NotificationService
	logger        *slog.Logger
	now           Clock
}

// NewTransactionService creates a new TransactionService.
func NewTransactionService(
	st store.Store,
	converter CurrencyConverter,
	goals GoalService,
	streaks StreakService,
	notifications NotificationService,
	logger *slog.Logger,
) TransactionService {
	return &transactionService{
		store:         st,
		converter:     converter,
		goals:         goals,
		streaks:       streaks,
		notifications: notifications,
		logger:        logger,
		now:           systemClock,
	}
}

// Create records a transaction.
func (s *transactionService) Create(ctx context.Context, params domain.CreateTransactionParams) (*domain.TransactionResult, error) {
	const op = "transaction.create"

	if !params.Kind.Valid() {
		return nil, domain.Invalid(op, "Unknown transaction kind")
	}
	if params.Amount <= 0 {
		return nil, domain.Invalid(op, "Amount must be greater than zero")
	}
	currency, err := domain.NormalizeCurrency(params.Currency)
	if err != nil {
		return nil, domain.Invalid(op, err.Error())
	}
	if params.Kind == domain.TransactionContribution && params.GoalID == nil {
		return nil, domain.Invalid(op, "Contributions must reference a goal")
	}
	var goal *domain.FinancialGoal
	if params.GoalID != nil {
		goal, err = s.goals.Get(ctx, *params.GoalID, params.UserID)
		if err != nil {
			return nil, err
		}
	}

	amount := params.Amount
	if currency != domain.BaseCurrency {
		amount, err = s.converter.Convert(ctx, params.Amount, currency, domain.BaseCurrency)
		if err != nil {
			s.logger.Error("currency conversion failed", "error", err, "op", op, "currency", currency)
			return nil, domain.Wrap(err, domain.EINVALID, op, "Could not convert "+currency+" to "+domain.BaseCurrency)
		}
		if amount <= 0 {
			return nil, domain.Invalid(op, "Amount is below one cent in "+domain.BaseCurrency)
		}
	}

	// Contribution rules are checked before the row exists so a rejected
	// contribution leaves nothing behind.
	if params.Kind == domain.TransactionContribution {
		if err := goal.CheckContribution(amount); err != nil {
			return nil, domain.Invalid(op, err.Error())
		}
	}

	occurredAt := params.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	tx, err := s.store.CreateTransaction(ctx, domain.Transaction{
		UserID:         params.UserID,
		GoalID:         params.GoalID,
		Kind:           params.Kind,
		Amount:         amount,
		Currency:       currency,
		OriginalAmount: params.Amount,
		Category:       strings.TrimSpace(params.Category),
		Description:    strings.TrimSpace(params.Description),
		OccurredAt:     occurredAt,
	})
	if err != nil {
		s.logger.Error("failed to create transaction", "error", err, "op", op)
		return nil, domain.Internal(err, op, "Failed to record transaction")
	}
	s.logger.Info("transaction recorded",
		"transaction_id", tx.ID,
		"user_id", tx.UserID,
		"kind", tx.Kind,
		"amount", tx.Amount.String(),
	)

	result := &domain.TransactionResult{Transaction: tx}

	if tx.Kind == domain.TransactionContribution {
		update, err := s.goals.Contribute(ctx, *tx.GoalID, tx.UserID, tx.Amount)
		if err != nil {
			return nil, err
		}
		result.GoalUpdate = update
	}

	checkIn, err := s.streaks.CheckIn(ctx, tx.UserID)
	if err != nil {
		s.logger.Error("check-in after transaction failed", "error", err, "op", op, "user_id", tx.UserID)
	} else {
		result.CheckIn = checkIn
	}

	if tx.Kind == domain.TransactionExpense {
		n, err := s.notifications.CheckBudgetWarning(ctx, tx.UserID)
		if err != nil {
			s.logger.Error("budget warning check failed", "error", err, "op", op, "user_id", tx.UserID)
		} else if n != nil {
			result.Notifications = append(result.Notifications, *n)
		}
	}

	return result, nil
}

// List returns matching transactions.
func (s *transactionService) List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	const op = "transaction.list"

	if filter.UserID == uuid.Nil {
		return nil, domain.Invalid(op, "user is required")
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, domain.Invalid(op, "Unknown transaction kind")
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}

	txs, err := s.store.ListTransactions(ctx, filter)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list transactions")
	}
	return txs, nil
}
