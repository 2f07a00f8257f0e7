package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// Postgres is a Store backed by PostgreSQL through database/sql and the pgx
// stdlib driver. The schema lives in internal/migrations.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var _ Store = (*Postgres)(nil)

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// withTx runs fn inside a transaction, rolling back on error.
func (p *Postgres) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// Plans
// =============================================================================

const planColumns = `id, name, display_name, price_cents, is_lifetime_limit,
	chats_limit, deep_analysis_limit, insights_limit,
	model_basic_limit, model_advanced_limit, model_premium_limit, created_at`

func scanPlan(row rowScanner) (*domain.Plan, error) {
	var p domain.Plan
	err := row.Scan(
		&p.ID, &p.Name, &p.DisplayName, &p.PriceCents, &p.IsLifetimeLimit,
		&p.Limits.Chats, &p.Limits.DeepAnalysis, &p.Limits.Insights,
		&p.Limits.ModelBasic, &p.Limits.ModelAdvanced, &p.Limits.ModelPremium, &p.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (p *Postgres) UpsertPlan(ctx context.Context, plan domain.Plan) (*domain.Plan, error) {
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO subscription_plans (
			name, display_name, price_cents, is_lifetime_limit,
			chats_limit, deep_analysis_limit, insights_limit,
			model_basic_limit, model_advanced_limit, model_premium_limit
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (name) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			price_cents = EXCLUDED.price_cents,
			is_lifetime_limit = EXCLUDED.is_lifetime_limit,
			chats_limit = EXCLUDED.chats_limit,
			deep_analysis_limit = EXCLUDED.deep_analysis_limit,
			insights_limit = EXCLUDED.insights_limit,
			model_basic_limit = EXCLUDED.model_basic_limit,
			model_advanced_limit = EXCLUDED.model_advanced_limit,
			model_premium_limit = EXCLUDED.model_premium_limit
		RETURNING `+planColumns,
		plan.Name, plan.DisplayName, plan.PriceCents, plan.IsLifetimeLimit,
		plan.Limits.Chats, plan.Limits.DeepAnalysis, plan.Limits.Insights,
		plan.Limits.ModelBasic, plan.Limits.ModelAdvanced, plan.Limits.ModelPremium,
	)
	return scanPlan(row)
}

func (p *Postgres) GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	return scanPlan(p.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, id))
}

func (p *Postgres) GetPlanByName(ctx context.Context, name string) (*domain.Plan, error) {
	return scanPlan(p.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE name = $1`, name))
}

func (p *Postgres) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM subscription_plans ORDER BY price_cents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	return plans, rows.Err()
}

// =============================================================================
// Subscriptions
// =============================================================================

const subscriptionColumns = `id, user_id, plan_id, status, current_period_start, current_period_end,
	free_premium, provider_customer_id, provider_subscription_id, created_at, updated_at`

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var s domain.Subscription
	var customerID, providerSubID sql.NullString
	err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.Status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd,
		&s.FreePremium, &customerID, &providerSubID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	s.ProviderCustomerID = domain.NullStringValue(customerID)
	s.ProviderSubscriptionID = domain.NullStringValue(providerSubID)
	return &s, nil
}

func (p *Postgres) GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return scanSubscription(p.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 AND status = 'active'`, userID))
}

func (p *Postgres) CreateSubscription(ctx context.Context, sub domain.Subscription) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, user_id, plan_id, status, current_period_start, current_period_end,
			free_premium, provider_customer_id, provider_subscription_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) WHERE status = 'active' DO NOTHING`,
		newID(sub.ID), sub.UserID, sub.PlanID, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.FreePremium, domain.ToNullString(sub.ProviderCustomerID), domain.ToNullString(sub.ProviderSubscriptionID),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *Postgres) UpdateSubscription(ctx context.Context, sub domain.Subscription) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE subscriptions SET
			plan_id = $2,
			status = $3,
			current_period_start = $4,
			current_period_end = $5,
			free_premium = $6,
			provider_customer_id = $7,
			provider_subscription_id = $8,
			updated_at = NOW()
		WHERE id = $1`,
		sub.ID, sub.PlanID, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.FreePremium,
		domain.ToNullString(sub.ProviderCustomerID), domain.ToNullString(sub.ProviderSubscriptionID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return expectOne(res)
}

func (p *Postgres) GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*domain.Subscription, error) {
	return scanSubscription(p.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_subscription_id = $1`, providerSubscriptionID))
}

func (p *Postgres) GetSubscriptionByCustomerID(ctx context.Context, providerCustomerID string) (*domain.Subscription, error) {
	return scanSubscription(p.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE provider_customer_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, providerCustomerID))
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// Usage
// =============================================================================

// usageColumn maps a usage type to its counter column. Only values from this
// map are ever interpolated into SQL.
var usageColumn = map[domain.UsageType]string{
	domain.UsageChats:         "chats_used",
	domain.UsageDeepAnalysis:  "deep_analysis_used",
	domain.UsageInsights:      "insights_generated",
	domain.UsageModelBasic:    "model_basic_queries",
	domain.UsageModelAdvanced: "model_advanced_queries",
	domain.UsageModelPremium:  "model_premium_queries",
}

func (p *Postgres) GetUsageRecord(ctx context.Context, userID uuid.UUID, periodStart time.Time) (*domain.UsageRecord, error) {
	var r domain.UsageRecord
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, subscription_id, period_start, period_end,
			chats_used, deep_analysis_used, insights_generated,
			model_basic_queries, model_advanced_queries, model_premium_queries,
			created_at, updated_at
		FROM usage_records
		WHERE user_id = $1 AND period_start = $2`, userID, periodStart.UTC(),
	).Scan(
		&r.ID, &r.UserID, &r.SubscriptionID, &r.PeriodStart, &r.PeriodEnd,
		&r.ChatsUsed, &r.DeepAnalysisUsed, &r.InsightsGenerated,
		&r.ModelBasicQueries, &r.ModelAdvancedQueries, &r.ModelPremiumQueries,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (p *Postgres) IncrementUsage(ctx context.Context, key domain.UsageKey, usageType domain.UsageType, amount int64) (int64, error) {
	col, ok := usageColumn[usageType]
	if !ok {
		return 0, fmt.Errorf("unknown usage type %q", usageType)
	}

	query := fmt.Sprintf(`
		INSERT INTO usage_records (user_id, subscription_id, period_start, period_end, %[1]s)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, period_start) DO UPDATE SET
			%[1]s = usage_records.%[1]s + EXCLUDED.%[1]s,
			updated_at = NOW()
		RETURNING %[1]s`, col)

	var value int64
	err := p.db.QueryRowContext(ctx, query,
		key.UserID, key.SubscriptionID, key.PeriodStart.UTC(), key.PeriodEnd.UTC(), amount,
	).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (p *Postgres) CreateAddOnCredit(ctx context.Context, credit domain.AddOnCredit) (*domain.AddOnCredit, error) {
	credit.ID = newID(credit.ID)
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO add_on_credits (id, user_id, usage_type, amount, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		credit.ID, credit.UserID, credit.UsageType, credit.Amount, credit.ExpiresAt,
	).Scan(&credit.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &credit, nil
}

func (p *Postgres) SumAddOnCredits(ctx context.Context, userID uuid.UUID, usageType domain.UsageType, at time.Time) (int64, error) {
	var total int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM add_on_credits
		WHERE user_id = $1 AND usage_type = $2 AND expires_at > $3`,
		userID, usageType, at,
	).Scan(&total)
	return total, err
}

// =============================================================================
// Goals
// =============================================================================

const goalColumns = `id, user_id, name, category, target_amount, current_amount,
	target_date, status, created_at, updated_at`

func scanGoal(row rowScanner) (*domain.FinancialGoal, error) {
	var g domain.FinancialGoal
	var target, current int64
	var targetDate sql.NullTime
	err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.Category, &target, &current,
		&targetDate, &g.Status, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	g.TargetAmount = domain.Money(target)
	g.CurrentAmount = domain.Money(current)
	g.TargetDate = domain.NullTimeValue(targetDate)
	return &g, nil
}

func (p *Postgres) CreateGoal(ctx context.Context, goal domain.FinancialGoal) (*domain.FinancialGoal, error) {
	if goal.Status == "" {
		goal.Status = domain.GoalStatusActive
	}
	return scanGoal(p.db.QueryRowContext(ctx, `
		INSERT INTO financial_goals (id, user_id, name, category, target_amount, current_amount, target_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+goalColumns,
		newID(goal.ID), goal.UserID, goal.Name, goal.Category, int64(goal.TargetAmount),
		int64(goal.CurrentAmount), domain.ToNullTime(goal.TargetDate), goal.Status,
	))
}

func (p *Postgres) GetGoal(ctx context.Context, id, userID uuid.UUID) (*domain.FinancialGoal, error) {
	return scanGoal(p.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM financial_goals WHERE id = $1 AND user_id = $2`, id, userID))
}

func (p *Postgres) ListGoals(ctx context.Context, userID uuid.UUID, includeArchived bool) ([]domain.FinancialGoal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+goalColumns+` FROM financial_goals
		WHERE user_id = $1 AND ($2 OR status <> 'archived')
		ORDER BY created_at`, userID, includeArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []domain.FinancialGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

func (p *Postgres) UpdateGoal(ctx context.Context, goal domain.FinancialGoal) (*domain.FinancialGoal, error) {
	return scanGoal(p.db.QueryRowContext(ctx, `
		UPDATE financial_goals SET
			name = $3,
			category = $4,
			target_amount = $5,
			current_amount = $6,
			target_date = $7,
			status = $8,
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+goalColumns,
		goal.ID, goal.UserID, goal.Name, goal.Category, int64(goal.TargetAmount),
		int64(goal.CurrentAmount), domain.ToNullTime(goal.TargetDate), goal.Status,
	))
}

func (p *Postgres) AddGoalAmount(ctx context.Context, id, userID uuid.UUID, delta domain.Money) (*domain.FinancialGoal, error) {
	return scanGoal(p.db.QueryRowContext(ctx, `
		UPDATE financial_goals SET
			current_amount = current_amount + $3,
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+goalColumns, id, userID, int64(delta)))
}

func (p *Postgres) SetGoalStatus(ctx context.Context, id, userID uuid.UUID, status domain.GoalStatus) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE financial_goals SET status = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2`, id, userID, status)
	if err != nil {
		return err
	}
	return expectOne(res)
}

const milestoneColumns = `id, goal_id, user_id, milestone, amount_at_milestone, is_seen, created_at`

func scanMilestone(row rowScanner) (*domain.GoalMilestone, error) {
	var m domain.GoalMilestone
	var amount int64
	if err := row.Scan(&m.ID, &m.GoalID, &m.UserID, &m.Milestone, &amount, &m.IsSeen, &m.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	m.AmountAtMilestone = domain.Money(amount)
	return &m, nil
}

func (p *Postgres) InsertMilestone(ctx context.Context, m domain.GoalMilestone) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO goal_milestones (id, goal_id, user_id, milestone, amount_at_milestone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (goal_id, milestone) DO NOTHING`,
		newID(m.ID), m.GoalID, m.UserID, m.Milestone, int64(m.AmountAtMilestone), stamp(m.CreatedAt),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *Postgres) queryMilestones(ctx context.Context, query string, args ...any) ([]domain.GoalMilestone, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GoalMilestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (p *Postgres) ListMilestones(ctx context.Context, goalID, userID uuid.UUID) ([]domain.GoalMilestone, error) {
	return p.queryMilestones(ctx, `
		SELECT `+milestoneColumns+` FROM goal_milestones
		WHERE goal_id = $1 AND user_id = $2
		ORDER BY milestone`, goalID, userID)
}

func (p *Postgres) ListUnseenMilestones(ctx context.Context, userID uuid.UUID) ([]domain.GoalMilestone, error) {
	return p.queryMilestones(ctx, `
		SELECT `+milestoneColumns+` FROM goal_milestones
		WHERE user_id = $1 AND NOT is_seen
		ORDER BY created_at, milestone`, userID)
}

func (p *Postgres) MarkMilestonesSeen(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE goal_milestones SET is_seen = TRUE
		WHERE user_id = $1 AND id = ANY($2::uuid[]) AND NOT is_seen`,
		userID, pq.Array(strIDs))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =============================================================================
// Transactions
// =============================================================================

const transactionColumns = `id, user_id, goal_id, kind, amount, currency, original_amount,
	category, description, occurred_at, created_at`

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var goalID uuid.NullUUID
	var amount, original int64
	err := row.Scan(&t.ID, &t.UserID, &goalID, &t.Kind, &amount, &t.Currency, &original,
		&t.Category, &t.Description, &t.OccurredAt, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	t.GoalID = domain.NullUUIDValue(goalID)
	t.Amount = domain.Money(amount)
	t.OriginalAmount = domain.Money(original)
	return &t, nil
}

func (p *Postgres) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	return scanTransaction(p.db.QueryRowContext(ctx, `
		INSERT INTO transactions (id, user_id, goal_id, kind, amount, currency, original_amount,
			category, description, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+transactionColumns,
		newID(tx.ID), tx.UserID, domain.ToNullUUID(tx.GoalID), tx.Kind, int64(tx.Amount), tx.Currency,
		int64(tx.OriginalAmount), tx.Category, tx.Description, stamp(tx.OccurredAt),
	))
}

// transactionWhere renders a filter as a WHERE clause. Unset bounds are
// passed as NULL and short-circuit.
func transactionWhere(f domain.TransactionFilter) (string, []any) {
	var from, to sql.NullTime
	if !f.From.IsZero() {
		from = sql.NullTime{Time: f.From, Valid: true}
	}
	if !f.To.IsZero() {
		to = sql.NullTime{Time: f.To, Valid: true}
	}
	return `WHERE user_id = $1
		AND ($2 = '' OR kind = $2)
		AND ($3::timestamptz IS NULL OR occurred_at >= $3)
		AND ($4::timestamptz IS NULL OR occurred_at < $4)`,
		[]any{f.UserID, string(f.Kind), from, to}
}

func (p *Postgres) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	where, args := transactionWhere(filter)
	query := `SELECT ` + transactionColumns + ` FROM transactions ` + where + ` ORDER BY occurred_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (p *Postgres) SumTransactions(ctx context.Context, filter domain.TransactionFilter) (domain.Money, error) {
	where, args := transactionWhere(filter)
	var total int64
	err := p.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions `+where, args...).Scan(&total)
	return domain.Money(total), err
}

func (p *Postgres) CountTransactions(ctx context.Context, filter domain.TransactionFilter) (int64, error) {
	where, args := transactionWhere(filter)
	var n int64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions `+where, args...).Scan(&n)
	return n, err
}

// =============================================================================
// Streaks & Achievements
// =============================================================================

func (p *Postgres) GetStreak(ctx context.Context, userID uuid.UUID) (*domain.UserStreak, error) {
	var s domain.UserStreak
	var last sql.NullTime
	var week pq.BoolArray
	err := p.db.QueryRowContext(ctx, `
		SELECT user_id, current_streak, longest_streak, total_check_ins, last_check_in, weekly_progress, updated_at
		FROM user_streaks WHERE user_id = $1`, userID,
	).Scan(&s.UserID, &s.CurrentStreak, &s.LongestStreak, &s.TotalCheckIns, &last, &week, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	s.LastCheckIn = domain.NullTimeValue(last)
	copy(s.WeeklyProgress[:], week)
	return &s, nil
}

func (p *Postgres) SaveStreak(ctx context.Context, streak domain.UserStreak) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO user_streaks (user_id, current_streak, longest_streak, total_check_ins, last_check_in, weekly_progress, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			total_check_ins = EXCLUDED.total_check_ins,
			last_check_in = EXCLUDED.last_check_in,
			weekly_progress = EXCLUDED.weekly_progress,
			updated_at = EXCLUDED.updated_at`,
		streak.UserID, streak.CurrentStreak, streak.LongestStreak, streak.TotalCheckIns,
		domain.ToNullTime(streak.LastCheckIn), pq.BoolArray(streak.WeeklyProgress[:]), stamp(streak.UpdatedAt),
	)
	return err
}

const achievementColumns = `user_id, achievement_id, progress, target, earned_at`

func scanAchievement(row rowScanner) (*domain.UserAchievement, error) {
	var a domain.UserAchievement
	var earned sql.NullTime
	if err := row.Scan(&a.UserID, &a.AchievementID, &a.Progress, &a.Target, &earned); err != nil {
		return nil, notFound(err)
	}
	a.EarnedAt = domain.NullTimeValue(earned)
	return &a, nil
}

func (p *Postgres) GetAchievement(ctx context.Context, userID uuid.UUID, achievementID string) (*domain.UserAchievement, error) {
	return scanAchievement(p.db.QueryRowContext(ctx, `
		SELECT `+achievementColumns+` FROM user_achievements
		WHERE user_id = $1 AND achievement_id = $2`, userID, achievementID))
}

func (p *Postgres) UpsertAchievement(ctx context.Context, a domain.UserAchievement) (*domain.UserAchievement, error) {
	stored, err := scanAchievement(p.db.QueryRowContext(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, progress, target, earned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, achievement_id) DO UPDATE SET
			progress = EXCLUDED.progress,
			target = EXCLUDED.target,
			earned_at = EXCLUDED.earned_at
		WHERE user_achievements.earned_at IS NULL
		RETURNING `+achievementColumns,
		a.UserID, a.AchievementID, a.Progress, a.Target, domain.ToNullTime(a.EarnedAt),
	))
	if errors.Is(err, ErrNotFound) {
		// The row exists and is already earned; the update was skipped.
		return p.GetAchievement(ctx, a.UserID, a.AchievementID)
	}
	return stored, err
}

func (p *Postgres) ListAchievements(ctx context.Context, userID uuid.UUID) ([]domain.UserAchievement, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+achievementColumns+` FROM user_achievements
		WHERE user_id = $1 ORDER BY target`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserAchievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// =============================================================================
// Notifications
// =============================================================================

const notificationColumns = `id, user_id, type, title, message, priority, is_read, is_archived, metadata, created_at`

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var n domain.Notification
	var meta pqtype.NullRawMessage
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Priority,
		&n.IsRead, &n.IsArchived, &meta, &n.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if meta.Valid {
		n.Metadata = meta.RawMessage
	}
	return &n, nil
}

func (p *Postgres) CreateNotification(ctx context.Context, n domain.Notification) (*domain.Notification, error) {
	if n.Priority == "" {
		n.Priority = domain.PriorityMedium
	}
	meta := pqtype.NullRawMessage{RawMessage: n.Metadata, Valid: len(n.Metadata) > 0}
	return scanNotification(p.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, priority, is_read, is_archived, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+notificationColumns,
		newID(n.ID), n.UserID, n.Type, n.Title, n.Message, n.Priority, n.IsRead, n.IsArchived, meta, stamp(n.CreatedAt),
	))
}

func (p *Postgres) HasRecentNotification(ctx context.Context, userID uuid.UUID, typ domain.NotificationType, since time.Time) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1 AND type = $2 AND created_at >= $3
		)`, userID, typ, since).Scan(&exists)
	return exists, err
}

func (p *Postgres) HasRecentGoalNotification(ctx context.Context, userID uuid.UUID, typ domain.NotificationType, goalID uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1 AND type = $2 AND created_at >= $3
				AND metadata->>'goal_id' = $4
		)`, userID, typ, since, goalID.String()).Scan(&exists)
	return exists, err
}

func (p *Postgres) ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + ` FROM notifications
		WHERE user_id = $1
			AND (NOT $2 OR NOT is_read)
			AND ($3 OR NOT is_archived)
		ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := p.db.QueryContext(ctx, query, filter.UserID, filter.UnreadOnly, filter.IncludeArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (p *Postgres) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *Postgres) ArchiveNotification(ctx context.Context, id, userID uuid.UUID) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE notifications SET is_archived = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (p *Postgres) CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND NOT is_read AND NOT is_archived`, userID).Scan(&n)
	return n, err
}

// =============================================================================
// Groups
// =============================================================================

func (p *Postgres) CreateGroup(ctx context.Context, group domain.Group) (*domain.Group, error) {
	group.ID = newID(group.ID)
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO user_groups (id, name, owner_id) VALUES ($1, $2, $3)
			RETURNING created_at`, group.ID, group.Name, group.OwnerID).Scan(&group.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO group_members (group_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)`, group.ID, group.OwnerID, domain.GroupRoleOwner, group.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (p *Postgres) GetGroup(ctx context.Context, id uuid.UUID) (*domain.Group, error) {
	var g domain.Group
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at FROM user_groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

func (p *Postgres) GetGroupMember(ctx context.Context, groupID, userID uuid.UUID) (*domain.GroupMember, error) {
	var m domain.GroupMember
	err := p.db.QueryRowContext(ctx, `
		SELECT group_id, user_id, role, joined_at FROM group_members
		WHERE group_id = $1 AND user_id = $2`, groupID, userID,
	).Scan(&m.GroupID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (p *Postgres) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]domain.GroupMember, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT group_id, user_id, role, joined_at FROM group_members
		WHERE group_id = $1 ORDER BY joined_at`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GroupMember
	for rows.Next() {
		var m domain.GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const inviteColumns = `id, group_id, code, invited_by, status, accepted_by, accepted_at, expires_at, created_at`

func scanInvite(row rowScanner) (*domain.GroupInvite, error) {
	var inv domain.GroupInvite
	var acceptedBy uuid.NullUUID
	var acceptedAt sql.NullTime
	err := row.Scan(&inv.ID, &inv.GroupID, &inv.Code, &inv.InvitedBy, &inv.Status,
		&acceptedBy, &acceptedAt, &inv.ExpiresAt, &inv.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	inv.AcceptedBy = domain.NullUUIDValue(acceptedBy)
	inv.AcceptedAt = domain.NullTimeValue(acceptedAt)
	return &inv, nil
}

func (p *Postgres) CreateInvite(ctx context.Context, invite domain.GroupInvite) (*domain.GroupInvite, error) {
	if invite.Status == "" {
		invite.Status = domain.InviteStatusPending
	}
	inv, err := scanInvite(p.db.QueryRowContext(ctx, `
		INSERT INTO group_invites (id, group_id, code, invited_by, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+inviteColumns,
		newID(invite.ID), invite.GroupID, invite.Code, invite.InvitedBy, invite.Status, invite.ExpiresAt,
	))
	if err != nil && isUniqueViolation(err) {
		return nil, ErrConflict
	}
	return inv, err
}

func (p *Postgres) GetInviteByCode(ctx context.Context, code string) (*domain.GroupInvite, error) {
	return scanInvite(p.db.QueryRowContext(ctx,
		`SELECT `+inviteColumns+` FROM group_invites WHERE code = $1`, code))
}

func (p *Postgres) AcceptInvite(ctx context.Context, code string, userID uuid.UUID, now time.Time) (*domain.GroupInvite, error) {
	var accepted *domain.GroupInvite
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		// The status predicate makes the transition happen at most once.
		inv, err := scanInvite(tx.QueryRowContext(ctx, `
			UPDATE group_invites SET
				status = 'accepted',
				accepted_by = $2,
				accepted_at = $3
			WHERE code = $1 AND status = 'pending' AND expires_at > $3
			RETURNING `+inviteColumns, code, userID, now))
		if errors.Is(err, ErrNotFound) {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM group_invites WHERE code = $1)`, code).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return ErrInviteUnavailable
			}
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO group_members (group_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (group_id, user_id) DO NOTHING`,
			inv.GroupID, userID, domain.GroupRoleMember, now)
		if err != nil {
			return err
		}
		accepted = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// =============================================================================
// Chat
// =============================================================================

const conversationColumns = `id, user_id, title, created_at, updated_at`

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (p *Postgres) CreateConversation(ctx context.Context, c domain.Conversation) (*domain.Conversation, error) {
	return scanConversation(p.db.QueryRowContext(ctx, `
		INSERT INTO conversations (id, user_id, title) VALUES ($1, $2, $3)
		RETURNING `+conversationColumns, newID(c.ID), c.UserID, c.Title))
}

func (p *Postgres) GetConversation(ctx context.Context, id, userID uuid.UUID) (*domain.Conversation, error) {
	return scanConversation(p.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1 AND user_id = $2`, id, userID))
}

func (p *Postgres) ListConversations(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = $1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateChatMessage(ctx context.Context, m domain.ChatMessage) (*domain.ChatMessage, error) {
	m.ID = newID(m.ID)
	m.CreatedAt = stamp(m.CreatedAt)
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = $2 WHERE id = $1`, m.ConversationID, m.CreatedAt)
		if err != nil {
			return err
		}
		if err := expectOne(res); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chat_messages (id, conversation_id, role, content, model_tier, tokens_used, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.ID, m.ConversationID, m.Role, m.Content, m.ModelTier, m.TokensUsed, m.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (p *Postgres) ListChatMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, model_tier, tokens_used, created_at FROM (
			SELECT * FROM chat_messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent ORDER BY created_at`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ModelTier, &m.TokensUsed, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
