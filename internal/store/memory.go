package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/google/uuid"
)

// Memory is an in-process Store. A single mutex serialises every operation,
// which gives the same atomicity guarantees the Postgres store gets from
// upserts and conditional updates.
type Memory struct {
	mu sync.Mutex

	plans         map[uuid.UUID]domain.Plan
	subscriptions map[uuid.UUID]domain.Subscription
	usage         map[usageKey]*domain.UsageRecord
	addOns        []domain.AddOnCredit
	goals         map[uuid.UUID]domain.FinancialGoal
	milestones    map[milestoneKey]domain.GoalMilestone
	transactions  []domain.Transaction
	streaks       map[uuid.UUID]domain.UserStreak
	achievements  map[achievementKey]domain.UserAchievement
	notifications []domain.Notification
	groups        map[uuid.UUID]domain.Group
	members       map[memberKey]domain.GroupMember
	invites       map[string]domain.GroupInvite
	conversations map[uuid.UUID]domain.Conversation
	messages      []domain.ChatMessage
}

type usageKey struct {
	userID      uuid.UUID
	periodStart int64
}

type milestoneKey struct {
	goalID    uuid.UUID
	milestone int
}

type achievementKey struct {
	userID        uuid.UUID
	achievementID string
}

type memberKey struct {
	groupID uuid.UUID
	userID  uuid.UUID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		plans:         make(map[uuid.UUID]domain.Plan),
		subscriptions: make(map[uuid.UUID]domain.Subscription),
		usage:         make(map[usageKey]*domain.UsageRecord),
		goals:         make(map[uuid.UUID]domain.FinancialGoal),
		milestones:    make(map[milestoneKey]domain.GoalMilestone),
		streaks:       make(map[uuid.UUID]domain.UserStreak),
		achievements:  make(map[achievementKey]domain.UserAchievement),
		groups:        make(map[uuid.UUID]domain.Group),
		members:       make(map[memberKey]domain.GroupMember),
		invites:       make(map[string]domain.GroupInvite),
		conversations: make(map[uuid.UUID]domain.Conversation),
	}
}

var _ Store = (*Memory)(nil)

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func newID(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// =============================================================================
// Plans
// =============================================================================

func (m *Memory) UpsertPlan(ctx context.Context, plan domain.Plan) (*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.plans {
		if existing.Name == plan.Name {
			plan.ID = id
			plan.CreatedAt = existing.CreatedAt
			m.plans[id] = plan
			return &plan, nil
		}
	}
	plan.ID = newID(plan.ID)
	plan.CreatedAt = stamp(plan.CreatedAt)
	m.plans[plan.ID] = plan
	return &plan, nil
}

func (m *Memory) GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) GetPlanByName(ctx context.Context, name string) (*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.plans {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plans := make([]domain.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].PriceCents < plans[j].PriceCents })
	return plans, nil
}

// =============================================================================
// Subscriptions
// =============================================================================

func (m *Memory) activeSubscription(userID uuid.UUID) (domain.Subscription, bool) {
	for _, s := range m.subscriptions {
		if s.UserID == userID && s.Status == domain.SubscriptionStatusActive {
			return s, true
		}
	}
	return domain.Subscription{}, false
}

func (m *Memory) GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.activeSubscription(userID)
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, sub domain.Subscription) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub.Status == domain.SubscriptionStatusActive {
		if _, ok := m.activeSubscription(sub.UserID); ok {
			return false, nil
		}
	}
	sub.ID = newID(sub.ID)
	sub.CreatedAt = stamp(sub.CreatedAt)
	sub.UpdatedAt = sub.CreatedAt
	m.subscriptions[sub.ID] = sub
	return true, nil
}

func (m *Memory) UpdateSubscription(ctx context.Context, sub domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.subscriptions[sub.ID]
	if !ok {
		return ErrNotFound
	}
	if sub.ProviderSubscriptionID != "" {
		for id, other := range m.subscriptions {
			if id != sub.ID && other.ProviderSubscriptionID == sub.ProviderSubscriptionID {
				return ErrConflict
			}
		}
	}
	sub.UserID = existing.UserID
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now().UTC()
	m.subscriptions[sub.ID] = sub
	return nil
}

func (m *Memory) GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.subscriptions {
		if providerSubscriptionID != "" && s.ProviderSubscriptionID == providerSubscriptionID {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetSubscriptionByCustomerID(ctx context.Context, providerCustomerID string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *domain.Subscription
	for _, s := range m.subscriptions {
		if providerCustomerID == "" || s.ProviderCustomerID != providerCustomerID {
			continue
		}
		if found == nil || s.CreatedAt.After(found.CreatedAt) {
			s := s
			found = &s
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// =============================================================================
// Usage
// =============================================================================

func (m *Memory) GetUsageRecord(ctx context.Context, userID uuid.UUID, periodStart time.Time) (*domain.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.usage[usageKey{userID, periodStart.UTC().Unix()}]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

func (m *Memory) IncrementUsage(ctx context.Context, key domain.UsageKey, usageType domain.UsageType, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := usageKey{key.UserID, key.PeriodStart.UTC().Unix()}
	r, ok := m.usage[k]
	if !ok {
		now := time.Now().UTC()
		r = &domain.UsageRecord{
			ID:             uuid.New(),
			UserID:         key.UserID,
			SubscriptionID: key.SubscriptionID,
			PeriodStart:    key.PeriodStart.UTC(),
			PeriodEnd:      key.PeriodEnd.UTC(),
			CreatedAt:      now,
		}
		m.usage[k] = r
	}
	r.UpdatedAt = time.Now().UTC()
	return r.Add(usageType, amount), nil
}

func (m *Memory) CreateAddOnCredit(ctx context.Context, credit domain.AddOnCredit) (*domain.AddOnCredit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	credit.ID = newID(credit.ID)
	credit.CreatedAt = stamp(credit.CreatedAt)
	m.addOns = append(m.addOns, credit)
	return &credit, nil
}

func (m *Memory) SumAddOnCredits(ctx context.Context, userID uuid.UUID, usageType domain.UsageType, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	for _, c := range m.addOns {
		if c.UserID == userID && c.UsageType == usageType && c.ExpiresAt.After(at) {
			total += c.Amount
		}
	}
	return total, nil
}

// =============================================================================
// Goals
// =============================================================================

func (m *Memory) CreateGoal(ctx context.Context, goal domain.FinancialGoal) (*domain.FinancialGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	goal.ID = newID(goal.ID)
	goal.CreatedAt = stamp(goal.CreatedAt)
	goal.UpdatedAt = goal.CreatedAt
	if goal.Status == "" {
		goal.Status = domain.GoalStatusActive
	}
	m.goals[goal.ID] = goal
	return &goal, nil
}

func (m *Memory) GetGoal(ctx context.Context, id, userID uuid.UUID) (*domain.FinancialGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.goals[id]
	if !ok || g.UserID != userID {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (m *Memory) ListGoals(ctx context.Context, userID uuid.UUID, includeArchived bool) ([]domain.FinancialGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var goals []domain.FinancialGoal
	for _, g := range m.goals {
		if g.UserID != userID {
			continue
		}
		if !includeArchived && g.Status == domain.GoalStatusArchived {
			continue
		}
		goals = append(goals, g)
	}
	sort.Slice(goals, func(i, j int) bool { return goals[i].CreatedAt.Before(goals[j].CreatedAt) })
	return goals, nil
}

func (m *Memory) UpdateGoal(ctx context.Context, goal domain.FinancialGoal) (*domain.FinancialGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.goals[goal.ID]
	if !ok || existing.UserID != goal.UserID {
		return nil, ErrNotFound
	}
	goal.CreatedAt = existing.CreatedAt
	goal.UpdatedAt = time.Now().UTC()
	m.goals[goal.ID] = goal
	return &goal, nil
}

func (m *Memory) AddGoalAmount(ctx context.Context, id, userID uuid.UUID, delta domain.Money) (*domain.FinancialGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.goals[id]
	if !ok || g.UserID != userID {
		return nil, ErrNotFound
	}
	g.CurrentAmount += delta
	g.UpdatedAt = time.Now().UTC()
	m.goals[id] = g
	return &g, nil
}

func (m *Memory) SetGoalStatus(ctx context.Context, id, userID uuid.UUID, status domain.GoalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.goals[id]
	if !ok || g.UserID != userID {
		return ErrNotFound
	}
	g.Status = status
	g.UpdatedAt = time.Now().UTC()
	m.goals[id] = g
	return nil
}

func (m *Memory) InsertMilestone(ctx context.Context, ms domain.GoalMilestone) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := milestoneKey{ms.GoalID, ms.Milestone}
	if _, exists := m.milestones[k]; exists {
		return false, nil
	}
	ms.ID = newID(ms.ID)
	ms.CreatedAt = stamp(ms.CreatedAt)
	m.milestones[k] = ms
	return true, nil
}

func (m *Memory) ListMilestones(ctx context.Context, goalID, userID uuid.UUID) ([]domain.GoalMilestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.filterMilestones(func(ms domain.GoalMilestone) bool {
		return ms.GoalID == goalID && ms.UserID == userID
	}), nil
}

func (m *Memory) ListUnseenMilestones(ctx context.Context, userID uuid.UUID) ([]domain.GoalMilestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.filterMilestones(func(ms domain.GoalMilestone) bool {
		return ms.UserID == userID && !ms.IsSeen
	}), nil
}

func (m *Memory) filterMilestones(keep func(domain.GoalMilestone) bool) []domain.GoalMilestone {
	var out []domain.GoalMilestone
	for _, ms := range m.milestones {
		if keep(ms) {
			out = append(out, ms)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GoalID != out[j].GoalID {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Milestone < out[j].Milestone
	})
	return out
}

func (m *Memory) MarkMilestonesSeen(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for k, ms := range m.milestones {
		if ms.UserID == userID && want[ms.ID] && !ms.IsSeen {
			ms.IsSeen = true
			m.milestones[k] = ms
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Transactions
// =============================================================================

func (m *Memory) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx.ID = newID(tx.ID)
	tx.CreatedAt = stamp(tx.CreatedAt)
	tx.OccurredAt = stamp(tx.OccurredAt)
	m.transactions = append(m.transactions, tx)
	return &tx, nil
}

func matchTransaction(tx domain.Transaction, f domain.TransactionFilter) bool {
	if tx.UserID != f.UserID {
		return false
	}
	if f.Kind != "" && tx.Kind != f.Kind {
		return false
	}
	if !f.From.IsZero() && tx.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !tx.OccurredAt.Before(f.To) {
		return false
	}
	return true
}

func (m *Memory) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Transaction
	for _, tx := range m.transactions {
		if matchTransaction(tx, filter) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) SumTransactions(ctx context.Context, filter domain.TransactionFilter) (domain.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total domain.Money
	for _, tx := range m.transactions {
		if matchTransaction(tx, filter) {
			total += tx.Amount
		}
	}
	return total, nil
}

func (m *Memory) CountTransactions(ctx context.Context, filter domain.TransactionFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, tx := range m.transactions {
		if matchTransaction(tx, filter) {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Streaks & Achievements
// =============================================================================

func (m *Memory) GetStreak(ctx context.Context, userID uuid.UUID) (*domain.UserStreak, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.streaks[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) SaveStreak(ctx context.Context, streak domain.UserStreak) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	streak.UpdatedAt = stamp(streak.UpdatedAt)
	m.streaks[streak.UserID] = streak
	return nil
}

func (m *Memory) GetAchievement(ctx context.Context, userID uuid.UUID, achievementID string) (*domain.UserAchievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.achievements[achievementKey{userID, achievementID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) UpsertAchievement(ctx context.Context, a domain.UserAchievement) (*domain.UserAchievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := achievementKey{a.UserID, a.AchievementID}
	if existing, ok := m.achievements[k]; ok && existing.Earned() {
		return &existing, nil
	}
	m.achievements[k] = a
	return &a, nil
}

func (m *Memory) ListAchievements(ctx context.Context, userID uuid.UUID) ([]domain.UserAchievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.UserAchievement
	for k, a := range m.achievements {
		if k.userID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out, nil
}

// =============================================================================
// Notifications
// =============================================================================

func (m *Memory) CreateNotification(ctx context.Context, n domain.Notification) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n.ID = newID(n.ID)
	n.CreatedAt = stamp(n.CreatedAt)
	if n.Priority == "" {
		n.Priority = domain.PriorityMedium
	}
	m.notifications = append(m.notifications, n)
	return &n, nil
}

func (m *Memory) HasRecentNotification(ctx context.Context, userID uuid.UUID, typ domain.NotificationType, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notifications {
		if n.UserID == userID && n.Type == typ && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) HasRecentGoalNotification(ctx context.Context, userID uuid.UUID, typ domain.NotificationType, goalID uuid.UUID, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notifications {
		if n.UserID != userID || n.Type != typ || n.CreatedAt.Before(since) {
			continue
		}
		if metadataGoalID(n.Metadata) == goalID.String() {
			return true, nil
		}
	}
	return false, nil
}

func metadataGoalID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var meta struct {
		GoalID string `json:"goal_id"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	return meta.GoalID
}

func (m *Memory) ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Notification
	for _, n := range m.notifications {
		if n.UserID != filter.UserID {
			continue
		}
		if filter.UnreadOnly && n.IsRead {
			continue
		}
		if !filter.IncludeArchived && n.IsArchived {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) updateNotification(id, userID uuid.UUID, fn func(*domain.Notification)) error {
	for i := range m.notifications {
		if m.notifications[i].ID == id && m.notifications[i].UserID == userID {
			fn(&m.notifications[i])
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.updateNotification(id, userID, func(n *domain.Notification) { n.IsRead = true })
}

func (m *Memory) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for i := range m.notifications {
		if m.notifications[i].UserID == userID && !m.notifications[i].IsRead {
			m.notifications[i].IsRead = true
			count++
		}
	}
	return count, nil
}

func (m *Memory) ArchiveNotification(ctx context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.updateNotification(id, userID, func(n *domain.Notification) { n.IsArchived = true })
}

func (m *Memory) CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead && !n.IsArchived {
			count++
		}
	}
	return count, nil
}

// =============================================================================
// Groups
// =============================================================================

func (m *Memory) CreateGroup(ctx context.Context, group domain.Group) (*domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	group.ID = newID(group.ID)
	group.CreatedAt = stamp(group.CreatedAt)
	m.groups[group.ID] = group
	m.members[memberKey{group.ID, group.OwnerID}] = domain.GroupMember{
		GroupID:  group.ID,
		UserID:   group.OwnerID,
		Role:     domain.GroupRoleOwner,
		JoinedAt: group.CreatedAt,
	}
	return &group, nil
}

func (m *Memory) GetGroup(ctx context.Context, id uuid.UUID) (*domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (m *Memory) GetGroupMember(ctx context.Context, groupID, userID uuid.UUID) (*domain.GroupMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, ok := m.members[memberKey{groupID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &mem, nil
}

func (m *Memory) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]domain.GroupMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.GroupMember
	for k, mem := range m.members {
		if k.groupID == groupID {
			out = append(out, mem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *Memory) CreateInvite(ctx context.Context, invite domain.GroupInvite) (*domain.GroupInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.invites[invite.Code]; exists {
		return nil, ErrConflict
	}
	invite.ID = newID(invite.ID)
	invite.CreatedAt = stamp(invite.CreatedAt)
	if invite.Status == "" {
		invite.Status = domain.InviteStatusPending
	}
	m.invites[invite.Code] = invite
	return &invite, nil
}

func (m *Memory) GetInviteByCode(ctx context.Context, code string) (*domain.GroupInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invites[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (m *Memory) AcceptInvite(ctx context.Context, code string, userID uuid.UUID, now time.Time) (*domain.GroupInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invites[code]
	if !ok {
		return nil, ErrNotFound
	}
	if inv.Status != domain.InviteStatusPending || inv.IsExpired(now) {
		return nil, ErrInviteUnavailable
	}

	inv.Status = domain.InviteStatusAccepted
	inv.AcceptedBy = &userID
	inv.AcceptedAt = &now
	m.invites[code] = inv

	k := memberKey{inv.GroupID, userID}
	if _, exists := m.members[k]; !exists {
		m.members[k] = domain.GroupMember{
			GroupID:  inv.GroupID,
			UserID:   userID,
			Role:     domain.GroupRoleMember,
			JoinedAt: now,
		}
	}
	return &inv, nil
}

// =============================================================================
// Chat
// =============================================================================

func (m *Memory) CreateConversation(ctx context.Context, c domain.Conversation) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.ID = newID(c.ID)
	c.CreatedAt = stamp(c.CreatedAt)
	c.UpdatedAt = c.CreatedAt
	m.conversations[c.ID] = c
	return &c, nil
}

func (m *Memory) GetConversation(ctx context.Context, id, userID uuid.UUID) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) ListConversations(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Conversation
	for _, c := range m.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Memory) CreateChatMessage(ctx context.Context, msg domain.ChatMessage) (*domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[msg.ConversationID]
	if !ok {
		return nil, ErrNotFound
	}
	msg.ID = newID(msg.ID)
	msg.CreatedAt = stamp(msg.CreatedAt)
	m.messages = append(m.messages, msg)

	c.UpdatedAt = msg.CreatedAt
	m.conversations[c.ID] = c
	return &msg, nil
}

func (m *Memory) ListChatMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ChatMessage
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
