// Package domain contains core business types and interfaces.
//
// This file defines plans, subscriptions, usage records and the quota
// types used to gate AI features by subscription plan.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// UsageType identifies the counter a quota applies to.
type UsageType string

const (
	UsageChats         UsageType = "chats"
	UsageDeepAnalysis  UsageType = "deep_analysis"
	UsageInsights      UsageType = "insights"
	UsageModelBasic    UsageType = "model_basic"
	UsageModelAdvanced UsageType = "model_advanced"
	UsageModelPremium  UsageType = "model_premium"
)

// UsageTypes lists every tracked counter in display order.
var UsageTypes = []UsageType{
	UsageChats,
	UsageDeepAnalysis,
	UsageInsights,
	UsageModelBasic,
	UsageModelAdvanced,
	UsageModelPremium,
}

// Valid reports whether t is a known usage type.
func (t UsageType) Valid() bool {
	for _, known := range UsageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Label is the human wording used in upgrade prompts.
func (t UsageType) Label() string {
	switch t {
	case UsageChats:
		return "AI chats"
	case UsageDeepAnalysis:
		return "deep analyses"
	case UsageInsights:
		return "insights"
	case UsageModelBasic:
		return "basic model queries"
	case UsageModelAdvanced:
		return "advanced model queries"
	case UsageModelPremium:
		return "premium model queries"
	default:
		return string(t)
	}
}

// UnlimitedSentinel is reported as the limit for free-premium overrides.
const UnlimitedSentinel int64 = 999999

// Lifetime quota window. Lifetime plans accumulate into a single record
// keyed by these bounds so the atomic increment has a stable key.
var (
	LifetimePeriodStart = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	LifetimePeriodEnd   = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// =============================================================================
// Plans
// =============================================================================

// Plan names seeded at startup.
const (
	PlanFree = "free"
	PlanPlus = "plus"
	PlanPro  = "pro"
)

// PlanLimits holds the base allowance per usage type.
type PlanLimits struct {
	Chats         int64
	DeepAnalysis  int64
	Insights      int64
	ModelBasic    int64
	ModelAdvanced int64
	ModelPremium  int64
}

// For returns the base limit for a usage type.
func (l PlanLimits) For(t UsageType) int64 {
	switch t {
	case UsageChats:
		return l.Chats
	case UsageDeepAnalysis:
		return l.DeepAnalysis
	case UsageInsights:
		return l.Insights
	case UsageModelBasic:
		return l.ModelBasic
	case UsageModelAdvanced:
		return l.ModelAdvanced
	case UsageModelPremium:
		return l.ModelPremium
	default:
		return 0
	}
}

// Plan is a subscription tier and its limits.
type Plan struct {
	ID              uuid.UUID
	Name            string
	DisplayName     string
	PriceCents      int64
	IsLifetimeLimit bool // Usage never resets monthly
	Limits          PlanLimits
	CreatedAt       time.Time
}

// DefaultPlans is the reference data seeded at startup.
var DefaultPlans = []Plan{
	{
		Name:            PlanFree,
		DisplayName:     "Free",
		IsLifetimeLimit: true,
		Limits: PlanLimits{
			Chats:        10,
			DeepAnalysis: 2,
			Insights:     3,
			ModelBasic:   10,
		},
	},
	{
		Name:        PlanPlus,
		DisplayName: "Plus",
		PriceCents:  999,
		Limits: PlanLimits{
			Chats:         50,
			DeepAnalysis:  10,
			Insights:      30,
			ModelBasic:    50,
			ModelAdvanced: 20,
		},
	},
	{
		Name:        PlanPro,
		DisplayName: "Pro",
		PriceCents:  2499,
		Limits: PlanLimits{
			Chats:         500,
			DeepAnalysis:  100,
			Insights:      300,
			ModelBasic:    500,
			ModelAdvanced: 200,
			ModelPremium:  50,
		},
	},
}

// =============================================================================
// Subscriptions
// =============================================================================

// SubscriptionStatus represents the state of a user's subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription links a user to a plan.
type Subscription struct {
	ID                     uuid.UUID
	UserID                 uuid.UUID
	PlanID                 uuid.UUID
	Status                 SubscriptionStatus
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	FreePremium            bool // Override: every quota is unlimited
	ProviderCustomerID     string
	ProviderSubscriptionID string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ActiveSubscription is a subscription resolved together with its plan.
type ActiveSubscription struct {
	Subscription Subscription
	Plan         Plan
}

// UsagePeriod returns the quota window containing now for this subscription.
// Lifetime plans use the fixed lifetime window; monthly plans use the UTC calendar month.
func (a *ActiveSubscription) UsagePeriod(now time.Time) (start, end time.Time) {
	if a.Plan.IsLifetimeLimit {
		return LifetimePeriodStart, LifetimePeriodEnd
	}
	return MonthBoundaries(now)
}

// MonthBoundaries returns the start and end of the calendar month containing t, in UTC.
func MonthBoundaries(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}

// =============================================================================
// Usage
// =============================================================================

// UsageRecord holds per-period counters. One row per user per period.
type UsageRecord struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	SubscriptionID       uuid.UUID
	PeriodStart          time.Time
	PeriodEnd            time.Time
	ChatsUsed            int64
	DeepAnalysisUsed     int64
	InsightsGenerated    int64
	ModelBasicQueries    int64
	ModelAdvancedQueries int64
	ModelPremiumQueries  int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Used returns the counter for a usage type.
func (r *UsageRecord) Used(t UsageType) int64 {
	if r == nil {
		return 0
	}
	switch t {
	case UsageChats:
		return r.ChatsUsed
	case UsageDeepAnalysis:
		return r.DeepAnalysisUsed
	case UsageInsights:
		return r.InsightsGenerated
	case UsageModelBasic:
		return r.ModelBasicQueries
	case UsageModelAdvanced:
		return r.ModelAdvancedQueries
	case UsageModelPremium:
		return r.ModelPremiumQueries
	default:
		return 0
	}
}

// Add increments the counter for a usage type in place.
func (r *UsageRecord) Add(t UsageType, amount int64) int64 {
	switch t {
	case UsageChats:
		r.ChatsUsed += amount
		return r.ChatsUsed
	case UsageDeepAnalysis:
		r.DeepAnalysisUsed += amount
		return r.DeepAnalysisUsed
	case UsageInsights:
		r.InsightsGenerated += amount
		return r.InsightsGenerated
	case UsageModelBasic:
		r.ModelBasicQueries += amount
		return r.ModelBasicQueries
	case UsageModelAdvanced:
		r.ModelAdvancedQueries += amount
		return r.ModelAdvancedQueries
	case UsageModelPremium:
		r.ModelPremiumQueries += amount
		return r.ModelPremiumQueries
	default:
		return 0
	}
}

// UsageKey identifies the usage record an increment applies to.
type UsageKey struct {
	UserID         uuid.UUID
	SubscriptionID uuid.UUID
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// AddOnCredit is a purchased allotment extending a plan limit for one usage type.
type AddOnCredit struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	UsageType UsageType
	Amount    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// QuotaCheck is the result of checking a usage limit.
type QuotaCheck struct {
	Type      UsageType `json:"type"`
	Allowed   bool      `json:"allowed"`
	Used      int64     `json:"usage"`
	Limit     int64     `json:"limit"`
	Unlimited bool      `json:"unlimited"`
}

// Remaining returns how many uses are left, never negative.
func (q *QuotaCheck) Remaining() int64 {
	if q.Used >= q.Limit {
		return 0
	}
	return q.Limit - q.Used
}

// UsageSummary reports every counter for the current period.
type UsageSummary struct {
	Plan        string       `json:"plan"`
	PeriodStart time.Time    `json:"period_start"`
	PeriodEnd   time.Time    `json:"period_end"`
	Lifetime    bool         `json:"lifetime"`
	Quotas      []QuotaCheck `json:"quotas"`
}

// ProviderSubscriptionEvent is a billing provider update normalized for the
// subscription resolver. UserID may be nil when only the customer is known.
type ProviderSubscriptionEvent struct {
	UserID         uuid.UUID
	CustomerID     string
	SubscriptionID string
	PlanName       string
	Active         bool
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// AddOnPack is a purchasable bundle of extra uses for one usage type.
type AddOnPack struct {
	ID         string
	UsageType  UsageType
	Amount     int64
	PriceCents int64
	ValidDays  int
}

// AddOnPacks lists the bundles offered at checkout.
var AddOnPacks = []AddOnPack{
	{ID: "chats_25", UsageType: UsageChats, Amount: 25, PriceCents: 299, ValidDays: 30},
	{ID: "deep_analysis_5", UsageType: UsageDeepAnalysis, Amount: 5, PriceCents: 499, ValidDays: 30},
	{ID: "insights_10", UsageType: UsageInsights, Amount: 10, PriceCents: 199, ValidDays: 30},
}

// FindAddOnPack returns the pack with the given ID.
func FindAddOnPack(id string) (AddOnPack, bool) {
	for _, p := range AddOnPacks {
		if p.ID == id {
			return p, true
		}
	}
	return AddOnPack{}, false
}
