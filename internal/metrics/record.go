package metrics

import (
	"strconv"

	"github.com/DukeRupert/cairn/internal/ai"
	"github.com/DukeRupert/cairn/internal/domain"
)

// QuotaChecked records the outcome of a quota check.
func QuotaChecked(usageType domain.UsageType, result string) {
	QuotaChecksTotal.WithLabelValues(string(usageType), result).Inc()
}

// UsageIncremented records units added to a usage counter.
func UsageIncremented(usageType domain.UsageType, amount int64) {
	UsageIncrementsTotal.WithLabelValues(string(usageType)).Add(float64(amount))
}

// MilestoneReached records a newly created milestone.
func MilestoneReached(milestone int) {
	MilestonesReached.WithLabelValues(strconv.Itoa(milestone)).Inc()
}

// CheckedIn records a check-in outcome.
func CheckedIn(outcome string) {
	CheckInsTotal.WithLabelValues(outcome).Inc()
}

// AchievementUnlocked records an unlocked achievement.
func AchievementUnlocked(id string) {
	AchievementsUnlocked.WithLabelValues(id).Inc()
}

// NotificationCreated records a created notification.
func NotificationCreated(t domain.NotificationType) {
	NotificationsCreated.WithLabelValues(string(t)).Inc()
}

// NotificationRuleFailed records a rule that errored during generation.
func NotificationRuleFailed(rule string) {
	NotificationRuleFailures.WithLabelValues(rule).Inc()
}

// AICall records a chat completion and its token usage.
func AICall(tier domain.ModelTier, usage *ai.UsageInfo, err error) {
	if err != nil {
		AIAPICalls.WithLabelValues(string(tier), "error").Inc()
		return
	}
	AIAPICalls.WithLabelValues(string(tier), "success").Inc()
	if usage != nil {
		AITokensTotal.WithLabelValues("input").Add(float64(usage.InputTokens))
		AITokensTotal.WithLabelValues("output").Add(float64(usage.OutputTokens))
	}
}

// RateCacheLookup records a rate cache hit or miss.
func RateCacheLookup(hit bool) {
	if hit {
		RateCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	RateCacheLookups.WithLabelValues("miss").Inc()
}
