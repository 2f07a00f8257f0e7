package handler

// Routes handled:
//   - GET  /api/subscription         -> GetSubscription
//   - POST /api/subscription/cancel  -> CancelSubscription
//   - GET  /api/usage                -> GetUsage
//   - GET  /api/usage/{type}         -> GetUsageForType
//   - POST /api/billing/checkout     -> CreateCheckout
//   - POST /api/billing/portal       -> OpenPortal

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/cairn/internal/billing"
	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/service"
)

// SubscriptionHandler serves plan, usage and billing endpoints.
type SubscriptionHandler struct {
	subscriptions service.SubscriptionService
	quota         service.QuotaService
	billing       billing.Service
	baseURL       string
	logger        *slog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewSubscriptionHandler(
	subscriptions service.SubscriptionService,
	quota service.QuotaService,
	billingService billing.Service,
	baseURL string,
	logger *slog.Logger,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		quota:         quota,
		billing:       billingService,
		baseURL:       strings.TrimRight(baseURL, "/"),
		logger:        logger,
	}
}

// RegisterRoutes registers subscription routes on the provided mux.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, requireUser Middleware) {
	mux.Handle("GET /api/subscription", requireUser(http.HandlerFunc(h.GetSubscription)))
	mux.Handle("POST /api/subscription/cancel", requireUser(http.HandlerFunc(h.CancelSubscription)))
	mux.Handle("GET /api/usage", requireUser(http.HandlerFunc(h.GetUsage)))
	mux.Handle("GET /api/usage/{type}", requireUser(http.HandlerFunc(h.GetUsageForType)))
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(h.OpenPortal)))
}

// SubscriptionResponse is the client view of a resolved subscription.
type SubscriptionResponse struct {
	Plan               string                    `json:"plan"`
	PlanDisplayName    string                    `json:"plan_display_name"`
	Status             domain.SubscriptionStatus `json:"status"`
	Lifetime           bool                      `json:"lifetime"`
	FreePremium        bool                      `json:"free_premium"`
	CurrentPeriodStart time.Time                 `json:"current_period_start"`
	CurrentPeriodEnd   time.Time                 `json:"current_period_end"`
	BillingLinked      bool                      `json:"billing_linked"`
}

func newSubscriptionResponse(a *domain.ActiveSubscription) SubscriptionResponse {
	return SubscriptionResponse{
		Plan:               a.Plan.Name,
		PlanDisplayName:    a.Plan.DisplayName,
		Status:             a.Subscription.Status,
		Lifetime:           a.Plan.IsLifetimeLimit,
		FreePremium:        a.Subscription.FreePremium,
		CurrentPeriodStart: a.Subscription.CurrentPeriodStart,
		CurrentPeriodEnd:   a.Subscription.CurrentPeriodEnd,
		BillingLinked:      a.Subscription.ProviderCustomerID != "",
	}
}

// GetSubscription returns the caller's subscription, starting them on the
// free plan if they have none.
func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	active, err := h.subscriptions.EnsureSubscription(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubscriptionResponse(active))
}

// CancelSubscription cancels the caller's paid plan. Billed subscriptions are
// cancelled at the provider and drop to free when the provider confirms;
// unbilled ones drop to free immediately.
func (h *SubscriptionHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	active, err := h.subscriptions.GetActiveSubscription(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if active.Plan.Name == domain.PlanFree {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "The free plan cannot be cancelled"))
		return
	}

	if providerID := active.Subscription.ProviderSubscriptionID; providerID != "" && h.billing != nil {
		if err := h.billing.CancelSubscription(providerID); err != nil {
			InternalErrorResponse(w, r, h.logger, err)
			return
		}
		h.logger.Info("provider cancellation requested", "user_id", userID, "provider_subscription_id", providerID)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_at_period_end"})
		return
	}

	if err := h.subscriptions.Cancel(r.Context(), userID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	active, err = h.subscriptions.GetActiveSubscription(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubscriptionResponse(active))
}

// GetUsage returns every counter for the current period.
func (h *SubscriptionHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	summary, err := h.quota.GetUsageSummary(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetUsageForType checks a single usage limit without consuming it.
func (h *SubscriptionHandler) GetUsageForType(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	usageType := domain.UsageType(r.PathValue("type"))
	if !usageType.Valid() {
		ErrorResponse(w, r, h.logger, domain.NewValidationError("", "type", "unknown usage type"))
		return
	}

	if _, err := h.subscriptions.EnsureSubscription(r.Context(), userID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	check, err := h.quota.CheckUsageLimit(r.Context(), userID, usageType)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// CheckoutRequest selects either a plan upgrade or an add-on pack.
type CheckoutRequest struct {
	Plan  string `json:"plan,omitempty"`
	AddOn string `json:"add_on,omitempty"`
}

// CreateCheckout starts a Stripe Checkout session and returns its URL.
func (h *SubscriptionHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	if h.billing == nil {
		h.logger.Warn("checkout attempted but Stripe is not configured")
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, "", "Billing is not configured"))
		return
	}

	var req CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if (req.Plan == "") == (req.AddOn == "") {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "Choose either a plan or an add-on"))
		return
	}

	active, err := h.subscriptions.EnsureSubscription(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	params := billing.CheckoutParams{
		UserID:     userID,
		CustomerID: active.Subscription.ProviderCustomerID,
		Plan:       req.Plan,
		SuccessURL: h.baseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  h.baseURL + "/billing",
	}
	if req.AddOn != "" {
		pack, ok := domain.FindAddOnPack(req.AddOn)
		if !ok {
			ErrorResponse(w, r, h.logger, domain.NewValidationError("", "add_on", "unknown add-on pack"))
			return
		}
		params.AddOn = &pack
	}

	checkoutURL, err := h.billing.CreateCheckoutSession(params)
	if err != nil {
		if errors.Is(err, billing.ErrUnknownPlan) {
			ErrorResponse(w, r, h.logger, domain.NewValidationError("", "plan", "plan is not available for purchase"))
			return
		}
		h.logger.Error("failed to create checkout session", "error", err, "user_id", userID)
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": checkoutURL})
}

// OpenPortal creates a Stripe Customer Portal session and returns its URL.
func (h *SubscriptionHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	if h.billing == nil {
		h.logger.Warn("portal requested but Stripe is not configured")
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, "", "Billing is not configured"))
		return
	}

	active, err := h.subscriptions.GetActiveSubscription(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if active.Subscription.ProviderCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "No billing account is linked yet"))
		return
	}

	portalURL, err := h.billing.CreatePortalSession(active.Subscription.ProviderCustomerID, h.baseURL+"/billing")
	if err != nil {
		h.logger.Error("failed to create portal session", "error", err, "user_id", userID)
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": portalURL})
}
