package handler

// This file implements the Stripe webhook handler for processing billing events.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/cairn/internal/billing"
	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/service"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

// maxWebhookBody limits the webhook payload to 64KB.
const maxWebhookBody = 65536

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing       billing.Service
	subscriptions service.SubscriptionService
	quota         service.QuotaService
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(
	billingService billing.Service,
	subscriptions service.SubscriptionService,
	quota service.QuotaService,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		billing:       billingService,
		subscriptions: subscriptions,
		quota:         quota,
		logger:        logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC: Stripe authenticates by signature.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events.
//
// Events for customers this service does not know are acknowledged and
// dropped. Storage failures answer 500 so Stripe redelivers.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Verify signature
	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	ctx := r.Context()
	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		err = h.handleSubscriptionChanged(ctx, event)
	case "customer.subscription.deleted":
		err = h.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_failed":
		h.handlePaymentFailed(event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND || domain.ErrorCode(err) == domain.EINVALID {
			h.logger.Warn("webhook event dropped", "type", event.Type, "id", event.ID, "error", err)
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("webhook event failed", "type", event.Type, "id", event.ID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return domain.Invalid("", fmt.Sprintf("malformed checkout session: %v", err))
	}

	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		userID, err = uuid.Parse(session.Metadata[billing.MetadataUserID])
	}
	if err != nil {
		return domain.Invalid("", "checkout session "+session.ID+" has no user reference")
	}

	if packID := session.Metadata[billing.MetadataAddOn]; packID != "" {
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			h.logger.Info("add-on checkout not paid yet", "session_id", session.ID, "status", session.PaymentStatus)
			return nil
		}
		_, err := h.quota.PurchaseAddOn(ctx, userID, packID)
		return err
	}

	if session.Customer == nil || session.Subscription == nil {
		h.logger.Warn("checkout session missing customer or subscription", "session_id", session.ID)
		return nil
	}

	return h.subscriptions.ApplyProviderEvent(ctx, domain.ProviderSubscriptionEvent{
		UserID:         userID,
		CustomerID:     session.Customer.ID,
		SubscriptionID: session.Subscription.ID,
		PlanName:       session.Metadata[billing.MetadataPlan],
		Active:         true,
	})
}

func (h *WebhookHandler) handleSubscriptionChanged(ctx context.Context, event stripe.Event) error {
	sub, err := h.parseSubscription(event)
	if err != nil {
		return err
	}

	// Determine plan from price
	plan := ""
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		plan = h.billing.PlanForPriceID(sub.Items.Data[0].Price.ID)
	}
	if plan == "" {
		plan = sub.Metadata[billing.MetadataPlan]
	}

	active := false
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue:
		active = true
	}

	ev := providerEvent(sub)
	ev.PlanName = plan
	ev.Active = active
	if sub.CurrentPeriodStart > 0 && sub.CurrentPeriodEnd > 0 {
		ev.PeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
		ev.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}

	if err := h.subscriptions.ApplyProviderEvent(ctx, ev); err != nil {
		return err
	}

	h.logger.Info("subscription event processed",
		"customer_id", ev.CustomerID, "subscription_id", sub.ID, "status", sub.Status, "plan", plan)
	return nil
}

func (h *WebhookHandler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	sub, err := h.parseSubscription(event)
	if err != nil {
		return err
	}

	if err := h.subscriptions.ApplyProviderEvent(ctx, providerEvent(sub)); err != nil {
		return err
	}

	h.logger.Info("subscription deleted", "customer_id", sub.Customer.ID, "subscription_id", sub.ID)
	return nil
}

func (h *WebhookHandler) handlePaymentFailed(event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment failed event", "error", err)
		return
	}
	if invoice.Customer == nil {
		return
	}

	// Stripe retries the charge and sends customer.subscription.updated with
	// the resulting status, which is what changes the plan.
	h.logger.Warn("payment failed", "customer_id", invoice.Customer.ID, "invoice_id", invoice.ID)
}

func (h *WebhookHandler) parseSubscription(event stripe.Event) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, domain.Invalid("", fmt.Sprintf("malformed subscription: %v", err))
	}
	if sub.Customer == nil {
		return nil, domain.Invalid("", "subscription "+sub.ID+" has no customer")
	}
	return &sub, nil
}

// providerEvent maps the identifying parts of a Stripe subscription. The user
// is taken from metadata when present, otherwise resolved by customer ID.
func providerEvent(sub *stripe.Subscription) domain.ProviderSubscriptionEvent {
	ev := domain.ProviderSubscriptionEvent{
		CustomerID:     sub.Customer.ID,
		SubscriptionID: sub.ID,
	}
	if id, err := uuid.Parse(sub.Metadata[billing.MetadataUserID]); err == nil {
		ev.UserID = id
	}
	return ev
}
