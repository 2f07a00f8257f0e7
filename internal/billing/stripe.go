// Package billing provides Stripe billing integration for plan subscriptions
// and one-off add-on purchases.
package billing

import (
	"errors"
	"fmt"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Metadata keys attached to checkout sessions and subscriptions so webhook
// events can be traced back to a user and a purchase.
const (
	MetadataUserID = "user_id"
	MetadataPlan   = "plan"
	MetadataAddOn  = "add_on_pack"
)

// ErrUnknownPlan is returned when a checkout names a plan with no configured price.
var ErrUnknownPlan = errors.New("no price configured for plan")

// Service defines the interface for billing operations.
type Service interface {
	// CreateCheckoutSession creates a Stripe Checkout session for a plan
	// subscription or an add-on purchase. Returns the checkout URL.
	CreateCheckoutSession(params CheckoutParams) (string, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	// Returns the portal URL to redirect the user to.
	CreatePortalSession(customerID, returnURL string) (string, error)

	// CancelSubscription sets a subscription to cancel at period end.
	CancelSubscription(subscriptionID string) error

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// PlanForPriceID returns the plan name for a given Stripe price ID.
	PlanForPriceID(priceID string) string
}

// CheckoutParams describes one checkout. Exactly one of Plan and AddOn is set.
type CheckoutParams struct {
	UserID     uuid.UUID
	CustomerID string // Existing Stripe customer, empty for first-time buyers
	Plan       string
	AddOn      *domain.AddOnPack
	SuccessURL string
	CancelURL  string
}

// PriceConfig holds the Stripe price IDs for each paid plan.
type PriceConfig struct {
	PlusPriceID string
	ProPriceID  string
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	planToPrice   map[string]string
	priceToPlan   map[string]string
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey
	return newStripeService(webhookSecret, prices)
}

func newStripeService(webhookSecret string, prices PriceConfig) *stripeService {
	s := &stripeService{
		webhookSecret: webhookSecret,
		planToPrice:   make(map[string]string),
		priceToPlan:   make(map[string]string),
	}
	if prices.PlusPriceID != "" {
		s.planToPrice[domain.PlanPlus] = prices.PlusPriceID
		s.priceToPlan[prices.PlusPriceID] = domain.PlanPlus
	}
	if prices.ProPriceID != "" {
		s.planToPrice[domain.PlanPro] = prices.ProPriceID
		s.priceToPlan[prices.ProPriceID] = domain.PlanPro
	}
	return s
}

func (s *stripeService) CreateCheckoutSession(p CheckoutParams) (string, error) {
	params, err := s.checkoutSessionParams(p)
	if err != nil {
		return "", err
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

// checkoutSessionParams builds the Stripe request for a checkout.
func (s *stripeService) checkoutSessionParams(p CheckoutParams) (*stripe.CheckoutSessionParams, error) {
	metadata := map[string]string{MetadataUserID: p.UserID.String()}

	params := &stripe.CheckoutSessionParams{
		ClientReferenceID: stripe.String(p.UserID.String()),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}

	switch {
	case p.AddOn != nil:
		metadata[MetadataAddOn] = p.AddOn.ID
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(p.AddOn.PriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%d extra %s", p.AddOn.Amount, p.AddOn.UsageType.Label())),
					},
				},
				Quantity: stripe.Int64(1),
			},
		}
	default:
		priceID, ok := s.planToPrice[p.Plan]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, p.Plan)
		}
		metadata[MetadataPlan] = p.Plan
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		}
	}
	params.Metadata = metadata

	return params, nil
}

func (s *stripeService) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) CancelSubscription(subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	_, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("stripe cancel subscription: %w", err)
	}
	return nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) PlanForPriceID(priceID string) string {
	return s.priceToPlan[priceID]
}
