package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stripeEvent builds a webhook payload around a data object.
func stripeEvent(t *testing.T, eventType string, object map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":     "evt_" + uuid.NewString()[:8],
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": object},
	})
	require.NoError(t, err)
	return string(raw)
}

func (s *testServer) webhook(t *testing.T, payload, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) planOf(t *testing.T, user uuid.UUID) SubscriptionResponse {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/subscription", user, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[SubscriptionResponse](t, rec)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	s := newTestServer(t)

	rec := s.webhook(t, stripeEvent(t, "checkout.session.completed", map[string]any{"id": "cs_1"}), "forged")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_SubscriptionLifecycle(t *testing.T) {
	s := newTestServer(t)
	user := uuid.New()

	rec := s.webhook(t, stripeEvent(t, "checkout.session.completed", map[string]any{
		"id":                  "cs_1",
		"object":              "checkout.session",
		"client_reference_id": user.String(),
		"customer":            "cus_1",
		"subscription":        "sub_1",
		"payment_status":      "paid",
		"metadata":            map[string]string{"plan": domain.PlanPlus},
	}), "valid")
	require.Equal(t, http.StatusOK, rec.Code)

	sub := s.planOf(t, user)
	assert.Equal(t, domain.PlanPlus, sub.Plan)
	assert.True(t, sub.BillingLinked)
	assert.False(t, sub.Lifetime)

	// Plan change arrives without metadata and resolves through the customer.
	rec = s.webhook(t, stripeEvent(t, "customer.subscription.updated", map[string]any{
		"id":                   "sub_1",
		"object":               "subscription",
		"customer":             "cus_1",
		"status":               "active",
		"current_period_start": 1709251200,
		"current_period_end":   1711929600,
		"items": map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "si_1", "object": "subscription_item", "price": map[string]any{"id": "price_pro", "object": "price"}},
			},
		},
	}), "valid")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PlanPro, s.planOf(t, user).Plan)

	rec = s.webhook(t, stripeEvent(t, "customer.subscription.deleted", map[string]any{
		"id":       "sub_1",
		"object":   "subscription",
		"customer": "cus_1",
		"status":   "canceled",
	}), "valid")
	require.Equal(t, http.StatusOK, rec.Code)

	// The next read bootstraps the free plan again.
	assert.Equal(t, domain.PlanFree, s.planOf(t, user).Plan)
}

func TestWebhook_UnknownCustomerIsDropped(t *testing.T) {
	s := newTestServer(t)

	rec := s.webhook(t, stripeEvent(t, "customer.subscription.updated", map[string]any{
		"id":       "sub_404",
		"object":   "subscription",
		"customer": "cus_unknown",
		"status":   "active",
	}), "valid")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_CheckoutWithoutUserIsDropped(t *testing.T) {
	s := newTestServer(t)

	rec := s.webhook(t, stripeEvent(t, "checkout.session.completed", map[string]any{
		"id":     "cs_2",
		"object": "checkout.session",
	}), "valid")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_AddOnPurchase(t *testing.T) {
	s := newTestServer(t)
	user := uuid.New()

	chatLimit := func() int64 {
		rec := s.do(t, http.MethodGet, "/api/usage/chats", user, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		return decode[domain.QuotaCheck](t, rec).Limit
	}
	require.Equal(t, int64(10), chatLimit())

	session := func(status string) string {
		return stripeEvent(t, "checkout.session.completed", map[string]any{
			"id":             "cs_addon",
			"object":         "checkout.session",
			"payment_status": status,
			"metadata": map[string]string{
				"user_id":     user.String(),
				"add_on_pack": "chats_25",
			},
		})
	}

	// Unpaid sessions grant nothing yet.
	rec := s.webhook(t, session("unpaid"), "valid")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(10), chatLimit())

	rec = s.webhook(t, session("paid"), "valid")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(35), chatLimit())

	// Plan is untouched by add-ons.
	assert.Equal(t, domain.PlanFree, s.planOf(t, user).Plan)
}

func TestWebhook_IgnoresUnhandledTypes(t *testing.T) {
	s := newTestServer(t)

	rec := s.webhook(t, stripeEvent(t, "invoice.payment_failed", map[string]any{
		"id":       "in_1",
		"object":   "invoice",
		"customer": "cus_1",
	}), "valid")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.webhook(t, stripeEvent(t, "charge.refunded", map[string]any{"id": "ch_1"}), "valid")
	assert.Equal(t, http.StatusOK, rec.Code)
}
