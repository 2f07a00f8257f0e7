package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/cairn/internal/ai/mock"
	"github.com/DukeRupert/cairn/internal/auth"
	"github.com/DukeRupert/cairn/internal/billing"
	"github.com/DukeRupert/cairn/internal/cache"
	"github.com/DukeRupert/cairn/internal/rates"
	"github.com/DukeRupert/cairn/internal/service"
	"github.com/DukeRupert/cairn/internal/storage"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

// =============================================================================
// Test Helpers
// =============================================================================

const testUserHeader = "X-Test-User"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// headerAuth trusts a user ID header. Requests without it reach the handler
// unauthenticated so the handler's own 401 path runs.
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := uuid.Parse(r.Header.Get(testUserHeader)); err == nil {
			r = r.WithContext(auth.SetUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// fakeBilling records checkout calls. Webhook payloads are accepted when the
// signature is "valid" and decoded as plain events.
type fakeBilling struct {
	mu           sync.Mutex
	checkouts    []billing.CheckoutParams
	cancelled    []string
	checkoutErr  error
	priceToPlan  map[string]string
	portalCalled bool
}

func (f *fakeBilling) CreateCheckoutSession(params billing.CheckoutParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	f.checkouts = append(f.checkouts, params)
	return "https://checkout.stripe.test/session", nil
}

func (f *fakeBilling) CreatePortalSession(customerID, returnURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.portalCalled = true
	return "https://billing.stripe.test/" + customerID, nil
}

func (f *fakeBilling) CancelSubscription(subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, subscriptionID)
	return nil
}

func (f *fakeBilling) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	var event stripe.Event
	if signature != "valid" {
		return event, errors.New("bad signature")
	}
	err := json.Unmarshal(payload, &event)
	return event, err
}

func (f *fakeBilling) PlanForPriceID(priceID string) string {
	return f.priceToPlan[priceID]
}

var _ billing.Service = (*fakeBilling)(nil)

// testServer wires every JSON handler over real services and a memory store.
type testServer struct {
	mux           *http.ServeMux
	store         *store.Memory
	provider      *mock.Provider
	billing       *fakeBilling
	subscriptions service.SubscriptionService
	quota         service.QuotaService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := testLogger()
	st := store.NewMemory()
	provider := mock.New(logger)
	fb := &fakeBilling{priceToPlan: map[string]string{"price_plus": "plus", "price_pro": "pro"}}

	subs := service.NewSubscriptionService(st, logger)
	require.NoError(t, subs.SeedPlans(context.Background()))
	quota := service.NewQuotaService(st, subs, logger)
	milestones := service.NewMilestoneService(st, logger)
	notifications := service.NewNotificationService(st, time.UTC, logger)
	streaks := service.NewStreakService(st, notifications, time.UTC, logger)
	goals := service.NewGoalService(st, milestones, notifications, logger)
	converter := rates.NewConverter(rates.StaticFeed{"EUR": {"USD": 1.10}}, cache.NewMemory(), time.Hour, logger)
	transactions := service.NewTransactionService(st, converter, goals, streaks, notifications, logger)
	chat := service.NewChatService(st, provider, subs, quota, logger)
	health := service.NewHealthService(st, subs, quota, logger)
	groups := service.NewGroupService(st, 0, logger)

	local, err := storage.NewLocal(storage.LocalConfig{
		BasePath:   t.TempDir(),
		BaseURL:    "http://localhost:8080/files",
		SigningKey: []byte("test-signing-key"),
	}, logger)
	require.NoError(t, err)
	exports := service.NewExportService(st, local, time.Hour, logger)

	mux := http.NewServeMux()
	NewHealthHandler(st, logger).RegisterRoutes(mux)
	NewSubscriptionHandler(subs, quota, fb, "http://localhost:8080/", logger).RegisterRoutes(mux, headerAuth)
	NewGoalHandler(goals, milestones, logger).RegisterRoutes(mux, headerAuth)
	NewTransactionHandler(transactions, logger).RegisterRoutes(mux, headerAuth)
	NewStreakHandler(streaks, logger).RegisterRoutes(mux, headerAuth)
	NewNotificationHandler(notifications, logger).RegisterRoutes(mux, headerAuth)
	NewChatHandler(chat, health, logger).RegisterRoutes(mux, headerAuth)
	NewGroupHandler(groups, logger).RegisterRoutes(mux, headerAuth)
	NewExportHandler(exports, logger).RegisterRoutes(mux, headerAuth)
	NewWebhookHandler(fb, subs, quota, logger).RegisterRoutes(mux)

	return &testServer{
		mux:           mux,
		store:         st,
		provider:      provider,
		billing:       fb,
		subscriptions: subs,
		quota:         quota,
	}
}

// do sends a request as userID (uuid.Nil for anonymous). body may be nil,
// a string of raw JSON, or a value to encode.
func (s *testServer) do(t *testing.T, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != uuid.Nil {
		req.Header.Set(testUserHeader, userID.String())
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals a response body into a fresh T.
func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

// errorCode extracts error.code from a JSON error body.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[JSONError](t, rec).Error.Code
}
