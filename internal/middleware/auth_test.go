package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DukeRupert/cairn/internal/auth"
	"github.com/google/uuid"
)

// =============================================================================
// Test Helpers
// =============================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubVerifier accepts a fixed token.
type stubVerifier struct {
	token  string
	userID uuid.UUID
	calls  int
}

func (s *stubVerifier) Verify(token string) (uuid.UUID, error) {
	s.calls++
	if token != s.token {
		return uuid.Nil, auth.ErrInvalidToken
	}
	return s.userID, nil
}

// userEcho writes the user ID found in context.
func userEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.UserID(r.Context())
		if !ok {
			t.Error("expected user ID in context")
		}
		_, _ = w.Write([]byte(id.String()))
	})
}

// =============================================================================
// RequireUser Tests
// =============================================================================

func TestRequireUser_ValidToken_SetsUserInContext(t *testing.T) {
	userID := uuid.New()
	v := &stubVerifier{token: "good", userID: userID}
	mw := NewAuthMiddleware(v, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/goals", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()

	mw.RequireUser(userEcho(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != userID.String() {
		t.Errorf("expected user %s in context, got %q", userID, rec.Body.String())
	}
}

func TestRequireUser_RejectsRequests(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		wantVerify  bool
		description string
	}{
		{"missing header", "", false, "no Authorization header"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", false, "basic credentials"},
		{"empty bearer", "Bearer ", false, "bearer without token"},
		{"bad token", "Bearer forged", true, "token the verifier rejects"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &stubVerifier{token: "good", userID: uuid.New()}
			mw := NewAuthMiddleware(v, discardLogger())

			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			req := httptest.NewRequest(http.MethodGet, "/api/goals", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			mw.RequireUser(next).ServeHTTP(rec, req)

			if called {
				t.Errorf("%s: handler should not be called", tt.description)
			}
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("%s: expected 401, got %d", tt.description, rec.Code)
			}
			if got := rec.Header().Get("Content-Type"); got != "application/json" {
				t.Errorf("expected JSON error, got content type %q", got)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate challenge")
			}
			if (v.calls > 0) != tt.wantVerify {
				t.Errorf("verifier called %d times, want called=%v", v.calls, tt.wantVerify)
			}

			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error.Code != "unauthorized" {
				t.Errorf("expected code unauthorized, got %q", body.Error.Code)
			}
		})
	}
}

func TestRequireUser_WithTokenManager(t *testing.T) {
	tokens, err := auth.NewTokenManager("0123456789abcdef0123456789abcdef", "cairn", time.Hour)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	userID := uuid.New()
	token, _, err := tokens.Issue(userID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	mw := NewAuthMiddleware(tokens, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/streak", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	mw.RequireUser(userEcho(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != userID.String() {
		t.Errorf("expected %s, got %s", userID, rec.Body.String())
	}
}

// =============================================================================
// Stack Tests
// =============================================================================

func TestStack_AppliesInOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Stack(mark("outer"), mark("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestStubVerifierMatchesSentinel(t *testing.T) {
	_, err := (&stubVerifier{token: "x"}).Verify("y")
	if !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
