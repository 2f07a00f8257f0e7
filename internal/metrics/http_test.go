package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteLabel(t *testing.T) {
	t.Run("uses matched pattern", func(t *testing.T) {
		var label string
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/invites/{code}/accept", func(w http.ResponseWriter, r *http.Request) {
			label = routeLabel(r)
		})

		req := httptest.NewRequest(http.MethodPost, "/api/invites/FAM-7Q2K/accept", nil)
		mux.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "/api/invites/{code}/accept", label)
	})

	t.Run("falls back to uuid normalization", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/goals/0b6f3c3e-8a53-4a52-9a55-0b2f1f1f6f10/milestones", nil)
		assert.Equal(t, "/api/goals/{id}/milestones", routeLabel(req))
	})
}

func TestMiddleware_RecordsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat/conversations", nil))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}
