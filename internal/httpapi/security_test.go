package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greennets/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	rec := do(t, api, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		handler.ServeHTTP(res, req)

		if i < 5 {
			require.Equal(t, http.StatusUnauthorized, res.Code, "attempt %d", i+1)
		} else {
			require.Equal(t, http.StatusTooManyRequests, res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestUnknownFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	admin := login(t, api, "admin", "admin-pass")

	rec := do(t, api, http.MethodPost, "/api/v1/admin/offline-sales", admin, map[string]any{
		"items":     []map[string]any{{"product_id": "prd-net-clips", "quantity": 1}},
		"surcharge": 100,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api, http.MethodGet, "/api/v1/admin/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, api, http.MethodGet, "/api/v1/admin/orders", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	customer := login(t, api, "customer", "customer-pass")
	rec = do(t, api, http.MethodPost, "/api/v1/admin/offline-sales", customer, map[string]any{
		"items": []map[string]any{{"product_id": "prd-net-clips", "quantity": 1}},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInternalErrorsStayGeneric(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, fmt.Errorf("pq: relation \"products\" does not exist"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation")
}

func TestMetricsEndpointExposesRequestCounter(t *testing.T) {
	api := newTestAPI(t)
	_ = do(t, api, http.MethodGet, "/healthz", "", nil)

	rec := do(t, api, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="GET /healthz",status="200"}`)
}
