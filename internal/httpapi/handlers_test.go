package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"clearvue/backend/internal/pricing"
	"clearvue/backend/internal/service"
	"clearvue/backend/internal/store/memory"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	repo := memory.NewSeeded(pricing.NewCalculator(0.15))
	svc := service.New(repo, nil, nil, zerolog.Nop(), 30*time.Second)
	auth := NewAuthManager("test-secret", time.Hour, repo, zerolog.Nop())
	api := New(svc, auth, "http://127.0.0.1:3000", zerolog.Nop(), nil)
	return api.Handler()
}

func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	rec := doJSON(handler, http.MethodPost, "/api/v1/auth/login", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s: status = %d, body = %s", username, rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("login returned an empty access token")
	}
	return resp.AccessToken
}

func doJSON(handler http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	rec := doJSON(handler, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	handler := newTestHandler(t)
	rec := doJSON(handler, http.MethodGet, "/api/v1/products", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/products", "", "not-a-real-token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", rec.Code)
	}
}

func TestCashierCannotCreateProducts(t *testing.T) {
	handler := newTestHandler(t)
	token := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/products", `{"name":"Pour Over Stand","category":"equipment","price":"30.00","stock":5}`, token)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body = %s", rec.Code, rec.Body.String())
	}
}

func TestAdminCreatesProduct(t *testing.T) {
	handler := newTestHandler(t)
	token := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/products", `{"name":"Pour Over Stand","category":"equipment","brand":"ClearVue","price":"30.00","stock":5}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Product struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Stock int    `json:"stock"`
		} `json:"product"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Product.ID == "" || resp.Product.Name != "Pour Over Stand" || resp.Product.Stock != 5 {
		t.Fatalf("unexpected product payload: %+v", resp.Product)
	}
}

func TestProcessSaleEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	token := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/sales", `{"customer_id":"cust-0001","items":[{"product_id":"prod-mug-01","quantity":2}],"payment_method":"card"}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Sale struct {
			ID     string `json:"id"`
			Total  string `json:"total"`
			Status string `json:"status"`
		} `json:"sale"`
		Payment struct {
			Status string `json:"status"`
		} `json:"payment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Sale.Status != "completed" || resp.Payment.Status != "completed" {
		t.Fatalf("sale status = %q, payment status = %q, want completed", resp.Sale.Status, resp.Payment.Status)
	}
	if resp.Sale.Total != "27.6" {
		t.Fatalf("sale total = %q, want 27.6", resp.Sale.Total)
	}
}

func TestProcessSaleErrorMapping(t *testing.T) {
	handler := newTestHandler(t)
	token := loginAs(t, handler, "cashier", "cashier123")

	cases := []struct {
		name string
		body string
		want int
	}{
		{"unknown customer", `{"customer_id":"cust-none","items":[{"product_id":"prod-mug-01","quantity":1}],"payment_method":"cash"}`, http.StatusNotFound},
		{"unknown product", `{"customer_id":"cust-0001","items":[{"product_id":"prod-none","quantity":1}],"payment_method":"cash"}`, http.StatusNotFound},
		{"zero quantity", `{"customer_id":"cust-0001","items":[{"product_id":"prod-mug-01","quantity":0}],"payment_method":"cash"}`, http.StatusBadRequest},
		{"bad payment method", `{"customer_id":"cust-0001","items":[{"product_id":"prod-mug-01","quantity":1}],"payment_method":"barter"}`, http.StatusBadRequest},
		{"insufficient stock", `{"customer_id":"cust-0001","items":[{"product_id":"prod-kettle-01","quantity":9999}],"payment_method":"cash"}`, http.StatusConflict},
		{"unknown json field", `{"customer_id":"cust-0001","items":[],"payment_method":"cash","bogus":true}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := doJSON(handler, http.MethodPost, "/api/v1/sales", tc.body, token)
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d, body = %s", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestSalesAnalyticsEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	token := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/sales", `{"customer_id":"cust-0001","items":[{"product_id":"prod-mug-01","quantity":3}],"payment_method":"cash"}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed sale failed: %s", rec.Body.String())
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/sales/analytics/weekly?group=category", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("analytics status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Report struct {
			Timeframe string `json:"timeframe"`
			GroupBy   string `json:"group_by"`
			Rows      []struct {
				Key   string `json:"key"`
				Units int64  `json:"units"`
			} `json:"rows"`
		} `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if resp.Report.Timeframe != "weekly" || resp.Report.GroupBy != "category" {
		t.Fatalf("report header = %+v", resp.Report)
	}
	if len(resp.Report.Rows) != 1 || resp.Report.Rows[0].Units != 3 {
		t.Fatalf("rows = %+v, want one row with 3 units", resp.Report.Rows)
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/sales/analytics/hourly", "", token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown timeframe status = %d, want 400", rec.Code)
	}
}

func TestCustomerLTVEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	token := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(handler, http.MethodGet, "/api/v1/customers/cust-0001/ltv", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("ltv status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Report struct {
			CustomerID string `json:"customer_id"`
			Segment    string `json:"customer_segment"`
		} `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if resp.Report.CustomerID != "cust-0001" || resp.Report.Segment != "Bronze" {
		t.Fatalf("report = %+v, want cust-0001 Bronze", resp.Report)
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/customers/cust-none/ltv", "", token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown customer status = %d, want 404", rec.Code)
	}
}

func TestInventoryAndOverdueEndpoints(t *testing.T) {
	handler := newTestHandler(t)
	token := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(handler, http.MethodGet, "/api/v1/inventory/status", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("inventory status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/inventory/performance?category=equipment", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("performance status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/payments/overdue", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("overdue status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestHandler(t)
	rec := doJSON(handler, http.MethodOptions, "/api/v1/sales", "", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://127.0.0.1:3000" {
		t.Fatalf("allow-origin = %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("nosniff header = %q", got)
	}
}
