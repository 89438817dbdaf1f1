// Package httpapi exposes the service over HTTP: request routing, auth,
// error mapping, and the JSON envelope conventions.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"clearvue/backend/internal/domain"
	"clearvue/backend/internal/service"
	"clearvue/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	logger        zerolog.Logger
	gatherer      prometheus.Gatherer
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger zerolog.Logger, gatherer prometheus.Gatherer) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        logger,
		gatherer:      gatherer,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", a.handleHealth)
	if a.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}
	r.Post("/api/v1/auth/login", a.handleLogin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleCashier, domain.RoleAdmin))

			r.Get("/products", a.handleListProducts)
			r.Get("/products/{id}", a.handleGetProduct)

			r.Get("/customers", a.handleListCustomers)
			r.Post("/customers", a.handleCreateCustomer)
			r.Get("/customers/{id}", a.handleGetCustomer)
			r.Get("/customers/{id}/ltv", a.handleCustomerLTV)

			r.Post("/sales", a.handleProcessSale)
			r.Get("/sales", a.handleListSales)
			r.Get("/sales/analytics/{timeframe}", a.handleSalesAnalytics)

			r.Get("/payments/overdue", a.handleOverduePayments)
			r.Get("/inventory/status", a.handleInventoryStatus)
			r.Get("/inventory/performance", a.handleProductPerformance)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleAdmin))

			r.Post("/products", a.handleCreateProduct)
			r.Post("/users", a.handleCreateUser)
		})
	})

	return a.withMiddleware(r)
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(a.logger, w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				writeError(a.logger, w, http.StatusUnauthorized, err)
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(a.logger, w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(a.logger, w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(a.logger, w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(a.logger, w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(a.logger, w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(a.logger, w, http.StatusBadRequest, err)
		return
	}

	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleCustomerLTV(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.CustomerLTV(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (a *API) handleProcessSale(w http.ResponseWriter, r *http.Request) {
	var req domain.ProcessSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(a.logger, w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.ProcessSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"sale":    result.Sale,
		"payment": result.Payment,
	})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	sales, err := a.service.ListSales(r.Context(), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleSalesAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.SalesAnalytics(r.Context(), chi.URLParam(r, "timeframe"), r.URL.Query().Get("group"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (a *API) handleOverduePayments(w http.ResponseWriter, r *http.Request) {
	entries, err := a.service.OverduePayments(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"overdue": entries})
}

func (a *API) handleInventoryStatus(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.CheckInventoryLevels(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (a *API) handleProductPerformance(w http.ResponseWriter, r *http.Request) {
	rows, err := a.service.ProductPerformance(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"performance": rows})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(a.logger, w, http.StatusBadRequest, err)
		return
	}

	user, err := a.auth.CreateUser(r.Context(), req.Username, req.Password, domain.RoleCashier)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(startedAt)).
			Msg("request")
	})
}

// writeServiceError translates the service error taxonomy onto HTTP status
// codes. Conflict and unavailability are flagged retryable so clients can
// distinguish them from shortages that need new input.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	switch {
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, status, map[string]any{
			"error":     err.Error(),
			"retryable": true,
		})
	case errors.Is(err, store.ErrUnavailable):
		a.logger.Error().Err(err).Msg("storage unavailable")
		writeJSON(w, status, map[string]any{
			"error":     "storage unavailable",
			"retryable": true,
		})
	default:
		writeError(a.logger, w, status, err)
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	if strings.Contains(strings.ToLower(err.Error()), "role required") {
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(logger zerolog.Logger, w http.ResponseWriter, status int, err error) {
	// 5xx responses carry a generic message so internal details (SQL
	// errors, file paths) never reach clients.
	msg := err.Error()
	if status >= 500 {
		logger.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
