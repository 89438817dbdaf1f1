// Package service holds the business operations behind the HTTP layer:
// checkout orchestration, catalog and customer management, and the derived
// analytics reports.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"clearvue/backend/internal/cache"
	"clearvue/backend/internal/domain"
	"clearvue/backend/internal/metrics"
	"clearvue/backend/internal/store"
	"clearvue/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	sales     *metrics.SaleMetrics
	logger    zerolog.Logger
	reportTTL time.Duration

	// now is swapped out in tests to pin report windows.
	now func() time.Time
}

func New(repo store.Repository, reports cache.ReportCache, sales *metrics.SaleMetrics, logger zerolog.Logger, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL < time.Second {
		reportTTL = 30 * time.Second
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		sales:     sales,
		logger:    logger,
		reportTTL: reportTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Brand = strings.TrimSpace(req.Brand)

	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.Price.IsNegative() || req.Stock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.ID == "" {
		req.ID = xid.New("prod")
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:       req.ID,
		Name:     req.Name,
		Category: req.Category,
		Brand:    req.Brand,
		Price:    req.Price,
		Stock:    req.Stock,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info().Str("product_id", created.ID).Str("actor", actor.Username).Msg("product created")
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)

	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}
	if req.ID == "" {
		req.ID = xid.New("cust")
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:    req.ID,
		Name:  req.Name,
		Email: strings.TrimSpace(req.Email),
		Phone: strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logger.Info().Str("customer_id", created.ID).Msg("customer created")
	return *created, nil
}

// ProcessSale validates the request and hands the whole mutation to the
// store as one atomic unit. On success the sale is completed, its payment
// recorded, and the customer ledger advanced; on any failure nothing is
// visible.
func (s *Service) ProcessSale(ctx context.Context, req domain.ProcessSaleRequest) (domain.SaleResult, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CustomerID == "" {
		return domain.SaleResult{}, fmt.Errorf("%w: customer id required", store.ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return domain.SaleResult{}, fmt.Errorf("%w: at least one item required", store.ErrInvalidInput)
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.SaleResult{}, fmt.Errorf("%w: item product id required", store.ErrInvalidInput)
		}
		if item.Quantity < 1 {
			return domain.SaleResult{}, fmt.Errorf("%w: quantity %d for product %s", store.ErrInvalidInput, item.Quantity, item.ProductID)
		}
	}
	if !validPaymentMethod(req.PaymentMethod) {
		return domain.SaleResult{}, fmt.Errorf("%w: payment method %q", store.ErrInvalidInput, req.PaymentMethod)
	}

	input := store.CommitSaleInput{
		SaleID:        xid.New("sale"),
		PaymentID:     xid.New("pay"),
		CustomerID:    req.CustomerID,
		Items:         req.Items,
		PaymentMethod: req.PaymentMethod,
		At:            s.now(),
	}

	started := time.Now()
	sale, payment, err := s.repo.CommitSale(ctx, input)
	elapsed := time.Since(started)
	if err != nil {
		reason := failureReason(err)
		s.sales.ObserveCommit(reason, elapsed)
		s.sales.IncFailed(reason)
		s.logger.Warn().Err(err).
			Str("customer_id", req.CustomerID).
			Int("items", len(req.Items)).
			Str("reason", reason).
			Msg("sale rejected")
		return domain.SaleResult{}, err
	}

	s.sales.ObserveCommit("committed", elapsed)
	s.sales.IncProcessed()
	s.logger.Info().
		Str("sale_id", sale.ID).
		Str("customer_id", sale.CustomerID).
		Str("total", sale.Total.String()).
		Dur("commit_time", elapsed).
		Msg("sale processed")

	return domain.SaleResult{Sale: *sale, Payment: *payment}, nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, limit)
}

func validPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodOnline:
		return true
	}
	return false
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrUnavailable):
		return "unavailable"
	}
	return "internal"
}
