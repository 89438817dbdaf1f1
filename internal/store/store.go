package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clearvue/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict marks a concurrent stock race detected at commit time.
	// Safe to retry with the same input.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable marks a storage failure or timeout. Safe to retry.
	ErrUnavailable = errors.New("storage unavailable")
)

// InsufficientStockError carries the product name and the quantity that was
// actually available when the request failed. errors.Is matches it against
// ErrInsufficientStock.
type InsufficientStockError struct {
	Product   string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.Product, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// CommitSaleInput is the unit of work for one atomic sale. The store locks
// the products, validates stock for every line before mutating anything,
// captures current catalog prices onto the lines, prices the sale, and
// persists stock deductions, the sale, its payment, and the customer ledger
// update as one all-or-nothing transaction.
type CommitSaleInput struct {
	SaleID        string
	PaymentID     string
	CustomerID    string
	Items         []domain.SaleItemRequest
	PaymentMethod string
	At            time.Time
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	CommitSale(ctx context.Context, input CommitSaleInput) (*domain.Sale, *domain.Payment, error)
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)

	CustomerSalesStats(ctx context.Context, customerID string) (domain.CustomerSalesStats, error)
	UnitsSoldSince(ctx context.Context, from time.Time) (map[string]int64, error)
	OverduePayments(ctx context.Context, olderThan time.Time) ([]domain.OverdueEntry, error)
	ProductPerformance(ctx context.Context, category string) ([]domain.PerformanceRow, error)
	RevenueRollup(ctx context.Context, from time.Time, to time.Time, groupBy string) ([]domain.RollupRow, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}
