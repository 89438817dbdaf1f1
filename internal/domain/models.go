package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Brand    string          `json:"brand"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
}

type ProductCreateRequest struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Brand    string          `json:"brand"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
}

type Customer struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	LifetimeValue  decimal.Decimal `json:"lifetime_value"`
	TotalPurchases int64           `json:"total_purchases"`
	LastPurchaseAt *time.Time      `json:"last_purchase_at,omitempty"`
}

type CustomerCreateRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// SaleLine captures the unit price at the time of sale so later catalog
// edits never change historical sales. LineDiscount is the discount that
// was actually folded into the subtotal for this line; the sale-level
// Discount field stays zero for legacy consumers.
type SaleLine struct {
	ProductID    string          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineDiscount decimal.Decimal `json:"line_discount"`
}

type Sale struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Items      []SaleLine      `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Payment struct {
	ID        string          `json:"id"`
	SaleID    string          `json:"sale_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

type SaleItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type ProcessSaleRequest struct {
	CustomerID    string            `json:"customer_id"`
	Items         []SaleItemRequest `json:"items"`
	PaymentMethod string            `json:"payment_method"`
}

type SaleResult struct {
	Sale    Sale    `json:"sale"`
	Payment Payment `json:"payment"`
}

// CustomerSalesStats is the raw aggregate computed over a customer's
// completed sales; the scoring layer turns it into an LTVReport.
type CustomerSalesStats struct {
	TotalSpent        decimal.Decimal
	AverageOrderValue decimal.Decimal
	PurchaseFrequency int64
	FirstPurchase     *time.Time
	LastPurchase      *time.Time
}

type LTVReport struct {
	CustomerID        string          `json:"customer_id"`
	LifetimeValue     decimal.Decimal `json:"lifetime_value"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	PurchaseFrequency int64           `json:"purchase_frequency"`
	LTVScore          float64         `json:"ltv_score"`
	Segment           string          `json:"customer_segment"`
	FirstPurchase     *time.Time      `json:"first_purchase,omitempty"`
	LastPurchase      *time.Time      `json:"last_purchase,omitempty"`
}

type OverdueEntry struct {
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	TotalOverdue  decimal.Decimal `json:"total_overdue"`
	OverdueCount  int64           `json:"overdue_count"`
	OldestOverdue time.Time       `json:"oldest_overdue"`
}

type LowStockEntry struct {
	Product      string `json:"product"`
	CurrentStock int    `json:"current_stock"`
	Threshold    int    `json:"threshold"`
	Required     int    `json:"required"`
}

type OutOfStockEntry struct {
	Product      string `json:"product"`
	CurrentStock int    `json:"current_stock"`
	Required     int    `json:"required"`
}

type InventoryReport struct {
	LowStock   []LowStockEntry   `json:"low_stock"`
	OutOfStock []OutOfStockEntry `json:"out_of_stock"`
	Timestamp  time.Time         `json:"timestamp"`
}

type PerformanceRow struct {
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	TotalUnits     int64           `json:"total_units"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	RevenuePerUnit decimal.Decimal `json:"revenue_per_unit"`
}

type RollupRow struct {
	Key      string          `json:"key"`
	Name     string          `json:"name,omitempty"`
	Category string          `json:"category,omitempty"`
	Revenue  decimal.Decimal `json:"revenue"`
	Units    int64           `json:"units"`
}

type RollupReport struct {
	Timeframe   string      `json:"timeframe"`
	GroupBy     string      `json:"group_by"`
	From        time.Time   `json:"from"`
	To          time.Time   `json:"to"`
	Rows        []RollupRow `json:"rows"`
	GeneratedAt time.Time   `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	SaleStatusPending   = "pending"
	SaleStatusCompleted = "completed"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

const (
	PaymentMethodCash   = "cash"
	PaymentMethodCard   = "card"
	PaymentMethodOnline = "online"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	SegmentPlatinum = "Platinum"
	SegmentGold     = "Gold"
	SegmentSilver   = "Silver"
	SegmentBronze   = "Bronze"
)

const (
	GroupByProduct  = "product"
	GroupByCategory = "category"
)
