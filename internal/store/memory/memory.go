// Package memory is a mutex-guarded in-memory Repository used for dev mode
// and tests. The checkout path holds the write lock for the whole commit, so
// the same all-or-nothing guarantees hold as in the SQL implementation.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"clearvue/backend/internal/domain"
	"clearvue/backend/internal/pricing"
	"clearvue/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	pricer          pricing.Calculator
	products        map[string]domain.Product
	customers       map[string]domain.Customer
	salesByID       map[string]*domain.Sale
	paymentsByID    map[string]domain.Payment
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning printed to stdout.
// Production deployments use PostgreSQL and never hit this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New(pricer pricing.Calculator) *Store {
	return &Store{
		pricer:          pricer,
		products:        make(map[string]domain.Product),
		customers:       make(map[string]domain.Customer),
		salesByID:       make(map[string]*domain.Sale),
		paymentsByID:    make(map[string]domain.Payment),
		usersByUsername: seedUsers(),
	}
}

func NewSeeded(pricer pricing.Calculator) *Store {
	s := New(pricer)

	products := []domain.Product{
		{ID: "prod-espresso-01", Name: "Espresso Machine E200", Category: "appliances", Brand: "BrewCraft", Price: dec("349.99"), Stock: 40},
		{ID: "prod-grinder-01", Name: "Burr Grinder G10", Category: "appliances", Brand: "BrewCraft", Price: dec("89.50"), Stock: 65},
		{ID: "prod-beans-01", Name: "House Blend Beans 1kg", Category: "consumables", Brand: "Roastery", Price: dec("24.00"), Stock: 300},
		{ID: "prod-beans-02", Name: "Single Origin Beans 500g", Category: "consumables", Brand: "Roastery", Price: dec("18.75"), Stock: 220},
		{ID: "prod-mug-01", Name: "Ceramic Mug 350ml", Category: "accessories", Brand: "ClayWorks", Price: dec("12.00"), Stock: 180},
		{ID: "prod-tumbler-01", Name: "Travel Tumbler 450ml", Category: "accessories", Brand: "ClayWorks", Price: dec("19.99"), Stock: 140},
		{ID: "prod-filter-01", Name: "Paper Filters x100", Category: "consumables", Brand: "BrewCraft", Price: dec("6.50"), Stock: 500},
		{ID: "prod-kettle-01", Name: "Gooseneck Kettle 1L", Category: "appliances", Brand: "PourPro", Price: dec("54.00"), Stock: 55},
		{ID: "prod-scale-01", Name: "Precision Scale S1", Category: "accessories", Brand: "PourPro", Price: dec("39.00"), Stock: 70},
		{ID: "prod-syrup-01", Name: "Vanilla Syrup 750ml", Category: "consumables", Brand: "Sweetline", Price: dec("9.25"), Stock: 160},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	customers := []domain.Customer{
		{ID: "cust-0001", Name: "Harborview Cafe", Email: "orders@harborview.example", Phone: "+1-555-0101"},
		{ID: "cust-0002", Name: "Daily Grind Co", Email: "purchasing@dailygrind.example", Phone: "+1-555-0102"},
		{ID: "cust-0003", Name: "Morning Ritual", Email: "hello@morningritual.example", Phone: "+1-555-0103"},
	}
	for _, c := range customers {
		c.LifetimeValue = decimal.Zero
		s.customers[c.ID] = c
	}

	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidInput
	}
	if product.Price.IsNegative() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s already exists", store.ErrConflict, product.ID)
	}

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.ID, b.ID)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" || strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, fmt.Errorf("%w: customer %s already exists", store.ErrConflict, customer.ID)
	}

	customer.LifetimeValue = decimal.Zero
	customer.TotalPurchases = 0
	customer.LastPurchaseAt = nil
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

// CommitSale performs the whole sale as one unit under the write lock:
// every line is validated against current stock before any deduction, prices
// are captured from the catalog, and the sale, payment, and customer ledger
// update land together or not at all.
func (s *Store) CommitSale(_ context.Context, input store.CommitSaleInput) (*domain.Sale, *domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if input.SaleID == "" || input.PaymentID == "" || len(input.Items) == 0 {
		return nil, nil, store.ErrInvalidInput
	}

	customer, exists := s.customers[input.CustomerID]
	if !exists {
		return nil, nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, input.CustomerID)
	}

	lines := make([]pricing.Line, 0, len(input.Items))
	requested := make(map[string]int, len(input.Items))
	for _, item := range input.Items {
		product, exists := s.products[item.ProductID]
		if !exists {
			return nil, nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if item.Quantity < 1 {
			return nil, nil, fmt.Errorf("%w: quantity %d for product %s", store.ErrInvalidInput, item.Quantity, item.ProductID)
		}
		// The same product may appear on several lines; stock must cover
		// the running total, not each line in isolation.
		requested[item.ProductID] += item.Quantity
		if product.Stock < requested[item.ProductID] {
			return nil, nil, &store.InsufficientStockError{
				Product:   product.Name,
				Requested: requested[item.ProductID],
				Available: product.Stock,
			}
		}
		lines = append(lines, pricing.Line{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
	}

	quote, err := s.pricer.Quote(lines)
	if err != nil {
		return nil, nil, err
	}

	// Every line validated; mutation starts here.
	for _, item := range input.Items {
		product := s.products[item.ProductID]
		product.Stock -= item.Quantity
		s.products[item.ProductID] = product
	}

	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	saleItems := make([]domain.SaleLine, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		saleItems = append(saleItems, domain.SaleLine{
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			LineDiscount: line.LineDiscount,
		})
	}

	sale := domain.Sale{
		ID:         input.SaleID,
		CustomerID: input.CustomerID,
		Items:      saleItems,
		Subtotal:   quote.Subtotal,
		Tax:        quote.Tax,
		Discount:   quote.Discount,
		Total:      quote.Total,
		Status:     domain.SaleStatusCompleted,
		CreatedAt:  at,
	}
	payment := domain.Payment{
		ID:        input.PaymentID,
		SaleID:    sale.ID,
		Amount:    sale.Total,
		Method:    input.PaymentMethod,
		Status:    domain.PaymentStatusCompleted,
		CreatedAt: at,
	}

	customer.LifetimeValue = customer.LifetimeValue.Add(sale.Total)
	customer.TotalPurchases++
	purchasedAt := at
	customer.LastPurchaseAt = &purchasedAt
	s.customers[input.CustomerID] = customer

	s.salesByID[sale.ID] = cloneSale(&sale)
	s.paymentsByID[payment.ID] = payment

	resultSale := cloneSale(&sale)
	resultPayment := payment
	return resultSale, &resultPayment, nil
}

// AddPayment records a standalone payment row. Dev seeding and tests use it
// to stage pending payments for the overdue report.
func (s *Store) AddPayment(_ context.Context, payment domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payment.ID == "" || payment.SaleID == "" {
		return store.ErrInvalidInput
	}
	s.paymentsByID[payment.ID] = payment
	return nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		sales = append(sales, *cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) CustomerSalesStats(_ context.Context, customerID string) (domain.CustomerSalesStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.customers[customerID]; !exists {
		return domain.CustomerSalesStats{}, store.ErrNotFound
	}

	stats := domain.CustomerSalesStats{
		TotalSpent:        decimal.Zero,
		AverageOrderValue: decimal.Zero,
	}
	for _, sale := range s.salesByID {
		if sale.CustomerID != customerID || sale.Status != domain.SaleStatusCompleted {
			continue
		}
		stats.TotalSpent = stats.TotalSpent.Add(sale.Total)
		stats.PurchaseFrequency++
		created := sale.CreatedAt
		if stats.FirstPurchase == nil || created.Before(*stats.FirstPurchase) {
			first := created
			stats.FirstPurchase = &first
		}
		if stats.LastPurchase == nil || created.After(*stats.LastPurchase) {
			last := created
			stats.LastPurchase = &last
		}
	}
	if stats.PurchaseFrequency > 0 {
		stats.AverageOrderValue = stats.TotalSpent.Div(decimal.NewFromInt(stats.PurchaseFrequency)).Round(2)
	}
	return stats, nil
}

func (s *Store) UnitsSoldSince(_ context.Context, from time.Time) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	units := make(map[string]int64)
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) {
			continue
		}
		for _, line := range sale.Items {
			units[line.ProductID] += int64(line.Quantity)
		}
	}
	return units, nil
}

func (s *Store) OverduePayments(_ context.Context, olderThan time.Time) ([]domain.OverdueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCustomer := map[string]*domain.OverdueEntry{}
	for _, payment := range s.paymentsByID {
		if payment.Status != domain.PaymentStatusPending {
			continue
		}
		sale, exists := s.salesByID[payment.SaleID]
		if !exists || !sale.CreatedAt.Before(olderThan) {
			continue
		}
		entry := byCustomer[sale.CustomerID]
		if entry == nil {
			name := ""
			if customer, ok := s.customers[sale.CustomerID]; ok {
				name = customer.Name
			}
			entry = &domain.OverdueEntry{
				CustomerID:    sale.CustomerID,
				CustomerName:  name,
				TotalOverdue:  decimal.Zero,
				OldestOverdue: sale.CreatedAt,
			}
			byCustomer[sale.CustomerID] = entry
		}
		entry.TotalOverdue = entry.TotalOverdue.Add(payment.Amount)
		entry.OverdueCount++
		if sale.CreatedAt.Before(entry.OldestOverdue) {
			entry.OldestOverdue = sale.CreatedAt
		}
	}

	result := make([]domain.OverdueEntry, 0, len(byCustomer))
	for _, entry := range byCustomer {
		result = append(result, *entry)
	}
	slices.SortFunc(result, func(a, b domain.OverdueEntry) int {
		if a.TotalOverdue.Equal(b.TotalOverdue) {
			return cmpString(a.CustomerID, b.CustomerID)
		}
		if a.TotalOverdue.GreaterThan(b.TotalOverdue) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) ProductPerformance(_ context.Context, category string) ([]domain.PerformanceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := map[string]*domain.PerformanceRow{}
	priceSums := map[string]decimal.Decimal{}
	lineCounts := map[string]int64{}
	for _, sale := range s.salesByID {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		for _, line := range sale.Items {
			product, exists := s.products[line.ProductID]
			if !exists {
				continue
			}
			if category != "" && product.Category != category {
				continue
			}
			row := byProduct[line.ProductID]
			if row == nil {
				row = &domain.PerformanceRow{
					ProductID:    line.ProductID,
					Name:         product.Name,
					Category:     product.Category,
					TotalRevenue: decimal.Zero,
				}
				byProduct[line.ProductID] = row
				priceSums[line.ProductID] = decimal.Zero
			}
			lineRevenue := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
			row.TotalRevenue = row.TotalRevenue.Add(lineRevenue)
			row.TotalUnits += int64(line.Quantity)
			priceSums[line.ProductID] = priceSums[line.ProductID].Add(line.UnitPrice)
			lineCounts[line.ProductID]++
		}
	}

	result := make([]domain.PerformanceRow, 0, len(byProduct))
	for id, row := range byProduct {
		if row.TotalUnits > 0 {
			row.RevenuePerUnit = row.TotalRevenue.Div(decimal.NewFromInt(row.TotalUnits)).Round(2)
		}
		if lineCounts[id] > 0 {
			row.AveragePrice = priceSums[id].Div(decimal.NewFromInt(lineCounts[id])).Round(2)
		}
		result = append(result, *row)
	}
	slices.SortFunc(result, func(a, b domain.PerformanceRow) int {
		if a.TotalRevenue.Equal(b.TotalRevenue) {
			return cmpString(a.ProductID, b.ProductID)
		}
		if a.TotalRevenue.GreaterThan(b.TotalRevenue) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) RevenueRollup(_ context.Context, from time.Time, to time.Time, groupBy string) ([]domain.RollupRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if groupBy != domain.GroupByProduct && groupBy != domain.GroupByCategory {
		return nil, fmt.Errorf("%w: group by %q", store.ErrInvalidInput, groupBy)
	}

	byKey := map[string]*domain.RollupRow{}
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		for _, line := range sale.Items {
			product, exists := s.products[line.ProductID]
			if !exists {
				continue
			}
			key := line.ProductID
			if groupBy == domain.GroupByCategory {
				key = product.Category
			}
			row := byKey[key]
			if row == nil {
				row = &domain.RollupRow{Key: key, Revenue: decimal.Zero}
				if groupBy == domain.GroupByProduct {
					row.Name = product.Name
					row.Category = product.Category
				}
				byKey[key] = row
			}
			lineRevenue := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
			row.Revenue = row.Revenue.Add(lineRevenue)
			row.Units += int64(line.Quantity)
		}
	}

	result := make([]domain.RollupRow, 0, len(byKey))
	for _, row := range byKey {
		result = append(result, *row)
	}
	slices.SortFunc(result, func(a, b domain.RollupRow) int {
		if a.Revenue.Equal(b.Revenue) {
			return cmpString(a.Key, b.Key)
		}
		if a.Revenue.GreaterThan(b.Revenue) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: user %s already exists", store.ErrConflict, username)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.SaleLine, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return &dup
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
