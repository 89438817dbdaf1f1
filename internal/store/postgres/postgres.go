// Package postgres implements the Repository on PostgreSQL through
// database/sql with the pgx stdlib driver. The sale commit runs as one
// SERIALIZABLE transaction with row locks on the products involved, so the
// non-negative stock invariant holds under concurrent checkouts.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"clearvue/backend/internal/domain"
	"clearvue/backend/internal/pricing"
	"clearvue/backend/internal/store"
)

type Store struct {
	db     *sql.DB
	pricer pricing.Calculator
}

func New(ctx context.Context, databaseURL string, pricer pricing.Calculator) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, pricer: pricer}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, brand, price, stock
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Brand, &p.Price, &p.Stock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, brand, price, stock
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.Brand, &p.Price, &p.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify(err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidInput
	}
	if product.Price.IsNegative() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, brand, price, stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, product.ID, product.Name, product.Category, product.Brand, product.Price, product.Stock)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product %s already exists", store.ErrConflict, product.ID)
		}
		return nil, classify(err)
	}

	created := product
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone, lifetime_value, total_purchases, last_purchase_at
		FROM customers
		ORDER BY id
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, lifetime_value, total_purchases, last_purchase_at
		FROM customers
		WHERE id = $1
	`, id)
	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify(err)
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	customer.LifetimeValue = decimal.Zero
	customer.TotalPurchases = 0
	customer.LastPurchaseAt = nil
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, lifetime_value, total_purchases, created_at, updated_at)
		VALUES ($1,$2,$3,$4,0,0,now(),now())
	`, customer.ID, customer.Name, customer.Email, customer.Phone)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: customer %s already exists", store.ErrConflict, customer.ID)
		}
		return nil, classify(err)
	}

	created := customer
	return &created, nil
}

// CommitSale runs the full checkout in one SERIALIZABLE transaction. The
// customer and every product row are locked up front, every line is checked
// against current stock before any deduction, and the sale, its items, the
// payment, and the customer ledger update commit together or roll back
// together.
func (s *Store) CommitSale(ctx context.Context, input store.CommitSaleInput) (*domain.Sale, *domain.Payment, error) {
	if input.SaleID == "" || input.PaymentID == "" || len(input.Items) == 0 {
		return nil, nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, classify(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	var customerExists bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT true
		FROM customers
		WHERE id = $1
		FOR UPDATE
	`, input.CustomerID).Scan(&customerExists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, input.CustomerID)
		}
		return nil, nil, classify(err)
	}

	ids := uniqueProductIDs(input.Items)
	if len(ids) == 0 {
		return nil, nil, store.ErrInvalidInput
	}

	productRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, price, stock
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, nil, classify(err)
	}
	type productState struct {
		name  string
		price decimal.Decimal
		stock int
	}
	productMap := make(map[string]productState, len(ids))
	for productRows.Next() {
		var id string
		var p productState
		if err := productRows.Scan(&id, &p.name, &p.price, &p.stock); err != nil {
			_ = productRows.Close()
			return nil, nil, err
		}
		productMap[id] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, nil, classify(err)
	}
	_ = productRows.Close()

	lines := make([]pricing.Line, 0, len(input.Items))
	requested := make(map[string]int, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity < 1 {
			return nil, nil, fmt.Errorf("%w: quantity %d for product %s", store.ErrInvalidInput, item.Quantity, item.ProductID)
		}
		product, exists := productMap[item.ProductID]
		if !exists {
			return nil, nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		// The same product may appear on several lines; stock must cover
		// the running total, not each line in isolation.
		requested[item.ProductID] += item.Quantity
		if product.stock < requested[item.ProductID] {
			return nil, nil, &store.InsufficientStockError{
				Product:   product.name,
				Requested: requested[item.ProductID],
				Available: product.stock,
			}
		}
		lines = append(lines, pricing.Line{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: product.price,
		})
	}

	quote, err := s.pricer.Quote(lines)
	if err != nil {
		return nil, nil, err
	}

	for _, item := range input.Items {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2
		`, item.Quantity, item.ProductID)
		if err != nil {
			return nil, nil, classify(err)
		}
	}

	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	sale := domain.Sale{
		ID:         input.SaleID,
		CustomerID: input.CustomerID,
		Subtotal:   quote.Subtotal,
		Tax:        quote.Tax,
		Discount:   quote.Discount,
		Total:      quote.Total,
		Status:     domain.SaleStatusCompleted,
		CreatedAt:  at,
	}
	for _, line := range quote.Lines {
		sale.Items = append(sale.Items, domain.SaleLine{
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			LineDiscount: line.LineDiscount,
		})
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, customer_id, subtotal, tax, discount, total, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.ID, sale.CustomerID, sale.Subtotal, sale.Tax, sale.Discount, sale.Total, sale.Status, sale.CreatedAt)
	if err != nil {
		return nil, nil, classify(err)
	}

	for _, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, line_discount)
			VALUES ($1,$2,$3,$4,$5)
		`, sale.ID, item.ProductID, item.Quantity, item.UnitPrice, item.LineDiscount)
		if err != nil {
			return nil, nil, classify(err)
		}
	}

	payment := domain.Payment{
		ID:        input.PaymentID,
		SaleID:    sale.ID,
		Amount:    sale.Total,
		Method:    input.PaymentMethod,
		Status:    domain.PaymentStatusCompleted,
		CreatedAt: at,
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO payments (id, sale_id, amount, method, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, payment.ID, payment.SaleID, payment.Amount, payment.Method, payment.Status, payment.CreatedAt)
	if err != nil {
		return nil, nil, classify(err)
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE customers
		SET lifetime_value = lifetime_value + $2,
			total_purchases = total_purchases + 1,
			last_purchase_at = $3,
			updated_at = now()
		WHERE id = $1
	`, sale.CustomerID, sale.Total, at)
	if err != nil {
		return nil, nil, classify(err)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, nil, classify(err)
	}

	return &sale, &payment, nil
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, subtotal, tax, discount, total, status, created_at
		FROM sales
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	index := make(map[string]int, limit)
	saleIDs := make([]string, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.CustomerID, &sale.Subtotal, &sale.Tax, &sale.Discount, &sale.Total, &sale.Status, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		index[sale.ID] = len(sales)
		saleIDs = append(saleIDs, sale.ID)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	if len(sales) == 0 {
		return sales, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, quantity, unit_price, line_discount
		FROM sale_items
		WHERE sale_id = ANY($1)
	`, saleIDs)
	if err != nil {
		return nil, classify(err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var saleID string
		var line domain.SaleLine
		if err := itemRows.Scan(&saleID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineDiscount); err != nil {
			return nil, err
		}
		if i, ok := index[saleID]; ok {
			sales[i].Items = append(sales[i].Items, line)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, classify(err)
	}

	return sales, nil
}

func (s *Store) CustomerSalesStats(ctx context.Context, customerID string) (domain.CustomerSalesStats, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT true FROM customers WHERE id = $1
	`, customerID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CustomerSalesStats{}, store.ErrNotFound
		}
		return domain.CustomerSalesStats{}, classify(err)
	}

	stats := domain.CustomerSalesStats{
		TotalSpent:        decimal.Zero,
		AverageOrderValue: decimal.Zero,
	}
	var first, last sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0), COUNT(*), MIN(created_at), MAX(created_at)
		FROM sales
		WHERE customer_id = $1 AND status = $2
	`, customerID, domain.SaleStatusCompleted).Scan(&stats.TotalSpent, &stats.PurchaseFrequency, &first, &last)
	if err != nil {
		return domain.CustomerSalesStats{}, classify(err)
	}

	if stats.PurchaseFrequency > 0 {
		stats.AverageOrderValue = stats.TotalSpent.Div(decimal.NewFromInt(stats.PurchaseFrequency)).Round(2)
	}
	if first.Valid {
		t := first.Time.UTC()
		stats.FirstPurchase = &t
	}
	if last.Valid {
		t := last.Time.UTC()
		stats.LastPurchase = &t
	}
	return stats, nil
}

func (s *Store) UnitsSoldSince(ctx context.Context, from time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT si.product_id, COALESCE(SUM(si.quantity), 0)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.created_at >= $1
		GROUP BY si.product_id
	`, from)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	units := make(map[string]int64)
	for rows.Next() {
		var productID string
		var sold int64
		if err := rows.Scan(&productID, &sold); err != nil {
			return nil, err
		}
		units[productID] = sold
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return units, nil
}

func (s *Store) OverduePayments(ctx context.Context, olderThan time.Time) ([]domain.OverdueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.customer_id, COALESCE(c.name, ''), SUM(p.amount), COUNT(*), MIN(s.created_at)
		FROM payments p
		JOIN sales s ON s.id = p.sale_id
		LEFT JOIN customers c ON c.id = s.customer_id
		WHERE p.status = $1 AND s.created_at < $2
		GROUP BY s.customer_id, c.name
		ORDER BY SUM(p.amount) DESC, s.customer_id
	`, domain.PaymentStatusPending, olderThan)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	entries := make([]domain.OverdueEntry, 0, 32)
	for rows.Next() {
		var entry domain.OverdueEntry
		if err := rows.Scan(&entry.CustomerID, &entry.CustomerName, &entry.TotalOverdue, &entry.OverdueCount, &entry.OldestOverdue); err != nil {
			return nil, err
		}
		entry.OldestOverdue = entry.OldestOverdue.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return entries, nil
}

func (s *Store) ProductPerformance(ctx context.Context, category string) ([]domain.PerformanceRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT si.product_id, pr.name, pr.category,
			SUM(si.unit_price * si.quantity) AS revenue,
			SUM(si.quantity) AS units,
			ROUND(AVG(si.unit_price), 2),
			ROUND(SUM(si.unit_price * si.quantity) / NULLIF(SUM(si.quantity), 0), 2)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		JOIN products pr ON pr.id = si.product_id
		WHERE s.status = $1 AND ($2 = '' OR pr.category = $2)
		GROUP BY si.product_id, pr.name, pr.category
		ORDER BY revenue DESC, si.product_id
	`, domain.SaleStatusCompleted, category)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	result := make([]domain.PerformanceRow, 0, 64)
	for rows.Next() {
		var row domain.PerformanceRow
		var perUnit decimal.NullDecimal
		if err := rows.Scan(&row.ProductID, &row.Name, &row.Category, &row.TotalRevenue, &row.TotalUnits, &row.AveragePrice, &perUnit); err != nil {
			return nil, err
		}
		if perUnit.Valid {
			row.RevenuePerUnit = perUnit.Decimal
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func (s *Store) RevenueRollup(ctx context.Context, from time.Time, to time.Time, groupBy string) ([]domain.RollupRow, error) {
	var query string
	switch groupBy {
	case domain.GroupByProduct:
		query = `
			SELECT si.product_id, pr.name, pr.category,
				SUM(si.unit_price * si.quantity) AS revenue,
				SUM(si.quantity)
			FROM sale_items si
			JOIN sales s ON s.id = si.sale_id
			JOIN products pr ON pr.id = si.product_id
			WHERE s.status = $1 AND s.created_at >= $2 AND s.created_at < $3
			GROUP BY si.product_id, pr.name, pr.category
			ORDER BY revenue DESC, si.product_id
		`
	case domain.GroupByCategory:
		query = `
			SELECT pr.category, '', '',
				SUM(si.unit_price * si.quantity) AS revenue,
				SUM(si.quantity)
			FROM sale_items si
			JOIN sales s ON s.id = si.sale_id
			JOIN products pr ON pr.id = si.product_id
			WHERE s.status = $1 AND s.created_at >= $2 AND s.created_at < $3
			GROUP BY pr.category
			ORDER BY revenue DESC, pr.category
		`
	default:
		return nil, fmt.Errorf("%w: group by %q", store.ErrInvalidInput, groupBy)
	}

	rows, err := s.db.QueryContext(ctx, query, domain.SaleStatusCompleted, from, to)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	result := make([]domain.RollupRow, 0, 64)
	for rows.Next() {
		var row domain.RollupRow
		if err := rows.Scan(&row.Key, &row.Name, &row.Category, &row.Revenue, &row.Units); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s already exists", store.ErrConflict, username)
		}
		return classify(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var customer domain.Customer
	var lastPurchase sql.NullTime
	err := row.Scan(&customer.ID, &customer.Name, &customer.Email, &customer.Phone,
		&customer.LifetimeValue, &customer.TotalPurchases, &lastPurchase)
	if err != nil {
		return domain.Customer{}, err
	}
	if lastPurchase.Valid {
		t := lastPurchase.Time.UTC()
		customer.LastPurchaseAt = &t
	}
	return customer, nil
}

func uniqueProductIDs(items []domain.SaleItemRequest) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// classify maps driver failures onto the shared error taxonomy. Serialization
// failures and deadlocks surface as retryable conflicts; connection-level
// failures and cancelled statements surface as storage unavailability.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001" || pgErr.Code == "40P01":
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		case strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57014" || pgErr.Code == "53300":
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
	}
	return err
}
