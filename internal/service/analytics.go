package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"clearvue/backend/internal/analytics"
	"clearvue/backend/internal/domain"
	"clearvue/backend/internal/store"
)

// overdueAge is how old a sale with a still-pending payment must be before
// it counts as overdue.
const overdueAge = 30 * 24 * time.Hour

// trailingSalesWindow is the lookback used for a product's monthly unit
// sales in the inventory report.
const trailingSalesWindow = 30 * 24 * time.Hour

// CustomerLTV computes the lifetime value report for one customer. A
// customer with no sales gets a zeroed Bronze report, not an error.
func (s *Service) CustomerLTV(ctx context.Context, customerID string) (domain.LTVReport, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.LTVReport{}, fmt.Errorf("%w: customer id required", store.ErrInvalidInput)
	}

	cacheKey := "report:ltv:" + customerID
	var cached domain.LTVReport
	if s.readReport(ctx, cacheKey, &cached) {
		return cached, nil
	}

	stats, err := s.repo.CustomerSalesStats(ctx, customerID)
	if err != nil {
		return domain.LTVReport{}, err
	}

	scores := analytics.ScoreCustomer(stats.TotalSpent, float64(stats.PurchaseFrequency), stats.AverageOrderValue)
	report := domain.LTVReport{
		CustomerID:        customerID,
		LifetimeValue:     stats.TotalSpent,
		AverageOrderValue: stats.AverageOrderValue,
		PurchaseFrequency: stats.PurchaseFrequency,
		LTVScore:          scores.LTVScore,
		Segment:           analytics.Segment(scores.LTVScore),
		FirstPurchase:     stats.FirstPurchase,
		LastPurchase:      stats.LastPurchase,
	}

	s.writeReport(ctx, cacheKey, report)
	return report, nil
}

// OverduePayments aggregates pending payments on sales older than the
// overdue age, grouped per customer, largest outstanding total first.
func (s *Service) OverduePayments(ctx context.Context) ([]domain.OverdueEntry, error) {
	cacheKey := "report:overdue"
	var cached []domain.OverdueEntry
	if s.readReport(ctx, cacheKey, &cached) {
		return cached, nil
	}

	entries, err := s.repo.OverduePayments(ctx, s.now().Add(-overdueAge))
	if err != nil {
		return nil, err
	}

	s.writeReport(ctx, cacheKey, entries)
	return entries, nil
}

// CheckInventoryLevels classifies every product against its trailing month
// of unit sales and reports restock quantities for the unhealthy ones.
func (s *Service) CheckInventoryLevels(ctx context.Context) (domain.InventoryReport, error) {
	cacheKey := "report:inventory"
	var cached domain.InventoryReport
	if s.readReport(ctx, cacheKey, &cached) {
		return cached, nil
	}

	now := s.now()
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.InventoryReport{}, err
	}
	units, err := s.repo.UnitsSoldSince(ctx, now.Add(-trailingSalesWindow))
	if err != nil {
		return domain.InventoryReport{}, err
	}

	report := domain.InventoryReport{
		LowStock:   make([]domain.LowStockEntry, 0, 8),
		OutOfStock: make([]domain.OutOfStockEntry, 0, 8),
		Timestamp:  now,
	}
	for _, product := range products {
		monthly := units[product.ID]
		state := analytics.ClassifyStock(product.Stock, monthly)
		switch state {
		case analytics.StockOut:
			report.OutOfStock = append(report.OutOfStock, domain.OutOfStockEntry{
				Product:      product.Name,
				CurrentStock: product.Stock,
				Required:     int(analytics.RestockQuantity(state, product.Stock, monthly)),
			})
		case analytics.StockLow:
			report.LowStock = append(report.LowStock, domain.LowStockEntry{
				Product:      product.Name,
				CurrentStock: product.Stock,
				Threshold:    int(math.Ceil(analytics.LowStockThreshold(monthly))),
				Required:     int(analytics.RestockQuantity(state, product.Stock, monthly)),
			})
		}
	}

	s.writeReport(ctx, cacheKey, report)
	return report, nil
}

// ProductPerformance ranks products by total revenue, optionally restricted
// to one category.
func (s *Service) ProductPerformance(ctx context.Context, category string) ([]domain.PerformanceRow, error) {
	category = strings.TrimSpace(category)

	cacheKey := "report:performance:" + category
	var cached []domain.PerformanceRow
	if s.readReport(ctx, cacheKey, &cached) {
		return cached, nil
	}

	rows, err := s.repo.ProductPerformance(ctx, category)
	if err != nil {
		return nil, err
	}

	s.writeReport(ctx, cacheKey, rows)
	return rows, nil
}

// SalesAnalytics rolls up revenue for a named timeframe, grouped by product
// or by category.
func (s *Service) SalesAnalytics(ctx context.Context, timeframe string, groupBy string) (domain.RollupReport, error) {
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	groupBy = strings.ToLower(strings.TrimSpace(groupBy))
	if groupBy == "" {
		groupBy = domain.GroupByProduct
	}
	if groupBy != domain.GroupByProduct && groupBy != domain.GroupByCategory {
		return domain.RollupReport{}, fmt.Errorf("%w: group by %q", store.ErrInvalidInput, groupBy)
	}

	now := s.now()
	from, err := timeframeStart(timeframe, now)
	if err != nil {
		return domain.RollupReport{}, err
	}

	cacheKey := "report:rollup:" + timeframe + ":" + groupBy
	var cached domain.RollupReport
	if s.readReport(ctx, cacheKey, &cached) {
		return cached, nil
	}

	rows, err := s.repo.RevenueRollup(ctx, from, now, groupBy)
	if err != nil {
		return domain.RollupReport{}, err
	}

	report := domain.RollupReport{
		Timeframe:   timeframe,
		GroupBy:     groupBy,
		From:        from,
		To:          now,
		Rows:        rows,
		GeneratedAt: now,
	}

	s.writeReport(ctx, cacheKey, report)
	return report, nil
}

// timeframeStart resolves a timeframe token to the start of its window.
func timeframeStart(timeframe string, now time.Time) (time.Time, error) {
	switch timeframe {
	case "daily":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	case "weekly":
		return now.AddDate(0, 0, -7), nil
	case "monthly":
		return now.AddDate(0, -1, 0), nil
	case "annual", "yearly":
		return now.AddDate(-1, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: timeframe %q", store.ErrInvalidInput, timeframe)
	}
}

// readReport loads a cached report into out. Cache failures only cost a
// recompute, so they are logged and ignored.
func (s *Service) readReport(ctx context.Context, key string, out any) bool {
	payload, hit, err := s.reports.Get(ctx, key)
	if err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("report cache read failed")
		return false
	}
	if !hit {
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("report cache entry corrupt")
		return false
	}
	return true
}

func (s *Service) writeReport(ctx context.Context, key string, report any) {
	payload, err := json.Marshal(report)
	if err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("report marshal failed")
		return
	}
	if err := s.reports.Set(ctx, key, payload, s.reportTTL); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("report cache write failed")
	}
}
