// Package analytics holds the pure scoring and classification rules behind
// the customer value and inventory health reports. Storage access and report
// assembly live in the service layer.
package analytics

import (
	"math"

	"github.com/shopspring/decimal"

	"clearvue/backend/internal/domain"
)

// Score caps. Lifetime value is the capped component sum scaled by 5, so it
// tops out at 100.
const (
	spendScoreCap     = 10.0
	frequencyScoreCap = 5.0
	orderScoreCap     = 5.0
	ltvScale          = 5.0

	spendPerPoint    = 100000.0
	avgOrderPerPoint = 5000.0
)

// Segment boundaries on the 0..100 lifetime value score.
const (
	platinumFloor = 80.0
	goldFloor     = 60.0
	silverFloor   = 40.0
)

// Inventory reorder rules, expressed against trailing monthly unit sales.
const (
	lowStockFactor      = 0.2
	restockFactor       = 1.2
	outOfStockingFactor = 1.5
)

// LTVScores carries the component scores alongside the combined result.
type LTVScores struct {
	SpendScore     float64
	FrequencyScore float64
	OrderScore     float64
	LTVScore       float64
}

// ScoreCustomer computes the lifetime value score from aggregate purchase
// history. Frequency is purchases per month over the account's observed
// lifetime; callers with no time dimension pass the purchase count directly.
func ScoreCustomer(totalSpent decimal.Decimal, frequency float64, avgOrderValue decimal.Decimal) LTVScores {
	spent, _ := totalSpent.Float64()
	avg, _ := avgOrderValue.Float64()

	s := LTVScores{
		SpendScore:     math.Min(spent/spendPerPoint, spendScoreCap),
		FrequencyScore: math.Min(frequency*2, frequencyScoreCap),
		OrderScore:     math.Min(avg/avgOrderPerPoint, orderScoreCap),
	}
	s.LTVScore = (s.SpendScore + s.FrequencyScore + s.OrderScore) * ltvScale
	return s
}

// Segment maps a lifetime value score onto the customer segment ladder.
func Segment(ltvScore float64) string {
	switch {
	case ltvScore >= platinumFloor:
		return domain.SegmentPlatinum
	case ltvScore >= goldFloor:
		return domain.SegmentGold
	case ltvScore >= silverFloor:
		return domain.SegmentSilver
	default:
		return domain.SegmentBronze
	}
}

// StockState is the health bucket a product falls into.
type StockState int

const (
	StockHealthy StockState = iota
	StockLow
	StockOut
)

// ClassifyStock buckets a product by current stock against its trailing
// monthly sales. The low threshold is a fifth of a month of sales; a product
// with no recent sales is healthy at any stock level above zero.
func ClassifyStock(stock int, monthlySales int64) StockState {
	if stock <= 0 {
		return StockOut
	}
	threshold := float64(monthlySales) * lowStockFactor
	if float64(stock) < threshold {
		return StockLow
	}
	return StockHealthy
}

// LowStockThreshold reports the reorder trigger level for the given trailing
// monthly sales.
func LowStockThreshold(monthlySales int64) float64 {
	return float64(monthlySales) * lowStockFactor
}

// RestockQuantity reports how many units to order. Out-of-stock products
// target one and a half months of cover; low-stock products top up to 1.2
// months of cover over what is already on hand.
func RestockQuantity(state StockState, stock int, monthlySales int64) int64 {
	switch state {
	case StockOut:
		return int64(math.Ceil(float64(monthlySales) * outOfStockingFactor))
	case StockLow:
		need := int64(math.Ceil(float64(monthlySales)*restockFactor)) - int64(stock)
		if need < 0 {
			return 0
		}
		return need
	default:
		return 0
	}
}
