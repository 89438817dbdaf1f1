package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"clearvue/backend/internal/store"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestQuoteNoDiscount(t *testing.T) {
	calc := NewCalculator(0.15)

	q, err := calc.Quote([]Line{{ProductID: "prod-1", Quantity: 2, UnitPrice: dec("19.99")}})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	if !q.Subtotal.Equal(dec("39.98")) {
		t.Fatalf("subtotal = %s, want 39.98", q.Subtotal)
	}
	if !q.Tax.Equal(dec("6.00")) {
		t.Fatalf("tax = %s, want 6.00", q.Tax)
	}
	if !q.Total.Equal(dec("45.98")) {
		t.Fatalf("total = %s, want 45.98", q.Total)
	}
	if !q.Discount.IsZero() {
		t.Fatalf("discount = %s, want 0", q.Discount)
	}
	if !q.Lines[0].LineDiscount.IsZero() {
		t.Fatalf("line discount = %s, want 0", q.Lines[0].LineDiscount)
	}
}

func TestQuoteVolumeTiers(t *testing.T) {
	calc := NewCalculator(0.15)

	cases := []struct {
		name         string
		qty          int
		wantDiscount string
	}{
		{"just below volume", 9, "0"},
		{"volume boundary", 10, "5"},
		{"just below bulk", 49, "24.5"},
		{"bulk boundary", 50, "50"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := calc.Quote([]Line{{ProductID: "prod-1", Quantity: tc.qty, UnitPrice: dec("10")}})
			if err != nil {
				t.Fatalf("quote: %v", err)
			}
			if !q.Lines[0].LineDiscount.Equal(dec(tc.wantDiscount)) {
				t.Fatalf("line discount = %s, want %s", q.Lines[0].LineDiscount, tc.wantDiscount)
			}
		})
	}
}

func TestQuoteDiscountPerLineNotPerSale(t *testing.T) {
	calc := NewCalculator(0)

	// Two lines of 6 units each: 12 units in total but neither line
	// reaches the 10-unit tier on its own.
	q, err := calc.Quote([]Line{
		{ProductID: "prod-1", Quantity: 6, UnitPrice: dec("10")},
		{ProductID: "prod-2", Quantity: 6, UnitPrice: dec("10")},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !q.Subtotal.Equal(dec("120")) {
		t.Fatalf("subtotal = %s, want 120", q.Subtotal)
	}
	for _, line := range q.Lines {
		if !line.LineDiscount.IsZero() {
			t.Fatalf("line %s discount = %s, want 0", line.ProductID, line.LineDiscount)
		}
	}
}

func TestQuoteRoundsHalfAwayFromZero(t *testing.T) {
	calc := NewCalculator(0.15)

	// 3 * 3.335 = 10.005, which must round up to 10.01.
	q, err := calc.Quote([]Line{{ProductID: "prod-1", Quantity: 3, UnitPrice: dec("3.335")}})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !q.Subtotal.Equal(dec("10.01")) {
		t.Fatalf("subtotal = %s, want 10.01", q.Subtotal)
	}
	if !q.Tax.Equal(dec("1.50")) {
		t.Fatalf("tax = %s, want 1.50", q.Tax)
	}
	if !q.Total.Equal(dec("11.51")) {
		t.Fatalf("total = %s, want 11.51", q.Total)
	}
}

func TestQuoteRejectsBadInput(t *testing.T) {
	calc := NewCalculator(0.15)

	cases := []struct {
		name  string
		lines []Line
	}{
		{"empty", nil},
		{"zero quantity", []Line{{ProductID: "prod-1", Quantity: 0, UnitPrice: dec("5")}}},
		{"negative quantity", []Line{{ProductID: "prod-1", Quantity: -3, UnitPrice: dec("5")}}},
		{"negative price", []Line{{ProductID: "prod-1", Quantity: 1, UnitPrice: dec("-5")}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := calc.Quote(tc.lines); !errors.Is(err, store.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestQuoteTotalReconciles(t *testing.T) {
	calc := NewCalculator(0.15)

	q, err := calc.Quote([]Line{
		{ProductID: "prod-1", Quantity: 12, UnitPrice: dec("4.25")},
		{ProductID: "prod-2", Quantity: 55, UnitPrice: dec("1.10")},
		{ProductID: "prod-3", Quantity: 1, UnitPrice: dec("999.99")},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !q.Total.Equal(q.Subtotal.Add(q.Tax).Sub(q.Discount)) {
		t.Fatalf("total %s != subtotal %s + tax %s - discount %s", q.Total, q.Subtotal, q.Tax, q.Discount)
	}
}
