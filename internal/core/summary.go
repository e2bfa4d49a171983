package core

import "github.com/shopspring/decimal"

// CategoryTotal is an amount aggregated by category within one currency.
type CategoryTotal struct {
	Category string
	Currency string
	Total    decimal.Decimal
}

// CurrencyTotal is an amount aggregated per currency. Amounts in
// different currencies are never summed together.
type CurrencyTotal struct {
	Currency string
	Total    decimal.Decimal
}

// OwnerSummary is a compact dashboard view for one owner at a point in
// time: the current month's materialized spending plus the due state of
// the owner's templates.
type OwnerSummary struct {
	Year  int
	Month int // 1-12

	ExpenseCount int
	Totals       []CurrencyTotal
	ByCategory   []CategoryTotal

	ActiveTemplates int
	OverdueCount    int
	DueSoonCount    int
}
